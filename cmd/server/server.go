package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/detectdash/client/api"
	"github.com/detectdash/client/config"
	"github.com/detectdash/client/services"
)

type Deps struct {
	Backend    *services.BackendClient
	Controller *services.Controller
	Journal    *services.Journal
	StagingDir string
	Logger     *slog.Logger
}

func Start(cfg *config.AppConfig, logger *slog.Logger) error {
	backend := services.NewBackendClient(cfg.Backend.URL, services.BackendOptions{
		Timeout:         cfg.BackendTimeout(),
		BreakerFailures: cfg.Backend.BreakerFailures,
		Logger:          logger,
	})
	logger.Info("backend configured", "url", backend.BaseURL())

	journal, err := services.NewJournal()
	if err != nil {
		return fmt.Errorf("opening journal: %w", err)
	}
	defer journal.Close()

	// Browser-picked files live only as long as the server.
	stagingDir, err := os.MkdirTemp("", "detectdash-*")
	if err != nil {
		return fmt.Errorf("creating staging directory: %w", err)
	}
	defer os.RemoveAll(stagingDir)

	ctrl := services.NewController(backend, services.ControllerConfig{
		AllowedExtensions:    cfg.Upload.AllowedExtensions,
		VerifyProcessedVideo: cfg.Backend.VerifyProcessedVideo,
		PreviewURL:           api.OriginalPreviewURL,
		Recorder:             journal,
		Logger:               logger,
	})

	r := NewRouter(Deps{
		Backend:    backend,
		Controller: ctrl,
		Journal:    journal,
		StagingDir: stagingDir,
		Logger:     logger,
	})

	addr := fmt.Sprintf("%s:%d", cfg.App.Host, cfg.App.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("starting dashboard", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	logger.Info("dashboard stopped")
	return nil
}

func NewRouter(d Deps) http.Handler {
	sessionHandler := api.NewSessionHandler(d.Controller, d.StagingDir, d.Logger)
	videoHandler := api.NewVideoHandler(d.Controller, d.Backend)
	journalHandler := api.NewJournalHandler(d.Journal)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger(d.Logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			api.HealthCheck(w, r, d.Backend)
		})

		// Workflow
		r.Get("/session", sessionHandler.Get)
		r.Post("/session/file", sessionHandler.SelectFile)
		r.Post("/upload", sessionHandler.Upload)
		r.Post("/process", sessionHandler.Process)
		r.Post("/results/refresh", sessionHandler.Refresh)

		// Pagination
		r.Post("/page", sessionHandler.SetPage)
		r.Post("/page/next", sessionHandler.NextPage)
		r.Post("/page/prev", sessionHandler.PrevPage)

		r.Get("/videos", videoHandler.List)
		r.Get("/journal", journalHandler.List)
	})

	r.Get("/media/original", videoHandler.Original)

	return r
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				logger.Info("request",
					"method", r.Method,
					"path", r.URL.Path,
					"status", ww.Status(),
					"bytes", ww.BytesWritten(),
					"elapsed", time.Since(start),
					"request_id", middleware.GetReqID(r.Context()))
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
