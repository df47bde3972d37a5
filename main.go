package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"

	"github.com/detectdash/client/cmd/server"
	"github.com/detectdash/client/config"
	"github.com/detectdash/client/models"
	"github.com/detectdash/client/services"
)

var (
	configPath string
	envPath    string
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	switch command {
	case "run":
		runWorkflow(os.Args[2:])
	case "detections":
		runDetections(os.Args[2:])
	case "videos":
		runVideos(os.Args[2:])
	case "health":
		runHealth(os.Args[2:])
	case "serve":
		runServe(os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "Usage: detectdash <command> [flags]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  run         Upload a video, process it and show the detections")
	fmt.Fprintln(os.Stderr, "  detections  Show the detections of an already processed video")
	fmt.Fprintln(os.Stderr, "  videos      List videos uploaded to the backend")
	fmt.Fprintln(os.Stderr, "  health      Wait until the backend answers")
	fmt.Fprintln(os.Stderr, "  serve       Start the local dashboard")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Common flags:")
	fmt.Fprintln(os.Stderr, "  -config   YAML config file (default: config/app.yaml)")
	fmt.Fprintln(os.Stderr, "  -env      dotenv file providing API_URL (default: .env)")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Run 'detectdash <command> -help' for details.")
}

func addCommonFlags(fs *flag.FlagSet) {
	fs.StringVar(&configPath, "config", "config/app.yaml", "YAML config file")
	fs.StringVar(&envPath, "env", ".env", "dotenv file")
}

func fatal(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, "err", err)
	os.Exit(1)
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(
		tint.NewHandler(os.Stderr, &tint.Options{
			Level:      lvl,
			TimeFormat: "15:04:05",
		}),
	)
}

// loadAppConfig loads .env and the YAML config and builds the logger.
func loadAppConfig() (*config.AppConfig, *slog.Logger) {
	bootstrap := newLogger("info")
	if err := config.LoadEnv(envPath); err != nil {
		fatal(bootstrap, "loading env file", err)
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fatal(bootstrap, "loading config", err)
	}
	logger := newLogger(cfg.App.LogLevel)
	slog.SetDefault(logger)
	return cfg, logger
}

func newBackend(cfg *config.AppConfig, logger *slog.Logger) *services.BackendClient {
	return services.NewBackendClient(cfg.Backend.URL, services.BackendOptions{
		Timeout:         cfg.BackendTimeout(),
		BreakerFailures: cfg.Backend.BreakerFailures,
		Logger:          logger,
	})
}

func runWorkflow(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	video := fs.String("video", "", "path to video file (required)")
	page := fs.Int("page", 1, "results page to show")
	all := fs.Bool("all", false, "show every results page")
	addCommonFlags(fs)
	fs.Parse(args)

	if *video == "" {
		fmt.Fprintln(os.Stderr, "error: -video flag is required")
		fs.Usage()
		os.Exit(1)
	}

	cfg, logger := loadAppConfig()
	file, err := services.NewLocalFile(*video)
	if err != nil {
		fatal(logger, "opening video", err)
	}

	ctrl := services.NewController(newBackend(cfg, logger), services.ControllerConfig{
		AllowedExtensions:    cfg.Upload.AllowedExtensions,
		VerifyProcessedVideo: cfg.Backend.VerifyProcessedVideo,
		Logger:               logger,
	})
	ctx := context.Background()

	ctrl.SelectFile(file)
	printStatus(ctrl)
	if _, err := ctrl.Upload(ctx); err != nil {
		printStatus(ctrl)
		os.Exit(1)
	}
	printStatus(ctrl)
	if _, err := ctrl.Process(ctx); err != nil {
		printStatus(ctrl)
		os.Exit(1)
	}

	v := ctrl.View()
	fmt.Println(v.StatusMessage)
	fmt.Printf("Video ID:        %s\n", v.Session.VideoID)
	fmt.Printf("Original video:  %s\n", v.Session.OriginalPreviewURL)
	if v.Session.ProcessedPreviewURL != "" {
		fmt.Printf("Processed video: %s\n", v.Session.ProcessedPreviewURL)
	}
	fmt.Println()

	if *all {
		for p := 1; p <= v.PageView.TotalPages; p++ {
			ctrl.SetPage(p)
			fmt.Print(services.FormatDetectionsTable(ctrl.View().PageView))
			fmt.Println()
		}
		return
	}
	ctrl.SetPage(*page)
	fmt.Print(services.FormatDetectionsTable(ctrl.View().PageView))
}

func printStatus(ctrl *services.Controller) {
	fmt.Println(ctrl.View().StatusMessage)
}

func runDetections(args []string) {
	fs := flag.NewFlagSet("detections", flag.ExitOnError)
	id := fs.String("id", "", "video ID (required)")
	page := fs.Int("page", 1, "results page to show")
	addCommonFlags(fs)
	fs.Parse(args)

	if *id == "" {
		fmt.Fprintln(os.Stderr, "error: -id flag is required")
		fs.Usage()
		os.Exit(1)
	}

	cfg, logger := loadAppConfig()
	backend := newBackend(cfg, logger)

	dets, err := backend.Detections(context.Background(), *id)
	if services.IsNoDetections(err) {
		dets, err = []models.Detection{}, nil
	}
	if err != nil {
		fatal(logger, "fetching detections", err)
	}

	fmt.Printf("Processed video: %s\n\n", backend.ProcessedVideoURL(*id))
	fmt.Print(services.FormatDetectionsTable(services.Paginate(dets, *page, services.DefaultPageSize)))
}

func runVideos(args []string) {
	fs := flag.NewFlagSet("videos", flag.ExitOnError)
	addCommonFlags(fs)
	fs.Parse(args)

	cfg, logger := loadAppConfig()
	videos, err := newBackend(cfg, logger).ListVideos(context.Background())
	if err != nil {
		fatal(logger, "listing videos", err)
	}
	if len(videos) == 0 {
		fmt.Println("No videos uploaded.")
		return
	}
	fmt.Printf("%-28s %s\n", "ID", "Filename")
	fmt.Printf("%s\n", strings.Repeat("-", 70))
	for _, v := range videos {
		fmt.Printf("%-28s %s\n", v.ID, v.Filename)
	}
}

func runHealth(args []string) {
	fs := flag.NewFlagSet("health", flag.ExitOnError)
	timeout := fs.Duration("timeout", 30*time.Second, "how long to wait for the backend")
	addCommonFlags(fs)
	fs.Parse(args)

	cfg, logger := loadAppConfig()
	fmt.Printf("Waiting for backend at %s...\n", cfg.Backend.URL)
	if err := newBackend(cfg, logger).WaitForReady(context.Background(), *timeout); err != nil {
		fatal(logger, "backend not ready", err)
	}
	fmt.Println("Backend ready")
}

func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	addCommonFlags(fs)
	fs.Parse(args)

	cfg, logger := loadAppConfig()
	if err := server.Start(cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		fatal(logger, "dashboard failed", err)
	}
}
