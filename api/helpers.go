package api

import (
	"context"
	"encoding/json"
	"net/http"
)

type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func HealthCheck(w http.ResponseWriter, r *http.Request, backend HealthChecker) {
	backendStatus := "ok"
	if err := backend.HealthCheck(r.Context()); err != nil {
		backendStatus = "unavailable"
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"backend": backendStatus,
	})
}
