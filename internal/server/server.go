// Package server exposes the backup agent over HTTP: a small REST API for
// backup operations plus metrics and health endpoints.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/imedwei/b2-backup-agent/internal/agent"
	"github.com/imedwei/b2-backup-agent/internal/health"
	"github.com/imedwei/b2-backup-agent/internal/stream"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// BackupService is the slice of the agent the HTTP layer needs.
type BackupService interface {
	ListBackups(ctx context.Context) ([]*agent.Backup, error)
	GetBackup(ctx context.Context, backupID string) (*agent.Backup, error)
	DeleteBackup(ctx context.Context, backupID string) error
	DownloadBackup(ctx context.Context, backupID string) (stream.NextFunc, error)
}

// Server is the HTTP server wrapping a BackupService.
type Server struct {
	server  *http.Server
	logger  *slog.Logger
	checker *health.Checker
}

// Config holds server configuration.
type Config struct {
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// DefaultConfig returns default server configuration.
func DefaultConfig() Config {
	return Config{
		Port:        8080,
		ReadTimeout: 5 * time.Second,
		// Downloads stream through the write path, so the write timeout has
		// to accommodate a whole archive transfer.
		WriteTimeout:    30 * time.Minute,
		ShutdownTimeout: 30 * time.Second,
	}
}

// New creates the HTTP server for the given backup service.
func New(config Config, svc BackupService, logger *slog.Logger) *Server {
	checker := health.NewChecker()

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", config.Port),
		Handler:      Routes(svc, checker, logger),
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}

	return &Server{
		server:  server,
		logger:  logger,
		checker: checker,
	}
}

// Routes builds the HTTP mux. Split out from New so tests can drive the
// handlers through httptest without binding a port.
func Routes(svc BackupService, checker *health.Checker, logger *slog.Logger) http.Handler {
	h := &handlers{svc: svc, logger: logger}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", checker.Handler())
	mux.HandleFunc("/ready", health.ReadinessHandler())
	mux.HandleFunc("/live", health.LivenessHandler())

	mux.HandleFunc("GET /v1/backups", h.listBackups)
	mux.HandleFunc("GET /v1/backups/{id}", h.getBackup)
	mux.HandleFunc("DELETE /v1/backups/{id}", h.deleteBackup)
	mux.HandleFunc("GET /v1/backups/{id}/download", h.downloadBackup)

	return mux
}

type handlers struct {
	svc    BackupService
	logger *slog.Logger
}

func (h *handlers) listBackups(w http.ResponseWriter, r *http.Request) {
	backups, err := h.svc.ListBackups(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}

	payload := make([]map[string]any, 0, len(backups))
	for _, b := range backups {
		payload = append(payload, b.AsMap())
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"backups": payload})
}

func (h *handlers) getBackup(w http.ResponseWriter, r *http.Request) {
	b, err := h.svc.GetBackup(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, b.AsMap())
}

func (h *handlers) deleteBackup(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteBackup(r.Context(), r.PathValue("id")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) downloadBackup(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	next, err := h.svc.DownloadBackup(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/x-tar")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", id+".tar"))

	flusher, _ := w.(http.Flusher)
	for {
		chunk, err := next(r.Context())
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			// Headers are already sent; all we can do is cut the stream.
			h.logger.Warn("Download stream failed mid-transfer",
				"backup_id", id,
				"error", err,
			)
			return
		}
		if _, err := w.Write(chunk); err != nil {
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}

func (h *handlers) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var agentErr *agent.Error
	switch {
	case errors.Is(err, agent.ErrNotFound):
		status = http.StatusNotFound
	case errors.As(err, &agentErr):
		// The bucket itself misbehaved; surface it as an upstream failure.
		status = http.StatusBadGateway
	}
	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed", "error", err)
	}
	h.writeJSON(w, status, map[string]any{"error": err.Error()})
}

func (h *handlers) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Warn("Failed to write response", "error", err)
	}
}

// RegisterHealthCheck registers a health check function.
func (s *Server) RegisterHealthCheck(name string, checkFunc func(context.Context) health.Check) {
	s.checker.RegisterCheck(name, checkFunc)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP server", "addr", s.server.Addr)

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}
