// Package hub is the orchestrator that ties the gateway components together.
package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/tpbot/gateway/internal/auth"
	"github.com/tpbot/gateway/internal/config"
	"github.com/tpbot/gateway/internal/gateway"
	"github.com/tpbot/gateway/internal/store"
)

// Hub is the main gateway process.
type Hub struct {
	cfg     *config.Config
	store   store.Store
	gateway *gateway.Gateway
	logger  *slog.Logger
}

// New creates a new hub from configuration. A credential store that cannot
// be opened is fatal.
func New(cfg *config.Config, logger *slog.Logger) (*Hub, error) {
	db, err := store.New(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("init credential store: %w", err)
	}

	authSvc := auth.NewService(db)

	gw := gateway.New(gateway.NewRegistry(), authSvc, logger, gateway.Options{
		AllowedOrigins:  cfg.Server.AllowedOrigins,
		MaxMessageBytes: cfg.Server.MaxMessageBytes,
		AuthTimeout:     cfg.Server.AuthTimeout.Duration,
	})

	return &Hub{
		cfg:     cfg,
		store:   db,
		gateway: gw,
		logger:  logger.With("component", "hub"),
	}, nil
}

// Handler builds the HTTP mux: the WebSocket endpoint plus health checks.
func (h *Hub) Handler() http.Handler {
	mux := chi.NewRouter()
	mux.Use(chimw.Recoverer)
	mux.Use(chimw.RealIP)

	mux.Get("/healthz", h.handleHealthz)
	mux.Get("/readyz", h.handleReadyz)
	mux.Get("/ws", h.gateway.HandleWS)

	return mux
}

func (h *Hub) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (h *Hub) handleReadyz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := h.store.Ping(r.Context()); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "degraded", "error": err.Error()})
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// Run starts the HTTP server and blocks until the context is canceled.
func (h *Hub) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    h.cfg.Server.Addr,
		Handler: h.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		h.logger.Info("gateway listening", "addr", h.cfg.Server.Addr)
		if h.cfg.Server.TLSCert != "" && h.cfg.Server.TLSKey != "" {
			errCh <- srv.ListenAndServeTLS(h.cfg.Server.TLSCert, h.cfg.Server.TLSKey)
		} else {
			h.logger.Warn("TLS not configured, running without encryption (development only)")
			errCh <- srv.ListenAndServe()
		}
	}()

	select {
	case <-ctx.Done():
		h.logger.Info("shutting down gracefully")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			h.logger.Warn("graceful shutdown failed, forcing close", "error", err)
			_ = srv.Close()
		}

		_ = h.store.Close()
		h.logger.Info("shutdown complete")
		return ctx.Err()

	case err := <-errCh:
		_ = h.store.Close()
		return err
	}
}
