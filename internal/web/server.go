// Package web provides the agent's HTTP server and routing
package web

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"inclusiveai-offline/internal/config"
	"inclusiveai-offline/internal/manager"
	"inclusiveai-offline/internal/swcache"
	"inclusiveai-offline/internal/web/handlers"
)

// Server represents the agent HTTP server
type Server struct {
	server *http.Server
	logger *slog.Logger
}

// NewServer wires the content-manager endpoints over the offline proxy. Any
// path not handled locally is served with service-worker fetch semantics.
func NewServer(cfg *config.Config, contentManager *manager.Manager, cache *swcache.Cache, storage manager.StorageEstimator) *Server {
	h := handlers.NewHandlers(contentManager, storage)
	proxy := swcache.NewProxy(cache)

	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/status", h.Status)
	mux.HandleFunc("GET /api/packages/available", h.AvailablePackages)
	mux.HandleFunc("GET /api/packages/installed", h.InstalledPackages)
	mux.HandleFunc("POST /api/packages/refresh", h.RefreshPackages)
	mux.HandleFunc("POST /api/packages/{id}/download", h.DownloadPackage)
	mux.HandleFunc("GET /api/packages/{id}/progress", h.DownloadProgress)
	mux.HandleFunc("DELETE /api/packages/{id}", h.UninstallPackage)
	mux.HandleFunc("POST /api/sync", h.EnqueueSync)
	mux.HandleFunc("POST /api/sync/flush", h.FlushSync)
	mux.HandleFunc("GET /api/lessons/search", h.SearchLessons)

	// Everything else goes through the cache strategies
	mux.Handle("/", proxy)

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		server: server,
		logger: slog.Default(),
	}
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("Starting agent HTTP server", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down agent HTTP server")
	return s.server.Shutdown(ctx)
}
