// Package handlers provides the agent's JSON HTTP handlers
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"inclusiveai-offline/internal/errs"
	"inclusiveai-offline/internal/manager"
	"inclusiveai-offline/pkg/fuzzy"
	"inclusiveai-offline/pkg/models"
)

// Handlers contains all HTTP handlers and their dependencies
type Handlers struct {
	manager *manager.Manager
	storage manager.StorageEstimator
	matcher *fuzzy.Matcher
	logger  *slog.Logger
}

// NewHandlers creates a new handlers instance
func NewHandlers(contentManager *manager.Manager, storage manager.StorageEstimator) *Handlers {
	return &Handlers{
		manager: contentManager,
		storage: storage,
		matcher: fuzzy.NewMatcher(),
		logger:  slog.Default(),
	}
}

// statusResponse is the agent status payload
type statusResponse struct {
	Online      bool                    `json:"online"`
	Storage     manager.StorageEstimate `json:"storage"`
	PendingSync int                     `json:"pending_sync"`
}

// Status reports connectivity, storage pressure and outbox depth
func (h *Handlers) Status(w http.ResponseWriter, r *http.Request) {
	estimate, err := h.storage.Estimate()
	if err != nil {
		h.logger.Error("Failed to estimate storage", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	pending, err := h.manager.PendingSyncItems()
	if err != nil {
		h.logger.Error("Failed to count sync items", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, statusResponse{
		Online:      h.manager.Online(),
		Storage:     estimate,
		PendingSync: pending,
	})
}

// AvailablePackages lists packages offered by the content server
func (h *Handlers) AvailablePackages(w http.ResponseWriter, r *http.Request) {
	packages := h.manager.AvailablePackages()
	if packages == nil {
		packages = []models.PackageSummary{}
	}
	writeJSON(w, http.StatusOK, packages)
}

// InstalledPackages lists the local registry contents
func (h *Handlers) InstalledPackages(w http.ResponseWriter, r *http.Request) {
	installed, err := h.manager.InstalledPackages()
	if err != nil {
		h.logger.Error("Failed to list installed packages", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if installed == nil {
		installed = []*models.InstalledPackage{}
	}
	writeJSON(w, http.StatusOK, installed)
}

// DownloadPackage starts a package download; the download proceeds in the
// background and progress is polled separately
func (h *Handlers) DownloadPackage(w http.ResponseWriter, r *http.Request) {
	packageID := r.PathValue("id")
	if packageID == "" {
		http.Error(w, "package id is required", http.StatusBadRequest)
		return
	}

	// The request context ends with this response; the download must outlive it
	ctx, cancel := context.WithTimeout(context.Background(), time.Hour)
	done := make(chan error, 1)
	go func() {
		defer cancel()
		done <- h.manager.Download(ctx, packageID)
	}()

	// Report immediate rejections synchronously, otherwise accept
	select {
	case err := <-done:
		if err != nil {
			h.downloadError(w, packageID, err)
			return
		}
		writeJSON(w, http.StatusOK, h.manager.Progress(packageID))
	case <-time.After(100 * time.Millisecond):
		writeJSON(w, http.StatusAccepted, h.manager.Progress(packageID))
	}
}

func (h *Handlers) downloadError(w http.ResponseWriter, packageID string, err error) {
	switch {
	case errors.Is(err, errs.ErrDownloadInProgress):
		writeJSON(w, http.StatusConflict, h.manager.Progress(packageID))
	case errors.Is(err, errs.ErrInsufficientStorage):
		h.logger.Warn("Download refused", "package_id", packageID, "error", err)
		http.Error(w, err.Error(), http.StatusInsufficientStorage)
	default:
		h.logger.Error("Download failed", "package_id", packageID, "error", err)
		http.Error(w, err.Error(), http.StatusBadGateway)
	}
}

// DownloadProgress reports the state machine position for one package
func (h *Handlers) DownloadProgress(w http.ResponseWriter, r *http.Request) {
	packageID := r.PathValue("id")
	progress := h.manager.Progress(packageID)
	if progress == nil {
		http.Error(w, "no download state for package", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, progress)
}

// UninstallPackage removes an installed package
func (h *Handlers) UninstallPackage(w http.ResponseWriter, r *http.Request) {
	packageID := r.PathValue("id")
	if err := h.manager.Uninstall(packageID); err != nil {
		if errors.Is(err, errs.ErrPackageNotFound) {
			http.Error(w, "package not installed", http.StatusNotFound)
			return
		}
		h.logger.Error("Failed to uninstall package", "package_id", packageID, "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RefreshPackages re-fetches the available list from the content server
func (h *Handlers) RefreshPackages(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.Refresh(r.Context()); err != nil {
		h.logger.Error("Failed to refresh packages", "error", err)
		http.Error(w, "Failed to refresh package list", http.StatusBadGateway)
		return
	}
	h.AvailablePackages(w, r)
}

// syncRequest is the enqueue payload for offline mutations
type syncRequest struct {
	URL     string            `json:"url"`
	Method  string            `json:"method"`
	Headers map[string]string `json:"headers"`
	Body    string            `json:"body"`
}

// EnqueueSync queues one mutation for replay when connectivity returns
func (h *Handlers) EnqueueSync(w http.ResponseWriter, r *http.Request) {
	var req syncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid sync payload", http.StatusBadRequest)
		return
	}
	if req.URL == "" || req.Method == "" {
		http.Error(w, "url and method are required", http.StatusBadRequest)
		return
	}

	item := &models.SyncItem{
		ID:        uuid.NewString(),
		URL:       req.URL,
		Method:    req.Method,
		Headers:   req.Headers,
		Body:      req.Body,
		CreatedAt: time.Now(),
	}
	if err := h.manager.EnqueueSync(item); err != nil {
		h.logger.Error("Failed to enqueue sync item", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusAccepted, item)
}

// FlushSync triggers an immediate outbox drain
func (h *Handlers) FlushSync(w http.ResponseWriter, r *http.Request) {
	if err := h.manager.FlushSyncQueue(r.Context()); err != nil {
		h.logger.Error("Failed to flush sync queue", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	pending, err := h.manager.PendingSyncItems()
	if err != nil {
		h.logger.Error("Failed to count sync items", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{"pending": pending})
}

// SearchLessons fuzzy-searches lesson titles across installed packages
func (h *Handlers) SearchLessons(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		http.Error(w, "query parameter q is required", http.StatusBadRequest)
		return
	}

	installed, err := h.manager.InstalledPackages()
	if err != nil {
		h.logger.Error("Failed to list installed packages", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	matches := h.matcher.SearchLessons(query, installed)
	if matches == nil {
		matches = []fuzzy.Match{}
	}
	writeJSON(w, http.StatusOK, matches)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Default().Error("Failed to encode response", "error", err)
	}
}
