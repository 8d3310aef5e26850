// Package manager implements the client-side lifecycle of offline packages
package manager

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"inclusiveai-offline/internal/contentapi"
	"inclusiveai-offline/internal/database"
	"inclusiveai-offline/internal/errs"
	"inclusiveai-offline/internal/swcache"
	"inclusiveai-offline/pkg/models"
)

// Manager tracks connectivity, installed vs available packages, downloads
// with progress, and the sync outbox
type Manager struct {
	db           *database.DB
	client       contentapi.ContentClient
	cache        *swcache.Cache
	storage      StorageEstimator
	resourcesDir string
	syncer       *Syncer
	logger       *slog.Logger

	mu        sync.RWMutex
	online    bool
	available []models.PackageSummary
	downloads map[string]*models.DownloadProgress
}

// New creates a new content manager. Extracted package assets live under
// resourcesDir.
func New(db *database.DB, client contentapi.ContentClient, cache *swcache.Cache, storage StorageEstimator, resourcesDir string, maxSyncRetries int) *Manager {
	return &Manager{
		db:           db,
		client:       client,
		cache:        cache,
		storage:      storage,
		resourcesDir: resourcesDir,
		syncer:       NewSyncer(db, maxSyncRetries),
		logger:       slog.Default(),
		downloads:    make(map[string]*models.DownloadProgress),
	}
}

// Online reports the last observed connectivity state
func (m *Manager) Online() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.online
}

// SetOnline records a connectivity transition. Coming online refreshes the
// available-package list and flushes the sync outbox; going offline leaves
// installed packages untouched.
func (m *Manager) SetOnline(ctx context.Context, online bool) {
	m.mu.Lock()
	changed := m.online != online
	m.online = online
	m.mu.Unlock()

	if !changed {
		return
	}

	m.logger.Info("Connectivity changed", "online", online)

	if online {
		if err := m.Refresh(ctx); err != nil {
			m.logger.Warn("Failed to refresh package list", "error", err)
		}
		if err := m.FlushSyncQueue(ctx); err != nil {
			m.logger.Warn("Failed to flush sync queue", "error", err)
		}
	}
}

// Refresh re-fetches the available-package list and evicts installed packages
// past their expiry. It is a no-op while offline.
func (m *Manager) Refresh(ctx context.Context) error {
	if !m.Online() {
		return nil
	}

	summaries, err := m.client.ListPackages(ctx)
	if err != nil {
		return fmt.Errorf("failed to list available packages: %w", err)
	}

	m.mu.Lock()
	m.available = summaries
	m.mu.Unlock()

	m.evictExpired()
	return nil
}

// evictExpired uninstalls packages whose server-side expiry has passed
func (m *Manager) evictExpired() {
	installed, err := m.db.ListInstalledPackages()
	if err != nil {
		m.logger.Warn("Failed to list installed packages for expiry check", "error", err)
		return
	}

	now := time.Now()
	for _, entry := range installed {
		if !entry.Package.Expired(now) {
			continue
		}
		m.logger.Info("Evicting expired package", "package_id", entry.Package.ID, "expired_at", entry.Package.ExpiresAt)
		if err := m.Uninstall(entry.Package.ID); err != nil {
			m.logger.Warn("Failed to evict expired package", "package_id", entry.Package.ID, "error", err)
		}
	}
}

// AvailablePackages returns the last fetched available-package list
func (m *Manager) AvailablePackages() []models.PackageSummary {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.PackageSummary(nil), m.available...)
}

// InstalledPackages returns the local registry contents
func (m *Manager) InstalledPackages() ([]*models.InstalledPackage, error) {
	return m.db.ListInstalledPackages()
}

// Progress returns the download state for a package, or nil when none exists
func (m *Manager) Progress(packageID string) *models.DownloadProgress {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if progress, ok := m.downloads[packageID]; ok {
		clone := *progress
		return &clone
	}
	return nil
}

// Download fetches, verifies and installs one package. A download already in
// flight for the same ID is rejected with ErrDownloadInProgress and leaves
// the existing state untouched.
func (m *Manager) Download(ctx context.Context, packageID string) error {
	m.mu.Lock()
	if progress, ok := m.downloads[packageID]; ok && progress.State == models.StateDownloading {
		m.mu.Unlock()
		return errs.ErrDownloadInProgress
	}
	m.downloads[packageID] = &models.DownloadProgress{
		PackageID: packageID,
		State:     models.StateDownloading,
		Progress:  0,
		UpdatedAt: time.Now(),
	}
	m.mu.Unlock()

	if err := m.download(ctx, packageID); err != nil {
		m.setFailed(packageID, err)
		return err
	}

	return nil
}

func (m *Manager) download(ctx context.Context, packageID string) error {
	pkg, err := m.client.FetchManifest(ctx, packageID)
	if err != nil {
		return fmt.Errorf("failed to fetch package manifest: %w", err)
	}

	// Reject a tampered manifest before any bytes or files touch disk
	if ok, err := pkg.Verify(); err != nil || !ok {
		return fmt.Errorf("package %s failed integrity verification", packageID)
	}

	if err := m.checkStorage(pkg); err != nil {
		return err
	}

	bundle, length, err := m.client.FetchBundle(ctx, packageID)
	if err != nil {
		return fmt.Errorf("failed to start bundle download: %w", err)
	}
	defer bundle.Close()

	if err := os.MkdirAll(m.resourcesDir, 0o755); err != nil {
		return fmt.Errorf("failed to create resources directory: %w", err)
	}

	// Unique temporary filename during download to prevent conflicts
	tempPath := filepath.Join(m.resourcesDir, fmt.Sprintf("%s.zip.tmp", packageID))
	if err := m.copyWithProgress(ctx, packageID, tempPath, bundle, length); err != nil {
		os.Remove(tempPath)
		return err
	}

	extracted, err := extractBundle(tempPath, m.resourcesDir)
	if err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to extract bundle: %w", err)
	}
	os.Remove(tempPath)

	if err := m.db.PutInstalledPackage(pkg, time.Now()); err != nil {
		return fmt.Errorf("failed to register installed package: %w", err)
	}

	if err := m.cache.CachePackage(pkg, m.resourcesDir); err != nil {
		m.logger.Warn("Failed to pre-cache package assets", "package_id", packageID, "error", err)
	}

	m.setInstalled(packageID)
	m.logger.Info("Package installed",
		"package_id", packageID,
		"extracted_files", len(extracted))

	return nil
}

// checkStorage refuses the download when the quota cannot hold the manifest
// plus its optimized assets
func (m *Manager) checkStorage(pkg *models.OfflinePackage) error {
	estimate, err := m.storage.Estimate()
	if err != nil {
		return fmt.Errorf("failed to estimate storage: %w", err)
	}

	required := pkg.Size + pkg.Metadata.TotalSize
	if required > estimate.Available {
		return fmt.Errorf("%w: need %d bytes, %d available",
			errs.ErrInsufficientStorage, required, estimate.Available)
	}

	return nil
}

// copyWithProgress streams the bundle to disk, reporting monotonically
// increasing progress from 0 to 100
func (m *Manager) copyWithProgress(ctx context.Context, packageID, destPath string, src io.Reader, length int64) error {
	file, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("failed to create download file: %w", err)
	}
	defer file.Close()

	buffer := make([]byte, 32*1024)
	var totalRead int64

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, err := src.Read(buffer)
		if n > 0 {
			if _, writeErr := file.Write(buffer[:n]); writeErr != nil {
				return fmt.Errorf("failed to write download file: %w", writeErr)
			}
			totalRead += int64(n)

			if length > 0 {
				// Hold 100 back until install completes
				progress := float64(totalRead) / float64(length) * 100
				if progress > 99 {
					progress = 99
				}
				m.setProgress(packageID, progress)
			}
		}

		if err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("failed to read bundle: %w", err)
		}
	}
}

func (m *Manager) setProgress(packageID string, progress float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state := m.downloads[packageID]
	if state == nil {
		return
	}
	// Progress never moves backwards
	if progress > state.Progress {
		state.Progress = progress
		state.UpdatedAt = time.Now()
	}
}

func (m *Manager) setInstalled(packageID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state := m.downloads[packageID]
	if state == nil {
		return
	}
	state.State = models.StateInstalled
	state.Progress = 100
	state.UpdatedAt = time.Now()
}

func (m *Manager) setFailed(packageID string, cause error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state := m.downloads[packageID]
	if state == nil {
		return
	}
	state.State = models.StateFailed
	state.Error = cause.Error()
	state.UpdatedAt = time.Now()
}

// Uninstall removes a package from the registry and evicts its cached assets.
// Extracted resource files are content-addressed and may be shared across
// packages, so they are left on disk.
func (m *Manager) Uninstall(packageID string) error {
	if err := m.db.DeleteInstalledPackage(packageID); err != nil {
		return err
	}

	if err := m.cache.UncachePackage(packageID); err != nil {
		m.logger.Warn("Failed to evict package cache entries", "package_id", packageID, "error", err)
	}

	m.mu.Lock()
	delete(m.downloads, packageID)
	m.mu.Unlock()

	m.logger.Info("Package uninstalled", "package_id", packageID)
	return nil
}

// EnqueueSync appends a mutation to the sync outbox
func (m *Manager) EnqueueSync(item *models.SyncItem) error {
	return m.syncer.Enqueue(item)
}

// FlushSyncQueue drains the outbox while online; only failed items remain queued
func (m *Manager) FlushSyncQueue(ctx context.Context) error {
	if !m.Online() {
		return nil
	}
	return m.syncer.Flush(ctx)
}

// PendingSyncItems reports the outbox depth
func (m *Manager) PendingSyncItems() (int, error) {
	return m.db.CountSyncItems()
}

// RecoverOrphans removes partial bundle downloads left by a previous session
func (m *Manager) RecoverOrphans() error {
	entries, err := os.ReadDir(m.resourcesDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read resources directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".zip.tmp") {
			continue
		}
		path := filepath.Join(m.resourcesDir, entry.Name())
		if err := os.Remove(path); err != nil {
			m.logger.Warn("Failed to remove orphaned download", "path", path, "error", err)
			continue
		}
		m.logger.Info("Removed orphaned download", "path", path)
	}

	return nil
}
