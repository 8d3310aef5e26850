// Package swcache implements the offline cache layer: named caches, install
// and activate lifecycle, and the fetch strategies served by the agent proxy
package swcache

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"inclusiveai-offline/internal/database"
	"inclusiveai-offline/pkg/models"
)

// Cache names; anything else found at activation is purged
const (
	GeneralCacheName = "inclusive-ai-coach-v1"
	StaticCacheName  = "inclusive-ai-static-v1"
	DynamicCacheName = "inclusive-ai-dynamic-v1"
)

// StaticAssets is the fixed app-shell list pre-cached at install
var StaticAssets = []string{
	"/",
	"/manifest.json",
	"/icons/icon-192x192.png",
	"/icons/icon-512x512.png",
	"/icons/badge-72x72.png",
	"/sounds/notification.mp3",
	"/sounds/achievement.mp3",
}

// Message is the command shape accepted from the content manager
type Message struct {
	Type      string                 `json:"type"`
	Package   *models.OfflinePackage `json:"package,omitempty"`
	PackageID string                 `json:"packageId,omitempty"`
}

// Message types understood by HandleMessage
const (
	MessageCachePackage   = "CACHE_PACKAGE"
	MessageUncachePackage = "UNCACHE_PACKAGE"
)

// Cache manages the named response caches
type Cache struct {
	db        *database.DB
	remoteURL string
	client    *http.Client
	logger    *slog.Logger
}

// New creates a new cache layer backed by the database response store
func New(db *database.DB, remoteURL string) *Cache {
	return &Cache{
		db:        db,
		remoteURL: remoteURL,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: slog.Default(),
	}
}

// Install pre-caches all static assets. Individual fetch failures are logged
// and skipped so a partial shell still installs.
func (c *Cache) Install(ctx context.Context) error {
	for _, asset := range StaticAssets {
		if err := c.fetchAndCache(ctx, StaticCacheName, asset); err != nil {
			c.logger.Warn("Failed to pre-cache static asset", "asset", asset, "error", err)
		}
	}
	c.logger.Info("Static assets installed", "count", len(StaticAssets))
	return nil
}

// Activate deletes any cache whose name is not in the current set
func (c *Cache) Activate() error {
	names, err := c.db.ListCacheNames()
	if err != nil {
		return fmt.Errorf("failed to list caches: %w", err)
	}

	current := map[string]bool{
		GeneralCacheName: true,
		StaticCacheName:  true,
		DynamicCacheName: true,
	}

	for _, name := range names {
		if current[name] {
			continue
		}
		if err := c.db.DeleteCache(name); err != nil {
			return fmt.Errorf("failed to purge stale cache %s: %w", name, err)
		}
		c.logger.Info("Purged stale cache", "cache", name)
	}

	return nil
}

// HandleMessage dispatches a content-manager command
func (c *Cache) HandleMessage(message Message, resourcesDir string) error {
	switch message.Type {
	case MessageCachePackage:
		if message.Package == nil {
			return fmt.Errorf("CACHE_PACKAGE message without package")
		}
		return c.CachePackage(message.Package, resourcesDir)
	case MessageUncachePackage:
		if message.PackageID == "" {
			return fmt.Errorf("UNCACHE_PACKAGE message without packageId")
		}
		return c.UncachePackage(message.PackageID)
	default:
		return fmt.Errorf("unknown message type %q", message.Type)
	}
}

// CachePackage seeds the general cache with a package's manifest and its
// extracted resource files
func (c *Cache) CachePackage(pkg *models.OfflinePackage, resourcesDir string) error {
	manifest, err := json.Marshal(pkg)
	if err != nil {
		return fmt.Errorf("failed to marshal package manifest: %w", err)
	}

	manifestURL := "/offline-content/" + pkg.ID + ".json"
	if err := c.db.PutCachedResponse(GeneralCacheName, manifestURL, http.StatusOK,
		map[string]string{"Content-Type": "application/json"}, manifest); err != nil {
		return err
	}
	if err := c.db.PutPackageCacheURL(pkg.ID, GeneralCacheName, manifestURL); err != nil {
		return err
	}

	for i := range pkg.Resources {
		resource := &pkg.Resources[i]
		name := filepath.Base(resource.LocalPath)
		body, err := os.ReadFile(filepath.Join(resourcesDir, name))
		if err != nil {
			c.logger.Warn("Skipping uncached resource", "resource", name, "error", err)
			continue
		}
		url := "/offline-content/resources/" + name
		if err := c.db.PutCachedResponse(GeneralCacheName, url, http.StatusOK, nil, body); err != nil {
			return err
		}
		if err := c.db.PutPackageCacheURL(pkg.ID, GeneralCacheName, url); err != nil {
			return err
		}
	}

	c.logger.Info("Package cached", "package_id", pkg.ID, "resources", len(pkg.Resources))
	return nil
}

// UncachePackage evicts every cache entry recorded for a package. The mapping
// written at cache time is authoritative, so eviction works even after the
// manifest entry itself is gone.
func (c *Cache) UncachePackage(packageID string) error {
	entries, err := c.db.ListPackageCacheURLs(packageID)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if err := c.db.DeleteCachedResponse(entry.CacheName, entry.URL); err != nil {
			return err
		}
	}

	if err := c.db.DeletePackageCacheURLs(packageID); err != nil {
		return err
	}

	c.logger.Info("Package evicted from cache", "package_id", packageID, "entries", len(entries))
	return nil
}

// fetchAndCache fetches one path from the remote and stores it in cacheName
func (c *Cache) fetchAndCache(ctx context.Context, cacheName, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.remoteURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	headers := map[string]string{}
	if contentType := resp.Header.Get("Content-Type"); contentType != "" {
		headers["Content-Type"] = contentType
	}

	return c.db.PutCachedResponse(cacheName, path, resp.StatusCode, headers, body)
}
