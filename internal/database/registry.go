package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"inclusiveai-offline/internal/errs"
	"inclusiveai-offline/pkg/models"
)

// Client-side tables: the installed-package registry, the sync outbox and the
// response cache used by the offline agent.

// PutInstalledPackage inserts or replaces a package in the local registry
func (db *DB) PutInstalledPackage(pkg *models.OfflinePackage, installedAt time.Time) error {
	data, err := json.Marshal(pkg)
	if err != nil {
		return fmt.Errorf("failed to marshal package: %w", err)
	}

	_, err = db.conn.Exec(
		`INSERT INTO installed_packages (id, data, installed_at) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET data = excluded.data, installed_at = excluded.installed_at`,
		pkg.ID, string(data), installedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to store installed package: %w", err)
	}

	return nil
}

// GetInstalledPackage retrieves an installed package by ID
func (db *DB) GetInstalledPackage(id string) (*models.InstalledPackage, error) {
	var data string
	var installedAt time.Time

	err := db.conn.QueryRow(
		`SELECT data, installed_at FROM installed_packages WHERE id = ?`, id,
	).Scan(&data, &installedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errs.ErrPackageNotFound
		}
		return nil, fmt.Errorf("failed to get installed package: %w", err)
	}

	var pkg models.OfflinePackage
	if err := json.Unmarshal([]byte(data), &pkg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal installed package: %w", err)
	}

	return &models.InstalledPackage{Package: pkg, InstalledAt: installedAt}, nil
}

// DeleteInstalledPackage removes a package from the local registry
func (db *DB) DeleteInstalledPackage(id string) error {
	result, err := db.conn.Exec(`DELETE FROM installed_packages WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete installed package: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return errs.ErrPackageNotFound
	}

	return nil
}

// ListInstalledPackages returns all installed packages ordered by install time
func (db *DB) ListInstalledPackages() ([]*models.InstalledPackage, error) {
	rows, err := db.conn.Query(
		`SELECT data, installed_at FROM installed_packages ORDER BY installed_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list installed packages: %w", err)
	}
	defer rows.Close()

	var packages []*models.InstalledPackage
	for rows.Next() {
		var data string
		var installedAt time.Time
		if err := rows.Scan(&data, &installedAt); err != nil {
			return nil, fmt.Errorf("failed to scan installed package: %w", err)
		}

		var pkg models.OfflinePackage
		if err := json.Unmarshal([]byte(data), &pkg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal installed package: %w", err)
		}

		packages = append(packages, &models.InstalledPackage{Package: pkg, InstalledAt: installedAt})
	}

	return packages, rows.Err()
}

// EnqueueSyncItem appends an item to the end of the sync outbox
func (db *DB) EnqueueSyncItem(item *models.SyncItem) error {
	headers, err := json.Marshal(item.Headers)
	if err != nil {
		return fmt.Errorf("failed to marshal sync item headers: %w", err)
	}

	_, err = db.conn.Exec(
		`INSERT INTO sync_queue (id, url, method, headers, body, retry_count, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.URL, item.Method, string(headers), item.Body, item.RetryCount, item.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue sync item: %w", err)
	}

	return nil
}

// ListSyncItems returns all queued items in FIFO order
func (db *DB) ListSyncItems() ([]*models.SyncItem, error) {
	rows, err := db.conn.Query(
		`SELECT id, url, method, headers, body, retry_count, created_at
		 FROM sync_queue ORDER BY seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync items: %w", err)
	}
	defer rows.Close()

	var items []*models.SyncItem
	for rows.Next() {
		var item models.SyncItem
		var headers sql.NullString
		if err := rows.Scan(&item.ID, &item.URL, &item.Method, &headers,
			&item.Body, &item.RetryCount, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan sync item: %w", err)
		}
		if headers.Valid && headers.String != "" {
			if err := json.Unmarshal([]byte(headers.String), &item.Headers); err != nil {
				return nil, fmt.Errorf("failed to unmarshal sync item headers: %w", err)
			}
		}
		items = append(items, &item)
	}

	return items, rows.Err()
}

// DeleteSyncItem removes a synced item from the outbox
func (db *DB) DeleteSyncItem(id string) error {
	if _, err := db.conn.Exec(`DELETE FROM sync_queue WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete sync item: %w", err)
	}
	return nil
}

// RequeueSyncItem moves a failed item to the end of the outbox with its retry
// count incremented
func (db *DB) RequeueSyncItem(item *models.SyncItem) error {
	if err := db.DeleteSyncItem(item.ID); err != nil {
		return err
	}
	item.RetryCount++
	return db.EnqueueSyncItem(item)
}

// CountSyncItems returns the number of queued sync items
func (db *DB) CountSyncItems() (int, error) {
	var count int
	if err := db.conn.QueryRow(`SELECT COUNT(*) FROM sync_queue`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count sync items: %w", err)
	}
	return count, nil
}

// PutCachedResponse stores a response body under a named cache
func (db *DB) PutCachedResponse(cacheName, url string, status int, headers map[string]string, body []byte) error {
	headerJSON, err := json.Marshal(headers)
	if err != nil {
		return fmt.Errorf("failed to marshal cached headers: %w", err)
	}

	_, err = db.conn.Exec(
		`INSERT INTO cached_responses (cache_name, url, status, headers, body, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(cache_name, url) DO UPDATE SET
			status = excluded.status, headers = excluded.headers,
			body = excluded.body, created_at = excluded.created_at`,
		cacheName, url, status, string(headerJSON), body, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to store cached response: %w", err)
	}

	return nil
}

// GetCachedResponse retrieves a cached response by cache name and URL
func (db *DB) GetCachedResponse(cacheName, url string) (int, map[string]string, []byte, error) {
	var status int
	var headerJSON sql.NullString
	var body []byte

	err := db.conn.QueryRow(
		`SELECT status, headers, body FROM cached_responses WHERE cache_name = ? AND url = ?`,
		cacheName, url,
	).Scan(&status, &headerJSON, &body)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, nil, nil, errs.ErrNotCached
		}
		return 0, nil, nil, fmt.Errorf("failed to get cached response: %w", err)
	}

	var headers map[string]string
	if headerJSON.Valid && headerJSON.String != "" {
		if err := json.Unmarshal([]byte(headerJSON.String), &headers); err != nil {
			return 0, nil, nil, fmt.Errorf("failed to unmarshal cached headers: %w", err)
		}
	}

	return status, headers, body, nil
}

// DeleteCachedResponse removes one entry from a named cache
func (db *DB) DeleteCachedResponse(cacheName, url string) error {
	if _, err := db.conn.Exec(
		`DELETE FROM cached_responses WHERE cache_name = ? AND url = ?`, cacheName, url); err != nil {
		return fmt.Errorf("failed to delete cached response: %w", err)
	}
	return nil
}

// ListCacheNames returns the distinct cache names currently present
func (db *DB) ListCacheNames() ([]string, error) {
	rows, err := db.conn.Query(`SELECT DISTINCT cache_name FROM cached_responses`)
	if err != nil {
		return nil, fmt.Errorf("failed to list cache names: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan cache name: %w", err)
		}
		names = append(names, name)
	}

	return names, rows.Err()
}

// DeleteCache removes an entire named cache
func (db *DB) DeleteCache(cacheName string) error {
	if _, err := db.conn.Exec(`DELETE FROM cached_responses WHERE cache_name = ?`, cacheName); err != nil {
		return fmt.Errorf("failed to delete cache: %w", err)
	}
	return nil
}

// PackageCacheURL is one cache entry recorded as belonging to a package
type PackageCacheURL struct {
	CacheName string
	URL       string
}

// PutPackageCacheURL records that a cached URL belongs to a package so it can
// be evicted later without consulting the manifest
func (db *DB) PutPackageCacheURL(packageID, cacheName, url string) error {
	if _, err := db.conn.Exec(
		`INSERT OR REPLACE INTO package_cache_urls (package_id, cache_name, url) VALUES (?, ?, ?)`,
		packageID, cacheName, url); err != nil {
		return fmt.Errorf("failed to record package cache url: %w", err)
	}
	return nil
}

// ListPackageCacheURLs returns every cache entry recorded for a package
func (db *DB) ListPackageCacheURLs(packageID string) ([]PackageCacheURL, error) {
	rows, err := db.conn.Query(
		`SELECT cache_name, url FROM package_cache_urls WHERE package_id = ?`, packageID)
	if err != nil {
		return nil, fmt.Errorf("failed to list package cache urls: %w", err)
	}
	defer rows.Close()

	var entries []PackageCacheURL
	for rows.Next() {
		var entry PackageCacheURL
		if err := rows.Scan(&entry.CacheName, &entry.URL); err != nil {
			return nil, fmt.Errorf("failed to scan package cache url: %w", err)
		}
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

// DeletePackageCacheURLs removes the recorded mapping for a package
func (db *DB) DeletePackageCacheURLs(packageID string) error {
	if _, err := db.conn.Exec(
		`DELETE FROM package_cache_urls WHERE package_id = ?`, packageID); err != nil {
		return fmt.Errorf("failed to delete package cache urls: %w", err)
	}
	return nil
}
