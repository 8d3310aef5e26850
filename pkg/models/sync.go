package models

import (
	"time"
)

// InstallState represents the client-side lifecycle of a package
type InstallState string

const (
	StateAvailable   InstallState = "available"
	StateDownloading InstallState = "downloading"
	StateInstalled   InstallState = "installed"
	StateFailed      InstallState = "failed"
)

// InstalledPackage is an OfflinePackage as persisted in the client registry
type InstalledPackage struct {
	Package     OfflinePackage `json:"package"`
	InstalledAt time.Time      `json:"installed_at"`
}

// SyncItem is one queued mutation awaiting connectivity, flushed in FIFO order.
// Failed items are re-enqueued at the end until RetryCount exceeds the cap.
type SyncItem struct {
	ID         string            `json:"id" db:"id"`
	URL        string            `json:"url" db:"url"`
	Method     string            `json:"method" db:"method"`
	Headers    map[string]string `json:"headers"`
	Body       string            `json:"body" db:"body"`
	RetryCount int               `json:"retry_count" db:"retry_count"`
	CreatedAt  time.Time         `json:"created_at" db:"created_at"`
}

// DownloadProgress is the per-package download state surfaced to the UI
type DownloadProgress struct {
	PackageID string       `json:"package_id"`
	State     InstallState `json:"state"`
	Progress  float64      `json:"progress"` // 0-100
	Error     string       `json:"error,omitempty"`
	UpdatedAt time.Time    `json:"updated_at"`
}
