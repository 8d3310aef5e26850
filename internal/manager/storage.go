package manager

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// StorageEstimate mirrors the platform storage-estimate figures in bytes
type StorageEstimate struct {
	Total     int64 `json:"total"`
	Used      int64 `json:"used"`
	Available int64 `json:"available"`
}

// StorageEstimator reports storage quota for the package store location
type StorageEstimator interface {
	Estimate() (StorageEstimate, error)
}

// DiskEstimator reads filesystem statistics for a path
type DiskEstimator struct {
	Path string
}

// Estimate returns the quota figures for the estimator's filesystem
func (d DiskEstimator) Estimate() (StorageEstimate, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(d.Path, &stat); err != nil {
		return StorageEstimate{}, fmt.Errorf("failed to stat filesystem: %w", err)
	}

	blockSize := int64(stat.Bsize)
	total := int64(stat.Blocks) * blockSize
	free := int64(stat.Bfree) * blockSize
	available := int64(stat.Bavail) * blockSize

	return StorageEstimate{
		Total:     total,
		Used:      total - free,
		Available: available,
	}, nil
}
