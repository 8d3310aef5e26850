// Package store persists generated packages to the content directory
package store

import (
	"archive/zip"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"inclusiveai-offline/internal/database"
	"inclusiveai-offline/pkg/models"
)

// Store writes package artifacts and updates lesson offline pointers
type Store struct {
	contentDir string
	db         *database.DB
	logger     *slog.Logger
}

// New creates a new package store rooted at contentDir
func New(contentDir string, db *database.DB) *Store {
	return &Store{
		contentDir: contentDir,
		db:         db,
		logger:     slog.Default(),
	}
}

// PackagePath returns the on-disk path of a package's JSON manifest
func (s *Store) PackagePath(packageID string) string {
	return filepath.Join(s.contentDir, packageID+".json")
}

// PackageURL returns the URL under which a package manifest is served
func (s *Store) PackageURL(packageID string) string {
	return "/offline-content/" + packageID + ".json"
}

// BundlePath returns the on-disk path of a package's zip bundle
func (s *Store) BundlePath(packageID string) string {
	return filepath.Join(s.contentDir, packageID+".zip")
}

// SavePackage persists the sealed package: the pretty-printed JSON manifest,
// the metadata side-file, the zip bundle, and each source lesson's offline
// pointer. Nothing is written for an unsealed package.
func (s *Store) SavePackage(pkg *models.OfflinePackage, studentName string) error {
	if pkg.Checksum == "" {
		return fmt.Errorf("refusing to persist unsealed package %s", pkg.ID)
	}

	if err := os.MkdirAll(s.contentDir, 0o755); err != nil {
		return fmt.Errorf("failed to create content directory: %w", err)
	}

	manifest, err := json.MarshalIndent(pkg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal package: %w", err)
	}
	if err := os.WriteFile(s.PackagePath(pkg.ID), manifest, 0o644); err != nil {
		return fmt.Errorf("failed to write package file: %w", err)
	}

	if err := s.writeSummary(pkg, studentName); err != nil {
		return err
	}

	if err := s.writeBundle(pkg, manifest); err != nil {
		return err
	}

	packageURL := s.PackageURL(pkg.ID)
	for _, lesson := range pkg.Lessons {
		if err := s.db.UpdateLessonOfflinePointer(lesson.ID, packageURL, pkg.Size); err != nil {
			return fmt.Errorf("failed to update offline pointer for lesson %s: %w", lesson.ID, err)
		}
	}

	s.logger.Info("Package persisted",
		"package_id", pkg.ID,
		"path", s.PackagePath(pkg.ID),
		"size", pkg.Size,
		"lessons", len(pkg.Lessons),
		"resources", len(pkg.Resources))

	return nil
}

// writeSummary writes the <id>-metadata.json side-file
func (s *Store) writeSummary(pkg *models.OfflinePackage, studentName string) error {
	summary := models.PackageSummary{
		ID:          pkg.ID,
		StudentID:   pkg.StudentID,
		StudentName: studentName,
		Culture:     pkg.Culture,
		Language:    pkg.Language,
		Size:        pkg.Size,
		Lessons:     len(pkg.Lessons),
		Resources:   len(pkg.Resources),
		CreatedAt:   pkg.CreatedAt,
		ExpiresAt:   pkg.ExpiresAt,
	}

	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal package summary: %w", err)
	}

	sidePath := filepath.Join(s.contentDir, pkg.ID+"-metadata.json")
	if err := os.WriteFile(sidePath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write package summary: %w", err)
	}

	return nil
}

// writeBundle assembles the self-contained zip: the manifest plus every
// optimized resource under resources/
func (s *Store) writeBundle(pkg *models.OfflinePackage, manifest []byte) error {
	bundle, err := os.Create(s.BundlePath(pkg.ID))
	if err != nil {
		return fmt.Errorf("failed to create bundle: %w", err)
	}
	defer bundle.Close()

	archive := zip.NewWriter(bundle)

	entry, err := archive.Create("package.json")
	if err != nil {
		return fmt.Errorf("failed to create bundle manifest entry: %w", err)
	}
	if _, err := entry.Write(manifest); err != nil {
		return fmt.Errorf("failed to write bundle manifest: %w", err)
	}

	for _, resource := range pkg.Resources {
		if err := s.addBundleFile(archive, resource.LocalPath); err != nil {
			// A missing optimized file is not fatal for the bundle; the
			// manifest entry remains authoritative
			s.logger.Warn("Skipping bundle resource", "path", resource.LocalPath, "error", err)
		}
	}

	if err := archive.Close(); err != nil {
		return fmt.Errorf("failed to finalize bundle: %w", err)
	}

	return nil
}

func (s *Store) addBundleFile(archive *zip.Writer, localPath string) error {
	file, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open resource: %w", err)
	}
	defer file.Close()

	entry, err := archive.Create("resources/" + filepath.Base(localPath))
	if err != nil {
		return fmt.Errorf("failed to create bundle entry: %w", err)
	}

	if _, err := io.Copy(entry, file); err != nil {
		return fmt.Errorf("failed to copy resource into bundle: %w", err)
	}

	return nil
}

// TotalSize walks the content directory and sums file sizes
func (s *Store) TotalSize() (int64, error) {
	var total int64
	err := filepath.WalkDir(s.contentDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to walk content directory: %w", err)
	}

	return total, nil
}
