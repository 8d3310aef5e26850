package manager

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// extractBundle unpacks a package bundle's resource entries into destDir,
// flattened. The embedded manifest is skipped; the registry copy is
// authoritative. Entries with unsafe names are ignored.
func extractBundle(bundlePath, destDir string) ([]string, error) {
	reader, err := zip.OpenReader(bundlePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open bundle: %w", err)
	}
	defer reader.Close()

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create destination directory: %w", err)
	}

	var extracted []string
	for _, file := range reader.File {
		if file.FileInfo().IsDir() || file.Name == "package.json" {
			continue
		}

		filename := filepath.Base(file.Name)
		// Guard against directory traversal
		if strings.Contains(filename, "..") || strings.ContainsRune(filename, os.PathSeparator) {
			continue
		}

		destPath := filepath.Join(destDir, filename)
		if err := extractBundleFile(file, destPath); err != nil {
			return nil, fmt.Errorf("failed to extract %s: %w", file.Name, err)
		}
		extracted = append(extracted, destPath)
	}

	return extracted, nil
}

func extractBundleFile(file *zip.File, destPath string) error {
	reader, err := file.Open()
	if err != nil {
		return fmt.Errorf("failed to open bundle entry: %w", err)
	}
	defer reader.Close()

	writer, err := os.OpenFile(destPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create destination file: %w", err)
	}
	defer writer.Close()

	if _, err := io.Copy(writer, reader); err != nil {
		return fmt.Errorf("failed to copy entry contents: %w", err)
	}

	return nil
}
