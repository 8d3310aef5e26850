// Package assembler builds self-contained offline packages for one student
package assembler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"time"

	"inclusiveai-offline/internal/adapter"
	"inclusiveai-offline/internal/database"
	"inclusiveai-offline/internal/optimizer"
	"inclusiveai-offline/internal/store"
	"inclusiveai-offline/pkg/checksum"
	"inclusiveai-offline/pkg/models"
)

// PackageVersion is stamped into every generated package
const PackageVersion = "1.0.0"

// Download-time estimation bandwidths in kbps; the estimate is the average of
// the slow- and fast-connection figures
const (
	slowBandwidthKbps = 100
	fastBandwidthKbps = 1000
)

// Compatibility and device lists published in package metadata
var (
	Compatibility    = []string{"android", "ios", "web"}
	SupportedDevices = []string{"smartphone", "tablet", "desktop"}
)

// MinStorageSlack is added to the package payload size when computing the
// client's minimum storage requirement
const MinStorageSlack = 50 * 1024 * 1024

// MinBandwidthKbps is the published minimum connection speed
const MinBandwidthKbps = 100

// Assembler orchestrates the adapter and optimizer into one OfflinePackage
type Assembler struct {
	db        *database.DB
	adapter   *adapter.Adapter
	optimizer ResourceOptimizer
	store     *store.Store
	logger    *slog.Logger
}

// New creates a new package assembler
func New(db *database.DB, lessonAdapter *adapter.Adapter, resourceOptimizer ResourceOptimizer, packageStore *store.Store) *Assembler {
	return &Assembler{
		db:        db,
		adapter:   lessonAdapter,
		optimizer: resourceOptimizer,
		store:     packageStore,
		logger:    slog.Default(),
	}
}

// BuildPackage builds, seals and persists the offline package for one
// (student, culture, language) combination. A missing student is fatal;
// individual resource failures are logged and skipped.
func (a *Assembler) BuildPackage(ctx context.Context, studentID, culture, language string) (*models.OfflinePackage, error) {
	student, err := a.db.GetStudent(studentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load student %s: %w", studentID, err)
	}

	lessons, err := a.adapter.SelectLessons(student)
	if err != nil {
		return nil, err
	}

	adapted := make([]models.OfflineLesson, 0, len(lessons))
	for _, lesson := range lessons {
		offlineLesson, err := a.adapter.Adapt(lesson, student, culture, language)
		if err != nil {
			return nil, fmt.Errorf("failed to adapt lesson %s: %w", lesson.ID, err)
		}
		adapted = append(adapted, offlineLesson)
	}

	resources := a.optimizeResources(ctx, adapted)

	byURL := make(map[string]*models.OfflineResource, len(resources))
	for i := range resources {
		byURL[resources[i].URL] = &resources[i]
	}
	for i := range adapted {
		adapted[i].Multimedia = lessonManifest(&adapted[i], byURL)
	}

	now := time.Now()
	pkg := &models.OfflinePackage{
		ID:        checksum.PackageID(studentID, culture, language, now),
		Version:   PackageVersion,
		StudentID: studentID,
		Culture:   culture,
		Language:  language,
		Lessons:   adapted,
		Resources: resources,
		Metadata:  computeMetadata(adapted, resources),
		CreatedAt: now,
		ExpiresAt: now.Add(models.PackageTTL),
	}

	if err := pkg.Seal(); err != nil {
		return nil, fmt.Errorf("failed to seal package: %w", err)
	}

	if err := a.store.SavePackage(pkg, student.Name); err != nil {
		return nil, fmt.Errorf("failed to persist package: %w", err)
	}

	a.logger.Info("Package built",
		"package_id", pkg.ID,
		"student_id", studentID,
		"culture", culture,
		"language", language,
		"lessons", len(pkg.Lessons),
		"resources", len(pkg.Resources),
		"size", pkg.Size)

	return pkg, nil
}

// optimizeResources optimizes every unique URL referenced by the adapted
// lessons exactly once, in discovery order. Failures skip the resource.
func (a *Assembler) optimizeResources(ctx context.Context, lessons []models.OfflineLesson) []models.OfflineResource {
	var resources []models.OfflineResource
	seen := make(map[string]bool)

	for i := range lessons {
		for _, url := range ExtractResourceURLs(&lessons[i]) {
			if seen[url] {
				continue
			}
			seen[url] = true

			resource, err := a.optimizer.Optimize(ctx, url)
			if err != nil {
				a.logger.Warn("Skipping resource after optimization failure",
					"url", url, "error", err)
				continue
			}
			resources = append(resources, *resource)
		}
	}

	return resources
}

// lessonManifest re-matches a lesson's URLs against the optimized resource
// set. Document resources are excluded from lesson multimedia.
func lessonManifest(lesson *models.OfflineLesson, byURL map[string]*models.OfflineResource) []models.OfflineMultimedia {
	var manifest []models.OfflineMultimedia
	for _, url := range ExtractResourceURLs(lesson) {
		resource, ok := byURL[url]
		if !ok || resource.Type == models.ResourceDocument {
			continue
		}
		manifest = append(manifest, models.OfflineMultimedia{
			Type:          resource.Type,
			OriginalURL:   resource.URL,
			OptimizedURL:  "resources/" + filepath.Base(resource.LocalPath),
			Size:          resource.Size,
			OptimizedSize: resource.OptimizedSize,
			Format:        resource.Metadata.Format,
			Quality:       qualityPercent(resource.Size, resource.OptimizedSize),
		})
	}
	return manifest
}

// ExtractResourceURLs scans a lesson's adapted content tree for string values
// carrying a known resource extension, deduplicated in discovery order. The
// scan works on the serialized form so nested structures are covered uniformly.
func ExtractResourceURLs(lesson *models.OfflineLesson) []string {
	data, err := json.Marshal(lesson.Content)
	if err != nil {
		return nil
	}

	var tree any
	if err := json.Unmarshal(data, &tree); err != nil {
		return nil
	}

	var urls []string
	seen := make(map[string]bool)
	walkTree(tree, func(s string) {
		if optimizer.IsResourceURL(s) && !seen[s] {
			seen[s] = true
			urls = append(urls, s)
		}
	})

	return urls
}

// walkTree visits every string in a decoded JSON tree. Object keys are visited
// in sorted order so discovery order is deterministic.
func walkTree(node any, visit func(string)) {
	switch v := node.(type) {
	case string:
		visit(v)
	case []any:
		for _, item := range v {
			walkTree(item, visit)
		}
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			walkTree(v[k], visit)
		}
	}
}

// computeMetadata aggregates package-level figures
func computeMetadata(lessons []models.OfflineLesson, resources []models.OfflineResource) models.PackageMetadata {
	var totalSize int64
	for _, resource := range resources {
		totalSize += resource.OptimizedSize
	}

	return models.PackageMetadata{
		TotalLessons:          len(lessons),
		TotalResources:        len(resources),
		TotalSize:             totalSize,
		EstimatedDownloadTime: estimateDownloadTime(totalSize),
		Compatibility:         Compatibility,
		Requirements: models.PackageRequirements{
			MinStorage:       totalSize + MinStorageSlack,
			MinBandwidth:     MinBandwidthKbps,
			SupportedDevices: SupportedDevices,
		},
	}
}

// estimateDownloadTime returns seconds, averaging a slow- and fast-connection
// estimate
func estimateDownloadTime(totalSize int64) int64 {
	bits := totalSize * 8
	slow := float64(bits) / float64(slowBandwidthKbps*1000)
	fast := float64(bits) / float64(fastBandwidthKbps*1000)
	return int64((slow + fast) / 2)
}

func qualityPercent(size, optimizedSize int64) int {
	if size <= 0 {
		return 100
	}
	return int(optimizedSize * 100 / size)
}
