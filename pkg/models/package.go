// Package models defines the data structures used throughout the application
package models

import (
	"time"
)

// ResourceType classifies a multimedia resource by its source extension
type ResourceType string

const (
	ResourceImage    ResourceType = "image"
	ResourceAudio    ResourceType = "audio"
	ResourceVideo    ResourceType = "video"
	ResourceDocument ResourceType = "document"
)

// PackageTTL is the fixed lifetime of a generated package
const PackageTTL = 30 * 24 * time.Hour

// OfflinePackage is the unit of distribution for one (student, culture, language) triple.
// A package is immutable once its checksum is set; content changes require a new ID.
type OfflinePackage struct {
	ID        string            `json:"id"`
	Version   string            `json:"version"`
	StudentID string            `json:"studentId"`
	Culture   string            `json:"culture"`
	Language  string            `json:"language"`
	Lessons   []OfflineLesson   `json:"lessons"`
	Resources []OfflineResource `json:"resources"`
	Metadata  PackageMetadata   `json:"metadata"`
	Size      int64             `json:"size"`
	Checksum  string            `json:"checksum"`
	CreatedAt time.Time         `json:"createdAt"`
	ExpiresAt time.Time         `json:"expiresAt"`
}

// Expired reports whether the package is past its server-side TTL at the given time
func (p *OfflinePackage) Expired(now time.Time) bool {
	return now.After(p.ExpiresAt)
}

// OfflineLesson is one lesson adapted for a single package
type OfflineLesson struct {
	ID                    string              `json:"id"`
	Title                 string              `json:"title"`
	Description           string              `json:"description"`
	Content               LessonContent       `json:"content"`
	CulturalVariants      map[string]Variant  `json:"culturalVariants"`
	LanguageVersions      map[string]Language `json:"languageVersions"`
	AccessibilityFeatures []string            `json:"accessibilityFeatures"`
	Multimedia            []OfflineMultimedia `json:"multimedia"`
	Size                  int64               `json:"size"`
	// Checksum covers the serialized Content only, not the whole lesson
	Checksum string `json:"checksum"`
}

// OfflineResource is one downloaded and optimized artifact, deduplicated by
// source URL within a single package build
type OfflineResource struct {
	ID            string           `json:"id"`
	Type          ResourceType     `json:"type"`
	URL           string           `json:"url"`
	LocalPath     string           `json:"localPath"`
	Size          int64            `json:"size"`
	OptimizedSize int64            `json:"optimizedSize"`
	Checksum      string           `json:"checksum"`
	Metadata      ResourceMetadata `json:"metadata"`
}

// ResourceMetadata carries probe results; fields are populated only where
// applicable to the resource type
type ResourceMetadata struct {
	Width    int     `json:"width,omitempty"`
	Height   int     `json:"height,omitempty"`
	Duration float64 `json:"duration,omitempty"`
	Bitrate  int64   `json:"bitrate,omitempty"`
	Codec    string  `json:"codec,omitempty"`
	Format   string  `json:"format,omitempty"`
}

// OfflineMultimedia is a resource as referenced from a lesson manifest
type OfflineMultimedia struct {
	Type          ResourceType `json:"type"`
	OriginalURL   string       `json:"originalUrl"`
	OptimizedURL  string       `json:"optimizedUrl"`
	Size          int64        `json:"size"`
	OptimizedSize int64        `json:"optimizedSize"`
	Format        string       `json:"format"`
	// Quality is optimizedSize/size as an integer percent; lower means more compressed
	Quality int `json:"quality"`
}

// PackageMetadata aggregates package-level figures for the client
type PackageMetadata struct {
	TotalLessons          int                 `json:"totalLessons"`
	TotalResources        int                 `json:"totalResources"`
	TotalSize             int64               `json:"totalSize"`
	EstimatedDownloadTime int64               `json:"estimatedDownloadTime"` // seconds
	Compatibility         []string            `json:"compatibility"`
	Requirements          PackageRequirements `json:"requirements"`
}

// PackageRequirements describes the minimum client environment for a package
type PackageRequirements struct {
	MinStorage       int64    `json:"minStorage"`
	MinBandwidth     int64    `json:"minBandwidth"` // kbps
	SupportedDevices []string `json:"supportedDevices"`
}

// PackageSummary is the metadata side-file shape written next to each package
type PackageSummary struct {
	ID          string    `json:"id"`
	StudentID   string    `json:"studentId"`
	StudentName string    `json:"studentName"`
	Culture     string    `json:"culture"`
	Language    string    `json:"language"`
	Size        int64     `json:"size"`
	Lessons     int       `json:"lessons"`
	Resources   int       `json:"resources"`
	CreatedAt   time.Time `json:"createdAt"`
	ExpiresAt   time.Time `json:"expiresAt"`
}
