// Package adapter selects and culturally adapts lessons for one student
package adapter

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"inclusiveai-offline/internal/database"
	"inclusiveai-offline/pkg/checksum"
	"inclusiveai-offline/pkg/models"
)

const (
	// DefaultCulture is the variant key used when a lesson has no entry for
	// the requested culture
	DefaultCulture = "default"

	// DefaultLanguage is the fallback language version
	DefaultLanguage = "es-GT"
)

// DifficultyWindow bounds lesson difficulty relative to the student's reading level
const DifficultyWindow = 1

// Adapter selects and adapts lessons for offline packaging
type Adapter struct {
	db     *database.DB
	logger *slog.Logger
}

// New creates a new lesson adapter
func New(db *database.DB) *Adapter {
	return &Adapter{
		db:     db,
		logger: slog.Default(),
	}
}

// SelectLessons returns lessons matching the student's cognitive level whose
// difficulty lies within the window around the reading level, ordered
// ascending by difficulty
func (a *Adapter) SelectLessons(student *models.Student) ([]*models.Lesson, error) {
	lessons, err := a.db.GetLessonsByLevel(
		student.CognitiveLevel,
		student.ReadingLevel-DifficultyWindow,
		student.ReadingLevel+DifficultyWindow,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to select lessons: %w", err)
	}

	a.logger.Debug("Selected lessons for student",
		"student_id", student.ID,
		"cognitive_level", student.CognitiveLevel,
		"reading_level", student.ReadingLevel,
		"count", len(lessons))

	return lessons, nil
}

// Adapt produces the offline rendering of one lesson for the given culture
// and language, layering accessibility adaptations on top
func (a *Adapter) Adapt(lesson *models.Lesson, student *models.Student, culture, language string) (models.OfflineLesson, error) {
	content := lesson.Content
	title := lesson.Title
	description := lesson.Description

	variant, ok := lesson.CulturalVariants[culture]
	if !ok {
		variant = lesson.CulturalVariants[DefaultCulture]
	}
	if len(variant.Examples) > 0 {
		content.Examples = variant.Examples
	}
	if variant.Context != "" {
		content.Context = variant.Context
	}

	langVersion, ok := lesson.LanguageVersions[language]
	if !ok {
		langVersion = lesson.LanguageVersions[DefaultLanguage]
	}
	if langVersion.Title != "" {
		title = langVersion.Title
	}
	if langVersion.Description != "" {
		description = langVersion.Description
	}
	if langVersion.Introduction != "" {
		content.Introduction = langVersion.Introduction
	}

	features := applyAccessibility(&content, student)

	serialized, err := json.Marshal(content)
	if err != nil {
		return models.OfflineLesson{}, fmt.Errorf("failed to serialize adapted content: %w", err)
	}

	return models.OfflineLesson{
		ID:                    lesson.ID,
		Title:                 title,
		Description:           description,
		Content:               content,
		CulturalVariants:      lesson.CulturalVariants,
		LanguageVersions:      lesson.LanguageVersions,
		AccessibilityFeatures: features,
		Size:                  int64(len(serialized)),
		Checksum:              checksum.SHA256(serialized),
	}, nil
}

// applyAccessibility mutates content per the student's special needs. Needs
// apply cumulatively; overlapping fields are last-applied-wins.
func applyAccessibility(content *models.LessonContent, student *models.Student) []string {
	var features []string

	if student.HasNeed(models.NeedDyslexia) {
		content.Accessibility.FontSize = "large"
		content.Accessibility.LineSpacing = 2.0
		content.Accessibility.ColorScheme = "high-contrast"
		content.Accessibility.AudioSupport = true
		features = append(features, string(models.NeedDyslexia))
	}

	if student.HasNeed(models.NeedADHD) {
		content.Accessibility.BreakDuration = 300
		content.Accessibility.InteractiveElements = true
		content.Accessibility.ProgressIndicators = true
		features = append(features, string(models.NeedADHD))
	}

	return features
}
