package models

import (
	"time"
)

// SpecialNeedType identifies a known accessibility adaptation kind
type SpecialNeedType string

const (
	NeedDyslexia SpecialNeedType = "dyslexia"
	NeedADHD     SpecialNeedType = "adhd"
	NeedVisual   SpecialNeedType = "visual"
	NeedAuditory SpecialNeedType = "auditory"
	NeedMotor    SpecialNeedType = "motor"
)

// SpecialNeed is one diagnosed need attached to a student
type SpecialNeed struct {
	ID        string          `json:"id" db:"id"`
	StudentID string          `json:"student_id" db:"student_id"`
	Type      SpecialNeedType `json:"type" db:"type"`
	Severity  string          `json:"severity" db:"severity"`
}

// Student is a learner profile as stored server-side
type Student struct {
	ID             string        `json:"id" db:"id"`
	Name           string        `json:"name" db:"name"`
	GradeLevel     int           `json:"grade_level" db:"grade_level"`
	ReadingLevel   int           `json:"reading_level" db:"reading_level"`
	CognitiveLevel int           `json:"cognitive_level" db:"cognitive_level"`
	TeacherName    string        `json:"teacher_name" db:"teacher_name"`
	SpecialNeeds   []SpecialNeed `json:"special_needs"`
	CreatedAt      time.Time     `json:"created_at" db:"created_at"`
}

// HasNeed reports whether the student has a special need of the given type
func (s *Student) HasNeed(t SpecialNeedType) bool {
	for _, need := range s.SpecialNeeds {
		if need.Type == t {
			return true
		}
	}
	return false
}

// ContentSection is one block of lesson material; media fields hold source URLs
type ContentSection struct {
	Title    string `json:"title"`
	Body     string `json:"body"`
	ImageURL string `json:"imageUrl,omitempty"`
	AudioURL string `json:"audioUrl,omitempty"`
	VideoURL string `json:"videoUrl,omitempty"`
}

// AccessibilitySettings is the typed adaptation payload merged into lesson
// content; multiple special needs apply cumulatively, last-applied-wins on
// overlapping fields
type AccessibilitySettings struct {
	FontSize            string  `json:"fontSize,omitempty"`
	LineSpacing         float64 `json:"lineSpacing,omitempty"`
	ColorScheme         string  `json:"colorScheme,omitempty"`
	AudioSupport        bool    `json:"audioSupport,omitempty"`
	BreakDuration       int     `json:"breakDuration,omitempty"` // seconds
	InteractiveElements bool    `json:"interactiveElements,omitempty"`
	ProgressIndicators  bool    `json:"progressIndicators,omitempty"`
}

// LessonContent is the adapted, culture- and accessibility-aware body of a lesson
type LessonContent struct {
	Introduction  string                `json:"introduction"`
	Sections      []ContentSection      `json:"sections"`
	Examples      []string              `json:"examples,omitempty"`
	Context       string                `json:"context,omitempty"`
	Attachments   []string              `json:"attachments,omitempty"`
	Accessibility AccessibilitySettings `json:"accessibility"`
}

// Variant is an alternate rendering of lesson content for a named cultural
// background; examples and context override the base content when present
type Variant struct {
	Examples []string `json:"examples,omitempty"`
	Context  string   `json:"context,omitempty"`
}

// Language is a per-language rendering of a lesson's text fields
type Language struct {
	Title        string `json:"title"`
	Description  string `json:"description"`
	Introduction string `json:"introduction,omitempty"`
}

// Lesson is the server-side lesson record the adapter selects from
type Lesson struct {
	ID               string              `json:"id" db:"id"`
	Title            string              `json:"title" db:"title"`
	Description      string              `json:"description" db:"description"`
	GradeLevel       int                 `json:"grade_level" db:"grade_level"`
	Difficulty       int                 `json:"difficulty" db:"difficulty"`
	Content          LessonContent       `json:"content"`
	CulturalVariants map[string]Variant  `json:"cultural_variants"`
	LanguageVersions map[string]Language `json:"language_versions"`
	// OfflinePackageURL points at the most recent package containing this lesson
	OfflinePackageURL string    `json:"offline_package_url" db:"offline_package_url"`
	OfflineSize       int64     `json:"offline_size" db:"offline_size"`
	CreatedAt         time.Time `json:"created_at" db:"created_at"`
}
