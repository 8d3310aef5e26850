// Package fuzzy provides fuzzy matching for offline lesson search
package fuzzy

import (
	"sort"
	"strings"

	"inclusiveai-offline/pkg/models"
)

// Match is one lesson hit from an installed package
type Match struct {
	PackageID   string  `json:"package_id"`
	LessonID    string  `json:"lesson_id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Score       float64 `json:"score"`
}

// Matcher provides fuzzy matching functionality
type Matcher struct{}

// NewMatcher creates a new fuzzy matcher
func NewMatcher() *Matcher {
	return &Matcher{}
}

// SearchLessons scores every lesson in the installed packages against the
// query and returns matches ordered by descending score
func (m *Matcher) SearchLessons(query string, installed []*models.InstalledPackage) []Match {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return nil
	}

	var matches []Match
	for _, entry := range installed {
		for _, lesson := range entry.Package.Lessons {
			score := m.calculateScore(query, lesson.Title, lesson.Description)
			if score > 0 {
				matches = append(matches, Match{
					PackageID:   entry.Package.ID,
					LessonID:    lesson.ID,
					Title:       lesson.Title,
					Description: lesson.Description,
					Score:       score,
				})
			}
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})

	return matches
}

// calculateScore combines substring presence with word-level overlap
func (m *Matcher) calculateScore(query, title, description string) float64 {
	title = strings.ToLower(title)
	description = strings.ToLower(description)

	var score float64
	if strings.Contains(title, query) {
		score += 2.0
	}
	if strings.Contains(description, query) {
		score += 1.0
	}

	queryWords := splitWords(query)
	titleWords := splitWords(title)
	descriptionWords := splitWords(description)

	matched := 0
	for _, qWord := range queryWords {
		for _, tWord := range titleWords {
			if qWord == tWord {
				matched++
				break
			}
		}
	}
	for _, qWord := range queryWords {
		for _, dWord := range descriptionWords {
			if qWord == dWord {
				matched++
				break
			}
		}
	}

	if len(queryWords) > 0 {
		score += float64(matched) / float64(len(queryWords))
	}

	return score
}

func splitWords(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == '.' || r == '_' || r == '-' || r == ' ' || r == ','
	})
}
