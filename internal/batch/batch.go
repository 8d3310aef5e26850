// Package batch fans package generation out across students, cultures and languages
package batch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"inclusiveai-offline/internal/assembler"
	"inclusiveai-offline/internal/database"
	"inclusiveai-offline/internal/store"
)

// Cultures is the fixed culture list packages are generated for
var Cultures = []string{"maya", "nahuatl", "afrodescendiente"}

// Languages is the fixed language list packages are generated for
var Languages = []string{"es-GT", "maya", "k'iche'", "nahuatl"}

// ReportFilename is the aggregate run report written into the content directory
const ReportFilename = "generation-report.json"

// Config describes one batch run
type Config struct {
	Cultures  []string      `json:"cultures"`
	Languages []string      `json:"languages"`
	Delay     time.Duration `json:"-"`
	DelayMS   int64         `json:"delayMs"`
	OutputDir string        `json:"outputDir"`
}

// Results accumulates per-combination outcomes
type Results struct {
	Total   int      `json:"total"`
	Success int      `json:"success"`
	Failed  int      `json:"failed"`
	Errors  []string `json:"errors"`
}

// Summary is the human-oriented tail of the report
type Summary struct {
	TotalPackages      int     `json:"totalPackages"`
	SuccessfulPackages int     `json:"successfulPackages"`
	FailedPackages     int     `json:"failedPackages"`
	SuccessRate        float64 `json:"successRate"`
	TotalSize          int64   `json:"totalSize"`
}

// Report is the generation-report.json shape
type Report struct {
	GeneratedAt time.Time `json:"generatedAt"`
	Config      Config    `json:"config"`
	Results     Results   `json:"results"`
	Summary     Summary   `json:"summary"`
}

// Driver iterates students × cultures × languages, invoking the assembler per
// combination. Individual failures are recorded and the batch continues.
type Driver struct {
	db        *database.DB
	assembler *assembler.Assembler
	store     *store.Store
	config    Config
	logger    *slog.Logger
}

// New creates a new batch driver
func New(db *database.DB, packageAssembler *assembler.Assembler, packageStore *store.Store, config Config) *Driver {
	if len(config.Cultures) == 0 {
		config.Cultures = Cultures
	}
	if len(config.Languages) == 0 {
		config.Languages = Languages
	}
	config.DelayMS = config.Delay.Milliseconds()

	return &Driver{
		db:        db,
		assembler: packageAssembler,
		store:     packageStore,
		config:    config,
		logger:    slog.Default(),
	}
}

// Run generates packages for every combination and writes the aggregate report
func (d *Driver) Run(ctx context.Context) (*Report, error) {
	students, err := d.db.ListStudents()
	if err != nil {
		return nil, fmt.Errorf("failed to list students: %w", err)
	}

	results := Results{}
	d.logger.Info("Starting batch generation",
		"students", len(students),
		"cultures", len(d.config.Cultures),
		"languages", len(d.config.Languages))

	for _, student := range students {
		for _, culture := range d.config.Cultures {
			for _, language := range d.config.Languages {
				if err := ctx.Err(); err != nil {
					return nil, err
				}

				results.Total++
				pkg, err := d.assembler.BuildPackage(ctx, student.ID, culture, language)
				if err != nil {
					results.Failed++
					results.Errors = append(results.Errors, fmt.Sprintf(
						"Error generating package for student %s (%s, %s): %v",
						student.ID, culture, language, err))
					d.logger.Error("Package generation failed",
						"student_id", student.ID,
						"culture", culture,
						"language", language,
						"error", err)
				} else {
					results.Success++
					d.logger.Info("Package generated",
						"package_id", pkg.ID,
						"student_id", student.ID,
						"culture", culture,
						"language", language)
				}

				// Inter-iteration delay bounds transcoding load
				if d.config.Delay > 0 {
					select {
					case <-ctx.Done():
						return nil, ctx.Err()
					case <-time.After(d.config.Delay):
					}
				}
			}
		}
	}

	report, err := d.writeReport(results)
	if err != nil {
		return nil, err
	}

	d.logSummary(report)
	return report, nil
}

// writeReport assembles and persists generation-report.json
func (d *Driver) writeReport(results Results) (*Report, error) {
	totalSize, err := d.store.TotalSize()
	if err != nil {
		d.logger.Warn("Failed to compute content directory size", "error", err)
	}

	successRate := 0.0
	if results.Total > 0 {
		successRate = float64(results.Success) / float64(results.Total) * 100
	}

	report := &Report{
		GeneratedAt: time.Now(),
		Config:      d.config,
		Results:     results,
		Summary: Summary{
			TotalPackages:      results.Total,
			SuccessfulPackages: results.Success,
			FailedPackages:     results.Failed,
			SuccessRate:        successRate,
			TotalSize:          totalSize,
		},
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal report: %w", err)
	}

	if err := os.MkdirAll(d.config.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	reportPath := filepath.Join(d.config.OutputDir, ReportFilename)
	if err := os.WriteFile(reportPath, data, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write report: %w", err)
	}

	return report, nil
}

func (d *Driver) logSummary(report *Report) {
	d.logger.Info("Batch generation complete",
		"total", report.Summary.TotalPackages,
		"success", report.Summary.SuccessfulPackages,
		"failed", report.Summary.FailedPackages,
		"success_rate", fmt.Sprintf("%.1f%%", report.Summary.SuccessRate),
		"total_size", report.Summary.TotalSize)

	for _, message := range report.Results.Errors {
		d.logger.Warn("Generation error", "detail", message)
	}
}
