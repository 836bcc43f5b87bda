package scoring

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// ReportConfig is the header of a grading report.
type ReportConfig struct {
	CaseID       string  `yaml:"caseid"`
	ImageID      string  `yaml:"imageid,omitempty"`
	IoUThreshold float64 `yaml:"iouthreshold"`
	CanvasWidth  float64 `yaml:"canvaswidth"`
	CanvasHeight float64 `yaml:"canvasheight"`
	Timestamp    string  `yaml:"timestamp"`
}

// Report is the YAML document written for one graded case.
type Report struct {
	Config         ReportConfig           `yaml:"config"`
	Localizable    []LocalizableResult    `yaml:"localizable"`
	Nonlocalizable []NonlocalizableResult `yaml:"nonlocalizable"`
	Correct        int                    `yaml:"correct"`
	Incorrect      int                    `yaml:"incorrect"`
}

// NewReport wraps score with its grading context.
func NewReport(gt GroundTruth, canvas Canvas, score CaseScore, at time.Time) Report {
	return Report{
		Config: ReportConfig{
			CaseID:       gt.CaseID,
			ImageID:      gt.ImageID,
			IoUThreshold: IoUThreshold,
			CanvasWidth:  canvas.Width,
			CanvasHeight: canvas.Height,
			Timestamp:    at.Format("2006-01-02_15-04-05"),
		},
		Localizable:    score.Localizable,
		Nonlocalizable: score.Nonlocalizable,
		Correct:        score.Counts.Correct,
		Incorrect:      score.Counts.Incorrect,
	}
}

// SaveReportYAML writes report into dir as {case}-{timestamp}.yaml and returns
// the absolute path.
func SaveReportYAML(dir string, report Report) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}

	data, err := yaml.Marshal(&report)
	if err != nil {
		return "", fmt.Errorf("failed to marshal YAML: %w", err)
	}

	name := fmt.Sprintf("%s-%s.yaml", sanitizeName(report.Config.CaseID), report.Config.Timestamp)
	filename := filepath.Join(dir, name)
	if err := os.WriteFile(filename, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write YAML file: %w", err)
	}

	absPath, _ := filepath.Abs(filename)
	return absPath, nil
}

// LoadReportYAML reads a report written by SaveReportYAML.
func LoadReportYAML(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read report: %w", err)
	}
	var report Report
	if err := yaml.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("failed to parse report: %w", err)
	}
	return &report, nil
}

func sanitizeName(s string) string {
	if s == "" {
		return "case"
	}
	out := []rune(s)
	for i, r := range out {
		switch r {
		case '/', '\\', ':', ' ':
			out[i] = '_'
		}
	}
	return string(out)
}
