package dataset

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/lehigh-university-libraries/radtrack/internal/scoring"
	"github.com/lehigh-university-libraries/radtrack/internal/storage"
)

// CaseLogRows flattens server case logs for export
func CaseLogRows(logs []storage.CaseLog) ([]CaseLogRow, error) {
	rows := make([]CaseLogRow, 0, len(logs))
	for _, log := range logs {
		selections, err := json.Marshal(log.Selections)
		if err != nil {
			return nil, fmt.Errorf("failed to encode selections of case log %d: %w", log.ID, err)
		}
		rows = append(rows, CaseLogRow{
			ID:                log.ID,
			AccessCode:        log.AccessCode,
			CaseID:            log.CaseID,
			TimeSpentMs:       log.TimeSpentMs,
			TimerCheckpointMs: log.TimerCheckpointMs,
			CorrectCount:      int64(log.CorrectCount),
			IncorrectCount:    int64(log.IncorrectCount),
			ImagesTotal:       log.LocalizeTotal,
			SelectionsJSON:    string(selections),
			CreatedAt:         log.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return rows, nil
}

// WriteCaseLogs writes rows to path as Parquet or JSONL, chosen by extension
func WriteCaseLogs(path string, rows []CaseLogRow) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer file.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".parquet":
		w := parquet.NewGenericWriter[CaseLogRow](file)
		if _, err := w.Write(rows); err != nil {
			return fmt.Errorf("failed to write parquet rows: %w", err)
		}
		if err := w.Close(); err != nil {
			return fmt.Errorf("failed to close parquet writer: %w", err)
		}
	case ".jsonl":
		enc := json.NewEncoder(file)
		for _, row := range rows {
			if err := enc.Encode(row); err != nil {
				return fmt.Errorf("failed to write JSONL row: %w", err)
			}
		}
	default:
		return fmt.Errorf("unsupported export format: %s (supported: .parquet, .jsonl)", filepath.Ext(path))
	}
	return file.Close()
}

// WriteGroundTruthParquet writes ground truth in the row layout Load reads
func WriteGroundTruthParquet(path string, cases []scoring.GroundTruth) error {
	var rows []GroundTruthRow
	for _, gt := range cases {
		for label, boxes := range gt.Boxes {
			for _, b := range boxes {
				rows = append(rows, GroundTruthRow{
					CaseID: gt.CaseID, ImageID: gt.ImageID, Label: label, HasBox: true,
					X1: b.X1, Y1: b.Y1, X2: b.X2, Y2: b.Y2,
				})
			}
		}
		for label, present := range gt.Present {
			if present {
				rows = append(rows, GroundTruthRow{CaseID: gt.CaseID, ImageID: gt.ImageID, Label: label})
			}
		}
	}
	if err := parquet.WriteFile(path, rows); err != nil {
		return fmt.Errorf("failed to write ground truth: %w", err)
	}
	return nil
}
