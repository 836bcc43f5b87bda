// Package dataset loads case ground truth and exports server case logs.
package dataset

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/parquet-go/parquet-go"

	"github.com/lehigh-university-libraries/radtrack/internal/scoring"
)

// Loader reads a ground-truth file (JSON, JSONL or Parquet)
type Loader struct {
	datasetPath string
}

// NewLoader creates a new ground-truth loader
func NewLoader(datasetPath string) *Loader {
	return &Loader{
		datasetPath: datasetPath,
	}
}

// Load reads every case from the file, folding dataset finding names onto
// graded labels.
func (l *Loader) Load() (*Set, error) {
	ext := strings.ToLower(filepath.Ext(l.datasetPath))

	var (
		set *Set
		err error
	)
	switch ext {
	case ".parquet":
		set, err = l.loadParquet()
	case ".jsonl":
		set, err = l.loadJSONL()
	case ".json":
		set, err = l.loadJSON()
	default:
		return nil, fmt.Errorf("unsupported file format: %s (supported: .parquet, .jsonl, .json)", ext)
	}
	if err != nil {
		return nil, err
	}
	slog.Info("Loaded ground truth", "path", l.datasetPath, "cases", set.Len())
	return set, nil
}

func (l *Loader) loadJSON() (*Set, error) {
	data, err := os.ReadFile(l.datasetPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset file: %w", err)
	}
	var records []CaseRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to parse dataset JSON: %w", err)
	}

	set := newSet()
	for i, rec := range records {
		if rec.CaseID == "" {
			return nil, fmt.Errorf("record %d has no case_id", i)
		}
		set.addRecord(rec)
	}
	return set, nil
}

func (l *Loader) loadJSONL() (*Set, error) {
	slog.Debug("Opening JSONL file", "path", l.datasetPath)

	file, err := os.Open(l.datasetPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset file: %w", err)
	}
	defer file.Close()

	set := newSet()
	scanner := bufio.NewScanner(file)

	const maxCapacity = 1024 * 1024
	buf := make([]byte, maxCapacity)
	scanner.Buffer(buf, maxCapacity)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()

		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}

		var rec CaseRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, fmt.Errorf("failed to parse JSON at line %d: %w", lineNum, err)
		}
		if rec.CaseID == "" {
			return nil, fmt.Errorf("line %d has no case_id", lineNum)
		}
		set.addRecord(rec)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading dataset: %w", err)
	}

	slog.Debug("Finished reading JSONL file", "cases", set.Len(), "total_lines", lineNum)
	return set, nil
}

func (l *Loader) loadParquet() (*Set, error) {
	slog.Debug("Opening Parquet file", "path", l.datasetPath)

	file, err := os.Open(l.datasetPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	pf, err := parquet.OpenFile(file, info.Size())
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet: %w", err)
	}

	slog.Debug("Parquet file opened", "num_rows", pf.NumRows(), "num_row_groups", len(pf.RowGroups()))

	reader := parquet.NewGenericReader[GroundTruthRow](pf)
	defer reader.Close()

	set := newSet()
	rows := make([]GroundTruthRow, 128)
	for {
		n, err := reader.Read(rows)
		for _, row := range rows[:n] {
			if row.CaseID == "" {
				continue
			}
			if row.HasBox {
				set.addBox(row.CaseID, row.ImageID, row.Label, scoring.Rect{X1: row.X1, Y1: row.Y1, X2: row.X2, Y2: row.Y2})
			} else {
				set.addPresent(row.CaseID, row.ImageID, row.Label)
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read parquet rows: %w", err)
		}
	}

	slog.Debug("Finished reading Parquet file", "cases", set.Len())
	return set, nil
}
