package history

import "math"

// CaseEntry is one graded localization case.
type CaseEntry struct {
	Correct   int   `json:"c"`
	Incorrect int   `json:"i"`
	Timestamp int64 `json:"t"` // unix milliseconds
}

// ReportEntry is one graded report, GREEN score in percent.
type ReportEntry struct {
	Green     float64 `json:"g"`
	Timestamp int64   `json:"t"`
}

// CaseStats summarizes the recent localization cases.
type CaseStats struct {
	Count     int
	Correct   int
	Incorrect int
	Accuracy  float64 // percent, 0 when nothing was graded
}

// SummarizeCases totals entries for the rolling "last N" display.
func SummarizeCases(entries []CaseEntry) CaseStats {
	stats := CaseStats{Count: len(entries)}
	for _, e := range entries {
		stats.Correct += max(e.Correct, 0)
		stats.Incorrect += max(e.Incorrect, 0)
	}
	if total := stats.Correct + stats.Incorrect; total > 0 {
		stats.Accuracy = float64(stats.Correct) / float64(total) * 100
	}
	return stats
}

// ReportStats summarizes the recent report scores.
type ReportStats struct {
	Count   int
	High    float64
	Low     float64
	Average float64
}

// SummarizeReports returns high, low and average GREEN over entries.
func SummarizeReports(entries []ReportEntry) ReportStats {
	stats := ReportStats{Count: len(entries)}
	if len(entries) == 0 {
		return stats
	}
	stats.High = math.Inf(-1)
	stats.Low = math.Inf(1)
	sum := 0.0
	for _, e := range entries {
		stats.High = math.Max(stats.High, e.Green)
		stats.Low = math.Min(stats.Low, e.Green)
		sum += e.Green
	}
	stats.Average = sum / float64(len(entries))
	return stats
}
