package scoring

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"
)

var canvas100 = Canvas{Width: 100, Height: 100}

func px(rs ...Rect) []Rect {
	out := make([]Rect, 0, len(rs))
	for _, r := range rs {
		out = append(out, r.ToPixels(canvas100))
	}
	return out
}

func TestScoreLocalizable(t *testing.T) {
	tests := []struct {
		name        string
		truth       []Rect
		user        []Rect
		wantIoU     float64
		wantCorrect bool
	}{
		{
			name:        "identical boxes",
			truth:       px(Rect{0, 0, 0.5, 0.5}),
			user:        px(Rect{0, 0, 0.5, 0.5}),
			wantIoU:     1.0,
			wantCorrect: true,
		},
		{
			name:        "disjoint boxes",
			truth:       px(Rect{0, 0, 0.5, 0.5}),
			user:        px(Rect{0.6, 0.6, 0.9, 0.9}),
			wantIoU:     0.0,
			wantCorrect: false,
		},
		{
			name:        "quarter box below threshold",
			truth:       px(Rect{0, 0, 0.5, 0.5}),
			user:        px(Rect{0, 0, 0.25, 0.25}),
			wantIoU:     0.25,
			wantCorrect: false,
		},
		{
			name:        "missed finding",
			truth:       px(Rect{0, 0, 0.5, 0.5}),
			wantIoU:     0.0,
			wantCorrect: false,
		},
		{
			name:        "false positive",
			user:        px(Rect{0, 0, 0.5, 0.5}),
			wantIoU:     0.0,
			wantCorrect: false,
		},
		{
			name:        "degenerate boxes on both sides",
			truth:       []Rect{{10, 10, 10, 20}},
			user:        []Rect{{10, 10, 10, 20}},
			wantIoU:     0.0,
			wantCorrect: false,
		},
		{
			// two user boxes each covering the truth box count its area twice
			name:        "aggregate overlap double counts",
			truth:       []Rect{{0, 0, 10, 10}},
			user:        []Rect{{0, 0, 10, 10}, {0, 0, 10, 10}},
			wantIoU:     200.0 / 100.0,
			wantCorrect: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ScoreLocalizable("Nodule/Mass", tt.truth, tt.user)
			if !ok {
				t.Fatalf("Expected label to be scored")
			}
			if math.Abs(got.IoU-tt.wantIoU) > 1e-9 {
				t.Errorf("Expected IoU=%.4f, got %.4f", tt.wantIoU, got.IoU)
			}
			if got.Correct != tt.wantCorrect {
				t.Errorf("Expected Correct=%v, got %v", tt.wantCorrect, got.Correct)
			}
		})
	}
}

func TestScoreLocalizableSkipsEmpty(t *testing.T) {
	if _, ok := ScoreLocalizable("Fracture", nil, nil); ok {
		t.Error("Expected label with no boxes on either side to be skipped")
	}
}

func TestScoreNonlocalizable(t *testing.T) {
	tests := []struct {
		present, selected bool
		wantScored        bool
		wantCorrect       bool
	}{
		{present: true, selected: true, wantScored: true, wantCorrect: true},
		{present: true, selected: false, wantScored: true, wantCorrect: false},
		{present: false, selected: true, wantScored: true, wantCorrect: false},
		{present: false, selected: false, wantScored: false},
	}

	for _, tt := range tests {
		got, ok := ScoreNonlocalizable("edema", tt.present, tt.selected)
		if ok != tt.wantScored {
			t.Errorf("present=%v selected=%v: expected scored=%v, got %v", tt.present, tt.selected, tt.wantScored, ok)
			continue
		}
		if ok && got.Correct != tt.wantCorrect {
			t.Errorf("present=%v selected=%v: expected Correct=%v, got %v", tt.present, tt.selected, tt.wantCorrect, got.Correct)
		}
	}
}

func TestGeometry(t *testing.T) {
	if got := Area(Rect{0, 0, 10, 5}); got != 50 {
		t.Errorf("Expected area=50, got %f", got)
	}
	if got := Area(Rect{10, 0, 0, 5}); got != 0 {
		t.Errorf("Expected inverted rect area=0, got %f", got)
	}
	if got := IntersectionArea(Rect{0, 0, 10, 10}, Rect{5, 5, 15, 15}); got != 25 {
		t.Errorf("Expected intersection=25, got %f", got)
	}
	if got := IntersectionArea(Rect{0, 0, 10, 10}, Rect{10, 0, 20, 10}); got != 0 {
		t.Errorf("Expected touching rects to have intersection=0, got %f", got)
	}
	if got := (Rect{80, 60, 20, 10}).Canonical(); got != (Rect{20, 10, 80, 60}) {
		t.Errorf("Expected canonical rect, got %+v", got)
	}
	r := Rect{25, 50, 75, 100}.Normalize(canvas100)
	if r != (Rect{0.25, 0.5, 0.75, 1}) {
		t.Errorf("Expected normalized rect, got %+v", r)
	}
	if got := (Rect{1, 1, 2, 2}).Normalize(Canvas{}); got != (Rect{}) {
		t.Errorf("Expected zero rect for empty canvas, got %+v", got)
	}
}

func TestScoreCase(t *testing.T) {
	labels := DefaultLabels()
	nodule := labels.Index("Nodule/Mass")
	fracture := labels.Index("Fracture")
	if nodule < 0 || fracture < 0 {
		t.Fatal("Expected default labels to include Nodule/Mass and Fracture")
	}

	gt := GroundTruth{
		CaseID: "case-1",
		Boxes: map[string][]Rect{
			"Nodule/Mass":  {{0, 0, 0.5, 0.5}},
			"Cardiomegaly": {{0.2, 0.2, 0.8, 0.8}},
		},
		Present: map[string]bool{"Pneumothorax": true},
	}
	sub := Submission{
		Boxes: []UserBox{
			{LabelIndex: nodule, Rect: Rect{50, 50, 0, 0}}, // dragged backwards
			{LabelIndex: fracture, Rect: Rect{60, 60, 90, 90}},
			{LabelIndex: 99, Rect: Rect{0, 0, 1, 1}},
		},
		Selections: map[string]bool{"Pneumothorax": true, "Scoliosis": true},
	}

	score := ScoreCase(labels, canvas100, gt, sub)

	if len(score.Localizable) != 2 {
		t.Fatalf("Expected 2 localizable results, got %d", len(score.Localizable))
	}
	// label-list order: Fracture sorts before Nodule/Mass
	if score.Localizable[0].Label != "Fracture" || score.Localizable[0].Correct {
		t.Errorf("Expected incorrect Fracture first, got %+v", score.Localizable[0])
	}
	if score.Localizable[1].Label != "Nodule/Mass" || !score.Localizable[1].Correct {
		t.Errorf("Expected correct Nodule/Mass, got %+v", score.Localizable[1])
	}

	// Cardiomegaly has a box but no presence flag, so it is not scored
	if len(score.Nonlocalizable) != 2 {
		t.Fatalf("Expected 2 nonlocalizable results, got %d", len(score.Nonlocalizable))
	}
	for _, r := range score.Nonlocalizable {
		if r.Label == "Cardiomegaly" {
			t.Errorf("Expected Cardiomegaly to be unscored, got %+v", r)
		}
	}
	if score.Counts.Correct != 2 || score.Counts.Incorrect != 2 {
		t.Errorf("Expected 2 correct / 2 incorrect, got %d / %d", score.Counts.Correct, score.Counts.Incorrect)
	}
	if gt.IsPresent("Cardiomegaly") {
		t.Error("Expected a ground-truth box alone not to mark Cardiomegaly present")
	}
}

func TestAggregate(t *testing.T) {
	c := Aggregate(
		[]LocalizableResult{{Correct: true}, {Correct: false}},
		[]NonlocalizableResult{{Correct: true}},
	)
	if c.Correct != 2 || c.Incorrect != 1 {
		t.Errorf("Expected 2/1, got %d/%d", c.Correct, c.Incorrect)
	}
	if c := Aggregate(nil, nil); c != (Counts{}) {
		t.Errorf("Expected zero counts, got %+v", c)
	}
}

func TestCanonicalLabel(t *testing.T) {
	tests := map[string]string{
		"Edema":           "Consolidation",
		" Nodule ":        "Nodule/Mass",
		"Support Devices": "Device/Foreign body",
		"No Finding":      "",
		"Something else":  "Something else",
	}
	for in, want := range tests {
		if got := CanonicalLabel(in); got != want {
			t.Errorf("CanonicalLabel(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLabelColor(t *testing.T) {
	if got := LabelColor(0, 4); got != "hsla(0, 70%, 65%, 0.8)" {
		t.Errorf("Expected first hue 0, got %s", got)
	}
	if got := LabelColor(1, 4); got != "hsla(90, 70%, 65%, 0.8)" {
		t.Errorf("Expected hue 90, got %s", got)
	}
	if got := LabelColor(0, 0); got != "hsla(0, 70%, 65%, 0.8)" {
		t.Errorf("Expected empty label list to be safe, got %s", got)
	}
}

func TestSaveReportYAML(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "reports")
	gt := GroundTruth{CaseID: "set/1", Boxes: map[string][]Rect{"Fracture": {{0, 0, 0.5, 0.5}}}}
	score := ScoreCase(DefaultLabels(), canvas100, gt, Submission{})
	report := NewReport(gt, canvas100, score, time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC))

	path, err := SaveReportYAML(dir, report)
	if err != nil {
		t.Fatalf("SaveReportYAML failed: %v", err)
	}
	if filepath.Base(path) != "set_1-2025-01-02_03-04-05.yaml" {
		t.Errorf("Unexpected report name %s", filepath.Base(path))
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("Expected report file: %v", err)
	}

	loaded, err := LoadReportYAML(path)
	if err != nil {
		t.Fatalf("LoadReportYAML failed: %v", err)
	}
	if loaded.Config.CaseID != "set/1" || loaded.Incorrect != 1 || loaded.Correct != 0 {
		t.Errorf("Unexpected report contents: %+v", loaded)
	}
	if len(loaded.Localizable) != 1 || loaded.Localizable[0].Label != "Fracture" {
		t.Errorf("Expected one Fracture result, got %+v", loaded.Localizable)
	}
}
