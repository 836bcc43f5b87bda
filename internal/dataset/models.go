package dataset

import (
	"sort"

	"github.com/lehigh-university-libraries/radtrack/internal/models"
	"github.com/lehigh-university-libraries/radtrack/internal/scoring"
)

// CaseRecord is one case in a JSON or JSONL ground-truth file
type CaseRecord struct {
	CaseID  string             `json:"case_id"`
	ImageID string             `json:"image_id,omitempty"`
	Boxes   []models.BoxRecord `json:"boxes"`   // normalized x1, y1, x2, y2
	Present []string           `json:"present"` // nonlocalizable findings
}

// GroundTruthRow is one finding of a Parquet ground-truth file. Rows without
// a box mark a nonlocalizable finding as present.
type GroundTruthRow struct {
	CaseID  string  `json:"case_id" parquet:"case_id"`
	ImageID string  `json:"image_id" parquet:"image_id,optional"`
	Label   string  `json:"label" parquet:"label"`
	HasBox  bool    `json:"has_box" parquet:"has_box"`
	X1      float64 `json:"x1" parquet:"x1"`
	Y1      float64 `json:"y1" parquet:"y1"`
	X2      float64 `json:"x2" parquet:"x2"`
	Y2      float64 `json:"y2" parquet:"y2"`
}

// CaseLogRow is the flattened export form of a server case log
type CaseLogRow struct {
	ID                int64  `json:"id" parquet:"id"`
	AccessCode        string `json:"access_code" parquet:"access_code"`
	CaseID            string `json:"case_id" parquet:"case_id"`
	TimeSpentMs       int64  `json:"time_spent_ms" parquet:"time_spent_ms"`
	TimerCheckpointMs int64  `json:"timer_checkpoint_ms" parquet:"timer_checkpoint_ms"`
	CorrectCount      int64  `json:"correct_count" parquet:"correct_count"`
	IncorrectCount    int64  `json:"incorrect_count" parquet:"incorrect_count"`
	ImagesTotal       int64  `json:"images_total" parquet:"images_total"`
	SelectionsJSON    string `json:"selections" parquet:"selections_json"`
	CreatedAt         string `json:"created_at" parquet:"created_at"`
}

// Set is a loaded ground-truth collection keyed by case id
type Set struct {
	cases map[string]*scoring.GroundTruth
	order []string
}

func newSet() *Set {
	return &Set{cases: make(map[string]*scoring.GroundTruth)}
}

func (s *Set) entry(caseID, imageID string) *scoring.GroundTruth {
	gt, ok := s.cases[caseID]
	if !ok {
		gt = &scoring.GroundTruth{
			CaseID:  caseID,
			ImageID: caseID,
			Boxes:   make(map[string][]scoring.Rect),
			Present: make(map[string]bool),
		}
		s.cases[caseID] = gt
		s.order = append(s.order, caseID)
	}
	if imageID != "" {
		gt.ImageID = imageID
	}
	return gt
}

func (s *Set) addBox(caseID, imageID, label string, r scoring.Rect) {
	gt := s.entry(caseID, imageID)
	if label = scoring.CanonicalLabel(label); label == "" {
		return
	}
	gt.Boxes[label] = append(gt.Boxes[label], r.Canonical())
}

func (s *Set) addPresent(caseID, imageID, label string) {
	gt := s.entry(caseID, imageID)
	if label = scoring.CanonicalLabel(label); label == "" {
		return
	}
	gt.Present[label] = true
}

func (s *Set) addRecord(rec CaseRecord) {
	s.entry(rec.CaseID, rec.ImageID)
	for _, b := range rec.Boxes {
		s.addBox(rec.CaseID, rec.ImageID, b.Label, scoring.RectFromCoords(b.Coordinates))
	}
	for _, label := range rec.Present {
		s.addPresent(rec.CaseID, rec.ImageID, label)
	}
}

// Get returns the ground truth of caseID
func (s *Set) Get(caseID string) (scoring.GroundTruth, bool) {
	gt, ok := s.cases[caseID]
	if !ok {
		return scoring.GroundTruth{}, false
	}
	return *gt, true
}

// IDs returns case ids in file order
func (s *Set) IDs() []string {
	return append([]string(nil), s.order...)
}

// Len is the number of cases
func (s *Set) Len() int {
	return len(s.order)
}

// Labels returns every label that appears in the set, sorted
func (s *Set) Labels() []string {
	seen := map[string]bool{}
	for _, gt := range s.cases {
		for label := range gt.Boxes {
			seen[label] = true
		}
		for label := range gt.Present {
			seen[label] = true
		}
	}
	labels := make([]string, 0, len(seen))
	for label := range seen {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels
}
