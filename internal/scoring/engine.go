// Package scoring grades a user's annotations against ground truth. Drawn
// labels are graded by aggregate box overlap, nonlocalizable labels by a
// presence toggle.
package scoring

import (
	"log/slog"
	"math"
)

const (
	// IoUThreshold is the minimum aggregate IoU for a drawn label to count as correct.
	IoUThreshold = 0.30
	// unionEpsilon keeps the IoU defined when both box sets have zero area.
	unionEpsilon = 1e-6
)

// LocalizableResult is the grade for one drawn label.
type LocalizableResult struct {
	Label      string  `json:"label" yaml:"label"`
	IoU        float64 `json:"iou" yaml:"iou"`
	Correct    bool    `json:"correct" yaml:"correct"`
	TruthBoxes int     `json:"truth_boxes" yaml:"truthboxes"`
	UserBoxes  int     `json:"user_boxes" yaml:"userboxes"`
}

// NonlocalizableResult is the grade for one presence toggle.
type NonlocalizableResult struct {
	Label    string `json:"label" yaml:"label"`
	Present  bool   `json:"present" yaml:"present"`
	Selected bool   `json:"selected" yaml:"selected"`
	Correct  bool   `json:"correct" yaml:"correct"`
}

// Counts are the correct and incorrect outcomes of one case.
type Counts struct {
	Correct   int `json:"correct" yaml:"correct"`
	Incorrect int `json:"incorrect" yaml:"incorrect"`
}

// ScoreLocalizable grades one label by aggregate IoU: intersections are summed
// over every (truth, user) pair, so overlapping boxes on either side all
// contribute. The second return is false when both sets are empty and the label
// is not scored.
func ScoreLocalizable(label string, truth, user []Rect) (LocalizableResult, bool) {
	if len(truth) == 0 && len(user) == 0 {
		return LocalizableResult{}, false
	}

	var inter, truthArea, userArea float64
	for _, t := range truth {
		truthArea += Area(t)
		for _, u := range user {
			inter += IntersectionArea(t, u)
		}
	}
	for _, u := range user {
		userArea += Area(u)
	}

	union := math.Max(truthArea+userArea-inter, unionEpsilon)
	iou := inter / union
	return LocalizableResult{
		Label:      label,
		IoU:        iou,
		Correct:    iou >= IoUThreshold,
		TruthBoxes: len(truth),
		UserBoxes:  len(user),
	}, true
}

// ScoreNonlocalizable grades a presence toggle. It is correct only when the
// finding is present and selected; a label neither present nor selected is
// not scored.
func ScoreNonlocalizable(label string, present, selected bool) (NonlocalizableResult, bool) {
	if !present && !selected {
		return NonlocalizableResult{}, false
	}
	return NonlocalizableResult{
		Label:    label,
		Present:  present,
		Selected: selected,
		Correct:  present == selected,
	}, true
}

// Aggregate sums the outcomes of every scored label of one case.
func Aggregate(loc []LocalizableResult, non []NonlocalizableResult) Counts {
	var c Counts
	for _, r := range loc {
		if r.Correct {
			c.Correct++
		} else {
			c.Incorrect++
		}
	}
	for _, r := range non {
		if r.Correct {
			c.Correct++
		} else {
			c.Incorrect++
		}
	}
	return c
}

// GroundTruth is the authoritative annotation of one image. Boxes are
// normalized; Present marks nonlocalizable findings.
type GroundTruth struct {
	CaseID  string            `json:"case_id"`
	ImageID string            `json:"image_id,omitempty"`
	Boxes   map[string][]Rect `json:"boxes"`
	Present map[string]bool   `json:"present"`
}

// IsPresent reports whether label is flagged present for this case. Boxes do
// not count; localizable findings are graded by IoU instead.
func (g GroundTruth) IsPresent(label string) bool {
	return g.Present[label]
}

// UserBox is a drawn box. LabelIndex points into Labels.Localizable and Rect
// is in canvas pixels.
type UserBox struct {
	LabelIndex int  `json:"label_index"`
	Rect       Rect `json:"rect"`
}

// Submission is everything the user entered for one case.
type Submission struct {
	Boxes      []UserBox       `json:"boxes"`
	Selections map[string]bool `json:"selections"`
}

// CaseScore is the full grade of one case.
type CaseScore struct {
	Localizable    []LocalizableResult    `json:"localizable"`
	Nonlocalizable []NonlocalizableResult `json:"nonlocalizable"`
	Counts         Counts                 `json:"counts"`
}

// GroupUserBoxes maps each drawn box to its label. Boxes whose index is out of
// range are dropped.
func GroupUserBoxes(labels Labels, boxes []UserBox) map[string][]Rect {
	byLabel := make(map[string][]Rect)
	for _, b := range boxes {
		if b.LabelIndex < 0 || b.LabelIndex >= len(labels.Localizable) {
			slog.Warn("Ignoring box with unknown label index", "index", b.LabelIndex)
			continue
		}
		label := labels.Localizable[b.LabelIndex]
		byLabel[label] = append(byLabel[label], b.Rect.Canonical())
	}
	return byLabel
}

// ScoreCase grades every localizable label (ground truth scaled to the canvas)
// and every nonlocalizable label, in label-list order.
func ScoreCase(labels Labels, canvas Canvas, gt GroundTruth, sub Submission) CaseScore {
	user := GroupUserBoxes(labels, sub.Boxes)

	var score CaseScore
	for _, label := range labels.Localizable {
		truth := make([]Rect, 0, len(gt.Boxes[label]))
		for _, r := range gt.Boxes[label] {
			truth = append(truth, r.ToPixels(canvas))
		}
		if res, ok := ScoreLocalizable(label, truth, user[label]); ok {
			score.Localizable = append(score.Localizable, res)
		}
	}
	for _, label := range labels.Nonlocalizable {
		if res, ok := ScoreNonlocalizable(label, gt.IsPresent(label), sub.Selections[label]); ok {
			score.Nonlocalizable = append(score.Nonlocalizable, res)
		}
	}
	score.Counts = Aggregate(score.Localizable, score.Nonlocalizable)
	return score
}
