package scoring

import (
	"fmt"
	"math"
	"strings"
)

// Labels are the graded label lists. A UserBox indexes into Localizable.
type Labels struct {
	Localizable    []string `json:"localizable" yaml:"localizable" toml:"localizable"`
	Nonlocalizable []string `json:"nonlocalizable" yaml:"nonlocalizable" toml:"nonlocalizable"`
}

// DefaultLabels returns the chest radiograph label set, sorted.
func DefaultLabels() Labels {
	return Labels{
		Localizable: []string{
			"Atelectasis/Fibrotic band",
			"Bone density abnormality/lesion",
			"Consolidation",
			"Device/Foreign body",
			"Fracture",
			"Hiatal hernia",
			"Increased density",
			"Interstitial pattern",
			"Nodule/Mass",
			"Pleural thickening",
			"Postoperative change",
			"Spinal curvature abnormality",
		},
		Nonlocalizable: []string{
			"Cardiomegaly",
			"Hilar enlargement",
			"Hyperinflation",
			"Pleural effusion",
			"Pneumothorax",
			"Scoliosis",
		},
	}
}

// IsNonlocalizable reports whether label is graded by toggle.
func (l Labels) IsNonlocalizable(label string) bool {
	for _, n := range l.Nonlocalizable {
		if n == label {
			return true
		}
	}
	return false
}

// Index returns the position of label in Localizable, or -1.
func (l Labels) Index(label string) int {
	for i, n := range l.Localizable {
		if n == label {
			return i
		}
	}
	return -1
}

// labelGroups folds source dataset finding names onto the graded labels.
// An empty value drops the finding.
var labelGroups = map[string]string{
	"atelectasis":                     "Atelectasis/Fibrotic band",
	"fibrotic band":                   "Atelectasis/Fibrotic band",
	"cardiomegaly":                    "Cardiomegaly",
	"enlarged cardiomediastinum":      "Cardiomegaly",
	"consolidation":                   "Consolidation",
	"edema":                           "Consolidation",
	"infiltration":                    "Consolidation",
	"lung opacity":                    "Consolidation",
	"pneumonia":                       "Consolidation",
	"lung lesion":                     "Nodule/Mass",
	"nodule":                          "Nodule/Mass",
	"mass":                            "Nodule/Mass",
	"pleural effusion":                "Pleural effusion",
	"pleural other":                   "Pleural thickening",
	"pleural thickening":              "Pleural thickening",
	"pneumothorax":                    "Pneumothorax",
	"support devices":                 "Device/Foreign body",
	"device/foreign body":             "Device/Foreign body",
	"fracture":                        "Fracture",
	"no finding":                      "",
	"scoliosis":                       "Scoliosis",
	"hyperinflation":                  "Hyperinflation",
	"hilar enlargement":               "Hilar enlargement",
	"postoperative change":            "Postoperative change",
	"increased density":               "Increased density",
	"hiatal hernia":                   "Hiatal hernia",
	"interstitial pattern":            "Interstitial pattern",
	"bone density abnormality/lesion": "Bone density abnormality/lesion",
	"spinal curvature abnormality":    "Spinal curvature abnormality",
}

// CanonicalLabel maps a dataset finding name to its graded label. Unknown
// names pass through trimmed; "No Finding" maps to "".
func CanonicalLabel(name string) string {
	trimmed := strings.TrimSpace(name)
	if mapped, ok := labelGroups[strings.ToLower(trimmed)]; ok {
		return mapped
	}
	return trimmed
}

// LabelColor is the display colour of label idx out of n, evenly spaced hues.
func LabelColor(idx, n int) string {
	hue := int(math.Round(360 * float64(idx) / float64(max(n, 1))))
	return fmt.Sprintf("hsla(%d, 70%%, 65%%, 0.8)", hue)
}
