package cmd

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/lehigh-university-libraries/radtrack/internal/dataset"
	"github.com/lehigh-university-libraries/radtrack/internal/scoring"
)

// submissionFile is what a user drew on one case, in canvas pixels. JSON files
// parse too since JSON is valid YAML.
type submissionFile struct {
	CaseID string `yaml:"case_id"`
	Boxes  []struct {
		Label string       `yaml:"label"`
		Rect  scoring.Rect `yaml:"rect"`
	} `yaml:"boxes"`
	Selections map[string]bool `yaml:"selections"`
}

func loadSubmission(path string, labels scoring.Labels) (string, scoring.Submission, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", scoring.Submission{}, fmt.Errorf("failed to read submission: %w", err)
	}
	var f submissionFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return "", scoring.Submission{}, fmt.Errorf("failed to parse submission %s: %w", path, err)
	}

	sub := scoring.Submission{Selections: map[string]bool{}}
	for _, b := range f.Boxes {
		idx := labels.Index(b.Label)
		if idx < 0 {
			return "", scoring.Submission{}, fmt.Errorf("unknown localizable label %q", b.Label)
		}
		sub.Boxes = append(sub.Boxes, scoring.UserBox{LabelIndex: idx, Rect: b.Rect})
	}
	for label, on := range f.Selections {
		if !labels.IsNonlocalizable(label) {
			return "", scoring.Submission{}, fmt.Errorf("unknown nonlocalizable label %q", label)
		}
		sub.Selections[label] = on
	}
	return f.CaseID, sub, nil
}

// lookupCase finds caseID in the ground-truth file at path.
func lookupCase(path, caseID string) (scoring.GroundTruth, error) {
	if path == "" {
		return scoring.GroundTruth{}, fmt.Errorf("no ground truth file; pass --truth or set server.ground_truth")
	}
	if caseID == "" {
		return scoring.GroundTruth{}, fmt.Errorf("no case id; pass --case or set case_id in the submission")
	}
	set, err := dataset.NewLoader(path).Load()
	if err != nil {
		return scoring.GroundTruth{}, err
	}
	gt, ok := set.Get(caseID)
	if !ok {
		return scoring.GroundTruth{}, fmt.Errorf("case %q not found in %s", caseID, path)
	}
	return gt, nil
}
