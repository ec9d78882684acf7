// Package kb implements the physical therapy knowledge base: document
// ingestion, clinical metadata annotation, vector retrieval with field
// filters, and result formatting for model consumption.
package kb

import (
	"fmt"
	"strings"
)

// Content type categories assigned to every indexed chunk.
const (
	ContentExerciseTechnique  = "exercise_technique"
	ContentRehabProtocol      = "rehab_protocol"
	ContentPathology          = "pathology"
	ContentAssessment         = "assessment"
	ContentAnatomy            = "anatomy"
	ContentTrainingPrinciples = "training_principles"
	ContentReferenceData      = "reference_data"
)

// ContentTypes lists every valid content category.
var ContentTypes = []string{
	ContentExerciseTechnique,
	ContentRehabProtocol,
	ContentPathology,
	ContentAssessment,
	ContentAnatomy,
	ContentTrainingPrinciples,
	ContentReferenceData,
}

// MuscleGroups lists the canonical muscle group vocabulary. Chunk metadata
// and search filters use exactly these values.
var MuscleGroups = []string{
	"neck", "upper_back", "lower_back", "chest", "shoulders",
	"rotator_cuff", "biceps", "triceps", "forearms", "core",
	"hip_flexors", "glutes", "quads", "adductors", "hamstrings",
	"calves", "shins",
}

// ValidContentType reports whether ct is one of the known categories.
func ValidContentType(ct string) bool {
	for _, known := range ContentTypes {
		if ct == known {
			return true
		}
	}
	return false
}

// ValidMuscleGroup reports whether group is in the canonical vocabulary.
func ValidMuscleGroup(group string) bool {
	for _, known := range MuscleGroups {
		if group == known {
			return true
		}
	}
	return false
}

// Result is a single retrieval hit with its clinical metadata payload.
type Result struct {
	ID           string   `json:"id"`
	Score        float32  `json:"score"`
	Text         string   `json:"text"`
	Source       string   `json:"source"`
	MuscleGroups []string `json:"muscle_groups"`
	Conditions   []string `json:"conditions"`
	Exercises    []string `json:"exercises"`
	ContentType  string   `json:"content_type"`
	Summary      string   `json:"summary"`
}

// FormatResults renders retrieval hits into the numbered block format the
// model reads. An empty result set yields "No relevant results found.".
func FormatResults(results []Result) string {
	if len(results) == 0 {
		return "No relevant results found."
	}
	lines := make([]string, 0, len(results))
	for i, r := range results {
		source := r.Source
		if source == "" {
			source = "unknown"
		}
		lines = append(lines, fmt.Sprintf("[%d] (score: %.3f, source: %s)\n%s\n", i+1, r.Score, source, r.Text))
	}
	return strings.Join(lines, "\n")
}
