package patient

import (
	"fmt"
	"strings"
)

// Matcher resolves mesh IDs to muscle groups. The anatomy catalog implements
// it; format helpers stay decoupled from the catalog itself.
type Matcher interface {
	// MeshInGroup reports whether the mesh belongs to the named group.
	MeshInGroup(meshID, group string) bool
	// GroupNames lists the valid group names.
	GroupNames() []string
}

// FormatMuscles renders a patient's muscle states into the summary fed back
// to the model. meshID narrows to one muscle (substring match), group
// narrows to a muscle group; with neither set all affected muscles are
// listed. The returned string is always model-readable prose, never an
// error.
func FormatMuscles(muscles []MuscleState, meshID, group string, anatomy Matcher) string {
	if len(muscles) == 0 {
		return "No muscle data found for this patient."
	}

	if meshID != "" {
		return formatByMesh(muscles, meshID)
	}
	if group != "" {
		return formatByGroup(muscles, group, anatomy)
	}

	issues := affected(muscles)
	if len(issues) == 0 {
		return fmt.Sprintf("Patient has %d tracked muscles, all in healthy condition with no pain reported.", len(muscles))
	}
	lines := []string{fmt.Sprintf("Patient muscle status (%d affected out of %d tracked):", len(issues), len(muscles))}
	for _, m := range issues {
		lines = append(lines, formatMuscle(m))
	}
	return strings.Join(lines, "\n")
}

func formatByMesh(muscles []MuscleState, meshID string) string {
	target := normalizeMesh(meshID)
	var matches []MuscleState
	for _, m := range muscles {
		name := normalizeMesh(m.MeshID)
		if name == target || strings.Contains(name, target) {
			matches = append(matches, m)
		}
	}
	if len(matches) == 0 {
		return fmt.Sprintf("No data found for muscle '%s' on this patient.", meshID)
	}
	lines := []string{fmt.Sprintf("Muscle detail for '%s':", meshID)}
	for _, m := range matches {
		lines = append(lines, formatMuscle(m))
	}
	return strings.Join(lines, "\n")
}

func formatByGroup(muscles []MuscleState, group string, anatomy Matcher) string {
	key := strings.ToLower(strings.TrimSpace(group))
	if anatomy == nil {
		return "No muscle group catalog configured."
	}
	if !contains(anatomy.GroupNames(), key) {
		return fmt.Sprintf("Unknown muscle group '%s'. Valid groups: %s", group, strings.Join(anatomy.GroupNames(), ", "))
	}

	var matches []MuscleState
	for _, m := range muscles {
		if anatomy.MeshInGroup(m.MeshID, key) {
			matches = append(matches, m)
		}
	}
	if len(matches) == 0 {
		return fmt.Sprintf("No tracked muscles in the '%s' group for this patient.", group)
	}

	issues := affected(matches)
	if len(issues) == 0 {
		return fmt.Sprintf("Patient has %d tracked muscles in '%s', all healthy with no pain.", len(matches), group)
	}
	lines := []string{fmt.Sprintf("%s status (%d affected out of %d):", group, len(issues), len(matches))}
	for _, m := range issues {
		lines = append(lines, formatMuscle(m))
	}
	return strings.Join(lines, "\n")
}

func formatMuscle(m MuscleState) string {
	parts := []string{
		fmt.Sprintf("condition=%s", m.Condition),
		fmt.Sprintf("pain=%g/10", m.Pain),
		fmt.Sprintf("strength=%.0f%%", m.Strength*100),
		fmt.Sprintf("mobility=%.0f%%", m.Mobility*100),
	}
	if m.Notes != "" {
		parts = append(parts, fmt.Sprintf("notes=%q", m.Notes))
	}
	if m.Summary != "" {
		parts = append(parts, fmt.Sprintf("summary=%q", m.Summary))
	}
	return fmt.Sprintf("  - %s: %s", m.MeshID, strings.Join(parts, ", "))
}

func affected(muscles []MuscleState) []MuscleState {
	var out []MuscleState
	for _, m := range muscles {
		if m.HasIssues() {
			out = append(out, m)
		}
	}
	return out
}

func normalizeMesh(id string) string {
	return strings.ToLower(strings.ReplaceAll(id, "_", " "))
}

func contains(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}
