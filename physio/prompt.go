package physio

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sweetpotato0/physio-agent/patient"
	"github.com/sweetpotato0/physio-agent/prompt"
)

// SystemPrompt is the coordinator prompt. Per-patient context from
// BuildContext is appended to it before each invocation.
const SystemPrompt = `You are an expert physiotherapist AI assistant integrated into a 3D body visualization app. Your role is to help users understand, track, and manage their musculoskeletal issues.

## Your Capabilities
You have two categories of tools:

### Knowledge Tools
- research: A research sub-agent that autonomously searches the clinical knowledge base using multiple strategies (by condition, muscle group, exercise, content type, and general search). Pass a query and optional focus area. Use this before making any clinical recommendations.
- get_patient_muscle_context: Load the patient's current muscle states from the database

### Clinical Action Tools (update the patient's body model)
- select_muscles: Highlight/select specific muscles on the 3D model. Use when the user describes a body area without having selected muscles, or to correct a previous selection.
- update_muscle: Set a muscle's condition, pain, strength, mobility, summary
- add_knot: Record a trigger point, adhesion, or spasm at a specific muscle
- create_assessment: Create an overall clinical assessment

## Your Approach
1. LISTEN to the user's description of pain, tightness, or discomfort
1b. AUTO-SELECT: If the user describes a body area but has NO muscles selected, call select_muscles with the relevant mesh IDs AND provide your text response in the same turn. Do not wait for a separate turn to reply. Do not call select_muscles more than once per user message unless the user explicitly asks to change the selection. For bilateral symptoms include both sides (_1 suffix for right). For vague areas, select a representative set from the relevant muscle group(s).
2. SEARCH the knowledge base when you need clinical evidence -- always search before making clinical recommendations
3. ASK one follow-up question at a time, then wait for the user's reply before asking the next. Cycle through these as needed:
   - Location specificity (which side? upper/lower portion?)
   - Pain character (sharp, dull, burning, aching?)
   - Onset (sudden or gradual? activity-related?)
   - Aggravating/relieving factors
   - Duration and frequency
   - Impact on daily activities or training
   You do NOT need to ask every question -- stop once you have enough to make an assessment.
4. Only AFTER gathering sufficient information, use action tools to update muscle states

## Clinical Reasoning
- Always search the knowledge base before giving clinical recommendations
- Cite specific evidence when available
- Consider referred pain patterns (e.g., upper trap tension causing headaches)
- Think about kinetic chain relationships (e.g., weak glutes -> overactive hip flexors -> lower back pain)
- When multiple muscles could be involved, update all relevant structures
- Be conservative with severity -- start moderate and adjust based on further info
- If information is not found in the knowledge base, say so clearly

## Tool Usage
- Use update_muscle when confident about a muscle's condition. Provide only the fields you can reasonably assess.
- Use create_assessment to summarize findings when you have a comprehensive picture
- ALWAYS explain your reasoning to the user before or alongside tool usage
- Mesh IDs with the _1 suffix = right side. No suffix = left side.
- If the user reports bilateral symptoms, update BOTH sides explicitly with separate update_muscle calls.
- If symptoms are unilateral, update only the affected side even if both sides are selected in the UI.

## Constraints
- You are NOT a replacement for medical advice. For serious injuries, recommend professional evaluation.
- Be conversational and empathetic but efficient. No fluff.
- Do NOT fabricate conditions -- if information is insufficient, ask more questions.
- Only use mesh IDs from the available list provided in context.
- Distinguish between evidence-based recommendations and clinical opinion.

## Response Style
- Concise, clinically informed, approachable
- Use anatomical terms but explain them plainly when first mentioned
- When using tools, briefly explain what you're recording and why`

// BuildSystemPrompt renders the full system prompt for one invocation: the
// coordinator prompt plus the patient context suffix.
func BuildSystemPrompt(snap patient.Snapshot, anatomy *Anatomy) string {
	return SystemPrompt + BuildContext(snap, anatomy)
}

// BuildContext renders the dynamic context appended to the system prompt:
// affected muscle states, body profile, the grouped mesh-ID catalog, the
// selection focus block (or select_muscles guidance when nothing is
// selected), and the active muscle groups.
func BuildContext(snap patient.Snapshot, anatomy *Anatomy) string {
	if anatomy == nil {
		anatomy = DefaultAnatomy()
	}
	b := prompt.NewBuilder()

	writeIssues(b, snap.MuscleStates)
	writeBody(b, snap.Body)
	writeMeshCatalog(b, snap.AvailableMeshIDs, anatomy)
	writeSelection(b, snap)
	writeActiveGroups(b, snap.ActiveGroups)

	return b.Build()
}

func writeIssues(b *prompt.Builder, states []patient.MuscleState) {
	var issues []patient.MuscleState
	for _, m := range states {
		if m.HasIssues() {
			issues = append(issues, m)
		}
	}
	if len(issues) == 0 {
		return
	}
	b.Add("\n\nCurrent muscle states with issues:")
	for _, m := range issues {
		b.Add("\n" + muscleLine(m))
	}
}

func writeBody(b *prompt.Builder, body *patient.BodyInfo) {
	if body == nil {
		return
	}
	var parts []string
	if body.Sex != "" {
		parts = append(parts, "sex="+body.Sex)
	}
	if body.WeightKg > 0 {
		parts = append(parts, fmt.Sprintf("weight=%gkg", body.WeightKg))
	}
	if body.HeightCm > 0 {
		parts = append(parts, fmt.Sprintf("height=%gcm", body.HeightCm))
	}
	if len(parts) > 0 {
		b.AddFormat("\n\nUser body info: %s", strings.Join(parts, ", "))
	}
	if len(body.Equipment) > 0 {
		b.AddFormat("\nAvailable equipment: %s", strings.Join(body.Equipment, ", "))
	}
	if body.FitnessGoals != "" {
		b.AddFormat("\nFitness goal: %s", body.FitnessGoals)
	}
}

func writeMeshCatalog(b *prompt.Builder, available []string, anatomy *Anatomy) {
	b.Add("\n\n## Available Muscle Mesh IDs (use EXACT names)\n" +
		"Organized by muscle group. Use the exact mesh ID strings when calling tools.\n")
	grouped := anatomy.GroupMeshIDs(available)
	for _, group := range anatomy.GroupNames() {
		ids := grouped[group]
		if len(ids) == 0 {
			continue
		}
		b.AddFormat("**%s**: %s\n", GroupLabel(group), jsonList(ids))
	}
	if ungrouped := anatomy.UngroupedMeshIDs(available); len(ungrouped) > 0 {
		b.AddFormat("**Other**: %s\n", jsonList(ungrouped))
	}
}

func writeSelection(b *prompt.Builder, snap patient.Snapshot) {
	if len(snap.SelectedMeshIDs) == 0 {
		b.Add("\n\n## No Muscles Selected\n" +
			"The user has NOT selected any muscles on the 3D model. " +
			"If they describe a body area or pain location, call select_muscles " +
			"with the relevant mesh IDs from the grouped list above and include your " +
			"text response in the same turn.\n" +
			"Use the muscle group headings to find the right mesh IDs for a body area.")
		return
	}

	b.Add("\n\n## Currently Selected Muscles (FOCUS HERE)")
	b.Add("\nThe user has selected these muscles on the 3D model. " +
		"These are your PRIMARY targets -- update them with update_muscle " +
		"when the user describes symptoms:")
	for _, meshID := range snap.SelectedMeshIDs {
		if state, ok := findState(snap.MuscleStates, meshID); ok {
			b.Add("\n" + muscleLine(state))
		} else {
			b.AddFormat("\n- %s: (no data yet)", meshID)
		}
	}
}

func writeActiveGroups(b *prompt.Builder, groups []string) {
	if len(groups) == 0 {
		return
	}
	labels := make([]string, 0, len(groups))
	for _, g := range groups {
		labels = append(labels, GroupLabel(g))
	}
	b.Add("\n\n## Active Muscle Groups")
	b.AddFormat("\nThe user is currently focused on these muscle groups in the 3D model: %s", strings.Join(labels, ", "))
	b.Add("\nWhen the user describes symptoms without naming specific muscles, " +
		"use the mesh IDs from these groups for select_muscles and update_muscle.")
}

func muscleLine(m patient.MuscleState) string {
	parts := []string{
		"condition=" + m.Condition,
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
	return fmt.Sprintf("- %s: %s", m.MeshID, strings.Join(parts, ", "))
}

func findState(states []patient.MuscleState, meshID string) (patient.MuscleState, bool) {
	for _, m := range states {
		if m.MeshID == meshID {
			return m, true
		}
	}
	return patient.MuscleState{}, false
}

func jsonList(values []string) string {
	data, err := json.Marshal(values)
	if err != nil {
		return "[]"
	}
	return string(data)
}
