package kb

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sweetpotato0/physio-agent/agent"
	"github.com/sweetpotato0/physio-agent/message"
)

// Annotation decisions produced per chunk.
const (
	DecisionEmbed     = "embed"
	DecisionMergeNext = "merge_next"
	DecisionSkip      = "skip"
)

// Annotation is the model's clinical analysis of a single text chunk.
type Annotation struct {
	Decision     string   `json:"decision"`
	MuscleGroups []string `json:"muscle_groups"`
	Conditions   []string `json:"conditions"`
	Exercises    []string `json:"exercises"`
	ContentType  string   `json:"content_type"`
	Summary      string   `json:"summary"`
}

const annotateSystemPrompt = `You are a physical therapy clinical expert analyzing text chunks for a retrieval knowledge base.

DECISION:
- "embed" if the text contains useful, self-contained clinical or educational information
- "merge_next" if the text is an incomplete thought that needs the following chunk for context (e.g., a heading alone, a sentence fragment, an incomplete list)
- "skip" if the text is filler: table of contents entries, standalone figure/image references, page numbers, headers without content, repeated metadata

MUSCLE GROUPS - tag with ONLY these exact values (use multiple if applicable):
%s

CONTENT TYPE - classify as exactly one of:
- exercise_technique: how to perform an exercise, form cues, technique descriptions
- rehab_protocol: treatment plans, rehabilitation progressions, recovery timelines
- pathology: condition descriptions, injury mechanisms, diagnostic criteria
- assessment: clinical tests, ROM measurements, strength testing methods
- anatomy: structural descriptions, muscle origins/insertions, biomechanics
- training_principles: programming, periodization, load management, general training guidelines
- reference_data: norms tables, ranges, statistical data

CONDITIONS: Extract any clinical conditions, injuries, or diagnoses mentioned (free-form, lowercase).
EXERCISES: Extract any specific exercises mentioned (free-form, lowercase).
SUMMARY: One concise sentence summarizing the chunk content.

Respond with a single JSON object: {"decision": "...", "muscle_groups": [...], "conditions": [...], "exercises": [...], "content_type": "...", "summary": "..."}`

// Annotator classifies chunks with an LLM, deciding whether each is worth
// embedding and extracting the clinical metadata used by filtered search.
type Annotator struct {
	llm         agent.Provider
	model       string
	temperature float64
}

// AnnotatorOption customizes the annotator.
type AnnotatorOption func(*Annotator)

// WithAnnotatorModel sets the model used for chunk analysis.
func WithAnnotatorModel(model string) AnnotatorOption {
	return func(a *Annotator) {
		if model != "" {
			a.model = model
		}
	}
}

// NewAnnotator creates an annotator backed by the given provider.
func NewAnnotator(llm agent.Provider, opts ...AnnotatorOption) *Annotator {
	a := &Annotator{
		llm:         llm,
		temperature: 0,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// Annotate analyzes one chunk of text. The returned annotation always has a
// valid decision, content type, and muscle group list; values outside the
// canonical vocabularies are dropped or defaulted rather than propagated.
func (a *Annotator) Annotate(ctx context.Context, text string) (*Annotation, error) {
	if a.llm == nil {
		return nil, fmt.Errorf("annotator LLM is not configured")
	}

	systemPrompt := fmt.Sprintf(annotateSystemPrompt, strings.Join(MuscleGroups, ", "))
	messages := []*message.Message{
		message.NewMessage(message.RoleSystem, systemPrompt),
		message.NewMessage(message.RoleUser, text),
	}

	resp, err := a.llm.Generate(ctx, &agent.GenerateRequest{
		Model:       a.model,
		Messages:    messages,
		Temperature: a.temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("annotate chunk: %w", err)
	}
	if resp == nil {
		return nil, fmt.Errorf("annotator returned empty response")
	}

	ann, err := decodeJSON[Annotation](resp.Content)
	if err != nil {
		return nil, fmt.Errorf("annotator output invalid: %w", err)
	}

	normalizeAnnotation(ann)
	if ann.Decision == "" {
		return nil, fmt.Errorf("annotator produced unknown decision")
	}
	return ann, nil
}

// normalizeAnnotation enforces the canonical vocabularies in place.
func normalizeAnnotation(ann *Annotation) {
	switch ann.Decision {
	case DecisionEmbed, DecisionMergeNext, DecisionSkip:
	default:
		ann.Decision = ""
	}

	if !ValidContentType(ann.ContentType) {
		ann.ContentType = ContentTrainingPrinciples
	}

	groups := ann.MuscleGroups[:0]
	for _, g := range ann.MuscleGroups {
		g = strings.ToLower(strings.TrimSpace(g))
		if ValidMuscleGroup(g) {
			groups = append(groups, g)
		}
	}
	ann.MuscleGroups = groups

	ann.Conditions = lowerAll(ann.Conditions)
	ann.Exercises = lowerAll(ann.Exercises)
}

func lowerAll(values []string) []string {
	out := values[:0]
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

// decodeJSON tries to unmarshal the raw model output into T after stripping fences.
func decodeJSON[T any](raw string) (*T, error) {
	clean := sanitizeJSON(raw)
	var out T
	if err := json.Unmarshal([]byte(clean), &out); err != nil {
		return nil, fmt.Errorf("decode JSON: %w", err)
	}
	return &out, nil
}

func sanitizeJSON(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = trimmed[3:]
		trimmed = strings.TrimPrefix(trimmed, "json")
		trimmed = strings.TrimPrefix(trimmed, "JSON")
		if idx := strings.Index(trimmed, "```"); idx >= 0 {
			trimmed = trimmed[:idx]
		}
	}
	return strings.TrimSpace(trimmed)
}
