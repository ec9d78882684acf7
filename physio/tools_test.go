package physio

import (
	"context"
	"strings"
	"testing"

	"github.com/sweetpotato0/physio-agent/kb"
	"github.com/sweetpotato0/physio-agent/patient"
	"github.com/sweetpotato0/physio-agent/tool"
	"github.com/sweetpotato0/physio-agent/vector"
)

type stubEmbedder struct{}

func (stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0}, nil
}

func (stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

func (stubEmbedder) Dimension() int { return 2 }

type stubStore struct {
	matches  []vector.Match
	lastTopK int
}

func (s *stubStore) Add(ctx context.Context, embeddings ...*vector.Embedding) error { return nil }

func (s *stubStore) Search(ctx context.Context, query []float32, topK int, filter vector.Filter) ([]vector.Match, error) {
	s.lastTopK = topK
	return s.matches, nil
}

func (s *stubStore) Get(ctx context.Context, id string) (*vector.Embedding, error) { return nil, nil }
func (s *stubStore) Delete(ctx context.Context, id string) error                   { return nil }
func (s *stubStore) Clear(ctx context.Context) error                               { return nil }
func (s *stubStore) Count(ctx context.Context) (int, error)                        { return 0, nil }

type stubPatient struct {
	muscles []patient.MuscleState
	lastID  string
}

func (s *stubPatient) MusclesByBody(ctx context.Context, bodyID string) ([]patient.MuscleState, error) {
	s.lastID = bodyID
	return s.muscles, nil
}

func toolByName(t *testing.T, tools []*tool.Tool, name string) *tool.Tool {
	t.Helper()
	for _, tl := range tools {
		if tl.Name == name {
			return tl
		}
	}
	t.Fatalf("tool %s not in toolset", name)
	return nil
}

func TestToolsetComposition(t *testing.T) {
	store := &stubStore{}
	retriever := kb.NewRetriever(store, stubEmbedder{}, nil)
	tools := Toolset(ToolsetConfig{Retriever: retriever, Patient: &stubPatient{}})

	// Six internal tools plus four action tools; research joins only when a
	// sub-agent is configured.
	if len(tools) != 10 {
		t.Fatalf("expected 10 tools without research, got %d", len(tools))
	}
	for _, name := range []string{"update_muscle", "add_knot", "create_assessment", "select_muscles"} {
		tl := toolByName(t, tools, name)
		if tl.Kind != tool.KindAction {
			t.Errorf("%s should be an action tool", name)
		}
		if tl.Handler != nil || tl.StreamHandler != nil {
			t.Errorf("%s should have no local handler", name)
		}
	}
	for _, name := range []string{"search_knowledge_base", "get_patient_muscle_context"} {
		if tl := toolByName(t, tools, name); tl.Kind != tool.KindInternal {
			t.Errorf("%s should be internal", name)
		}
	}
}

func TestSearchToolEmptyResults(t *testing.T) {
	retriever := kb.NewRetriever(&stubStore{}, stubEmbedder{}, nil)
	tools := Toolset(ToolsetConfig{Retriever: retriever})

	cases := []struct {
		tool string
		args map[string]any
		want string
	}{
		{"search_by_muscle_group", map[string]any{"muscle_group": "glutes"}, "No results found for muscle group: glutes"},
		{"search_by_condition", map[string]any{"condition": "ACL tear"}, "No results found for condition: ACL tear"},
		{"search_by_exercise", map[string]any{"exercise": "squat"}, "No results found for exercise: squat"},
		{"search_by_content_type", map[string]any{"content_type": "pathology", "query": "impingement"},
			"No results found for content type 'pathology' with query 'impingement'"},
		{"search_knowledge_base", map[string]any{"query": "anything"}, "No relevant results found."},
	}
	for _, tc := range cases {
		t.Run(tc.tool, func(t *testing.T) {
			got, err := toolByName(t, tools, tc.tool).Execute(context.Background(), tc.args)
			if err != nil {
				t.Fatalf("Execute: %v", err)
			}
			if got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestSearchToolFormatsHits(t *testing.T) {
	store := &stubStore{matches: []vector.Match{{
		Embedding: &vector.Embedding{
			ID:       "c1",
			Text:     "Scapular stabilization drills reduce impingement symptoms.",
			Metadata: map[string]any{"source": "shoulder_rehab.pdf"},
		},
		Score: 0.91,
	}}}
	retriever := kb.NewRetriever(store, stubEmbedder{}, nil)
	tools := Toolset(ToolsetConfig{Retriever: retriever})

	got, err := toolByName(t, tools, "search_knowledge_base").Execute(context.Background(),
		map[string]any{"query": "shoulder impingement", "top_k": float64(3)})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(got, "source: shoulder_rehab.pdf") {
		t.Errorf("source missing from %q", got)
	}
	if store.lastTopK != 3 {
		t.Errorf("top_k not forwarded, got %d", store.lastTopK)
	}
}

func TestSearchToolRequiresQuery(t *testing.T) {
	retriever := kb.NewRetriever(&stubStore{}, stubEmbedder{}, nil)
	tools := Toolset(ToolsetConfig{Retriever: retriever})

	_, err := toolByName(t, tools, "search_knowledge_base").Execute(context.Background(), map[string]any{})
	if err == nil {
		t.Fatal("expected missing-parameter error")
	}
}

func TestPatientContextTool(t *testing.T) {
	client := &stubPatient{muscles: []patient.MuscleState{
		{MeshID: "Deltoid", Condition: "strained", Pain: 5, Strength: 0.6, Mobility: 0.8},
	}}
	tools := Toolset(ToolsetConfig{Patient: client})
	tl := toolByName(t, tools, "get_patient_muscle_context")

	got, err := tl.Execute(context.Background(), map[string]any{"body_id": "body-7"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if client.lastID != "body-7" {
		t.Errorf("body id not forwarded: %q", client.lastID)
	}
	if !strings.Contains(got, "Patient muscle status (1 affected out of 1 tracked):") {
		t.Errorf("unexpected summary: %q", got)
	}

	grouped, err := tl.Execute(context.Background(), map[string]any{"body_id": "body-7", "muscle_group": "shoulders"})
	if err != nil {
		t.Fatalf("Execute with group: %v", err)
	}
	if !strings.HasPrefix(grouped, "shoulders status") {
		t.Errorf("group filter ignored: %q", grouped)
	}
}

func TestActionToolSchemas(t *testing.T) {
	update := toolByName(t, ActionTools(), "update_muscle")
	schema := update.ToJSONSchema()
	fn := schema["function"].(map[string]any)
	props := fn["parameters"].(map[string]any)["properties"].(map[string]any)

	condition := props["condition"].(map[string]any)
	enum, ok := condition["enum"].([]string)
	if !ok || len(enum) != len(Conditions) {
		t.Errorf("condition enum not carried into schema: %#v", condition)
	}

	assessment := toolByName(t, ActionTools(), "create_assessment")
	aprops := assessment.ToJSONSchema()["function"].(map[string]any)["parameters"].(map[string]any)["properties"].(map[string]any)
	structures := aprops["structuresAffected"].(map[string]any)
	items, ok := structures["items"].(map[string]any)
	if !ok || items["type"] != "string" {
		t.Errorf("structuresAffected items schema missing: %#v", structures)
	}
}
