package tool

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/sweetpotato0/physio-agent/errors"
)

func TestToolExecution(t *testing.T) {
	ctx := context.Background()

	tool := &Tool{
		Name:        "test_tool",
		Description: "A test tool",
		Parameters: []Parameter{
			{Name: "input", Type: "string", Description: "Test input", Required: true},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (string, error) {
			return args["input"].(string) + "_processed", nil
		},
	}

	result, err := tool.Execute(ctx, map[string]interface{}{"input": "test"})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if result != "test_processed" {
		t.Errorf("Expected 'test_processed', got '%s'", result)
	}
}

func TestToolValidation(t *testing.T) {
	ctx := context.Background()

	tool := &Tool{
		Name:        "test_tool",
		Description: "A test tool",
		Parameters: []Parameter{
			{Name: "required_param", Type: "string", Description: "Required parameter", Required: true},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (string, error) {
			return "ok", nil
		},
	}

	// Test with missing required parameter
	_, err := tool.Execute(ctx, map[string]interface{}{})
	if err == nil {
		t.Error("Expected error for missing required parameter, got nil")
	}

	// Test with required parameter
	_, err = tool.Execute(ctx, map[string]interface{}{"required_param": "value"})
	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
}

func TestKindString(t *testing.T) {
	if KindInternal.String() != "internal" {
		t.Errorf("Expected 'internal', got '%s'", KindInternal.String())
	}
	if KindAction.String() != "action" {
		t.Errorf("Expected 'action', got '%s'", KindAction.String())
	}
}

func TestExecuteStream(t *testing.T) {
	ctx := context.Background()

	tool := &Tool{
		Name:  "research",
		Label: "Researching",
		StreamHandler: func(ctx context.Context, args map[string]interface{}, notify chan<- Notice) (string, error) {
			notify <- Notice{Tool: "search_knowledge_base", Label: "Searching knowledge base"}
			notify <- Notice{Tool: "search_by_condition", Label: "Searching by condition"}
			return "findings", nil
		},
	}

	if !tool.Streams() {
		t.Fatal("Expected StreamHandler tool to report Streams() == true")
	}

	notices := make(chan Notice, 4)
	result, err := tool.ExecuteStream(ctx, map[string]interface{}{}, notices)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if result != "findings" {
		t.Errorf("Expected 'findings', got '%s'", result)
	}
	close(notices)

	var got []Notice
	for n := range notices {
		got = append(got, n)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 notices, got %d", len(got))
	}
	if got[0].Label != "Searching knowledge base" || got[1].Label != "Searching by condition" {
		t.Errorf("Notices out of order: %v", got)
	}

	plain := &Tool{Name: "plain"}
	if plain.Streams() {
		t.Error("Expected plain tool to report Streams() == false")
	}
	if _, err := plain.ExecuteStream(ctx, nil, notices); err == nil {
		t.Error("Expected error for ExecuteStream without StreamHandler")
	}
}

func TestToJSONSchemaArrayItems(t *testing.T) {
	tool := &Tool{
		Name:        "select_muscles",
		Kind:        KindAction,
		Description: "Select muscles on the model",
		Parameters: []Parameter{
			{
				Name:        "meshIds",
				Type:        "array",
				Description: "Mesh IDs to select",
				Required:    true,
				Items:       &Parameter{Type: "string"},
			},
		},
	}

	schema := tool.ToJSONSchema()
	fn := schema["function"].(map[string]interface{})
	params := fn["parameters"].(map[string]interface{})
	props := params["properties"].(map[string]interface{})
	meshIds := props["meshIds"].(map[string]interface{})

	if meshIds["type"] != "array" {
		t.Errorf("Expected array type, got %v", meshIds["type"])
	}
	items, ok := meshIds["items"].(map[string]interface{})
	if !ok {
		t.Fatal("Expected items schema for array parameter")
	}
	if items["type"] != "string" {
		t.Errorf("Expected string items, got %v", items["type"])
	}
	required := params["required"].([]string)
	if len(required) != 1 || required[0] != "meshIds" {
		t.Errorf("Expected required [meshIds], got %v", required)
	}
}

func TestRegistry(t *testing.T) {
	registry := NewRegistry()

	tool1 := &Tool{Name: "tool1", Description: "First tool"}
	tool2 := &Tool{Name: "tool2", Description: "Second tool"}

	// Register tools
	if err := registry.Register(tool1); err != nil {
		t.Fatalf("Failed to register tool1: %v", err)
	}

	if err := registry.Register(tool2); err != nil {
		t.Fatalf("Failed to register tool2: %v", err)
	}

	// Test duplicate registration
	err := registry.Register(tool1)
	if err == nil {
		t.Error("Expected error for duplicate registration, got nil")
	}
	if !stderrors.Is(err, errors.ErrAlreadyExists) {
		t.Errorf("Expected ErrAlreadyExists, got %v", err)
	}

	// Test Get
	retrieved, err := registry.Get("tool1")
	if err != nil {
		t.Fatalf("Failed to get tool1: %v", err)
	}

	if retrieved.Name != "tool1" {
		t.Errorf("Expected tool name 'tool1', got '%s'", retrieved.Name)
	}

	// Unknown lookups carry the sentinel
	if _, err := registry.Get("missing"); !stderrors.Is(err, errors.ErrToolNotFound) {
		t.Errorf("Expected ErrToolNotFound, got %v", err)
	}

	// Test List
	tools := registry.List()
	if len(tools) != 2 {
		t.Errorf("Expected 2 tools, got %d", len(tools))
	}
}

func TestRegistryDeclarationsSorted(t *testing.T) {
	registry := NewRegistry()
	for _, name := range []string{"update_muscle", "add_knot", "search_knowledge_base"} {
		if err := registry.Register(&Tool{Name: name, Description: name}); err != nil {
			t.Fatalf("Failed to register %s: %v", name, err)
		}
	}

	decls := registry.Declarations()
	if len(decls) != 3 {
		t.Fatalf("Expected 3 declarations, got %d", len(decls))
	}

	want := []string{"add_knot", "search_knowledge_base", "update_muscle"}
	for i, decl := range decls {
		fn := decl["function"].(map[string]interface{})
		if fn["name"] != want[i] {
			t.Errorf("Declaration %d: expected %s, got %v", i, want[i], fn["name"])
		}
	}
}
