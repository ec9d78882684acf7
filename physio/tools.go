package physio

import (
	"context"
	"fmt"
	"strings"

	"github.com/sweetpotato0/physio-agent/kb"
	"github.com/sweetpotato0/physio-agent/patient"
	"github.com/sweetpotato0/physio-agent/research"
	"github.com/sweetpotato0/physio-agent/tool"
)

// DefaultSearchTopK is the per-search result count when the model does not
// ask for a specific top_k.
const DefaultSearchTopK = 5

// ToolsetConfig wires the domain toolset. Retriever backs the search tools,
// Patient backs get_patient_muscle_context (falling back to the process
// default client when nil), Research backs the research tool.
type ToolsetConfig struct {
	Retriever *kb.Retriever
	Patient   patient.Client
	Research  *research.Agent
	Anatomy   *Anatomy
}

// Toolset builds the assistant's tools: the knowledge and patient tools that
// run locally, and the body-model action tools the client executes.
func Toolset(cfg ToolsetConfig) []*tool.Tool {
	if cfg.Anatomy == nil {
		cfg.Anatomy = DefaultAnatomy()
	}
	tools := []*tool.Tool{
		searchKnowledgeBaseTool(cfg.Retriever),
		searchByMuscleGroupTool(cfg.Retriever),
		searchByConditionTool(cfg.Retriever),
		searchByContentTypeTool(cfg.Retriever),
		searchByExerciseTool(cfg.Retriever),
		patientContextTool(cfg.Patient, cfg.Anatomy),
	}
	if cfg.Research != nil {
		tools = append(tools, researchTool(cfg.Research))
	}
	return append(tools, ActionTools()...)
}

func searchKnowledgeBaseTool(r *kb.Retriever) *tool.Tool {
	return &tool.Tool{
		Name:  "search_knowledge_base",
		Kind:  tool.KindInternal,
		Label: "Searching knowledge base",
		Description: "Search the physical therapy knowledge base for clinical evidence. " +
			"Use for general questions about treatments, exercises, protocols, or evidence.",
		Parameters: []tool.Parameter{
			{Name: "query", Type: "string", Description: "Natural language search query.", Required: true},
			{Name: "top_k", Type: "number", Description: "Number of results (default 5)."},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			if r == nil {
				return "", fmt.Errorf("knowledge base is not configured")
			}
			results, err := r.Search(ctx, argString(args, "query"), argTopK(args), nil)
			if err != nil {
				return "", err
			}
			return kb.FormatResults(results), nil
		},
	}
}

func searchByMuscleGroupTool(r *kb.Retriever) *tool.Tool {
	return &tool.Tool{
		Name:  "search_by_muscle_group",
		Kind:  tool.KindInternal,
		Label: "Searching by muscle group",
		Description: "Search for content related to a specific muscle group. " +
			"Valid groups: " + strings.Join(kb.MuscleGroups, ", ") + ".",
		Parameters: []tool.Parameter{
			{Name: "muscle_group", Type: "string", Description: "One of the 17 muscle group names.", Required: true},
			{Name: "top_k", Type: "number", Description: "Number of results (default 5)."},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			if r == nil {
				return "", fmt.Errorf("knowledge base is not configured")
			}
			group := argString(args, "muscle_group")
			results, err := r.SearchMuscleGroup(ctx, group, argTopK(args))
			if err != nil {
				return "", err
			}
			if len(results) == 0 {
				return fmt.Sprintf("No results found for muscle group: %s", group), nil
			}
			return kb.FormatResults(results), nil
		},
	}
}

func searchByConditionTool(r *kb.Retriever) *tool.Tool {
	return &tool.Tool{
		Name:  "search_by_condition",
		Kind:  tool.KindInternal,
		Label: "Searching by condition",
		Description: "Search for evidence related to a clinical condition or diagnosis. " +
			"Use for condition-specific protocols, rehabilitation guidelines, or treatment evidence.",
		Parameters: []tool.Parameter{
			{Name: "condition", Type: "string", Description: `Condition or diagnosis (e.g., "ACL tear", "frozen shoulder").`, Required: true},
			{Name: "top_k", Type: "number", Description: "Number of results (default 5)."},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			if r == nil {
				return "", fmt.Errorf("knowledge base is not configured")
			}
			condition := argString(args, "condition")
			results, err := r.SearchCondition(ctx, condition, argTopK(args))
			if err != nil {
				return "", err
			}
			if len(results) == 0 {
				return fmt.Sprintf("No results found for condition: %s", condition), nil
			}
			return kb.FormatResults(results), nil
		},
	}
}

func searchByContentTypeTool(r *kb.Retriever) *tool.Tool {
	return &tool.Tool{
		Name:  "search_by_content_type",
		Kind:  tool.KindInternal,
		Label: "Searching by content type",
		Description: "Search within a specific content category. " +
			"Valid types: " + strings.Join(kb.ContentTypes, ", ") + ".",
		Parameters: []tool.Parameter{
			{Name: "content_type", Type: "string", Description: "The content category to filter on.", Required: true},
			{Name: "query", Type: "string", Description: "Search query within that category.", Required: true},
			{Name: "top_k", Type: "number", Description: "Number of results (default 5)."},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			if r == nil {
				return "", fmt.Errorf("knowledge base is not configured")
			}
			contentType := argString(args, "content_type")
			query := argString(args, "query")
			results, err := r.SearchContentType(ctx, contentType, query, argTopK(args))
			if err != nil {
				return "", err
			}
			if len(results) == 0 {
				return fmt.Sprintf("No results found for content type '%s' with query '%s'", contentType, query), nil
			}
			return kb.FormatResults(results), nil
		},
	}
}

func searchByExerciseTool(r *kb.Retriever) *tool.Tool {
	return &tool.Tool{
		Name:        "search_by_exercise",
		Kind:        tool.KindInternal,
		Label:       "Searching exercise database",
		Description: "Search for information about a specific exercise.",
		Parameters: []tool.Parameter{
			{Name: "exercise", Type: "string", Description: `Exercise name (e.g., "bench press", "shoulder external rotation").`, Required: true},
			{Name: "top_k", Type: "number", Description: "Number of results (default 5)."},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			if r == nil {
				return "", fmt.Errorf("knowledge base is not configured")
			}
			exercise := argString(args, "exercise")
			results, err := r.SearchExercise(ctx, exercise, argTopK(args))
			if err != nil {
				return "", err
			}
			if len(results) == 0 {
				return fmt.Sprintf("No results found for exercise: %s", exercise), nil
			}
			return kb.FormatResults(results), nil
		},
	}
}

func patientContextTool(client patient.Client, anatomy *Anatomy) *tool.Tool {
	return &tool.Tool{
		Name:  "get_patient_muscle_context",
		Kind:  tool.KindInternal,
		Label: "Loading patient data",
		Description: "Get the current patient's muscle states from the database. " +
			"Use to understand the patient's musculoskeletal status before recommendations.",
		Parameters: []tool.Parameter{
			{Name: "body_id", Type: "string", Description: "The patient's body ID.", Required: true},
			{Name: "muscle_group", Type: "string", Description: "Optional muscle group filter."},
			{Name: "mesh_id", Type: "string", Description: "Optional specific muscle mesh ID."},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			c := client
			if c == nil {
				c = patient.Default()
			}
			if c == nil {
				return "", fmt.Errorf("patient database is not configured")
			}
			muscles, err := c.MusclesByBody(ctx, argString(args, "body_id"))
			if err != nil {
				return "", fmt.Errorf("load patient muscles: %w", err)
			}
			return patient.FormatMuscles(muscles, argString(args, "mesh_id"), argString(args, "muscle_group"), anatomy), nil
		},
	}
}

func researchTool(agent *research.Agent) *tool.Tool {
	return &tool.Tool{
		Name:  "research",
		Kind:  tool.KindInternal,
		Label: "Researching",
		Description: "Run a research sub-agent that autonomously searches the clinical knowledge " +
			"base with multiple strategies and synthesizes the evidence. Use before making " +
			"clinical recommendations.",
		Parameters: []tool.Parameter{
			{Name: "query", Type: "string", Description: "The clinical question to research.", Required: true},
			{Name: "focus", Type: "string", Description: "Optional focus area: a muscle group or a condition."},
		},
		StreamHandler: func(ctx context.Context, args map[string]any, notify chan<- tool.Notice) (string, error) {
			return agent.Run(ctx, argString(args, "query"), argString(args, "focus"), notify)
		},
	}
}

// ActionTools returns the body-model tools. They have no local handler: the
// dispatcher records each call for the client and acknowledges it to the
// model.
func ActionTools() []*tool.Tool {
	return []*tool.Tool{
		{
			Name:  "update_muscle",
			Kind:  tool.KindAction,
			Label: "Updating muscle state",
			Description: "Update a muscle's condition, pain level, strength, mobility, and/or clinical summary. " +
				"Use when you have gathered enough information to assess a specific muscle.",
			Parameters: []tool.Parameter{
				{Name: "meshId", Type: "string", Description: "Exact mesh ID of the muscle. Use _1 suffix for right side.", Required: true},
				{Name: "condition", Type: "string", Description: "Assessed condition.", Enum: Conditions},
				{Name: "pain", Type: "number", Description: "Pain level 0-10"},
				{Name: "strength", Type: "number", Description: "Strength ratio 0-1"},
				{Name: "mobility", Type: "number", Description: "Mobility/ROM ratio 0-1"},
				{Name: "summary", Type: "string", Description: "Clinical summary and recommendations."},
			},
		},
		{
			Name:  "add_knot",
			Kind:  tool.KindAction,
			Label: "Adding trigger point",
			Description: "Add a trigger point, adhesion, or spasm to a muscle. " +
				"Use when the user describes a specific localized point of tension or pain.",
			Parameters: []tool.Parameter{
				{Name: "meshId", Type: "string", Description: "Exact mesh ID of the muscle", Required: true},
				{Name: "severity", Type: "number", Description: "Severity 0-1", Required: true},
				{Name: "type", Type: "string", Description: "Kind of localized finding.", Enum: KnotTypes, Required: true},
			},
		},
		{
			Name:        "create_assessment",
			Kind:        tool.KindAction,
			Label:       "Creating assessment",
			Description: "Create an overall assessment summarizing your findings from this conversation.",
			Parameters: []tool.Parameter{
				{Name: "summary", Type: "string", Description: "Overall assessment summary", Required: true},
				{Name: "structuresAffected", Type: "array", Description: "List of mesh IDs of affected structures",
					Required: true, Items: &tool.Parameter{Type: "string"}},
			},
		},
		{
			Name:  "select_muscles",
			Kind:  tool.KindAction,
			Label: "Selecting muscles",
			Description: "Highlight/select specific muscles on the 3D model. " +
				"Use when the user describes a body area without having selected muscles, " +
				"or to correct a previous selection.",
			Parameters: []tool.Parameter{
				{Name: "meshIds", Type: "array", Description: "Exact mesh IDs to select. Use _1 suffix for right side.",
					Required: true, Items: &tool.Parameter{Type: "string"}},
			},
		},
	}
}

func argString(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return strings.TrimSpace(s)
}

// argTopK reads top_k tolerating the number/integer representations JSON
// decoding produces.
func argTopK(args map[string]any) int {
	switch v := args["top_k"].(type) {
	case float64:
		if v > 0 {
			return int(v)
		}
	case int:
		if v > 0 {
			return v
		}
	}
	return DefaultSearchTopK
}
