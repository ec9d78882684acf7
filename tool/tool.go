package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/sweetpotato0/physio-agent/errors"
)

// Kind classifies how the dispatcher treats a tool.
type Kind int

const (
	// KindInternal tools execute locally and feed their result back to the model.
	KindInternal Kind = iota
	// KindAction tools have no local effect: the call is recorded for the client
	// and acknowledged to the model with a synthetic result.
	KindAction
)

// String returns the lowercase name of the kind.
func (k Kind) String() string {
	switch k {
	case KindAction:
		return "action"
	default:
		return "internal"
	}
}

// Notice is a progress notification published by a streaming tool while it
// runs, surfaced to the caller as nested progress events.
type Notice struct {
	Tool  string `json:"tool"`
	Label string `json:"label"`
}

// Parameter defines a tool parameter
type Parameter struct {
	Name        string      `json:"name"`
	Type        string      `json:"type"` // string, number, boolean, object, array
	Description string      `json:"description"`
	Required    bool        `json:"required"`
	Enum        []string    `json:"enum,omitempty"`
	Default     interface{} `json:"default,omitempty"`
	Items       *Parameter  `json:"items,omitempty"` // Element schema for array parameters
}

// Tool represents a callable tool/function
type Tool struct {
	Name        string      `json:"name"`
	Kind        Kind        `json:"kind"`
	Label       string      `json:"label"` // Human-readable progress label
	Description string      `json:"description"`
	Parameters  []Parameter `json:"parameters"`

	Handler func(context.Context, map[string]interface{}) (string, error) `json:"-"`

	// StreamHandler, when set, is used instead of Handler and may publish
	// progress notices while it runs. The notify channel is owned by the
	// caller; sends must never block the handler.
	StreamHandler func(context.Context, map[string]interface{}, chan<- Notice) (string, error) `json:"-"`
}

// Streams reports whether the tool publishes progress notices while running.
func (t *Tool) Streams() bool {
	return t.StreamHandler != nil
}

// Execute runs the tool with given arguments
func (t *Tool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	if t.Handler == nil {
		return "", fmt.Errorf("tool %s has no handler", t.Name)
	}

	// Validate required parameters
	if err := t.ValidateArgs(args); err != nil {
		return "", fmt.Errorf("invalid arguments: %w", err)
	}

	return t.Handler(ctx, args)
}

// ExecuteStream runs a streaming tool, forwarding progress notices to notify.
func (t *Tool) ExecuteStream(ctx context.Context, args map[string]interface{}, notify chan<- Notice) (string, error) {
	if t.StreamHandler == nil {
		return "", fmt.Errorf("tool %s has no stream handler", t.Name)
	}

	if err := t.ValidateArgs(args); err != nil {
		return "", fmt.Errorf("invalid arguments: %w", err)
	}

	return t.StreamHandler(ctx, args, notify)
}

// ValidateArgs validates the provided arguments against the tool's parameters
func (t *Tool) ValidateArgs(args map[string]interface{}) error {
	for _, param := range t.Parameters {
		if param.Required {
			if _, ok := args[param.Name]; !ok {
				return fmt.Errorf("missing required parameter: %s", param.Name)
			}
		}
	}
	return nil
}

// ToJSONSchema returns the tool definition in JSON schema format for LLM
func (t *Tool) ToJSONSchema() map[string]interface{} {
	properties := make(map[string]interface{})
	required := make([]string, 0)

	for _, param := range t.Parameters {
		prop := map[string]interface{}{
			"type":        param.Type,
			"description": param.Description,
		}
		if len(param.Enum) > 0 {
			prop["enum"] = param.Enum
		}
		if param.Default != nil {
			prop["default"] = param.Default
		}
		if param.Items != nil {
			items := map[string]interface{}{"type": param.Items.Type}
			if len(param.Items.Enum) > 0 {
				items["enum"] = param.Items.Enum
			}
			prop["items"] = items
		}
		properties[param.Name] = prop

		if param.Required {
			required = append(required, param.Name)
		}
	}

	return map[string]interface{}{
		"type": "function",
		"function": map[string]interface{}{
			"name":        t.Name,
			"description": t.Description,
			"parameters": map[string]interface{}{
				"type":       "object",
				"properties": properties,
				"required":   required,
			},
		},
	}
}

// Registry manages a collection of tools
// All operations are thread-safe using RWMutex protection
type Registry struct {
	mu    sync.RWMutex // Protects tools map
	tools map[string]*Tool
}

// NewRegistry creates a new tool registry
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]*Tool),
	}
}

// Register adds a tool to the registry
func (r *Registry) Register(tool *Tool) error {
	if tool == nil || tool.Name == "" {
		return fmt.Errorf("register: %w: tool name cannot be empty", errors.ErrInvalidInput)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[tool.Name]; exists {
		return fmt.Errorf("register %s: %w", tool.Name, errors.ErrAlreadyExists)
	}
	r.tools[tool.Name] = tool
	return nil
}

// Upsert adds or replaces a tool definition in the registry.
func (r *Registry) Upsert(tool *Tool) error {
	if tool == nil || tool.Name == "" {
		return fmt.Errorf("upsert: %w: tool name cannot be empty", errors.ErrInvalidInput)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.tools == nil {
		r.tools = make(map[string]*Tool)
	}
	r.tools[tool.Name] = tool
	return nil
}

// Get retrieves a tool by name
func (r *Registry) Get(name string) (*Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tool, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("tool %s: %w", name, errors.ErrToolNotFound)
	}
	return tool, nil
}

// List returns all registered tools sorted by name.
func (r *Registry) List() []*Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tools := make([]*Tool, 0, len(r.tools))
	for _, tool := range r.tools {
		tools = append(tools, tool)
	}
	sort.Slice(tools, func(i, j int) bool { return tools[i].Name < tools[j].Name })
	return tools
}

// Declarations returns all tools in JSON schema format, sorted by name. The
// same declarations are sent to the model on every turn of a conversation.
func (r *Registry) Declarations() []map[string]interface{} {
	tools := r.List()
	schemas := make([]map[string]interface{}, 0, len(tools))
	for _, tool := range tools {
		schemas = append(schemas, tool.ToJSONSchema())
	}
	return schemas
}

// Execute runs a tool by name with given arguments
func (r *Registry) Execute(ctx context.Context, name string, args map[string]interface{}) (string, error) {
	tool, err := r.Get(name)
	if err != nil {
		return "", err
	}
	return tool.Execute(ctx, args)
}

// MarshalJSON customizes JSON marshaling for Registry
func (r *Registry) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Declarations())
}
