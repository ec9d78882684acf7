// Package gemini adapts the Google Generative AI SDK to the agent provider
// contracts. Gemini delivers function calls whole rather than as argument
// fragments; each one becomes a single complete ToolCallDelta.
package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/sweetpotato0/physio-agent/agent"
	"github.com/sweetpotato0/physio-agent/message"
)

// Config holds Gemini provider configuration.
type Config struct {
	APIKey string
	Model  string
}

// DefaultConfig returns default Gemini configuration.
func DefaultConfig(apiKey string) *Config {
	return &Config{
		APIKey: apiKey,
		Model:  "gemini-1.5-flash",
	}
}

// Provider implements agent.StreamProvider and agent.Provider on the
// official SDK.
type Provider struct {
	config *Config
	client *genai.Client
}

// New creates a Gemini provider. The context is used only for client setup.
func New(ctx context.Context, config *Config) (*Provider, error) {
	if config == nil || config.APIKey == "" {
		return nil, fmt.Errorf("gemini API key not configured")
	}
	if config.Model == "" {
		config.Model = "gemini-1.5-flash"
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(config.APIKey))
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	return &Provider{
		config: config,
		client: client,
	}, nil
}

// Close releases the underlying API client.
func (p *Provider) Close() error {
	return p.client.Close()
}

// Stream opens a streaming generation and returns an iterator over its chunks.
func (p *Provider) Stream(ctx context.Context, req *agent.StreamRequest) (agent.Stream, error) {
	if req == nil {
		return nil, fmt.Errorf("stream request cannot be nil")
	}

	model, err := p.buildModel(req.Model, req.Tools, req.MaxTokens, req.Temperature)
	if err != nil {
		return nil, err
	}
	chat, parts, err := buildChat(model, req.Messages)
	if err != nil {
		return nil, err
	}

	return &stream{iter: chat.SendMessageStream(ctx, parts...)}, nil
}

// Generate performs a blocking generation; used by the research agent and
// the ingestion annotator.
func (p *Provider) Generate(ctx context.Context, req *agent.GenerateRequest) (*message.Message, error) {
	if req == nil {
		return nil, fmt.Errorf("generate request cannot be nil")
	}

	model, err := p.buildModel(req.Model, req.Tools, req.MaxTokens, req.Temperature)
	if err != nil {
		return nil, err
	}
	chat, parts, err := buildChat(model, req.Messages)
	if err != nil {
		return nil, err
	}

	resp, err := chat.SendMessage(ctx, parts...)
	if err != nil {
		return nil, fmt.Errorf("gemini API error: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("no candidates returned from gemini")
	}

	msg := message.NewMessage(message.RoleAssistant, "")
	for _, part := range resp.Candidates[0].Content.Parts {
		switch v := part.(type) {
		case genai.Text:
			msg.Content += string(v)
		case genai.FunctionCall:
			args, err := json.Marshal(v.Args)
			if err != nil {
				return nil, fmt.Errorf("marshal function call args: %w", err)
			}
			msg.ToolCalls = append(msg.ToolCalls, message.ToolCall{
				ID:        uuid.NewString(),
				Name:      v.Name,
				Arguments: string(args),
			})
		}
	}
	return msg, nil
}

func (p *Provider) buildModel(name string, tools []map[string]any, maxTokens int64, temperature float64) (*genai.GenerativeModel, error) {
	if name == "" {
		name = p.config.Model
	}
	model := p.client.GenerativeModel(name)
	if temperature > 0 {
		model.SetTemperature(float32(temperature))
	}
	if maxTokens > 0 {
		model.SetMaxOutputTokens(int32(maxTokens))
	}

	if len(tools) > 0 {
		decls, err := functionDeclarations(tools)
		if err != nil {
			return nil, err
		}
		model.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}
	return model, nil
}

// buildChat splits the conversation into chat history and the final turn's
// parts. System messages become the model's system instruction.
func buildChat(model *genai.GenerativeModel, msgs []*message.Message) (*genai.ChatSession, []genai.Part, error) {
	var system []string
	var contents []*genai.Content
	callNames := make(map[string]string)

	for _, msg := range msgs {
		switch msg.Role {
		case message.RoleSystem:
			system = append(system, msg.Content)
		case message.RoleUser:
			contents = append(contents, &genai.Content{
				Role:  "user",
				Parts: []genai.Part{genai.Text(msg.Content)},
			})
		case message.RoleAssistant:
			var parts []genai.Part
			if msg.Content != "" {
				parts = append(parts, genai.Text(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				callNames[tc.ID] = tc.Name
				args := map[string]any{}
				if tc.Arguments != "" {
					// Malformed arguments degrade to an empty map; the turn
					// loop has already answered such calls with an error.
					_ = json.Unmarshal([]byte(tc.Arguments), &args)
				}
				parts = append(parts, genai.FunctionCall{Name: tc.Name, Args: args})
			}
			if len(parts) == 0 {
				parts = []genai.Part{genai.Text("")}
			}
			contents = append(contents, &genai.Content{Role: "model", Parts: parts})
		case message.RoleTool:
			contents = append(contents, &genai.Content{
				Role: "function",
				Parts: []genai.Part{genai.FunctionResponse{
					Name:     callNames[msg.ToolID],
					Response: map[string]any{"result": msg.Content},
				}},
			})
		}
	}

	if len(contents) == 0 {
		return nil, nil, fmt.Errorf("no messages to send")
	}

	if len(system) > 0 {
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(strings.Join(system, "\n\n"))},
		}
	}

	chat := model.StartChat()
	last := contents[len(contents)-1]
	chat.History = contents[:len(contents)-1]
	return chat, last.Parts, nil
}

// functionDeclarations converts OpenAI-format tool schemas to the SDK's
// declaration type.
func functionDeclarations(tools []map[string]any) ([]*genai.FunctionDeclaration, error) {
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		fn, ok := t["function"].(map[string]any)
		if !ok {
			return nil, fmt.Errorf("tool schema missing function block")
		}
		name, _ := fn["name"].(string)
		if name == "" {
			return nil, fmt.Errorf("tool schema missing function name")
		}
		decl := &genai.FunctionDeclaration{
			Name: name,
		}
		if desc, ok := fn["description"].(string); ok {
			decl.Description = desc
		}
		if params, ok := fn["parameters"].(map[string]any); ok {
			decl.Parameters = schemaFromMap(params)
		}
		decls = append(decls, decl)
	}
	return decls, nil
}

func schemaFromMap(raw map[string]any) *genai.Schema {
	schema := &genai.Schema{Type: schemaType(raw["type"])}
	if desc, ok := raw["description"].(string); ok {
		schema.Description = desc
	}
	if props, ok := raw["properties"].(map[string]any); ok {
		schema.Properties = make(map[string]*genai.Schema, len(props))
		for name, prop := range props {
			if propMap, ok := prop.(map[string]any); ok {
				schema.Properties[name] = schemaFromMap(propMap)
			}
		}
	}
	if items, ok := raw["items"].(map[string]any); ok {
		schema.Items = schemaFromMap(items)
	}
	if required, ok := raw["required"].([]string); ok {
		schema.Required = required
	} else if list, ok := raw["required"].([]any); ok {
		for _, item := range list {
			if s, ok := item.(string); ok {
				schema.Required = append(schema.Required, s)
			}
		}
	}
	if enum, ok := raw["enum"].([]string); ok {
		schema.Enum = enum
	} else if list, ok := raw["enum"].([]any); ok {
		for _, item := range list {
			if s, ok := item.(string); ok {
				schema.Enum = append(schema.Enum, s)
			}
		}
	}
	return schema
}

func schemaType(v any) genai.Type {
	s, _ := v.(string)
	switch s {
	case "string":
		return genai.TypeString
	case "number":
		return genai.TypeNumber
	case "integer":
		return genai.TypeInteger
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	case "object":
		return genai.TypeObject
	default:
		return genai.TypeUnspecified
	}
}

// stream adapts the SDK's response iterator. Function calls arrive complete;
// each becomes one fully-formed delta with a synthesized call ID.
type stream struct {
	iter      *genai.GenerateContentResponseIterator
	cur       agent.Chunk
	err       error
	nextIndex int
}

func (s *stream) Next() bool {
	for {
		resp, err := s.iter.Next()
		if err == iterator.Done {
			return false
		}
		if err != nil {
			s.err = err
			return false
		}
		if len(resp.Candidates) == 0 {
			continue
		}

		cand := resp.Candidates[0]
		cur := agent.Chunk{}
		if cand.FinishReason != genai.FinishReasonUnspecified {
			cur.FinishReason = cand.FinishReason.String()
		}
		if cand.Content != nil {
			for _, part := range cand.Content.Parts {
				switch v := part.(type) {
				case genai.Text:
					cur.Content += string(v)
				case genai.FunctionCall:
					args, err := json.Marshal(v.Args)
					if err != nil {
						s.err = fmt.Errorf("marshal function call args: %w", err)
						return false
					}
					cur.ToolCalls = append(cur.ToolCalls, agent.ToolCallDelta{
						Index:     s.nextIndex,
						ID:        uuid.NewString(),
						Name:      v.Name,
						Arguments: string(args),
					})
					s.nextIndex++
				}
			}
		}
		s.cur = cur
		return true
	}
}

func (s *stream) Current() agent.Chunk { return s.cur }

func (s *stream) Err() error { return s.err }

func (s *stream) Close() error { return nil }
