// Package claude adapts the Anthropic SDK to the agent provider contracts.
// Tool-call ids and names arrive on content_block_start and argument
// fragments on input_json_delta; both are forwarded keyed by the content
// block index, which the turn loop uses to reassemble calls.
package claude

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/param"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"
	"github.com/sweetpotato0/physio-agent/agent"
	"github.com/sweetpotato0/physio-agent/message"
)

// Config holds Claude provider configuration.
type Config struct {
	APIKey    string
	Model     string
	BaseURL   string
	MaxTokens int64
}

// DefaultConfig returns default Claude configuration.
func DefaultConfig(apiKey, baseURL string) *Config {
	return &Config{
		APIKey:    apiKey,
		BaseURL:   baseURL,
		Model:     "claude-3-5-sonnet-20241022",
		MaxTokens: 4096,
	}
}

// Provider implements agent.StreamProvider and agent.Provider for Claude.
type Provider struct {
	config *Config
	client anthropic.Client
}

// New creates a new Claude provider using the official SDK.
func New(config *Config) *Provider {
	if config.Model == "" {
		config.Model = "claude-sonnet-4-5-20250929"
	}
	if config.MaxTokens <= 0 {
		config.MaxTokens = 4096
	}

	options := []option.RequestOption{
		option.WithAPIKey(config.APIKey),
		option.WithAuthToken(""),
	}
	if config.BaseURL != "" {
		options = append(options, option.WithBaseURL(config.BaseURL))
	}

	client := anthropic.NewClient(options...)

	return &Provider{
		config: config,
		client: client,
	}
}

// Stream opens a streaming message request.
func (p *Provider) Stream(ctx context.Context, req *agent.StreamRequest) (agent.Stream, error) {
	if req == nil {
		return nil, fmt.Errorf("stream request cannot be nil")
	}

	params, err := p.buildParams(req.Model, req.Messages, req.Tools, req.MaxTokens, req.Temperature)
	if err != nil {
		return nil, err
	}

	return &stream{inner: p.client.Messages.NewStreaming(ctx, *params)}, nil
}

// Generate performs a blocking message request.
func (p *Provider) Generate(ctx context.Context, req *agent.GenerateRequest) (*message.Message, error) {
	if req == nil {
		return nil, fmt.Errorf("generate request cannot be nil")
	}

	params, err := p.buildParams(req.Model, req.Messages, req.Tools, req.MaxTokens, req.Temperature)
	if err != nil {
		return nil, err
	}

	apiMessage, err := p.client.Messages.New(ctx, *params)
	if err != nil {
		return nil, fmt.Errorf("Claude API error: %w", err)
	}

	var responseText string
	var toolCalls []message.ToolCall
	for _, content := range apiMessage.Content {
		switch content.Type {
		case "text":
			responseText += content.Text
		case "tool_use":
			toolCalls = append(toolCalls, message.ToolCall{
				ID:        content.ID,
				Name:      content.Name,
				Arguments: string(content.Input),
			})
		}
	}

	msg := message.NewMessage(message.RoleAssistant, responseText)
	msg.ToolCalls = toolCalls
	return msg, nil
}

func (p *Provider) buildParams(model string, msgs []*message.Message, tools []map[string]any, maxTokens int64, temperature float64) (*anthropic.MessageNewParams, error) {
	systemText, conversation := encodeMessages(msgs)

	if model == "" {
		model = p.config.Model
	}
	if maxTokens <= 0 {
		maxTokens = p.config.MaxTokens
	}

	params := &anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		Messages:  conversation,
		MaxTokens: maxTokens,
	}
	if systemText != "" {
		params.System = []anthropic.TextBlockParam{{Text: systemText}}
	}
	if temperature > 0 {
		params.Temperature = param.NewOpt(temperature)
	}

	if len(tools) > 0 {
		params.Tools = encodeTools(tools)
	}

	return params, nil
}

// encodeTools converts registry declarations (OpenAI function envelopes)
// into Claude tool params with input_schema.
func encodeTools(tools []map[string]any) []anthropic.ToolUnionParam {
	claudeTools := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, tool := range tools {
		fn, ok := tool["function"].(map[string]any)
		if !ok {
			continue
		}
		name, _ := fn["name"].(string)

		inputSchema := anthropic.ToolInputSchemaParam{
			Type: constant.Object("object"),
		}
		if schema, ok := fn["parameters"].(map[string]any); ok {
			if properties, exists := schema["properties"]; exists {
				inputSchema.Properties = properties
			}
			if required, exists := schema["required"]; exists {
				if reqSlice, ok := required.([]string); ok {
					inputSchema.Required = reqSlice
				} else if reqAny, ok := required.([]any); ok {
					reqStrings := make([]string, 0, len(reqAny))
					for _, r := range reqAny {
						if s, ok := r.(string); ok {
							reqStrings = append(reqStrings, s)
						}
					}
					inputSchema.Required = reqStrings
				}
			}
		}

		toolParam := anthropic.ToolUnionParamOfTool(inputSchema, name)
		if desc, ok := fn["description"].(string); ok && desc != "" && toolParam.OfTool != nil {
			toolParam.OfTool.Description = anthropic.String(desc)
		}
		claudeTools = append(claudeTools, toolParam)
	}
	return claudeTools
}

// encodeMessages folds system text out of the history and converts the rest
// to Anthropic turns. Tool results become tool_result blocks on a user turn;
// consecutive results after one assistant turn share a single user turn.
func encodeMessages(msgs []*message.Message) (string, []anthropic.MessageParam) {
	var systemText string
	conversation := make([]anthropic.MessageParam, 0, len(msgs))

	var pendingResults []anthropic.ContentBlockParamUnion
	flushResults := func() {
		if len(pendingResults) > 0 {
			conversation = append(conversation, anthropic.NewUserMessage(pendingResults...))
			pendingResults = nil
		}
	}

	for _, msg := range msgs {
		switch msg.Role {
		case message.RoleSystem:
			if systemText != "" {
				systemText += "\n"
			}
			systemText += msg.Content
		case message.RoleUser:
			flushResults()
			conversation = append(conversation, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		case message.RoleAssistant:
			flushResults()
			var blocks []anthropic.ContentBlockParamUnion
			if msg.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				args := tc.Arguments
				if args == "" {
					args = "{}"
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, json.RawMessage(args), tc.Name))
			}
			if len(blocks) > 0 {
				conversation = append(conversation, anthropic.NewAssistantMessage(blocks...))
			}
		case message.RoleTool:
			pendingResults = append(pendingResults, anthropic.NewToolResultBlock(msg.ToolID, msg.Content, false))
		}
	}
	flushResults()

	return systemText, conversation
}

// stream adapts the SDK's SSE iterator to the provider chunk shape. Events
// that carry nothing for the loop (pings, message_start, non-tool block
// starts) are skipped.
type stream struct {
	inner *ssestream.Stream[anthropic.MessageStreamEventUnion]
	cur   agent.Chunk
}

func (s *stream) Next() bool {
	for s.inner.Next() {
		var cur agent.Chunk

		switch variant := s.inner.Current().AsAny().(type) {
		case anthropic.ContentBlockStartEvent:
			if variant.ContentBlock.Type != "tool_use" {
				continue
			}
			cur.ToolCalls = []agent.ToolCallDelta{{
				Index: int(variant.Index),
				ID:    variant.ContentBlock.ID,
				Name:  variant.ContentBlock.Name,
			}}
		case anthropic.ContentBlockDeltaEvent:
			switch delta := variant.Delta.AsAny().(type) {
			case anthropic.TextDelta:
				if delta.Text == "" {
					continue
				}
				cur.Content = delta.Text
			case anthropic.InputJSONDelta:
				if delta.PartialJSON == "" {
					continue
				}
				cur.ToolCalls = []agent.ToolCallDelta{{
					Index:     int(variant.Index),
					Arguments: delta.PartialJSON,
				}}
			default:
				continue
			}
		case anthropic.MessageDeltaEvent:
			if variant.Delta.StopReason == "" {
				continue
			}
			cur.FinishReason = string(variant.Delta.StopReason)
		default:
			continue
		}

		s.cur = cur
		return true
	}
	return false
}

func (s *stream) Current() agent.Chunk { return s.cur }

func (s *stream) Err() error { return s.inner.Err() }

func (s *stream) Close() error { return s.inner.Close() }
