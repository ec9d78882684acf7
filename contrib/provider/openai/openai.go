// Package openai adapts the official OpenAI SDK to the agent provider
// contracts. It is the primary conversation backend: the stream surfaces
// tool-call deltas raw, leaving reassembly to the turn loop.
package openai

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/param"
	"github.com/openai/openai-go/v3/packages/ssestream"
	"github.com/sweetpotato0/physio-agent/agent"
	"github.com/sweetpotato0/physio-agent/message"
)

// Config holds OpenAI provider configuration.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
}

// WithBaseURL set BaseURL.
func (cfg *Config) WithBaseURL(url string) *Config {
	cfg.BaseURL = url
	return cfg
}

// WithAPIKey set api key.
func (cfg *Config) WithAPIKey(apiKey string) *Config {
	cfg.APIKey = apiKey
	return cfg
}

// WithModel set model.
func (cfg *Config) WithModel(model string) *Config {
	cfg.Model = model
	return cfg
}

// DefaultConfig returns default OpenAI configuration.
func DefaultConfig() *Config {
	return &Config{
		Model: "gpt-4o-mini",
	}
}

// Provider implements agent.StreamProvider and agent.Provider on the
// official SDK.
type Provider struct {
	config *Config
	client openai.Client
}

// New creates a new OpenAI provider.
func New(config *Config) *Provider {
	if config.Model == "" {
		config.Model = "gpt-4o-mini"
	}

	options := []option.RequestOption{option.WithAPIKey(config.APIKey)}
	if config.BaseURL != "" {
		options = append(options, option.WithBaseURL(config.BaseURL))
	}
	client := openai.NewClient(options...)

	return &Provider{
		config: config,
		client: client,
	}
}

// Stream opens a streaming chat completion and returns an iterator over its
// chunks.
func (p *Provider) Stream(ctx context.Context, req *agent.StreamRequest) (agent.Stream, error) {
	if req == nil {
		return nil, fmt.Errorf("stream request cannot be nil")
	}

	params, err := p.buildParams(req.Model, req.Messages, req.Tools, req.MaxTokens, req.Temperature)
	if err != nil {
		return nil, err
	}

	return &stream{inner: p.client.Chat.Completions.NewStreaming(ctx, *params)}, nil
}

// Generate performs a blocking chat completion; used by the research agent
// and the ingestion annotator.
func (p *Provider) Generate(ctx context.Context, req *agent.GenerateRequest) (*message.Message, error) {
	if req == nil {
		return nil, fmt.Errorf("generate request cannot be nil")
	}

	params, err := p.buildParams(req.Model, req.Messages, req.Tools, req.MaxTokens, req.Temperature)
	if err != nil {
		return nil, err
	}

	completion, err := p.client.Chat.Completions.New(ctx, *params)
	if err != nil {
		return nil, fmt.Errorf("OpenAI API error: %w", err)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("no choices returned from OpenAI")
	}

	choice := completion.Choices[0]
	msg := message.NewMessage(message.RoleAssistant, choice.Message.Content)
	for _, tc := range choice.Message.ToolCalls {
		msg.ToolCalls = append(msg.ToolCalls, message.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return msg, nil
}

func (p *Provider) buildParams(model string, msgs []*message.Message, tools []map[string]any, maxTokens int64, temperature float64) (*openai.ChatCompletionNewParams, error) {
	openAIMessages, err := encodeMessages(msgs)
	if err != nil {
		return nil, err
	}

	if model == "" {
		model = p.config.Model
	}
	params := &openai.ChatCompletionNewParams{
		Messages: openAIMessages,
		Model:    openai.ChatModel(model),
	}

	if temperature > 0 {
		params.Temperature = param.NewOpt(temperature)
	}
	if maxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(maxTokens)
	}

	if len(tools) > 0 {
		openAITools := make([]openai.ChatCompletionToolUnionParam, 0, len(tools))
		for _, tool := range tools {
			toolJSON, err := json.Marshal(tool)
			if err != nil {
				return nil, fmt.Errorf("failed to marshal tool: %w", err)
			}

			var toolParam openai.ChatCompletionToolUnionParam
			if err := json.Unmarshal(toolJSON, &toolParam); err != nil {
				return nil, fmt.Errorf("failed to unmarshal tool param: %w", err)
			}

			openAITools = append(openAITools, toolParam)
		}
		params.Tools = openAITools
	}

	return params, nil
}

func encodeMessages(msgs []*message.Message) ([]openai.ChatCompletionMessageParamUnion, error) {
	openAIMessages := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, msg := range msgs {
		switch msg.Role {
		case message.RoleSystem:
			openAIMessages = append(openAIMessages, openai.SystemMessage(msg.Content))
		case message.RoleUser:
			openAIMessages = append(openAIMessages, openai.UserMessage(msg.Content))
		case message.RoleAssistant:
			assistantMsg := openai.AssistantMessage(msg.Content)
			if len(msg.ToolCalls) > 0 && assistantMsg.OfAssistant != nil {
				assistantMsg.OfAssistant.ToolCalls = encodeToolCalls(msg.ToolCalls)
			}
			openAIMessages = append(openAIMessages, assistantMsg)
		case message.RoleTool:
			openAIMessages = append(openAIMessages, openai.ToolMessage(msg.Content, msg.ToolID))
		}
	}
	return openAIMessages, nil
}

func encodeToolCalls(calls []message.ToolCall) []openai.ChatCompletionMessageToolCallUnionParam {
	params := make([]openai.ChatCompletionMessageToolCallUnionParam, 0, len(calls))
	for _, tc := range calls {
		args := tc.Arguments
		if args == "" {
			args = "{}"
		}
		params = append(params, openai.ChatCompletionMessageToolCallUnionParam{
			OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
				ID: tc.ID,
				Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
					Name:      tc.Name,
					Arguments: args,
				},
			},
		})
	}
	return params
}

// stream adapts the SDK's SSE iterator. Chunks without choices are skipped;
// tool-call argument fragments pass through untouched.
type stream struct {
	inner *ssestream.Stream[openai.ChatCompletionChunk]
	cur   agent.Chunk
}

func (s *stream) Next() bool {
	for s.inner.Next() {
		chunk := s.inner.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]

		cur := agent.Chunk{
			Content:      choice.Delta.Content,
			FinishReason: string(choice.FinishReason),
		}
		for _, tc := range choice.Delta.ToolCalls {
			cur.ToolCalls = append(cur.ToolCalls, agent.ToolCallDelta{
				Index:     int(tc.Index),
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			})
		}
		s.cur = cur
		return true
	}
	return false
}

func (s *stream) Current() agent.Chunk { return s.cur }

func (s *stream) Err() error { return s.inner.Err() }

func (s *stream) Close() error { return s.inner.Close() }
