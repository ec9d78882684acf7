package agent

import (
	"context"

	"github.com/sweetpotato0/physio-agent/message"
)

// StreamRequest bundles inputs for one streaming model turn.
type StreamRequest struct {
	Model       string
	Messages    []*message.Message
	Tools       []map[string]any
	MaxTokens   int64
	Temperature float64
}

// GenerateRequest bundles inputs for a non-streaming LLM invocation.
type GenerateRequest struct {
	Model       string
	Messages    []*message.Message
	Tools       []map[string]any
	MaxTokens   int64
	Temperature float64
}

// ToolCallDelta is one streamed fragment of a tool call. Index identifies
// the call within the turn; ID and Name arrive once on the first fragment
// for most providers, and Arguments accumulates across fragments.
type ToolCallDelta struct {
	Index     int
	ID        string
	Name      string
	Arguments string
}

// Chunk is a single parsed event from a model stream. Providers surface raw
// deltas; assembling them into complete tool calls is the caller's job.
type Chunk struct {
	Content      string
	ToolCalls    []ToolCallDelta
	FinishReason string
}

// Stream iterates chunks of a streaming completion. Callers must check Err
// after Next returns false and Close the stream when done.
type Stream interface {
	Next() bool
	Current() Chunk
	Err() error
	Close() error
}

// StreamProvider opens streaming completions against a model backend.
type StreamProvider interface {
	Stream(ctx context.Context, req *StreamRequest) (Stream, error)
}

// Provider performs single-shot generations; used by the research sub-agent
// and ingestion annotation where no token streaming is needed.
type Provider interface {
	Generate(ctx context.Context, req *GenerateRequest) (*message.Message, error)
}
