// Package agent implements a streaming, multi-turn tool-calling loop. Each
// invocation streams model output as it arrives, assembles fragmented tool
// calls, executes internal tools, collects client-side actions, and emits
// progress events until the model stops asking for tools.
package agent

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/sweetpotato0/physio-agent/event"
	"github.com/sweetpotato0/physio-agent/message"
	"github.com/sweetpotato0/physio-agent/pkg/logging"
	"github.com/sweetpotato0/physio-agent/tool"
)

// DefaultNoticeBuffer sizes the per-call channel carrying sub-agent
// progress notices.
const DefaultNoticeBuffer = 32

// DefaultMaxTokens is the per-turn completion budget sent to the model.
const DefaultMaxTokens = 4096

// Result is what one invocation produces. FinalText is the assistant's
// visible reply, Actions the client-side mutations the model requested, and
// ToolThread every intermediate assistant/tool message in order.
type Result struct {
	FinalText  string
	Actions    []event.Action
	ToolThread []*message.Message
}

// Agent holds loop configuration. It carries no per-conversation state:
// history is passed to Run and owned by that invocation.
type Agent struct {
	name         string
	systemPrompt string
	model        string
	maxTurns     int
	maxTokens    int64
	temperature  float64

	maxArgumentBytes   int
	maxCallsPerTurn    int
	maxToolResultBytes int
	noticeBuffer       int

	provider   StreamProvider
	tools      *tool.Registry
	supervisor *tool.Supervisor
	pending    []*tool.Tool
	logger     *slog.Logger
	tracer     trace.Tracer
}

// Option configures an Agent.
type Option func(*Agent)

// WithName sets the agent name used in logs.
func WithName(name string) Option {
	return func(a *Agent) {
		a.name = name
	}
}

// WithSystemPrompt sets the system prompt RunInput prepends to history.
func WithSystemPrompt(prompt string) Option {
	return func(a *Agent) {
		a.systemPrompt = prompt
	}
}

// WithModel sets the model identifier sent with every stream request.
func WithModel(model string) Option {
	return func(a *Agent) {
		a.model = model
	}
}

// WithMaxTurns overrides the turn budget.
func WithMaxTurns(n int) Option {
	return func(a *Agent) {
		if n > 0 {
			a.maxTurns = n
		}
	}
}

// WithMaxTokens sets the per-turn completion token budget.
func WithMaxTokens(n int64) Option {
	return func(a *Agent) {
		if n > 0 {
			a.maxTokens = n
		}
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(temp float64) Option {
	return func(a *Agent) {
		a.temperature = temp
	}
}

// WithProvider sets the streaming model backend.
func WithProvider(p StreamProvider) Option {
	return func(a *Agent) {
		a.provider = p
	}
}

// WithTools registers tools at construction time.
func WithTools(tools ...*tool.Tool) Option {
	return func(a *Agent) {
		a.pending = append(a.pending, tools...)
	}
}

// WithToolProvider registers a provider whose tools are loaded on first Run
// and refreshed when the provider signals changes.
func WithToolProvider(p tool.Provider) Option {
	return func(a *Agent) {
		if p == nil {
			return
		}
		if a.supervisor == nil {
			a.supervisor = tool.NewSupervisor(a.tools)
		}
		a.supervisor.Register(p)
	}
}

// WithLogger overrides the default component logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Agent) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithTracer overrides the default tracer.
func WithTracer(tracer trace.Tracer) Option {
	return func(a *Agent) {
		if tracer != nil {
			a.tracer = tracer
		}
	}
}

// WithMaxArgumentBytes caps accumulated argument text per tool call.
func WithMaxArgumentBytes(n int) Option {
	return func(a *Agent) {
		if n > 0 {
			a.maxArgumentBytes = n
		}
	}
}

// WithMaxCallsPerTurn caps distinct tool calls assembled per turn.
func WithMaxCallsPerTurn(n int) Option {
	return func(a *Agent) {
		if n > 0 {
			a.maxCallsPerTurn = n
		}
	}
}

// WithMaxToolResultBytes caps tool output fed back into history.
func WithMaxToolResultBytes(n int) Option {
	return func(a *Agent) {
		if n > 0 {
			a.maxToolResultBytes = n
		}
	}
}

// WithNoticeBuffer sizes the sub-agent notice channel.
func WithNoticeBuffer(n int) Option {
	return func(a *Agent) {
		if n > 0 {
			a.noticeBuffer = n
		}
	}
}

// New creates an agent with the given options.
func New(opts ...Option) *Agent {
	a := &Agent{
		name:               "Agent",
		maxTurns:           DefaultMaxTurns,
		maxTokens:          DefaultMaxTokens,
		temperature:        0.7,
		maxArgumentBytes:   DefaultMaxArgumentBytes,
		maxCallsPerTurn:    DefaultMaxCallsPerTurn,
		maxToolResultBytes: DefaultMaxToolResultBytes,
		noticeBuffer:       DefaultNoticeBuffer,
		tools:              tool.NewRegistry(),
		logger:             logging.WithComponent("agent"),
		tracer:             otel.Tracer("physio-agent/agent"),
	}

	for _, opt := range opts {
		opt(a)
	}

	for _, t := range a.pending {
		if err := a.tools.Register(t); err != nil {
			a.logger.Warn("skipping tool registration", "error", err)
		}
	}
	a.pending = nil

	return a
}

// RegisterTool adds a tool to the agent's registry.
func (a *Agent) RegisterTool(t *tool.Tool) error {
	return a.tools.Register(t)
}

// Tools exposes the registry, mainly for inspection in tests and servers.
func (a *Agent) Tools() *tool.Registry {
	return a.tools
}

// Run executes the loop over its own copy of the supplied history, emitting
// progress events along the way. It never returns an error: failures fold
// into the Result with an apology standing in for missing text, and exactly
// one done event terminates the stream on every path.
func (a *Agent) Run(ctx context.Context, history []*message.Message, emitter event.Emitter) *Result {
	if emitter == nil {
		emitter = event.Discard
	}

	if a.supervisor != nil {
		if err := a.supervisor.Refresh(ctx); err != nil {
			a.logger.Error("tool provider refresh failed", "agent", a.name, "error", err)
			result := &Result{FinalText: apologyText}
			emitter.Emit(event.NewDone(result.FinalText, nil, nil))
			return result
		}
	}

	l := &loop{
		cfg:     a,
		emitter: emitter,
		disp: &dispatcher{
			registry:       a.tools,
			emitter:        emitter,
			logger:         a.logger,
			maxResultBytes: a.maxToolResultBytes,
			noticeBuffer:   a.noticeBuffer,
		},
		declarations: a.tools.Declarations(),
		logger:       a.logger,
		tracer:       a.tracer,
		history:      message.CloneMessages(history),
	}
	return l.run(ctx)
}

// RunInput wraps a single user input with the configured system prompt and
// runs it as a fresh conversation.
func (a *Agent) RunInput(ctx context.Context, input string, emitter event.Emitter) *Result {
	history := make([]*message.Message, 0, 2)
	if a.systemPrompt != "" {
		history = append(history, message.NewMessage(message.RoleSystem, a.systemPrompt))
	}
	history = append(history, message.NewMessage(message.RoleUser, input))
	return a.Run(ctx, history, emitter)
}

// Close stops tool provider watchers.
func (a *Agent) Close() error {
	if a.supervisor != nil {
		return a.supervisor.Close()
	}
	return nil
}
