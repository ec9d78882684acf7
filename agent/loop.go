package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/sweetpotato0/physio-agent/event"
	"github.com/sweetpotato0/physio-agent/message"
	"github.com/sweetpotato0/physio-agent/pkg/telemetry"
)

// DefaultMaxTurns bounds model turns per invocation. The loop terminates
// early the first turn the model requests no tools.
const DefaultMaxTurns = 10

const (
	thinkingLabel = "Thinking"
	apologyText   = "I ran into a problem while working on your request. Please try again."
)

type turnState int

const (
	stateStreaming turnState = iota
	stateToolsPending
	stateDone
	stateFailed
)

func (s turnState) String() string {
	switch s {
	case stateStreaming:
		return "streaming"
	case stateToolsPending:
		return "tools_pending"
	case stateDone:
		return "done"
	case stateFailed:
		return "failed"
	}
	return "unknown"
}

// loop owns one invocation: its history copy, action list, and tool thread.
type loop struct {
	cfg          *Agent
	emitter      event.Emitter
	disp         *dispatcher
	declarations []map[string]interface{}
	logger       *slog.Logger
	tracer       trace.Tracer

	history []*message.Message
	thread  []*message.Message
	actions []event.Action
}

// run drives turns until the model stops calling tools, the turn budget is
// spent, or an error escapes a turn. Errors fold into a normal completion:
// the apology text stands in only when no text was produced, and whatever
// actions and tool thread accumulated are still returned. Exactly one done
// event is emitted on every path.
func (l *loop) run(ctx context.Context) *Result {
	ctx, span := l.tracer.Start(ctx, "agent.run",
		trace.WithAttributes(attribute.String("agent.model", l.cfg.model)))
	defer span.End()

	var finalText strings.Builder
	state := stateStreaming

	for turn := 0; turn < l.cfg.maxTurns && state == stateStreaming; turn++ {
		turnText, calls, err := l.streamTurn(ctx, turn)
		finalText.WriteString(turnText)
		if err != nil {
			l.logger.Error("turn failed", "turn", turn, "error", err)
			span.RecordError(err)
			state = stateFailed
			break
		}

		if len(calls) == 0 {
			state = stateDone
			break
		}
		state = stateToolsPending
		l.logger.Debug("dispatching tool calls", "turn", turn, "calls", len(calls))

		asst := assistantMessage(turnText, calls)
		l.history = append(l.history, asst)
		l.thread = append(l.thread, asst)

		for _, call := range calls {
			toolMsg, action := l.disp.dispatch(ctx, call)
			l.history = append(l.history, toolMsg)
			l.thread = append(l.thread, toolMsg)
			if action != nil {
				l.actions = append(l.actions, *action)
			}
		}
		state = stateStreaming
	}

	// Exiting with state streaming means the turn budget ran out with tools
	// still pending: forced completion, accumulated text kept, no error.
	text := finalText.String()
	if state == stateFailed && text == "" {
		text = apologyText
	}

	span.SetAttributes(
		attribute.String("agent.final_state", state.String()),
		attribute.Int("agent.actions", len(l.actions)),
	)

	result := &Result{
		FinalText:  text,
		Actions:    l.actions,
		ToolThread: l.thread,
	}
	l.emitter.Emit(event.NewDone(text, l.actions, l.thread))
	return result
}

// streamTurn opens one model stream and consumes it fully, emitting text
// deltas as they arrive and assembling tool-call fragments. The thinking
// indicator resolves on the first fragment of either kind, or at stream end
// if nothing came, so no indicator is ever left open.
func (l *loop) streamTurn(ctx context.Context, turn int) (string, []Assembled, error) {
	ctx, span := l.tracer.Start(ctx, "agent.turn",
		trace.WithAttributes(attribute.Int("agent.turn_number", turn)))
	var err error
	defer func() { telemetry.End(span, err) }()

	thinking := event.NewStep(thinkingLabel, "")
	l.emitter.Emit(thinking)
	resolved := false
	resolveThinking := func() {
		if !resolved {
			l.emitter.Emit(thinking.Complete())
			resolved = true
		}
	}
	defer resolveThinking()

	stream, err := l.cfg.provider.Stream(ctx, &StreamRequest{
		Model:       l.cfg.model,
		Messages:    l.history,
		Tools:       l.declarations,
		MaxTokens:   l.cfg.maxTokens,
		Temperature: l.cfg.temperature,
	})
	if err != nil {
		err = fmt.Errorf("open model stream: %w", err)
		return "", nil, err
	}
	defer stream.Close()

	acc := NewDeltaAccumulator(l.cfg.maxArgumentBytes, l.cfg.maxCallsPerTurn)
	var text strings.Builder

	for stream.Next() {
		chunk := stream.Current()
		if chunk.Content != "" {
			resolveThinking()
			text.WriteString(chunk.Content)
			l.emitter.Emit(event.NewTextDelta(chunk.Content))
		}
		for _, delta := range chunk.ToolCalls {
			resolveThinking()
			acc.Add(delta)
		}
	}
	if streamErr := stream.Err(); streamErr != nil {
		err = fmt.Errorf("read model stream: %w", streamErr)
		return text.String(), nil, err
	}

	span.SetAttributes(attribute.Int("agent.tool_calls", acc.Len()))
	return text.String(), acc.Finalize(), nil
}

// assistantMessage folds a turn's text and finalized calls into the single
// history message the next turn sees.
func assistantMessage(text string, calls []Assembled) *message.Message {
	msgCalls := make([]message.ToolCall, 0, len(calls))
	for _, c := range calls {
		msgCalls = append(msgCalls, c.ToolCall)
	}
	return message.NewToolCallMessage(text, msgCalls)
}
