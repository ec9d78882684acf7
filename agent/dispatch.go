package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/sweetpotato0/physio-agent/event"
	"github.com/sweetpotato0/physio-agent/message"
	"github.com/sweetpotato0/physio-agent/tool"
)

// DefaultMaxToolResultBytes caps tool output fed back into history. A tool
// that dumps megabytes would otherwise blow the next turn's token budget.
const DefaultMaxToolResultBytes = 16 << 10

const truncationMarker = "\n[result truncated]"

// dispatcher executes finalized tool calls one at a time, translating every
// failure into model-visible result text instead of raising.
type dispatcher struct {
	registry       *tool.Registry
	emitter        event.Emitter
	logger         *slog.Logger
	maxResultBytes int
	noticeBuffer   int
}

// dispatch runs one call and returns the tool-result message plus the
// client action when the tool is action-kind.
func (d *dispatcher) dispatch(ctx context.Context, call Assembled) (*message.Message, *event.Action) {
	t, err := d.registry.Get(call.Name)
	if err != nil {
		d.logger.Warn("model requested unknown tool", "tool", call.Name)
		return message.NewToolResponseMessage(call.ID, fmt.Sprintf("Error: Unknown tool '%s'", call.Name)), nil
	}

	params := parseArguments(call.Arguments)
	label := t.Label
	if label == "" {
		label = "Running " + t.Name
	}

	step := event.NewStep(label, t.Name)
	d.emitter.Emit(step)

	// Truncated calls carry a silently-repaired argument prefix; neither
	// executing them nor forwarding them to the client is safe.
	if call.Truncated {
		d.logger.Warn("refusing truncated tool call", "tool", t.Name)
		d.emitter.Emit(step.Complete())
		return message.NewToolResponseMessage(call.ID, "Tool error: arguments exceeded the size limit and were truncated"), nil
	}

	if t.Kind == tool.KindAction {
		action := &event.Action{Name: t.Name, Params: params}
		d.emitter.Emit(step.Complete())
		d.logger.Debug("action dispatched to client", "tool", t.Name)
		return message.NewToolResponseMessage(call.ID, fmt.Sprintf("Action '%s' dispatched to client.", t.Name)), action
	}

	var result string
	switch {
	case t.Streams():
		result = d.runStreaming(ctx, t, call.ID, params)
	default:
		out, execErr := t.Execute(ctx, params)
		if execErr != nil {
			d.logger.Warn("tool execution failed", "tool", t.Name, "error", execErr)
			result = fmt.Sprintf("Tool error: %s", execErr.Error())
		} else {
			result = out
		}
	}

	d.emitter.Emit(step.Complete())
	return message.NewToolResponseMessage(call.ID, d.truncateResult(result)), nil
}

// runStreaming executes a notice-emitting tool on its own goroutine while
// this goroutine forwards notices as substep events. The handler signals
// completion only after its last notice send, so draining the buffered
// channel after completion loses nothing and preserves order.
func (d *dispatcher) runStreaming(ctx context.Context, t *tool.Tool, callID string, params map[string]interface{}) string {
	notices := make(chan tool.Notice, d.noticeBuffer)

	type outcome struct {
		result string
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		result, err := t.ExecuteStream(ctx, params, notices)
		done <- outcome{result: result, err: err}
	}()

	for {
		select {
		case n := <-notices:
			d.forwardNotice(callID, n)
		case out := <-done:
			for {
				select {
				case n := <-notices:
					d.forwardNotice(callID, n)
				default:
					if out.err != nil {
						d.logger.Warn("tool execution failed", "tool", t.Name, "error", out.err)
						return fmt.Sprintf("Tool error: %s", out.err.Error())
					}
					return out.result
				}
			}
		}
	}
}

func (d *dispatcher) forwardNotice(callID string, n tool.Notice) {
	sub := event.NewSubstep(callID, n.Label, n.Tool)
	d.emitter.Emit(sub)
	d.emitter.Emit(sub.Complete())
}

func (d *dispatcher) truncateResult(s string) string {
	if d.maxResultBytes <= 0 || len(s) <= d.maxResultBytes {
		return s
	}
	return s[:d.maxResultBytes] + truncationMarker
}

// parseArguments decodes the call's argument JSON. Malformed or empty text
// yields an empty parameter set; the model's sloppy output must not abort
// the turn.
func parseArguments(raw string) map[string]interface{} {
	if raw == "" {
		return map[string]interface{}{}
	}
	var params map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &params); err != nil || params == nil {
		return map[string]interface{}{}
	}
	return params
}
