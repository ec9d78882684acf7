// Package history trims conversation history to a token budget before it is
// sent to the model. System messages always survive; the newest non-system
// messages fill whatever budget remains.
package history

import (
	"github.com/sweetpotato0/physio-agent/message"
	"github.com/sweetpotato0/physio-agent/tokenizer"
)

// DefaultMaxTokens is the default history budget. It leaves headroom for the
// tool declarations and the completion inside a typical 16k context.
const DefaultMaxTokens = 8192

// perMessageOverhead approximates the tokens a provider spends on role and
// framing per message, on top of the content itself.
const perMessageOverhead = 4

// Window trims histories by token count.
type Window struct {
	counter   tokenizer.Tokenizer
	maxTokens int
}

// Option configures a Window.
type Option func(*Window)

// WithMaxTokens overrides the token budget.
func WithMaxTokens(n int) Option {
	return func(w *Window) {
		if n > 0 {
			w.maxTokens = n
		}
	}
}

// NewWindow creates a window that counts with the given tokenizer. A nil
// tokenizer falls back to the in-process approximation.
func NewWindow(counter tokenizer.Tokenizer, opts ...Option) *Window {
	w := &Window{
		counter:   counter,
		maxTokens: DefaultMaxTokens,
	}
	if w.counter == nil {
		w.counter = tokenizer.NewSimpleTokenizer()
	}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}
	return w
}

// Trim returns the messages that fit the budget: every system message, then
// as many of the most recent remaining messages as the leftover budget
// allows, in their original order. Tool messages are kept or dropped together
// with the assistant message that issued their calls, so the invariant that
// every tool result follows its tool call is preserved.
func (w *Window) Trim(msgs []*message.Message) []*message.Message {
	if len(msgs) == 0 {
		return msgs
	}

	budget := w.maxTokens
	var system []*message.Message
	var rest []*message.Message
	for _, m := range msgs {
		if m == nil {
			continue
		}
		if m.Role == message.RoleSystem {
			system = append(system, m)
			budget -= w.cost(m)
		} else {
			rest = append(rest, m)
		}
	}
	if budget <= 0 {
		return system
	}

	// Walk backwards grouping each assistant tool-call message with the tool
	// results that answer it.
	groups := groupCalls(rest)
	var kept []*message.Message
	for i := len(groups) - 1; i >= 0; i-- {
		cost := 0
		for _, m := range groups[i] {
			cost += w.cost(m)
		}
		if cost > budget {
			break
		}
		budget -= cost
		kept = append(groups[i], kept...)
	}

	out := make([]*message.Message, 0, len(system)+len(kept))
	out = append(out, system...)
	out = append(out, kept...)
	return out
}

// Count returns the token cost of the whole history under this window's
// tokenizer.
func (w *Window) Count(msgs []*message.Message) int {
	total := 0
	for _, m := range msgs {
		if m != nil {
			total += w.cost(m)
		}
	}
	return total
}

func (w *Window) cost(m *message.Message) int {
	tokens := w.counter.CountTokens(m.Content) + perMessageOverhead
	for _, tc := range m.ToolCalls {
		tokens += w.counter.CountTokens(tc.Name) + w.counter.CountTokens(tc.Arguments)
	}
	return tokens
}

// groupCalls splits the history into units that must be kept or dropped
// atomically: an assistant message carrying tool calls plus the tool messages
// directly following it, or a single message otherwise.
func groupCalls(msgs []*message.Message) [][]*message.Message {
	var groups [][]*message.Message
	i := 0
	for i < len(msgs) {
		m := msgs[i]
		if m.Role == message.RoleAssistant && len(m.ToolCalls) > 0 {
			group := []*message.Message{m}
			j := i + 1
			for j < len(msgs) && msgs[j].Role == message.RoleTool {
				group = append(group, msgs[j])
				j++
			}
			groups = append(groups, group)
			i = j
			continue
		}
		groups = append(groups, []*message.Message{m})
		i++
	}
	return groups
}
