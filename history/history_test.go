package history

import (
	"strings"
	"testing"

	"github.com/sweetpotato0/physio-agent/message"
)

func TestTrimKeepsSystemMessages(t *testing.T) {
	w := NewWindow(nil, WithMaxTokens(40))

	msgs := []*message.Message{
		message.NewMessage(message.RoleSystem, "you are a physiotherapy assistant"),
		message.NewMessage(message.RoleUser, strings.Repeat("old words ", 50)),
		message.NewMessage(message.RoleAssistant, strings.Repeat("older reply ", 50)),
		message.NewMessage(message.RoleUser, "my shoulder hurts"),
	}

	trimmed := w.Trim(msgs)
	if len(trimmed) == 0 || trimmed[0].Role != message.RoleSystem {
		t.Fatalf("expected system message first, got %v", trimmed)
	}
	last := trimmed[len(trimmed)-1]
	if last.Content != "my shoulder hurts" {
		t.Errorf("expected newest user message kept, got %q", last.Content)
	}
	for _, m := range trimmed {
		if strings.HasPrefix(m.Content, "old words") || strings.HasPrefix(m.Content, "older reply") {
			t.Errorf("oversized old message survived the trim: %q", m.Content[:20])
		}
	}
}

func TestTrimKeepsToolCallPairsTogether(t *testing.T) {
	w := NewWindow(nil, WithMaxTokens(1000))

	asst := message.NewToolCallMessage("", []message.ToolCall{
		{ID: "call_1", Name: "search_knowledge_base", Arguments: `{"query":"rotator cuff"}`},
	})
	msgs := []*message.Message{
		message.NewMessage(message.RoleUser, "what helps a rotator cuff strain?"),
		asst,
		message.NewToolResponseMessage("call_1", "evidence text"),
		message.NewMessage(message.RoleAssistant, "eccentric loading helps"),
	}

	trimmed := w.Trim(msgs)
	for i, m := range trimmed {
		if m.Role == message.RoleTool {
			if i == 0 || len(trimmed[i-1].ToolCalls) == 0 {
				t.Fatalf("tool message at %d not preceded by its tool call", i)
			}
		}
	}
	if len(trimmed) != len(msgs) {
		t.Errorf("budget was large enough for all %d messages, kept %d", len(msgs), len(trimmed))
	}
}

func TestTrimDropsWholeGroupWhenOverBudget(t *testing.T) {
	w := NewWindow(nil, WithMaxTokens(30))

	asst := message.NewToolCallMessage("", []message.ToolCall{
		{ID: "call_1", Name: "search_knowledge_base", Arguments: strings.Repeat(`{"q":"x"}`, 40)},
	})
	msgs := []*message.Message{
		asst,
		message.NewToolResponseMessage("call_1", strings.Repeat("long result ", 40)),
		message.NewMessage(message.RoleUser, "thanks"),
	}

	trimmed := w.Trim(msgs)
	for _, m := range trimmed {
		if m.Role == message.RoleTool || len(m.ToolCalls) > 0 {
			t.Errorf("oversized call group should be dropped atomically, found %s", m.Role)
		}
	}
}

func TestCount(t *testing.T) {
	w := NewWindow(nil)
	msgs := []*message.Message{
		message.NewMessage(message.RoleUser, "one two three"),
	}
	if got := w.Count(msgs); got <= perMessageOverhead {
		t.Errorf("Count = %d, want more than the per-message overhead", got)
	}
	if got := w.Count(nil); got != 0 {
		t.Errorf("Count(nil) = %d, want 0", got)
	}
}
