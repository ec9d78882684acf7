package event

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/sweetpotato0/physio-agent/errors"
	"github.com/sweetpotato0/physio-agent/message"
)

func TestStepCompletePairing(t *testing.T) {
	step := NewStep("Searching knowledge base", "search_knowledge_base")
	if step.ID == "" {
		t.Fatal("Expected step to carry a correlation id")
	}

	done := step.Complete()
	if done.Type != TypeStepComplete {
		t.Errorf("Expected step_complete, got %s", done.Type)
	}
	if done.ID != step.ID {
		t.Errorf("Expected matching correlation id, got %s vs %s", done.ID, step.ID)
	}
	if done.Label != "Searching knowledge base complete" {
		t.Errorf("Unexpected completion label: %s", done.Label)
	}
	if done.Tool != step.Tool {
		t.Errorf("Expected tool to carry over, got '%s'", done.Tool)
	}
}

func TestSubstepCompletePairing(t *testing.T) {
	sub := NewSubstep("call_1", "Searching by condition", "search_by_condition")
	done := sub.Complete()
	if done.Type != TypeSubstepComplete {
		t.Errorf("Expected substep_complete, got %s", done.Type)
	}
	if done.CallID != "call_1" {
		t.Errorf("Expected callId to carry over, got '%s'", done.CallID)
	}
}

func TestMarshalShapes(t *testing.T) {
	t.Run("text_delta", func(t *testing.T) {
		data, err := json.Marshal(NewTextDelta("hel"))
		if err != nil {
			t.Fatalf("marshal failed: %v", err)
		}
		if string(data) != `{"type":"text_delta","text":"hel"}` {
			t.Errorf("Unexpected wire shape: %s", data)
		}
	})

	t.Run("step", func(t *testing.T) {
		ev := NewStep("Loading patient data", "get_patient_muscle_context")
		data, err := json.Marshal(ev)
		if err != nil {
			t.Fatalf("marshal failed: %v", err)
		}
		var m map[string]any
		if err := json.Unmarshal(data, &m); err != nil {
			t.Fatalf("unmarshal failed: %v", err)
		}
		for _, key := range []string{"type", "id", "label", "tool"} {
			if _, ok := m[key]; !ok {
				t.Errorf("Missing key %q in %s", key, data)
			}
		}
		if _, ok := m["callId"]; ok {
			t.Error("step must not carry callId")
		}
	})

	t.Run("substep", func(t *testing.T) {
		ev := NewSubstep("call_9", "Searching knowledge base", "search_knowledge_base")
		data, err := json.Marshal(ev)
		if err != nil {
			t.Fatalf("marshal failed: %v", err)
		}
		var m map[string]any
		if err := json.Unmarshal(data, &m); err != nil {
			t.Fatalf("unmarshal failed: %v", err)
		}
		if m["callId"] != "call_9" {
			t.Errorf("Expected callId 'call_9', got %v", m["callId"])
		}
	})

	t.Run("done always carries arrays", func(t *testing.T) {
		data, err := json.Marshal(Event{Type: TypeDone, Content: "All set."})
		if err != nil {
			t.Fatalf("marshal failed: %v", err)
		}
		s := string(data)
		if !strings.Contains(s, `"actions":[]`) {
			t.Errorf("Expected empty actions array, got %s", s)
		}
		if !strings.Contains(s, `"toolThread":[]`) {
			t.Errorf("Expected empty toolThread array, got %s", s)
		}
		if !strings.Contains(s, `"content":"All set."`) {
			t.Errorf("Expected content, got %s", s)
		}
	})

	t.Run("done with payload", func(t *testing.T) {
		thread := []*message.Message{message.NewToolResponseMessage("call_1", "ok")}
		actions := []Action{{Name: "update_muscle", Params: map[string]any{"meshId": "left_bicep"}}}
		data, err := json.Marshal(NewDone("Done.", actions, thread))
		if err != nil {
			t.Fatalf("marshal failed: %v", err)
		}
		var decoded struct {
			Type    string   `json:"type"`
			Actions []Action `json:"actions"`
		}
		if err := json.Unmarshal(data, &decoded); err != nil {
			t.Fatalf("unmarshal failed: %v", err)
		}
		if decoded.Type != "done" || len(decoded.Actions) != 1 || decoded.Actions[0].Name != "update_muscle" {
			t.Errorf("Unexpected done payload: %s", data)
		}
	})
}

func TestStreamEmitter(t *testing.T) {
	var buf bytes.Buffer
	em := NewStreamEmitter(&buf)

	em.Emit(NewTextDelta("hello"))
	em.Emit(NewDone("hello", nil, nil))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("Expected 2 NDJSON lines, got %d: %q", len(lines), buf.String())
	}
	for _, line := range lines {
		var m map[string]any
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Errorf("Line is not valid JSON: %q", line)
		}
	}

	if err := em.Close(); err != nil {
		t.Fatalf("first close failed: %v", err)
	}
	em.Emit(NewTextDelta("dropped"))
	if strings.Contains(buf.String(), "dropped") {
		t.Error("Emit after Close should be dropped")
	}
	if err := em.Close(); err != errors.ErrEmitterClosed {
		t.Errorf("Expected ErrEmitterClosed on double close, got %v", err)
	}
}

func TestChannelEmitterDropsWhenFull(t *testing.T) {
	em := NewChannelEmitter(1)
	em.Emit(NewTextDelta("a"))
	em.Emit(NewTextDelta("b")) // buffer full, dropped
	em.Close()

	var got []Event
	for ev := range em.Events() {
		got = append(got, ev)
	}
	if len(got) != 1 {
		t.Fatalf("Expected 1 buffered event, got %d", len(got))
	}
	if got[0].Text != "a" {
		t.Errorf("Expected first event kept, got '%s'", got[0].Text)
	}
}

func TestChannelEmitterDropsAfterClose(t *testing.T) {
	em := NewChannelEmitter(4)
	em.Emit(NewTextDelta("a"))
	em.Close()
	em.Emit(NewTextDelta("late")) // dropped, must not panic
	em.Close()                    // second close is a no-op

	var got []Event
	for ev := range em.Events() {
		got = append(got, ev)
	}
	if len(got) != 1 || got[0].Text != "a" {
		t.Fatalf("Expected only the pre-close event, got %v", got)
	}
}

func TestCollector(t *testing.T) {
	var c Collector
	step := NewStep("Researching", "research")
	c.Emit(step)
	c.Emit(step.Complete())
	c.Emit(NewDone("", nil, nil))

	if len(c.Events()) != 3 {
		t.Fatalf("Expected 3 events, got %d", len(c.Events()))
	}
	if len(c.ByType(TypeStepComplete)) != 1 {
		t.Errorf("Expected 1 step_complete, got %d", len(c.ByType(TypeStepComplete)))
	}
}
