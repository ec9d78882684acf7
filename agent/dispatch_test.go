package agent

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/sweetpotato0/physio-agent/event"
	"github.com/sweetpotato0/physio-agent/message"
	"github.com/sweetpotato0/physio-agent/pkg/logging"
	"github.com/sweetpotato0/physio-agent/tool"
)

func newTestDispatcher(t *testing.T, tools ...*tool.Tool) (*dispatcher, *event.Collector) {
	t.Helper()
	reg := tool.NewRegistry()
	for _, tl := range tools {
		if err := reg.Register(tl); err != nil {
			t.Fatalf("register %s: %v", tl.Name, err)
		}
	}
	col := &event.Collector{}
	return &dispatcher{
		registry:       reg,
		emitter:        col,
		logger:         logging.WithComponent("test"),
		maxResultBytes: DefaultMaxToolResultBytes,
		noticeBuffer:   4,
	}, col
}

func call(id, name, args string) Assembled {
	return Assembled{ToolCall: message.ToolCall{ID: id, Name: name, Arguments: args}}
}

func TestDispatchUnknownTool(t *testing.T) {
	d, col := newTestDispatcher(t)

	msg, action := d.dispatch(context.Background(), call("c1", "mystery", "{}"))
	if action != nil {
		t.Fatal("unknown tool must not produce an action")
	}
	if msg.Content != "Error: Unknown tool 'mystery'" {
		t.Fatalf("unexpected result: %q", msg.Content)
	}
	if msg.ToolID != "c1" || msg.Role != message.RoleTool {
		t.Fatalf("result must be a tool message for the call: %+v", msg)
	}
	if len(col.Events()) != 0 {
		t.Fatalf("unknown tool must not emit steps, got %d events", len(col.Events()))
	}
}

func TestDispatchNamelessCall(t *testing.T) {
	d, _ := newTestDispatcher(t)

	msg, _ := d.dispatch(context.Background(), call("c1", "", "{}"))
	if msg.Content != "Error: Unknown tool ''" {
		t.Fatalf("unexpected result: %q", msg.Content)
	}
}

func TestDispatchInternalTool(t *testing.T) {
	var seen map[string]interface{}
	d, col := newTestDispatcher(t, &tool.Tool{
		Name:  "search_knowledge_base",
		Kind:  tool.KindInternal,
		Label: "Searching knowledge base",
		Handler: func(ctx context.Context, args map[string]interface{}) (string, error) {
			seen = args
			return "[1] (score: 0.900, source: x)\nresult text\n", nil
		},
	})

	msg, action := d.dispatch(context.Background(), call("c1", "search_knowledge_base", `{"query":"acl"}`))
	if action != nil {
		t.Fatal("internal tool must not produce an action")
	}
	if seen["query"] != "acl" {
		t.Fatalf("handler args wrong: %#v", seen)
	}
	if !strings.Contains(msg.Content, "result text") {
		t.Fatalf("result not propagated: %q", msg.Content)
	}

	events := col.Events()
	if len(events) != 2 {
		t.Fatalf("expected step pair, got %d events", len(events))
	}
	if events[0].Type != event.TypeStep || events[1].Type != event.TypeStepComplete {
		t.Fatalf("unexpected event types: %s, %s", events[0].Type, events[1].Type)
	}
	if events[0].ID != events[1].ID {
		t.Fatal("step pair must share a correlation id")
	}
	if events[0].Label != "Searching knowledge base" || events[1].Label != "Searching knowledge base complete" {
		t.Fatalf("unexpected labels: %q, %q", events[0].Label, events[1].Label)
	}
	if events[0].Tool != "search_knowledge_base" {
		t.Fatalf("tool name missing from step: %+v", events[0])
	}
}

func TestDispatchInternalToolFailure(t *testing.T) {
	d, col := newTestDispatcher(t, &tool.Tool{
		Name:  "flaky",
		Kind:  tool.KindInternal,
		Label: "Running flaky",
		Handler: func(ctx context.Context, args map[string]interface{}) (string, error) {
			return "", fmt.Errorf("bad query")
		},
	})

	msg, _ := d.dispatch(context.Background(), call("c1", "flaky", "{}"))
	if msg.Content != "Tool error: bad query" {
		t.Fatalf("unexpected result: %q", msg.Content)
	}
	if len(col.ByType(event.TypeStepComplete)) != 1 {
		t.Fatal("step must complete even when the tool fails")
	}
}

func TestDispatchMalformedArguments(t *testing.T) {
	var seen map[string]interface{}
	d, _ := newTestDispatcher(t, &tool.Tool{
		Name: "echo",
		Kind: tool.KindInternal,
		Handler: func(ctx context.Context, args map[string]interface{}) (string, error) {
			seen = args
			return "ok", nil
		},
	})

	for _, raw := range []string{"", "{broken", `"just a string"`, "null"} {
		seen = nil
		msg, _ := d.dispatch(context.Background(), call("c1", "echo", raw))
		if msg.Content != "ok" {
			t.Fatalf("args %q: dispatch should proceed, got %q", raw, msg.Content)
		}
		if seen == nil || len(seen) != 0 {
			t.Fatalf("args %q should decode to empty params, got %#v", raw, seen)
		}
	}
}

func TestDispatchActionTool(t *testing.T) {
	executed := false
	d, col := newTestDispatcher(t, &tool.Tool{
		Name:  "update_muscle",
		Kind:  tool.KindAction,
		Label: "Updating muscle",
		Handler: func(ctx context.Context, args map[string]interface{}) (string, error) {
			executed = true
			return "", nil
		},
	})

	msg, action := d.dispatch(context.Background(), call("c1", "update_muscle", `{"meshId":"Deltoid","pain":6}`))
	if executed {
		t.Fatal("action tool must never execute locally")
	}
	if action == nil || action.Name != "update_muscle" {
		t.Fatalf("missing action: %+v", action)
	}
	if action.Params["meshId"] != "Deltoid" || action.Params["pain"] != float64(6) {
		t.Fatalf("action params wrong: %#v", action.Params)
	}
	if msg.Content != "Action 'update_muscle' dispatched to client." {
		t.Fatalf("unexpected ack: %q", msg.Content)
	}

	if len(col.ByType(event.TypeStep)) != 1 || len(col.ByType(event.TypeStepComplete)) != 1 {
		t.Fatal("action dispatch should emit a step pair")
	}
}

func TestDispatchTruncatedCallNotExecuted(t *testing.T) {
	executed := false
	d, _ := newTestDispatcher(t, &tool.Tool{
		Name: "big",
		Kind: tool.KindInternal,
		Handler: func(ctx context.Context, args map[string]interface{}) (string, error) {
			executed = true
			return "ok", nil
		},
	})

	c := call("c1", "big", `{"partial":`)
	c.Truncated = true
	msg, _ := d.dispatch(context.Background(), c)
	if executed {
		t.Fatal("truncated call must not execute")
	}
	if !strings.HasPrefix(msg.Content, "Tool error:") {
		t.Fatalf("expected tool error, got %q", msg.Content)
	}
}

func TestDispatchTruncatedActionNotForwarded(t *testing.T) {
	d, col := newTestDispatcher(t, &tool.Tool{
		Name:  "update_muscle",
		Kind:  tool.KindAction,
		Label: "Updating muscle",
	})

	c := call("c1", "update_muscle", `{"meshId":"Del`)
	c.Truncated = true
	msg, action := d.dispatch(context.Background(), c)
	if action != nil {
		t.Fatalf("truncated action must not reach the client, got %+v", action)
	}
	if !strings.HasPrefix(msg.Content, "Tool error:") {
		t.Fatalf("expected tool error ack, got %q", msg.Content)
	}
	if len(col.ByType(event.TypeStep)) != 1 || len(col.ByType(event.TypeStepComplete)) != 1 {
		t.Fatal("refused call should still emit a step pair")
	}
}

func TestDispatchResultTruncation(t *testing.T) {
	d, _ := newTestDispatcher(t, &tool.Tool{
		Name: "verbose",
		Kind: tool.KindInternal,
		Handler: func(ctx context.Context, args map[string]interface{}) (string, error) {
			return strings.Repeat("a", 100), nil
		},
	})
	d.maxResultBytes = 10

	msg, _ := d.dispatch(context.Background(), call("c1", "verbose", "{}"))
	if len(msg.Content) != 10+len(truncationMarker) {
		t.Fatalf("result not truncated: %d bytes", len(msg.Content))
	}
	if !strings.HasSuffix(msg.Content, truncationMarker) {
		t.Fatalf("missing truncation marker: %q", msg.Content)
	}
}

func TestDispatchStreamingToolForwardsNotices(t *testing.T) {
	d, col := newTestDispatcher(t, &tool.Tool{
		Name:  "research",
		Kind:  tool.KindInternal,
		Label: "Researching",
		StreamHandler: func(ctx context.Context, args map[string]interface{}, notify chan<- tool.Notice) (string, error) {
			for i := 0; i < 3; i++ {
				notify <- tool.Notice{Tool: "search_by_condition", Label: fmt.Sprintf("Searching angle %d", i)}
			}
			return "synthesized findings", nil
		},
	})

	msg, _ := d.dispatch(context.Background(), call("call-42", "research", `{"query":"acl"}`))
	if msg.Content != "synthesized findings" {
		t.Fatalf("unexpected result: %q", msg.Content)
	}

	subs := col.ByType(event.TypeSubstep)
	subDones := col.ByType(event.TypeSubstepComplete)
	if len(subs) != 3 || len(subDones) != 3 {
		t.Fatalf("expected 3 substep pairs, got %d/%d", len(subs), len(subDones))
	}
	for i, ev := range subs {
		if ev.CallID != "call-42" {
			t.Fatalf("substep %d not scoped to call id: %+v", i, ev)
		}
		if want := fmt.Sprintf("Searching angle %d", i); ev.Label != want {
			t.Fatalf("substep order broken: got %q want %q", ev.Label, want)
		}
	}

	// The step pair wraps all substeps: step first, step_complete last.
	events := col.Events()
	if events[0].Type != event.TypeStep || events[len(events)-1].Type != event.TypeStepComplete {
		t.Fatalf("step pair should bracket substeps: first=%s last=%s",
			events[0].Type, events[len(events)-1].Type)
	}
}

func TestDispatchStreamingToolFailure(t *testing.T) {
	d, _ := newTestDispatcher(t, &tool.Tool{
		Name:  "research",
		Kind:  tool.KindInternal,
		Label: "Researching",
		StreamHandler: func(ctx context.Context, args map[string]interface{}, notify chan<- tool.Notice) (string, error) {
			notify <- tool.Notice{Tool: "search_knowledge_base", Label: "Searching"}
			return "", fmt.Errorf("planner unavailable")
		},
	})

	msg, _ := d.dispatch(context.Background(), call("c1", "research", "{}"))
	if msg.Content != "Tool error: planner unavailable" {
		t.Fatalf("unexpected result: %q", msg.Content)
	}
}
