package agent

import (
	"sort"
	"strings"

	"github.com/sweetpotato0/physio-agent/message"
)

// Ceilings on streamed tool-call assembly. Providers are not trusted to
// bound what they stream; without these a runaway model turn could grow
// memory without limit.
const (
	DefaultMaxArgumentBytes = 64 << 10
	DefaultMaxCallsPerTurn  = 64
)

// Assembled is a finalized tool call plus assembly state the dispatcher
// inspects before execution. Truncated calls are never executed.
type Assembled struct {
	message.ToolCall
	Truncated bool
}

// DeltaAccumulator assembles streamed tool-call fragments into complete
// calls. Fragments are keyed by integer index; argument text concatenates in
// arrival order per index, and the first non-empty id and name stick. State
// is per-turn: callers create one accumulator per model turn.
type DeltaAccumulator struct {
	maxArgBytes int
	maxCalls    int
	calls       map[int]*callBuilder
}

type callBuilder struct {
	id        string
	name      string
	args      strings.Builder
	truncated bool
}

// NewDeltaAccumulator creates an accumulator with the given ceilings.
// Non-positive values fall back to the defaults.
func NewDeltaAccumulator(maxArgBytes, maxCalls int) *DeltaAccumulator {
	if maxArgBytes <= 0 {
		maxArgBytes = DefaultMaxArgumentBytes
	}
	if maxCalls <= 0 {
		maxCalls = DefaultMaxCallsPerTurn
	}
	return &DeltaAccumulator{
		maxArgBytes: maxArgBytes,
		maxCalls:    maxCalls,
		calls:       make(map[int]*callBuilder),
	}
}

// Add absorbs one fragment. Fragments for indices beyond the per-turn call
// ceiling are ignored; argument text beyond the byte ceiling is discarded
// and the call is marked truncated.
func (a *DeltaAccumulator) Add(d ToolCallDelta) {
	b, ok := a.calls[d.Index]
	if !ok {
		if len(a.calls) >= a.maxCalls {
			return
		}
		b = &callBuilder{}
		a.calls[d.Index] = b
	}

	if b.id == "" && d.ID != "" {
		b.id = d.ID
	}
	if b.name == "" && d.Name != "" {
		b.name = d.Name
	}
	if d.Arguments == "" || b.truncated {
		return
	}

	room := a.maxArgBytes - b.args.Len()
	if room <= 0 {
		b.truncated = true
		return
	}
	if len(d.Arguments) > room {
		b.args.WriteString(d.Arguments[:room])
		b.truncated = true
		return
	}
	b.args.WriteString(d.Arguments)
}

// Len reports how many distinct calls have accumulated.
func (a *DeltaAccumulator) Len() int {
	return len(a.calls)
}

// Finalize returns the assembled calls in ascending index order and resets
// the accumulator. A call that never received a name is returned anyway so
// the dispatcher can surface it as an unknown tool.
func (a *DeltaAccumulator) Finalize() []Assembled {
	indices := make([]int, 0, len(a.calls))
	for idx := range a.calls {
		indices = append(indices, idx)
	}
	sort.Ints(indices)

	out := make([]Assembled, 0, len(indices))
	for _, idx := range indices {
		b := a.calls[idx]
		out = append(out, Assembled{
			ToolCall: message.ToolCall{
				ID:        b.id,
				Name:      b.name,
				Arguments: b.args.String(),
			},
			Truncated: b.truncated,
		})
	}

	a.calls = make(map[int]*callBuilder)
	return out
}
