// Package runner bounds how many agent invocations run at once. An HTTP
// frontend creates one Invocation per chat request; the runner's semaphore
// keeps concurrent model streams under a fixed ceiling.
package runner

import (
	"context"
	"fmt"
	"sync"

	"github.com/sweetpotato0/physio-agent/agent"
	"github.com/sweetpotato0/physio-agent/event"
	"github.com/sweetpotato0/physio-agent/message"
)

// DefaultMaxConcurrent is the invocation ceiling when none is configured.
const DefaultMaxConcurrent = 10

// Invocation is one agent run: its conversation history and the emitter
// receiving its progress events. Each invocation owns its emitter; runs never
// share one.
type Invocation struct {
	ID      string
	Agent   *agent.Agent
	History []*message.Message
	Emitter event.Emitter
}

// Outcome pairs an invocation with its result. Err is set only for
// runner-level failures (context cancelled while queued, panic); loop
// failures fold into the Result itself.
type Outcome struct {
	ID     string
	Result *agent.Result
	Err    error
}

// Runner executes invocations under a concurrency ceiling.
type Runner struct {
	semaphore chan struct{}
}

// New creates a runner allowing at most maxConcurrent simultaneous runs.
func New(maxConcurrent int) *Runner {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	return &Runner{
		semaphore: make(chan struct{}, maxConcurrent),
	}
}

// Run executes one invocation, blocking until a slot frees up or the context
// is cancelled while queued.
func (r *Runner) Run(ctx context.Context, inv *Invocation) (*agent.Result, error) {
	if inv == nil || inv.Agent == nil {
		return nil, fmt.Errorf("runner: invocation has no agent")
	}

	select {
	case r.semaphore <- struct{}{}:
		defer func() { <-r.semaphore }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	return inv.Agent.Run(ctx, inv.History, inv.Emitter), nil
}

// RunAll executes the invocations concurrently, each gated by the semaphore.
// Outcomes keep the input order. A panicking invocation is reported in its
// Outcome and does not take down its siblings.
func (r *Runner) RunAll(ctx context.Context, invs []*Invocation) []*Outcome {
	outcomes := make([]*Outcome, len(invs))
	var wg sync.WaitGroup

	for i, inv := range invs {
		wg.Add(1)
		go func(index int, inv *Invocation) {
			defer wg.Done()
			defer func() {
				if rec := recover(); rec != nil {
					outcomes[index] = &Outcome{
						ID:  invocationID(inv),
						Err: fmt.Errorf("runner: invocation %s panicked: %v", invocationID(inv), rec),
					}
				}
			}()

			result, err := r.Run(ctx, inv)
			outcomes[index] = &Outcome{
				ID:     invocationID(inv),
				Result: result,
				Err:    err,
			}
		}(i, inv)
	}

	wg.Wait()
	return outcomes
}

func invocationID(inv *Invocation) string {
	if inv == nil {
		return ""
	}
	return inv.ID
}
