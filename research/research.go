// Package research implements the nested clinical research sub-agent. A
// single research tool call fans out into several knowledge-base searches
// chosen by a planning model, publishes a progress notice per search, and
// synthesizes the gathered evidence into one answer.
package research

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sweetpotato0/physio-agent/agent"
	"github.com/sweetpotato0/physio-agent/kb"
	"github.com/sweetpotato0/physio-agent/message"
	"github.com/sweetpotato0/physio-agent/pkg/logging"
	"github.com/sweetpotato0/physio-agent/tool"
)

// DefaultMaxSteps bounds how many searches one research call may run.
const DefaultMaxSteps = 4

// DefaultTopK is the per-search result count.
const DefaultTopK = 4

// Agent plans and executes a bounded multi-search investigation.
type Agent struct {
	retriever *kb.Retriever
	llm       agent.Provider
	model     string
	maxSteps  int
	topK      int
	logger    *slog.Logger
}

// Option configures the research agent.
type Option func(*Agent)

// WithMaxSteps caps the number of searches per research call.
func WithMaxSteps(n int) Option {
	return func(a *Agent) {
		if n > 0 {
			a.maxSteps = n
		}
	}
}

// WithTopK sets how many results each search contributes.
func WithTopK(k int) Option {
	return func(a *Agent) {
		if k > 0 {
			a.topK = k
		}
	}
}

// WithModel sets the model used for planning and synthesis.
func WithModel(model string) Option {
	return func(a *Agent) {
		a.model = model
	}
}

// New creates a research agent over the given retriever and provider.
func New(retriever *kb.Retriever, llm agent.Provider, opts ...Option) *Agent {
	a := &Agent{
		retriever: retriever,
		llm:       llm,
		maxSteps:  DefaultMaxSteps,
		topK:      DefaultTopK,
		logger:    logging.WithComponent("research"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// step is one planned search. Kind selects the retrieval strategy, Term the
// filter value, Query the free-text query where the strategy takes one.
type step struct {
	Kind  string `json:"kind"`
	Term  string `json:"term"`
	Query string `json:"query,omitempty"`
}

type plan struct {
	Searches []step `json:"searches"`
}

const plannerPrompt = `You are a clinical research planner for a physical therapy knowledge base.
Given a question, produce up to %d searches that together cover it.

Each search has:
- "kind": one of "general", "muscle_group", "condition", "exercise", "content_type"
- "term": for muscle_group one of [%s]; for condition a diagnosis; for exercise an exercise name; for content_type one of [%s]; empty for general
- "query": the free-text query (required for general and content_type)

Respond with a single JSON object: {"searches": [{"kind": "...", "term": "...", "query": "..."}]}`

const synthesisPrompt = `You are a physical therapy clinical decision support assistant.
Answer the question using ONLY the evidence provided. Cite evidence by its [n] marker.
If the evidence does not cover the question, say so clearly rather than guessing.
Be specific about muscle groups, conditions, and exercises.
You do NOT diagnose or prescribe; you summarize evidence to support clinical decision-making.`

// Run investigates the query, forwarding one Notice per search to notify.
// Notices are sent non-blocking; a full channel drops the notice rather than
// stalling the search. The focus string biases planning toward one body area
// or condition.
func (a *Agent) Run(ctx context.Context, query, focus string, notify chan<- tool.Notice) (string, error) {
	if a.retriever == nil {
		return "", fmt.Errorf("research retriever is not configured")
	}
	if strings.TrimSpace(query) == "" {
		return "", fmt.Errorf("research query cannot be empty")
	}

	steps := a.plan(ctx, query, focus)
	evidence := a.gather(ctx, query, steps, notify)
	if len(evidence) == 0 {
		return "No relevant results found.", nil
	}

	answer, err := a.synthesize(ctx, query, evidence)
	if err != nil {
		// The searches already ran; hand back the raw evidence rather than
		// failing the whole tool call.
		a.logger.Warn("synthesis failed, returning formatted evidence", "error", err)
		return "Evidence gathered (synthesis unavailable):\n\n" + kb.FormatResults(evidence), nil
	}
	return answer, nil
}

// plan asks the model for a search plan, falling back to a heuristic plan
// when the model is unavailable or returns garbage.
func (a *Agent) plan(ctx context.Context, query, focus string) []step {
	fallback := a.heuristicPlan(query, focus)
	if a.llm == nil {
		return fallback
	}

	system := fmt.Sprintf(plannerPrompt, a.maxSteps,
		strings.Join(kb.MuscleGroups, ", "), strings.Join(kb.ContentTypes, ", "))
	user := "Question: " + query
	if focus != "" {
		user += "\nFocus area: " + focus
	}
	resp, err := a.llm.Generate(ctx, &agent.GenerateRequest{
		Model: a.model,
		Messages: []*message.Message{
			message.NewMessage(message.RoleSystem, system),
			message.NewMessage(message.RoleUser, user+"\nReturn JSON only."),
		},
	})
	if err != nil || resp == nil {
		a.logger.Warn("planning failed, using heuristic plan", "error", err)
		return fallback
	}

	p, err := decodeJSON[plan](resp.Content)
	if err != nil || len(p.Searches) == 0 {
		a.logger.Warn("planner output invalid, using heuristic plan", "error", err)
		return fallback
	}
	if len(p.Searches) > a.maxSteps {
		p.Searches = p.Searches[:a.maxSteps]
	}
	return p.Searches
}

// heuristicPlan covers the query without a model: a general search, plus a
// muscle-group search when the focus names a known group, plus a condition
// search treating the focus as a diagnosis otherwise.
func (a *Agent) heuristicPlan(query, focus string) []step {
	steps := []step{{Kind: "general", Query: query}}
	focus = strings.ToLower(strings.TrimSpace(focus))
	if focus == "" {
		return steps
	}
	if kb.ValidMuscleGroup(focus) {
		return append(steps, step{Kind: "muscle_group", Term: focus})
	}
	return append(steps, step{Kind: "condition", Term: focus})
}

// gather executes the plan sequentially, deduplicating evidence across
// searches. Failed searches are skipped, not fatal.
func (a *Agent) gather(ctx context.Context, query string, steps []step, notify chan<- tool.Notice) []kb.Result {
	seen := make(map[string]bool)
	var evidence []kb.Result

	for i, s := range steps {
		if i >= a.maxSteps {
			break
		}
		if ctx.Err() != nil {
			break
		}

		sendNotice(notify, noticeFor(s))
		results, err := a.search(ctx, query, s)
		if err != nil {
			a.logger.Warn("research search failed", "kind", s.Kind, "term", s.Term, "error", err)
			continue
		}
		for _, r := range results {
			key := r.ID
			if key == "" {
				key = r.Text
			}
			if seen[key] {
				continue
			}
			seen[key] = true
			evidence = append(evidence, r)
		}
	}
	return evidence
}

func (a *Agent) search(ctx context.Context, query string, s step) ([]kb.Result, error) {
	switch s.Kind {
	case "muscle_group":
		return a.retriever.SearchMuscleGroup(ctx, s.Term, a.topK)
	case "condition":
		return a.retriever.SearchCondition(ctx, s.Term, a.topK)
	case "exercise":
		return a.retriever.SearchExercise(ctx, s.Term, a.topK)
	case "content_type":
		q := s.Query
		if q == "" {
			q = query
		}
		return a.retriever.SearchContentType(ctx, s.Term, q, a.topK)
	default:
		q := s.Query
		if q == "" {
			q = query
		}
		return a.retriever.Search(ctx, q, a.topK, nil)
	}
}

func (a *Agent) synthesize(ctx context.Context, query string, evidence []kb.Result) (string, error) {
	if a.llm == nil {
		return "", fmt.Errorf("research LLM is not configured")
	}

	user := fmt.Sprintf("Question:\n%s\n\nEvidence:\n%s", query, kb.FormatResults(evidence))
	resp, err := a.llm.Generate(ctx, &agent.GenerateRequest{
		Model: a.model,
		Messages: []*message.Message{
			message.NewMessage(message.RoleSystem, synthesisPrompt),
			message.NewMessage(message.RoleUser, user),
		},
	})
	if err != nil {
		return "", fmt.Errorf("synthesize: %w", err)
	}
	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		return "", fmt.Errorf("synthesizer returned empty response")
	}
	return strings.TrimSpace(resp.Content), nil
}

// noticeFor maps a planned search to the progress notice the client sees.
func noticeFor(s step) tool.Notice {
	switch s.Kind {
	case "muscle_group":
		return tool.Notice{Tool: "search_by_muscle_group", Label: "Searching by muscle group: " + s.Term}
	case "condition":
		return tool.Notice{Tool: "search_by_condition", Label: "Searching by condition: " + s.Term}
	case "exercise":
		return tool.Notice{Tool: "search_by_exercise", Label: "Searching exercise database: " + s.Term}
	case "content_type":
		return tool.Notice{Tool: "search_by_content_type", Label: "Searching " + s.Term + " content"}
	default:
		return tool.Notice{Tool: "search_knowledge_base", Label: "Searching knowledge base"}
	}
}

func sendNotice(notify chan<- tool.Notice, n tool.Notice) {
	if notify == nil {
		return
	}
	select {
	case notify <- n:
	default:
	}
}

func decodeJSON[T any](raw string) (*T, error) {
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed[3:], "json")
		if idx := strings.Index(trimmed, "```"); idx >= 0 {
			trimmed = trimmed[:idx]
		}
	}
	var out T
	if err := json.Unmarshal([]byte(strings.TrimSpace(trimmed)), &out); err != nil {
		return nil, fmt.Errorf("decode JSON: %w", err)
	}
	return &out, nil
}
