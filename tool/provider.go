package tool

import "context"

// Provider supplies tools that can be registered with an agent.
type Provider interface {
	// Tools returns the provider's current tool definitions.
	Tools(ctx context.Context) ([]*Tool, error)
	// Close releases resources owned by the provider.
	Close() error
	// ToolsChanged returns a channel that fires when the tool set is updated.
	// Providers that do not support live updates should return nil.
	ToolsChanged() <-chan struct{}
}

// Static is a Provider over a fixed set of tools. It never changes and owns
// no resources; Close is a no-op.
type Static struct {
	tools []*Tool
}

// NewStatic creates a provider that always returns the given tools.
func NewStatic(tools ...*Tool) *Static {
	return &Static{tools: tools}
}

// Tools returns the fixed tool set.
func (s *Static) Tools(context.Context) ([]*Tool, error) {
	out := make([]*Tool, len(s.tools))
	copy(out, s.tools)
	return out, nil
}

// Close implements Provider.
func (s *Static) Close() error { return nil }

// ToolsChanged implements Provider; static sets never change.
func (s *Static) ToolsChanged() <-chan struct{} { return nil }
