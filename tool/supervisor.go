package tool

import (
	"context"
	"fmt"
	"sync"
)

// Supervisor coordinates tool providers, ensuring their tools are registered
// with a Registry and refreshed when a provider reports changes.
type Supervisor struct {
	registry   *Registry
	mu         sync.Mutex
	providers  []Provider
	loaded     map[Provider]bool
	watchers   map[Provider]context.CancelFunc
	errHandler func(error)
}

// SupervisorOption configures a Supervisor.
type SupervisorOption func(*Supervisor)

// WithErrorHandler registers a callback for refresh failures.
func WithErrorHandler(handler func(error)) SupervisorOption {
	return func(s *Supervisor) {
		s.errHandler = handler
	}
}

// NewSupervisor constructs a Supervisor bound to the provided registry.
func NewSupervisor(registry *Registry, opts ...SupervisorOption) *Supervisor {
	if registry == nil {
		panic("tool: supervisor registry cannot be nil")
	}
	s := &Supervisor{
		registry: registry,
		loaded:   make(map[Provider]bool),
		watchers: make(map[Provider]context.CancelFunc),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(s)
	}
	return s
}

// Register adds a provider to the supervisor.
func (s *Supervisor) Register(provider Provider) {
	if provider == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.providers = append(s.providers, provider)
}

// Providers returns a copy of the registered providers.
func (s *Supervisor) Providers() []Provider {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := make([]Provider, len(s.providers))
	copy(copied, s.providers)
	return copied
}

// Refresh ensures all providers are loaded and watchers started.
func (s *Supervisor) Refresh(ctx context.Context) error {
	for _, provider := range s.Providers() {
		if provider == nil || s.isLoaded(provider) {
			continue
		}
		if err := s.updateProvider(ctx, provider); err != nil {
			return err
		}
		s.markLoaded(provider)
		s.startWatcher(provider)
	}
	return nil
}

// Close stops watchers and closes all providers.
func (s *Supervisor) Close() error {
	s.mu.Lock()
	providers := make([]Provider, len(s.providers))
	copy(providers, s.providers)
	for _, cancel := range s.watchers {
		cancel()
	}
	s.watchers = make(map[Provider]context.CancelFunc)
	s.loaded = make(map[Provider]bool)
	s.mu.Unlock()

	var firstErr error
	for _, provider := range providers {
		if provider == nil {
			continue
		}
		if err := provider.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (s *Supervisor) updateProvider(ctx context.Context, provider Provider) error {
	tools, err := provider.Tools(ctx)
	if err != nil {
		return fmt.Errorf("tool: load provider tools: %w", err)
	}

	for _, t := range tools {
		if t == nil || t.Name == "" {
			continue
		}
		if err := s.registry.Upsert(t); err != nil {
			return err
		}
	}
	return nil
}

func (s *Supervisor) startWatcher(provider Provider) {
	ch := provider.ToolsChanged()
	if ch == nil {
		return
	}

	s.mu.Lock()
	if _, exists := s.watchers[provider]; exists {
		s.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.watchers[provider] = cancel
	s.mu.Unlock()

	go s.watch(ctx, provider, ch)
}

func (s *Supervisor) watch(ctx context.Context, provider Provider, ch <-chan struct{}) {
	defer s.stopWatcher(provider)

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-ch:
			if !ok {
				return
			}
			if err := s.updateProvider(ctx, provider); err != nil {
				s.handleError(err)
			}
		}
	}
}

func (s *Supervisor) stopWatcher(provider Provider) {
	s.mu.Lock()
	if cancel, ok := s.watchers[provider]; ok {
		cancel()
		delete(s.watchers, provider)
	}
	s.mu.Unlock()
}

func (s *Supervisor) isLoaded(provider Provider) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loaded[provider]
}

func (s *Supervisor) markLoaded(provider Provider) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loaded[provider] = true
}

func (s *Supervisor) handleError(err error) {
	if err == nil || s.errHandler == nil {
		return
	}
	s.errHandler(err)
}
