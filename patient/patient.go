// Package patient reads patient muscle state from the clinical record
// service and renders it into the text summaries the assistant reasons over.
package patient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// MuscleState is one tracked muscle on the patient's body model. Strength
// and mobility are ratios in [0,1]; pain is the 0-10 numeric rating scale.
type MuscleState struct {
	MeshID    string  `json:"meshId"`
	Condition string  `json:"condition"`
	Pain      float64 `json:"pain"`
	Strength  float64 `json:"strength"`
	Mobility  float64 `json:"mobility"`
	Notes     string  `json:"notes,omitempty"`
	Summary   string  `json:"summary,omitempty"`
}

// HasIssues reports whether the muscle deviates from healthy baseline.
func (m MuscleState) HasIssues() bool {
	return m.Condition != "healthy" || m.Pain > 0
}

// BodyInfo carries the patient's physical profile used for context building.
type BodyInfo struct {
	Sex          string   `json:"sex"`
	WeightKg     float64  `json:"weightKg,omitempty"`
	HeightCm     float64  `json:"heightCm,omitempty"`
	Equipment    []string `json:"equipment,omitempty"`
	FitnessGoals string   `json:"fitnessGoals,omitempty"`
}

// Snapshot is everything the serving layer knows about the patient at the
// start of an invocation.
type Snapshot struct {
	MuscleStates     []MuscleState `json:"muscleStates"`
	Body             *BodyInfo     `json:"body,omitempty"`
	AvailableMeshIDs []string      `json:"availableMeshIds"`
	SelectedMeshIDs  []string      `json:"selectedMeshIds,omitempty"`
	ActiveGroups     []string      `json:"activeGroups,omitempty"`
}

// Client reads patient state. Implementations must be safe for concurrent
// use by parallel invocations.
type Client interface {
	MusclesByBody(ctx context.Context, bodyID string) ([]MuscleState, error)
}

// HTTPClient talks to the patient record service over its JSON query API.
type HTTPClient struct {
	baseURL string
	token   string
	http    *http.Client
}

// HTTPOption configures the HTTP client.
type HTTPOption func(*HTTPClient)

// WithToken sets the bearer token sent with every request.
func WithToken(token string) HTTPOption {
	return func(c *HTTPClient) {
		c.token = token
	}
}

// WithHTTPClient swaps the underlying http.Client, e.g. for timeouts.
func WithHTTPClient(client *http.Client) HTTPOption {
	return func(c *HTTPClient) {
		if client != nil {
			c.http = client
		}
	}
}

// NewHTTPClient creates a client for the given service base URL.
func NewHTTPClient(baseURL string, opts ...HTTPOption) *HTTPClient {
	c := &HTTPClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

type queryRequest struct {
	Path string         `json:"path"`
	Args map[string]any `json:"args"`
}

type queryResponse struct {
	Status       string          `json:"status"`
	Value        json.RawMessage `json:"value"`
	ErrorMessage string          `json:"errorMessage,omitempty"`
}

// MusclesByBody fetches every tracked muscle for one body.
func (c *HTTPClient) MusclesByBody(ctx context.Context, bodyID string) ([]MuscleState, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("patient service URL not configured")
	}
	if bodyID == "" {
		return nil, fmt.Errorf("body id cannot be empty")
	}

	var muscles []MuscleState
	err := c.query(ctx, "muscles:getByBody", map[string]any{"bodyId": bodyID}, &muscles)
	if err != nil {
		return nil, err
	}
	return muscles, nil
}

func (c *HTTPClient) query(ctx context.Context, path string, args map[string]any, out any) error {
	body, err := json.Marshal(queryRequest{Path: path, Args: args})
	if err != nil {
		return fmt.Errorf("marshal query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/query", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("query %s: %w", path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("query %s: status %d: %s", path, resp.StatusCode, bytes.TrimSpace(data))
	}

	var envelope queryResponse
	if err := json.Unmarshal(data, &envelope); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if envelope.Status != "" && envelope.Status != "success" {
		return fmt.Errorf("query %s failed: %s", path, envelope.ErrorMessage)
	}
	payload := envelope.Value
	if payload == nil {
		payload = data
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decode %s value: %w", path, err)
	}
	return nil
}

var (
	defaultClient Client
	defaultOnce   sync.Once
)

// SetDefault installs the process-wide client handle, once. Later calls are
// ignored so concurrent invocations never observe a swap.
func SetDefault(c Client) {
	if c == nil {
		return
	}
	defaultOnce.Do(func() { defaultClient = c })
}

// Default returns the process-wide client, or nil if none was installed.
func Default() Client {
	return defaultClient
}
