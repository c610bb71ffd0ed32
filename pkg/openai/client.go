// Package openai is a client for the Responses API with web search enabled.
// It normalizes every response into model.RawResponse so the rest of the
// pipeline never sees wire shapes, and classifies HTTP failures for the
// retry engine.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/commentary-cli/internal/model"
	"github.com/sells-group/commentary-cli/internal/resilience"
)

const (
	defaultBaseURL      = "https://api.openai.com/v1"
	defaultModel        = "gpt-5.2"
	defaultPollInterval = 2 * time.Second
)

// Client generates commentary for a single security per call.
type Client interface {
	Generate(ctx context.Context, req Request) (*model.RawResponse, error)
}

// Request is one generation request. It must never carry a portfolio code or
// a request key; only the ticker, security name and period travel outbound
// (inside Prompt).
type Request struct {
	DeveloperPrompt  string
	Prompt           string
	Effort           string // "low", "medium", "high"
	WebSearch        bool
	PreferredDomains []string
}

// EffortTimeout maps a reasoning effort to a per-attempt timeout budget.
// Deep reasoning can take several minutes.
func EffortTimeout(effort string) time.Duration {
	switch effort {
	case "low":
		return 2 * time.Minute
	case "high":
		return 10 * time.Minute
	default:
		return 5 * time.Minute
	}
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithModel overrides the default model.
func WithModel(m string) Option {
	return func(c *httpClient) {
		c.model = m
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithPollInterval overrides the delay between status polls.
func WithPollInterval(d time.Duration) Option {
	return func(c *httpClient) {
		c.pollInterval = d
	}
}

type httpClient struct {
	apiKey       string
	baseURL      string
	model        string
	pollInterval time.Duration
	http         *http.Client
}

// NewClient creates a Responses API client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:       apiKey,
		baseURL:      defaultBaseURL,
		model:        defaultModel,
		pollInterval: defaultPollInterval,
		http: &http.Client{
			// No client-level timeout: the per-attempt budget comes from the
			// request context, sized by reasoning effort.
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// wire shapes for POST /responses

type inputMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type reasoningSpec struct {
	Effort string `json:"effort"`
}

type toolSpec struct {
	Type    string       `json:"type"`
	Filters *toolFilters `json:"filters,omitempty"`
}

type toolFilters struct {
	AllowedDomains []string `json:"allowed_domains,omitempty"`
}

type generateRequest struct {
	Model     string         `json:"model"`
	Input     []inputMessage `json:"input"`
	Reasoning reasoningSpec  `json:"reasoning"`
	Tools     []toolSpec     `json:"tools,omitempty"`
}

func (c *httpClient) Generate(ctx context.Context, req Request) (*model.RawResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, EffortTimeout(req.Effort))
	defer cancel()

	effort := req.Effort
	if effort == "" {
		effort = "medium"
	}

	body := generateRequest{
		Model: c.model,
		Input: []inputMessage{
			{Role: "developer", Content: req.DeveloperPrompt},
			{Role: "user", Content: req.Prompt},
		},
		Reasoning: reasoningSpec{Effort: effort},
	}
	if req.WebSearch {
		tool := toolSpec{Type: "web_search"}
		if len(req.PreferredDomains) > 0 {
			tool.Filters = &toolFilters{AllowedDomains: req.PreferredDomains}
		}
		body.Tools = []toolSpec{tool}
	}

	env, err := c.post(ctx, body)
	if err != nil {
		return nil, err
	}

	// The API may answer before the response has finished generating.
	if env.ID != "" && pendingStatus(env.Status) {
		env, err = c.poll(ctx, env.ID)
		if err != nil {
			return nil, err
		}
	}

	return normalize(env)
}

func (c *httpClient) post(ctx context.Context, body generateRequest) (*responseEnvelope, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, eris.Wrap(err, "openai: marshal request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/responses", bytes.NewReader(payload))
	if err != nil {
		return nil, eris.Wrap(err, "openai: create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	return c.do(httpReq)
}

func (c *httpClient) poll(ctx context.Context, id string) (*responseEnvelope, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, eris.Wrap(ctx.Err(), "openai: poll deadline")
		case <-time.After(c.pollInterval):
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/responses/"+id, nil)
		if err != nil {
			return nil, eris.Wrap(err, "openai: create poll request")
		}
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

		env, err := c.do(httpReq)
		if err != nil {
			return nil, err
		}
		if !pendingStatus(env.Status) {
			return env, nil
		}
	}
}

// do sends the request and maps HTTP-level failures onto the resilience
// taxonomy: 429 with Retry-After, transient 5xx, permanent other 4xx.
func (c *httpClient) do(req *http.Request) (*responseEnvelope, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "openai: send request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "openai: read response")
	}

	if resp.StatusCode != http.StatusOK {
		apiErr := eris.Errorf("openai: unexpected status %d: %s", resp.StatusCode, truncate(respBody, 200))
		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			return nil, resilience.NewRateLimitError(apiErr, parseRetryAfter(resp.Header.Get("Retry-After")))
		case resilience.IsTransientHTTPStatus(resp.StatusCode):
			return nil, resilience.NewTransientError(apiErr, resp.StatusCode)
		default:
			return nil, resilience.NewPermanentError(apiErr, resp.StatusCode)
		}
	}

	var env responseEnvelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return nil, eris.Wrap(err, "openai: unmarshal response")
	}
	return &env, nil
}

func pendingStatus(status string) bool {
	switch status {
	case "queued", "in_progress", "running":
		return true
	}
	return false
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	secs, err := strconv.ParseFloat(header, 64)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs * float64(time.Second))
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
