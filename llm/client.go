// Package llm provides a provider-agnostic LLM client. Providers are small
// HTTP adapters registered via init(); transport failures and retryable API
// statuses are retried under the shared retry policy.
package llm

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/aissential/contractwatch/retry"
)

// maxResponseSize limits the LLM response body to prevent memory exhaustion.
const maxResponseSize = 10 * 1024 * 1024 // 10MB

// Client is a provider-agnostic LLM client.
type Client struct {
	httpClient *http.Client
	policy     retry.Policy
	logger     *slog.Logger
}

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"`    // "system", "user", or "assistant"
	Content string `json:"content"` // Message content
}

// Request defines an LLM completion request. Provider, Model, and APIKey are
// per-request so one client can serve multiple configured model uses.
type Request struct {
	// Provider selects the registered provider adapter.
	Provider string

	// Model is the model identifier sent to the provider.
	Model string

	// APIKey authenticates the request.
	APIKey string

	// BaseURL overrides the provider's public endpoint (proxies, tests).
	BaseURL string

	// Messages is the chat history to send to the LLM.
	Messages []Message

	// Temperature controls randomness. nil uses the provider default.
	Temperature *float64

	// MaxTokens limits response length. 0 uses the provider default.
	MaxTokens int
}

// TokenUsage represents token consumption details for an LLM call.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response contains the LLM completion result.
type Response struct {
	// RequestID uniquely identifies this LLM call in logs.
	RequestID string

	// Content is the generated text.
	Content string

	// Model is the actual model that was used.
	Model string

	// Usage contains token consumption metrics.
	Usage TokenUsage

	// FinishReason indicates why generation stopped.
	FinishReason string
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(client *Client) {
		client.httpClient = c
	}
}

// WithRetryPolicy sets the retry policy for LLM requests.
func WithRetryPolicy(p retry.Policy) ClientOption {
	return func(client *Client) {
		client.policy = p
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(client *Client) {
		client.logger = logger
	}
}

// NewClient creates a new LLM client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		policy: retry.DefaultPolicy(),
		httpClient: &http.Client{
			Timeout: 180 * time.Second, // Allow time for LLM responses
		},
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Complete sends a completion request, retrying transient failures.
func (c *Client) Complete(ctx context.Context, req Request) (*Response, error) {
	if req.Provider == "" {
		return nil, fmt.Errorf("provider is required")
	}
	if req.Model == "" {
		return nil, fmt.Errorf("model is required")
	}
	if len(req.Messages) == 0 {
		return nil, fmt.Errorf("at least one message is required")
	}

	provider := GetProvider(req.Provider)
	if provider == nil {
		return nil, fmt.Errorf("unknown provider: %s", req.Provider)
	}

	requestID := uuid.New().String()
	startedAt := time.Now()

	resp, err := retry.Do(ctx, c.policy, "llm:"+req.Provider, func(ctx context.Context) (*Response, error) {
		return c.doRequest(ctx, provider, req)
	})
	if err != nil {
		return nil, err
	}

	resp.RequestID = requestID
	c.logger.Debug("LLM request completed",
		"request_id", requestID,
		"provider", req.Provider,
		"model", resp.Model,
		"tokens", resp.Usage.TotalTokens,
		"duration_ms", time.Since(startedAt).Milliseconds())

	return resp, nil
}

// doRequest executes a single HTTP request to the provider endpoint.
func (c *Client) doRequest(ctx context.Context, provider Provider, req Request) (*Response, error) {
	url := provider.BuildURL(req.BaseURL)

	body, err := provider.BuildRequestBody(req.Model, req.Messages, req.Temperature, req.MaxTokens)
	if err != nil {
		return nil, retry.NewFatalError(fmt.Errorf("build request body: %w", err))
	}

	c.logger.Debug("Sending LLM request",
		"provider", provider.Name(),
		"model", req.Model,
		"url", url,
		"messages", len(req.Messages))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, retry.NewFatalError(fmt.Errorf("create HTTP request: %w", err))
	}

	httpReq.Header.Set("Content-Type", "application/json")
	provider.SetHeaders(httpReq, req.APIKey)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		// Network errors and timeouts are transient
		return nil, retry.NewTransientError(fmt.Errorf("HTTP request failed: %w", err))
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseSize))
	if err != nil {
		return nil, retry.NewTransientError(fmt.Errorf("read response body: %w", err))
	}

	if httpResp.StatusCode != http.StatusOK {
		if httpResp.StatusCode == http.StatusTooManyRequests {
			if hint := parseRetryAfter(httpResp.Header.Get("Retry-After")); hint > 0 {
				return nil, retry.NewRateLimitError(
					fmt.Errorf("LLM API rate limited (status 429)"), hint)
			}
		}
		return nil, retry.ClassifyHTTPStatus(httpResp.StatusCode, respBody)
	}

	resp, err := provider.ParseResponse(respBody, req.Model)
	if err != nil {
		// A 200 with an unparseable body will not improve on retry
		return nil, retry.NewFatalError(err)
	}
	return resp, nil
}

// parseRetryAfter parses a Retry-After header given in seconds. Returns 0
// when absent or unparseable.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	secs, err := strconv.Atoi(value)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
