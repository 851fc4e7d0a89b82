// Package gateway is the HTTP client for the chat-completion gateway.
//
// The gateway speaks the OpenAI chat-completions wire format and supports
// both buffered and streamed (SSE) responses. This client maps the gateway's
// failure statuses onto sentinel errors so the API layer can surface matching
// HTTP status codes; it imposes no timeout of its own beyond the injected
// http.Client's, and propagates upstream timeouts as errors.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request describes one chat-completion call.
type Request struct {
	Model     string
	Messages  []Message
	MaxTokens int
}

// Completion is a buffered (non-streamed) gateway response.
type Completion struct {
	Content      string
	Model        string
	TokensInput  int
	TokensOutput int
}

// Client calls the chat-completion gateway.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates a gateway Client. A nil httpClient uses http.DefaultClient;
// a nil logger uses slog.Default().
func New(baseURL, apiKey string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: httpClient,
		logger:     logger,
	}
}

// wireRequest is the OpenAI chat-completions request body.
type wireRequest struct {
	Model         string     `json:"model"`
	Messages      []Message  `json:"messages"`
	MaxTokens     int        `json:"max_tokens,omitempty"`
	Stream        bool       `json:"stream,omitempty"`
	StreamOptions *streamOpt `json:"stream_options,omitempty"`
}

type streamOpt struct {
	IncludeUsage bool `json:"include_usage"`
}

// Complete performs a buffered chat-completion call.
func (c *Client) Complete(ctx context.Context, req Request) (*Completion, error) {
	resp, err := c.post(ctx, wireRequest{
		Model:     req.Model,
		Messages:  req.Messages,
		MaxTokens: req.MaxTokens,
	})
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading gateway response: %w", err)
	}

	parsed := gjson.ParseBytes(body)
	return &Completion{
		Content:      parsed.Get("choices.0.message.content").String(),
		Model:        parsed.Get("model").String(),
		TokensInput:  int(parsed.Get("usage.prompt_tokens").Int()),
		TokensOutput: int(parsed.Get("usage.completion_tokens").Int()),
	}, nil
}

// Stream performs a streamed chat-completion call and returns the raw SSE
// body. The caller owns the returned ReadCloser.
func (c *Client) Stream(ctx context.Context, req Request) (io.ReadCloser, error) {
	resp, err := c.post(ctx, wireRequest{
		Model:         req.Model,
		Messages:      req.Messages,
		MaxTokens:     req.MaxTokens,
		Stream:        true,
		StreamOptions: &streamOpt{IncludeUsage: true},
	})
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// post sends the request and maps failure statuses to sentinel errors.
// On success the caller owns resp.Body.
func (c *Client) post(ctx context.Context, body wireRequest) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encoding gateway request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building gateway request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("calling gateway: %w", err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}

	// Failure: read a bounded excerpt of the error body, then map the status.
	excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	_ = resp.Body.Close()

	c.logger.Warn("gateway call failed",
		"status", resp.StatusCode,
		"model", body.Model,
	)

	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		return nil, ErrRateLimited
	case http.StatusPaymentRequired:
		return nil, ErrQuotaExhausted
	default:
		// Some providers report exhausted credits with a non-402 status.
		if gjson.GetBytes(excerpt, "error.code").String() == "insufficient_quota" {
			return nil, ErrQuotaExhausted
		}
		return nil, &StatusError{Code: resp.StatusCode, Message: errorMessage(excerpt)}
	}
}

// errorMessage extracts the provider's error message from a failure body,
// falling back to the raw excerpt.
func errorMessage(body []byte) string {
	if msg := gjson.GetBytes(body, "error.message").String(); msg != "" {
		return msg
	}
	return strings.TrimSpace(string(body))
}
