package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pointstack/pointstack/internal/log"
)

func TestCompleteParsesResponse(t *testing.T) {
	var gotReq map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"model": "google/gemini-2.5-flash",
			"choices": [{"message": {"role": "assistant", "content": "You earned 4200 points."}}],
			"usage": {"prompt_tokens": 120, "completion_tokens": 18}
		}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "test-key", nil, log.NewNop())
	got, err := c.Complete(context.Background(), Request{
		Model:    "google/gemini-2.5-flash",
		Messages: []Message{{Role: "user", Content: "points?"}},
	})
	require.NoError(t, err)

	assert.Equal(t, "You earned 4200 points.", got.Content)
	assert.Equal(t, "google/gemini-2.5-flash", got.Model)
	assert.Equal(t, 120, got.TokensInput)
	assert.Equal(t, 18, got.TokensOutput)

	assert.Equal(t, "google/gemini-2.5-flash", gotReq["model"])
	assert.Nil(t, gotReq["stream"])
}

func TestStreamSetsStreamFlagsAndReturnsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, true, req["stream"])
		opts, ok := req["stream_options"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, true, opts["include_usage"])

		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"hi\"}}]}\n\ndata: [DONE]\n\n"))
	}))
	defer srv.Close()

	c := New(srv.URL, "test-key", nil, log.NewNop())
	body, err := c.Stream(context.Background(), Request{Model: "m"})
	require.NoError(t, err)
	defer func() { _ = body.Close() }()

	raw, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"content":"hi"`)
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		check  func(t *testing.T, err error)
	}{
		{
			name:   "rate limited",
			status: http.StatusTooManyRequests,
			body:   `{"error":{"message":"Rate limit exceeded"}}`,
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrRateLimited)
			},
		},
		{
			name:   "quota exhausted",
			status: http.StatusPaymentRequired,
			body:   `{"error":{"message":"Payment required"}}`,
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrQuotaExhausted)
			},
		},
		{
			name:   "insufficient quota code on non-402 status",
			status: http.StatusForbidden,
			body:   `{"error":{"code":"insufficient_quota","message":"out of credits"}}`,
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrQuotaExhausted)
			},
		},
		{
			name:   "other upstream error",
			status: http.StatusBadGateway,
			body:   `{"error":{"message":"model overloaded"}}`,
			check: func(t *testing.T, err error) {
				var statusErr *StatusError
				require.ErrorAs(t, err, &statusErr)
				assert.Equal(t, http.StatusBadGateway, statusErr.Code)
				assert.Equal(t, "model overloaded", statusErr.Message)
			},
		},
		{
			name:   "non-JSON error body",
			status: http.StatusInternalServerError,
			body:   "upstream exploded",
			check: func(t *testing.T, err error) {
				var statusErr *StatusError
				require.ErrorAs(t, err, &statusErr)
				assert.Equal(t, "upstream exploded", statusErr.Message)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := New(srv.URL, "test-key", nil, log.NewNop())
			_, err := c.Complete(context.Background(), Request{Model: "m"})
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestContextCancellationPropagates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := New(srv.URL, "test-key", nil, log.NewNop())
	_, err := c.Complete(ctx, Request{Model: "m"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
