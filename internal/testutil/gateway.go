package testutil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/tidwall/gjson"
)

// GatewayStub is an httptest server mimicking an OpenAI-compatible chat
// completion endpoint, serving both buffered and streaming responses.
type GatewayStub struct {
	Server *httptest.Server

	// Content is the assistant text returned, split into word chunks when
	// streaming.
	Content string
	// TokensIn and TokensOut populate the usage block. When both are zero no
	// usage is reported.
	TokensIn  int
	TokensOut int
	// StatusCode, when non-zero, makes every request fail with that status
	// and Body as the response payload.
	StatusCode int
	Body       string

	// Requests records the raw JSON body of each request.
	Requests []string
}

// NewGatewayStub starts a stub gateway; it is shut down via t.Cleanup.
func NewGatewayStub(t *testing.T) *GatewayStub {
	t.Helper()

	stub := &GatewayStub{Content: "stub response"}
	stub.Server = httptest.NewServer(http.HandlerFunc(stub.handle))
	t.Cleanup(stub.Server.Close)
	return stub
}

// URL returns the stub's base URL.
func (g *GatewayStub) URL() string {
	return g.Server.URL
}

// LastRequest returns the most recent request body, or empty.
func (g *GatewayStub) LastRequest() string {
	if len(g.Requests) == 0 {
		return ""
	}
	return g.Requests[len(g.Requests)-1]
}

func (g *GatewayStub) handle(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	g.Requests = append(g.Requests, string(body))

	if g.StatusCode != 0 {
		w.WriteHeader(g.StatusCode)
		fmt.Fprint(w, g.Body)
		return
	}

	parsed := gjson.ParseBytes(body)
	model := parsed.Get("model").String()
	if parsed.Get("stream").Bool() {
		g.serveStream(w, model)
		return
	}
	g.serveBuffered(w, model)
}

func (g *GatewayStub) serveBuffered(w http.ResponseWriter, model string) {
	resp := map[string]any{
		"model": model,
		"choices": []any{
			map[string]any{"message": map[string]any{"role": "assistant", "content": g.Content}},
		},
	}
	if g.TokensIn > 0 || g.TokensOut > 0 {
		resp["usage"] = map[string]any{
			"prompt_tokens":     g.TokensIn,
			"completion_tokens": g.TokensOut,
		}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (g *GatewayStub) serveStream(w http.ResponseWriter, model string) {
	w.Header().Set("Content-Type", "text/event-stream")
	flusher, _ := w.(http.Flusher)

	writeFrame := func(payload any) {
		data, _ := json.Marshal(payload)
		fmt.Fprintf(w, "data: %s\n\n", data)
		if flusher != nil {
			flusher.Flush()
		}
	}

	words := strings.SplitAfter(g.Content, " ")
	for _, word := range words {
		if word == "" {
			continue
		}
		writeFrame(map[string]any{
			"model":   model,
			"choices": []any{map[string]any{"delta": map[string]any{"content": word}}},
		})
	}
	if g.TokensIn > 0 || g.TokensOut > 0 {
		writeFrame(map[string]any{
			"choices": []any{map[string]any{"delta": map[string]any{}}},
			"usage": map[string]any{
				"prompt_tokens":     g.TokensIn,
				"completion_tokens": g.TokensOut,
			},
		})
	}
	fmt.Fprint(w, "data: [DONE]\n\n")
	if flusher != nil {
		flusher.Flush()
	}
}
