package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pointstack/pointstack/internal/cache"
	"github.com/pointstack/pointstack/internal/eval"
	"github.com/pointstack/pointstack/internal/gateway"
	"github.com/pointstack/pointstack/internal/log"
	"github.com/pointstack/pointstack/internal/relay"
	"github.com/pointstack/pointstack/internal/retrieval"
	"github.com/pointstack/pointstack/internal/router"
)

// ModelGateway is the slice of the completion gateway the handler needs.
type ModelGateway interface {
	Complete(ctx context.Context, req gateway.Request) (*gateway.Completion, error)
	Stream(ctx context.Context, req gateway.Request) (io.ReadCloser, error)
}

// FollowUpSource produces suggested next questions, best-effort.
type FollowUpSource interface {
	Generate(ctx context.Context, query, response string, snippets []string) []string
}

// ChatHandler orchestrates the chat pipeline: cache lookup, context
// retrieval, model routing, completion, and post-stream bookkeeping.
type ChatHandler struct {
	cache     *cache.Gateway
	retriever *retrieval.Aggregator
	gateway   ModelGateway
	usage     *eval.Logger
	followups FollowUpSource
	logger    log.Logger
}

// NewChatHandler wires the chat pipeline together.
func NewChatHandler(
	cacheGW *cache.Gateway,
	retriever *retrieval.Aggregator,
	modelGW ModelGateway,
	usage *eval.Logger,
	followups FollowUpSource,
	logger log.Logger,
) *ChatHandler {
	return &ChatHandler{
		cache:     cacheGW,
		retriever: retriever,
		gateway:   modelGW,
		usage:     usage,
		followups: followups,
		logger:    logger,
	}
}

// RegisterRoutes registers chat routes on the given mux.
func (h *ChatHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/chat", h.handleChat)
}

// ChatRequest is the inbound chat request body.
type ChatRequest struct {
	Messages       []gateway.Message `json:"messages"`
	UserID         string            `json:"userId"`
	TaskType       string            `json:"taskType"`
	IncludeContext *bool             `json:"includeContext"`
	Stream         *bool             `json:"stream"`
	SelectedCardID string            `json:"selectedCardId"`
}

// ChatResponse is the buffered (non-streaming) response body.
type ChatResponse struct {
	Content           string   `json:"content"`
	Model             string   `json:"model"`
	Cached            bool     `json:"cached"`
	SemanticMatch     *bool    `json:"semanticMatch,omitempty"`
	Similarity        *float64 `json:"similarity,omitempty"`
	FollowUpQuestions []string `json:"followUpQuestions,omitempty"`
}

func (h *ChatHandler) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	query, err := validateMessages(req.Messages)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	task := router.TaskChat
	if req.TaskType != "" {
		task = router.TaskType(req.TaskType)
	}
	includeContext := req.IncludeContext == nil || *req.IncludeContext
	streaming := req.Stream == nil || *req.Stream

	ctx := r.Context()

	if entry, ok := h.cache.Lookup(ctx, query); ok {
		h.serveCacheHit(w, r, &req, task, query, entry, streaming)
		return
	}

	contextSection := retrieval.NoUserDataNotice
	var snippets []string
	if includeContext {
		retrieved := h.retriever.Retrieve(ctx, query, req.UserID, req.SelectedCardID)
		contextSection = retrieval.BuildContextSection(retrieved)
		snippets = retrieved.Snippets()
	}

	selection := router.Select(task, len(contextSection))
	h.logger.Info("model selected",
		"model", selection.Model,
		"reason", selection.Reason,
		"task", task,
		"context_chars", len(contextSection),
		"request_id", requestIDFromContext(ctx))

	gwReq := gateway.Request{
		Model:    selection.Model,
		Messages: append([]gateway.Message{{Role: "system", Content: buildSystemPrompt(task, contextSection)}}, req.Messages...),
	}

	if streaming {
		h.serveStreamed(w, r, &req, task, query, selection, gwReq, snippets)
		return
	}
	h.serveBuffered(w, r, &req, task, query, selection, gwReq, snippets)
}

// validateMessages checks the message list and returns the query text, which
// is the content of the last message.
func validateMessages(messages []gateway.Message) (string, error) {
	if len(messages) == 0 {
		return "", errors.New("messages must not be empty")
	}
	for _, m := range messages {
		if m.Role == "" || strings.TrimSpace(m.Content) == "" {
			return "", errors.New("every message needs a role and content")
		}
	}
	query := strings.TrimSpace(messages[len(messages)-1].Content)
	return query, nil
}

// serveCacheHit returns a cached response, logging zero-cost usage. No
// evaluation record is written: a hit repeats an already evaluated response.
func (h *ChatHandler) serveCacheHit(w http.ResponseWriter, r *http.Request, req *ChatRequest, task router.TaskType, query string, entry *cache.Entry, streaming bool) {
	ctx := r.Context()
	h.logger.Info("cache hit",
		"similarity", entry.Similarity,
		"model", entry.ModelUsed,
		"request_id", requestIDFromContext(ctx))

	h.usage.LogUsage(ctx, eval.UsageRecord{
		UserID:    req.UserID,
		Model:     entry.ModelUsed,
		QueryType: string(task),
		CacheHit:  true,
	})

	questions := h.followups.Generate(ctx, query, entry.Response, nil)

	if !streaming {
		semantic := entry.Similarity < 1.0
		similarity := float64(entry.Similarity)
		writeJSON(w, http.StatusOK, ChatResponse{
			Content:           entry.Response,
			Model:             entry.ModelUsed,
			Cached:            true,
			SemanticMatch:     &semantic,
			Similarity:        &similarity,
			FollowUpQuestions: questions,
		})
		return
	}

	// Synthesize an SSE stream shaped like the gateway's own, so clients
	// handle hits and misses identically.
	setSSEHeaders(w)
	frame, _ := json.Marshal(map[string]any{
		"model":   entry.ModelUsed,
		"choices": []any{map[string]any{"delta": map[string]any{"content": entry.Response}}},
	})
	fmt.Fprintf(w, "data: %s\n\n", frame)
	fmt.Fprint(w, "data: [DONE]\n\n")
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	if err := relay.WriteFollowUpFrame(w, questions); err != nil {
		h.logger.Debug("writing follow-up frame", "error", err)
	}
}

func (h *ChatHandler) serveStreamed(w http.ResponseWriter, r *http.Request, req *ChatRequest, task router.TaskType, query string, selection router.Selection, gwReq gateway.Request, snippets []string) {
	ctx := r.Context()

	body, err := h.gateway.Stream(ctx, gwReq)
	if err != nil {
		h.writeGatewayError(w, err)
		return
	}
	defer body.Close()

	setSSEHeaders(w)

	var result relay.Result
	rel := relay.New(w, func(res relay.Result) { result = res }, h.logger,
		relay.WithPromptText(promptText(gwReq.Messages)))

	relayErr := rel.Run(ctx, body)
	// Side effects run even after a client disconnect: the upstream cost was
	// already incurred, so bookkeeping uses the partial accumulation.
	h.finishGeneration(context.WithoutCancel(ctx), req, task, query, selection, result, snippets)

	if relayErr != nil {
		h.logger.Debug("stream ended early", "error", relayErr)
		return
	}

	questions := h.followups.Generate(ctx, query, result.Content, snippets)
	if err := relay.WriteFollowUpFrame(w, questions); err != nil {
		h.logger.Debug("writing follow-up frame", "error", err)
	}
}

func (h *ChatHandler) serveBuffered(w http.ResponseWriter, r *http.Request, req *ChatRequest, task router.TaskType, query string, selection router.Selection, gwReq gateway.Request, snippets []string) {
	ctx := r.Context()

	started := time.Now()
	completion, err := h.gateway.Complete(ctx, gwReq)
	if err != nil {
		h.writeGatewayError(w, err)
		return
	}

	result := relay.Result{
		Content:      completion.Content,
		TokensInput:  completion.TokensInput,
		TokensOutput: completion.TokensOutput,
		Latency:      time.Since(started),
	}
	h.finishGeneration(context.WithoutCancel(ctx), req, task, query, selection, result, snippets)

	questions := h.followups.Generate(ctx, query, completion.Content, snippets)

	writeJSON(w, http.StatusOK, ChatResponse{
		Content:           completion.Content,
		Model:             selection.Model,
		Cached:            false,
		FollowUpQuestions: questions,
	})
}

// finishGeneration persists the cache row and telemetry for a fresh
// generation. All writes are best-effort.
func (h *ChatHandler) finishGeneration(ctx context.Context, req *ChatRequest, task router.TaskType, query string, selection router.Selection, result relay.Result, snippets []string) {
	if result.Content == "" {
		h.logger.Warn("generation produced no content, skipping cache store")
		return
	}

	h.cache.Store(ctx, query, result.Content, selection.Model, result.TokensInput, result.TokensOutput)

	h.usage.LogUsage(ctx, eval.UsageRecord{
		UserID:        req.UserID,
		Model:         selection.Model,
		TokensInput:   result.TokensInput,
		TokensOutput:  result.TokensOutput,
		EstimatedCost: router.Cost(selection.Model, result.TokensInput, result.TokensOutput),
		QueryType:     string(task),
	})
	h.usage.LogEvaluation(ctx, eval.EvalRecord{
		UserID:      req.UserID,
		Query:       query,
		Response:    result.Content,
		ContextUsed: snippets,
		ModelUsed:   selection.Model,
		LatencyMS:   int(result.Latency.Milliseconds()),
	})
}

// writeGatewayError maps gateway failures onto the API's error contract.
func (h *ChatHandler) writeGatewayError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, gateway.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "Rate limit exceeded")
	case errors.Is(err, gateway.ErrQuotaExhausted):
		writeError(w, http.StatusPaymentRequired, "AI credits exhausted")
	default:
		h.logger.Error("gateway call failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func setSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

// promptText flattens the outbound messages for local token estimation.
func promptText(messages []gateway.Message) string {
	parts := make([]string, 0, len(messages))
	for _, m := range messages {
		parts = append(parts, m.Content)
	}
	return strings.Join(parts, "\n")
}
