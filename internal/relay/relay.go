// Package relay tees a model gateway SSE stream to a client while parsing
// frames on the side, so the full response text and token usage are known
// once the stream ends without buffering it away from the client.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/pointstack/pointstack/internal/log"
)

// readBufferSize is the chunk size used when draining the upstream body.
const readBufferSize = 4096

// Result carries what the relay learned from a finished (or interrupted)
// stream.
type Result struct {
	// Content is the accumulated assistant text, possibly partial when the
	// client disconnected mid-stream.
	Content string
	// TokensInput and TokensOutput come from the stream's usage frame when
	// present, otherwise from a local estimate.
	TokensInput  int
	TokensOutput int
	// Estimated is true when the usage frame never arrived and the token
	// counts were derived locally.
	Estimated bool
	// Latency covers the span from Run starting until the stream ended.
	Latency time.Duration
}

// CompleteFunc receives the stream result exactly once per relay.
type CompleteFunc func(Result)

// Relay forwards upstream bytes to a destination writer verbatim while a
// frame parser watches the same bytes. The zero value is not usable; use New.
type Relay struct {
	dst        io.Writer
	flusher    http.Flusher
	parser     *frameParser
	onComplete CompleteFunc
	promptText string
	logger     log.Logger

	once sync.Once
}

// Option configures a Relay.
type Option func(*Relay)

// WithPromptText supplies the prompt sent upstream, used to estimate input
// tokens when the stream never reports usage.
func WithPromptText(text string) Option {
	return func(r *Relay) { r.promptText = text }
}

// New builds a relay writing to dst. When dst implements http.Flusher each
// chunk is flushed immediately so the client sees tokens as they arrive.
// onComplete may be nil.
func New(dst io.Writer, onComplete CompleteFunc, logger log.Logger, opts ...Option) *Relay {
	r := &Relay{
		dst:        dst,
		parser:     newFrameParser(),
		onComplete: onComplete,
		logger:     logger,
	}
	if f, ok := dst.(http.Flusher); ok {
		r.flusher = f
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run drains src to completion, forwarding every chunk to the destination.
// A destination write failure (client disconnect) stops forwarding, but the
// completion hook still fires with whatever content was accumulated so far,
// since the upstream cost has already been incurred. Run returns the first
// upstream read error other than io.EOF.
func (r *Relay) Run(ctx context.Context, src io.Reader) error {
	started := time.Now()
	buf := make([]byte, readBufferSize)
	var runErr error

	for {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}

		n, readErr := src.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			r.parser.Feed(chunk)
			if _, writeErr := r.dst.Write(chunk); writeErr != nil {
				r.logger.Warn("client disconnected mid-stream", "error", writeErr)
				runErr = writeErr
				break
			}
			if r.flusher != nil {
				r.flusher.Flush()
			}
		}
		if readErr != nil {
			if !errors.Is(readErr, io.EOF) {
				runErr = readErr
			}
			break
		}
	}

	r.complete(time.Since(started))
	return runErr
}

// complete flushes the parser and fires the hook exactly once.
func (r *Relay) complete(latency time.Duration) {
	r.once.Do(func() {
		r.parser.Flush()

		result := Result{
			Content: r.parser.Content(),
			Latency: latency,
		}
		result.TokensInput, result.TokensOutput = r.parser.Usage()

		if result.TokensInput == 0 && result.TokensOutput == 0 && result.Content != "" {
			result.TokensInput = EstimateTokens(r.promptText)
			result.TokensOutput = EstimateTokens(result.Content)
			result.Estimated = true
			r.logger.Debug("usage frame absent, estimated tokens",
				"tokens_input", result.TokensInput,
				"tokens_output", result.TokensOutput)
		}

		if r.onComplete != nil {
			r.onComplete(result)
		}
	})
}

// WriteFollowUpFrame appends a follow-up question frame to an SSE stream,
// after the upstream [DONE] frame has already been forwarded.
func WriteFollowUpFrame(w io.Writer, questions []string) error {
	if len(questions) == 0 {
		return nil
	}

	payload, err := json.Marshal(map[string][]string{"followUpQuestions": questions})
	if err != nil {
		return fmt.Errorf("marshal follow-up frame: %w", err)
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
		return fmt.Errorf("write follow-up frame: %w", err)
	}
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	return nil
}
