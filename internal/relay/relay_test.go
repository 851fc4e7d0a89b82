package relay

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pointstack/pointstack/internal/log"
)

const sampleStream = "data: {\"choices\":[{\"delta\":{\"content\":\"Hello\"}}]}\n\n" +
	"data: {\"choices\":[{\"delta\":{\"content\":\", world\"}}]}\n\n" +
	"data: {\"choices\":[{\"delta\":{}}],\"usage\":{\"prompt_tokens\":42,\"completion_tokens\":7}}\n\n" +
	"data: [DONE]\n\n"

// chunkReader returns at most n bytes per Read call, to exercise frames
// split across chunk boundaries.
type chunkReader struct {
	r io.Reader
	n int
}

func (c *chunkReader) Read(p []byte) (int, error) {
	if len(p) > c.n {
		p = p[:c.n]
	}
	return c.r.Read(p)
}

// failingWriter reports a broken pipe on every write.
type failingWriter struct{}

func (w *failingWriter) Write([]byte) (int, error) {
	return 0, errors.New("broken pipe")
}

func TestRunForwardsVerbatim(t *testing.T) {
	var dst bytes.Buffer
	var result Result
	r := New(&dst, func(res Result) { result = res }, log.NewNop())

	err := r.Run(context.Background(), strings.NewReader(sampleStream))
	require.NoError(t, err)

	assert.Equal(t, sampleStream, dst.String())
	assert.Equal(t, "Hello, world", result.Content)
	assert.Equal(t, 42, result.TokensInput)
	assert.Equal(t, 7, result.TokensOutput)
	assert.False(t, result.Estimated)
	assert.Greater(t, result.Latency, time.Duration(0))
}

func TestRunHandlesSplitFrames(t *testing.T) {
	var dst bytes.Buffer
	var result Result
	r := New(&dst, func(res Result) { result = res }, log.NewNop())

	src := &chunkReader{r: strings.NewReader(sampleStream), n: 3}
	err := r.Run(context.Background(), src)
	require.NoError(t, err)

	assert.Equal(t, sampleStream, dst.String())
	assert.Equal(t, "Hello, world", result.Content)
	assert.Equal(t, 42, result.TokensInput)
}

func TestRunSkipsMalformedFrames(t *testing.T) {
	stream := "data: {not json at all\n\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"ok\"}}]}\n\n" +
		": keep-alive comment\n\n" +
		"data: [DONE]\n\n"

	var dst bytes.Buffer
	var result Result
	r := New(&dst, func(res Result) { result = res }, log.NewNop())

	err := r.Run(context.Background(), strings.NewReader(stream))
	require.NoError(t, err)
	assert.Equal(t, stream, dst.String())
	assert.Equal(t, "ok", result.Content)
}

func TestRunFlushesUnterminatedFinalFrame(t *testing.T) {
	stream := "data: {\"choices\":[{\"delta\":{\"content\":\"partial\"}}]}"

	var dst bytes.Buffer
	var result Result
	r := New(&dst, func(res Result) { result = res }, log.NewNop())

	err := r.Run(context.Background(), strings.NewReader(stream))
	require.NoError(t, err)
	assert.Equal(t, "partial", result.Content)
}

func TestRunClientDisconnectStillCompletes(t *testing.T) {
	dst := &failingWriter{}
	var result Result
	completions := 0
	r := New(dst, func(res Result) {
		completions++
		result = res
	}, log.NewNop())

	src := &chunkReader{r: strings.NewReader(sampleStream), n: 60}
	err := r.Run(context.Background(), src)
	require.Error(t, err)

	assert.Equal(t, 1, completions)
	assert.Equal(t, "Hello", result.Content)
}

func TestRunEstimatesTokensWhenUsageAbsent(t *testing.T) {
	stream := "data: {\"choices\":[{\"delta\":{\"content\":\"a reasonably long answer about rewards\"}}]}\n\n" +
		"data: [DONE]\n\n"

	var dst bytes.Buffer
	var result Result
	r := New(&dst, func(res Result) { result = res }, log.NewNop(),
		WithPromptText("what card should I use for groceries"))

	err := r.Run(context.Background(), strings.NewReader(stream))
	require.NoError(t, err)

	assert.True(t, result.Estimated)
	assert.Greater(t, result.TokensInput, 0)
	assert.Greater(t, result.TokensOutput, 0)
}

func TestRunCompletesExactlyOnce(t *testing.T) {
	var dst bytes.Buffer
	completions := 0
	r := New(&dst, func(Result) { completions++ }, log.NewNop())

	require.NoError(t, r.Run(context.Background(), strings.NewReader(sampleStream)))
	require.NoError(t, r.Run(context.Background(), strings.NewReader(sampleStream)))

	assert.Equal(t, 1, completions)
}

func TestRunContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var dst bytes.Buffer
	completions := 0
	r := New(&dst, func(Result) { completions++ }, log.NewNop())

	err := r.Run(ctx, strings.NewReader(sampleStream))
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, completions)
}

func TestRunPropagatesReadError(t *testing.T) {
	var dst bytes.Buffer
	r := New(&dst, nil, log.NewNop())

	readErr := errors.New("upstream reset")
	src := io.MultiReader(strings.NewReader("data: [DONE]\n\n"), &errReader{err: readErr})
	err := r.Run(context.Background(), src)
	require.ErrorIs(t, err, readErr)
}

type errReader struct{ err error }

func (r *errReader) Read([]byte) (int, error) { return 0, r.err }

func TestWriteFollowUpFrame(t *testing.T) {
	var buf bytes.Buffer
	err := WriteFollowUpFrame(&buf, []string{"How do points expire?", "Which card earns more on dining?"})
	require.NoError(t, err)

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "data: "))
	assert.True(t, strings.HasSuffix(out, "\n\n"))
	assert.Contains(t, out, `"followUpQuestions"`)
	assert.Contains(t, out, "How do points expire?")
}

func TestWriteFollowUpFrameEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFollowUpFrame(&buf, nil))
	assert.Zero(t, buf.Len())
}

func TestEstimateTokens(t *testing.T) {
	assert.Zero(t, EstimateTokens(""))
	assert.Greater(t, EstimateTokens("hello world, tell me about cash back"), 0)
}
