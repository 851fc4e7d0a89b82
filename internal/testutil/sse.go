package testutil

import (
	"bufio"
	"strings"
	"testing"

	"github.com/tidwall/gjson"
)

// SSEFrame is one parsed data frame from an event stream.
type SSEFrame struct {
	// Data is the raw payload after "data: ", e.g. a JSON object or "[DONE]".
	Data string
}

// ParseSSEFrames parses a data-only SSE stream into frames.
//
// Multiple "data:" lines within one event are joined with newline, a blank
// line terminates an event, and ":" comment lines are ignored.
func ParseSSEFrames(t *testing.T, body string) []SSEFrame {
	t.Helper()

	var frames []SSEFrame
	var dataLines []string

	flush := func() {
		if len(dataLines) > 0 {
			frames = append(frames, SSEFrame{Data: strings.Join(dataLines, "\n")})
			dataLines = nil
		}
	}

	scanner := bufio.NewScanner(strings.NewReader(body))
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "data:"):
			dataLines = append(dataLines, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		case line == "":
			flush()
		case strings.HasPrefix(line, ":"):
			// comment
		default:
			t.Fatalf("unexpected SSE line: %q", line)
		}
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scanning SSE body: %v", err)
	}
	flush()

	return frames
}

// CollectStreamContent joins the delta content of every frame, mirroring what
// a browser client would assemble from the stream.
func CollectStreamContent(t *testing.T, body string) string {
	t.Helper()

	var b strings.Builder
	for _, frame := range ParseSSEFrames(t, body) {
		if frame.Data == "[DONE]" {
			continue
		}
		b.WriteString(gjson.Get(frame.Data, "choices.0.delta.content").String())
	}
	return b.String()
}

// FindFollowUpFrame returns the follow-up questions from the trailing frame,
// or nil when the stream has none.
func FindFollowUpFrame(t *testing.T, body string) []string {
	t.Helper()

	for _, frame := range ParseSSEFrames(t, body) {
		result := gjson.Get(frame.Data, "followUpQuestions")
		if !result.Exists() {
			continue
		}
		var questions []string
		for _, q := range result.Array() {
			questions = append(questions, q.String())
		}
		return questions
	}
	return nil
}
