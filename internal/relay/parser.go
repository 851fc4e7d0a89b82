package relay

import (
	"bytes"
	"strings"

	"github.com/tidwall/gjson"
)

// parserBufferSize is the initial capacity of the frame reassembly buffer.
const parserBufferSize = 4096

// frameParser incrementally parses OpenAI-style SSE frames out of a byte
// stream, accumulating delta content and the last-seen token usage. It only
// reads structured "data: {json}" events; malformed or partial JSON (which
// can occur at chunk boundaries) is retained until the frame terminator
// arrives, and frames that still fail to parse are skipped without aborting
// the stream.
type frameParser struct {
	buffer    []byte
	content   strings.Builder
	tokensIn  int
	tokensOut int
}

func newFrameParser() *frameParser {
	return &frameParser{buffer: make([]byte, 0, parserBufferSize)}
}

// Feed appends a chunk and parses any complete events.
func (p *frameParser) Feed(chunk []byte) {
	p.buffer = append(p.buffer, chunk...)
	p.parse(false)
}

// Flush parses whatever remains in the buffer, including a final event that
// was never terminated by a blank line.
func (p *frameParser) Flush() {
	p.parse(true)
}

// Content returns the accumulated response text.
func (p *frameParser) Content() string {
	return p.content.String()
}

// Usage returns the last-seen prompt and completion token counts (0, 0 when
// the stream never reported usage).
func (p *frameParser) Usage() (tokensIn, tokensOut int) {
	return p.tokensIn, p.tokensOut
}

func (p *frameParser) parse(flush bool) {
	for {
		event, rest, ok := nextEvent(p.buffer, flush)
		if !ok {
			return
		}
		p.buffer = rest
		p.parseEvent(event)
	}
}

// nextEvent splits the next complete SSE event off buf. Events are
// terminated by a blank line; on flush any trailing bytes count as a final
// event.
func nextEvent(buf []byte, flush bool) (event, rest []byte, ok bool) {
	if idx := bytes.Index(buf, []byte("\r\n\r\n")); idx >= 0 {
		return buf[:idx], buf[idx+4:], true
	}
	if idx := bytes.Index(buf, []byte("\n\n")); idx >= 0 {
		return buf[:idx], buf[idx+2:], true
	}
	if flush {
		trimmed := bytes.TrimSpace(buf)
		if len(trimmed) > 0 {
			return trimmed, nil, true
		}
	}
	return nil, nil, false
}

func (p *frameParser) parseEvent(event []byte) {
	for _, line := range bytes.Split(event, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if !bytes.HasPrefix(line, []byte("data:")) {
			continue
		}

		payload := bytes.TrimSpace(bytes.TrimPrefix(line, []byte("data:")))
		if len(payload) == 0 || bytes.Equal(payload, []byte("[DONE]")) {
			continue
		}

		parsed := gjson.ParseBytes(payload)
		if !parsed.IsObject() {
			// Malformed frame: skip, never abort the stream.
			continue
		}

		if delta := parsed.Get("choices.0.delta.content"); delta.Exists() {
			p.content.WriteString(delta.String())
		}
		if usage := parsed.Get("usage"); usage.Exists() {
			if v := usage.Get("prompt_tokens"); v.Exists() {
				p.tokensIn = int(v.Int())
			}
			if v := usage.Get("completion_tokens"); v.Exists() {
				p.tokensOut = int(v.Int())
			}
		}
	}
}
