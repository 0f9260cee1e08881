package stream

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"github.com/tidwall/gjson"

	"github.com/hupe1980/astrooracle/core"
)

// Event names with a dedicated meaning in framed mode.
const (
	EventResult    = "result"
	EventCompleted = "completed"
	EventError     = "error"
)

// DoneMarker is the data payload some servers send instead of a completed event.
const DoneMarker = "[DONE]"

// framedMarkers are the line prefixes that lock a stream into framed mode.
var framedMarkers = [][]byte{
	[]byte("event:"),
	[]byte("data:"),
}

// leadMarkers are event-stream lines that may precede the first event. They
// defer the decision until a framed marker or plain text follows; a stream
// that never shows a framed marker keeps them verbatim as raw text.
var leadMarkers = [][]byte{
	[]byte("id:"),
	[]byte("retry:"),
	[]byte(":"),
}

// Field paths probed, in order, for visible text in a JSON payload.
var textPaths = []string{
	"output_text",
	"delta",
	"delta.text",
	"delta.content",
	"text",
	"content",
	"choices.0.delta.content",
}

// Field paths that signal completion when true.
var completionFlags = []string{"completed", "done", "is_final"}

// Field paths that signal completion when non-empty.
var stopReasons = []string{"finish_reason", "finishReason", "stop_reason", "choices.0.finish_reason"}

// Payload types that signal completion.
var completionTypes = map[string]bool{
	"response.completed": true,
	"message_stop":       true,
	"completed":          true,
	"done":               true,
}

// Parser is an incremental, transport agnostic frame parser. It is not safe
// for concurrent use; a session owns exactly one parser.
type Parser struct {
	buf        []byte
	mode       core.TransportMode
	event      string
	pendingErr bool
	done       bool
}

// NewParser returns a parser in undetermined mode.
func NewParser() *Parser {
	return &Parser{}
}

// Mode returns the current transport mode.
func (p *Parser) Mode() core.TransportMode { return p.mode }

// Done reports whether a terminal event has been emitted.
func (p *Parser) Done() bool { return p.done }

// Feed consumes one chunk and returns the events it completes. Bytes that do
// not yet form a complete line (framed) or a complete character (raw) stay
// buffered for the next call.
func (p *Parser) Feed(chunk []byte) []core.StreamEvent {
	if p.done || len(chunk) == 0 {
		return nil
	}
	p.buf = append(p.buf, chunk...)
	if p.mode == core.ModeUndetermined && !p.detect() {
		return nil
	}
	if p.mode == core.ModeRawText {
		return p.drainRaw(false)
	}
	return p.drainLines()
}

// Finish signals a clean end of the transport. Any buffered bytes are
// flushed and, unless a terminal event was already emitted, an implicit
// Completed follows. A stream that never revealed framing is raw text.
func (p *Parser) Finish() []core.StreamEvent {
	if p.done {
		return nil
	}
	var out []core.StreamEvent
	switch p.mode {
	case core.ModeUndetermined:
		p.mode = core.ModeRawText
		out = p.drainRaw(true)
	case core.ModeRawText:
		out = p.drainRaw(true)
	case core.ModeFramedEvents:
		if len(p.buf) > 0 {
			line := string(bytes.TrimSuffix(p.buf, []byte("\r")))
			p.buf = nil
			out = append(out, p.line(line, false)...)
		}
		if !p.done && p.pendingErr {
			out = append(out, p.fail("", nil)...)
		}
	}
	if !p.done {
		out = append(out, p.complete(true)...)
	}
	return out
}

// Fail signals a transport failure. Raw bytes already received are flushed
// as text; an incomplete framed line is discarded. The returned events end
// with an ErrorEvent carrying the generic message and cause, unless a
// terminal event was already emitted.
func (p *Parser) Fail(cause error) []core.StreamEvent {
	if p.done {
		return nil
	}
	var out []core.StreamEvent
	if p.mode != core.ModeFramedEvents && len(p.buf) > 0 {
		p.mode = core.ModeRawText
		out = p.drainRaw(true)
	}
	p.buf = nil
	return append(out, p.fail("", cause)...)
}

// detect locks the mode once the first line that is neither blank nor a
// lead line is unambiguous. Undecided bytes stay buffered.
func (p *Parser) detect() bool {
	rest := p.buf
	for {
		rest = bytes.TrimLeft(rest, "\r\n")
		if len(rest) == 0 {
			return false
		}
		for _, m := range framedMarkers {
			if bytes.HasPrefix(rest, m) {
				p.mode = core.ModeFramedEvents
				return true
			}
		}
		idx := bytes.IndexByte(rest, '\n')
		if hasMarkerPrefix(rest, idx < 0) {
			if idx < 0 {
				return false
			}
			rest = rest[idx+1:]
			continue
		}
		p.mode = core.ModeRawText
		return true
	}
}

// hasMarkerPrefix reports whether line starts with a lead marker or, when
// partial, could still grow into any marker.
func hasMarkerPrefix(line []byte, partial bool) bool {
	for _, m := range leadMarkers {
		if bytes.HasPrefix(line, m) {
			return true
		}
	}
	if !partial {
		return false
	}
	for _, group := range [][][]byte{framedMarkers, leadMarkers} {
		for _, m := range group {
			if len(line) < len(m) && bytes.HasPrefix(m, line) {
				return true
			}
		}
	}
	return false
}

// drainRaw emits buffered raw bytes verbatim. Unless final, a trailing
// incomplete UTF-8 sequence is held back so every delta is valid text.
func (p *Parser) drainRaw(final bool) []core.StreamEvent {
	n := len(p.buf)
	if !final {
		n -= incompleteRuneTail(p.buf)
	}
	if n == 0 {
		return nil
	}
	text := string(p.buf[:n])
	p.buf = append(p.buf[:0], p.buf[n:]...)
	return p.text(text)
}

func (p *Parser) drainLines() []core.StreamEvent {
	var out []core.StreamEvent
	for !p.done {
		idx := bytes.IndexByte(p.buf, '\n')
		if idx < 0 {
			break
		}
		line := string(bytes.TrimSuffix(p.buf[:idx], []byte("\r")))
		p.buf = p.buf[idx+1:]
		out = append(out, p.line(line, true)...)
	}
	if len(p.buf) == 0 || p.done {
		p.buf = nil
	}
	return out
}

// line interprets one framed line. eol is false for a trailing line that
// was never terminated.
func (p *Parser) line(l string, eol bool) []core.StreamEvent {
	if l == "" {
		var out []core.StreamEvent
		if p.pendingErr {
			out = p.fail("", nil)
		}
		p.event = ""
		return out
	}
	if strings.HasPrefix(l, ":") {
		return nil
	}
	if v, ok := field(l, "event"); ok {
		p.event = strings.TrimSpace(v)
		switch p.event {
		case EventCompleted:
			return p.complete(false)
		case EventError:
			p.pendingErr = true
		}
		return nil
	}
	if v, ok := field(l, "data"); ok {
		return p.data(v)
	}
	if _, ok := field(l, "id"); ok {
		return nil
	}
	if _, ok := field(l, "retry"); ok {
		return nil
	}
	if eol {
		return p.text(l + "\n")
	}
	return p.text(l)
}

func (p *Parser) data(payload string) []core.StreamEvent {
	trimmed := strings.TrimSpace(payload)
	if p.event == EventError {
		p.pendingErr = false
		return p.fail(errorMessage(trimmed), nil)
	}
	if trimmed == DoneMarker {
		return p.complete(false)
	}
	if trimmed != "" && gjson.Valid(trimmed) {
		r := gjson.Parse(trimmed)
		switch {
		case r.IsObject():
			return p.object(r)
		case r.Type == gjson.String:
			return p.text(r.String())
		}
	}
	return p.text(payload)
}

func (p *Parser) object(r gjson.Result) []core.StreamEvent {
	if e := r.Get("error"); e.Exists() && e.Type != gjson.Null && e.Type != gjson.False {
		return p.fail(errorMessage(e.Raw), nil)
	}
	var out []core.StreamEvent
	for _, path := range textPaths {
		if v := r.Get(path); v.Type == gjson.String {
			out = p.text(v.String())
			break
		}
	}
	if isCompletion(r) {
		out = append(out, p.complete(false)...)
	}
	return out
}

func isCompletion(r gjson.Result) bool {
	for _, path := range completionFlags {
		if r.Get(path).Type == gjson.True {
			return true
		}
	}
	for _, path := range stopReasons {
		if v := r.Get(path); v.Type == gjson.String && v.String() != "" {
			return true
		}
	}
	return completionTypes[r.Get("type").String()]
}

// errorMessage extracts a human readable message from an error payload,
// which may be a JSON object, a JSON string or plain text.
func errorMessage(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || !gjson.Valid(raw) {
		return raw
	}
	r := gjson.Parse(raw)
	if r.Type == gjson.String {
		return r.String()
	}
	for _, path := range []string{"message", "error.message", "error", "detail"} {
		if v := r.Get(path); v.Type == gjson.String && v.String() != "" {
			return v.String()
		}
	}
	return raw
}

func (p *Parser) text(s string) []core.StreamEvent {
	if s == "" {
		return nil
	}
	return []core.StreamEvent{core.TextDelta{Text: s}}
}

func (p *Parser) complete(implicit bool) []core.StreamEvent {
	p.done = true
	p.buf = nil
	return []core.StreamEvent{core.Completed{Implicit: implicit}}
}

func (p *Parser) fail(msg string, cause error) []core.StreamEvent {
	p.done = true
	p.buf = nil
	p.pendingErr = false
	return []core.StreamEvent{core.ErrorEvent{Err: core.NewStreamError(msg, cause)}}
}

// field returns the value of "name:value" with one optional leading space
// removed, as event-stream framing defines it.
func field(l, name string) (string, bool) {
	if !strings.HasPrefix(l, name) || len(l) <= len(name) || l[len(name)] != ':' {
		return "", false
	}
	v := l[len(name)+1:]
	return strings.TrimPrefix(v, " "), true
}

// incompleteRuneTail returns the length of a truncated UTF-8 sequence at the
// end of b, or 0.
func incompleteRuneTail(b []byte) int {
	for i := 1; i <= utf8.UTFMax-1 && i <= len(b); i++ {
		c := b[len(b)-i]
		if c < utf8.RuneSelf {
			return 0
		}
		if utf8.RuneStart(c) {
			if utf8.FullRune(b[len(b)-i:]) {
				return 0
			}
			return i
		}
	}
	return 0
}

// ParseAll feeds every chunk to a fresh parser, finishes it and returns the
// events together with the locked mode.
func ParseAll(chunks ...[]byte) ([]core.StreamEvent, core.TransportMode) {
	p := NewParser()
	var out []core.StreamEvent
	for _, c := range chunks {
		out = append(out, p.Feed(c)...)
	}
	out = append(out, p.Finish()...)
	return out, p.Mode()
}
