package model

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/tidwall/sjson"

	"github.com/hupe1980/astrooracle/core"
)

// Info contains metadata about a model implementation.
type Info struct {
	Name     string `json:"name"`
	Provider string `json:"provider"` // "openai", "anthropic", "mock", etc.
}

// Prompt is the provider neutral model input.
type Prompt struct {
	System string `json:"system"`
	User   string `json:"user"`
}

// Model is the minimal interface required to stream an interpretation.
// The text channel carries non-empty fragments and is closed when generation
// ends; the error channel then yields at most one error.
type Model interface {
	Generate(ctx context.Context, prompt Prompt) (<-chan string, <-chan error)

	// Info returns information about the model implementation.
	Info() Info
}

const systemPrompt = `You are the Astro Oracle. You read three starship archives and weave them into one interpretation:
the origin starship (fixed by the birth date), the celestial starship (fixed by the present moment)
and the inquiry starship (drawn by the question). Address the person by name. Be warm, concrete and
practical, avoid fatalism, and close with two or three actionable suggestions. Answer in the language
of the question.`

// BuildPrompt renders the interpretation prompt for a stream request.
func BuildPrompt(req core.StreamRequest) Prompt {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Name: %s\n", req.Name)
	fmt.Fprintf(&sb, "Origin starship archive: %s\n", req.OriginID)
	fmt.Fprintf(&sb, "Celestial starship archive: %s\n", req.CelestialID)
	fmt.Fprintf(&sb, "Inquiry starship archive: %s\n", req.InquiryID)
	fmt.Fprintf(&sb, "Question: %s\n", req.Question)
	return Prompt{System: systemPrompt, User: sb.String()}
}

// FrameDelta renders text as one result frame.
func FrameDelta(text string) []byte {
	payload, _ := sjson.Set("", "delta", text)
	return []byte("event: result\ndata: " + payload + "\n\n")
}

// FrameCompleted renders the completed frame.
func FrameCompleted() []byte {
	return []byte("event: completed\ndata: {}\n\n")
}

// FrameError renders an error frame carrying message.
func FrameError(message string) []byte {
	payload, _ := sjson.Set("", "message", message)
	return []byte("event: error\ndata: " + payload + "\n\n")
}

// Transport adapts a Model to core.Transport by framing its output.
type Transport struct {
	model Model
}

// NewTransport wraps m.
func NewTransport(m Model) *Transport {
	return &Transport{model: m}
}

// Stream implements core.Transport. A model failure is reported as a
// transport error, not as an error frame.
func (t *Transport) Stream(ctx context.Context, req core.StreamRequest) (<-chan []byte, <-chan error) {
	out := make(chan []byte)
	errCh := make(chan error, 1)

	go func() {
		defer close(errCh)
		err := t.forward(ctx, req, out)
		close(out)
		if err != nil {
			errCh <- err
		}
	}()

	return out, errCh
}

func (t *Transport) forward(ctx context.Context, req core.StreamRequest, out chan<- []byte) error {
	gctx, cancel := context.WithCancel(ctx)
	defer cancel()

	deltas, errs := t.model.Generate(gctx, BuildPrompt(req))
	send := func(b []byte) error {
		select {
		case out <- b:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	for text := range deltas {
		if text == "" {
			continue
		}
		if err := send(FrameDelta(text)); err != nil {
			return err
		}
	}
	if err := <-errs; err != nil {
		info := t.model.Info()
		return fmt.Errorf("%s model %s: %w", info.Provider, info.Name, err)
	}
	return send(FrameCompleted())
}

// Info implements core.Transport.
func (t *Transport) Info() core.TransportInfo {
	return core.TransportInfo{Name: "model:" + t.model.Info().Provider, Kind: core.TransportPush}
}

// MockModel is a lightweight in-memory Model useful for tests and examples.
type MockModel struct {
	info      Info
	responses map[string]string
	chunkSize int
}

// NewMockModel constructs a MockModel streaming a few characters per delta.
func NewMockModel(name string) *MockModel {
	return &MockModel{
		info:      Info{Name: name, Provider: "mock"},
		responses: make(map[string]string),
		chunkSize: 4,
	}
}

// AddResponse registers a deterministic canned interpretation for a question.
func (m *MockModel) AddResponse(question, response string) { m.responses[question] = response }

// Generate implements Model by streaming the canned response rune by rune
// in small groups.
func (m *MockModel) Generate(ctx context.Context, prompt Prompt) (<-chan string, <-chan error) {
	out := make(chan string)
	errCh := make(chan error, 1)

	go func() {
		defer close(errCh)
		defer close(out)

		full := m.respond(prompt)
		for len(full) > 0 {
			n := 0
			for i := 0; i < m.chunkSize && n < len(full); i++ {
				_, size := utf8.DecodeRuneInString(full[n:])
				n += size
			}
			select {
			case out <- full[:n]:
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			}
			full = full[n:]
		}
	}()

	return out, errCh
}

func (m *MockModel) respond(prompt Prompt) string {
	for _, line := range strings.Split(prompt.User, "\n") {
		if q, ok := strings.CutPrefix(line, "Question: "); ok {
			if r, ok := m.responses[q]; ok {
				return r
			}
			return fmt.Sprintf("The stars have heard your question: %s", q)
		}
	}
	return "The stars are silent."
}

// Info implements Model.
func (m *MockModel) Info() Info { return m.info }

var (
	_ Model          = (*MockModel)(nil)
	_ core.Transport = (*Transport)(nil)
)
