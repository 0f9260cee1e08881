package model

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/astrooracle/core"
	"github.com/hupe1980/astrooracle/stream"
)

type failingModel struct {
	deltas []string
	err    error
}

func (m *failingModel) Generate(_ context.Context, _ Prompt) (<-chan string, <-chan error) {
	out := make(chan string, len(m.deltas))
	errCh := make(chan error, 1)
	for _, d := range m.deltas {
		out <- d
	}
	close(out)
	if m.err != nil {
		errCh <- m.err
	}
	close(errCh)
	return out, errCh
}

func (m *failingModel) Info() Info { return Info{Name: "broken", Provider: "test"} }

func collect(t *testing.T, tr core.Transport, req core.StreamRequest) ([][]byte, error) {
	t.Helper()
	chunks, errs := tr.Stream(context.Background(), req)
	var got [][]byte
	for c := range chunks {
		got = append(got, c)
	}
	return got, <-errs
}

func TestBuildPrompt(t *testing.T) {
	p := BuildPrompt(core.StreamRequest{
		OriginID:    "X1",
		CelestialID: "Y2",
		InquiryID:   "Z3",
		Question:    "Should I move?",
		Name:        "Ada",
	})

	assert.NotEmpty(t, p.System)
	assert.Contains(t, p.User, "Name: Ada\n")
	assert.Contains(t, p.User, "Origin starship archive: X1\n")
	assert.Contains(t, p.User, "Celestial starship archive: Y2\n")
	assert.Contains(t, p.User, "Inquiry starship archive: Z3\n")
	assert.Contains(t, p.User, "Question: Should I move?\n")
}

func TestFramesParse(t *testing.T) {
	events, mode := stream.ParseAll(
		FrameDelta("line \"one\"\n"),
		FrameDelta("two"),
		FrameCompleted(),
	)

	assert.Equal(t, core.ModeFramedEvents, mode)
	require.Len(t, events, 3)
	assert.Equal(t, core.TextDelta{Text: "line \"one\"\n"}, events[0])
	assert.Equal(t, core.TextDelta{Text: "two"}, events[1])
	assert.Equal(t, core.Completed{}, events[2])
}

func TestFrameErrorParses(t *testing.T) {
	events, _ := stream.ParseAll(FrameError("quota exceeded"))

	require.Len(t, events, 1)
	ev, ok := events[0].(core.ErrorEvent)
	require.True(t, ok)
	assert.Equal(t, "quota exceeded", ev.Err.Message)
}

func TestTransportStreamsMockModel(t *testing.T) {
	m := NewMockModel("oracle-mock")
	m.AddResponse("问事业", "星舰指引：稳中求进。")
	tr := NewTransport(m)

	chunks, err := collect(t, tr, core.StreamRequest{Question: "问事业", Name: "你"})
	require.NoError(t, err)

	events, mode := stream.ParseAll(chunks...)
	assert.Equal(t, core.ModeFramedEvents, mode)

	var sb strings.Builder
	for _, ev := range events[:len(events)-1] {
		delta, ok := ev.(core.TextDelta)
		require.True(t, ok)
		sb.WriteString(delta.Text)
	}
	assert.Equal(t, "星舰指引：稳中求进。", sb.String())
	assert.Equal(t, core.Completed{}, events[len(events)-1])
	assert.Greater(t, len(events), 2)
}

func TestMockModelDefaultResponse(t *testing.T) {
	m := NewMockModel("oracle-mock")
	out, errs := m.Generate(context.Background(), BuildPrompt(core.StreamRequest{Question: "anything"}))

	var sb strings.Builder
	for s := range out {
		sb.WriteString(s)
	}
	require.NoError(t, <-errs)
	assert.Equal(t, "The stars have heard your question: anything", sb.String())
	assert.Equal(t, Info{Name: "oracle-mock", Provider: "mock"}, m.Info())
}

func TestMockModelCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out, errs := NewMockModel("m").Generate(ctx, Prompt{User: "Question: q\n"})
	for range out {
	}
	assert.ErrorIs(t, <-errs, context.Canceled)
}

func TestTransportModelFailure(t *testing.T) {
	boom := errors.New("boom")
	tr := NewTransport(&failingModel{deltas: []string{"partial", ""}, err: boom})

	chunks, err := collect(t, tr, core.StreamRequest{})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "test model broken")

	p := stream.NewParser()
	var events []core.StreamEvent
	for _, c := range chunks {
		events = append(events, p.Feed(c)...)
	}
	assert.Equal(t, []core.StreamEvent{core.TextDelta{Text: "partial"}}, events)
}

func TestTransportInfo(t *testing.T) {
	info := NewTransport(NewMockModel("m")).Info()
	assert.Equal(t, "model:mock", info.Name)
	assert.Equal(t, core.TransportPush, info.Kind)
}
