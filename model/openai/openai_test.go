package openai

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/hupe1980/astrooracle/model"
)

func chunk(content string) string {
	return fmt.Sprintf(`{"id":"c1","object":"chat.completion.chunk","created":1,"model":"gpt-4o-mini","choices":[{"index":0,"delta":{"content":%q},"finish_reason":null}]}`, content)
}

func newServer(t *testing.T, bodies chan<- string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		bodies <- string(b)

		w.Header().Set("Content-Type", "text/event-stream")
		for _, c := range []string{chunk("Hello "), chunk(""), chunk("World")} {
			fmt.Fprintf(w, "data: %s\n\n", c)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestGenerateStreamsDeltas(t *testing.T) {
	bodies := make(chan string, 1)
	srv := newServer(t, bodies)

	m := NewModel(func(o *Options) {
		o.BaseURL = srv.URL + "/"
		o.APIKey = "test"
		o.Model = "oracle-test"
	})

	out, errs := m.Generate(context.Background(), model.Prompt{System: "sys", User: "Question: q\n"})
	var got []string
	for s := range out {
		got = append(got, s)
	}
	require.NoError(t, <-errs)
	assert.Equal(t, []string{"Hello ", "World"}, got)

	body := <-bodies
	assert.Equal(t, "oracle-test", gjson.Get(body, "model").String())
	assert.True(t, gjson.Get(body, "stream").Bool())
	assert.Equal(t, "system", gjson.Get(body, "messages.0.role").String())
	assert.Equal(t, "user", gjson.Get(body, "messages.1.role").String())
	assert.True(t, strings.Contains(gjson.Get(body, "messages.1.content").String(), "Question: q"))
}

func TestGenerateReportsHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":{"message":"bad request"}}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	m := NewModel(func(o *Options) {
		o.BaseURL = srv.URL + "/"
		o.APIKey = "test"
	})

	out, errs := m.Generate(context.Background(), model.Prompt{User: "q"})
	for range out {
	}
	err := <-errs
	require.Error(t, err)
	assert.Contains(t, err.Error(), "openai streaming error")
}

func TestInfo(t *testing.T) {
	info := NewModel(func(o *Options) { o.APIKey = "test" }).Info()
	assert.Equal(t, "openai", info.Provider)
	assert.Equal(t, "gpt-4o-mini", info.Name)
}
