package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hupe1980/astrooracle/core"
)

// Reply is a canned response of a remote computation endpoint.
type Reply struct {
	Status int
	Body   string
	Delay  time.Duration
}

// OracleServer is a fake backend serving the three divine endpoints and the
// stream endpoint. The stream endpoint answers plain HTTP (event-stream or
// chunked, depending on the request) and websocket upgrades.
type OracleServer struct {
	*httptest.Server

	mu          sync.Mutex
	replies     map[core.TaskKind]Reply
	bodies      map[core.TaskKind][]map[string]any
	chunks      []string
	chunkGap    time.Duration
	streamQuery []url.Values
	streamCalls int
}

// NewOracleServer starts a server that is closed when the test ends. Every
// endpoint succeeds with a distinct identifier until configured otherwise.
func NewOracleServer(t testing.TB) *OracleServer {
	t.Helper()
	s := &OracleServer{
		replies: map[core.TaskKind]Reply{
			core.TaskOrigin:    {Body: NewEnvelopeBuilder().ArchiveID("X1").Build()},
			core.TaskCelestial: {Body: NewEnvelopeBuilder().ArchiveID("Y2").Build()},
			core.TaskInquiry:   {Body: NewEnvelopeBuilder().ArchiveID("Z3").Build()},
		},
		bodies: map[core.TaskKind][]map[string]any{},
		chunks: []string{NewFrameBuilder().Result("Hello ").Result("World").Completed().String()},
	}
	mux := http.NewServeMux()
	for _, kind := range core.TaskKinds {
		mux.HandleFunc("/api/v1/divine/"+string(kind), s.divine(kind))
	}
	mux.HandleFunc("/api/v1/oracle/stream", s.stream)
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

// Reply replaces the canned response of one endpoint.
func (s *OracleServer) Reply(kind core.TaskKind, r Reply) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies[kind] = r
}

// StreamChunks replaces the chunks written by the stream endpoint, with gap
// between consecutive writes.
func (s *OracleServer) StreamChunks(gap time.Duration, chunks ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = chunks
	s.chunkGap = gap
}

// Bodies returns the decoded request bodies received by one endpoint.
func (s *OracleServer) Bodies(kind core.TaskKind) []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]map[string]any(nil), s.bodies[kind]...)
}

// StreamCalls returns how many streams were opened.
func (s *OracleServer) StreamCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streamCalls
}

// StreamParams returns the parameters of every stream request.
func (s *OracleServer) StreamParams() []url.Values {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]url.Values(nil), s.streamQuery...)
}

func (s *OracleServer) divine(kind core.TaskKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)

		s.mu.Lock()
		s.bodies[kind] = append(s.bodies[kind], body)
		reply := s.replies[kind]
		s.mu.Unlock()

		if reply.Delay > 0 {
			select {
			case <-time.After(reply.Delay):
			case <-r.Context().Done():
				return
			}
		}
		status := reply.Status
		if status == 0 {
			status = http.StatusOK
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, reply.Body)
	}
}

func (s *OracleServer) stream(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	if r.Method == http.MethodPost {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		params = url.Values{}
		for k, v := range body {
			params.Set(k, v)
		}
	}

	s.mu.Lock()
	s.streamCalls++
	s.streamQuery = append(s.streamQuery, params)
	chunks := append([]string(nil), s.chunks...)
	gap := s.chunkGap
	s.mu.Unlock()

	if websocket.IsWebSocketUpgrade(r) {
		s.streamWebSocket(w, r, chunks, gap)
		return
	}

	if strings.Contains(r.Header.Get("Accept"), "text/event-stream") {
		w.Header().Set("Content-Type", "text/event-stream")
	} else {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	}
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)
	for i, c := range chunks {
		if i > 0 && gap > 0 {
			select {
			case <-time.After(gap):
			case <-r.Context().Done():
				return
			}
		}
		if _, err := io.WriteString(w, c); err != nil {
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}

var upgrader = websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

func (s *OracleServer) streamWebSocket(w http.ResponseWriter, r *http.Request, chunks []string, gap time.Duration) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	for i, c := range chunks {
		if i > 0 && gap > 0 {
			time.Sleep(gap)
		}
		if err := conn.WriteMessage(websocket.TextMessage, []byte(c)); err != nil {
			return
		}
	}
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	// wait for the client's close acknowledgement
	_, _, _ = conn.ReadMessage()
}
