package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/hupe1980/astrooracle/core"
	"github.com/hupe1980/astrooracle/logging"
	"github.com/hupe1980/astrooracle/task"
)

const (
	divinePath = "/api/v1/divine/"
	streamPath = "/api/v1/oracle/stream"

	maxBodyBytes = 1 << 20
)

var (
	// ErrInvalidBaseURL is returned for relative or non-http base URLs.
	ErrInvalidBaseURL = errors.New("base URL must be an absolute http(s) URL")
	// ErrNotSuccessful is returned when an envelope reports success=false.
	ErrNotSuccessful = errors.New("request not successful")
)

// idPaths are probed in order for the required identifier.
var idPaths = []string{
	"data.starship.archive_id",
	"data.archive_id",
	"data.id",
	"id",
}

// ResponseError describes a failed remote computation.
type ResponseError struct {
	Kind    core.TaskKind
	Status  int
	Message string
	Err     error
}

func (e *ResponseError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v: %s", e.Kind, e.Err, msg)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Kind, e.Status, msg)
}

func (e *ResponseError) Unwrap() error { return e.Err }

// ClientOptions configures a Client.
type ClientOptions struct {
	HTTPClient *http.Client
	Logger     logging.Logger
	// Header is added to every request.
	Header http.Header
}

// DefaultClientOptions are the options applied before the caller's.
var DefaultClientOptions = ClientOptions{
	HTTPClient: http.DefaultClient,
	Logger:     logging.NoOpLogger{},
}

// Client calls the oracle backend.
type Client struct {
	base *url.URL
	opts ClientOptions
}

// NewClient creates a client for baseURL, which must be absolute http(s).
func NewClient(baseURL string, optFns ...func(o *ClientOptions)) (*Client, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBaseURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidBaseURL, baseURL)
	}
	u.Path = strings.TrimRight(u.Path, "/")

	opts := DefaultClientOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return &Client{base: u, opts: opts}, nil
}

// StreamURL returns the absolute URL of the stream endpoint.
func (c *Client) StreamURL() string {
	return c.endpoint(streamPath)
}

// HTTPClient returns the underlying HTTP client, shared with transports.
func (c *Client) HTTPClient() *http.Client { return c.opts.HTTPClient }

// Origin computes the origin starship from the birth date and name.
func (c *Client) Origin(ctx context.Context, in core.Inputs) (core.TaskResult, error) {
	return c.divine(ctx, core.TaskOrigin, map[string]string{
		"birth_date": strings.TrimSpace(in.BirthDate),
		"name":       in.EffectiveName(),
	})
}

// Celestial computes the starship of the current moment.
func (c *Client) Celestial(ctx context.Context) (core.TaskResult, error) {
	return c.divine(ctx, core.TaskCelestial, map[string]string{})
}

// Inquiry computes the starship answering the question.
func (c *Client) Inquiry(ctx context.Context, in core.Inputs) (core.TaskResult, error) {
	return c.divine(ctx, core.TaskInquiry, map[string]string{
		"question": in.EffectiveQuestion(),
		"name":     in.EffectiveName(),
	})
}

// Specs returns the three sub-task specs of an attempt with inputs in.
func (c *Client) Specs(in core.Inputs) []task.Spec {
	return []task.Spec{
		{Kind: core.TaskOrigin, Run: func(ctx context.Context) (core.TaskResult, error) { return c.Origin(ctx, in) }},
		{Kind: core.TaskCelestial, Run: c.Celestial},
		{Kind: core.TaskInquiry, Run: func(ctx context.Context) (core.TaskResult, error) { return c.Inquiry(ctx, in) }},
	}
}

func (c *Client) endpoint(path string) string {
	u := *c.base
	u.Path = c.base.Path + path
	return u.String()
}

func (c *Client) divine(ctx context.Context, kind core.TaskKind, body any) (core.TaskResult, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return core.TaskResult{}, fmt.Errorf("encode %s request: %w", kind, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(divinePath+string(kind)), bytes.NewReader(payload))
	if err != nil {
		return core.TaskResult{}, fmt.Errorf("build %s request: %w", kind, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, vs := range c.opts.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.opts.HTTPClient.Do(req)
	if err != nil {
		return core.TaskResult{}, &ResponseError{Kind: kind, Err: err}
	}
	defer resp.Body.Close()
	c.opts.Logger.Debug("api.response", "task", kind.String(), "status", resp.StatusCode)

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return core.TaskResult{}, &ResponseError{Kind: kind, Status: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return core.TaskResult{}, &ResponseError{Kind: kind, Status: resp.StatusCode, Message: envelopeMessage(raw)}
	}
	return decodeEnvelope(kind, resp.StatusCode, raw)
}

// decodeEnvelope extracts the identifier of a 2xx response. A success
// envelope without an identifier yields a result with an empty ID, which the
// readiness predicate rejects.
func decodeEnvelope(kind core.TaskKind, status int, raw []byte) (core.TaskResult, error) {
	if !gjson.ValidBytes(raw) {
		return core.TaskResult{}, &ResponseError{Kind: kind, Status: status, Message: "malformed response body"}
	}
	if s := gjson.GetBytes(raw, "success"); s.Exists() && !s.Bool() {
		return core.TaskResult{}, &ResponseError{Kind: kind, Status: status, Message: envelopeMessage(raw), Err: ErrNotSuccessful}
	}
	res := core.TaskResult{Payload: append([]byte(nil), raw...)}
	for _, path := range idPaths {
		if v := gjson.GetBytes(raw, path); v.Exists() && v.String() != "" {
			res.ID = v.String()
			break
		}
	}
	return res, nil
}

func envelopeMessage(raw []byte) string {
	for _, path := range []string{"message", "detail", "error.message", "error"} {
		if v := gjson.GetBytes(raw, path); v.Type == gjson.String && v.String() != "" {
			return v.String()
		}
	}
	return ""
}
