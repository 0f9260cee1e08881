// Package astrooracle provides a high-level façade over the session
// controller, the backend client and the streaming transports. Most
// applications interact with this package by:
//  1. Creating an Oracle via New() (optionally loading options from the environment)
//  2. Registering callbacks for task status, text deltas and the terminal outcome
//  3. Starting attempts asynchronously (Start) or synchronously (Divine)
//
// The façade delegates sequencing to engine.Controller and keeps setup
// concise. Every Start supersedes the previous attempt and its stream.
package astrooracle

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/hupe1980/astrooracle/api"
	"github.com/hupe1980/astrooracle/core"
	"github.com/hupe1980/astrooracle/engine"
	"github.com/hupe1980/astrooracle/logging"
	"github.com/hupe1980/astrooracle/model"
	anthropicmodel "github.com/hupe1980/astrooracle/model/anthropic"
	openaimodel "github.com/hupe1980/astrooracle/model/openai"
	"github.com/hupe1980/astrooracle/transport"
)

// Names of the model backed transports accepted in Options.Transport, in
// addition to the names accepted by transport.New.
const (
	TransportOpenAI    = "openai"
	TransportAnthropic = "anthropic"
	TransportMock      = "mock"
)

// Environment variables read by LoadOptionsFromEnv.
const (
	EnvAPIURL      = "ASTRO_API_URL"
	EnvTransport   = "ASTRO_TRANSPORT"
	EnvModel       = "ASTRO_MODEL"
	EnvSettleDelay = "ASTRO_SETTLE_DELAY"
	EnvLogLevel    = "ASTRO_LOG_LEVEL"
	EnvLogFormat   = "ASTRO_LOG_FORMAT"
)

// ErrCancelled is returned by Divine when the attempt was cancelled or
// superseded before it settled.
var ErrCancelled = errors.New("divination cancelled")

// Options configures the Oracle instance.
type Options struct {
	// BaseURL of the backend; must be absolute http or https.
	BaseURL string

	// Transport selects how the interpretation is streamed: sse (default),
	// chunked, websocket, openai, anthropic or mock.
	Transport string

	// Model overrides the model id of the openai and anthropic transports.
	Model string

	// StreamTransport, when set, is used instead of Transport.
	StreamTransport core.Transport

	// HTTPClient is shared by the backend client and HTTP transports.
	HTTPClient *http.Client

	// SettleDelay is waited before a new stream opens.
	SettleDelay time.Duration

	// LogLevel and LogFormat build a structured logger when Logger is nil
	// and LogFormat is set.
	LogLevel  logging.LogLevel
	LogFormat string

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger

	// Callbacks receive lifecycle events of every attempt.
	Callbacks []engine.Callback
}

// DefaultOptions are applied before the caller's options.
var DefaultOptions = Options{
	Transport:   transport.NameEventSource,
	SettleDelay: engine.DefaultConfig.SettleDelay,
	LogLevel:    logging.LogLevelInfo,
}

// LoadOptionsFromEnv overlays the ASTRO_* environment variables onto o.
// Unset variables leave the corresponding field untouched.
func LoadOptionsFromEnv(o *Options) error {
	if v, ok := lookup(EnvAPIURL); ok {
		o.BaseURL = v
	}
	if v, ok := lookup(EnvTransport); ok {
		o.Transport = v
	}
	if v, ok := lookup(EnvModel); ok {
		o.Model = v
	}
	if v, ok := lookup(EnvSettleDelay); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvSettleDelay, err)
		}
		if d < 0 {
			return fmt.Errorf("%s: negative duration %s", EnvSettleDelay, v)
		}
		o.SettleDelay = d
	}
	if v, ok := lookup(EnvLogLevel); ok {
		level, err := logging.ParseLevel(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvLogLevel, err)
		}
		o.LogLevel = level
	}
	if v, ok := lookup(EnvLogFormat); ok {
		o.LogFormat = v
	}
	return nil
}

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

// Oracle is the high-level façade aggregating the backend client and the controller.
type Oracle struct {
	opts       Options
	client     *api.Client
	transport  core.Transport
	controller *engine.Controller
}

// New creates a new Oracle. It fails when BaseURL is not an absolute
// http(s) URL or the transport name is unknown.
func New(optFns ...func(o *Options)) (*Oracle, error) {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
		if opts.LogFormat != "" {
			opts.Logger = logging.NewSlogLogger(opts.LogLevel, opts.LogFormat, false).WithComponent("oracle")
		}
	}

	client, err := api.NewClient(opts.BaseURL, func(o *api.ClientOptions) {
		o.HTTPClient = opts.HTTPClient
		o.Logger = opts.Logger
	})
	if err != nil {
		return nil, err
	}

	tr, err := newTransport(opts, client)
	if err != nil {
		return nil, err
	}

	ctrl := engine.New(client.Specs, tr, func(o *engine.Options) {
		o.Config.SettleDelay = opts.SettleDelay
		o.Logger = opts.Logger
		o.Callbacks = opts.Callbacks
	})

	return &Oracle{opts: opts, client: client, transport: tr, controller: ctrl}, nil
}

func newTransport(opts Options, client *api.Client) (core.Transport, error) {
	if opts.StreamTransport != nil {
		return opts.StreamTransport, nil
	}
	switch strings.ToLower(strings.TrimSpace(opts.Transport)) {
	case TransportOpenAI:
		return openaimodel.NewTransport(func(o *openaimodel.Options) {
			if opts.Model != "" {
				o.Model = opts.Model
			}
		}), nil
	case TransportAnthropic:
		return anthropicmodel.NewTransport(func(o *anthropicmodel.Options) {
			if opts.Model != "" {
				o.Model = anthropic.Model(opts.Model)
			}
		}), nil
	case TransportMock:
		return model.NewTransport(model.NewMockModel("oracle-mock")), nil
	default:
		return transport.New(opts.Transport, client.StreamURL(), opts.HTTPClient, opts.Logger)
	}
}

// Client returns the backend client.
func (o *Oracle) Client() *api.Client { return o.client }

// TransportInfo describes the stream transport in use.
func (o *Oracle) TransportInfo() core.TransportInfo { return o.transport.Info() }

// Callbacks returns the callback manager of the controller.
func (o *Oracle) Callbacks() *engine.CallbackManager { return o.controller.Callbacks() }

// Start begins a new attempt, superseding any previous one.
func (o *Oracle) Start(ctx context.Context, in core.Inputs) error {
	return o.controller.Start(ctx, in)
}

// Cancel stops the current attempt.
func (o *Oracle) Cancel() { o.controller.Cancel() }

// Snapshot returns the read model of the current attempt.
func (o *Oracle) Snapshot() core.Snapshot { return o.controller.Snapshot() }

// Wait blocks until the current attempt settles or ctx is done.
func (o *Oracle) Wait(ctx context.Context) error { return o.controller.Wait(ctx) }

// Divine is a synchronous helper: it starts an attempt, waits for it to
// settle and returns the final snapshot. The error is the attempt's failure,
// if any; the snapshot keeps the partial text of a failed stream.
func (o *Oracle) Divine(ctx context.Context, in core.Inputs) (core.Snapshot, error) {
	if ol, ok := o.opts.Logger.(*logging.OracleLogger); ok {
		defer ol.StartTimer("divine")()
	}
	if err := o.Start(ctx, in); err != nil {
		return o.Snapshot(), err
	}
	if err := o.Wait(ctx); err != nil {
		o.Cancel()
		return o.Snapshot(), err
	}

	snap := o.Snapshot()
	switch {
	case snap.LastError != nil:
		return snap, snap.LastError
	case snap.Terminal == core.TerminalCancelled:
		return snap, ErrCancelled
	default:
		return snap, nil
	}
}
