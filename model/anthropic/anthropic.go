// Package anthropic provides a model wrapper for the Anthropic Claude API.
package anthropic

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/hupe1980/astrooracle/model"
)

// Options configures the Anthropic model adapter (temperature, model id,
// max tokens, API key).
type Options struct {
	Model       anthropic.Model
	Temperature float64
	MaxTokens   int64
	APIKey      string
	BaseURL     string
}

// Model wraps the Anthropic Messages API behind the generic model.Model interface.
type Model struct {
	client *anthropic.Client
	opts   Options
}

// NewModel creates a new Anthropic model using the official client
func NewModel(optFns ...func(o *Options)) *Model {
	opts := defaultOptions(optFns...)

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(opts.BaseURL))
	}

	client := anthropic.NewClient(clientOpts...)

	return &Model{
		client: &client,
		opts:   opts,
	}
}

// NewModelFromClient creates a new Anthropic model from an existing client
func NewModelFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Model {
	return &Model{
		client: client,
		opts:   defaultOptions(optFns...),
	}
}

// NewTransport returns a core transport streaming from a new Anthropic model.
func NewTransport(optFns ...func(o *Options)) *model.Transport {
	return model.NewTransport(NewModel(optFns...))
}

func defaultOptions(optFns ...func(o *Options)) Options {
	opts := Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.7,
		MaxTokens:   2048,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return opts
}

// Generate implements model.Model over the Messages streaming API. Only
// text deltas are forwarded; generation ends on message_stop or when the
// event stream is exhausted.
func (m *Model) Generate(ctx context.Context, prompt model.Prompt) (<-chan string, <-chan error) {
	out := make(chan string, 32)
	errCh := make(chan error, 1)

	go func() {
		defer close(errCh)
		defer close(out)

		params := anthropic.MessageNewParams{
			Model: m.opts.Model,
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(prompt.User)),
			},
			MaxTokens:   m.opts.MaxTokens,
			Temperature: anthropic.Float(m.opts.Temperature),
		}
		if prompt.System != "" {
			params.System = []anthropic.TextBlockParam{{Text: prompt.System}}
		}

		stream := m.client.Messages.NewStreaming(ctx, params)
		defer stream.Close()

		for stream.Next() {
			event := stream.Current()
			switch event.Type {
			case "content_block_delta":
				if event.Delta.Text == "" {
					continue
				}
				select {
				case out <- event.Delta.Text:
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				}
			case "message_stop":
				return
			}
		}
		if err := stream.Err(); err != nil {
			errCh <- fmt.Errorf("anthropic streaming error: %w", err)
		}
	}()

	return out, errCh
}

// Info returns metadata about this model.
func (m *Model) Info() model.Info {
	return model.Info{
		Name:     string(m.opts.Model),
		Provider: "anthropic",
	}
}

var _ model.Model = (*Model)(nil)
