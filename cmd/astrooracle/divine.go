package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/hupe1980/astrooracle"
	"github.com/hupe1980/astrooracle/core"
	"github.com/hupe1980/astrooracle/engine"
	"github.com/hupe1980/astrooracle/logging"
)

type divineFlags struct {
	config      string
	apiURL      string
	transport   string
	model       string
	settleDelay time.Duration
	logLevel    string
	logFormat   string
	timeout     time.Duration
	verbose     bool

	birthDate string
	name      string
	question  string
}

func newDivineCmd() *cobra.Command {
	var f divineFlags
	cmd := &cobra.Command{
		Use:   "divine",
		Short: "Compute the three starships and stream the interpretation",
		Example: `  astrooracle divine --birth-date 1990-05-17 --name Li --question "career?"
  astrooracle divine --config oracle.yaml --transport websocket --birth-date 1990-05-17`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts, err := resolveOptions(cmd, &f)
			if err != nil {
				return err
			}
			return runDivine(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), opts, f)
		},
	}

	fl := cmd.Flags()
	fl.StringVarP(&f.config, "config", "c", "", "YAML config file")
	fl.StringVar(&f.apiURL, "api-url", "", "oracle backend base URL")
	fl.StringVarP(&f.transport, "transport", "t", "", "stream transport (sse, chunked, websocket, openai, anthropic, mock)")
	fl.StringVar(&f.model, "model", "", "model id for the openai and anthropic transports")
	fl.DurationVar(&f.settleDelay, "settle-delay", 0, "delay before the stream opens")
	fl.StringVar(&f.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	fl.StringVar(&f.logFormat, "log-format", "", "log format (json, text); logging is off when unset")
	fl.DurationVar(&f.timeout, "timeout", 2*time.Minute, "overall timeout")
	fl.BoolVarP(&f.verbose, "verbose", "v", false, "print task status changes to stderr")

	fl.StringVar(&f.birthDate, "birth-date", "", "birth date (YYYY-MM-DD)")
	fl.StringVarP(&f.name, "name", "n", "", "name used in the interpretation")
	fl.StringVarP(&f.question, "question", "q", "", "question for the inquiry starship")
	_ = cmd.MarkFlagRequired("birth-date")

	return cmd
}

// resolveOptions layers environment, config file and flags, in that order.
func resolveOptions(cmd *cobra.Command, f *divineFlags) (astrooracle.Options, error) {
	opts := astrooracle.DefaultOptions
	if err := astrooracle.LoadOptionsFromEnv(&opts); err != nil {
		return opts, err
	}
	if f.config != "" {
		cfg, err := loadFileConfig(f.config)
		if err != nil {
			return opts, err
		}
		if err := cfg.apply(&opts); err != nil {
			return opts, fmt.Errorf("config %s: %w", f.config, err)
		}
	}

	changed := cmd.Flags().Changed
	if changed("api-url") {
		opts.BaseURL = f.apiURL
	}
	if changed("transport") {
		opts.Transport = f.transport
	}
	if changed("model") {
		opts.Model = f.model
	}
	if changed("settle-delay") {
		opts.SettleDelay = f.settleDelay
	}
	if changed("log-level") {
		level, err := logging.ParseLevel(f.logLevel)
		if err != nil {
			return opts, err
		}
		opts.LogLevel = level
	}
	if changed("log-format") {
		opts.LogFormat = f.logFormat
	}
	return opts, nil
}

func runDivine(ctx context.Context, stdout, stderr io.Writer, opts astrooracle.Options, f divineFlags) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	opts.Callbacks = append(opts.Callbacks,
		engine.NewFunctionCallback(engine.CallbackDelta, func(_ context.Context, cc *engine.CallbackContext) error {
			_, err := io.WriteString(stdout, cc.Delta)
			return err
		}),
	)
	if f.verbose {
		printer := func(msg string) { fmt.Fprintln(stderr, msg) }
		for _, t := range []engine.CallbackType{engine.CallbackTaskStatus, engine.CallbackReady, engine.CallbackNotReady} {
			opts.Callbacks = append(opts.Callbacks, engine.NewLoggingCallback(t, printer))
		}
	}

	oracle, err := astrooracle.New(func(o *astrooracle.Options) { *o = opts })
	if err != nil {
		return err
	}

	snap, err := oracle.Divine(ctx, core.Inputs{BirthDate: f.birthDate, Name: f.name, Question: f.question})
	if snap.VisibleText != "" {
		fmt.Fprintln(stdout)
	}
	if err != nil {
		return fmt.Errorf("divine: %w", err)
	}
	return nil
}
