package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/torosent/formwire/internal/auth"
	"github.com/torosent/formwire/internal/config"
	"github.com/torosent/formwire/internal/form"
	"github.com/torosent/formwire/internal/metrics"
	"github.com/torosent/formwire/internal/output"
	"github.com/torosent/formwire/internal/request"
	"github.com/torosent/formwire/internal/tracing"
)

const shutdownTimeout = 5 * time.Second

type action string

const (
	actionSubmit   action = "submit"
	actionValidate action = "validate"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCommand(stdout)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

func newRootCommand(stdout io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "formwire",
		Short:         "Submit and validate HTML forms against a session-authenticated backend",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.SetOut(stdout)
	root.AddCommand(
		newActionCommand(actionSubmit, "Submit the form and print the response", stdout),
		newActionCommand(actionValidate, "Ask the server to validate the touched fields without saving", stdout),
	)
	return root
}

func newActionCommand(act action, short string, stdout io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   string(act) + " [url]",
		Short: short,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.NewLoader().LoadFlags(cmd.Flags())
			if err != nil {
				return err
			}
			if len(args) == 1 {
				cfg.Form.URL = args[0]
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return execute(cmd.Context(), cfg, act, stdout)
		},
	}
	config.RegisterFlags(cmd)
	return cmd
}

func execute(ctx context.Context, cfg *config.Config, act action, stdout io.Writer) (err error) {
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	tp, err := tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			logger.Warn("tracing shutdown failed", zap.Error(shutdownErr))
		}
	}()

	provider, err := auth.NewProvider(cfg.Auth)
	if err != nil {
		return fmt.Errorf("auth: %w", err)
	}

	collector := metrics.NewCollector()
	opts := []request.ClientOption{
		request.WithLogger(logger),
		request.WithTracing(tp),
		request.WithCollector(collector),
	}
	if provider != nil {
		opts = append(opts, request.WithAuthProvider(provider))
	}
	client := request.New(request.FromSettings(*cfg), opts...)
	defer func() {
		if closeErr := client.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
		if cfg.Stats {
			printStats(stdout, cfg.JSONOutput, collector.Stats(collector.Elapsed()))
		}
	}()

	values, err := buildFields(cfg)
	if err != nil {
		return err
	}
	f := form.New(values, form.ConfigFromSettings(cfg.Form), form.WithClient(client), form.WithLogger(logger))
	for _, name := range cfg.Touched {
		f.AddTouchedField(name)
	}

	collector.Start()
	start := time.Now()
	var resp *request.Response
	if act == actionValidate {
		resp, err = f.Validate(ctx, "")
	} else {
		resp, err = f.Submit(ctx, "")
	}
	result := output.Result{
		Action:     string(act),
		URL:        cfg.Form.URL,
		DurationMs: float64(time.Since(start)) / float64(time.Millisecond),
	}

	var submitErr *form.SubmitError
	switch {
	case err == nil:
		result.OK = true
		result.Status = resp.StatusCode
		result.SetBody(resp.Body)
	case errors.As(err, &submitErr):
		result.Status = submitErr.Status
		result.Message = submitErr.Message
		result.Errors = submitErr.Errors
		result.SetBody(submitErr.Body)
	default:
		return err
	}

	if cfg.JSONOutput {
		if printErr := output.PrintJSONResult(stdout, result); printErr != nil {
			return printErr
		}
	} else {
		output.PrintResult(stdout, result)
	}
	return err
}

func printStats(w io.Writer, jsonOutput bool, stats metrics.Stats) {
	if jsonOutput {
		_ = output.PrintJSONReport(w, stats)
		return
	}
	output.PrintReport(w, stats)
}
