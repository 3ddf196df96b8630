// Package main is the entry point for the mnemo CLI.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/mnemo-dev/mnemo/internal/buildinfo"
	"github.com/mnemo-dev/mnemo/internal/config"
	"github.com/mnemo-dev/mnemo/internal/editor"
	clierrors "github.com/mnemo-dev/mnemo/internal/errors"
	"github.com/mnemo-dev/mnemo/internal/observability"
	"github.com/mnemo-dev/mnemo/internal/output"
	"github.com/mnemo-dev/mnemo/internal/tui/ansi"
)

// Set with -ldflags at release time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const flushTimeout = 5 * time.Second

// Commands that draw on the terminal; their logs go to the log file.
var interactiveCommands = []string{"mnemo compose", "mnemo server start", "mnemo init"}

// Cobra reports these as plain errors when they slip past SetFlagErrorFunc.
var usageErrorPrefixes = []string{"unknown command", "unknown flag", "unknown shorthand flag", "required flag"}

func main() {
	os.Exit(run())
}

func run() int {
	// The editor hides the cursor while drawing.
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprint(os.Stderr, ansi.ShowCursor)
			panic(r)
		}
	}()

	buildinfo.Version = version
	buildinfo.Commit = commit

	if err := newRootCmd().Execute(); err != nil {
		return handleError(output.Default(), err)
	}

	return 0
}

// handleError prints err and maps it to an exit code. A cancelled input
// session prints nothing.
func handleError(out *output.Writer, err error) int {
	if errors.Is(err, editor.ErrCancelled) {
		slog.Default().Debug("input cancelled", slog.String("event.type", "input.cancel"))
		return clierrors.ExitCancelled
	}

	var cliErr *clierrors.CLIError
	if clierrors.As(err, &cliErr) {
		out.Failure("%s", cliErr.Message)

		if cliErr.Hint != "" {
			out.Info("%s", cliErr.Hint)
		}

		return cliErr.Code
	}

	msg := err.Error()
	out.Failure("%s", msg)

	for _, prefix := range usageErrorPrefixes {
		if strings.HasPrefix(msg, prefix) {
			if !strings.Contains(msg, "--help") {
				out.Info("Run 'mnemo --help' for usage")
			}

			return clierrors.ExitUsage
		}
	}

	return clierrors.ExitGeneral
}

// globalFlags are the persistent flags every mnemo command accepts. Each
// also reads a MNEMO_* environment variable when the flag is unset.
type globalFlags struct {
	json, yaml, quiet, noColor, noInput bool

	logLevel, logFormat, logFile, logStderr string
}

func (g *globalFlags) register(fs *pflag.FlagSet) {
	fs.BoolVar(&g.json, "json", false, "Output in JSON format")
	fs.BoolVar(&g.yaml, "yaml", false, "Output in YAML format")
	fs.BoolVar(&g.quiet, "quiet", false, "Minimal output (for CI)")
	fs.BoolVar(&g.noColor, "no-color", false, "Disable colored output")
	fs.BoolVar(&g.noInput, "no-input", false, "Disable interactive prompts")
	fs.StringVar(&g.logLevel, "log-level", "", "Log level: error, warn, info, debug")
	fs.StringVar(&g.logFormat, "log-format", "", "Log format: json, text")
	fs.StringVar(&g.logFile, "log-file", "", "Optional structured log file path")
	fs.StringVar(&g.logStderr, "log-stderr", "", "Structured logging to stderr: auto, on, off")
}

// configureOutput applies the output flags, then output.format from the CLI
// configuration when no structured format was asked for.
func (g *globalFlags) configureOutput(out *output.Writer, settings *config.Config) {
	out.JSON = flagOrEnvBool(g.json, "MNEMO_JSON")
	out.YAML = flagOrEnvBool(g.yaml, "MNEMO_YAML")
	out.Quiet = flagOrEnvBool(g.quiet, "MNEMO_QUIET")
	out.NoInput = flagOrEnvBool(g.noInput, "MNEMO_NO_INPUT") || flagOrEnvBool(false, "CI")

	applyOutputFormat(out, settings.OutputFormat())

	if g.noColor {
		out.SetNoColor(true)
		color.NoColor = true
	}
}

func (g *globalFlags) logging(cmd *cobra.Command, out *output.Writer, settings *config.Config) *observability.Config {
	return &observability.Config{
		Level:          flagOrEnv(g.logLevel, "MNEMO_LOG_LEVEL", settings.LogLevel()),
		Format:         flagOrEnv(g.logFormat, "MNEMO_LOG_FORMAT", "json"),
		LogFile:        flagOrEnv(g.logFile, "MNEMO_LOG_FILE", ""),
		StderrMode:     flagOrEnv(g.logStderr, "MNEMO_LOG_STDERR", "auto"),
		InteractiveTTY: out.Terminal().IsTTY && isInteractiveCommand(cmd.CommandPath()),
		SessionID:      uuid.NewString(),
		CommandPath:    cmd.CommandPath(),
		Version:        version,
		Commit:         commit,
	}
}

func newRootCmd() *cobra.Command {
	var flags globalFlags

	out := output.Default()

	root := &cobra.Command{
		Use:   "mnemo",
		Short: "Mnemo - Memory tools for your terminal",
		Long: `Mnemo captures notes and memories from your terminal and hands them to
the mnemo-mcp companion server, which stores them in the Memory Backend.

Get started:
  mnemo init            Write default configuration and check your setup
  mnemo compose         Write a multi-line note inline
  mnemo server start    Run the companion server in the foreground
  mnemo doctor          Diagnose common issues`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			settings := config.Load()
			flags.configureOutput(out, settings)

			logger, closeLog, err := observability.NewLogger(flags.logging(cmd, out, settings))
			if err != nil {
				return &clierrors.CLIError{
					Message: fmt.Sprintf("Invalid logging configuration: %v", err),
					Hint:    "Use --log-level (error|warn|info|debug), --log-format (json|text), --log-stderr (auto|on|off), and/or --log-file",
					Code:    clierrors.ExitUsage,
				}
			}

			slog.SetDefault(logger)
			cmd.SetContext(observability.WithLogger(out.WithContext(cmd.Context()), logger))
			afterRun(cmd, "log file", closeLog)

			stopTracing, err := observability.StartTracing(cmd.Context(), observability.TracingFromEnv(version, commit))
			if err != nil {
				logger.Warn("tracing disabled", slog.String("error", err.Error()))
				return nil
			}

			afterRun(cmd, "trace exporter", func() error {
				ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
				defer cancel()

				return stopTracing(ctx)
			})

			return nil
		},
	}

	flags.register(root.PersistentFlags())

	root.SuggestionsMinimumDistance = 2
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return &clierrors.CLIError{
			Message: err.Error(),
			Hint:    fmt.Sprintf("Run '%s --help' for available flags", cmd.CommandPath()),
			Code:    clierrors.ExitUsage,
		}
	})

	root.AddCommand(
		newComposeCmd(),
		newServerCmd(),
		newConfigCmd(),
		newInitCmd(),
		newDoctorCmd(),
		newPathsCmd(),
		newVersionCmd(),
	)

	return root
}

// applyOutputFormat applies the configured output.format when neither --json
// nor --yaml was requested.
func applyOutputFormat(out *output.Writer, format string) {
	if out.Structured() {
		return
	}

	switch format {
	case "json":
		out.JSON = true
	case "yaml":
		out.YAML = true
	}
}

// afterRun chains release onto cmd's PostRunE. release runs even when the
// earlier PostRunE fails; its own error is labelled with what.
func afterRun(cmd *cobra.Command, what string, release func() error) {
	prev := cmd.PostRunE

	cmd.PostRunE = func(cmd *cobra.Command, args []string) error {
		var prevErr error
		if prev != nil {
			prevErr = prev(cmd, args)
		}

		if err := release(); err != nil && prevErr == nil {
			return fmt.Errorf("close %s: %w", what, err) //nolint:rawerror // internal cleanup, not user-facing
		}

		return prevErr
	}
}

func flagOrEnvBool(flag bool, env string) bool {
	if flag {
		return true
	}

	switch strings.ToLower(strings.TrimSpace(os.Getenv(env))) {
	case "1", "true", "yes":
		return true
	}

	return false
}

func flagOrEnv(flag, env, fallback string) string {
	for _, v := range []string{flag, os.Getenv(env)} {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}

	return fallback
}

func isInteractiveCommand(path string) bool {
	for _, c := range interactiveCommands {
		if path == c || strings.HasPrefix(path, c+" ") {
			return true
		}
	}

	return false
}

// noArgs rejects positional arguments with a usage error naming the command.
func noArgs(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return nil
	}

	return &clierrors.CLIError{
		Message: fmt.Sprintf("'%s' accepts no arguments", cmd.CommandPath()),
		Hint:    fmt.Sprintf("Run '%s --help' for usage", cmd.CommandPath()),
		Code:    clierrors.ExitUsage,
	}
}
