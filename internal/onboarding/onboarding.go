// Package onboarding runs mnemo's first-time setup: it writes default
// configuration on the first run and checks that the local environment can
// host interactive sessions and the companion server.
package onboarding

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/mnemo-dev/mnemo/internal/config"
	"github.com/mnemo-dev/mnemo/internal/doctor"
	clierrors "github.com/mnemo-dev/mnemo/internal/errors"
	"github.com/mnemo-dev/mnemo/internal/observability"
	"github.com/mnemo-dev/mnemo/internal/terminal"
)

// Check names, in the order they run.
const (
	CheckCompanion = "Companion Server"
	CheckTextInput = "Text Input"
	CheckConfigDir = "Config Directory"
	CheckTerminal  = "Terminal"
)

// ServerLocator finds the companion binary.
type ServerLocator interface {
	DetectServerPath() (string, error)
}

// InputChecker exercises the text input pipeline without a terminal.
type InputChecker interface {
	SelfCheck() error
}

// State is the outcome of a setup run.
type State struct {
	IsFirstRun      bool            `json:"isFirstRun" yaml:"isFirstRun"`
	DefaultsWritten bool            `json:"defaultsWritten" yaml:"defaultsWritten"`
	DefaultsError   string          `json:"defaultsError,omitempty" yaml:"defaultsError,omitempty"`
	ConfigPath      string          `json:"configPath" yaml:"configPath"`
	CheckResults    []doctor.Result `json:"checks" yaml:"checks"`
}

// Passed reports whether every check passed.
func (s State) Passed() bool {
	return doctor.AllPassed(s.CheckResults)
}

// Options wires a Flow to its collaborators.
type Options struct {
	Config    *config.Config
	Companion ServerLocator
	Input     InputChecker
	Terminal  terminal.Terminal

	// ConfigDir overrides the directory checked for write access.
	// Defaults to the directory holding the config file.
	ConfigDir func() (string, error)

	Logger *slog.Logger
}

// Flow runs setup against one configuration file.
type Flow struct {
	cfg       *config.Config
	companion ServerLocator
	input     InputChecker
	term      terminal.Terminal
	configDir func() (string, error)
	logger    *slog.Logger
}

// New returns a Flow.
func New(opts Options) *Flow {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	f := &Flow{
		cfg:       opts.Config,
		companion: opts.Companion,
		input:     opts.Input,
		term:      opts.Terminal,
		configDir: opts.ConfigDir,
		logger:    observability.Component(logger, "onboarding"),
	}

	if f.configDir == nil {
		f.configDir = func() (string, error) {
			if f.cfg.Path() == "" {
				return "", fmt.Errorf("no config file location")
			}

			return filepath.Dir(f.cfg.Path()), nil
		}
	}

	return f
}

// DetectFirstRun reports whether no configuration file exists yet.
func (f *Flow) DetectFirstRun() bool {
	return !f.cfg.Exists()
}

// ConfigureDefaults writes the default configuration if no file exists.
// It reports whether a file was written.
func (f *Flow) ConfigureDefaults() (bool, error) {
	written, err := f.cfg.WriteDefaults()
	if err != nil {
		return false, clierrors.ConfigFailed("write default configuration", err)
	}

	if written {
		f.logger.Info("Wrote default configuration",
			slog.String("event.type", "onboarding.defaults"),
			slog.String("path", f.cfg.Path()),
		)
	}

	return written, nil
}

// Runner returns the setup checks, ready to run or to extend.
func (f *Flow) Runner() *doctor.Runner {
	r := doctor.New()
	r.AddCheck(CheckCompanion, f.checkCompanion)
	r.AddCheck(CheckTextInput, f.checkTextInput)
	r.AddCheck(CheckConfigDir, doctor.WritableDir(f.configDir))
	r.AddCheck(CheckTerminal, f.checkTerminal)

	return r
}

// TestConnectivity runs the setup checks. Failures are reported in the
// results, never as an error.
func (f *Flow) TestConnectivity(ctx context.Context) []doctor.Result {
	results := f.Runner().Run(ctx)

	for _, r := range results {
		if !r.Passed() {
			f.logger.Warn("Setup check failed",
				slog.String("event.type", "onboarding.check"),
				slog.String("check", r.Name),
				slog.String("message", r.Message),
			)
		}
	}

	return results
}

// RunInitialSetup writes defaults on the first run, then runs the checks.
// Running it again never overwrites an existing configuration. A failure to
// write defaults is recorded in the state and the checks still run.
func (f *Flow) RunInitialSetup(ctx context.Context) State {
	state := State{
		IsFirstRun: f.DetectFirstRun(),
		ConfigPath: f.cfg.Path(),
	}

	if state.IsFirstRun {
		written, err := f.ConfigureDefaults()
		if err != nil {
			state.DefaultsError = err.Error()

			f.logger.Warn("Default configuration not written",
				slog.String("event.type", "onboarding.defaults.error"),
				slog.String("path", f.cfg.Path()),
				slog.String("error", err.Error()),
			)
		}

		state.DefaultsWritten = written
	}

	state.CheckResults = f.TestConnectivity(ctx)

	return state
}

func (f *Flow) checkCompanion(context.Context) doctor.Result {
	if f.companion == nil {
		return doctor.Result{
			Status:  doctor.StatusFail,
			Message: "Not configured",
			Detail:  "Install mnemo-mcp or run 'mnemo server config --path <binary>'",
		}
	}

	path, err := f.companion.DetectServerPath()
	if err != nil {
		detail := clierrors.HintFor(err)
		if detail == "" {
			detail = err.Error()
		}

		return doctor.Result{
			Status:  doctor.StatusFail,
			Message: "Not found",
			Detail:  detail,
		}
	}

	return doctor.Result{Status: doctor.StatusPass, Message: path}
}

func (f *Flow) checkTextInput(context.Context) doctor.Result {
	if f.input == nil {
		return doctor.Result{Status: doctor.StatusWarn, Message: "Skipped"}
	}

	if err := f.input.SelfCheck(); err != nil {
		return doctor.Result{
			Status:  doctor.StatusFail,
			Message: "Scripted session failed",
			Detail:  fmt.Sprintf("%v; rerun with --log-level debug and report the log", err),
		}
	}

	return doctor.Result{Status: doctor.StatusPass, Message: "Inline editor ready"}
}

func (f *Flow) checkTerminal(ctx context.Context) doctor.Result {
	if f.term == nil {
		return doctor.Result{
			Status:  doctor.StatusFail,
			Message: "No terminal attached",
			Detail:  "Run mnemo directly in a terminal; use --text when piping input",
		}
	}

	return doctor.Terminal(f.term)(ctx)
}

// Summary renders a human-readable report of state.
func Summary(state State) string {
	var b strings.Builder

	switch {
	case state.DefaultsError != "":
		fmt.Fprintf(&b, "Could not write configuration to %s\n  %s\n", state.ConfigPath, state.DefaultsError)
	case state.DefaultsWritten:
		fmt.Fprintf(&b, "Configuration written to %s\n", state.ConfigPath)
	case state.IsFirstRun:
		fmt.Fprintf(&b, "Configuration already present at %s\n", state.ConfigPath)
	default:
		fmt.Fprintf(&b, "Using existing configuration at %s\n", state.ConfigPath)
	}

	b.WriteString("\n")

	doctor.Render(plainPrinter{&b}, state.CheckResults)

	tally := doctor.Count(state.CheckResults)
	fmt.Fprintf(&b, "\n%d passed, %d failed, %d warnings\n", tally.Passed, tally.Failed, tally.Warnings)

	return b.String()
}

// plainPrinter renders check lines without color for Summary.
type plainPrinter struct{ b *strings.Builder }

func (p plainPrinter) line(mark, format string, args ...any) {
	if mark != "" {
		p.b.WriteString(mark + " ")
	}

	fmt.Fprintf(p.b, format, args...)
	p.b.WriteString("\n")
}

func (p plainPrinter) Success(format string, args ...any) {
	p.line(doctor.StatusPass.Symbol(), format, args...)
}

func (p plainPrinter) Warning(format string, args ...any) {
	p.line(doctor.StatusWarn.Symbol(), format, args...)
}

func (p plainPrinter) Failure(format string, args ...any) {
	p.line(doctor.StatusFail.Symbol(), format, args...)
}

func (p plainPrinter) Muted(format string, args ...any) { p.line("", format, args...) }
