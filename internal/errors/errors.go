// Package errors provides structured CLI error types for mnemo.
//
// A CLIError carries the line shown to the user, a hint on what to do next
// and the process exit code. cmd/mnemo prints it; everything below cmd/
// only constructs it.
package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Process exit codes. 64 follows the BSD sysexits usage code; 130 is the
// shell convention for an interrupt.
const (
	ExitGeneral   = 1
	ExitConfig    = 4
	ExitTimeout   = 5
	ExitCompanion = 6
	ExitTerminal  = 7
	ExitUsage     = 64
	ExitCancelled = 130
)

// CLIError is an error meant for the person at the terminal.
type CLIError struct {
	Message string
	Hint    string
	Cause   error
	Code    int
}

func (e *CLIError) Error() string {
	if e.Cause == nil {
		return e.Message
	}

	return e.Message + ": " + e.Cause.Error()
}

func (e *CLIError) Unwrap() error { return e.Cause }

// New returns a CLIError without a cause.
func New(code int, message string) *CLIError {
	return &CLIError{Message: message, Code: code}
}

// Wrap returns a CLIError caused by cause.
func Wrap(code int, message string, cause error) *CLIError {
	return &CLIError{Message: message, Cause: cause, Code: code}
}

// WithHint sets the hint and returns e.
func (e *CLIError) WithHint(hint string) *CLIError {
	e.Hint = hint
	return e
}

// As is errors.As for a *CLIError target.
func As(err error, target **CLIError) bool {
	return errors.As(err, target)
}

// HintFor returns the hint of the first CLIError in err's chain, if any.
func HintFor(err error) string {
	var cliErr *CLIError
	if As(err, &cliErr) {
		return cliErr.Hint
	}

	return ""
}

// Input.

func InvalidInputOptions(reason string) *CLIError {
	return New(ExitUsage, "Invalid input options: "+reason).
		WithHint("Check --max-lines, --submit-key and --cancel-key values")
}

func TerminalUnsupported(cause error) *CLIError {
	return Wrap(ExitTerminal, "Terminal does not support interactive input", cause).
		WithHint("Run mnemo from an interactive terminal, or pass the text with --text")
}

// CannotPrompt is returned under --no-input; flag names the non-interactive
// alternative.
func CannotPrompt(flag string) *CLIError {
	return New(ExitUsage, "Cannot prompt in non-interactive mode").
		WithHint(fmt.Sprintf("Pass %s instead", flag))
}

// Companion server.

// CompanionNotFound lists the locations DetectServerPath tried.
func CompanionNotFound(searched []string) *CLIError {
	hint := "Install mnemo-mcp or run 'mnemo server config --path <binary>'"
	if len(searched) > 0 {
		hint += ". Searched: " + strings.Join(searched, ", ")
	}

	return New(ExitCompanion, "Companion server not found").WithHint(hint)
}

func CompanionSpawnFailed(path string, cause error) *CLIError {
	return Wrap(ExitCompanion, "Failed to start companion server at "+path, cause).
		WithHint("Check that the file is executable, then run 'mnemo doctor'")
}

// CompanionNotReady points at logPath when the companion output was captured.
func CompanionNotReady(timeout time.Duration, logPath string) *CLIError {
	err := New(ExitTimeout, fmt.Sprintf("Companion server not ready after %s", timeout))
	if logPath == "" {
		return err.WithHint("Increase readyTimeoutSeconds with 'mnemo server config' or inspect the companion log")
	}

	return err.WithHint(fmt.Sprintf("Inspect %s, or raise the deadline with 'mnemo server config --ready-timeout'", logPath))
}

func CompanionExited(logPath string, cause error) *CLIError {
	err := Wrap(ExitCompanion, "Companion server exited during startup", cause)
	if logPath == "" {
		return err.WithHint("Run 'mnemo doctor' to check the installation")
	}

	return err.WithHint(fmt.Sprintf("Inspect %s for the companion's output", logPath))
}

func CompanionStopTimedOut(pid int) *CLIError {
	return New(ExitTimeout, fmt.Sprintf("Companion server (pid %d) did not exit after SIGKILL", pid)).
		WithHint("The process may be stuck in the kernel; check it with your process manager")
}

func CompanionNotRunning() *CLIError {
	return New(ExitCompanion, "Companion server is not running").
		WithHint("Run 'mnemo server start' first")
}

// Configuration.

// ConfigFailed reports a failed read or write; operation completes
// "Failed to ...".
func ConfigFailed(operation string, cause error) *CLIError {
	return Wrap(ExitConfig, "Failed to "+operation, cause).
		WithHint("Check file permissions for your mnemo config directory or run 'mnemo doctor'")
}

func UnknownConfigKey(key string, known []string) *CLIError {
	return New(ExitUsage, "Unknown config key: "+key).
		WithHint("Known keys: " + strings.Join(known, ", "))
}
