// Package doctor provides the diagnostic check framework behind 'mnemo init'
// and 'mnemo doctor'.
//
// Checks are independent functions that never return errors. A failing check
// reports what went wrong in Message and how to fix it in Detail.
package doctor

import (
	"context"
	"fmt"
)

// Status is the outcome of one check. Warnings do not fail a run.
type Status int

const (
	StatusPass Status = iota
	StatusWarn
	StatusFail
)

var statusNames = [...]string{StatusPass: "pass", StatusWarn: "warn", StatusFail: "fail"}

var statusSymbols = [...]string{StatusPass: "✓", StatusWarn: "⚠", StatusFail: "✗"}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return "unknown"
	}

	return statusNames[s]
}

// Symbol is the mark printed in front of a result line.
func (s Status) Symbol() string {
	if s < 0 || int(s) >= len(statusSymbols) {
		return "?"
	}

	return statusSymbols[s]
}

// MarshalText encodes the status by name for JSON and YAML output.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Result is the outcome of a single check. Detail holds the remediation.
type Result struct {
	Name    string `json:"name" yaml:"name"`
	Status  Status `json:"status" yaml:"status"`
	Message string `json:"message" yaml:"message"`
	Detail  string `json:"detail,omitempty" yaml:"detail,omitempty"`
}

// Passed reports whether the check did not fail.
func (r Result) Passed() bool {
	return r.Status != StatusFail
}

// Check runs one diagnostic.
type Check func(ctx context.Context) Result

// Runner runs registered checks in order.
type Runner struct {
	names  []string
	checks []Check
}

// New returns a Runner with no checks.
func New() *Runner {
	return &Runner{}
}

// AddCheck appends check under name.
func (r *Runner) AddCheck(name string, check Check) {
	r.names = append(r.names, name)
	r.checks = append(r.checks, check)
}

// Run executes every check and names each result after its registration.
// A panicking check becomes a failed result and the rest still run.
func (r *Runner) Run(ctx context.Context) []Result {
	results := make([]Result, len(r.checks))

	for i, check := range r.checks {
		results[i] = guarded(ctx, check)
		results[i].Name = r.names[i]
	}

	return results
}

func guarded(ctx context.Context, check Check) (res Result) {
	defer func() {
		if p := recover(); p != nil {
			res = Result{
				Status:  StatusFail,
				Message: "Check crashed",
				Detail:  fmt.Sprintf("%v; please report this with 'mnemo doctor --json'", p),
			}
		}
	}()

	return check(ctx)
}

// Tally counts results by status.
type Tally struct {
	Passed, Failed, Warnings int
}

// Count tallies results.
func Count(results []Result) Tally {
	var t Tally

	for _, r := range results {
		switch r.Status {
		case StatusPass:
			t.Passed++
		case StatusWarn:
			t.Warnings++
		default:
			t.Failed++
		}
	}

	return t
}

// AllPassed reports whether no result failed.
func AllPassed(results []Result) bool {
	return Count(results).Failed == 0
}

// Printer receives one call per rendered line.
type Printer interface {
	Success(format string, args ...any)
	Warning(format string, args ...any)
	Failure(format string, args ...any)
	Muted(format string, args ...any)
}

// Render prints one aligned line per result, followed by its Detail.
func Render(p Printer, results []Result) {
	width := 0
	for _, r := range results {
		width = max(width, len(r.Name))
	}

	width += 4

	for _, r := range results {
		line := p.Failure

		switch r.Status {
		case StatusPass:
			line = p.Success
		case StatusWarn:
			line = p.Warning
		}

		line("%-*s%s", width, r.Name, r.Message)

		if r.Detail != "" {
			p.Muted("    %s", r.Detail)
		}
	}
}
