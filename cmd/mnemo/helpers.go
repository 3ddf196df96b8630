package main

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/mnemo-dev/mnemo/internal/companion"
	"github.com/mnemo-dev/mnemo/internal/config"
	clierrors "github.com/mnemo-dev/mnemo/internal/errors"
	"github.com/mnemo-dev/mnemo/internal/observability"
	"github.com/mnemo-dev/mnemo/internal/terminal"
)

// openTerminal returns the terminal interactive commands draw on.
// Tests replace it with a terminal.Pipe.
var openTerminal = func() terminal.Terminal {
	return terminal.Stdio()
}

// newManager creates a companion manager that logs through the command's logger
// and hands the CLI's api.url to the companion. Configuration is read lazily,
// on first use.
func newManager(ctx context.Context) *companion.Manager {
	return companion.NewManager(companion.Options{
		APIURL: config.Load().APIURL(),
		Logger: observability.FromContext(ctx),
	})
}

// validateURL checks that raw is an absolute http(s) URL.
func validateURL(flag, raw string) error {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return &clierrors.CLIError{
			Message: fmt.Sprintf("Invalid %s: %q", flag, raw),
			Hint:    "Use an absolute http:// or https:// URL, for example https://api.mnemo.dev",
			Code:    clierrors.ExitUsage,
		}
	}

	return nil
}
