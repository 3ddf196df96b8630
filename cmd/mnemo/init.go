package main

import (
	"github.com/spf13/cobra"

	"github.com/mnemo-dev/mnemo/internal/config"
	"github.com/mnemo-dev/mnemo/internal/editor"
	"github.com/mnemo-dev/mnemo/internal/observability"
	"github.com/mnemo-dev/mnemo/internal/onboarding"
	"github.com/mnemo-dev/mnemo/internal/output"
)

// newSetupFlow wires onboarding to the real configuration, companion manager,
// editor and terminal.
func newSetupFlow(cmd *cobra.Command) *onboarding.Flow {
	ctx := cmd.Context()
	logger := observability.FromContext(ctx)
	term := openTerminal()

	return onboarding.New(onboarding.Options{
		Config:    config.Load(),
		Companion: newManager(ctx),
		Input:     editor.NewHandler(term, logger),
		Terminal:  term,
		Logger:    logger,
	})
}

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Set up mnemo for first use",
		Long: `Write the default configuration on first run and check that this machine can
run mnemo.

Checks performed:
  - Companion Server: mnemo-mcp can be found
  - Text Input: the inline editor works end to end
  - Config Directory: the config directory is writable
  - Terminal: the terminal supports raw mode

Running init again never overwrites an existing configuration. Failed checks,
and a configuration that could not be written, are reported with a fix and do
not make init fail.`,
		Example: `  mnemo init
  mnemo init --json`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())

			state := newSetupFlow(cmd).RunInitialSetup(cmd.Context())

			if out.Structured() {
				return out.PrintStructured(state)
			}

			out.Print("%s", onboarding.Summary(state))
			out.Println()
			out.Println("Next steps:")
			out.Println("  mnemo compose         Write your first note")
			out.Println("  mnemo server start    Run the companion server")
			out.Println("  mnemo doctor          Re-run these checks at any time")

			return nil
		},
	}
}
