package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mnemo-dev/mnemo/internal/companion"
	"github.com/mnemo-dev/mnemo/internal/doctor"
	clierrors "github.com/mnemo-dev/mnemo/internal/errors"
	"github.com/mnemo-dev/mnemo/internal/output"
)

// CheckCompanionConnection is the live handshake check added by 'mnemo doctor'.
const CheckCompanionConnection = "Companion Connection"

func newDoctorCmd() *cobra.Command {
	var skipConnect bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Diagnose common issues",
		Long: `Run diagnostic checks to identify installation and environment issues.

Checks performed:
  - Companion Server: mnemo-mcp can be found
  - Text Input: the inline editor works end to end
  - Config Directory: the config directory is writable
  - Terminal: the terminal supports raw mode
  - Companion Connection: mnemo-mcp starts and answers the handshake`,
		Example: `  mnemo doctor
  mnemo doctor --skip-connect
  mnemo doctor --json`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())

			runner := newSetupFlow(cmd).Runner()

			if !skipConnect {
				runner.AddCheck(CheckCompanionConnection, companionConnectionCheck(newManager(cmd.Context())))
			}

			results := runner.Run(cmd.Context())

			if out.Structured() {
				return out.PrintStructured(results)
			}

			renderDoctor(out, results)

			return nil
		},
	}

	cmd.Flags().BoolVar(&skipConnect, "skip-connect", false, "Do not start the companion server")

	return cmd
}

// companionConnectionCheck starts the companion, waits for the handshake and
// stops it again.
func companionConnectionCheck(m *companion.Manager) doctor.Check {
	return func(ctx context.Context) doctor.Result {
		res := m.ConnectLocal(ctx, companion.ConnectOptions{})
		if !res.Success {
			result := doctor.Result{Status: doctor.StatusFail, Message: "Handshake failed"}

			var cliErr *clierrors.CLIError
			if clierrors.As(res.Err, &cliErr) {
				result.Message = cliErr.Message
				result.Detail = cliErr.Hint
			} else if res.Err != nil {
				result.Detail = res.Err.Error()
			}

			return result
		}

		if err := stopCompanion(m); err != nil {
			return doctor.Result{
				Status:  doctor.StatusWarn,
				Message: fmt.Sprintf("Connected, but stop failed (pid %d)", res.PID),
				Detail:  err.Error(),
			}
		}

		message := fmt.Sprintf("mnemo-mcp %s answered in this session", displayVersion(res.ServerVersion))

		if res.Warning != "" {
			return doctor.Result{Status: doctor.StatusWarn, Message: message, Detail: res.Warning}
		}

		return doctor.Result{Status: doctor.StatusPass, Message: message}
	}
}

func renderDoctor(out *output.Writer, results []doctor.Result) {
	out.Println("mnemo doctor")
	out.Println("============")
	out.Println()

	doctor.Render(out, results)

	tally := doctor.Count(results)

	out.Println()
	out.Print("%d passed", tally.Passed)

	if tally.Failed > 0 {
		out.Print(", %d failed", tally.Failed)
	}

	if tally.Warnings > 0 {
		out.Print(", %d warning(s)", tally.Warnings)
	}

	out.Println()
}
