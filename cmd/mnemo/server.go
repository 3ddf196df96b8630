package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mnemo-dev/mnemo/internal/companion"
	clierrors "github.com/mnemo-dev/mnemo/internal/errors"
	"github.com/mnemo-dev/mnemo/internal/observability"
	"github.com/mnemo-dev/mnemo/internal/output"
	"github.com/mnemo-dev/mnemo/internal/paths"
)

// stopSlack is added to the configured shutdown grace when waiting for a stop.
const stopSlack = 10 * time.Second

func newServerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "server",
		Short: "Manage the mnemo-mcp companion server",
		Long: `Find, run, and configure mnemo-mcp, the companion server that stores notes
in the Memory Backend.

The companion speaks JSON-RPC over its stdin and stdout, so it lives as long
as the mnemo process that started it. 'mnemo server start' keeps one attached
in the foreground until interrupted.`,
	}

	cmd.AddCommand(newServerDetectCmd())
	cmd.AddCommand(newServerStartCmd())
	cmd.AddCommand(newServerStopCmd())
	cmd.AddCommand(newServerStatusCmd())
	cmd.AddCommand(newServerToolsCmd())
	cmd.AddCommand(newServerConfigCmd())

	return cmd
}

// DetectInfo is the structured output of 'mnemo server detect'.
type DetectInfo struct {
	Path  string `json:"path" yaml:"path"`
	Saved bool   `json:"saved" yaml:"saved"`
}

func newServerDetectCmd() *cobra.Command {
	var save bool

	cmd := &cobra.Command{
		Use:   "detect",
		Short: "Locate the companion server binary",
		Long: `Search the usual install locations for mnemo-mcp and print the first match.

Search order: $MNEMO_MCP_PATH, the mnemo data directory, ~/.mnemo/bin,
/usr/local/bin, /opt/homebrew/bin, $PATH, and the directory holding mnemo.
Detection never changes configuration unless --save is given.`,
		Example: `  mnemo server detect
  mnemo server detect --save
  mnemo server detect --json`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())
			m := newManager(cmd.Context())

			path, err := m.DetectServerPath()
			if err != nil {
				return err
			}

			if save {
				if err := m.UpdateConfig(companion.ConfigPatch{LocalServerPath: &path}); err != nil {
					return err
				}
			}

			if out.Structured() {
				return out.PrintStructured(DetectInfo{Path: path, Saved: save})
			}

			out.Print("%s\n", path)

			if save {
				out.Success("Saved to %s", m.ConfigPath())
			}

			return nil
		},
	}

	cmd.Flags().BoolVar(&save, "save", false, "Persist the detected path as localServerPath")

	return cmd
}

func newServerStartCmd() *cobra.Command {
	var (
		serverPath string
		timeout    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Run the companion server in the foreground",
		Long: `Start mnemo-mcp, wait for it to answer the initialize handshake, and keep it
running until interrupted. On Ctrl+C or SIGTERM the companion is asked to
stop and is killed if it has not exited within the configured grace period.

The server path is taken from --path, then the saved localServerPath, then
detection. The companion's own output goes to the companion log file.`,
		Example: `  mnemo server start
  mnemo server start --path ./node_modules/.bin/mnemo-mcp.js
  mnemo server start --timeout 30s`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
			defer cancel()

			return runServerStart(ctx, output.FromContext(ctx), newManager(ctx),
				companion.ConnectOptions{ServerPath: serverPath, Timeout: timeout})
		},
	}

	cmd.Flags().StringVar(&serverPath, "path", "", "Companion binary or script to run")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Readiness timeout (default from readyTimeoutSeconds)")

	return cmd
}

func runServerStart(ctx context.Context, out *output.Writer, m *companion.Manager, opts companion.ConnectOptions) error {
	logger := observability.FromContext(ctx)

	sessionPath, err := paths.CompanionSessionFile()
	if err != nil {
		return clierrors.ConfigFailed("resolve session file", err)
	}

	if existing, loadErr := companion.LoadSession(sessionPath); loadErr == nil {
		return clierrors.New(clierrors.ExitCompanion,
			fmt.Sprintf("Companion server already running (mnemo pid %d, companion pid %d)", existing.OwnerPID, existing.PID)).
			WithHint("Stop it with 'mnemo server stop'")
	}

	human := !out.Structured()

	spin := out.Spinner("Starting companion server")
	if human {
		spin.Start()
	}

	res := m.ConnectLocal(ctx, opts)
	if !res.Success {
		if human {
			spin.StopWithFailure("Companion server failed to start")
		}

		return res.Err
	}

	if human {
		spin.StopWithSuccess(fmt.Sprintf("Companion server running (pid %d, version %s)", res.PID, displayVersion(res.ServerVersion)))
	}

	if res.Warning != "" && human {
		out.Warning("%s", res.Warning)
	}

	if session, ok := m.Session(); ok {
		if err := companion.SaveSession(sessionPath, session); err != nil {
			logger.Warn("record companion session failed", slog.String("error", err.Error()))
		}

		defer func() {
			if err := companion.RemoveSession(sessionPath, session.OwnerPID); err != nil {
				logger.Warn("remove companion session failed", slog.String("error", err.Error()))
			}
		}()

		if !human {
			if err := out.PrintStructured(session); err != nil {
				return errors.Join(err, stopCompanion(m))
			}
		} else {
			out.Muted("Logs: %s", session.LogPath)
		}
	}

	if human {
		out.Info("Press Ctrl+C to stop")
	}

	select {
	case <-ctx.Done():
		if err := stopCompanion(m); err != nil {
			return err
		}

		if human {
			out.Success("Companion server stopped")
		}

		return nil
	case <-m.Exited():
		logPath := ""
		if inst := m.Status().Instance; inst != nil {
			logPath = inst.LogPath
		}

		return clierrors.New(clierrors.ExitCompanion, "Companion server exited unexpectedly").
			WithHint(fmt.Sprintf("Inspect %s for the companion's output", logPath))
	}
}

// stopCompanion stops the companion with a fresh deadline; the command's
// context is usually already cancelled by the time it runs.
func stopCompanion(m *companion.Manager) error {
	ctx, cancel := context.WithTimeout(context.Background(), m.Config().ShutdownGrace()+stopSlack)
	defer cancel()

	return m.StopLocalServer(ctx)
}

func displayVersion(v string) string {
	if v == "" {
		return "unknown"
	}

	return v
}

func newServerStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the foreground companion server",
		Long: `Ask the 'mnemo server start' process holding the companion to shut it down,
and wait until it has. Stopping when nothing is running succeeds.`,
		Example: `  mnemo server stop`,
		Args:    noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())
			m := newManager(cmd.Context())

			sessionPath, err := paths.CompanionSessionFile()
			if err != nil {
				return clierrors.ConfigFailed("resolve session file", err)
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), m.Config().ShutdownGrace()+stopSlack)
			defer cancel()

			session, err := companion.StopSession(ctx, sessionPath)
			if errors.Is(err, companion.ErrNoSession) {
				out.Info("No companion server is running")
				return nil
			}

			if err != nil {
				return err
			}

			out.Success("Stopped companion server (pid %d)", session.PID)

			return nil
		},
	}
}

// ServerStatusInfo is the structured output of 'mnemo server status'.
type ServerStatusInfo struct {
	Running    bool               `json:"running" yaml:"running"`
	Session    *companion.Session `json:"session,omitempty" yaml:"session,omitempty"`
	ServerPath string             `json:"serverPath,omitempty" yaml:"serverPath,omitempty"`
	PathError  string             `json:"pathError,omitempty" yaml:"pathError,omitempty"`
	ConfigPath string             `json:"configPath" yaml:"configPath"`
}

func newServerStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show companion server status",
		Long: `Show whether a foreground companion server is running, and which binary
'mnemo server start' would run.`,
		Example: `  mnemo server status
  mnemo server status --json`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())
			m := newManager(cmd.Context())

			info := ServerStatusInfo{ConfigPath: m.ConfigPath()}

			if sessionPath, err := paths.CompanionSessionFile(); err == nil {
				if session, loadErr := companion.LoadSession(sessionPath); loadErr == nil {
					info.Running = true
					info.Session = &session
				}
			}

			if configured := m.Config().LocalServerPath; configured != "" {
				info.ServerPath = configured
			} else if detected, err := m.DetectServerPath(); err == nil {
				info.ServerPath = detected
			} else {
				info.PathError = err.Error()
			}

			if out.Structured() {
				return out.PrintStructured(info)
			}

			renderServerStatus(out, info)

			return nil
		},
	}
}

func renderServerStatus(out *output.Writer, info ServerStatusInfo) {
	if info.Running {
		s := info.Session
		out.Success("Running (pid %d, version %s)", s.PID, displayVersion(s.ServerVersion))
		out.Print("  Started:  %s\n", s.StartedAt.Local().Format(time.RFC3339))
		out.Print("  Port:     %d\n", s.Port)
		out.Print("  Owner:    mnemo pid %d\n", s.OwnerPID)
		out.Print("  Logs:     %s\n", s.LogPath)
	} else {
		out.Muted("Not running")
	}

	out.Println()

	if info.ServerPath != "" {
		out.Print("Server:     %s\n", info.ServerPath)
	} else {
		out.Print("Server:     not found\n")
	}

	out.Print("Config:     %s\n", info.ConfigPath)
}

func newServerToolsCmd() *cobra.Command {
	var serverPath string

	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List the tools the companion server offers",
		Long: `Start a short-lived companion, list the tools it offers over JSON-RPC, and
stop it again.`,
		Example: `  mnemo server tools
  mnemo server tools --json`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			out := output.FromContext(cmd.Context())
			m := newManager(cmd.Context())

			res := m.ConnectLocal(cmd.Context(), companion.ConnectOptions{ServerPath: serverPath})
			if !res.Success {
				return res.Err
			}

			defer func() {
				err = errors.Join(err, stopCompanion(m))
			}()

			if res.Warning != "" {
				out.Warning("%s", res.Warning)
			}

			tools, err := m.ListTools(cmd.Context())
			if err != nil {
				return err
			}

			if out.Structured() {
				return out.PrintStructured(tools)
			}

			if len(tools) == 0 {
				out.Muted("The companion offers no tools")
				return nil
			}

			width := 0
			for _, tool := range tools {
				width = max(width, len(tool.Name))
			}

			for _, tool := range tools {
				out.Print("%-*s  %s\n", width, tool.Name, tool.Description)
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&serverPath, "path", "", "Companion binary or script to run")

	return cmd
}

func newServerConfigCmd() *cobra.Command {
	var (
		serverPath   string
		port         int
		logLevel     string
		autoStart    bool
		backendURL   string
		readyTimeout int
		grace        int
		serverArgs   []string
	)

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change companion settings",
		Long: `Show the companion configuration, or change the settings given as flags.

Only the flags you pass are changed; everything else in the file, including
settings this version of mnemo does not know, is kept.

While backendUrl is left at its default, the companion uses api.url from
'mnemo config' instead.`,
		Example: `  mnemo server config
  mnemo server config --json
  mnemo server config --path /opt/mnemo/bin/mnemo-mcp --port 7979
  mnemo server config --server-log-level debug --auto-start=false`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())
			m := newManager(cmd.Context())
			flags := cmd.Flags()

			var patch companion.ConfigPatch

			if flags.Changed("path") {
				patch.LocalServerPath = &serverPath
			}

			if flags.Changed("port") {
				patch.ServerPort = &port
			}

			if flags.Changed("server-log-level") {
				level := strings.ToLower(strings.TrimSpace(logLevel))
				patch.LogLevel = &level
			}

			if flags.Changed("auto-start") {
				patch.AutoStart = &autoStart
			}

			if flags.Changed("backend-url") {
				if err := validateURL("--backend-url", backendURL); err != nil {
					return err
				}

				patch.BackendURL = &backendURL
			}

			if flags.Changed("ready-timeout") {
				patch.ReadyTimeoutSeconds = &readyTimeout
			}

			if flags.Changed("shutdown-grace") {
				patch.ShutdownGraceSeconds = &grace
			}

			if flags.Changed("args") {
				patch.ServerArgs = &serverArgs
			}

			if err := m.Init(); err != nil {
				// Changes are not written over a document that failed to load.
				if !patch.Empty() {
					return err
				}

				out.Warning("%s", err.Error())
			}

			if !patch.Empty() {
				if err := m.UpdateConfig(patch); err != nil {
					return err
				}

				if !out.Structured() {
					out.Success("Updated %s", m.ConfigPath())
				}
			}

			if out.Structured() {
				return out.PrintStructured(m.Config())
			}

			if patch.Empty() {
				renderCompanionConfig(out, m.ConfigPath(), m.Config())
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&serverPath, "path", "", "Companion binary or script (empty to use detection)")
	cmd.Flags().IntVar(&port, "port", companion.DefaultServerPort, "Port the companion listens on")
	cmd.Flags().StringVar(&logLevel, "server-log-level", companion.DefaultLogLevel, "Companion log level: error, warn, info, debug")
	cmd.Flags().BoolVar(&autoStart, "auto-start", true, "Start the companion on demand")
	cmd.Flags().StringVar(&backendURL, "backend-url", companion.DefaultBackendURL, "Memory Backend URL passed to the companion")
	cmd.Flags().IntVar(&readyTimeout, "ready-timeout", companion.DefaultReadyTimeoutSeconds, "Seconds to wait for the handshake")
	cmd.Flags().IntVar(&grace, "shutdown-grace", companion.DefaultShutdownGraceSeconds, "Seconds between SIGTERM and SIGKILL")
	cmd.Flags().StringSliceVar(&serverArgs, "args", nil, "Extra arguments passed to the companion")

	return cmd
}

func renderCompanionConfig(out *output.Writer, path string, cfg companion.Config) {
	serverPath := cfg.LocalServerPath
	if serverPath == "" {
		serverPath = "(detect)"
	}

	out.Print("localServerPath      = %s\n", serverPath)
	out.Print("serverPort           = %d\n", cfg.ServerPort)
	out.Print("logLevel             = %s\n", cfg.LogLevel)
	out.Print("autoStart            = %t\n", cfg.AutoStart)
	out.Print("backendUrl           = %s\n", cfg.BackendURL)
	out.Print("readyTimeoutSeconds  = %d\n", cfg.ReadyTimeoutSeconds)
	out.Print("shutdownGraceSeconds = %d\n", cfg.ShutdownGraceSeconds)

	if len(cfg.ServerArgs) > 0 {
		out.Print("serverArgs           = %s\n", strings.Join(cfg.ServerArgs, " "))
	}

	out.Println()
	out.Muted("File: %s", path)

	if _, err := os.Stat(path); err != nil {
		out.Muted("(not written yet; showing defaults)")
	}
}
