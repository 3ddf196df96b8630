package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mnemo-dev/mnemo/internal/companion"
	clierrors "github.com/mnemo-dev/mnemo/internal/errors"
	"github.com/mnemo-dev/mnemo/internal/paths"
	"github.com/mnemo-dev/mnemo/internal/testutil"
)

func TestRunServerStart_StopsOnCancel(t *testing.T) {
	isolateHome(t)
	exe := fakeCompanionPath(t)

	m := companion.NewManager(companion.Options{
		ConfigPath: filepath.Join(t.TempDir(), "mcp.json"),
		LogPath:    filepath.Join(t.TempDir(), "companion.log"),
		Logger:     quietLogger(),
	})

	sessionPath, err := paths.CompanionSessionFile()
	if err != nil {
		t.Fatal(err)
	}

	out, buf := testWriter()
	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)

	go func() {
		done <- runServerStart(ctx, out, m, companion.ConnectOptions{ServerPath: exe, Timeout: 10 * time.Second})
	}()

	deadline := time.Now().Add(15 * time.Second)

	for {
		if _, loadErr := companion.LoadSession(sessionPath); loadErr == nil {
			break
		}

		if time.Now().After(deadline) {
			cancel()
			t.Fatalf("session never recorded: %v", <-done)
		}

		time.Sleep(20 * time.Millisecond)
	}

	cancel()

	if err := <-done; err != nil {
		t.Fatalf("runServerStart: %v", err)
	}

	if _, statErr := os.Stat(sessionPath); !os.IsNotExist(statErr) {
		t.Errorf("session file %s left behind", sessionPath)
	}

	if !strings.Contains(buf.String(), "Companion server stopped") {
		t.Errorf("output missing stop confirmation:\n%s", buf.String())
	}

	if m.Status().IsConnected {
		t.Error("companion still connected after cancel")
	}
}

func TestRunServerStart_RefusesSecondSession(t *testing.T) {
	isolateHome(t)

	sessionPath, err := paths.CompanionSessionFile()
	if err != nil {
		t.Fatal(err)
	}

	// This process is alive, so the session counts as running.
	if err := companion.SaveSession(sessionPath, companion.Session{OwnerPID: os.Getpid(), PID: 99}); err != nil {
		t.Fatal(err)
	}

	out, _ := testWriter()
	m := companion.NewManager(companion.Options{ConfigPath: filepath.Join(t.TempDir(), "mcp.json"), Logger: quietLogger()})

	err = runServerStart(t.Context(), out, m, companion.ConnectOptions{})

	var cliErr *clierrors.CLIError
	if !clierrors.As(err, &cliErr) || cliErr.Code != clierrors.ExitCompanion {
		t.Fatalf("expected companion error, got %v", err)
	}

	if m.Status().ConnectionAttempts != 0 {
		t.Error("no companion should be started while another session runs")
	}
}

func TestServerStop_NothingRunning(t *testing.T) {
	isolateHome(t)

	out, buf := testWriter()
	if err := runSubcommand(t, newServerStopCmd(), out); err != nil {
		t.Fatalf("stop should succeed: %v", err)
	}

	if !strings.Contains(buf.String(), "No companion server is running") {
		t.Errorf("unexpected output %q", buf.String())
	}
}

func TestServerStatus_JSON(t *testing.T) {
	isolateHome(t)

	out, buf := testWriter()
	out.JSON = true

	if err := runSubcommand(t, newServerStatusCmd(), out); err != nil {
		t.Fatalf("status should succeed: %v", err)
	}

	var info ServerStatusInfo
	if err := json.Unmarshal(buf.Bytes(), &info); err != nil {
		t.Fatalf("status output is not JSON: %v\n%s", err, buf.String())
	}

	if info.Running {
		t.Error("nothing should be running")
	}

	if filepath.Base(info.ConfigPath) != "mcp.json" {
		t.Errorf("config path = %q", info.ConfigPath)
	}
}

func TestServerConfig_UpdatesOnlyGivenFlags(t *testing.T) {
	isolateHome(t)

	out, _ := testWriter()
	if err := runSubcommand(t, newServerConfigCmd(), out, "--port", "9000", "--server-log-level", "DEBUG"); err != nil {
		t.Fatalf("server config should succeed: %v", err)
	}

	path, err := paths.CompanionConfigFile()
	if err != nil {
		t.Fatal(err)
	}

	m := companion.NewManager(companion.Options{ConfigPath: path, Logger: quietLogger()})
	if err := m.Init(); err != nil {
		t.Fatal(err)
	}

	cfg := m.Config()
	if cfg.ServerPort != 9000 || cfg.LogLevel != "debug" {
		t.Errorf("port=%d level=%q, want 9000 debug", cfg.ServerPort, cfg.LogLevel)
	}

	if cfg.BackendURL != companion.DefaultBackendURL || !cfg.AutoStart {
		t.Errorf("untouched settings changed: %+v", cfg)
	}
}

func TestServerConfig_RejectsBadBackendURL(t *testing.T) {
	isolateHome(t)

	out, _ := testWriter()
	err := runSubcommand(t, newServerConfigCmd(), out, "--backend-url", "localhost:8080")

	var cliErr *clierrors.CLIError
	if !clierrors.As(err, &cliErr) || cliErr.Code != clierrors.ExitUsage {
		t.Fatalf("expected usage error, got %v", err)
	}
}

func TestRenderCompanionConfig_Golden(t *testing.T) {
	cfg := companion.DefaultConfig()
	cfg.ServerArgs = []string{"--verbose", "--cache", "/tmp/mnemo"}

	out, buf := testWriter()
	renderCompanionConfig(out, filepath.Join(t.TempDir(), "missing", "mcp.json"), cfg)

	// The file location varies per run; compare everything above it.
	got, _, _ := strings.Cut(buf.String(), "\nFile: ")
	testutil.AssertGolden(t, got, "server_config_defaults.golden")
}
