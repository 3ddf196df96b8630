//go:build unix

package companion

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// startOwner runs the test binary as a stand-in for a foreground mnemo
// process and reaps it in the background.
func startOwner(t *testing.T, mode string) (*exec.Cmd, <-chan struct{}) {
	t.Helper()

	exe, err := os.Executable()
	require.NoError(t, err)

	cmd := exec.Command(exe) //nolint:gosec // G204: the test binary itself
	cmd.Env = append(os.Environ(), fakeModeEnv+"="+mode)
	require.NoError(t, cmd.Start())

	reaped := make(chan struct{})

	go func() {
		_ = cmd.Wait()
		close(reaped)
	}()

	t.Cleanup(func() {
		_ = cmd.Process.Kill()
		<-reaped
	})

	return cmd, reaped
}

func TestSession_SaveLoadRemove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "companion.session.json")

	_, err := LoadSession(path)
	require.ErrorIs(t, err, ErrNoSession)

	want := Session{
		OwnerPID:      os.Getpid(),
		PID:           4242,
		Port:          DefaultServerPort,
		ServerPath:    "/usr/local/bin/mnemo-mcp",
		ServerVersion: "0.5.0",
		LogPath:       "/tmp/companion.log",
		StartedAt:     time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	require.NoError(t, SaveSession(path, want))

	got, err := LoadSession(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	require.NoError(t, RemoveSession(path, os.Getpid()+1))
	assert.FileExists(t, path, "another owner's session is left alone")

	require.NoError(t, RemoveSession(path, os.Getpid()))
	assert.NoFileExists(t, path)
	require.NoError(t, RemoveSession(path, os.Getpid()))
}

func TestLoadSession_StaleOwnerIsRemoved(t *testing.T) {
	path := filepath.Join(t.TempDir(), "companion.session.json")

	cmd, reaped := startOwner(t, "crash")
	<-reaped

	require.NoError(t, SaveSession(path, Session{OwnerPID: cmd.Process.Pid}))

	_, err := LoadSession(path)
	require.ErrorIs(t, err, ErrNoSession)
	assert.NoFileExists(t, path)
}

func TestLoadSession_CorruptFileIsRemoved(t *testing.T) {
	path := filepath.Join(t.TempDir(), "companion.session.json")
	require.NoError(t, os.WriteFile(path, []byte("{"), 0o600))

	_, err := LoadSession(path)
	require.ErrorIs(t, err, ErrNoSession)
	assert.NoFileExists(t, path)
}

func TestStopSession_SignalsOwner(t *testing.T) {
	defer goleak.VerifyNone(t)

	path := filepath.Join(t.TempDir(), "companion.session.json")
	cmd, reaped := startOwner(t, "silent")

	require.NoError(t, SaveSession(path, Session{OwnerPID: cmd.Process.Pid, PID: 1}))

	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Second)
	defer cancel()

	s, err := StopSession(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, cmd.Process.Pid, s.OwnerPID)
	assert.NoFileExists(t, path)

	select {
	case <-reaped:
	case <-time.After(5 * time.Second):
		t.Fatal("owner still running")
	}
}

func TestStopSession_NothingRunning(t *testing.T) {
	_, err := StopSession(t.Context(), filepath.Join(t.TempDir(), "missing.json"))
	require.ErrorIs(t, err, ErrNoSession)
}

func TestManagerSession(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := newFixture(t, "ok")

	_, ok := f.manager.Session()
	assert.False(t, ok)

	res := f.connect(t, 10*time.Second)
	require.True(t, res.Success, "connect failed: %v", res.Err)

	s, ok := f.manager.Session()
	require.True(t, ok)
	assert.Equal(t, os.Getpid(), s.OwnerPID)
	assert.Equal(t, res.PID, s.PID)
	assert.Equal(t, f.exe, s.ServerPath)
	assert.Equal(t, "0.5.0", s.ServerVersion)

	require.NoError(t, f.manager.StopLocalServer(t.Context()))

	_, ok = f.manager.Session()
	assert.False(t, ok)
}
