package companion

import (
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	clierrors "github.com/mnemo-dev/mnemo/internal/errors"
)

func newTestManager(t *testing.T) (*Manager, string) {
	t.Helper()

	configPath := filepath.Join(t.TempDir(), "mcp.json")
	m := NewManager(Options{
		ConfigPath: configPath,
		LogPath:    filepath.Join(t.TempDir(), "companion.log"),
		Logger:     quietLogger(),
	})

	return m, configPath
}

func touch(t *testing.T, name string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"), 0o755))

	return path
}

func TestVerifyConnection_Property(t *testing.T) {
	m, _ := newTestManager(t)
	server := touch(t, BinaryName)

	livePIDs := map[int]bool{}
	m.alive = func(pid int) bool { return livePIDs[pid] }

	statuses := []ServerStatus{StatusStarting, StatusRunning, StatusStopped, StatusError}
	rng := rand.New(rand.NewPCG(7, 11))

	for i := range 500 {
		status := statuses[rng.IntN(len(statuses))]
		pid := rng.IntN(1 << 16)
		alive := rng.IntN(2) == 0
		livePIDs[pid] = alive

		m.mu.Lock()
		m.status.Instance = &Instance{PID: pid, Status: status}
		m.mu.Unlock()

		want := status == StatusRunning && alive
		assert.Equal(t, want, m.VerifyConnection(server),
			"case %d: status=%s pid=%d alive=%v", i, status, pid, alive)

		delete(livePIDs, pid)
	}
}

func TestVerifyConnection_PathAndNoInstance(t *testing.T) {
	m, _ := newTestManager(t)
	server := touch(t, BinaryName)

	assert.True(t, m.VerifyConnection(server), "no instance yet and the binary exists")
	assert.False(t, m.VerifyConnection(filepath.Join(t.TempDir(), "missing")))
	assert.False(t, m.VerifyConnection(t.TempDir()), "directories are not companions")
}

func TestVerifyConnection_StartingWithLivePID(t *testing.T) {
	m, _ := newTestManager(t)
	server := touch(t, BinaryName)

	m.status.Instance = &Instance{PID: os.Getpid(), Status: StatusStarting}

	require.True(t, processAlive(os.Getpid()))
	assert.False(t, m.VerifyConnection(server))
}

func TestStopLocalServer_NoInstance(t *testing.T) {
	m, _ := newTestManager(t)

	require.NoError(t, m.StopLocalServer(t.Context()))
	require.NoError(t, m.StopLocalServer(t.Context()))
	assert.Zero(t, m.peakWatchers.Load())
}

func TestConnectLocal_UsesPersistedPath(t *testing.T) {
	for _, explicitInit := range []bool{true, false} {
		t.Run(fmt.Sprintf("init=%v", explicitInit), func(t *testing.T) {
			m, configPath := newTestManager(t)
			sentinel := filepath.Join(t.TempDir(), "sentinel-"+BinaryName)

			doc := fmt.Sprintf(`{"localServerPath": %q, "serverPort": 9000}`, sentinel)
			require.NoError(t, os.WriteFile(configPath, []byte(doc), 0o600))

			m.detector.getenv = func(string) string {
				t.Error("detection must not run when a path is persisted")
				return ""
			}

			if explicitInit {
				require.NoError(t, m.Init())
			}

			res := m.ConnectLocal(t.Context(), ConnectOptions{Timeout: time.Second})
			assert.False(t, res.Success)
			assert.Equal(t, sentinel, res.ServerPath)
			requireCode(t, res.Err, clierrors.ExitCompanion)
			assert.Equal(t, 1, m.Status().ConnectionAttempts)
		})
	}
}

func TestConnectLocal_ExplicitPathWins(t *testing.T) {
	m, configPath := newTestManager(t)
	explicit := filepath.Join(t.TempDir(), "explicit")

	require.NoError(t, os.WriteFile(configPath, []byte(`{"localServerPath": "/persisted"}`), 0o600))

	res := m.ConnectLocal(t.Context(), ConnectOptions{ServerPath: explicit})
	assert.Equal(t, explicit, res.ServerPath)
}

func TestConnectLocal_NothingDetected(t *testing.T) {
	m, _ := newTestManager(t)
	m.detector = emptyDetector(t)

	res := m.ConnectLocal(t.Context(), ConnectOptions{})
	require.False(t, res.Success)
	assert.Empty(t, res.ServerPath)
	requireCode(t, res.Err, clierrors.ExitCompanion)
	assert.Contains(t, res.Err.Error(), "not found")
}

func TestInit_CorruptConfigFallsBackToDefaults(t *testing.T) {
	m, configPath := newTestManager(t)
	require.NoError(t, os.WriteFile(configPath, []byte("{not json"), 0o600))

	err := m.Init()
	requireCode(t, err, clierrors.ExitConfig)
	assert.Equal(t, DefaultConfig(), m.Config())

	// Init runs once.
	assert.Equal(t, err, m.Init())
}

func TestUpdateConfig_MergesAndPersists(t *testing.T) {
	m, configPath := newTestManager(t)

	doc := `{"serverPort": 9100, "logLevel": "debug", "futureFlag": {"enabled": true}}`
	require.NoError(t, os.WriteFile(configPath, []byte(doc), 0o600))

	port := 9200
	require.NoError(t, m.UpdateConfig(ConfigPatch{ServerPort: &port}))

	cfg := m.Config()
	assert.Equal(t, 9200, cfg.ServerPort)
	assert.Equal(t, "debug", cfg.LogLevel, "unset fields keep their loaded values")

	reloaded, fixed, err := loadConfig(configPath)
	require.NoError(t, err)
	assert.Empty(t, fixed)
	assert.Equal(t, 9200, reloaded.ServerPort)
	assert.Equal(t, "debug", reloaded.LogLevel)

	data, err := os.ReadFile(configPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"futureFlag"`)
}

func TestUpdateConfig_CorruptDocumentSurvives(t *testing.T) {
	m, configPath := newTestManager(t)

	doc := `{"localServerPath":"/opt/custom/mnemo-mcp","serverPort":9100,"backendUrl":"https://self.hosted",}`
	require.NoError(t, os.WriteFile(configPath, []byte(doc), 0o600))

	path := "/usr/local/bin/mnemo-mcp"
	err := m.UpdateConfig(ConfigPatch{LocalServerPath: &path})
	requireCode(t, err, clierrors.ExitConfig)

	data, err := os.ReadFile(configPath)
	require.NoError(t, err)
	assert.Equal(t, doc, string(data), "a document that failed to load must not be rewritten")
}

func TestUpdateConfig_RejectsInvalid(t *testing.T) {
	m, configPath := newTestManager(t)

	port := 70000
	err := m.UpdateConfig(ConfigPatch{ServerPort: &port})
	requireCode(t, err, clierrors.ExitUsage)

	_, statErr := os.Stat(configPath)
	assert.True(t, os.IsNotExist(statErr), "rejected patch must not write")
}

func TestDetectServerPath_DoesNotTouchConfig(t *testing.T) {
	m, configPath := newTestManager(t)
	server := touch(t, binaryFileName())

	m.detector = emptyDetector(t)
	m.detector.getenv = func(key string) string {
		if key == PathEnv {
			return server
		}

		return ""
	}

	got, err := m.DetectServerPath()
	require.NoError(t, err)
	assert.Equal(t, server, got)

	_, statErr := os.Stat(configPath)
	assert.True(t, os.IsNotExist(statErr))
	assert.Empty(t, m.Config().LocalServerPath)
}

func TestStatus_ReturnsCopy(t *testing.T) {
	m, _ := newTestManager(t)
	m.status.Instance = &Instance{PID: 42, Status: StatusRunning}

	snapshot := m.Status()
	snapshot.Instance.Status = StatusError

	assert.Equal(t, StatusRunning, m.Status().Instance.Status)
}

func TestSpawnConfig_APIURLFillsDefaultBackend(t *testing.T) {
	tests := []struct {
		name    string
		apiURL  string
		backend string
		want    string
	}{
		{name: "default backend takes api.url", apiURL: "https://self.hosted", backend: DefaultBackendURL, want: "https://self.hosted"},
		{name: "explicit backend wins", apiURL: "https://self.hosted", backend: "https://pinned.example", want: "https://pinned.example"},
		{name: "no api.url", backend: DefaultBackendURL, want: DefaultBackendURL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager(Options{ConfigPath: filepath.Join(t.TempDir(), "mcp.json"), APIURL: tt.apiURL, Logger: quietLogger()})

			cfg := DefaultConfig()
			cfg.BackendURL = tt.backend

			got := m.spawnConfig(cfg)
			assert.Equal(t, tt.want, got.BackendURL)
			assert.Contains(t, companionEnv(got), envBackendURL+"="+tt.want)
			assert.Equal(t, tt.backend, cfg.BackendURL, "stored config is untouched")
		})
	}
}
