// Package companion manages the local mnemo-mcp companion process: locating
// it, spawning it over stdio, confirming readiness and stopping it.
//
// A Manager is not reentrant. ConnectLocal and StopLocalServer must not run
// concurrently with each other; state shared with the exit watcher is guarded
// internally.
package companion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mnemo-dev/mnemo/internal/buildinfo"
	clierrors "github.com/mnemo-dev/mnemo/internal/errors"
	"github.com/mnemo-dev/mnemo/internal/observability"
	"github.com/mnemo-dev/mnemo/internal/paths"
)

// killWait bounds the wait for exit after SIGKILL.
const killWait = 5 * time.Second

// ServerStatus is the lifecycle state of a companion instance.
type ServerStatus string

// Instance states.
const (
	StatusStarting ServerStatus = "starting"
	StatusRunning  ServerStatus = "running"
	StatusStopped  ServerStatus = "stopped"
	StatusError    ServerStatus = "error"
)

// Instance describes the companion process spawned by this Manager.
type Instance struct {
	PID           int          `json:"pid" yaml:"pid"`
	Port          int          `json:"port" yaml:"port"`
	Status        ServerStatus `json:"status" yaml:"status"`
	StartedAt     time.Time    `json:"startedAt" yaml:"startedAt"`
	LogPath       string       `json:"logPath" yaml:"logPath"`
	ServerVersion string       `json:"serverVersion,omitempty" yaml:"serverVersion,omitempty"`
	ServerPath    string       `json:"serverPath" yaml:"serverPath"`
}

// Status is a snapshot of the connection.
type Status struct {
	IsConnected        bool      `json:"isConnected" yaml:"isConnected"`
	ConnectionAttempts int       `json:"connectionAttempts" yaml:"connectionAttempts"`
	Instance           *Instance `json:"instance,omitempty" yaml:"instance,omitempty"`
}

// ConnectOptions tunes a single ConnectLocal call.
type ConnectOptions struct {
	// ServerPath overrides the persisted and detected companion path.
	ServerPath string

	// Timeout overrides the configured readiness deadline.
	Timeout time.Duration
}

// ConnectResult reports the outcome of ConnectLocal. Expected failures are
// carried in Err rather than returned separately.
type ConnectResult struct {
	Success       bool   `json:"success" yaml:"success"`
	ServerPath    string `json:"serverPath,omitempty" yaml:"serverPath,omitempty"`
	PID           int    `json:"pid,omitempty" yaml:"pid,omitempty"`
	ServerVersion string `json:"serverVersion,omitempty" yaml:"serverVersion,omitempty"`
	Warning       string `json:"warning,omitempty" yaml:"warning,omitempty"`
	Err           error  `json:"-" yaml:"-"`
}

// Options configures a Manager.
type Options struct {
	// ConfigPath is the companion config document. Defaults to paths.CompanionConfigFile.
	ConfigPath string

	// LogPath receives the companion's stderr. Defaults to paths.CompanionLogFile.
	LogPath string

	// APIURL is the CLI's api.url. The companion receives it as its backend
	// while backendUrl is left at DefaultBackendURL.
	APIURL string

	Logger *slog.Logger
}

// Manager owns the companion configuration and at most one companion process.
type Manager struct {
	configPath    string
	configPathErr error
	logPath       string
	apiURL        string
	logger        *slog.Logger
	tracer        trace.Tracer

	detector detector
	alive    func(pid int) bool
	now      func() time.Time

	initOnce sync.Once
	loadErr  error

	mu            sync.Mutex
	cfg           Config
	status        Status
	proc          *process
	stopRequested bool

	watchers     atomic.Int32
	peakWatchers atomic.Int32
}

// NewManager returns a Manager. Configuration is read lazily, on Init or on
// the first operation that needs it.
func NewManager(opts Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	configPath := opts.ConfigPath

	var configPathErr error
	if configPath == "" {
		configPath, configPathErr = paths.CompanionConfigFile()
	}

	return &Manager{
		configPath:    configPath,
		configPathErr: configPathErr,
		logPath:       opts.LogPath,
		apiURL:        strings.TrimSpace(opts.APIURL),
		logger:        observability.Component(logger, "companion"),
		tracer:        observability.Tracer("mnemo.companion"),
		detector:      defaultDetector(),
		alive:         processAlive,
		now:           time.Now,
		cfg:           DefaultConfig(),
	}
}

// Init loads the persisted configuration once. Load failures leave defaults in
// place; the error is logged and returned, and later calls return it again.
func (m *Manager) Init() error {
	m.initOnce.Do(m.load)
	return m.loadErr
}

func (m *Manager) ensureLoaded() {
	_ = m.Init()
}

func (m *Manager) load() {
	path, err := m.resolveConfigPath()
	if err != nil {
		m.loadErr = clierrors.ConfigFailed("locate companion config", err)
		m.logger.Warn("Using default companion config", slog.String("error", err.Error()))

		return
	}

	cfg, fixed, err := loadConfig(path)
	if err != nil {
		m.loadErr = clierrors.ConfigFailed("load companion config", err)
		m.logger.Warn("Using default companion config",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
	}

	if len(fixed) > 0 {
		m.logger.Warn("Replaced invalid companion settings with defaults",
			slog.String("path", path),
			slog.Any("fields", fixed),
		)
	}

	m.mu.Lock()
	m.cfg = cfg
	m.mu.Unlock()
}

func (m *Manager) resolveConfigPath() (string, error) {
	if m.configPathErr != nil {
		return "", m.configPathErr
	}

	return m.configPath, nil
}

func (m *Manager) companionLogPath() string {
	if m.logPath != "" {
		return m.logPath
	}

	path, err := paths.CompanionLogFile()
	if err != nil {
		return filepath.Join(os.TempDir(), "mnemo-companion.log")
	}

	return path
}

// ConfigPath returns the companion config document location, or "" when it
// cannot be resolved.
func (m *Manager) ConfigPath() string {
	path, err := m.resolveConfigPath()
	if err != nil {
		return ""
	}

	return path
}

// Config returns a copy of the loaded configuration.
func (m *Manager) Config() Config {
	m.ensureLoaded()

	m.mu.Lock()
	defer m.mu.Unlock()

	return m.cfg
}

// DetectServerPath returns the first companion binary found on the search
// list. It never changes configuration.
func (m *Manager) DetectServerPath() (string, error) {
	path, searched := m.detector.detect()
	if path == "" {
		return "", clierrors.CompanionNotFound(searched)
	}

	return path, nil
}

// UpdateConfig applies the set fields of patch and persists the result.
// A document that exists but failed to load is never overwritten; the load
// error is returned instead.
func (m *Manager) UpdateConfig(patch ConfigPatch) error {
	if err := patch.validate(); err != nil {
		return clierrors.Wrap(clierrors.ExitUsage, "Invalid companion setting", err)
	}

	if err := m.Init(); err != nil {
		return err
	}

	path, err := m.resolveConfigPath()
	if err != nil {
		return clierrors.ConfigFailed("locate companion config", err)
	}

	m.mu.Lock()
	patch.apply(&m.cfg)
	cfg := m.cfg
	m.mu.Unlock()

	if err := saveConfig(path, cfg); err != nil {
		m.logger.Warn("Companion config not saved", slog.String("path", path), slog.String("error", err.Error()))
		return clierrors.ConfigFailed("save companion config", err)
	}

	return nil
}

// Status returns a snapshot of the connection state.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.status
	if m.status.Instance != nil {
		inst := *m.status.Instance
		snapshot.Instance = &inst
	}

	return snapshot
}

// Exited returns a channel closed when the current companion exits, or nil
// when no companion has been started.
func (m *Manager) Exited() <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.proc == nil {
		return nil
	}

	return m.proc.exited
}

// VerifyConnection reports whether serverPath exists and the companion, if one
// was started, is running with a live pid.
func (m *Manager) VerifyConnection(serverPath string) bool {
	if !isRegularFile(serverPath) {
		return false
	}

	m.mu.Lock()
	inst := m.status.Instance
	var (
		status ServerStatus
		pid    int
	)

	if inst != nil {
		status, pid = inst.Status, inst.PID
	}
	m.mu.Unlock()

	if inst == nil {
		return true
	}

	return status == StatusRunning && m.alive(pid)
}

// liveLocked reports whether the recorded instance is running and answers the
// signal-0 liveness check. Callers hold m.mu.
func (m *Manager) liveLocked() bool {
	inst := m.status.Instance
	if inst == nil || inst.Status != StatusRunning {
		return false
	}

	return m.alive(inst.PID)
}

func (m *Manager) resolveServerPath(explicit string, cfg Config) (string, error) {
	if explicit != "" {
		return explicit, nil
	}

	if cfg.LocalServerPath != "" {
		return cfg.LocalServerPath, nil
	}

	return m.DetectServerPath()
}

// spawnConfig returns cfg as handed to a new companion process.
func (m *Manager) spawnConfig(cfg Config) Config {
	if m.apiURL != "" && cfg.BackendURL == DefaultBackendURL {
		cfg.BackendURL = m.apiURL
	}

	return cfg
}

// ConnectLocal starts the companion, unless one is already running, and waits
// for it to answer the initialize handshake.
func (m *Manager) ConnectLocal(ctx context.Context, opts ConnectOptions) ConnectResult {
	m.ensureLoaded()

	ctx, span := m.tracer.Start(ctx, "companion.connect")
	defer span.End()

	m.mu.Lock()
	cfg := m.cfg

	if m.liveLocked() {
		inst := *m.status.Instance
		m.mu.Unlock()

		span.SetAttributes(attribute.Int("companion.pid", inst.PID), attribute.Bool("companion.reused", true))

		return ConnectResult{
			Success:       true,
			ServerPath:    inst.ServerPath,
			PID:           inst.PID,
			ServerVersion: inst.ServerVersion,
		}
	}

	m.status.ConnectionAttempts++
	m.mu.Unlock()

	path, err := m.resolveServerPath(opts.ServerPath, cfg)
	if err != nil {
		return m.connectFailed(span, ConnectResult{Err: err})
	}

	span.SetAttributes(attribute.String("companion.path", path))

	if !isRegularFile(path) {
		return m.connectFailed(span, ConnectResult{
			ServerPath: path,
			Err:        clierrors.CompanionSpawnFailed(path, fmt.Errorf("%s: %w", path, os.ErrNotExist)),
		})
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = cfg.ReadyTimeout()
	}

	logPath := m.companionLogPath()
	log := m.logger.With(slog.String("companion.path", path))

	p, err := startProcess(path, m.spawnConfig(cfg), logPath, log)
	if err != nil {
		m.recordSpawnFailure(path, cfg, logPath)
		log.Error("Companion spawn failed", slog.String("event.type", "companion.spawn.error"), slog.String("error", err.Error()))

		return m.connectFailed(span, ConnectResult{ServerPath: path, Err: clierrors.CompanionSpawnFailed(path, err)})
	}

	inst := &Instance{
		PID:        p.pid,
		Port:       cfg.ServerPort,
		Status:     StatusStarting,
		StartedAt:  m.now(),
		LogPath:    logPath,
		ServerPath: path,
	}

	m.mu.Lock()
	m.proc = p
	m.stopRequested = false
	m.status.Instance = inst
	m.status.IsConnected = false
	m.mu.Unlock()

	m.startWatcher(p)

	span.SetAttributes(attribute.Int("companion.pid", p.pid))
	log.Info("Companion started", slog.String("event.type", "companion.spawn"), slog.Int("pid", p.pid))

	if p.pid <= 0 {
		m.abort(p)

		return m.connectFailed(span, ConnectResult{
			ServerPath: path,
			Err:        clierrors.CompanionSpawnFailed(path, errors.New("process started without a pid")),
		})
	}

	readyCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	info, err := p.rpc.initialize(readyCtx, buildinfo.Version)
	if err != nil {
		m.abort(p)

		return m.connectFailed(span, ConnectResult{
			ServerPath: path,
			PID:        p.pid,
			Err:        m.readinessError(ctx, p, err, timeout, logPath),
		})
	}

	m.mu.Lock()
	if m.proc != p || p.hasExited() {
		waitErr := p.waitErr
		m.mu.Unlock()

		return m.connectFailed(span, ConnectResult{
			ServerPath: path,
			PID:        p.pid,
			Err:        clierrors.CompanionExited(logPath, waitErr),
		})
	}

	inst.Status = StatusRunning
	inst.ServerVersion = info.Version
	m.status.IsConnected = true
	m.mu.Unlock()

	result := ConnectResult{
		Success:       true,
		ServerPath:    path,
		PID:           p.pid,
		ServerVersion: info.Version,
		Warning:       versionWarning(info.Version),
	}

	if result.Warning != "" {
		log.Warn("Companion version below minimum", slog.String("version", info.Version), slog.String("minimum", MinServerVersion))
	}

	log.Info("Companion ready",
		slog.String("event.type", "companion.ready"),
		slog.Int("pid", p.pid),
		slog.String("version", info.Version),
	)
	span.SetStatus(codes.Ok, "")

	return result
}

func (m *Manager) connectFailed(span trace.Span, result ConnectResult) ConnectResult {
	result.Success = false

	if result.Err != nil {
		span.RecordError(result.Err)
		span.SetStatus(codes.Error, result.Err.Error())
	}

	return result
}

func (m *Manager) recordSpawnFailure(path string, cfg Config, logPath string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.proc = nil
	m.status.IsConnected = false
	m.status.Instance = &Instance{
		Port:       cfg.ServerPort,
		Status:     StatusError,
		StartedAt:  m.now(),
		LogPath:    logPath,
		ServerPath: path,
	}
}

func (m *Manager) readinessError(ctx context.Context, p *process, err error, timeout time.Duration, logPath string) error {
	switch {
	case errors.Is(err, errConnectionClosed):
		m.mu.Lock()
		waitErr := p.waitErr
		m.mu.Unlock()

		return clierrors.CompanionExited(logPath, waitErr)
	case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		return clierrors.CompanionNotReady(timeout, logPath)
	case ctx.Err() != nil:
		return fmt.Errorf("connect cancelled: %w", ctx.Err())
	default:
		return clierrors.CompanionSpawnFailed(p.cmd.Path, err)
	}
}

// abort kills a companion that never became ready and waits for the watcher.
func (m *Manager) abort(p *process) {
	kill(p)

	timer := time.NewTimer(killWait)
	defer timer.Stop()

	select {
	case <-p.exited:
	case <-timer.C:
		m.logger.Warn("Companion did not exit after SIGKILL", slog.Int("pid", p.pid))
	}
}

// startWatcher runs the single goroutine that waits for p to exit.
func (m *Manager) startWatcher(p *process) {
	n := m.watchers.Add(1)
	for {
		peak := m.peakWatchers.Load()
		if n <= peak || m.peakWatchers.CompareAndSwap(peak, n) {
			break
		}
	}

	go func() {
		err := p.wait()

		m.mu.Lock()
		defer m.mu.Unlock()

		p.waitErr = err

		if m.proc == p && m.status.Instance != nil {
			m.status.IsConnected = false

			if m.stopRequested {
				m.status.Instance.Status = StatusStopped
			} else {
				m.status.Instance.Status = StatusError
			}
		}

		attrs := []any{slog.String("event.type", "companion.exit"), slog.Int("pid", p.pid)}
		if err != nil {
			attrs = append(attrs, slog.String("error", err.Error()))
		}

		m.logger.Info("Companion exited", attrs...)

		m.watchers.Add(-1)
		close(p.exited)
	}()
}

// StopLocalServer sends SIGTERM, waits up to the configured grace period, then
// sends SIGKILL. Stopping when nothing is running returns nil.
func (m *Manager) StopLocalServer(ctx context.Context) error {
	m.ensureLoaded()

	m.mu.Lock()
	p := m.proc
	if p == nil || p.hasExited() {
		m.mu.Unlock()
		return nil
	}

	m.stopRequested = true
	grace := m.cfg.ShutdownGrace()
	m.mu.Unlock()

	ctx, span := m.tracer.Start(ctx, "companion.stop", trace.WithAttributes(attribute.Int("companion.pid", p.pid)))
	defer span.End()

	log := m.logger.With(slog.Int("pid", p.pid))
	log.Info("Stopping companion", slog.String("event.type", "companion.stop"))

	terminate(p)

	graceTimer := time.NewTimer(grace)
	defer graceTimer.Stop()

	select {
	case <-p.exited:
		span.SetStatus(codes.Ok, "")
		return nil
	case <-graceTimer.C:
		log.Warn("Companion ignored SIGTERM, sending SIGKILL", slog.Duration("grace", grace))
	case <-ctx.Done():
		log.Warn("Stop cancelled, sending SIGKILL")
	}

	kill(p)

	deadline := time.NewTimer(killWait)
	defer deadline.Stop()

	select {
	case <-p.exited:
		span.SetStatus(codes.Ok, "")
		return nil
	case <-deadline.C:
		err := clierrors.CompanionStopTimedOut(p.pid)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		return err
	}
}

// ListTools asks the running companion for its tools.
func (m *Manager) ListTools(ctx context.Context) ([]Tool, error) {
	m.mu.Lock()
	p := m.proc
	live := m.liveLocked() && p != nil && !p.hasExited()
	m.mu.Unlock()

	if !live {
		return nil, clierrors.CompanionNotRunning()
	}

	tools, err := p.rpc.listTools(ctx)
	if err != nil {
		return nil, fmt.Errorf("list companion tools: %w", err)
	}

	return tools, nil
}
