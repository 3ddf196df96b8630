package companion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	clierrors "github.com/mnemo-dev/mnemo/internal/errors"
)

// ErrNoSession means no foreground companion session is recorded, or the
// process that recorded it has exited.
var ErrNoSession = errors.New("no companion session")

const sessionPollInterval = 100 * time.Millisecond

// Session records a companion held by a foreground 'mnemo server start', so
// other invocations can report on it and ask it to stop.
type Session struct {
	OwnerPID      int       `json:"ownerPid" yaml:"ownerPid"`
	PID           int       `json:"pid" yaml:"pid"`
	Port          int       `json:"port" yaml:"port"`
	ServerPath    string    `json:"serverPath" yaml:"serverPath"`
	ServerVersion string    `json:"serverVersion,omitempty" yaml:"serverVersion,omitempty"`
	LogPath       string    `json:"logPath" yaml:"logPath"`
	StartedAt     time.Time `json:"startedAt" yaml:"startedAt"`
}

// Session describes the running companion owned by this process.
// It returns false unless a companion is running.
func (m *Manager) Session() (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.liveLocked() {
		return Session{}, false
	}

	inst := m.status.Instance

	return Session{
		OwnerPID:      os.Getpid(),
		PID:           inst.PID,
		Port:          inst.Port,
		ServerPath:    inst.ServerPath,
		ServerVersion: inst.ServerVersion,
		LogPath:       inst.LogPath,
		StartedAt:     inst.StartedAt,
	}, true
}

// SaveSession writes s to path atomically.
func SaveSession(path string, s Session) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal companion session: %w", err)
	}

	return writeFileAtomic(path, append(data, '\n'))
}

// LoadSession reads the session at path. A missing file, or one whose owner
// has exited, yields ErrNoSession; stale files are removed.
func LoadSession(path string) (Session, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is resolved from the state root
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Session{}, ErrNoSession
		}

		return Session{}, fmt.Errorf("read companion session: %w", err)
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		_ = os.Remove(path)
		return Session{}, ErrNoSession
	}

	if !processAlive(s.OwnerPID) {
		_ = os.Remove(path)
		return Session{}, ErrNoSession
	}

	return s, nil
}

// RemoveSession deletes the session at path if it was recorded by ownerPID.
func RemoveSession(path string, ownerPID int) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is resolved from the state root
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}

		return fmt.Errorf("read companion session: %w", err)
	}

	var s Session
	if err := json.Unmarshal(data, &s); err == nil && s.OwnerPID != ownerPID {
		return nil
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove companion session: %w", err)
	}

	return nil
}

// StopSession asks the owner of the session at path to stop its companion
// and waits until the owner exits or ctx is done. It returns ErrNoSession
// when nothing is running.
func StopSession(ctx context.Context, path string) (Session, error) {
	s, err := LoadSession(path)
	if err != nil {
		return Session{}, err
	}

	if s.OwnerPID == os.Getpid() {
		return s, fmt.Errorf("session is owned by this process")
	}

	if err := signalOwner(s.OwnerPID); err != nil {
		return s, clierrors.Wrap(clierrors.ExitCompanion, "Failed to signal the companion session", err)
	}

	ticker := time.NewTicker(sessionPollInterval)
	defer ticker.Stop()

	for processAlive(s.OwnerPID) {
		select {
		case <-ctx.Done():
			return s, clierrors.New(clierrors.ExitTimeout,
				fmt.Sprintf("Companion session (mnemo pid %d) is still shutting down", s.OwnerPID)).
				WithHint("Check the companion log at " + s.LogPath)
		case <-ticker.C:
		}
	}

	_ = RemoveSession(path, s.OwnerPID)

	return s, nil
}
