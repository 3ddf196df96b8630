package companion

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// Environment passed to the companion.
const (
	envBackendURL = "MNEMO_BACKEND_URL"
	envPort       = "MNEMO_MCP_PORT"
	envLogLevel   = "MNEMO_MCP_LOG_LEVEL"
)

// entryArgs are the fixed arguments that put the companion in stdio mode.
var entryArgs = []string{"serve", "--stdio"}

// process is one spawned companion with its stdio wired to an rpcClient.
type process struct {
	cmd  *exec.Cmd
	pid  int
	pgid int

	rpc    *rpcClient
	stdin  *os.File
	stdout *os.File
	log    *os.File

	// exited is closed by the single watcher goroutine once Wait returns.
	exited  chan struct{}
	waitErr error
}

// commandFor returns the program and arguments used to run serverPath.
// Script entry points run under node.
func commandFor(serverPath string, extra []string) (string, []string) {
	args := append(append([]string(nil), entryArgs...), extra...)

	switch strings.ToLower(filepath.Ext(serverPath)) {
	case ".js", ".mjs", ".cjs":
		return "node", append([]string{serverPath}, args...)
	default:
		return serverPath, args
	}
}

func companionEnv(cfg Config) []string {
	return append(os.Environ(),
		envBackendURL+"="+cfg.BackendURL,
		envPort+"="+strconv.Itoa(cfg.ServerPort),
		envLogLevel+"="+cfg.LogLevel,
	)
}

// openCompanionLog opens the file that receives the companion's stderr.
func openCompanionLog(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create companion log directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open companion log: %w", err)
	}

	return f, nil
}

// startProcess spawns the companion. The caller owns the returned process and
// must start exactly one watcher for it.
func startProcess(serverPath string, cfg Config, logPath string, logger *slog.Logger) (*process, error) {
	name, args := commandFor(serverPath, cfg.ServerArgs)

	logFile, err := openCompanionLog(logPath)
	if err != nil {
		return nil, err
	}

	stdinR, stdinW, err := os.Pipe()
	if err != nil {
		_ = logFile.Close()
		return nil, fmt.Errorf("create stdin pipe: %w", err)
	}

	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		_ = logFile.Close()
		_ = stdinR.Close()
		_ = stdinW.Close()

		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}

	// #nosec G204 -- the companion path is resolved from user configuration or detection.
	cmd := exec.Command(name, args...)
	cmd.Stdin = stdinR
	cmd.Stdout = stdoutW
	cmd.Stderr = logFile
	cmd.Env = companionEnv(cfg)
	configureProcAttr(cmd)

	startErr := cmd.Start()

	// The child holds its own copies of these ends.
	_ = stdinR.Close()
	_ = stdoutW.Close()

	if startErr != nil {
		_ = stdinW.Close()
		_ = stdoutR.Close()
		_ = logFile.Close()

		return nil, startErr
	}

	p := &process{
		cmd:    cmd,
		stdin:  stdinW,
		stdout: stdoutR,
		log:    logFile,
		exited: make(chan struct{}),
	}

	if cmd.Process != nil {
		p.pid = cmd.Process.Pid
		p.pgid = processGroup(p.pid)
	}

	p.rpc = newRPCClient(stdinW, stdoutR, logger)

	return p, nil
}

// wait blocks until the process exits, then releases its pipes and log file.
// Only the watcher goroutine calls it.
func (p *process) wait() error {
	err := p.cmd.Wait()

	// Descendants may still hold stdout open; closing our end ends the reader.
	_ = p.stdout.Close()
	<-p.rpc.done()

	_ = p.stdin.Close()
	_ = p.log.Close()

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.Exited() && exitErr.ExitCode() == 0 {
		return nil
	}

	return err
}

// hasExited reports whether the watcher has observed the exit.
func (p *process) hasExited() bool {
	select {
	case <-p.exited:
		return true
	default:
		return false
	}
}
