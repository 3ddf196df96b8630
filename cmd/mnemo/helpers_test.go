package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/mnemo-dev/mnemo/internal/companion"
	"github.com/mnemo-dev/mnemo/internal/output"
	"github.com/mnemo-dev/mnemo/internal/terminal"
)

// fakeCompanionEnv makes the test binary answer as mnemo-mcp.
const fakeCompanionEnv = "MNEMO_CMD_FAKE_COMPANION"

func TestMain(m *testing.M) {
	if os.Getenv(fakeCompanionEnv) != "" {
		os.Exit(serveFakeCompanion(os.Stdin, os.Stdout))
	}

	os.Exit(m.Run())
}

// serveFakeCompanion answers initialize and tools/list until stdin closes.
func serveFakeCompanion(stdin io.Reader, stdout io.Writer) int {
	enc := json.NewEncoder(stdout)
	scanner := bufio.NewScanner(stdin)

	for scanner.Scan() {
		var req struct {
			ID     *int64 `json:"id"`
			Method string `json:"method"`
		}

		if err := json.Unmarshal(scanner.Bytes(), &req); err != nil || req.ID == nil {
			continue
		}

		resp := map[string]any{"jsonrpc": "2.0", "id": *req.ID}

		switch req.Method {
		case "initialize":
			resp["result"] = map[string]any{
				"protocolVersion": companion.ProtocolVersion,
				"serverInfo":      map[string]any{"name": companion.BinaryName, "version": "0.9.0"},
			}
		case "tools/list":
			resp["result"] = map[string]any{"tools": []map[string]any{
				{"name": "remember", "description": "Store a memory"},
			}}
		default:
			resp["error"] = map[string]any{"code": -32601, "message": "method not found"}
		}

		if err := enc.Encode(resp); err != nil {
			return 1
		}
	}

	return 0
}

func testWriter() (*output.Writer, *bytes.Buffer) {
	var buf bytes.Buffer

	term := &terminal.Info{IsTTY: false, NoColor: true}

	return output.NewWriter(&buf, &buf, term), &buf
}

// isolateHome points every mnemo location at fresh temp directories.
func isolateHome(t *testing.T) {
	t.Helper()

	root := t.TempDir()

	t.Setenv("HOME", root)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(root, "config"))
	t.Setenv("XDG_STATE_HOME", filepath.Join(root, "state"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(root, "data"))

	for _, key := range []string{"MNEMO_API_URL", "MNEMO_OUTPUT_FORMAT", "MNEMO_LOG_LEVEL", "MNEMO_MCP_PATH"} {
		t.Setenv(key, "")
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeCompanionPath returns the test binary, primed to act as mnemo-mcp.
func fakeCompanionPath(t *testing.T) string {
	t.Helper()

	exe, err := os.Executable()
	if err != nil {
		t.Fatalf("resolve test binary: %v", err)
	}

	t.Setenv(fakeCompanionEnv, "1")

	return exe
}
