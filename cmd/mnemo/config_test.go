package main

import (
	"io"
	"os"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	clierrors "github.com/mnemo-dev/mnemo/internal/errors"
	"github.com/mnemo-dev/mnemo/internal/output"
	"github.com/mnemo-dev/mnemo/internal/paths"
	"github.com/mnemo-dev/mnemo/internal/testutil"
)

func runSubcommand(t *testing.T, cmd *cobra.Command, out *output.Writer, args ...string) error {
	t.Helper()

	cmd.SetArgs(args)
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetContext(out.WithContext(t.Context()))

	return cmd.Execute()
}

func TestConfigList_Defaults_Golden(t *testing.T) {
	isolateHome(t)

	out, buf := testWriter()
	if err := runSubcommand(t, newConfigListCmd(), out); err != nil {
		t.Fatalf("config list should succeed: %v", err)
	}

	testutil.AssertGolden(t, buf.String(), "config_list_defaults.golden")
}

func TestConfigGet_EnvOverride_Golden(t *testing.T) {
	isolateHome(t)
	t.Setenv("MNEMO_API_URL", "https://custom.api.dev")

	out, buf := testWriter()
	if err := runSubcommand(t, newConfigGetCmd(), out, "api.url"); err != nil {
		t.Fatalf("config get should succeed: %v", err)
	}

	testutil.AssertGolden(t, buf.String(), "config_get_env.golden")
}

func TestConfigGet_UnknownKey(t *testing.T) {
	isolateHome(t)

	out, _ := testWriter()
	err := runSubcommand(t, newConfigGetCmd(), out, "custom.key")

	var cliErr *clierrors.CLIError
	if !clierrors.As(err, &cliErr) || cliErr.Code != clierrors.ExitUsage {
		t.Fatalf("expected usage error, got %v", err)
	}

	if !strings.Contains(cliErr.Hint, "api.url") {
		t.Errorf("hint %q should list known keys", cliErr.Hint)
	}
}

func TestConfigSet_Persists(t *testing.T) {
	isolateHome(t)

	out, buf := testWriter()
	if err := runSubcommand(t, newConfigSetCmd(), out, "output.format", "json"); err != nil {
		t.Fatalf("config set should succeed: %v", err)
	}

	if !strings.Contains(buf.String(), "Set output.format = json") {
		t.Errorf("unexpected output %q", buf.String())
	}

	path, err := paths.ConfigFile()
	if err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("config file not written: %v", err)
	}

	if !strings.Contains(string(data), `"json"`) {
		t.Errorf("config file %s does not hold the new value:\n%s", path, data)
	}
}

func TestConfigSet_RejectsInvalidValues(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{key: "output.format", value: "xml"},
		{key: "log.level", value: "loud"},
		{key: "mcp.auto_connect", value: "sometimes"},
		{key: "api.url", value: "not a url"},
		{key: "api.url", value: "ftp://api.mnemo.dev"},
		{key: "no.such.key", value: "x"},
	}

	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			isolateHome(t)

			out, _ := testWriter()
			err := runSubcommand(t, newConfigSetCmd(), out, tt.key, tt.value)

			var cliErr *clierrors.CLIError
			if !clierrors.As(err, &cliErr) || cliErr.Code != clierrors.ExitUsage {
				t.Fatalf("expected usage error, got %v", err)
			}

			path, _ := paths.ConfigFile()
			if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
				t.Errorf("rejected value must not create %s", path)
			}
		})
	}
}
