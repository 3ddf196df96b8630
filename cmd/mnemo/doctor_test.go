package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/mnemo-dev/mnemo/internal/companion"
	"github.com/mnemo-dev/mnemo/internal/doctor"
	"github.com/mnemo-dev/mnemo/internal/testutil"
)

func renderDoctorOutput(results []doctor.Result) string {
	out, buf := testWriter()
	renderDoctor(out, results)

	return buf.String()
}

func TestDoctorOutput_AllPass_Golden(t *testing.T) {
	results := []doctor.Result{
		{Name: "Companion Server", Status: doctor.StatusPass, Message: "/usr/local/bin/mnemo-mcp"},
		{Name: "Text Input", Status: doctor.StatusPass, Message: "Inline editor ready"},
		{Name: "Config Directory", Status: doctor.StatusPass, Message: "/home/dev/.config/mnemo"},
		{Name: "Terminal", Status: doctor.StatusPass, Message: "Raw mode supported (120x40)"},
		{Name: CheckCompanionConnection, Status: doctor.StatusPass, Message: "mnemo-mcp 0.5.0 answered in this session"},
	}

	testutil.AssertGolden(t, renderDoctorOutput(results), "doctor_all_pass.golden")
}

func TestDoctorOutput_Mixed_Golden(t *testing.T) {
	results := []doctor.Result{
		{Name: "Companion Server", Status: doctor.StatusFail, Message: "Not found", Detail: "Install mnemo-mcp or run 'mnemo server config --path <binary>'"},
		{Name: "Text Input", Status: doctor.StatusPass, Message: "Inline editor ready"},
		{Name: "Config Directory", Status: doctor.StatusPass, Message: "/home/dev/.config/mnemo"},
		{Name: "Terminal", Status: doctor.StatusFail, Message: "Not a terminal", Detail: "Run mnemo directly in a terminal; use --text when piping input"},
		{Name: CheckCompanionConnection, Status: doctor.StatusWarn, Message: "mnemo-mcp 0.3.1 answered in this session", Detail: "mnemo-mcp 0.3.1 is older than 0.4.0"},
	}

	testutil.AssertGolden(t, renderDoctorOutput(results), "doctor_mixed.golden")
}

func TestCompanionConnectionCheck(t *testing.T) {
	t.Run("handshake", func(t *testing.T) {
		exe := fakeCompanionPath(t)
		m := companion.NewManager(companion.Options{
			ConfigPath: filepath.Join(t.TempDir(), "mcp.json"),
			LogPath:    filepath.Join(t.TempDir(), "companion.log"),
			Logger:     quietLogger(),
		})

		path := exe
		if err := m.UpdateConfig(companion.ConfigPatch{LocalServerPath: &path}); err != nil {
			t.Fatal(err)
		}

		ctx, cancel := context.WithTimeout(t.Context(), 20*time.Second)
		defer cancel()

		got := companionConnectionCheck(m)(ctx)
		if got.Status != doctor.StatusPass {
			t.Fatalf("status = %s (%s: %s), want pass", got.Status, got.Message, got.Detail)
		}

		if m.Status().IsConnected {
			t.Error("the check must stop the companion it started")
		}
	})

	t.Run("missing binary", func(t *testing.T) {
		m := companion.NewManager(companion.Options{
			ConfigPath: filepath.Join(t.TempDir(), "mcp.json"),
			LogPath:    filepath.Join(t.TempDir(), "companion.log"),
			Logger:     quietLogger(),
		})

		missing := filepath.Join(t.TempDir(), "mnemo-mcp")
		if err := m.UpdateConfig(companion.ConfigPatch{LocalServerPath: &missing}); err != nil {
			t.Fatal(err)
		}

		got := companionConnectionCheck(m)(t.Context())
		if got.Status != doctor.StatusFail {
			t.Fatalf("status = %s, want fail", got.Status)
		}

		if got.Detail == "" {
			t.Error("a failed check needs remediation detail")
		}
	})
}
