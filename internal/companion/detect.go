package companion

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/mnemo-dev/mnemo/internal/paths"
)

// BinaryName is the companion executable name, without extension.
const BinaryName = "mnemo-mcp"

// PathEnv overrides companion detection.
const PathEnv = "MNEMO_MCP_PATH"

var systemBinDirs = []string{"/usr/local/bin", "/opt/homebrew/bin"}

// detector locates the companion binary. Its fields are seams for tests.
type detector struct {
	getenv     func(string) string
	dataRoot   func() (string, error)
	homeDir    func() (string, error)
	lookPath   func(string) (string, error)
	executable func() (string, error)
	systemDirs []string
}

func defaultDetector() detector {
	return detector{
		getenv:     os.Getenv,
		dataRoot:   paths.DataRoot,
		homeDir:    os.UserHomeDir,
		lookPath:   exec.LookPath,
		executable: os.Executable,
		systemDirs: systemBinDirs,
	}
}

func binaryFileName() string {
	if runtime.GOOS == "windows" {
		return BinaryName + ".exe"
	}

	return BinaryName
}

type candidate struct {
	label string
	path  func() (string, bool)
}

// candidates lists detection sources in priority order.
func (d detector) candidates() []candidate {
	name := binaryFileName()

	fromRoot := func(root func() (string, error), elem ...string) func() (string, bool) {
		return func() (string, bool) {
			dir, err := root()
			if err != nil || dir == "" {
				return "", false
			}

			return filepath.Join(append([]string{dir}, elem...)...), true
		}
	}

	list := []candidate{
		{label: "$" + PathEnv, path: func() (string, bool) {
			v := d.getenv(PathEnv)
			return v, v != ""
		}},
		{label: "<data dir>/bin/" + name, path: fromRoot(d.dataRoot, "bin", name)},
		{label: "~/.mnemo/bin/" + name, path: fromRoot(d.homeDir, ".mnemo", "bin", name)},
	}

	for _, dir := range d.systemDirs {
		list = append(list, candidate{label: filepath.Join(dir, name), path: func() (string, bool) {
			return filepath.Join(dir, name), true
		}})
	}

	list = append(list,
		candidate{label: "$PATH", path: func() (string, bool) {
			p, err := d.lookPath(name)
			return p, err == nil && p != ""
		}},
		candidate{label: "next to mnemo", path: func() (string, bool) {
			exe, err := d.executable()
			if err != nil || exe == "" {
				return "", false
			}

			if resolved, evalErr := filepath.EvalSymlinks(exe); evalErr == nil {
				exe = resolved
			}

			return filepath.Join(filepath.Dir(exe), name), true
		}},
	)

	return list
}

// detect returns the first existing, non-directory candidate and the labels
// of every location it searched.
func (d detector) detect() (string, []string) {
	var searched []string

	for _, c := range d.candidates() {
		searched = append(searched, c.label)

		p, ok := c.path()
		if !ok {
			continue
		}

		if isRegularFile(p) {
			return p, searched
		}
	}

	return "", searched
}

func isRegularFile(path string) bool {
	if path == "" {
		return false
	}

	info, err := os.Stat(path)

	return err == nil && !info.IsDir()
}
