// Package paths resolves the per-user locations mnemo reads and writes.
//
// Each location hangs off one of three roots: config, state and data. A root
// is $XDG_*_HOME/mnemo when that variable holds an absolute path, then the
// OS default where Go knows one, then a directory under $HOME.
package paths

import (
	"errors"
	"os"
	"path/filepath"
)

const appName = "mnemo"

type root struct {
	xdgEnv    string
	osDefault func() (string, error)
	underHome string
}

var (
	configBase = root{xdgEnv: "XDG_CONFIG_HOME", osDefault: os.UserConfigDir, underHome: ".config"}
	stateBase  = root{xdgEnv: "XDG_STATE_HOME", underHome: filepath.Join(".local", "state")}
	dataBase   = root{xdgEnv: "XDG_DATA_HOME", underHome: filepath.Join(".local", "share")}
)

func (r root) dir() (string, error) {
	if xdg := os.Getenv(r.xdgEnv); filepath.IsAbs(xdg) {
		return filepath.Join(xdg, appName), nil
	}

	var osErr error

	if r.osDefault != nil {
		dir, err := r.osDefault()
		if err == nil && dir != "" {
			return filepath.Join(dir, appName), nil
		}

		osErr = err
	}

	if home, err := os.UserHomeDir(); err == nil && home != "" {
		return filepath.Join(home, r.underHome, appName), nil
	}

	if osErr != nil {
		return "", osErr
	}

	return "", errors.New("resolve user home directory")
}

func (r root) file(elem ...string) (string, error) {
	dir, err := r.dir()
	if err != nil {
		return "", err
	}

	return filepath.Join(append([]string{dir}, elem...)...), nil
}

// ConfigRoot holds config.json and mcp.json.
func ConfigRoot() (string, error) { return configBase.dir() }

// StateRoot holds logs and the companion session record.
func StateRoot() (string, error) { return stateBase.dir() }

// DataRoot holds a managed companion install under bin/.
func DataRoot() (string, error) { return dataBase.dir() }

// ConfigFile is the CLI configuration written by 'mnemo init'.
func ConfigFile() (string, error) { return configBase.file("config.json") }

// CompanionConfigFile is the companion server configuration.
func CompanionConfigFile() (string, error) { return configBase.file("mcp.json") }

// DefaultLogFile receives structured logs when no --log-file is given.
func DefaultLogFile() (string, error) { return stateBase.file("logs", "mnemo.log") }

// CompanionLogFile receives the companion's stderr.
func CompanionLogFile() (string, error) { return stateBase.file("logs", "companion.log") }

// CompanionSessionFile records the foreground companion started by
// 'mnemo server start'.
func CompanionSessionFile() (string, error) { return stateBase.file("companion.session.json") }
