package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mnemo-dev/mnemo/internal/config"
	"github.com/mnemo-dev/mnemo/internal/output"
	"github.com/mnemo-dev/mnemo/internal/paths"
)

// PathsInfo holds all resolved paths for structured output.
type PathsInfo struct {
	ConfigRoot       string `json:"config_root" yaml:"config_root"`
	StateRoot        string `json:"state_root" yaml:"state_root"`
	DataRoot         string `json:"data_root" yaml:"data_root"`
	ConfigFile       string `json:"config_file" yaml:"config_file"`
	CompanionConfig  string `json:"companion_config" yaml:"companion_config"`
	LogFile          string `json:"log_file" yaml:"log_file"`
	CompanionLog     string `json:"companion_log" yaml:"companion_log"`
	CompanionSession string `json:"companion_session" yaml:"companion_session"`
	APIURL           string `json:"api_url" yaml:"api_url"`
}

func newPathsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "paths",
		Short: "Show where mnemo stores files",
		Long: `Display all file and directory paths used by mnemo.

Useful for debugging, scripting, and understanding where configuration,
logs, and companion state are stored on this system. XDG_CONFIG_HOME,
XDG_STATE_HOME and XDG_DATA_HOME are honoured.`,
		Example: `  mnemo paths
  mnemo paths --json`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())

			info := resolvePathsInfo()

			if out.Structured() {
				return out.PrintStructured(info)
			}

			out.Print("Config root:        %s\n", info.ConfigRoot)
			out.Print("State root:         %s\n", info.StateRoot)
			out.Print("Data root:          %s\n", info.DataRoot)
			out.Print("\n")
			out.Print("Config file:        %s\n", info.ConfigFile)
			out.Print("Companion config:   %s\n", info.CompanionConfig)
			out.Print("Log file:           %s\n", info.LogFile)
			out.Print("Companion log:      %s\n", info.CompanionLog)
			out.Print("Companion session:  %s\n", info.CompanionSession)
			out.Print("\n")
			out.Print("API URL:            %s\n", info.APIURL)

			return nil
		},
	}
}

func resolvePathsInfo() PathsInfo {
	return PathsInfo{
		ConfigRoot:       resolveOrError(paths.ConfigRoot),
		StateRoot:        resolveOrError(paths.StateRoot),
		DataRoot:         resolveOrError(paths.DataRoot),
		ConfigFile:       resolveOrError(paths.ConfigFile),
		CompanionConfig:  resolveOrError(paths.CompanionConfigFile),
		LogFile:          resolveOrError(paths.DefaultLogFile),
		CompanionLog:     resolveOrError(paths.CompanionLogFile),
		CompanionSession: resolveOrError(paths.CompanionSessionFile),
		APIURL:           config.Load().APIURL(),
	}
}

func resolveOrError(fn func() (string, error)) string {
	val, err := fn()
	if err != nil {
		return fmt.Sprintf("<error: %v>", err)
	}

	return val
}
