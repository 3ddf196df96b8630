package main

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mnemo-dev/mnemo/internal/config"
	clierrors "github.com/mnemo-dev/mnemo/internal/errors"
	"github.com/mnemo-dev/mnemo/internal/output"
)

// allowedValues lists the accepted values for enumerated settings.
var allowedValues = map[string][]string{
	"output.format": {"text", "json", "yaml"},
	"log.level":     {"error", "warn", "info", "debug"},
	"input.mode":    {config.DefaultInputMode},
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long: `View and modify mnemo configuration settings.

Settings live in config.json under the mnemo config directory. Every key can
also be overridden with an MNEMO_ environment variable, for example
MNEMO_API_URL for api.url. Companion settings are managed with
'mnemo server config'.

api.url is the Memory Backend handed to the companion server. A backendUrl
set with 'mnemo server config --backend-url' takes precedence over it.`,
	}

	cmd.AddCommand(newConfigListCmd(), newConfigGetCmd(), newConfigSetCmd())

	return cmd
}

func newConfigListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all configuration settings",
		Long:  `Display all configuration settings and their current values, including defaults.`,
		Example: `  mnemo config list
  mnemo config list --json`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())
			cfg := config.Load()
			settings := cfg.All()

			if out.Structured() {
				return out.PrintStructured(settings)
			}

			keys := slices.Sorted(maps.Keys(settings))
			width := 0

			for _, key := range keys {
				width = max(width, len(key))
			}

			for _, key := range keys {
				out.Print("%-*s = %v\n", width, key, settings[key])
			}

			if !cfg.Exists() {
				out.Println()
				out.Muted("No config file yet; showing defaults. Run 'mnemo init' to write one.")
			}

			return nil
		},
	}
}

func newConfigGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Get a configuration value",
		Long:  `Retrieve and display the current value of a single configuration key.`,
		Example: `  mnemo config get api.url
  mnemo config get mcp.auto_connect --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())
			key := args[0]

			if !config.IsKnown(key) {
				return clierrors.UnknownConfigKey(key, config.KnownKeys())
			}

			value := config.Load().Get(key)

			if out.Structured() {
				return out.PrintStructured(map[string]any{key: value})
			}

			out.Print("%s = %v\n", key, value)

			return nil
		},
	}
}

func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Long:  `Set a configuration key to the given value. The value is persisted to the config file.`,
		Example: `  mnemo config set api.url https://api.example.com
  mnemo config set mcp.auto_connect false`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())
			key, value := args[0], args[1]

			if err := validateConfigValue(key, value); err != nil {
				return err
			}

			cfg := config.Load()
			if err := cfg.Set(key, value); err != nil {
				return clierrors.ConfigFailed("set config", err)
			}

			out.Success("Set %s = %s", key, value)

			return nil
		},
	}
}

func validateConfigValue(key, value string) error {
	if !config.IsKnown(key) {
		return clierrors.UnknownConfigKey(key, config.KnownKeys())
	}

	if key == "api.url" {
		return validateURL(key, value)
	}

	if _, def, _ := config.Describe(key); def != nil {
		if _, isBool := def.(bool); isBool {
			if _, err := strconv.ParseBool(value); err != nil {
				return invalidValue(key, value, "Use true or false")
			}
		}
	}

	if allowed, ok := allowedValues[key]; ok && !slices.Contains(allowed, value) {
		return invalidValue(key, value, "Use one of: "+strings.Join(allowed, ", "))
	}

	return nil
}

func invalidValue(key, value, hint string) *clierrors.CLIError {
	return clierrors.New(clierrors.ExitUsage, fmt.Sprintf("Invalid value for %s: %q", key, value)).WithHint(hint)
}
