package main

import (
	"github.com/spf13/cobra"

	"github.com/mnemo-dev/mnemo/internal/output"
)

type versionReport struct {
	Version string `json:"version" yaml:"version"`
	Commit  string `json:"commit" yaml:"commit"`
	Date    string `json:"date" yaml:"date"`
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  `Print the mnemo version, the commit it was built from and the build date.`,
		Example: `  mnemo version
  mnemo version --yaml`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := output.FromContext(cmd.Context())
			report := versionReport{Version: version, Commit: commit, Date: date}

			if out.Structured() {
				return out.PrintStructured(report)
			}

			out.Print("mnemo %s\n  commit: %s\n  built:  %s\n", report.Version, report.Commit, report.Date)

			return nil
		},
	}
}
