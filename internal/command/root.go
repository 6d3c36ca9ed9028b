// Package command defines the imok CLI.
package command

import (
	"github.com/spf13/cobra"
)

func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "imok",
		Short:         "Dead-man's-switch device monitor",
		Long:          "imok tracks devices that check in over HTTP and emails their owners when one goes silent.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(newServeCommand())
	cmd.AddCommand(newSweepCommand())
	cmd.AddCommand(newTopCommand())
	return cmd
}
