// Package cmd wires up the tpbot-gateway CLI.
package cmd

import (
	"github.com/spf13/cobra"
)

var version = "dev"

// NewRootCmd creates the root cobra command for tpbot-gateway.
// When invoked without a subcommand, it delegates to "run".
func NewRootCmd(v string) *cobra.Command {
	version = v

	root := &cobra.Command{
		Use:   "tpbot-gateway",
		Short: "tpbot gateway: realtime robot control plane",
		Long:  "tpbot gateway mediates browser operators, the LLBE execution node, and robot identities over one persistent-connection endpoint: authentication, role-gated dispatch, and WebRTC signaling relay.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd, args)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newRunCmd())
	root.AddCommand(newInitCmd())
	root.AddCommand(newVersionCmd())

	root.PersistentFlags().StringP("config", "c", "", "path to config file")

	return root
}
