package app

import (
	"github.com/spf13/cobra"
	"github.com/trufnetwork/kwil-db/app"

	authorityVersion "github.com/clustermesh/authority/cmd/version"
)

// RootCmd creates a root command that reports this distribution's version
// instead of the upstream engine's.
func RootCmd() *cobra.Command {
	cmd := app.RootCmd()

	for _, subcmd := range cmd.Commands() {
		if subcmd.Name() == "version" {
			cmd.RemoveCommand(subcmd)
			break
		}
	}

	cmd.AddCommand(authorityVersion.NewVersionCmd())

	return cmd
}
