package commands

import (
	"github.com/spf13/cobra"
)

// ServersCmd groups the MCP server management commands.
var ServersCmd = &cobra.Command{
	Use:     "servers",
	Aliases: []string{"server"},
	Short:   "Manage the MCP servers hosted by the utility process",
}

func init() {
	ServersCmd.AddCommand(AddCmd)
	ServersCmd.AddCommand(ListCmd)
	ServersCmd.AddCommand(RemoveCmd)
	ServersCmd.AddCommand(EnableCmd)
	ServersCmd.AddCommand(DisableCmd)
	ServersCmd.AddCommand(PresetsCmd)
	ServersCmd.AddCommand(CallCmd)
}
