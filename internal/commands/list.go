package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var ListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured MCP servers",
	RunE:  runList,
}

func runList(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}

	if len(a.cfg.MCPServers) == 0 {
		fmt.Println(mutedStyle.Render("No MCP servers configured"))
		fmt.Println("Add one with: vibe servers add <name> --preset <preset>")
		return nil
	}

	fmt.Println(titleStyle.Render("Configured MCP Servers"))
	fmt.Println()
	for _, server := range a.cfg.MCPServers {
		state := "enabled"
		if !server.Enabled {
			state = "disabled"
		}
		fmt.Printf("%s %s\n", server.Name, stateStyle(state).Render(state))

		launch := server.Command
		if launch == "" {
			launch = server.Path
		}
		if len(server.Args) > 0 {
			launch += " " + strings.Join(server.Args, " ")
		}
		fmt.Println("  " + row("Launch", launch))
		if server.Description != "" {
			fmt.Println("  " + row("Description", server.Description))
		}
	}

	enabled := len(a.cfg.EnabledServers())
	fmt.Println()
	fmt.Printf("Total: %d servers (%d enabled, %d disabled)\n", len(a.cfg.MCPServers), enabled, len(a.cfg.MCPServers)-enabled)
	return nil
}
