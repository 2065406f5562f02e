package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vibebrowser/vibe-core/internal/config"
)

var RemoveCmd = &cobra.Command{
	Use:   "remove [name]",
	Short: "Remove an MCP server",
	Args:  cobra.ExactArgs(1),
	RunE:  runRemove,
}

var EnableCmd = &cobra.Command{
	Use:   "enable [name]",
	Short: "Enable an MCP server",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return setEnabled(cmd, args[0], true) },
}

var DisableCmd = &cobra.Command{
	Use:   "disable [name]",
	Short: "Disable an MCP server without removing it",
	Args:  cobra.ExactArgs(1),
	RunE:  func(cmd *cobra.Command, args []string) error { return setEnabled(cmd, args[0], false) },
}

func runRemove(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}

	if err := a.cfg.RemoveServer(args[0]); err != nil {
		return fmt.Errorf("failed to remove server: %w", err)
	}
	if err := config.Save(a.cfg, a.cfgPath); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Println(successStyle.Render("Removed MCP server: " + args[0]))
	return nil
}

func setEnabled(cmd *cobra.Command, name string, enabled bool) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}

	found := false
	for i := range a.cfg.MCPServers {
		if a.cfg.MCPServers[i].Name == name {
			a.cfg.MCPServers[i].Enabled = enabled
			found = true
		}
	}
	if !found {
		return fmt.Errorf("server %s not found", name)
	}
	if err := config.Save(a.cfg, a.cfgPath); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	state := "disabled"
	if enabled {
		state = "enabled"
	}
	fmt.Printf("%s %s\n", name, stateStyle(state).Render(state))
	return nil
}
