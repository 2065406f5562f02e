package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vibebrowser/vibe-core/internal/config"
)

var (
	serverPath     string
	serverCommand  string
	serverArgs     []string
	serverDesc     string
	serverPreset   string
	serverDisabled bool
)

var AddCmd = &cobra.Command{
	Use:   "add [name]",
	Short: "Add an MCP server",
	Long: `Add an MCP server to the settings file. The server is enabled by default
and started by the utility process the next time it launches; a running
'vibe run' picks the change up automatically.

Examples:
  vibe servers add filesystem --preset filesystem
  vibe servers add browser --command npx --args -y,@browsermcp/mcp@latest
  vibe servers add sqlite --path ./mcp-server-sqlite`,
	Args: cobra.ExactArgs(1),
	RunE: runAdd,
}

func init() {
	AddCmd.Flags().StringVar(&serverPath, "path", "", "Path to the MCP server executable")
	AddCmd.Flags().StringVar(&serverCommand, "command", "", "Command that starts the server (e.g. npx)")
	AddCmd.Flags().StringSliceVar(&serverArgs, "args", nil, "Arguments for the command")
	AddCmd.Flags().StringVar(&serverDesc, "description", "", "Server description")
	AddCmd.Flags().StringVar(&serverPreset, "preset", "", "Use a built-in server definition (see 'vibe servers presets')")
	AddCmd.Flags().BoolVar(&serverDisabled, "disabled", false, "Add the server disabled")
}

func runAdd(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}

	server, err := buildServer(args[0])
	if err != nil {
		return err
	}

	a.cfg.AddServer(server)
	if err := config.Save(a.cfg, a.cfgPath); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Println(successStyle.Render("Added MCP server: " + server.Name))
	if server.Command != "" {
		fmt.Println(row("Command", server.Command))
	}
	if server.Path != "" {
		fmt.Println(row("Path", server.Path))
	}
	if len(server.Args) > 0 {
		fmt.Println(row("Args", fmt.Sprint(server.Args)))
	}
	if server.Description != "" {
		fmt.Println(row("Description", server.Description))
	}
	return nil
}

func buildServer(name string) (config.MCPServer, error) {
	server := config.MCPServer{
		Name:        name,
		Path:        serverPath,
		Command:     serverCommand,
		Args:        serverArgs,
		Type:        "stdio",
		Description: serverDesc,
		Enabled:     !serverDisabled,
	}

	if serverPreset != "" {
		preset := presetByName(serverPreset)
		if preset == nil {
			return config.MCPServer{}, fmt.Errorf("unknown preset %q", serverPreset)
		}
		if server.Command == "" && server.Path == "" {
			server.Command = preset.Command
			server.Args = preset.Args
		}
		if server.Description == "" {
			server.Description = preset.Description
		}
	}

	if server.Command == "" && server.Path == "" {
		return config.MCPServer{}, fmt.Errorf("server %s needs --path, --command or --preset", name)
	}
	return server, nil
}
