package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/vibebrowser/vibe-core/internal/commands"
)

// Version is set at build time via -ldflags "-X main.Version=X.Y.Z"
var Version = "0.0.0-dev"

var rootCmd = &cobra.Command{
	Use:   "vibe",
	Short: "Vibe browser core: MCP utility process and Chrome data import",
	Long: `Vibe runs the MCP tool servers in a supervised utility process and reads
passwords, bookmarks and history from a local Chrome installation.

Commands:
  run                         Supervise the utility process until interrupted
  status                      Start the utility process once and show its status
  servers add|list|remove     Manage the hosted MCP servers
  chrome profiles|extract     Read data from Chrome
  chrome import               Copy Chrome logins into the encrypted profile store
  passwords list              Show imported logins

Config: ~/.vibe/settings.yaml (override with --config or $VIBE_CONFIG)`,
	SilenceUsage: true,
}

func main() {
	// A missing .env is normal.
	_ = godotenv.Load()

	commands.AppVersion = Version
	rootCmd.Version = Version
	commands.RegisterFlags(rootCmd)
	commands.Register(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
