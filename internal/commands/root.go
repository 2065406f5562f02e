package commands

import (
	"github.com/spf13/cobra"
)

// AppVersion is set by main from the build-time version.
var AppVersion = "dev"

// RegisterFlags installs the flags every command understands.
func RegisterFlags(root *cobra.Command) {
	root.PersistentFlags().StringP("config", "c", "", "Settings file (default ~/.vibe/settings.yaml, or $VIBE_CONFIG)")
	root.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")
}

// Register adds all subcommands to root.
func Register(root *cobra.Command) {
	root.AddCommand(RunCmd)
	root.AddCommand(StatusCmd)
	root.AddCommand(ServersCmd)
	root.AddCommand(ChromeCmd)
	root.AddCommand(PasswordsCmd)
}
