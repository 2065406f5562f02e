// Command vibe-mcp-worker is the MCP utility process. It is launched and
// supervised by vibe; stdout carries the NDJSON message channel, so all
// logging goes to stderr.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vibebrowser/vibe-core/internal/config"
	"github.com/vibebrowser/vibe-core/internal/host"
	"github.com/vibebrowser/vibe-core/internal/logging"
	"github.com/vibebrowser/vibe-core/internal/registry"
)

var Version = "0.0.0-dev"

var configPath string

var rootCmd = &cobra.Command{
	Use:          config.WorkerBinaryName,
	Short:        "Vibe MCP utility process",
	Hidden:       true,
	SilenceUsage: true,
	Args:         cobra.NoArgs,
	RunE:         run,
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "", "Settings file")
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := logging.New(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: os.Stderr})
	log.WithField("pid", os.Getpid()).Info("Utility process starting")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Server edits are applied in place; the parent restarts us only when
	// the worker settings themselves change.
	updates := make(chan []config.MCPServer, 1)
	if configPath != "" {
		err := config.Watch(ctx, configPath, config.DefaultDebounce, log, func(cfg *config.Config) {
			select {
			case <-updates:
			default:
			}
			updates <- cfg.EnabledServers()
		})
		if err != nil {
			log.WithError(err).Warn("Server changes will need a restart")
		}
	}

	// Servers inherit our environment, which already carries worker.env and
	// api_keys from the parent.
	return host.Run(ctx, host.Options{
		Servers:        cfg.EnabledServers(),
		StatusInterval: cfg.Worker.StatusInterval,
		Updates:        updates,
		Registry:       registry.New(nil, nil, log),
		Stdin:          os.Stdin,
		Stdout:         os.Stdout,
		Logger:         log,
	})
}

func main() {
	rootCmd.Version = Version
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
