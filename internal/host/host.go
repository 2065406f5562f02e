// Package host is the utility-process side of the worker channel. It starts
// the configured MCP servers, announces readiness and publishes their status
// until the parent closes stdin or the context ends.
package host

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vibebrowser/vibe-core/internal/config"
	"github.com/vibebrowser/vibe-core/internal/logging"
	"github.com/vibebrowser/vibe-core/internal/registry"
	"github.com/vibebrowser/vibe-core/internal/worker"
)

// DefaultStatusInterval is used when Options.StatusInterval is zero.
const DefaultStatusInterval = 5 * time.Second

// StatusPayload is the data of every mcp-server-status message.
type StatusPayload struct {
	Servers   []registry.ServerStatus `json:"servers"`
	ToolCount int                     `json:"tool_count"`
}

// Options configures Run.
type Options struct {
	Servers        []config.MCPServer
	StatusInterval time.Duration
	// Updates delivers new server lists; the running set is synced to each.
	Updates <-chan []config.MCPServer
	// Registry hosts the servers. Nil creates a stdio registry.
	Registry *registry.Registry
	Stdin    io.Reader
	Stdout   io.Writer
	Logger   logrus.FieldLogger
}

// Run hosts the servers until ctx is cancelled or stdin reaches EOF. The
// parent closing our stdin is the normal shutdown signal.
func Run(ctx context.Context, opts Options) error {
	if opts.Stdout == nil {
		return fmt.Errorf("host requires a stdout writer")
	}
	if opts.StatusInterval <= 0 {
		opts.StatusInterval = DefaultStatusInterval
	}
	log := logging.WithComponent(opts.Logger, "host")

	reg := opts.Registry
	if reg == nil {
		reg = registry.New(nil, nil, opts.Logger)
	}
	defer reg.StopAll()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if opts.Stdin != nil {
		go func() {
			watchStdin(opts.Stdin)
			log.Debug("Parent closed stdin")
			cancel()
		}()
	}

	started := reg.StartAll(ctx, opts.Servers)
	log.WithFields(logrus.Fields{
		"configured": len(opts.Servers),
		"started":    started,
		"tools":      reg.ToolCount(),
	}).Info("MCP servers started")

	reporter := worker.NewReporter(opts.Stdout)
	if err := reporter.Ready(); err != nil {
		return fmt.Errorf("failed to announce readiness: %w", err)
	}

	report := func() error {
		return reporter.ServerStatus(StatusPayload{Servers: reg.Status(), ToolCount: reg.ToolCount()})
	}
	if err := report(); err != nil {
		return fmt.Errorf("failed to report server status: %w", err)
	}

	ticker := time.NewTicker(opts.StatusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("Shutting down MCP servers")
			return nil
		case servers := <-opts.Updates:
			started := reg.Sync(ctx, servers)
			log.WithFields(logrus.Fields{"configured": len(servers), "started": started}).Info("MCP servers synced with settings")
			if err := report(); err != nil {
				log.WithError(err).Warn("Failed to report server status")
				return nil
			}
		case <-ticker.C:
			if err := report(); err != nil {
				// The parent is gone once stdout breaks.
				log.WithError(err).Warn("Failed to report server status")
				return nil
			}
		}
	}
}

// watchStdin returns once r is closed. Input is discarded.
func watchStdin(r io.Reader) {
	_, _ = io.Copy(io.Discard, r)
}
