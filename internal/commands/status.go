package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/vibebrowser/vibe-core/internal/config"
	"github.com/vibebrowser/vibe-core/internal/host"
	"github.com/vibebrowser/vibe-core/internal/mcpservice"
	"github.com/vibebrowser/vibe-core/internal/worker"
)

var (
	statusJSON bool
	statusWait time.Duration
)

var StatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Start the utility process once and report its status",
	Long: `Starts the MCP utility process, waits for its first server status report,
prints the combined status and shuts it down again.`,
	RunE: runStatus,
}

func init() {
	StatusCmd.Flags().BoolVar(&statusJSON, "json", false, "Print status as JSON")
	StatusCmd.Flags().DurationVar(&statusWait, "wait", 3*time.Second, "How long to wait for the first server status report")
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}

	svc := a.mcpService()
	reported := make(chan struct{}, 1)
	svc.Subscribe(func(ev worker.Event) {
		if ev.Kind == worker.EventServerStatus {
			select {
			case reported <- struct{}{}:
			default:
			}
		}
	})

	ctx, cancel := context.WithTimeout(cmd.Context(), a.cfg.Worker.ReadyTimeout+time.Second)
	defer cancel()

	initErr := svc.Initialize(ctx)
	if initErr == nil {
		select {
		case <-reported:
		case <-time.After(statusWait):
		}
	}
	status := svc.Status()
	lastErr := svc.LastError()
	terminate(svc)

	if statusJSON {
		out, err := json.MarshalIndent(status, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return initErr
	}

	fmt.Fprintln(os.Stdout, renderStatus(a.cfg, a.cfgPath, status, lastErr))
	return nil
}

// renderStatus builds the status panel. lastErr is the service's most recent
// startup or crash error.
func renderStatus(cfg *config.Config, cfgPath string, status mcpservice.Status, lastErr error) string {
	state := string(status.Service)
	if lastErr != nil && status.Service != mcpservice.StateRunning {
		state = string(mcpservice.StateError)
	}

	lines := []string{
		titleStyle.Render("Vibe MCP Service"),
		"",
		row("Service", stateStyle(state).Render(state)),
		row("Worker", stateStyle(string(status.Worker.State)).Render(string(status.Worker.State))),
		row("Restarts", fmt.Sprintf("%d", status.Worker.RestartCount)),
		row("Executable", cfg.WorkerPath()),
		row("Config", cfgPath),
	}
	if lastErr != nil {
		lines = append(lines, row("Last error", errorStyle.Render(lastErr.Error())))
	}

	var payload host.StatusPayload
	if err := json.Unmarshal(status.Servers, &payload); err == nil && len(payload.Servers) > 0 {
		lines = append(lines, "", titleStyle.Render(fmt.Sprintf("MCP Servers (%d tools)", payload.ToolCount)))
		for _, s := range payload.Servers {
			detail := successStyle.Render(fmt.Sprintf("connected, %d tools", s.ToolCount))
			if !s.Connected {
				detail = errorStyle.Render(s.Error)
			}
			lines = append(lines, row(s.Name, detail))
		}
	} else {
		enabled := len(cfg.EnabledServers())
		lines = append(lines, "", mutedStyle.Render(fmt.Sprintf("%d servers configured (%d enabled), no status reported", len(cfg.MCPServers), enabled)))
	}

	return panelStyle.Render(strings.Join(lines, "\n"))
}
