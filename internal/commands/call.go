package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/vibebrowser/vibe-core/internal/config"
	"github.com/vibebrowser/vibe-core/internal/registry"
)

var (
	callArgs    string
	callTimeout time.Duration
)

var CallCmd = &cobra.Command{
	Use:   "call <tool>",
	Short: "Call a tool on the enabled MCP servers",
	Long: `Starts the enabled MCP servers in this process, calls the named tool with
the given JSON arguments, prints its text output and stops the servers.`,
	Example: `  vibe servers call read_file --args '{"path": "/tmp/notes.txt"}'`,
	Args:    cobra.ExactArgs(1),
	RunE:    runCall,
}

func init() {
	CallCmd.Flags().StringVar(&callArgs, "args", "{}", "Tool arguments as a JSON object")
	CallCmd.Flags().DurationVar(&callTimeout, "timeout", time.Minute, "How long to wait for the servers and the tool")
}

func runCall(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}

	servers := a.cfg.EnabledServers()
	if len(servers) == 0 {
		return fmt.Errorf("no MCP servers are enabled")
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), callTimeout)
	defer cancel()

	reg := registry.New(nil, serverEnv(a.cfg), a.log)
	out, err := callTool(ctx, reg, servers, args[0], callArgs)
	if err != nil {
		return err
	}
	fmt.Println(out)
	return nil
}

// callTool starts servers on reg, runs one tool and stops them again.
func callTool(ctx context.Context, reg *registry.Registry, servers []config.MCPServer, tool, rawArgs string) (string, error) {
	var arguments map[string]interface{}
	if err := json.Unmarshal([]byte(rawArgs), &arguments); err != nil {
		return "", fmt.Errorf("invalid --args, expected a JSON object: %w", err)
	}

	defer reg.StopAll()
	if reg.StartAll(ctx, servers) == 0 {
		return "", fmt.Errorf("none of the %d enabled servers started", len(servers))
	}
	return reg.ExecuteTool(ctx, tool, arguments)
}

// serverEnv is the environment the utility process would give its servers.
func serverEnv(cfg *config.Config) []string {
	extra := cfg.WorkerEnv()
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	env := os.Environ()
	for _, k := range keys {
		env = append(env, k+"="+extra[k])
	}
	return env
}
