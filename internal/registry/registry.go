package registry

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/vibebrowser/vibe-core/internal/config"
	"github.com/vibebrowser/vibe-core/internal/logging"
	"github.com/vibebrowser/vibe-core/internal/mcp"
)

// Client is a started MCP server.
type Client interface {
	ListTools(ctx context.Context) ([]mcp.Tool, error)
	CallTool(ctx context.Context, name string, arguments map[string]interface{}) (string, error)
	Done() <-chan struct{}
	Close() error
}

// LaunchFunc starts the server described by cfg.
type LaunchFunc func(ctx context.Context, cfg config.MCPServer, env []string, logger logrus.FieldLogger) (Client, error)

// ServerStatus is the per-server entry of the mcp-server-status message.
type ServerStatus struct {
	Name      string `json:"name"`
	Connected bool   `json:"connected"`
	ToolCount int    `json:"tool_count"`
	Error     string `json:"error,omitempty"`
}

// ServerInstance represents a running MCP server
type ServerInstance struct {
	Config config.MCPServer
	Client Client
	Tools  []mcp.Tool
}

// Registry manages the MCP servers hosted by the utility process.
type Registry struct {
	launch LaunchFunc
	env    []string
	log    logrus.FieldLogger

	mutex    sync.RWMutex
	servers  map[string]*ServerInstance
	failures map[string]string
}

// New creates a registry. A nil launch uses the stdio executor; env is
// passed to every server (nil inherits the process environment).
func New(launch LaunchFunc, env []string, logger logrus.FieldLogger) *Registry {
	if launch == nil {
		launch = StdioLauncher
	}
	return &Registry{
		launch:   launch,
		env:      env,
		log:      logging.WithComponent(logger, "registry"),
		servers:  make(map[string]*ServerInstance),
		failures: make(map[string]string),
	}
}

// StdioLauncher starts cfg with the JSON-RPC stdio executor.
func StdioLauncher(ctx context.Context, cfg config.MCPServer, env []string, logger logrus.FieldLogger) (Client, error) {
	command := cfg.Command
	if command == "" {
		command = cfg.Path
	}
	if command == "" {
		return nil, fmt.Errorf("server %s must have either 'path' or 'command' configured", cfg.Name)
	}
	return mcp.Start(ctx, mcp.Options{
		Name:    cfg.Name,
		Command: command,
		Args:    cfg.Args,
		Env:     env,
		Logger:  logger,
	})
}

// StartServer starts one MCP server and lists its tools.
func (r *Registry) StartServer(ctx context.Context, cfg config.MCPServer) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mutex.Lock()
	if _, exists := r.servers[cfg.Name]; exists {
		r.mutex.Unlock()
		return fmt.Errorf("server %s is already running", cfg.Name)
	}
	r.mutex.Unlock()

	err := r.start(ctx, cfg)

	r.mutex.Lock()
	if err != nil {
		r.failures[cfg.Name] = err.Error()
	} else {
		delete(r.failures, cfg.Name)
	}
	r.mutex.Unlock()
	return err
}

func (r *Registry) start(ctx context.Context, cfg config.MCPServer) error {
	if cfg.Type != "" && cfg.Type != "stdio" {
		return fmt.Errorf("only stdio servers are supported (server %s uses %s)", cfg.Name, cfg.Type)
	}

	log := r.log.WithField("server", cfg.Name)
	log.Info("Starting MCP server")

	client, err := r.launch(ctx, cfg, r.env, r.log)
	if err != nil {
		return fmt.Errorf("failed to start server %s: %w", cfg.Name, err)
	}

	tools, err := client.ListTools(ctx)
	if err != nil {
		client.Close()
		return fmt.Errorf("failed to list tools from %s: %w", cfg.Name, err)
	}

	instance := &ServerInstance{Config: cfg, Client: client, Tools: tools}

	r.mutex.Lock()
	r.servers[cfg.Name] = instance
	r.mutex.Unlock()

	go r.watch(instance)

	log.WithField("tools", len(tools)).Info("MCP server started")
	return nil
}

// watch drops a server from the running set when its process goes away.
func (r *Registry) watch(instance *ServerInstance) {
	<-instance.Client.Done()

	r.mutex.Lock()
	defer r.mutex.Unlock()
	if current, ok := r.servers[instance.Config.Name]; ok && current == instance {
		delete(r.servers, instance.Config.Name)
		r.failures[instance.Config.Name] = "server process exited"
		r.log.WithField("server", instance.Config.Name).Warn("MCP server exited")
	}
}

// StartAll starts every server, continuing past failures. It returns the
// number started.
func (r *Registry) StartAll(ctx context.Context, servers []config.MCPServer) int {
	started := 0
	for _, cfg := range servers {
		if err := r.StartServer(ctx, cfg); err != nil {
			r.log.WithError(err).WithField("server", cfg.Name).Error("Failed to start MCP server")
			continue
		}
		started++
	}
	return started
}

// Sync makes the running set match servers: servers that are gone or whose
// settings changed are stopped, missing ones are started. It returns the
// number started.
func (r *Registry) Sync(ctx context.Context, servers []config.MCPServer) int {
	wanted := make(map[string]config.MCPServer, len(servers))
	for _, cfg := range servers {
		wanted[cfg.Name] = cfg
	}

	r.mutex.Lock()
	var stale []string
	for name, instance := range r.servers {
		if cfg, ok := wanted[name]; !ok || !reflect.DeepEqual(cfg, instance.Config) {
			stale = append(stale, name)
		}
	}
	for name := range r.failures {
		if _, ok := wanted[name]; !ok {
			delete(r.failures, name)
		}
	}
	r.mutex.Unlock()

	for _, name := range stale {
		r.log.WithField("server", name).Info("Stopping MCP server removed from settings")
		if err := r.StopServer(name); err != nil {
			r.log.WithError(err).WithField("server", name).Debug("Server already gone")
		}
	}

	var missing []config.MCPServer
	r.mutex.RLock()
	for _, cfg := range servers {
		if _, running := r.servers[cfg.Name]; !running {
			missing = append(missing, cfg)
		}
	}
	r.mutex.RUnlock()
	return r.StartAll(ctx, missing)
}

// StopServer stops an MCP server
func (r *Registry) StopServer(name string) error {
	r.mutex.Lock()
	instance, exists := r.servers[name]
	delete(r.servers, name)
	r.mutex.Unlock()

	if !exists {
		return fmt.Errorf("server %s is not running", name)
	}
	if err := instance.Client.Close(); err != nil {
		r.log.WithError(err).WithField("server", name).Warn("Error closing MCP server")
	}
	return nil
}

// StopAll stops all running servers
func (r *Registry) StopAll() {
	r.mutex.Lock()
	servers := r.servers
	r.servers = make(map[string]*ServerInstance)
	r.mutex.Unlock()

	for name, instance := range servers {
		r.log.WithField("server", name).Info("Stopping MCP server")
		instance.Client.Close()
	}
}

// ExecuteTool executes a tool by finding which server provides it
func (r *Registry) ExecuteTool(ctx context.Context, toolName string, arguments map[string]interface{}) (string, error) {
	r.mutex.RLock()
	var target *ServerInstance
	for _, instance := range r.servers {
		for _, tool := range instance.Tools {
			if tool.Name == toolName {
				target = instance
			}
		}
	}
	r.mutex.RUnlock()

	if target == nil {
		return "", fmt.Errorf("tool %s not found in any running server", toolName)
	}
	r.log.WithFields(logrus.Fields{"tool": toolName, "server": target.Config.Name}).Debug("Executing tool")
	return target.Client.CallTool(ctx, toolName, arguments)
}

// ToolCount returns the total number of tools across all servers
func (r *Registry) ToolCount() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	count := 0
	for _, instance := range r.servers {
		count += len(instance.Tools)
	}
	return count
}

// Status reports every known server, running or failed, sorted by name.
func (r *Registry) Status() []ServerStatus {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	statuses := make([]ServerStatus, 0, len(r.servers)+len(r.failures))
	for name, instance := range r.servers {
		statuses = append(statuses, ServerStatus{Name: name, Connected: true, ToolCount: len(instance.Tools)})
	}
	for name, msg := range r.failures {
		if _, running := r.servers[name]; running {
			continue
		}
		statuses = append(statuses, ServerStatus{Name: name, Error: msg})
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Name < statuses[j].Name })
	return statuses
}
