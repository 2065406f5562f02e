package config

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"reflect"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// WorkerBinaryName is the utility-process executable looked up next to the
// running binary when worker.path is not set.
const WorkerBinaryName = "vibe-mcp-worker"

// Config represents the Vibe settings file.
type Config struct {
	Worker     WorkerConfig      `yaml:"worker" mapstructure:"worker"`
	APIKeys    map[string]string `yaml:"api_keys,omitempty" mapstructure:"api_keys"`
	MCPServers []MCPServer       `yaml:"mcp_servers" mapstructure:"mcp_servers"`
	Chrome     ChromeConfig      `yaml:"chrome" mapstructure:"chrome"`
	Profile    ProfileConfig     `yaml:"profile" mapstructure:"profile"`
	Metrics    MetricsConfig     `yaml:"metrics" mapstructure:"metrics"`
	Log        LogConfig         `yaml:"log" mapstructure:"log"`
}

// WorkerConfig controls the MCP utility process.
type WorkerConfig struct {
	Path           string            `yaml:"path,omitempty" mapstructure:"path"`
	Args           []string          `yaml:"args,omitempty" mapstructure:"args"`
	ReadyTimeout   time.Duration     `yaml:"ready_timeout" mapstructure:"ready_timeout"`
	RestartDelay   time.Duration     `yaml:"restart_delay" mapstructure:"restart_delay"`
	RetryDelay     time.Duration     `yaml:"retry_delay" mapstructure:"retry_delay"`
	MaxRestarts    int               `yaml:"max_restarts" mapstructure:"max_restarts"`
	StatusInterval time.Duration     `yaml:"status_interval" mapstructure:"status_interval"`
	Env            map[string]string `yaml:"env,omitempty" mapstructure:"env"`
}

// MCPServer represents a configured MCP tool server hosted by the utility process
type MCPServer struct {
	Name        string   `yaml:"name" mapstructure:"name"`
	Path        string   `yaml:"path,omitempty" mapstructure:"path"`       // For executable path
	Command     string   `yaml:"command,omitempty" mapstructure:"command"` // For command-based (e.g., "npx")
	Args        []string `yaml:"args,omitempty" mapstructure:"args"`
	Type        string   `yaml:"type" mapstructure:"type"` // only "stdio" is supported
	Enabled     bool     `yaml:"enabled" mapstructure:"enabled"`
	Description string   `yaml:"description,omitempty" mapstructure:"description"`
}

// ChromeConfig holds Chrome data extraction settings.
type ChromeConfig struct {
	UserDataDir   string        `yaml:"user_data_dir,omitempty" mapstructure:"user_data_dir"`
	KeyCacheTTL   time.Duration `yaml:"key_cache_ttl" mapstructure:"key_cache_ttl"`
	SweepInterval time.Duration `yaml:"sweep_interval" mapstructure:"sweep_interval"`
	// SweepSchedule is a five-field cron expression. When set it replaces
	// SweepInterval.
	SweepSchedule string `yaml:"sweep_schedule,omitempty" mapstructure:"sweep_schedule"`
}

// ProfileConfig locates the local profile store.
type ProfileConfig struct {
	DBPath    string `yaml:"db_path" mapstructure:"db_path"`
	MasterKey string `yaml:"master_key,omitempty" mapstructure:"master_key"`
}

// MetricsConfig holds the Prometheus listener address. Empty disables it.
type MetricsConfig struct {
	Addr string `yaml:"addr" mapstructure:"addr"`
}

// LogConfig selects log level and format.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

var configDir string

func init() {
	// When running under sudo, os.UserHomeDir() returns /root.
	// Check SUDO_USER to resolve the real user's home directory.
	var home string
	if sudoUser := os.Getenv("SUDO_USER"); sudoUser != "" {
		if u, err := user.Lookup(sudoUser); err == nil {
			home = u.HomeDir
		}
	}
	if home == "" {
		var err error
		home, err = os.UserHomeDir()
		if err != nil {
			home = os.TempDir()
		}
	}

	configDir = filepath.Join(home, ".vibe")
}

// DefaultPath returns the settings file path. VIBE_CONFIG overrides it.
func DefaultPath() string {
	if p := os.Getenv("VIBE_CONFIG"); p != "" {
		return p
	}
	return filepath.Join(configDir, "settings.yaml")
}

// Default returns the settings used when no file exists yet.
func Default() *Config {
	return &Config{
		Worker: WorkerConfig{
			ReadyTimeout:   10 * time.Second,
			RestartDelay:   1 * time.Second,
			RetryDelay:     2 * time.Second,
			MaxRestarts:    3,
			StatusInterval: 5 * time.Second,
		},
		MCPServers: []MCPServer{},
		Chrome: ChromeConfig{
			KeyCacheTTL:   10 * time.Minute,
			SweepInterval: 15 * time.Minute,
		},
		Profile: ProfileConfig{
			DBPath: filepath.Join(configDir, "profile.db"),
		},
		Metrics: MetricsConfig{Addr: "127.0.0.1:9464"},
		Log:     LogConfig{Level: "info", Format: "text"},
	}
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("worker.ready_timeout", d.Worker.ReadyTimeout)
	v.SetDefault("worker.restart_delay", d.Worker.RestartDelay)
	v.SetDefault("worker.retry_delay", d.Worker.RetryDelay)
	v.SetDefault("worker.max_restarts", d.Worker.MaxRestarts)
	v.SetDefault("worker.status_interval", d.Worker.StatusInterval)
	v.SetDefault("chrome.key_cache_ttl", d.Chrome.KeyCacheTTL)
	v.SetDefault("chrome.sweep_interval", d.Chrome.SweepInterval)
	v.SetDefault("profile.db_path", d.Profile.DBPath)
	v.SetDefault("metrics.addr", d.Metrics.Addr)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

// Load loads the settings from path, creating a default file if it is missing.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := Default()
		if err := Save(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		applyEnv(cfg)
		return cfg, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	setDefaults(v)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyEnv(&cfg)
	return &cfg, nil
}

// applyEnv lets the environment override secrets that should not live in the
// settings file.
func applyEnv(cfg *Config) {
	if key := os.Getenv("VIBE_MASTER_KEY"); key != "" {
		cfg.Profile.MasterKey = key
	}
}

// Save saves the settings to path with owner-only permissions.
func Save(cfg *Config, path string) error {
	if path == "" {
		path = DefaultPath()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	out := *cfg
	if key := os.Getenv("VIBE_MASTER_KEY"); key != "" && out.Profile.MasterKey == key {
		out.Profile.MasterKey = ""
	}

	data, err := yaml.Marshal(&out)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// AddServer adds a new MCP server, replacing one with the same name.
func (c *Config) AddServer(server MCPServer) {
	if server.Type == "" {
		server.Type = "stdio"
	}
	for i, s := range c.MCPServers {
		if s.Name == server.Name {
			c.MCPServers[i] = server
			return
		}
	}
	c.MCPServers = append(c.MCPServers, server)
}

// RemoveServer removes an MCP server by name
func (c *Config) RemoveServer(name string) error {
	for i, s := range c.MCPServers {
		if s.Name == name {
			c.MCPServers = append(c.MCPServers[:i], c.MCPServers[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("server %s not found", name)
}

// EnabledServers returns only enabled servers
func (c *Config) EnabledServers() []MCPServer {
	var enabled []MCPServer
	for _, s := range c.MCPServers {
		if s.Enabled {
			enabled = append(enabled, s)
		}
	}
	return enabled
}

// WorkerChanged reports whether moving from c to next needs a new utility
// process. Server list edits do not; the process syncs those itself.
func (c *Config) WorkerChanged(next *Config) bool {
	return !reflect.DeepEqual(c.Worker, next.Worker) ||
		!reflect.DeepEqual(c.WorkerEnv(), next.WorkerEnv()) ||
		c.Log != next.Log
}

// WorkerEnv merges worker.env and api_keys into the environment passed to the
// utility process. Entries with empty values are dropped. Names are upper-cased
// since viper folds map keys to lower case.
func (c *Config) WorkerEnv() map[string]string {
	env := make(map[string]string)
	for k, v := range c.Worker.Env {
		if v == "" {
			continue
		}
		env[strings.ToUpper(k)] = v
	}
	for k, v := range c.APIKeys {
		if v == "" {
			continue
		}
		env[strings.ToUpper(k)] = v
	}
	return env
}

// WorkerPath returns worker.path or the default utility-process binary located
// next to the running executable.
func (c *Config) WorkerPath() string {
	if c.Worker.Path != "" {
		return c.Worker.Path
	}
	name := WorkerBinaryName
	if runtime.GOOS == "windows" {
		name += ".exe"
	}
	exe, err := os.Executable()
	if err != nil {
		return name
	}
	return filepath.Join(filepath.Dir(exe), name)
}
