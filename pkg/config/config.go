// Package config loads and defaults the mcp-telnet server
// configuration.
package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the complete server configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Telnet  TelnetConfig  `yaml:"telnet"`
	Session SessionConfig `yaml:"session"`
	Auth    AuthConfig    `yaml:"auth"`
}

// ServerConfig configures the MCP server and its transport.
type ServerConfig struct {
	Name      string    `yaml:"name"`
	Version   string    `yaml:"version"`
	Transport string    `yaml:"transport"` // "stdio", "http"
	Address   string    `yaml:"address"`
	TLS       TLSConfig `yaml:"tls"`
}

// TLSConfig configures TLS for the HTTP transport.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// TelnetConfig holds default timing and framing for command cycles.
// Tool arguments override these per invocation.
type TelnetConfig struct {
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	CommandDelay   time.Duration `yaml:"command_delay"`
	ResponseWait   time.Duration `yaml:"response_wait"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	PromptPattern  string        `yaml:"prompt_pattern"`
	MaxCommands    int           `yaml:"max_commands"`
}

// SessionConfig governs idle eviction. A zero TTL disables eviction.
type SessionConfig struct {
	TTL             time.Duration `yaml:"ttl"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// AuthConfig configures authentication for the HTTP transport. The
// stdio transport never authenticates.
type AuthConfig struct {
	Required bool        `yaml:"required"`
	APIKeys  []APIKeyDef `yaml:"api_keys"`

	// BearerSecret enables HS256 bearer token validation when set.
	BearerSecret string `yaml:"bearer_secret"`
}

// APIKeyDef defines an API key, either in the clear or as a bcrypt
// hash.
type APIKeyDef struct {
	Key     string `yaml:"key"`
	KeyHash string `yaml:"key_hash"`
	Name    string `yaml:"name"`
}

// Default returns the configuration used when no file is supplied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load reads configuration from a file.
// The path comes from command line arguments, controlled by the operator.
func Load(path string) (*Config, error) {
	// #nosec G304 -- path is from CLI args, controlled by operator
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	data = []byte(expandEnvVars(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// expandEnvVars expands ${VAR} patterns in the string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	return re.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(match[2 : len(match)-1])
	})
}

// applyDefaults fills zero values with working defaults.
func applyDefaults(cfg *Config) {
	if cfg.Server.Name == "" {
		cfg.Server.Name = "mcp-telnet"
	}
	if cfg.Server.Version == "" {
		cfg.Server.Version = "1.0.0"
	}
	if cfg.Server.Transport == "" {
		cfg.Server.Transport = "stdio"
	}
	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8080"
	}
	if cfg.Telnet.ConnectTimeout == 0 {
		cfg.Telnet.ConnectTimeout = 30 * time.Second
	}
	if cfg.Telnet.CommandDelay == 0 {
		cfg.Telnet.CommandDelay = 1 * time.Second
	}
	if cfg.Telnet.ResponseWait == 0 {
		cfg.Telnet.ResponseWait = 2 * time.Second
	}
	if cfg.Telnet.ReadTimeout == 0 {
		cfg.Telnet.ReadTimeout = 10 * time.Second
	}
	if cfg.Telnet.MaxCommands == 0 {
		cfg.Telnet.MaxCommands = 100
	}
	if cfg.Session.CleanupInterval == 0 && cfg.Session.TTL > 0 {
		cfg.Session.CleanupInterval = cfg.Session.TTL / 2
	}
}
