// ABOUTME: Configuration loading and parsing for fold-host.
// ABOUTME: Supports YAML and TOML files with env var expansion and validation.

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Transport kinds a connection may declare.
const (
	TransportStdio  = "stdio"
	TransportHTTP   = "http_stream"
	TransportSocket = "persistent"
)

// Capability classes a connection may expose.
const (
	ClassTools     = "tools"
	ClassPrompts   = "prompts"
	ClassResources = "resources"
)

// DefaultTimeout applies when a connection declares no timeout of its own.
const DefaultTimeout = 30 * time.Second

// Config represents the complete fold-host configuration.
type Config struct {
	Logging     LoggingConfig     `yaml:"logging" toml:"logging"`
	Credentials CredentialsConfig `yaml:"credentials" toml:"credentials"`
	Filter      FilterConfig      `yaml:"filter" toml:"filter"`
	Connections []Connection      `yaml:"connections" toml:"connections"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// CredentialsConfig holds credential store configuration.
type CredentialsConfig struct {
	// Key is the hex-encoded 32-byte encryption key. When empty a key is
	// generated per process and stored secrets do not survive a restart.
	Key string `yaml:"key" toml:"key"`
	// Path enables the SQLite-backed store when set; empty means in-memory.
	Path string `yaml:"path" toml:"path"`
	// TokenTTL is the raw duration string for access token lifetime.
	TokenTTLRaw string        `yaml:"token_ttl" toml:"token_ttl"`
	TokenTTL    time.Duration `yaml:"-" toml:"-"`
}

// FilterConfig holds dynamic component-filter configuration.
type FilterConfig struct {
	// Threshold is the minimum relevance score for a capability from a
	// weighted connection to be exposed. Zero uses the filter default.
	Threshold float64 `yaml:"threshold" toml:"threshold"`
}

// Connection describes one external server the host connects to.
type Connection struct {
	Name      string `yaml:"name" toml:"name"`
	Transport string `yaml:"transport" toml:"transport"`

	// Subprocess transport parameters.
	Command string            `yaml:"command" toml:"command"`
	Args    []string          `yaml:"args" toml:"args"`
	Env     map[string]string `yaml:"env" toml:"env"`

	// HTTP-stream and persistent-socket transport parameters.
	URL     string            `yaml:"url" toml:"url"`
	Address string            `yaml:"address" toml:"address"`
	Headers map[string]string `yaml:"headers" toml:"headers"`

	// Capabilities restricts which classes this connection may expose.
	// Empty means all classes.
	Capabilities []string `yaml:"capabilities" toml:"capabilities"`

	TimeoutSeconds float64 `yaml:"timeout_seconds" toml:"timeout_seconds"`

	// RoutingWeight controls routing priority and dynamic filtering.
	// 1.0 (the default) means always included; values below 1.0 mark the
	// connection as eligible for relevance-based subset selection.
	RoutingWeight float64 `yaml:"routing_weight" toml:"routing_weight"`

	// Exclude lists capability names hidden unconditionally at registration.
	Exclude []string `yaml:"exclude" toml:"exclude"`

	// CredentialTypes lists the credential types this connection may resolve
	// through the credential store.
	CredentialTypes []string `yaml:"credential_types" toml:"credential_types"`

	Roots []Root `yaml:"roots" toml:"roots"`
}

// Root declares one URI-prefix boundary for a connection.
type Root struct {
	URI          string   `yaml:"uri" toml:"uri"`
	Name         string   `yaml:"name" toml:"name"`
	Capabilities []string `yaml:"capabilities" toml:"capabilities"`
}

// Timeout returns the connection's timeout as a duration.
func (c *Connection) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return DefaultTimeout
	}
	return time.Duration(c.TimeoutSeconds * float64(time.Second))
}

// AllowsClass reports whether the connection may expose the given capability class.
func (c *Connection) AllowsClass(class string) bool {
	if len(c.Capabilities) == 0 {
		return true
	}
	for _, allowed := range c.Capabilities {
		if allowed == class {
			return true
		}
	}
	return false
}

// Excludes reports whether the named capability is statically excluded.
func (c *Connection) Excludes(name string) bool {
	for _, excluded := range c.Exclude {
		if excluded == name {
			return true
		}
	}
	return false
}

// Load reads a configuration file and returns a parsed Config.
// The format is chosen by extension: .toml parses as TOML, everything else
// as YAML. Environment variables in the format ${VAR_NAME} are expanded.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	var cfg Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if err := toml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with environment variable values.
// Unset variables expand to the empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// parseDurations converts raw duration strings into time.Duration values.
func parseDurations(cfg *Config) error {
	if cfg.Credentials.TokenTTLRaw != "" {
		ttl, err := time.ParseDuration(cfg.Credentials.TokenTTLRaw)
		if err != nil {
			return fmt.Errorf("parsing token_ttl %q: %w", cfg.Credentials.TokenTTLRaw, err)
		}
		cfg.Credentials.TokenTTL = ttl
	}
	return nil
}

// applyDefaults fills in zero-value fields that have non-zero defaults.
func applyDefaults(cfg *Config) {
	for i := range cfg.Connections {
		if cfg.Connections[i].RoutingWeight == 0 {
			cfg.Connections[i].RoutingWeight = 1.0
		}
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	seen := make(map[string]struct{}, len(c.Connections))

	for i := range c.Connections {
		conn := &c.Connections[i]

		if conn.Name == "" {
			return fmt.Errorf("connections[%d]: name is required", i)
		}
		if _, dup := seen[conn.Name]; dup {
			return fmt.Errorf("connection %q: duplicate name", conn.Name)
		}
		seen[conn.Name] = struct{}{}

		switch conn.Transport {
		case TransportStdio:
			if conn.Command == "" {
				return fmt.Errorf("connection %q: command is required for stdio transport", conn.Name)
			}
		case TransportHTTP:
			if conn.URL == "" {
				return fmt.Errorf("connection %q: url is required for http_stream transport", conn.Name)
			}
		case TransportSocket:
			if conn.Address == "" {
				return fmt.Errorf("connection %q: address is required for persistent transport", conn.Name)
			}
		default:
			return fmt.Errorf("connection %q: unknown transport %q", conn.Name, conn.Transport)
		}

		if conn.RoutingWeight <= 0 || conn.RoutingWeight > 1.0 {
			return fmt.Errorf("connection %q: routing_weight must be in (0, 1], got %v", conn.Name, conn.RoutingWeight)
		}

		for _, class := range conn.Capabilities {
			switch class {
			case ClassTools, ClassPrompts, ClassResources:
			default:
				return fmt.Errorf("connection %q: unknown capability class %q", conn.Name, class)
			}
		}

		for j, root := range conn.Roots {
			if root.URI == "" {
				return fmt.Errorf("connection %q: roots[%d]: uri is required", conn.Name, j)
			}
		}
	}

	if c.Filter.Threshold < 0 || c.Filter.Threshold > 1 {
		return fmt.Errorf("filter.threshold must be in [0, 1], got %v", c.Filter.Threshold)
	}

	return nil
}
