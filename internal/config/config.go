// Package config holds the bridge configuration: flags, environment
// variables, and an optional YAML (or JSON) config file.
package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// ServerSpec describes how to launch one MCP server.
type ServerSpec struct {
	Command string   `yaml:"command" json:"command"`
	Args    []string `yaml:"args" json:"args"`
}

// ServerEntry pairs a configured server name with its launch spec.
type ServerEntry struct {
	Name string
	ServerSpec
}

// ServerMap is the named server table in document order. Only the first
// entry is launched; the order-preserving slice keeps that choice stable
// across loads, unlike a Go map.
type ServerMap []ServerEntry

// UnmarshalYAML decodes a YAML mapping while preserving key order.
func (m *ServerMap) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("mcp_servers must be a mapping, got %s", node.Tag)
	}
	out := make(ServerMap, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		var name string
		if err := node.Content[i].Decode(&name); err != nil {
			return err
		}
		var spec ServerSpec
		if err := node.Content[i+1].Decode(&spec); err != nil {
			return fmt.Errorf("server %q: %w", name, err)
		}
		if spec.Command == "" {
			return fmt.Errorf("server %q: command is required", name)
		}
		out = append(out, ServerEntry{Name: name, ServerSpec: spec})
	}
	*m = out
	return nil
}

// First returns the first configured server, the one the bridge launches.
func (m ServerMap) First() (ServerEntry, bool) {
	if len(m) == 0 {
		return ServerEntry{}, false
	}
	return m[0], true
}

// BridgeConfig holds configuration for the bridge server.
type BridgeConfig struct {
	Port           int           `yaml:"port"`
	MetricsAddr    string        `yaml:"metrics_port"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	LogLevel       string        `yaml:"log_level"`
	ClientName     string        `yaml:"client_name"`
	RequestTimeout time.Duration `yaml:"-"`
	ConfigFile     string        `yaml:"-"`
	Servers        ServerMap     `yaml:"mcp_servers"`
}

// BindFlags populates the struct with defaults from environment variables and
// binds command line flags so main can call flag.Parse().
func (c *BridgeConfig) BindFlags() {
	c.ConfigFile = getEnv("CONFIG_FILE", "mcp_config.yaml")
	c.LogLevel = getEnv("LOG_LEVEL", "info")
	port, _ := strconv.Atoi(getEnv("PORT", "8000"))
	c.Port = port
	mp := getEnv("METRICS_PORT", "")
	if mp != "" && !strings.Contains(mp, ":") {
		mp = ":" + mp
	}
	c.MetricsAddr = mp
	c.AllowedOrigins = splitOrigins(getEnv("ALLOWED_ORIGINS", "*"))
	if v, err := strconv.ParseFloat(getEnv("REQUEST_TIMEOUT", "30"), 64); err == nil {
		c.RequestTimeout = time.Duration(v * float64(time.Second))
	} else {
		c.RequestTimeout = 30 * time.Second
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "bridge-" + uuid.NewString()[:8]
	}
	c.ClientName = getEnv("CLIENT_NAME", host)

	flag.StringVar(&c.ConfigFile, "config", c.ConfigFile, "server config file path (YAML or JSON)")
	flag.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log verbosity (all, debug, info, warn, error, fatal, none)")
	flag.IntVar(&c.Port, "port", c.Port, "HTTP listen port for the bridge API")
	flag.StringVar(&c.MetricsAddr, "metrics-port", c.MetricsAddr, "Prometheus metrics listen address or port (served on the API port when empty)")
	flag.Func("allowed-origins", "comma-separated CORS origins (default *)", func(v string) error {
		c.AllowedOrigins = splitOrigins(v)
		return nil
	})
	flag.Func("request-timeout", "per-call timeout in seconds for child responses (0 disables)", func(v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return err
		}
		c.RequestTimeout = time.Duration(f * float64(time.Second))
		return nil
	})
	flag.StringVar(&c.ClientName, "client-name", c.ClientName, "client name reported in the MCP handshake")
}

// LoadFile merges a YAML config file into the receiver. JSON files parse as
// well since YAML is a superset; the original bridge shipped mcp_config.json
// files keyed "mcpServers", which are accepted alongside "mcp_servers".
func (c *BridgeConfig) LoadFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	if len(c.Servers) == 0 {
		var legacy struct {
			Servers ServerMap `yaml:"mcpServers"`
		}
		if err := yaml.Unmarshal(b, &legacy); err == nil {
			c.Servers = legacy.Servers
		}
	}
	return nil
}

func splitOrigins(s string) []string {
	var out []string
	for _, o := range strings.Split(s, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
