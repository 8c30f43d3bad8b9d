// Package config provides configuration loading for rrdns using Viper.
// Configuration is loaded from an optional YAML file with environment
// variable overrides taking priority.
//
// Environment variables use the RRDNS_ prefix and underscore-separated
// keys, e.g. RRDNS_SERVER_LISTEN -> server.listen.
package config

import (
	"os"
	"strings"
)

// ServerConfig contains the three listener addresses and recursion tuning
// knobs named in the external interface surface.
type ServerConfig struct {
	Listen           string `yaml:"listen"            mapstructure:"listen"`
	ListenDebug       string `yaml:"listen_debug"      mapstructure:"listen_debug"`
	ListenMetrics     string `yaml:"listen_metrics"    mapstructure:"listen_metrics"`
	MaxRecursionDepth int    `yaml:"max_recursion_depth" mapstructure:"max_recursion_depth"`
	SocketBufferBytes int    `yaml:"socket_buffer_bytes" mapstructure:"socket_buffer_bytes"`
}

// LoggingConfig contains logging settings, unchanged from the teacher's
// shape since internal/logging.Configure consumes it as-is.
type LoggingConfig struct {
	Level            string            `yaml:"level"             mapstructure:"level"             json:"level"`
	Structured       bool              `yaml:"structured"        mapstructure:"structured"        json:"structured"`
	StructuredFormat string            `yaml:"structured_format" mapstructure:"structured_format" json:"structured_format"`
	IncludePID       bool              `yaml:"include_pid"       mapstructure:"include_pid"       json:"include_pid"`
	ExtraFields      map[string]string `yaml:"extra_fields"      mapstructure:"extra_fields"      json:"extra_fields,omitempty"`
}

// Config is the root configuration structure.
type Config struct {
	Server  ServerConfig  `yaml:"server"  mapstructure:"server"`
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`
}

// ResolveConfigPath determines the config file path from flag or
// environment; an empty result means "no file, defaults plus env only".
func ResolveConfigPath(flagValue string) string {
	if strings.TrimSpace(flagValue) != "" {
		return flagValue
	}
	if v := strings.TrimSpace(os.Getenv("RRDNS_CONFIG")); v != "" {
		return v
	}
	return ""
}

// Load loads configuration from an optional YAML file with environment
// variable overrides. This is the main entry point for loading
// configuration.
//
// Configuration priority (highest to lowest):
//  1. Environment variables (RRDNS_*)
//  2. Config file values
//  3. Default values
func Load(path string) (*Config, error) {
	return loadFromSource(path)
}
