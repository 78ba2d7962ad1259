package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const maxConfigFileSize = 1024 * 1024 // 1MB

// defaultYAML seeds koanf so the file and env layers only override.
var defaultYAML = []byte(`
server:
  host: localhost
  port: 9180
logging:
  level: info
  format: json
reliability:
  timeout: 30s
  max_retries: 2
  base_delay: 1s
  failure_threshold: 3
  reset_timeout: 60s
session:
  idle_window: 120m
  sweep_interval: 5m
learning:
  min_confidence: 0.6
  warm_start_confidence: 0.7
  promotion_confidence: 0.8
storage:
  backend: badger
  path: .scoutd/store
`)

// Load reads configuration with the following precedence (highest first):
//
//  1. Environment variables (SCOUTD_SERVER_PORT, SCOUTD_STORAGE_PATH, ...)
//  2. YAML config file (configPath, optional)
//  3. Built-in defaults
//
// Environment variables use the SCOUTD_ prefix with underscore separators:
//
//	SCOUTD_SERVER_PORT          -> server.port
//	SCOUTD_RELIABILITY_TIMEOUT  -> reliability.timeout
//	SCOUTD_SESSION_IDLE_WINDOW  -> session.idle_window
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(rawbytes.Provider(defaultYAML), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	if configPath != "" {
		data, err := readConfigFile(configPath)
		if err != nil {
			return nil, err
		}
		if err := k.Load(rawbytes.Provider(data), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("SCOUTD_", ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// envTransform maps SCOUTD_SECTION_FIELD_NAME to section.field_name.
// Only the first underscore becomes a dot; the rest stay as-is so
// multi-word field names (idle_window) survive the mapping.
func envTransform(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, "SCOUTD_"))
	parts := strings.SplitN(s, "_", 2)
	if len(parts) == 1 {
		return parts[0]
	}
	return parts[0] + "." + parts[1]
}

// readConfigFile reads a config file with a size cap to bound memory use.
func readConfigFile(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("config file: %w", err)
	}
	if info.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file %s exceeds %d bytes", path, maxConfigFileSize)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return data, nil
}
