package agentd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Mode selects which transport the factory constructs. It is resolved once
// at process start and stays fixed for the process lifetime unless the
// default client is explicitly reset.
type Mode string

const (
	// ModeCLI reaches the controller by spawning its binary per call.
	ModeCLI Mode = "cli"
	// ModeHTTP reaches the controller through the gateway's HTTP API.
	ModeHTTP Mode = "http"
	// ModeAuto prefers the gateway when reachable and falls back to the
	// local binary otherwise.
	ModeAuto Mode = "auto"
)

// Config carries the resolved inputs the transports consume. Path and token
// discovery live with the caller (or FromEnv); transports never go looking
// on their own.
type Config struct {
	Mode Mode

	// BinaryPath is the resolved controller binary for CLI execution.
	BinaryPath string

	// Gateway endpoint for HTTP execution. Token is optional.
	GatewayURL   string
	GatewayToken string

	// Env is extra environment for controller subprocesses, merged over
	// the parent process environment.
	Env map[string]string

	// Timeout is the default per-operation timeout. Zero means
	// DefaultTimeout.
	Timeout time.Duration
}

// Environment variables consulted by FromEnv. AGENTD_CONFIG points at an
// optional YAML file; explicit env vars win over file values.
const (
	EnvMode         = "AGENTD_MODE"
	EnvBinary       = "AGENTD_BIN"
	EnvGatewayURL   = "AGENTD_GATEWAY_URL"
	EnvGatewayToken = "AGENTD_GATEWAY_TOKEN"
	EnvConfigFile   = "AGENTD_CONFIG"
)

const defaultBinaryName = "agentd"

// fileConfig mirrors Config for YAML decoding. Timeout is a duration string
// ("45s") rather than raw nanoseconds.
type fileConfig struct {
	Mode         Mode              `yaml:"mode"`
	BinaryPath   string            `yaml:"binary"`
	GatewayURL   string            `yaml:"gateway_url"`
	GatewayToken string            `yaml:"gateway_token"`
	Env          map[string]string `yaml:"env"`
	Timeout      string            `yaml:"timeout"`
}

// FromEnv resolves a Config from the process environment plus the optional
// YAML config file. Missing values fall back to defaults: mode cli, binary
// "agentd" on PATH.
func FromEnv() (Config, error) {
	cfg := Config{}

	path := os.Getenv(EnvConfigFile)
	if path == "" {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, ".agentd", "config.yaml")
		}
	}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			var fc fileConfig
			if err := yaml.Unmarshal(data, &fc); err != nil {
				return Config{}, fmt.Errorf("parse %s: %w", path, err)
			}
			cfg = Config{
				Mode:         fc.Mode,
				BinaryPath:   fc.BinaryPath,
				GatewayURL:   fc.GatewayURL,
				GatewayToken: fc.GatewayToken,
				Env:          fc.Env,
			}
			if fc.Timeout != "" {
				d, err := time.ParseDuration(fc.Timeout)
				if err != nil {
					return Config{}, fmt.Errorf("parse %s: timeout: %w", path, err)
				}
				cfg.Timeout = d
			}
		case os.IsNotExist(err):
			// No config file is fine; env and defaults cover it.
		default:
			return Config{}, fmt.Errorf("read %s: %w", path, err)
		}
	}

	if v := os.Getenv(EnvMode); v != "" {
		cfg.Mode = Mode(v)
	}
	if v := os.Getenv(EnvBinary); v != "" {
		cfg.BinaryPath = v
	}
	if v := os.Getenv(EnvGatewayURL); v != "" {
		cfg.GatewayURL = v
	}
	if v := os.Getenv(EnvGatewayToken); v != "" {
		cfg.GatewayToken = v
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg.withDefaults(), nil
}

func (c Config) validate() error {
	switch c.Mode {
	case "", ModeCLI, ModeHTTP, ModeAuto:
		return nil
	default:
		return &ConfigError{Reason: fmt.Sprintf("unknown mode %q (want cli, http or auto)", c.Mode)}
	}
}

func (c Config) withDefaults() Config {
	if c.Mode == "" {
		c.Mode = ModeCLI
	}
	if c.BinaryPath == "" {
		c.BinaryPath = defaultBinaryName
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	return c
}
