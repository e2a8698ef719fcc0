package agentd

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, yaml string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{EnvMode, EnvBinary, EnvGatewayURL, EnvGatewayToken} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestFromEnvDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvConfigFile, filepath.Join(t.TempDir(), "absent.yaml"))

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.Mode != ModeCLI {
		t.Errorf("Mode = %q, want cli", cfg.Mode)
	}
	if cfg.BinaryPath != "agentd" {
		t.Errorf("BinaryPath = %q, want agentd", cfg.BinaryPath)
	}
	if cfg.Timeout != DefaultTimeout {
		t.Errorf("Timeout = %v, want %v", cfg.Timeout, DefaultTimeout)
	}
}

func TestFromEnvReadsConfigFile(t *testing.T) {
	clearEnv(t)
	path := writeConfigFile(t, `
mode: auto
binary: /opt/agentd/bin/agentd
gateway_url: https://gw.example.net
gateway_token: tok-123
timeout: 45s
env:
  AGENTD_WORKSPACE: /srv/agents
`)
	t.Setenv(EnvConfigFile, path)

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.Mode != ModeAuto {
		t.Errorf("Mode = %q", cfg.Mode)
	}
	if cfg.BinaryPath != "/opt/agentd/bin/agentd" {
		t.Errorf("BinaryPath = %q", cfg.BinaryPath)
	}
	if cfg.GatewayURL != "https://gw.example.net" {
		t.Errorf("GatewayURL = %q", cfg.GatewayURL)
	}
	if cfg.GatewayToken != "tok-123" {
		t.Errorf("GatewayToken = %q", cfg.GatewayToken)
	}
	if cfg.Timeout != 45*time.Second {
		t.Errorf("Timeout = %v", cfg.Timeout)
	}
	if cfg.Env["AGENTD_WORKSPACE"] != "/srv/agents" {
		t.Errorf("Env = %v", cfg.Env)
	}
}

func TestFromEnvVarsOverrideFile(t *testing.T) {
	clearEnv(t)
	path := writeConfigFile(t, `
mode: cli
gateway_url: https://file.example.net
`)
	t.Setenv(EnvConfigFile, path)
	t.Setenv(EnvMode, "http")
	t.Setenv(EnvGatewayURL, "https://env.example.net")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.Mode != ModeHTTP {
		t.Errorf("Mode = %q, want env value http", cfg.Mode)
	}
	if cfg.GatewayURL != "https://env.example.net" {
		t.Errorf("GatewayURL = %q, want env value", cfg.GatewayURL)
	}
}

func TestFromEnvRejectsUnknownMode(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvConfigFile, filepath.Join(t.TempDir(), "absent.yaml"))
	t.Setenv(EnvMode, "quantum")

	_, err := FromEnv()
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("err = %v, want *ConfigError", err)
	}
}

func TestFromEnvRejectsMalformedFile(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvConfigFile, writeConfigFile(t, "mode: [not, a, scalar"))

	if _, err := FromEnv(); err == nil {
		t.Fatal("expected parse error for malformed yaml")
	}
}
