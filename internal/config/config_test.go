// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML and TOML loading, env var expansion, defaults and validation

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, "gateway.yaml", `
server:
  http_addr: "0.0.0.0:8080"

database:
  path: "./test.db"

auth:
  jwt_secret: "`+testSecret+`"
  token_ttl: "2h"
  admin_token: "admin"

generation:
  endpoint: "http://localhost:9999/v1beta"
  model: "gemini-test"
  api_key: "key"
  instruction: "Sé breve."
  timeout: "10s"

widget:
  title: "Soporte"
  idle_timeout: "5m"
  dedupe_ttl: "1m"
  allowed_origins:
    - "https://shop.example.com"

logging:
  level: "debug"
  format: "json"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.HTTPAddr != "0.0.0.0:8080" {
		t.Errorf("expected http_addr '0.0.0.0:8080', got %q", cfg.Server.HTTPAddr)
	}
	if cfg.Database.Path != "./test.db" {
		t.Errorf("expected database path './test.db', got %q", cfg.Database.Path)
	}
	if cfg.Auth.TokenTTL != 2*time.Hour {
		t.Errorf("expected token_ttl 2h, got %v", cfg.Auth.TokenTTL)
	}
	if cfg.Auth.AdminToken != "admin" {
		t.Errorf("expected admin_token 'admin', got %q", cfg.Auth.AdminToken)
	}
	if cfg.Generation.Model != "gemini-test" || cfg.Generation.APIKey != "key" {
		t.Errorf("unexpected generation config: %+v", cfg.Generation)
	}
	if cfg.Generation.Instruction != "Sé breve." {
		t.Errorf("expected instruction 'Sé breve.', got %q", cfg.Generation.Instruction)
	}
	if cfg.Generation.Timeout != 10*time.Second {
		t.Errorf("expected timeout 10s, got %v", cfg.Generation.Timeout)
	}
	if cfg.Widget.Title != "Soporte" {
		t.Errorf("expected title 'Soporte', got %q", cfg.Widget.Title)
	}
	if cfg.Widget.IdleTimeout != 5*time.Minute {
		t.Errorf("expected idle_timeout 5m, got %v", cfg.Widget.IdleTimeout)
	}
	if cfg.Widget.DedupeTTL != time.Minute {
		t.Errorf("expected dedupe_ttl 1m, got %v", cfg.Widget.DedupeTTL)
	}
	if len(cfg.Widget.AllowedOrigins) != 1 || cfg.Widget.AllowedOrigins[0] != "https://shop.example.com" {
		t.Errorf("unexpected allowed_origins: %v", cfg.Widget.AllowedOrigins)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("unexpected logging config: %+v", cfg.Logging)
	}
}

func TestLoad_TOML(t *testing.T) {
	configPath := writeConfig(t, "gateway.toml", `
[server]
http_addr = "127.0.0.1:8080"

[database]
path = "./test.db"

[auth]
jwt_secret = "`+testSecret+`"

[generation]
api_key = "key"
timeout = "15s"

[widget]
allowed_origins = ["https://a.example", "https://b.example"]
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.HTTPAddr != "127.0.0.1:8080" {
		t.Errorf("expected http_addr '127.0.0.1:8080', got %q", cfg.Server.HTTPAddr)
	}
	if cfg.Generation.Timeout != 15*time.Second {
		t.Errorf("expected timeout 15s, got %v", cfg.Generation.Timeout)
	}
	if len(cfg.Widget.AllowedOrigins) != 2 {
		t.Errorf("expected 2 allowed origins, got %v", cfg.Widget.AllowedOrigins)
	}
}

func TestLoad_Defaults(t *testing.T) {
	configPath := writeConfig(t, "gateway.yaml", `
server:
  http_addr: ":8080"
database:
  path: "./test.db"
auth:
  jwt_secret: "`+testSecret+`"
generation:
  api_key: "key"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Auth.TokenTTL != DefaultTokenTTL {
		t.Errorf("expected default token_ttl, got %v", cfg.Auth.TokenTTL)
	}
	if cfg.Generation.Timeout != DefaultGenerationTimeout {
		t.Errorf("expected default timeout, got %v", cfg.Generation.Timeout)
	}
	if cfg.Widget.IdleTimeout != DefaultIdleTimeout {
		t.Errorf("expected default idle_timeout, got %v", cfg.Widget.IdleTimeout)
	}
	if cfg.Widget.DedupeTTL != DefaultDedupeTTL {
		t.Errorf("expected default dedupe_ttl, got %v", cfg.Widget.DedupeTTL)
	}
	if cfg.Widget.Title != "Asistente Virtual" {
		t.Errorf("expected default title, got %q", cfg.Widget.Title)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "text" {
		t.Errorf("unexpected logging defaults: %+v", cfg.Logging)
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("TEST_GEMINI_KEY", "secret-gemini-key")
	t.Setenv("TEST_JWT_SECRET", testSecret)
	t.Setenv("TEST_DB_PATH", "/tmp/chatia.db")

	configPath := writeConfig(t, "gateway.yaml", `
server:
  http_addr: ":8080"
database:
  path: "${TEST_DB_PATH}"
auth:
  jwt_secret: "${TEST_JWT_SECRET}"
generation:
  api_key: "${TEST_GEMINI_KEY}"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Generation.APIKey != "secret-gemini-key" {
		t.Errorf("expected api_key from env, got %q", cfg.Generation.APIKey)
	}
	if cfg.Auth.JWTSecret != testSecret {
		t.Errorf("expected jwt_secret from env, got %q", cfg.Auth.JWTSecret)
	}
	if cfg.Database.Path != "/tmp/chatia.db" {
		t.Errorf("expected database path from env, got %q", cfg.Database.Path)
	}
}

func TestLoad_EnvVarExpansion_UnsetVar(t *testing.T) {
	configPath := writeConfig(t, "gateway.yaml", `
server:
  http_addr: ":8080"
database:
  path: "./test.db"
auth:
  jwt_secret: "`+testSecret+`"
generation:
  api_key: "${CHATIA_TEST_UNSET_KEY_12345}"
`)

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("expected validation error for empty api_key")
	}
	if !strings.Contains(err.Error(), "generation.api_key") {
		t.Errorf("expected api_key error, got %v", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/gateway.yaml")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := writeConfig(t, "gateway.yaml", "server:\n  http_addr: [unclosed\n")

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{name: "token_ttl", yaml: "auth:\n  token_ttl: \"soon\"\n", want: "token_ttl"},
		{name: "timeout", yaml: "generation:\n  timeout: \"30\"\n", want: "timeout"},
		{name: "idle_timeout", yaml: "widget:\n  idle_timeout: \"x\"\n", want: "idle_timeout"},
		{name: "dedupe_ttl", yaml: "widget:\n  dedupe_ttl: \"1 minute\"\n", want: "dedupe_ttl"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml), false)
			if err == nil {
				t.Fatal("expected error for invalid duration")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error mentioning %q, got %v", tt.want, err)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Server:     ServerConfig{HTTPAddr: ":8080"},
			Database:   DatabaseConfig{Path: "./test.db"},
			Auth:       AuthConfig{JWTSecret: testSecret},
			Generation: GenerationConfig{APIKey: "key"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "missing http_addr", mutate: func(c *Config) { c.Server.HTTPAddr = "" }, wantErr: "server.http_addr"},
		{
			name: "tailscale without http_addr",
			mutate: func(c *Config) {
				c.Server.HTTPAddr = ""
				c.Tailscale = TailscaleConfig{Enabled: true, Hostname: "chatia"}
			},
		},
		{
			name:    "tailscale without hostname",
			mutate:  func(c *Config) { c.Tailscale.Enabled = true },
			wantErr: "tailscale.hostname",
		},
		{name: "missing database", mutate: func(c *Config) { c.Database.Path = "" }, wantErr: "database.path"},
		{name: "short secret", mutate: func(c *Config) { c.Auth.JWTSecret = "short" }, wantErr: "auth.jwt_secret"},
		{name: "missing api key", mutate: func(c *Config) { c.Generation.APIKey = "" }, wantErr: "generation.api_key"},
		{name: "negative ttl", mutate: func(c *Config) { c.Auth.TokenTTL = -time.Second }, wantErr: "auth.token_ttl"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("CHATIA_TEST_A", "alpha")

	tests := []struct {
		in   string
		want string
	}{
		{"${CHATIA_TEST_A}", "alpha"},
		{"pre-${CHATIA_TEST_A}-post", "pre-alpha-post"},
		{"${CHATIA_TEST_UNSET_99}", ""},
		{"$CHATIA_TEST_A", "$CHATIA_TEST_A"},
		{"no vars", "no vars"},
	}

	for _, tt := range tests {
		if got := expandEnvVars(tt.in); got != tt.want {
			t.Errorf("expandEnvVars(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDefaultPath(t *testing.T) {
	t.Setenv("CHATIA_CONFIG", "/etc/chatia/custom.toml")
	if got := DefaultPath(); got != "/etc/chatia/custom.toml" {
		t.Errorf("DefaultPath() = %q, want CHATIA_CONFIG value", got)
	}

	t.Setenv("CHATIA_CONFIG", "")
	t.Setenv("XDG_CONFIG_HOME", "/xdg")
	if got := DefaultPath(); got != filepath.Join("/xdg", "chatia", "gateway.yaml") {
		t.Errorf("DefaultPath() = %q, want XDG path", got)
	}
}
