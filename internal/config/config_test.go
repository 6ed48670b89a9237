package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// mockSecrets is a test double for the secrets file.
type mockSecrets struct {
	values map[string]string
	setErr error
}

func (m *mockSecrets) Get(service, account string) (string, error) {
	v, ok := m.values[service+"/"+account]
	if !ok {
		return "", errors.New("not found")
	}
	return v, nil
}

func (m *mockSecrets) Set(service, account, value string) error {
	if m.setErr != nil {
		return m.setErr
	}
	if m.values == nil {
		m.values = make(map[string]string)
	}
	m.values[service+"/"+account] = value
	return nil
}

func writeTempConfig(t *testing.T, content string) *fileBackend {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return newFileBackend(path)
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, s := range specs {
		t.Setenv(s.env, "")
	}
}

// TestDefaults verifies all default values are applied when loading an empty config file.
func TestDefaults(t *testing.T) {
	clearEnv(t)
	b := writeTempConfig(t, `{}`)

	cfg, err := loadWith(b, &mockSecrets{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 5000 {
		t.Errorf("Server.Port = %d, want 5000", cfg.Server.Port)
	}
	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Server.Host = %q", cfg.Server.Host)
	}
	if cfg.Storage.Backend != "sqlite" {
		t.Errorf("Storage.Backend = %q, want sqlite", cfg.Storage.Backend)
	}
	if !cfg.Render.PDFEnabled || !cfg.Render.Prerender {
		t.Errorf("Render = %+v, want pdf and prerender enabled", cfg.Render)
	}
	if cfg.Render.PDFTimeout != 30*time.Second {
		t.Errorf("Render.PDFTimeout = %v, want 30s", cfg.Render.PDFTimeout)
	}
	if cfg.Render.Fallback != "html" {
		t.Errorf("Render.Fallback = %q, want html", cfg.Render.Fallback)
	}
	if cfg.Auth.TokenTTL != 24*time.Hour {
		t.Errorf("Auth.TokenTTL = %v, want 24h", cfg.Auth.TokenTTL)
	}
	if cfg.Auth.RequireToken {
		t.Error("Auth.RequireToken = true, want false")
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want info", cfg.Log.Level)
	}
	if cfg.CORSOriginList() != nil {
		t.Errorf("CORSOriginList = %v, want nil", cfg.CORSOriginList())
	}
}

// TestFileParsing verifies that fields are correctly read from the JSON file.
func TestFileParsing(t *testing.T) {
	clearEnv(t)
	b := writeTempConfig(t, `{
  "server.host": "0.0.0.0",
  "server.port": 8080,
  "server.cors_origins": "http://localhost:3000, https://app.example.com",
  "storage.backend": "memory",
  "storage.data_dir": "/tmp/howdo-test",
  "render.pdf_enabled": false,
  "render.chrome_bin": "/usr/bin/chromium",
  "render.pdf_timeout": "5s",
  "render.fallback": "none",
  "render.prerender": "false",
  "auth.token_ttl": "2h",
  "auth.require_token": true,
  "log.level": "debug",
  "log.access": "stderr"
}`)

	cfg, err := loadWith(b, &mockSecrets{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Addr() != "0.0.0.0:8080" {
		t.Errorf("Addr = %q", cfg.Addr())
	}
	origins := cfg.CORSOriginList()
	if len(origins) != 2 || origins[1] != "https://app.example.com" {
		t.Errorf("CORSOriginList = %v", origins)
	}
	if cfg.Storage.Backend != "memory" || cfg.Storage.DataDir != "/tmp/howdo-test" {
		t.Errorf("Storage = %+v", cfg.Storage)
	}
	if cfg.Render.PDFEnabled || cfg.Render.Prerender {
		t.Errorf("Render = %+v, want pdf and prerender disabled", cfg.Render)
	}
	if cfg.Render.ChromeBin != "/usr/bin/chromium" || cfg.Render.PDFTimeout != 5*time.Second || cfg.Render.Fallback != "none" {
		t.Errorf("Render = %+v", cfg.Render)
	}
	if cfg.Auth.TokenTTL != 2*time.Hour || !cfg.Auth.RequireToken {
		t.Errorf("Auth = %+v", cfg.Auth)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Access != "stderr" {
		t.Errorf("Log = %+v", cfg.Log)
	}
}

// TestEnvOverride verifies that environment variables override config file values.
func TestEnvOverride(t *testing.T) {
	clearEnv(t)
	b := writeTempConfig(t, `{"server.port": 8080, "render.fallback": "none"}`)

	t.Setenv("HOWDO_SERVER_PORT", "9090")
	t.Setenv("HOWDO_RENDER_FALLBACK", "html")
	t.Setenv("HOWDO_AUTH_TOKEN_TTL", "15m")
	t.Setenv("HOWDO_AUTH_REQUIRE_TOKEN", "true")

	cfg, err := loadWith(b, &mockSecrets{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Render.Fallback != "html" {
		t.Errorf("Render.Fallback = %q, want html", cfg.Render.Fallback)
	}
	if cfg.Auth.TokenTTL != 15*time.Minute {
		t.Errorf("Auth.TokenTTL = %v, want 15m", cfg.Auth.TokenTTL)
	}
	if !cfg.Auth.RequireToken {
		t.Error("Auth.RequireToken = false, want true")
	}
}

// TestInvalidEnvKeepsDefault verifies unparsable env values are ignored.
func TestInvalidEnvKeepsDefault(t *testing.T) {
	clearEnv(t)
	b := writeTempConfig(t, `{}`)
	t.Setenv("HOWDO_SERVER_PORT", "not-a-port")
	t.Setenv("HOWDO_RENDER_PDF_TIMEOUT", "soon")

	cfg, err := loadWith(b, &mockSecrets{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 5000 {
		t.Errorf("Server.Port = %d, want default 5000", cfg.Server.Port)
	}
	if cfg.Render.PDFTimeout != 30*time.Second {
		t.Errorf("Render.PDFTimeout = %v, want default", cfg.Render.PDFTimeout)
	}
}

// TestInvalidValues verifies Validate rejects values no component accepts.
func TestInvalidValues(t *testing.T) {
	cases := map[string]string{
		"backend":  `{"storage.backend": "postgres"}`,
		"fallback": `{"render.fallback": "docx"}`,
		"port":     `{"server.port": 70000}`,
		"timeout":  `{"render.pdf_timeout": "-1s"}`,
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			clearEnv(t)
			if _, err := loadWith(writeTempConfig(t, content), &mockSecrets{}); err == nil {
				t.Fatal("expected validation error, got nil")
			}
		})
	}
}

// TestTokenSecret covers env, stored and generated signing secrets.
func TestTokenSecret(t *testing.T) {
	t.Run("env", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("HOWDO_AUTH_TOKEN_SECRET", "from-env-0123456789")
		secrets := &mockSecrets{}

		cfg, err := loadWith(writeTempConfig(t, `{}`), secrets)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Auth.TokenSecret != "from-env-0123456789" {
			t.Errorf("TokenSecret = %q", cfg.Auth.TokenSecret)
		}
		if len(secrets.values) != 0 {
			t.Error("env secret was persisted")
		}
	})

	t.Run("stored", func(t *testing.T) {
		clearEnv(t)
		secrets := &mockSecrets{values: map[string]string{"howdo/token_secret": "stored-secret"}}

		cfg, err := loadWith(writeTempConfig(t, `{}`), secrets)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Auth.TokenSecret != "stored-secret" {
			t.Errorf("TokenSecret = %q", cfg.Auth.TokenSecret)
		}
	})

	t.Run("generated", func(t *testing.T) {
		clearEnv(t)
		secrets := &mockSecrets{}

		cfg, err := loadWith(writeTempConfig(t, `{}`), secrets)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(cfg.Auth.TokenSecret) != 64 {
			t.Errorf("generated secret length = %d, want 64", len(cfg.Auth.TokenSecret))
		}
		if secrets.values["howdo/token_secret"] != cfg.Auth.TokenSecret {
			t.Error("generated secret was not persisted")
		}
	})

	t.Run("persist failure", func(t *testing.T) {
		clearEnv(t)
		cfg, err := loadWith(writeTempConfig(t, `{}`), &mockSecrets{setErr: errors.New("read-only")})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Auth.TokenSecret == "" {
			t.Error("expected an ephemeral secret")
		}
	})
}

func TestFileSecretsRoundTrip(t *testing.T) {
	s := fileSecrets{path: filepath.Join(t.TempDir(), "howdo", "secrets.json")}

	if _, err := s.Get(secretsService, "token_secret"); err == nil {
		t.Fatal("expected error before any secret is stored")
	}
	if err := s.Set(secretsService, "token_secret", "abc"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := s.Get(secretsService, "token_secret")
	if err != nil || got != "abc" {
		t.Fatalf("Get = %q, %v", got, err)
	}

	info, err := os.Stat(s.path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("secrets file mode = %v, want 0600", info.Mode().Perm())
	}
}

func TestSetKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	b := newFileBackend(path)

	if err := setKey(b, "server.port", "7000"); err != nil {
		t.Fatalf("setKey port: %v", err)
	}
	if err := setKey(b, "render.pdf_enabled", "false"); err != nil {
		t.Fatalf("setKey bool: %v", err)
	}
	if err := setKey(b, "auth.token_ttl", "90m"); err != nil {
		t.Fatalf("setKey duration: %v", err)
	}

	clearEnv(t)
	cfg, err := loadWith(newFileBackend(path), &mockSecrets{})
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if cfg.Server.Port != 7000 || cfg.Render.PDFEnabled || cfg.Auth.TokenTTL != 90*time.Minute {
		t.Errorf("reloaded config = %+v", cfg)
	}
}

func TestSetKey_Errors(t *testing.T) {
	b := newFileBackend(filepath.Join(t.TempDir(), "config.json"))

	cases := []struct {
		key, value, want string
	}{
		{"auth.token_secret", "x", "cannot set secret"},
		{"nope.key", "x", "unknown config key"},
		{"server.port", "abc", "invalid integer"},
		{"auth.require_token", "maybe", "invalid bool"},
		{"render.pdf_timeout", "soon", "invalid duration"},
	}
	for _, tc := range cases {
		err := setKey(b, tc.key, tc.value)
		if err == nil || !strings.Contains(err.Error(), tc.want) {
			t.Errorf("setKey(%s, %s) = %v, want %q", tc.key, tc.value, err, tc.want)
		}
	}
}

func TestShowAllHidesSecrets(t *testing.T) {
	cfg := defaults()
	cfg.Auth.TokenSecret = "hidden"

	keys := ShowAll(cfg)
	if len(keys) != len(ValidKeys()) {
		t.Fatalf("ShowAll returned %d keys, ValidKeys %d", len(keys), len(ValidKeys()))
	}
	for _, k := range keys {
		if k.Key == "auth.token_secret" || k.Value == "hidden" {
			t.Fatalf("secret leaked: %+v", k)
		}
	}
}
