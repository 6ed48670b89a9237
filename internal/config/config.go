package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server  ServerConfig
	Storage StorageConfig
	Render  RenderConfig
	Auth    AuthConfig
	Log     LogConfig
}

type ServerConfig struct {
	Host        string
	Port        int
	CORSOrigins string // comma-separated
}

type StorageConfig struct {
	Backend string // sqlite | memory
	DataDir string
}

type RenderConfig struct {
	PDFEnabled bool
	ChromeBin  string
	PDFTimeout time.Duration
	Fallback   string // html | none
	Prerender  bool
}

type AuthConfig struct {
	TokenSecret  string
	TokenTTL     time.Duration
	RequireToken bool
}

type LogConfig struct {
	Level  string
	Access string // empty disables, "stderr" or a file path
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
			Port: 5000,
		},
		Storage: StorageConfig{
			Backend: "sqlite",
			DataDir: defaultDataDir(),
		},
		Render: RenderConfig{
			PDFEnabled: true,
			PDFTimeout: 30 * time.Second,
			Fallback:   "html",
			Prerender:  true,
		},
		Auth: AuthConfig{
			TokenTTL: 24 * time.Hour,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// CORSOriginList splits Server.CORSOrigins into trimmed, non-empty origins.
func (c Config) CORSOriginList() []string {
	var out []string
	for _, o := range strings.Split(c.Server.CORSOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// Addr is the listen address of the HTTP server.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Validate rejects values no component can act on.
func (c Config) Validate() error {
	switch c.Storage.Backend {
	case "sqlite", "memory":
	default:
		return fmt.Errorf("storage.backend must be sqlite or memory, got %q", c.Storage.Backend)
	}
	switch c.Render.Fallback {
	case "html", "none":
	default:
		return fmt.Errorf("render.fallback must be html or none, got %q", c.Render.Fallback)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d is out of range", c.Server.Port)
	}
	if c.Render.PDFTimeout <= 0 {
		return fmt.Errorf("render.pdf_timeout must be positive")
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl must be positive")
	}
	return nil
}

// Load reads configuration in increasing order of precedence: defaults, the
// JSON file at $XDG_CONFIG_HOME/howdo/config.json, a .env file in the
// working directory, then HOWDO_* environment variables.
//
// The token signing secret comes from HOWDO_AUTH_TOKEN_SECRET or the secrets
// file at $XDG_DATA_HOME/howdo/secrets.json; one is generated and persisted
// there on first use.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "[WARN] could not load .env: %v\n", err)
	}
	return loadWith(newPlatformBackend(), newFileSecrets())
}

func loadWith(b ConfigBackend, secrets secretStore) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if cfg.Auth.TokenSecret == "" {
		secret, err := tokenSecret(secrets)
		if err != nil {
			return Config{}, err
		}
		cfg.Auth.TokenSecret = secret
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// tokenSecret returns the persisted signing secret, generating one if none
// exists yet.
func tokenSecret(secrets secretStore) (string, error) {
	if s, err := secrets.Get(secretsService, "token_secret"); err == nil && s != "" {
		return s, nil
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating token secret: %w", err)
	}
	secret := hex.EncodeToString(buf)
	if err := secrets.Set(secretsService, "token_secret", secret); err != nil {
		fmt.Fprintf(os.Stderr, "[WARN] could not persist token secret: %v. Sessions will not survive a restart.\n", err)
	}
	return secret, nil
}
