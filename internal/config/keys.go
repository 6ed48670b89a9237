package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
	kDuration
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.host", typ: kString, env: "HOWDO_SERVER_HOST",
		apply:   func(cfg *Config, v any) { cfg.Server.Host = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.Host },
	},
	{
		key: "server.port", typ: kInt, env: "HOWDO_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.cors_origins", typ: kString, env: "HOWDO_SERVER_CORS_ORIGINS",
		apply:   func(cfg *Config, v any) { cfg.Server.CORSOrigins = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.CORSOrigins },
	},
	{
		key: "storage.backend", typ: kString, env: "HOWDO_STORAGE_BACKEND",
		apply:   func(cfg *Config, v any) { cfg.Storage.Backend = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.Backend },
	},
	{
		key: "storage.data_dir", typ: kString, env: "HOWDO_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "render.pdf_enabled", typ: kBool, env: "HOWDO_RENDER_PDF_ENABLED",
		apply:   func(cfg *Config, v any) { cfg.Render.PDFEnabled = v.(bool) },
		extract: func(cfg Config) any { return cfg.Render.PDFEnabled },
	},
	{
		key: "render.chrome_bin", typ: kString, env: "HOWDO_RENDER_CHROME_BIN",
		apply:   func(cfg *Config, v any) { cfg.Render.ChromeBin = v.(string) },
		extract: func(cfg Config) any { return cfg.Render.ChromeBin },
	},
	{
		key: "render.pdf_timeout", typ: kDuration, env: "HOWDO_RENDER_PDF_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Render.PDFTimeout = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Render.PDFTimeout },
	},
	{
		key: "render.fallback", typ: kString, env: "HOWDO_RENDER_FALLBACK",
		apply:   func(cfg *Config, v any) { cfg.Render.Fallback = v.(string) },
		extract: func(cfg Config) any { return cfg.Render.Fallback },
	},
	{
		key: "render.prerender", typ: kBool, env: "HOWDO_RENDER_PRERENDER",
		apply:   func(cfg *Config, v any) { cfg.Render.Prerender = v.(bool) },
		extract: func(cfg Config) any { return cfg.Render.Prerender },
	},
	{
		key: "auth.token_secret", typ: kString, env: "HOWDO_AUTH_TOKEN_SECRET",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Auth.TokenSecret = v.(string) },
		extract: func(cfg Config) any { return cfg.Auth.TokenSecret },
	},
	{
		key: "auth.token_ttl", typ: kDuration, env: "HOWDO_AUTH_TOKEN_TTL",
		apply:   func(cfg *Config, v any) { cfg.Auth.TokenTTL = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Auth.TokenTTL },
	},
	{
		key: "auth.require_token", typ: kBool, env: "HOWDO_AUTH_REQUIRE_TOKEN",
		apply:   func(cfg *Config, v any) { cfg.Auth.RequireToken = v.(bool) },
		extract: func(cfg Config) any { return cfg.Auth.RequireToken },
	},
	{
		key: "log.level", typ: kString, env: "HOWDO_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "log.access", typ: kString, env: "HOWDO_LOG_ACCESS",
		apply:   func(cfg *Config, v any) { cfg.Log.Access = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Access },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kBool:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if bv, err := strconv.ParseBool(v); err == nil {
					s.apply(cfg, bv)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		case kDuration:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if d, err := time.ParseDuration(v); err == nil {
					s.apply(cfg, d)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse duration from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kBool:
			if b, err := strconv.ParseBool(raw); err == nil {
				s.apply(cfg, b)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kDuration:
			if d, err := time.ParseDuration(raw); err == nil {
				s.apply(cfg, d)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse duration from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
