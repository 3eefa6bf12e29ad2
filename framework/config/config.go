// Package config loads the application configuration from the environment
// and optional .env files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/km-arc/go-plugkit/framework/logging"
	"github.com/km-arc/go-plugkit/framework/metadata"
	"github.com/km-arc/go-plugkit/framework/version"
)

// Config is the central typed configuration struct.
type Config struct {
	App     AppConfig
	Plugkit PlugkitConfig
	Log     logging.Config
	Diag    DiagConfig
}

type AppConfig struct {
	Name  string
	Env   string // local | production | testing
	Debug bool
}

// PlugkitConfig describes the running platform and what gets resolved on it.
type PlugkitConfig struct {
	Platform       string
	Version        string
	Features       []string
	Manifest       string // optional YAML discovery manifest
	WarmSingletons bool
}

type DiagConfig struct {
	Addr string // empty: diagnostics are not served
}

// Load reads the given .env files (".env" when none are given) and populates
// a Config. Process environment variables win over file values; missing files
// are skipped.
//
//	cfg := config.Load()
func Load(envFiles ...string) *Config {
	files := envFiles
	if len(files) == 0 {
		files = []string{".env"}
	}
	src := source{}
	for _, f := range files {
		// Non-fatal: .env may not exist in production
		values, err := godotenv.Read(f)
		if err != nil {
			continue
		}
		for k, v := range values {
			if _, set := src[k]; !set {
				src[k] = v
			}
		}
	}

	return &Config{
		App: AppConfig{
			Name:  src.env("APP_NAME", "plugkit"),
			Env:   src.env("APP_ENV", "local"),
			Debug: src.envBool("APP_DEBUG", false),
		},
		Plugkit: PlugkitConfig{
			Platform:       src.env("PLUGKIT_PLATFORM", "generic"),
			Version:        src.env("PLUGKIT_VERSION", "1.0.0"),
			Features:       src.envList("PLUGKIT_FEATURES"),
			Manifest:       src.env("PLUGKIT_MANIFEST", ""),
			WarmSingletons: src.envBool("PLUGKIT_WARM_SINGLETONS", false),
		},
		Log: logging.Config{
			Level:  src.env("LOG_LEVEL", "info"),
			Format: src.env("LOG_FORMAT", "json"),
		},
		Diag: DiagConfig{
			Addr: src.env("DIAG_ADDR", ""),
		},
	}
}

// Runtime parses the configured platform version.
func (c *Config) Runtime() (version.Runtime, error) {
	v, err := version.Parse(c.Plugkit.Version)
	if err != nil {
		return version.Runtime{}, fmt.Errorf("config: PLUGKIT_VERSION: %w", err)
	}
	return version.Runtime{Platform: c.Plugkit.Platform, Version: v}, nil
}

// CurrentFeatures returns the configured feature set, so a Config can serve
// as the application's feature source.
func (c *Config) CurrentFeatures() metadata.FeatureSet {
	return metadata.NewFeatureSet(c.Plugkit.Features...)
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool { return c.App.Env == "production" }

// ── helpers ─────────────────────────────────────────────────────────────────

// source holds values read from .env files, consulted after the process
// environment.
type source map[string]string

func (s source) env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	if v := s[key]; v != "" {
		return v
	}
	return fallback
}

func (s source) envBool(key string, fallback bool) bool {
	v := s.env(key, "")
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func (s source) envList(key string) []string {
	var out []string
	for _, item := range strings.Split(s.env(key, ""), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
