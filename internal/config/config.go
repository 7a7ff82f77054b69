// Package config loads gateway configuration from config.yaml with
// MIDWAY_-prefixed environment overrides.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Compiler  CompilerConfig  `koanf:"compiler"`
	Storage   StorageConfig   `koanf:"storage"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
}

type ServerConfig struct {
	Port int `koanf:"port"`
}

type CompilerConfig struct {
	// MaxCacheEntries triggers a reclaim pass when exceeded.
	MaxCacheEntries int `koanf:"max_cache_entries"`
	// MemoryCeilingMB adds a heap-pressure trigger when > 0.
	MemoryCeilingMB int `koanf:"memory_ceiling_mb"`
	// ReclaimMinEntries is the cache size below which reclaim is a no-op.
	ReclaimMinEntries int `koanf:"reclaim_min_entries"`
	// LearnThreshold is how often a novel shape must recur to be learned.
	LearnThreshold int `koanf:"learn_threshold"`
	// LearnMinLen and LearnMaxLen bound learnable sequence lengths.
	LearnMinLen int `koanf:"learn_min_len"`
	LearnMaxLen int `koanf:"learn_max_len"`
	// WarmUp pre-compiles the built-in patterns at startup.
	WarmUp bool `koanf:"warm_up"`
}

type StorageConfig struct {
	// Type selects the pattern store: sqlite, memory, none.
	Type   string       `koanf:"type"`
	SQLite SQLiteConfig `koanf:"sqlite"`
}

type SQLiteConfig struct {
	Path string `koanf:"path"`
}

type TelemetryConfig struct {
	Enabled bool   `koanf:"enabled"`
	Service string `koanf:"service"`
}

// Load reads path (a missing file is fine), applies MIDWAY_ environment
// overrides, fills defaults, and validates.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}

	// MIDWAY_SERVER__PORT=9090 overrides server.port, etc.
	if err := k.Load(env.Provider("MIDWAY_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "MIDWAY_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, err
	}

	setDefaults(k)

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(k *koanf.Koanf) {
	defaults := map[string]any{
		"server.port":                  8080,
		"compiler.max_cache_entries":   200,
		"compiler.reclaim_min_entries": 50,
		"compiler.learn_threshold":     3,
		"compiler.learn_min_len":       3,
		"compiler.learn_max_len":       8,
		"compiler.warm_up":             true,
		"storage.type":                 "none",
		"storage.sqlite.path":          "./data/midway.db",
		"telemetry.service":            "midway",
	}
	for key, val := range defaults {
		if !k.Exists(key) {
			k.Set(key, val)
		}
	}
}

// Validate rejects configurations the runtime cannot honor.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	switch c.Storage.Type {
	case "sqlite", "memory", "none":
	default:
		return fmt.Errorf("storage.type %q (must be 'sqlite', 'memory', or 'none')", c.Storage.Type)
	}
	if c.Storage.Type == "sqlite" && c.Storage.SQLite.Path == "" {
		return fmt.Errorf("storage.sqlite.path is required for sqlite storage")
	}
	if c.Compiler.LearnMinLen > c.Compiler.LearnMaxLen {
		return fmt.Errorf("compiler.learn_min_len %d exceeds learn_max_len %d",
			c.Compiler.LearnMinLen, c.Compiler.LearnMaxLen)
	}
	return nil
}
