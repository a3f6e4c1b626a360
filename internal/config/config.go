// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pillar Contributors

// Package config loads the process configuration once at start-up.
//
// Values are layered, later sources overriding earlier ones: built-in
// defaults, an optional YAML file, PILLAR_* environment variables and
// finally command-line flags. The resulting Config is validated and then
// treated as immutable; components receive the parts they need explicitly.
package config

import (
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
	"golang.org/x/crypto/bcrypt"
)

// EnvPrefix is the prefix of environment variables read by Load.
// PILLAR_DATABASE_HOST maps to database.host.
const EnvPrefix = "PILLAR_"

// ProductionHashCost is the bcrypt cost used in the production profile.
const ProductionHashCost = 14

// Environment names a runtime profile.
type Environment string

// Runtime profiles.
const (
	Development Environment = "development"
	Test        Environment = "test"
	Production  Environment = "production"
)

// Config is the full process configuration.
type Config struct {
	Env        Environment `koanf:"env"`
	Log        Log         `koanf:"log"`
	HTTP       HTTP        `koanf:"http"`
	Metrics    Metrics     `koanf:"metrics"`
	Database   Database    `koanf:"database"`
	Credential Credential  `koanf:"credential"`
}

// Log configures the process logger.
type Log struct {
	Format string `koanf:"format"`
	Level  string `koanf:"level"`
}

// HTTP configures the API listener.
type HTTP struct {
	Addr string `koanf:"addr"`
}

// Metrics configures the observability listener. An empty Addr disables it.
type Metrics struct {
	Addr string `koanf:"addr"`
}

// Database holds the connection settings for the relational store.
type Database struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	User     string `koanf:"user"`
	Password string `koanf:"password"`
	Name     string `koanf:"name"`
	// CA is a PEM encoded trust anchor. When set, connections are encrypted
	// and verified against it regardless of the profile.
	CA string `koanf:"ca"`
}

// Credential configures password hashing.
type Credential struct {
	// Cost overrides the profile's bcrypt cost when non-zero.
	Cost int `koanf:"cost"`
}

// Default returns the configuration used when no source sets a value.
func Default() Config {
	return Config{
		Env:     Development,
		Log:     Log{Format: "json", Level: "info"},
		HTTP:    HTTP{Addr: ":3000"},
		Metrics: Metrics{Addr: "127.0.0.1:9100"},
		Database: Database{
			Host: "localhost",
			Port: 5432,
			User: "postgres",
			Name: "postgres",
		},
	}
}

// IsProduction reports whether the production profile is active.
func (c Config) IsProduction() bool {
	return c.Env == Production
}

// HashCost returns the bcrypt cost for this profile.
func (c Config) HashCost() int {
	if c.Credential.Cost != 0 {
		return c.Credential.Cost
	}
	if c.IsProduction() {
		return ProductionHashCost
	}
	return bcrypt.MinCost
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	switch c.Env {
	case Development, Test, Production:
	default:
		return invalid("env", "env must be development, test or production, got %q", c.Env)
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return invalid("log.format", "log format must be 'json' or 'text', got %q", c.Log.Format)
	}
	if c.HTTP.Addr == "" {
		return invalid("http.addr", "http address is required")
	}
	if c.Database.Host == "" {
		return invalid("database.host", "database host is required")
	}
	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return invalid("database.port", "database port must be between 1 and 65535, got %d", c.Database.Port)
	}
	if c.Database.User == "" {
		return invalid("database.user", "database user is required")
	}
	if c.Database.Name == "" {
		return invalid("database.name", "database name is required")
	}
	if cost := c.Credential.Cost; cost != 0 && (cost < bcrypt.MinCost || cost > bcrypt.MaxCost) {
		return invalid("credential.cost", "credential cost must be between %d and %d, got %d",
			bcrypt.MinCost, bcrypt.MaxCost, cost)
	}
	return nil
}

func invalid(key, format string, args ...any) error {
	return oops.Code("CONFIG_INVALID").With("key", key).Errorf(format, args...)
}

// LoadOptions selects the sources Load reads.
type LoadOptions struct {
	// File is an optional YAML file path.
	File string
	// Flags are applied last. Flag names map to keys by replacing the first
	// dash with a dot, so --log-format sets log.format.
	Flags *pflag.FlagSet
}

// Load builds and validates the configuration.
func Load(opts LoadOptions) (*Config, error) {
	k := koanf.New(".")

	if opts.File != "" {
		if err := k.Load(file.Provider(opts.File), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("file", opts.File).Wrap(err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "environment").Wrap(err)
	}

	if opts.Flags != nil {
		fp := posflag.ProviderWithFlag(opts.Flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			return strings.Replace(f.Name, "-", ".", 1), posflag.FlagVal(opts.Flags, f)
		})
		if err := k.Load(fp, nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "flags").Wrap(err)
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code("CONFIG_INVALID").Wrap(err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKey maps PILLAR_DATABASE_HOST to database.host.
func envKey(name string) string {
	key := strings.ToLower(strings.TrimPrefix(name, EnvPrefix))
	return strings.Replace(key, "_", ".", 1)
}
