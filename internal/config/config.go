// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

// Package config loads the server configuration from YAML, a .env file and FANOUT_*
// environment variables, in increasing order of precedence.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"
	"github.com/spf13/afero"
)

const (
	// EnvPrefix prefixes every environment override.
	EnvPrefix = "FANOUT_"
	// DefaultListenAddr is where the server listens unless configured otherwise.
	DefaultListenAddr = "127.0.0.1:7117"
	// DefaultMaxWait caps any long-poll wait requested by a client.
	DefaultMaxWait = 5 * time.Minute
	// DefaultSweepMaxAge is how long a finished batch is kept.
	DefaultSweepMaxAge = 24 * time.Hour
	// DefaultSweepSchedule runs the sweeper at the top of every hour.
	DefaultSweepSchedule = "0 * * * *"
)

var (
	// ErrInvalidYaml is returned when the configuration cannot be decoded.
	ErrInvalidYaml = errors.New("invalid YAML")
	// ErrInvalidConfig is returned when a decoded value is out of range.
	ErrInvalidConfig = errors.New("invalid configuration")
	// ErrInvalidEnv is returned when an environment override cannot be parsed.
	ErrInvalidEnv = errors.New("invalid environment override")
	// ErrReadConfig is returned when the configuration or .env file cannot be read.
	ErrReadConfig = errors.New("failed to read config file")
)

// FsFactory returns the filesystem configuration files are read from.
var FsFactory = func() afero.Fs {
	return afero.NewOsFs()
}

// Config is the server configuration.
type Config struct {
	ListenAddr  string      `yaml:"listen_addr"`
	Shell       string      `yaml:"shell"`
	OutputDir   string      `yaml:"output_dir"`
	MaxWait     Duration    `yaml:"max_wait"`
	CancelGrace Duration    `yaml:"cancel_grace"`
	ConsumerTTL Duration    `yaml:"consumer_ttl"`
	Sweep       SweepConfig `yaml:"sweep"`
}

// SweepConfig controls removal of finished batches. An empty schedule disables the sweeper.
type SweepConfig struct {
	Schedule string   `yaml:"schedule"`
	MaxAge   Duration `yaml:"max_age"`
}

// Default returns the configuration used when nothing is configured.
func Default() *Config {
	return &Config{
		ListenAddr:  DefaultListenAddr,
		Shell:       "/bin/sh",
		OutputDir:   os.TempDir(),
		MaxWait:     Duration(DefaultMaxWait),
		CancelGrace: Duration(10 * time.Second),
		ConsumerTTL: Duration(5 * time.Second),
		Sweep: SweepConfig{
			Schedule: DefaultSweepSchedule,
			MaxAge:   Duration(DefaultSweepMaxAge),
		},
	}
}

// Parse decodes YAML over the defaults, so keys that are absent keep their default value.
func Parse(data []byte) (*Config, error) {
	cfg := Default()

	if len(bytes.TrimSpace(data)) == 0 {
		return cfg, nil
	}

	if err := yaml.UnmarshalWithOptions(data, cfg, yaml.DisallowUnknownField()); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidYaml, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Load reads path from FsFactory. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}

	data, err := afero.ReadFile(FsFactory(), path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}

		return nil, errors.Join(ErrReadConfig, err)
	}

	return Parse(data)
}

// Validate checks values that the decoder cannot.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ListenAddr) == "" {
		return fmt.Errorf("%w: listen_addr must not be empty", ErrInvalidConfig)
	}

	if strings.TrimSpace(c.Shell) == "" {
		return fmt.Errorf("%w: shell must not be empty", ErrInvalidConfig)
	}

	if c.MaxWait <= 0 {
		return fmt.Errorf("%w: max_wait must be positive", ErrInvalidConfig)
	}

	for name, d := range map[string]Duration{
		"cancel_grace":  c.CancelGrace,
		"consumer_ttl":  c.ConsumerTTL,
		"sweep.max_age": c.Sweep.MaxAge,
	} {
		if d < 0 {
			return fmt.Errorf("%w: %s must not be negative", ErrInvalidConfig, name)
		}
	}

	return nil
}

// YAML renders the configuration.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}

// ReadDotEnv parses a .env file from FsFactory. A missing file yields an empty map.
func ReadDotEnv(path string) (map[string]string, error) {
	f, err := FsFactory().Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]string{}, nil
		}

		return nil, errors.Join(ErrReadConfig, err)
	}
	defer f.Close() //nolint:errcheck

	env, err := godotenv.Parse(f)
	if err != nil {
		return nil, errors.Join(ErrReadConfig, err)
	}

	return env, nil
}

// Lookup resolves an environment variable.
type Lookup func(key string) (string, bool)

// Environment looks a key up in the process environment first, then in dotenv.
func Environment(dotenv map[string]string) Lookup {
	return func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}

		v, ok := dotenv[key]

		return v, ok
	}
}

// ApplyEnv overrides fields from FANOUT_* variables, e.g. FANOUT_MAX_WAIT=30s or
// FANOUT_SWEEP_SCHEDULE.
func (c *Config) ApplyEnv(lookup Lookup) error {
	strs := map[string]*string{
		"LISTEN_ADDR":    &c.ListenAddr,
		"SHELL":          &c.Shell,
		"OUTPUT_DIR":     &c.OutputDir,
		"SWEEP_SCHEDULE": &c.Sweep.Schedule,
	}

	for key, dst := range strs {
		if v, ok := lookup(EnvPrefix + key); ok {
			*dst = v
		}
	}

	durations := map[string]*Duration{
		"MAX_WAIT":      &c.MaxWait,
		"CANCEL_GRACE":  &c.CancelGrace,
		"CONSUMER_TTL":  &c.ConsumerTTL,
		"SWEEP_MAX_AGE": &c.Sweep.MaxAge,
	}

	for key, dst := range durations {
		v, ok := lookup(EnvPrefix + key)
		if !ok {
			continue
		}

		d, err := ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: %s%s: %w", ErrInvalidEnv, EnvPrefix, key, err)
		}

		*dst = d
	}

	return c.Validate()
}
