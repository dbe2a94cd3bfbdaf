// Package config loads the oracle service configuration from a YAML file and
// the environment.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"storemodel/internal/format"
)

const (
	EnvHTTPAddr   = "STOREMODEL_HTTP_ADDR"
	EnvJournalDir = "STOREMODEL_JOURNAL_DIR"
	EnvLogLevel   = "STOREMODEL_LOG_LEVEL"
)

type Config struct {
	HTTPAddr string `yaml:"http_addr"`
	// JournalDir receives one journal per session; empty disables journaling.
	JournalDir string `yaml:"journal_dir"`
	LogLevel   string `yaml:"log_level"`
	// Format is the default format of new sessions. When Geometry is set the
	// format is derived from it instead.
	Format   format.Config    `yaml:"format"`
	Geometry *format.Geometry `yaml:"geometry,omitempty"`
}

func Default() Config {
	return Config{
		HTTPAddr: "127.0.0.1:8080",
		LogLevel: "info",
		Format:   format.DefaultConfig(),
	}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.HTTPAddr != "" {
		c.HTTPAddr = source.HTTPAddr
	}
	if source.JournalDir != "" {
		c.JournalDir = source.JournalDir
	}
	if source.LogLevel != "" {
		c.LogLevel = source.LogLevel
	}
	c.Format.Merge(&source.Format)
	if source.Geometry != nil {
		g := *source.Geometry
		c.Geometry = &g
	}
}

// Load returns the defaults, overlaid with the YAML file at path (if path is
// not empty), overlaid with the environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		fileCfg, err := Parse(data)
		if err != nil {
			return Config{}, fmt.Errorf("%s: %w", path, err)
		}
		cfg.Merge(&fileCfg)
	}
	cfg.ApplyEnv(os.Getenv)
	return cfg, nil
}

// Parse decodes a YAML document. Unknown fields are rejected.
func Parse(data []byte) (Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields with the environment variables that are set.
func (c *Config) ApplyEnv(getenv func(string) string) {
	c.HTTPAddr = envOrDefault(getenv, EnvHTTPAddr, c.HTTPAddr)
	c.JournalDir = envOrDefault(getenv, EnvJournalDir, c.JournalDir)
	c.LogLevel = envOrDefault(getenv, EnvLogLevel, c.LogLevel)
}

// StoreFormat returns the default session format.
func (c *Config) StoreFormat() (format.Format, error) {
	if c.Geometry != nil {
		return format.FromGeometry(*c.Geometry)
	}
	return format.New(c.Format)
}

// Logger builds a production zap logger at the configured level.
func (c *Config) Logger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

func envOrDefault(getenv func(string) string, key, def string) string {
	if v := getenv(key); v != "" {
		return v
	}
	return def
}
