// Package config loads the revgraph configuration file.
//
// The file is YAML. Unknown keys are rejected, defaults fill in what is
// missing, and the result is checked against an embedded CUE schema.
package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaCUE string

// Defaults applied to keys missing from the file.
const (
	DefaultListen        = "127.0.0.1:8787"
	DefaultPath          = "/sync"
	DefaultFlushInterval = 250 * time.Millisecond
	DefaultLogLevel      = "info"
)

// Config is the revgraph configuration.
type Config struct {
	// Database is the SQLite file holding the revision graph.
	Database string `yaml:"database" json:"database"`

	// Listen is the host:port the synchronizer serves on.
	Listen string `yaml:"listen" json:"listen"`

	// Path is the websocket endpoint.
	Path string `yaml:"path" json:"path"`

	// FlushInterval bounds how long a revision committed by another writer
	// waits before being pushed to clients.
	FlushInterval time.Duration `yaml:"flush_interval" json:"flush_interval"`

	// Tracked lists the entities the server-side history track follows.
	Tracked []string `yaml:"tracked" json:"tracked"`

	// InnerObjects includes entities composed by tracked ones.
	InnerObjects bool `yaml:"inner_objects" json:"inner_objects"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`
}

// Default returns a configuration with every default applied and no
// database set.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// Load reads, defaults and validates the configuration file at path.
func Load(path string) (*Config, error) {
	c, err := Read(path)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Read reads and defaults the configuration file at path without
// validating it, so callers can apply overrides first.
func Read(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Decode(data)
}

// Parse decodes, defaults and validates configuration YAML.
func Parse(data []byte) (*Config, error) {
	c, err := Decode(data)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Decode decodes configuration YAML and applies defaults.
func Decode(data []byte) (*Config, error) {
	var c Config
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&c); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	c.applyDefaults()
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.Listen == "" {
		c.Listen = DefaultListen
	}
	if c.Path == "" {
		c.Path = DefaultPath
	}
	if c.FlushInterval == 0 {
		c.FlushInterval = DefaultFlushInterval
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.Tracked == nil {
		c.Tracked = []string{}
	}
}

// Validate checks c against the CUE schema.
func (c *Config) Validate() error {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaCUE)
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compiling config schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	value := ctx.Encode(c)
	if err := value.Err(); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	if err := def.Unify(value).Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Level returns the slog level named by LogLevel.
func (c *Config) Level() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
