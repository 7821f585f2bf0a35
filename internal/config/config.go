// Package config loads the docplan configuration.
//
// Configuration is read from a YAML file (default docplan.yaml, searched from
// the working directory upwards) after loading a .env file. ${VAR} references
// in the file are expanded, built-in defaults fill the gaps and DOCPLAN_*
// environment variables override file values. Command-line flags are applied
// on top by the CLI.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/danieljhkim/docplan/internal/planner"
)

// DefaultFile is the configuration file name searched for when none is given.
const DefaultFile = "docplan.yaml"

// Config is the on-disk configuration.
type Config struct {
	SourceRoot      string        `yaml:"source_root"`
	OutputRoot      string        `yaml:"output_root"`
	RendererPath    string        `yaml:"renderer_path"`
	RendererTimeout string        `yaml:"renderer_timeout,omitempty"`
	Jobs            int           `yaml:"jobs"`
	StaleOnEqual    bool          `yaml:"stale_on_equal"`
	Exclude         []string      `yaml:"exclude"`
	Kinds           []KindConfig  `yaml:"kinds"`
	Rules           []RuleConfig  `yaml:"rules"`
	Scan            ScanConfig    `yaml:"scan"`
	Logging         LoggingConfig `yaml:"logging"`
	Metrics         MetricsConfig `yaml:"metrics,omitempty"`

	// Dir is the directory relative roots are resolved against: the
	// directory of the loaded file, or the working directory.
	Dir string `yaml:"-"`

	// File is the path the configuration was loaded from, empty for
	// built-in defaults.
	File string `yaml:"-"`
}

// KindConfig maps a base-name pattern to a source kind.
type KindConfig struct {
	Pattern string `yaml:"pattern"`
	Kind    string `yaml:"kind"`
}

// RuleConfig describes one derivation rule.
type RuleConfig struct {
	Name     string   `yaml:"name"`
	Kind     string   `yaml:"kind"`
	Artifact string   `yaml:"artifact"`
	Format   string   `yaml:"format,omitempty"`
	Target   string   `yaml:"target"`
	Command  []string `yaml:"command,omitempty,flow"`
}

// ScanConfig controls reference scanning.
type ScanConfig struct {
	Extensions []string `yaml:"extensions,flow"`
}

// MetricsConfig controls the Prometheus textfile output.
type MetricsConfig struct {
	File string `yaml:"file,omitempty"`
}

// Load reads the configuration at path and validates it. An empty path
// searches for DefaultFile from the working directory upwards and falls back
// to the built-in defaults when none is found; an explicit path must exist.
func Load(path string) (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}
	return LoadFrom(cwd, path)
}

// LoadFrom is Load with an explicit working directory.
func LoadFrom(cwd, path string) (*Config, error) {
	cfg, err := ReadFrom(cwd, path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Read is Load without validation, for callers that override values before
// validating.
func Read(path string) (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}
	return ReadFrom(cwd, path)
}

// ReadFrom is Read with an explicit working directory.
func ReadFrom(cwd, path string) (*Config, error) {
	if err := loadEnvFile(cwd); err != nil {
		return nil, err
	}

	if path == "" {
		found, ok := Locate(cwd)
		if !ok {
			cfg := Default()
			cfg.Dir = cwd
			applyEnv(cfg)
			return cfg, nil
		}
		path = found
	} else if !filepath.IsAbs(path) {
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("configuration file not found: %s", path)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	cfg.Dir = filepath.Dir(path)
	cfg.File = path
	applyEnv(cfg)
	return cfg, nil
}

// Parse decodes YAML configuration, expanding environment references and
// applying defaults. Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// Locate walks up from dir looking for DefaultFile.
func Locate(dir string) (string, bool) {
	current, err := filepath.Abs(dir)
	if err != nil {
		return "", false
	}
	for {
		candidate := filepath.Join(current, DefaultFile)
		if info, err := os.Stat(candidate); err == nil && info.Mode().IsRegular() {
			return candidate, true
		}

		parent := filepath.Dir(current)
		if parent == current {
			// Reached root directory
			return "", false
		}
		current = parent
	}
}

// Validate checks values the planner does not see and then the planner
// configuration itself.
func (c *Config) Validate() error {
	if c.Jobs < 0 {
		return fmt.Errorf("jobs must not be negative, got %d", c.Jobs)
	}
	if _, err := c.Timeout(); err != nil {
		return err
	}
	if _, err := ParseLogLevel(c.Logging.Level); err != nil {
		return err
	}
	if _, err := ParseLogFormat(c.Logging.Format); err != nil {
		return err
	}

	pc, err := c.Planner()
	if err != nil {
		return err
	}
	return pc.Validate()
}

// Timeout returns the parsed renderer timeout; zero means no limit.
func (c *Config) Timeout() (time.Duration, error) {
	if c.RendererTimeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.RendererTimeout)
	if err != nil {
		return 0, fmt.Errorf("invalid renderer_timeout %q: %w", c.RendererTimeout, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("renderer_timeout must not be negative, got %s", d)
	}
	return d, nil
}

// Resolve returns p as an absolute path, relative to the configuration
// directory.
func (c *Config) Resolve(p string) string {
	if p == "" {
		return ""
	}
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(c.Dir, p)
}

// Planner converts the configuration into the planner's form with absolute
// roots.
func (c *Config) Planner() (*planner.Config, error) {
	pc := &planner.Config{
		SourceRoot:   c.Resolve(c.SourceRoot),
		OutputRoot:   c.Resolve(c.OutputRoot),
		Exclude:      c.Exclude,
		StaleOnEqual: c.StaleOnEqual,
	}

	for i, k := range c.Kinds {
		kind, err := planner.ParseKind(k.Kind)
		if err != nil {
			return nil, fmt.Errorf("kinds[%d]: %w", i, err)
		}
		pc.Kinds = append(pc.Kinds, planner.KindRule{Pattern: k.Pattern, Kind: kind})
	}

	for i, r := range c.Rules {
		kind, err := planner.ParseKind(r.Kind)
		if err != nil {
			return nil, fmt.Errorf("rules[%d] %s: %w", i, r.Name, err)
		}
		artifact, err := planner.ParseArtifactKind(r.Artifact)
		if err != nil {
			return nil, fmt.Errorf("rules[%d] %s: %w", i, r.Name, err)
		}
		pc.Rules = append(pc.Rules, planner.DerivationRule{
			Name:     r.Name,
			Kind:     kind,
			Artifact: artifact,
			Format:   r.Format,
			Target:   r.Target,
			Command:  r.Command,
		})
	}

	return pc, nil
}
