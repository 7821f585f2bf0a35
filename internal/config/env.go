package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// Environment variables overriding file values.
const (
	EnvSourceRoot = "DOCPLAN_SOURCE_ROOT"
	EnvOutputRoot = "DOCPLAN_OUTPUT_ROOT"
	EnvRenderer   = "DOCPLAN_RENDERER"
	EnvLogLevel   = "DOCPLAN_LOG_LEVEL"
)

// loadEnvFile loads .env and .env.local from dir when present. Variables
// already set in the process environment are never overwritten. A file that
// exists but cannot be read or parsed is an error.
func loadEnvFile(dir string) error {
	for _, name := range []string{".env", ".env.local"} {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to stat %s: %w", p, err)
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// applyEnv overrides file values with DOCPLAN_* variables. Roots given in
// the environment are relative to the working directory, not the file.
func applyEnv(cfg *Config) {
	if v := os.Getenv(EnvSourceRoot); v != "" {
		cfg.SourceRoot = absFromCwd(v)
	}
	if v := os.Getenv(EnvOutputRoot); v != "" {
		cfg.OutputRoot = absFromCwd(v)
	}
	if v := os.Getenv(EnvRenderer); v != "" {
		cfg.RendererPath = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Logging.Level = v
	}
}

func absFromCwd(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}
