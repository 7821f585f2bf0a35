package config

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const sampleHeader = `# docplan configuration.
#
# Paths are relative to this file. ${VAR} references are expanded and
# DOCPLAN_SOURCE_ROOT, DOCPLAN_OUTPUT_ROOT, DOCPLAN_RENDERER and
# DOCPLAN_LOG_LEVEL override the values below.
#
# Rule targets are relative to output_root and may use {dir}, {base},
# {stem}, {ext}, {format} and {name}. Commands may use {renderer},
# {source}, {target}, {format}, {dir}, {stem} and {rule}.

`

// Sample returns the example configuration written by "docplan init".
func Sample() ([]byte, error) {
	cfg := Default()
	cfg.RendererTimeout = "5m"

	var buf bytes.Buffer
	buf.WriteString(sampleHeader)
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return nil, fmt.Errorf("failed to encode sample config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode sample config: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteSample writes the example configuration to path. An existing file is
// only replaced when force is set.
func WriteSample(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", path)
	}
	data, err := Sample()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
