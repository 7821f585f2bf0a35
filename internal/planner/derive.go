package planner

import (
	"path/filepath"
	"strings"
)

// DeriveArtifactPath returns the output path of the artifact rule derives
// from src. It is a pure function of the source's relative path and the rule,
// so the same pair always yields the same target.
func DeriveArtifactPath(cfg *Config, src SourceFile, rule DerivationRule) string {
	rel := filepath.ToSlash(src.Rel)
	dir := "."
	if i := strings.LastIndex(rel, "/"); i >= 0 {
		dir = rel[:i]
	}
	base := rel[strings.LastIndex(rel, "/")+1:]
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)

	target := expandTarget(rule.Target, map[string]string{
		"dir":    dir,
		"base":   base,
		"stem":   stem,
		"ext":    strings.TrimPrefix(ext, "."),
		"format": rule.Format,
		"name":   rule.Name,
	})
	return filepath.Join(filepath.Clean(cfg.OutputRoot), filepath.FromSlash(target))
}
