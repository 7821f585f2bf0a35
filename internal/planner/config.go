package planner

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/danieljhkim/docplan/internal/fsops"
)

// Config is the explicit planner configuration. It is passed into every
// planner call; the package keeps no global state.
type Config struct {
	// SourceRoot is where inputs live.
	SourceRoot string

	// OutputRoot is where artifacts land.
	OutputRoot string

	// Kinds classifies sources; the first matching pattern wins.
	Kinds []KindRule

	// Rules derives artifacts from source kinds.
	Rules []DerivationRule

	// Exclude lists base-name patterns skipped during discovery.
	Exclude []string

	// StaleOnEqual treats an artifact whose timestamp equals a dependency's
	// as stale.
	StaleOnEqual bool
}

// Validate checks the configuration for structural errors.
func (c *Config) Validate() error {
	if c.SourceRoot == "" {
		return fmt.Errorf("source root is required")
	}
	if c.OutputRoot == "" {
		return fmt.Errorf("output root is required")
	}
	if filepath.Clean(c.SourceRoot) == filepath.Clean(c.OutputRoot) {
		return fmt.Errorf("output root must differ from source root")
	}

	for i, kr := range c.Kinds {
		if _, err := filepath.Match(kr.Pattern, ""); err != nil || kr.Pattern == "" {
			return fmt.Errorf("kinds[%d]: invalid pattern %q", i, kr.Pattern)
		}
		if !slices.Contains(Kinds, kr.Kind) {
			return fmt.Errorf("kinds[%d]: unknown kind %q", i, kr.Kind)
		}
	}
	for _, p := range c.Exclude {
		if _, err := filepath.Match(p, ""); err != nil {
			return fmt.Errorf("invalid exclude pattern %q", p)
		}
	}

	names := make(map[string]bool, len(c.Rules))
	for i, r := range c.Rules {
		if r.Name == "" {
			return fmt.Errorf("rules[%d]: name is required", i)
		}
		if names[r.Name] {
			return fmt.Errorf("rules[%d]: duplicate rule name %q", i, r.Name)
		}
		names[r.Name] = true
		if !slices.Contains(Kinds, r.Kind) {
			return fmt.Errorf("rule %s: unknown kind %q", r.Name, r.Kind)
		}
		if r.Kind == KindGenerator {
			return fmt.Errorf("rule %s: gen files list their own targets", r.Name)
		}
		if !slices.Contains(ArtifactKinds, r.Artifact) {
			return fmt.Errorf("rule %s: unknown artifact kind %q", r.Name, r.Artifact)
		}
		if r.Target == "" {
			return fmt.Errorf("rule %s: target is required", r.Name)
		}
		// Sources at the top of the root have dir ".".
		for _, dir := range []string{".", "d", "d/e"} {
			sample := expandTarget(r.Target, map[string]string{
				"dir": dir, "base": "b.x", "stem": "b", "ext": "x", "format": "f", "name": "n",
			})
			if err := fsops.ValidateRelPath(sample); err != nil {
				return fmt.Errorf("%w: rule %s: target %q must stay inside the output root: %w", ErrTargetOutside, r.Name, r.Target, err)
			}
		}
	}

	return nil
}

// Classify returns the kind of a file by its base name.
func (c *Config) Classify(base string) (Kind, bool) {
	for _, kr := range c.Kinds {
		if kr.Matches(base) {
			return kr.Kind, true
		}
	}
	return "", false
}

func (c *Config) excluded(base string) bool {
	for _, p := range c.Exclude {
		if ok, _ := filepath.Match(p, base); ok {
			return true
		}
	}
	return false
}

// Formats returns the distinct formats of final-tier rules producing the
// given artifact kind, in rule order.
func (c *Config) Formats(kind ArtifactKind) []string {
	var out []string
	for _, r := range c.Rules {
		if r.Artifact == kind && r.Format != "" && !slices.Contains(out, r.Format) {
			out = append(out, r.Format)
		}
	}
	return out
}

// Selector narrows the final tier to a subset of its rules. The zero value
// selects everything.
type Selector struct {
	Formats   []string
	Artifacts []ArtifactKind
}

func (s Selector) matches(r DerivationRule) bool {
	if len(s.Formats) > 0 && !slices.Contains(s.Formats, r.Format) {
		return false
	}
	if len(s.Artifacts) > 0 && !slices.Contains(s.Artifacts, r.Artifact) {
		return false
	}
	return true
}

// Stage is the set of rules run for one tier.
type Stage struct {
	Tier  Tier
	Rules []DerivationRule
}

// StageFor returns the stage of tier. The selector only narrows the final
// tier; earlier tiers always run in full.
func StageFor(cfg *Config, tier Tier, sel Selector) Stage {
	st := Stage{Tier: tier}
	for _, r := range cfg.Rules {
		if r.Tier() != tier {
			continue
		}
		if tier == TierFinal && !sel.matches(r) {
			continue
		}
		st.Rules = append(st.Rules, r)
	}
	return st
}

// Kinds returns the source kinds consumed by the stage. Gen files are read
// by the template stage.
func (s Stage) Kinds() []Kind {
	var out []Kind
	if s.Tier == TierTemplates {
		out = append(out, KindGenerator)
	}
	for _, r := range s.Rules {
		if !slices.Contains(out, r.Kind) {
			out = append(out, r.Kind)
		}
	}
	return out
}

func (s Stage) rulesFor(k Kind) []DerivationRule {
	var out []DerivationRule
	for _, r := range s.Rules {
		if r.Kind == k {
			out = append(out, r)
		}
	}
	return out
}

func expandTarget(pattern string, vars map[string]string) string {
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(pattern)
}
