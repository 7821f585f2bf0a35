package planner

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/danieljhkim/docplan/internal/fsops"
	"github.com/danieljhkim/docplan/internal/scan"
)

// Scanner reports the dependencies of a source document.
type Scanner interface {
	Scan(path string) (*scan.Result, error)
}

// PlanStage computes the stale (source, target) pairs of one stage.
//
// A pair is planned when its target is missing, or older than the source,
// or older than a file the source includes, or when an upstream artifact the
// source references (or an index covering the source) was rebuilt in this
// run or is newer than the target. Timestamps are compared strictly unless
// cfg.StaleOnEqual is set.
//
// sources may contain any kinds; only those consumed by the stage's rules are
// planned. scanner may be nil, in which case includes and references are not
// considered. Any unreadable timestamp or document fails the whole stage with
// a StaleCheckError.
func PlanStage(fsys fsops.FS, cfg *Config, scanner Scanner, stage Stage, sources []SourceFile, up *Upstream) (*Plan, error) {
	if up == nil {
		up = NewUpstream()
	}
	plan := NewPlan(stage.Tier)

	srcs := make([]SourceFile, len(sources))
	copy(srcs, sources)
	sortSources(srcs)

	outRoot := filepath.Clean(cfg.OutputRoot)
	upstream := up.byRel()
	owners := make(map[string]string)

	for _, src := range srcs {
		if src.Kind == KindGenerator {
			if stage.Tier == TierTemplates {
				if err := planGenerator(fsys, cfg, src, plan, owners); err != nil {
					return nil, err
				}
			}
			continue
		}

		rules := stage.rulesFor(src.Kind)
		if len(rules) == 0 {
			continue
		}

		deps, err := scanSource(fsys, scanner, src)
		if err != nil {
			return nil, err
		}

		for _, rule := range rules {
			target := DeriveArtifactPath(cfg, src, rule)
			if !fsops.IsWithin(outRoot, target) || target == outRoot {
				return nil, fmt.Errorf("%w: rule %s derives %s from %s", ErrTargetOutside, rule.Name, target, src.Path)
			}
			if owner, ok := owners[target]; ok {
				return nil, fmt.Errorf("%w: %s and %s both derive %s", ErrTargetConflict, owner, src.Path, target)
			}
			owners[target] = src.Path

			mtime, exists, err := fsys.ModTime(target)
			if err != nil {
				return nil, &StaleCheckError{Path: target, Err: err}
			}
			rel, err := filepath.Rel(outRoot, target)
			if err != nil {
				return nil, fmt.Errorf("failed to relativize %s: %w", target, err)
			}

			plan.AddArtifact(Artifact{
				Path:    target,
				Rel:     rel,
				Kind:    rule.Artifact,
				Tier:    stage.Tier,
				Rule:    rule.Name,
				Format:  rule.Format,
				Source:  src.Path,
				Scope:   filepath.Dir(src.Rel),
				ModTime: mtime,
				Exists:  exists,
			})

			c := staleCheck{fsys: fsys, cfg: cfg, target: mtime}
			var reason Reason
			var cause string
			if !exists {
				reason = ReasonMissing
			} else {
				reason, cause, err = c.check(src, rule, deps, up, upstream)
				if err != nil {
					return nil, err
				}
			}
			if reason == "" {
				continue
			}
			plan.AddItem(Item{
				Source: src,
				Target: target,
				Rule:   rule,
				Reason: reason,
				Cause:  cause,
			})
		}
	}

	return plan, nil
}

// scanSource returns the includes and references of src. A derived source
// that is not on disk, because it is only planned in a dry run or its
// renderer wrote nothing, has none; its targets are stale through the
// upstream rebuild that produced it.
func scanSource(fsys fsops.FS, scanner Scanner, src SourceFile) (*scan.Result, error) {
	if scanner == nil {
		return nil, nil
	}
	if src.Derived() {
		_, exists, err := fsys.ModTime(src.Path)
		if err != nil {
			return nil, &StaleCheckError{Path: src.Path, Err: err}
		}
		if !exists {
			return nil, nil
		}
	}
	res, err := scanner.Scan(src.Path)
	if err != nil {
		return nil, &StaleCheckError{Path: src.Path, Err: err}
	}
	return res, nil
}

type staleCheck struct {
	fsys   fsops.FS
	cfg    *Config
	target time.Time
}

func (c staleCheck) newer(t time.Time) bool {
	if c.cfg.StaleOnEqual {
		return !t.Before(c.target)
	}
	return t.After(c.target)
}

// check returns the first reason the existing target is stale, or "" when it
// is fresh.
func (c staleCheck) check(src SourceFile, rule DerivationRule, deps *scan.Result, up *Upstream, upstream map[string]Artifact) (Reason, string, error) {
	if src.Derived() && up.WasRebuilt(src.Path) {
		return ReasonUpstreamRebuilt, src.Path, nil
	}
	if c.newer(src.ModTime) {
		return ReasonSourceChanged, "", nil
	}

	if deps != nil {
		for _, inc := range deps.Includes {
			mtime, exists, err := c.fsys.ModTime(inc)
			if err != nil {
				return "", "", &StaleCheckError{Path: inc, Err: err}
			}
			if exists && c.newer(mtime) {
				return ReasonDependencyChanged, inc, nil
			}
		}
	}

	for _, a := range referencedArtifacts(src, rule, deps, up, upstream) {
		if up.WasRebuilt(a.Path) {
			return ReasonUpstreamRebuilt, a.Path, nil
		}
		mtime, exists, err := c.fsys.ModTime(a.Path)
		if err != nil {
			return "", "", &StaleCheckError{Path: a.Path, Err: err}
		}
		if exists && c.newer(mtime) {
			return ReasonUpstreamNewer, a.Path, nil
		}
	}

	return "", "", nil
}

// referencedArtifacts returns the upstream artifacts the rule's target for src
// depends on: those its document references, by output-relative or absolute
// path, and every index artifact serving the rule whose scope contains src.
func referencedArtifacts(src SourceFile, rule DerivationRule, deps *scan.Result, up *Upstream, upstream map[string]Artifact) []Artifact {
	var out []Artifact
	seen := make(map[string]bool)
	add := func(a Artifact) {
		if a.Path == src.Path || seen[a.Path] {
			return
		}
		seen[a.Path] = true
		out = append(out, a)
	}

	if deps != nil {
		byPath := make(map[string]Artifact, len(up.Artifacts))
		for _, a := range up.Artifacts {
			byPath[a.Path] = a
		}
		for _, ref := range deps.References {
			if a, ok := byPath[ref]; ok {
				add(a)
				continue
			}
			rel, err := filepath.Rel(src.Root, ref)
			if err != nil || !fsops.IsWithin(src.Root, ref) {
				continue
			}
			if a, ok := upstream[rel]; ok {
				add(a)
			}
		}
	}

	scope := filepath.Dir(src.Rel)
	for _, a := range up.Artifacts {
		if a.Kind == ArtifactIndex && serves(a, rule) && covers(a.Scope, scope) {
			add(a)
		}
	}
	return out
}

// serves reports whether the index artifact a feeds targets of rule. An index
// without a format serves every rule, one with a format serves rules of the
// same format, and sphinx link files serve every rendered document.
func serves(a Artifact, rule DerivationRule) bool {
	switch a.Format {
	case "":
		return true
	case rule.Format:
		return true
	case IndexFormatSphinx:
		return rule.Artifact == ArtifactRendered
	}
	return false
}

// covers reports whether dir lies in the subtree rooted at scope. Both are
// relative paths; "." is the root.
func covers(scope, dir string) bool {
	if scope == "." {
		return true
	}
	rel, err := filepath.Rel(scope, dir)
	if err != nil {
		return false
	}
	return rel == "." || fsops.ValidateRelPath(rel) == nil
}
