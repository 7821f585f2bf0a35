package planner

import (
	"bufio"
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/danieljhkim/docplan/internal/fsops"
)

// Generation is one line of a gen file:
//
//	from | to | generator | args
//
// From and To are relative to the gen file's directory; To is resolved below
// the output root. Args are passed to the renderer after the target, split on
// whitespace. Lines starting with "#" and lines without four fields are
// ignored.
type Generation struct {
	Line      int
	From      string
	To        string
	Generator string
	Args      []string
}

// ParseGenFile parses the lines of a gen file.
func ParseGenFile(data []byte) []Generation {
	var out []Generation
	sc := bufio.NewScanner(bytes.NewReader(data))
	n := 0
	for sc.Scan() {
		n++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, "|")
		if len(fields) != 4 {
			continue
		}
		for i := range fields {
			fields[i] = strings.TrimSpace(fields[i])
		}
		if fields[0] == "" || fields[1] == "" || fields[2] == "" {
			continue
		}
		out = append(out, Generation{
			Line:      n,
			From:      filepath.FromSlash(fields[0]),
			To:        filepath.FromSlash(fields[1]),
			Generator: fields[2],
			Args:      strings.Fields(fields[3]),
		})
	}
	return out
}

// Rule returns the derivation rule a generation runs under. The generator
// name is passed to the renderer as the format.
func (g Generation) Rule() DerivationRule {
	r := DerivationRule{
		Name:     "gen:" + g.Generator,
		Kind:     KindGenerator,
		Artifact: ArtifactGenerated,
		Format:   g.Generator,
		Target:   filepath.ToSlash(g.To),
	}
	if len(g.Args) > 0 {
		r.Command = append([]string{"{renderer}", "{format}", "{source}", "{target}"}, g.Args...)
	}
	return r
}

// planGenerator adds the generations listed by the gen file src to plan. A
// generated file is stale when it is missing, or older than its input or the
// gen file.
func planGenerator(fsys fsops.FS, cfg *Config, src SourceFile, plan *Plan, owners map[string]string) error {
	data, err := fsys.ReadFile(src.Path)
	if err != nil {
		return &StaleCheckError{Path: src.Path, Err: err}
	}

	outRoot := filepath.Clean(cfg.OutputRoot)
	dir := filepath.Dir(src.Path)
	relDir := filepath.Dir(src.Rel)
	c := staleCheck{fsys: fsys, cfg: cfg}

	for _, g := range ParseGenFile(data) {
		from := filepath.Join(dir, g.From)
		fromMtime, exists, err := fsys.ModTime(from)
		if err != nil {
			return &StaleCheckError{Path: from, Err: err}
		}
		if !exists {
			return &StaleCheckError{Path: from, Err: fmt.Errorf("%s:%d: input does not exist", src.Path, g.Line)}
		}
		fromRel, err := filepath.Rel(src.Root, from)
		if err != nil {
			return fmt.Errorf("failed to relativize %s: %w", from, err)
		}

		rule := g.Rule()
		target := filepath.Join(outRoot, relDir, g.To)
		if !fsops.IsWithin(outRoot, target) || target == outRoot {
			return fmt.Errorf("%w: %s:%d derives %s", ErrTargetOutside, src.Path, g.Line, target)
		}
		if owner, ok := owners[target]; ok {
			return fmt.Errorf("%w: %s and %s both derive %s", ErrTargetConflict, owner, src.Path, target)
		}
		owners[target] = src.Path

		mtime, targetExists, err := fsys.ModTime(target)
		if err != nil {
			return &StaleCheckError{Path: target, Err: err}
		}
		rel, err := filepath.Rel(outRoot, target)
		if err != nil {
			return fmt.Errorf("failed to relativize %s: %w", target, err)
		}

		plan.AddArtifact(Artifact{
			Path:    target,
			Rel:     rel,
			Kind:    ArtifactGenerated,
			Tier:    plan.Tier,
			Rule:    rule.Name,
			Format:  rule.Format,
			Source:  from,
			Scope:   relDir,
			ModTime: mtime,
			Exists:  targetExists,
		})

		input := SourceFile{Path: from, Root: src.Root, Rel: fromRel, Kind: KindGenerator, ModTime: fromMtime}
		c.target = mtime
		var reason Reason
		var cause string
		switch {
		case !targetExists:
			reason = ReasonMissing
		case c.newer(fromMtime):
			reason = ReasonSourceChanged
		case c.newer(src.ModTime):
			reason, cause = ReasonDependencyChanged, src.Path
		default:
			continue
		}
		plan.AddItem(Item{Source: input, Target: target, Rule: rule, Reason: reason, Cause: cause})
	}
	return nil
}
