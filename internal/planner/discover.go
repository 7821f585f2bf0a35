package planner

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/danieljhkim/docplan/internal/fsops"
)

// Discover walks the source root and classifies every file by the first
// matching kind rule. Unclassified files are ignored. Hidden entries, excluded
// names and the output root (when nested in the source root) are skipped.
//
// Discover fails with a DiscoveryError when the root is missing, not a
// directory or a directory below it cannot be read, and with a
// StaleCheckError when a classified file's timestamp cannot be read.
func Discover(fsys fsops.FS, cfg *Config) (Catalog, error) {
	root := filepath.Clean(cfg.SourceRoot)
	outRoot := filepath.Clean(cfg.OutputRoot)

	info, err := fsys.Stat(root)
	if err != nil {
		return nil, &DiscoveryError{Root: root, Err: err}
	}
	if !info.IsDir() {
		return nil, &DiscoveryError{Root: root, Err: fmt.Errorf("not a directory")}
	}

	catalog := make(Catalog)
	err = fsys.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return &DiscoveryError{Root: root, Err: walkErr}
		}

		name := d.Name()
		if path != root && (strings.HasPrefix(name, ".") || cfg.excluded(name)) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if path != root && path == outRoot {
				return filepath.SkipDir
			}
			return nil
		}

		kind, ok := cfg.Classify(name)
		if !ok {
			return nil
		}

		mtime, exists, err := fsys.ModTime(path)
		if err != nil {
			return &StaleCheckError{Path: path, Err: err}
		}
		if !exists {
			// Dangling symlink: nothing to build from.
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return &DiscoveryError{Root: root, Err: err}
		}

		catalog[kind] = append(catalog[kind], SourceFile{
			Path:    path,
			Root:    root,
			Rel:     rel,
			Kind:    kind,
			ModTime: mtime,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	for k := range catalog {
		sortSources(catalog[k])
	}
	return catalog, nil
}

// DerivedSources turns expanded-template and generated artifacts into
// sources for later tiers. An output whose name does not classify, or
// classifies as another template or gen file, is ignored, as is one that is
// missing on disk and was not rebuilt in this run.
func DerivedSources(fsys fsops.FS, cfg *Config, up *Upstream) ([]SourceFile, error) {
	var out []SourceFile
	for _, a := range up.Artifacts {
		if a.Kind != ArtifactExpanded && a.Kind != ArtifactGenerated {
			continue
		}
		kind, ok := cfg.Classify(filepath.Base(a.Path))
		if !ok || kind == KindTemplate || kind == KindGenerator {
			continue
		}

		mtime, exists, err := fsys.ModTime(a.Path)
		if err != nil {
			return nil, &StaleCheckError{Path: a.Path, Err: err}
		}
		if !exists && !up.WasRebuilt(a.Path) {
			continue
		}

		out = append(out, SourceFile{
			Path:    a.Path,
			Root:    filepath.Clean(cfg.OutputRoot),
			Rel:     a.Rel,
			Kind:    kind,
			ModTime: mtime,
			Origin:  a.Source,
		})
	}
	sortSources(out)
	return out, nil
}

// MergeDerived adds derived sources to discovered ones. A derived source
// shadows a discovered source of the same kind and relative path, the way an
// expanded template replaces the file it is named after.
func MergeDerived(discovered, derived []SourceFile) []SourceFile {
	shadowed := make(map[string]bool, len(derived))
	for _, d := range derived {
		shadowed[string(d.Kind)+"\x00"+d.Rel] = true
	}

	out := make([]SourceFile, 0, len(discovered)+len(derived))
	for _, s := range discovered {
		if !shadowed[string(s.Kind)+"\x00"+s.Rel] {
			out = append(out, s)
		}
	}
	out = append(out, derived...)
	sortSources(out)
	return out
}
