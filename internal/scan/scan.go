// Package scan extracts file dependencies from reStructuredText sources.
//
// A document depends on the files it includes (followed recursively) and
// references the files named by image, figure and substitution image
// directives. Includes of generated link files (names starting with
// "_links") are reported as references only; they are index artifacts
// and following them would make every document depend on itself.
package scan

import (
	"bufio"
	"bytes"
	"fmt"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/danieljhkim/docplan/internal/fsops"
)

// DefaultExtensions lists the extensions scanned when none are configured.
var DefaultExtensions = []string{".rest", ".rst", ".stpl"}

// TemplateSuffix marks a template; an include of "x.rest" that does not exist
// falls back to "x.rest.stpl".
const TemplateSuffix = ".stpl"

// LinksPrefix names generated index files.
const LinksPrefix = "_links"

var (
	includeRe  = regexp.MustCompile(`^\.\.\s+include::\s+(\S+)`)
	imageRe    = regexp.MustCompile(`^\.\.\s+(?:\|[^|]+\|\s+)?(?:image|figure)::\s+(\S+)`)
	toctreeRe  = regexp.MustCompile(`^\.\.\s+toctree::`)
	tocEntryRe = regexp.MustCompile(`<([^>]+)>\s*$`)
)

// Result holds the dependencies of one document. Paths are absolute and
// listed in order of first appearance.
type Result struct {
	// Includes are files whose content becomes part of the document.
	Includes []string

	// References are every path named by the document or its includes.
	References []string
}

func (r *Result) addInclude(p string) {
	if !slices.Contains(r.Includes, p) {
		r.Includes = append(r.Includes, p)
	}
}

func (r *Result) addReference(p string) {
	if !slices.Contains(r.References, p) {
		r.References = append(r.References, p)
	}
}

// RSTScanner scans reStructuredText documents.
type RSTScanner struct {
	fs         fsops.FS
	extensions []string
}

// NewRSTScanner creates a scanner reading through fs. Files whose extension
// is not in extensions yield an empty result.
func NewRSTScanner(fs fsops.FS, extensions []string) *RSTScanner {
	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}
	exts := make([]string, len(extensions))
	for i, e := range extensions {
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		exts[i] = strings.ToLower(e)
	}
	return &RSTScanner{fs: fs, extensions: exts}
}

// Handles reports whether path has a scanned extension.
func (s *RSTScanner) Handles(path string) bool {
	return slices.Contains(s.extensions, strings.ToLower(filepath.Ext(path)))
}

// Scan returns the dependencies of the document at path. It fails when path
// or an existing include cannot be read; missing includes are kept as
// references and otherwise ignored.
func (s *RSTScanner) Scan(path string) (*Result, error) {
	res := &Result{Includes: []string{}, References: []string{}}
	if !s.Handles(path) {
		return res, nil
	}
	visited := map[string]bool{filepath.Clean(path): true}
	if err := s.scanFile(filepath.Clean(path), res, visited); err != nil {
		return nil, err
	}
	return res, nil
}

func (s *RSTScanner) scanFile(path string, res *Result, visited map[string]bool) error {
	data, err := s.fs.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	dir := filepath.Dir(path)

	inToctree := false
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()

		if inToctree {
			if line == "" || strings.TrimSpace(line) == "" {
				continue
			}
			if line[0] == ' ' || line[0] == '\t' {
				if err := s.tocEntry(dir, strings.TrimSpace(line), res, visited); err != nil {
					return err
				}
				continue
			}
			inToctree = false
		}

		if toctreeRe.MatchString(line) {
			inToctree = true
			continue
		}
		if m := includeRe.FindStringSubmatch(line); m != nil {
			if err := s.include(dir, m[1], res, visited); err != nil {
				return err
			}
			continue
		}
		if m := imageRe.FindStringSubmatch(line); m != nil {
			res.addReference(resolve(dir, m[1]))
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("failed to scan %s: %w", path, err)
	}
	return nil
}

func (s *RSTScanner) include(dir, name string, res *Result, visited map[string]bool) error {
	target := resolve(dir, name)
	res.addReference(target)
	if strings.HasPrefix(filepath.Base(target), LinksPrefix) {
		return nil
	}

	found, err := s.locate(target)
	if err != nil || found == "" {
		return err
	}
	return s.follow(found, res, visited)
}

func (s *RSTScanner) tocEntry(dir, entry string, res *Result, visited map[string]bool) error {
	// Options such as ":maxdepth: 2".
	if strings.HasPrefix(entry, ":") {
		return nil
	}
	if m := tocEntryRe.FindStringSubmatch(entry); m != nil {
		entry = m[1]
	}
	// Absolute entries and URLs are resolved by the documentation builder.
	if strings.HasPrefix(entry, "/") || strings.Contains(entry, "://") || entry == "self" {
		return nil
	}

	target := resolve(dir, entry)
	candidates := []string{target}
	if filepath.Ext(target) == "" {
		candidates = candidates[:0]
		for _, ext := range s.extensions {
			if ext != TemplateSuffix {
				candidates = append(candidates, target+ext)
			}
		}
	}
	for _, c := range candidates {
		found, err := s.locate(c)
		if err != nil {
			return err
		}
		if found != "" {
			res.addReference(c)
			return s.follow(found, res, visited)
		}
	}
	return nil
}

// locate returns path, or its template when only the template exists, or ""
// when neither exists.
func (s *RSTScanner) locate(path string) (string, error) {
	for _, p := range []string{path, path + TemplateSuffix} {
		ok, err := s.fs.Exists(p)
		if err != nil {
			return "", fmt.Errorf("failed to stat %s: %w", p, err)
		}
		if ok {
			return p, nil
		}
	}
	return "", nil
}

func (s *RSTScanner) follow(path string, res *Result, visited map[string]bool) error {
	if visited[path] {
		return nil
	}
	visited[path] = true
	res.addInclude(path)
	if !s.Handles(path) {
		return nil
	}
	return s.scanFile(path, res, visited)
}

func resolve(dir, name string) string {
	name = filepath.FromSlash(strings.Trim(name, `"'`))
	if filepath.IsAbs(name) {
		return filepath.Clean(name)
	}
	return filepath.Join(dir, name)
}
