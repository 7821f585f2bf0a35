package planner

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

// Kind classifies a source file.
type Kind string

const (
	KindTemplate    Kind = "template"
	KindVectorImage Kind = "vector-image"
	KindDiagram     Kind = "diagram"
	KindDocument    Kind = "document"
	KindIndex       Kind = "index"

	// KindGenerator is a gen file listing generated files, one per line.
	KindGenerator Kind = "generator"
)

// Kinds lists every recognized source kind.
var Kinds = []Kind{KindTemplate, KindVectorImage, KindDiagram, KindDocument, KindIndex, KindGenerator}

// ParseKind converts a configuration string into a Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if !slices.Contains(Kinds, k) {
		return "", fmt.Errorf("unknown source kind %q", s)
	}
	return k, nil
}

// ArtifactKind classifies a derived output. The artifact kind fixes the tier
// that produces it.
type ArtifactKind string

const (
	ArtifactExpanded  ArtifactKind = "expanded"
	ArtifactGenerated ArtifactKind = "generated"
	ArtifactImage     ArtifactKind = "image"
	ArtifactIndex     ArtifactKind = "index"
	ArtifactRendered  ArtifactKind = "rendered-document"
	ArtifactExported  ArtifactKind = "exported-document"
)

// ArtifactKinds lists every recognized artifact kind.
var ArtifactKinds = []ArtifactKind{ArtifactExpanded, ArtifactGenerated, ArtifactImage, ArtifactIndex, ArtifactRendered, ArtifactExported}

// IndexFormatSphinx is the format of link files read by every rendered
// document. Index artifacts of other formats only feed rules of that format.
const IndexFormatSphinx = "sphinx"

// ParseArtifactKind converts a configuration string into an ArtifactKind.
func ParseArtifactKind(s string) (ArtifactKind, error) {
	k := ArtifactKind(strings.ToLower(strings.TrimSpace(s)))
	if !slices.Contains(ArtifactKinds, k) {
		return "", fmt.Errorf("unknown artifact kind %q", s)
	}
	return k, nil
}

// Tier returns the tier that produces artifacts of kind k.
func (k ArtifactKind) Tier() Tier {
	switch k {
	case ArtifactExpanded, ArtifactGenerated:
		return TierTemplates
	case ArtifactImage:
		return TierImages
	case ArtifactIndex:
		return TierIndex
	default:
		return TierFinal
	}
}

// Tier is an ordered build stage.
type Tier int

const (
	TierTemplates Tier = iota
	TierImages
	TierIndex
	TierFinal
)

// Tiers lists the tiers in execution order.
var Tiers = []Tier{TierTemplates, TierImages, TierIndex, TierFinal}

var tierNames = map[Tier]string{
	TierTemplates: "templates",
	TierImages:    "images",
	TierIndex:     "index",
	TierFinal:     "final",
}

func (t Tier) String() string {
	if name, ok := tierNames[t]; ok {
		return name
	}
	return fmt.Sprintf("tier(%d)", int(t))
}

// ParseTier converts a tier name into a Tier.
func ParseTier(s string) (Tier, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for t, n := range tierNames {
		if n == name {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown tier %q (expected templates, images, index or final)", s)
}

// KindRule assigns Kind to files whose base name matches Pattern.
type KindRule struct {
	Pattern string
	Kind    Kind
}

// Matches reports whether base matches the rule's pattern.
func (r KindRule) Matches(base string) bool {
	ok, err := filepath.Match(r.Pattern, base)
	return err == nil && ok
}

// DerivationRule describes how one artifact is derived from a source kind.
//
// Target is a slash-separated pattern relative to the output root; it may use
// {dir}, {base}, {stem}, {ext}, {format} and {name}. Command is an argv
// template handed to the invoker; an empty Command means the invoker's
// default.
type DerivationRule struct {
	Name     string
	Kind     Kind
	Artifact ArtifactKind
	Format   string
	Target   string
	Command  []string
}

// Tier returns the tier the rule runs in.
func (r DerivationRule) Tier() Tier {
	return r.Artifact.Tier()
}

// SourceFile is an input discovered under a root.
type SourceFile struct {
	// Path is the absolute path of the file.
	Path string

	// Root is the directory Path was discovered under. Derived sources live
	// under the output root.
	Root string

	// Rel is Path relative to Root.
	Rel string

	Kind    Kind
	ModTime time.Time

	// Origin is the template or generator input a derived source was built
	// from; empty for discovered sources.
	Origin string
}

// Derived reports whether the source was produced by an earlier tier.
func (s SourceFile) Derived() bool {
	return s.Origin != ""
}

// Artifact is a derived output known to the planner.
type Artifact struct {
	// Path is the absolute target path.
	Path string

	// Rel is Path relative to the output root.
	Rel string

	Kind   ArtifactKind
	Tier   Tier
	Rule   string
	Format string

	// Source is the path of the source the artifact is built from.
	Source string

	// Scope is the directory of the source relative to its root. Index
	// artifacts cover every source in this subtree.
	Scope string

	ModTime time.Time
	Exists  bool
}

// Catalog maps each kind to its sources ordered by path.
type Catalog map[Kind][]SourceFile

// Count returns the number of sources across all kinds.
func (c Catalog) Count() int {
	n := 0
	for _, srcs := range c {
		n += len(srcs)
	}
	return n
}

// Sources returns the sources of the given kinds merged and ordered by path.
func (c Catalog) Sources(kinds ...Kind) []SourceFile {
	var out []SourceFile
	for _, k := range kinds {
		out = append(out, c[k]...)
	}
	sortSources(out)
	return out
}

func sortSources(srcs []SourceFile) {
	slices.SortStableFunc(srcs, func(a, b SourceFile) int {
		return strings.Compare(a.Path, b.Path)
	})
}
