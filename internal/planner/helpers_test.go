package planner

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/danieljhkim/docplan/internal/fsops"
	"github.com/danieljhkim/docplan/internal/scan"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestConfig(t *testing.T) *Config {
	t.Helper()
	return &Config{
		SourceRoot: t.TempDir(),
		OutputRoot: t.TempDir(),
		Kinds: []KindRule{
			{Pattern: "gen", Kind: KindGenerator},
			{Pattern: "*.stpl", Kind: KindTemplate},
			{Pattern: "*.svg", Kind: KindVectorImage},
			{Pattern: "*.dot", Kind: KindDiagram},
			{Pattern: "index.rest", Kind: KindIndex},
			{Pattern: "*.rest", Kind: KindDocument},
		},
		Rules: []DerivationRule{
			{Name: "expand", Kind: KindTemplate, Artifact: ArtifactExpanded, Target: "{dir}/{stem}"},
			{Name: "svg", Kind: KindVectorImage, Artifact: ArtifactImage, Target: "{dir}/{stem}.png"},
			{Name: "dot", Kind: KindDiagram, Artifact: ArtifactImage, Target: "{dir}/{stem}.png"},
			{Name: "links", Kind: KindIndex, Artifact: ArtifactIndex, Target: "{dir}/_links.rst"},
			{Name: "html", Kind: KindDocument, Artifact: ArtifactRendered, Format: "html", Target: "html/{dir}/{stem}.html"},
			{Name: "pdf", Kind: KindDocument, Artifact: ArtifactExported, Format: "pdf", Target: "pdf/{dir}/{stem}.pdf"},
			{Name: "html-index", Kind: KindIndex, Artifact: ArtifactRendered, Format: "html", Target: "html/{dir}/index.html"},
		},
		Exclude: []string{"_links*"},
	}
}

// writeFile creates path with content and sets its modification time.
func writeFile(t *testing.T, path, content string, mtime time.Time) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("failed to create dir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
	touch(t, path, mtime)
}

func touch(t *testing.T, path string, mtime time.Time) {
	t.Helper()
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatalf("failed to set times on %s: %v", path, err)
	}
}

// fakeRenderer writes each target with a timestamp one second after the
// previous invocation and records the targets it was asked to build.
type fakeRenderer struct {
	mu    sync.Mutex
	now   time.Time
	calls []string
	fail  map[string]bool
}

func newFakeRenderer(start time.Time) *fakeRenderer {
	return &fakeRenderer{now: start, fail: make(map[string]bool)}
}

func (r *fakeRenderer) Invoke(_ context.Context, item Item) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls = append(r.calls, item.Target)
	if r.fail[item.Target] {
		return &RenderError{ExitCode: 1, Stderr: "boom"}
	}
	r.now = r.now.Add(time.Second)
	if err := os.MkdirAll(filepath.Dir(item.Target), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(item.Target, []byte("built from "+item.Source.Path), 0o644); err != nil {
		return err
	}
	return os.Chtimes(item.Target, r.now, r.now)
}

func (r *fakeRenderer) reset() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	calls := r.calls
	r.calls = nil
	return calls
}

type fakeScanner struct {
	results map[string]*scan.Result
	err     error
}

func (s *fakeScanner) Scan(path string) (*scan.Result, error) {
	if s.err != nil {
		return nil, s.err
	}
	if res, ok := s.results[path]; ok {
		return res, nil
	}
	return &scan.Result{}, nil
}

// runTiers plans and executes every tier up to last the way a build does,
// returning the targets invoked per tier.
func runTiers(t *testing.T, cfg *Config, inv Invoker, sel Selector, last Tier) map[Tier][]string {
	t.Helper()
	fsys := fsops.NewRealFS()
	scanner := scan.NewRSTScanner(fsys, nil)

	catalog, err := Discover(fsys, cfg)
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}

	invoked := make(map[Tier][]string)
	up := NewUpstream()
	for _, tier := range Tiers {
		if tier > last {
			break
		}
		stage := StageFor(cfg, tier, sel)
		sources := catalog.Sources(stage.Kinds()...)
		if tier > TierTemplates {
			derived, err := DerivedSources(fsys, cfg, up)
			if err != nil {
				t.Fatalf("DerivedSources() error = %v", err)
			}
			sources = MergeDerived(sources, derived)
		}

		plan, err := PlanStage(fsys, cfg, scanner, stage, sources, up)
		if err != nil {
			t.Fatalf("PlanStage(%s) error = %v", tier, err)
		}
		report, err := Execute(context.Background(), plan, inv, ExecOptions{})
		if err != nil {
			t.Fatalf("Execute(%s) error = %v", tier, err)
		}
		for _, r := range report.Results {
			invoked[tier] = append(invoked[tier], r.Item.Target)
		}
		up.Advance(plan, report.Succeeded())
	}
	return invoked
}
