package planner

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danieljhkim/docplan/internal/fsops"
	"github.com/danieljhkim/docplan/internal/scan"
)

func imageStage(t *testing.T, cfg *Config) (Stage, []SourceFile) {
	t.Helper()
	catalog, err := Discover(fsops.NewRealFS(), cfg)
	require.NoError(t, err)
	stage := StageFor(cfg, TierImages, Selector{})
	return stage, catalog.Sources(stage.Kinds()...)
}

func TestPlanStage_MissingArtifactIsPlanned(t *testing.T) {
	cfg := newTestConfig(t)
	writeFile(t, filepath.Join(cfg.SourceRoot, "a.dot"), "", t0)
	writeFile(t, filepath.Join(cfg.SourceRoot, "guide", "b.svg"), "", t0)

	stage, sources := imageStage(t, cfg)
	plan, err := PlanStage(fsops.NewRealFS(), cfg, nil, stage, sources, nil)
	require.NoError(t, err)

	require.Len(t, plan.Items, 2)
	assert.Equal(t, filepath.Join(cfg.OutputRoot, "a.png"), plan.Items[0].Target)
	assert.Equal(t, filepath.Join(cfg.OutputRoot, "guide", "b.png"), plan.Items[1].Target)
	for _, it := range plan.Items {
		assert.Equal(t, ReasonMissing, it.Reason)
	}
	require.Len(t, plan.Artifacts, 2)
	assert.False(t, plan.Artifacts[0].Exists)
	assert.Equal(t, "a.png", plan.Artifacts[0].Rel)
	assert.Equal(t, TierImages, plan.Artifacts[0].Tier)
}

func TestPlanStage_TimestampPolicy(t *testing.T) {
	tests := []struct {
		name         string
		target       time.Time
		staleOnEqual bool
		wantPlanned  bool
	}{
		{"source newer", t0.Add(-time.Second), false, true},
		{"equal is fresh", t0, false, false},
		{"equal is stale when configured", t0, true, true},
		{"target newer", t0.Add(time.Second), false, false},
		{"target newer with stale on equal", t0.Add(time.Second), true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := newTestConfig(t)
			cfg.StaleOnEqual = tt.staleOnEqual
			writeFile(t, filepath.Join(cfg.SourceRoot, "a.dot"), "", t0)
			writeFile(t, filepath.Join(cfg.OutputRoot, "a.png"), "", tt.target)

			stage, sources := imageStage(t, cfg)
			plan, err := PlanStage(fsops.NewRealFS(), cfg, nil, stage, sources, nil)
			require.NoError(t, err)

			if tt.wantPlanned {
				require.Len(t, plan.Items, 1)
				assert.Equal(t, ReasonSourceChanged, plan.Items[0].Reason)
			} else {
				assert.Empty(t, plan.Items)
			}
			assert.Len(t, plan.Artifacts, 1)
		})
	}
}

func TestPlanStage_Idempotent(t *testing.T) {
	cfg := newTestConfig(t)
	writeFile(t, filepath.Join(cfg.SourceRoot, "a.dot"), "", t0)
	writeFile(t, filepath.Join(cfg.SourceRoot, "b.dot"), "", t0.Add(time.Minute))
	writeFile(t, filepath.Join(cfg.OutputRoot, "b.png"), "", t0)

	fsys := fsops.NewRealFS()
	stage, sources := imageStage(t, cfg)

	first, err := PlanStage(fsys, cfg, nil, stage, sources, nil)
	require.NoError(t, err)
	second, err := PlanStage(fsys, cfg, nil, stage, sources, nil)
	require.NoError(t, err)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("plans differ (-first +second):\n%s", diff)
	}
	assert.Len(t, first.Items, 2)
}

func TestPlanStage_IncludedFileChanged(t *testing.T) {
	cfg := newTestConfig(t)
	doc := filepath.Join(cfg.SourceRoot, "a.rest")
	part := filepath.Join(cfg.SourceRoot, "part.rst")
	writeFile(t, doc, ".. include:: part.rst\n", t0)
	writeFile(t, part, "", t0.Add(2*time.Second))
	writeFile(t, filepath.Join(cfg.OutputRoot, "html", "a.html"), "", t0.Add(time.Second))

	fsys := fsops.NewRealFS()
	stage := StageFor(cfg, TierFinal, Selector{Formats: []string{"html"}})
	sources := []SourceFile{{Path: doc, Root: cfg.SourceRoot, Rel: "a.rest", Kind: KindDocument, ModTime: t0}}

	plan, err := PlanStage(fsys, cfg, scan.NewRSTScanner(fsys, nil), stage, sources, nil)
	require.NoError(t, err)

	require.Len(t, plan.Items, 1)
	assert.Equal(t, ReasonDependencyChanged, plan.Items[0].Reason)
	assert.Equal(t, part, plan.Items[0].Cause)

	// Without a scanner the include is invisible.
	plan, err = PlanStage(fsys, cfg, nil, stage, sources, nil)
	require.NoError(t, err)
	assert.Empty(t, plan.Items)
}

func TestPlanStage_IndexRebuildInvalidatesCoveredDocuments(t *testing.T) {
	cfg := newTestConfig(t)
	src, out := cfg.SourceRoot, cfg.OutputRoot
	writeFile(t, filepath.Join(src, "guide", "index.rest"), "", t0)
	writeFile(t, filepath.Join(src, "guide", "b.rest"), "", t0)
	writeFile(t, filepath.Join(src, "other", "c.rest"), "", t0)
	writeFile(t, filepath.Join(out, "guide", "_links.rst"), "", t0.Add(time.Second))
	for _, p := range []string{"guide/index.html", "guide/b.html", "other/c.html"} {
		writeFile(t, filepath.Join(out, "html", filepath.FromSlash(p)), "", t0.Add(time.Minute))
	}

	fsys := fsops.NewRealFS()
	catalog, err := Discover(fsys, cfg)
	require.NoError(t, err)

	indexStage := StageFor(cfg, TierIndex, Selector{})
	indexPlan, err := PlanStage(fsys, cfg, nil, indexStage, catalog.Sources(indexStage.Kinds()...), nil)
	require.NoError(t, err)
	require.Empty(t, indexPlan.Items, "index is fresh on disk")
	require.Len(t, indexPlan.Artifacts, 1)
	assert.Equal(t, "guide", indexPlan.Artifacts[0].Scope)

	finalStage := StageFor(cfg, TierFinal, Selector{Formats: []string{"html"}})
	finalSources := catalog.Sources(finalStage.Kinds()...)

	t.Run("index fresh", func(t *testing.T) {
		up := NewUpstream()
		up.Advance(indexPlan, nil)
		plan, err := PlanStage(fsys, cfg, nil, finalStage, finalSources, up)
		require.NoError(t, err)
		assert.Empty(t, plan.Items)
	})

	t.Run("index rebuilt", func(t *testing.T) {
		up := NewUpstream()
		up.Advance(indexPlan, []string{filepath.Join(out, "guide", "_links.rst")})
		plan, err := PlanStage(fsys, cfg, nil, finalStage, finalSources, up)
		require.NoError(t, err)

		var got []string
		for _, it := range plan.Items {
			got = append(got, filepath.ToSlash(it.Source.Rel))
			assert.Equal(t, ReasonUpstreamRebuilt, it.Reason)
		}
		// other/c.rest lies outside the index scope.
		assert.Equal(t, []string{"guide/b.rest", "guide/index.rest"}, got)
	})
}

func TestPlanStage_ReferencedImageNewer(t *testing.T) {
	cfg := newTestConfig(t)
	src, out := cfg.SourceRoot, cfg.OutputRoot
	writeFile(t, filepath.Join(src, "a.rest"), ".. image:: img/a.png\n", t0)
	writeFile(t, filepath.Join(src, "img", "a.dot"), "", t0)
	writeFile(t, filepath.Join(out, "img", "a.png"), "", t0.Add(2*time.Minute))
	writeFile(t, filepath.Join(out, "html", "a.html"), "", t0.Add(time.Minute))

	fsys := fsops.NewRealFS()
	scanner := scan.NewRSTScanner(fsys, nil)
	catalog, err := Discover(fsys, cfg)
	require.NoError(t, err)

	up := NewUpstream()
	images := StageFor(cfg, TierImages, Selector{})
	imagePlan, err := PlanStage(fsys, cfg, scanner, images, catalog.Sources(images.Kinds()...), up)
	require.NoError(t, err)
	require.Empty(t, imagePlan.Items)
	up.Advance(imagePlan, nil)

	final := StageFor(cfg, TierFinal, Selector{Formats: []string{"html"}})
	plan, err := PlanStage(fsys, cfg, scanner, final, catalog.Sources(final.Kinds()...), up)
	require.NoError(t, err)

	require.Len(t, plan.Items, 1)
	assert.Equal(t, ReasonUpstreamNewer, plan.Items[0].Reason)
	assert.Equal(t, filepath.Join(out, "img", "a.png"), plan.Items[0].Cause)
}

func TestPlanStage_TargetConflict(t *testing.T) {
	cfg := newTestConfig(t)
	writeFile(t, filepath.Join(cfg.SourceRoot, "a.dot"), "", t0)
	writeFile(t, filepath.Join(cfg.SourceRoot, "a.svg"), "", t0)

	stage, sources := imageStage(t, cfg)
	_, err := PlanStage(fsops.NewRealFS(), cfg, nil, stage, sources, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTargetConflict))
}

func TestPlanStage_TargetOutsideOutputRoot(t *testing.T) {
	cfg := newTestConfig(t)
	writeFile(t, filepath.Join(cfg.SourceRoot, "a.dot"), "", t0)
	for i := range cfg.Rules {
		if cfg.Rules[i].Name == "dot" {
			cfg.Rules[i].Target = "{dir}/../{stem}.png"
		}
	}

	stage, sources := imageStage(t, cfg)
	_, err := PlanStage(fsops.NewRealFS(), cfg, nil, stage, sources, nil)
	assert.ErrorIs(t, err, ErrTargetOutside)
}

func TestPlanStage_ScanFailureIsStaleCheckError(t *testing.T) {
	cfg := newTestConfig(t)
	doc := filepath.Join(cfg.SourceRoot, "a.rest")
	writeFile(t, doc, "", t0)

	scanner := &fakeScanner{err: errors.New("permission denied")}
	stage := StageFor(cfg, TierFinal, Selector{})
	sources := []SourceFile{{Path: doc, Root: cfg.SourceRoot, Rel: "a.rest", Kind: KindDocument, ModTime: t0}}

	_, err := PlanStage(fsops.NewRealFS(), cfg, scanner, stage, sources, nil)
	var se *StaleCheckError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, doc, se.Path)
	assert.ErrorIs(t, err, ErrStaleCheck)
}

func TestPlanStage_DerivedSourceRebuilt(t *testing.T) {
	cfg := newTestConfig(t)
	out := cfg.OutputRoot
	expanded := filepath.Join(out, "table.rest")
	writeFile(t, expanded, "", t0)
	writeFile(t, filepath.Join(out, "html", "table.html"), "", t0.Add(time.Minute))

	derived := SourceFile{
		Path: expanded, Root: out, Rel: "table.rest", Kind: KindDocument,
		ModTime: t0, Origin: "/src/table.rest.stpl",
	}
	stage := StageFor(cfg, TierFinal, Selector{Formats: []string{"html"}})
	fsys := fsops.NewRealFS()

	plan, err := PlanStage(fsys, cfg, nil, stage, []SourceFile{derived}, NewUpstream())
	require.NoError(t, err)
	assert.Empty(t, plan.Items)

	up := NewUpstream()
	templates := NewPlan(TierTemplates)
	templates.AddArtifact(Artifact{Path: expanded, Rel: "table.rest", Kind: ArtifactExpanded})
	up.Advance(templates, []string{expanded})

	plan, err = PlanStage(fsys, cfg, nil, stage, []SourceFile{derived}, up)
	require.NoError(t, err)
	require.Len(t, plan.Items, 1)
	assert.Equal(t, ReasonUpstreamRebuilt, plan.Items[0].Reason)
	assert.Equal(t, filepath.Join(out, "html", "table.html"), plan.Items[0].Target)
}

func TestPlanStage_UnbuiltDerivedSourceIsNotScanned(t *testing.T) {
	cfg := newTestConfig(t)
	expanded := filepath.Join(cfg.OutputRoot, "table.rest")
	derived := SourceFile{
		Path: expanded, Root: cfg.OutputRoot, Rel: "table.rest", Kind: KindDocument,
		Origin: filepath.Join(cfg.SourceRoot, "table.rest.stpl"),
	}

	up := NewUpstream()
	templates := NewPlan(TierTemplates)
	templates.AddArtifact(Artifact{Path: expanded, Rel: "table.rest", Kind: ArtifactExpanded})
	up.Advance(templates, []string{expanded})

	scanner := &fakeScanner{err: errors.New("no such file or directory")}
	stage := StageFor(cfg, TierFinal, Selector{Formats: []string{"html"}})
	plan, err := PlanStage(fsops.NewRealFS(), cfg, scanner, stage, []SourceFile{derived}, up)
	require.NoError(t, err)
	require.Len(t, plan.Items, 1)
	assert.Equal(t, ReasonMissing, plan.Items[0].Reason)

	// Once the expansion exists it is scanned like any other document.
	writeFile(t, expanded, "", t0)
	_, err = PlanStage(fsops.NewRealFS(), cfg, scanner, stage, []SourceFile{derived}, up)
	assert.ErrorIs(t, err, ErrStaleCheck)
}

func TestServes(t *testing.T) {
	html := DerivationRule{Name: "html", Artifact: ArtifactRendered, Format: "html"}
	pdf := DerivationRule{Name: "pdf", Artifact: ArtifactExported, Format: "pdf"}
	tests := []struct {
		format string
		rule   DerivationRule
		want   bool
	}{
		{"", html, true},
		{"", pdf, true},
		{IndexFormatSphinx, html, true},
		{IndexFormatSphinx, pdf, false},
		{"pdf", pdf, true},
		{"pdf", html, false},
		{"docx", pdf, false},
		{"tags", html, false},
	}
	for _, tt := range tests {
		if got := serves(Artifact{Kind: ArtifactIndex, Format: tt.format}, tt.rule); got != tt.want {
			t.Errorf("serves(%q, %s) = %v, want %v", tt.format, tt.rule.Name, got, tt.want)
		}
	}
}

// Each link file invalidates only the documents of its own format.
func TestPlanStage_IndexFormatsInvalidateTheirRules(t *testing.T) {
	cfg := newTestConfig(t)
	src, out := cfg.SourceRoot, cfg.OutputRoot
	cfg.Rules = []DerivationRule{
		{Name: "links-sphinx", Kind: KindIndex, Artifact: ArtifactIndex, Format: IndexFormatSphinx, Target: "{dir}/_links_sphinx.rst"},
		{Name: "links-pdf", Kind: KindIndex, Artifact: ArtifactIndex, Format: "pdf", Target: "{dir}/_links_pdf.rst"},
		{Name: "tags", Kind: KindIndex, Artifact: ArtifactIndex, Format: "tags", Target: "{dir}/.tags"},
		{Name: "html", Kind: KindDocument, Artifact: ArtifactRendered, Format: "html", Target: "html/{dir}/{stem}.html"},
		{Name: "pdf", Kind: KindDocument, Artifact: ArtifactExported, Format: "pdf", Target: "pdf/{dir}/{stem}.pdf"},
	}
	require.NoError(t, cfg.Validate())

	writeFile(t, filepath.Join(src, "index.rest"), "", t0)
	writeFile(t, filepath.Join(src, "a.rest"), "", t0)
	for _, rel := range []string{"_links_sphinx.rst", "_links_pdf.rst", ".tags"} {
		writeFile(t, filepath.Join(out, rel), "", t0.Add(time.Second))
	}
	writeFile(t, filepath.Join(out, "html", "a.html"), "", t0.Add(time.Minute))
	writeFile(t, filepath.Join(out, "pdf", "a.pdf"), "", t0.Add(time.Minute))

	fsys := fsops.NewRealFS()
	catalog, err := Discover(fsys, cfg)
	require.NoError(t, err)
	indexStage := StageFor(cfg, TierIndex, Selector{})
	indexPlan, err := PlanStage(fsys, cfg, nil, indexStage, catalog.Sources(indexStage.Kinds()...), nil)
	require.NoError(t, err)
	require.Len(t, indexPlan.Artifacts, 3)

	final := StageFor(cfg, TierFinal, Selector{})
	tests := []struct {
		rebuilt string
		want    []string
	}{
		{"_links_sphinx.rst", []string{"html"}},
		{"_links_pdf.rst", []string{"pdf"}},
		{".tags", nil},
	}
	for _, tt := range tests {
		t.Run(tt.rebuilt, func(t *testing.T) {
			up := NewUpstream()
			up.Advance(indexPlan, []string{filepath.Join(out, tt.rebuilt)})
			plan, err := PlanStage(fsys, cfg, nil, final, catalog.Sources(KindDocument), up)
			require.NoError(t, err)

			var got []string
			for _, it := range plan.Items {
				got = append(got, it.Rule.Name)
				assert.Equal(t, filepath.Join(out, tt.rebuilt), it.Cause)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCovers(t *testing.T) {
	tests := []struct {
		scope, dir string
		want       bool
	}{
		{".", ".", true},
		{".", "guide", true},
		{"guide", "guide", true},
		{"guide", filepath.Join("guide", "deep"), true},
		{"guide", ".", false},
		{"guide", "guidebook", false},
		{"guide", "other", false},
	}
	for _, tt := range tests {
		if got := covers(tt.scope, tt.dir); got != tt.want {
			t.Errorf("covers(%q, %q) = %v, want %v", tt.scope, tt.dir, got, tt.want)
		}
	}
}

// Scenario: a.dot renders to a.png which a.rest references.
func TestBuild_DiagramAndDocumentScenario(t *testing.T) {
	cfg := newTestConfig(t)
	src, out := cfg.SourceRoot, cfg.OutputRoot
	writeFile(t, filepath.Join(src, "a.dot"), "digraph { a -> b }\n", t0)
	writeFile(t, filepath.Join(src, "a.rest"), "A\n=\n\n.. image:: a.png\n", t0)

	html := Selector{Formats: []string{"html"}}
	r := newFakeRenderer(t0.Add(24 * time.Hour))

	first := runTiers(t, cfg, r, html, TierFinal)
	assert.Equal(t, []string{
		filepath.Join(out, "a.png"),
		filepath.Join(out, "html", "a.html"),
	}, r.reset())
	assert.Len(t, first[TierImages], 1)
	assert.Len(t, first[TierFinal], 1)

	runTiers(t, cfg, r, html, TierFinal)
	assert.Empty(t, r.reset(), "second run with no changes rebuilds nothing")

	// Touch a.dot past the renderer's clock: the image and, transitively,
	// the document rebuild.
	touch(t, filepath.Join(src, "a.dot"), t0.Add(48*time.Hour))
	third := runTiers(t, cfg, r, html, TierFinal)
	assert.Equal(t, []string{filepath.Join(out, "a.png")}, third[TierImages])
	assert.Equal(t, []string{filepath.Join(out, "html", "a.html")}, third[TierFinal])
	assert.Len(t, r.reset(), 2)
}

func TestBuild_TemplateFeedsFinalTier(t *testing.T) {
	cfg := newTestConfig(t)
	src, out := cfg.SourceRoot, cfg.OutputRoot
	writeFile(t, filepath.Join(src, "guide", "table.rest.stpl"), "", t0)

	r := newFakeRenderer(t0.Add(time.Hour))
	invoked := runTiers(t, cfg, r, Selector{Formats: []string{"html"}}, TierFinal)

	assert.Equal(t, []string{filepath.Join(out, "guide", "table.rest")}, invoked[TierTemplates])
	assert.Equal(t, []string{filepath.Join(out, "html", "guide", "table.html")}, invoked[TierFinal])
}
