package planner

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danieljhkim/docplan/internal/fsops"
)

func TestParseGenFile(t *testing.T) {
	data := []byte(`# from | to | generator | args
data/tables.csv | tables.rst | csvtable | --header 1

bad line without fields
model.py | api.rest | pydoc |
 | missing-from.rst | x |
`)
	got := ParseGenFile(data)
	want := []Generation{
		{Line: 2, From: filepath.Join("data", "tables.csv"), To: "tables.rst", Generator: "csvtable", Args: []string{"--header", "1"}},
		{Line: 5, From: "model.py", To: "api.rest", Generator: "pydoc", Args: []string{}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ParseGenFile() mismatch (-want +got):\n%s", diff)
	}
}

func TestGeneration_Rule(t *testing.T) {
	r := Generation{From: "a.csv", To: "sub/a.rst", Generator: "csvtable"}.Rule()
	assert.Equal(t, "gen:csvtable", r.Name)
	assert.Equal(t, ArtifactGenerated, r.Artifact)
	assert.Equal(t, TierTemplates, r.Tier())
	assert.Empty(t, r.Command)

	r = Generation{From: "a.csv", To: "a.rst", Generator: "csvtable", Args: []string{"--header"}}.Rule()
	assert.Equal(t, []string{"{renderer}", "{format}", "{source}", "{target}", "--header"}, r.Command)
}

func templateStage(t *testing.T, cfg *Config) (Stage, []SourceFile) {
	t.Helper()
	catalog, err := Discover(fsops.NewRealFS(), cfg)
	require.NoError(t, err)
	stage := StageFor(cfg, TierTemplates, Selector{})
	return stage, catalog.Sources(stage.Kinds()...)
}

func TestPlanStage_GenFile(t *testing.T) {
	cfg := newTestConfig(t)
	src, out := cfg.SourceRoot, cfg.OutputRoot
	gen := filepath.Join(src, "guide", "gen")
	input := filepath.Join(src, "guide", "tables.csv")
	target := filepath.Join(out, "guide", "tables.rst")
	writeFile(t, gen, "tables.csv | tables.rst | csvtable |\n", t0)
	writeFile(t, input, "a,b\n", t0)
	fsys := fsops.NewRealFS()

	stage, sources := templateStage(t, cfg)
	plan, err := PlanStage(fsys, cfg, nil, stage, sources, nil)
	require.NoError(t, err)
	require.Len(t, plan.Items, 1)
	item := plan.Items[0]
	assert.Equal(t, target, item.Target)
	assert.Equal(t, input, item.Source.Path)
	assert.Equal(t, ReasonMissing, item.Reason)
	assert.Equal(t, "csvtable", item.Rule.Format)
	require.Len(t, plan.Artifacts, 1)
	assert.Equal(t, filepath.Join("guide", "tables.rst"), plan.Artifacts[0].Rel)
	assert.Equal(t, ArtifactGenerated, plan.Artifacts[0].Kind)

	writeFile(t, target, "", t0.Add(time.Hour))
	plan, err = PlanStage(fsys, cfg, nil, stage, sources, nil)
	require.NoError(t, err)
	assert.Empty(t, plan.Items)

	touch(t, input, t0.Add(2*time.Hour))
	plan, err = PlanStage(fsys, cfg, nil, stage, sources, nil)
	require.NoError(t, err)
	require.Len(t, plan.Items, 1)
	assert.Equal(t, ReasonSourceChanged, plan.Items[0].Reason)

	touch(t, input, t0)
	touch(t, gen, t0.Add(2*time.Hour))
	stage, sources = templateStage(t, cfg)
	plan, err = PlanStage(fsys, cfg, nil, stage, sources, nil)
	require.NoError(t, err)
	require.Len(t, plan.Items, 1)
	assert.Equal(t, ReasonDependencyChanged, plan.Items[0].Reason)
	assert.Equal(t, gen, plan.Items[0].Cause)
}

func TestPlanStage_GenFileErrors(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		wantErr error
	}{
		{"missing input", "nope.csv | t.rst | csvtable |", ErrStaleCheck},
		{"target escapes", "a.csv | ../../t.rst | csvtable |", ErrTargetOutside},
		{"target clashes with expansion", "a.csv | a.rest | csvtable |", ErrTargetConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := newTestConfig(t)
			writeFile(t, filepath.Join(cfg.SourceRoot, "a.csv"), "", t0)
			writeFile(t, filepath.Join(cfg.SourceRoot, "a.rest.stpl"), "", t0)
			writeFile(t, filepath.Join(cfg.SourceRoot, "gen"), tt.line+"\n", t0)

			stage, sources := templateStage(t, cfg)
			_, err := PlanStage(fsops.NewRealFS(), cfg, nil, stage, sources, nil)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestDerivedSources_IncludesGeneratedDocuments(t *testing.T) {
	cfg := newTestConfig(t)
	generated := filepath.Join(cfg.OutputRoot, "api.rest")
	writeFile(t, generated, "", t0)

	plan := NewPlan(TierTemplates)
	plan.AddArtifact(Artifact{Path: generated, Rel: "api.rest", Kind: ArtifactGenerated, Source: "/src/model.py"})
	plan.AddArtifact(Artifact{Path: filepath.Join(cfg.OutputRoot, "t.csv"), Rel: "t.csv", Kind: ArtifactGenerated})
	up := NewUpstream()
	up.Advance(plan, nil)

	derived, err := DerivedSources(fsops.NewRealFS(), cfg, up)
	require.NoError(t, err)
	require.Len(t, derived, 1)
	assert.Equal(t, KindDocument, derived[0].Kind)
	assert.Equal(t, "/src/model.py", derived[0].Origin)
}
