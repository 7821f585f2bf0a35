package cli

import (
	"slices"
	"strings"

	"github.com/danieljhkim/docplan/internal/engine"
	"github.com/danieljhkim/docplan/internal/planner"
)

// Build target names shared by the build commands, plan and watch.
const (
	targetExpandTemplates = "expand-templates"
	targetBuildImages     = "build-images"
	targetBuildIndex      = "build-index"
	targetRender          = "render"
	targetExport          = "export"
	targetBuild           = "build"
)

var targetNames = []string{
	targetExpandTemplates, targetBuildImages, targetBuildIndex,
	targetRender, targetExport, targetBuild,
}

// requestFor translates a build target and its arguments into a request.
// render and export take the output format as their only argument.
func requestFor(pc *planner.Config, target string, args []string) (*engine.BuildRequest, error) {
	req := &engine.BuildRequest{UpTo: planner.TierFinal}

	switch target {
	case targetExpandTemplates:
		req.UpTo = planner.TierTemplates
	case targetBuildImages:
		req.UpTo = planner.TierImages
	case targetBuildIndex:
		req.UpTo = planner.TierIndex
	case targetBuild:
	case targetRender, targetExport:
		kind := planner.ArtifactRendered
		if target == targetExport {
			kind = planner.ArtifactExported
		}
		formats := pc.Formats(kind)
		if len(args) != 1 {
			return nil, usageErrorf("%s requires one format (%s)", target, strings.Join(formats, ", "))
		}
		if !slices.Contains(formats, args[0]) {
			return nil, usageErrorf("unknown %s format %q (available: %s)", target, args[0], strings.Join(formats, ", "))
		}
		req.Selector = planner.Selector{
			Formats:   []string{args[0]},
			Artifacts: []planner.ArtifactKind{kind},
		}
		return req, nil
	default:
		return nil, usageErrorf("unknown target %q (expected %s)", target, strings.Join(targetNames, ", "))
	}

	if len(args) > 0 {
		return nil, usageErrorf("%s takes no format", target)
	}
	return req, nil
}
