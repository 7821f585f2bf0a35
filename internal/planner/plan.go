package planner

// Reason explains why an item was planned.
type Reason string

const (
	ReasonMissing           Reason = "missing"
	ReasonSourceChanged     Reason = "source-changed"
	ReasonDependencyChanged Reason = "dependency-changed"
	ReasonUpstreamRebuilt   Reason = "upstream-rebuilt"
	ReasonUpstreamNewer     Reason = "upstream-newer"
)

// Item is one (source, target) pair that needs rebuilding.
type Item struct {
	Source SourceFile
	Target string
	Rule   DerivationRule
	Reason Reason

	// Cause is the dependency or upstream artifact that triggered Reason,
	// empty for missing targets and changed sources.
	Cause string
}

// Plan is the result of planning one stage.
type Plan struct {
	Tier Tier

	// Items is the ordered list of stale pairs to rebuild.
	Items []Item

	// Artifacts lists every artifact of the stage, fresh or stale.
	Artifacts []Artifact
}

// NewPlan creates an empty plan for tier.
func NewPlan(tier Tier) *Plan {
	return &Plan{
		Tier:      tier,
		Items:     []Item{},
		Artifacts: []Artifact{},
	}
}

// IsEmpty returns true if nothing needs rebuilding.
func (p *Plan) IsEmpty() bool {
	return len(p.Items) == 0
}

// Fresh returns the number of artifacts that are up to date.
func (p *Plan) Fresh() int {
	return len(p.Artifacts) - len(p.Items)
}

// AddItem adds a stale pair to the plan.
func (p *Plan) AddItem(item Item) {
	p.Items = append(p.Items, item)
}

// AddArtifact records an artifact of the stage.
func (p *Plan) AddArtifact(a Artifact) {
	p.Artifacts = append(p.Artifacts, a)
}

// Targets returns the targets of the planned items in order.
func (p *Plan) Targets() []string {
	out := make([]string, len(p.Items))
	for i, it := range p.Items {
		out[i] = it.Target
	}
	return out
}

// Upstream is the state handed from one tier to the next: the artifacts of
// every earlier tier and the subset rebuilt during this run.
type Upstream struct {
	Artifacts []Artifact
	rebuilt   map[string]bool
}

// NewUpstream creates the empty state used before the first tier.
func NewUpstream() *Upstream {
	return &Upstream{
		Artifacts: []Artifact{},
		rebuilt:   make(map[string]bool),
	}
}

// Advance records a finished stage: all of its artifacts, with rebuilt naming
// the targets that were (or, in a dry run, would be) rebuilt.
func (u *Upstream) Advance(plan *Plan, rebuilt []string) {
	u.Artifacts = append(u.Artifacts, plan.Artifacts...)
	for _, t := range rebuilt {
		u.rebuilt[t] = true
	}
}

// WasRebuilt reports whether target was rebuilt earlier in this run.
func (u *Upstream) WasRebuilt(target string) bool {
	return u.rebuilt[target]
}

// Rebuilt returns the number of artifacts rebuilt so far.
func (u *Upstream) Rebuilt() int {
	return len(u.rebuilt)
}

func (u *Upstream) byRel() map[string]Artifact {
	m := make(map[string]Artifact, len(u.Artifacts))
	for _, a := range u.Artifacts {
		m[a.Rel] = a
	}
	return m
}
