// Package planner decides which documentation artifacts are stale and drives
// the external renderer to rebuild them.
//
// A build is split into tiers that run in a fixed order: templates, images,
// index and final documents. Each tier is planned from the sources discovered
// under the source root plus the Upstream state handed over by earlier tiers
// (their artifacts and the subset rebuilt in this run). Nothing else crosses a
// tier boundary and nothing is persisted between runs: the filesystem is the
// only source of truth.
//
// Key responsibilities:
//   - Discover and classify sources by base-name pattern
//   - Derive deterministic artifact paths from a rule table
//   - Plan a stage: stale items in source/rule order with the reason
//   - Execute a plan without short-circuiting and aggregate failures
//
// Equal timestamps are not stale unless Config.StaleOnEqual is set. This
// favours fewer rebuilds on filesystems with coarse timestamp resolution.
package planner
