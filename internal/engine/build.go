package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/danieljhkim/docplan/internal/clock"
	"github.com/danieljhkim/docplan/internal/logfields"
	"github.com/danieljhkim/docplan/internal/metrics"
	"github.com/danieljhkim/docplan/internal/planner"
)

// Build outcomes recorded in metrics.
const (
	OutcomeSuccess = "success"
	OutcomeFailed  = "failed"
	OutcomeDryRun  = "dry-run"
)

// Build runs every tier up to req.UpTo in order.
//
// Discovery and stale-check errors abort the run immediately. A render
// failure is recorded and the run continues with the next tier, which only
// sees the targets that were rebuilt successfully. The returned error joins
// the BuildError of every failing stage; the result is returned in all cases
// and describes the stages that ran.
func (e *Engine) Build(ctx context.Context, req *BuildRequest) (*BuildResult, error) {
	if req.Jobs < 0 {
		return nil, fmt.Errorf("%w: jobs must not be negative", ErrValidation)
	}
	if req.UpTo == planner.TierFinal && len(planner.StageFor(e.cfg, planner.TierFinal, req.Selector).Rules) == 0 {
		return nil, fmt.Errorf("%w: formats %v, artifacts %v", ErrNoRules, req.Selector.Formats, req.Selector.Artifacts)
	}

	result := &BuildResult{
		RunID:  uuid.NewString(),
		DryRun: req.DryRun,
	}
	logger := e.logger.With(logfields.RunID(result.RunID))
	start := e.clock.Now()

	finish := func(err error) (*BuildResult, error) {
		result.Duration = clock.Since(e.clock, start)
		outcome := OutcomeSuccess
		switch {
		case err != nil:
			outcome = OutcomeFailed
		case req.DryRun:
			outcome = OutcomeDryRun
		}
		e.recorder.ObserveBuildDuration(result.Duration)
		e.recorder.IncBuildOutcome(outcome)
		logger.Info("Build finished",
			slog.String("outcome", outcome),
			logfields.Planned(result.Planned()),
			logfields.Failed(len(result.Failures())),
			logfields.Duration(result.Duration))
		return result, err
	}

	catalog, err := planner.Discover(e.fs, e.cfg)
	if err != nil {
		logger.Error("Discovery failed", logfields.Error(err))
		return finish(err)
	}
	result.Sources = catalog.Count()
	logger.Debug("Sources discovered", slog.Int("sources", result.Sources))

	var buildErrs []error
	up := planner.NewUpstream()
	for _, tier := range planner.Tiers {
		if tier > req.UpTo {
			break
		}
		if err := ctx.Err(); err != nil {
			buildErrs = append(buildErrs, err)
			break
		}

		sr, err := e.runStage(ctx, logger, tier, req, catalog, up)
		if sr != nil {
			result.Stages = append(result.Stages, *sr)
		}
		if err != nil {
			var be *planner.BuildError
			if !errors.As(err, &be) {
				// Discovery and stale-check failures are fatal.
				return finish(errors.Join(append(buildErrs, err)...))
			}
			buildErrs = append(buildErrs, err)
		}
	}

	return finish(errors.Join(buildErrs...))
}

// runStage plans and executes one tier and advances up with its results.
func (e *Engine) runStage(ctx context.Context, logger *slog.Logger, tier planner.Tier, req *BuildRequest, catalog planner.Catalog, up *planner.Upstream) (*StageResult, error) {
	start := e.clock.Now()
	logger = logger.With(logfields.Tier(tier.String()))

	stage := planner.StageFor(e.cfg, tier, req.Selector)
	sources := catalog.Sources(stage.Kinds()...)
	if tier > planner.TierTemplates {
		derived, err := planner.DerivedSources(e.fs, e.cfg, up)
		if err != nil {
			return nil, err
		}
		sources = planner.MergeDerived(sources, derived)
	}

	plan, err := planner.PlanStage(e.fs, e.cfg, e.scanner, stage, sources, up)
	if err != nil {
		logger.Error("Planning failed", logfields.Error(err))
		return nil, err
	}
	e.recorder.SetStageItems(tier.String(), len(plan.Items), plan.Fresh())
	logger.Info("Stage planned", logfields.Planned(len(plan.Items)), logfields.Fresh(plan.Fresh()))
	for _, item := range plan.Items {
		logger.Debug("Stale",
			logfields.Target(item.Target),
			logfields.Reason(string(item.Reason)),
			slog.String("cause", item.Cause))
	}

	sr := &StageResult{Tier: tier, Plan: plan}
	if req.DryRun {
		up.Advance(plan, plan.Targets())
		sr.Duration = clock.Since(e.clock, start)
		return sr, nil
	}

	report, execErr := planner.Execute(ctx, plan, e.invoker, planner.ExecOptions{
		Jobs:   req.Jobs,
		Clock:  e.clock,
		Logger: logger,
		OnResult: func(r planner.ItemResult) {
			label := metrics.ResultSuccess
			if r.Err != nil {
				label = metrics.ResultFailed
			}
			e.recorder.ObserveInvocation(tier.String(), r.Item.Rule.Name, r.Duration, label)
		},
	})
	up.Advance(plan, report.Succeeded())

	sr.Report = report
	sr.Duration = clock.Since(e.clock, start)
	e.recorder.ObserveStageDuration(tier.String(), sr.Duration)
	if execErr != nil {
		logger.Warn("Stage failed", logfields.Failed(len(report.Failures())), logfields.Error(execErr))
		return sr, execErr
	}
	logger.Info("Stage complete", logfields.Duration(sr.Duration))
	return sr, nil
}
