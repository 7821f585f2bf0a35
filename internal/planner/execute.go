package planner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/danieljhkim/docplan/internal/clock"
	"github.com/danieljhkim/docplan/internal/logfields"
)

// Invoker runs the external renderer for one item.
type Invoker interface {
	Invoke(ctx context.Context, item Item) error
}

// InvokerFunc adapts a function to the Invoker interface.
type InvokerFunc func(ctx context.Context, item Item) error

func (f InvokerFunc) Invoke(ctx context.Context, item Item) error {
	return f(ctx, item)
}

// ExecOptions controls Execute.
type ExecOptions struct {
	// Jobs bounds the number of concurrent invocations. Values below 2 run
	// the plan sequentially.
	Jobs int

	Clock  clock.Clock
	Logger *slog.Logger

	// OnResult, if set, is called after each invocation. It may be called
	// from several goroutines when Jobs > 1.
	OnResult func(ItemResult)
}

// ItemResult is the outcome of one invocation.
type ItemResult struct {
	Item     Item
	Err      *RenderError
	Duration time.Duration
}

// Report holds the results of a stage in plan order.
type Report struct {
	Tier    Tier
	Results []ItemResult
}

// Succeeded returns the targets that were rebuilt successfully, in plan order.
func (r *Report) Succeeded() []string {
	var out []string
	for _, res := range r.Results {
		if res.Err == nil {
			out = append(out, res.Item.Target)
		}
	}
	return out
}

// Failures returns the render errors of the stage, in plan order.
func (r *Report) Failures() []*RenderError {
	var out []*RenderError
	for _, res := range r.Results {
		if res.Err != nil {
			out = append(out, res.Err)
		}
	}
	return out
}

// Execute invokes the renderer for every item of plan. A failing item does
// not stop the stage: every item is attempted and, when any failed, the
// returned BuildError lists each failure in plan order. The report is
// returned in both cases.
func Execute(ctx context.Context, plan *Plan, invoker Invoker, opts ExecOptions) (*Report, error) {
	if opts.Clock == nil {
		opts.Clock = &clock.RealClock{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	report := &Report{
		Tier:    plan.Tier,
		Results: make([]ItemResult, len(plan.Items)),
	}

	run := func(i int) {
		res := invoke(ctx, invoker, plan.Items[i], opts)
		report.Results[i] = res
		if opts.OnResult != nil {
			opts.OnResult(res)
		}
	}

	if opts.Jobs > 1 && len(plan.Items) > 1 {
		var g errgroup.Group
		g.SetLimit(opts.Jobs)
		for i := range plan.Items {
			i := i
			g.Go(func() error {
				run(i)
				return nil
			})
		}
		_ = g.Wait() // failures are recorded per item
	} else {
		for i := range plan.Items {
			run(i)
		}
	}

	failures := report.Failures()
	if len(failures) > 0 {
		return report, &BuildError{
			Tier:     plan.Tier,
			Attempts: len(plan.Items),
			Failures: failures,
		}
	}
	return report, nil
}

func invoke(ctx context.Context, invoker Invoker, item Item, opts ExecOptions) (res ItemResult) {
	res.Item = item
	start := opts.Clock.Now()
	log := opts.Logger.With(
		logfields.Source(item.Source.Path),
		logfields.Target(item.Target),
		logfields.Rule(item.Rule.Name),
	)

	defer func() {
		if r := recover(); r != nil {
			res.Err = toRenderError(item, fmt.Errorf("renderer panicked: %v", r))
		}
		res.Duration = clock.Since(opts.Clock, start)
		if res.Err != nil {
			log.Error("Render failed", logfields.Duration(res.Duration), logfields.Error(res.Err))
			return
		}
		log.Debug("Rendered", logfields.Duration(res.Duration))
	}()

	if err := ctx.Err(); err != nil {
		res.Err = toRenderError(item, err)
		return res
	}
	if err := invoker.Invoke(ctx, item); err != nil {
		res.Err = toRenderError(item, err)
	}
	return res
}

// toRenderError keeps a RenderError returned by the invoker and wraps any
// other error into one.
func toRenderError(item Item, err error) *RenderError {
	var re *RenderError
	if errors.As(err, &re) {
		out := *re
		if out.Source == "" {
			out.Source = item.Source.Path
		}
		if out.Target == "" {
			out.Target = item.Target
		}
		if out.Rule == "" {
			out.Rule = item.Rule.Name
		}
		return &out
	}
	return &RenderError{
		Source:   item.Source.Path,
		Target:   item.Target,
		Rule:     item.Rule.Name,
		ExitCode: -1,
		Err:      err,
	}
}
