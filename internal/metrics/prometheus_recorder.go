package metrics

import (
	"fmt"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	reg            *prom.Registry
	stageDuration  *prom.HistogramVec
	buildDuration  prom.Histogram
	stageItems     *prom.GaugeVec
	invocationTime *prom.HistogramVec
	invocations    *prom.CounterVec
	buildOutcome   *prom.CounterVec
}

// NewPrometheusRecorder constructs and registers the docplan metrics on reg,
// or on a fresh registry when reg is nil.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{reg: reg}
	pr.stageDuration = prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: "docplan",
		Name:      "stage_duration_seconds",
		Help:      "Duration of planning and executing one tier",
		Buckets:   prom.DefBuckets,
	}, []string{"tier"})
	pr.buildDuration = prom.NewHistogram(prom.HistogramOpts{
		Namespace: "docplan",
		Name:      "build_duration_seconds",
		Help:      "Total build duration",
		Buckets:   prom.DefBuckets,
	})
	pr.stageItems = prom.NewGaugeVec(prom.GaugeOpts{
		Namespace: "docplan",
		Name:      "stage_items",
		Help:      "Artifacts of the last planned stage by state",
	}, []string{"tier", "state"})
	pr.invocationTime = prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: "docplan",
		Name:      "invocation_duration_seconds",
		Help:      "Duration of individual renderer invocations",
		Buckets:   prom.DefBuckets,
	}, []string{"tier", "rule"})
	pr.invocations = prom.NewCounterVec(prom.CounterOpts{
		Namespace: "docplan",
		Name:      "invocations_total",
		Help:      "Renderer invocations by outcome",
	}, []string{"tier", "result"})
	pr.buildOutcome = prom.NewCounterVec(prom.CounterOpts{
		Namespace: "docplan",
		Name:      "build_outcomes_total",
		Help:      "Build outcomes by final status",
	}, []string{"outcome"})
	reg.MustRegister(pr.stageDuration, pr.buildDuration, pr.stageItems, pr.invocationTime, pr.invocations, pr.buildOutcome)
	return pr
}

// Registry returns the registry the metrics are registered on.
func (p *PrometheusRecorder) Registry() *prom.Registry {
	return p.reg
}

func (p *PrometheusRecorder) ObserveStageDuration(tier string, d time.Duration) {
	if p == nil || p.stageDuration == nil {
		return
	}
	p.stageDuration.WithLabelValues(tier).Observe(d.Seconds())
}

func (p *PrometheusRecorder) ObserveBuildDuration(d time.Duration) {
	if p == nil || p.buildDuration == nil {
		return
	}
	p.buildDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) SetStageItems(tier string, planned, fresh int) {
	if p == nil || p.stageItems == nil {
		return
	}
	p.stageItems.WithLabelValues(tier, "planned").Set(float64(planned))
	p.stageItems.WithLabelValues(tier, "fresh").Set(float64(fresh))
}

func (p *PrometheusRecorder) ObserveInvocation(tier, rule string, d time.Duration, result ResultLabel) {
	if p == nil || p.invocations == nil {
		return
	}
	p.invocationTime.WithLabelValues(tier, rule).Observe(d.Seconds())
	p.invocations.WithLabelValues(tier, string(result)).Inc()
}

func (p *PrometheusRecorder) IncBuildOutcome(outcome string) {
	if p == nil || p.buildOutcome == nil {
		return
	}
	p.buildOutcome.WithLabelValues(outcome).Inc()
}

// WriteTextfile writes the registry to path in text exposition format, the
// layout read by the node exporter's textfile collector.
func (p *PrometheusRecorder) WriteTextfile(path string) error {
	if err := prom.WriteToTextfile(path, p.reg); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}
