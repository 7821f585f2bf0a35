package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

func TestPrometheusRecorder(t *testing.T) {
	reg := prom.NewRegistry()
	pr := NewPrometheusRecorder(reg)
	pr.ObserveStageDuration("images", 150*time.Millisecond)
	pr.ObserveBuildDuration(500 * time.Millisecond)
	pr.SetStageItems("images", 2, 5)
	pr.ObserveInvocation("images", "dot", 20*time.Millisecond, ResultSuccess)
	pr.ObserveInvocation("images", "dot", 30*time.Millisecond, ResultFailed)
	pr.IncBuildOutcome("failed")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(mfs) != 6 {
		t.Fatalf("expected 6 metric families, got %d", len(mfs))
	}

	for _, mf := range mfs {
		switch mf.GetName() {
		case "docplan_stage_items":
			if len(mf.GetMetric()) != 2 {
				t.Errorf("expected planned and fresh gauges, got %d", len(mf.GetMetric()))
			}
		case "docplan_invocations_total":
			var total float64
			for _, m := range mf.GetMetric() {
				total += m.GetCounter().GetValue()
			}
			if total != 2 {
				t.Errorf("invocations = %v, want 2", total)
			}
		}
	}
}

func TestPrometheusRecorder_WriteTextfile(t *testing.T) {
	pr := NewPrometheusRecorder(nil)
	pr.IncBuildOutcome("success")

	path := filepath.Join(t.TempDir(), "docplan.prom")
	if err := pr.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile() error = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(data), `docplan_build_outcomes_total{outcome="success"} 1`) {
		t.Errorf("unexpected textfile content:\n%s", data)
	}
}

func TestPrometheusRecorder_NilReceiver(t *testing.T) {
	var pr *PrometheusRecorder
	pr.ObserveStageDuration("images", time.Second)
	pr.ObserveBuildDuration(time.Second)
	pr.SetStageItems("images", 1, 1)
	pr.ObserveInvocation("images", "dot", time.Second, ResultSuccess)
	pr.IncBuildOutcome("success")
}

func TestNoopRecorder(t *testing.T) {
	var r Recorder = NoopRecorder{}
	r.ObserveStageDuration("final", time.Second)
	r.ObserveBuildDuration(time.Second)
	r.SetStageItems("final", 0, 0)
	r.ObserveInvocation("final", "html", time.Second, ResultFailed)
	r.IncBuildOutcome("dry-run")
}
