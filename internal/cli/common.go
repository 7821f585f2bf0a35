package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/danieljhkim/docplan/internal/clock"
	"github.com/danieljhkim/docplan/internal/config"
	"github.com/danieljhkim/docplan/internal/engine"
	"github.com/danieljhkim/docplan/internal/fsops"
	"github.com/danieljhkim/docplan/internal/metrics"
	"github.com/danieljhkim/docplan/internal/render"
	"github.com/danieljhkim/docplan/internal/scan"
)

// session bundles everything a build command needs.
type session struct {
	cfg      *config.Config
	engine   *engine.Engine
	logger   *slog.Logger
	recorder *metrics.PrometheusRecorder
}

// loadConfig reads the configuration, applies the global flags on top and
// validates the result.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Read(opts.configFile)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfig, err)
	}

	if opts.sourceRoot != "" {
		cfg.SourceRoot = absPath(opts.sourceRoot)
	}
	if opts.outputRoot != "" {
		cfg.OutputRoot = absPath(opts.outputRoot)
	}
	if opts.renderer != "" {
		cfg.RendererPath = opts.renderer
	}
	if opts.jobs != 0 {
		cfg.Jobs = opts.jobs
	}
	if opts.staleOnEqual {
		cfg.StaleOnEqual = true
	}
	if opts.logLevel != "" {
		cfg.Logging.Level = opts.logLevel
	}
	if opts.logFormat != "" {
		cfg.Logging.Format = opts.logFormat
	}
	if opts.metricsFile != "" {
		cfg.Metrics.File = absPath(opts.metricsFile)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: configuration validation failed: %w", ErrConfig, err)
	}
	return cfg, nil
}

func absPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}

// newLogger creates the structured logger on w.
func newLogger(cfg *config.Config, w io.Writer) (*slog.Logger, error) {
	level, err := config.ParseLogLevel(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	format, err := config.ParseLogFormat(cfg.Logging.Format)
	if err != nil {
		return nil, err
	}

	hopts := &slog.HandlerOptions{Level: level}
	if format == config.LogFormatJSON {
		return slog.New(slog.NewJSONHandler(w, hopts)), nil
	}
	return slog.New(slog.NewTextHandler(w, hopts)), nil
}

// newSession creates an engine with real implementations of all dependencies.
func newSession(errOut io.Writer) (*session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(cfg, errOut)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfig, err)
	}
	pc, err := cfg.Planner()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfig, err)
	}
	timeout, err := cfg.Timeout()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfig, err)
	}

	s := &session{cfg: cfg, logger: logger}
	var recorder metrics.Recorder = metrics.NoopRecorder{}
	if cfg.Metrics.File != "" {
		s.recorder = metrics.NewPrometheusRecorder(nil)
		recorder = s.recorder
	}

	fs := fsops.NewRealFS()
	scanner := scan.NewRSTScanner(fs, cfg.Scan.Extensions)
	invoker := render.NewCommandInvoker(cfg.RendererPath, timeout, fs, logger)
	s.engine = engine.New(pc, fs, scanner, invoker, &clock.RealClock{}, recorder, logger)

	logger.Debug("Configuration loaded",
		slog.String("file", cfg.File),
		slog.String("source_root", pc.SourceRoot),
		slog.String("output_root", pc.OutputRoot),
		slog.String("renderer", cfg.RendererPath))
	return s, nil
}

// writeMetrics writes the Prometheus textfile when one is configured.
func (s *session) writeMetrics() error {
	if s.recorder == nil {
		return nil
	}
	path := s.cfg.Resolve(s.cfg.Metrics.File)
	if err := s.recorder.WriteTextfile(path); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	return nil
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// outputJSON outputs a value as JSON to w.
func outputJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
