// Package render runs the external renderer that turns a source into an
// artifact. The planner treats it as a black box: the command either exits
// zero and leaves the target on disk, or fails with a planner.RenderError.
package render

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/danieljhkim/docplan/internal/fsops"
	"github.com/danieljhkim/docplan/internal/logfields"
	"github.com/danieljhkim/docplan/internal/planner"
)

// DefaultCommand is used for rules without a command of their own.
var DefaultCommand = []string{"{renderer}", "{format}", "{source}", "{target}"}

// stderrTail bounds the renderer output kept for error reports.
const stderrTail = 4096

// CommandInvoker runs one external command per item.
type CommandInvoker struct {
	// Renderer replaces {renderer} in command templates.
	Renderer string

	// Timeout bounds a single invocation; zero means no limit.
	Timeout time.Duration

	// Command is the fallback argv template for rules without one.
	Command []string

	// Env is appended to the process environment of every invocation.
	Env []string

	FS     fsops.FS
	Logger *slog.Logger
}

// NewCommandInvoker creates an invoker for the renderer at path.
func NewCommandInvoker(renderer string, timeout time.Duration, fs fsops.FS, logger *slog.Logger) *CommandInvoker {
	return &CommandInvoker{
		Renderer: renderer,
		Timeout:  timeout,
		Command:  DefaultCommand,
		FS:       fs,
		Logger:   logger,
	}
}

// Argv expands the item's command template.
func (c *CommandInvoker) Argv(item planner.Item) ([]string, error) {
	tmpl := item.Rule.Command
	if len(tmpl) == 0 {
		tmpl = c.Command
	}
	if len(tmpl) == 0 {
		tmpl = DefaultCommand
	}

	src := item.Source.Path
	ext := filepath.Ext(src)
	r := strings.NewReplacer(
		"{renderer}", c.Renderer,
		"{source}", src,
		"{target}", item.Target,
		"{format}", item.Rule.Format,
		"{dir}", filepath.Dir(src),
		"{stem}", strings.TrimSuffix(filepath.Base(src), ext),
		"{rule}", item.Rule.Name,
	)

	argv := make([]string, len(tmpl))
	for i, a := range tmpl {
		argv[i] = r.Replace(a)
	}
	if argv[0] == "" {
		return nil, fmt.Errorf("rule %s: no renderer configured", item.Rule.Name)
	}
	return argv, nil
}

// Invoke creates the target directory and runs the renderer in the source's
// directory. A non-zero exit, a crash or a timeout becomes a RenderError.
func (c *CommandInvoker) Invoke(ctx context.Context, item planner.Item) error {
	argv, err := c.Argv(item)
	if err != nil {
		return c.renderError(item, -1, "", err)
	}

	if err := c.FS.MkdirAll(filepath.Dir(item.Target), 0o755); err != nil {
		return c.renderError(item, -1, "", fmt.Errorf("failed to create target directory: %w", err))
	}

	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	// #nosec G204 - argv comes from the build configuration
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = filepath.Dir(item.Source.Path)
	cmd.Env = append(os.Environ(), c.Env...)
	stderr := &tailBuffer{max: stderrTail}
	cmd.Stderr = stderr
	if c.Logger != nil && c.Logger.Enabled(ctx, slog.LevelDebug) {
		cmd.Stdout = &logWriter{log: c.Logger, target: item.Target}
	}

	if c.Logger != nil {
		c.Logger.Debug("Running renderer",
			logfields.Rule(item.Rule.Name),
			logfields.Target(item.Target),
			slog.Any("argv", argv))
	}

	err = cmd.Run()
	if err == nil {
		return nil
	}

	code := -1
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ProcessState != nil && exitErr.Exited() {
		code = exitErr.ExitCode()
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		err = fmt.Errorf("%w: %w", ctxErr, err)
		code = -1
	}
	return c.renderError(item, code, stderr.String(), err)
}

func (c *CommandInvoker) renderError(item planner.Item, code int, stderr string, err error) *planner.RenderError {
	return &planner.RenderError{
		Source:   item.Source.Path,
		Target:   item.Target,
		Rule:     item.Rule.Name,
		ExitCode: code,
		Stderr:   strings.TrimSpace(stderr),
		Err:      err,
	}
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	max int
	buf []byte
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	n := len(p)
	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.max; over > 0 {
		b.buf = b.buf[over:]
	}
	return n, nil
}

func (b *tailBuffer) String() string {
	return string(b.buf)
}

// logWriter forwards renderer stdout to the debug log line by line.
type logWriter struct {
	log    *slog.Logger
	target string
}

func (w *logWriter) Write(p []byte) (int, error) {
	for _, line := range strings.Split(strings.TrimRight(string(p), "\n"), "\n") {
		if line != "" {
			w.log.Debug("Renderer output", logfields.Target(w.target), slog.String("line", line))
		}
	}
	return len(p), nil
}
