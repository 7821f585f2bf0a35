package integration

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/danieljhkim/docplan/internal/clock"
	"github.com/danieljhkim/docplan/internal/engine"
	"github.com/danieljhkim/docplan/internal/fsops"
	"github.com/danieljhkim/docplan/internal/planner"
	"github.com/danieljhkim/docplan/internal/scan"
)

const (
	sourceRoot = "/docs"
	outputRoot = "/out"
)

var epoch = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

// testFS is an in-memory filesystem. Directories are implied by the files
// below them; MkdirAll records empty ones explicitly.
type testFS struct {
	mu       sync.Mutex
	files    map[string]*testFile
	dirs     map[string]bool
	statErrs map[string]error
}

type testFile struct {
	data  []byte
	mtime time.Time
}

func newTestFS() *testFS {
	return &testFS{
		files:    make(map[string]*testFile),
		dirs:     map[string]bool{"/": true},
		statErrs: make(map[string]error),
	}
}

// WriteFile stores data at path with the given modification time.
func (f *testFS) WriteFile(path string, data []byte, mtime time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	path = filepath.Clean(path)
	f.files[path] = &testFile{data: data, mtime: mtime}
	f.addParents(path)
}

// Touch moves the modification time of an existing file.
func (f *testFS) Touch(path string, mtime time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if file, ok := f.files[filepath.Clean(path)]; ok {
		file.mtime = mtime
	}
}

// FailStat makes every stat of path fail with err.
func (f *testFS) FailStat(path string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statErrs[filepath.Clean(path)] = err
}

func (f *testFS) addParents(path string) {
	for dir := filepath.Dir(path); !f.dirs[dir]; dir = filepath.Dir(dir) {
		f.dirs[dir] = true
	}
}

func (f *testFS) info(path string) (os.FileInfo, error) {
	path = filepath.Clean(path)
	if err := f.statErrs[path]; err != nil {
		return nil, &fs.PathError{Op: "stat", Path: path, Err: err}
	}
	if file, ok := f.files[path]; ok {
		return &mockFileInfo{name: filepath.Base(path), size: int64(len(file.data)), modTime: file.mtime}, nil
	}
	if f.dirs[path] {
		return &mockFileInfo{name: filepath.Base(path), isDir: true, modTime: epoch}, nil
	}
	return nil, &fs.PathError{Op: "stat", Path: path, Err: fs.ErrNotExist}
}

func (f *testFS) Stat(path string) (os.FileInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.info(path)
}

func (f *testFS) Lstat(path string) (os.FileInfo, error) {
	return f.Stat(path)
}

// children returns the sorted names directly below dir.
func (f *testFS) children(dir string) []string {
	seen := make(map[string]bool)
	prefix := dir + string(filepath.Separator)
	if dir == "/" {
		prefix = dir
	}
	collect := func(p string) {
		if p == dir || !strings.HasPrefix(p, prefix) {
			return
		}
		name, _, _ := strings.Cut(strings.TrimPrefix(p, prefix), string(filepath.Separator))
		seen[name] = true
	}
	for p := range f.files {
		collect(p)
	}
	for p := range f.dirs {
		collect(p)
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (f *testFS) WalkDir(root string, fn fs.WalkDirFunc) error {
	root = filepath.Clean(root)
	f.mu.Lock()
	info, err := f.info(root)
	f.mu.Unlock()
	if err != nil {
		err = fn(root, nil, err)
	} else {
		err = f.walk(root, fs.FileInfoToDirEntry(info), fn)
	}
	if errors.Is(err, filepath.SkipDir) || errors.Is(err, filepath.SkipAll) {
		return nil
	}
	return err
}

func (f *testFS) walk(path string, d fs.DirEntry, fn fs.WalkDirFunc) error {
	if err := fn(path, d, nil); err != nil || !d.IsDir() {
		return err
	}

	f.mu.Lock()
	names := f.children(path)
	f.mu.Unlock()

	for _, name := range names {
		child := filepath.Join(path, name)
		f.mu.Lock()
		info, err := f.info(child)
		f.mu.Unlock()
		if err != nil {
			if err := fn(child, nil, err); err != nil && !errors.Is(err, filepath.SkipDir) {
				return err
			}
			continue
		}
		if err := f.walk(child, fs.FileInfoToDirEntry(info), fn); err != nil {
			if errors.Is(err, filepath.SkipDir) {
				if info.IsDir() {
					continue
				}
				return nil
			}
			return err
		}
	}
	return nil
}

func (f *testFS) ReadFile(path string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	file, ok := f.files[filepath.Clean(path)]
	if !ok {
		return nil, &fs.PathError{Op: "open", Path: path, Err: fs.ErrNotExist}
	}
	return append([]byte(nil), file.data...), nil
}

func (f *testFS) MkdirAll(path string, _ os.FileMode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	path = filepath.Clean(path)
	if _, ok := f.files[path]; ok {
		return &fs.PathError{Op: "mkdir", Path: path, Err: errors.New("not a directory")}
	}
	f.dirs[path] = true
	f.addParents(path)
	return nil
}

func (f *testFS) Exists(path string) (bool, error) {
	_, err := f.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

func (f *testFS) ModTime(path string) (time.Time, bool, error) {
	info, err := f.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, err
	}
	return info.ModTime(), true, nil
}

func (f *testFS) ValidateRelPath(relPath string) error {
	return fsops.ValidateRelPath(relPath)
}

// mockFileInfo implements os.FileInfo for testing.
type mockFileInfo struct {
	name    string
	size    int64
	isDir   bool
	modTime time.Time
}

func (m *mockFileInfo) Name() string       { return m.name }
func (m *mockFileInfo) Size() int64        { return m.size }
func (m *mockFileInfo) ModTime() time.Time { return m.modTime }
func (m *mockFileInfo) IsDir() bool        { return m.isDir }
func (m *mockFileInfo) Sys() any           { return nil }

func (m *mockFileInfo) Mode() os.FileMode {
	if m.isDir {
		return os.ModeDir | 0o755
	}
	return 0o644
}

// testInvoker renders by writing the rule name to the target, stamped with
// the fake clock, which it advances by one second per invocation.
type testInvoker struct {
	mu    sync.Mutex
	fs    *testFS
	clk   *clock.FakeClock
	calls []string
	fail  map[string]int

	// silent targets report success without being written.
	silent map[string]bool
}

func (i *testInvoker) Invoke(ctx context.Context, item planner.Item) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	i.mu.Lock()
	defer i.mu.Unlock()

	i.calls = append(i.calls, item.Target)
	if code, ok := i.fail[item.Target]; ok {
		return &planner.RenderError{ExitCode: code, Stderr: "render failed"}
	}
	if i.silent[item.Target] {
		return nil
	}
	i.clk.Advance(time.Second)
	if err := i.fs.MkdirAll(filepath.Dir(item.Target), 0o755); err != nil {
		return err
	}
	i.fs.WriteFile(item.Target, []byte(item.Rule.Name), i.clk.Now())
	return nil
}

// Calls returns the targets invoked since the previous call, relative to
// the output root.
func (i *testInvoker) Calls() []string {
	i.mu.Lock()
	defer i.mu.Unlock()
	out := make([]string, 0, len(i.calls))
	for _, c := range i.calls {
		rel, err := filepath.Rel(outputRoot, c)
		if err != nil {
			rel = c
		}
		out = append(out, filepath.ToSlash(rel))
	}
	i.calls = nil
	return out
}

type testEnv struct {
	fs      *testFS
	invoker *testInvoker
	clock   *clock.FakeClock
	cfg     *planner.Config
	engine  *engine.Engine
}

// write stores a source file below the source root at the current time.
func (e *testEnv) write(rel, content string) {
	e.fs.WriteFile(e.src(rel), []byte(content), e.clock.Now())
}

// touch advances the clock and stamps a source with the new time.
func (e *testEnv) touch(rel string) {
	e.clock.Advance(time.Minute)
	e.fs.Touch(e.src(rel), e.clock.Now())
}

func (e *testEnv) src(rel string) string {
	return filepath.Join(sourceRoot, filepath.FromSlash(rel))
}

func (e *testEnv) build(t *testing.T, upTo planner.Tier) (*engine.BuildResult, error) {
	t.Helper()
	return e.engine.Build(context.Background(), &engine.BuildRequest{UpTo: upTo, Jobs: 2})
}

// defaultRules derives a png from diagrams, a link list from indexes and html
// from documents.
func defaultRules() []planner.DerivationRule {
	return []planner.DerivationRule{
		{Name: "expand", Kind: planner.KindTemplate, Artifact: planner.ArtifactExpanded, Target: "{dir}/{stem}"},
		{Name: "diagram", Kind: planner.KindDiagram, Artifact: planner.ArtifactImage, Target: "{dir}/{stem}.png"},
		{Name: "links", Kind: planner.KindIndex, Artifact: planner.ArtifactIndex, Target: "{dir}/_links.rst"},
		{Name: "html", Kind: planner.KindDocument, Artifact: planner.ArtifactRendered, Format: "html", Target: "html/{dir}/{stem}.html"},
	}
}

// setupTestEngine wires an engine over an in-memory tree with the RST scanner
// and a fake renderer.
func setupTestEngine(t *testing.T, rules []planner.DerivationRule) *testEnv {
	t.Helper()

	cfg := &planner.Config{
		SourceRoot: sourceRoot,
		OutputRoot: outputRoot,
		Kinds: []planner.KindRule{
			{Pattern: "gen", Kind: planner.KindGenerator},
			{Pattern: "*.stpl", Kind: planner.KindTemplate},
			{Pattern: "*.dot", Kind: planner.KindDiagram},
			{Pattern: "index.rest", Kind: planner.KindIndex},
			{Pattern: "*.rest", Kind: planner.KindDocument},
		},
		Rules:   rules,
		Exclude: []string{"_links*"},
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	fsys := newTestFS()
	if err := fsys.MkdirAll(sourceRoot, 0o755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	clk := clock.NewFakeClock(epoch)
	inv := &testInvoker{fs: fsys, clk: clk, fail: make(map[string]int), silent: make(map[string]bool)}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	eng := engine.New(cfg, fsys, scan.NewRSTScanner(fsys, nil), inv, clk, nil, logger)

	return &testEnv{fs: fsys, invoker: inv, clock: clk, cfg: cfg, engine: eng}
}
