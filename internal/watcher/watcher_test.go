package watcher

import (
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/depview/internal/backend/source"
	"github.com/agentic-research/depview/internal/config"
	"github.com/agentic-research/depview/internal/explorer"
	"github.com/agentic-research/depview/internal/refresh"
)

type env struct {
	fs      billy.Filesystem
	tree    *explorer.Provider
	store   *config.Store
	clock   *refresh.ManualClock
	w       *Watcher
	watched []string
	changes chan explorer.Change
}

func newEnv(t *testing.T, mutate ...func(*config.Settings)) *env {
	t.Helper()
	fs := memfs.New()
	for name, content := range map[string]string{
		"/ws/proj/go.mod":         "module example.com/proj\n",
		"/ws/proj/pkg/a.go":       "package pkg\n\nfunc A() {}\n",
		"/ws/proj/docs/readme.md": "# proj\n",
		"/ws/proj/.git/HEAD":      "ref: refs/heads/main\n",
	} {
		require.NoError(t, util.WriteFile(fs, name, []byte(content), 0o644))
	}

	s := config.Default()
	s.Workspaces = []config.Workspace{{Name: "ws", Path: "/ws"}}
	for _, m := range mutate {
		m(&s)
	}
	store := config.NewStore(s)
	clock := refresh.NewManualClock()
	tree := explorer.NewProvider(source.New(fs), store, explorer.WithClock(clock))
	t.Cleanup(tree.Close)

	e := &env{fs: fs, tree: tree, store: store, clock: clock}
	e.w = newWatcher(tree, store, fs, func(dir string) error {
		e.watched = append(e.watched, dir)
		return nil
	})
	e.changes = tree.Changes()
	return e
}

// expand loads proj/pkg/a.go.
func (e *env) expand(t *testing.T) (proj, pkg, a *explorer.Node) {
	t.Helper()
	roots, err := e.tree.GetChildren(t.Context(), nil)
	require.NoError(t, err)
	require.Len(t, roots, 1)
	proj = roots[0]

	kids, err := e.tree.GetChildren(t.Context(), proj)
	require.NoError(t, err)
	require.Len(t, kids, 1)
	pkg = kids[0]

	kids, err = e.tree.GetChildren(t.Context(), pkg)
	require.NoError(t, err)
	require.Len(t, kids, 1)
	return proj, pkg, kids[0]
}

// settle runs the debounce timer and returns the change it produced.
func (e *env) settle(t *testing.T) explorer.Change {
	t.Helper()
	e.clock.Advance(2 * time.Second)
	select {
	case c := <-e.changes:
		return c
	default:
		t.Fatal("no change after the quiet period")
		return explorer.Change{}
	}
}

func (e *env) assertQuiet(t *testing.T) {
	t.Helper()
	e.clock.Advance(2 * time.Second)
	assert.Empty(t, e.changes)
}

func TestAddTreeSkipsExcludedDirectories(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, e.w.addTree("/ws"))
	assert.ElementsMatch(t, []string{"/ws", "/ws/proj", "/ws/proj/pkg", "/ws/proj/docs"}, e.watched)
	assert.Equal(t, 4, e.w.Watched())

	require.NoError(t, e.w.addTree("/ws/proj"))
	assert.Len(t, e.watched, 4, "directories are watched once")
}

func TestCreateRefreshesNearestAncestor(t *testing.T) {
	e := newEnv(t)
	_, pkg, _ := e.expand(t)

	require.NoError(t, util.WriteFile(e.fs, "/ws/proj/pkg/b.go", []byte("package pkg\n"), 0o644))
	e.w.handle(fsnotify.Event{Name: "/ws/proj/pkg/b.go", Op: fsnotify.Create})

	c := e.settle(t)
	assert.Same(t, pkg, c.Node)

	kids, err := e.tree.GetChildren(t.Context(), pkg)
	require.NoError(t, err)
	assert.Len(t, kids, 2)
}

func TestCreateDirectoryRefreshesProjectWhenFlat(t *testing.T) {
	e := newEnv(t)
	proj, _, _ := e.expand(t)

	require.NoError(t, util.WriteFile(e.fs, "/ws/proj/pkg/sub/c.go", []byte("package sub\n"), 0o644))
	e.w.handle(fsnotify.Event{Name: "/ws/proj/pkg/sub", Op: fsnotify.Create})

	assert.Contains(t, e.watched, "/ws/proj/pkg/sub")
	c := e.settle(t)
	assert.Same(t, proj, c.Node)

	kids, err := e.tree.GetChildren(t.Context(), proj)
	require.NoError(t, err)
	require.Len(t, kids, 2)
	assert.Equal(t, "pkg/sub", kids[1].Name())
}

func TestCreateDirectoryRefreshesParentWhenHierarchical(t *testing.T) {
	e := newEnv(t, func(s *config.Settings) { s.PackagePresentation = config.PresentationHierarchical })
	_, pkg, _ := e.expand(t)

	require.NoError(t, e.fs.MkdirAll("/ws/proj/pkg/sub", 0o755))
	e.w.handle(fsnotify.Event{Name: "/ws/proj/pkg/sub", Op: fsnotify.Create})

	c := e.settle(t)
	assert.Same(t, pkg, c.Node)
}

func TestRemoveRefreshesParentOfCachedNode(t *testing.T) {
	e := newEnv(t)
	_, pkg, _ := e.expand(t)

	require.NoError(t, e.fs.Remove("/ws/proj/pkg/a.go"))
	_, ok := e.tree.Node("/ws/proj/pkg/a.go")
	require.True(t, ok)
	e.w.handle(fsnotify.Event{Name: "/ws/proj/pkg/a.go", Op: fsnotify.Remove})

	c := e.settle(t)
	assert.Same(t, pkg, c.Node)
}

func TestRemoveUncachedRefreshesNearestAncestor(t *testing.T) {
	e := newEnv(t)
	proj, _, _ := e.expand(t)

	e.w.handle(fsnotify.Event{Name: "/ws/proj/docs/readme.md", Op: fsnotify.Rename})

	c := e.settle(t)
	assert.Same(t, proj, c.Node)
}

func TestWriteRefreshesMembersOnly(t *testing.T) {
	t.Run("members hidden", func(t *testing.T) {
		e := newEnv(t)
		e.expand(t)
		e.w.handle(fsnotify.Event{Name: "/ws/proj/pkg/a.go", Op: fsnotify.Write})
		e.assertQuiet(t)
	})

	t.Run("members shown", func(t *testing.T) {
		e := newEnv(t, func(s *config.Settings) { s.ShowMembers = true })
		_, _, a := e.expand(t)
		e.w.handle(fsnotify.Event{Name: "/ws/proj/pkg/a.go", Op: fsnotify.Write})
		c := e.settle(t)
		assert.Same(t, a, c.Node)
	})

	t.Run("non-source file", func(t *testing.T) {
		e := newEnv(t, func(s *config.Settings) { s.ShowMembers = true })
		e.expand(t)
		e.w.handle(fsnotify.Event{Name: "/ws/proj/docs/readme.md", Op: fsnotify.Write})
		e.assertQuiet(t)
	})
}

func TestProjectMarkerRefreshesRoot(t *testing.T) {
	e := newEnv(t)
	e.expand(t)

	require.NoError(t, util.WriteFile(e.fs, "/ws/other/go.mod", []byte("module other\n"), 0o644))
	e.w.handle(fsnotify.Event{Name: "/ws/other/go.mod", Op: fsnotify.Create})

	c := e.settle(t)
	assert.True(t, c.Root())

	roots, err := e.tree.GetChildren(t.Context(), nil)
	require.NoError(t, err)
	assert.Len(t, roots, 2)
}

func TestIgnoredEvents(t *testing.T) {
	t.Run("excluded", func(t *testing.T) {
		e := newEnv(t)
		e.expand(t)
		e.w.handle(fsnotify.Event{Name: "/ws/proj/.git/index", Op: fsnotify.Create})
		e.assertQuiet(t)
	})

	t.Run("auto refresh off", func(t *testing.T) {
		e := newEnv(t, func(s *config.Settings) { s.AutoRefresh = false })
		e.expand(t)
		e.w.handle(fsnotify.Event{Name: "/ws/proj/pkg/b.go", Op: fsnotify.Create})
		e.assertQuiet(t)
	})

	t.Run("chmod", func(t *testing.T) {
		e := newEnv(t)
		e.expand(t)
		e.w.handle(fsnotify.Event{Name: "/ws/proj/pkg/a.go", Op: fsnotify.Chmod})
		e.assertQuiet(t)
	})
}

func TestRemovedDirectoriesAreForgotten(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, e.w.addTree("/ws"))
	e.w.handle(fsnotify.Event{Name: "/ws/proj/pkg", Op: fsnotify.Remove})
	assert.Equal(t, 3, e.w.Watched())
}
