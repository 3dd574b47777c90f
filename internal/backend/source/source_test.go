package source

import (
	"os"
	"path/filepath"
	"testing"

	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentic-research/depview/api"
	"github.com/agentic-research/depview/internal/backend"
)

const mainGo = `package main

type Config struct{}

func (c *Config) Load() error { return nil }

func main() {}
`

const modelsPy = `class User:
    pass


def helper():
    return 1
`

func newWorkspace(t *testing.T) billy.Filesystem {
	t.Helper()
	fs := memfs.New()
	files := map[string]string{
		"/ws/proj/go.mod":                              "module example.com/proj\n\ngo 1.22\n",
		"/ws/proj/main.go":                             mainGo,
		"/ws/proj/README.md":                           "# proj\n",
		"/ws/proj/internal/graph/graph.go":             "package graph\n\nfunc New() {}\n",
		"/ws/proj/internal/graph/graph_test.go":        "package graph\n",
		"/ws/proj/internal/graph/notes.txt":            "notes\n",
		"/ws/proj/internal/graph/fixtures/data.json":   "{}\n",
		"/ws/proj/docs/guide.md":                       "guide\n",
		"/ws/proj/.git/HEAD":                           "ref: refs/heads/main\n",
		"/ws/proj/tools/gen/go.mod":                    "module example.com/gen\n",
		"/ws/proj/tools/gen/main.go":                   "package main\n",
		"/ws/py/pyproject.toml":                        "[project]\nname = \"py\"\n",
		"/ws/py/app/__init__.py":                       "",
		"/ws/py/app/models.py":                         modelsPy,
		"/ws/loose.txt":                                "x\n",
	}
	for name, content := range files {
		require.NoError(t, util.WriteFile(fs, name, []byte(content), 0o644))
	}
	return fs
}

func names(descs []api.NodeDescriptor) []string {
	out := make([]string, 0, len(descs))
	for _, d := range descs {
		out = append(out, d.Name)
	}
	return out
}

func list(t *testing.T, b *Backend, kind api.NodeKind, path string, hierarchical bool) []api.NodeDescriptor {
	t.Helper()
	descs, err := b.ListChildren(t.Context(), api.Scope{Kind: kind, URI: api.FileURI(path), Hierarchical: hierarchical})
	require.NoError(t, err)
	return descs
}

func TestProjects(t *testing.T) {
	b := New(newWorkspace(t))
	projects := list(t, b, api.KindWorkspace, "/ws", false)

	assert.Equal(t, []string{"proj", "gen", "py"}, names(projects))
	assert.Equal(t, "file:///ws/proj", projects[0].URI)
	assert.Equal(t, "go", projects[0].Metadata["buildTool"])
	assert.Equal(t, "1.22", projects[0].Metadata["goVersion"])
	assert.Equal(t, "python", projects[2].Metadata["buildTool"])
	for _, p := range projects {
		assert.Equal(t, api.KindProject, p.Kind)
	}
}

func TestProjectChildrenFlat(t *testing.T) {
	b := New(newWorkspace(t))
	kids := list(t, b, api.KindProject, "/ws/proj", false)

	assert.Equal(t, []string{"internal/graph", ".git", "docs", "tools", "main.go", "README.md", "go.mod"}, names(kids))
	assert.Equal(t, api.KindPackage, kids[0].Kind)
	assert.Equal(t, "internal/graph", kids[0].Path)
	assert.Equal(t, api.KindFolder, kids[1].Kind)
	assert.Equal(t, api.KindPrimaryType, kids[4].Kind)
	assert.Equal(t, api.KindFile, kids[5].Kind)
}

func TestProjectChildrenHierarchical(t *testing.T) {
	b := New(newWorkspace(t))
	kids := list(t, b, api.KindProject, "/ws/proj", true)
	assert.Equal(t, []string{"internal", ".git", "docs", "tools", "main.go", "README.md", "go.mod"}, names(kids))

	internal := list(t, b, api.KindPackage, "/ws/proj/internal", true)
	assert.Equal(t, []string{"graph"}, names(internal))
	assert.Equal(t, "internal/graph", internal[0].Path)
}

func TestPackageChildren(t *testing.T) {
	b := New(newWorkspace(t))
	kids := list(t, b, api.KindPackage, "/ws/proj/internal/graph", false)

	assert.Equal(t, []string{"fixtures", "graph.go", "graph_test.go", "notes.txt"}, names(kids))
	assert.Equal(t, api.KindFolder, kids[0].Kind)
	assert.Nil(t, kids[1].Metadata["test"])
	assert.Equal(t, true, kids[2].Metadata["test"])
	assert.Equal(t, "go", kids[2].Metadata["language"])
	assert.Equal(t, api.KindFile, kids[3].Kind)

	folder := list(t, b, api.KindFolder, "/ws/proj/internal/graph/fixtures", false)
	assert.Equal(t, []string{"data.json"}, names(folder))
	assert.Equal(t, api.KindFile, folder[0].Kind)
}

func TestMembers(t *testing.T) {
	b := New(newWorkspace(t))

	t.Run("go", func(t *testing.T) {
		ms := list(t, b, api.KindPrimaryType, "/ws/proj/main.go", false)
		require.Equal(t, []string{"Config", "Load", "main"}, names(ms))
		assert.Equal(t, "type", ms[0].Metadata["symbolKind"])
		assert.Equal(t, "method", ms[1].Metadata["symbolKind"])
		assert.Equal(t, "function", ms[2].Metadata["symbolKind"])
		assert.Equal(t, 3, ms[0].Metadata["line"])
		for _, m := range ms {
			assert.Equal(t, api.KindMember, m.Kind)
			assert.Empty(t, m.URI)
		}
	})

	t.Run("python", func(t *testing.T) {
		ms := list(t, b, api.KindPrimaryType, "/ws/py/app/models.py", false)
		require.Equal(t, []string{"User", "helper"}, names(ms))
		assert.Equal(t, "class", ms[0].Metadata["symbolKind"])
	})

	t.Run("deleted file", func(t *testing.T) {
		assert.Empty(t, list(t, b, api.KindPrimaryType, "/ws/proj/gone.go", false))
	})
}

func TestLeavesAndBadScopes(t *testing.T) {
	b := New(newWorkspace(t))
	assert.Empty(t, list(t, b, api.KindFile, "/ws/proj/README.md", false))

	_, err := b.ListChildren(t.Context(), api.Scope{Kind: api.KindMember})
	assert.ErrorIs(t, err, backend.ErrUnsupportedScope)
	_, err = b.ListChildren(t.Context(), api.Scope{Kind: "bogus", URI: "file:///ws"})
	assert.ErrorIs(t, err, backend.ErrUnsupportedScope)
}

func TestResolvePathFlat(t *testing.T) {
	b := New(newWorkspace(t))
	tests := []struct {
		path string
		want []string
	}{
		{"/ws/proj", []string{"proj"}},
		{"/ws/proj/main.go", []string{"proj", "main.go"}},
		{"/ws/proj/internal/graph/graph.go", []string{"proj", "internal/graph", "graph.go"}},
		{"/ws/proj/internal/graph/fixtures/data.json", []string{"proj", "internal/graph", "fixtures", "data.json"}},
		{"/ws/proj/docs/guide.md", []string{"proj", "docs", "guide.md"}},
		{"/ws/proj/tools/gen/main.go", []string{"gen", "main.go"}},
		{"/ws/proj/internal", nil},
		{"/ws/loose.txt", nil},
		{"/ws/proj/missing.go", nil},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			chain, err := b.ResolvePath(t.Context(), api.FileURI(tt.path))
			require.NoError(t, err)
			if tt.want == nil {
				assert.Empty(t, chain)
				return
			}
			assert.Equal(t, tt.want, names(chain))
			assert.Equal(t, api.FileURI(tt.path), chain[len(chain)-1].URI)
		})
	}
}

func TestResolvePathHierarchical(t *testing.T) {
	b := New(newWorkspace(t), WithPresentation(func() bool { return true }))
	chain, err := b.ResolvePath(t.Context(), "file:///ws/proj/internal/graph/graph.go")
	require.NoError(t, err)
	assert.Equal(t, []string{"proj", "internal", "graph", "graph.go"}, names(chain))
	assert.Equal(t, api.KindPackage, chain[1].Kind)
}

// Every chain ResolvePath returns must be reachable by listing children
// from the project down, matching on name and URI.
func TestResolvedChainsMatchListing(t *testing.T) {
	paths := []string{
		"/ws/proj/main.go",
		"/ws/proj/internal/graph/graph_test.go",
		"/ws/proj/internal/graph/fixtures/data.json",
		"/ws/proj/docs/guide.md",
		"/ws/proj/.git/HEAD",
		"/ws/py/app/models.py",
	}
	for _, hier := range []bool{false, true} {
		b := New(newWorkspace(t), WithPresentation(func() bool { return hier }))
		for _, p := range paths {
			chain, err := b.ResolvePath(t.Context(), api.FileURI(p))
			require.NoError(t, err)
			require.NotEmpty(t, chain, p)

			cur := chain[0]
			for _, want := range chain[1:] {
				kids, err := b.ListChildren(t.Context(), api.ScopeOf(cur, hier))
				require.NoError(t, err)
				found := false
				for _, k := range kids {
					if k.Name == want.Name && k.URI == want.URI {
						found = true
						cur = k
						break
					}
				}
				require.True(t, found, "hierarchical=%v %s: %s not listed under %s", hier, p, want.Name, cur.Name)
			}
		}
	}
}

func TestOSFilesystem(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "go.mod"), []byte("module x\n\ngo 1.25.0\n"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "pkg"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pkg", "x.go"), []byte("package pkg\n\nfunc X() {}\n"), 0o644))

	b := New(osfs.New("/"))
	projects := list(t, b, api.KindWorkspace, dir, false)
	require.Len(t, projects, 1)
	assert.Equal(t, "1.25.0", projects[0].Metadata["goVersion"])

	chain, err := b.ResolvePath(t.Context(), api.FileURI(filepath.Join(dir, "pkg", "x.go")))
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Base(dir), "pkg", "x.go"}, names(chain))
}
