package explorer

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agentic-research/depview/api"
	"github.com/agentic-research/depview/internal/backend/backendtest"
	"github.com/agentic-research/depview/internal/config"
	"github.com/agentic-research/depview/internal/refresh"
)

var (
	wsDesc   = api.NodeDescriptor{Kind: api.KindWorkspace, Name: "ws", URI: "file:///ws", Path: "/ws"}
	projDesc = api.NodeDescriptor{Kind: api.KindProject, Name: "proj", URI: "file:///ws/proj", Metadata: map[string]any{"buildTool": "go"}}
	pkgDesc  = api.NodeDescriptor{Kind: api.KindPackage, Name: "pkg", URI: "file:///ws/proj/pkg", Path: "pkg"}
	docsDesc = api.NodeDescriptor{Kind: api.KindFolder, Name: "docs", URI: "file:///ws/proj/docs"}
	aDesc    = api.NodeDescriptor{Kind: api.KindPrimaryType, Name: "a.go", URI: "file:///ws/proj/pkg/a.go", Metadata: map[string]any{"language": "go"}}
	aTest    = api.NodeDescriptor{Kind: api.KindPrimaryType, Name: "a_test.go", URI: "file:///ws/proj/pkg/a_test.go", Metadata: map[string]any{"test": true}}
	fooDesc  = api.NodeDescriptor{Kind: api.KindMember, Name: "Foo", Metadata: map[string]any{"symbolKind": "function"}}
)

type env struct {
	p     *Provider
	fake  *backendtest.Fake
	clock *refresh.ManualClock
	store *config.Store
}

func newEnv(t *testing.T, mutate ...func(*config.Settings)) *env {
	t.Helper()
	s := config.Default()
	s.Workspaces = []config.Workspace{{Name: "ws", Path: "/ws"}}
	for _, m := range mutate {
		m(&s)
	}

	fake := backendtest.New()
	fake.SetChildren(wsDesc, projDesc)
	fake.SetChildren(projDesc, pkgDesc, docsDesc)
	fake.SetChildren(pkgDesc, aDesc, aTest)
	fake.SetChildren(aDesc, fooDesc)
	fake.SetChain(aDesc.URI, projDesc, pkgDesc, aDesc)
	fake.SetChain(pkgDesc.URI, projDesc, pkgDesc)

	clock := refresh.NewManualClock()
	store := config.NewStore(s)
	p := NewProvider(fake, store, WithClock(clock))
	t.Cleanup(p.Close)
	return &env{p: p, fake: fake, clock: clock, store: store}
}

// expand loads the path proj/pkg/a.go and returns the nodes along it.
func (e *env) expand(t *testing.T) (proj, pkg, a *Node) {
	t.Helper()
	ctx := t.Context()
	roots, err := e.p.GetChildren(ctx, nil)
	require.NoError(t, err)
	require.Len(t, roots, 1)
	proj = roots[0]

	kids, err := e.p.GetChildren(ctx, proj)
	require.NoError(t, err)
	require.NotEmpty(t, kids)
	pkg = kids[0]

	kids, err = e.p.GetChildren(ctx, pkg)
	require.NoError(t, err)
	require.Len(t, kids, 2)
	a = kids[0]
	return proj, pkg, a
}
