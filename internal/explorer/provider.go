// Package explorer materializes the dependency tree lazily from a backend and
// keeps it in sync with refresh requests.
package explorer

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/agentic-research/depview/api"
	"github.com/agentic-research/depview/internal/backend"
	"github.com/agentic-research/depview/internal/config"
	"github.com/agentic-research/depview/internal/events"
	"github.com/agentic-research/depview/internal/gate"
	"github.com/agentic-research/depview/internal/logging"
	"github.com/agentic-research/depview/internal/metrics"
	"github.com/agentic-research/depview/internal/nodecache"
	"github.com/agentic-research/depview/internal/refresh"
)

// Change announces that the subtree under Node was dropped. A nil Node means
// the whole tree.
type Change struct {
	Node *Node
}

// Root reports whether the whole tree changed.
func (c Change) Root() bool { return c.Node == nil }

// Option configures a Provider.
type Option func(*options)

type options struct {
	log   *zap.Logger
	clock refresh.Clock
}

func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithClock sets the clock driving refresh debouncing.
func WithClock(c refresh.Clock) Option {
	return func(o *options) { o.clock = c }
}

// Provider answers tree queries, caching every node it hands out.
type Provider struct {
	backend    backend.Backend
	settings   *config.Store
	cache      *nodecache.Cache[*Node]
	arena      *arena
	gate       *gate.Gate
	coalescer  *refresh.Coalescer[*Node]
	changes    *events.Broadcaster[Change]
	loads      singleflight.Group
	classifier atomic.Pointer[Classifier]
	log        *zap.Logger

	mu      sync.Mutex
	roots   []*Node
	rootGen uint64
}

func NewProvider(b backend.Backend, settings *config.Store, opts ...Option) *Provider {
	o := options{clock: refresh.SystemClock{}}
	for _, opt := range opts {
		opt(&o)
	}
	p := &Provider{
		backend:  b,
		settings: settings,
		cache:    nodecache.New[*Node](),
		arena:    newArena(),
		gate:     gate.New(),
		changes:  events.NewBroadcaster[Change](),
		log:      logging.OrNop(o.log),
	}
	p.coalescer = refresh.New[*Node](settings.Get().RefreshDelay(), p.doRefresh, refresh.WithClock(o.clock))
	p.compileClassifier()
	return p
}

func (p *Provider) compileClassifier() {
	markers := p.settings.Get().TestMarkers
	c, err := NewClassifier(markers)
	if err != nil {
		p.log.Warn("invalid test markers, using defaults", zap.Error(err))
		c, _ = NewClassifier(config.DefaultTestMarkers)
	}
	p.classifier.Store(c)
}

// GetChildren returns the children of n, or the top-level nodes when n is
// nil. A backend that is not ready yields no children.
func (p *Provider) GetChildren(ctx context.Context, n *Node) ([]*Node, error) {
	if !p.backend.Ready(ctx) {
		return nil, nil
	}
	var (
		kids []*Node
		err  error
	)
	if n == nil {
		kids, err = p.rootNodes(ctx)
	} else {
		kids, err = p.children(ctx, n)
	}
	metrics.SetNodeCacheEntries(p.cache.Len())
	return kids, err
}

// GetParent returns the parent of n.
func (p *Provider) GetParent(n *Node) *Node {
	if n == nil {
		return nil
	}
	return n.Parent()
}

// IsTest reports whether n belongs to test code.
func (p *Provider) IsTest(n *Node) bool {
	return p.classifier.Load().IsTest(n.Metadata())
}

// Expandable reports whether n can have children under the current settings.
func (p *Provider) Expandable(n *Node) bool {
	switch n.Kind() {
	case api.KindMember, api.KindFile:
		return false
	case api.KindPrimaryType:
		return p.settings.Get().ShowMembers
	default:
		return true
	}
}

// Refresh schedules the subtree under n, or the whole tree when n is nil, to
// be dropped and rebuilt on demand.
func (p *Provider) Refresh(n *Node, debounce bool) {
	metrics.RecordRefreshRequest(n == nil, debounce)
	p.coalescer.Request(n, debounce)
}

// Reconfigure applies a settings change to a running provider.
func (p *Provider) Reconfigure(c config.Change) {
	if c.Delay {
		p.coalescer.SetDelay(p.settings.Get().RefreshDelay())
	}
	if c.Refresh {
		p.compileClassifier()
	}
	if c.Refresh || c.Backend {
		p.Refresh(nil, false)
	}
}

// Node returns the cached node at path.
func (p *Provider) Node(path string) (*Node, bool) {
	return p.cache.Get(path)
}

// NearestAncestor returns the deepest cached node at or above path.
func (p *Provider) NearestAncestor(path string) (*Node, bool) {
	return p.cache.NearestAncestor(path)
}

// Changes subscribes to change notifications.
func (p *Provider) Changes() chan Change {
	return p.changes.Subscribe()
}

// Unsubscribe ends a subscription returned by Changes.
func (p *Provider) Unsubscribe(ch chan Change) {
	p.changes.Unsubscribe(ch)
}

// Close stops pending refreshes and closes every subscription.
func (p *Provider) Close() {
	p.coalescer.Close()
	p.changes.Close()
}

// RootProjects returns the project nodes across all workspace folders.
func (p *Provider) RootProjects(ctx context.Context) ([]*Node, error) {
	roots, err := p.GetChildren(ctx, nil)
	if err != nil || len(roots) == 0 || roots[0].Kind() == api.KindProject {
		return roots, err
	}

	perWorkspace := make([][]*Node, len(roots))
	g, gctx := errgroup.WithContext(ctx)
	for i, ws := range roots {
		g.Go(func() error {
			kids, err := p.GetChildren(gctx, ws)
			perWorkspace[i] = kids
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	var projects []*Node
	for _, kids := range perWorkspace {
		projects = append(projects, kids...)
	}
	return projects, nil
}

// RevealPaths materializes the chain of descriptors, starting at a project,
// and returns the node for the last one. It returns nil if any step has no
// matching child.
func (p *Provider) RevealPaths(ctx context.Context, chain []api.NodeDescriptor) (*Node, error) {
	if len(chain) == 0 {
		return nil, nil
	}
	projects, err := p.RootProjects(ctx)
	if err != nil {
		return nil, err
	}
	for _, pr := range projects {
		if pr.matches(chain[0]) {
			return p.walk(ctx, pr, chain[1:])
		}
	}
	return nil, nil
}

func (p *Provider) walk(ctx context.Context, from *Node, rest []api.NodeDescriptor) (*Node, error) {
	cur := from
	for _, d := range rest {
		kids, err := p.GetChildren(ctx, cur)
		if err != nil {
			return nil, err
		}
		var next *Node
		for _, k := range kids {
			if k.matches(d) {
				next = k
				break
			}
		}
		if next == nil {
			return nil, nil
		}
		cur = next
	}
	return cur, nil
}

func (p *Provider) children(ctx context.Context, n *Node) ([]*Node, error) {
	if kids, ok := n.loadedChildren(p.cache.Save); ok {
		return kids, nil
	}
	if !p.Expandable(n) {
		return nil, nil
	}
	// The load is shared, so it must outlive whichever caller started it.
	// Each caller still gives up on its own context.
	loadCtx := context.WithoutCancel(ctx)
	ch := p.loads.DoChan(strconv.FormatUint(uint64(n.id), 10), func() (any, error) {
		gen := n.generation()
		s := p.settings.Get()
		descs, err := p.backend.ListChildren(loadCtx, api.ScopeOf(n.desc, s.Hierarchical()))
		if err != nil {
			return nil, fmt.Errorf("list children of %s: %w", n, err)
		}
		descs = backend.Filter(descs, backend.FilterOptions{
			ShowNonSource: s.ShowNonSource,
			Exclude:       s.Exclude,
		})
		kids, err := p.materialize(n.id, descs)
		if err != nil {
			return nil, err
		}
		if !n.setChildren(kids, gen, p.cache.Save) {
			// refreshed while loading; hand the result out but keep it out of the cache
			p.arena.release(kids...)
		}
		return kids, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.([]*Node), nil
	}
}

func (p *Provider) rootNodes(ctx context.Context) ([]*Node, error) {
	return gate.Rebuild(ctx, p.gate, p.cachedRoots, p.buildRoots)
}

// cachedRoots re-saves the current roots, since a subtree refresh of a
// top-level node evicts it and no parent listing will put it back.
func (p *Provider) cachedRoots() ([]*Node, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.roots == nil {
		return nil, false
	}
	p.cache.Save(p.roots...)
	return p.roots, true
}

func (p *Provider) buildRoots(ctx context.Context) ([]*Node, error) {
	p.mu.Lock()
	gen := p.rootGen
	p.mu.Unlock()

	s := p.settings.Get()
	var descs []api.NodeDescriptor
	switch len(s.Workspaces) {
	case 0:
		return nil, nil
	case 1:
		ws := s.Workspaces[0]
		var err error
		descs, err = p.backend.ListChildren(ctx, api.Scope{
			Kind:         api.KindWorkspace,
			URI:          api.FileURI(ws.Path),
			Path:         ws.Path,
			Hierarchical: s.Hierarchical(),
		})
		if err != nil {
			return nil, fmt.Errorf("list projects of %s: %w", ws.Path, err)
		}
	default:
		for _, ws := range s.Workspaces {
			descs = append(descs, api.NodeDescriptor{
				Kind: api.KindWorkspace,
				Name: ws.Name,
				URI:  api.FileURI(ws.Path),
				Path: ws.Path,
			})
		}
	}

	nodes, err := p.materialize(0, descs)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if gen != p.rootGen {
		p.arena.release(nodes...)
		return nodes, nil
	}
	p.roots = nodes
	p.cache.Save(nodes...)
	return nodes, nil
}

func (p *Provider) materialize(parentID uint32, descs []api.NodeDescriptor) ([]*Node, error) {
	nodes := make([]*Node, 0, len(descs))
	for _, d := range descs {
		if err := backend.Validate(d); err != nil {
			p.arena.release(nodes...)
			return nil, err
		}
		n := &Node{parentID: parentID, desc: d}
		p.arena.add(n)
		nodes = append(nodes, n)
	}
	return nodes, nil
}

// doRefresh runs under the coalescer lock.
func (p *Provider) doRefresh(n *Node) {
	var evicted uint64
	if n == nil {
		p.mu.Lock()
		p.roots = nil
		p.rootGen++
		p.mu.Unlock()
		for _, old := range p.arena.reset() {
			old.invalidate()
		}
		evicted = p.cache.RemoveSubtree(nil)
	} else {
		p.invalidateTree(n, false)
		if path := api.PathFromURI(n.URI()); path != "" {
			if cur, ok := p.cache.Get(path); ok && cur != n {
				p.invalidateTree(cur, false)
			}
		}
		evicted = p.cache.RemoveSubtree(n)
	}

	metrics.RecordRefreshFire(n == nil)
	metrics.RecordEvictions(evicted)
	metrics.SetNodeCacheEntries(p.cache.Len())
	p.log.Debug("refresh",
		zap.Stringer("node", n),
		zap.Uint64("evicted", evicted))
	p.changes.Publish(Change{Node: n})
}

func (p *Provider) invalidateTree(n *Node, release bool) {
	for _, c := range n.invalidate() {
		p.invalidateTree(c, true)
	}
	if release {
		p.arena.release(n)
	}
}
