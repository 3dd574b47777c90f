package explorer

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/agentic-research/depview/api"
	"github.com/agentic-research/depview/internal/config"
	"github.com/agentic-research/depview/internal/metrics"
)

// Explorer reveals resources in the tree, materializing the path to them.
type Explorer struct {
	p   *Provider
	log *zap.Logger

	mu     sync.Mutex
	active string
}

func NewExplorer(p *Provider) *Explorer {
	return &Explorer{p: p, log: p.log}
}

// Provider returns the provider the explorer walks.
func (e *Explorer) Provider() *Provider { return e.p }

// Reveal returns the node for uri, loading every ancestor that is not cached
// yet. With checkSync set, nothing is revealed while syncing with the
// editor is turned off. A resource that cannot be located yields nil.
func (e *Explorer) Reveal(ctx context.Context, uri string, checkSync bool) (*Node, error) {
	release, err := e.p.gate.LockReveal(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	n, outcome, err := e.reveal(ctx, uri, checkSync)
	metrics.RecordReveal(outcome)
	e.log.Debug("reveal", zap.String("uri", uri), zap.String("outcome", outcome), zap.Error(err))
	return n, err
}

func (e *Explorer) reveal(ctx context.Context, uri string, checkSync bool) (*Node, string, error) {
	s := e.p.settings.Get()
	if checkSync && !s.SyncWithFolderExplorer {
		return nil, "sync_disabled", nil
	}
	path := api.PathFromURI(uri)
	if !e.revealable(ctx, path, s) {
		return nil, "not_revealable", nil
	}
	if n, ok := e.p.cache.Get(path); ok {
		return n, "cache_hit", nil
	}

	chain, err := e.p.backend.ResolvePath(ctx, api.FileURI(path))
	if err != nil {
		return nil, "error", fmt.Errorf("resolve %s: %w", path, err)
	}
	if len(chain) == 0 {
		return nil, "unresolved", nil
	}

	// start from the deepest cached ancestor on the chain instead of the roots
	if anc, ok := e.p.cache.NearestAncestor(path); ok {
		for i, d := range chain {
			if !anc.matches(d) {
				continue
			}
			n, err := e.p.walk(ctx, anc, chain[i+1:])
			if err != nil {
				return nil, "error", err
			}
			if n != nil {
				return n, "ancestor", nil
			}
			break
		}
	}

	n, err := e.p.RevealPaths(ctx, chain)
	if err != nil {
		return nil, "error", err
	}
	if n == nil {
		return nil, "not_found", nil
	}
	return n, "resolved", nil
}

// revealable accepts local paths inside a workspace folder while the backend
// is ready.
func (e *Explorer) revealable(ctx context.Context, path string, s config.Settings) bool {
	if path == "" {
		return false
	}
	inside := false
	for _, ws := range s.Workspaces {
		if path == ws.Path || strings.HasPrefix(path, ws.Path+string(filepath.Separator)) {
			inside = true
			break
		}
	}
	return inside && e.p.backend.Ready(ctx)
}

// Focus records uri as the active document and reveals it if syncing with
// the editor is on.
func (e *Explorer) Focus(ctx context.Context, uri string) (*Node, error) {
	e.mu.Lock()
	e.active = uri
	e.mu.Unlock()
	return e.Reveal(ctx, uri, true)
}

// Active returns the last focused document.
func (e *Explorer) Active() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

// Run reveals the active document again after every tree change until ctx
// is done or the provider is closed.
func (e *Explorer) Run(ctx context.Context) error {
	ch := e.p.Changes()
	defer e.p.Unsubscribe(ch)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-ch:
			if !ok {
				return nil
			}
			uri := e.Active()
			if uri == "" {
				continue
			}
			if _, err := e.Reveal(ctx, uri, true); err != nil {
				e.log.Warn("reveal active document", zap.String("uri", uri), zap.Error(err))
			}
		}
	}
}
