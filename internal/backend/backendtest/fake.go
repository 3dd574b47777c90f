// Package backendtest provides an in-memory backend for tests.
package backendtest

import (
	"context"
	"strings"
	"sync"

	"github.com/agentic-research/depview/api"
)

// Fake serves a fixed descriptor tree keyed by parent URI.
type Fake struct {
	mu       sync.Mutex
	ready    bool
	children map[string][]api.NodeDescriptor
	chains   map[string][]api.NodeDescriptor
	errs     map[string]error
	calls    map[string]int

	// OnList, when set, runs before every ListChildren answer.
	OnList func(scope api.Scope)
}

func New() *Fake {
	return &Fake{
		ready:    true,
		children: make(map[string][]api.NodeDescriptor),
		chains:   make(map[string][]api.NodeDescriptor),
		errs:     make(map[string]error),
		calls:    make(map[string]int),
	}
}

// SetChildren sets the children listed for parent.
func (f *Fake) SetChildren(parent api.NodeDescriptor, children ...api.NodeDescriptor) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.children[parent.URI] = children
}

// SetChain sets the ResolvePath answer for uri.
func (f *Fake) SetChain(uri string, chain ...api.NodeDescriptor) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chains[uri] = chain
}

// SetError makes ListChildren fail for parent.
func (f *Fake) SetError(parent api.NodeDescriptor, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[parent.URI] = err
}

// SetReady toggles readiness.
func (f *Fake) SetReady(ready bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ready = ready
}

// Calls returns how often op ("list" or "resolve") was called for uri. An
// empty uri counts every call.
func (f *Fake) Calls(op, uri string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if uri != "" {
		return f.calls[op+" "+uri]
	}
	n := 0
	for k, v := range f.calls {
		if strings.HasPrefix(k, op+" ") {
			n += v
		}
	}
	return n
}

// ResetCalls zeroes the call counters.
func (f *Fake) ResetCalls() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = make(map[string]int)
}

func (f *Fake) Ready(context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ready
}

func (f *Fake) ListChildren(ctx context.Context, scope api.Scope) ([]api.NodeDescriptor, error) {
	if f.OnList != nil {
		f.OnList(scope)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key := scope.URI
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["list "+key]++
	if err := f.errs[key]; err != nil {
		return nil, err
	}
	return append([]api.NodeDescriptor(nil), f.children[key]...), nil
}

func (f *Fake) ResolvePath(_ context.Context, uri string) ([]api.NodeDescriptor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["resolve "+uri]++
	return append([]api.NodeDescriptor(nil), f.chains[uri]...), nil
}
