package backend

import (
	"context"
	"sync"

	"github.com/agentic-research/depview/api"
)

// HotSwap is a thread-safe wrapper that allows swapping the underlying backend.
type HotSwap struct {
	mu      sync.RWMutex
	current Backend
}

func NewHotSwap(initial Backend) *HotSwap {
	if initial == nil {
		initial = Unavailable{}
	}
	return &HotSwap{current: initial}
}

// Swap replaces the current backend and returns the previous one so the
// caller can close it.
func (h *HotSwap) Swap(next Backend) Backend {
	if next == nil {
		next = Unavailable{}
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	prev := h.current
	h.current = next
	return prev
}

// Current returns the active backend.
func (h *HotSwap) Current() Backend {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

// Ready delegates to the current backend.
func (h *HotSwap) Ready(ctx context.Context) bool {
	return h.Current().Ready(ctx)
}

// ListChildren delegates to the current backend.
func (h *HotSwap) ListChildren(ctx context.Context, scope api.Scope) ([]api.NodeDescriptor, error) {
	return h.Current().ListChildren(ctx, scope)
}

// ResolvePath delegates to the current backend.
func (h *HotSwap) ResolvePath(ctx context.Context, uri string) ([]api.NodeDescriptor, error) {
	return h.Current().ResolvePath(ctx, uri)
}
