// Package nodecache keeps one live tree node per resource location.
package nodecache

import (
	"sync"

	"github.com/RoaringBitmap/roaring"

	"github.com/agentic-research/depview/api"
	"github.com/agentic-research/depview/internal/pathindex"
)

// Entry is a cacheable tree node. The zero value of T stands for "the whole
// tree" in RemoveSubtree.
type Entry interface {
	comparable
	URI() string
	ID() uint32
}

// Cache indexes materialized nodes by the filesystem path of their URI and
// tracks the ids of every node it currently holds.
type Cache[T Entry] struct {
	mu    sync.RWMutex
	index *pathindex.Trie[T]
	live  *roaring.Bitmap
}

func New[T Entry]() *Cache[T] {
	return &Cache[T]{
		index: pathindex.New[T](),
		live:  roaring.New(),
	}
}

// Save indexes nodes. Nodes without a file URI are skipped. A node saved at
// an occupied location replaces the previous occupant.
func (c *Cache[T]) Save(nodes ...T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, n := range nodes {
		p := api.PathFromURI(n.URI())
		if p == "" {
			continue
		}
		if old := c.index.Find(p); old != nil {
			if v, ok := old.Value(); ok {
				c.live.Remove(v.ID())
			}
		}
		c.index.Insert(n)
		c.live.Add(n.ID())
	}
}

// Get returns the node cached at exactly path.
func (c *Cache[T]) Get(path string) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var zero T
	n := c.index.Find(path)
	if n == nil {
		return zero, false
	}
	return n.Value()
}

// NearestAncestor returns the deepest cached node at or above path.
func (c *Cache[T]) NearestAncestor(path string) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var zero T
	n := c.index.FindNearestAncestorWithValue(path)
	if n == nil {
		return zero, false
	}
	return n.Value()
}

// Covered reports whether path or one of its ancestors is cached.
func (c *Cache[T]) Covered(path string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := c.index.FindCovering(path)
	if n == nil {
		return false
	}
	_, ok := n.Value()
	return ok
}

// RemoveSubtree evicts node and everything cached beneath its location. The
// zero value evicts everything. It returns the number of evicted nodes.
func (c *Cache[T]) RemoveSubtree(node T) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero T
	if node == zero {
		n := c.live.GetCardinality()
		c.index.Reset()
		c.live.Clear()
		return n
	}

	p := api.PathFromURI(node.URI())
	if p == "" {
		return 0
	}
	tn := c.index.Find(p)
	if tn == nil {
		return 0
	}
	evicted := roaring.New()
	tn.Walk(func(v T) { evicted.Add(v.ID()) })
	tn.Prune()
	c.live.AndNot(evicted)
	return evicted.GetCardinality()
}

// Contains reports whether the node with id is currently cached.
func (c *Cache[T]) Contains(id uint32) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.live.Contains(id)
}

// Len returns the number of cached nodes.
func (c *Cache[T]) Len() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.live.GetCardinality()
}
