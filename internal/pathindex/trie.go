// Package pathindex maps filesystem paths to values through a trie keyed by
// path segments.
package pathindex

import (
	"path/filepath"
	"strings"

	"github.com/agentic-research/depview/api"
)

// Locatable is anything addressed by a resource URI.
type Locatable interface {
	URI() string
}

// Node is one segment of the trie. A node without a value is a placeholder
// that only exists to hold descendants.
type Node[T any] struct {
	value    T
	has      bool
	children map[string]*Node[T]
}

func newNode[T any]() *Node[T] {
	return &Node[T]{children: make(map[string]*Node[T])}
}

// Value returns the stored value, if any.
func (n *Node[T]) Value() (T, bool) {
	return n.value, n.has
}

// Children returns the segment map. Callers must not mutate it.
func (n *Node[T]) Children() map[string]*Node[T] {
	return n.children
}

// Prune drops the value and every descendant of n. The node itself stays in
// place as a placeholder.
func (n *Node[T]) Prune() {
	var zero T
	n.value = zero
	n.has = false
	n.children = make(map[string]*Node[T])
}

// Walk calls fn for n's value and every value beneath it.
func (n *Node[T]) Walk(fn func(T)) {
	if n.has {
		fn(n.value)
	}
	for _, c := range n.children {
		c.Walk(fn)
	}
}

// Trie indexes values by the filesystem path of their URI. It is not safe for
// concurrent use.
type Trie[T Locatable] struct {
	root *Node[T]
}

func New[T Locatable]() *Trie[T] {
	return &Trie[T]{root: newNode[T]()}
}

// Insert stores v at the path of its URI, replacing any previous value there.
// Values whose URI has no filesystem path are ignored.
func (t *Trie[T]) Insert(v T) {
	p := api.PathFromURI(v.URI())
	if p == "" {
		return
	}
	cur := t.root
	for _, seg := range Segments(p) {
		next, ok := cur.children[seg]
		if !ok {
			next = newNode[T]()
			cur.children[seg] = next
		}
		cur = next
	}
	cur.value = v
	cur.has = true
}

// Find returns the trie node at exactly path, or nil if the path was never
// inserted. The returned node may be a placeholder.
func (t *Trie[T]) Find(path string) *Node[T] {
	cur := t.root
	for _, seg := range Segments(path) {
		next, ok := cur.children[seg]
		if !ok {
			return nil
		}
		cur = next
	}
	return cur
}

// FindCovering walks toward path and stops at the first node that holds a
// value, so a cached ancestor answers for everything beneath it.
func (t *Trie[T]) FindCovering(path string) *Node[T] {
	cur := t.root
	for _, seg := range Segments(path) {
		if cur.has {
			return cur
		}
		next, ok := cur.children[seg]
		if !ok {
			return nil
		}
		cur = next
	}
	return cur
}

// FindNearestAncestorWithValue returns the deepest node on the way to path
// that holds a value, possibly the node at path itself.
func (t *Trie[T]) FindNearestAncestorWithValue(path string) *Node[T] {
	var found *Node[T]
	cur := t.root
	if cur.has {
		found = cur
	}
	for _, seg := range Segments(path) {
		next, ok := cur.children[seg]
		if !ok {
			break
		}
		cur = next
		if cur.has {
			found = cur
		}
	}
	return found
}

// Reset empties the trie.
func (t *Trie[T]) Reset() {
	t.root = newNode[T]()
}

// Root returns the placeholder root node.
func (t *Trie[T]) Root() *Node[T] {
	return t.root
}

// Segments splits a filesystem path into its non-empty segments.
func Segments(p string) []string {
	parts := strings.Split(filepath.ToSlash(p), "/")
	out := parts[:0]
	for _, s := range parts {
		if s != "" && s != "." {
			out = append(out, s)
		}
	}
	return out
}
