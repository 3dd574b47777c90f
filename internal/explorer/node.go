package explorer

import (
	"path/filepath"
	"strings"
	"sync"

	"github.com/agentic-research/depview/api"
)

// Node is one materialized element of the dependency tree. Children are
// loaded on first expansion and dropped when the node's subtree is refreshed.
type Node struct {
	id       uint32
	parentID uint32
	desc     api.NodeDescriptor
	arena    *arena

	mu       sync.Mutex
	children []*Node
	loaded   bool
	gen      uint64
}

func (n *Node) ID() uint32 { return n.id }

func (n *Node) URI() string { return n.desc.URI }

func (n *Node) Name() string { return n.desc.Name }

func (n *Node) Kind() api.NodeKind { return n.desc.Kind }

func (n *Node) Path() string { return n.desc.Path }

func (n *Node) Metadata() map[string]any { return n.desc.Metadata }

// Descriptor returns the backend description the node was built from.
func (n *Node) Descriptor() api.NodeDescriptor { return n.desc }

func (n *Node) String() string {
	if n == nil {
		return "<root>"
	}
	if n.desc.URI != "" {
		return string(n.desc.Kind) + " " + n.desc.URI
	}
	return string(n.desc.Kind) + " " + n.desc.Name
}

// Parent returns the parent node, or nil for top-level nodes and for nodes
// whose parent has since been released by a refresh.
func (n *Node) Parent() *Node {
	if n.arena == nil {
		return nil
	}
	return n.arena.get(n.parentID)
}

// IsItselfOrAncestorOf reports whether other lies in the subtree rooted at n.
// Nodes are compared by resource location, so a rebuilt node at the same
// location counts as the same node. When a refresh has released part of
// other's parent chain, containment falls back to file paths.
func (n *Node) IsItselfOrAncestorOf(other *Node) bool {
	var last *Node
	for cur := other; cur != nil; cur = cur.Parent() {
		if n.sameLocation(cur) {
			return true
		}
		last = cur
	}
	if last == nil || last.parentID == 0 {
		return false
	}
	return n.containsPath(other)
}

func (n *Node) containsPath(o *Node) bool {
	dir, p := api.PathFromURI(n.desc.URI), api.PathFromURI(o.desc.URI)
	if dir == "" || p == "" {
		return false
	}
	return p == dir || strings.HasPrefix(p, strings.TrimSuffix(dir, string(filepath.Separator))+string(filepath.Separator))
}

func (n *Node) sameLocation(o *Node) bool {
	if n == o {
		return true
	}
	return n.desc.URI != "" && n.desc.URI == o.desc.URI && n.desc.Kind == o.desc.Kind
}

// matches reports whether d describes the same tree element as n.
func (n *Node) matches(d api.NodeDescriptor) bool {
	return n.desc.Name == d.Name && n.desc.URI == d.URI
}

// Loaded reports whether the children have been fetched.
func (n *Node) Loaded() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.loaded
}

func (n *Node) generation() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.gen
}

// loadedChildren returns the children if they were fetched, running save
// while the node is locked so an invalidation cannot interleave.
func (n *Node) loadedChildren(save func(...*Node)) ([]*Node, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.loaded {
		return nil, false
	}
	save(n.children...)
	return n.children, true
}

// setChildren stores kids unless the node was invalidated after gen was
// read. save runs under the node lock on success.
func (n *Node) setChildren(kids []*Node, gen uint64, save func(...*Node)) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.gen != gen {
		return false
	}
	n.children = kids
	n.loaded = true
	save(kids...)
	return true
}

// invalidate forgets the children and returns them.
func (n *Node) invalidate() []*Node {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.gen++
	kids := n.children
	n.children = nil
	n.loaded = false
	return kids
}
