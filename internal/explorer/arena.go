package explorer

import "sync"

// arena owns every live node and resolves the parent ids nodes hold instead
// of pointers. Released ids are never reused.
type arena struct {
	mu    sync.RWMutex
	next  uint32
	nodes map[uint32]*Node
}

func newArena() *arena {
	return &arena{nodes: make(map[uint32]*Node)}
}

func (a *arena) add(n *Node) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.next++
	n.id = a.next
	n.arena = a
	a.nodes[n.id] = n
}

// get returns the node with id, or nil if it was released. id 0 is the
// invisible root.
func (a *arena) get(id uint32) *Node {
	if id == 0 {
		return nil
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.nodes[id]
}

func (a *arena) release(nodes ...*Node) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, n := range nodes {
		delete(a.nodes, n.id)
	}
}

// reset releases everything and returns what was live.
func (a *arena) reset() []*Node {
	a.mu.Lock()
	defer a.mu.Unlock()
	old := make([]*Node, 0, len(a.nodes))
	for _, n := range a.nodes {
		old = append(old, n)
	}
	a.nodes = make(map[uint32]*Node)
	return old
}

func (a *arena) len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.nodes)
}
