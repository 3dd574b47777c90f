// Package refresh merges bursts of subtree refresh requests into as few
// evictions as possible.
package refresh

import (
	"sync"
	"time"
)

// DefaultDelay is the debounce interval used when none is configured.
const DefaultDelay = 2000 * time.Millisecond

// Target is a refreshable subtree. The zero value of T means the whole tree.
type Target[T any] interface {
	comparable
	IsItselfOrAncestorOf(other T) bool
}

// Kind is the state of the pending request.
type Kind int

const (
	Idle Kind = iota
	Root
	Subtree
)

func (k Kind) String() string {
	switch k {
	case Root:
		return "root"
	case Subtree:
		return "subtree"
	default:
		return "idle"
	}
}

// Pending is the request waiting for the debounce timer.
type Pending[T any] struct {
	Kind Kind
	Node T
}

// Next merges target into p. flushFirst is set when p covers a subtree
// disjoint from target and must fire before next takes its place.
func Next[T Target[T]](p Pending[T], target T) (next Pending[T], flushFirst bool) {
	var zero T
	switch {
	case target == zero || p.Kind == Root:
		return Pending[T]{Kind: Root}, false
	case p.Kind == Idle:
		return Pending[T]{Kind: Subtree, Node: target}, false
	case target.IsItselfOrAncestorOf(p.Node):
		return Pending[T]{Kind: Subtree, Node: target}, false
	case p.Node.IsItselfOrAncestorOf(target):
		return p, false
	default:
		return Pending[T]{Kind: Subtree, Node: target}, true
	}
}

// FireFunc performs the refresh. The zero value of T means the whole tree.
type FireFunc[T any] func(target T)

// Coalescer debounces refresh requests. Requests that land while a timer is
// pending are merged with Next, and every request restarts the timer.
//
// The fire callback runs with the coalescer lock held so evictions happen in
// request order; it must not call back into the Coalescer.
type Coalescer[T Target[T]] struct {
	mu      sync.Mutex
	clock   Clock
	delay   time.Duration
	fire    FireFunc[T]
	pending Pending[T]
	timer   Timer
	gen     uint64
	closed  bool
}

// Option configures a Coalescer.
type Option func(*options)

type options struct {
	clock Clock
}

// WithClock replaces the system clock, mostly for tests.
func WithClock(c Clock) Option {
	return func(o *options) { o.clock = c }
}

func New[T Target[T]](delay time.Duration, fire FireFunc[T], opts ...Option) *Coalescer[T] {
	o := options{clock: SystemClock{}}
	for _, opt := range opts {
		opt(&o)
	}
	if delay <= 0 {
		delay = DefaultDelay
	}
	return &Coalescer[T]{clock: o.clock, delay: delay, fire: fire}
}

// Request schedules a refresh of target. With debounce unset the merged
// request fires before Request returns.
func (c *Coalescer[T]) Request(target T, debounce bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	next, flushFirst := Next(c.pending, target)
	if flushFirst {
		c.fireLocked()
	}
	c.pending = next
	c.restartLocked()
	if !debounce {
		c.fireLocked()
	}
}

// Flush fires the pending request now, if any.
func (c *Coalescer[T]) Flush() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fireLocked()
}

// Cancel drops the pending request without firing it.
func (c *Coalescer[T]) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
	c.pending = Pending[T]{}
}

// SetDelay changes the debounce interval. A pending request keeps waiting,
// on a timer restarted with the new interval.
func (c *Coalescer[T]) SetDelay(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d <= 0 {
		d = DefaultDelay
	}
	c.delay = d
	if c.pending.Kind != Idle {
		c.restartLocked()
	}
}

// Delay returns the current debounce interval.
func (c *Coalescer[T]) Delay() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.delay
}

// Pending returns the request waiting for the timer.
func (c *Coalescer[T]) Pending() Pending[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending
}

// Close drops any pending request and ignores later ones.
func (c *Coalescer[T]) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
	c.pending = Pending[T]{}
	c.closed = true
}

func (c *Coalescer[T]) restartLocked() {
	c.stopLocked()
	gen := c.gen
	c.timer = c.clock.AfterFunc(c.delay, func() { c.onTimer(gen) })
}

func (c *Coalescer[T]) stopLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	// a callback that already started waiting on mu sees a stale generation
	c.gen++
}

func (c *Coalescer[T]) onTimer(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return
	}
	c.fireLocked()
}

func (c *Coalescer[T]) fireLocked() {
	c.stopLocked()
	p := c.pending
	c.pending = Pending[T]{}
	if p.Kind == Idle {
		return
	}
	c.fire(p.Node)
}
