package refresh

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// path-like targets: "/a" is an ancestor of "/a/b"
type target struct{ path string }

func (t *target) IsItselfOrAncestorOf(other *target) bool {
	if other == nil {
		return false
	}
	return t.path == other.path || len(other.path) > len(t.path) && other.path[:len(t.path)+1] == t.path+"/"
}

func (t *target) String() string {
	if t == nil {
		return "<root>"
	}
	return t.path
}

type recorder struct {
	mu    sync.Mutex
	fired []string
}

func (r *recorder) fire(t *target) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fired = append(r.fired, t.String())
}

func (r *recorder) calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.fired...)
}

func newTest(t *testing.T) (*Coalescer[*target], *recorder, *ManualClock) {
	t.Helper()
	clk := NewManualClock()
	rec := &recorder{}
	c := New[*target](2*time.Second, rec.fire, WithClock(clk))
	t.Cleanup(c.Close)
	return c, rec, clk
}

func TestNext(t *testing.T) {
	a := &target{"/a"}
	ab := &target{"/a/b"}
	c := &target{"/c"}

	tests := []struct {
		name      string
		pending   Pending[*target]
		target    *target
		want      Pending[*target]
		wantFlush bool
	}{
		{"idle to subtree", Pending[*target]{}, ab, Pending[*target]{Kind: Subtree, Node: ab}, false},
		{"idle to root", Pending[*target]{}, nil, Pending[*target]{Kind: Root}, false},
		{"root absorbs node", Pending[*target]{Kind: Root}, ab, Pending[*target]{Kind: Root}, false},
		{"root request wins", Pending[*target]{Kind: Subtree, Node: ab}, nil, Pending[*target]{Kind: Root}, false},
		{"ancestor replaces", Pending[*target]{Kind: Subtree, Node: ab}, a, Pending[*target]{Kind: Subtree, Node: a}, false},
		{"same node", Pending[*target]{Kind: Subtree, Node: a}, a, Pending[*target]{Kind: Subtree, Node: a}, false},
		{"descendant absorbed", Pending[*target]{Kind: Subtree, Node: a}, ab, Pending[*target]{Kind: Subtree, Node: a}, false},
		{"disjoint flushes", Pending[*target]{Kind: Subtree, Node: a}, c, Pending[*target]{Kind: Subtree, Node: c}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, flush := Next(tt.pending, tt.target)
			assert.Equal(t, tt.want.Kind, got.Kind)
			assert.Same(t, tt.want.Node, got.Node)
			assert.Equal(t, tt.wantFlush, flush)
		})
	}
}

func TestDebounceFiresOnceAfterQuietPeriod(t *testing.T) {
	c, rec, clk := newTest(t)
	n := &target{"/a/b"}

	c.Request(n, true)
	clk.Advance(1500 * time.Millisecond)
	c.Request(n, true)
	clk.Advance(1500 * time.Millisecond)
	assert.Empty(t, rec.calls(), "timer restarts on every request")

	clk.Advance(500 * time.Millisecond)
	assert.Equal(t, []string{"/a/b"}, rec.calls())
	assert.Equal(t, Idle, c.Pending().Kind)
}

func TestAncestorRequestWidensPending(t *testing.T) {
	c, rec, clk := newTest(t)

	c.Request(&target{"/a/b"}, true)
	c.Request(&target{"/a"}, true)
	c.Request(&target{"/a/b/c"}, true)
	clk.Advance(2 * time.Second)

	assert.Equal(t, []string{"/a"}, rec.calls())
}

func TestDescendantRequestRestartsTimer(t *testing.T) {
	c, rec, clk := newTest(t)

	c.Request(&target{"/a"}, true)
	clk.Advance(1900 * time.Millisecond)
	c.Request(&target{"/a/b"}, true)
	clk.Advance(1900 * time.Millisecond)
	assert.Empty(t, rec.calls())

	clk.Advance(100 * time.Millisecond)
	assert.Equal(t, []string{"/a"}, rec.calls())
}

func TestDisjointRequestFlushesPending(t *testing.T) {
	c, rec, clk := newTest(t)

	c.Request(&target{"/a"}, true)
	c.Request(&target{"/c"}, true)
	assert.Equal(t, []string{"/a"}, rec.calls(), "previous subtree fires immediately")

	clk.Advance(2 * time.Second)
	assert.Equal(t, []string{"/a", "/c"}, rec.calls())
}

func TestRootAbsorbsEverything(t *testing.T) {
	c, rec, clk := newTest(t)

	c.Request(&target{"/a"}, true)
	c.Request(nil, true)
	c.Request(&target{"/c"}, true)
	clk.Advance(2 * time.Second)

	assert.Equal(t, []string{"<root>"}, rec.calls())
}

func TestNoDebounceFiresImmediately(t *testing.T) {
	c, rec, clk := newTest(t)

	c.Request(&target{"/a/b"}, true)
	c.Request(&target{"/a"}, false)
	assert.Equal(t, []string{"/a"}, rec.calls())
	assert.Equal(t, Idle, c.Pending().Kind)

	clk.Advance(5 * time.Second)
	assert.Len(t, rec.calls(), 1, "stopped timer must not fire again")
}

func TestFlushAndCancel(t *testing.T) {
	c, rec, clk := newTest(t)

	c.Flush()
	assert.Empty(t, rec.calls())

	c.Request(&target{"/a"}, true)
	c.Flush()
	assert.Equal(t, []string{"/a"}, rec.calls())

	c.Request(&target{"/b"}, true)
	c.Cancel()
	clk.Advance(5 * time.Second)
	assert.Equal(t, []string{"/a"}, rec.calls())
	assert.Zero(t, clk.Pending())
}

func TestSetDelayKeepsPendingRequest(t *testing.T) {
	c, rec, clk := newTest(t)

	c.Request(&target{"/a"}, true)
	clk.Advance(time.Second)
	c.SetDelay(500 * time.Millisecond)
	assert.Equal(t, 500*time.Millisecond, c.Delay())

	clk.Advance(499 * time.Millisecond)
	assert.Empty(t, rec.calls())
	clk.Advance(time.Millisecond)
	assert.Equal(t, []string{"/a"}, rec.calls())
}

func TestClosedIgnoresRequests(t *testing.T) {
	c, rec, clk := newTest(t)
	c.Close()
	c.Request(&target{"/a"}, false)
	clk.Advance(5 * time.Second)
	assert.Empty(t, rec.calls())
}

func TestSystemClock(t *testing.T) {
	rec := &recorder{}
	c := New[*target](10*time.Millisecond, rec.fire)
	defer c.Close()

	c.Request(&target{"/a"}, true)
	require.Eventually(t, func() bool { return len(rec.calls()) == 1 }, time.Second, 5*time.Millisecond)
}

func TestDefaultDelay(t *testing.T) {
	c := New[*target](0, func(*target) {})
	defer c.Close()
	assert.Equal(t, DefaultDelay, c.Delay())
}
