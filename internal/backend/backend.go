// Package backend defines the data source the explorer materializes nodes from.
package backend

import (
	"context"
	"errors"
	"fmt"

	"github.com/agentic-research/depview/api"
)

var (
	// ErrMalformedDescriptor is returned for descriptors missing a kind or name.
	ErrMalformedDescriptor = errors.New("malformed node descriptor")
	// ErrUnsupportedScope is returned when a backend cannot list a scope kind.
	ErrUnsupportedScope = errors.New("unsupported scope")
)

// Backend lists tree nodes. Implementations must be safe for concurrent use.
type Backend interface {
	// Ready reports whether queries can be answered. Callers treat a backend
	// that is not ready as empty rather than failing.
	Ready(ctx context.Context) bool
	// ListChildren returns the children of the node scope describes. A
	// KindWorkspace scope lists the projects of that workspace folder.
	ListChildren(ctx context.Context, scope api.Scope) ([]api.NodeDescriptor, error)
	// ResolvePath returns the descriptor chain from the owning project down to
	// the resource at uri, or nil if the resource is not part of any project.
	ResolvePath(ctx context.Context, uri string) ([]api.NodeDescriptor, error)
}

// Validate checks the fields every descriptor must carry.
func Validate(d api.NodeDescriptor) error {
	if d.Kind == "" || d.Name == "" {
		return fmt.Errorf("%w: kind=%q name=%q uri=%q", ErrMalformedDescriptor, d.Kind, d.Name, d.URI)
	}
	return nil
}

// Unavailable is a backend that never becomes ready.
type Unavailable struct{}

func (Unavailable) Ready(context.Context) bool { return false }

func (Unavailable) ListChildren(context.Context, api.Scope) ([]api.NodeDescriptor, error) {
	return nil, nil
}

func (Unavailable) ResolvePath(context.Context, string) ([]api.NodeDescriptor, error) {
	return nil, nil
}
