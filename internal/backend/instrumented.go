package backend

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/agentic-research/depview/api"
	"github.com/agentic-research/depview/internal/logging"
	"github.com/agentic-research/depview/internal/metrics"
)

// Instrumented records metrics and logs failures for every query.
type Instrumented struct {
	next Backend
	log  *zap.Logger
}

func NewInstrumented(next Backend, log *zap.Logger) *Instrumented {
	return &Instrumented{next: next, log: logging.OrNop(log)}
}

func (b *Instrumented) Ready(ctx context.Context) bool {
	return b.next.Ready(ctx)
}

func (b *Instrumented) ListChildren(ctx context.Context, scope api.Scope) ([]api.NodeDescriptor, error) {
	start := time.Now()
	descs, err := b.next.ListChildren(ctx, scope)
	metrics.RecordBackendQuery("listChildren", err, time.Since(start))
	if err != nil {
		b.log.Warn("list children failed",
			zap.String("kind", string(scope.Kind)),
			zap.String("uri", scope.URI),
			zap.Error(err))
	}
	return descs, err
}

func (b *Instrumented) ResolvePath(ctx context.Context, uri string) ([]api.NodeDescriptor, error) {
	start := time.Now()
	chain, err := b.next.ResolvePath(ctx, uri)
	metrics.RecordBackendQuery("resolvePath", err, time.Since(start))
	if err != nil {
		b.log.Warn("resolve path failed", zap.String("uri", uri), zap.Error(err))
	}
	return chain, err
}
