package snapshot

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/agentic-research/depview/api"
	"github.com/agentic-research/depview/internal/backend"
	"github.com/agentic-research/depview/internal/config"
)

// BuildOptions controls what a snapshot captures.
type BuildOptions struct {
	Workspaces   []config.Workspace
	Hierarchical bool
	// Members descends into primary types.
	Members bool
	// Exclude drops matching locations and everything beneath them.
	Exclude []string
}

// Stats summarizes a build.
type Stats struct {
	Nodes    int
	Duration time.Duration
}

// Build walks src breadth-first from each workspace folder and writes every
// descriptor to a new snapshot at out.
func Build(ctx context.Context, src backend.Backend, out string, opts BuildOptions) (Stats, error) {
	start := time.Now()
	if !src.Ready(ctx) {
		return Stats{}, fmt.Errorf("build snapshot: backend not ready")
	}
	w, err := NewWriter(out)
	if err != nil {
		return Stats{}, err
	}

	stats, err := build(ctx, src, w, opts)
	if cerr := w.Close(); err == nil {
		err = cerr
	}
	stats.Duration = time.Since(start)
	return stats, err
}

type pending struct {
	row  int64
	desc api.NodeDescriptor
}

func build(ctx context.Context, src backend.Backend, w *Writer, opts BuildOptions) (Stats, error) {
	var stats Stats
	presentation := config.PresentationFlat
	if opts.Hierarchical {
		presentation = config.PresentationHierarchical
	}
	if err := w.SetMeta("presentation", presentation); err != nil {
		return stats, err
	}
	if err := w.SetMeta("created_at", strconv.FormatInt(time.Now().Unix(), 10)); err != nil {
		return stats, err
	}
	filter := backend.FilterOptions{ShowNonSource: true, Exclude: opts.Exclude}

	var queue []pending
	for i, ws := range opts.Workspaces {
		name := ws.Name
		if name == "" {
			name = filepath.Base(ws.Path)
		}
		d := api.NodeDescriptor{Kind: api.KindWorkspace, Name: name, URI: api.FileURI(ws.Path), Path: ws.Path}
		row, err := w.Add(0, i, d)
		if err != nil {
			return stats, err
		}
		stats.Nodes++
		queue = append(queue, pending{row: row, desc: d})
	}

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		cur := queue[0]
		queue = queue[1:]
		if !descend(cur.desc.Kind, opts.Members) {
			continue
		}
		kids, err := src.ListChildren(ctx, api.ScopeOf(cur.desc, opts.Hierarchical))
		if err != nil {
			return stats, fmt.Errorf("list children of %s: %w", cur.desc.Name, err)
		}
		for i, k := range backend.Filter(kids, filter) {
			if err := backend.Validate(k); err != nil {
				return stats, err
			}
			row, err := w.Add(cur.row, i, k)
			if err != nil {
				return stats, err
			}
			stats.Nodes++
			queue = append(queue, pending{row: row, desc: k})
		}
	}
	return stats, nil
}

func descend(kind api.NodeKind, members bool) bool {
	switch kind {
	case api.KindFile, api.KindMember:
		return false
	case api.KindPrimaryType:
		return members
	default:
		return true
	}
}
