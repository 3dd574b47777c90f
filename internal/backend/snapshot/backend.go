package snapshot

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	_ "modernc.org/sqlite"

	"github.com/agentic-research/depview/api"
)

// Backend answers queries from a snapshot file. The package presentation is
// fixed when the snapshot is built; scopes asking for another one get the
// stored layout.
type Backend struct {
	db           *sql.DB
	hierarchical bool
}

// Open opens a snapshot read-only.
func Open(dbPath string) (*Backend, error) {
	if _, err := os.Stat(dbPath); err != nil {
		return nil, fmt.Errorf("open snapshot: %w", err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	db.SetMaxOpenConns(4)
	if _, err := db.Exec("PRAGMA query_only=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set query_only: %w", err)
	}

	var presentation string
	err = db.QueryRow(`SELECT value FROM meta WHERE key = 'presentation'`).Scan(&presentation)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("read snapshot meta %s: %w", dbPath, err)
	}
	return &Backend{db: db, hierarchical: presentation == "hierarchical"}, nil
}

// Hierarchical reports the presentation the snapshot was built with.
func (b *Backend) Hierarchical() bool { return b.hierarchical }

func (b *Backend) Ready(ctx context.Context) bool {
	return b.db.PingContext(ctx) == nil
}

func (b *Backend) ListChildren(ctx context.Context, scope api.Scope) ([]api.NodeDescriptor, error) {
	if scope.URI == "" {
		return nil, nil
	}
	var parent int64
	err := b.db.QueryRowContext(ctx,
		`SELECT id FROM nodes WHERE uri = ? AND kind = ? ORDER BY id LIMIT 1`,
		scope.URI, string(scope.Kind)).Scan(&parent)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find %s %s: %w", scope.Kind, scope.URI, err)
	}

	rows, err := b.db.QueryContext(ctx,
		`SELECT kind, name, uri, path, metadata FROM nodes WHERE parent_id = ? ORDER BY ord`, parent)
	if err != nil {
		return nil, fmt.Errorf("list children of %s: %w", scope.URI, err)
	}
	return scanDescriptors(rows)
}

func (b *Backend) ResolvePath(ctx context.Context, uri string) ([]api.NodeDescriptor, error) {
	p := api.PathFromURI(uri)
	if p == "" {
		return nil, nil
	}
	uri = api.FileURI(p)

	var id int64
	err := b.db.QueryRowContext(ctx,
		`SELECT id FROM nodes WHERE uri = ? AND kind != 'workspace' ORDER BY id DESC LIMIT 1`, uri).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", uri, err)
	}

	rows, err := b.db.QueryContext(ctx, `
		WITH RECURSIVE chain(id, parent_id, kind, name, uri, path, metadata, depth) AS (
			SELECT id, parent_id, kind, name, uri, path, metadata, 0 FROM nodes WHERE id = ?
			UNION ALL
			SELECT n.id, n.parent_id, n.kind, n.name, n.uri, n.path, n.metadata, c.depth + 1
			FROM nodes n JOIN chain c ON n.id = c.parent_id
		)
		SELECT kind, name, uri, path, metadata FROM chain
		WHERE kind != 'workspace'
		ORDER BY depth DESC`, id)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", uri, err)
	}
	return scanDescriptors(rows)
}

// Close closes the database.
func (b *Backend) Close() error {
	return b.db.Close()
}

func scanDescriptors(rows *sql.Rows) ([]api.NodeDescriptor, error) {
	defer func() { _ = rows.Close() }()
	var out []api.NodeDescriptor
	for rows.Next() {
		var (
			kind, name string
			uri, path  sql.NullString
			meta       []byte
		)
		if err := rows.Scan(&kind, &name, &uri, &path, &meta); err != nil {
			return nil, err
		}
		d := api.NodeDescriptor{Kind: api.NodeKind(kind), Name: name, URI: uri.String, Path: path.String}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &d.Metadata); err != nil {
				return nil, fmt.Errorf("decode metadata of %s: %w", name, err)
			}
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
