// Package snapshot persists a descriptor tree to SQLite and serves it back as
// a backend.
package snapshot

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/agentic-research/depview/api"
)

const schema = `
CREATE TABLE IF NOT EXISTS meta (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS nodes (
	id INTEGER PRIMARY KEY,
	parent_id INTEGER,
	ord INTEGER NOT NULL,
	kind TEXT NOT NULL,
	name TEXT NOT NULL,
	uri TEXT,
	path TEXT,
	metadata JSON
);
CREATE INDEX IF NOT EXISTS idx_parent_ord ON nodes(parent_id, ord);
CREATE INDEX IF NOT EXISTS idx_uri_kind ON nodes(uri, kind);
`

// Writer appends descriptors to a fresh snapshot file in batched transactions.
type Writer struct {
	db        *sql.DB
	tx        *sql.Tx
	stmtNode  *sql.Stmt
	batchSize int
	count     int
	nextID    int64
	mu        sync.Mutex
}

// NewWriter creates dbPath, replacing any existing file.
func NewWriter(dbPath string) (*Writer, error) {
	if err := os.Remove(dbPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("remove old snapshot %s: %w", dbPath, err)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	if _, err := db.Exec("PRAGMA synchronous = OFF"); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.Exec("PRAGMA journal_mode = MEMORY"); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	w := &Writer{db: db, batchSize: 5000}
	if err := w.beginTx(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return w, nil
}

func (w *Writer) beginTx() error {
	var err error
	w.tx, err = w.db.Begin()
	if err != nil {
		return err
	}
	w.stmtNode, err = w.tx.Prepare(`
		INSERT INTO nodes (id, parent_id, ord, kind, name, uri, path, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	return err
}

func (w *Writer) commitTx() error {
	if w.stmtNode != nil {
		_ = w.stmtNode.Close()
	}
	return w.tx.Commit()
}

// Add writes d under parent (0 for a top-level row) and returns its row id.
func (w *Writer) Add(parent int64, ord int, d api.NodeDescriptor) (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	var meta []byte
	if len(d.Metadata) > 0 {
		var err error
		if meta, err = json.Marshal(d.Metadata); err != nil {
			return 0, fmt.Errorf("encode metadata of %s: %w", d.Name, err)
		}
	}
	var parentID *int64
	if parent != 0 {
		parentID = &parent
	}

	w.nextID++
	id := w.nextID
	if _, err := w.stmtNode.Exec(id, parentID, ord, string(d.Kind), d.Name, nullable(d.URI), nullable(d.Path), meta); err != nil {
		return 0, fmt.Errorf("insert %s: %w", d.Name, err)
	}

	w.count++
	if w.count >= w.batchSize {
		if err := w.commitTx(); err != nil {
			return 0, fmt.Errorf("commit batch: %w", err)
		}
		if err := w.beginTx(); err != nil {
			return 0, fmt.Errorf("begin batch: %w", err)
		}
		w.count = 0
	}
	return id, nil
}

// SetMeta records a snapshot-wide attribute.
func (w *Writer) SetMeta(key, value string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, err := w.tx.Exec(`INSERT OR REPLACE INTO meta (key, value) VALUES (?, ?)`, key, value)
	return err
}

// Close commits outstanding rows and closes the database.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.commitTx(); err != nil {
		_ = w.db.Close()
		return fmt.Errorf("commit: %w", err)
	}
	return w.db.Close()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
