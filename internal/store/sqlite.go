package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/tidwall/gjson"

	"github.com/earshot-fm/earshot/internal/ops"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS documents (
	path       TEXT PRIMARY KEY,
	collection TEXT NOT NULL,
	doc_id     TEXT NOT NULL,
	data       TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_documents_collection ON documents(collection);
`

// SQLite is a durable single-node Store. Writes are observed by
// subscribers in the same process through an internal hub; deployments
// that need cross-process push use the redis driver instead.
type SQLite struct {
	db  *sqlx.DB
	hub *hub
	mu  sync.Mutex // serializes write+notify so subscribers see writes in order
	log *ops.Logger
}

// NewSQLite opens (creating if needed) a sqlite-backed store at path.
func NewSQLite(path string, log *ops.Logger) (*SQLite, error) {
	db, err := sqlx.Connect("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite store: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run store migrations: %w", err)
	}

	return &SQLite{
		db:  db,
		hub: newHub(),
		log: log.WithComponent("store"),
	}, nil
}

type docRow struct {
	Path  string `db:"path"`
	DocID string `db:"doc_id"`
	Data  string `db:"data"`
}

// Subscribe implements Store.
func (s *SQLite) Subscribe(ctx context.Context, path string) (<-chan Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := s.snapshot(ctx, path)
	if err != nil {
		return nil, err
	}
	return s.hub.subscribeDoc(ctx, path, snap), nil
}

// SubscribeCollection implements Store.
func (s *SQLite) SubscribeCollection(ctx context.Context, path string) (<-chan []Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	docs, err := s.collection(ctx, path)
	if err != nil {
		return nil, err
	}
	return s.hub.subscribeCollection(ctx, path, docs), nil
}

// Write implements Store.
func (s *SQLite) Write(ctx context.Context, path string, fields map[string]any, merge bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := cloneFields(fields)
	if merge {
		existing, err := s.snapshot(ctx, path)
		if err != nil {
			return err
		}
		if existing.Exists {
			merged := existing.Fields
			for k, v := range next {
				merged[k] = v
			}
			next = merged
		}
	}

	data, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("failed to encode document %s: %w", path, err)
	}

	collection, id := splitPath(path)
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO documents (path, collection, doc_id, data, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		path, collection, id, string(data), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to write document %s: %w", path, err)
	}

	s.hub.notifyDoc(path, Snapshot{Exists: true, Fields: next})

	docs, err := s.collection(ctx, collection)
	if err != nil {
		s.log.Warn("collection read after write failed", "collection", collection, "error", err)
		return nil
	}
	s.hub.notifyCollection(collection, docs)
	return nil
}

// Delete implements Store. Deleting a missing document is a no-op.
func (s *SQLite) Delete(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE path = ?`, path)
	if err != nil {
		return fmt.Errorf("failed to delete document %s: %w", path, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil
	}

	collection, _ := splitPath(path)
	s.hub.notifyDoc(path, Snapshot{})

	docs, err := s.collection(ctx, collection)
	if err != nil {
		s.log.Warn("collection read after delete failed", "collection", collection, "error", err)
		return nil
	}
	s.hub.notifyCollection(collection, docs)
	return nil
}

// QueryEquals implements Store.
func (s *SQLite) QueryEquals(ctx context.Context, collection, field string, value any) ([]Document, error) {
	var rows []docRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT path, doc_id, data FROM documents WHERE collection = ? ORDER BY doc_id`, collection)
	if err != nil {
		return nil, fmt.Errorf("failed to query collection %s: %w", collection, err)
	}

	var out []Document
	for _, row := range rows {
		got := gjson.Get(row.Data, field)
		if !got.Exists() || !valueEqual(got.Value(), value) {
			continue
		}
		doc, err := decodeRow(row)
		if err != nil {
			s.log.Warn("skipping undecodable document", "path", row.Path, "error", err)
			continue
		}
		out = append(out, doc)
	}
	return out, nil
}

// Close implements Store.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) snapshot(ctx context.Context, path string) (Snapshot, error) {
	var data string
	err := s.db.GetContext(ctx, &data, `SELECT data FROM documents WHERE path = ?`, path)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, nil
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to read document %s: %w", path, err)
	}

	var fields map[string]any
	if err := json.Unmarshal([]byte(data), &fields); err != nil {
		return Snapshot{}, fmt.Errorf("failed to decode document %s: %w", path, err)
	}
	return Snapshot{Exists: true, Fields: fields}, nil
}

func (s *SQLite) collection(ctx context.Context, collection string) ([]Document, error) {
	var rows []docRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT path, doc_id, data FROM documents WHERE collection = ? ORDER BY doc_id`, collection)
	if err != nil {
		return nil, fmt.Errorf("failed to read collection %s: %w", collection, err)
	}

	docs := make([]Document, 0, len(rows))
	for _, row := range rows {
		doc, err := decodeRow(row)
		if err != nil {
			s.log.Warn("skipping undecodable document", "path", row.Path, "error", err)
			continue
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func decodeRow(row docRow) (Document, error) {
	var fields map[string]any
	if err := json.Unmarshal([]byte(row.Data), &fields); err != nil {
		return Document{}, err
	}
	return Document{ID: row.DocID, Path: row.Path, Fields: fields}, nil
}
