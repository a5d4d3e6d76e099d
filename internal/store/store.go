// Package store provides the document store the synchronization engine is
// built on: hierarchical paths addressing documents of loose fields, live
// subscriptions to single documents and whole collections, merge-capable
// writes, and one-shot equality queries.
//
// Subscription channels are coalescing: a slow consumer may miss
// intermediate states but always converges to the latest one. Documents are
// last-write-wins; the store performs no conflict resolution beyond that.
package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/earshot-fm/earshot/internal/config"
	"github.com/earshot-fm/earshot/internal/ops"
)

// Document is one document in a collection.
type Document struct {
	ID     string
	Path   string
	Fields map[string]any
}

// Snapshot is the state of a single document at some point in time.
// Exists is false when the document has never been written.
type Snapshot struct {
	Exists bool
	Fields map[string]any
}

// Store is the capability set the engine and the writers depend on.
//
// Subscribe and SubscribeCollection deliver the current state first and
// then a new value after every write. The returned channel is closed when
// ctx is cancelled; cancelling the context is the sole way to release a
// subscription.
type Store interface {
	Subscribe(ctx context.Context, path string) (<-chan Snapshot, error)
	SubscribeCollection(ctx context.Context, path string) (<-chan []Document, error)
	Write(ctx context.Context, path string, fields map[string]any, merge bool) error
	Delete(ctx context.Context, path string) error
	QueryEquals(ctx context.Context, collection, field string, value any) ([]Document, error)
	Close() error
}

// New creates a Store for the configured driver.
func New(cfg *config.Store, log *ops.Logger) (Store, error) {
	switch cfg.Driver {
	case "memory":
		return NewMemory(), nil
	case "sqlite":
		return NewSQLite(cfg.SQLitePath, log)
	case "redis":
		return NewRedis(&cfg.Redis, log)
	default:
		return nil, fmt.Errorf("unsupported store driver: %s", cfg.Driver)
	}
}

// splitPath splits a document path into its collection and document id.
// "users/u1/friends/f1" -> ("users/u1/friends", "f1").
func splitPath(path string) (collection, id string) {
	i := strings.LastIndexByte(path, '/')
	if i < 0 {
		return "", path
	}
	return path[:i], path[i+1:]
}

// valueEqual compares a stored field against a query value. Stored values
// may have round-tripped through JSON (ints become float64), so comparison
// is by printed form rather than type-strict equality.
func valueEqual(got, want any) bool {
	return fmt.Sprint(got) == fmt.Sprint(want)
}

// cloneFields deep-copies a field map so callers can't mutate stored state.
func cloneFields(fields map[string]any) map[string]any {
	if fields == nil {
		return nil
	}
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		if m, ok := v.(map[string]any); ok {
			out[k] = cloneFields(m)
			continue
		}
		out[k] = v
	}
	return out
}
