package store

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// Memory is an in-process Store. State does not survive a restart; it is
// the driver of choice for tests and single-session development.
type Memory struct {
	mu   sync.Mutex
	docs map[string]map[string]any
	hub  *hub
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		docs: make(map[string]map[string]any),
		hub:  newHub(),
	}
}

// Subscribe implements Store.
func (m *Memory) Subscribe(ctx context.Context, path string) (<-chan Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hub.subscribeDoc(ctx, path, m.snapshotLocked(path)), nil
}

// SubscribeCollection implements Store.
func (m *Memory) SubscribeCollection(ctx context.Context, path string) (<-chan []Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hub.subscribeCollection(ctx, path, m.collectionLocked(path)), nil
}

// Write implements Store.
func (m *Memory) Write(ctx context.Context, path string, fields map[string]any, merge bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := cloneFields(fields)
	if merge {
		if existing, ok := m.docs[path]; ok {
			merged := cloneFields(existing)
			for k, v := range next {
				merged[k] = v
			}
			next = merged
		}
	}
	m.docs[path] = next

	collection, _ := splitPath(path)
	m.hub.notifyDoc(path, m.snapshotLocked(path))
	m.hub.notifyCollection(collection, m.collectionLocked(collection))
	return nil
}

// Delete implements Store. Deleting a missing document is a no-op.
func (m *Memory) Delete(ctx context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.docs[path]; !ok {
		return nil
	}
	delete(m.docs, path)

	collection, _ := splitPath(path)
	m.hub.notifyDoc(path, Snapshot{})
	m.hub.notifyCollection(collection, m.collectionLocked(collection))
	return nil
}

// QueryEquals implements Store.
func (m *Memory) QueryEquals(ctx context.Context, collection, field string, value any) ([]Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Document
	for _, doc := range m.collectionLocked(collection) {
		if got, ok := doc.Fields[field]; ok && valueEqual(got, value) {
			out = append(out, doc)
		}
	}
	return out, nil
}

// Close implements Store.
func (m *Memory) Close() error {
	return nil
}

func (m *Memory) snapshotLocked(path string) Snapshot {
	fields, ok := m.docs[path]
	if !ok {
		return Snapshot{}
	}
	return Snapshot{Exists: true, Fields: cloneFields(fields)}
}

// collectionLocked returns the direct member documents of a collection,
// ordered by id for stable delivery.
func (m *Memory) collectionLocked(collection string) []Document {
	prefix := collection + "/"
	var out []Document
	for path, fields := range m.docs {
		if !strings.HasPrefix(path, prefix) {
			continue
		}
		id := path[len(prefix):]
		if strings.ContainsRune(id, '/') {
			continue // document in a nested collection
		}
		out = append(out, Document{ID: id, Path: path, Fields: cloneFields(fields)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
