package store

import (
	"context"
	"sync"
)

// hub fans document and collection updates out to in-process subscribers.
// It backs the memory and sqlite drivers, which have no external push
// channel of their own.
type hub struct {
	mu      sync.Mutex
	nextID  int
	docSubs map[string]map[int]chan Snapshot
	colSubs map[string]map[int]chan []Document
}

func newHub() *hub {
	return &hub{
		docSubs: make(map[string]map[int]chan Snapshot),
		colSubs: make(map[string]map[int]chan []Document),
	}
}

// sendLatest delivers v on a buffered channel, evicting a pending value if
// the consumer has fallen behind. The channel always holds the most recent
// state, never blocks the producer.
func sendLatest[T any](ch chan T, v T) {
	select {
	case ch <- v:
	default:
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- v:
		default:
		}
	}
}

// subscribeDoc registers a subscriber for one document. The initial state
// is buffered before registration so the first receive always yields it.
func (h *hub) subscribeDoc(ctx context.Context, path string, initial Snapshot) chan Snapshot {
	ch := make(chan Snapshot, 1)
	ch <- initial

	h.mu.Lock()
	id := h.nextID
	h.nextID++
	if h.docSubs[path] == nil {
		h.docSubs[path] = make(map[int]chan Snapshot)
	}
	h.docSubs[path][id] = ch
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.mu.Lock()
		delete(h.docSubs[path], id)
		close(ch)
		h.mu.Unlock()
	}()

	return ch
}

func (h *hub) subscribeCollection(ctx context.Context, path string, initial []Document) chan []Document {
	ch := make(chan []Document, 1)
	ch <- initial

	h.mu.Lock()
	id := h.nextID
	h.nextID++
	if h.colSubs[path] == nil {
		h.colSubs[path] = make(map[int]chan []Document)
	}
	h.colSubs[path][id] = ch
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.mu.Lock()
		delete(h.colSubs[path], id)
		close(ch)
		h.mu.Unlock()
	}()

	return ch
}

func (h *hub) notifyDoc(path string, snap Snapshot) {
	h.mu.Lock()
	for _, ch := range h.docSubs[path] {
		sendLatest(ch, snap)
	}
	h.mu.Unlock()
}

func (h *hub) notifyCollection(path string, docs []Document) {
	h.mu.Lock()
	for _, ch := range h.colSubs[path] {
		sendLatest(ch, docs)
	}
	h.mu.Unlock()
}
