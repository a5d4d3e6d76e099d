// Package sync contains the real-time synchronization engine: it follows
// the roster pushed by the document store, keeps exactly one set of live
// per-friend subscriptions through the ledger, merges their independently
// arriving updates into FriendRecords, and republishes the merged list to
// observers after every change.
package sync

import (
	"context"
	"fmt"
	"sync"

	"github.com/earshot-fm/earshot/internal/config"
	"github.com/earshot-fm/earshot/internal/ops"
	"github.com/earshot-fm/earshot/internal/store"
)

// Handler observes every published friend list. Handlers run synchronously
// on the goroutine that applied the change, while the engine lock is held:
// they receive a private copy of the list, must return quickly, and must
// not call back into the engine.
type Handler func([]FriendRecord)

// Engine owns the subscription ledger and the published friend list. All
// state mutation funnels through one mutex, so a roster diff, a stream
// update merge, and the publish that follows never interleave partially.
type Engine struct {
	store store.Store
	id    config.Identity
	log   *ops.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	ledger *Ledger

	mu       sync.Mutex
	friends  map[string]*FriendRecord
	order    []string
	handlers []Handler
}

// NewEngine creates an engine for the signed-in user.
func NewEngine(st store.Store, id config.Identity, log *ops.Logger) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		store:   st,
		id:      id,
		log:     log.WithComponent("sync"),
		ctx:     ctx,
		cancel:  cancel,
		ledger:  NewLedger(),
		friends: make(map[string]*FriendRecord),
	}
}

// AddHandler registers an observer of the published friend list.
func (e *Engine) AddHandler(h Handler) {
	if h == nil {
		return
	}
	e.mu.Lock()
	e.handlers = append(e.handlers, h)
	e.mu.Unlock()
}

// Start opens the roster subscription. It lives for the engine's lifetime;
// every per-friend subscription is derived from the snapshots it delivers.
func (e *Engine) Start() error {
	ch, err := e.store.SubscribeCollection(e.ctx, RosterPath(e.id.UserID))
	if err != nil {
		return fmt.Errorf("failed to subscribe to roster: %w", err)
	}

	e.wg.Add(1)
	go e.consumeRoster(ch)

	e.log.Info("engine started", "user", e.id.UserID)
	return nil
}

// Stop tears the engine down, closing the roster subscription and every
// per-friend subscription.
func (e *Engine) Stop() {
	e.cancel()
	e.ledger.CloseAll()
	e.wg.Wait()
	e.log.Info("engine stopped")
}

// Friends returns a copy of the current published friend list.
func (e *Engine) Friends() []FriendRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

func (e *Engine) consumeRoster(ch <-chan []store.Document) {
	defer e.wg.Done()

	for docs := range ch {
		e.reconcile(docs)
	}

	// The stream only ends on engine shutdown or a store fault. A fault
	// is not fatal: the last known state stays published.
	if e.ctx.Err() == nil {
		e.log.Warn("roster stream ended, keeping last known friend state")
	}
}

// reconcile turns one full roster snapshot into subscription changes and a
// fresh published list. Removed friends have their streams closed before
// the new list becomes visible, so no update of theirs can land afterwards.
func (e *Engine) reconcile(docs []store.Document) {
	e.mu.Lock()
	defer e.mu.Unlock()

	next := make(map[string]bool, len(docs))
	for _, d := range docs {
		next[d.ID] = true
	}
	for id := range e.friends {
		if next[id] {
			continue
		}
		for _, kind := range perFriendKinds {
			e.ledger.Close(Key{FriendID: id, Kind: kind})
		}
		e.log.Debug("friend removed", "friend", id)
	}

	// Rebuild records from scratch: track and reaction state is unknown
	// again until the (re)opened streams deliver.
	e.friends = make(map[string]*FriendRecord, len(docs))
	e.order = make([]string, 0, len(docs))
	for _, d := range docs {
		email, _ := d.Fields["email"].(string)
		e.friends[d.ID] = &FriendRecord{ID: d.ID, Email: email}
		e.order = append(e.order, d.ID)
	}

	// Reopen streams for every roster member, not just additions. Open is
	// idempotent, and the store pushes each document's current state on
	// subscribe, which is what repopulates the rebuilt records.
	for _, d := range docs {
		e.openFriendStreams(d.ID)
	}

	e.publishLocked()
}

func (e *Engine) openFriendStreams(friendID string) {
	for _, kind := range perFriendKinds {
		kind := kind
		path := e.streamPath(friendID, kind)
		e.ledger.Open(Key{FriendID: friendID, Kind: kind}, func() context.CancelFunc {
			subCtx, cancel := context.WithCancel(e.ctx)
			ch, err := e.store.Subscribe(subCtx, path)
			if err != nil {
				e.log.Warn("subscription failed", "path", path, "error", err)
				return cancel
			}
			e.wg.Add(1)
			go e.consumeStream(friendID, kind, ch)
			return cancel
		})
	}
}

func (e *Engine) streamPath(friendID string, kind StreamKind) string {
	switch kind {
	case KindTrack:
		return TrackPath(friendID)
	case KindMyReaction:
		// My reaction toward the friend lives on their side of the edge.
		return ReactionPath(friendID, e.id.UserID)
	case KindTheirReaction:
		return ReactionPath(e.id.UserID, friendID)
	}
	return ""
}

func (e *Engine) consumeStream(friendID string, kind StreamKind, ch <-chan store.Snapshot) {
	defer e.wg.Done()

	for snap := range ch {
		e.apply(friendID, kind, snap)
	}
}

// apply merges one stream update into the friend's record and republishes.
// Updates for ids outside the current roster are discarded: only the
// reconciler may create records, so a callback racing a removal can never
// resurrect one.
func (e *Engine) apply(friendID string, kind StreamKind, snap store.Snapshot) {
	e.mu.Lock()
	defer e.mu.Unlock()

	rec, ok := e.friends[friendID]
	if !ok {
		return
	}

	switch kind {
	case KindTrack:
		if !snap.Exists {
			return // friend has never published; nothing to merge
		}
		track, ok := decodeTrack(snap.Fields)
		if !ok {
			return // malformed payload, keep the previous value
		}
		rec.Track = track
	case KindMyReaction:
		rec.MyReaction = decodeReaction(snap)
	case KindTheirReaction:
		rec.TheirReaction = decodeReaction(snap)
	default:
		return
	}

	e.publishLocked()
}

func (e *Engine) snapshotLocked() []FriendRecord {
	out := make([]FriendRecord, 0, len(e.order))
	for _, id := range e.order {
		if rec, ok := e.friends[id]; ok {
			out = append(out, rec.clone())
		}
	}
	return out
}

func (e *Engine) publishLocked() {
	snapshot := e.snapshotLocked()
	for _, h := range e.handlers {
		h(snapshot)
	}
}
