package sync

import (
	"context"
	"fmt"
	"sync"
)

// StreamKind is one of the subscription categories the engine manages.
type StreamKind uint8

const (
	KindRoster StreamKind = iota
	KindTrack
	KindMyReaction
	KindTheirReaction
)

func (k StreamKind) String() string {
	switch k {
	case KindRoster:
		return "roster"
	case KindTrack:
		return "track"
	case KindMyReaction:
		return "myReaction"
	case KindTheirReaction:
		return "theirReaction"
	}
	return fmt.Sprintf("StreamKind(%d)", k)
}

// perFriendKinds are the streams opened for every roster member. The
// roster stream itself is engine-lifetime and never enters the ledger.
var perFriendKinds = [...]StreamKind{KindTrack, KindMyReaction, KindTheirReaction}

// Key identifies one live subscription.
type Key struct {
	FriendID string
	Kind     StreamKind
}

// Ledger owns every live per-friend subscription. It is the single place
// a subscription handle can live, which makes "friend removed but
// listener kept delivering" impossible to reintroduce piecemeal: closing
// a key cancels the underlying stream exactly once.
type Ledger struct {
	mu   sync.Mutex
	subs map[Key]context.CancelFunc
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{subs: make(map[Key]context.CancelFunc)}
}

// Open starts a subscription for key, first closing any live one so at
// most one subscription exists per key. start must return the cancel
// function releasing the new subscription.
func (l *Ledger) Open(key Key, start func() context.CancelFunc) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if cancel, ok := l.subs[key]; ok {
		cancel()
	}
	l.subs[key] = start()
}

// Close releases the subscription for key. Closing an unknown key is a
// no-op.
func (l *Ledger) Close(key Key) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if cancel, ok := l.subs[key]; ok {
		cancel()
		delete(l.subs, key)
	}
}

// CloseAll releases every tracked subscription and empties the ledger.
// Safe to call repeatedly.
func (l *Ledger) CloseAll() {
	l.mu.Lock()
	defer l.mu.Unlock()

	for key, cancel := range l.subs {
		cancel()
		delete(l.subs, key)
	}
}

// Live reports whether key has a live subscription.
func (l *Ledger) Live(key Key) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.subs[key]
	return ok
}

// Len returns the number of live subscriptions.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.subs)
}
