// Package social contains the pure write paths of the system: sending a
// reaction, managing the friend directory, and saving favorites. Nothing
// here mutates local state; effects become visible only when the engine's
// subscriptions redeliver them.
package social

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/earshot-fm/earshot/internal/config"
	"github.com/earshot-fm/earshot/internal/ops"
	"github.com/earshot-fm/earshot/internal/store"
	"github.com/earshot-fm/earshot/internal/sync"
)

// ErrNoAccount is returned by AddFriend when no account matches the email.
var ErrNoAccount = errors.New("no account matches that email")

// LibrarySaver mirrors a favorited track into the user's music service
// library. Implemented by the Spotify client; optional.
type LibrarySaver interface {
	SaveToLibrary(ctx context.Context, uri string) error
}

// Service bundles the write paths for one signed-in user.
type Service struct {
	store store.Store
	id    config.Identity
	saver LibrarySaver
	log   *ops.Logger
}

// New creates a Service. saver may be nil, in which case favorites are
// only recorded in the document store.
func New(st store.Store, id config.Identity, saver LibrarySaver, log *ops.Logger) *Service {
	return &Service{
		store: st,
		id:    id,
		saver: saver,
		log:   log.WithComponent("social"),
	}
}

// React upserts my reaction toward friendID. A later call overwrites the
// previous reaction; duplicates converge to the same final value.
func (s *Service) React(ctx context.Context, friendID string, r sync.Reaction) error {
	if !r.Valid() {
		return fmt.Errorf("invalid reaction %q", r)
	}

	fields := map[string]any{
		"reaction":  string(r),
		"timestamp": time.Now().Unix(),
	}
	if err := s.store.Write(ctx, sync.ReactionPath(friendID, s.id.UserID), fields, true); err != nil {
		return fmt.Errorf("failed to write reaction: %w", err)
	}
	return nil
}

// AddFriend resolves email to an account and links the two users. The
// reciprocal edge is written only when my own email is known, and the two
// writes are independent: a failure of the second can leave a one-sided
// friendship, which the caller learns from the returned error.
func (s *Service) AddFriend(ctx context.Context, email string) error {
	docs, err := s.store.QueryEquals(ctx, sync.UsersCollection, "email", email)
	if err != nil {
		return fmt.Errorf("failed to look up account: %w", err)
	}
	if len(docs) == 0 {
		return ErrNoAccount
	}
	friendID := docs[0].ID

	if err := s.store.Write(ctx, sync.FriendEdgePath(s.id.UserID, friendID), map[string]any{"email": email}, true); err != nil {
		return fmt.Errorf("failed to write friend edge: %w", err)
	}

	if s.id.Email != "" {
		if err := s.store.Write(ctx, sync.FriendEdgePath(friendID, s.id.UserID), map[string]any{"email": s.id.Email}, true); err != nil {
			return fmt.Errorf("failed to write reciprocal friend edge: %w", err)
		}
	}

	s.log.Info("friend added", "friend", friendID)
	return nil
}

// RemoveFriend deletes both friendship edges. The roster subscription
// picks the removal up and tears the friend's streams down.
func (s *Service) RemoveFriend(ctx context.Context, friendID string) error {
	if err := s.store.Delete(ctx, sync.FriendEdgePath(s.id.UserID, friendID)); err != nil {
		return fmt.Errorf("failed to remove friend edge: %w", err)
	}
	if err := s.store.Delete(ctx, sync.FriendEdgePath(friendID, s.id.UserID)); err != nil {
		return fmt.Errorf("failed to remove reciprocal friend edge: %w", err)
	}
	return nil
}

// Favorite records a track in my favorites and, when a library saver is
// configured and the track carries a playable uri, mirrors it into my
// music service library.
func (s *Service) Favorite(ctx context.Context, track sync.TrackSnapshot) error {
	id := safeDocID(track.Name)
	if id == "" {
		return fmt.Errorf("track name %q yields an empty favorite id", track.Name)
	}

	fields := map[string]any{
		"name":      track.Name,
		"artist":    track.Artist,
		"timestamp": time.Now().Unix(),
	}
	path := sync.UserPath(s.id.UserID) + "/favorites/" + id
	if err := s.store.Write(ctx, path, fields, true); err != nil {
		return fmt.Errorf("failed to write favorite: %w", err)
	}

	if s.saver != nil && track.URI != "" {
		if err := s.saver.SaveToLibrary(ctx, track.URI); err != nil {
			return fmt.Errorf("favorite recorded, but library save failed: %w", err)
		}
	}
	return nil
}

// safeDocID reduces a track name to a document id, keeping letters and
// digits only.
func safeDocID(name string) string {
	var b strings.Builder
	for _, r := range name {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
