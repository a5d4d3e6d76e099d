package social

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/earshot-fm/earshot/internal/config"
	"github.com/earshot-fm/earshot/internal/ops"
	"github.com/earshot-fm/earshot/internal/store"
	"github.com/earshot-fm/earshot/internal/sync"
)

func testLogger() *ops.Logger {
	return ops.NewLoggerWithWriter(&config.Logging{Level: "error", Format: "text"}, io.Discard)
}

func setupTestService(t *testing.T, saver LibrarySaver) (*Service, *store.Memory) {
	t.Helper()
	st := store.NewMemory()
	t.Cleanup(func() { st.Close() })
	svc := New(st, config.Identity{UserID: "me", Email: "me@example.com"}, saver, testLogger())
	return svc, st
}

func readDoc(t *testing.T, st store.Store, path string) store.Snapshot {
	t.Helper()
	ch, err := st.Subscribe(context.Background(), path)
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	select {
	case snap := <-ch:
		return snap
	case <-time.After(2 * time.Second):
		t.Fatal("timed out reading document")
	}
	return store.Snapshot{}
}

type fakeSaver struct {
	uris []string
	err  error
}

func (f *fakeSaver) SaveToLibrary(ctx context.Context, uri string) error {
	f.uris = append(f.uris, uri)
	return f.err
}

func TestReact(t *testing.T) {
	svc, st := setupTestService(t, nil)
	ctx := context.Background()

	if err := svc.React(ctx, "alice", sync.ReactionFire); err != nil {
		t.Fatalf("React() error = %v", err)
	}

	snap := readDoc(t, st, "users/alice/reactions/me")
	if !snap.Exists {
		t.Fatal("reaction document was not written")
	}
	if snap.Fields["reaction"] != "fire" {
		t.Errorf("reaction = %v, want fire", snap.Fields["reaction"])
	}
	if _, ok := snap.Fields["timestamp"]; !ok {
		t.Error("reaction document missing timestamp")
	}

	// A second reaction overwrites the first.
	if err := svc.React(ctx, "alice", sync.ReactionLike); err != nil {
		t.Fatalf("React() error = %v", err)
	}
	snap = readDoc(t, st, "users/alice/reactions/me")
	if snap.Fields["reaction"] != "like" {
		t.Errorf("reaction = %v, want like", snap.Fields["reaction"])
	}
}

func TestReactRejectsInvalidReaction(t *testing.T) {
	svc, st := setupTestService(t, nil)

	if err := svc.React(context.Background(), "alice", sync.Reaction("meh")); err == nil {
		t.Fatal("React() should reject unknown reactions")
	}
	if err := svc.React(context.Background(), "alice", sync.ReactionNone); err == nil {
		t.Fatal("React() should reject the empty reaction")
	}

	if snap := readDoc(t, st, "users/alice/reactions/me"); snap.Exists {
		t.Fatal("invalid reaction must not be written")
	}
}

func TestAddFriendWritesBothEdges(t *testing.T) {
	svc, st := setupTestService(t, nil)
	ctx := context.Background()

	if err := st.Write(ctx, "users/alice", map[string]any{"email": "alice@example.com"}, false); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	if err := svc.AddFriend(ctx, "alice@example.com"); err != nil {
		t.Fatalf("AddFriend() error = %v", err)
	}

	mine := readDoc(t, st, "users/me/friends/alice")
	if !mine.Exists || mine.Fields["email"] != "alice@example.com" {
		t.Errorf("my edge = %+v", mine)
	}
	theirs := readDoc(t, st, "users/alice/friends/me")
	if !theirs.Exists || theirs.Fields["email"] != "me@example.com" {
		t.Errorf("reciprocal edge = %+v", theirs)
	}
}

func TestAddFriendWithoutOwnEmailWritesOneEdge(t *testing.T) {
	st := store.NewMemory()
	defer st.Close()
	svc := New(st, config.Identity{UserID: "me"}, nil, testLogger())
	ctx := context.Background()

	if err := st.Write(ctx, "users/alice", map[string]any{"email": "alice@example.com"}, false); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	if err := svc.AddFriend(ctx, "alice@example.com"); err != nil {
		t.Fatalf("AddFriend() error = %v", err)
	}

	if snap := readDoc(t, st, "users/me/friends/alice"); !snap.Exists {
		t.Error("my edge was not written")
	}
	if snap := readDoc(t, st, "users/alice/friends/me"); snap.Exists {
		t.Error("reciprocal edge written without a known email")
	}
}

func TestAddFriendNoAccount(t *testing.T) {
	svc, _ := setupTestService(t, nil)

	err := svc.AddFriend(context.Background(), "nobody@example.com")
	if !errors.Is(err, ErrNoAccount) {
		t.Fatalf("AddFriend() error = %v, want ErrNoAccount", err)
	}
}

func TestRemoveFriend(t *testing.T) {
	svc, st := setupTestService(t, nil)
	ctx := context.Background()

	if err := st.Write(ctx, "users/alice", map[string]any{"email": "alice@example.com"}, false); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := svc.AddFriend(ctx, "alice@example.com"); err != nil {
		t.Fatalf("AddFriend() error = %v", err)
	}

	if err := svc.RemoveFriend(ctx, "alice"); err != nil {
		t.Fatalf("RemoveFriend() error = %v", err)
	}

	if snap := readDoc(t, st, "users/me/friends/alice"); snap.Exists {
		t.Error("my edge survived removal")
	}
	if snap := readDoc(t, st, "users/alice/friends/me"); snap.Exists {
		t.Error("reciprocal edge survived removal")
	}
}

func TestFavorite(t *testing.T) {
	saver := &fakeSaver{}
	svc, st := setupTestService(t, saver)

	track := sync.TrackSnapshot{
		Name:   "Paranoid Android (Live)",
		Artist: "Radiohead",
		URI:    "spotify:track:abc123",
	}
	if err := svc.Favorite(context.Background(), track); err != nil {
		t.Fatalf("Favorite() error = %v", err)
	}

	snap := readDoc(t, st, "users/me/favorites/ParanoidAndroidLive")
	if !snap.Exists {
		t.Fatal("favorite document was not written")
	}
	if snap.Fields["name"] != "Paranoid Android (Live)" || snap.Fields["artist"] != "Radiohead" {
		t.Errorf("favorite fields = %+v", snap.Fields)
	}

	if len(saver.uris) != 1 || saver.uris[0] != "spotify:track:abc123" {
		t.Errorf("saver received %v", saver.uris)
	}
}

func TestFavoriteWithoutURIOrSaver(t *testing.T) {
	saver := &fakeSaver{}
	svc, _ := setupTestService(t, saver)

	// No uri, no library save.
	if err := svc.Favorite(context.Background(), sync.TrackSnapshot{Name: "Song"}); err != nil {
		t.Fatalf("Favorite() error = %v", err)
	}
	if len(saver.uris) != 0 {
		t.Errorf("saver called for track without uri: %v", saver.uris)
	}

	// Nil saver still records the favorite.
	svcNoSaver, st := setupTestService(t, nil)
	if err := svcNoSaver.Favorite(context.Background(), sync.TrackSnapshot{Name: "Song", URI: "spotify:track:x"}); err != nil {
		t.Fatalf("Favorite() error = %v", err)
	}
	if snap := readDoc(t, st, "users/me/favorites/Song"); !snap.Exists {
		t.Error("favorite not recorded without a saver")
	}
}

func TestFavoriteEmptyName(t *testing.T) {
	svc, _ := setupTestService(t, nil)

	if err := svc.Favorite(context.Background(), sync.TrackSnapshot{Name: "!!! ---"}); err == nil {
		t.Fatal("Favorite() should fail when the name yields an empty id")
	}
}

func TestSafeDocID(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Karma Police", "KarmaPolice"},
		{"99 Luftballons", "99Luftballons"},
		{"Café del Mar", "CafédelMar"},
		{"---", ""},
	}
	for _, tc := range cases {
		if got := safeDocID(tc.in); got != tc.want {
			t.Errorf("safeDocID(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

// TestReactionRoundTrip drives a reaction through the store and verifies
// the sender observes it via their own outgoing-reaction stream.
func TestReactionRoundTrip(t *testing.T) {
	st := store.NewMemory()
	defer st.Close()
	ctx := context.Background()

	me := New(st, config.Identity{UserID: "me", Email: "me@example.com"}, nil, testLogger())

	engine := sync.NewEngine(st, config.Identity{UserID: "me", Email: "me@example.com"}, testLogger())
	if err := engine.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer engine.Stop()

	if err := st.Write(ctx, sync.FriendEdgePath("me", "alice"), map[string]any{"email": "alice@example.com"}, false); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	waitFriends := func(cond func([]sync.FriendRecord) bool, msg string) {
		t.Helper()
		deadline := time.Now().Add(2 * time.Second)
		for time.Now().Before(deadline) {
			if cond(engine.Friends()) {
				return
			}
			time.Sleep(5 * time.Millisecond)
		}
		t.Fatal(msg)
	}

	waitFriends(func(friends []sync.FriendRecord) bool {
		return len(friends) == 1
	}, "friend never appeared")

	if err := me.React(ctx, "alice", sync.ReactionFire); err != nil {
		t.Fatalf("React() error = %v", err)
	}

	waitFriends(func(friends []sync.FriendRecord) bool {
		return len(friends) == 1 && friends[0].MyReaction == sync.ReactionFire
	}, "reaction never echoed back through the engine")
}
