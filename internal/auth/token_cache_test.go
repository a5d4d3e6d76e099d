package auth

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"github.com/earshot-fm/earshot/internal/config"
)

func testCache(t *testing.T) *TokenCache {
	t.Helper()
	return NewTokenCache(filepath.Join(t.TempDir(), "earshot", "token.json"))
}

func TestTokenCacheRoundTrip(t *testing.T) {
	cache := testCache(t)

	token := &oauth2.Token{
		AccessToken:  "access",
		RefreshToken: "refresh",
		TokenType:    "Bearer",
		Expiry:       time.Now().Add(time.Hour).Truncate(time.Second),
	}
	if err := cache.Save(token); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := cache.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded == nil {
		t.Fatal("Load() = nil after Save")
	}
	if loaded.AccessToken != token.AccessToken || loaded.RefreshToken != token.RefreshToken {
		t.Errorf("loaded token = %+v", loaded)
	}
}

func TestTokenCacheLoadMissing(t *testing.T) {
	cache := testCache(t)

	token, err := cache.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if token != nil {
		t.Errorf("Load() = %+v, want nil for a missing file", token)
	}
}

func TestTokenCacheSaveNil(t *testing.T) {
	if err := testCache(t).Save(nil); err == nil {
		t.Fatal("Save(nil) should fail")
	}
}

func TestTokenCacheFilePermissions(t *testing.T) {
	cache := testCache(t)
	if err := cache.Save(&oauth2.Token{AccessToken: "secret"}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	info, err := os.Stat(cache.Path())
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("token file mode = %o, want 0600", perm)
	}
}

func TestTokenCacheDelete(t *testing.T) {
	cache := testCache(t)
	if err := cache.Save(&oauth2.Token{AccessToken: "x"}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if err := cache.Delete(); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if token, _ := cache.Load(); token != nil {
		t.Error("token survived Delete")
	}

	// Deleting again is a no-op.
	if err := cache.Delete(); err != nil {
		t.Fatalf("second Delete() error = %v", err)
	}
}

func TestNewRequiresCredentials(t *testing.T) {
	if _, err := New(&config.Spotify{}); !errors.Is(err, ErrMissingCredentials) {
		t.Fatalf("New() error = %v, want ErrMissingCredentials", err)
	}
	if _, err := New(&config.Spotify{ClientID: "id"}); !errors.Is(err, ErrMissingCredentials) {
		t.Fatalf("New() error = %v, want ErrMissingCredentials", err)
	}
}
