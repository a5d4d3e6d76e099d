package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	return path
}

func TestLoadMinimalConfig(t *testing.T) {
	path := writeConfig(t, `
identity:
  user_id: "me"
publish:
  enabled: false
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Identity.UserID != "me" {
		t.Errorf("user_id = %q", cfg.Identity.UserID)
	}
	// Defaults fill in the rest.
	if cfg.Store.Driver != "sqlite" {
		t.Errorf("store.driver = %q, want sqlite default", cfg.Store.Driver)
	}
	if cfg.Feed.Port != 8177 {
		t.Errorf("feed.port = %d, want 8177 default", cfg.Feed.Port)
	}
	if cfg.Publish.IntervalSeconds != 30 {
		t.Errorf("publish.interval_seconds = %d, want 30 default", cfg.Publish.IntervalSeconds)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("logging.level = %q, want info default", cfg.Logging.Level)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("Load() should fail for a missing file")
	}
}

func TestValidateRequiresUserID(t *testing.T) {
	cfg := Default()
	cfg.Publish.Enabled = false

	if err := Validate(cfg); err == nil {
		t.Fatal("Validate() should require identity.user_id")
	}

	cfg.Identity.UserID = "a/b"
	if err := Validate(cfg); err == nil {
		t.Fatal("Validate() should reject user ids containing '/'")
	}

	cfg.Identity.UserID = "me"
	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
}

func TestValidateStoreDriver(t *testing.T) {
	cfg := Default()
	cfg.Identity.UserID = "me"
	cfg.Publish.Enabled = false

	cfg.Store.Driver = "bogus"
	if err := Validate(cfg); err == nil {
		t.Fatal("Validate() should reject unknown store drivers")
	}

	cfg.Store.Driver = "sqlite"
	cfg.Store.SQLitePath = ""
	if err := Validate(cfg); err == nil {
		t.Fatal("Validate() should require sqlite_path for the sqlite driver")
	}

	cfg.Store.Driver = "memory"
	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
}

func TestValidatePublishRequiresCredentials(t *testing.T) {
	cfg := Default()
	cfg.Identity.UserID = "me"
	cfg.Publish.Enabled = true

	if err := Validate(cfg); err == nil {
		t.Fatal("Validate() should require Spotify credentials when publishing")
	}

	cfg.Spotify.ClientID = "id"
	cfg.Spotify.ClientSecret = "secret"
	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	cfg.Publish.IntervalSeconds = 1
	if err := Validate(cfg); err == nil {
		t.Fatal("Validate() should enforce the minimum publish interval")
	}
}

func TestValidateFeedPort(t *testing.T) {
	cfg := Default()
	cfg.Identity.UserID = "me"
	cfg.Publish.Enabled = false

	cfg.Feed.Port = 0
	if err := Validate(cfg); err == nil {
		t.Fatal("Validate() should reject feed port 0")
	}
	cfg.Feed.Port = 70000
	if err := Validate(cfg); err == nil {
		t.Fatal("Validate() should reject out-of-range feed ports")
	}

	// A disabled feed skips the port check.
	cfg.Feed.Enabled = false
	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SPOTIFY_ID", "env-client")
	t.Setenv("SPOTIFY_SECRET", "env-secret")
	t.Setenv("EARSHOT_USER_ID", "env-user")

	path := writeConfig(t, `
identity:
  user_id: "file-user"
spotify:
  client_id: "file-client"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Identity.UserID != "env-user" {
		t.Errorf("user_id = %q, want env override", cfg.Identity.UserID)
	}
	if cfg.Spotify.ClientID != "env-client" {
		t.Errorf("client_id = %q, want env override", cfg.Spotify.ClientID)
	}
	if cfg.Spotify.ClientSecret != "env-secret" {
		t.Errorf("client_secret not taken from environment")
	}
}

func TestSecretNeverReadFromFile(t *testing.T) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(`
spotify:
  client_secret: "leaked"
`), &cfg); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if cfg.Spotify.ClientSecret != "" {
		t.Error("client_secret must not be readable from the config file")
	}
}

func TestExampleConfigIsValid(t *testing.T) {
	data, err := GetExampleConfig()
	if err != nil {
		t.Fatalf("GetExampleConfig() error = %v", err)
	}
	if !strings.Contains(string(data), "identity:") {
		t.Error("example config missing identity section")
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		t.Fatalf("example config does not parse: %v", err)
	}
}
