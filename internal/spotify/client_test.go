package spotify

import (
	"testing"

	"github.com/zmb3/spotify/v2"
)

func TestFlattenTrack(t *testing.T) {
	track := &spotify.FullTrack{
		SimpleTrack: spotify.SimpleTrack{
			Name: "Karma Police",
			URI:  "spotify:track:63OQupATfueTdZMWTxW03A",
			Artists: []spotify.SimpleArtist{
				{Name: "Radiohead"},
				{Name: "Someone Else"},
			},
		},
		Album: spotify.SimpleAlbum{
			Images: []spotify.Image{
				{URL: "https://img.example/640.jpg"},
				{URL: "https://img.example/300.jpg"},
			},
		},
	}

	snap := flattenTrack(track)
	if snap.Name != "Karma Police" {
		t.Errorf("name = %q", snap.Name)
	}
	if snap.Artist != "Radiohead" {
		t.Errorf("artist = %q, want first artist", snap.Artist)
	}
	if snap.AlbumArtURL != "https://img.example/640.jpg" {
		t.Errorf("albumArtURL = %q, want first image", snap.AlbumArtURL)
	}
	if snap.URI != "spotify:track:63OQupATfueTdZMWTxW03A" {
		t.Errorf("uri = %q", snap.URI)
	}
}

func TestFlattenTrackFallbacks(t *testing.T) {
	snap := flattenTrack(&spotify.FullTrack{
		SimpleTrack: spotify.SimpleTrack{Name: "Untitled"},
	})
	if snap.Artist != "Unknown Artist" {
		t.Errorf("artist = %q, want fallback", snap.Artist)
	}
	if snap.AlbumArtURL != "" {
		t.Errorf("albumArtURL = %q, want empty", snap.AlbumArtURL)
	}
}

func TestTrackID(t *testing.T) {
	id, err := trackID("spotify:track:abc123")
	if err != nil {
		t.Fatalf("trackID() error = %v", err)
	}
	if id != spotify.ID("abc123") {
		t.Errorf("id = %q", id)
	}

	for _, uri := range []string{
		"",
		"abc123",
		"spotify:album:abc123",
		"spotify:track:",
		"http://open.spotify.com/track/abc123",
	} {
		if _, err := trackID(uri); err == nil {
			t.Errorf("trackID(%q) should fail", uri)
		}
	}
}
