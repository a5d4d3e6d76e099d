// Package spotify wraps the Spotify Web API calls earshot needs: reading
// the currently-playing track and saving tracks to the user's library.
package spotify

import (
	"context"
	"fmt"
	"strings"

	"github.com/zmb3/spotify/v2"

	"github.com/earshot-fm/earshot/internal/sync"
)

// Client wraps an authenticated Spotify API client.
type Client struct {
	api *spotify.Client
}

// New creates a Client. The underlying client must already be authenticated.
func New(api *spotify.Client) *Client {
	return &Client{api: api}
}

// UserID returns the current user's Spotify ID.
func (c *Client) UserID(ctx context.Context) (string, error) {
	user, err := c.api.CurrentUser(ctx)
	if err != nil {
		return "", fmt.Errorf("getting current user: %w", err)
	}
	return user.ID, nil
}

// NowPlaying returns the user's currently-playing track flattened to the
// shape friends see, or nil when nothing is playing.
func (c *Client) NowPlaying(ctx context.Context) (*sync.TrackSnapshot, error) {
	playing, err := c.api.PlayerCurrentlyPlaying(ctx)
	if err != nil {
		return nil, fmt.Errorf("getting currently playing: %w", err)
	}
	if playing == nil || playing.Item == nil {
		return nil, nil
	}
	return flattenTrack(playing.Item), nil
}

// flattenTrack reduces the API track to the published document shape:
// first artist or a fallback, first album image or empty.
func flattenTrack(t *spotify.FullTrack) *sync.TrackSnapshot {
	artist := "Unknown Artist"
	if len(t.Artists) > 0 {
		artist = t.Artists[0].Name
	}

	albumArtURL := ""
	if len(t.Album.Images) > 0 {
		albumArtURL = t.Album.Images[0].URL
	}

	return &sync.TrackSnapshot{
		Name:        t.Name,
		Artist:      artist,
		AlbumArtURL: albumArtURL,
		URI:         string(t.URI),
	}
}

// SaveToLibrary adds the track identified by a spotify:track:<id> uri to
// the user's library.
func (c *Client) SaveToLibrary(ctx context.Context, uri string) error {
	id, err := trackID(uri)
	if err != nil {
		return err
	}
	if err := c.api.AddTracksToLibrary(ctx, id); err != nil {
		return fmt.Errorf("saving track to library: %w", err)
	}
	return nil
}

// trackID extracts the track id from a Spotify uri.
func trackID(uri string) (spotify.ID, error) {
	parts := strings.Split(uri, ":")
	if len(parts) != 3 || parts[0] != "spotify" || parts[1] != "track" || parts[2] == "" {
		return "", fmt.Errorf("not a spotify track uri: %q", uri)
	}
	return spotify.ID(parts[2]), nil
}
