// Package publisher periodically pushes the local now-playing track
// into the shared store where friends subscribe to it.
package publisher

import (
	"context"
	"fmt"
	"time"

	"github.com/earshot-fm/earshot/internal/config"
	"github.com/earshot-fm/earshot/internal/ops"
	"github.com/earshot-fm/earshot/internal/store"
	"github.com/earshot-fm/earshot/internal/sync"
)

// NowPlayingSource reports the currently playing track, or nil when
// nothing is playing.
type NowPlayingSource interface {
	NowPlaying(ctx context.Context) (*sync.TrackSnapshot, error)
}

// Publisher polls a NowPlayingSource and writes the result to the
// user's public track document.
type Publisher struct {
	source   NowPlayingSource
	store    store.Store
	id       config.Identity
	interval time.Duration
	log      *ops.Logger
}

// New creates a Publisher. The interval comes from the publish config.
func New(source NowPlayingSource, st store.Store, id config.Identity, cfg config.Publish, log *ops.Logger) *Publisher {
	return &Publisher{
		source:   source,
		store:    st,
		id:       id,
		interval: time.Duration(cfg.IntervalSeconds) * time.Second,
		log:      log.WithComponent("publisher"),
	}
}

// Run polls until ctx is cancelled. The first poll happens immediately.
func (p *Publisher) Run(ctx context.Context) {
	p.publishOnce(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.publishOnce(ctx)
		}
	}
}

func (p *Publisher) publishOnce(ctx context.Context) {
	track, err := p.source.NowPlaying(ctx)
	if err != nil {
		p.log.Warn("failed to fetch now playing", "error", err)
		return
	}
	if track == nil {
		p.log.Debug("nothing playing, skipping publish")
		return
	}
	if err := p.Publish(ctx, track); err != nil {
		p.log.Warn("failed to publish track", "error", err)
	}
}

// Publish writes the track to the user's public track document. The
// track document carries the user's email so friends can identify it.
// Without a configured email there is nothing useful to publish.
func (p *Publisher) Publish(ctx context.Context, track *sync.TrackSnapshot) error {
	if p.id.Email == "" {
		p.log.Debug("no email configured, skipping publish")
		return nil
	}

	if err := p.store.Write(ctx, sync.UserPath(p.id.UserID), map[string]any{
		"email": p.id.Email,
	}, true); err != nil {
		return fmt.Errorf("writing user document: %w", err)
	}

	if err := p.store.Write(ctx, sync.TrackPath(p.id.UserID), map[string]any{
		"name":        track.Name,
		"artist":      track.Artist,
		"albumArtURL": track.AlbumArtURL,
		"uri":         track.URI,
		"email":       p.id.Email,
		"timestamp":   time.Now().Unix(),
	}, true); err != nil {
		return fmt.Errorf("writing track document: %w", err)
	}

	p.log.Debug("published track", "name", track.Name, "artist", track.Artist)
	return nil
}
