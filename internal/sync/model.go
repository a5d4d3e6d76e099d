package sync

import "github.com/earshot-fm/earshot/internal/store"

// Reaction is one of the reactions friends can exchange. The zero value
// means "no reaction"; unrecognized raw values from the store decode to
// it rather than surfacing as errors.
type Reaction string

const (
	ReactionNone    Reaction = ""
	ReactionLike    Reaction = "like"
	ReactionDislike Reaction = "dislike"
	ReactionFire    Reaction = "fire"
)

// ParseReaction decodes a raw reaction value. Anything outside the closed
// set maps to ReactionNone.
func ParseReaction(raw string) Reaction {
	switch Reaction(raw) {
	case ReactionLike, ReactionDislike, ReactionFire:
		return Reaction(raw)
	default:
		return ReactionNone
	}
}

// Valid reports whether r is a sendable reaction (not ReactionNone).
func (r Reaction) Valid() bool {
	switch r {
	case ReactionLike, ReactionDislike, ReactionFire:
		return true
	}
	return false
}

// TrackSnapshot is the flattened shape of a currently-playing track as it
// appears in a public_tracks document.
type TrackSnapshot struct {
	Name        string `json:"name"`
	Artist      string `json:"artist"`
	AlbumArtURL string `json:"albumArtURL"`
	URI         string `json:"uri"`
}

// FriendRecord is the merged, latest-known view of one friend: who they
// are, what they're playing, and the reactions flowing both ways.
// Records exist only for ids in the current roster.
type FriendRecord struct {
	ID            string         `json:"id"`
	Email         string         `json:"email"`
	Track         *TrackSnapshot `json:"track,omitempty"`
	MyReaction    Reaction       `json:"myReaction,omitempty"`
	TheirReaction Reaction       `json:"theirReaction,omitempty"`
}

func (f *FriendRecord) clone() FriendRecord {
	out := *f
	if f.Track != nil {
		track := *f.Track
		out.Track = &track
	}
	return out
}

// decodeTrack builds a TrackSnapshot from a public track document. Name,
// artist and album art must all be present as strings; a partial payload
// yields no snapshot so the previous value is retained. The uri is newer
// than the rest of the document shape and stays optional.
func decodeTrack(fields map[string]any) (*TrackSnapshot, bool) {
	name, ok := fields["name"].(string)
	if !ok {
		return nil, false
	}
	artist, ok := fields["artist"].(string)
	if !ok {
		return nil, false
	}
	albumArtURL, ok := fields["albumArtURL"].(string)
	if !ok {
		return nil, false
	}
	uri, _ := fields["uri"].(string)

	return &TrackSnapshot{
		Name:        name,
		Artist:      artist,
		AlbumArtURL: albumArtURL,
		URI:         uri,
	}, true
}

// decodeReaction reads the reaction field out of a reaction edge document.
// An absent document, a missing field, and an unknown value all mean
// ReactionNone.
func decodeReaction(snap store.Snapshot) Reaction {
	if !snap.Exists {
		return ReactionNone
	}
	raw, ok := snap.Fields["reaction"].(string)
	if !ok {
		return ReactionNone
	}
	return ParseReaction(raw)
}
