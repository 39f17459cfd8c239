package engine

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	nativeytdlp "github.com/ytget/ytdlp/v2"
)

// DefaultPlaylistTimeout bounds a native playlist listing.
const DefaultPlaylistTimeout = 60 * time.Second

// PlaylistLister lists playlist entries without spawning the external tool.
type PlaylistLister interface {
	ListPlaylist(ctx context.Context, playlistURL string) (*Info, error)
}

// NativePlaylist lists playlists with the pure-Go ytget client.
type NativePlaylist struct {
	timeout time.Duration
}

// NewNativePlaylist creates a lister; a non-positive timeout uses DefaultPlaylistTimeout.
func NewNativePlaylist(timeout time.Duration) *NativePlaylist {
	if timeout <= 0 {
		timeout = DefaultPlaylistTimeout
	}
	return &NativePlaylist{timeout: timeout}
}

// ListPlaylist returns an Info shaped like the external tool's flat playlist dump.
func (n *NativePlaylist) ListPlaylist(ctx context.Context, playlistURL string) (*Info, error) {
	playlistID := PlaylistID(playlistURL)
	if playlistID == "" {
		return nil, fmt.Errorf("could not extract playlist ID from URL: %s", playlistURL)
	}

	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	log.Debugf("[Engine] Listing playlist %s natively", playlistID)
	items, err := nativeytdlp.New().GetPlaylistItemsAll(ctx, playlistID, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to get playlist items: %w", err)
	}

	info := &Info{ID: playlistID, Entries: make([]*Info, 0, len(items))}
	for _, it := range items {
		if it.VideoID == "" {
			info.Entries = append(info.Entries, nil)
			continue
		}
		info.Entries = append(info.Entries, &Info{ID: it.VideoID, Title: it.Title})
	}
	return info, nil
}

// PlaylistID returns the list= query value of a URL, or "" when there is none.
func PlaylistID(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	return u.Query().Get("list")
}
