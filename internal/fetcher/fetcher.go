package fetcher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"

	"go-ytqueue/internal/engine"
	"go-ytqueue/internal/models"
)

// ErrFetch is matched by every metadata fetch failure.
var ErrFetch = errors.New("metadata fetch failed")

// Defaults applied to fields the engine leaves empty.
const (
	UnknownTitle  = "Unknown Title"
	UnknownAuthor = "Unknown"
)

// FetchError carries the engine's message for a failed fetch.
type FetchError struct {
	Err     error
	URL     string
	Message string
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("failed to fetch %s: %s", e.URL, e.Message)
}

// Is makes errors.Is(err, ErrFetch) hold for every FetchError.
func (e *FetchError) Is(target error) bool {
	return target == ErrFetch
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// FetchResult is the outcome of one fetch: one record, an ordered playlist, or an error.
type FetchResult struct {
	Err      error
	URL      string
	Records  []models.VideoRecord
	Playlist bool
}

// Fetcher resolves URLs into video records.
type Fetcher struct {
	engine    engine.Engine
	playlists engine.PlaylistLister
}

// New creates a fetcher. playlists may be nil, in which case every URL goes through the engine.
func New(eng engine.Engine, playlists engine.PlaylistLister) *Fetcher {
	return &Fetcher{engine: eng, playlists: playlists}
}

// ThumbnailURL returns the canonical thumbnail location for a video id.
func ThumbnailURL(videoID string) string {
	return fmt.Sprintf("https://i.ytimg.com/vi/%s/hqdefault.jpg", videoID)
}

// Fetch extracts metadata for url. No partial results are returned on error.
func (f *Fetcher) Fetch(ctx context.Context, url string) (FetchResult, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return FetchResult{}, fmt.Errorf("%w: empty URL", models.ErrInvalidInput)
	}

	info, err := f.extract(ctx, url)
	if err != nil {
		fetchErr := &FetchError{URL: url, Message: err.Error(), Err: err}
		log.WithError(err).Debugf("[Fetcher] Fetch failed for %s", url)
		return FetchResult{URL: url, Err: fetchErr}, fetchErr
	}

	result := FetchResult{URL: url}
	if info.IsPlaylist() {
		result.Playlist = true
		result.Records = make([]models.VideoRecord, 0, len(info.Entries))
		for _, entry := range info.Entries {
			if entry == nil || entry.ID == "" {
				continue
			}
			result.Records = append(result.Records, recordFromInfo(entry))
		}
		log.Debugf("[Fetcher] %s is a playlist with %d available entries", url, len(result.Records))
	} else {
		result.Records = []models.VideoRecord{recordFromInfo(info)}
	}
	return result, nil
}

func (f *Fetcher) extract(ctx context.Context, url string) (*engine.Info, error) {
	if f.playlists != nil && engine.PlaylistID(url) != "" {
		info, err := f.playlists.ListPlaylist(ctx, url)
		if err == nil {
			return info, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.WithError(err).Warnf("[Fetcher] Native playlist listing failed for %s, falling back to engine", url)
	}
	return f.engine.Extract(ctx, url)
}

// FetchAsync runs Fetch in a goroutine. The channel yields exactly one result and is then closed.
func (f *Fetcher) FetchAsync(ctx context.Context, url string) <-chan FetchResult {
	out := make(chan FetchResult, 1)
	go func() {
		defer close(out)
		result, err := f.Fetch(ctx, url)
		if err != nil {
			result.URL = url
			result.Err = err
		}
		out <- result
	}()
	return out
}

// FetchAll fetches every URL concurrently and returns the results in input order.
func (f *Fetcher) FetchAll(ctx context.Context, urls []string) []FetchResult {
	results := make([]FetchResult, len(urls))
	var wg sync.WaitGroup
	for i, url := range urls {
		wg.Add(1)
		go func(i int, ch <-chan FetchResult) {
			defer wg.Done()
			results[i] = <-ch
		}(i, f.FetchAsync(ctx, url))
	}
	wg.Wait()
	return results
}

func recordFromInfo(info *engine.Info) models.VideoRecord {
	record := models.VideoRecord{
		ID:           info.ID,
		Title:        info.Title,
		Author:       info.Uploader,
		ThumbnailURL: info.Thumbnail,
	}
	if record.Title == "" {
		record.Title = UnknownTitle
	}
	if record.Author == "" {
		record.Author = UnknownAuthor
	}
	if record.ThumbnailURL == "" {
		record.ThumbnailURL = ThumbnailURL(info.ID)
	}
	if info.Duration > 0 {
		record.DurationSeconds = int(info.Duration)
	}
	return record
}
