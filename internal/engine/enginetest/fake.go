// Package enginetest provides a scripted engine.Engine for tests.
package enginetest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go-ytqueue/internal/engine"
)

// Script drives one fake download.
type Script struct {
	Err      error         // returned after the ticks are played
	Gate     chan struct{} // when set, the download waits for it to close before finishing
	Filename string        // reported with a finished tick on success
	Ticks    []engine.Tick
	Hold     bool // keep repeating the last tick until aborted
}

// Fake implements engine.Engine from canned data. Keys are URLs.
type Fake struct {
	Infos       map[string]*engine.Info
	ExtractErrs map[string]error
	Scripts     map[string]Script

	mu        sync.Mutex
	downloads []engine.Options
	extracts  []string
}

// New returns an empty fake.
func New() *Fake {
	return &Fake{
		Infos:       make(map[string]*engine.Info),
		ExtractErrs: make(map[string]error),
		Scripts:     make(map[string]Script),
	}
}

// Extract returns the canned info or error for url.
func (f *Fake) Extract(ctx context.Context, url string) (*engine.Info, error) {
	f.mu.Lock()
	f.extracts = append(f.extracts, url)
	info, ok := f.Infos[url]
	err := f.ExtractErrs[url]
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("ERROR: Unsupported URL: %s", url)
	}
	return info, nil
}

// Download plays the script registered for opts.URL.
func (f *Fake) Download(ctx context.Context, opts engine.Options, progress engine.ProgressFunc) error {
	f.mu.Lock()
	f.downloads = append(f.downloads, opts)
	script := f.Scripts[opts.URL]
	f.mu.Unlock()

	emit := func(t engine.Tick) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if progress == nil {
			return nil
		}
		return progress(t)
	}

	for _, t := range script.Ticks {
		if err := emit(t); err != nil {
			return err
		}
	}

	if script.Hold {
		last := engine.Tick{Status: engine.StatusDownloading}
		if n := len(script.Ticks); n > 0 {
			last = script.Ticks[n-1]
		}
		ticker := time.NewTicker(2 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				if err := emit(last); err != nil {
					return err
				}
			}
		}
	}

	if script.Gate != nil {
		select {
		case <-script.Gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if script.Err != nil {
		return script.Err
	}
	if script.Filename != "" {
		return emit(engine.Tick{Status: engine.StatusFinished, Filename: script.Filename})
	}
	return nil
}

// Downloads returns the options of every download call so far.
func (f *Fake) Downloads() []engine.Options {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]engine.Options, len(f.downloads))
	copy(out, f.downloads)
	return out
}

// Extracts returns the URLs passed to Extract so far.
func (f *Fake) Extracts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.extracts))
	copy(out, f.extracts)
	return out
}

var _ engine.Engine = (*Fake)(nil)
