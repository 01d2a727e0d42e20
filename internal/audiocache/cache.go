// Package audiocache stores pre-rendered pronunciation audio keyed by
// gesture label.
//
// The cache is read-mostly and shared by every connection: a hit returns the
// stored bytes unchanged, a miss synthesises the label's pronunciation text
// through a tts.Provider and stores the result. Concurrent misses for the
// same label are collapsed into one synthesis call; lookups for different
// labels never block each other. Backends are pluggable via the [Store]
// interface (memory, disk, redis).
package audiocache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/harya06/iqro-gesture/pkg/provider/tts"
)

// ErrUnavailable is returned by [Cache.Get] when audio could not be produced
// for a label — synthesis failed and nothing is cached. Callers treat it as
// "no audio", not as a fatal condition.
var ErrUnavailable = errors.New("audiocache: audio unavailable")

// pregenerateConcurrency bounds parallel synthesis calls during warm-up, so
// the upstream synthesiser is not hammered with the whole vocabulary at once.
const pregenerateConcurrency = 4

// Store is a cache backend. Implementations must be safe for concurrent use.
type Store interface {
	// Get returns the audio stored under key, and whether it was present.
	Get(ctx context.Context, key string) (tts.Audio, bool, error)

	// Put stores audio under key, replacing any previous entry.
	Put(ctx context.Context, key string, audio tts.Audio) error

	// Clear removes every entry and returns the number removed.
	Clear(ctx context.Context) (int, error)
}

// TextSource resolves a label to the text handed to the synthesiser.
// config.GestureConfig.PronunciationText satisfies this.
type TextSource func(label string) string

// Cache is the label-keyed pronunciation audio cache.
type Cache struct {
	store    Store
	synth    tts.Provider
	text     TextSource
	language string

	// flight collapses concurrent misses for the same sanitized label.
	flight singleflight.Group
}

// New creates a Cache over store, synthesising misses with synth. text maps a
// label to its pronunciation; language is the synthesis language code.
func New(store Store, synth tts.Provider, text TextSource, language string) *Cache {
	if text == nil {
		text = func(label string) string { return label }
	}
	return &Cache{
		store:    store,
		synth:    synth,
		text:     text,
		language: language,
	}
}

// Get returns the pronunciation audio for label, synthesising and caching it
// on a miss. The second result reports whether the audio was already cached
// when the lookup started, so callers can keep truthful hit-rate counters.
// Returns [ErrUnavailable] when synthesis fails; the cache is left unchanged
// so a later call retries.
func (c *Cache) Get(ctx context.Context, label string) (tts.Audio, bool, error) {
	key := Sanitize(label)
	if key == "" {
		return tts.Audio{}, false, fmt.Errorf("%w: label %q sanitizes to nothing", ErrUnavailable, label)
	}

	if audio, ok, err := c.store.Get(ctx, key); err != nil {
		slog.Warn("audio cache read failed, falling through to synthesis", "label", label, "err", err)
	} else if ok {
		return audio, true, nil
	}

	v, err, _ := c.flight.Do(key, func() (any, error) {
		// Another goroutine may have filled the entry while we queued.
		if audio, ok, err := c.store.Get(ctx, key); err == nil && ok {
			return audio, nil
		}
		return c.fill(ctx, key, label)
	})
	if err != nil {
		return tts.Audio{}, false, err
	}
	return v.(tts.Audio), false, nil
}

// fill synthesises audio for label and stores it under key.
func (c *Cache) fill(ctx context.Context, key, label string) (tts.Audio, error) {
	audio, err := c.synth.Synthesize(ctx, c.text(label), c.language)
	if err != nil {
		return tts.Audio{}, fmt.Errorf("%w: synthesize %q: %v", ErrUnavailable, label, err)
	}

	if err := c.store.Put(ctx, key, audio); err != nil {
		// The caller still gets audio; only the cache write is lost.
		slog.Warn("audio cache write failed", "label", label, "err", err)
	} else {
		slog.Debug("audio cached", "label", label, "bytes", len(audio.Data), "format", audio.Format)
	}
	return audio, nil
}

// PregenerateAll warms the cache for every label, tolerating individual
// synthesis failures. Returns the number of labels that now have audio.
// Intended as a startup step, not part of the hot path.
func (c *Cache) PregenerateAll(ctx context.Context, labels []string) int {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(pregenerateConcurrency)

	results := make(chan bool, len(labels))
	for _, label := range labels {
		g.Go(func() error {
			if _, _, err := c.Get(ctx, label); err != nil {
				slog.Warn("pregenerate failed for label", "label", label, "err", err)
				results <- false
			} else {
				results <- true
			}
			return nil
		})
	}
	_ = g.Wait()
	close(results)

	var warmed int
	for ok := range results {
		if ok {
			warmed++
		}
	}
	slog.Info("audio pregeneration complete", "warmed", warmed, "labels", len(labels))
	return warmed
}

// Clear drops every cached entry and returns the number removed. Subsequent
// Get calls behave as first-time misses.
func (c *Cache) Clear(ctx context.Context) (int, error) {
	n, err := c.store.Clear(ctx)
	if err != nil {
		return 0, fmt.Errorf("audiocache: clear: %w", err)
	}
	slog.Info("audio cache cleared", "removed", n)
	return n, nil
}

// Sanitize reduces a label to its cache key: lowercase with only
// alphanumerics, '-' and '_' kept.
func Sanitize(label string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(label) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		}
	}
	return b.String()
}
