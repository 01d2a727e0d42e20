package audiocache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/harya06/iqro-gesture/pkg/provider/tts"
)

// Compile-time interface assertion.
var _ Store = (*DiskStore)(nil)

// DiskStore is a [Store] keeping one file per label under a cache directory,
// named <key>.<format>. Entries survive restarts, so the synthesiser is only
// contacted once per label over the lifetime of the directory.
type DiskStore struct {
	dir string
}

// NewDiskStore creates the cache directory if needed and returns a DiskStore
// over it.
func NewDiskStore(dir string) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("audiocache: create cache dir %q: %w", dir, err)
	}
	return &DiskStore{dir: dir}, nil
}

// Get implements Store. The format tag is recovered from the file extension.
func (s *DiskStore) Get(_ context.Context, key string) (tts.Audio, bool, error) {
	matches, err := filepath.Glob(filepath.Join(s.dir, key+".*"))
	if err != nil {
		return tts.Audio{}, false, fmt.Errorf("audiocache: glob %q: %w", key, err)
	}
	if len(matches) == 0 {
		return tts.Audio{}, false, nil
	}

	path := matches[0]
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Removed between glob and read; treat as a miss.
			return tts.Audio{}, false, nil
		}
		return tts.Audio{}, false, fmt.Errorf("audiocache: read %q: %w", path, err)
	}

	format := strings.TrimPrefix(filepath.Ext(path), ".")
	return tts.Audio{Data: data, Format: format}, true, nil
}

// Put implements Store. The write goes through a temp file and rename, so a
// concurrent Get never observes a half-written entry.
func (s *DiskStore) Put(_ context.Context, key string, audio tts.Audio) error {
	format := audio.Format
	if format == "" {
		format = "bin"
	}
	final := filepath.Join(s.dir, key+"."+format)

	tmp, err := os.CreateTemp(s.dir, key+".tmp-*")
	if err != nil {
		return fmt.Errorf("audiocache: create temp file: %w", err)
	}
	if _, err := tmp.Write(audio.Data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("audiocache: write %q: %w", final, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("audiocache: close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), final); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("audiocache: rename into place: %w", err)
	}
	return nil
}

// Clear implements Store. Only cache entries are removed; anything else in
// the directory is left alone.
func (s *DiskStore) Clear(_ context.Context) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("audiocache: read cache dir: %w", err)
	}

	var removed int
	for _, e := range entries {
		if e.IsDir() || strings.Contains(e.Name(), ".tmp-") {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, e.Name())); err != nil {
			return removed, fmt.Errorf("audiocache: remove %q: %w", e.Name(), err)
		}
		removed++
	}
	return removed, nil
}
