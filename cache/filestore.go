package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/llmstxtkit/llmstxtkit/parser"
)

// FileStore is a BackingStore that serializes one entry per file as JSON
// under a directory, writing atomically via a temp file plus rename. The
// raw content is re-parsed through the parser on Load rather than trusting
// the persisted Document, so a materialized entry always reflects the
// current parser's view even after the parser has changed since it was
// written.
type FileStore struct {
	dir string
}

// NewFileStore builds a FileStore rooted at dir, creating it if necessary.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &FileStore{dir: dir}, nil
}

// fileFetchResult is the persisted subset of FetchSummary.
type fileFetchResult struct {
	Status         string `json:"status"`
	HTTPStatusCode int    `json:"statusCode"`
	DurationMillis int64  `json:"durationMs"`
	Domain         string `json:"domain"`
}

// fileEntry is the on-disk representation. Document is rebuilt from
// RawContent on load rather than persisted directly, so a materialized
// entry always reflects the current parser's view.
type fileEntry struct {
	Domain         string              `json:"domain"`
	RawContent     string              `json:"rawContent"`
	FetchedAt      time.Time           `json:"fetchedAt"`
	ExpiresAt      time.Time           `json:"expiresAt"`
	TTL            time.Duration       `json:"ttl"`
	HTTPHeaders    map[string][]string `json:"httpHeaders"`
	FetchResult    fileFetchResult     `json:"fetchResult"`
	LastAccessedAt time.Time           `json:"lastAccessedAt"`
}

func safeFileName(key string) string {
	return strings.ReplaceAll(key, string(os.PathSeparator), "_") + ".json"
}

func (s *FileStore) path(key string) string {
	return filepath.Join(s.dir, safeFileName(key))
}

// Save writes entry atomically: marshal to a temp file in the same
// directory, then rename over the target so a concurrent Load never
// observes a partially written file.
func (s *FileStore) Save(_ context.Context, key string, entry CacheEntry) error {
	payload := fileEntry{
		Domain:      key,
		RawContent:  entry.RawContent,
		FetchedAt:   entry.FetchedAt,
		ExpiresAt:   entry.ExpiresAt,
		TTL:         entry.TTL,
		HTTPHeaders: map[string][]string(entry.HTTPHeaders),
		FetchResult: fileFetchResult{
			Status:         entry.FetchResult.Status,
			HTTPStatusCode: entry.FetchResult.HTTPStatusCode,
			DurationMillis: entry.FetchResult.Duration.Milliseconds(),
			Domain:         entry.FetchResult.Domain,
		},
		LastAccessedAt: entry.LastAccessedAt,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, s.path(key))
}

// Load reads the persisted entry for key, if any, re-parsing RawContent
// through the parser to rebuild Document. A file that does not decode is
// logged as a warning and reported as a miss; it is left on disk.
func (s *FileStore) Load(_ context.Context, key string) (*CacheEntry, error) {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var payload fileEntry
	if err := json.Unmarshal(data, &payload); err != nil {
		slog.Warn("cache: corrupt cache file treated as a miss", "path", s.path(key), "error", err)
		return nil, nil
	}

	doc := parser.Parse(payload.RawContent)
	return &CacheEntry{
		Domain:      payload.Domain,
		Document:    doc,
		RawContent:  payload.RawContent,
		FetchedAt:   payload.FetchedAt,
		ExpiresAt:   payload.ExpiresAt,
		TTL:         payload.TTL,
		HTTPHeaders: http.Header(payload.HTTPHeaders),
		FetchResult: FetchSummary{
			Status:         payload.FetchResult.Status,
			HTTPStatusCode: payload.FetchResult.HTTPStatusCode,
			Duration:       time.Duration(payload.FetchResult.DurationMillis) * time.Millisecond,
			Domain:         payload.FetchResult.Domain,
		},
		LastAccessedAt: payload.LastAccessedAt,
	}, nil
}

// Remove deletes the persisted file for key, if present.
func (s *FileStore) Remove(_ context.Context, key string) error {
	err := os.Remove(s.path(key))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Clear removes every file this store manages.
func (s *FileStore) Clear(_ context.Context) error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, e.Name())); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	return nil
}
