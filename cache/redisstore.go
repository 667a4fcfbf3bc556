package cache

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/llmstxtkit/llmstxtkit/parser"
	"github.com/redis/go-redis/v9"
)

// RedisStore is a BackingStore backed by Redis, compressing payloads with
// gzip once they cross a size threshold — the same compress-if-large
// tradeoff this toolkit's Redis-backed response cache used before it was
// generalized to the domain-keyed cache's BackingStore contract.
type RedisStore struct {
	client             *redis.Client
	prefix             string
	compressionMinSize int
}

// RedisStoreConfig configures a RedisStore.
type RedisStoreConfig struct {
	Prefix             string
	CompressionMinSize int
}

const defaultRedisPrefix = "llmstxtkit:"
const defaultCompressionMinSize = 1024

// NewRedisStore builds a RedisStore over an existing client.
func NewRedisStore(client *redis.Client, cfg RedisStoreConfig) *RedisStore {
	if cfg.Prefix == "" {
		cfg.Prefix = defaultRedisPrefix
	}
	if cfg.CompressionMinSize <= 0 {
		cfg.CompressionMinSize = defaultCompressionMinSize
	}
	return &RedisStore{client: client, prefix: cfg.Prefix, compressionMinSize: cfg.CompressionMinSize}
}

type redisPayload struct {
	Domain         string              `json:"domain"`
	RawContent     string              `json:"rawContent"`
	FetchedAt      time.Time           `json:"fetchedAt"`
	ExpiresAt      time.Time           `json:"expiresAt"`
	TTL            time.Duration       `json:"ttl"`
	HTTPHeaders    map[string][]string `json:"httpHeaders"`
	FetchResult    fileFetchResult     `json:"fetchResult"`
	LastAccessedAt time.Time           `json:"lastAccessedAt"`
}

func (s *RedisStore) makeKey(key string) string {
	return s.prefix + key
}

// Save marshals entry to JSON, gzip-compressing it when it's large enough
// to be worth the CPU, and stores it with twice the entry's own TTL (one
// hour when the entry has none) so a stale-while-revalidate read still
// finds it in Redis.
func (s *RedisStore) Save(ctx context.Context, key string, entry CacheEntry) error {
	payload := redisPayload{
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
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	if len(data) >= s.compressionMinSize {
		data, err = compress(data)
		if err != nil {
			return fmt.Errorf("compress cache entry: %w", err)
		}
	}

	ttl := entry.TTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	if err := s.client.Set(ctx, s.makeKey(key), data, ttl*2).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// Load fetches and decompresses (if needed) the stored entry, re-parsing
// RawContent through the parser so the returned Document always matches
// the current parser.
func (s *RedisStore) Load(ctx context.Context, key string) (*CacheEntry, error) {
	data, err := s.client.Get(ctx, s.makeKey(key)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	if len(data) >= 2 && data[0] == 0x1f && data[1] == 0x8b {
		data, err = decompress(data)
		if err != nil {
			return nil, fmt.Errorf("decompress cache entry: %w", err)
		}
	}

	var payload redisPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("unmarshal cache entry: %w", err)
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

// Remove deletes key from Redis.
func (s *RedisStore) Remove(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.makeKey(key)).Err()
}

// Clear deletes every key under this store's prefix.
func (s *RedisStore) Clear(ctx context.Context) error {
	pattern := s.prefix + "*"
	iter := s.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		if err := s.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("redis clear failed: %w", err)
		}
	}
	return iter.Err()
}

func compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	gz, err := gzip.NewWriterLevel(&buf, gzip.DefaultCompression)
	if err != nil {
		return nil, err
	}
	if _, err := gz.Write(data); err != nil {
		gz.Close()
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompress(data []byte) ([]byte, error) {
	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer gz.Close()
	return io.ReadAll(gz)
}
