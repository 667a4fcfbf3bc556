package cache

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewRedisStore(client, RedisStoreConfig{Prefix: "test:"})

	return store, mr
}

func TestRedisStoreSaveLoadRoundTrip(t *testing.T) {
	store, mr := setupTestRedisStore(t)
	defer mr.Close()
	ctx := context.Background()

	fetchedAt := time.Now().Truncate(time.Second)
	entry := CacheEntry{
		RawContent:  "# Site\n\n> Summary.\n",
		FetchedAt:   fetchedAt,
		ExpiresAt:   fetchedAt.Add(time.Hour),
		TTL:         time.Hour,
		HTTPHeaders: http.Header{"Etag": []string{`"abc123"`}},
		FetchResult: FetchSummary{Status: "success", HTTPStatusCode: 200, Duration: 250 * time.Millisecond, Domain: "example.com"},
	}
	require.NoError(t, store.Save(ctx, "example.com", entry))

	loaded, err := store.Load(ctx, "example.com")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "Site", loaded.Document.Title)
	assert.Equal(t, "example.com", loaded.Domain)
	assert.True(t, loaded.FetchedAt.Equal(fetchedAt))
	assert.True(t, loaded.ExpiresAt.Equal(fetchedAt.Add(time.Hour)))
	assert.Equal(t, `"abc123"`, loaded.HTTPHeaders.Get("Etag"))
	assert.Equal(t, "success", loaded.FetchResult.Status)
	assert.Equal(t, 200, loaded.FetchResult.HTTPStatusCode)
	assert.Equal(t, "example.com", loaded.FetchResult.Domain)
}

func TestRedisStoreLoadMissingReturnsNil(t *testing.T) {
	store, mr := setupTestRedisStore(t)
	defer mr.Close()

	loaded, err := store.Load(context.Background(), "unseen.example")
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestRedisStoreCompressesLargePayloads(t *testing.T) {
	store, mr := setupTestRedisStore(t)
	defer mr.Close()
	ctx := context.Background()

	store.compressionMinSize = 16
	big := "# Site\n\n> " + strings.Repeat("filler content ", 50) + "\n"
	require.NoError(t, store.Save(ctx, "example.com", CacheEntry{RawContent: big, TTL: time.Hour}))

	loaded, err := store.Load(ctx, "example.com")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, big, loaded.RawContent)
}

func TestRedisStoreRemove(t *testing.T) {
	store, mr := setupTestRedisStore(t)
	defer mr.Close()
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "example.com", CacheEntry{RawContent: "# Site\n"}))
	require.NoError(t, store.Remove(ctx, "example.com"))

	loaded, err := store.Load(ctx, "example.com")
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestRedisStoreClear(t *testing.T) {
	store, mr := setupTestRedisStore(t)
	defer mr.Close()
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "a.example", CacheEntry{RawContent: "# A\n"}))
	require.NoError(t, store.Save(ctx, "b.example", CacheEntry{RawContent: "# B\n"}))

	require.NoError(t, store.Clear(ctx))

	a, err := store.Load(ctx, "a.example")
	require.NoError(t, err)
	assert.Nil(t, a)
}
