package vectordb

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisStore(t *testing.T) {
	ctx := context.Background()
	newStore := func(t *testing.T) (Store, *miniredis.Miniredis) {
		t.Helper()
		mr := miniredis.RunT(t)
		store, err := New(ctx, &Config{
			ID:         "redis",
			Provider:   ProviderRedis,
			DSN:        "redis://" + mr.Addr(),
			Collection: "Docs Collection",
			Dimension:  3,
		})
		require.NoError(t, err)
		t.Cleanup(func() { _ = store.Close(ctx) })
		return store, mr
	}
	t.Run("Should store records as hashes and search them", func(t *testing.T) {
		store, mr := newStore(t)
		require.NoError(t, store.Upsert(ctx, sampleRecords()))
		assert.True(t, mr.Exists("docqa:vec:docs-collection:rec:a-0"))
		matches, err := store.Search(ctx, []float32{0, 1, 0}, SearchOptions{TopK: 1})
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Equal(t, "b-0", matches[0].ID)
		assert.Equal(t, "beta", matches[0].Text)
		assert.Equal(t, "b.docx", matches[0].Metadata["file_name"])
	})
	t.Run("Should delete by metadata and keep the id set in sync", func(t *testing.T) {
		store, _ := newStore(t)
		require.NoError(t, store.Upsert(ctx, sampleRecords()))
		require.NoError(t, store.Delete(ctx, Filter{Metadata: map[string]string{"file_path": "/docs/a.docx"}}))
		n, err := store.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		matches, err := store.Search(ctx, []float32{1, 0, 0}, SearchOptions{TopK: 3})
		require.NoError(t, err)
		for _, m := range matches {
			assert.NotEqual(t, "/docs/a.docx", m.Metadata["file_path"])
		}
	})
	t.Run("Should spare kept ids on a metadata delete", func(t *testing.T) {
		store, mr := newStore(t)
		require.NoError(t, store.Upsert(ctx, sampleRecords()))
		require.NoError(t, store.Delete(ctx, Filter{
			Metadata: map[string]string{"file_path": "/docs/a.docx"},
			Keep:     []string{"a-1"},
		}))
		assert.False(t, mr.Exists("docqa:vec:docs-collection:rec:a-0"))
		assert.True(t, mr.Exists("docqa:vec:docs-collection:rec:a-1"))
		n, err := store.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, n)
	})
	t.Run("Should leave an injected client open on close", func(t *testing.T) {
		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = client.Close() })
		store := newRedisStoreWithClient(&Config{ID: "redis", Collection: "shared", Dimension: 3}, client)
		require.NoError(t, store.Upsert(ctx, sampleRecords()[:1]))
		require.NoError(t, store.Close(ctx))
		require.NoError(t, client.Ping(ctx).Err())
		n, err := client.SCard(ctx, "docqa:vec:shared:ids").Result()
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
	})
	t.Run("Should close the client it dialed", func(t *testing.T) {
		store, _ := newStore(t)
		inst, ok := store.(*instrumentedStore)
		require.True(t, ok)
		rs, ok := inst.inner.(*redisStore)
		require.True(t, ok)
		assert.True(t, rs.ownsClient)
		require.NoError(t, store.Close(ctx))
		assert.ErrorIs(t, rs.client.Ping(ctx).Err(), redis.ErrClosed)
	})
	t.Run("Should fail fast when the server is unreachable", func(t *testing.T) {
		mr := miniredis.RunT(t)
		addr := mr.Addr()
		mr.Close()
		_, err := New(ctx, &Config{ID: "redis", Provider: ProviderRedis, DSN: "redis://" + addr, Dimension: 3})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "ping failed")
	})
}

func TestCollectionSlug(t *testing.T) {
	t.Run("Should lower case and replace unsupported characters", func(t *testing.T) {
		assert.Equal(t, "my-docs-v1", collectionSlug(" My Docs:v1 "))
		assert.Equal(t, "etc-passwd", collectionSlug("../etc/passwd"))
		assert.Equal(t, "", collectionSlug("  "))
	})
}
