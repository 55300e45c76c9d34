package resumestore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(context.Background(), ":memory:", nil)
	require.NoError(t, err)

	t.Cleanup(func() { _ = s.Close() })

	return s
}

func TestStore_GetAbsent(t *testing.T) {
	s := openTestStore(t)

	_, ok, err := s.Get(context.Background(), "bucket", "object.txt")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_SaveURIThenGet(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveURI(ctx, "bucket", "object.txt", "https://example.com/session/1"))

	record, ok, err := s.Get(ctx, "bucket", "object.txt")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "https://example.com/session/1", record.URI)
	assert.Nil(t, record.FirstChunk)
}

func TestStore_SaveFirstChunkUpdatesExisting(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveURI(ctx, "bucket", "object.txt", "https://example.com/session/1"))
	require.NoError(t, s.SaveFirstChunk(ctx, "bucket", "object.txt", "https://example.com/session/1", []byte("0123456789ABCDEF")))

	record, ok, err := s.Get(ctx, "bucket", "object.txt")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("0123456789ABCDEF"), record.FirstChunk)
}

func TestStore_Delete(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveURI(ctx, "bucket", "object.txt", "https://example.com/session/1"))
	require.NoError(t, s.Delete(ctx, "bucket", "object.txt"))

	_, ok, err := s.Get(ctx, "bucket", "object.txt")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_BucketScopingAvoidsCollision(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveURI(ctx, "bucket-a", "object.txt", "https://example.com/a"))
	require.NoError(t, s.SaveURI(ctx, "bucket-b", "object.txt", "https://example.com/b"))

	a, ok, err := s.Get(ctx, "bucket-a", "object.txt")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "https://example.com/a", a.URI)

	b, ok, err := s.Get(ctx, "bucket-b", "object.txt")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "https://example.com/b", b.URI)
}
