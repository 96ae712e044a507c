package service

import (
	"context"
	"io"
	"strings"
	"testing"

	"streamvault/internal/storage"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestMergeConcatenatesInKeyOrder(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()
	for i, data := range []string{"aaaa", "bbbb", "cc"} {
		key := storage.ChunkObjectKey("u1", i)
		require.NoError(t, store.Put(ctx, key, strings.NewReader(data), int64(len(data)), "application/octet-stream"))
	}

	r := NewReassembler(store, zerolog.Nop())
	keys := []string{
		storage.ChunkObjectKey("u1", 0),
		storage.ChunkObjectKey("u1", 1),
		storage.ChunkObjectKey("u1", 2),
	}
	size, err := r.Merge(ctx, keys, "videos/u/v/final.mp4", "video/mp4")
	require.NoError(t, err)
	require.Equal(t, int64(10), size)

	body, gotSize, err := store.Get(ctx, "videos/u/v/final.mp4")
	require.NoError(t, err)
	defer body.Close()
	require.Equal(t, int64(10), gotSize)
	data, err := io.ReadAll(body)
	require.NoError(t, err)
	require.Equal(t, "aaaabbbbcc", string(data))
	require.Equal(t, "video/mp4", store.ContentType("videos/u/v/final.mp4"))
}

func TestMergeFailsFastOnMissingChunk(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, storage.ChunkObjectKey("u1", 0), strings.NewReader("aaaa"), 4, "application/octet-stream"))
	// Index 1 never uploaded.

	r := NewReassembler(store, zerolog.Nop())
	keys := []string{storage.ChunkObjectKey("u1", 0), storage.ChunkObjectKey("u1", 1)}
	_, err := r.Merge(ctx, keys, "videos/u/v/final.mp4", "video/mp4")
	require.ErrorIs(t, err, ErrChunkMissing)

	var missing *MissingChunkError
	require.ErrorAs(t, err, &missing)
	require.Equal(t, 1, missing.Index)

	// Nothing was written.
	_, err = store.Head(ctx, "videos/u/v/final.mp4")
	require.ErrorIs(t, err, storage.ErrObjectNotFound)
}

func TestMergeRequiresChunks(t *testing.T) {
	r := NewReassembler(storage.NewMemoryStore(), zerolog.Nop())
	_, err := r.Merge(context.Background(), nil, "final", "video/mp4")
	require.Error(t, err)
}
