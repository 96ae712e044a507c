package service

import (
	"context"
	"errors"
	"fmt"
	"io"

	"streamvault/internal/storage"

	"github.com/rs/zerolog"
)

// ErrChunkMissing reports a chunk blob that should exist but does not. It is
// a storage-level failure: completion aborts and stays retryable, because the
// caller may re-upload the chunk and try again.
var ErrChunkMissing = errors.New("chunk missing from storage")

// MissingChunkError carries the index of the lost chunk so the API can tell
// the client exactly what to re-send.
type MissingChunkError struct {
	Index int
	Key   string
}

func (e *MissingChunkError) Error() string {
	return fmt.Sprintf("chunk %d missing from storage (key %s)", e.Index, e.Key)
}

func (e *MissingChunkError) Unwrap() error { return ErrChunkMissing }

// Reassembler merges an ordered set of chunk blobs into one canonical object.
// It holds no per-upload state; the at-most-one-merge-per-session guarantee
// comes from the session status CAS in the upload service.
type Reassembler struct {
	store  storage.ObjectStore
	logger zerolog.Logger
}

// NewReassembler creates a Reassembler over the given object store.
func NewReassembler(store storage.ObjectStore, logger zerolog.Logger) *Reassembler {
	return &Reassembler{
		store:  store,
		logger: logger.With().Str("component", "reassembler").Logger(),
	}
}

// Merge concatenates the chunks behind chunkKeys, in the given order, into a
// single object under finalKey. Every chunk is verified present up front so a
// lost blob aborts before any byte is written. The returned size is the sum
// of the chunk sizes actually read, which is authoritative over whatever size
// the client declared at init.
func (r *Reassembler) Merge(ctx context.Context, chunkKeys []string, finalKey, contentType string) (int64, error) {
	if len(chunkKeys) == 0 {
		return 0, errors.New("merge requires at least one chunk")
	}

	// Presence-and-size pass. Head is cheap and failing here leaves the
	// store untouched.
	var totalSize int64
	for i, key := range chunkKeys {
		size, err := r.store.Head(ctx, key)
		if err != nil {
			if errors.Is(err, storage.ErrObjectNotFound) {
				return 0, &MissingChunkError{Index: i, Key: key}
			}
			return 0, fmt.Errorf("stat chunk %d: %w", i, err)
		}
		totalSize += size
	}

	r.logger.Info().
		Str("final_key", finalKey).
		Int("chunk_count", len(chunkKeys)).
		Int64("total_size", totalSize).
		Msg("starting chunk merge")

	// Stream the chunks through a pipe into one put, so the merged object is
	// never buffered in memory.
	pr, pw := io.Pipe()
	go func() {
		defer pw.Close()
		for i, key := range chunkKeys {
			select {
			case <-ctx.Done():
				pw.CloseWithError(ctx.Err())
				return
			default:
			}

			body, _, err := r.store.Get(ctx, key)
			if err != nil {
				pw.CloseWithError(fmt.Errorf("read chunk %d: %w", i, err))
				return
			}
			_, err = io.Copy(pw, body)
			body.Close()
			if err != nil {
				pw.CloseWithError(fmt.Errorf("copy chunk %d: %w", i, err))
				return
			}
		}
	}()

	if err := r.store.Put(ctx, finalKey, pr, totalSize, contentType); err != nil {
		pr.CloseWithError(err)
		return 0, fmt.Errorf("write merged object: %w", err)
	}

	r.logger.Info().Str("final_key", finalKey).Int64("size", totalSize).Msg("chunk merge finished")
	return totalSize, nil
}
