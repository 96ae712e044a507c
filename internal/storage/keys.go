package storage

import (
	"fmt"
	"path"
	"strings"
)

// Key layout in the bucket:
//
//	videos/{userID}/{videoID}/{filename}   final merged object
//	videos/{userID}/{videoID}/hls/...      pre-segmented HLS artifacts, if any
//	uploads/{uploadID}/chunk_000042        chunk blobs, zero-padded to 6 digits

// VideoObjectKey is the canonical key for a merged video file.
func VideoObjectKey(userID, videoID, filename string) string {
	return fmt.Sprintf("videos/%s/%s/%s", userID, videoID, path.Base(filename))
}

// VideoPrefix covers every object belonging to one video, HLS included.
func VideoPrefix(userID, videoID string) string {
	return fmt.Sprintf("videos/%s/%s/", userID, videoID)
}

// HLSPrefix is where pre-segmented playlists and segments live.
func HLSPrefix(userID, videoID string) string {
	return fmt.Sprintf("videos/%s/%s/hls/", userID, videoID)
}

// ChunkObjectKey is deterministic in (uploadID, index), which is what makes
// chunk retries idempotent at the storage layer.
func ChunkObjectKey(uploadID string, index int) string {
	return fmt.Sprintf("uploads/%s/chunk_%06d", uploadID, index)
}

// ChunkPrefix covers all chunk blobs of one upload session.
func ChunkPrefix(uploadID string) string {
	return fmt.Sprintf("uploads/%s/", uploadID)
}

var contentTypes = map[string]string{
	"mp4":  "video/mp4",
	"webm": "video/webm",
	"mkv":  "video/x-matroska",
	"avi":  "video/x-msvideo",
	"mov":  "video/quicktime",
	"m3u8": "application/vnd.apple.mpegurl",
	"ts":   "video/mp2t",
	"m4s":  "video/iso.segment",
	"mpd":  "application/dash+xml",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"webp": "image/webp",
	"gif":  "image/gif",
}

// ContentTypeForFilename maps a filename extension to a MIME type, defaulting
// to application/octet-stream.
func ContentTypeForFilename(filename string) string {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(filename), "."))
	if ct, ok := contentTypes[ext]; ok {
		return ct
	}
	return "application/octet-stream"
}
