// Package hls synthesizes HLS playlists for videos that were never actually
// segmented. Segments are uniform byte ranges over the single progressive
// file, addressed with EXT-X-BYTERANGE against the range-serving stream
// endpoint. The split is byte math, not container structure, so segment
// boundaries are not keyframe-aligned; playback relies on the player
// tolerating that.
package hls

import (
	"fmt"
	"strings"
)

// DefaultSegmentSeconds is the nominal segment duration when the caller does
// not configure one.
const DefaultSegmentSeconds = 10

// Segment is one synthetic playlist entry: Length bytes at Offset in the
// progressive file, nominally Duration seconds of media.
type Segment struct {
	Duration float64
	Offset   int64
	Length   int64
}

// SplitSegments computes the uniform byte split for the given declared
// duration and file size. The last segment absorbs both the duration
// rounding and the byte remainder. Deterministic in its inputs.
func SplitSegments(durationSeconds float64, fileSizeBytes int64, segmentSeconds int) []Segment {
	if segmentSeconds <= 0 {
		segmentSeconds = DefaultSegmentSeconds
	}
	if durationSeconds <= 0 || fileSizeBytes <= 0 {
		return nil
	}

	segmentCount := int64(durationSeconds) / int64(segmentSeconds)
	if float64(segmentCount*int64(segmentSeconds)) < durationSeconds {
		segmentCount++
	}
	if segmentCount < 1 {
		segmentCount = 1
	}

	// ceil(fileSize / segmentCount)
	bytesPerSegment := (fileSizeBytes + segmentCount - 1) / segmentCount

	segments := make([]Segment, 0, segmentCount)
	for i := int64(0); i < segmentCount; i++ {
		offset := i * bytesPerSegment
		length := bytesPerSegment
		if remaining := fileSizeBytes - offset; remaining < length {
			length = remaining
		}
		duration := float64(segmentSeconds)
		if i == segmentCount-1 {
			duration = durationSeconds - float64(i*int64(segmentSeconds))
		}
		segments = append(segments, Segment{Duration: duration, Offset: offset, Length: length})
	}
	return segments
}

// BuildMediaPlaylist renders the single-rendition VOD playlist. Every entry
// points at the same streamURL; the byte-range directive does the seeking.
// Identical inputs always yield identical text, so the result is cacheable.
func BuildMediaPlaylist(durationSeconds float64, fileSizeBytes int64, segmentSeconds int, streamURL string) string {
	if segmentSeconds <= 0 {
		segmentSeconds = DefaultSegmentSeconds
	}
	segments := SplitSegments(durationSeconds, fileSizeBytes, segmentSeconds)

	var b strings.Builder
	b.WriteString("#EXTM3U\n")
	b.WriteString("#EXT-X-VERSION:4\n")
	fmt.Fprintf(&b, "#EXT-X-TARGETDURATION:%d\n", segmentSeconds)
	b.WriteString("#EXT-X-MEDIA-SEQUENCE:0\n")
	b.WriteString("#EXT-X-PLAYLIST-TYPE:VOD\n")

	for _, seg := range segments {
		fmt.Fprintf(&b, "#EXTINF:%.3f,\n", seg.Duration)
		fmt.Fprintf(&b, "#EXT-X-BYTERANGE:%d@%d\n", seg.Length, seg.Offset)
		b.WriteString(streamURL)
		b.WriteString("\n")
	}

	b.WriteString("#EXT-X-ENDLIST\n")
	return b.String()
}

// BuildMasterPlaylist renders the top-level variant playlist. There is no
// bitrate ladder; it simply points at the one media playlist.
func BuildMasterPlaylist(mediaPlaylistURL string) string {
	var b strings.Builder
	b.WriteString("#EXTM3U\n")
	b.WriteString("#EXT-X-VERSION:3\n")
	b.WriteString(`#EXT-X-STREAM-INF:BANDWIDTH=2500000,RESOLUTION=1920x1080,NAME="1080p"` + "\n")
	b.WriteString(mediaPlaylistURL)
	b.WriteString("\n")
	return b.String()
}

// CacheKey identifies a synthesized media playlist by everything that feeds
// its content, so a cache entry can never serve stale bytes for new inputs.
func CacheKey(videoID string, durationSeconds float64, fileSizeBytes int64, segmentSeconds int) string {
	return fmt.Sprintf("hls:media:%s:%.3f:%d:%d", videoID, durationSeconds, fileSizeBytes, segmentSeconds)
}
