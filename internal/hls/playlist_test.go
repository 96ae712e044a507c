package hls

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplitSegmentsUniform(t *testing.T) {
	// 120s / 10s segments over 24 MB: 12 even segments.
	segments := SplitSegments(120, 24_000_000, 10)
	require.Len(t, segments, 12)

	var totalBytes int64
	for i, seg := range segments {
		require.Equal(t, int64(i)*2_000_000, seg.Offset)
		require.Equal(t, int64(2_000_000), seg.Length)
		require.Equal(t, float64(10), seg.Duration)
		totalBytes += seg.Length
	}
	require.Equal(t, int64(24_000_000), totalBytes)
}

func TestSplitSegmentsLastAbsorbsRemainder(t *testing.T) {
	// 25s at 10s segments: 3 segments, the last one short in both time and
	// bytes.
	segments := SplitSegments(25, 10_000, 10)
	require.Len(t, segments, 3)

	require.Equal(t, float64(10), segments[0].Duration)
	require.Equal(t, float64(10), segments[1].Duration)
	require.InDelta(t, 5.0, segments[2].Duration, 0.001)

	var totalBytes int64
	for i, seg := range segments {
		if i > 0 {
			require.Equal(t, segments[i-1].Offset+segments[i-1].Length, seg.Offset)
		}
		totalBytes += seg.Length
	}
	require.Equal(t, int64(10_000), totalBytes)
}

func TestSplitSegmentsCoversEveryByteExactlyOnce(t *testing.T) {
	cases := []struct {
		duration float64
		size     int64
		seconds  int
	}{
		{120, 24_000_000, 10},
		{7, 1_000, 10},   // shorter than one segment
		{61, 999_999, 6}, // prime-ish remainders
		{3600, 1<<30 + 17, 10},
	}
	for _, tc := range cases {
		segments := SplitSegments(tc.duration, tc.size, tc.seconds)
		require.NotEmpty(t, segments)

		var next int64
		for _, seg := range segments {
			require.Equal(t, next, seg.Offset)
			require.Positive(t, seg.Length)
			next += seg.Length
		}
		require.Equal(t, tc.size, next)
	}
}

func TestSplitSegmentsDegenerateInputs(t *testing.T) {
	require.Nil(t, SplitSegments(0, 1000, 10))
	require.Nil(t, SplitSegments(10, 0, 10))
	require.Nil(t, SplitSegments(-5, -1, 10))
}

func TestBuildMediaPlaylist(t *testing.T) {
	playlist := BuildMediaPlaylist(25, 10_000, 10, "/stream/vid-1")
	lines := strings.Split(strings.TrimSpace(playlist), "\n")

	require.Equal(t, "#EXTM3U", lines[0])
	require.Contains(t, playlist, "#EXT-X-VERSION:4")
	require.Contains(t, playlist, "#EXT-X-TARGETDURATION:10")
	require.Contains(t, playlist, "#EXT-X-MEDIA-SEQUENCE:0")
	require.Contains(t, playlist, "#EXT-X-PLAYLIST-TYPE:VOD")
	require.True(t, strings.HasSuffix(strings.TrimSpace(playlist), "#EXT-X-ENDLIST"))

	// Every segment entry addresses the same progressive file by byte range.
	require.Equal(t, 3, strings.Count(playlist, "/stream/vid-1"))
	require.Contains(t, playlist, "#EXT-X-BYTERANGE:3334@0")
	require.Contains(t, playlist, "#EXT-X-BYTERANGE:3334@3334")
	require.Contains(t, playlist, "#EXT-X-BYTERANGE:3332@6668")
	require.Contains(t, playlist, "#EXTINF:10.000,")
	require.Contains(t, playlist, "#EXTINF:5.000,")
}

func TestBuildMediaPlaylistDeterministic(t *testing.T) {
	a := BuildMediaPlaylist(120, 24_000_000, 10, "/stream/vid-1")
	b := BuildMediaPlaylist(120, 24_000_000, 10, "/stream/vid-1")
	require.Equal(t, a, b)
}

func TestBuildMasterPlaylist(t *testing.T) {
	playlist := BuildMasterPlaylist("/hls/vid-1/stream.m3u8")
	require.True(t, strings.HasPrefix(playlist, "#EXTM3U"))
	require.Contains(t, playlist, "#EXT-X-STREAM-INF:")
	require.Contains(t, playlist, "BANDWIDTH=")
	require.Contains(t, playlist, "/hls/vid-1/stream.m3u8")
}

func TestCacheKey(t *testing.T) {
	a := CacheKey("vid-1", 120, 24_000_000, 10)
	b := CacheKey("vid-1", 120, 24_000_000, 10)
	require.Equal(t, a, b)

	require.NotEqual(t, a, CacheKey("vid-2", 120, 24_000_000, 10))
	require.NotEqual(t, a, CacheKey("vid-1", 121, 24_000_000, 10))
	require.NotEqual(t, a, CacheKey("vid-1", 120, 24_000_001, 10))
	require.NotEqual(t, a, CacheKey("vid-1", 120, 24_000_000, 6))
}
