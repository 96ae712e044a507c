package api

import (
	"errors"
	"net/http"

	"streamvault/internal/service"

	"github.com/gin-gonic/gin"
)

const playlistContentType = "application/vnd.apple.mpegurl"

// HLSHandler serves playlists and segments for HLS playback.
type HLSHandler struct {
	hlsService service.HLSService
}

// NewHLSHandler creates a new HLSHandler.
func NewHLSHandler(hlsService service.HLSService) *HLSHandler {
	return &HLSHandler{hlsService: hlsService}
}

// Serve answers GET /hls/:id/:segment. Gin cannot register both a literal
// "master.m3u8" route and a ":segment" wildcard under the same prefix, so
// the playlist names are dispatched here.
func (h *HLSHandler) Serve(c *gin.Context) {
	videoID := c.Param("id")
	viewerID := optionalUserID(c)

	switch c.Param("segment") {
	case "master.m3u8":
		playlist, err := h.hlsService.MasterPlaylist(c.Request.Context(), videoID, viewerID)
		if err != nil {
			writeHLSError(c, err)
			return
		}
		h.writePlaylist(c, playlist)
	case "stream.m3u8":
		playlist, err := h.hlsService.MediaPlaylist(c.Request.Context(), videoID, viewerID)
		if err != nil {
			writeHLSError(c, err)
			return
		}
		h.writePlaylist(c, playlist)
	default:
		result, err := h.hlsService.Segment(c.Request.Context(), videoID, viewerID, c.Param("segment"))
		if err != nil {
			writeHLSError(c, err)
			return
		}
		defer result.Body.Close()
		c.Header("Cache-Control", "public, max-age=86400")
		c.DataFromReader(http.StatusOK, result.Size, result.ContentType, result.Body, nil)
	}
}

func (h *HLSHandler) writePlaylist(c *gin.Context, playlist string) {
	c.Header("Cache-Control", "public, max-age=60")
	c.Data(http.StatusOK, playlistContentType, []byte(playlist))
}

func writeHLSError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrVideoNotFound), errors.Is(err, service.ErrSegmentNotFound):
		abortWithError(c, http.StatusNotFound, "Not found")
	case errors.Is(err, service.ErrVideoForbidden):
		abortWithError(c, http.StatusForbidden, "Video access denied")
	default:
		abortWithError(c, http.StatusInternalServerError, "Failed to serve playlist")
	}
}
