package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"streamvault/internal/service"

	"github.com/gin-gonic/gin"
)

// StreamHandler serves playback bytes with HTTP Range support.
type StreamHandler struct {
	streamService service.StreamService
}

// NewStreamHandler creates a new StreamHandler.
func NewStreamHandler(streamService service.StreamService) *StreamHandler {
	return &StreamHandler{streamService: streamService}
}

// Stream answers GET /stream/:id. Without a Range header the whole object is
// returned as a 200; with one, the selected window comes back as a 206 with
// Content-Range. Either way Accept-Ranges advertises resumability.
func (h *StreamHandler) Stream(c *gin.Context) {
	result, err := h.streamService.Stream(c.Request.Context(), c.Param("id"), optionalUserID(c), c.GetHeader("Range"))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrVideoNotFound):
			abortWithError(c, http.StatusNotFound, "Video not found")
		case errors.Is(err, service.ErrVideoForbidden):
			abortWithError(c, http.StatusForbidden, "Video access denied")
		default:
			abortWithError(c, http.StatusInternalServerError, "Failed to stream video")
		}
		return
	}
	defer result.Body.Close()

	c.Header("Content-Type", result.ContentType)
	c.Header("Accept-Ranges", "bytes")
	c.Header("Cache-Control", "public, max-age=3600")
	c.Header("Content-Length", fmt.Sprintf("%d", result.End-result.Start+1))

	status := http.StatusOK
	if result.Partial {
		status = http.StatusPartialContent
		c.Header("Content-Range", fmt.Sprintf("bytes %d-%d/%d", result.Start, result.End, result.TotalSize))
	}
	c.Status(status)

	if _, err := io.Copy(c.Writer, result.Body); err != nil {
		// Client went away mid-stream; nothing sensible to send back.
		return
	}
}
