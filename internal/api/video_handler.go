package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"streamvault/internal/domain"
	"streamvault/internal/service"

	"github.com/gin-gonic/gin"
)

// VideoHandler holds the video service dependency.
type VideoHandler struct {
	videoService service.VideoService
}

// NewVideoHandler creates a new VideoHandler.
func NewVideoHandler(videoService service.VideoService) *VideoHandler {
	return &VideoHandler{videoService: videoService}
}

// --- Request/Response Structs ---

type CreateVideoRequest struct {
	Title       string `json:"title" binding:"required"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Visibility  string `json:"visibility" binding:"omitempty,oneof=public unlisted private"`
}

type UpdateVideoRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Category    *string `json:"category"`
	Visibility  *string `json:"visibility" binding:"omitempty,oneof=public unlisted private"`
}

type VideoResponse struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Description     string    `json:"description,omitempty"`
	Slug            string    `json:"slug"`
	Status          string    `json:"status"`
	Visibility      string    `json:"visibility"`
	Category        string    `json:"category,omitempty"`
	FileSizeBytes   int64     `json:"fileSizeBytes"`
	DurationSeconds float64   `json:"durationSeconds"`
	ViewsCount      int64     `json:"viewsCount"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// --- Handler Methods ---

// CreateVideo registers a video shell; its bytes arrive via the upload
// endpoints afterwards.
func (h *VideoHandler) CreateVideo(c *gin.Context) {
	userID, err := currentUserID(c)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, "Failed to get user ID from token")
		return
	}

	var req CreateVideoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, fmt.Sprintf("Validation error: %v", err))
		return
	}

	video, err := h.videoService.CreateVideo(c.Request.Context(), userID, req.Title, req.Description, req.Category, domain.Visibility(req.Visibility))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrVideoValidation):
			abortWithError(c, http.StatusBadRequest, err.Error())
		case errors.Is(err, service.ErrQuotaExceeded):
			abortWithError(c, http.StatusForbidden, err.Error())
		default:
			abortWithError(c, http.StatusInternalServerError, "Failed to create video")
		}
		return
	}

	c.JSON(http.StatusCreated, toVideoResponse(video))
}

// ListVideos returns the caller's own videos.
func (h *VideoHandler) ListVideos(c *gin.Context) {
	userID, err := currentUserID(c)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, "Failed to get user ID from token")
		return
	}

	videos, err := h.videoService.ListUserVideos(c.Request.Context(), userID)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, "Failed to list videos")
		return
	}

	responses := make([]VideoResponse, 0, len(videos))
	for i := range videos {
		responses = append(responses, toVideoResponse(&videos[i]))
	}
	c.JSON(http.StatusOK, responses)
}

// GetVideo returns one video's metadata, respecting visibility.
func (h *VideoHandler) GetVideo(c *gin.Context) {
	video, err := h.videoService.GetWatchable(c.Request.Context(), c.Param("id"), optionalUserID(c))
	if err != nil {
		writeVideoError(c, err)
		return
	}
	c.JSON(http.StatusOK, toVideoResponse(video))
}

// UpdateVideo updates mutable metadata on one of the caller's videos.
func (h *VideoHandler) UpdateVideo(c *gin.Context) {
	userID, err := currentUserID(c)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, "Failed to get user ID from token")
		return
	}

	var req UpdateVideoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, fmt.Sprintf("Validation error: %v", err))
		return
	}

	update := service.VideoUpdate{
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
	}
	if req.Visibility != nil {
		v := domain.Visibility(*req.Visibility)
		update.Visibility = &v
	}

	video, err := h.videoService.UpdateVideo(c.Request.Context(), userID, c.Param("id"), update)
	if err != nil {
		writeVideoError(c, err)
		return
	}
	c.JSON(http.StatusOK, toVideoResponse(video))
}

// DeleteVideo removes one of the caller's videos and its stored objects.
func (h *VideoHandler) DeleteVideo(c *gin.Context) {
	userID, err := currentUserID(c)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, "Failed to get user ID from token")
		return
	}

	if err := h.videoService.DeleteVideo(c.Request.Context(), userID, c.Param("id")); err != nil {
		writeVideoError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func writeVideoError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrVideoNotFound):
		abortWithError(c, http.StatusNotFound, "Video not found")
	case errors.Is(err, service.ErrVideoForbidden):
		abortWithError(c, http.StatusForbidden, "Video access denied")
	case errors.Is(err, service.ErrVideoValidation):
		abortWithError(c, http.StatusBadRequest, err.Error())
	default:
		abortWithError(c, http.StatusInternalServerError, "Video operation failed")
	}
}

func toVideoResponse(video *domain.Video) VideoResponse {
	return VideoResponse{
		ID:              video.ID,
		Title:           video.Title,
		Description:     video.Description,
		Slug:            video.Slug,
		Status:          string(video.Status),
		Visibility:      string(video.Visibility),
		Category:        video.Category,
		FileSizeBytes:   video.FileSizeBytes,
		DurationSeconds: video.DurationSeconds,
		ViewsCount:      video.ViewsCount,
		CreatedAt:       video.CreatedAt,
		UpdatedAt:       video.UpdatedAt,
	}
}
