package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"streamvault/internal/service"

	"github.com/gin-gonic/gin"
)

// UploadHandler holds the upload service dependency.
type UploadHandler struct {
	uploadService service.UploadService
}

// NewUploadHandler creates a new UploadHandler.
func NewUploadHandler(uploadService service.UploadService) *UploadHandler {
	return &UploadHandler{uploadService: uploadService}
}

// --- Request/Response Structs ---

type InitUploadRequest struct {
	VideoID   string `json:"videoId" binding:"required"`
	Filename  string `json:"filename" binding:"required"`
	FileSize  int64  `json:"fileSize" binding:"required,gt=0"`
	ChunkSize int64  `json:"chunkSize"`
}

type InitUploadResponse struct {
	UploadID    string `json:"uploadId"`
	ChunkSize   int64  `json:"chunkSize"`
	TotalChunks int    `json:"totalChunks"`
	ExpiresAt   string `json:"expiresAt"`
}

type ChunkResponse struct {
	Success    bool   `json:"success"`
	UploadID   string `json:"uploadId"`
	ChunkIndex int    `json:"chunkIndex"`
	Size       int64  `json:"size"`
}

type CompleteUploadRequest struct {
	UploadID string `json:"uploadId" binding:"required"`
}

// CompletedVideo is the slim video view returned once the merge lands. The
// storage key is exposed here, and only here, so the client can correlate
// the object it just assembled.
type CompletedVideo struct {
	ID         string `json:"id"`
	StorageKey string `json:"storageKey"`
	FileSize   int64  `json:"fileSize"`
	Status     string `json:"status"`
}

type CompleteUploadResponse struct {
	Success bool           `json:"success"`
	Video   CompletedVideo `json:"video"`
}

// --- Handler Methods ---

// InitUpload opens a resumable upload session for a video shell.
func (h *UploadHandler) InitUpload(c *gin.Context) {
	userID, err := currentUserID(c)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, "Failed to get user ID from token")
		return
	}

	var req InitUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, fmt.Sprintf("Validation error: %v", err))
		return
	}

	session, err := h.uploadService.InitUpload(c.Request.Context(), userID, req.VideoID, req.Filename, req.FileSize, req.ChunkSize)
	if err != nil {
		writeUploadError(c, err)
		return
	}

	c.JSON(http.StatusCreated, InitUploadResponse{
		UploadID:    session.ID,
		ChunkSize:   session.ChunkSize,
		TotalChunks: session.TotalChunks,
		ExpiresAt:   session.ExpiresAt.Format(time.RFC3339),
	})
}

// UploadChunk accepts one chunk as multipart form data: fields "uploadId"
// and "chunkIndex" plus the file part "chunk". Re-sending an index is safe;
// the chunk is overwritten and progress does not double-count.
func (h *UploadHandler) UploadChunk(c *gin.Context) {
	userID, err := currentUserID(c)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, "Failed to get user ID from token")
		return
	}

	uploadID := c.PostForm("uploadId")
	if uploadID == "" {
		abortWithError(c, http.StatusBadRequest, "uploadId form field is required")
		return
	}
	index, err := strconv.Atoi(c.PostForm("chunkIndex"))
	if err != nil || index < 0 {
		abortWithError(c, http.StatusBadRequest, "chunkIndex form field must be a non-negative integer")
		return
	}

	fileHeader, err := c.FormFile("chunk")
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "chunk file part is required")
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, "Failed to read chunk")
		return
	}
	defer file.Close()

	record, err := h.uploadService.UploadChunk(c.Request.Context(), userID, uploadID, index, file, fileHeader.Size)
	if err != nil {
		writeUploadError(c, err)
		return
	}

	c.JSON(http.StatusOK, ChunkResponse{Success: true, UploadID: uploadID, ChunkIndex: record.Index, Size: record.Size})
}

// CompleteUpload merges the chunks into the final object. On success the
// video enters processing and is promoted to ready by the background worker.
func (h *UploadHandler) CompleteUpload(c *gin.Context) {
	userID, err := currentUserID(c)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, "Failed to get user ID from token")
		return
	}

	var req CompleteUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, fmt.Sprintf("Validation error: %v", err))
		return
	}

	video, err := h.uploadService.CompleteUpload(c.Request.Context(), userID, req.UploadID)
	if err != nil {
		writeUploadError(c, err)
		return
	}

	c.JSON(http.StatusOK, CompleteUploadResponse{
		Success: true,
		Video: CompletedVideo{
			ID:         video.ID,
			StorageKey: video.StorageKey,
			FileSize:   video.FileSizeBytes,
			Status:     string(video.Status),
		},
	})
}

// AbortUpload abandons an active session and frees its chunks.
func (h *UploadHandler) AbortUpload(c *gin.Context) {
	userID, err := currentUserID(c)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, "Failed to get user ID from token")
		return
	}

	var req CompleteUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, fmt.Sprintf("Validation error: %v", err))
		return
	}

	if err := h.uploadService.AbortUpload(c.Request.Context(), userID, req.UploadID); err != nil {
		writeUploadError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// UploadStatus reports session progress and which chunk indices are present.
func (h *UploadHandler) UploadStatus(c *gin.Context) {
	userID, err := currentUserID(c)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, "Failed to get user ID from token")
		return
	}

	info, err := h.uploadService.UploadStatus(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		writeUploadError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"uploadId":       info.Session.ID,
		"status":         info.Session.Status,
		"totalChunks":    info.Session.TotalChunks,
		"uploadedChunks": info.Session.UploadedChunks,
		"presentIndexes": info.PresentIndexes,
		"expiresAt":      info.Session.ExpiresAt,
	})
}

// writeUploadError maps service errors onto the HTTP status taxonomy. A lost
// chunk surfaces as a 500 that names the missing index so the client knows
// exactly what to re-send.
func writeUploadError(c *gin.Context, err error) {
	var missing *service.MissingChunkError
	switch {
	case errors.As(err, &missing):
		abortWithError(c, http.StatusInternalServerError, fmt.Sprintf("Chunk %d is missing from storage; re-upload it and retry", missing.Index))
	case errors.Is(err, service.ErrSessionNotFound), errors.Is(err, service.ErrSessionExpired):
		abortWithError(c, http.StatusNotFound, "Upload session not found or expired")
	case errors.Is(err, service.ErrVideoNotFound):
		abortWithError(c, http.StatusNotFound, "Video not found")
	case errors.Is(err, service.ErrCompletionInProgress):
		abortWithError(c, http.StatusConflict, "Completion already in progress")
	case errors.Is(err, service.ErrSessionNotActive):
		abortWithError(c, http.StatusConflict, "Upload session is not active")
	case errors.Is(err, service.ErrUploadIncomplete),
		errors.Is(err, service.ErrInvalidChunkIndex),
		errors.Is(err, service.ErrVideoNotUploadable),
		errors.Is(err, service.ErrUploadValidation):
		abortWithError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrQuotaExceeded):
		abortWithError(c, http.StatusForbidden, err.Error())
	default:
		abortWithError(c, http.StatusInternalServerError, "Upload operation failed")
	}
}
