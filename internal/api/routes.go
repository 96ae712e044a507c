package api

import (
	"net/http"

	"streamvault/internal/service"

	"github.com/gin-gonic/gin"
)

func SetupRoutes(
	router *gin.Engine,
	jwtSecret string,
	authService service.AuthService,
	videoService service.VideoService,
	uploadService service.UploadService,
	streamService service.StreamService,
	hlsService service.HLSService,
) {
	authHandler := NewAuthHandler(authService)
	videoHandler := NewVideoHandler(videoService)
	uploadHandler := NewUploadHandler(uploadService)
	streamHandler := NewStreamHandler(streamService)
	hlsHandler := NewHLSHandler(hlsService)

	authMiddleware := AuthMiddleware(jwtSecret)
	optionalAuth := OptionalAuthMiddleware(jwtSecret)

	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	apiV1 := router.Group("/api/v1")
	{
		authGroup := apiV1.Group("/auth")
		{
			authGroup.POST("/register", authHandler.Register)
			authGroup.POST("/login", authHandler.Login)
		}

		// Metadata reads are visibility-gated, not login-gated.
		apiV1.GET("/videos/:id", optionalAuth, videoHandler.GetVideo)
	}

	protected := apiV1.Group("")
	protected.Use(authMiddleware)
	{
		videoGroup := protected.Group("/videos")
		{
			videoGroup.POST("", videoHandler.CreateVideo)
			videoGroup.GET("", videoHandler.ListVideos)
			videoGroup.PUT("/:id", videoHandler.UpdateVideo)
			videoGroup.DELETE("/:id", videoHandler.DeleteVideo)
		}

		uploadGroup := protected.Group("/upload")
		{
			uploadGroup.POST("/init", uploadHandler.InitUpload)
			uploadGroup.POST("/chunk", uploadHandler.UploadChunk)
			uploadGroup.POST("/complete", uploadHandler.CompleteUpload)
			uploadGroup.POST("/abort", uploadHandler.AbortUpload)
			uploadGroup.GET("/:id/status", uploadHandler.UploadStatus)
		}
	}

	// Playback routes live outside /api/v1 so players and <video> tags can
	// hit them directly. Auth is optional: public videos need none, private
	// ones need their owner's token.
	router.GET("/stream/:id", optionalAuth, streamHandler.Stream)
	router.GET("/hls/:id/:segment", optionalAuth, hlsHandler.Serve)
}
