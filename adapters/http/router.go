package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// NewRouter mounts the viewer and admin routes.
func NewRouter(h *VideoHandler, authMiddleware, optionalAuth, errorMiddleware gin.HandlerFunc) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), errorMiddleware)

	api := router.Group("/api")
	{
		public := api.Group("/")
		{
			public.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "UP"}) })
			public.GET("/videos/:key/access", optionalAuth, h.Access)
		}

		admin := api.Group("/admin")
		admin.Use(authMiddleware)
		{
			videos := admin.Group("/videos/:key")
			{
				videos.POST("/retranscode", h.RetranscodeVideo)
				videos.PUT("/visibility", h.SetVisibility)
				videos.POST("/subtitles", h.UploadSubtitle)
				videos.POST("/upload-complete", h.CompleteUpload)
				videos.DELETE("", h.DeleteVideo)
			}
			collections := admin.Group("/collections/:key")
			{
				collections.POST("/retranscode", h.RetranscodeCollection)
				collections.PUT("/stream-source", h.SetStreamSource)
				collections.POST("/dropbox", h.DropboxIntake)
				collections.DELETE("", h.DeleteCollection)
			}
			admin.DELETE("/subtitles/:id", h.DeleteSubtitle)
		}
	}
	return router
}
