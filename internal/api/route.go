package api

import (
	"PromptVault/internal/api/middleware"
	"PromptVault/internal/pkg/logger"
	"PromptVault/internal/pkg/storage"
	"net/http"

	"github.com/gin-gonic/gin"
)

func SetupRouter(group *HandlersGroup) *gin.Engine {
	r := gin.New()
	_ = r.SetTrustedProxies([]string{"localhost"})

	// TraceId & Logger & CORS
	r.Use(middleware.TraceMiddleware())
	r.Use(middleware.CORSMiddleware())
	logger.SetupGin(r)

	// 托管媒体文件直接静态暴露
	r.Static("/media", storage.MediaDir())

	apiGroup := r.Group("/api")
	{
		apiGroup.GET("/ping", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"Code":    200,
				"Message": "pong",
				"Data":    nil,
			})
		})

		recordGroup := apiGroup.Group("/records")
		{
			recordGroup.GET("", group.MediaHandler.List)
			recordGroup.POST("", group.MediaHandler.Create)
			recordGroup.GET("/:id", group.MediaHandler.Get)
			recordGroup.PUT("/:id", group.MediaHandler.Update)
			recordGroup.POST("/:id/file", group.MediaHandler.ReplaceFile)
			recordGroup.DELETE("/:id", group.MediaHandler.Delete)
		}

		apiGroup.GET("/tags", group.TagHandler.List)
	}

	return r
}
