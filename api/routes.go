package api

import (
	"github.com/gin-gonic/gin"

	"github.com/mailstash/mailstash/api/handlers"
	"github.com/mailstash/mailstash/internal/repository"
)

func RegisterRoutes(router *gin.Engine, repos *repository.Repositories) {
	router.GET("/health", handlers.HealthCheck)
	router.GET("/status", handlers.Status(repos.SyncStateRepository))
}
