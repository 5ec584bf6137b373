package http

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"ozzus/robot-agent/internal/api/http/middleware"
)

func NewRouter(health *HealthController, checks *CheckController, log *slog.Logger) *gin.Engine {
	router := gin.New()
	router.Use(middleware.Recovery(log), middleware.Logger(log))

	router.GET("/health", health.Health)
	router.GET("/status", health.Status)
	router.GET("/ready", health.Ready)
	router.GET("/info", health.Info)

	router.POST("/checks", checks.RunCheck)
	router.GET("/robots", checks.Robots)

	return router
}
