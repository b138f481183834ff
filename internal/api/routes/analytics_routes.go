package routes

import (
	"github.com/atrium-works/pulse/internal/api/handlers"
	"github.com/atrium-works/pulse/internal/api/middleware"
	"github.com/gin-gonic/gin"
)

type AnalyticsRoutes struct {
	handler        *handlers.AnalyticsHandler
	authMiddleware gin.HandlerFunc
}

func NewAnalyticsRoutes(handler *handlers.AnalyticsHandler, authMiddleware gin.HandlerFunc) *AnalyticsRoutes {
	return &AnalyticsRoutes{
		handler:        handler,
		authMiddleware: authMiddleware,
	}
}

func (r *AnalyticsRoutes) Register(router *gin.RouterGroup) {
	analytics := router.Group("/analytics")
	analytics.Use(r.authMiddleware)
	{
		analytics.GET("/summary", r.handler.Summary)
		analytics.GET("/leaderboard", middleware.RequireRoles("admin"), r.handler.Leaderboard)
	}
}
