package routes

import (
	"github.com/atrium-works/pulse/internal/api/handlers"
	"github.com/gin-gonic/gin"
)

type ActivityRoutes struct {
	handler        *handlers.ActivityHandler
	authMiddleware gin.HandlerFunc
}

func NewActivityRoutes(handler *handlers.ActivityHandler, authMiddleware gin.HandlerFunc) *ActivityRoutes {
	return &ActivityRoutes{
		handler:        handler,
		authMiddleware: authMiddleware,
	}
}

func (r *ActivityRoutes) Register(router *gin.RouterGroup) {
	activity := router.Group("/activity")
	activity.Use(r.authMiddleware)
	{
		activity.POST("/signal", r.handler.Signal)
		activity.POST("/dismiss", r.handler.Dismiss)
		activity.GET("/phase", r.handler.Phase)
	}
}
