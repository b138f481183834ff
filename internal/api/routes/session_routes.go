package routes

import (
	"github.com/atrium-works/pulse/internal/api/handlers"
	"github.com/gin-gonic/gin"
)

type SessionRoutes struct {
	handler        *handlers.SessionHandler
	authMiddleware gin.HandlerFunc
}

func NewSessionRoutes(handler *handlers.SessionHandler, authMiddleware gin.HandlerFunc) *SessionRoutes {
	return &SessionRoutes{
		handler:        handler,
		authMiddleware: authMiddleware,
	}
}

func (r *SessionRoutes) Register(router *gin.RouterGroup) {
	sessions := router.Group("/sessions")
	sessions.Use(r.authMiddleware)
	{
		sessions.POST("", r.handler.Start)
		sessions.POST("/end", r.handler.End)
		sessions.POST("/beacon", r.handler.Beacon)
		sessions.GET("/current/duration", r.handler.CurrentDuration)
	}
}
