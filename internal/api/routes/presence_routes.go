package routes

import (
	"github.com/atrium-works/pulse/internal/api/handlers"
	"github.com/gin-gonic/gin"
)

type PresenceRoutes struct {
	handler        *handlers.PresenceHandler
	authMiddleware gin.HandlerFunc
}

func NewPresenceRoutes(handler *handlers.PresenceHandler, authMiddleware gin.HandlerFunc) *PresenceRoutes {
	return &PresenceRoutes{
		handler:        handler,
		authMiddleware: authMiddleware,
	}
}

func (r *PresenceRoutes) Register(router *gin.RouterGroup) {
	presence := router.Group("/presence")
	presence.Use(r.authMiddleware)
	{
		presence.POST("/hidden", r.handler.Hidden)
		presence.POST("/resumed", r.handler.Resumed)
		presence.GET("/online", r.handler.OnlineList)
		presence.GET("/online/count", r.handler.OnlineCount)
		presence.GET("/online/:user_id", r.handler.OnlineStatus)
	}
}
