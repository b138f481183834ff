package handlers

import (
	"net/http"

	"github.com/atrium-works/pulse/internal/api/dto"
	"github.com/atrium-works/pulse/internal/api/middleware"
	"github.com/atrium-works/pulse/internal/domain/presence"
	"github.com/atrium-works/pulse/internal/engine"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type PresenceHandler struct {
	registry *engine.Registry
	resolver *presence.Resolver
	logger   *zap.Logger
}

func NewPresenceHandler(registry *engine.Registry, resolver *presence.Resolver, logger *zap.Logger) *PresenceHandler {
	return &PresenceHandler{
		registry: registry,
		resolver: resolver,
		logger:   logger,
	}
}

// Hidden marks the caller's client as not visible. The session stays open;
// only the presence heartbeat is suspended and an offline record published.
func (h *PresenceHandler) Hidden(c *gin.Context) {
	userID, exists := middleware.GetUserID(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	rt, ok := h.registry.Get(userID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no active session"})
		return
	}

	rt.Suspend(c.Request.Context())
	c.Status(http.StatusNoContent)
}

// Resumed marks the caller's client visible again: presence goes back
// online and the inactivity clock resets.
func (h *PresenceHandler) Resumed(c *gin.Context) {
	userID, exists := middleware.GetUserID(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	rt, ok := h.registry.Get(userID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no active session"})
		return
	}

	rt.Resume(c.Request.Context())
	c.Status(http.StatusNoContent)
}

// OnlineStatus reports whether a single user currently resolves online.
func (h *PresenceHandler) OnlineStatus(c *gin.Context) {
	userID, err := uuid.Parse(c.Param("user_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": dto.OnlineStatusResponse{
		UserID:   userID.String(),
		IsOnline: h.resolver.ResolveOnline(userID),
	}})
}

// OnlineCount reports the size of the current online set.
func (h *PresenceHandler) OnlineCount(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": dto.OnlineCountResponse{Count: h.resolver.OnlineCount()}})
}

// OnlineList returns the users currently resolving online.
func (h *PresenceHandler) OnlineList(c *gin.Context) {
	ids := h.resolver.OnlineUserIDs()
	userIDs := make([]string, 0, len(ids))
	for _, id := range ids {
		userIDs = append(userIDs, id.String())
	}
	c.JSON(http.StatusOK, gin.H{"data": dto.OnlineListResponse{UserIDs: userIDs}})
}
