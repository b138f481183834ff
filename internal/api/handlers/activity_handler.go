package handlers

import (
	"net/http"

	"github.com/atrium-works/pulse/internal/api/dto"
	"github.com/atrium-works/pulse/internal/api/middleware"
	"github.com/atrium-works/pulse/internal/domain/activity"
	"github.com/atrium-works/pulse/internal/engine"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type ActivityHandler struct {
	registry *engine.Registry
	logger   *zap.Logger
}

func NewActivityHandler(registry *engine.Registry, logger *zap.Logger) *ActivityHandler {
	return &ActivityHandler{
		registry: registry,
		logger:   logger,
	}
}

// Signal registers a qualifying user-activity signal and resets the
// inactivity clock. Signals arriving after the runtime already expired
// are dropped; the client learns about the expiry from its next Phase poll.
func (h *ActivityHandler) Signal(c *gin.Context) {
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

	rt.Signal()
	c.Status(http.StatusNoContent)
}

// Dismiss handles the warning dialog's dismissal, which counts as a
// manual activity signal.
func (h *ActivityHandler) Dismiss(c *gin.Context) {
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

	rt.DismissWarning()
	c.Status(http.StatusNoContent)
}

// Phase reports the caller's inactivity phase. The countdown is only
// populated during the warning window; clients drive the warning dialog
// from it.
func (h *ActivityHandler) Phase(c *gin.Context) {
	userID, exists := middleware.GetUserID(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	rt, ok := h.registry.Get(userID)
	if !ok {
		c.JSON(http.StatusOK, gin.H{"data": dto.PhaseResponse{Phase: string(activity.PhaseExpired)}})
		return
	}

	phase, countdown := rt.Phase()
	resp := dto.PhaseResponse{Phase: string(phase)}
	if phase == activity.PhaseWarning {
		resp.CountdownSeconds = countdown
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}
