package handlers

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/atrium-works/pulse/internal/api/dto"
	"github.com/atrium-works/pulse/internal/api/middleware"
	"github.com/atrium-works/pulse/internal/domain/session"
	"github.com/atrium-works/pulse/internal/engine"
	"github.com/atrium-works/pulse/pkg/security/auth"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

type SessionHandler struct {
	registry *engine.Registry
	sessions session.Service
	logger   *zap.Logger
}

func NewSessionHandler(registry *engine.Registry, sessions session.Service, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{
		registry: registry,
		sessions: sessions,
		logger:   logger,
	}
}

// Start opens a session and its runtime for the authenticated user. Session
// creation failing after retries is not an error: the runtime starts
// anyway with duration tracking disabled, so the portal stays usable.
func (h *SessionHandler) Start(c *gin.Context) {
	userID, exists := middleware.GetUserID(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	var req dto.StartSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil && err != io.EOF {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	rt, err := h.registry.Start(c.Request.Context(), userID, datatypes.JSON(req.Client), h.signOutFunc(c))
	if err != nil {
		h.logger.Error("Failed to start runtime",
			zap.String("user_id", userID.String()),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start session"})
		return
	}

	resp := dto.StartSessionResponse{}
	if rt.SessionID() != uuid.Nil {
		resp.SessionID = rt.SessionID().String()
	}
	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

// End closes the session on an explicit logout. Calling it without a
// running session is a no-op, so a double logout never surfaces an error.
func (h *SessionHandler) End(c *gin.Context) {
	userID, exists := middleware.GetUserID(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	rt, ok := h.registry.Get(userID)
	if !ok {
		c.JSON(http.StatusOK, gin.H{"message": "no active session"})
		return
	}

	if err := rt.Logout(c.Request.Context()); err != nil {
		h.logger.Error("Failed to end session",
			zap.String("user_id", userID.String()),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to end session"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "session ended"})
}

// Beacon is the termination path for clients that are about to disappear
// (tab close, navigation away). It acknowledges immediately; the closing
// writes run detached because this client will not call again.
func (h *SessionHandler) Beacon(c *gin.Context) {
	userID, exists := middleware.GetUserID(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	if rt, ok := h.registry.Get(userID); ok {
		rt.Beacon()
	}
	c.Status(http.StatusNoContent)
}

// CurrentDuration reports the live elapsed seconds of the caller's open
// session. It reads the store rather than the runtime, so a login whose
// session creation failed soft gets a not-found instead of elapsed time
// for a row that does not exist.
func (h *SessionHandler) CurrentDuration(c *gin.Context) {
	userID, exists := middleware.GetUserID(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	duration, err := h.sessions.CurrentDuration(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no active session"})
			return
		}
		h.logger.Error("Failed to read current duration",
			zap.String("user_id", userID.String()),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read current duration"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": dto.DurationResponse{DurationSeconds: duration}})
}

// signOutFunc captures the request's bearer token so the runtime can
// invalidate it when it terminates, whichever path terminates it.
func (h *SessionHandler) signOutFunc(c *gin.Context) func() {
	token, ok := middleware.GetToken(c)
	if !ok {
		return nil
	}
	expiry, ok := middleware.GetTokenExpiry(c)
	if !ok {
		expiry = time.Now().Add(24 * time.Hour)
	}
	return func() {
		auth.GetTokenBlacklist().AddToBlacklist(token, expiry)
	}
}
