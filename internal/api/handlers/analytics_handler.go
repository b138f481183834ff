package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/atrium-works/pulse/internal/api/dto"
	"github.com/atrium-works/pulse/internal/api/middleware"
	"github.com/atrium-works/pulse/internal/domain/analytics"
	"github.com/atrium-works/pulse/internal/infrastructure/cache"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

func hasRole(c *gin.Context, role string) bool {
	rolesVal, exists := c.Get("roles")
	if !exists {
		return false
	}
	roles, ok := rolesVal.([]string)
	if !ok {
		return false
	}
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

type AnalyticsHandler struct {
	service  analytics.Service
	redis    *cache.RedisClient
	cacheTTL time.Duration
	logger   *zap.Logger
}

func NewAnalyticsHandler(service analytics.Service, redis *cache.RedisClient, cacheTTL time.Duration, logger *zap.Logger) *AnalyticsHandler {
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Second
	}
	return &AnalyticsHandler{
		service:  service,
		redis:    redis,
		cacheTTL: cacheTTL,
		logger:   logger,
	}
}

// Summary returns duration totals for the requested bucket. It reports the
// caller's own totals unless an admin asks for another user via user_id.
// Open sessions contribute a live estimate while their owner resolves
// online, so the number moves between polls.
func (h *AnalyticsHandler) Summary(c *gin.Context) {
	userID, exists := middleware.GetUserID(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	if raw := c.Query("user_id"); raw != "" {
		target, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
			return
		}
		if target != userID {
			if !hasRole(c, "admin") {
				c.JSON(http.StatusForbidden, gin.H{"error": "insufficient permissions"})
				return
			}
			userID = target
		}
	}

	bucket, err := analytics.ParseBucket(c.DefaultQuery("bucket", string(analytics.BucketDay)))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	summary, err := h.service.Aggregate(c.Request.Context(), &userID, bucket)
	if err != nil {
		h.logger.Error("Failed to aggregate durations",
			zap.String("user_id", userID.String()),
			zap.String("bucket", string(bucket)),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to aggregate durations"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": dto.AggregateResponse{
		Bucket:               string(bucket),
		TotalDurationSeconds: summary.TotalDurationSeconds,
		SessionCount:         summary.SessionCount,
	}})
}

// Leaderboard returns the top users by total duration for the bucket. The
// ranking is the same for every caller, so it is served from a short-lived
// Redis cache; live estimates make a longer TTL pointless anyway.
func (h *AnalyticsHandler) Leaderboard(c *gin.Context) {
	bucket, err := analytics.ParseBucket(c.DefaultQuery("bucket", string(analytics.BucketDay)))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
	}

	cacheKey := fmt.Sprintf("analytics:leaderboard:%s:%d", bucket, limit)
	if h.redis != nil {
		cached, err := h.redis.Get(c.Request.Context(), cacheKey)
		if err == nil && cached != "" {
			var resp dto.LeaderboardResponse
			if unmarshalErr := json.Unmarshal([]byte(cached), &resp); unmarshalErr == nil {
				c.JSON(http.StatusOK, gin.H{"data": resp})
				return
			}
		}
	}

	entries, err := h.service.TopNByDuration(c.Request.Context(), bucket, limit)
	if err != nil {
		h.logger.Error("Failed to compute leaderboard",
			zap.String("bucket", string(bucket)),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to compute leaderboard"})
		return
	}

	resp := dto.LeaderboardResponse{
		Bucket:  string(bucket),
		Entries: make([]dto.LeaderboardEntry, 0, len(entries)),
	}
	for _, e := range entries {
		resp.Entries = append(resp.Entries, dto.LeaderboardEntry{
			UserID:               e.UserID.String(),
			TotalDurationSeconds: e.TotalDurationSeconds,
			SessionCount:         e.SessionCount,
		})
	}

	if h.redis != nil {
		if payload, marshalErr := json.Marshal(resp); marshalErr == nil {
			if err := h.redis.Set(c.Request.Context(), cacheKey, string(payload), h.cacheTTL); err != nil {
				h.logger.Warn("Failed to cache leaderboard", zap.Error(err))
			}
		}
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
