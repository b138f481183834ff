package routes

import (
	"net/http"
	"time"

	"github.com/atrium-works/pulse/internal/engine"
	"github.com/atrium-works/pulse/internal/infrastructure/cache"
	"github.com/atrium-works/pulse/internal/infrastructure/persistence/postgres/connection"
	"github.com/atrium-works/pulse/internal/infrastructure/persistence/postgres/migrations"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// HealthResponse represents the health check response structure
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// SetupHealthRoutes registers health check endpoints
func SetupHealthRoutes(router *gin.Engine, db *gorm.DB, redisClient *cache.RedisClient, registry *engine.Registry) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, HealthResponse{
			Status:    "healthy",
			Timestamp: time.Now().UTC(),
		})
	})

	// Readiness requires the session store: without it neither session
	// writes nor presence reads can be served.
	router.GET("/health/ready", func(c *gin.Context) {
		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":    "not ready",
				"timestamp": time.Now().UTC(),
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":          "ready",
			"timestamp":       time.Now().UTC(),
			"active_runtimes": registry.Count(),
		})
	})

	// Applied schema versions, for verifying a deploy ran its migrations.
	router.GET("/health/migrations", func(c *gin.Context) {
		history, err := migrations.GetMigrationHistory(&connection.Database{DB: db.WithContext(c.Request.Context())})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read migration history"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": history})
	})

	// The cache is optional; losing it degrades the change feed to
	// polling, so an unhealthy cache reports degraded, not down.
	router.GET("/health/cache", func(c *gin.Context) {
		status := "healthy"
		if redisClient == nil || !redisClient.IsHealthy() {
			status = "degraded"
		}
		c.JSON(http.StatusOK, HealthResponse{
			Status:    status,
			Timestamp: time.Now().UTC(),
		})
	})
}
