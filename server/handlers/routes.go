package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/san-kum/fitpipe/server/middleware"
)

type RouterConfig struct {
	AllowedOrigins []string
	MaxRequestSize int64
	RequestTimeout time.Duration
	AdminAPIKey    string
}

// NewRouter wires the middleware chain and every route. health may be nil
// when scoring is disabled.
func NewRouter(sessions *SessionHandler, ws *WebSocketHandler, limiter *middleware.RateLimiter, health middleware.HealthReporter, cfg RouterConfig, logger *zap.Logger) *gin.Engine {
	router := gin.New()

	router.Use(middleware.RequestLogger(logger))
	router.Use(gin.Recovery())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.CORS(cfg.AllowedOrigins))
	router.Use(middleware.RequestSizeLimit(cfg.MaxRequestSize))
	router.Use(middleware.InputValidation())

	router.GET("/health", middleware.HealthCheck(health))

	// The stream outlives any request timeout.
	router.GET("/ws", limiter.RateLimit(), ws.HandleWebSocket)

	api := router.Group("/api/v1")
	api.Use(middleware.TimeoutHandler(cfg.RequestTimeout))
	{
		api.GET("/health", middleware.HealthCheck(health))

		limited := api.Group("/sessions")
		limited.Use(limiter.RateLimit())
		{
			limited.POST("", sessions.CreateSession)
			limited.GET("/:id", sessions.GetSession)
			limited.DELETE("/:id", sessions.DeleteSession)
			limited.PUT("/:id/exercise", sessions.SwitchExercise)
			limited.POST("/:id/frames", sessions.ProcessFrame)
			limited.GET("/:id/attempts", sessions.ListAttempts)
		}

		auth := middleware.NewAPIKeyAuth(cfg.AdminAPIKey, logger)
		admin := api.Group("/admin")
		admin.Use(auth.RequireAPIKey())
		{
			admin.GET("/stats", sessions.GetStats)
			admin.GET("/rate-limit", func(c *gin.Context) {
				c.JSON(http.StatusOK, limiter.GetGlobalStats())
			})
		}
	}

	return router
}
