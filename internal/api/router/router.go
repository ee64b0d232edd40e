package router

import (
	"log/slog"
	"net/http"

	"github.com/cuongbtq/applytrack/internal/api/handler"
	"github.com/gin-gonic/gin"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware(deps.AllowedOrigins))

	r.GET("/health", func(c *gin.Context) {
		if deps.HealthCheck != nil {
			if err := deps.HealthCheck(c.Request.Context()); err != nil {
				deps.Logger.Error("Health check failed", slog.Any("error", err))
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"status":  "unhealthy",
					"service": "applytrack-api-service",
				})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "applytrack-api-service",
		})
	})

	jobHandler := handler.NewJobHandler(deps)

	api := r.Group("/api")
	api.Use(AuthMiddleware(deps.JWTSecret, deps.Logger))
	{
		api.GET("/auth/me", jobHandler.Me)

		jobs := api.Group("/jobs")
		{
			// POST /api/jobs - Create or refresh a job by (user, jobUrl)
			jobs.POST("", jobHandler.CreateJob)

			// GET /api/jobs - List jobs with filters and page-based pagination
			jobs.GET("", jobHandler.ListJobs)

			// GET /api/jobs/:id - Get one of the caller's jobs
			jobs.GET("/:id", jobHandler.GetJob)

			// PATCH /api/jobs/:id - Update the status of one of the caller's jobs
			jobs.PATCH("/:id", jobHandler.UpdateJob)
		}
	}

	return r
}
