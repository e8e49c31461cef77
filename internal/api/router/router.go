package router

import (
	"net/http"

	"github.com/cho-y-j/dispatch/internal/api/handler"
	"github.com/cho-y-j/dispatch/internal/metrics"
	"github.com/gin-gonic/gin"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(MetricsMiddleware())
	r.Use(CORSMiddleware())

	r.GET("/health", func(c *gin.Context) {
		if deps.HealthCheck != nil {
			if err := deps.HealthCheck(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"status":  "unhealthy",
					"service": "dispatch-api",
					"error":   err.Error(),
				})
				return
			}
		}
		body := gin.H{
			"status":  "healthy",
			"service": "dispatch-api",
		}
		if deps.PoolStats != nil {
			if stats := deps.PoolStats(); stats != "" {
				body["database"] = stats
			}
		}
		c.JSON(http.StatusOK, body)
	})

	metrics.Init()
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	jobHandler := handler.NewJobHandler(deps)
	contractorHandler := handler.NewContractorHandler(deps)
	violationHandler := handler.NewViolationHandler(deps)
	settingsHandler := handler.NewSettingsHandler(deps)

	// On-site client signature: no account, throttled per IP
	public := r.Group("/public", RateLimitMiddleware(deps.PublicRequestsPerSecond, deps.PublicBurst))
	{
		public.POST("/jobs/:job_id/signatures/client", jobHandler.SignAsClient)
	}

	v1 := r.Group("/api/v1", handler.Identity())
	{
		jobs := v1.Group("/jobs")
		{
			jobs.POST("", jobHandler.CreateJob)
			jobs.GET("/open", jobHandler.ListOpenJobs)
			jobs.GET("/:job_id", jobHandler.GetJob)
			jobs.GET("/:job_id/match", jobHandler.GetMatch)

			jobs.POST("/:job_id/accept", jobHandler.AcceptJob)
			jobs.POST("/:job_id/depart", jobHandler.Transition(deps.Dispatch.Depart))
			jobs.POST("/:job_id/arrive", jobHandler.Transition(deps.Dispatch.Arrive))
			jobs.POST("/:job_id/start", jobHandler.Transition(deps.Dispatch.StartWork))
			jobs.POST("/:job_id/complete", jobHandler.Transition(deps.Dispatch.Complete))
			jobs.POST("/:job_id/cancel", jobHandler.CancelJob)

			jobs.POST("/:job_id/signatures/contractor", jobHandler.SignAsContractor)
			jobs.POST("/:job_id/signatures/organization", jobHandler.ConfirmAsOrganization)
			jobs.POST("/:job_id/rating", jobHandler.RateMatch)
			jobs.POST("/:job_id/report", jobHandler.RegenerateReport)
		}

		contractors := v1.Group("/contractors")
		{
			contractors.POST("", contractorHandler.Register)
			contractors.GET("/:contractor_id", contractorHandler.Get)
			contractors.POST("/:contractor_id/approve", contractorHandler.Approve)
			contractors.POST("/:contractor_id/reject", contractorHandler.Reject)
			contractors.PUT("/:contractor_id/grade", contractorHandler.UpdateGrade)
			contractors.GET("/:contractor_id/grade-history", contractorHandler.GradeHistory)
			contractors.PUT("/:contractor_id/location", contractorHandler.UpdateLocation)
			contractors.PUT("/:contractor_id/active", contractorHandler.SetActive)
			contractors.GET("/:contractor_id/equipment", contractorHandler.ListEquipment)
			contractors.POST("/:contractor_id/equipment", contractorHandler.AddEquipment)
			contractors.PUT("/:contractor_id/equipment/:equipment_id/status", contractorHandler.SetEquipmentStatus)
		}

		v1.POST("/violations", violationHandler.Issue)
		v1.GET("/violations", violationHandler.ListViolations)
		v1.POST("/suspensions", violationHandler.Suspend)
		v1.GET("/suspensions", violationHandler.ListSuspensions)
		v1.POST("/suspensions/:suspension_id/lift", violationHandler.Lift)

		v1.GET("/settings", settingsHandler.Get)
		v1.PUT("/settings/:key", settingsHandler.Put)
	}

	return r
}
