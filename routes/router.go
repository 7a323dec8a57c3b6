package routes

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cppla/slimcircle/app"
	"github.com/cppla/slimcircle/controllers"
	"github.com/cppla/slimcircle/middleware"
	"github.com/cppla/slimcircle/utils"
)

// SetupRouter wires routes, middlewares, and controllers.
func SetupRouter(a *app.App) *gin.Engine {
	cfg := a.Config
	switch strings.ToLower(cfg.GinMode) {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	// Access log goes to its own rolling file at the application log level
	gl, err := utils.NewRollingFileLogger(cfg.GinPath, cfg.LogLevel, cfg.LogMaxSizeMB, cfg.LogMaxBackups, cfg.LogMaxAgeDays, cfg.LogCompress)
	if err == nil {
		r.Use(utils.Ginzap(gl, time.RFC3339, true))
		r.Use(utils.RecoveryWithZap(gl, false))
	} else {
		// fallback to default recovery if logger failed to init
		r.Use(gin.Recovery())
	}

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", controllers.CronSecretHeader},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}

	if len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*" {
		corsCfg.AllowAllOrigins = true
		// credentials cannot be combined with a wildcard origin
		corsCfg.AllowCredentials = false
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	}

	r.Use(cors.New(corsCfg))
	r.Use(middleware.RequestMetrics(a.Metrics))

	r.GET("/health", func(ctx *gin.Context) {
		utils.Success(ctx, gin.H{"status": "ok"})
	})
	if cfg.MetricsEnabled {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{})))
	}

	alignmentController := controllers.NewAlignmentController(a.DB, a.Engine)
	activityController := controllers.NewActivityController(a.DB, a.Engine)
	callController := controllers.NewCallController(a.DB, a.Scheduler)
	calculatorController := controllers.NewCalculatorController()
	notificationController := controllers.NewNotificationController(a.DB, a.Notifications)
	authController := controllers.NewAuthController(a.DB, a.Engine)
	statsController := controllers.NewStatsController(a.DB, a.Jobs, a.Engine)
	cronController := controllers.NewCronController(a.Scheduler, cfg.CronSecret)
	configController := controllers.NewConfigController(a.Engine.Behaviors())

	api := r.Group("/api/v1")

	// Public endpoints
	api.GET("/config", configController.GetConfig)
	api.GET("/stats", statsController.GetStats)
	api.POST("/cron/call-jobs", middleware.RateLimit(cfg.RateLimitPerMinute), cronController.RunCallJobs)

	calc := api.Group("/calculator")
	calc.Use(middleware.RateLimit(cfg.RateLimitPerMinute))
	calc.POST("/plan", calculatorController.Plan)
	calc.POST("/activity", calculatorController.Activity)

	protected := api.Group("")
	protected.Use(middleware.AuthRequired(), middleware.RateLimit(cfg.RateLimitPerMinute))

	protected.POST("/auth/logout", authController.Logout)
	protected.GET("/users/me", authController.Me)
	protected.PATCH("/users/me", authController.UpdateProfile)
	protected.PATCH("/users/me/notification-preferences", notificationController.UpdatePreferences)

	protected.GET("/alignment/today", alignmentController.GetToday)
	protected.POST("/alignment/today", alignmentController.UpdateToday)
	protected.GET("/alignment/summary", alignmentController.Summary)

	protected.POST("/checkins", activityController.CreateCheckIn)
	protected.POST("/tasks", activityController.CreateTask)
	protected.PUT("/entries/today", activityController.UpsertTodayEntry)
	protected.POST("/circle/interactions", activityController.RecordCircleInteraction)

	protected.GET("/squads/:id/alignment", alignmentController.SquadAlignment)
	protected.PUT("/squads/:id/call", callController.SetSquadCall)
	protected.DELETE("/squads/:id/call", callController.ClearSquadCall)
	protected.PUT("/coaching/:userId/call", callController.SetCoachingCall)
	protected.DELETE("/coaching/:userId/call", callController.ClearCoachingCall)

	protected.GET("/notifications", notificationController.List)
	protected.POST("/notifications/:id/read", notificationController.MarkRead)

	r.NoRoute(func(ctx *gin.Context) {
		if strings.HasPrefix(ctx.Request.URL.Path, "/api/") {
			utils.Error(ctx, http.StatusNotFound, 40400, "api route not found")
			return
		}
		utils.Error(ctx, http.StatusNotFound, 40401, "not found")
	})

	return r
}
