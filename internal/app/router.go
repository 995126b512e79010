package app

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/noah-isme/conference-timetable/api/swagger"
	"github.com/noah-isme/conference-timetable/internal/handler"
	"github.com/noah-isme/conference-timetable/internal/middleware"
	"github.com/noah-isme/conference-timetable/pkg/config"
	"github.com/noah-isme/conference-timetable/pkg/logger"
	corsmiddleware "github.com/noah-isme/conference-timetable/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/conference-timetable/pkg/middleware/requestid"
)

// Router builds the HTTP surface. The sweep endpoint is only mounted when
// the background sweep is enabled.
func (a *App) Router() *gin.Engine {
	if a.Config.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(a.Logger))
	r.Use(corsmiddleware.New(a.Config.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(a.Metrics))

	ops := handler.NewMetricsHandler(a.Metrics.Handler(), a.HealthChecks())
	r.GET("/health", ops.Health)
	r.GET("/ready", ops.Ready)
	r.GET("/metrics", ops.Prometheus)

	if a.Config.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	timetables := handler.NewTimetableHandler(a.Timetables, a.Exports, nil)
	if a.Config.Audit.SweepEnabled {
		timetables = handler.NewTimetableHandler(a.Timetables, a.Exports, a.Sweeps)
	}

	api := r.Group(a.Config.APIPrefix)
	api.Use(middleware.WithResponseMeta())
	api.GET("/events/:id/timetable", timetables.GetTimetable)
	api.GET("/events/:id/timetable/violations", timetables.Violations)
	api.GET("/events/:id/timetable/violations/export", timetables.ExportViolations)
	api.POST("/timetable/transactions", timetables.Apply)
	api.POST("/timetable/audits/sweep", timetables.Sweep)
	return r
}
