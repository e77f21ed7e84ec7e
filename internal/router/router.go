package router

import (
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/course-registration-api/internal/handler"
	"github.com/noah-isme/course-registration-api/internal/middleware"
	"github.com/noah-isme/course-registration-api/internal/models"
	"github.com/noah-isme/course-registration-api/internal/service"
	"github.com/noah-isme/course-registration-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/course-registration-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/course-registration-api/pkg/middleware/requestid"
)

// Handlers groups every HTTP handler the API serves.
type Handlers struct {
	Public        *handler.PublicHandler
	Periods       *handler.PeriodHandler
	Slots         *handler.SlotHandler
	Registrations *handler.RegistrationHandler
	Auth          *handler.AuthHandler
	Metrics       *handler.MetricsHandler
}

// Options carries the cross-cutting pieces of the route table.
type Options struct {
	APIPrefix      string
	AllowedOrigins []string
	EnableDocs     bool
	EnableMetrics  bool
	Tokens         middleware.TokenValidator
	RateLimiter    middleware.RateLimiter
	RateLimit      int
	RateWindow     time.Duration
	MetricsSvc     *service.MetricsService
	Logger         *zap.Logger
}

// Setup builds the gin engine with every route mounted.
func Setup(h Handlers, opts Options) *gin.Engine {
	if opts.APIPrefix == "" {
		opts.APIPrefix = "/api/v1"
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(opts.Logger))
	r.Use(corsmiddleware.New(opts.AllowedOrigins))
	r.Use(middleware.Metrics(opts.MetricsSvc))

	r.GET("/health", h.Metrics.Health)
	r.GET("/ready", h.Metrics.Ready)
	if opts.EnableMetrics {
		r.GET("/metrics", h.Metrics.Prometheus)
	}
	if opts.EnableDocs {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(opts.APIPrefix)
	api.POST("/auth/token", middleware.RateLimit(opts.RateLimiter, opts.RateLimit, opts.RateWindow, opts.Logger), h.Auth.Token)

	throttle := middleware.RateLimit(opts.RateLimiter, opts.RateLimit, opts.RateWindow, opts.Logger)
	public := api.Group("/public/periods/:id")
	{
		public.GET("", h.Public.Period)
		public.GET("/slots", h.Public.Slots)
		public.GET("/events", h.Public.Events)
		public.POST("/registrations", throttle, h.Public.Submit)
		public.PUT("/registrations", throttle, h.Public.Update)
		public.GET("/registrations/lookup", throttle, h.Public.Lookup)
	}

	admin := api.Group("/admin")
	admin.Use(middleware.JWT(opts.Tokens), middleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin))
	{
		periods := admin.Group("/periods")
		periods.GET("", h.Periods.List)
		periods.POST("", h.Periods.Create)
		periods.GET("/:id", h.Periods.Get)
		periods.PUT("/:id", h.Periods.Update)
		periods.PATCH("/:id/active", h.Periods.SetActive)
		periods.DELETE("/:id", h.Periods.Delete)

		periods.GET("/:id/slots", h.Slots.List)
		periods.POST("/:id/slots", h.Slots.Add)
		periods.POST("/:id/slots/generate", h.Slots.Generate)
		periods.DELETE("/:id/slots", h.Slots.DeleteMany)
		periods.DELETE("/:id/slots/:slotId", h.Slots.Delete)
		admin.PATCH("/slots/:slotId/capacity", h.Slots.UpdateCapacity)

		periods.GET("/:id/registrations", h.Registrations.List)
		periods.GET("/:id/timetable", h.Registrations.Timetable)
		periods.GET("/:id/export", h.Registrations.Export)
		periods.POST("/:id/reset", h.Registrations.Reset)
		admin.GET("/registrations/:regId", h.Registrations.Detail)
		admin.POST("/registrations/:regId/cancel", h.Registrations.Cancel)
	}

	return r
}
