package http

import (
	"log/slog"
	"time"

	"github.com/geocoder89/learnhub/internal/domain/user"
	"github.com/geocoder89/learnhub/internal/http/handlers"
	"github.com/geocoder89/learnhub/internal/http/middlewares"
	"github.com/geocoder89/learnhub/internal/observability"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

type Deps struct {
	Log         *slog.Logger
	Env         string
	ServiceName string

	Auth    handlers.AuthService
	Modules handlers.ModuleService
	Tokens  middlewares.TokenVerifier

	// optional
	Prom               *observability.Prom
	Gatherer           prometheus.Gatherer
	AuthLimiter        middlewares.Limiter
	EnrollLimiter      middlewares.Limiter
	CORSAllowedOrigins []string
	ReadyChecks        map[string]handlers.Check
}

func NewRouter(d Deps) *gin.Engine {
	switch d.Env {
	case "dev":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	if d.Log == nil {
		d.Log = slog.Default()
	}
	if d.ServiceName == "" {
		d.ServiceName = "learnhub-api"
	}
	if d.AuthLimiter == nil {
		d.AuthLimiter = middlewares.NewRateLimiter(20, time.Minute)
	}
	if d.EnrollLimiter == nil {
		d.EnrollLimiter = middlewares.NewRateLimiter(30, time.Minute)
	}

	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(middlewares.RequestID())
	r.Use(otelgin.Middleware(d.ServiceName))
	if d.Prom != nil {
		r.Use(d.Prom.GinHandleMiddleware())
	}
	r.Use(middlewares.RequestLogger(d.Log))
	r.Use(middlewares.SecurityHeaders())
	r.Use(middlewares.CORSMiddleware(d.CORSAllowedOrigins))
	r.Use(middlewares.MaxBodyBytes(middlewares.DefaultMaxBodyBytes))
	r.Use(middlewares.RequireJSON())

	health := handlers.NewHealthHandler(d.ReadyChecks)
	r.GET("/healthz", health.Healthz)
	r.GET("/readyz", health.Readyz)

	if d.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}

	authHandler := handlers.NewAuthHandler(d.Auth)
	modulesHandler := handlers.NewModulesHandler(d.Modules)
	authMW := middlewares.NewAuthMiddleware(d.Tokens)
	limitAuth := middlewares.RateLimit(d.AuthLimiter, middlewares.KeyByIP)
	limitEnroll := middlewares.RateLimit(d.EnrollLimiter, middlewares.KeyByUserOrIP)

	api := r.Group("/api")

	api.POST("/auth/register", limitAuth, authHandler.Register)
	api.POST("/auth/login", limitAuth, authHandler.Login)

	api.GET("/modules", modulesHandler.ListModules)

	authed := api.Group("", authMW.RequireAuth())
	authed.GET("/modules/enrolled", modulesHandler.ListEnrolled)
	authed.GET("/modules/:id", modulesHandler.GetModuleByID)
	authed.POST("/modules/:id/enroll", limitEnroll, modulesHandler.Enroll)

	admin := authed.Group("", authMW.RequireRole(user.RoleAdmin))
	admin.POST("/modules", modulesHandler.CreateModule)
	admin.PUT("/modules/:id", modulesHandler.UpdateModule)
	admin.DELETE("/modules/:id", modulesHandler.DeleteModule)
	admin.GET("/modules/:id/enrollments", modulesHandler.EnrollmentCount)

	return r
}
