package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/geocoder89/learnhub/internal/auth"
	"github.com/geocoder89/learnhub/internal/config"
	"github.com/geocoder89/learnhub/internal/db"
	httpx "github.com/geocoder89/learnhub/internal/http"
	"github.com/geocoder89/learnhub/internal/http/handlers"
	"github.com/geocoder89/learnhub/internal/http/middlewares"
	"github.com/geocoder89/learnhub/internal/observability"
	"github.com/geocoder89/learnhub/internal/queue/redisclient"
	"github.com/geocoder89/learnhub/internal/repo/postgres"
	"github.com/geocoder89/learnhub/internal/services"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	cfg := config.Load()

	log := observability.NewLogger(cfg.Env)
	slog.SetDefault(log)

	if err := cfg.Validate(); err != nil {
		log.Error("invalid config", "err", err)
		os.Exit(1)
	}

	if err := run(cfg, log); err != nil {
		log.Error("api stopped", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := observability.InitTracer(ctx, "learnhub-api", cfg.OTelEndpoint, cfg.OTelEnabled)
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}
	defer func() {
		sctx, cancel := config.WithTimeout(5 * time.Second)
		defer cancel()
		_ = shutdownTracer(sctx)
	}()

	pool, err := db.NewPool(ctx, cfg.DBURL)
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	defer pool.Close()

	if err := db.RunMigrations(ctx, pool); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	if cfg.AdminEmail != "" && cfg.AdminPassword != "" {
		created, err := db.EnsureAdminUser(ctx, pool, cfg.AdminEmail, cfg.AdminPassword)
		if err != nil {
			return fmt.Errorf("seed admin: %w", err)
		}
		if created {
			log.Info("admin user created", "email", cfg.AdminEmail)
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	prom := observability.NewProm(reg)

	readyChecks := map[string]handlers.Check{"db": pool.Ping}

	var limiter middlewares.Limiter = middlewares.NewRateLimiter(cfg.AuthRateLimit, cfg.AuthRateWindow())
	var enrollLimiter middlewares.Limiter = middlewares.NewRateLimiter(cfg.EnrollRateLimit, time.Minute)
	if cfg.RedisAddr != "" {
		rc := redisclient.New(redisclient.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rc.Close()

		limiter = middlewares.NewRedisRateLimiter(rc.Raw(), cfg.AuthRateLimit, cfg.AuthRateWindow())
		enrollLimiter = middlewares.NewRedisRateLimiter(rc.Raw(), cfg.EnrollRateLimit, time.Minute)
		readyChecks["redis"] = rc.Ping
		log.Info("rate limiting backed by redis", "addr", cfg.RedisAddr)
	}

	usersRepo := postgres.NewUsersRepo(pool, prom)
	modulesRepo := postgres.NewModulesRepo(pool, prom)
	jobsRepo := postgres.NewJobsRepo(pool, prom)

	tokens := auth.NewManager(cfg.JWTSecret, cfg.TokenTTL())

	moduleSvc := services.NewModuleService(modulesRepo,
		services.WithJobQueue(jobsRepo),
		services.WithMetrics(prom),
		services.WithLogger(log),
	)

	router := httpx.NewRouter(httpx.Deps{
		Log:                log,
		Env:                cfg.Env,
		Auth:               services.NewAuthService(usersRepo, tokens, prom),
		Modules:            moduleSvc,
		Tokens:             tokens,
		Prom:               prom,
		Gatherer:           reg,
		AuthLimiter:        limiter,
		EnrollLimiter:      enrollLimiter,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		ReadyChecks:        readyChecks,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting", "port", cfg.Port, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info("server shutting down")

	sctx, cancel := config.WithTimeout(10 * time.Second)
	defer cancel()

	if err := srv.Shutdown(sctx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}

	log.Info("shutdown complete")
	return nil
}
