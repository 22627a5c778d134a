// Package bootstrap starts the infrastructure shared by the IAM service and
// the back-office server: configuration, logging, telemetry, database, Redis
// and the gin engine with its middleware stack.
package bootstrap

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/municipal/backoffice/internal/infrastructure/auth"
	"github.com/municipal/backoffice/internal/infrastructure/cache"
	"github.com/municipal/backoffice/internal/infrastructure/config"
	"github.com/municipal/backoffice/internal/infrastructure/logger"
	"github.com/municipal/backoffice/internal/infrastructure/persistence"
	"github.com/municipal/backoffice/internal/infrastructure/telemetry"
	"github.com/municipal/backoffice/internal/interfaces/http/middleware"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
)

// Platform holds the started infrastructure of one process
type Platform struct {
	Config      *config.Config
	Logger      *logger.Logger
	Telemetry   *telemetry.Providers
	Database    *persistence.Database
	Redis       *redis.Client
	JWT         *auth.JWTService
	Revocations auth.Revocations

	closers []func()
}

// Start loads configuration and connects every dependency. serviceName
// names the process in logs and telemetry.
func Start(ctx context.Context, serviceName string) (*Platform, error) {
	cfg, v, err := config.LoadWithViper()
	if err != nil {
		return nil, err
	}
	if cfg.Telemetry.ServiceName == cfg.App.Name {
		cfg.Telemetry.ServiceName = serviceName
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, err
	}
	p := &Platform{Config: cfg, Logger: log}

	p.Telemetry, err = telemetry.Setup(ctx, cfg.Telemetry, log.Logger)
	if err != nil {
		return nil, err
	}
	p.Logger = log.Tee(p.Telemetry.Logs.ZapCore(log.Level()))
	p.Logger.Logger = p.Logger.With(zap.String("service", serviceName))

	p.Database, err = persistence.NewDatabase(&cfg.Database, persistence.Options{
		Logger:    p.Logger.Logger,
		LogLevel:  cfg.Log.Level,
		Telemetry: cfg.Telemetry,
	})
	if err != nil {
		p.Close(ctx)
		return nil, err
	}
	p.Logger.Info("Database connected")

	p.JWT = auth.NewJWTService(cfg.JWT)
	if cfg.Redis.Enabled() {
		p.Redis, err = cache.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			p.Close(ctx)
			return nil, err
		}
		p.Revocations = auth.NewRedisRevocations(p.Redis)
		p.Logger.Info("Redis connected", zap.String("host", cfg.Redis.Host))
	} else {
		p.Revocations = auth.NewMemoryRevocations()
		p.Logger.Warn("Redis not configured, token revocations stay in process memory")
	}

	config.Watch(v, func(updated *config.Config) {
		if err := p.Logger.SetLevel(updated.Log.Level); err != nil {
			p.Logger.Warn("Log level not changed", zap.Error(err))
			return
		}
		p.Logger.Info("Configuration reloaded", zap.String("log_level", updated.Log.Level))
	}, func(err error) {
		p.Logger.Warn("Configuration reload rejected", zap.Error(err))
	})

	return p, nil
}

// Close releases every dependency in reverse start order
func (p *Platform) Close(ctx context.Context) {
	for i := len(p.closers) - 1; i >= 0; i-- {
		p.closers[i]()
	}
	p.closers = nil
	if p.Redis != nil {
		if err := p.Redis.Close(); err != nil {
			p.Logger.Error("Error closing Redis", zap.Error(err))
		}
	}
	if p.Database != nil {
		if err := p.Database.Close(); err != nil {
			p.Logger.Error("Error closing database", zap.Error(err))
		}
	}
	if p.Telemetry != nil {
		if err := p.Telemetry.Shutdown(ctx); err != nil {
			p.Logger.Error("Error shutting down telemetry", zap.Error(err))
		}
	}
	_ = p.Logger.Close()
}

// Authn returns the JWT middleware backed by the shared revocation store
func (p *Platform) Authn() gin.HandlerFunc {
	return middleware.JWTAuthMiddlewareWithConfig(middleware.JWTMiddlewareConfig{
		JWTService:  p.JWT,
		Revocations: p.Revocations,
		Logger:      p.Logger.Logger,
	})
}

// NewEngine builds a gin engine with the common middleware stack and the
// health and swagger routes
func (p *Platform) NewEngine(serviceName string) *gin.Engine {
	cfg := p.Config
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	middleware.SetupValidator()

	engine := gin.New()
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			p.Logger.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	engine.Use(middleware.RequestID())
	engine.Use(middleware.TracingStack(serviceName, cfg.Telemetry.Enabled)...)
	engine.Use(logger.Recovery(p.Logger.Logger))
	engine.Use(logger.AccessLog(p.Logger.Logger, logger.SkipPaths("/health"), logger.SlowRequests(cfg.HTTP.SlowRequestThreshold)))
	if cfg.Telemetry.Enabled && cfg.Telemetry.MetricsEnabled {
		engine.Use(middleware.HTTPMetrics(p.Telemetry.Meter.Meter("http.server"), p.Logger.Logger))
	}
	if cfg.Telemetry.ProfilingEnabled {
		engine.Use(middleware.Profiling())
	}
	engine.Use(middleware.Secure())
	engine.Use(middleware.CORSWithConfig(middleware.CORSFromHTTPConfig(cfg.HTTP)))
	engine.Use(middleware.BodyLimit(cfg.HTTP.MaxBodySize,
		middleware.PrefixLimit{Prefix: "/api/v1/documents", MaxBytes: cfg.HTTP.MaxUploadSize}))
	if cfg.HTTP.RateLimitEnabled {
		limiter := middleware.NewRateLimiter(cfg.HTTP.RateLimitRequests, cfg.HTTP.RateLimitWindow)
		p.closers = append(p.closers, limiter.Stop)
		engine.Use(middleware.RateLimit(limiter))
		p.Logger.Info("Rate limiting enabled",
			zap.Int("requests", cfg.HTTP.RateLimitRequests),
			zap.Duration("window", cfg.HTTP.RateLimitWindow),
		)
	}

	engine.GET("/health", p.healthHandler(serviceName))
	engine.GET("/swagger/*any",
		middleware.SwaggerProtection(cfg.Swagger, p.Authn()),
		ginSwagger.WrapHandler(swaggerFiles.Handler))

	return engine
}

func (p *Platform) healthHandler(serviceName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		db, err := p.Database.Health(c.Request.Context())
		status, code := "healthy", http.StatusOK
		if err != nil {
			logger.RequestLogger(c).Warn("Health check failed", zap.Error(err))
			status, code = "unhealthy", http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"status":   status,
			"service":  serviceName,
			"time":     time.Now().Format(time.RFC3339),
			"database": db,
		})
	}
}

// Serve runs handler on port until SIGINT or SIGTERM, then shuts down
// gracefully
func (p *Platform) Serve(handler http.Handler, port string) error {
	srv := &http.Server{
		Addr:           ":" + port,
		Handler:        handler,
		ReadTimeout:    p.Config.HTTP.ReadTimeout,
		WriteTimeout:   p.Config.HTTP.WriteTimeout,
		IdleTimeout:    p.Config.HTTP.IdleTimeout,
		MaxHeaderBytes: p.Config.HTTP.MaxHeaderBytes,
	}

	errCh := make(chan error, 1)
	go func() {
		p.Logger.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case <-quit:
	}
	p.Logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return err
	}
	p.Logger.Info("Server exited gracefully")
	return nil
}
