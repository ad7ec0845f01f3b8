package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/siteadmin/content-services/handlers"
	"github.com/siteadmin/content-services/internal/bootstrap"
	"github.com/siteadmin/content-services/internal/config"
	"github.com/siteadmin/content-services/internal/page/handler"
	"github.com/siteadmin/content-services/pkg/logger"
	"github.com/siteadmin/content-services/pkg/metrics"
	"github.com/siteadmin/content-services/pkg/middleware"
)

var startTime = time.Now()

func main() {
	// LOG_LEVEL: debug|info|warn|error|fatal
	logger.Init(os.Getenv("LOG_LEVEL"))
	logger.Debugf("startup: LOG_LEVEL=%s", logger.LevelString())

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	// .env may set LOG_LEVEL too
	logger.Init(cfg.Server.LogLevel)
	logger.Infof("config loaded: storage=%s redis=%v minio=%v", cfg.Storage.Driver, cfg.Redis.Host != "", cfg.MinIO.Endpoint != "")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.Build(ctx, cfg)
	if err != nil {
		logger.Fatalf("failed to wire services: %v", err)
	}
	defer app.Close()

	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	// Lightweight CORS for the admin frontend: set common headers and answer OPTIONS.
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Content-Length")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusOK)
			return
		}
		c.Next()
	})
	r.Use(gin.Logger(), gin.Recovery())
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))

	if cfg.RateLimit.Enabled {
		if cfg.RateLimit.UseRedis && app.Redis != nil {
			win := time.Duration(cfg.RateLimit.WindowSeconds) * time.Second
			r.Use(middleware.RedisRateLimitMiddleware(app.Redis, cfg.RateLimit.RPS, cfg.RateLimit.Burst, win))
			logger.Infof("rate limiter: redis fixed window (%.1f rps, burst %d)", cfg.RateLimit.RPS, cfg.RateLimit.Burst)
		} else {
			r.Use(middleware.RateLimitMiddleware(cfg.RateLimit.RPS, cfg.RateLimit.Burst))
			logger.Infof("rate limiter: in-memory token bucket (%.1f rps, burst %d)", cfg.RateLimit.RPS, cfg.RateLimit.Burst)
		}
	}

	handlers.RegisterHealth(r, startTime, app.Checks())
	handlers.RegisterSwagger(r)
	handler.RegisterPageRoutes(r, app.Deps())

	metrics.RegisterCollectors(prometheus.DefaultRegisterer)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		logger.Infof("starting content service on %s (filesystem %s)", addr, app.Mode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server failed: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Infof("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("graceful shutdown failed: %v", err)
	}
}
