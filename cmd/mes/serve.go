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
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/bitfantasy/nimo-mes/internal/config"
	"github.com/bitfantasy/nimo-mes/internal/mes/entity"
	"github.com/bitfantasy/nimo-mes/internal/mes/handler"
	"github.com/bitfantasy/nimo-mes/internal/mes/repository"
	"github.com/bitfantasy/nimo-mes/internal/mes/service"
	"github.com/bitfantasy/nimo-mes/internal/metrics"
	"github.com/bitfantasy/nimo-mes/internal/middleware"
	"github.com/bitfantasy/nimo-mes/internal/shared/lock"
	"github.com/bitfantasy/nimo-mes/internal/shared/realtime"
	"github.com/bitfantasy/nimo-mes/internal/shared/storage"
)

func (a *app) serveCommand() *cobra.Command {
	var migrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MES HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve(migrate)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", true, "run AutoMigrate before serving")
	return cmd
}

func (a *app) serve(migrate bool) error {
	cfg, zapLogger := a.cfg, a.logger
	if cfg.JWT.Secret == "" {
		return errors.New("jwt.secret (JWT_SECRET) is required")
	}

	zapLogger.Info("Starting nimo-mes service",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
	)

	// 初始化数据库
	db, err := initDatabase(cfg.Database)
	if err != nil {
		return err
	}
	if migrate {
		if err := entity.AutoMigrate(db); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	repos := repository.NewRepositories(db)

	collector := metrics.NewCollector()
	hub := realtime.NewHub(zapLogger)
	hub.OnCountChange(collector.SetRealtimeClients)

	// MO锁：单实例用进程内锁，多副本共享 redis 租约锁
	var (
		locker lock.Locker = lock.NewLocalLocker()
		rdb    *redis.Client
	)
	if cfg.Production.LockBackend == "redis" {
		rdb = initRedis(cfg.Redis)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := rdb.Ping(ctx).Err()
		cancel()
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer rdb.Close()
		locker = lock.NewRedisLocker(rdb, cfg.Production.LockTTL, cfg.Production.LockWait, zapLogger.Named("lock"))
	}

	// 报表归档（可选）
	var archiver storage.Archiver
	if cfg.MinIO.Enabled() {
		m, err := storage.NewMinioArchiver(cfg.MinIO.Endpoint, cfg.MinIO.AccessKey, cfg.MinIO.SecretKey, cfg.MinIO.Bucket, cfg.MinIO.UseSSL)
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err = m.EnsureBucket(ctx)
		cancel()
		if err != nil {
			zapLogger.Warn("MinIO bucket check failed, archive disabled", zap.Error(err))
		} else {
			archiver = m
		}
	}

	services := service.NewServices(repos, service.Options{
		Locker:     locker,
		Publisher:  hub,
		Metrics:    collector,
		Logger:     zapLogger.Named("mes"),
		Policy:     cfg.Production.Policy(),
		OnShortage: cfg.Production.OnShortage,
		Archiver:   archiver,
	})
	handlers := handler.NewHandlers(services, hub, zapLogger)

	// 设置Gin模式
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(middleware.Recovery(zapLogger))
	router.Use(middleware.Logger(zapLogger))
	router.Use(middleware.CORS())
	router.Use(middleware.RequestID())
	router.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/api/v1/mes/events", "/api/v1/mes/ws"})))

	registerRoutes(router, cfg, handlers, repos, rdb, collector)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: 0, // SSE 长连接
	}

	go func() {
		zapLogger.Info("Server starting", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// 优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		zapLogger.Error("Server forced to shutdown", zap.Error(err))
	}

	zapLogger.Info("Server exited")
	return nil
}

func registerRoutes(r *gin.Engine, cfg *config.Config, h *handler.Handlers, repos *repository.Repositories, rdb *redis.Client, collector *metrics.Collector) {
	// 健康检查
	r.GET("/health/live", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/health/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		sqlDB, err := repos.DB().DB()
		if err == nil {
			err = sqlDB.PingContext(ctx)
		}
		if err == nil && rdb != nil {
			err = rdb.Ping(ctx).Err()
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// 版本信息
	r.GET("/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":    Version,
			"build_time": BuildTime,
		})
	})

	if cfg.Metrics.Enabled {
		r.GET(cfg.Metrics.Path, gin.WrapH(collector.Handler()))
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"code": 40400, "message": "Not found"})
	})

	api := r.Group("/api/v1/mes", middleware.JWTAuth(cfg.JWT.Secret, cfg.JWT.Issuer))
	handler.RegisterRoutes(api, h)
}
