package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/noah-isme/dorm-gate-api/api/swagger"
	"github.com/noah-isme/dorm-gate-api/internal/handler"
	"github.com/noah-isme/dorm-gate-api/internal/middleware"
	"github.com/noah-isme/dorm-gate-api/internal/models"
	"github.com/noah-isme/dorm-gate-api/internal/repository"
	"github.com/noah-isme/dorm-gate-api/internal/service"
	"github.com/noah-isme/dorm-gate-api/pkg/cache"
	"github.com/noah-isme/dorm-gate-api/pkg/config"
	"github.com/noah-isme/dorm-gate-api/pkg/database"
	"github.com/noah-isme/dorm-gate-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/dorm-gate-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/dorm-gate-api/pkg/middleware/requestid"
	"github.com/noah-isme/dorm-gate-api/pkg/push"
)

// @title Dorm Gate API
// @version 1.0.0
// @description Campus-exit authorization: leave requests, approvals, gate QR verification
// @BasePath /api/v1
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	rdb, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to redis", "error", err)
	}
	defer rdb.Close()

	userRepo := repository.NewUserRepository(db)
	leaveRepo := repository.NewLeaveRepository(db)
	checkLogRepo := repository.NewCheckLogRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)

	metricsSvc := service.NewMetricsService()

	fcm, err := push.NewFCMPusher(ctx, cfg.Push)
	if err != nil {
		logr.Sugar().Fatalw("failed to init push transport", "error", err)
	}
	var pusher push.Pusher
	if fcm != nil {
		pusher = fcm
	}

	devices := service.NewRedisDeviceRegistry(rdb, 0)
	notifier := service.NewNotifier(notificationRepo, userRepo, devices, pusher, metricsSvc, cfg.Push, logr)
	notifier.Start(ctx)
	defer notifier.Stop()

	var faces service.FaceComparer
	if cfg.Face.Enabled {
		faces = service.NewHTTPFaceComparer(cfg.Face)
	}
	gate := service.NewApprovalGate(cfg.Face, faces, logr)

	qrSvc := service.NewQRService(leaveRepo, checkLogRepo, userRepo, notifier, metricsSvc, cfg.QR, logr)
	leaveSvc := service.NewLeaveService(leaveRepo, userRepo, gate, qrSvc, notifier, metricsSvc, logr)
	checkLogSvc := service.NewCheckLogService(checkLogRepo, userRepo, qrSvc, logr)
	notificationSvc := service.NewNotificationService(notificationRepo, devices)
	authSvc := service.NewAuthService(userRepo, nil, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "dorm-gate-api",
	})

	authHandler := handler.NewAuthHandler(authSvc)
	leaveHandler := handler.NewLeaveHandler(leaveSvc)
	gateHandler := handler.NewCheckLogHandler(checkLogSvc)
	notificationHandler := handler.NewNotificationHandler(notificationSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	auth.POST("/login", authHandler.Login)
	auth.POST("/refresh", authHandler.Refresh)
	auth.POST("/logout", middleware.JWT(authSvc), authHandler.Logout)
	auth.POST("/change-password", middleware.JWT(authSvc), authHandler.ChangePassword)
	auth.GET("/me", middleware.JWT(authSvc), authHandler.Me)

	leaves := api.Group("/leaves", middleware.JWT(authSvc))
	leaves.POST("", middleware.RequireRoles(models.RoleStudent), leaveHandler.Create)
	leaves.GET("", leaveHandler.List)
	if cfg.Exports.Enabled {
		leaves.GET("/export",
			middleware.RequireRoles(models.RoleAdmin, models.RoleHomeDean, models.RoleVPSAS),
			leaveHandler.Export)
	}
	leaves.GET("/:id", leaveHandler.Get)
	leaves.GET("/:id/qr", leaveHandler.QRImage)
	leaves.POST("/:id/decision",
		middleware.RequireRoles(models.RoleAdmin, models.RoleHomeDean, models.RoleVPSAS, models.RoleParent),
		leaveHandler.Decide)
	leaves.POST("/:id/cancel",
		middleware.RequireRoles(models.RoleStudent, models.RoleAdmin),
		leaveHandler.Cancel)

	gateRoutes := api.Group("/gate", middleware.JWT(authSvc),
		middleware.RequireRoles(models.RoleGuard, models.RoleAdmin))
	gateRoutes.POST("/scan", gateHandler.Scan)
	gateRoutes.POST("/manual", gateHandler.Manual)
	gateRoutes.GET("/logs", gateHandler.List)

	inbox := api.Group("/notifications", middleware.JWT(authSvc))
	inbox.GET("", notificationHandler.List)
	inbox.POST("/:id/read", notificationHandler.MarkRead)

	devicesRoutes := api.Group("/devices", middleware.JWT(authSvc))
	devicesRoutes.POST("", notificationHandler.RegisterDevice)
	devicesRoutes.DELETE("", notificationHandler.DeregisterDevice)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
