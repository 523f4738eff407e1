// Package main runs the media platform HTTP server with WebSocket monitoring
// and graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/videohub/backend/config"
	"github.com/videohub/backend/internal/alerts"
	"github.com/videohub/backend/internal/auth"
	"github.com/videohub/backend/internal/cuts"
	"github.com/videohub/backend/internal/live"
	"github.com/videohub/backend/internal/media"
	"github.com/videohub/backend/internal/middleware"
	"github.com/videohub/backend/internal/monitor"
	"github.com/videohub/backend/internal/organizations"
	"github.com/videohub/backend/pkg/cloud"
	"github.com/videohub/backend/pkg/database"
	"github.com/videohub/backend/pkg/queue"
	"github.com/videohub/backend/pkg/redis"
	"github.com/videohub/backend/pkg/response"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	awsCfg, err := cloud.LoadAWSConfig(ctx, cloud.Config{
		Region:               cfg.AWS.Region,
		AccessKeyID:          cfg.AWS.AccessKeyID,
		SecretAccessKey:      cfg.AWS.SecretAccessKey,
		MediaConvertEndpoint: cfg.AWS.MediaConvertEndpoint,
		MediaConvertRole:     cfg.AWS.MediaConvertRole,
		MediaLiveRole:        cfg.AWS.MediaLiveRole,
		PresignExpire:        time.Duration(cfg.AWS.PresignExpireMinutes) * time.Minute,
	}, logger)
	if err != nil {
		logger.Fatal("aws", zap.Error(err))
	}

	objects := cloud.NewObjectStorage(awsCfg, time.Duration(cfg.AWS.PresignExpireMinutes)*time.Minute, logger)
	transcoder := cloud.NewMediaConvert(awsCfg, cfg.AWS.MediaConvertEndpoint, cfg.AWS.MediaConvertRole, logger)
	channels := cloud.NewMediaLive(awsCfg, cfg.AWS.MediaLiveRole, logger)
	cdn := cloud.NewCDN(awsCfg, logger)
	topics := cloud.NewTopics(awsCfg, logger)
	alertRules := cloud.NewAlertRules(awsCfg, logger)
	channelLogs := cloud.NewChannelLogs(awsCfg, logger)

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	jobQueue := queue.NewQueue(rdb.Client, logger)

	redisPubSub := monitor.NewRedisPubSub(rdb.Client, logger)
	hub := monitor.NewHub(logger, redisPubSub, redisPubSub)

	// Auth
	authRepo := auth.NewRepository(pool)
	authHandler := auth.NewHandler(authRepo, jwtService, logger)

	// Organizations
	orgRepo := organizations.NewRepository(pool)
	orgHandler := organizations.NewHandler(orgRepo, cdn, logger)

	// On-demand media
	mediaRepo := media.NewRepository(pool)
	mediaSvc := media.NewService(mediaRepo, orgRepo, objects, transcoder, cdn, jobQueue, cfg.Reconcile.JobPollDelay, logger)
	mediaHandler := media.NewHandler(mediaSvc, orgRepo, logger)

	// Live channels
	liveRepo := live.NewRepository(pool)
	liveSvc := live.NewService(liveRepo, orgRepo, channels, cdn, alertRules, topics, channelLogs, objects, jobQueue, live.Config{
		NotifyURL:        cfg.Server.BaseURL + "/notify",
		ChannelPollDelay: cfg.Reconcile.ChannelPollDelay,
		InputPollDelay:   cfg.Reconcile.InputPollDelay,
	}, logger)
	liveSvc.SetPublisher(hub)
	liveHandler := live.NewHandler(liveSvc, logger)

	// Scheduled cuts
	cutRepo := cuts.NewRepository(pool)
	cutSvc := cuts.NewService(cutRepo, liveSvc, logger)
	cutHandler := cuts.NewHandler(cutSvc, liveSvc, logger)

	// Channel alert webhook
	aggregator := alerts.NewAggregator(liveRepo, hub, logger)
	alertHandler := alerts.NewHandler(aggregator, logger)

	jwtValidate := func(token string) (string, error) {
		claims, err := jwtService.Validate(token)
		if err != nil {
			return "", err
		}
		return claims.UserID.String(), nil
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health
	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	// Auth (public)
	authGroup := router.Group("/auth")
	{
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/register", authHandler.Register)
	}

	// Alert notifications (no JWT; sender is the notification service)
	router.POST("/notify", alertHandler.Notify)

	// Protected API (JWT required)
	api := router.Group("")
	api.Use(middleware.JWT(jwtService))
	{
		api.GET("/users", middleware.RequireRole("admin"), authHandler.ListUsers)

		// Organizations
		api.POST("/organizations", middleware.RequireRole("admin"), orgHandler.Create)
		api.GET("/organizations", middleware.RequireRole("admin"), orgHandler.List)
		api.GET("/organizations/:id", orgHandler.Get)
		api.PATCH("/organizations/:id/uploads", middleware.RequireRole("admin"), orgHandler.SetUploadEnabled)

		// On-demand media
		api.POST("/media", middleware.RequireRole("admin", "operator"), mediaHandler.Create)
		api.GET("/media", mediaHandler.List)
		api.GET("/media/:video_id", mediaHandler.Get)
		api.POST("/media/:video_id/queue", middleware.RequireRole("admin", "operator"), mediaHandler.Queue)
		api.POST("/media/:video_id/queue_fail", middleware.RequireRole("admin", "operator"), mediaHandler.QueueFail)
		api.POST("/media/:video_id/reprocess", middleware.RequireRole("admin", "operator"), mediaHandler.Reprocess)
		api.DELETE("/media/:video_id", middleware.RequireRole("admin", "operator"), mediaHandler.Delete)

		// Live channels
		api.POST("/live", middleware.RequireRole("admin", "operator"), liveHandler.Create)
		api.GET("/live", liveHandler.List)
		api.GET("/live/:video_id", liveHandler.Get)
		api.POST("/live/:video_id/start", middleware.RequireRole("admin", "operator"), liveHandler.Start)
		api.POST("/live/:video_id/stop", middleware.RequireRole("admin", "operator"), liveHandler.Stop)
		api.PUT("/live/:video_id/geolocation", middleware.RequireRole("admin", "operator"), liveHandler.UpdateGeo)
		api.DELETE("/live/:video_id", middleware.RequireRole("admin", "operator"), liveHandler.Delete)

		// Scheduled cuts
		api.POST("/live/:video_id/cuts", middleware.RequireRole("admin", "operator"), cutHandler.Create)
		api.GET("/live/:video_id/cuts", cutHandler.List)
		api.PUT("/cuts/:id", middleware.RequireRole("admin", "operator"), cutHandler.Update)
		api.DELETE("/cuts/:id", middleware.RequireRole("admin", "operator"), cutHandler.Delete)
	}

	// WebSocket monitor (token in query; no Authorization header required)
	router.GET("/ws", monitor.ServeWs(hub, logger, jwtValidate))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
