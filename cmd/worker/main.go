// Package main runs the reconciliation worker: channel and transcode
// polling plus the cut schedule sweep.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/videohub/backend/config"
	"github.com/videohub/backend/internal/cuts"
	"github.com/videohub/backend/internal/live"
	"github.com/videohub/backend/internal/media"
	"github.com/videohub/backend/internal/monitor"
	"github.com/videohub/backend/internal/organizations"
	"github.com/videohub/backend/internal/reconcile"
	"github.com/videohub/backend/pkg/cloud"
	"github.com/videohub/backend/pkg/database"
	"github.com/videohub/backend/pkg/queue"
	"github.com/videohub/backend/pkg/redis"
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

	jobQueue := queue.NewQueue(rdb.Client, logger)

	// Events published here fan out over Redis to server instances that
	// hold the WebSocket connections.
	redisPubSub := monitor.NewRedisPubSub(rdb.Client, logger)
	hub := monitor.NewHub(logger, redisPubSub, redisPubSub)

	orgRepo := organizations.NewRepository(pool)

	mediaRepo := media.NewRepository(pool)
	mediaSvc := media.NewService(mediaRepo, orgRepo, objects, transcoder, cdn, jobQueue, cfg.Reconcile.JobPollDelay, logger)

	liveRepo := live.NewRepository(pool)
	liveSvc := live.NewService(liveRepo, orgRepo, channels, cdn, alertRules, topics, channelLogs, objects, jobQueue, live.Config{
		NotifyURL:        cfg.Server.BaseURL + "/notify",
		ChannelPollDelay: cfg.Reconcile.ChannelPollDelay,
		InputPollDelay:   cfg.Reconcile.InputPollDelay,
	}, logger)
	liveSvc.SetPublisher(hub)

	cutRepo := cuts.NewRepository(pool)
	cutSvc := cuts.NewService(cutRepo, liveSvc, logger)

	processor := reconcile.NewProcessor(jobQueue, mediaSvc, liveSvc, cutSvc, transcoder, hub, reconcile.Config{
		ChannelPollDelay: cfg.Reconcile.ChannelPollDelay,
		JobPollDelay:     cfg.Reconcile.JobPollDelay,
		InputPollDelay:   cfg.Reconcile.InputPollDelay,
		CutTickInterval:  cfg.Reconcile.CutTickInterval,
		MaxPollAttempts:  cfg.Reconcile.MaxPollAttempts,
	}, logger)

	workerCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go processor.Run(workerCtx)
	logger.Info("worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	time.Sleep(2 * time.Second)
	logger.Info("worker stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
