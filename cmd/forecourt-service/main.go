package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/thejerf/suture/v4"
	"gorm.io/gorm"

	"forecourt-service/internal/auth"
	"forecourt-service/internal/config"
	"forecourt-service/internal/db"
	"forecourt-service/internal/domain/forecourt"
	"forecourt-service/internal/engine"
	httphandler "forecourt-service/internal/http"
	"forecourt-service/internal/http/middleware"
	"forecourt-service/internal/logger"
	"forecourt-service/internal/repository"
	"forecourt-service/internal/service"
	"forecourt-service/internal/snapshot"
	"forecourt-service/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	appLogger := logger.New(cfg.Environment, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		database *gorm.DB
		archiver snapshot.Archiver
		uploader snapshot.Uploader
		deps     service.Dependencies
	)

	// The alert archive is optional; without it alerts live only in the bounded log.
	if cfg.DB.Enabled() {
		database, err = db.New(cfg, appLogger)
		if err != nil {
			appLogger.Fatal().Err(err).Msg("failed to connect database")
		}
		alertRepo := repository.NewAlertRepository(database)
		archiver = alertRepo
		deps.Store = alertRepo
	} else {
		appLogger.Warn().Msg("DB_DSN not set, alert archive and region persistence are disabled")
	}

	r2Client, err := storage.NewR2Client(cfg.Storage)
	if err != nil && !errors.Is(err, storage.ErrNotConfigured) {
		appLogger.Fatal().Err(err).Msg("failed to initialize R2 client")
	}
	if err != nil {
		appLogger.Warn().Msg("R2 storage not configured, snapshot uploads will be disabled")
	} else {
		uploader = r2Client
		deps.Snapshots = r2Client
	}

	camera := forecourt.CameraIdentity{
		CustomerID:    cfg.Camera.CustomerID,
		CameraID:      cfg.Camera.CameraID,
		StationNumber: cfg.Camera.StationNumber,
	}

	dispatcher := snapshot.NewDispatcher(snapshot.Config{
		QueueSize:       cfg.Snapshot.QueueSize,
		Workers:         cfg.Snapshot.Workers,
		Timeout:         cfg.Snapshot.Timeout,
		MaxRetries:      cfg.Snapshot.MaxRetries,
		RetryBackoff:    cfg.Snapshot.RetryBackoff,
		Prefix:          cfg.Snapshot.Prefix,
		JPEGQuality:     cfg.Snapshot.JPEGQuality,
		BreakerFailures: uint32(cfg.Snapshot.BreakerFailures),
		BreakerCooldown: cfg.Snapshot.BreakerCooldown,
	}, uploader, archiver, camera, appLogger)
	deps.Identity = dispatcher

	eng := engine.New(engine.Config{
		ConfidenceThreshold:  cfg.Detection.ConfidenceThreshold,
		MoveThreshold:        cfg.Detection.MoveThreshold,
		IdleInterval:         cfg.Detection.IdleInterval,
		WarningDwell:         cfg.Detection.WarningDwell,
		UnattendedAfter:      cfg.Detection.UnattendedAfter,
		UnattendedInterval:   cfg.Detection.UnattendedInterval,
		PhoneCooldown:        cfg.Detection.PhoneCooldown,
		TrackTTL:             cfg.Detection.TrackTTL,
		EventLogCapacity:     cfg.Logs.EventCapacity,
		InferenceLogCapacity: cfg.Logs.InferenceCapacity,
	}, dispatcher, appLogger)

	monitor := service.NewMonitorService(eng, camera, forecourt.FrameSize{
		Width:  cfg.Camera.FrameWidth,
		Height: cfg.Camera.FrameHeight,
	}, deps, appLogger)

	if _, err := monitor.LoadRegions(ctx); err != nil {
		appLogger.Error().Err(err).Msg("failed to restore regions, starting with none")
	}

	tokenParser := auth.NewParser(cfg.Auth.AccessSecret)

	handler := httphandler.NewHandler(monitor, cfg, appLogger)
	authMiddleware := middleware.Auth(tokenParser)
	router := httphandler.NewRouter(handler, authMiddleware, cfg.Environment, database, appLogger)

	addr := fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port)

	supervisor := suture.New("forecourt-service", suture.Spec{
		EventHook:        supervisorHook(appLogger),
		FailureThreshold: 5,
		FailureDecay:     30,
		FailureBackoff:   15 * time.Second,
		Timeout:          10 * time.Second,
	})
	supervisor.Add(dispatcher)
	supervisor.Add(httphandler.NewServer(addr, router, 10*time.Second))
	if deps.Store != nil && cfg.Retention.AlertDays > 0 {
		supervisor.Add(service.NewRetentionWorker(monitor, cfg.Retention.AlertDays, cfg.Retention.Interval, appLogger))
	}

	appLogger.Info().
		Str("addr", addr).
		Str("camera_id", camera.CameraID).
		Str("station_number", camera.StationNumber).
		Bool("archive", deps.Store != nil).
		Bool("snapshots", uploader != nil).
		Msg("starting forecourt service")

	if err := supervisor.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		appLogger.Error().Err(err).Msg("supervisor stopped with error")
	}

	appLogger.Info().Msg("server exited")
}

func supervisorHook(log zerolog.Logger) suture.EventHook {
	logger := log.With().Str("component", "supervisor").Logger()
	return func(e suture.Event) {
		logger.Warn().
			Fields(e.Map()).
			Msg(e.String())
	}
}
