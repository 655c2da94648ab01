package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// RetentionWorker periodically removes archived alerts older than the retention window.
type RetentionWorker struct {
	svc      *MonitorService
	days     int
	interval time.Duration
	log      zerolog.Logger
}

func NewRetentionWorker(svc *MonitorService, days int, interval time.Duration, log zerolog.Logger) *RetentionWorker {
	if interval <= 0 {
		interval = time.Hour
	}
	return &RetentionWorker{
		svc:      svc,
		days:     days,
		interval: interval,
		log:      log.With().Str("component", "retention").Logger(),
	}
}

func (w *RetentionWorker) Serve(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.runOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

func (w *RetentionWorker) runOnce(ctx context.Context) {
	if _, err := w.svc.CleanupOldAlerts(ctx, w.days); err != nil {
		w.log.Warn().Err(err).Msg("alert retention run failed")
	}
}

func (w *RetentionWorker) String() string {
	return "alert-retention"
}
