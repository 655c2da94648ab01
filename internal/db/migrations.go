package db

import (
	"fmt"

	"gorm.io/gorm"
)

var migrationStatements = []string{
	`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`,

	// Alerts raised by the engine, with the snapshot stored for each.
	`CREATE TABLE IF NOT EXISTS forecourt_alerts (
		id              UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		kind            TEXT NOT NULL,
		track_id        BIGINT NOT NULL,
		region          TEXT NOT NULL,
		message         TEXT NOT NULL,
		level           INT NOT NULL DEFAULT 0,
		customer_id     TEXT NOT NULL,
		camera_id       TEXT NOT NULL,
		station_number  TEXT NOT NULL,
		snapshot_url    TEXT,
		box             JSONB,
		event_time      TIMESTAMPTZ NOT NULL,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
	`CREATE INDEX IF NOT EXISTS idx_forecourt_alerts_event_time ON forecourt_alerts(event_time DESC);`,
	`CREATE INDEX IF NOT EXISTS idx_forecourt_alerts_kind_time ON forecourt_alerts(kind, event_time DESC);`,
	`CREATE INDEX IF NOT EXISTS idx_forecourt_alerts_camera ON forecourt_alerts(camera_id, station_number);`,

	// Monitoring regions, keyed by camera so a restart restores the same layout.
	`CREATE TABLE IF NOT EXISTS forecourt_regions (
		camera_id   TEXT NOT NULL,
		label       TEXT NOT NULL,
		position    INT NOT NULL,
		x1          DOUBLE PRECISION NOT NULL,
		y1          DOUBLE PRECISION NOT NULL,
		x2          DOUBLE PRECISION NOT NULL,
		y2          DOUBLE PRECISION NOT NULL,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (camera_id, label)
	);`,
	`CREATE INDEX IF NOT EXISTS idx_forecourt_regions_position ON forecourt_regions(camera_id, position);`,
}

func runMigrations(db *gorm.DB) error {
	for i, stmt := range migrationStatements {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}
