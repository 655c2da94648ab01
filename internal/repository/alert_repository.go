package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"forecourt-service/internal/domain/forecourt"
)

const (
	defaultAlertLimit = 50
	maxAlertLimit     = 100
)

type AlertRepository struct {
	db *gorm.DB
}

func NewAlertRepository(db *gorm.DB) *AlertRepository {
	return &AlertRepository{db: db}
}

func (AlertRecord) TableName() string {
	return "forecourt_alerts"
}

func (RegionRecord) TableName() string {
	return "forecourt_regions"
}

type AlertRecord struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey;default:uuid_generate_v4()"`
	Kind          string    `gorm:"not null"`
	TrackID       int64     `gorm:"not null"`
	Region        string    `gorm:"not null"`
	Message       string    `gorm:"not null"`
	Level         int       `gorm:"not null"`
	CustomerID    string    `gorm:"not null"`
	CameraID      string    `gorm:"not null"`
	StationNumber string    `gorm:"not null"`
	SnapshotURL   *string
	Box           datatypes.JSON `gorm:"type:jsonb"`
	EventTime     time.Time      `gorm:"not null"`
	CreatedAt     time.Time
}

type RegionRecord struct {
	CameraID  string `gorm:"primaryKey"`
	Label     string `gorm:"primaryKey"`
	Position  int    `gorm:"not null"`
	X1        float64
	Y1        float64
	X2        float64
	Y2        float64
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (r RegionRecord) Rect() forecourt.Box {
	return forecourt.Box{X1: r.X1, Y1: r.Y1, X2: r.X2, Y2: r.Y2}
}

type AlertFilter struct {
	Kind     *string
	Region   *string
	CameraID *string
	From     *time.Time
	To       *time.Time
	Limit    int
	Offset   int
}

func newAlertRecord(alert forecourt.Alert, camera forecourt.CameraIdentity, snapshotURL string) (AlertRecord, error) {
	box, err := json.Marshal(alert.Box)
	if err != nil {
		return AlertRecord{}, fmt.Errorf("marshal box: %w", err)
	}

	record := AlertRecord{
		ID:            uuid.New(),
		Kind:          string(alert.Kind),
		TrackID:       alert.TrackID,
		Region:        alert.Region,
		Message:       alert.Message,
		Level:         alert.Level,
		CustomerID:    camera.CustomerID,
		CameraID:      camera.CameraID,
		StationNumber: camera.StationNumber,
		Box:           datatypes.JSON(box),
		EventTime:     alert.At.UTC(),
		CreatedAt:     time.Now().UTC(),
	}
	if snapshotURL != "" {
		record.SnapshotURL = &snapshotURL
	}
	return record, nil
}

// ArchiveAlert stores alert together with the camera it came from and its snapshot URL.
func (r *AlertRepository) ArchiveAlert(ctx context.Context, alert forecourt.Alert, camera forecourt.CameraIdentity, snapshotURL string) error {
	record, err := newAlertRecord(alert, camera, snapshotURL)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Create(&record).Error; err != nil {
		return fmt.Errorf("failed to archive alert in database: %w", err)
	}
	return nil
}

func (r *AlertRepository) FindAlerts(ctx context.Context, filter AlertFilter) ([]AlertRecord, error) {
	query := r.db.WithContext(ctx).Model(&AlertRecord{})

	if filter.Kind != nil {
		query = query.Where("kind = ?", *filter.Kind)
	}
	if filter.Region != nil {
		query = query.Where("region = ?", *filter.Region)
	}
	if filter.CameraID != nil {
		query = query.Where("camera_id = ?", *filter.CameraID)
	}
	if filter.From != nil {
		query = query.Where("event_time >= ?", *filter.From)
	}
	if filter.To != nil {
		query = query.Where("event_time <= ?", *filter.To)
	}

	query = query.Order("event_time DESC").Limit(clampLimit(filter.Limit))
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}

	var alerts []AlertRecord
	err := query.Find(&alerts).Error
	return alerts, err
}

// DeleteOldAlerts removes alerts older than days and returns the removed rows.
func (r *AlertRepository) DeleteOldAlerts(ctx context.Context, days int) ([]AlertRecord, error) {
	if days <= 0 {
		return nil, nil
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -days)

	var deleted []AlertRecord
	err := r.db.WithContext(ctx).
		Clauses(clause.Returning{}).
		Where("event_time < ?", cutoff).
		Delete(&deleted).Error
	if err != nil {
		return nil, fmt.Errorf("failed to delete old alerts: %w", err)
	}
	return deleted, nil
}

// SaveRegion inserts or updates a region. An existing region keeps its original position.
func (r *AlertRepository) SaveRegion(ctx context.Context, cameraID string, position int, label string, rect forecourt.Box) error {
	now := time.Now().UTC()
	record := RegionRecord{
		CameraID:  cameraID,
		Label:     label,
		Position:  position,
		X1:        rect.X1,
		Y1:        rect.Y1,
		X2:        rect.X2,
		Y2:        rect.Y2,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "camera_id"}, {Name: "label"}},
			DoUpdates: clause.AssignmentColumns([]string{"x1", "y1", "x2", "y2", "updated_at"}),
		}).
		Create(&record).Error
	if err != nil {
		return fmt.Errorf("failed to save region %q: %w", label, err)
	}
	return nil
}

// ListRegions returns the regions of cameraID in insertion order.
func (r *AlertRepository) ListRegions(ctx context.Context, cameraID string) ([]RegionRecord, error) {
	var regions []RegionRecord
	err := r.db.WithContext(ctx).
		Where("camera_id = ?", cameraID).
		Order("position ASC").
		Find(&regions).Error
	return regions, err
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultAlertLimit
	}
	if limit > maxAlertLimit {
		return maxAlertLimit
	}
	return limit
}
