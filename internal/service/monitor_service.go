package service

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"forecourt-service/internal/domain/forecourt"
	"forecourt-service/internal/engine"
	"forecourt-service/internal/eventlog"
	"forecourt-service/internal/region"
	"forecourt-service/internal/repository"
	"forecourt-service/internal/utils"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
	ErrUnavailable  = errors.New("unavailable")
)

// AlertStore is the alert archive and region store. *repository.AlertRepository satisfies it.
type AlertStore interface {
	FindAlerts(ctx context.Context, filter repository.AlertFilter) ([]repository.AlertRecord, error)
	DeleteOldAlerts(ctx context.Context, days int) ([]repository.AlertRecord, error)
	SaveRegion(ctx context.Context, cameraID string, position int, label string, rect forecourt.Box) error
	ListRegions(ctx context.Context, cameraID string) ([]repository.RegionRecord, error)
}

// IdentitySink receives camera identity changes. *snapshot.Dispatcher satisfies it.
type IdentitySink interface {
	SetIdentity(camera forecourt.CameraIdentity)
}

// SnapshotRemover deletes stored snapshots. *storage.R2Client satisfies it.
type SnapshotRemover interface {
	KeyFromURL(url string) (string, bool)
	Delete(ctx context.Context, key string) error
}

// Dependencies are optional collaborators; leave a field nil when the backing system is not configured.
type Dependencies struct {
	Store     AlertStore
	Identity  IdentitySink
	Snapshots SnapshotRemover
}

type MonitorService struct {
	// mu serializes every call into the engine.
	mu         sync.Mutex
	engine     *engine.Engine
	lastResult engine.FrameResult

	stateMu   sync.RWMutex
	camera    forecourt.CameraIdentity
	frameSize forecourt.FrameSize

	deps Dependencies
	log  zerolog.Logger
}

func NewMonitorService(eng *engine.Engine, camera forecourt.CameraIdentity, frameSize forecourt.FrameSize, deps Dependencies, log zerolog.Logger) *MonitorService {
	return &MonitorService{
		engine:     eng,
		lastResult: engine.FrameResult{Skipped: true, Occupancy: eng.EmptyOccupancy()},
		camera:     camera,
		frameSize:  frameSize,
		deps:       deps,
		log:        log.With().Str("component", "monitor").Logger(),
	}
}

type FrameInput struct {
	Timestamp   time.Time
	Detections  []forecourt.Detection
	InferenceMs float64
	Width       int
	Height      int
	Image       image.Image
}

// ProcessFrame validates a tracker frame and runs it through the engine.
func (s *MonitorService) ProcessFrame(ctx context.Context, input FrameInput) (engine.FrameResult, error) {
	if err := ctx.Err(); err != nil {
		return engine.FrameResult{}, err
	}
	if input.Timestamp.IsZero() {
		return engine.FrameResult{}, fmt.Errorf("%w: timestamp is required", ErrInvalidInput)
	}
	if input.Width < 0 || input.Height < 0 {
		return engine.FrameResult{}, fmt.Errorf("%w: frame dimensions cannot be negative", ErrInvalidInput)
	}
	if input.InferenceMs < 0 || math.IsNaN(input.InferenceMs) || math.IsInf(input.InferenceMs, 0) {
		return engine.FrameResult{}, fmt.Errorf("%w: inference_ms must be a non-negative number", ErrInvalidInput)
	}
	for i, det := range input.Detections {
		if err := validateDetection(det); err != nil {
			return engine.FrameResult{}, fmt.Errorf("%w: detection %d: %v", ErrInvalidInput, i, err)
		}
	}

	if input.Width > 0 && input.Height > 0 {
		s.stateMu.Lock()
		s.frameSize = forecourt.FrameSize{Width: input.Width, Height: input.Height}
		s.stateMu.Unlock()
	}

	frame := forecourt.Frame{
		Timestamp:   input.Timestamp,
		Detections:  input.Detections,
		InferenceMs: input.InferenceMs,
		Width:       input.Width,
		Height:      input.Height,
		Image:       input.Image,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.engine.Evaluate(frame)
	if err != nil {
		if errors.Is(err, engine.ErrInvalidFrame) {
			return engine.FrameResult{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		return engine.FrameResult{}, err
	}
	s.lastResult = result

	if len(result.Alerts) > 0 {
		s.log.Debug().
			Time("frame_time", input.Timestamp).
			Int("detections", len(input.Detections)).
			Int("alerts", len(result.Alerts)).
			Msg("frame produced alerts")
	}
	return result, nil
}

func validateDetection(det forecourt.Detection) error {
	if det.TrackID < 0 {
		return fmt.Errorf("track_id cannot be negative")
	}
	if det.Confidence < 0 || det.Confidence > 1 || math.IsNaN(det.Confidence) {
		return fmt.Errorf("confidence must be within [0, 1]")
	}
	if !det.Box.Finite() {
		return fmt.Errorf("box coordinates must be finite")
	}
	return nil
}

// LastResult returns the outcome of the most recent evaluated or skipped frame.
func (s *MonitorService) LastResult() engine.FrameResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastResult
}

type RegionInput struct {
	Index int
	Label string
	Box   forecourt.Box
}

type RegionRejection struct {
	Index  int    `json:"index"`
	Label  string `json:"label,omitempty"`
	Reason string `json:"reason"`
}

type RegionUpdateResult struct {
	Accepted []region.Region   `json:"accepted"`
	Rejected []RegionRejection `json:"rejected"`
	Regions  []region.Region   `json:"regions"`
}

// UpsertRegions merges inputs into the registry. Each entry is applied or
// rejected on its own; a bad entry never blocks the others.
func (s *MonitorService) UpsertRegions(ctx context.Context, inputs []RegionInput) RegionUpdateResult {
	result := RegionUpdateResult{
		Accepted: []region.Region{},
		Rejected: []RegionRejection{},
	}

	s.mu.Lock()
	for _, in := range inputs {
		r, err := s.engine.UpsertRegion(in.Label, in.Box)
		if err != nil {
			result.Rejected = append(result.Rejected, RegionRejection{
				Index:  in.Index,
				Label:  in.Label,
				Reason: err.Error(),
			})
			continue
		}
		result.Accepted = append(result.Accepted, r)
	}
	result.Regions = s.engine.Regions()
	s.mu.Unlock()

	if len(result.Rejected) > 0 {
		s.log.Warn().
			Int("accepted", len(result.Accepted)).
			Int("rejected", len(result.Rejected)).
			Msg("some region entries were rejected")
	}

	s.persistRegions(ctx, result.Accepted, result.Regions)
	return result
}

func (s *MonitorService) persistRegions(ctx context.Context, accepted, all []region.Region) {
	if s.deps.Store == nil || len(accepted) == 0 {
		return
	}

	position := make(map[string]int, len(all))
	for i, r := range all {
		position[r.Label] = i
	}

	cameraID := s.Camera().CameraID
	for _, r := range accepted {
		if err := s.deps.Store.SaveRegion(ctx, cameraID, position[r.Label], r.Label, r.Rect); err != nil {
			s.log.Error().
				Err(err).
				Str("region", r.Label).
				Str("camera_id", cameraID).
				Msg("failed to persist region")
		}
	}
}

// LoadRegions restores the persisted regions of the current camera.
func (s *MonitorService) LoadRegions(ctx context.Context) (int, error) {
	if s.deps.Store == nil {
		return 0, nil
	}

	cameraID := s.Camera().CameraID
	records, err := s.deps.Store.ListRegions(ctx, cameraID)
	if err != nil {
		return 0, fmt.Errorf("failed to load regions: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	loaded := 0
	for _, rec := range records {
		if _, err := s.engine.UpsertRegion(rec.Label, rec.Rect()); err != nil {
			s.log.Warn().
				Err(err).
				Str("region", rec.Label).
				Msg("skipping stored region")
			continue
		}
		loaded++
	}

	s.log.Info().
		Str("camera_id", cameraID).
		Int("regions", loaded).
		Msg("regions restored")
	return loaded, nil
}

func (s *MonitorService) Regions() []region.Region {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Regions()
}

// EventLog is read without the engine lock.
func (s *MonitorService) EventLog() *eventlog.Log {
	return s.engine.Events()
}

// InferenceLog is read without the engine lock.
func (s *MonitorService) InferenceLog() *eventlog.Log {
	return s.engine.Inferences()
}

func (s *MonitorService) Camera() forecourt.CameraIdentity {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.camera
}

type CameraUpdate struct {
	CustomerID    *string `json:"customer_id"`
	CameraID      *string `json:"camera_id"`
	StationNumber *string `json:"station_number"`
}

// UpdateCamera changes the provided identity fields and keeps the others.
func (s *MonitorService) UpdateCamera(update CameraUpdate) (forecourt.CameraIdentity, error) {
	if update.CustomerID == nil && update.CameraID == nil && update.StationNumber == nil {
		return forecourt.CameraIdentity{}, fmt.Errorf("%w: at least one of customer_id, camera_id, station_number is required", ErrInvalidInput)
	}

	s.stateMu.Lock()
	camera := s.camera
	for _, field := range []struct {
		name  string
		value *string
		dst   *string
	}{
		{name: "customer_id", value: update.CustomerID, dst: &camera.CustomerID},
		{name: "camera_id", value: update.CameraID, dst: &camera.CameraID},
		{name: "station_number", value: update.StationNumber, dst: &camera.StationNumber},
	} {
		if field.value == nil {
			continue
		}
		v := utils.NormalizeLabel(*field.value)
		if v == "" {
			s.stateMu.Unlock()
			return forecourt.CameraIdentity{}, fmt.Errorf("%w: %s cannot be empty", ErrInvalidInput, field.name)
		}
		*field.dst = v
	}
	s.camera = camera
	s.stateMu.Unlock()

	if s.deps.Identity != nil {
		s.deps.Identity.SetIdentity(camera)
	}

	s.log.Info().
		Str("customer_id", camera.CustomerID).
		Str("camera_id", camera.CameraID).
		Str("station_number", camera.StationNumber).
		Msg("camera identity updated")
	return camera, nil
}

func (s *MonitorService) FrameDimensions() forecourt.FrameSize {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.frameSize
}

type AlertQuery struct {
	Kind   *string
	Region *string
	From   *string
	To     *string
	Limit  int
	Offset int
}

type AlertInfo struct {
	ID            string        `json:"id"`
	Kind          string        `json:"kind"`
	TrackID       int64         `json:"track_id"`
	Region        string        `json:"region"`
	Message       string        `json:"message"`
	Level         int           `json:"level,omitempty"`
	CustomerID    string        `json:"customer_id"`
	CameraID      string        `json:"camera_id"`
	StationNumber string        `json:"station_number"`
	SnapshotURL   *string       `json:"snapshot_url,omitempty"`
	Box           forecourt.Box `json:"box"`
	EventTime     time.Time     `json:"event_time"`
}

// FindAlerts searches the alert archive, newest first.
func (s *MonitorService) FindAlerts(ctx context.Context, query AlertQuery) ([]AlertInfo, error) {
	if s.deps.Store == nil {
		return nil, fmt.Errorf("%w: alert archive is not configured", ErrUnavailable)
	}

	filter := repository.AlertFilter{
		Region: query.Region,
		Limit:  query.Limit,
		Offset: query.Offset,
	}
	if query.Kind != nil {
		kind := strings.TrimSpace(*query.Kind)
		switch forecourt.EventKind(kind) {
		case forecourt.EventIdleVehicle, forecourt.EventUnattendedVehicle, forecourt.EventMobileUser:
			filter.Kind = &kind
		default:
			return nil, fmt.Errorf("%w: unknown alert kind %q", ErrInvalidInput, kind)
		}
	}
	if query.From != nil && *query.From != "" {
		t, err := time.Parse(time.RFC3339, *query.From)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid from time format", ErrInvalidInput)
		}
		filter.From = &t
	}
	if query.To != nil && *query.To != "" {
		t, err := time.Parse(time.RFC3339, *query.To)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid to time format", ErrInvalidInput)
		}
		filter.To = &t
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	records, err := s.deps.Store.FindAlerts(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to find alerts: %w", err)
	}

	result := make([]AlertInfo, 0, len(records))
	for _, rec := range records {
		info := AlertInfo{
			ID:            rec.ID.String(),
			Kind:          rec.Kind,
			TrackID:       rec.TrackID,
			Region:        rec.Region,
			Message:       rec.Message,
			Level:         rec.Level,
			CustomerID:    rec.CustomerID,
			CameraID:      rec.CameraID,
			StationNumber: rec.StationNumber,
			SnapshotURL:   rec.SnapshotURL,
			EventTime:     rec.EventTime,
		}
		if len(rec.Box) > 0 {
			if err := info.Box.UnmarshalJSON(rec.Box); err != nil {
				s.log.Warn().Err(err).Str("alert_id", info.ID).Msg("stored alert has malformed box")
			}
		}
		result = append(result, info)
	}
	return result, nil
}

// CleanupOldAlerts deletes archived alerts older than days together with their snapshots.
func (s *MonitorService) CleanupOldAlerts(ctx context.Context, days int) (int, error) {
	if s.deps.Store == nil || days <= 0 {
		return 0, nil
	}

	deleted, err := s.deps.Store.DeleteOldAlerts(ctx, days)
	if err != nil {
		s.log.Error().Err(err).Int("days", days).Msg("failed to cleanup old alerts")
		return 0, err
	}

	removedSnapshots := 0
	if s.deps.Snapshots != nil {
		for _, rec := range deleted {
			if rec.SnapshotURL == nil {
				continue
			}
			key, ok := s.deps.Snapshots.KeyFromURL(*rec.SnapshotURL)
			if !ok {
				continue
			}
			if err := s.deps.Snapshots.Delete(ctx, key); err != nil {
				s.log.Warn().Err(err).Str("key", key).Msg("failed to delete snapshot")
				continue
			}
			removedSnapshots++
		}
	}

	if len(deleted) > 0 {
		s.log.Info().
			Int("deleted_count", len(deleted)).
			Int("snapshots_deleted", removedSnapshots).
			Int("days", days).
			Msg("cleaned up old alerts")
	}
	return len(deleted), nil
}
