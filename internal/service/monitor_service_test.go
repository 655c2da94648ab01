package service

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"forecourt-service/internal/domain/forecourt"
	"forecourt-service/internal/engine"
	"forecourt-service/internal/repository"
)

type savedRegion struct {
	cameraID string
	position int
	label    string
	rect     forecourt.Box
}

type fakeStore struct {
	mu       sync.Mutex
	saved    []savedRegion
	stored   []repository.RegionRecord
	alerts   []repository.AlertRecord
	filter   repository.AlertFilter
	deleted  []repository.AlertRecord
	findErr  error
	purgeDay int
}

func (f *fakeStore) FindAlerts(ctx context.Context, filter repository.AlertFilter) ([]repository.AlertRecord, error) {
	f.filter = filter
	return f.alerts, f.findErr
}

func (f *fakeStore) DeleteOldAlerts(ctx context.Context, days int) ([]repository.AlertRecord, error) {
	f.purgeDay = days
	return f.deleted, nil
}

func (f *fakeStore) SaveRegion(ctx context.Context, cameraID string, position int, label string, rect forecourt.Box) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, savedRegion{cameraID: cameraID, position: position, label: label, rect: rect})
	return nil
}

func (f *fakeStore) ListRegions(ctx context.Context, cameraID string) ([]repository.RegionRecord, error) {
	var result []repository.RegionRecord
	for _, r := range f.stored {
		if r.CameraID == cameraID {
			result = append(result, r)
		}
	}
	return result, nil
}

type fakeIdentity struct {
	got []forecourt.CameraIdentity
}

func (f *fakeIdentity) SetIdentity(camera forecourt.CameraIdentity) {
	f.got = append(f.got, camera)
}

type fakeRemover struct {
	deleted []string
}

func (f *fakeRemover) KeyFromURL(url string) (string, bool) {
	const prefix = "https://cdn.example.com/bucket/"
	if !strings.HasPrefix(url, prefix) {
		return "", false
	}
	return strings.TrimPrefix(url, prefix), true
}

func (f *fakeRemover) Delete(ctx context.Context, key string) error {
	f.deleted = append(f.deleted, key)
	return nil
}

var testCamera = forecourt.CameraIdentity{CustomerID: "cust", CameraID: "cam1", StationNumber: "12"}

func newTestService(deps Dependencies) *MonitorService {
	eng := engine.New(engine.DefaultConfig(), nil, zerolog.Nop())
	return NewMonitorService(eng, testCamera, forecourt.FrameSize{Width: 640, Height: 480}, deps, zerolog.Nop())
}

func pump1() RegionInput {
	return RegionInput{Index: 0, Label: "Pump1", Box: forecourt.Box{X1: 0, Y1: 0, X2: 200, Y2: 200}}
}

func TestProcessFrameValidation(t *testing.T) {
	svc := newTestService(Dependencies{})
	now := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	car := forecourt.Detection{TrackID: 7, ClassID: forecourt.ClassCar, Confidence: 0.9, Box: forecourt.Box{X1: 80, Y1: 80, X2: 120, Y2: 120}}

	tests := []struct {
		name  string
		input FrameInput
	}{
		{name: "missing timestamp", input: FrameInput{Detections: []forecourt.Detection{car}}},
		{name: "negative size", input: FrameInput{Timestamp: now, Width: -1}},
		{name: "nan inference time", input: FrameInput{Timestamp: now, InferenceMs: math.NaN()}},
		{name: "confidence above one", input: FrameInput{Timestamp: now, Detections: []forecourt.Detection{{TrackID: 1, Confidence: 1.2}}}},
		{name: "negative track", input: FrameInput{Timestamp: now, Detections: []forecourt.Detection{{TrackID: -1, Confidence: 0.9}}}},
		{name: "infinite box", input: FrameInput{Timestamp: now, Detections: []forecourt.Detection{{TrackID: 1, Confidence: 0.9, Box: forecourt.Box{X2: math.Inf(1)}}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.ProcessFrame(context.Background(), tt.input)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
	assert.Equal(t, 0, svc.InferenceLog().Len())
}

func TestProcessFrameUpdatesDimensionsAndResult(t *testing.T) {
	svc := newTestService(Dependencies{})
	svc.UpsertRegions(context.Background(), []RegionInput{pump1()})

	assert.Equal(t, forecourt.FrameSize{Width: 640, Height: 480}, svc.FrameDimensions())

	res, err := svc.ProcessFrame(context.Background(), FrameInput{
		Timestamp: time.Now(),
		Width:     1280,
		Height:    720,
		Detections: []forecourt.Detection{
			{TrackID: 7, ClassID: forecourt.ClassCar, Confidence: 0.9, Box: forecourt.Box{X1: 80, Y1: 80, X2: 120, Y2: 120}},
		},
	})
	require.NoError(t, err)
	assert.False(t, res.Skipped)
	assert.Equal(t, []engine.RegionCount{{Region: "Pump1", Vehicles: 1}}, res.Occupancy)
	assert.Equal(t, forecourt.FrameSize{Width: 1280, Height: 720}, svc.FrameDimensions())
	assert.Equal(t, res, svc.LastResult())
	assert.Equal(t, 1, svc.InferenceLog().Len())
}

func TestUpsertRegionsPartialAndPersisted(t *testing.T) {
	store := &fakeStore{}
	svc := newTestService(Dependencies{Store: store})

	first := svc.UpsertRegions(context.Background(), []RegionInput{
		pump1(),
		{Index: 1, Label: "", Box: forecourt.Box{X1: 0, Y1: 0, X2: 10, Y2: 10}},
		{Index: 2, Label: "Pump2", Box: forecourt.Box{X1: 500, Y1: 200, X2: 300, Y2: 0}},
		{Index: 3, Label: "Flat", Box: forecourt.Box{X1: 0, Y1: 5, X2: 100, Y2: 5}},
	})

	require.Len(t, first.Accepted, 2)
	assert.Equal(t, forecourt.Box{X1: 300, Y1: 0, X2: 500, Y2: 200}, first.Accepted[1].Rect)
	require.Len(t, first.Rejected, 2)
	assert.Equal(t, 1, first.Rejected[0].Index)
	assert.Equal(t, 3, first.Rejected[1].Index)
	assert.Equal(t, "Flat", first.Rejected[1].Label)

	// Additive: a later update overwrites Pump1 in place and keeps Pump2.
	second := svc.UpsertRegions(context.Background(), []RegionInput{
		{Index: 0, Label: "Pump1", Box: forecourt.Box{X1: 0, Y1: 0, X2: 250, Y2: 250}},
	})
	require.Len(t, second.Regions, 2)
	assert.Equal(t, "Pump1", second.Regions[0].Label)
	assert.Equal(t, 250.0, second.Regions[0].Rect.X2)

	require.Len(t, store.saved, 3)
	assert.Equal(t, savedRegion{cameraID: "cam1", position: 0, label: "Pump1", rect: forecourt.Box{X2: 200, Y2: 200}}, store.saved[0])
	assert.Equal(t, 1, store.saved[1].position)
	assert.Equal(t, 0, store.saved[2].position)
}

func TestLoadRegions(t *testing.T) {
	store := &fakeStore{stored: []repository.RegionRecord{
		{CameraID: "cam1", Label: "Pump1", Position: 0, X2: 200, Y2: 200},
		{CameraID: "cam1", Label: "Unknown", Position: 1, X2: 10, Y2: 10},
		{CameraID: "cam1", Label: "Pump2", Position: 2, X1: 300, X2: 500, Y2: 200},
		{CameraID: "other", Label: "Elsewhere", Position: 0, X2: 10, Y2: 10},
	}}
	svc := newTestService(Dependencies{Store: store})

	loaded, err := svc.LoadRegions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, loaded)

	regions := svc.Regions()
	require.Len(t, regions, 2)
	assert.Equal(t, "Pump1", regions[0].Label)
	assert.Equal(t, "Pump2", regions[1].Label)

	none := newTestService(Dependencies{})
	loaded, err = none.LoadRegions(context.Background())
	require.NoError(t, err)
	assert.Zero(t, loaded)
}

func TestUpdateCamera(t *testing.T) {
	identity := &fakeIdentity{}
	svc := newTestService(Dependencies{Identity: identity})

	station := "  14 "
	camera, err := svc.UpdateCamera(CameraUpdate{StationNumber: &station})
	require.NoError(t, err)
	assert.Equal(t, forecourt.CameraIdentity{CustomerID: "cust", CameraID: "cam1", StationNumber: "14"}, camera)
	assert.Equal(t, camera, svc.Camera())
	require.Len(t, identity.got, 1)
	assert.Equal(t, camera, identity.got[0])

	_, err = svc.UpdateCamera(CameraUpdate{})
	assert.ErrorIs(t, err, ErrInvalidInput)

	blank := " "
	_, err = svc.UpdateCamera(CameraUpdate{CameraID: &blank})
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Equal(t, camera, svc.Camera(), "failed update leaves identity unchanged")
}

func TestFindAlerts(t *testing.T) {
	_, err := newTestService(Dependencies{}).FindAlerts(context.Background(), AlertQuery{})
	assert.ErrorIs(t, err, ErrUnavailable)

	url := "https://cdn.example.com/bucket/snapshots/a.jpg"
	store := &fakeStore{alerts: []repository.AlertRecord{{
		ID:          uuid.New(),
		Kind:        "mobile_user",
		TrackID:     3,
		Region:      "Pump1",
		Message:     "ALERT: Person 3 using mobile phone in ROI: Pump1",
		CameraID:    "cam1",
		SnapshotURL: &url,
		Box:         datatypes.JSON(`[1,2,3,4]`),
		EventTime:   time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC),
	}}}
	svc := newTestService(Dependencies{Store: store})

	kind := "mobile_user"
	from := "2025-06-01T00:00:00Z"
	alerts, err := svc.FindAlerts(context.Background(), AlertQuery{Kind: &kind, From: &from, Limit: 10, Offset: -5})
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, forecourt.Box{X1: 1, Y1: 2, X2: 3, Y2: 4}, alerts[0].Box)
	assert.Equal(t, &url, alerts[0].SnapshotURL)
	require.NotNil(t, store.filter.Kind)
	assert.Equal(t, "mobile_user", *store.filter.Kind)
	assert.NotNil(t, store.filter.From)
	assert.Zero(t, store.filter.Offset)

	bad := "speeding"
	_, err = svc.FindAlerts(context.Background(), AlertQuery{Kind: &bad})
	assert.ErrorIs(t, err, ErrInvalidInput)

	badTime := "yesterday"
	_, err = svc.FindAlerts(context.Background(), AlertQuery{To: &badTime})
	assert.ErrorIs(t, err, ErrInvalidInput)

	store.findErr = errors.New("connection refused")
	_, err = svc.FindAlerts(context.Background(), AlertQuery{})
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidInput)
}

func TestCleanupOldAlerts(t *testing.T) {
	kept := "https://elsewhere.example.com/x.jpg"
	stored := "https://cdn.example.com/bucket/snapshots/a.jpg"
	store := &fakeStore{deleted: []repository.AlertRecord{
		{ID: uuid.New(), SnapshotURL: &stored},
		{ID: uuid.New(), SnapshotURL: &kept},
		{ID: uuid.New()},
	}}
	remover := &fakeRemover{}
	svc := newTestService(Dependencies{Store: store, Snapshots: remover})

	n, err := svc.CleanupOldAlerts(context.Background(), 30)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 30, store.purgeDay)
	assert.Equal(t, []string{"snapshots/a.jpg"}, remover.deleted)

	n, err = svc.CleanupOldAlerts(context.Background(), 0)
	require.NoError(t, err)
	assert.Zero(t, n, "zero days disables retention")
}

func TestRetentionWorkerStopsOnCancel(t *testing.T) {
	store := &fakeStore{}
	svc := newTestService(Dependencies{Store: store})
	worker := NewRetentionWorker(svc, 7, time.Hour, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- worker.Serve(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("retention worker did not stop")
	}
	assert.Equal(t, "alert-retention", worker.String())
}
