// Package engine turns per-frame tracker output into forecourt alerts.
//
// An Engine owns the region registry, the vehicle state store and the two
// bounded logs. Evaluate is the only method that mutates tracking state and it
// must be called from a single goroutine at a time; the logs it writes to are
// safe to read concurrently.
//
// Per frame the engine filters detections by confidence, assigns each one to
// a region, counts occupancy, runs the unattended and idle evaluators for every
// vehicle and finally pairs persons with phones. Alerts are appended to the
// event log and a snapshot is requested for each; snapshot delivery happens
// elsewhere and never blocks evaluation.
package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"forecourt-service/internal/domain/forecourt"
	"forecourt-service/internal/eventlog"
	"forecourt-service/internal/metrics"
	"forecourt-service/internal/region"
)

var ErrInvalidFrame = errors.New("invalid frame")

// Capturer accepts snapshot requests and returns the filename the snapshot will be stored under.
type Capturer interface {
	Capture(req forecourt.CaptureRequest) (string, error)
}

type Config struct {
	ConfidenceThreshold float64
	// MoveThreshold is the centre displacement in pixels that starts a new dwell episode.
	MoveThreshold      float64
	IdleInterval       time.Duration
	WarningDwell       time.Duration
	UnattendedAfter    time.Duration
	UnattendedInterval time.Duration
	// PhoneCooldown of zero raises a phone-use alert on every frame the overlap persists.
	PhoneCooldown        time.Duration
	TrackTTL             time.Duration
	EventLogCapacity     int
	InferenceLogCapacity int
}

func DefaultConfig() Config {
	return Config{
		ConfidenceThreshold:  0.7,
		MoveThreshold:        40,
		IdleInterval:         3 * time.Minute,
		WarningDwell:         45 * time.Second,
		UnattendedAfter:      30 * time.Second,
		UnattendedInterval:   30 * time.Second,
		PhoneCooldown:        0,
		TrackTTL:             5 * time.Minute,
		EventLogCapacity:     eventlog.DefaultCapacity,
		InferenceLogCapacity: eventlog.DefaultCapacity,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MoveThreshold <= 0 {
		c.MoveThreshold = d.MoveThreshold
	}
	if c.IdleInterval <= 0 {
		c.IdleInterval = d.IdleInterval
	}
	if c.WarningDwell <= 0 {
		c.WarningDwell = d.WarningDwell
	}
	if c.UnattendedAfter <= 0 {
		c.UnattendedAfter = d.UnattendedAfter
	}
	if c.UnattendedInterval <= 0 {
		c.UnattendedInterval = d.UnattendedInterval
	}
	if c.TrackTTL <= 0 {
		c.TrackTTL = d.TrackTTL
	}
	if c.PhoneCooldown < 0 {
		c.PhoneCooldown = 0
	}
	return c
}

type Tier string

const (
	TierNormal  Tier = "normal"
	TierWarning Tier = "warning"
	TierAlert   Tier = "alert"
)

type RegionCount struct {
	Region   string `json:"region"`
	Persons  int    `json:"persons"`
	Vehicles int    `json:"vehicles"`
}

type VehicleStatus struct {
	TrackID           int64   `json:"track_id"`
	Label             string  `json:"label"`
	Region            string  `json:"region"`
	Tier              Tier    `json:"tier"`
	DwellSeconds      float64 `json:"dwell_seconds"`
	UnattendedSeconds float64 `json:"unattended_seconds"`
	IdleLevel         int     `json:"idle_level"`
}

type FrameResult struct {
	Skipped   bool              `json:"skipped"`
	Occupancy []RegionCount     `json:"occupancy"`
	Vehicles  []VehicleStatus   `json:"vehicles"`
	Alerts    []forecourt.Alert `json:"alerts"`
	Evicted   int               `json:"evicted"`
}

type Engine struct {
	cfg        Config
	regions    *region.Registry
	vehicles   *vehicleStore
	phones     *phoneDetector
	events     *eventlog.Log
	inferences *eventlog.Log
	capturer   Capturer
	log        zerolog.Logger
}

// New builds an engine. capturer may be nil, in which case alerts carry no snapshot.
func New(cfg Config, capturer Capturer, log zerolog.Logger) *Engine {
	cfg = cfg.withDefaults()
	return &Engine{
		cfg:        cfg,
		regions:    region.NewRegistry(),
		vehicles:   newVehicleStore(cfg.MoveThreshold),
		phones:     newPhoneDetector(cfg.PhoneCooldown),
		events:     eventlog.New(cfg.EventLogCapacity),
		inferences: eventlog.New(cfg.InferenceLogCapacity),
		capturer:   capturer,
		log:        log.With().Str("component", "engine").Logger(),
	}
}

func (e *Engine) Config() Config {
	return e.cfg
}

func (e *Engine) UpsertRegion(label string, rect forecourt.Box) (region.Region, error) {
	r, err := e.regions.Upsert(label, rect)
	if err != nil {
		return region.Region{}, err
	}
	e.log.Info().
		Str("region", r.Label).
		Float64("x1", r.Rect.X1).
		Float64("y1", r.Rect.Y1).
		Float64("x2", r.Rect.X2).
		Float64("y2", r.Rect.Y2).
		Msg("region updated")
	return r, nil
}

func (e *Engine) Regions() []region.Region {
	return e.regions.Regions()
}

// Events is safe to read concurrently with Evaluate.
func (e *Engine) Events() *eventlog.Log {
	return e.events
}

// Inferences is safe to read concurrently with Evaluate.
func (e *Engine) Inferences() *eventlog.Log {
	return e.inferences
}

func (e *Engine) TrackedVehicles() int {
	return e.vehicles.len()
}

// Vehicle returns a copy of the state held for trackID.
func (e *Engine) Vehicle(trackID int64) (VehicleState, bool) {
	st, ok := e.vehicles.get(trackID)
	if !ok {
		return VehicleState{}, false
	}
	return st.clone(), true
}

// EmptyOccupancy returns zero counts for every registered region.
func (e *Engine) EmptyOccupancy() []RegionCount {
	labels := e.regions.Labels()
	counts := make([]RegionCount, len(labels))
	for i, label := range labels {
		counts[i] = RegionCount{Region: label}
	}
	return counts
}

type located struct {
	det    forecourt.Detection
	region string
}

// Evaluate runs the full alerting pipeline for one frame. A frame without
// detections is skipped without touching any state.
func (e *Engine) Evaluate(frame forecourt.Frame) (FrameResult, error) {
	if len(frame.Detections) == 0 {
		metrics.FramesProcessed.WithLabelValues("skipped").Inc()
		return FrameResult{Skipped: true, Occupancy: e.EmptyOccupancy()}, nil
	}
	if frame.Timestamp.IsZero() {
		metrics.FramesProcessed.WithLabelValues("rejected").Inc()
		return FrameResult{}, fmt.Errorf("%w: timestamp is required", ErrInvalidFrame)
	}

	start := time.Now()
	now := frame.Timestamp

	occupancy := e.EmptyOccupancy()
	index := make(map[string]int, len(occupancy))
	for i, c := range occupancy {
		index[c.Region] = i
	}

	var persons, phones, vehicles []located
	for _, det := range frame.Detections {
		if det.Confidence < e.cfg.ConfidenceThreshold {
			continue
		}
		label := e.regions.Assign(det.Box)

		switch forecourt.Categorize(det.ClassID) {
		case forecourt.CategoryPerson:
			persons = append(persons, located{det: det, region: label})
			if i, ok := index[label]; ok {
				occupancy[i].Persons++
			}
		case forecourt.CategoryPhone:
			phones = append(phones, located{det: det, region: label})
		case forecourt.CategoryVehicle:
			i, ok := index[label]
			if !ok {
				continue
			}
			occupancy[i].Vehicles++
			vehicles = append(vehicles, located{det: det, region: label})
		}
	}

	attended := make(map[string]bool, len(persons))
	for _, p := range persons {
		if p.region != region.Unknown {
			attended[p.region] = true
		}
	}

	result := FrameResult{Occupancy: occupancy}
	for _, v := range vehicles {
		st := e.vehicles.observe(v.det.TrackID, v.region, v.det.Box.Center(), now)

		if alert := e.evaluateUnattended(v, st, attended[v.region], now); alert != nil {
			result.Alerts = append(result.Alerts, e.emit(*alert, frame))
		}

		tier, alert := e.evaluateDwell(v, st, now)
		if alert != nil {
			result.Alerts = append(result.Alerts, e.emit(*alert, frame))
		}

		result.Vehicles = append(result.Vehicles, VehicleStatus{
			TrackID:           v.det.TrackID,
			Label:             v.det.Label(),
			Region:            v.region,
			Tier:              tier,
			DwellSeconds:      now.Sub(st.DwellStart).Seconds(),
			UnattendedSeconds: now.Sub(st.LastAttended).Seconds(),
			IdleLevel:         st.IdleLevel,
		})
	}

	for _, alert := range e.evaluatePhoneUse(persons, phones, now) {
		result.Alerts = append(result.Alerts, e.emit(alert, frame))
	}

	e.inferences.Append(eventlog.Entry{
		Kind:    eventlog.KindInference,
		Message: inferenceSummary(frame),
		At:      now,
	})

	result.Evicted = e.prune(now)

	metrics.FramesProcessed.WithLabelValues("evaluated").Inc()
	metrics.FrameEvaluationDuration.Observe(time.Since(start).Seconds())
	metrics.TrackedVehicles.Set(float64(e.vehicles.len()))

	return result, nil
}

// emit requests a snapshot for alert and records it in the event log. The
// alert is logged whether or not the snapshot request was accepted.
func (e *Engine) emit(alert forecourt.Alert, frame forecourt.Frame) forecourt.Alert {
	if e.capturer != nil {
		filename, err := e.capturer.Capture(forecourt.CaptureRequest{Alert: alert, Image: frame.Image})
		if err != nil {
			e.log.Warn().
				Err(err).
				Str("kind", string(alert.Kind)).
				Int64("track_id", alert.TrackID).
				Msg("snapshot request rejected")
		} else {
			alert.Snapshot = filename
		}
	}

	e.events.Append(eventlog.FromAlert(alert))
	metrics.AlertsEmitted.WithLabelValues(string(alert.Kind)).Inc()

	e.log.Info().
		Str("kind", string(alert.Kind)).
		Str("region", alert.Region).
		Int64("track_id", alert.TrackID).
		Int("level", alert.Level).
		Str("snapshot", alert.Snapshot).
		Msg(alert.Message)

	return alert
}

func (e *Engine) prune(now time.Time) int {
	evicted := e.vehicles.prune(now, e.cfg.TrackTTL)
	e.phones.prune(now, e.cfg.TrackTTL)
	if len(evicted) > 0 {
		metrics.EvictedTracks.Add(float64(len(evicted)))
		e.log.Debug().
			Interface("track_ids", evicted).
			Msg("evicted stale vehicle tracks")
	}
	return len(evicted)
}
