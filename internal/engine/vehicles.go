package engine

import (
	"sort"
	"time"

	"forecourt-service/internal/domain/forecourt"
)

// VehicleState is the temporal bookkeeping kept per vehicle track.
type VehicleState struct {
	TrackID      int64
	Region       string
	DwellStart   time.Time
	LastAttended time.Time
	Center       forecourt.Point
	// IdleLevel never decreases; a new dwell episode only gates future escalations.
	IdleLevel int
	// UnattendedLevel is nil until the first unattended alert.
	UnattendedLevel *int
	LastSeen        time.Time
}

func (s *VehicleState) clone() VehicleState {
	c := *s
	if s.UnattendedLevel != nil {
		level := *s.UnattendedLevel
		c.UnattendedLevel = &level
	}
	return c
}

type vehicleStore struct {
	moveThreshold float64
	states        map[int64]*VehicleState
}

func newVehicleStore(moveThreshold float64) *vehicleStore {
	return &vehicleStore{
		moveThreshold: moveThreshold,
		states:        make(map[int64]*VehicleState),
	}
}

// observe records a sighting. A centre displacement beyond the move threshold
// starts a new stationary episode.
func (s *vehicleStore) observe(trackID int64, regionLabel string, center forecourt.Point, now time.Time) *VehicleState {
	st, ok := s.states[trackID]
	if !ok {
		st = &VehicleState{
			TrackID:      trackID,
			DwellStart:   now,
			LastAttended: now,
			Center:       center,
		}
		s.states[trackID] = st
	} else if st.Center.DistanceTo(center) > s.moveThreshold {
		st.DwellStart = now
		st.LastAttended = now
		st.Center = center
	}

	st.Region = regionLabel
	st.LastSeen = now
	return st
}

func (s *vehicleStore) get(trackID int64) (*VehicleState, bool) {
	st, ok := s.states[trackID]
	return st, ok
}

// prune drops tracks not seen for longer than ttl and returns their ids in ascending order.
func (s *vehicleStore) prune(now time.Time, ttl time.Duration) []int64 {
	var evicted []int64
	for id, st := range s.states {
		if now.Sub(st.LastSeen) > ttl {
			delete(s.states, id)
			evicted = append(evicted, id)
		}
	}
	sort.Slice(evicted, func(i, j int) bool { return evicted[i] < evicted[j] })
	return evicted
}

func (s *vehicleStore) len() int {
	return len(s.states)
}
