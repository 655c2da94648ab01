package engine

import (
	"fmt"
	"time"

	"forecourt-service/internal/domain/forecourt"
	"forecourt-service/internal/eventlog"
	"forecourt-service/internal/metrics"
)

// evaluateUnattended checks attendance once the grace period has passed.
// A person in the vehicle's region resets the clock and removes the
// unattended alerts already logged for the track; otherwise the alert
// escalates once per unattended interval.
func (e *Engine) evaluateUnattended(v located, st *VehicleState, attended bool, now time.Time) *forecourt.Alert {
	unattended := now.Sub(st.LastAttended)
	if unattended <= e.cfg.UnattendedAfter {
		return nil
	}

	if attended {
		st.LastAttended = now
		st.UnattendedLevel = nil
		purged := e.events.Purge(eventlog.MatchTrack(forecourt.EventUnattendedVehicle, v.det.TrackID))
		if purged > 0 {
			metrics.AlertsPurged.Add(float64(purged))
			e.log.Info().
				Int64("track_id", v.det.TrackID).
				Str("region", v.region).
				Int("purged", purged).
				Msg("vehicle attended, unattended alerts cleared")
		}
		return nil
	}

	interval := int(unattended / e.cfg.UnattendedInterval)
	last := -1
	if st.UnattendedLevel != nil {
		last = *st.UnattendedLevel
	}
	if interval <= last {
		return nil
	}

	st.UnattendedLevel = &interval
	seconds := int((time.Duration(interval) * e.cfg.UnattendedInterval).Seconds())
	return &forecourt.Alert{
		Kind:    forecourt.EventUnattendedVehicle,
		TrackID: v.det.TrackID,
		Region:  v.region,
		Message: fmt.Sprintf("ALERT: Vehicle %d unattended >%ds", v.det.TrackID, seconds),
		Level:   interval,
		Box:     v.det.Box,
		At:      now,
	}
}
