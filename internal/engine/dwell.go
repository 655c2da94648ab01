package engine

import (
	"fmt"
	"time"

	"forecourt-service/internal/domain/forecourt"
)

// evaluateDwell escalates once per idle interval reached in the current dwell
// episode. The level only grows, so a vehicle that moves and stops again has
// to exceed its previous level before it alerts again.
func (e *Engine) evaluateDwell(v located, st *VehicleState, now time.Time) (Tier, *forecourt.Alert) {
	dwell := now.Sub(st.DwellStart)
	interval := int(dwell / e.cfg.IdleInterval)

	if interval > st.IdleLevel {
		st.IdleLevel = interval
		idle := time.Duration(interval) * e.cfg.IdleInterval
		return TierAlert, &forecourt.Alert{
			Kind:    forecourt.EventIdleVehicle,
			TrackID: v.det.TrackID,
			Region:  v.region,
			Message: fmt.Sprintf("ALERT: %s %d idle for %s", v.det.Label(), v.det.TrackID, idleText(idle)),
			Level:   interval,
			Box:     v.det.Box,
			At:      now,
		}
	}

	if dwell >= e.cfg.IdleInterval {
		return TierAlert, nil
	}
	if dwell >= e.cfg.WarningDwell {
		return TierWarning, nil
	}
	return TierNormal, nil
}

// idleText renders whole minutes as "N minutes" and anything finer as a duration such as "1m30s".
func idleText(d time.Duration) string {
	if d%time.Minute == 0 {
		return fmt.Sprintf("%d minutes", int(d/time.Minute))
	}
	return d.String()
}
