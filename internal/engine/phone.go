package engine

import (
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"forecourt-service/internal/domain/forecourt"
	"forecourt-service/internal/region"
)

type cooldown struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// phoneDetector is stateless unless a cooldown is configured, in which case it
// keeps one limiter per person track, driven by frame timestamps.
type phoneDetector struct {
	cooldown time.Duration
	persons  map[int64]*cooldown
}

func newPhoneDetector(every time.Duration) *phoneDetector {
	return &phoneDetector{
		cooldown: every,
		persons:  make(map[int64]*cooldown),
	}
}

func (p *phoneDetector) allow(personID int64, now time.Time) bool {
	if p.cooldown <= 0 {
		return true
	}
	c, ok := p.persons[personID]
	if !ok {
		c = &cooldown{limiter: rate.NewLimiter(rate.Every(p.cooldown), 1)}
		p.persons[personID] = c
	}
	c.lastSeen = now
	return c.limiter.AllowN(now, 1)
}

func (p *phoneDetector) prune(now time.Time, ttl time.Duration) {
	for id, c := range p.persons {
		if now.Sub(c.lastSeen) > ttl {
			delete(p.persons, id)
		}
	}
}

// evaluatePhoneUse pairs every person with every phone whose boxes overlap.
// Persons outside all regions still count; their alert is tagged Unknown.
func (e *Engine) evaluatePhoneUse(persons, phones []located, now time.Time) []forecourt.Alert {
	var alerts []forecourt.Alert
	for _, person := range persons {
		for _, phone := range phones {
			if !person.det.Box.Overlaps(phone.det.Box) {
				continue
			}
			if !e.phones.allow(person.det.TrackID, now) {
				continue
			}

			msg := fmt.Sprintf("ALERT: Person %d using mobile phone", person.det.TrackID)
			if person.region != region.Unknown {
				msg += fmt.Sprintf(" in ROI: %s", person.region)
			}
			alerts = append(alerts, forecourt.Alert{
				Kind:    forecourt.EventMobileUser,
				TrackID: person.det.TrackID,
				Region:  person.region,
				Message: msg,
				Box:     person.det.Box,
				At:      now,
			})
		}
	}
	return alerts
}
