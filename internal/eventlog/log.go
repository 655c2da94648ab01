// Package eventlog provides the fixed-capacity logs that back the alert feed
// and the per-frame inference feed.
//
// A Log is written by the frame evaluation path and read concurrently by
// HTTP handlers and streams. Every mutation happens under a mutex and every
// read returns a copy, so readers never observe a partially applied append
// or purge.
package eventlog

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"forecourt-service/internal/domain/forecourt"
)

const DefaultCapacity = 20

// KindInference tags per-frame summary entries.
const KindInference forecourt.EventKind = "inference"

type Entry struct {
	ID       uuid.UUID           `json:"id"`
	Seq      uint64              `json:"seq"`
	Kind     forecourt.EventKind `json:"kind"`
	TrackID  int64               `json:"track_id,omitempty"`
	Region   string              `json:"region,omitempty"`
	Message  string              `json:"message"`
	Snapshot string              `json:"snapshot,omitempty"`
	At       time.Time           `json:"at"`
}

func FromAlert(alert forecourt.Alert) Entry {
	return Entry{
		Kind:     alert.Kind,
		TrackID:  alert.TrackID,
		Region:   alert.Region,
		Message:  alert.Message,
		Snapshot: alert.Snapshot,
		At:       alert.At,
	}
}

// String renders the entry the way operators see it on the dashboard.
func (e Entry) String() string {
	if e.Kind == KindInference || e.Region == "" {
		return e.Message
	}
	text := fmt.Sprintf("%s: %s", e.Region, e.Message)
	if e.Snapshot != "" {
		text += fmt.Sprintf(" (Frame: %s)", e.Snapshot)
	}
	return text
}

// MatchTrack selects entries of the given kind raised for trackID.
func MatchTrack(kind forecourt.EventKind, trackID int64) func(Entry) bool {
	return func(e Entry) bool {
		return e.Kind == kind && e.TrackID == trackID
	}
}

type Log struct {
	mu       sync.RWMutex
	capacity int
	entries  []Entry
	seq      uint64
}

func New(capacity int) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Log{
		capacity: capacity,
		entries:  make([]Entry, 0, capacity),
	}
}

// Append stores e at the tail, evicting from the head while over capacity.
// It assigns the sequence number and, when missing, the ID.
func (l *Log) Append(e Entry) Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.seq++
	e.Seq = l.seq
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}

	l.entries = append(l.entries, e)
	if over := len(l.entries) - l.capacity; over > 0 {
		l.entries = append(l.entries[:0], l.entries[over:]...)
	}
	return e
}

// Snapshot returns the entries oldest first.
func (l *Log) Snapshot() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make([]Entry, len(l.entries))
	copy(result, l.entries)
	return result
}

// Since returns retained entries with a sequence number greater than seq.
func (l *Log) Since(seq uint64) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var result []Entry
	for _, e := range l.entries {
		if e.Seq > seq {
			result = append(result, e)
		}
	}
	return result
}

// Purge removes every entry matching match, wherever it sits, and returns how many were removed.
func (l *Log) Purge(match func(Entry) bool) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	kept := l.entries[:0]
	for _, e := range l.entries {
		if !match(e) {
			kept = append(kept, e)
		}
	}
	removed := len(l.entries) - len(kept)
	for i := len(kept); i < len(l.entries); i++ {
		l.entries[i] = Entry{}
	}
	l.entries = kept
	return removed
}

func (l *Log) Messages() []string {
	entries := l.Snapshot()
	result := make([]string, len(entries))
	for i, e := range entries {
		result[i] = e.String()
	}
	return result
}

// LastSeq is the sequence number of the most recent append, including evicted entries.
func (l *Log) LastSeq() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.seq
}

func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

func (l *Log) Cap() int {
	return l.capacity
}
