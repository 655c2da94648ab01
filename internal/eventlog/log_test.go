package eventlog

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forecourt-service/internal/domain/forecourt"
)

func TestAppendEvictsOldestFirst(t *testing.T) {
	l := New(20)
	for i := 1; i <= 25; i++ {
		l.Append(Entry{Message: fmt.Sprintf("event %d", i)})
	}

	entries := l.Snapshot()
	require.Len(t, entries, 20)
	for i, e := range entries {
		assert.Equal(t, fmt.Sprintf("event %d", i+6), e.Message)
	}
	assert.Equal(t, uint64(25), l.LastSeq())
}

func TestNewDefaultsCapacity(t *testing.T) {
	assert.Equal(t, DefaultCapacity, New(0).Cap())
	assert.Equal(t, DefaultCapacity, New(-3).Cap())
	assert.Equal(t, 5, New(5).Cap())
}

func TestAppendAssignsIdentity(t *testing.T) {
	l := New(3)
	first := l.Append(Entry{Message: "a"})
	second := l.Append(Entry{Message: "b"})

	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, uint64(1), first.Seq)
	assert.Equal(t, uint64(2), second.Seq)
}

func TestPurgeRemovesOutOfOrder(t *testing.T) {
	l := New(10)
	l.Append(Entry{Kind: forecourt.EventUnattendedVehicle, TrackID: 7, Message: "u7-a"})
	l.Append(Entry{Kind: forecourt.EventIdleVehicle, TrackID: 7, Message: "i7"})
	l.Append(Entry{Kind: forecourt.EventUnattendedVehicle, TrackID: 8, Message: "u8"})
	l.Append(Entry{Kind: forecourt.EventUnattendedVehicle, TrackID: 7, Message: "u7-b"})

	removed := l.Purge(MatchTrack(forecourt.EventUnattendedVehicle, 7))

	assert.Equal(t, 2, removed)
	assert.Equal(t, []string{"i7", "u8"}, messages(l.Snapshot()))

	l.Append(Entry{Message: "next"})
	assert.Equal(t, []string{"i7", "u8", "next"}, messages(l.Snapshot()))
}

func TestSince(t *testing.T) {
	l := New(3)
	for i := 1; i <= 5; i++ {
		l.Append(Entry{Message: fmt.Sprintf("e%d", i)})
	}

	assert.Equal(t, []string{"e4", "e5"}, messages(l.Since(3)))
	assert.Equal(t, []string{"e3", "e4", "e5"}, messages(l.Since(0)))
	assert.Empty(t, l.Since(5))
}

func TestEntryString(t *testing.T) {
	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	alert := Entry{Kind: forecourt.EventIdleVehicle, Region: "Pump1", Message: "ALERT: car 7 idle for 3 minutes", Snapshot: "idle.jpg", At: at}
	assert.Equal(t, "Pump1: ALERT: car 7 idle for 3 minutes (Frame: idle.jpg)", alert.String())

	alert.Snapshot = ""
	assert.Equal(t, "Pump1: ALERT: car 7 idle for 3 minutes", alert.String())

	summary := Entry{Kind: KindInference, Message: "2: person, car, 12.0ms, FPS: 83.3"}
	assert.Equal(t, summary.Message, summary.String())
}

func TestConcurrentReadersSeeConsistentState(t *testing.T) {
	l := New(20)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 2000; i++ {
			l.Append(Entry{Kind: forecourt.EventUnattendedVehicle, TrackID: int64(i % 3)})
			if i%50 == 0 {
				l.Purge(MatchTrack(forecourt.EventUnattendedVehicle, 1))
			}
		}
	}()

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				entries := l.Snapshot()
				assert.LessOrEqual(t, len(entries), 20)
				for j := 1; j < len(entries); j++ {
					assert.Less(t, entries[j-1].Seq, entries[j].Seq)
				}
			}
		}()
	}

	wg.Wait()
	assert.LessOrEqual(t, l.Len(), 20)
}

func messages(entries []Entry) []string {
	result := make([]string, len(entries))
	for i, e := range entries {
		result[i] = e.Message
	}
	return result
}
