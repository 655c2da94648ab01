package report

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"forecourt-service/internal/domain/forecourt"
	"forecourt-service/internal/eventlog"
)

func TestWriteEvents(t *testing.T) {
	at := time.Date(2025, 6, 1, 8, 30, 0, 0, time.UTC)
	entries := []eventlog.Entry{
		{Seq: 4, Kind: forecourt.EventIdleVehicle, TrackID: 7, Region: "Pump1", Message: "ALERT: car 7 idle for 3 minutes", Snapshot: "idle.jpg", At: at},
		{Seq: 5, Kind: forecourt.EventMobileUser, TrackID: 3, Region: "Unknown", Message: "ALERT: Person 3 using mobile phone", At: at.Add(time.Second)},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteEvents(&buf, entries, forecourt.CameraIdentity{CameraID: "cam1"}))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(eventsSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, eventColumns, rows[0])
	assert.Equal(t, []string{"4", "2025-06-01T08:30:00Z", "idle_vehicle", "7", "Pump1", "ALERT: car 7 idle for 3 minutes", "idle.jpg"}, rows[1])
	assert.Equal(t, "Unknown", rows[2][4])
}

func TestWriteEventsEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteEvents(&buf, nil, forecourt.CameraIdentity{}))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(eventsSheet)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestFilename(t *testing.T) {
	got := Filename(forecourt.CameraIdentity{CameraID: "cam1"}, time.Date(2025, 6, 1, 8, 30, 5, 0, time.UTC))
	assert.Equal(t, "events_cam1_20250601_083005.xlsx", got)
}
