package report

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"forecourt-service/internal/domain/forecourt"
	"forecourt-service/internal/eventlog"
	"forecourt-service/internal/utils"
)

const eventsSheet = "Events"

var eventColumns = []string{"Seq", "Time (UTC)", "Kind", "Track ID", "Region", "Message", "Snapshot"}

// WriteEvents renders entries as an XLSX workbook with one row per entry.
func WriteEvents(w io.Writer, entries []eventlog.Entry, camera forecourt.CameraIdentity) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", eventsSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	header := make([]interface{}, len(eventColumns))
	for i, c := range eventColumns {
		header[i] = c
	}
	if err := f.SetSheetRow(eventsSheet, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}
	if err := f.SetRowStyle(eventsSheet, 1, 1, bold); err != nil {
		return fmt.Errorf("style header: %w", err)
	}

	for i, e := range entries {
		row := []interface{}{
			e.Seq,
			e.At.UTC().Format(time.RFC3339),
			string(e.Kind),
			e.TrackID,
			e.Region,
			e.Message,
			e.Snapshot,
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(eventsSheet, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	if err := f.SetColWidth(eventsSheet, "F", "F", 60); err != nil {
		return fmt.Errorf("set column width: %w", err)
	}

	if err := f.SetDocProps(&excelize.DocProperties{
		Title:   "Forecourt events",
		Subject: fmt.Sprintf("customer %s, camera %s, station %s", camera.CustomerID, camera.CameraID, camera.StationNumber),
		Creator: "forecourt-service",
	}); err != nil {
		return fmt.Errorf("set properties: %w", err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// Filename is the download name for an export taken at t.
func Filename(camera forecourt.CameraIdentity, t time.Time) string {
	return fmt.Sprintf("events_%s_%s.xlsx", utils.FilenameToken(camera.CameraID), t.UTC().Format("20060102_150405"))
}
