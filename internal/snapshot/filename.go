package snapshot

import (
	"fmt"
	"path"
	"strings"
	"time"

	"forecourt-service/internal/domain/forecourt"
	"forecourt-service/internal/utils"
)

const timestampLayout = "20060102_150405"

// Filename builds the stored name of an alert snapshot:
// {kind}_ID{track}_{region}_{customer}_{camera}_{station}_{YYYYMMDD_HHMMSS}.jpg
func Filename(alert forecourt.Alert, camera forecourt.CameraIdentity) string {
	return fmt.Sprintf("%s_ID%d_%s_%s_%s_%s_%s.jpg",
		alert.Kind,
		alert.TrackID,
		token(alert.Region),
		token(camera.CustomerID),
		token(camera.CameraID),
		token(camera.StationNumber),
		formatTime(alert.At),
	)
}

// ObjectKey joins prefix and filename into a bucket key.
func ObjectKey(prefix, filename string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return filename
	}
	return path.Join(prefix, filename)
}

func token(raw string) string {
	if t := utils.FilenameToken(raw); t != "" {
		return t
	}
	return "na"
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}
