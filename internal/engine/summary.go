package engine

import (
	"fmt"
	"strings"

	"forecourt-service/internal/domain/forecourt"
)

// inferenceSummary lists every tracked class in the frame, before confidence filtering.
func inferenceSummary(frame forecourt.Frame) string {
	names := make([]string, len(frame.Detections))
	for i, det := range frame.Detections {
		names[i] = det.Label()
	}

	fps := 0.0
	if frame.InferenceMs > 0 {
		fps = 1000 / frame.InferenceMs
	}
	return fmt.Sprintf("%d: %s, %.1fms, FPS: %.1f", len(names), strings.Join(names, ", "), frame.InferenceMs, fps)
}
