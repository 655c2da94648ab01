package utils

import (
	"strings"
)

func NormalizeLabel(raw string) string {
	return strings.Join(strings.Fields(raw), " ")
}

// FilenameToken makes raw safe to embed in an object key segment.
func FilenameToken(raw string) string {
	normalized := NormalizeLabel(raw)
	normalized = strings.ReplaceAll(normalized, " ", "-")
	normalized = strings.ReplaceAll(normalized, "/", "-")
	normalized = strings.ReplaceAll(normalized, "\\", "-")
	normalized = strings.ReplaceAll(normalized, "_", "-")
	return normalized
}
