package utils

import (
	"time"
)

const (
	timestampLayout = time.RFC3339
	snapshotLayout  = "20060102_150405"
)

// FormatTimestamp returns the provided time in UTC using RFC 3339.
func FormatTimestamp(value time.Time) string {
	if value.IsZero() {
		return ""
	}
	return value.UTC().Format(timestampLayout)
}

// FormatSnapshotStamp returns a file-name-safe UTC stamp for snapshot files.
func FormatSnapshotStamp(value time.Time) string {
	return value.UTC().Format(snapshotLayout)
}
