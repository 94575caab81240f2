package utils_test

import (
	"testing"
	"time"

	"github.com/temirov/recap/internal/utils"
)

func TestFormatFileSize(t *testing.T) {
	testCases := []struct {
		name     string
		bytes    int64
		expected string
	}{
		{name: "negative", bytes: -1, expected: "0b"},
		{name: "zero", bytes: 0, expected: "0b"},
		{name: "bytes", bytes: 512, expected: "512b"},
		{name: "one kilobyte", bytes: 1024, expected: "1kb"},
		{name: "fractional kilobyte", bytes: 1536, expected: "1.5kb"},
		{name: "ten megabytes", bytes: 10 * 1024 * 1024, expected: "10mb"},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			result := utils.FormatFileSize(testCase.bytes)
			if result != testCase.expected {
				t.Fatalf("expected %s, got %s", testCase.expected, result)
			}
		})
	}
}

func TestFormatTimestamp(t *testing.T) {
	location := time.FixedZone("UTC+2", 2*60*60)
	testCases := []struct {
		name     string
		value    time.Time
		expected string
	}{
		{name: "zero", value: time.Time{}, expected: ""},
		{name: "converted to utc", value: time.Date(2026, time.October, 18, 14, 5, 0, 0, location), expected: "2026-10-18T12:05:00Z"},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			if result := utils.FormatTimestamp(testCase.value); result != testCase.expected {
				t.Fatalf("expected %q, got %q", testCase.expected, result)
			}
		})
	}
}

func TestFormatSnapshotStamp(t *testing.T) {
	value := time.Date(2026, time.October, 18, 9, 3, 7, 0, time.UTC)
	if result := utils.FormatSnapshotStamp(value); result != "20261018_090307" {
		t.Fatalf("unexpected snapshot stamp %q", result)
	}
}
