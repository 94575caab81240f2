package utils

import (
	"fmt"
	"strings"
)

const byteUnitStep = 1024

var byteUnits = []string{"b", "kb", "mb", "gb", "tb", "pb"}

// FormatFileSize converts a byte length into a human-readable lower-case unit string
// such as "512b", "1.5kb" or "10mb". Negative values format as "0b".
func FormatFileSize(bytes int64) string {
	if bytes < 0 {
		return "0b"
	}
	if bytes < byteUnitStep {
		return fmt.Sprintf("%db", bytes)
	}
	scaled := float64(bytes)
	unitIndex := 0
	for scaled >= byteUnitStep && unitIndex < len(byteUnits)-1 {
		scaled /= byteUnitStep
		unitIndex++
	}
	if scaled < 10 {
		return strings.TrimSuffix(fmt.Sprintf("%.1f", scaled), ".0") + byteUnits[unitIndex]
	}
	return fmt.Sprintf("%.0f%s", scaled, byteUnits[unitIndex])
}
