// Package document renders the generated summary region and splices it into
// an existing document between boundary markers.
package document

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// StartMarker opens the generated region.
	StartMarker = "<!--GEN-START-->"
	// EndMarker closes the generated region.
	EndMarker = "<!--GEN-END-->"

	lineBreak = "\n"

	composeErrorFormat = "compose document: %v (start markers: %d, end markers: %d)"
)

var (
	// ErrMarkerMissing reports a document with content but no marker pair.
	ErrMarkerMissing = errors.New("generated region markers not found")
	// ErrMarkerDuplicated reports more than one start or end marker.
	ErrMarkerDuplicated = errors.New("generated region markers duplicated")
	// ErrMarkerOrder reports an end marker placed before the start marker.
	ErrMarkerOrder = errors.New("generated region markers out of order")
)

// ComposeError describes why a prior document could not be updated.
type ComposeError struct {
	Err          error
	StartMarkers int
	EndMarkers   int
}

func (composeError *ComposeError) Error() string {
	return fmt.Sprintf(composeErrorFormat, composeError.Err, composeError.StartMarkers, composeError.EndMarkers)
}

func (composeError *ComposeError) Unwrap() error {
	return composeError.Err
}

// Wrap surrounds region with the boundary markers.
func Wrap(region string) string {
	return StartMarker + lineBreak + strings.TrimRight(region, lineBreak) + lineBreak + EndMarker + lineBreak
}

// Compose replaces the generated region of prior with region. An empty or
// whitespace-only prior yields the wrapped region alone. Everything outside
// the markers is preserved byte for byte. When prior has content but no
// usable marker pair, Compose returns the wrapped region together with a
// *ComposeError and the caller must not overwrite prior.
func Compose(prior string, region string) (string, error) {
	wrapped := Wrap(region)
	if strings.TrimSpace(prior) == "" {
		return wrapped, nil
	}
	startCount := strings.Count(prior, StartMarker)
	endCount := strings.Count(prior, EndMarker)
	newComposeError := func(cause error) error {
		return &ComposeError{Err: cause, StartMarkers: startCount, EndMarkers: endCount}
	}
	switch {
	case startCount > 1 || endCount > 1:
		return wrapped, newComposeError(ErrMarkerDuplicated)
	case startCount == 0 || endCount == 0:
		return wrapped, newComposeError(ErrMarkerMissing)
	}
	startIndex := strings.Index(prior, StartMarker)
	endIndex := strings.Index(prior, EndMarker)
	if endIndex < startIndex {
		return wrapped, newComposeError(ErrMarkerOrder)
	}
	regionStart := startIndex + len(StartMarker)
	var composed strings.Builder
	composed.Grow(len(prior) + len(region))
	composed.WriteString(prior[:regionStart])
	composed.WriteString(lineBreak)
	composed.WriteString(strings.TrimRight(region, lineBreak))
	composed.WriteString(lineBreak)
	composed.WriteString(prior[endIndex:])
	return composed.String(), nil
}

// Region returns the text between the markers of document, without the
// markers. The boolean is false when document has no usable marker pair.
func Region(document string) (string, bool) {
	if strings.Count(document, StartMarker) != 1 || strings.Count(document, EndMarker) != 1 {
		return "", false
	}
	startIndex := strings.Index(document, StartMarker) + len(StartMarker)
	endIndex := strings.Index(document, EndMarker)
	if endIndex < startIndex {
		return "", false
	}
	return strings.Trim(document[startIndex:endIndex], lineBreak), true
}

// stripMarkers removes boundary markers from generated text so a summary can
// never open or close the region itself.
func stripMarkers(text string) string {
	return strings.NewReplacer(StartMarker, "", EndMarker, "").Replace(text)
}
