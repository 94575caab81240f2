// Package secrets redacts credentials from file content before it is sent to
// a language model provider.
package secrets

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/zricethezav/gitleaks/v8/detect"
)

const redactionMarkerFormat = "[REDACTED:%s]"

// Scrubber replaces secrets in content.
type Scrubber interface {
	Scrub(content string) (Result, error)
}

// Finding is one detected secret.
type Finding struct {
	RuleID string
	Line   int
	Secret string
}

// Result is the redacted content and what was found.
type Result struct {
	Content  string
	Findings []Finding
}

// Redacted reports whether anything was replaced.
func (result Result) Redacted() bool {
	return len(result.Findings) > 0
}

// GitleaksScrubber detects secrets with the default gitleaks rule set.
type GitleaksScrubber struct {
	once        sync.Once
	mutex       sync.Mutex
	detector    *detect.Detector
	detectorErr error
}

// NewGitleaksScrubber returns a scrubber whose detector is built on first use.
func NewGitleaksScrubber() *GitleaksScrubber {
	return &GitleaksScrubber{}
}

// Scrub replaces every detected secret with a [REDACTED:rule] marker.
func (scrubber *GitleaksScrubber) Scrub(content string) (Result, error) {
	scrubber.once.Do(func() {
		scrubber.detector, scrubber.detectorErr = detect.NewDetectorDefaultConfig()
	})
	if scrubber.detectorErr != nil {
		return Result{}, fmt.Errorf("initialize gitleaks detector: %w", scrubber.detectorErr)
	}

	scrubber.mutex.Lock()
	gitleaksFindings := scrubber.detector.DetectString(content)
	scrubber.mutex.Unlock()

	findings := make([]Finding, 0, len(gitleaksFindings))
	for _, gitleaksFinding := range gitleaksFindings {
		if gitleaksFinding.Secret == "" {
			continue
		}
		findings = append(findings, Finding{
			RuleID: gitleaksFinding.RuleID,
			Line:   gitleaksFinding.StartLine,
			Secret: gitleaksFinding.Secret,
		})
	}
	return Result{Content: Redact(content, findings), Findings: findings}, nil
}

// Redact replaces each finding's secret in content. Longer secrets are
// replaced first so a secret containing another is redacted whole.
func Redact(content string, findings []Finding) string {
	if len(findings) == 0 {
		return content
	}
	ordered := append([]Finding(nil), findings...)
	sort.SliceStable(ordered, func(left, right int) bool {
		return len(ordered[left].Secret) > len(ordered[right].Secret)
	})
	redacted := content
	for _, finding := range ordered {
		if finding.Secret == "" {
			continue
		}
		redacted = strings.ReplaceAll(redacted, finding.Secret, fmt.Sprintf(redactionMarkerFormat, finding.RuleID))
	}
	return redacted
}

// NopScrubber returns content unchanged.
type NopScrubber struct{}

// Scrub returns content unchanged.
func (NopScrubber) Scrub(content string) (Result, error) {
	return Result{Content: content}, nil
}
