package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/temirov/recap/internal/aggregator"
	"github.com/temirov/recap/internal/metrics"
	"github.com/temirov/recap/internal/types"
	"github.com/temirov/recap/internal/utils"
)

// Outcome classifies a finished run.
type Outcome string

const (
	// OutcomeClean means every summary was produced.
	OutcomeClean Outcome = "clean"
	// OutcomePartial means some summaries are placeholders.
	OutcomePartial Outcome = "partial"
	// OutcomeFailed means every summary is a placeholder.
	OutcomeFailed Outcome = "failed"
)

const (
	snapshotFileFormat           = "summary_%s.md"
	snapshotReportHeader         = "\n\n---\n\n## Run report\n\n```yaml\n"
	snapshotReportFooter         = "```\n"
	snapshotDirectoryPermissions = 0o755
	snapshotFilePermissions      = 0o644
)

// Report describes what a run did.
type Report struct {
	RunID            string            `yaml:"run_id"`
	Root             string            `yaml:"root"`
	StartedAt        time.Time         `yaml:"started_at"`
	Duration         time.Duration     `yaml:"duration"`
	IncludedFiles    []string          `yaml:"included_files"`
	Excluded         []string          `yaml:"excluded,omitempty"`
	Skipped          []aggregator.Skip `yaml:"skipped,omitempty"`
	Degraded         []string          `yaml:"degraded,omitempty"`
	FilterWarnings   []types.Warning   `yaml:"filter_warnings,omitempty"`
	WalkWarnings     []types.Warning   `yaml:"walk_warnings,omitempty"`
	Summaries        int               `yaml:"summaries"`
	ProviderAttempts int64             `yaml:"provider_attempts"`
	Stats            aggregator.Stats  `yaml:"stats"`
}

// Outcome reports clean when nothing degraded and failed when every summary
// in the tree is a placeholder.
func (report Report) Outcome() Outcome {
	switch {
	case len(report.Degraded) == 0:
		return OutcomeClean
	case len(report.Degraded) >= report.Summaries:
		return OutcomeFailed
	default:
		return OutcomePartial
	}
}

// Observation converts the report for the metrics recorder.
func (report Report) Observation(finishedAt time.Time) metrics.RunObservation {
	return metrics.RunObservation{
		Outcome:     string(report.Outcome()),
		Files:       len(report.IncludedFiles),
		Skipped:     len(report.Skipped),
		Excluded:    len(report.Excluded),
		Degraded:    len(report.Degraded),
		NodeHits:    report.Stats.NodeHits,
		NodeMisses:  report.Stats.NodeMisses,
		ChunkHits:   report.Stats.ChunkHits,
		ChunkMisses: report.Stats.ChunkMisses,
		Duration:    report.Duration,
		FinishedAt:  finishedAt,
	}
}

// YAML renders the report.
func (report Report) YAML() (string, error) {
	data, marshalError := yaml.Marshal(struct {
		Outcome Outcome `yaml:"outcome"`
		Report  `yaml:",inline"`
	}{Outcome: report.Outcome(), Report: report})
	if marshalError != nil {
		return "", fmt.Errorf("encode run report: %w", marshalError)
	}
	return string(data), nil
}

// WriteSnapshot stores the generated region and the run report under
// directory as summary_<timestamp>.md and returns the file path.
func WriteSnapshot(directory string, result *Result) (string, error) {
	if result == nil {
		return "", fmt.Errorf("no result to snapshot")
	}
	if err := os.MkdirAll(directory, snapshotDirectoryPermissions); err != nil {
		return "", fmt.Errorf("create snapshot directory %s: %w", directory, err)
	}
	reportText, reportError := result.Report.YAML()
	if reportError != nil {
		return "", reportError
	}
	var content strings.Builder
	content.WriteString(strings.TrimRight(result.Generated, "\n"))
	content.WriteString(snapshotReportHeader)
	content.WriteString(reportText)
	content.WriteString(snapshotReportFooter)

	snapshotPath := filepath.Join(directory, fmt.Sprintf(snapshotFileFormat, utils.FormatSnapshotStamp(result.Report.StartedAt)))
	if err := utils.WriteFileAtomic(snapshotPath, []byte(content.String()), snapshotFilePermissions); err != nil {
		return "", fmt.Errorf("write snapshot %s: %w", snapshotPath, err)
	}
	return snapshotPath, nil
}
