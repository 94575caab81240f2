package llm

import (
	"context"
	"strings"
	"unicode/utf8"
)

const (
	staticSummaryLineLimit = 3
	staticSummaryRuneLimit = 280
	staticEmptySummary     = "(empty)"
	staticEllipsis         = "…"
)

// StaticClient returns the leading non-blank lines of its input. It needs no
// network access, so it serves offline runs and pipelines under test.
type StaticClient struct{}

// Complete ignores instruction and extracts a short prefix of input.
func (StaticClient) Complete(ctx context.Context, _ string, input string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	var selected []string
	for _, line := range strings.Split(input, "\n") {
		trimmedLine := strings.TrimSpace(line)
		if trimmedLine == "" {
			continue
		}
		selected = append(selected, trimmedLine)
		if len(selected) == staticSummaryLineLimit {
			break
		}
	}
	if len(selected) == 0 {
		return staticEmptySummary, nil
	}
	summary := strings.Join(selected, " ")
	if utf8.RuneCountInString(summary) > staticSummaryRuneLimit {
		summary = string([]rune(summary)[:staticSummaryRuneLimit]) + staticEllipsis
	}
	return summary, nil
}
