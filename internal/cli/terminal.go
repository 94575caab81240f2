package cli

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/charmbracelet/glamour"
	"github.com/fatih/color"
	"golang.org/x/term"

	"github.com/temirov/recap/internal/aggregator"
	"github.com/temirov/recap/internal/pipeline"
)

const (
	spinnerCharacterSet   = 14
	spinnerInterval       = 100 * time.Millisecond
	spinnerColor          = "cyan"
	spinnerScanningSuffix = " Scanning repository..."
	spinnerProgressFormat = " Summarizing %d/%d..."
	defaultRenderWidth    = 100
	minimumRenderWidth    = 40

	reportFormat        = " %s %s: %d files, %d summaries (%d cached), %d degraded, %d skipped in %s\n"
	reportWrittenVerb   = "updated"
	reportDryRunVerb    = "rendered"
	reportCleanMark     = "✓"
	reportPartialMark   = "!"
	reportFailedMark    = "✗"
	sidecarNoticeFormat = "Markers in %s are broken; generated section written to %s\n"
)

// isTerminal reports whether writer is an interactive terminal.
func isTerminal(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(file.Fd()))
}

// progressIndicator animates a spinner on interactive stderr and does nothing otherwise.
type progressIndicator struct {
	spinner *spinner.Spinner
}

func startProgress(writer io.Writer, enabled bool) *progressIndicator {
	if !enabled || !isTerminal(writer) {
		return &progressIndicator{}
	}
	activeSpinner := spinner.New(spinner.CharSets[spinnerCharacterSet], spinnerInterval, spinner.WithWriter(writer))
	activeSpinner.Suffix = spinnerScanningSuffix
	_ = activeSpinner.Color(spinnerColor)
	activeSpinner.Start()
	return &progressIndicator{spinner: activeSpinner}
}

// callback returns the aggregator progress hook, or nil when there is no spinner.
func (indicator *progressIndicator) callback() aggregator.Progress {
	if indicator.spinner == nil {
		return nil
	}
	return func(completed int, total int) {
		indicator.spinner.Lock()
		indicator.spinner.Suffix = fmt.Sprintf(spinnerProgressFormat, completed, total)
		indicator.spinner.Unlock()
	}
}

func (indicator *progressIndicator) stop() {
	if indicator.spinner != nil {
		indicator.spinner.Stop()
	}
}

// renderMarkdown styles the document for a terminal and returns it unchanged
// when styling fails.
func renderMarkdown(markdown string, writer io.Writer) string {
	width := defaultRenderWidth
	if file, ok := writer.(*os.File); ok {
		if terminalWidth, _, sizeError := term.GetSize(int(file.Fd())); sizeError == nil && terminalWidth > minimumRenderWidth {
			width = terminalWidth - 2
		}
	}
	renderer, rendererError := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if rendererError != nil {
		return markdown
	}
	rendered, renderError := renderer.Render(markdown)
	if renderError != nil {
		return markdown
	}
	return rendered
}

// printReport writes the one-line run summary, colored by outcome.
func printReport(writer io.Writer, documentPath string, report pipeline.Report, dryRun bool) {
	mark, markColor := reportCleanMark, color.New(color.FgHiGreen)
	switch report.Outcome() {
	case pipeline.OutcomePartial:
		mark, markColor = reportPartialMark, color.New(color.FgHiYellow)
	case pipeline.OutcomeFailed:
		mark, markColor = reportFailedMark, color.New(color.FgHiRed)
	}
	verb := reportWrittenVerb
	if dryRun {
		verb = reportDryRunVerb
	}
	dimColor := color.New(color.FgHiBlack)
	markColor.Fprint(writer, mark)
	dimColor.Fprintf(writer, reportFormat,
		documentPath,
		verb,
		len(report.IncludedFiles),
		report.Summaries,
		report.Stats.NodeHits,
		len(report.Degraded),
		len(report.Skipped),
		report.Duration.Round(time.Millisecond))
}
