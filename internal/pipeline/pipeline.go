// Package pipeline runs one summarization pass over a repository: walk,
// summarize bottom-up, render and compose the document.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/temirov/recap/internal/aggregator"
	"github.com/temirov/recap/internal/cache"
	"github.com/temirov/recap/internal/chunker"
	"github.com/temirov/recap/internal/config"
	"github.com/temirov/recap/internal/discover"
	"github.com/temirov/recap/internal/document"
	"github.com/temirov/recap/internal/gitinfo"
	"github.com/temirov/recap/internal/metrics"
	"github.com/temirov/recap/internal/types"
	"github.com/temirov/recap/internal/utils"
	"github.com/temirov/recap/internal/walker"
)

const (
	provenanceFormat = "_Auto-generated by recap %s from %d files. Text outside the generated markers is preserved._"

	warningFilterMessage   = "ignoring exclusion rule"
	warningWalkMessage     = "skipped during walk"
	warningProjectMessage  = "project manifest unreadable"
	warningRevisionMessage = "git revision unavailable"
	infoRunFinishedMessage = "run finished"
)

// Options carries every collaborator of a run explicitly.
type Options struct {
	Root           string
	Rules          config.RuleSet
	Cache          *cache.Cache
	Summarizer     aggregator.Summarizer
	Budgeter       *chunker.Budgeter
	DocumentPath   string
	SkipPaths      []string
	FollowSymlinks bool
	MaxFileBytes   int64
	Concurrency    int
	Title          string
	Components     bool
	Version        string
	Progress       aggregator.Progress
	Recorder       *metrics.Recorder
	RevisionLookup func(path string) (gitinfo.Revision, error)
	Clock          func() time.Time
	Logger         *zap.Logger
}

// Result is the outcome of a run. Document is the full text to write; when
// composing against the prior document fails it holds the wrapped generated
// region instead and Run returns a *document.ComposeError.
type Result struct {
	Document  string
	Generated string
	Project   *types.AggregateNode
	Report    Report
}

// Run executes one pass. Provider failures degrade the document instead of
// failing the run; Run fails on cancellation, an unreadable root, a tree
// with nothing to summarize, or a prior document whose markers are broken.
func Run(ctx context.Context, options Options) (*Result, error) {
	clock := options.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := utils.LoggerOrNop(options.Logger)
	startedAt := clock()
	absoluteRoot, absoluteError := filepath.Abs(options.Root)
	if absoluteError != nil {
		return nil, fmt.Errorf("resolve root %s: %w", options.Root, absoluteError)
	}
	report := Report{
		RunID:     uuid.NewString(),
		Root:      absoluteRoot,
		StartedAt: startedAt.UTC(),
	}
	for _, filterError := range options.Rules.FilterErrors {
		logger.Warn(warningFilterMessage, zap.String("source", filterError.Source), zap.Int("line", filterError.Line), zap.Error(filterError.Err))
		report.FilterWarnings = append(report.FilterWarnings, types.Warning{Path: filterError.Source, Message: filterError.Error()})
	}

	tree, walkError := walker.Walk(ctx, absoluteRoot, walker.Options{
		Excluder:       options.Rules.Matcher(),
		SkipPaths:      options.SkipPaths,
		FollowSymlinks: options.FollowSymlinks,
		Logger:         logger,
	})
	if walkError != nil {
		return nil, walkError
	}
	for _, warning := range tree.Warnings {
		logger.Warn(warningWalkMessage, zap.String("path", warning.Path), zap.Error(warning.Err))
		report.WalkWarnings = append(report.WalkWarnings, types.Warning{Path: warning.Path, Message: warning.Err.Error()})
	}
	for _, excluded := range tree.NodesWithVerdict(types.VerdictExcluded) {
		report.Excluded = append(report.Excluded, excluded.Path)
	}

	report.IncludedFiles = tree.Files()

	summaryAggregator, aggregatorError := aggregator.New(aggregator.Options{
		FileSystem:   os.DirFS(absoluteRoot),
		Cache:        options.Cache,
		Summarizer:   options.Summarizer,
		Budgeter:     options.Budgeter,
		MaxFileBytes: options.MaxFileBytes,
		Concurrency:  options.Concurrency,
		Progress:     options.Progress,
		Logger:       logger,
	})
	if aggregatorError != nil {
		return nil, aggregatorError
	}
	aggregate, aggregateError := summaryAggregator.Aggregate(ctx, tree)
	if aggregateError != nil {
		return nil, aggregateError
	}
	report.Skipped = aggregate.Skipped
	report.Degraded = aggregate.Degraded
	report.Summaries = countSummaries(aggregate.Root)
	report.Stats = aggregate.Stats
	if attemptCounter, ok := options.Summarizer.(interface{ Attempts() int64 }); ok {
		report.ProviderAttempts = attemptCounter.Attempts()
	}

	section := document.Section{
		Title:       options.Title,
		Summary:     aggregate.Root.Text,
		Degraded:    aggregate.Degraded,
		Provenance:  fmt.Sprintf(provenanceFormat, versionOrDefault(options.Version), len(report.IncludedFiles)-len(report.Skipped)),
		GeneratedAt: clock(),
		Revision:    lookupRevision(absoluteRoot, options.RevisionLookup, logger),
	}
	if options.Components {
		section.Components = document.ComponentsFrom(aggregate.Root)
	}
	if section.Title == "" {
		project, projectError := discover.Detect(absoluteRoot)
		if projectError != nil {
			logger.Warn(warningProjectMessage, zap.Error(projectError))
		}
		section.Title = project.Name
		section.Description = project.Description
	}
	generated := section.Render()

	prior, priorError := readPrior(options.DocumentPath)
	if priorError != nil {
		return nil, priorError
	}
	composed, composeError := document.Compose(prior, generated)

	report.Duration = clock().Sub(startedAt)
	result := &Result{
		Document:  composed,
		Generated: generated,
		Project:   aggregate.Root,
		Report:    report,
	}
	if options.Recorder != nil {
		options.Recorder.ObserveRun(report.Observation(clock()))
	}
	logger.Info(infoRunFinishedMessage,
		zap.String("run_id", report.RunID),
		zap.String("outcome", string(report.Outcome())),
		zap.Int("files", len(report.IncludedFiles)),
		zap.Int("degraded", len(report.Degraded)),
		zap.Int64("cache_hits", report.Stats.NodeHits),
		zap.Duration("duration", report.Duration))
	if composeError != nil {
		return result, composeError
	}
	return result, nil
}

func readPrior(documentPath string) (string, error) {
	if documentPath == "" {
		return "", nil
	}
	data, readError := os.ReadFile(documentPath)
	if readError != nil {
		if errors.Is(readError, os.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("read document %s: %w", documentPath, readError)
	}
	return string(data), nil
}

func lookupRevision(root string, lookup func(string) (gitinfo.Revision, error), logger *zap.Logger) string {
	if lookup == nil {
		lookup = gitinfo.Lookup
	}
	revision, lookupError := lookup(root)
	if lookupError != nil {
		logger.Debug(warningRevisionMessage, zap.Error(lookupError))
		return ""
	}
	return revision.String()
}

func countSummaries(node *types.AggregateNode) int {
	if node == nil {
		return 0
	}
	count := 1
	for _, child := range node.Children {
		count += countSummaries(child)
	}
	return count
}

func versionOrDefault(version string) string {
	version = strings.TrimSpace(version)
	if version == "" {
		return utils.GetApplicationVersion()
	}
	return version
}
