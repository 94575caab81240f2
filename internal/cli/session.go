package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/temirov/recap/internal/cache"
	"github.com/temirov/recap/internal/cache/sqlstore"
	"github.com/temirov/recap/internal/chunker"
	"github.com/temirov/recap/internal/config"
	"github.com/temirov/recap/internal/document"
	"github.com/temirov/recap/internal/llm"
	"github.com/temirov/recap/internal/metrics"
	"github.com/temirov/recap/internal/pipeline"
	"github.com/temirov/recap/internal/secrets"
	"github.com/temirov/recap/internal/summarizer"
	"github.com/temirov/recap/internal/tokenizer"
	"github.com/temirov/recap/internal/utils"
	"github.com/temirov/recap/internal/watch"
)

const (
	documentFilePermissions = 0o644
	metricsDirectoryMode    = 0o755

	warningClipboardMessage    = "clipboard copy failed"
	warningCacheCloseMessage   = "closing summary cache failed"
	debugSnapshotMessage       = "snapshot written"
	debugMetricsMessage        = "metrics written"
	infoWatchingMessage        = "watching for changes"
	warningWatchRunMessage     = "run after change failed"
	errorCreateClientFormat    = "create %s client: %w"
	errorOpenCacheFormat       = "open %s cache at %s: %w"
	errorWriteDocumentFormat   = "write document %s: %w"
	errorWriteSidecarFormat    = "write generated section to %s: %w"
	errorWriteMetricsFormat    = "write metrics %s: %w"
	errorCreateTokenizerFormat = "create tokenizer: %w"
)

// session holds the collaborators shared by every pass over one repository.
// Watch mode reuses one session so the cache and provider client stay open.
type session struct {
	settings settings
	client   llm.Client
	scrubber secrets.Scrubber
	cache    *cache.Cache
	budgeter *chunker.Budgeter
	recorder *metrics.Recorder
	logger   *zap.Logger
	stdout   io.Writer
	stderr   io.Writer
	clock    func() time.Time
}

// sessionDependencies lets tests inject a provider client.
type sessionDependencies struct {
	client llm.Client
	clock  func() time.Time
}

func newSession(ctx context.Context, resolved settings, dependencies sessionDependencies, logger *zap.Logger, stdout io.Writer, stderr io.Writer) (*session, error) {
	logger = utils.LoggerOrNop(logger)
	client := dependencies.client
	if client == nil {
		createdClient, clientError := llm.NewClient(ctx, llm.Config{
			Provider:    resolved.provider,
			Model:       resolved.model,
			BaseURL:     resolved.baseURL,
			APIKey:      resolved.apiKey,
			Temperature: resolved.temperature,
		})
		if clientError != nil {
			return nil, fmt.Errorf(errorCreateClientFormat, resolved.provider, clientError)
		}
		client = createdClient
	}

	counter, counterError := tokenizer.NewCounter(tokenizer.Config{Unit: resolved.unit, Model: resolved.tokenModel})
	if counterError != nil {
		return nil, fmt.Errorf(errorCreateTokenizerFormat, counterError)
	}
	budgeter, budgetError := chunker.NewBudgeter(counter, resolved.maxUnitSize)
	if budgetError != nil {
		return nil, budgetError
	}

	var scrubber secrets.Scrubber = secrets.NopScrubber{}
	if resolved.redactSecrets {
		scrubber = secrets.NewGitleaksScrubber()
	}

	store, storeError := openStore(ctx, resolved)
	if storeError != nil {
		return nil, storeError
	}

	return &session{
		settings: resolved,
		client:   client,
		scrubber: scrubber,
		cache:    cache.New(store, logger),
		budgeter: budgeter,
		recorder: metrics.NewRecorder(),
		logger:   logger,
		stdout:   stdout,
		stderr:   stderr,
		clock:    dependencies.clock,
	}, nil
}

func openStore(ctx context.Context, resolved settings) (cache.Store, error) {
	if !resolved.cacheEnabled {
		return nil, nil
	}
	switch resolved.cacheBackend {
	case cacheBackendMemory:
		return cache.NewMemoryStore(), nil
	case cacheBackendFile:
		fileStore, openError := cache.NewFileStore(resolved.cacheLocation)
		if openError != nil {
			return nil, fmt.Errorf(errorOpenCacheFormat, resolved.cacheBackend, resolved.cacheLocation, openError)
		}
		return fileStore, nil
	case cacheBackendDuckDB, cacheBackendSQLite:
		driver := sqlstore.DriverDuckDB
		if resolved.cacheBackend == cacheBackendSQLite {
			driver = sqlstore.DriverSQLite
		}
		databaseStore, openError := sqlstore.Open(ctx, driver, resolved.cacheLocation)
		if openError != nil {
			return nil, fmt.Errorf(errorOpenCacheFormat, resolved.cacheBackend, resolved.cacheLocation, openError)
		}
		return databaseStore, nil
	default:
		return nil, fmt.Errorf(errorUnknownBackendFormat, resolved.cacheBackend)
	}
}

func (current *session) Close() {
	if closeError := current.cache.Close(); closeError != nil {
		current.logger.Warn(warningCacheCloseMessage, zap.Error(closeError))
	}
}

// execute performs one pass and delivers its output. A broken document
// leaves the document untouched, writes the sidecar and returns an *ExitError.
func (current *session) execute(ctx context.Context) (pipeline.Outcome, error) {
	ruleSet, rulesError := config.LoadExclusionRules(current.settings.root, current.settings.rules)
	if rulesError != nil {
		return pipeline.OutcomeFailed, rulesError
	}
	summaryService, summarizerError := summarizer.New(summarizer.Options{
		Client:            current.client,
		Scrubber:          current.scrubber,
		RequestsPerMinute: current.settings.requestsPerMinute,
		MaxAttempts:       current.settings.maxAttempts,
		AttemptTimeout:    current.settings.timeout,
		Recorder:          current.recorder,
		Logger:            current.logger,
	})
	if summarizerError != nil {
		return pipeline.OutcomeFailed, summarizerError
	}

	summaryCache := current.cache
	if !current.settings.cacheEnabled {
		summaryCache = cache.New(nil, current.logger)
	}

	progress := startProgress(current.stderr, !current.settings.dryRun)
	result, runError := pipeline.Run(ctx, pipeline.Options{
		Root:           current.settings.root,
		Rules:          ruleSet,
		Cache:          summaryCache,
		Summarizer:     summaryService,
		Budgeter:       current.budgeter,
		DocumentPath:   current.settings.documentPath,
		SkipPaths:      current.settings.skipPaths(),
		FollowSymlinks: current.settings.followSymlinks,
		MaxFileBytes:   current.settings.maxFileBytes,
		Concurrency:    current.settings.concurrency,
		Title:          current.settings.title,
		Components:     current.settings.components,
		Version:        utils.GetApplicationVersion(),
		Progress:       progress.callback(),
		Recorder:       current.recorder,
		Clock:          current.clock,
		Logger:         current.logger,
	})
	progress.stop()

	if runError != nil {
		var composeError *document.ComposeError
		if result == nil || !errors.As(runError, &composeError) {
			return pipeline.OutcomeFailed, runError
		}
		return pipeline.OutcomeFailed, current.writeSidecar(result, runError)
	}
	if deliverError := current.deliver(result); deliverError != nil {
		return pipeline.OutcomeFailed, deliverError
	}
	return result.Report.Outcome(), nil
}

func (current *session) writeSidecar(result *pipeline.Result, composeError error) error {
	sidecar := current.settings.sidecarPath()
	if current.settings.dryRun {
		fmt.Fprint(current.stdout, result.Document)
		return &ExitError{Code: exitCodeFailure, Err: composeError}
	}
	if writeError := utils.WriteFileAtomic(sidecar, []byte(result.Document), documentFilePermissions); writeError != nil {
		return &ExitError{Code: exitCodeFailure, Err: errors.Join(composeError, fmt.Errorf(errorWriteSidecarFormat, sidecar, writeError))}
	}
	fmt.Fprintf(current.stderr, sidecarNoticeFormat, current.displayPath(current.settings.documentPath), current.displayPath(sidecar))
	return &ExitError{Code: exitCodeFailure, Err: composeError}
}

func (current *session) deliver(result *pipeline.Result) error {
	if current.settings.dryRun {
		output := result.Document
		if isTerminal(current.stdout) {
			output = renderMarkdown(output, current.stdout)
		}
		fmt.Fprint(current.stdout, output)
	} else if writeError := utils.WriteFileAtomic(current.settings.documentPath, []byte(result.Document), documentFilePermissions); writeError != nil {
		return fmt.Errorf(errorWriteDocumentFormat, current.settings.documentPath, writeError)
	}

	if current.settings.snapshotDirectory != "" {
		snapshotPath, snapshotError := pipeline.WriteSnapshot(current.settings.snapshotDirectory, result)
		if snapshotError != nil {
			return snapshotError
		}
		current.logger.Debug(debugSnapshotMessage, zap.String("path", snapshotPath))
	}
	if current.settings.metricsFile != "" {
		if mkdirError := os.MkdirAll(filepath.Dir(current.settings.metricsFile), metricsDirectoryMode); mkdirError != nil {
			return fmt.Errorf(errorWriteMetricsFormat, current.settings.metricsFile, mkdirError)
		}
		if metricsError := current.recorder.WriteTextfile(current.settings.metricsFile); metricsError != nil {
			return fmt.Errorf(errorWriteMetricsFormat, current.settings.metricsFile, metricsError)
		}
		current.logger.Debug(debugMetricsMessage, zap.String("path", current.settings.metricsFile))
	}
	if current.settings.clipboard {
		if copyError := copyGenerated(result.Generated, nil); copyError != nil {
			current.logger.Warn(warningClipboardMessage, zap.Error(copyError))
		}
	}
	printReport(current.stderr, current.displayPath(current.settings.documentPath), result.Report, current.settings.dryRun)
	return nil
}

// watch runs an initial pass and then one pass per debounced batch of
// changes until ctx is done. Failed passes are logged and the watch goes on.
func (current *session) watch(ctx context.Context) error {
	if _, initialError := current.execute(ctx); initialError != nil {
		if ctx.Err() != nil {
			return nil
		}
		current.logger.Warn(warningWatchRunMessage, zap.Error(initialError))
	}
	ruleSet, rulesError := config.LoadExclusionRules(current.settings.root, current.settings.rules)
	if rulesError != nil {
		return rulesError
	}
	watcher, watcherError := watch.New(watch.Options{
		Root:        current.settings.root,
		Excluder:    ruleSet.Matcher(),
		IgnorePaths: current.settings.skipPaths(),
		Debounce:    current.settings.debounce,
		Logger:      current.logger,
	})
	if watcherError != nil {
		return watcherError
	}
	defer func() {
		_ = watcher.Close()
	}()
	current.logger.Info(infoWatchingMessage, zap.String("root", current.settings.root), zap.Duration("debounce", current.settings.debounce))

	runError := watcher.Run(ctx, func(ctx context.Context, changed []string) error {
		current.logger.Debug(infoWatchingMessage, zap.Strings("changed", changed))
		if _, passError := current.execute(ctx); passError != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			current.logger.Warn(warningWatchRunMessage, zap.Error(passError))
		}
		return nil
	})
	if errors.Is(runError, context.Canceled) {
		return nil
	}
	return runError
}

func (current *session) displayPath(path string) string {
	return utils.RelativePathOrSelf(path, current.settings.root)
}
