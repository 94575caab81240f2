// Package cli provides the command line interface.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/temirov/recap/internal/config"
	"github.com/temirov/recap/internal/pipeline"
	"github.com/temirov/recap/internal/utils"
)

const (
	versionFlagName        = "version"
	verboseFlagName        = "verbose"
	configFlagName         = "config"
	outputFlagName         = "output"
	outputFlagShorthand    = "o"
	titleFlagName          = "title"
	providerFlagName       = "provider"
	modelFlagName          = "model"
	baseURLFlagName        = "base-url"
	unitFlagName           = "unit"
	maxUnitSizeFlagName    = "max-unit-size"
	concurrencyFlagName    = "concurrency"
	exclusionFlagName      = "exclude"
	exclusionFlagShorthand = "e"
	gitignoreFlagName      = "gitignore"
	ignoreFileFlagName     = "ignore"
	includeGitFlagName     = "git"
	followSymlinksFlagName = "follow-symlinks"
	componentsFlagName     = "components"
	redactFlagName         = "redact"
	cacheFlagName          = "cache"
	cacheBackendFlagName   = "cache-backend"
	snapshotDirFlagName    = "snapshot-dir"
	metricsFileFlagName    = "metrics-file"
	dryRunFlagName         = "dry-run"
	debounceFlagName       = "debounce"
	globalFlagName         = "global"
	forceFlagName          = "force"
	versionTemplate        = "recap version: %s\n"
	defaultPath            = "."
	rootUse                = "recap"
	rootShortDescription   = "recap keeps a generated codebase summary inside your README"
	rootLongDescription    = `recap summarizes a repository bottom-up with a language model: every file,
then every directory, then the project. The result is spliced between
<!--GEN-START--> and <!--GEN-END--> in the maintained document; text outside
the markers is never touched. Unchanged files are served from a cache.`
	versionFlagDescription = "display application version"
	verboseFlagDescription = "emit debug logs"
	runUse                 = "run [path]"
	watchUse               = "watch [path]"
	initUse                = "init [path]"
	runAlias               = "r"
	watchAlias             = "w"
	runShortDescription    = "summarize the repository and update the document (" + runAlias + ")"
	watchShortDescription  = "re-run whenever files change (" + watchAlias + ")"
	initShortDescription   = "write the default configuration and .recapignore"

	// runLongDescription provides detailed help for the run command.
	runLongDescription = `Walk the repository, summarize every included file and directory, and
write the project summary into the document. Exit status is 0 when every
summary was produced, 2 when some are placeholders, and 1 when all are
placeholders or the run failed.`
	// runUsageExample demonstrates run command usage.
	runUsageExample = `  # Update README.md in the current repository with a local Ollama model
  recap run

  # Preview the document for another repository without writing it
  recap run --dry-run --provider openai --model gpt-4o-mini ../service

  # Keep the cache in DuckDB and export metrics for node_exporter
  recap run --cache-backend duckdb --metrics-file /var/lib/node_exporter/recap.prom`

	// watchLongDescription provides detailed help for the watch command.
	watchLongDescription = `Run once, then watch every non-excluded directory and run again after
changes settle for the debounce interval. Files recap writes itself are ignored.`
	// watchUsageExample demonstrates watch command usage.
	watchUsageExample = `  # Rebuild the summary five seconds after the last edit
  recap watch --debounce 5s`

	// initLongDescription provides detailed help for the init command.
	initLongDescription = `Write .recap.yaml and .recapignore into the repository, or
~/.recap/config.yaml with --global. Existing files are kept unless --force is set.`

	configFlagDescription         = "configuration file (default .recap.yaml in the repository)"
	outputFlagDescription         = "document to maintain, relative to the repository"
	titleFlagDescription          = "section title (default: project name from go.mod, package.json or pyproject.toml)"
	providerFlagDescription       = "language model provider: %s"
	modelFlagDescription          = "language model name"
	baseURLFlagDescription        = "provider endpoint"
	unitFlagDescription           = "budget unit: tokens or characters"
	maxUnitSizeFlagDescription    = "maximum budget units per request"
	concurrencyFlagDescription    = "concurrent summarization requests"
	exclusionFlagDescription      = "exclude path pattern"
	gitignoreFlagDescription      = "also read .gitignore"
	ignoreFileFlagDescription     = "read .recapignore"
	includeGitFlagDescription     = "include git directory"
	followSymlinksFlagDescription = "follow symbolic links inside the repository"
	componentsFlagDescription     = "list top-level components in the document"
	redactFlagDescription         = "redact detected secrets before sending file content"
	cacheFlagDescription          = "reuse cached summaries"
	cacheBackendFlagDescription   = "summary cache: file, duckdb, sqlite or memory"
	snapshotDirFlagDescription    = "write summary_<timestamp>.md with the run report into this directory"
	metricsFileFlagDescription    = "write Prometheus metrics in textfile format"
	dryRunFlagDescription         = "print the document instead of writing it"
	debounceFlagDescription       = "quiet period before a watch run"
	globalFlagDescription         = "write the global configuration"
	forceFlagDescription          = "overwrite existing files"
	initWrittenFormat             = "wrote %s\n"
)

const (
	exitCodeSuccess = 0
	exitCodeFailure = 1
	exitCodePartial = 2
)

// ExitError carries the process exit status of a finished command. Err is
// nil when the command completed and only the status needs reporting.
type ExitError struct {
	Code int
	Err  error
}

func (exitError *ExitError) Error() string {
	if exitError.Err != nil {
		return exitError.Err.Error()
	}
	return fmt.Sprintf("exit status %d", exitError.Code)
}

func (exitError *ExitError) Unwrap() error {
	return exitError.Err
}

// exitErrorFor maps a run outcome to its exit status.
func exitErrorFor(outcome pipeline.Outcome) error {
	switch outcome {
	case pipeline.OutcomeClean:
		return nil
	case pipeline.OutcomePartial:
		return &ExitError{Code: exitCodePartial}
	default:
		return &ExitError{Code: exitCodeFailure}
	}
}

// Execute runs the recap application.
func Execute(ctx context.Context) error {
	rootCommand := createRootCommand(sessionDependencies{})
	rootCommand.SetArgs(normalizeBooleanFlagArguments(rootCommand, os.Args[1:]))
	return rootCommand.ExecuteContext(ctx)
}

// application carries state shared by the subcommands of one invocation.
type application struct {
	dependencies sessionDependencies
	logger       *zap.Logger
	verbose      bool
	showVersion  bool
}

// createRootCommand builds the root Cobra command.
func createRootCommand(dependencies sessionDependencies) *cobra.Command {
	app := &application{dependencies: dependencies}

	rootCommand := &cobra.Command{
		Use:           rootUse,
		Short:         rootShortDescription,
		Long:          rootLongDescription,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(command *cobra.Command, arguments []string) error {
			return command.Help()
		},
		PersistentPreRunE: func(command *cobra.Command, arguments []string) error {
			if app.showVersion {
				fmt.Fprintf(command.OutOrStdout(), versionTemplate, utils.GetApplicationVersion())
				os.Exit(exitCodeSuccess)
			}
			logger, loggerError := utils.NewApplicationLogger(app.verbose)
			if loggerError != nil {
				return fmt.Errorf(utils.LoggerInitializationFailedMessageFormat, loggerError)
			}
			app.logger = logger
			return nil
		},
		PersistentPostRun: func(command *cobra.Command, arguments []string) {
			if app.logger != nil {
				_ = app.logger.Sync()
			}
		},
	}
	rootCommand.PersistentFlags().BoolVar(&app.showVersion, versionFlagName, false, versionFlagDescription)
	rootCommand.PersistentFlags().BoolVar(&app.verbose, verboseFlagName, false, verboseFlagDescription)
	rootCommand.AddCommand(
		app.createRunCommand(),
		app.createWatchCommand(),
		createInitCommand(),
	)
	rootCommand.InitDefaultHelpCmd()
	rootCommand.InitDefaultCompletionCmd()
	return rootCommand
}

// addRunFlags registers the flags shared by run and watch.
func addRunFlags(command *cobra.Command, flags *runFlags) {
	flagSet := command.Flags()
	flagSet.StringVar(&flags.configPath, configFlagName, "", configFlagDescription)
	flagSet.StringVarP(&flags.output, outputFlagName, outputFlagShorthand, "", outputFlagDescription)
	flagSet.StringVar(&flags.title, titleFlagName, "", titleFlagDescription)
	flagSet.StringVar(&flags.provider, providerFlagName, "", fmt.Sprintf(providerFlagDescription, providerList()))
	flagSet.StringVar(&flags.model, modelFlagName, "", modelFlagDescription)
	flagSet.StringVar(&flags.baseURL, baseURLFlagName, "", baseURLFlagDescription)
	flagSet.StringVar(&flags.unit, unitFlagName, "", unitFlagDescription)
	flagSet.IntVar(&flags.maxUnitSize, maxUnitSizeFlagName, 0, maxUnitSizeFlagDescription)
	flagSet.IntVar(&flags.concurrency, concurrencyFlagName, 0, concurrencyFlagDescription)
	flagSet.StringArrayVarP(&flags.exclude, exclusionFlagName, exclusionFlagShorthand, nil, exclusionFlagDescription)
	registerOptionalBooleanFlag(flagSet, &flags.useGitignore, gitignoreFlagName, gitignoreFlagDescription)
	registerOptionalBooleanFlag(flagSet, &flags.useRulesFile, ignoreFileFlagName, ignoreFileFlagDescription)
	registerOptionalBooleanFlag(flagSet, &flags.includeGit, includeGitFlagName, includeGitFlagDescription)
	registerOptionalBooleanFlag(flagSet, &flags.followSymlinks, followSymlinksFlagName, followSymlinksFlagDescription)
	registerOptionalBooleanFlag(flagSet, &flags.components, componentsFlagName, componentsFlagDescription)
	registerOptionalBooleanFlag(flagSet, &flags.redactSecrets, redactFlagName, redactFlagDescription)
	registerOptionalBooleanFlag(flagSet, &flags.cacheEnabled, cacheFlagName, cacheFlagDescription)
	flagSet.StringVar(&flags.cacheBackend, cacheBackendFlagName, "", cacheBackendFlagDescription)
	flagSet.StringVar(&flags.snapshotDir, snapshotDirFlagName, "", snapshotDirFlagDescription)
	flagSet.StringVar(&flags.metricsFile, metricsFileFlagName, "", metricsFileFlagDescription)
	registerCopyFlag(flagSet, &flags.copyEnabled)
}

// createRunCommand returns the run subcommand.
func (app *application) createRunCommand() *cobra.Command {
	var flags runFlags

	runCommand := &cobra.Command{
		Use:     runUse,
		Aliases: []string{runAlias},
		Short:   runShortDescription,
		Long:    runLongDescription,
		Example: runUsageExample,
		Args:    cobra.MaximumNArgs(1),
		RunE: func(command *cobra.Command, arguments []string) error {
			currentSession, sessionError := app.openSession(command, arguments, flags)
			if sessionError != nil {
				return sessionError
			}
			defer currentSession.Close()
			outcome, runError := currentSession.execute(command.Context())
			if runError != nil {
				return runError
			}
			return exitErrorFor(outcome)
		},
	}

	addRunFlags(runCommand, &flags)
	runCommand.Flags().BoolVar(&flags.dryRun, dryRunFlagName, false, dryRunFlagDescription)
	return runCommand
}

// createWatchCommand returns the watch subcommand.
func (app *application) createWatchCommand() *cobra.Command {
	var flags runFlags

	watchCommand := &cobra.Command{
		Use:     watchUse,
		Aliases: []string{watchAlias},
		Short:   watchShortDescription,
		Long:    watchLongDescription,
		Example: watchUsageExample,
		Args:    cobra.MaximumNArgs(1),
		RunE: func(command *cobra.Command, arguments []string) error {
			currentSession, sessionError := app.openSession(command, arguments, flags)
			if sessionError != nil {
				return sessionError
			}
			defer currentSession.Close()
			return currentSession.watch(command.Context())
		},
	}

	addRunFlags(watchCommand, &flags)
	watchCommand.Flags().DurationVar(&flags.debounce, debounceFlagName, 0, debounceFlagDescription)
	return watchCommand
}

// createInitCommand returns the init subcommand.
func createInitCommand() *cobra.Command {
	var global bool
	var force bool

	initCommand := &cobra.Command{
		Use:   initUse,
		Short: initShortDescription,
		Long:  initLongDescription,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(command *cobra.Command, arguments []string) error {
			root, rootError := resolveRoot(firstArgumentOr(arguments, defaultPath))
			if rootError != nil {
				return rootError
			}
			target := config.InitTargetLocal
			if global {
				target = config.InitTargetGlobal
			}
			writtenPaths, initError := config.InitializeConfiguration(config.InitOptions{
				Target:           target,
				Force:            force,
				WorkingDirectory: root,
			})
			for _, writtenPath := range writtenPaths {
				fmt.Fprintf(command.OutOrStdout(), initWrittenFormat, writtenPath)
			}
			return initError
		},
	}

	initCommand.Flags().BoolVar(&global, globalFlagName, false, globalFlagDescription)
	initCommand.Flags().BoolVar(&force, forceFlagName, false, forceFlagDescription)
	return initCommand
}

// openSession resolves configuration for the repository argument and opens
// the collaborators of a run.
func (app *application) openSession(command *cobra.Command, arguments []string, flags runFlags) (*session, error) {
	root, rootError := resolveRoot(firstArgumentOr(arguments, defaultPath))
	if rootError != nil {
		return nil, rootError
	}
	loaded, loadError := config.LoadApplicationConfiguration(config.LoadOptions{
		WorkingDirectory: root,
		ExplicitFilePath: flags.configPath,
	})
	if loadError != nil {
		return nil, loadError
	}
	resolved, resolveError := resolveSettings(root, loaded.Merge(flags.overrides()), flags.dryRun, nil)
	if resolveError != nil {
		return nil, resolveError
	}
	return newSession(command.Context(), resolved, app.dependencies, app.logger, command.OutOrStdout(), command.ErrOrStderr())
}

func firstArgumentOr(arguments []string, fallback string) string {
	if len(arguments) == 0 {
		return fallback
	}
	return arguments[0]
}
