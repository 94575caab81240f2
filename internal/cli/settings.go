package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/temirov/recap/internal/config"
	"github.com/temirov/recap/internal/llm"
	"github.com/temirov/recap/internal/tokenizer"
	"github.com/temirov/recap/internal/utils"
)

const (
	defaultMaxFileBytes      int64 = 1 << 20
	defaultMaxUnitSize             = 3000
	defaultMaxAttempts             = 4
	defaultRequestsPerMinute       = 60
	defaultConcurrency             = 4
	defaultProviderTimeout         = 2 * time.Minute
	defaultWatchDebounce           = 2 * time.Second
	defaultTemperature             = 0.2
	maximumTemperature             = 2.0

	cacheBackendFile   = "file"
	cacheBackendDuckDB = "duckdb"
	cacheBackendSQLite = "sqlite"
	cacheBackendMemory = "memory"

	cacheFileDirectoryName = "cache"
	cacheDuckDBFileName    = "cache.duckdb"
	cacheSQLiteFileName    = "cache.sqlite"
	sidecarSuffix          = ".recap.md"

	openAIKeyVariable = "OPENAI_API_KEY"
	geminiKeyVariable = "GEMINI_API_KEY"

	errorAbsolutePathFormat   = "abs failed for '%s': %w"
	errorPathMissingFormat    = "path '%s' does not exist"
	errorStatFormat           = "stat failed for '%s': %w"
	errorNotDirectoryFormat   = "path '%s' is not a directory"
	errorPositiveFormat       = "%s must be positive, got %d"
	errorUnknownBackendFormat = "unknown cache backend %q (expected file, duckdb, sqlite or memory)"
	errorUnknownProvider      = "unknown provider %q (expected %s)"
	errorTemperatureFormat    = "summarizer.temperature must be between 0 and %.0f, got %g"
)

// settings is the fully resolved configuration of one invocation.
type settings struct {
	root              string
	documentPath      string
	title             string
	components        bool
	clipboard         bool
	dryRun            bool
	snapshotDirectory string
	metricsFile       string
	rules             config.RuleOptions
	followSymlinks    bool
	maxFileBytes      int64
	unit              tokenizer.Unit
	maxUnitSize       int
	tokenModel        string
	provider          llm.Provider
	model             string
	baseURL           string
	apiKey            string
	maxAttempts       int
	requestsPerMinute int
	concurrency       int
	timeout           time.Duration
	temperature       float64
	redactSecrets     bool
	cacheEnabled      bool
	cacheBackend      string
	cacheLocation     string
	debounce          time.Duration
}

// runFlags collects command line values. Unset values leave configuration alone.
type runFlags struct {
	configPath     string
	output         string
	title          string
	provider       string
	model          string
	baseURL        string
	unit           string
	maxUnitSize    int
	concurrency    int
	exclude        []string
	useGitignore   *bool
	useRulesFile   *bool
	includeGit     *bool
	followSymlinks *bool
	components     *bool
	redactSecrets  *bool
	cacheEnabled   *bool
	copyEnabled    *bool
	cacheBackend   string
	snapshotDir    string
	metricsFile    string
	dryRun         bool
	debounce       time.Duration
}

func (flags runFlags) overrides() config.ApplicationConfiguration {
	var override config.ApplicationConfiguration
	override.Document.Output = flags.output
	override.Document.Title = flags.title
	override.Document.Components = flags.components
	override.Document.Clipboard = flags.copyEnabled
	override.Document.SnapshotDir = flags.snapshotDir
	override.Document.MetricsFile = flags.metricsFile
	override.Paths.Exclude = flags.exclude
	override.Paths.UseGitignore = flags.useGitignore
	override.Paths.UseRulesFile = flags.useRulesFile
	override.Paths.IncludeGit = flags.includeGit
	override.Paths.FollowSymlink = flags.followSymlinks
	override.Chunking.Unit = flags.unit
	if flags.maxUnitSize != 0 {
		override.Chunking.MaxUnitSize = &flags.maxUnitSize
	}
	override.Summarizer.Provider = flags.provider
	override.Summarizer.Model = flags.model
	override.Summarizer.BaseURL = flags.baseURL
	override.Summarizer.RedactSecrets = flags.redactSecrets
	if flags.concurrency != 0 {
		override.Summarizer.Concurrency = &flags.concurrency
	}
	override.Cache.Enabled = flags.cacheEnabled
	override.Cache.Backend = flags.cacheBackend
	override.Watch.Debounce = flags.debounce
	return override
}

// resolveRoot validates the repository argument and returns its absolute path.
func resolveRoot(input string) (string, error) {
	absolutePath, absoluteError := filepath.Abs(input)
	if absoluteError != nil {
		return "", fmt.Errorf(errorAbsolutePathFormat, input, absoluteError)
	}
	info, statError := os.Stat(absolutePath)
	if statError != nil {
		if os.IsNotExist(statError) {
			return "", fmt.Errorf(errorPathMissingFormat, input)
		}
		return "", fmt.Errorf(errorStatFormat, input, statError)
	}
	if !info.IsDir() {
		return "", fmt.Errorf(errorNotDirectoryFormat, input)
	}
	return absolutePath, nil
}

// resolveSettings applies defaults to the merged configuration. Relative
// paths resolve against root.
func resolveSettings(root string, configuration config.ApplicationConfiguration, dryRun bool, lookupEnv func(string) string) (settings, error) {
	if lookupEnv == nil {
		lookupEnv = os.Getenv
	}
	resolved := settings{
		root:              root,
		documentPath:      resolveUnder(root, valueOr(configuration.Document.Output, utils.DefaultDocumentName)),
		title:             strings.TrimSpace(configuration.Document.Title),
		components:        boolOr(configuration.Document.Components, true),
		clipboard:         boolOr(configuration.Document.Clipboard, false),
		dryRun:            dryRun,
		followSymlinks:    boolOr(configuration.Paths.FollowSymlink, false),
		maxFileBytes:      int64Or(configuration.Paths.MaxFileBytes, defaultMaxFileBytes),
		unit:              tokenizer.Unit(valueOr(configuration.Chunking.Unit, string(tokenizer.UnitTokens))),
		maxUnitSize:       intOr(configuration.Chunking.MaxUnitSize, defaultMaxUnitSize),
		provider:          llm.Provider(strings.ToLower(valueOr(configuration.Summarizer.Provider, string(llm.ProviderOllama)))),
		model:             strings.TrimSpace(configuration.Summarizer.Model),
		baseURL:           strings.TrimSpace(configuration.Summarizer.BaseURL),
		maxAttempts:       intOr(configuration.Summarizer.MaxAttempts, defaultMaxAttempts),
		requestsPerMinute: intOr(configuration.Summarizer.RequestsPerMinute, defaultRequestsPerMinute),
		concurrency:       intOr(configuration.Summarizer.Concurrency, defaultConcurrency),
		timeout:           configuration.Summarizer.Timeout,
		temperature:       float64Or(configuration.Summarizer.Temperature, defaultTemperature),
		redactSecrets:     boolOr(configuration.Summarizer.RedactSecrets, true),
		cacheEnabled:      boolOr(configuration.Cache.Enabled, true),
		cacheBackend:      strings.ToLower(valueOr(configuration.Cache.Backend, cacheBackendFile)),
		debounce:          configuration.Watch.Debounce,
	}
	resolved.rules = config.RuleOptions{
		UseRulesFile: boolOr(configuration.Paths.UseRulesFile, true),
		UseGitignore: boolOr(configuration.Paths.UseGitignore, false),
		IncludeGit:   boolOr(configuration.Paths.IncludeGit, false),
		Exclude:      configuration.Paths.Exclude,
	}
	if resolved.timeout <= 0 {
		resolved.timeout = defaultProviderTimeout
	}
	if resolved.debounce <= 0 {
		resolved.debounce = defaultWatchDebounce
	}
	if !llm.IsAvailable(resolved.provider) {
		return settings{}, fmt.Errorf(errorUnknownProvider, resolved.provider, providerList())
	}
	if resolved.temperature < 0 || resolved.temperature > maximumTemperature {
		return settings{}, fmt.Errorf(errorTemperatureFormat, maximumTemperature, resolved.temperature)
	}
	if resolved.model == "" {
		resolved.model = llm.DefaultModel(resolved.provider)
	}
	resolved.tokenModel = valueOr(configuration.Chunking.Model, resolved.model)
	if snapshotDirectory := strings.TrimSpace(configuration.Document.SnapshotDir); snapshotDirectory != "" {
		resolved.snapshotDirectory = resolveUnder(root, snapshotDirectory)
	}
	if metricsFile := strings.TrimSpace(configuration.Document.MetricsFile); metricsFile != "" {
		resolved.metricsFile = resolveUnder(root, metricsFile)
	}

	keyVariable := strings.TrimSpace(configuration.Summarizer.APIKeyEnv)
	if keyVariable == "" {
		keyVariable = defaultKeyVariable(resolved.provider)
	}
	if keyVariable != "" {
		resolved.apiKey = strings.TrimSpace(lookupEnv(keyVariable))
	}

	for name, value := range map[string]int{
		"chunking.max_unit_size":         resolved.maxUnitSize,
		"summarizer.max_attempts":        resolved.maxAttempts,
		"summarizer.concurrency":         resolved.concurrency,
		"summarizer.requests_per_minute": resolved.requestsPerMinute,
	} {
		if value <= 0 {
			return settings{}, fmt.Errorf(errorPositiveFormat, name, value)
		}
	}
	if resolved.maxFileBytes <= 0 {
		return settings{}, fmt.Errorf(errorPositiveFormat, "paths.max_file_bytes", resolved.maxFileBytes)
	}

	stateDirectory := filepath.Join(root, utils.StateDirectoryName)
	switch resolved.cacheBackend {
	case cacheBackendFile:
		resolved.cacheLocation = resolveUnder(stateDirectory, valueOr(configuration.Cache.Directory, cacheFileDirectoryName))
	case cacheBackendDuckDB:
		resolved.cacheLocation = resolveUnder(stateDirectory, valueOr(configuration.Cache.Directory, cacheDuckDBFileName))
	case cacheBackendSQLite:
		resolved.cacheLocation = resolveUnder(stateDirectory, valueOr(configuration.Cache.Directory, cacheSQLiteFileName))
	case cacheBackendMemory:
	default:
		return settings{}, fmt.Errorf(errorUnknownBackendFormat, resolved.cacheBackend)
	}
	return resolved, nil
}

// sidecarPath is where the generated section goes when the document's
// markers cannot be trusted.
func (resolved settings) sidecarPath() string {
	return resolved.documentPath + sidecarSuffix
}

// skipPaths lists the files recap itself writes below the root. They never
// feed back into the next summary.
func (resolved settings) skipPaths() []string {
	candidates := []string{
		resolved.documentPath,
		resolved.sidecarPath(),
		filepath.Join(resolved.root, utils.StateDirectoryName),
		resolved.snapshotDirectory,
		resolved.metricsFile,
		resolved.cacheLocation,
	}
	var skipped []string
	for _, candidate := range candidates {
		if candidate == "" {
			continue
		}
		relativePath, relativeError := filepath.Rel(resolved.root, candidate)
		if relativeError != nil || relativePath == "." || strings.HasPrefix(relativePath, "..") {
			continue
		}
		skipped = append(skipped, filepath.ToSlash(relativePath))
	}
	return utils.DeduplicatePatterns(skipped)
}

func defaultKeyVariable(provider llm.Provider) string {
	switch provider {
	case llm.ProviderOpenAI:
		return openAIKeyVariable
	case llm.ProviderGemini:
		return geminiKeyVariable
	default:
		return ""
	}
}

// providerList renders the supported providers for help and error text.
func providerList() string {
	providers := llm.AvailableProviders()
	names := make([]string, len(providers))
	for index, provider := range providers {
		names[index] = string(provider)
	}
	return strings.Join(names, ", ")
}

func resolveUnder(base string, path string) string {
	path = strings.TrimSpace(path)
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(base, filepath.FromSlash(path))
}

func valueOr(value string, fallback string) string {
	if trimmed := strings.TrimSpace(value); trimmed != "" {
		return trimmed
	}
	return fallback
}

func boolOr(value *bool, fallback bool) bool {
	if value == nil {
		return fallback
	}
	return *value
}

func intOr(value *int, fallback int) int {
	if value == nil {
		return fallback
	}
	return *value
}

func float64Or(value *float64, fallback float64) float64 {
	if value == nil {
		return fallback
	}
	return *value
}

func int64Or(value *int64, fallback int64) int64 {
	if value == nil {
		return fallback
	}
	return *value
}
