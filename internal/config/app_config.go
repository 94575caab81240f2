package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/temirov/recap/internal/utils"
)

// LoadOptions controls how application configuration is discovered.
type LoadOptions struct {
	WorkingDirectory string
	ExplicitFilePath string
}

// ApplicationConfiguration holds run defaults read from YAML.
type ApplicationConfiguration struct {
	Document   DocumentConfiguration   `mapstructure:"document"`
	Paths      PathConfiguration       `mapstructure:"paths"`
	Chunking   ChunkingConfiguration   `mapstructure:"chunking"`
	Summarizer SummarizerConfiguration `mapstructure:"summarizer"`
	Cache      CacheConfiguration      `mapstructure:"cache"`
	Watch      WatchConfiguration      `mapstructure:"watch"`
}

// DocumentConfiguration controls the maintained document.
type DocumentConfiguration struct {
	Output      string `mapstructure:"output"`
	Title       string `mapstructure:"title"`
	Components  *bool  `mapstructure:"components"`
	Clipboard   *bool  `mapstructure:"clipboard"`
	SnapshotDir string `mapstructure:"snapshot_dir"`
	MetricsFile string `mapstructure:"metrics_file"`
}

// PathConfiguration configures exclusion rules and file limits for the walk.
type PathConfiguration struct {
	Exclude       []string `mapstructure:"exclude"`
	UseGitignore  *bool    `mapstructure:"use_gitignore"`
	UseRulesFile  *bool    `mapstructure:"use_ignore"`
	IncludeGit    *bool    `mapstructure:"include_git"`
	FollowSymlink *bool    `mapstructure:"follow_symlinks"`
	MaxFileBytes  *int64   `mapstructure:"max_file_bytes"`
}

// ChunkingConfiguration controls how content is split under the unit budget.
type ChunkingConfiguration struct {
	Unit        string `mapstructure:"unit"`
	MaxUnitSize *int   `mapstructure:"max_unit_size"`
	Model       string `mapstructure:"model"`
}

// SummarizerConfiguration selects and tunes the language model provider.
type SummarizerConfiguration struct {
	Provider          string        `mapstructure:"provider"`
	Model             string        `mapstructure:"model"`
	BaseURL           string        `mapstructure:"base_url"`
	APIKeyEnv         string        `mapstructure:"api_key_env"`
	MaxAttempts       *int          `mapstructure:"max_attempts"`
	RequestsPerMinute *int          `mapstructure:"requests_per_minute"`
	Concurrency       *int          `mapstructure:"concurrency"`
	Timeout           time.Duration `mapstructure:"timeout"`
	Temperature       *float64      `mapstructure:"temperature"`
	RedactSecrets     *bool         `mapstructure:"redact_secrets"`
}

// CacheConfiguration selects the summary store.
type CacheConfiguration struct {
	Enabled   *bool  `mapstructure:"enabled"`
	Backend   string `mapstructure:"backend"`
	Directory string `mapstructure:"directory"`
}

// WatchConfiguration tunes watch mode.
type WatchConfiguration struct {
	Debounce time.Duration `mapstructure:"debounce"`
}

// LoadApplicationConfiguration loads configuration from global and local files.
func LoadApplicationConfiguration(options LoadOptions) (ApplicationConfiguration, error) {
	workingDirectory := options.WorkingDirectory
	if workingDirectory == "" {
		currentDirectory, err := os.Getwd()
		if err != nil {
			return ApplicationConfiguration{}, fmt.Errorf("determine working directory: %w", err)
		}
		workingDirectory = currentDirectory
	}

	var merged ApplicationConfiguration

	if homeDirectory, err := os.UserHomeDir(); err == nil && homeDirectory != "" {
		globalPath := filepath.Join(homeDirectory, utils.GlobalConfigDirectoryName, utils.GlobalConfigFileName)
		globalConfig, loadErr := loadConfigurationFromPath(globalPath)
		if loadErr != nil {
			return ApplicationConfiguration{}, loadErr
		}
		merged = merged.Merge(globalConfig)
	}

	localPath, resolveErr := resolveLocalConfigPath(workingDirectory, options.ExplicitFilePath)
	if resolveErr != nil {
		return ApplicationConfiguration{}, resolveErr
	}
	if localPath != "" {
		if options.ExplicitFilePath != "" {
			if _, statErr := os.Stat(localPath); statErr != nil {
				return ApplicationConfiguration{}, fmt.Errorf("stat configuration %s: %w", localPath, statErr)
			}
		}
		localConfig, loadErr := loadConfigurationFromPath(localPath)
		if loadErr != nil {
			return ApplicationConfiguration{}, loadErr
		}
		merged = merged.Merge(localConfig)
	}

	merged.Paths.Exclude = utils.DeduplicatePatterns(merged.Paths.Exclude)

	return merged, nil
}

func resolveLocalConfigPath(workingDirectory, explicitPath string) (string, error) {
	if explicitPath != "" {
		if filepath.IsAbs(explicitPath) {
			return explicitPath, nil
		}
		if workingDirectory == "" {
			absolute, err := filepath.Abs(explicitPath)
			if err != nil {
				return "", fmt.Errorf("resolve configuration path %s: %w", explicitPath, err)
			}
			return absolute, nil
		}
		return filepath.Join(workingDirectory, explicitPath), nil
	}
	if workingDirectory == "" {
		return "", nil
	}
	return filepath.Join(workingDirectory, utils.ConfigFileName), nil
}

func loadConfigurationFromPath(path string) (ApplicationConfiguration, error) {
	if path == "" {
		return ApplicationConfiguration{}, nil
	}
	info, statErr := os.Stat(path)
	if statErr != nil {
		if os.IsNotExist(statErr) {
			return ApplicationConfiguration{}, nil
		}
		return ApplicationConfiguration{}, fmt.Errorf("stat configuration %s: %w", path, statErr)
	}
	if info.IsDir() {
		return ApplicationConfiguration{}, fmt.Errorf("configuration path %s is a directory", path)
	}

	reader := viper.New()
	reader.SetConfigFile(path)
	reader.SetConfigType("yaml")
	if readErr := reader.ReadInConfig(); readErr != nil {
		return ApplicationConfiguration{}, fmt.Errorf("read configuration from %s: %w", path, readErr)
	}
	var config ApplicationConfiguration
	if decodeErr := reader.Unmarshal(&config); decodeErr != nil {
		return ApplicationConfiguration{}, fmt.Errorf("decode configuration from %s: %w", path, decodeErr)
	}
	return config, nil
}

// Merge overlays override onto the receiver returning the combined configuration.
func (config ApplicationConfiguration) Merge(override ApplicationConfiguration) ApplicationConfiguration {
	result := config
	result.Document = result.Document.merge(override.Document)
	result.Paths = result.Paths.merge(override.Paths)
	result.Chunking = result.Chunking.merge(override.Chunking)
	result.Summarizer = result.Summarizer.merge(override.Summarizer)
	result.Cache = result.Cache.merge(override.Cache)
	result.Watch = result.Watch.merge(override.Watch)
	return result
}

func (config DocumentConfiguration) merge(override DocumentConfiguration) DocumentConfiguration {
	result := config
	if override.Output != "" {
		result.Output = override.Output
	}
	if override.Title != "" {
		result.Title = override.Title
	}
	if override.Components != nil {
		result.Components = cloneBool(override.Components)
	}
	if override.Clipboard != nil {
		result.Clipboard = cloneBool(override.Clipboard)
	}
	if override.SnapshotDir != "" {
		result.SnapshotDir = override.SnapshotDir
	}
	if override.MetricsFile != "" {
		result.MetricsFile = override.MetricsFile
	}
	return result
}

func (config PathConfiguration) merge(override PathConfiguration) PathConfiguration {
	result := config
	if len(override.Exclude) > 0 {
		result.Exclude = append([]string{}, utils.DeduplicatePatterns(override.Exclude)...)
	}
	if override.UseGitignore != nil {
		result.UseGitignore = cloneBool(override.UseGitignore)
	}
	if override.UseRulesFile != nil {
		result.UseRulesFile = cloneBool(override.UseRulesFile)
	}
	if override.IncludeGit != nil {
		result.IncludeGit = cloneBool(override.IncludeGit)
	}
	if override.FollowSymlink != nil {
		result.FollowSymlink = cloneBool(override.FollowSymlink)
	}
	if override.MaxFileBytes != nil {
		result.MaxFileBytes = cloneInt64(override.MaxFileBytes)
	}
	return result
}

func (config ChunkingConfiguration) merge(override ChunkingConfiguration) ChunkingConfiguration {
	result := config
	if override.Unit != "" {
		result.Unit = override.Unit
	}
	if override.MaxUnitSize != nil {
		result.MaxUnitSize = cloneInt(override.MaxUnitSize)
	}
	if override.Model != "" {
		result.Model = override.Model
	}
	return result
}

func (config SummarizerConfiguration) merge(override SummarizerConfiguration) SummarizerConfiguration {
	result := config
	if override.Provider != "" {
		result.Provider = override.Provider
	}
	if override.Model != "" {
		result.Model = override.Model
	}
	if override.BaseURL != "" {
		result.BaseURL = override.BaseURL
	}
	if override.APIKeyEnv != "" {
		result.APIKeyEnv = override.APIKeyEnv
	}
	if override.MaxAttempts != nil {
		result.MaxAttempts = cloneInt(override.MaxAttempts)
	}
	if override.RequestsPerMinute != nil {
		result.RequestsPerMinute = cloneInt(override.RequestsPerMinute)
	}
	if override.Concurrency != nil {
		result.Concurrency = cloneInt(override.Concurrency)
	}
	if override.Timeout > 0 {
		result.Timeout = override.Timeout
	}
	if override.Temperature != nil {
		result.Temperature = cloneFloat64(override.Temperature)
	}
	if override.RedactSecrets != nil {
		result.RedactSecrets = cloneBool(override.RedactSecrets)
	}
	return result
}

func (config CacheConfiguration) merge(override CacheConfiguration) CacheConfiguration {
	result := config
	if override.Enabled != nil {
		result.Enabled = cloneBool(override.Enabled)
	}
	if override.Backend != "" {
		result.Backend = override.Backend
	}
	if override.Directory != "" {
		result.Directory = override.Directory
	}
	return result
}

func (config WatchConfiguration) merge(override WatchConfiguration) WatchConfiguration {
	result := config
	if override.Debounce > 0 {
		result.Debounce = override.Debounce
	}
	return result
}

func cloneBool(value *bool) *bool {
	if value == nil {
		return nil
	}
	cloned := *value
	return &cloned
}

func cloneInt(value *int) *int {
	if value == nil {
		return nil
	}
	cloned := *value
	return &cloned
}

func cloneInt64(value *int64) *int64 {
	if value == nil {
		return nil
	}
	cloned := *value
	return &cloned
}

func cloneFloat64(value *float64) *float64 {
	if value == nil {
		return nil
	}
	cloned := *value
	return &cloned
}
