package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/temirov/recap/internal/utils"
)

// InitTarget identifies where configuration should be initialized.
type InitTarget string

const (
	// InitTargetLocal writes configuration and the rules file into the working directory.
	InitTargetLocal InitTarget = "local"
	// InitTargetGlobal writes configuration into the global configuration directory.
	InitTargetGlobal InitTarget = "global"

	defaultConfigurationTemplate = `document:
  output: README.md
  components: true
  clipboard: false
paths:
  exclude: []
  use_gitignore: false
  use_ignore: true
  include_git: false
  follow_symlinks: false
  max_file_bytes: 1048576
chunking:
  unit: tokens
  max_unit_size: 3000
  model: gpt-4o
summarizer:
  provider: ollama
  model: llama3.1
  max_attempts: 4
  requests_per_minute: 60
  concurrency: 4
  timeout: 2m
  temperature: 0.2
  redact_secrets: true
cache:
  enabled: true
  backend: file
watch:
  debounce: 2s
`

	defaultRulesTemplate = `# Paths recap never summarizes.
# name/    excludes a directory with that name at any depth
# *.ext    excludes files with that extension
# name     excludes files with exactly that name
venv/
__pycache__/
.git/
outputs/
logs/
`
)

// InitOptions controls how configuration initialization behaves.
type InitOptions struct {
	Target           InitTarget
	Force            bool
	WorkingDirectory string
}

// InitializeConfiguration writes the default configuration to the requested
// target. A local target also writes the default rules file when it is absent
// or when Force is set. The written paths are returned in order.
func InitializeConfiguration(options InitOptions) ([]string, error) {
	target := options.Target
	if target == "" {
		target = InitTargetLocal
	}
	var destinationPath string
	var rulesPath string
	switch target {
	case InitTargetLocal:
		workingDirectory := options.WorkingDirectory
		if workingDirectory == "" {
			current, err := os.Getwd()
			if err != nil {
				return nil, fmt.Errorf("determine working directory for configuration: %w", err)
			}
			workingDirectory = current
		}
		destinationPath = filepath.Join(workingDirectory, utils.ConfigFileName)
		rulesPath = filepath.Join(workingDirectory, utils.RulesFileName)
	case InitTargetGlobal:
		homeDirectory, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home directory for configuration: %w", err)
		}
		configurationDirectory := filepath.Join(homeDirectory, utils.GlobalConfigDirectoryName)
		if err := os.MkdirAll(configurationDirectory, 0o755); err != nil {
			return nil, fmt.Errorf("create configuration directory %s: %w", configurationDirectory, err)
		}
		destinationPath = filepath.Join(configurationDirectory, utils.GlobalConfigFileName)
	default:
		return nil, fmt.Errorf("unsupported init target %q", target)
	}

	if _, err := os.Stat(destinationPath); err == nil {
		if !options.Force {
			return nil, fmt.Errorf("configuration file already exists at %s", destinationPath)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("inspect configuration path %s: %w", destinationPath, err)
	}

	if err := os.WriteFile(destinationPath, []byte(defaultConfigurationTemplate), 0o600); err != nil {
		return nil, fmt.Errorf("write configuration to %s: %w", destinationPath, err)
	}
	writtenPaths := []string{destinationPath}

	if rulesPath == "" {
		return writtenPaths, nil
	}
	if _, err := os.Stat(rulesPath); err == nil && !options.Force {
		return writtenPaths, nil
	}
	if err := os.WriteFile(rulesPath, []byte(defaultRulesTemplate), 0o644); err != nil {
		return writtenPaths, fmt.Errorf("write rules to %s: %w", rulesPath, err)
	}
	return append(writtenPaths, rulesPath), nil
}
