package cli

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/temirov/recap/internal/config"
	"github.com/temirov/recap/internal/llm"
	"github.com/temirov/recap/internal/tokenizer"
)

func noEnvironment(string) string { return "" }

func TestResolveSettingsDefaults(t *testing.T) {
	root := t.TempDir()
	resolved, err := resolveSettings(root, config.ApplicationConfiguration{}, false, noEnvironment)
	if err != nil {
		t.Fatalf("resolveSettings error: %v", err)
	}
	if resolved.documentPath != filepath.Join(root, "README.md") {
		t.Fatalf("unexpected document path %s", resolved.documentPath)
	}
	if resolved.provider != llm.ProviderOllama || resolved.model != llm.DefaultModel(llm.ProviderOllama) {
		t.Fatalf("unexpected provider %s/%s", resolved.provider, resolved.model)
	}
	if resolved.unit != tokenizer.UnitTokens || resolved.maxUnitSize != defaultMaxUnitSize || resolved.tokenModel != resolved.model {
		t.Fatalf("unexpected budget %s/%d/%s", resolved.unit, resolved.maxUnitSize, resolved.tokenModel)
	}
	if !resolved.rules.UseRulesFile || resolved.rules.UseGitignore || resolved.rules.IncludeGit {
		t.Fatalf("unexpected rule sources %+v", resolved.rules)
	}
	if !resolved.components || resolved.clipboard || !resolved.redactSecrets || !resolved.cacheEnabled {
		t.Fatalf("unexpected toggles %+v", resolved)
	}
	if resolved.cacheLocation != filepath.Join(root, ".recap", "cache") {
		t.Fatalf("unexpected cache location %s", resolved.cacheLocation)
	}
	if resolved.temperature != defaultTemperature {
		t.Fatalf("unexpected temperature %g", resolved.temperature)
	}
	if resolved.timeout != defaultProviderTimeout || resolved.debounce != defaultWatchDebounce {
		t.Fatalf("unexpected durations %s/%s", resolved.timeout, resolved.debounce)
	}
}

func TestFlagsOverrideConfiguration(t *testing.T) {
	root := t.TempDir()
	disabled := false
	fileConfiguration := config.ApplicationConfiguration{
		Document:   config.DocumentConfiguration{Output: "docs/OVERVIEW.md", Components: &disabled},
		Summarizer: config.SummarizerConfiguration{Provider: "ollama", Model: "llama3.1"},
		Cache:      config.CacheConfiguration{Backend: "duckdb"},
	}
	flags := runFlags{
		provider:     "openai",
		model:        "gpt-4o-mini",
		components:   boolPointer(true),
		concurrency:  8,
		cacheBackend: "sqlite",
		debounce:     5 * time.Second,
		exclude:      []string{"testdata/"},
	}
	environment := func(name string) string {
		if name == openAIKeyVariable {
			return " sk-test "
		}
		return ""
	}
	resolved, err := resolveSettings(root, fileConfiguration.Merge(flags.overrides()), true, environment)
	if err != nil {
		t.Fatalf("resolveSettings error: %v", err)
	}
	if resolved.documentPath != filepath.Join(root, "docs", "OVERVIEW.md") {
		t.Fatalf("configured output must survive: %s", resolved.documentPath)
	}
	if resolved.provider != llm.ProviderOpenAI || resolved.model != "gpt-4o-mini" || resolved.apiKey != "sk-test" {
		t.Fatalf("unexpected provider settings %s/%s/%q", resolved.provider, resolved.model, resolved.apiKey)
	}
	if !resolved.components || resolved.concurrency != 8 || !resolved.dryRun {
		t.Fatalf("flags must override configuration: %+v", resolved)
	}
	if resolved.cacheLocation != filepath.Join(root, ".recap", cacheSQLiteFileName) {
		t.Fatalf("unexpected cache location %s", resolved.cacheLocation)
	}
	if resolved.debounce != 5*time.Second || strings.Join(resolved.rules.Exclude, ",") != "testdata/" {
		t.Fatalf("unexpected watch or rule settings %+v", resolved)
	}
}

func TestResolveSettingsRejectsInvalidValues(t *testing.T) {
	zero := 0
	scorching := 3.5
	testCases := []struct {
		name          string
		configuration config.ApplicationConfiguration
		expected      string
	}{
		{
			name:          "unknown_backend",
			configuration: config.ApplicationConfiguration{Cache: config.CacheConfiguration{Backend: "redis"}},
			expected:      "unknown cache backend",
		},
		{
			name:          "zero_concurrency",
			configuration: config.ApplicationConfiguration{Summarizer: config.SummarizerConfiguration{Concurrency: &zero}},
			expected:      "summarizer.concurrency",
		},
		{
			name:          "zero_budget",
			configuration: config.ApplicationConfiguration{Chunking: config.ChunkingConfiguration{MaxUnitSize: &zero}},
			expected:      "chunking.max_unit_size",
		},
		{
			name:          "unknown_provider",
			configuration: config.ApplicationConfiguration{Summarizer: config.SummarizerConfiguration{Provider: "anthropic"}},
			expected:      "unknown provider",
		},
		{
			name:          "temperature_out_of_range",
			configuration: config.ApplicationConfiguration{Summarizer: config.SummarizerConfiguration{Temperature: &scorching}},
			expected:      "summarizer.temperature",
		},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			_, err := resolveSettings(t.TempDir(), testCase.configuration, false, noEnvironment)
			if err == nil || !strings.Contains(err.Error(), testCase.expected) {
				t.Fatalf("expected error containing %q, got %v", testCase.expected, err)
			}
		})
	}
}

func TestSkipPathsCoverGeneratedFiles(t *testing.T) {
	root := t.TempDir()
	outside := filepath.Join(t.TempDir(), "recap.prom")
	resolved := settings{
		root:              root,
		documentPath:      filepath.Join(root, "README.md"),
		snapshotDirectory: filepath.Join(root, "outputs", "summaries"),
		metricsFile:       outside,
		cacheLocation:     filepath.Join(root, ".recap", "cache"),
	}
	expected := "README.md,README.md.recap.md,.recap,outputs/summaries,.recap/cache"
	if joined := strings.Join(resolved.skipPaths(), ","); joined != expected {
		t.Fatalf("expected %s, got %s", expected, joined)
	}
}
