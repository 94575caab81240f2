// Package config loads exclusion rule files and application configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/temirov/recap/internal/matcher"
	"github.com/temirov/recap/internal/utils"
)

const (
	// gitDirectoryPattern represents the rule that excludes the Git directory.
	gitDirectoryPattern = utils.GitDirectoryName + "/"
	// configurationRuleSource labels rules that come from configuration or flags.
	configurationRuleSource = "configuration"
)

// RuleOptions selects the sources that contribute exclusion rules.
type RuleOptions struct {
	UseRulesFile bool
	UseGitignore bool
	IncludeGit   bool
	Exclude      []string
}

// RuleSet is the immutable rule list for a run plus the lines that were skipped.
type RuleSet struct {
	Rules        []matcher.Rule
	FilterErrors []*matcher.FilterError
}

// Matcher builds a matcher over the loaded rules.
func (ruleSet RuleSet) Matcher() *matcher.Matcher {
	return matcher.New(ruleSet.Rules)
}

// LoadRuleFile reads a rule file. A missing file yields no rules and no error.
//
// #nosec G304
func LoadRuleFile(ruleFilePath string) ([]matcher.Rule, []*matcher.FilterError, error) {
	fileHandle, openFileError := os.Open(ruleFilePath)
	if openFileError != nil {
		if os.IsNotExist(openFileError) {
			return nil, nil, nil
		}
		return nil, nil, openFileError
	}
	defer func() {
		closeError := fileHandle.Close()
		if closeError != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close %s: %v\n", ruleFilePath, closeError)
		}
	}()
	return matcher.ParseRules(fileHandle, filepath.Base(ruleFilePath))
}

// LoadExclusionRules aggregates rules from the rules file and/or .gitignore in
// the root directory. The .git directory is excluded by default unless
// IncludeGit is true. Exclude patterns from configuration are appended last.
func LoadExclusionRules(absoluteRootPath string, options RuleOptions) (RuleSet, error) {
	var ruleSet RuleSet

	if options.UseRulesFile {
		rules, filterErrors, loadError := LoadRuleFile(filepath.Join(absoluteRootPath, utils.RulesFileName))
		if loadError != nil {
			return RuleSet{}, fmt.Errorf("loading %s from %s: %w", utils.RulesFileName, absoluteRootPath, loadError)
		}
		ruleSet.Rules = append(ruleSet.Rules, rules...)
		ruleSet.FilterErrors = append(ruleSet.FilterErrors, filterErrors...)
	}

	if options.UseGitignore {
		rules, filterErrors, loadError := LoadRuleFile(filepath.Join(absoluteRootPath, utils.GitIgnoreFileName))
		if loadError != nil {
			return RuleSet{}, fmt.Errorf("loading %s from %s: %w", utils.GitIgnoreFileName, absoluteRootPath, loadError)
		}
		ruleSet.Rules = append(ruleSet.Rules, rules...)
		ruleSet.FilterErrors = append(ruleSet.FilterErrors, filterErrors...)
	}

	additionalPatterns := utils.DeduplicatePatterns(options.Exclude)
	if !options.IncludeGit {
		additionalPatterns = append(additionalPatterns, gitDirectoryPattern)
	}
	for patternIndex, pattern := range additionalPatterns {
		trimmedPattern := strings.TrimSpace(pattern)
		if trimmedPattern == "" {
			continue
		}
		rule, parseError := matcher.ParseRule(trimmedPattern)
		if parseError != nil {
			ruleSet.FilterErrors = append(ruleSet.FilterErrors, &matcher.FilterError{
				Source: configurationRuleSource,
				Line:   patternIndex + 1,
				Text:   trimmedPattern,
				Err:    parseError,
			})
			continue
		}
		ruleSet.Rules = append(ruleSet.Rules, rule)
	}

	return ruleSet, nil
}
