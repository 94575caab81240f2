// Package matcher decides whether a repository path is excluded from summarization.
//
// Rules use shell-glob intuition rather than regular expressions:
//
//	venv/      directory rule, matches any directory named venv
//	*.pyc      extension rule, matches the suffix of the final path segment
//	Makefile   literal rule, matches the final path segment
//
// A leading "/" or an inner "/" anchors a directory or literal rule at the
// repository root. Every segment comparison uses path.Match, so rules such as
// "*.egg-info/" or "build-*" behave as globs within a single segment.
package matcher

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/temirov/recap/internal/utils"
)

// RuleKind classifies an exclusion rule.
type RuleKind string

const (
	RuleKindDirectory RuleKind = "directory"
	RuleKindExtension RuleKind = "extension"
	RuleKindLiteral   RuleKind = "literal"
)

const (
	commentPrefix     = "#"
	negationPrefix    = "!"
	extensionPrefix   = "*."
	segmentSeparator  = "/"
	globMetaCharacter = `*?[\`
)

// ErrMalformedRule reports a rule line that cannot be interpreted.
var ErrMalformedRule = errors.New("malformed exclusion rule")

// Rule is a single immutable exclusion rule.
type Rule struct {
	Pattern  string
	Kind     RuleKind
	anchored bool
	segments []string
	suffix   string
}

// String returns the rule as it appeared in its source.
func (rule Rule) String() string {
	return rule.Pattern
}

// FilterError describes a rule line that was skipped.
type FilterError struct {
	Source string
	Line   int
	Text   string
	Err    error
}

func (filterError *FilterError) Error() string {
	return fmt.Sprintf("%s:%d: %q: %v", filterError.Source, filterError.Line, filterError.Text, filterError.Err)
}

func (filterError *FilterError) Unwrap() error {
	return filterError.Err
}

// ParseRule classifies a single non-comment rule line.
func ParseRule(line string) (Rule, error) {
	pattern := strings.TrimSpace(line)
	if pattern == "" {
		return Rule{}, fmt.Errorf("%w: empty pattern", ErrMalformedRule)
	}
	if strings.HasPrefix(pattern, negationPrefix) {
		return Rule{}, fmt.Errorf("%w: negated patterns are not supported", ErrMalformedRule)
	}

	rule := Rule{Pattern: pattern}
	body := pattern
	switch {
	case strings.HasSuffix(body, segmentSeparator):
		rule.Kind = RuleKindDirectory
		body = strings.TrimSuffix(body, segmentSeparator)
	case strings.HasPrefix(body, extensionPrefix):
		rule.Kind = RuleKindExtension
		rule.suffix = strings.TrimPrefix(body, "*")
		if rule.suffix == "." {
			return Rule{}, fmt.Errorf("%w: extension rule without an extension", ErrMalformedRule)
		}
		if strings.Contains(rule.suffix, segmentSeparator) {
			return Rule{}, fmt.Errorf("%w: extension rule spans directories", ErrMalformedRule)
		}
		if _, matchError := path.Match(body, ""); matchError != nil {
			return Rule{}, fmt.Errorf("%w: %v", ErrMalformedRule, matchError)
		}
		return rule, nil
	default:
		rule.Kind = RuleKindLiteral
	}

	if strings.HasPrefix(body, segmentSeparator) {
		rule.anchored = true
		body = strings.TrimPrefix(body, segmentSeparator)
	}
	if body == "" {
		return Rule{}, fmt.Errorf("%w: pattern has no name", ErrMalformedRule)
	}
	segments := strings.Split(body, segmentSeparator)
	for _, segment := range segments {
		if segment == "" {
			return Rule{}, fmt.Errorf("%w: empty path segment", ErrMalformedRule)
		}
		if _, matchError := path.Match(segment, ""); matchError != nil {
			return Rule{}, fmt.Errorf("%w: %v", ErrMalformedRule, matchError)
		}
	}
	if len(segments) > 1 {
		rule.anchored = true
	}
	rule.segments = segments
	return rule, nil
}

// ParseRules reads rule lines from reader. Blank lines and lines starting with
// "#" are ignored; malformed lines are returned as FilterErrors and skipped.
// The returned error is non-nil only when reading fails.
func ParseRules(reader io.Reader, source string) ([]Rule, []*FilterError, error) {
	var rules []Rule
	var filterErrors []*FilterError
	scanner := bufio.NewScanner(reader)
	lineNumber := 0
	for scanner.Scan() {
		lineNumber++
		trimmedLine := strings.TrimSpace(scanner.Text())
		if trimmedLine == "" || strings.HasPrefix(trimmedLine, commentPrefix) {
			continue
		}
		rule, parseError := ParseRule(trimmedLine)
		if parseError != nil {
			filterErrors = append(filterErrors, &FilterError{Source: source, Line: lineNumber, Text: trimmedLine, Err: parseError})
			continue
		}
		rules = append(rules, rule)
	}
	if scanError := scanner.Err(); scanError != nil {
		return nil, nil, fmt.Errorf("reading rules from %s: %w", source, scanError)
	}
	return rules, filterErrors, nil
}

// Matcher evaluates an ordered, immutable set of rules.
type Matcher struct {
	rules []Rule
}

// New constructs a Matcher over rules. Duplicate patterns are collapsed.
func New(rules []Rule) *Matcher {
	seen := make(map[string]struct{}, len(rules))
	unique := make([]Rule, 0, len(rules))
	for _, rule := range rules {
		if _, duplicate := seen[rule.Pattern]; duplicate {
			continue
		}
		seen[rule.Pattern] = struct{}{}
		unique = append(unique, rule)
	}
	return &Matcher{rules: unique}
}

// Rules returns a copy of the rules in evaluation order.
func (matcher *Matcher) Rules() []Rule {
	return append([]Rule(nil), matcher.rules...)
}

// IsExcluded reports whether the relative, forward-slash path is excluded.
// A trailing slash marks relativePath as a directory: directory rules match
// its final segment only then, and match any parent segment regardless. The
// repository root is never excluded. The verdict depends only on the path
// and the rules, never on traversal order.
func (matcher *Matcher) IsExcluded(relativePath string) bool {
	if matcher == nil {
		return false
	}
	pathSegments := utils.PathSegments(relativePath)
	if len(pathSegments) == 0 {
		return false
	}
	isDirectory := strings.HasSuffix(relativePath, segmentSeparator)
	for _, rule := range matcher.rules {
		if rule.matches(pathSegments, isDirectory) {
			return true
		}
	}
	return false
}

func (rule Rule) matches(pathSegments []string, isDirectory bool) bool {
	lastIndex := len(pathSegments) - 1
	name := pathSegments[lastIndex]
	switch rule.Kind {
	case RuleKindExtension:
		if strings.ContainsAny(rule.suffix, globMetaCharacter) {
			return matchSegment("*"+rule.suffix, name)
		}
		return strings.HasSuffix(name, rule.suffix)
	case RuleKindDirectory:
		if rule.anchored {
			ruleLength := len(rule.segments)
			if len(pathSegments) < ruleLength || (len(pathSegments) == ruleLength && !isDirectory) {
				return false
			}
			return segmentsMatch(pathSegments[:ruleLength], rule.segments)
		}
		for segmentIndex, segment := range pathSegments {
			if segmentIndex == lastIndex && !isDirectory {
				break
			}
			if matchSegment(rule.segments[0], segment) {
				return true
			}
		}
		return false
	case RuleKindLiteral:
		if rule.anchored {
			return len(pathSegments) == len(rule.segments) && segmentsMatch(pathSegments, rule.segments)
		}
		return matchSegment(rule.segments[0], name)
	default:
		return false
	}
}

// segmentsMatch reports whether each pattern segment matches the corresponding
// path segment.
func segmentsMatch(pathSegments, patternSegments []string) bool {
	for segmentIndex, patternSegment := range patternSegments {
		if !matchSegment(patternSegment, pathSegments[segmentIndex]) {
			return false
		}
	}
	return true
}

func matchSegment(pattern, segment string) bool {
	isMatched, matchError := path.Match(pattern, segment)
	return matchError == nil && isMatched
}
