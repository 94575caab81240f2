// Package tokenizer measures text in the unit used for chunk budgets.
package tokenizer

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// Counter measures text size in budget units.
type Counter interface {
	Name() string
	CountString(input string) (int, error)
}

// Unit selects how text is measured.
type Unit string

const (
	// UnitTokens measures text in tiktoken tokens.
	UnitTokens Unit = "tokens"
	// UnitCharacters measures text in Unicode code points.
	UnitCharacters Unit = "characters"
)

// Config captures counter selection parameters.
type Config struct {
	Unit  Unit
	Model string
}

const (
	defaultModel         = "gpt-4o"
	defaultEncodingName  = "cl100k_base"
	characterCounterName = "characters"
)

// NewCounter returns a Counter for the configured unit. Token counters use the
// model's tiktoken encoding and fall back to cl100k_base for models tiktoken
// does not know, which covers local models served through Ollama.
func NewCounter(cfg Config) (Counter, error) {
	switch Unit(strings.ToLower(strings.TrimSpace(string(cfg.Unit)))) {
	case UnitCharacters:
		return RuneCounter{}, nil
	case UnitTokens, "":
		model := strings.ToLower(strings.TrimSpace(cfg.Model))
		if model == "" {
			model = defaultModel
		}
		if isOpenAIModel(model) {
			encoding, err := tiktoken.EncodingForModel(model)
			if err == nil && encoding != nil {
				return tiktokenCounter{encoding: encoding, name: model}, nil
			}
		}
		fallback, fallbackErr := tiktoken.GetEncoding(defaultEncodingName)
		if fallbackErr != nil {
			return nil, fmt.Errorf("initialize fallback tokenizer: %w", fallbackErr)
		}
		return tiktokenCounter{encoding: fallback, name: defaultEncodingName}, nil
	default:
		return nil, fmt.Errorf("unsupported budget unit %q", cfg.Unit)
	}
}

// RuneCounter measures text in Unicode code points.
type RuneCounter struct{}

// Name identifies the counter.
func (RuneCounter) Name() string {
	return characterCounterName
}

// CountString returns the number of runes in input.
func (RuneCounter) CountString(input string) (int, error) {
	return utf8.RuneCountInString(input), nil
}

func isOpenAIModel(model string) bool {
	prefixes := []string{
		"gpt-",
		"o1",
		"o3",
		"text-embedding",
		"davinci",
		"code-",
	}
	for _, prefix := range prefixes {
		if strings.HasPrefix(model, prefix) {
			return true
		}
	}
	return false
}
