// Package chunker splits text into units that fit a size budget.
package chunker

import (
	"errors"
	"fmt"
	"strings"

	"github.com/temirov/recap/internal/tokenizer"
)

const lineSeparator = "\n"

// ErrInvalidBudget reports a non-positive unit budget.
var ErrInvalidBudget = errors.New("unit budget must be positive")

// Chunk is one budgeted slice of content. Index is zero based.
type Chunk struct {
	Index int
	Total int
	Text  string
}

// Budgeter splits content under a maximum unit size measured by a Counter.
type Budgeter struct {
	counter     tokenizer.Counter
	maxUnitSize int
}

// NewBudgeter constructs a Budgeter.
func NewBudgeter(counter tokenizer.Counter, maxUnitSize int) (*Budgeter, error) {
	if counter == nil {
		return nil, errors.New("nil tokenizer counter")
	}
	if maxUnitSize <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidBudget, maxUnitSize)
	}
	return &Budgeter{counter: counter, maxUnitSize: maxUnitSize}, nil
}

// MaxUnitSize returns the configured budget.
func (budgeter *Budgeter) MaxUnitSize() int {
	return budgeter.maxUnitSize
}

// Measure returns the size of content in budget units.
func (budgeter *Budgeter) Measure(content string) (int, error) {
	return budgeter.counter.CountString(content)
}

// Fits reports whether content is within the budget.
func (budgeter *Budgeter) Fits(content string) (bool, error) {
	size, err := budgeter.Measure(content)
	if err != nil {
		return false, err
	}
	return size <= budgeter.maxUnitSize, nil
}

// Split divides content into ordered chunks. Content within the budget yields
// exactly one chunk. Otherwise lines are packed greedily and a chunk is closed
// at the line boundary before the budget would be exceeded; a single line
// larger than the budget becomes a chunk of its own. Concatenating the chunk
// texts in order reproduces content exactly.
func (budgeter *Budgeter) Split(content string) ([]Chunk, error) {
	fits, err := budgeter.Fits(content)
	if err != nil {
		return nil, err
	}
	if fits {
		return []Chunk{{Index: 0, Total: 1, Text: content}}, nil
	}

	var texts []string
	var current strings.Builder
	currentSize := 0
	for _, line := range strings.SplitAfter(content, lineSeparator) {
		if line == "" {
			continue
		}
		lineSize, countErr := budgeter.counter.CountString(line)
		if countErr != nil {
			return nil, countErr
		}
		if current.Len() > 0 && currentSize+lineSize > budgeter.maxUnitSize {
			texts = append(texts, current.String())
			current.Reset()
			currentSize = 0
		}
		current.WriteString(line)
		currentSize += lineSize
	}
	if current.Len() > 0 {
		texts = append(texts, current.String())
	}

	chunks := make([]Chunk, len(texts))
	for chunkIndex, text := range texts {
		chunks[chunkIndex] = Chunk{Index: chunkIndex, Total: len(texts), Text: text}
	}
	return chunks, nil
}

// Split is a convenience wrapper that builds a Budgeter and splits content.
func Split(content string, counter tokenizer.Counter, maxUnitSize int) ([]Chunk, error) {
	budgeter, err := NewBudgeter(counter, maxUnitSize)
	if err != nil {
		return nil, err
	}
	return budgeter.Split(content)
}
