// Package chunker splits normalized document text into overlapping
// fixed-size segments for embedding and indexing.
package chunker

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidConfig is returned when chunk size or overlap are out of range.
var ErrInvalidConfig = errors.New("invalid chunker configuration")

// Chunker splits text into rune windows of Size runes, each window
// overlapping the previous by Overlap runes.
type Chunker struct {
	size    int
	overlap int
}

// New creates a Chunker. size must be positive and overlap must satisfy
// 0 <= overlap < size.
func New(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", ErrInvalidConfig, size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: overlap must be in [0, %d), got %d", ErrInvalidConfig, size, overlap)
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

// Size returns the configured window size in runes.
func (c *Chunker) Size() int { return c.size }

// Overlap returns the configured window overlap in runes.
func (c *Chunker) Overlap() int { return c.overlap }

// Normalize collapses all whitespace runs to single spaces and trims the ends.
// Chunk boundaries are always computed over normalized text so that the same
// document produces the same chunks regardless of its original line layout.
func Normalize(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// Split returns the chunks of the normalized text, in document order.
// The window advances by size-overlap runes; the last chunk may be shorter
// than size. Text shorter than size yields exactly one chunk. Empty text
// yields no chunks. Split is a pure function of its input.
func (c *Chunker) Split(text string) []string {
	runes := []rune(Normalize(text))
	if len(runes) == 0 {
		return nil
	}

	step := c.size - c.overlap
	var chunks []string
	for start := 0; start < len(runes); start += step {
		end := start + c.size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}
