// Package chunker splits long text into overlapping word windows.
//
// Short inputs pass through as a single chunk. Long inputs are split into
// windows of at most MaxWords words, with OverlapWords words repeated at each
// boundary so that statements spanning a cut survive in at least one chunk.
package chunker

import (
	"iter"
	"strings"
)

// Default window parameters.
const (
	// DefaultMinWords is the threshold below which text is never split.
	DefaultMinWords = 200

	// DefaultMaxWords is the maximum words per chunk.
	DefaultMaxWords = 300

	// DefaultOverlapWords is the number of words repeated across adjacent
	// chunk boundaries.
	DefaultOverlapWords = 30
)

// Chunk is one window of the input text.
type Chunk struct {
	// Index is the zero-based position of the chunk in the input order.
	Index int

	// Text is the chunk content, words joined by single spaces.
	Text string

	// Words is the word count of the chunk.
	Words int
}

// Chunker splits text into overlapping word windows.
type Chunker struct {
	minWords     int
	maxWords     int
	overlapWords int
}

// Option configures a Chunker.
type Option func(*Chunker)

// WithWindow overrides the minimum and maximum chunk sizes in words.
func WithWindow(minWords, maxWords int) Option {
	return func(c *Chunker) {
		c.minWords = minWords
		c.maxWords = maxWords
	}
}

// WithOverlap overrides the number of words repeated across boundaries.
func WithOverlap(words int) Option {
	return func(c *Chunker) {
		c.overlapWords = words
	}
}

// New creates a Chunker with the default window parameters.
func New(opts ...Option) *Chunker {
	c := &Chunker{
		minWords:     DefaultMinWords,
		maxWords:     DefaultMaxWords,
		overlapWords: DefaultOverlapWords,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.overlapWords >= c.maxWords {
		c.overlapWords = c.maxWords - 1
	}
	return c
}

// Chunks returns a lazy sequence of chunks in input order. The sequence can
// be ranged over more than once; each range restarts from the beginning.
// Whitespace-only input yields nothing.
func (c *Chunker) Chunks(text string) iter.Seq[Chunk] {
	return func(yield func(Chunk) bool) {
		words := strings.Fields(text)
		if len(words) == 0 {
			return
		}

		if len(words) <= c.maxWords {
			yield(Chunk{Index: 0, Text: strings.Join(words, " "), Words: len(words)})
			return
		}

		stride := c.maxWords - c.overlapWords
		index := 0
		for start := 0; start < len(words); start += stride {
			end := start + c.maxWords
			if end > len(words) {
				end = len(words)
			}
			window := words[start:end]
			if !yield(Chunk{Index: index, Text: strings.Join(window, " "), Words: len(window)}) {
				return
			}
			if end == len(words) {
				return
			}
			index++
		}
	}
}

// Split materializes all chunks of the input at once.
func (c *Chunker) Split(text string) []Chunk {
	var chunks []Chunk
	for chunk := range c.Chunks(text) {
		chunks = append(chunks, chunk)
	}
	return chunks
}
