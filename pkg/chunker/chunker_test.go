package chunker

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeWords(n int) string {
	words := make([]string, n)
	for i := range words {
		words[i] = fmt.Sprintf("w%d", i)
	}
	return strings.Join(words, " ")
}

func TestChunkerShortTextSingleChunk(t *testing.T) {
	c := New()

	chunks := c.Split(makeWords(150))
	require.Len(t, chunks, 1)
	assert.Equal(t, 0, chunks[0].Index)
	assert.Equal(t, 150, chunks[0].Words)
}

func TestChunkerExactMaxSingleChunk(t *testing.T) {
	c := New()

	chunks := c.Split(makeWords(300))
	require.Len(t, chunks, 1)
	assert.Equal(t, 300, chunks[0].Words)
}

func TestChunkerEmptyInput(t *testing.T) {
	c := New()

	assert.Empty(t, c.Split(""))
	assert.Empty(t, c.Split("   \n\t  "))
}

func TestChunkerLongTextOverlap(t *testing.T) {
	c := New()

	chunks := c.Split(makeWords(330))
	require.Len(t, chunks, 2)

	assert.Equal(t, 300, chunks[0].Words)
	assert.Equal(t, 60, chunks[1].Words)

	// The last 30 words of chunk 0 reappear at the start of chunk 1.
	first := strings.Fields(chunks[0].Text)
	second := strings.Fields(chunks[1].Text)
	assert.Equal(t, first[len(first)-30:], second[:30])
}

func TestChunkerOrderAndIndices(t *testing.T) {
	c := New()

	chunks := c.Split(makeWords(1000))
	require.NotEmpty(t, chunks)
	for i, chunk := range chunks {
		assert.Equal(t, i, chunk.Index)
		assert.LessOrEqual(t, chunk.Words, 300)
	}

	// Every word survives: the union of chunks covers the input.
	last := chunks[len(chunks)-1]
	lastWords := strings.Fields(last.Text)
	assert.Equal(t, "w999", lastWords[len(lastWords)-1])
}

func TestChunkerLazySequenceRestarts(t *testing.T) {
	c := New()
	seq := c.Chunks(makeWords(330))

	var first, second int
	for range seq {
		first++
	}
	for range seq {
		second++
	}
	assert.Equal(t, first, second)
	assert.Equal(t, 2, first)
}

func TestChunkerEarlyStop(t *testing.T) {
	c := New()

	var seen int
	for range c.Chunks(makeWords(2000)) {
		seen++
		if seen == 1 {
			break
		}
	}
	assert.Equal(t, 1, seen)
}

func TestChunkerCustomWindow(t *testing.T) {
	c := New(WithWindow(5, 10), WithOverlap(2))

	chunks := c.Split(makeWords(20))
	require.Len(t, chunks, 3)
	assert.Equal(t, 10, chunks[0].Words)
	assert.Equal(t, 10, chunks[1].Words)
	assert.Equal(t, 4, chunks[2].Words)
}
