package core

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewChunker(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		c := NewChunker()
		assert.Equal(t, DefaultChunkSize, c.size)
		assert.Equal(t, DefaultChunkOverlap, c.overlap)
	})

	t.Run("invalid values ignored", func(t *testing.T) {
		c := NewChunker(WithChunkSize(0), WithChunkOverlap(-5))
		assert.Equal(t, DefaultChunkSize, c.size)
		assert.Equal(t, DefaultChunkOverlap, c.overlap)
	})
}

func TestChunker_EmptyInput(t *testing.T) {
	c := NewChunker()
	assert.Empty(t, c.Chunk(""))
	assert.Empty(t, c.Chunk(" \n\t  \r\n "))
}

func TestChunker_ShortTextIsSingleChunk(t *testing.T) {
	c := NewChunker(WithChunkSize(1000), WithChunkOverlap(200))

	chunks := c.Chunk("Cats are mammals. Dogs are mammals too.")
	assert.Equal(t, []string{"Cats are mammals. Dogs are mammals too."}, chunks)

	exact := strings.Repeat("x", 1000)
	assert.Equal(t, []string{exact}, c.Chunk(exact))
}

func TestChunker_NormalizesWhitespace(t *testing.T) {
	c := NewChunker()
	chunks := c.Chunk("  Hello\n\n  world\tagain  ")
	assert.Equal(t, []string{"Hello world again"}, chunks)
}

func TestChunker_CutsAtSentenceBoundary(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "period",
			text: "Alpha beta gamma. Delta epsilon zeta. Eta theta iota kappa lambda.",
			want: []string{"Alpha beta gamma. Delta epsilon zeta.", "Eta theta iota kappa lambda."},
		},
		{
			name: "question and exclamation",
			text: "Is this the first one? Surely it is not! And then the rest follows here.",
			want: []string{"Is this the first one? Surely it is not!", "And then the rest follows here."},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewChunker(WithChunkSize(42), WithChunkOverlap(0))
			assert.Equal(t, tt.want, c.Chunk(tt.text))
		})
	}
}

func TestChunker_HardCutWithoutDelimiter(t *testing.T) {
	c := NewChunker(WithChunkSize(10), WithChunkOverlap(3))
	chunks := c.Chunk("abcdefghijklmnopqrstuvwxyz")

	assert.Equal(t, []string{"abcdefghij", "hijklmnopq", "opqrstuvwx", "vwxyz"}, chunks)
}

func TestChunker_SpansCoverNormalizedText(t *testing.T) {
	text := strings.Repeat("The quick brown fox jumps over the lazy dog. Pack my box with five dozen jugs! ", 40)
	normalized := []rune(normalizeWhitespace(text))

	c := NewChunker(WithChunkSize(120), WithChunkOverlap(30))
	spans := c.spans(normalized)
	require.NotEmpty(t, spans)

	assert.Equal(t, 0, spans[0].start)
	assert.Equal(t, len(normalized), spans[len(spans)-1].end)

	for i, sp := range spans {
		assert.LessOrEqual(t, sp.end-sp.start, 120, "span %d too long", i)
		if i == 0 {
			continue
		}
		prev := spans[i-1]
		assert.Greater(t, sp.start, prev.start, "cursor must advance")
		assert.Equal(t, 30, prev.end-sp.start, "span %d overlap", i)
	}

	// Dropping each span's overlap with its predecessor rebuilds the text.
	var rebuilt []rune
	for i, sp := range spans {
		from := sp.start
		if i > 0 {
			from = spans[i-1].end
		}
		rebuilt = append(rebuilt, normalized[from:sp.end]...)
	}
	assert.Equal(t, string(normalized), string(rebuilt))
}

func TestChunker_OverlapNotSmallerThanSizeTerminates(t *testing.T) {
	text := strings.Repeat("word ", 200)

	for _, overlap := range []int{10, 25} {
		c := NewChunker(WithChunkSize(10), WithChunkOverlap(overlap))
		spans := c.spans([]rune(normalizeWhitespace(text)))

		require.NotEmpty(t, spans)
		for i := 1; i < len(spans); i++ {
			assert.Greater(t, spans[i].start, spans[i-1].start)
		}
	}
}

func TestChunker_CountsRunes(t *testing.T) {
	text := strings.Repeat("é", 25)
	c := NewChunker(WithChunkSize(10), WithChunkOverlap(0))

	chunks := c.Chunk(text)
	require.Len(t, chunks, 3)
	for _, ch := range chunks {
		assert.True(t, utf8.ValidString(ch))
	}
	assert.Equal(t, 10, utf8.RuneCountInString(chunks[0]))
	assert.Equal(t, 5, utf8.RuneCountInString(chunks[2]))
}
