package core

import "strings"

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// Chunker splits text into overlapping windows, preferring to cut right after
// a sentence delimiter. Sizes are measured in characters (runes).
type Chunker struct {
	size    int
	overlap int
}

type ChunkerOption func(*Chunker)

func WithChunkSize(size int) ChunkerOption {
	return func(c *Chunker) {
		if size > 0 {
			c.size = size
		}
	}
}

func WithChunkOverlap(overlap int) ChunkerOption {
	return func(c *Chunker) {
		if overlap >= 0 {
			c.overlap = overlap
		}
	}
}

func NewChunker(opts ...ChunkerOption) *Chunker {
	c := &Chunker{size: DefaultChunkSize, overlap: DefaultChunkOverlap}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type span struct {
	start, end int
}

// Chunk normalizes whitespace and returns the ordered, non-empty chunks.
func (c *Chunker) Chunk(text string) []string {
	runes := []rune(normalizeWhitespace(text))

	var chunks []string
	for _, sp := range c.spans(runes) {
		if chunk := strings.TrimSpace(string(runes[sp.start:sp.end])); chunk != "" {
			chunks = append(chunks, chunk)
		}
	}
	return chunks
}

func (c *Chunker) spans(runes []rune) []span {
	n := len(runes)
	var out []span

	for start := 0; start < n; {
		end := start + c.size
		if end >= n {
			out = append(out, span{start, n})
			break
		}
		// A cut inside the overlap region would not move the next window forward.
		if cut := lastDelimiterEnd(runes, start, end); cut > start+c.overlap {
			end = cut
		}
		out = append(out, span{start, end})

		next := end - c.overlap
		if next <= start {
			// The window was cut shorter than the overlap; keeping the
			// overlap would stall the cursor.
			next = end
		}
		start = next
	}
	return out
}

// lastDelimiterEnd returns the index just past the last sentence delimiter
// lying entirely inside runes[start:end], or -1. Delimiters are ". ", "! ",
// "? ", their newline forms, and a blank line.
func lastDelimiterEnd(runes []rune, start, end int) int {
	for i := end - 2; i >= start; i-- {
		cur, nxt := runes[i], runes[i+1]
		switch {
		case (cur == '.' || cur == '!' || cur == '?') && (nxt == ' ' || nxt == '\n'):
			return i + 2
		case cur == '\n' && nxt == '\n':
			return i + 2
		}
	}
	return -1
}

func normalizeWhitespace(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
