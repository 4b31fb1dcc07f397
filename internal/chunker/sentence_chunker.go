package chunker

import (
	"strings"
	"unicode/utf8"
)

// DefaultMaxChunkSize is the soft upper bound on chunk length, in characters.
const DefaultMaxChunkSize = 350

// SentenceChunker packs consecutive sentences into chunks of bounded size.
type SentenceChunker struct {
	maxChunkSize int
}

func NewSentenceChunker(maxChunkSize int) *SentenceChunker {
	if maxChunkSize <= 0 {
		maxChunkSize = DefaultMaxChunkSize
	}
	return &SentenceChunker{maxChunkSize: maxChunkSize}
}

// MaxChunkSize returns the configured bound.
func (c *SentenceChunker) MaxChunkSize() int { return c.maxChunkSize }

// Chunk splits text using the configured bound.
func (c *SentenceChunker) Chunk(text string) []string {
	return Chunk(text, c.maxChunkSize)
}

// Chunk normalises whitespace, segments text into sentences and greedily packs
// them into chunks whose length stays within maxChunkSize. A sentence is never
// split: one that is longer than the bound becomes a chunk on its own.
func Chunk(text string, maxChunkSize int) []string {
	if maxChunkSize <= 0 {
		maxChunkSize = DefaultMaxChunkSize
	}
	normalized := NormalizeWhitespace(text)
	if normalized == "" {
		return nil
	}

	var (
		chunks []string
		buf    strings.Builder
		bufLen int
	)
	flush := func() {
		if c := strings.TrimSpace(buf.String()); c != "" {
			chunks = append(chunks, c)
		}
		buf.Reset()
		bufLen = 0
	}

	for _, sent := range SplitSentences(normalized) {
		n := utf8.RuneCountInString(sent)
		sep := 0
		if bufLen > 0 {
			sep = 1
		}
		if bufLen+sep+n <= maxChunkSize {
			if sep == 1 {
				buf.WriteByte(' ')
			}
			buf.WriteString(sent)
			bufLen += sep + n
			continue
		}
		flush()
		buf.WriteString(sent)
		bufLen = n
	}
	flush()
	return chunks
}
