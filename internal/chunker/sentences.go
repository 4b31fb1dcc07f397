package chunker

import (
	"regexp"
	"strings"
	"sync"

	"github.com/neurosnap/sentences"
	"github.com/neurosnap/sentences/english"
)

var (
	whitespaceRe = regexp.MustCompile(`\s+`)

	tokenizerOnce sync.Once
	tokenizerMu   sync.Mutex
	tokenizer     *sentences.DefaultSentenceTokenizer
	tokenizerErr  error
)

// NormalizeWhitespace collapses runs of whitespace to single spaces and trims the ends.
func NormalizeWhitespace(text string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(text, " "))
}

// SplitSentences segments text with the English Punkt model, which knows
// common abbreviations and ellipses. Returned sentences are trimmed and non-empty.
func SplitSentences(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	tokenizerOnce.Do(func() {
		tokenizer, tokenizerErr = english.NewSentenceTokenizer(nil)
	})
	if tokenizerErr != nil {
		// The model is embedded in the binary; this only fires on a broken build.
		panic("chunker: load punkt model: " + tokenizerErr.Error())
	}

	tokenizerMu.Lock()
	toks := tokenizer.Tokenize(text)
	tokenizerMu.Unlock()

	out := make([]string, 0, len(toks))
	for _, s := range toks {
		if t := strings.TrimSpace(s.Text); t != "" {
			out = append(out, t)
		}
	}
	return out
}
