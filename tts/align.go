package tts

import (
	"math"
	"strings"

	"github.com/maybe-raven/kokoro-tui/tts/engines"
)

// aligner translates engine-local token timings into Tokens with absolute
// offsets in the originally submitted text. The engine reports token text in
// the order it was spoken, so a forward search anchored at the previous
// match end locates each one; whitespace the engine consumed after a token
// advances the anchor past it.
//
// The search is best effort: when a token's text does not reappear verbatim
// (the engine may normalize punctuation), the previous anchor is kept and
// the token is placed there rather than dropped.
type aligner struct {
	text   string
	offset int // shift applied to every text offset (append into a larger source)
	anchor int
}

func newAligner(text string, offset int) *aligner {
	return &aligner{text: text, offset: offset}
}

func (a *aligner) align(timings []engines.Timing) []Token {
	var tokens []Token
	for _, tm := range timings {
		if a.anchor > len(a.text) {
			a.anchor = len(a.text)
		}
		if i := strings.Index(a.text[a.anchor:], tm.Text); i >= 0 {
			a.anchor += i
		}
		end := a.anchor + len(tm.Text)
		if tm.Timed {
			tokens = append(tokens, Token{
				TextStart:   a.anchor + a.offset,
				TextEnd:     end + a.offset,
				SampleStart: secondsToSamples(tm.StartSec),
				SampleEnd:   secondsToSamples(tm.EndSec),
			})
		}
		a.anchor = end + len(tm.Whitespace)
	}
	return tokens
}

func secondsToSamples(secs float64) int {
	return int(math.Round(secs * SampleRate))
}
