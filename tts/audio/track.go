// Package audio implements the playback half of the pipeline: the worker
// that owns the output device, its track history, and the live highlight
// range it republishes for the UI.
package audio

import (
	"github.com/maybe-raven/kokoro-tui/tts"
)

// Track is one addressable unit of generated audio in the history list. It
// grows as chunks stream in; tokens stay ordered and non-overlapping in
// SampleStart because appends only ever shift incoming spans forward.
type Track struct {
	Samples []float32
	Tokens  []tts.Token
}

// NewTrack creates a track seeded with one chunk, taking ownership of it.
func NewTrack(chunk tts.Chunk) *Track {
	return &Track{Samples: chunk.Samples, Tokens: chunk.Tokens}
}

// Len returns the track length in samples.
func (t *Track) Len() int {
	return len(t.Samples)
}

// Append concatenates a chunk onto the track, shifting the chunk's token
// sample spans past the audio already present.
func (t *Track) Append(chunk tts.Chunk) {
	offset := len(t.Samples)
	for _, tok := range chunk.Tokens {
		t.Tokens = append(t.Tokens, tok.Offset(offset))
	}
	t.Samples = append(t.Samples, chunk.Samples...)
}

// Replace discards the track's contents in favor of the chunk's.
func (t *Track) Replace(chunk tts.Chunk) {
	t.Samples = chunk.Samples
	t.Tokens = chunk.Tokens
}
