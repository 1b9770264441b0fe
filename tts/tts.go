// Package tts implements the synthesis half of the kokoro-tui audio
// pipeline: the value types shared with playback, the worker configuration,
// and the synthesis worker itself.
package tts

import "time"

// SampleRate is the fixed output sample rate of the synthesis engine.
// All sample offsets in Token and Chunk are expressed at this rate, mono.
const SampleRate = 24000

// Token maps a span of the submitted source text to a span of audio samples
// within one track. Offsets are track-local and immutable once emitted.
type Token struct {
	TextStart   int // byte offset into the source text, inclusive
	TextEnd     int // byte offset into the source text, exclusive
	SampleStart int // sample offset, inclusive
	SampleEnd   int // sample offset, inclusive
}

// Offset returns a copy of the token with its sample span shifted forward.
// Used when a chunk is concatenated after existing audio.
func (t Token) Offset(samples int) Token {
	t.SampleStart += samples
	t.SampleEnd += samples
	return t
}

// Chunk is one unit of synthesized audio plus the tokens aligned to it.
// Ownership transfers when a chunk is handed to another worker; the sender
// must not touch it afterwards.
type Chunk struct {
	Samples []float32
	Tokens  []Token
}

// Concat appends other onto c, shifting other's token sample spans by the
// audio already present so they stay valid in the combined chunk.
func (c *Chunk) Concat(other Chunk) {
	offset := len(c.Samples)
	for _, tok := range other.Tokens {
		c.Tokens = append(c.Tokens, tok.Offset(offset))
	}
	c.Samples = append(c.Samples, other.Samples...)
}

// Duration reports the play time of the chunk at SampleRate.
func (c Chunk) Duration() time.Duration {
	return time.Duration(len(c.Samples)) * time.Second / SampleRate
}

// Output is the record emitted by the Synthesizer for every generated chunk.
// Index and Generation tag the chunk for the fencing check performed by the
// session before it reaches playback; Overwrite is set only on the first
// chunk of a request that asked for full track replacement.
type Output struct {
	Chunk      Chunk
	Index      int
	Generation int
	Overwrite  bool
}
