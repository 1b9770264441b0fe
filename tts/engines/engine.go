// Package engines defines the contract between the synthesis worker and the
// text-to-speech backends that produce audio for it.
package engines

import "context"

// Options selects the engine pipeline. Two configurations that agree on all
// three fields can share one pipeline; anything else requires a rebuild.
type Options struct {
	LangCode    string // single-letter kokoro language code
	Transformer bool   // use the transformer G2P path
	Device      string // "", "cpu", "cuda" or "mps"
}

// Request carries the per-call synthesis parameters.
type Request struct {
	Text         string
	Voice        string
	Speed        float64
	SplitPattern string
}

// Timing is the engine-local alignment metadata for one spoken token. Text
// offsets are relative to the chunk the engine split for itself; the
// synthesis worker translates them into source-text offsets. Engines that
// cannot time a token emit it with Timed set to false.
type Timing struct {
	Text       string
	Whitespace string // text that followed the token in the engine's input
	StartSec   float64
	EndSec     float64
	Timed      bool
}

// Unit is one streamed synthesis step: a block of mono float32 samples at
// the pipeline sample rate plus the timings for the text it covers.
type Unit struct {
	Samples []float32
	Timings []Timing
}

// Stream yields the units of one synthesis request in order. Next returns
// io.EOF when the request is exhausted. Close releases the stream early;
// it is safe to call after EOF.
type Stream interface {
	Next() (Unit, error)
	Close() error
}

// Engine is a synthesis pipeline built for one set of Options. One request
// is processed at a time; the worker serializes calls.
type Engine interface {
	Speak(ctx context.Context, req Request) (Stream, error)
	Close() error
}

// Factory builds an engine for the given pipeline options. The synthesis
// worker calls it at startup and again whenever a config update is not
// pipeline-equivalent to the running one.
type Factory func(Options) (Engine, error)
