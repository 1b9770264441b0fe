// Package mock provides a scripted synthesis engine for tests and for
// running the app on machines without a kokoro bridge installed.
package mock

import (
	"context"
	"io"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/maybe-raven/kokoro-tui/tts/engines"
)

// SamplesPerByte sets how much synthetic audio one byte of input text
// produces. Small on purpose so tests stay fast.
const SamplesPerByte = 100

const sampleRate = 24000

// Engine fabricates deterministic audio: the request text is split on the
// split pattern, each segment becomes one unit, and every word in a segment
// gets a timing proportional to its length. Knobs inject latency and
// failures for worker tests.
type Engine struct {
	Opts      engines.Options
	UnitDelay time.Duration // sleep before each unit is yielded
	FailAfter int           // fail before emitting the nth unit (1-based, 0 = never)
	Untimed   bool          // emit timings with Timed = false

	mu       sync.Mutex
	requests []engines.Request
	closed   bool
}

// Factory builds mock engines, recording nothing across instances.
func Factory(opts engines.Options) (engines.Engine, error) {
	return &Engine{Opts: opts}, nil
}

// New returns a mock engine with the given knobs.
func New(opts engines.Options) *Engine {
	return &Engine{Opts: opts}
}

// Requests returns a copy of every request seen so far.
func (e *Engine) Requests() []engines.Request {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]engines.Request(nil), e.requests...)
}

// Closed reports whether Close has been called.
func (e *Engine) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

func (e *Engine) Speak(_ context.Context, req engines.Request) (engines.Stream, error) {
	e.mu.Lock()
	e.requests = append(e.requests, req)
	e.mu.Unlock()

	pattern := req.SplitPattern
	if pattern == "" {
		pattern = "\n"
	}
	var segments []string
	for _, seg := range strings.Split(req.Text, pattern) {
		if strings.TrimSpace(seg) != "" {
			segments = append(segments, seg)
		}
	}
	return &stream{engine: e, segments: segments}, nil
}

func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

type stream struct {
	engine   *Engine
	segments []string
	next     int
}

func (s *stream) Next() (engines.Unit, error) {
	if s.next >= len(s.segments) {
		return engines.Unit{}, io.EOF
	}
	if s.engine.FailAfter > 0 && s.next+1 >= s.engine.FailAfter {
		return engines.Unit{}, errInjected
	}
	if s.engine.UnitDelay > 0 {
		time.Sleep(s.engine.UnitDelay)
	}

	segment := s.segments[s.next]
	s.next++
	return synthesize(segment, s.engine.Untimed), nil
}

func (s *stream) Close() error { return nil }

var errInjected = injectedError{}

type injectedError struct{}

func (injectedError) Error() string { return "mock: injected synthesis failure" }

// synthesize fabricates one unit for a segment: silence sized to the text,
// with word timings laid out contiguously across it.
func synthesize(segment string, untimed bool) engines.Unit {
	unit := engines.Unit{
		Samples: make([]float32, len(segment)*SamplesPerByte),
	}

	pos := 0.0
	for _, w := range splitWords(segment) {
		dur := float64(len(w.text)*SamplesPerByte) / float64(sampleRate)
		t := engines.Timing{Text: w.text, Whitespace: w.whitespace}
		if !untimed {
			t.StartSec = pos
			t.EndSec = pos + dur
			t.Timed = true
		}
		unit.Timings = append(unit.Timings, t)
		pos += dur + float64(len(w.whitespace)*SamplesPerByte)/float64(sampleRate)
	}
	return unit
}

type word struct {
	text       string
	whitespace string
}

// splitWords breaks a segment into words while keeping the whitespace that
// followed each one, mirroring how the kokoro pipeline reports tokens.
func splitWords(segment string) []word {
	var words []word
	runes := []rune(segment)
	i := 0
	for i < len(runes) {
		for i < len(runes) && unicode.IsSpace(runes[i]) {
			i++
		}
		start := i
		for i < len(runes) && !unicode.IsSpace(runes[i]) {
			i++
		}
		if start == i {
			break
		}
		text := string(runes[start:i])
		wsStart := i
		for i < len(runes) && unicode.IsSpace(runes[i]) {
			i++
		}
		words = append(words, word{text: text, whitespace: string(runes[wsStart:i])})
	}
	return words
}
