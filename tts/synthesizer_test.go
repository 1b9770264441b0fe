package tts

import (
	"io"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/maybe-raven/kokoro-tui/tts/engines"
	"github.com/maybe-raven/kokoro-tui/tts/engines/mock"
)

func testLogger() *log.Logger {
	return log.New(io.Discard)
}

// trackingFactory records every engine it builds.
type trackingFactory struct {
	mu      sync.Mutex
	engines []*mock.Engine
	knobs   func(*mock.Engine)
}

func (f *trackingFactory) build(opts engines.Options) (engines.Engine, error) {
	e := mock.New(opts)
	if f.knobs != nil {
		f.knobs(e)
	}
	f.mu.Lock()
	f.engines = append(f.engines, e)
	f.mu.Unlock()
	return e, nil
}

func (f *trackingFactory) built() []*mock.Engine {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*mock.Engine(nil), f.engines...)
}

func nextOutput(t *testing.T, s *Synthesizer) Output {
	t.Helper()
	select {
	case out, ok := <-s.Outputs():
		if !ok {
			t.Fatal("outputs channel closed")
		}
		return out
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for output")
	}
	panic("unreachable")
}

// drainQuiet reads outputs until the channel stays silent for the grace
// period, returning how many arrived.
func drainQuiet(s *Synthesizer, grace time.Duration) int {
	n := 0
	for {
		select {
		case _, ok := <-s.Outputs():
			if !ok {
				return n
			}
			n++
		case <-time.After(grace):
			return n
		}
	}
}

func TestSynthesizerEmitsTaggedChunks(t *testing.T) {
	f := &trackingFactory{}
	s := NewSynthesizer(DefaultConfig(), f.build, testLogger())
	defer func() { s.Stop(); s.Join() }()

	s.Feed(Request{Text: "hello world", Index: 2, Generation: 7})
	out := nextOutput(t, s)

	if out.Index != 2 || out.Generation != 7 {
		t.Errorf("tags = (%d, %d), want (2, 7)", out.Index, out.Generation)
	}
	if out.Overwrite {
		t.Error("plain request marked overwrite")
	}
	if want := len("hello world") * mock.SamplesPerByte; len(out.Chunk.Samples) != want {
		t.Errorf("samples = %d, want %d", len(out.Chunk.Samples), want)
	}
	if len(out.Chunk.Tokens) != 2 {
		t.Fatalf("tokens = %d, want 2", len(out.Chunk.Tokens))
	}
	if out.Chunk.Tokens[1].TextStart != 6 || out.Chunk.Tokens[1].TextEnd != 11 {
		t.Errorf("'world' span = [%d, %d], want [6, 11]",
			out.Chunk.Tokens[1].TextStart, out.Chunk.Tokens[1].TextEnd)
	}
}

func TestSynthesizerRequestUsesCurrentConfig(t *testing.T) {
	f := &trackingFactory{}
	cfg := DefaultConfig()
	cfg.Voice = "af_bella"
	cfg.Speed = 0.7
	s := NewSynthesizer(cfg, f.build, testLogger())
	defer func() { s.Stop(); s.Join() }()

	s.Feed(Request{Text: "check"})
	nextOutput(t, s)

	reqs := f.built()[0].Requests()
	if len(reqs) != 1 {
		t.Fatalf("engine saw %d requests, want 1", len(reqs))
	}
	if reqs[0].Voice != "af_bella" || reqs[0].Speed != 0.7 {
		t.Errorf("engine request = %+v", reqs[0])
	}
}

func TestSynthesizerOverwriteFirstChunkOnly(t *testing.T) {
	f := &trackingFactory{}
	s := NewSynthesizer(DefaultConfig(), f.build, testLogger())
	defer func() { s.Stop(); s.Join() }()

	s.Feed(Request{Text: "aa\nbb\ncc", Index: 0, Overwrite: true})

	want := []bool{true, false, false}
	for i, wantOverwrite := range want {
		out := nextOutput(t, s)
		if out.Overwrite != wantOverwrite {
			t.Errorf("chunk %d overwrite = %v, want %v", i, out.Overwrite, wantOverwrite)
		}
	}
}

func TestSynthesizerCancel(t *testing.T) {
	f := &trackingFactory{knobs: func(e *mock.Engine) {
		e.UnitDelay = 30 * time.Millisecond
	}}
	s := NewSynthesizer(DefaultConfig(), f.build, testLogger())
	defer func() { s.Stop(); s.Join() }()

	s.Feed(Request{Text: "aa\nbb\ncc\ndd\nee"})
	nextOutput(t, s)
	s.Cancel()

	// At most one more chunk can slip out: the one generated before the
	// flag check after it.
	if extra := drainQuiet(s, 300*time.Millisecond); extra > 1 {
		t.Errorf("%d chunks emitted after cancel, want at most 1", extra)
	}
}

func TestSynthesizerPipelineRebuild(t *testing.T) {
	f := &trackingFactory{}
	s := NewSynthesizer(DefaultConfig(), f.build, testLogger())
	defer func() { s.Stop(); s.Join() }()

	// Same language: the engine carries over.
	cfg := DefaultConfig()
	cfg.Voice = "af_bella"
	cfg.Speed = 0.5
	s.UpdateConfig(cfg)
	s.Feed(Request{Text: "first"})
	nextOutput(t, s)

	if n := len(f.built()); n != 1 {
		t.Fatalf("engine rebuilt for an equivalent config: %d builds", n)
	}

	// New language: the pipeline must be rebuilt.
	cfg.Voice = "bf_emma"
	s.UpdateConfig(cfg)
	s.Feed(Request{Text: "second"})
	nextOutput(t, s)

	built := f.built()
	if len(built) != 2 {
		t.Fatalf("got %d builds, want 2", len(built))
	}
	if !built[0].Closed() {
		t.Error("replaced engine was not closed")
	}
	if built[1].Opts.LangCode != "b" {
		t.Errorf("rebuilt engine lang = %q, want b", built[1].Opts.LangCode)
	}
}

func TestSynthesizerSurvivesEngineFailure(t *testing.T) {
	f := &trackingFactory{knobs: func(e *mock.Engine) {
		e.FailAfter = 2
	}}
	s := NewSynthesizer(DefaultConfig(), f.build, testLogger())
	defer func() { s.Stop(); s.Join() }()

	s.Feed(Request{Text: "aa\nbb\ncc", Index: 0})
	out := nextOutput(t, s)
	if want := 2 * mock.SamplesPerByte; len(out.Chunk.Samples) != want {
		t.Errorf("first chunk = %d samples, want %d", len(out.Chunk.Samples), want)
	}
	if n := drainQuiet(s, 200*time.Millisecond); n != 0 {
		t.Errorf("%d chunks emitted after engine failure", n)
	}

	// The worker keeps serving requests after a failed one.
	s.Feed(Request{Text: "zz", Index: 1})
	out = nextOutput(t, s)
	if out.Index != 1 {
		t.Errorf("follow-up request index = %d, want 1", out.Index)
	}
}

func TestSynthesizerStop(t *testing.T) {
	f := &trackingFactory{}
	s := NewSynthesizer(DefaultConfig(), f.build, testLogger())
	s.Feed(Request{Text: "bye"})
	nextOutput(t, s)

	s.Stop()
	s.Join()

	if _, ok := <-s.Outputs(); ok {
		t.Error("outputs channel still open after Stop")
	}
	if !f.built()[0].Closed() {
		t.Error("engine not closed on Stop")
	}
}
