package tts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"

	"github.com/maybe-raven/kokoro-tui/tts/engines"
)

// ErrQueueFull is logged (not returned) when a caller outpaces the worker;
// exported so tests can assert against the sentinel.
var ErrQueueFull = errors.New("tts: synthesizer input queue full")

const queueSize = 64

// Request asks the Synthesizer to generate audio for one piece of text.
//
// ReferenceText is the full accumulated source text of the target track when
// the request appends to an existing one; token text offsets are shifted so
// they index into it instead of Text. Leave it empty for a fresh track.
type Request struct {
	Text          string
	ReferenceText string
	Index         int
	Generation    int
	Overwrite     bool
}

type configInput struct {
	cfg Config
}

// Synthesizer is the synthesis worker. It owns one engine instance built for
// the current pipeline options and turns queued requests into a stream of
// tagged, token-aligned audio chunks.
//
// All exported methods are safe for concurrent use and never block on the
// worker; Outputs is drained by exactly one consumer.
type Synthesizer struct {
	inputs  chan any
	outputs chan Output
	stopCh  chan struct{}
	done    chan struct{}

	stopOnce   sync.Once
	cancelFlag atomic.Bool
	processing atomic.Bool

	cfgMu sync.Mutex
	cfg   Config

	factory engines.Factory
	engine  engines.Engine

	logger *log.Logger
}

// NewSynthesizer starts the worker. The engine for the initial configuration
// is built on the worker goroutine so a slow model load does not stall the
// caller; a build failure is logged and retried on the next config update.
func NewSynthesizer(cfg Config, factory engines.Factory, logger *log.Logger) *Synthesizer {
	s := &Synthesizer{
		inputs:  make(chan any, queueSize),
		outputs: make(chan Output, queueSize),
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
		cfg:     cfg,
		factory: factory,
		logger:  logger.With("component", "synthesizer"),
	}
	go s.run()
	return s
}

// Feed enqueues a synthesis request. Never blocks; when the queue is full
// the request is dropped with a warning.
func (s *Synthesizer) Feed(req Request) {
	s.push(req)
}

// UpdateConfig enqueues a configuration replacement. The engine pipeline is
// rebuilt only when the new config is not pipeline-equivalent.
func (s *Synthesizer) UpdateConfig(cfg Config) {
	s.push(configInput{cfg: cfg})
}

func (s *Synthesizer) push(in any) {
	select {
	case s.inputs <- in:
	default:
		s.logger.Warn(ErrQueueFull.Error(), "dropped", fmt.Sprintf("%T", in))
	}
}

// Cancel asks the worker to stop emitting chunks for the request in flight.
// Idempotent; a no-op when nothing is processing.
func (s *Synthesizer) Cancel() {
	s.cancelFlag.Store(true)
}

// Stop cancels any in-flight request and shuts the worker down. Follow with
// Join to wait for the goroutine to return.
func (s *Synthesizer) Stop() {
	s.stopOnce.Do(func() {
		s.cancelFlag.Store(true)
		close(s.stopCh)
	})
}

// Join blocks until the worker goroutine has exited.
func (s *Synthesizer) Join() {
	<-s.done
}

// GetConfig returns a copy of the last applied configuration. The copy is
// the caller's to mutate; worker state stays private.
func (s *Synthesizer) GetConfig() Config {
	s.cfgMu.Lock()
	defer s.cfgMu.Unlock()
	return s.cfg
}

// IsProcessing reports whether a request is currently being generated.
func (s *Synthesizer) IsProcessing() bool {
	return s.processing.Load()
}

// Outputs returns the worker's emission stream. The channel is closed when
// the worker exits.
func (s *Synthesizer) Outputs() <-chan Output {
	return s.outputs
}

func (s *Synthesizer) run() {
	defer close(s.done)
	defer close(s.outputs)

	s.buildEngine(s.GetConfig())
	defer s.closeEngine()

	for {
		select {
		case <-s.stopCh:
			return
		case in := <-s.inputs:
			switch in := in.(type) {
			case configInput:
				s.applyConfig(in.cfg)
			case Request:
				s.synthesize(in)
			}
		}
	}
}

func (s *Synthesizer) buildEngine(cfg Config) {
	engine, err := s.factory(cfg.PipelineOptions())
	if err != nil {
		s.logger.Error("engine build failed", "lang", cfg.LangCode(), "err", err)
		return
	}
	s.engine = engine
}

func (s *Synthesizer) closeEngine() {
	if s.engine == nil {
		return
	}
	if err := s.engine.Close(); err != nil {
		s.logger.Warn("engine close failed", "err", err)
	}
	s.engine = nil
}

func (s *Synthesizer) applyConfig(cfg Config) {
	s.cfgMu.Lock()
	current := s.cfg
	s.cfg = cfg
	s.cfgMu.Unlock()

	if s.engine != nil && current.PipelineEquivalent(cfg) {
		return
	}
	s.closeEngine()
	s.buildEngine(cfg)
}

func (s *Synthesizer) synthesize(req Request) {
	s.cancelFlag.Store(false)
	s.processing.Store(true)
	defer s.processing.Store(false)

	if s.engine == nil {
		s.logger.Error("dropping request, no engine", "index", req.Index)
		return
	}

	s.cfgMu.Lock()
	cfg := s.cfg
	s.cfgMu.Unlock()

	s.logger.Debug("processing request",
		"index", req.Index, "generation", req.Generation,
		"overwrite", req.Overwrite, "chars", len(req.Text))

	stream, err := s.engine.Speak(context.Background(), engines.Request{
		Text:         req.Text,
		Voice:        cfg.Voice,
		Speed:        cfg.Speed,
		SplitPattern: cfg.SplitPattern,
	})
	if err != nil {
		s.logger.Error("synthesis failed to start", "index", req.Index, "err", err)
		return
	}
	defer stream.Close()

	offset := 0
	if req.ReferenceText != "" {
		if i := strings.LastIndex(req.ReferenceText, req.Text); i >= 0 {
			offset = i
		}
	}
	al := newAligner(req.Text, offset)

	first := true
	for {
		unit, err := stream.Next()
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			// Mid-stream engine failures abort the request; already
			// emitted chunks stand.
			s.logger.Error("synthesis failed", "index", req.Index, "err", err)
			return
		}

		tokens := al.align(unit.Timings)
		if len(unit.Samples) > 0 {
			out := Output{
				Chunk:      Chunk{Samples: unit.Samples, Tokens: tokens},
				Index:      req.Index,
				Generation: req.Generation,
				Overwrite:  req.Overwrite && first,
			}
			select {
			case s.outputs <- out:
			case <-s.stopCh:
				return
			}
			first = false
		}

		if s.cancelFlag.CompareAndSwap(true, false) {
			s.logger.Debug("request cancelled", "index", req.Index)
			return
		}
	}
}
