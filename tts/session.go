package tts

import (
	"errors"
	"sync"

	"github.com/charmbracelet/log"
)

// ErrNoHistory is returned by operations that need at least one track.
var ErrNoHistory = errors.New("tts: no track history")

// Sink receives routed synthesis output. *audio.Player satisfies it.
type Sink interface {
	Feed(chunk Chunk, index int, overwrite bool)
	ClearHistory()
}

// Session ties the synthesis worker to a playback sink. It owns the source
// text history and the generation counter, and routes worker output through
// the staleness fence: a chunk is forwarded only when its generation matches
// and its track index still exists.
type Session struct {
	synth  *Synthesizer
	sink   Sink
	logger *log.Logger
	done   chan struct{}

	mu         sync.Mutex
	texts      []string
	generation int
}

// NewSession starts routing between synth and sink. The caller keeps
// ownership of both workers; Close only stops the routing goroutine's
// upstream (the synthesizer).
func NewSession(synth *Synthesizer, sink Sink, logger *log.Logger) *Session {
	s := &Session{
		synth:  synth,
		sink:   sink,
		logger: logger.With("component", "session"),
		done:   make(chan struct{}),
	}
	go s.route()
	return s
}

func (s *Session) route() {
	defer close(s.done)
	for out := range s.synth.Outputs() {
		s.mu.Lock()
		ok := out.Generation == s.generation && out.Index < len(s.texts)
		gen := s.generation
		s.mu.Unlock()
		if !ok {
			s.logger.Debug("dropping stale chunk",
				"chunkGen", out.Generation, "currentGen", gen,
				"index", out.Index)
			continue
		}
		s.sink.Feed(out.Chunk, out.Index, out.Overwrite)
	}
}

// NewText begins a new track from text and queues its synthesis.
func (s *Session) NewText(text string) {
	s.mu.Lock()
	s.texts = append(s.texts, text)
	req := Request{
		Text:       text,
		Index:      len(s.texts) - 1,
		Generation: s.generation,
	}
	s.mu.Unlock()
	s.synth.Feed(req)
}

// AppendText extends the most recent track with text. Token offsets in the
// generated chunks index into the track's accumulated source text. Without
// history this starts a new track instead.
func (s *Session) AppendText(text string) {
	s.mu.Lock()
	if len(s.texts) == 0 {
		s.mu.Unlock()
		s.NewText(text)
		return
	}
	last := len(s.texts) - 1
	s.texts[last] += text
	req := Request{
		Text:          text,
		ReferenceText: s.texts[last],
		Index:         last,
		Generation:    s.generation,
	}
	s.mu.Unlock()
	s.synth.Feed(req)
}

// Regenerate re-synthesizes the track at index with the current
// configuration. The first regenerated chunk replaces the track's audio;
// the rest stream in behind it.
func (s *Session) Regenerate(index int) error {
	s.mu.Lock()
	if index < 0 || index >= len(s.texts) {
		s.mu.Unlock()
		return ErrNoHistory
	}
	req := Request{
		Text:       s.texts[index],
		Index:      index,
		Generation: s.generation,
		Overwrite:  true,
	}
	s.mu.Unlock()
	s.synth.Cancel()
	s.synth.Feed(req)
	return nil
}

// ClearHistory discards every track. The generation bump happens before the
// sink is cleared, so chunks from requests queued earlier can never land in
// the emptied history.
func (s *Session) ClearHistory() {
	s.mu.Lock()
	s.generation++
	s.texts = nil
	s.mu.Unlock()
	s.synth.Cancel()
	s.sink.ClearHistory()
}

// Text returns the accumulated source text of the track at index.
func (s *Session) Text(index int) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.texts) {
		return "", ErrNoHistory
	}
	return s.texts[index], nil
}

// HistoryLen reports how many tracks the session has started.
func (s *Session) HistoryLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.texts)
}

// Generation reports the current fencing generation.
func (s *Session) Generation() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// Close stops the synthesizer and waits for routing to finish.
func (s *Session) Close() {
	s.synth.Stop()
	s.synth.Join()
	<-s.done
}
