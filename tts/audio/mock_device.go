package audio

import (
	"errors"
	"sync"
)

// MockDevice records playback sessions for tests. Streams report not
// drained until a test flips them, so the play loop keeps streaming instead
// of treating silence as exhaustion.
type MockDevice struct {
	mu      sync.Mutex
	streams []*MockStream
	openErr error
}

// NewMockDevice returns a device whose streams are fully scripted.
func NewMockDevice() *MockDevice {
	return &MockDevice{}
}

// FailOpens makes every subsequent OpenStream call fail.
func (d *MockDevice) FailOpens() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.openErr = errors.New("mock device: open refused")
}

func (d *MockDevice) OpenStream() (Stream, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.openErr != nil {
		return nil, d.openErr
	}
	s := &MockStream{}
	d.streams = append(d.streams, s)
	return s, nil
}

func (d *MockDevice) Close() error { return nil }

// Streams returns every stream opened so far, oldest first.
func (d *MockDevice) Streams() []*MockStream {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*MockStream(nil), d.streams...)
}

// LastStream returns the most recently opened stream, or nil.
func (d *MockDevice) LastStream() *MockStream {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.streams) == 0 {
		return nil
	}
	return d.streams[len(d.streams)-1]
}

// MockStream records every Queue and Flush call.
type MockStream struct {
	mu      sync.Mutex
	queued  [][]float32
	flushes int
	drained bool
	closed  bool
}

func (s *MockStream) Queue(samples []float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queued = append(s.queued, append([]float32(nil), samples...))
}

func (s *MockStream) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushes++
	s.queued = nil
}

func (s *MockStream) Drained() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.drained
}

func (s *MockStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// SetDrained scripts the exhaustion signal the play loop polls.
func (s *MockStream) SetDrained(drained bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drained = drained
}

// Queued returns the sample batches queued so far, in order.
func (s *MockStream) Queued() [][]float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]float32, len(s.queued))
	copy(out, s.queued)
	return out
}

// QueuedSamples returns the total sample count across all batches.
func (s *MockStream) QueuedSamples() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, batch := range s.queued {
		total += len(batch)
	}
	return total
}

// Flushes returns how many times the stream was flushed.
func (s *MockStream) Flushes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushes
}

// Closed reports whether the session ended.
func (s *MockStream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
