package audio

import (
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
)

const bytesPerSample = 2 // signed 16-bit mono

// OtoDevice plays audio through the platform device via oto. The context
// can only be created once per process, so the device is constructed at
// player startup and a failure there is surfaced as permanent.
type OtoDevice struct {
	ctx        *oto.Context
	sampleRate int
}

// OpenOtoDevice creates the audio context and waits for the platform to
// report it ready.
func OpenOtoDevice(sampleRate int) (*OtoDevice, error) {
	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: 1,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   50 * time.Millisecond,
	})
	if err != nil {
		return nil, fmt.Errorf("open audio device: %w", err)
	}
	<-ready
	return &OtoDevice{ctx: ctx, sampleRate: sampleRate}, nil
}

// OpenStream starts a playback session backed by a fresh oto player.
func (d *OtoDevice) OpenStream() (Stream, error) {
	src := &pcmSource{}
	player := d.ctx.NewPlayer(src)
	player.Play()
	return &otoStream{player: player, src: src}, nil
}

// Close releases the device. oto has no context teardown; the handle is
// simply dropped.
func (d *OtoDevice) Close() error { return nil }

type otoStream struct {
	player *oto.Player
	src    *pcmSource
}

func (s *otoStream) Queue(samples []float32) {
	s.src.append(encodePCM16(samples))
}

func (s *otoStream) Flush() {
	s.src.reset()
}

func (s *otoStream) Drained() bool {
	return s.src.pending() == 0 && s.player.BufferedSize() == 0
}

func (s *otoStream) Close() error {
	s.src.finish()
	return s.player.Close()
}

// pcmSource is the appendable byte queue an oto player reads from. Read
// never blocks: with no data buffered it reports progress of zero and oto
// polls again, which is the behavior a live stream wants — silence on
// underrun instead of an ended player.
type pcmSource struct {
	mu     sync.Mutex
	buf    []byte
	closed bool
}

func (s *pcmSource) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.buf) == 0 {
		if s.closed {
			return 0, errSourceClosed
		}
		return 0, nil
	}
	n := copy(p, s.buf)
	s.buf = s.buf[n:]
	return n, nil
}

func (s *pcmSource) append(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.buf = append(s.buf, data...)
}

func (s *pcmSource) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf = nil
}

func (s *pcmSource) pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buf)
}

func (s *pcmSource) finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.buf = nil
}

var errSourceClosed = fmt.Errorf("audio: stream closed")

// encodePCM16 converts float32 samples in [-1, 1] to signed 16-bit little
// endian, clipping out-of-range values.
func encodePCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*bytesPerSample)
	for i, sample := range samples {
		if sample > 1 {
			sample = 1
		} else if sample < -1 {
			sample = -1
		}
		v := int16(sample * 32767)
		out[i*2] = byte(v)
		out[i*2+1] = byte(v >> 8)
	}
	return out
}
