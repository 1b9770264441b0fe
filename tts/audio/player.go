package audio

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	humanize "github.com/dustin/go-humanize"
	homedir "github.com/mitchellh/go-homedir"

	"github.com/maybe-raven/kokoro-tui/tts"
)

// ErrStopped is returned by Output when the worker has shut down.
var ErrStopped = errors.New("audio: player stopped")

// Config tunes the worker's polling cadence. The fast interval bounds the
// latency of command handling while streaming; the idle interval applies
// when nothing is playing.
type Config struct {
	IdlePoll      time.Duration
	FastPoll      time.Duration
	CommandBuffer int
}

// DefaultConfig returns the intervals used by the application.
func DefaultConfig() Config {
	return Config{
		IdlePoll:      300 * time.Millisecond,
		FastPoll:      100 * time.Millisecond,
		CommandBuffer: 64,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.IdlePoll <= 0 {
		c.IdlePoll = d.IdlePoll
	}
	if c.FastPoll <= 0 {
		c.FastPoll = d.FastPoll
	}
	if c.CommandBuffer <= 0 {
		c.CommandBuffer = d.CommandBuffer
	}
	return c
}

// Highlight is the text span of the token currently under the playback
// cursor. Offsets index into the track's accumulated source text.
type Highlight struct {
	Start int
	End   int
}

// SaveResult reports the outcome of one Save request.
type SaveResult struct {
	Path string
	Err  error
}

// Snapshot is a point-in-time view of worker state, answered on the command
// queue so it is always internally consistent.
type Snapshot struct {
	Tracks     int
	TrackIndex int // -1 when no track is selected
	Position   int // effective position in samples
	Streaming  bool
	Playing    bool
}

// Commands consumed by the worker loop.
type (
	dataCmd struct {
		chunk     tts.Chunk
		index     int
		overwrite bool
	}
	changeTrackCmd struct{ index int }
	seekCmd        struct{ secs float64 }
	saveCmd        struct{ path string }
	clearCmd       struct{}
	snapshotCmd    struct{ reply chan Snapshot }
)

// Player is the playback worker. It owns the audio device and the track
// history exclusively; callers talk to it through the command queue and
// read back a mutex-protected highlight record plus a save-result channel.
type Player struct {
	device Device
	cfg    Config
	logger *log.Logger

	cmds    chan any
	results chan SaveResult
	stopCh  chan struct{}
	done    chan struct{}

	stopOnce sync.Once
	stopping atomic.Bool
	playing  atomic.Bool

	highlightMu sync.Mutex
	highlight   Highlight // Start/End of -1 mean no token under the cursor

	// Worker-owned state; touched only on the run goroutine.
	tracks      []*Track
	trackIndex  int
	startIndex  int
	startedAt   time.Time
	streaming   bool
	tokenCursor int
}

// NewPlayer starts the worker. The device must already be open; opening it
// is the caller's chance to observe the one unrecoverable failure mode.
func NewPlayer(device Device, cfg Config, logger *log.Logger) *Player {
	p := &Player{
		device:     device,
		cfg:        cfg.withDefaults(),
		logger:     logger.With("component", "player"),
		results:    make(chan SaveResult, 1),
		stopCh:     make(chan struct{}),
		done:       make(chan struct{}),
		trackIndex: -1,
		highlight:  Highlight{Start: -1, End: -1},
	}
	p.cmds = make(chan any, p.cfg.CommandBuffer)
	p.playing.Store(true)
	go p.run()
	return p
}

// Feed routes a chunk into the track history. The chunk must not be touched
// by the caller afterwards.
func (p *Player) Feed(chunk tts.Chunk, index int, overwrite bool) {
	p.send(dataCmd{chunk: chunk, index: index, overwrite: overwrite})
}

// ChangeTrack selects a track, clamped to the history bounds.
func (p *Player) ChangeTrack(index int) {
	p.send(changeTrackCmd{index: index})
}

// SeekSecs moves the effective position by secs (negative rewinds),
// clamped to the active track.
func (p *Player) SeekSecs(secs float64) {
	p.send(seekCmd{secs: secs})
}

// Save writes the active track to a WAV file at path ("~" is expanded).
// The outcome arrives on Output; no track active means no response.
func (p *Player) Save(path string) {
	if expanded, err := homedir.Expand(path); err == nil {
		path = expanded
	}
	p.send(saveCmd{path: path})
}

// ClearHistory discards every track and resets selection, position and
// highlight state.
func (p *Player) ClearHistory() {
	p.send(clearCmd{})
}

// Play enables audio output. Idempotent.
func (p *Player) Play() { p.playing.Store(true) }

// Pause disables audio output without losing position. Idempotent.
func (p *Player) Pause() { p.playing.Store(false) }

// TogglePP flips between playing and paused.
func (p *Player) TogglePP() { p.playing.Store(!p.playing.Load()) }

// Stop shuts the worker down; pair with Join.
func (p *Player) Stop() {
	p.stopOnce.Do(func() {
		p.stopping.Store(true)
		p.playing.Store(false)
		close(p.stopCh)
	})
}

// Join blocks until the worker goroutine has exited.
func (p *Player) Join() {
	<-p.done
}

// Output waits for the next save result.
func (p *Player) Output(ctx context.Context) (SaveResult, error) {
	select {
	case res := <-p.results:
		return res, nil
	case <-p.done:
		return SaveResult{}, ErrStopped
	case <-ctx.Done():
		return SaveResult{}, ctx.Err()
	}
}

// Snapshot answers a consistent view of the worker's state.
func (p *Player) Snapshot(ctx context.Context) (Snapshot, error) {
	reply := make(chan Snapshot, 1)
	select {
	case p.cmds <- snapshotCmd{reply: reply}:
	case <-p.done:
		return Snapshot{}, ErrStopped
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
	select {
	case snap := <-reply:
		return snap, nil
	case <-p.done:
		return Snapshot{}, ErrStopped
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
}

// Highlights streams changes to the currently spoken text span. A nil
// element means no token is under the cursor. The channel closes when ctx
// is done or the worker stops.
func (p *Player) Highlights(ctx context.Context) <-chan *Highlight {
	ch := make(chan *Highlight, 1)
	go func() {
		defer close(ch)
		ticker := time.NewTicker(p.cfg.FastPoll)
		defer ticker.Stop()

		var last *Highlight
		first := true
		for {
			select {
			case <-ctx.Done():
				return
			case <-p.done:
				return
			case <-ticker.C:
			}
			current := p.currentHighlight()
			if !first && highlightEqual(current, last) {
				continue
			}
			first = false
			last = current
			select {
			case ch <- current:
			case <-ctx.Done():
				return
			case <-p.done:
				return
			}
		}
	}()
	return ch
}

func (p *Player) currentHighlight() *Highlight {
	p.highlightMu.Lock()
	defer p.highlightMu.Unlock()
	if p.highlight.Start < 0 || p.highlight.End < 0 {
		return nil
	}
	h := p.highlight
	return &h
}

func highlightEqual(a, b *Highlight) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func (p *Player) send(cmd any) {
	select {
	case p.cmds <- cmd:
	case <-p.stopCh:
	default:
		p.logger.Warn("command queue full, dropping", "cmd", fmt.Sprintf("%T", cmd))
	}
}

// run is the worker loop: stream the active track while there is audio
// ahead of the cursor and playback is enabled, otherwise idle on the
// command queue.
func (p *Player) run() {
	defer close(p.done)
	for !p.stopping.Load() {
		if p.shouldPlay() {
			p.streamSession()
		} else {
			p.pollInput(nil, p.cfg.IdlePoll)
		}
	}
}

func (p *Player) current() *Track {
	if p.trackIndex < 0 || p.trackIndex >= len(p.tracks) {
		return nil
	}
	return p.tracks[p.trackIndex]
}

func (p *Player) shouldPlay() bool {
	cur := p.current()
	return cur != nil && p.startIndex < cur.Len() && p.playing.Load()
}

// streamSession opens the device for the active track and streams until the
// track is exhausted, playback is disabled, or there is nothing left ahead
// of the cursor.
func (p *Player) streamSession() {
	stream, err := p.device.OpenStream()
	if err != nil {
		// The device was validated at startup, so a session failure
		// here should not recur; pause so a broken device cannot spin
		// the loop.
		p.logger.Error("opening playback stream failed", "err", err)
		p.playing.Store(false)
		return
	}
	defer stream.Close()

	p.seekAndPlay(p.startIndex, stream, false)

	for p.shouldPlay() && !p.stopping.Load() {
		p.updateHighlight()
		p.pollInput(stream, p.cfg.FastPoll)

		if p.streaming && stream.Drained() {
			// Track exhausted: freeze at the end and go idle until
			// new data or a seek arrives.
			p.startIndex = p.current().Len()
			p.streaming = false
			p.resetHighlight()
			return
		}
	}

	p.startIndex = p.position()
	p.streaming = false
}

// position computes the effective sample position: the last sync point plus
// wall-clock elapsed while streaming.
func (p *Player) position() int {
	if !p.streaming {
		return p.startIndex
	}
	elapsed := time.Since(p.startedAt).Seconds()
	return p.startIndex + int(math.Round(elapsed*tts.SampleRate))
}

func (p *Player) pollInput(stream Stream, interval time.Duration) {
	timer := time.NewTimer(interval)
	defer timer.Stop()
	select {
	case cmd := <-p.cmds:
		p.dispatch(cmd, stream)
	case <-p.stopCh:
	case <-timer.C:
	}
}

func (p *Player) dispatch(cmd any, stream Stream) {
	switch c := cmd.(type) {
	case dataCmd:
		p.applyData(c, stream)
	case changeTrackCmd:
		p.applyChangeTrack(c)
		p.seekAndPlay(0, stream, true)
	case seekCmd:
		p.applySeek(c, stream)
	case saveCmd:
		p.applySave(c)
	case clearCmd:
		p.tracks = nil
		p.trackIndex = -1
		p.startIndex = 0
		p.streaming = false
		p.resetHighlight()
	case snapshotCmd:
		c.reply <- Snapshot{
			Tracks:     len(p.tracks),
			TrackIndex: p.trackIndex,
			Position:   p.position(),
			Streaming:  p.streaming,
			Playing:    p.playing.Load(),
		}
	}
}

func (p *Player) applyData(c dataCmd, stream Stream) {
	switch {
	case c.index >= len(p.tracks):
		// First chunk of a new track: append to history, select it and
		// restart playback from the top.
		p.tracks = append(p.tracks, NewTrack(c.chunk))
		p.trackIndex = len(p.tracks) - 1
		p.seekAndPlay(0, stream, true)
	case c.overwrite:
		p.tracks[c.index].Replace(c.chunk)
		if c.index == p.trackIndex {
			p.seekAndPlay(0, stream, true)
		}
	default:
		p.tracks[c.index].Append(c.chunk)
		// Streaming append: extend the live queue without touching
		// what is already playing. A non-streaming active track picks
		// the new audio up from its frozen position on the next loop
		// pass.
		if c.index == p.trackIndex && p.streaming && stream != nil {
			stream.Queue(c.chunk.Samples)
		}
	}
}

func (p *Player) applyChangeTrack(c changeTrackCmd) {
	if c.index >= len(p.tracks) {
		p.trackIndex = len(p.tracks) - 1
	} else if c.index < 0 {
		p.trackIndex = 0
	} else {
		p.trackIndex = c.index
	}
	if len(p.tracks) == 0 {
		p.trackIndex = -1
	}
}

func (p *Player) applySeek(c seekCmd, stream Stream) {
	if p.trackIndex < 0 {
		return
	}
	delta := int(math.Round(c.secs * tts.SampleRate))
	p.seekAndPlay(p.position()+delta, stream, true)
}

func (p *Player) applySave(c saveCmd) {
	cur := p.current()
	if cur == nil {
		return
	}
	written, err := WriteWAV(c.path, cur.Samples, tts.SampleRate)
	if err != nil {
		p.logger.Error("saving track failed", "path", c.path, "err", err)
	} else {
		p.logger.Info("track saved",
			"path", c.path, "size", humanize.Bytes(uint64(written)))
	}
	select {
	case p.results <- SaveResult{Path: c.path, Err: err}:
	default:
		p.logger.Warn("save result dropped, no consumer")
	}
}

// seekAndPlay moves the sync point to target (clamped to the track) and,
// when a stream is live, refills its queue from there. Without a stream it
// only repositions; the run loop establishes streaming when it can.
func (p *Player) seekAndPlay(target int, stream Stream, flush bool) {
	if target < 0 {
		target = 0
	}
	cur := p.current()
	if cur == nil {
		p.startIndex = 0
		p.streaming = false
		return
	}
	if target >= cur.Len() {
		// Clamp to end-of-track; exhaustion handling on the next loop
		// iteration freezes there.
		p.startIndex = cur.Len()
		p.streaming = false
		if stream != nil && flush {
			stream.Flush()
		}
		return
	}
	p.startIndex = target
	if stream != nil {
		p.startedAt = time.Now()
		p.streaming = true
		if flush {
			stream.Flush()
		}
		stream.Queue(cur.Samples[target:])
	}
}

// updateHighlight scans the active track's tokens from the last match
// forward for one containing the live position and republishes the result.
func (p *Player) updateHighlight() {
	if !p.streaming {
		return
	}
	cur := p.current()
	pos := p.position()
	if p.tokenCursor > len(cur.Tokens) {
		p.tokenCursor = 0
	}
	for i, tok := range cur.Tokens[p.tokenCursor:] {
		if tok.SampleStart <= pos && pos <= tok.SampleEnd {
			p.setHighlight(tok.TextStart, tok.TextEnd)
			p.tokenCursor += i
			return
		}
	}
	p.resetHighlight()
}

func (p *Player) setHighlight(start, end int) {
	p.highlightMu.Lock()
	p.highlight = Highlight{Start: start, End: end}
	p.highlightMu.Unlock()
}

// resetHighlight clears the published range and rewinds the scan cursor;
// playback may have restarted behind it.
func (p *Player) resetHighlight() {
	p.tokenCursor = 0
	p.highlightMu.Lock()
	p.highlight = Highlight{Start: -1, End: -1}
	p.highlightMu.Unlock()
}
