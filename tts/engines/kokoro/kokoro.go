// Package kokoro runs the kokoro synthesis model behind a long-lived bridge
// subprocess and adapts its streaming output to the engines contract.
//
// The bridge speaks a line-oriented JSON protocol: one request object on
// stdin, then one response object per generated chunk on stdout, the last of
// which carries "final": true. Samples travel as base64 little-endian
// float32 PCM at 24 kHz.
package kokoro

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os/exec"
	"sync"

	"github.com/charmbracelet/log"
	shellwords "github.com/mattn/go-shellwords"

	"github.com/maybe-raven/kokoro-tui/tts/engines"
)

// ErrClosed is returned by Speak after the engine has been shut down.
var ErrClosed = errors.New("kokoro: engine closed")

// Engine wraps one bridge process built for a fixed set of pipeline options.
type Engine struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	enc    *json.Encoder
	dec    *json.Decoder
	logger *log.Logger

	mu     sync.Mutex // serializes requests on the shared pipes
	closed bool
}

type bridgeRequest struct {
	Text         string  `json:"text"`
	Voice        string  `json:"voice"`
	Speed        float64 `json:"speed"`
	SplitPattern string  `json:"split_pattern"`
}

type bridgeToken struct {
	Text       string   `json:"text"`
	Whitespace string   `json:"whitespace"`
	StartTS    *float64 `json:"start_ts"`
	EndTS      *float64 `json:"end_ts"`
}

type bridgeResponse struct {
	PCM    string        `json:"pcm_b64"`
	Tokens []bridgeToken `json:"tokens"`
	Final  bool          `json:"final"`
	Error  string        `json:"error"`
}

// Factory returns an engines.Factory that starts the given bridge command.
// The command string is parsed shell-style, so it may carry its own
// arguments ("uv run kokoro-bridge" and the like).
func Factory(command string, logger *log.Logger) engines.Factory {
	return func(opts engines.Options) (engines.Engine, error) {
		return New(command, opts, logger)
	}
}

// New starts a bridge process for the given pipeline options.
func New(command string, opts engines.Options, logger *log.Logger) (*Engine, error) {
	args, err := shellwords.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("kokoro: parse bridge command: %w", err)
	}
	if len(args) == 0 {
		return nil, errors.New("kokoro: bridge command is empty")
	}

	args = append(args, "--lang", opts.LangCode)
	if opts.Device != "" {
		args = append(args, "--device", opts.Device)
	}
	if opts.Transformer {
		args = append(args, "--trf")
	}

	cmd := exec.Command(args[0], args[1:]...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("kokoro: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("kokoro: stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("kokoro: stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("kokoro: start bridge %q: %w", args[0], err)
	}

	e := &Engine{
		cmd:    cmd,
		stdin:  stdin,
		enc:    json.NewEncoder(stdin),
		dec:    json.NewDecoder(bufio.NewReader(stdout)),
		logger: logger.With("component", "kokoro-bridge"),
	}
	go e.drainStderr(stderr)

	e.logger.Debug("bridge started",
		"command", args[0], "lang", opts.LangCode,
		"trf", opts.Transformer, "device", opts.Device)
	return e, nil
}

func (e *Engine) drainStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		e.logger.Debug("bridge stderr", "line", scanner.Text())
	}
}

// Speak sends one request to the bridge and returns a stream over its
// chunks. The stream must be exhausted or closed before the next Speak.
func (e *Engine) Speak(ctx context.Context, req engines.Request) (engines.Stream, error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, ErrClosed
	}

	breq := bridgeRequest{
		Text:         req.Text,
		Voice:        req.Voice,
		Speed:        req.Speed,
		SplitPattern: req.SplitPattern,
	}
	if err := e.enc.Encode(breq); err != nil {
		e.mu.Unlock()
		return nil, fmt.Errorf("kokoro: send request: %w", err)
	}
	// The stream holds the lock until it sees the final response or is
	// closed, keeping the pipe framing intact across requests.
	return &stream{engine: e, ctx: ctx}, nil
}

type stream struct {
	engine   *Engine
	ctx      context.Context
	finished bool
}

func (s *stream) Next() (engines.Unit, error) {
	if s.finished {
		return engines.Unit{}, io.EOF
	}
	if err := s.ctx.Err(); err != nil {
		s.release(true)
		return engines.Unit{}, err
	}

	var resp bridgeResponse
	if err := s.engine.dec.Decode(&resp); err != nil {
		s.release(false)
		if errors.Is(err, io.EOF) {
			return engines.Unit{}, fmt.Errorf("kokoro: bridge exited mid-stream: %w", err)
		}
		return engines.Unit{}, fmt.Errorf("kokoro: read response: %w", err)
	}
	if resp.Error != "" {
		s.release(true)
		return engines.Unit{}, fmt.Errorf("kokoro: bridge error: %s", resp.Error)
	}
	if resp.Final {
		s.release(false)
		return engines.Unit{}, io.EOF
	}

	samples, err := decodePCM(resp.PCM)
	if err != nil {
		s.release(true)
		return engines.Unit{}, err
	}
	return engines.Unit{Samples: samples, Timings: convertTokens(resp.Tokens)}, nil
}

// release ends the request and returns the engine to callers. When the
// stream is abandoned before the final response, the remaining chunks are
// drained so the next request starts on a clean frame.
func (s *stream) release(drain bool) {
	if s.finished {
		return
	}
	s.finished = true
	if drain {
		for {
			var resp bridgeResponse
			if err := s.engine.dec.Decode(&resp); err != nil || resp.Final {
				break
			}
		}
	}
	s.engine.mu.Unlock()
}

func (s *stream) Close() error {
	s.release(true)
	return nil
}

// Close terminates the bridge process. In-flight streams fail with a read
// error.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	_ = e.stdin.Close()
	if err := e.cmd.Wait(); err != nil {
		_ = e.cmd.Process.Kill()
		return fmt.Errorf("kokoro: bridge shutdown: %w", err)
	}
	return nil
}

func convertTokens(tokens []bridgeToken) []engines.Timing {
	if len(tokens) == 0 {
		return nil
	}
	timings := make([]engines.Timing, 0, len(tokens))
	for _, tok := range tokens {
		t := engines.Timing{Text: tok.Text, Whitespace: tok.Whitespace}
		if tok.StartTS != nil && tok.EndTS != nil {
			t.StartSec = *tok.StartTS
			t.EndSec = *tok.EndTS
			t.Timed = true
		}
		timings = append(timings, t)
	}
	return timings
}

func decodePCM(b64 string) ([]float32, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("kokoro: decode pcm: %w", err)
	}
	if len(raw)%4 != 0 {
		return nil, fmt.Errorf("kokoro: pcm payload not float32-aligned: %d bytes", len(raw))
	}
	samples := make([]float32, len(raw)/4)
	for i := range samples {
		bits := binary.LittleEndian.Uint32(raw[i*4:])
		samples[i] = math.Float32frombits(bits)
	}
	return samples, nil
}
