// Package ctrl implements the local control channel: a unix socket speaking
// one JSON message per line, used by `say` to post text into a running
// daemon.
package ctrl

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"

	"github.com/charmbracelet/log"
	gap "github.com/muesli/go-app-paths"
)

// Commands a Message can carry. An empty Cmd means CmdSay.
const (
	CmdSay    = "say"
	CmdSeek   = "seek"
	CmdTrack  = "track"
	CmdSave   = "save"
	CmdClear  = "clear"
	CmdToggle = "toggle"
	CmdRegen  = "regen"
)

// Message is one control request. For CmdSay, Append extends the most
// recent track instead of starting a new one. Content carries the text for
// CmdSay and the output path for CmdSave; Value carries the seek offset in
// seconds for CmdSeek and the track step for CmdTrack.
type Message struct {
	Cmd     string  `json:"cmd,omitempty"`
	Append  bool    `json:"append,omitempty"`
	Content string  `json:"content,omitempty"`
	Value   float64 `json:"value,omitempty"`
}

// Handler consumes decoded control messages.
type Handler func(Message)

// SocketPath returns the user-scoped location of the control socket.
func SocketPath() (string, error) {
	scope := gap.NewScope(gap.User, "kokoro-tui")
	path, err := scope.DataPath("control.sock")
	if err != nil {
		return "", fmt.Errorf("resolve socket path: %w", err)
	}
	return path, nil
}

// Server listens on a unix socket and hands each decoded message to the
// handler. Connections are short-lived: clients write messages and hang up.
type Server struct {
	listener net.Listener
	handler  Handler
	logger   *log.Logger

	closeOnce sync.Once
	closed    chan struct{}
	done      chan struct{}
}

// Listen binds the socket at path, replacing a stale one left by a previous
// run, and starts accepting connections.
func Listen(path string, handler Handler, logger *log.Logger) (*Server, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating socket dir: %w", err)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("removing stale socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", path, err)
	}

	s := &Server{
		listener: listener,
		handler:  handler,
		logger:   logger.With("component", "ctrl"),
		closed:   make(chan struct{}),
		done:     make(chan struct{}),
	}
	go s.accept()
	return s, nil
}

// Addr returns the bound socket path.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Close stops accepting and waits for the accept loop to exit. In-flight
// connection handlers finish on their own.
func (s *Server) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)
		err = s.listener.Close()
	})
	<-s.done
	return err
}

func (s *Server) accept() {
	defer close(s.done)
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.closed:
				return
			default:
			}
			s.logger.Warn("accept failed", "err", err)
			continue
		}
		go s.serve(conn)
	}
}

func (s *Server) serve(conn net.Conn) {
	defer conn.Close()
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var msg Message
		if err := json.Unmarshal(line, &msg); err != nil {
			s.logger.Warn("discarding malformed message", "err", err)
			continue
		}
		s.handler(msg)
	}
	if err := scanner.Err(); err != nil {
		s.logger.Warn("connection read failed", "err", err)
	}
}

// Send delivers one message to the daemon listening at path.
func Send(path string, msg Message) error {
	conn, err := net.Dial("unix", path)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", path, err)
	}
	defer conn.Close()

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding message: %w", err)
	}
	data = append(data, '\n')
	if _, err := conn.Write(data); err != nil {
		return fmt.Errorf("writing message: %w", err)
	}
	return nil
}
