package ctrl

import (
	"io"
	"net"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
)

type recorder struct {
	mu   sync.Mutex
	msgs []Message
}

func (r *recorder) handle(msg Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
}

func (r *recorder) wait(t *testing.T, n int) []Message {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		r.mu.Lock()
		if len(r.msgs) >= n {
			out := append([]Message(nil), r.msgs...)
			r.mu.Unlock()
			return out
		}
		r.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d messages", n)
	panic("unreachable")
}

func listen(t *testing.T) (*Server, *recorder, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ctl.sock")
	rec := &recorder{}
	srv, err := Listen(path, rec.handle, log.New(io.Discard))
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	t.Cleanup(func() { _ = srv.Close() })
	return srv, rec, path
}

func TestServerRoundTrip(t *testing.T) {
	_, rec, path := listen(t)

	sent := []Message{
		{Cmd: CmdSay, Content: "hello there"},
		{Cmd: CmdSay, Append: true, Content: "and more"},
		{Cmd: CmdSeek, Value: -2.5},
		{Cmd: CmdSave, Content: "out.wav"},
		{Cmd: CmdToggle},
	}
	for _, msg := range sent {
		if err := Send(path, msg); err != nil {
			t.Fatalf("Send(%+v): %v", msg, err)
		}
	}

	got := rec.wait(t, len(sent))
	for i, want := range sent {
		if got[i] != want {
			t.Errorf("message %d = %+v, want %+v", i, got[i], want)
		}
	}
}

func TestServerIgnoresMalformedLines(t *testing.T) {
	_, rec, path := listen(t)

	conn, err := net.Dial("unix", path)
	if err != nil {
		t.Fatal(err)
	}
	payload := "not json at all\n" +
		"{\"cmd\": \"say\", \"content\": \"still alive\"}\n"
	if _, err := conn.Write([]byte(payload)); err != nil {
		t.Fatal(err)
	}
	conn.Close()

	got := rec.wait(t, 1)
	if got[0].Content != "still alive" {
		t.Errorf("got %+v, want the valid message only", got[0])
	}
}

func TestServerMultiMessageConnection(t *testing.T) {
	_, rec, path := listen(t)

	conn, err := net.Dial("unix", path)
	if err != nil {
		t.Fatal(err)
	}
	payload := "{\"content\": \"one\"}\n{\"content\": \"two\"}\n"
	if _, err := conn.Write([]byte(payload)); err != nil {
		t.Fatal(err)
	}
	conn.Close()

	got := rec.wait(t, 2)
	if got[0].Content != "one" || got[1].Content != "two" {
		t.Errorf("got %+v", got)
	}
}

func TestServerReplacesStaleSocket(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ctl.sock")

	first, err := Listen(path, func(Message) {}, log.New(io.Discard))
	if err != nil {
		t.Fatalf("first Listen: %v", err)
	}
	_ = first.Close()

	rec := &recorder{}
	second, err := Listen(path, rec.handle, log.New(io.Discard))
	if err != nil {
		t.Fatalf("Listen over stale socket: %v", err)
	}
	defer second.Close() //nolint:errcheck

	if err := Send(path, Message{Content: "fresh"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	rec.wait(t, 1)
}

func TestSendWithoutServer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nobody.sock")
	if err := Send(path, Message{Content: "hello"}); err == nil {
		t.Error("expected connection error")
	}
}
