package remote

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type recorder struct {
	mu   sync.Mutex
	cmds []Command
	err  error
}

func (r *recorder) handle(c Command) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cmds = append(r.cmds, c)
	return r.err
}

func (r *recorder) commands() []Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Command(nil), r.cmds...)
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(url, "http"), nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msg string) Reply {
	t.Helper()
	if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
		t.Fatal(err)
	}
	var reply Reply
	if err := conn.ReadJSON(&reply); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	return reply
}

func TestServerCommands(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(NewServer(rec.handle))
	defer srv.Close()
	conn := dial(t, srv.URL)

	tests := []struct {
		msg     string
		wantOK  bool
		wantErr string
	}{
		{`{"action":"readOutLoud"}`, true, ""},
		{`{"action":"readOutLoud","text":"hello there"}`, true, ""},
		{`{"action":"pause"}`, true, ""},
		{`{"action":"resume"}`, true, ""},
		{`{"action":"stop"}`, true, ""},
		{`{"action":"dance"}`, false, "unknown action"},
		{`not json`, false, "invalid command"},
	}
	for _, tt := range tests {
		reply := send(t, conn, tt.msg)
		if reply.OK != tt.wantOK || !strings.Contains(reply.Error, tt.wantErr) {
			t.Errorf("%s: reply = %+v", tt.msg, reply)
		}
	}

	want := []Command{
		{Action: ActionReadOutLoud},
		{Action: ActionReadOutLoud, Text: "hello there"},
		{Action: ActionPause},
		{Action: ActionResume},
		{Action: ActionStop},
	}
	got := rec.commands()
	if len(got) != len(want) {
		t.Fatalf("handled %d commands, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("command %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestServerHandlerError(t *testing.T) {
	rec := &recorder{err: errors.New("nothing selected")}
	srv := httptest.NewServer(NewServer(rec.handle))
	defer srv.Close()

	reply := send(t, dial(t, srv.URL), `{"action":"readOutLoud"}`)
	if reply.OK || reply.Error != "nothing selected" {
		t.Errorf("reply = %+v", reply)
	}
}

func TestServerRejectsPlainHTTP(t *testing.T) {
	srv := httptest.NewServer(NewServer((&recorder{}).handle))
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != 400 {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestServerStart(t *testing.T) {
	rec := &recorder{}
	s := NewServer(rec.handle)
	if s.Addr() != "" {
		t.Error("Addr() before Start should be empty")
	}
	if err := s.Start("127.0.0.1:0"); err != nil {
		t.Fatal(err)
	}
	defer s.Shutdown(context.Background()) //nolint:errcheck

	reply := send(t, dial(t, "http://"+s.Addr()), `{"action":"stop"}`)
	if !reply.OK {
		t.Errorf("reply = %+v", reply)
	}
}
