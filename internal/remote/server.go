// Package remote accepts reader commands from outside the terminal, such
// as a browser action or a window manager key binding, over a local
// websocket.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
)

// Action is a remote command name.
type Action string

// Supported actions.
const (
	ActionReadOutLoud Action = "readOutLoud"
	ActionStop        Action = "stop"
	ActionPause       Action = "pause"
	ActionResume      Action = "resume"
)

// ErrUnknownAction is returned for commands the server does not handle.
var ErrUnknownAction = errors.New("unknown action")

const (
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	writeWait  = 10 * time.Second
)

// Command is one message from a client. Text is optional for
// readOutLoud; without it the current selection is read.
type Command struct {
	Action Action `json:"action"`
	Text   string `json:"text,omitempty"`
}

// Validate checks the action name.
func (c Command) Validate() error {
	switch c.Action {
	case ActionReadOutLoud, ActionStop, ActionPause, ActionResume:
		return nil
	}
	return fmt.Errorf("%w: %q", ErrUnknownAction, c.Action)
}

// Reply is sent back for every command.
type Reply struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// Handler runs a command. It must not block for long; it is called on the
// connection's read goroutine.
type Handler func(Command) error

// Server is a websocket endpoint for commands.
type Server struct {
	handler  Handler
	upgrader websocket.Upgrader

	mu  sync.Mutex
	srv *http.Server
	ln  net.Listener
}

// NewServer creates a server passing commands to h.
func NewServer(h Handler) *Server {
	return &Server{
		handler: h,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// Start listens on addr and serves in the background.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("unable to listen on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/", s)

	s.mu.Lock()
	s.ln = ln
	s.srv = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	srv := s.srv
	s.mu.Unlock()

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Remote control server stopped", "err", err)
		}
	}()
	log.Info("Listening for remote commands", "addr", ln.Addr().String())
	return nil
}

// Addr returns the listening address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Shutdown stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.srv
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// ServeHTTP upgrades the request and handles commands until the client
// goes away.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debug("Websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	var writeMu sync.Mutex
	write := func(fn func() error) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		return fn()
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := write(func() error { return conn.WriteMessage(websocket.PingMessage, nil) }); err != nil {
					return
				}
			}
		}
	}()

	conn.SetReadLimit(64 * 1024)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug("Remote client went away", "err", err)
			}
			return
		}

		reply := s.handle(message)
		if err := write(func() error { return conn.WriteJSON(reply) }); err != nil {
			log.Debug("Could not reply to remote client", "err", err)
			return
		}
	}
}

func (s *Server) handle(message []byte) Reply {
	var cmd Command
	if err := json.Unmarshal(message, &cmd); err != nil {
		return Reply{Error: "invalid command: " + err.Error()}
	}
	if err := cmd.Validate(); err != nil {
		return Reply{Error: err.Error()}
	}
	log.Debug("Remote command", "action", cmd.Action)
	if err := s.handler(cmd); err != nil {
		return Reply{Error: err.Error()}
	}
	return Reply{OK: true}
}
