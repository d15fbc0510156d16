package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	log "log/slog"
	"net"
	"os"
)

const SocketPath = "/tmp/dit.sock"

const (
	CmdListen = "listen"
	CmdMute   = "mute"
	CmdToggle = "toggle"
	CmdAsk    = "ask"
	CmdStop   = "stop"
	CmdLang   = "lang"
	CmdState  = "state"
)

type ControlMessage struct {
	Cmd string `json:"cmd"`
	Arg string `json:"arg,omitempty"`
}

type Reply struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
	Data  string `json:"data,omitempty"`
}

type Handler func(ControlMessage) (string, error)

type Server struct {
	ln      net.Listener
	handler Handler
}

func Listen(path string, handler Handler) (*Server, error) {
	if path == "" {
		path = SocketPath
	}
	os.Remove(path)

	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen: %w", err)
	}

	return &Server{ln: ln, handler: handler}, nil
}

// Serve accepts control connections until ctx is done.
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.ln.Close()
	}()

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return ctx.Err()
			}
			log.Warn("Control accept failed", "err", err)
			continue
		}
		go s.handleConn(conn)
	}
}

func (s *Server) Close() error {
	return s.ln.Close()
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	var msg ControlMessage
	if err := json.NewDecoder(conn).Decode(&msg); err != nil {
		log.Warn("Bad control message", "err", err)
		return
	}

	log.Debug("Control message", "cmd", msg.Cmd, "arg", msg.Arg)

	reply := Reply{OK: true}
	data, err := s.handler(msg)
	if err != nil {
		reply = Reply{Error: err.Error()}
	} else {
		reply.Data = data
	}

	if err := json.NewEncoder(conn).Encode(reply); err != nil {
		log.Warn("Failed to reply", "err", err)
	}
}

func SendCommand(path, cmd, arg string) (Reply, error) {
	if path == "" {
		path = SocketPath
	}

	conn, err := net.Dial("unix", path)
	if err != nil {
		return Reply{}, err
	}
	defer conn.Close()

	if err := json.NewEncoder(conn).Encode(ControlMessage{Cmd: cmd, Arg: arg}); err != nil {
		return Reply{}, fmt.Errorf("send: %w", err)
	}

	var r Reply
	if err := json.NewDecoder(conn).Decode(&r); err != nil {
		return Reply{}, fmt.Errorf("read reply: %w", err)
	}
	if !r.OK {
		return r, errors.New(r.Error)
	}
	return r, nil
}
