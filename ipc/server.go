package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"murmur/log"
	"murmur/pipeline"
)

const maxLine = 1024 * 1024

type Server struct {
	app  *pipeline.App
	path string

	mu     sync.Mutex
	ln     net.Listener
	conns  map[net.Conn]struct{}
	closed bool
	wg     sync.WaitGroup
}

func NewServer(app *pipeline.App, path string) *Server {
	return &Server{app: app, path: path, conns: make(map[net.Conn]struct{})}
}

// Listen binds the socket. A leftover socket file nobody answers on is
// replaced; a live one means another instance is running.
func (s *Server) Listen() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create socket dir: %w", err)
	}
	if _, err := os.Stat(s.path); err == nil {
		if c, err := net.DialTimeout("unix", s.path, 200*time.Millisecond); err == nil {
			c.Close()
			return fmt.Errorf("socket %s is in use by another instance", s.path)
		}
		os.Remove(s.path)
	}
	ln, err := net.Listen("unix", s.path)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.path, err)
	}
	if err := os.Chmod(s.path, 0o600); err != nil {
		ln.Close()
		return fmt.Errorf("chmod socket: %w", err)
	}
	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()
	log.Infof("command channel listening on %s", s.path)
	return nil
}

// Serve accepts connections until Close. Listen must have succeeded.
func (s *Server) Serve() error {
	s.mu.Lock()
	ln := s.ln
	s.mu.Unlock()
	if ln == nil {
		return errors.New("ipc: Serve before Listen")
	}
	for {
		conn, err := ln.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			conn.Close()
			return nil
		}
		s.conns[conn] = struct{}{}
		s.wg.Add(1)
		s.mu.Unlock()
		go s.serveConn(conn)
	}
}

// Close stops accepting, drops every connection and removes the socket.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	var err error
	if s.ln != nil {
		err = s.ln.Close()
	}
	for c := range s.conns {
		c.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
	os.Remove(s.path)
	return err
}

type conn struct {
	net.Conn
	wmu sync.Mutex
}

func (c *conn) send(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Errorf("ipc: marshal: %v", err)
		return
	}
	data = append(data, '\n')
	c.wmu.Lock()
	defer c.wmu.Unlock()
	c.Write(data)
}

func (s *Server) serveConn(nc net.Conn) {
	c := &conn{Conn: nc}
	ctx, cancel := context.WithCancel(context.Background())
	var reqs sync.WaitGroup
	defer func() {
		// in-flight commands see the cancel, so downloads detach
		cancel()
		reqs.Wait()
		nc.Close()
		s.mu.Lock()
		delete(s.conns, nc)
		s.mu.Unlock()
		s.wg.Done()
	}()

	scanner := bufio.NewScanner(nc)
	scanner.Buffer(make([]byte, 64*1024), maxLine)
	for scanner.Scan() {
		var cmd Command
		if err := json.Unmarshal(scanner.Bytes(), &cmd); err != nil {
			c.send(Response{Error: fmt.Sprintf("malformed command: %v", err), Code: pipeline.CodeInvalidArgument})
			continue
		}
		if cmd.Cmd == "subscribe" {
			reqs.Add(1)
			go func() {
				defer reqs.Done()
				s.stream(ctx, c, cmd.ID)
			}()
			continue
		}
		reqs.Add(1)
		go func(cmd Command) {
			defer reqs.Done()
			emit := func(ev Event) {
				ev.ID = cmd.ID
				c.send(ev)
			}
			resp := s.dispatch(ctx, cmd, emit)
			resp.ID = cmd.ID
			c.send(resp)
		}(cmd)
	}
}

// stream acknowledges a subscribe and forwards App events until the
// connection goes away.
func (s *Server) stream(ctx context.Context, c *conn, id json.RawMessage) {
	events, unsubscribe := s.app.Subscribe()
	defer unsubscribe()
	c.send(Response{ID: id, OK: true})
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			c.send(Event{
				ID:         id,
				Event:      string(ev.Type),
				Overlay:    ev.Overlay,
				Session:    ev.Session,
				Transcript: ev.Transcript,
			})
		}
	}
}
