package ipc

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"net"
	"strconv"
	"sync"
)

// Client talks to a Server over its Unix socket.
type Client struct {
	conn    net.Conn
	scanner *bufio.Scanner
	mu      sync.Mutex
	nextID  int64
}

func Dial(socketPath string) (*Client, error) {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("connect to murmur: %w", err)
	}
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 64*1024), maxLine)
	return &Client{conn: conn, scanner: scanner}, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

// Call sends cmd and waits for its response. Event lines read in the
// meantime, progress or subscription items, are passed to onEvent, which
// may be nil.
func (c *Client) Call(cmd Command, onEvent func(Event)) (Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(cmd.ID) == 0 {
		c.nextID++
		cmd.ID = json.RawMessage(strconv.FormatInt(c.nextID, 10))
	}
	data, err := json.Marshal(cmd)
	if err != nil {
		return Response{}, fmt.Errorf("marshal command: %w", err)
	}
	data = append(data, '\n')
	if _, err := c.conn.Write(data); err != nil {
		return Response{}, fmt.Errorf("write command: %w", err)
	}

	for {
		line, err := c.readLine()
		if err != nil {
			return Response{}, err
		}
		var probe struct {
			ID    json.RawMessage `json:"id"`
			Event string          `json:"event"`
		}
		if err := json.Unmarshal(line, &probe); err != nil {
			return Response{}, fmt.Errorf("unmarshal line: %w", err)
		}
		if probe.Event != "" {
			if onEvent != nil {
				var ev Event
				if err := json.Unmarshal(line, &ev); err != nil {
					return Response{}, fmt.Errorf("unmarshal event: %w", err)
				}
				onEvent(ev)
			}
			continue
		}
		if !bytes.Equal(probe.ID, cmd.ID) {
			continue
		}
		var resp Response
		if err := json.Unmarshal(line, &resp); err != nil {
			return Response{}, fmt.Errorf("unmarshal response: %w", err)
		}
		return resp, nil
	}
}

// Subscribe asks for the event stream. Read it with ReadEvent.
func (c *Client) Subscribe() error {
	resp, err := c.Call(Command{Cmd: "subscribe"}, nil)
	if err != nil {
		return err
	}
	if !resp.OK {
		return fmt.Errorf("subscribe: %s", resp.Error)
	}
	return nil
}

// ReadEvent blocks for the next event line, skipping stray responses.
func (c *Client) ReadEvent() (Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for {
		line, err := c.readLine()
		if err != nil {
			return Event{}, err
		}
		var ev Event
		if err := json.Unmarshal(line, &ev); err != nil {
			return Event{}, fmt.Errorf("unmarshal event: %w", err)
		}
		if ev.Event != "" {
			return ev, nil
		}
	}
}

func (c *Client) readLine() ([]byte, error) {
	if !c.scanner.Scan() {
		if err := c.scanner.Err(); err != nil {
			return nil, fmt.Errorf("read: %w", err)
		}
		return nil, fmt.Errorf("connection closed")
	}
	return c.scanner.Bytes(), nil
}
