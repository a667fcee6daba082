package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"murmur/config"
	"murmur/log"
	"murmur/pipeline"
)

// Mirror republishes transcripts, session changes and overlay state
// transitions on NATS subjects under a prefix.
type Mirror struct {
	conn   *nats.Conn
	prefix string
}

// ConnectMirror dials the configured servers. It returns nil without error
// when no server is configured.
func ConnectMirror(cfg config.BusConfig) (*Mirror, error) {
	if len(cfg.Servers) == 0 {
		return nil, nil
	}
	if cfg.SubjectPrefix == "" {
		return nil, errors.New("bus subject prefix is empty")
	}
	conn, err := nats.Connect(strings.Join(cfg.Servers, ","),
		nats.Name("murmur"),
		nats.Timeout(time.Duration(cfg.ConnectTimeout)*time.Millisecond),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	log.Infof("mirroring events to NATS %s", conn.ConnectedUrl())
	return &Mirror{conn: conn, prefix: cfg.SubjectPrefix}, nil
}

func (m *Mirror) Subject(kind pipeline.EventType) string {
	return m.prefix + "." + string(kind)
}

// Run publishes events until ctx is done or the stream closes. Overlay
// frames are only published when the state changes.
func (m *Mirror) Run(ctx context.Context, events <-chan pipeline.Event) {
	var lastState string
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			var payload any
			switch ev.Type {
			case pipeline.EventOverlay:
				if ev.Overlay == nil || ev.Overlay.State == lastState {
					continue
				}
				lastState = ev.Overlay.State
				payload = struct {
					State string `json:"state"`
					Mode  string `json:"mode"`
					Color string `json:"color"`
					Text  string `json:"text,omitempty"`
					Error string `json:"error,omitempty"`
				}{ev.Overlay.State, ev.Overlay.Mode, ev.Overlay.Color, ev.Overlay.Text, ev.Overlay.Error}
			case pipeline.EventSession:
				payload = ev.Session
			case pipeline.EventTranscript:
				payload = ev.Transcript
			default:
				continue
			}
			data, err := json.Marshal(payload)
			if err != nil {
				log.Errorf("mirror: marshal %s: %v", ev.Type, err)
				continue
			}
			if err := m.conn.Publish(m.Subject(ev.Type), data); err != nil {
				log.Warnf("mirror: publish %s: %v", ev.Type, err)
			}
		}
	}
}

// Close flushes pending messages and disconnects.
func (m *Mirror) Close() {
	if m == nil {
		return
	}
	if err := m.conn.Drain(); err != nil {
		m.conn.Close()
	}
}
