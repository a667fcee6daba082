package ipc

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"

	"murmur/config"
	"murmur/pipeline"
)

func startNATS(t *testing.T) string {
	t.Helper()
	ns, err := server.NewServer(&server.Options{Host: "127.0.0.1", Port: -1, NoLog: true, NoSigs: true})
	if err != nil {
		t.Fatal(err)
	}
	go ns.Start()
	if !ns.ReadyForConnections(5 * time.Second) {
		t.Fatal("nats server not ready")
	}
	t.Cleanup(func() {
		ns.Shutdown()
		ns.WaitForShutdown()
	})
	return ns.ClientURL()
}

func TestConnectMirrorDisabled(t *testing.T) {
	m, err := ConnectMirror(config.BusConfig{})
	if err != nil || m != nil {
		t.Fatalf("ConnectMirror without servers = %v, %v", m, err)
	}
	m.Close()
}

func TestMirrorPublishes(t *testing.T) {
	url := startNATS(t)
	m, err := ConnectMirror(config.BusConfig{Servers: []string{url}, SubjectPrefix: "murmur", ConnectTimeout: 2000})
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close()

	sub, err := nats.Connect(url)
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Close()
	overlays, err := sub.SubscribeSync("murmur.overlay")
	if err != nil {
		t.Fatal(err)
	}
	transcripts, err := sub.SubscribeSync("murmur.transcript")
	if err != nil {
		t.Fatal(err)
	}
	if err := sub.Flush(); err != nil {
		t.Fatal(err)
	}

	events := make(chan pipeline.Event, 8)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx, events)

	frame := func(state string) pipeline.Event {
		return pipeline.Event{Type: pipeline.EventOverlay, Overlay: &pipeline.OverlayEvent{State: state, Mode: "hands-free"}}
	}
	events <- frame("recording")
	events <- frame("recording")
	events <- frame("processing")
	events <- pipeline.Event{Type: pipeline.EventTranscript, Transcript: &pipeline.TranscriptView{ID: "t1", Text: "hello world"}}

	var states []string
	for i := 0; i < 2; i++ {
		msg, err := overlays.NextMsg(2 * time.Second)
		if err != nil {
			t.Fatal(err)
		}
		var got struct{ State string }
		if err := json.Unmarshal(msg.Data, &got); err != nil {
			t.Fatal(err)
		}
		states = append(states, got.State)
	}
	if states[0] != "recording" || states[1] != "processing" {
		t.Errorf("overlay states = %v", states)
	}
	if msg, err := overlays.NextMsg(100 * time.Millisecond); err == nil {
		t.Errorf("unexpected overlay message %s", msg.Data)
	}

	msg, err := transcripts.NextMsg(2 * time.Second)
	if err != nil {
		t.Fatal(err)
	}
	var tr pipeline.TranscriptView
	if err := json.Unmarshal(msg.Data, &tr); err != nil {
		t.Fatal(err)
	}
	if tr.ID != "t1" || tr.Text != "hello world" {
		t.Errorf("transcript = %+v", tr)
	}
}
