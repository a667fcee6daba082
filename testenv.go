package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"murmur/audio"
	"murmur/beep"
	"murmur/config"
	"murmur/hotkey"
	"murmur/log"
	"murmur/overlay"
	"murmur/permission"
	"murmur/pipeline"
	"murmur/recorder"
)

// runTestMode drives the full pipeline headlessly: audio is replayed from
// wavPath, every permission is granted, and hotkeys come from stdin lines:
//
//	KEYDOWN / KEYUP        dictation combo
//	ASSIST                 tap the assistant combo
//	WAIT                   block until the next dictation finishes
//	SLEEP <ms>
//	QUIT
func runTestMode(cfg config.Config, wavPath string, in io.Reader) int {
	beep.SetEnabled(false)

	fake, err := audio.NewFakeContext(wavPath, true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading WAV: %v\n", err)
		return 1
	}
	prober := permission.NewFake()
	for _, c := range []permission.Capability{permission.Microphone, permission.ScreenCapture, permission.AutomationControl} {
		prober.Set(c, permission.Granted)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := pipeline.Build(ctx, cfg, pipeline.Options{Audio: fake, Prober: prober})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	app.Components().Overlay.Run()

	dictateKey := hotkey.NewFake()
	assistKey := hotkey.NewFake()
	var dictate *hotkey.Controller
	if cfg.Hotkey.Hybrid {
		dictate = hotkey.NewHybrid(dictateKey, config.Millis(cfg.Hotkey.LongPressMS))
	} else {
		dictate = hotkey.NewPushToTalk(dictateKey)
	}
	assist := hotkey.NewToggle(assistKey, recorder.Assistant)
	go app.RunHotkeys(ctx, dictate.Events(), assist.Events())

	finished := make(chan struct{}, 16)
	events, unsubscribe := app.Subscribe()
	go watchFinished(events, finished)

	count := 0
	scanner := bufio.NewScanner(in)
loop:
	for scanner.Scan() {
		cmd := strings.TrimSpace(scanner.Text())
		switch {
		case cmd == "KEYDOWN":
			dictateKey.SimKeydown()
		case cmd == "KEYUP":
			dictateKey.SimKeyup()
		case cmd == "ASSIST":
			assistKey.SimKeydown()
			assistKey.SimKeyup()
		case cmd == "WAIT":
			<-finished
			count++
		case strings.HasPrefix(cmd, "SLEEP "):
			if ms, err := strconv.Atoi(cmd[6:]); err == nil {
				time.Sleep(time.Duration(ms) * time.Millisecond)
			}
		case cmd == "QUIT":
			break loop
		}
	}
	dictate.Close()
	assist.Close()
	app.Wait()
	unsubscribe()
	app.Close()
	if count > 0 {
		log.SessionEnd(count)
	}
	return 0
}

// watchFinished signals once per dictation, whether it produced a
// transcript or failed.
func watchFinished(events <-chan pipeline.Event, finished chan<- struct{}) {
	last := string(overlay.Hidden)
	for ev := range events {
		switch ev.Type {
		case pipeline.EventTranscript:
			finished <- struct{}{}
		case pipeline.EventOverlay:
			st := ev.Overlay.State
			if st == string(overlay.Error) && last != st {
				finished <- struct{}{}
			}
			last = st
		}
	}
}
