package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"murmur/audio"
	"murmur/beep"
	"murmur/config"
	"murmur/doctor"
	"murmur/hotkey"
	"murmur/ipc"
	"murmur/log"
	"murmur/login"
	"murmur/model"
	"murmur/overlay"
	"murmur/pipeline"
	"murmur/recorder"
	"murmur/shutdown"
	"murmur/telemetry"
)

var version = "dev"

// Set by initGUI when the window overlay owns the main thread.
var (
	guiSink     overlay.Sink
	guiQuit     func()
	guiDone     <-chan struct{}
	presetAudio audio.Context
)

type options struct {
	configPath string
	logPath    string
	device     string
	setup      bool
	model      string
	format     string
	autoPaste  bool
	hybrid     bool
	longPress  time.Duration
	tui        bool
	gui        bool
	doctor     bool
	download   string
	version    bool
	profile    string
	crash      bool
	test       bool
	login      string
	args       []string

	// set holds the flags given explicitly; only those override the
	// config file.
	set map[string]bool
}

func parseFlags(args []string) (options, error) {
	var o options
	fs := flag.NewFlagSet("murmur", flag.ContinueOnError)
	fs.StringVar(&o.configPath, "config", "", "Path to config.yaml (default: <app dir>/config.yaml when present)")
	fs.StringVar(&o.logPath, "logpath", "", "log directory path (default: OS-specific location, use ./ for current dir)")
	fs.StringVar(&o.device, "device", "", "Use named microphone device")
	fs.BoolVar(&o.setup, "setup", false, "Select microphone device (otherwise uses system default)")
	fs.StringVar(&o.model, "model", "", "Speech model variant (e.g., base.en, small)")
	fs.StringVar(&o.format, "format", "", "Recording artifact format: wav or flac")
	fs.BoolVar(&o.autoPaste, "autopaste", true, "Auto-paste to focused window after transcription")
	fs.BoolVar(&o.hybrid, "hybrid", false, "Enable hybrid tap+hold recording mode")
	fs.DurationVar(&o.longPress, "longpress", 350*time.Millisecond, "Long-press threshold for PTT vs tap (e.g., 350ms)")
	fs.BoolVar(&o.tui, "tui", true, "Run with terminal UI")
	fs.BoolVar(&o.gui, "gui", false, "Show the floating window overlay (requires -tags gui)")
	fs.BoolVar(&o.doctor, "doctor", false, "Run system diagnostics and exit")
	fs.StringVar(&o.download, "download", "", "Download the named model and exit")
	fs.BoolVar(&o.version, "version", false, "Print version and exit")
	fs.StringVar(&o.profile, "profile", "", "Enable pprof profiling server (e.g., :6060 or localhost:6060)")
	fs.BoolVar(&o.crash, "crash", false, "Trigger synthetic panic for testing crash logging")
	fs.StringVar(&o.login, "login", "", "Start murmur at login: on or off")
	fs.BoolVar(&o.test, "test", false, "Test mode (headless, stdin-driven) replaying a WAV file")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	o.args = fs.Args()
	o.set = make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { o.set[f.Name] = true })
	return o, nil
}

func applyFlags(cfg *config.Config, o options) {
	if o.set["device"] {
		cfg.Recording.Device = o.device
	}
	if o.set["model"] {
		cfg.Model.Default = o.model
	}
	if o.set["format"] {
		cfg.Recording.Format = o.format
	}
	if o.set["hybrid"] {
		cfg.Hotkey.Hybrid = o.hybrid
	}
	if o.set["longpress"] {
		cfg.Hotkey.LongPressMS = int(o.longPress / time.Millisecond)
	}
}

func loadConfig(o options) (config.Config, error) {
	path := o.configPath
	if path == "" {
		if dir, err := log.AppDir(); err == nil {
			candidate := filepath.Join(dir, "config.yaml")
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, err
	}
	applyFlags(&cfg, o)
	if err := config.Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// initCrashLog routes fatal runtime output to crash_log.txt before any cgo
// code runs, so -logpath is read straight from os.Args.
func initCrashLog() {
	dir, err := log.ResolveDir(flagValue(os.Args[1:], "logpath"))
	if err != nil {
		return
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return
	}
	crashFile, err := os.OpenFile(filepath.Join(dir, "crash_log.txt"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return
	}
	fmt.Fprintf(crashFile, "\n=== Session %s [pid=%d] ===\n", time.Now().Format("2006-01-02 15:04:05"), os.Getpid())
	debug.SetCrashOutput(crashFile, debug.CrashOptions{})
}

// flagValue finds -name value or -name=value without a full parse.
func flagValue(args []string, name string) string {
	for i, arg := range args {
		for _, prefix := range []string{"-" + name, "--" + name} {
			if arg == prefix && i+1 < len(args) {
				return args[i+1]
			}
			if v, ok := strings.CutPrefix(arg, prefix+"="); ok {
				return v
			}
		}
	}
	return ""
}

func fatal(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	log.Error(msg)
	fmt.Fprintln(os.Stderr, "Error: "+msg)
	log.Close()
	os.Exit(1)
}

func run() {
	if len(os.Args) > 1 && os.Args[1] == "ctl" {
		os.Exit(runCtl(os.Args[2:], os.Stdout))
	}

	o, err := parseFlags(os.Args[1:])
	if err != nil {
		os.Exit(2)
	}

	if o.version {
		fmt.Printf("murmur %s\n", version)
		os.Exit(0)
	}

	if o.login != "" {
		os.Exit(runLogin(o.login))
	}

	logPath, err := log.ResolveDir(o.logPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to resolve log directory: %v\n", err)
		os.Exit(1)
	}
	log.SetDir(logPath)
	if err := log.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not init logging: %v\n", err)
	}

	if o.profile != "" {
		go func() {
			fmt.Fprintf(os.Stderr, "pprof server listening on http://%s/debug/pprof/\n", o.profile)
			if err := http.ListenAndServe(o.profile, nil); err != nil {
				fmt.Fprintf(os.Stderr, "pprof server error: %v\n", err)
			}
		}()
	}

	if o.crash {
		panic("TEST CRASH: synthetic panic to verify crash logging")
	}

	cfg, err := loadConfig(o)
	if err != nil {
		fatal("config: %v", err)
	}

	if o.download != "" {
		code := runDownload(cfg, o.download)
		log.Close()
		os.Exit(code)
	}

	if o.test {
		if len(o.args) == 0 {
			fmt.Fprintln(os.Stderr, "Usage: murmur -test <wav-file>")
			os.Exit(1)
		}
		code := runTestMode(cfg, o.args[0], os.Stdin)
		log.Close()
		os.Exit(code)
	}

	if o.setup && cfg.Recording.Device == "" {
		ac, err := audio.NewContext()
		if err != nil {
			fatal("initializing audio: %v", err)
		}
		dev, err := audio.SelectDevice(ac)
		if err != nil {
			fmt.Printf("Warning: device selection failed: %v\n", err)
			fmt.Println("Falling back to default device")
		} else if dev != nil {
			cfg.Recording.Device = dev.Name
		}
		ac.Close()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tel, err := telemetry.Setup(ctx, telemetry.Config{
		ServiceVersion: version,
		MetricsBind:    cfg.Telemetry.MetricsBind,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		OTLPInsecure:   cfg.Telemetry.OTLPInsecure,
	})
	if err != nil {
		log.Warnf("telemetry disabled: %v", err)
		tel = nil
	}
	if tel != nil && cfg.Telemetry.MetricsBind != "" {
		if _, err := tel.Serve(cfg.Telemetry.MetricsBind); err != nil {
			log.Warnf("metrics endpoint: %v", err)
		}
	}

	app, err := pipeline.Build(ctx, cfg, pipeline.Options{Audio: presetAudio, Telemetry: tel})
	if err != nil {
		fatal("%v", err)
	}
	parts := app.Components()

	if o.doctor {
		code := doctor.Run(doctor.Deps{
			Permissions: parts.Permissions,
			Models:      parts.Models,
			Recorder:    parts.Recorder,
			Model:       cfg.Model.Default,
		})
		app.Close()
		log.Close()
		os.Exit(code)
	}

	if o.set["autopaste"] {
		if _, err := app.SetAutoPaste(o.autoPaste); err != nil {
			log.Warnf("save auto-paste preference: %v", err)
		}
	}

	log.SessionStart(cfg.Model.Default, cfg.Recording.Format, cfg.Hotkey.Hybrid)
	go beep.Init()

	srv := ipc.NewServer(app, cfg.IPC.Socket)
	if err := srv.Listen(); err != nil {
		app.Close()
		fatal("%v", err)
	}
	go func() {
		if err := srv.Serve(); err != nil {
			log.Errorf("ipc serve: %v", err)
		}
	}()

	mirror, err := ipc.ConnectMirror(cfg.Bus)
	if err != nil {
		log.Warnf("event mirror disabled: %v", err)
	}
	if mirror != nil {
		mirrored, stopMirror := app.Subscribe()
		defer stopMirror()
		go mirror.Run(ctx, mirrored)
	}

	hotkeys := startHotkeys(cfg.Hotkey)
	go app.RunHotkeys(ctx, hotkeys.sources...)

	var transcripts atomic.Int64
	events, unsubscribe := app.Subscribe()
	go func() {
		for ev := range events {
			if ev.Type == pipeline.EventTranscript && ev.Transcript != nil {
				transcripts.Add(1)
				tuiSend(TranscriptMsg{View: *ev.Transcript})
			}
		}
	}()

	if guiSink != nil {
		parts.Overlay.AddSink(guiSink)
	}

	quit := make(chan struct{})
	var quitOnce sync.Once
	requestQuit := func() { quitOnce.Do(func() { close(quit) }) }

	if o.tui && guiSink == nil {
		sink := &tuiSink{}
		parts.Overlay.AddSink(sink)
		p := NewTUIProgram(sink, func() {
			if err := app.CancelRecording(context.Background()); err != nil && !errors.Is(err, recorder.ErrNoActiveSession) {
				log.Warnf("cancel: %v", err)
			}
		})
		tuiMu.Lock()
		tuiProgram = p
		tuiMu.Unlock()
		go func() {
			if _, err := p.Run(); err != nil {
				log.Errorf("TUI error: %v", err)
			}
			requestQuit()
		}()
		tuiSend(StatusMsg{
			Model:  cfg.Model.Default,
			Device: deviceLabel(cfg.Recording.Device),
			Socket: cfg.IPC.Socket,
			Hybrid: cfg.Hotkey.Hybrid,
		})
		if hotkeys.err != nil {
			tuiSend(WarningMsg{Text: "hotkeys unavailable, use murmur ctl"})
		}
	} else {
		fmt.Printf("murmur %s listening on %s\n", version, cfg.IPC.Socket)
	}

	parts.Overlay.Run()

	go preload(ctx, app, cfg.Model.Default)

	sigChan := make(chan os.Signal, 1)
	shutdown.Notify(sigChan)
	select {
	case <-sigChan:
	case <-quit:
	case <-guiDone:
	}

	cancel()
	hotkeys.close()
	srv.Close()
	unsubscribe()
	mirror.Close()
	app.Close()

	shutdownCtx, done := context.WithTimeout(context.Background(), 3*time.Second)
	if err := tel.Shutdown(shutdownCtx); err != nil {
		log.Warnf("telemetry shutdown: %v", err)
	}
	done()

	tuiMu.Lock()
	if tuiProgram != nil {
		tuiProgram.Quit()
	}
	tuiMu.Unlock()
	if guiQuit != nil {
		guiQuit()
	}

	if n := transcripts.Load(); n > 0 {
		log.SessionEnd(int(n))
	}
	log.Close()
}

// preload warms the default model when it is already on disk so the first
// dictation skips the load.
func preload(ctx context.Context, app *pipeline.App, name string) {
	if !app.Components().Models.IsDownloaded(name) {
		tuiSend(WarningMsg{Text: "model " + name + " missing: murmur -download " + name})
		return
	}
	if err := app.PreloadModel(ctx, name); err != nil && !errors.Is(err, context.Canceled) {
		log.Warnf("preload %s: %v", name, err)
		tuiSend(WarningMsg{Text: "model load failed: " + err.Error()})
	}
}

func deviceLabel(device string) string {
	if device == "" {
		return "system default"
	}
	if audio.IsBluetooth(device) {
		return device + " (BT!)"
	}
	return device
}

type hotkeySet struct {
	sources     []<-chan hotkey.Event
	controllers []*hotkey.Controller
	keys        []hotkey.Hotkey
	err         error
}

// startHotkeys registers the dictation and assistant combos. A combo that
// fails to register is logged and skipped; IPC still drives the app.
func startHotkeys(cfg config.HotkeyConfig) *hotkeySet {
	hs := &hotkeySet{}

	dictate := hotkey.New(hotkey.Dictate)
	if err := dictate.Register(); err != nil {
		log.Errorf("hotkey register %s: %v", hotkey.Dictate, err)
		hs.err = err
	} else if cfg.Hybrid {
		hs.add(dictate, hotkey.NewHybrid(dictate, config.Millis(cfg.LongPressMS)))
	} else {
		hs.add(dictate, hotkey.NewPushToTalk(dictate))
	}

	assist := hotkey.New(hotkey.Assist)
	if err := assist.Register(); err != nil {
		log.Errorf("hotkey register %s: %v", hotkey.Assist, err)
		hs.err = errors.Join(hs.err, err)
	} else {
		hs.add(assist, hotkey.NewToggle(assist, recorder.Assistant))
	}
	return hs
}

func (hs *hotkeySet) add(hk hotkey.Hotkey, c *hotkey.Controller) {
	hs.keys = append(hs.keys, hk)
	hs.controllers = append(hs.controllers, c)
	hs.sources = append(hs.sources, c.Events())
}

func (hs *hotkeySet) close() {
	for _, c := range hs.controllers {
		c.Close()
	}
	for _, hk := range hs.keys {
		hk.Unregister()
	}
}

// runDownload fetches one model with a console progress bar.
func runDownload(cfg config.Config, name string) int {
	if _, err := model.Lookup(name); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	m := model.NewManager(model.Config{Dir: cfg.Paths.ModelsDir, BaseURL: cfg.Model.BaseURL})
	defer m.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigChan := make(chan os.Signal, 1)
	shutdown.Notify(sigChan)
	go func() {
		<-sigChan
		cancel()
	}()

	start := time.Now()
	err := m.Download(ctx, name, func(p float64) {
		fmt.Printf("\r%s %s %3.0f%%", name, progressBar(p, 30), p*100)
	})
	fmt.Println()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	size, _ := m.SizeOf(name)
	fmt.Printf("%s ready (%.1f MB, %s)\n", name, float64(size)/(1<<20), time.Since(start).Round(time.Millisecond))
	return 0
}

func progressBar(p float64, width int) string {
	filled := int(p * float64(width))
	filled = max(0, min(filled, width))
	bar := make([]rune, width)
	for i := range bar {
		if i < filled {
			bar[i] = '█'
		} else {
			bar[i] = '░'
		}
	}
	return "[" + string(bar) + "]"
}

func runLogin(state string) int {
	var err error
	switch state {
	case "on":
		err = login.Enable()
	case "off":
		err = login.Disable()
	default:
		err = fmt.Errorf("-login must be on or off, got %q", state)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Printf("launch at login: %s\n", state)
	return 0
}
