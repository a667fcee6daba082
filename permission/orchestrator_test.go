package permission

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastOrchestrator(p Prober, opts ...Option) *Orchestrator {
	base := []Option{
		WithPollInterval(5 * time.Millisecond),
		WithSettleTimeout(200 * time.Millisecond),
	}
	return NewOrchestrator(p, append(base, opts...)...)
}

func TestCheckNeverPrompts(t *testing.T) {
	f := NewFake()
	f.OnPrompt(Microphone, Granted)
	o := fastOrchestrator(f)

	st, err := o.Check(context.Background(), Microphone)
	if err != nil {
		t.Fatal(err)
	}
	if st != Unknown {
		t.Errorf("got %v, want unknown", st)
	}
	if n := f.Prompts(Microphone); n != 0 {
		t.Errorf("check prompted %d times", n)
	}
}

func TestInvalidCapability(t *testing.T) {
	o := fastOrchestrator(NewFake())
	ctx := context.Background()

	if _, err := o.Check(ctx, Capability(99)); !errors.Is(err, ErrInvalidCapability) {
		t.Errorf("Check: got %v", err)
	}
	if _, err := o.Request(ctx, Capability(0)); !errors.Is(err, ErrInvalidCapability) {
		t.Errorf("Request: got %v", err)
	}
	if err := o.OpenSystemSettings(Capability(-1)); !errors.Is(err, ErrInvalidCapability) {
		t.Errorf("OpenSystemSettings: got %v", err)
	}
	if _, err := ParseCapability("camera"); !errors.Is(err, ErrInvalidCapability) {
		t.Errorf("ParseCapability: got %v", err)
	}
}

func TestRequest(t *testing.T) {
	tests := []struct {
		name        string
		initial     State
		outcome     State
		delay       time.Duration
		watch       bool
		want        State
		wantPrompts int
	}{
		{"already granted", Granted, Granted, 0, false, Granted, 0},
		{"already denied", Denied, Granted, 0, false, Denied, 0},
		{"restricted", Restricted, Granted, 0, false, Restricted, 0},
		{"user grants", Unknown, Granted, 20 * time.Millisecond, false, Granted, 1},
		{"user denies", Unknown, Denied, 20 * time.Millisecond, false, Denied, 1},
		{"never answers", Unknown, Unknown, 0, false, Denied, 1},
		{"watch grants", Unknown, Granted, 20 * time.Millisecond, true, Granted, 1},
		{"watch never answers", Unknown, Unknown, 0, true, Denied, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var (
				f *Fake
				p Prober
			)
			if tt.watch {
				w := NewFakeWatcher()
				f, p = w.Fake, w
			} else {
				f = NewFake()
				p = f
			}
			f.Set(Microphone, tt.initial)
			f.OnPrompt(Microphone, tt.outcome)
			f.PromptDelay = tt.delay

			st, err := fastOrchestrator(p).Request(context.Background(), Microphone)
			if err != nil {
				t.Fatal(err)
			}
			if st != tt.want {
				t.Errorf("got %v, want %v", st, tt.want)
			}
			if !st.Definitive() {
				t.Errorf("state %v is not definitive", st)
			}
			if n := f.Prompts(Microphone); n != tt.wantPrompts {
				t.Errorf("prompts = %d, want %d", n, tt.wantPrompts)
			}
		})
	}
}

func TestRequestSettleBound(t *testing.T) {
	f := NewFake()
	o := NewOrchestrator(f, WithPollInterval(10*time.Millisecond), WithSettleTimeout(80*time.Millisecond))

	start := time.Now()
	st, err := o.Request(context.Background(), ScreenCapture)
	if err != nil {
		t.Fatal(err)
	}
	if st != Denied {
		t.Errorf("got %v, want denied", st)
	}
	if el := time.Since(start); el > time.Second {
		t.Errorf("request took %v, settle should be bounded", el)
	}
}

func TestRequestAfterLateGrant(t *testing.T) {
	f := NewFake()
	f.Recheck = true
	o := fastOrchestrator(f)
	ctx := context.Background()

	// Nobody answers the first prompt.
	st, err := o.Request(ctx, Microphone)
	if err != nil || st != Denied {
		t.Fatalf("unanswered request = %v, %v", st, err)
	}
	if st, _ := o.Check(ctx, Microphone); st != Unknown {
		t.Errorf("check after timeout = %v, want unknown", st)
	}

	// A later probe observes a denial, then the user grants in settings.
	f.Set(Microphone, Denied)
	f.OnPrompt(Microphone, Granted)
	st, err = o.Request(ctx, Microphone)
	if err != nil || st != Granted {
		t.Fatalf("request after grant = %v, %v", st, err)
	}
	if n := f.Prompts(Microphone); n != 2 {
		t.Errorf("prompts = %d, want 2", n)
	}
}

func TestRequestTrustsRecordedDenial(t *testing.T) {
	f := NewFake()
	f.Set(Microphone, Denied)
	f.OnPrompt(Microphone, Granted)
	o := fastOrchestrator(f)

	st, err := o.Request(context.Background(), Microphone)
	if err != nil || st != Denied {
		t.Fatalf("request = %v, %v", st, err)
	}
	if n := f.Prompts(Microphone); n != 0 {
		t.Errorf("prompts = %d, want 0", n)
	}
}

func TestEnsure(t *testing.T) {
	f := NewFake()
	f.Set(Microphone, Denied)
	f.Set(AutomationControl, Granted)
	o := fastOrchestrator(f)

	if err := o.Ensure(context.Background(), Microphone); !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("denied microphone: got %v", err)
	}
	if err := o.Ensure(context.Background(), AutomationControl); err != nil {
		t.Errorf("granted automation: got %v", err)
	}
}

func TestOpenSystemSettingsDoesNotWait(t *testing.T) {
	var got []string
	o := fastOrchestrator(NewFake(), WithLauncher(func(argv []string) error {
		got = argv
		return nil
	}))
	if err := o.OpenSystemSettings(Microphone); err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[1] != "microphone" {
		t.Errorf("launched %v", got)
	}
}

func TestCapabilityNames(t *testing.T) {
	for _, c := range Capabilities() {
		parsed, err := ParseCapability(c.String())
		if err != nil {
			t.Fatalf("%v: %v", c, err)
		}
		if parsed != c {
			t.Errorf("round trip %v -> %v", c, parsed)
		}
	}
}
