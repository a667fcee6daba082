package permission

import (
	"context"
	"fmt"
	"os/exec"
	"sync"
	"time"

	"murmur/log"
)

const (
	DefaultPollInterval  = 250 * time.Millisecond
	DefaultSettleTimeout = 5 * time.Second
)

type Orchestrator struct {
	prober        Prober
	pollInterval  time.Duration
	settleTimeout time.Duration

	// start launches a settings command without waiting for it.
	start func(argv []string) error

	mu       sync.Mutex
	requests map[Capability]*sync.Mutex
}

type Option func(*Orchestrator)

func WithPollInterval(d time.Duration) Option {
	return func(o *Orchestrator) { o.pollInterval = d }
}

func WithSettleTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.settleTimeout = d }
}

// WithLauncher replaces the process launcher used by OpenSystemSettings.
func WithLauncher(start func(argv []string) error) Option {
	return func(o *Orchestrator) { o.start = start }
}

func NewOrchestrator(p Prober, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		prober:        p,
		pollInterval:  DefaultPollInterval,
		settleTimeout: DefaultSettleTimeout,
		start:         startDetached,
		requests:      make(map[Capability]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Check reports the current state of c. It never prompts.
func (o *Orchestrator) Check(ctx context.Context, c Capability) (State, error) {
	if !c.Valid() {
		return Unknown, fmt.Errorf("%w: %d", ErrInvalidCapability, int(c))
	}
	st, err := o.prober.Status(ctx, c)
	if err != nil {
		return Unknown, fmt.Errorf("check %s: %w", c, err)
	}
	return st, nil
}

// Request returns the state of c, prompting at most once when the state is
// not yet decided. The returned state is always definitive: a prompt the
// user has not answered within the settle timeout counts as Denied for this
// call only.
func (o *Orchestrator) Request(ctx context.Context, c Capability) (State, error) {
	if !c.Valid() {
		return Unknown, fmt.Errorf("%w: %d", ErrInvalidCapability, int(c))
	}

	lock := o.requestLock(c)
	lock.Lock()
	defer lock.Unlock()

	st, err := o.prober.Status(ctx, c)
	if err != nil {
		return Unknown, fmt.Errorf("check %s: %w", c, err)
	}
	if st.Definitive() && !o.recheck(c, st) {
		log.Permission(c.String(), st.String(), false)
		return st, nil
	}

	settleCtx, cancel := context.WithTimeout(ctx, o.settleTimeout)
	defer cancel()

	var events <-chan State
	if w, ok := o.prober.(Watcher); ok {
		events, err = w.Watch(settleCtx, c)
		if err != nil {
			log.Warnf("permission watch %s: %v, falling back to polling", c, err)
			events = nil
		}
	}

	if err := o.prober.Prompt(settleCtx, c); err != nil {
		return Unknown, fmt.Errorf("prompt %s: %w", c, err)
	}

	st = o.settle(settleCtx, c, events)
	if !st.Definitive() {
		st = Denied
	}
	log.Permission(c.String(), st.String(), true)
	if err := ctx.Err(); err != nil {
		return st, err
	}
	return st, nil
}

// Ensure requests c and maps anything but Granted to ErrPermissionDenied.
func (o *Orchestrator) Ensure(ctx context.Context, c Capability) error {
	st, err := o.Request(ctx, c)
	if err != nil {
		return err
	}
	if st != Granted {
		return fmt.Errorf("%w: %s is %s", ErrPermissionDenied, c, st)
	}
	return nil
}

// OpenSystemSettings navigates to the OS settings pane for c and returns
// without waiting for the settings application.
func (o *Orchestrator) OpenSystemSettings(c Capability) error {
	if !c.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidCapability, int(c))
	}
	argv := o.prober.SettingsCommand(c)
	if len(argv) == 0 {
		return fmt.Errorf("no settings pane for %s on this platform", c)
	}
	if err := o.start(argv); err != nil {
		return fmt.Errorf("open settings for %s: %w", c, err)
	}
	return nil
}

// settle waits for a definitive state until ctx expires. events may be nil.
func (o *Orchestrator) settle(ctx context.Context, c Capability, events <-chan State) State {
	ticker := time.NewTicker(o.pollInterval)
	defer ticker.Stop()

	last := Unknown
	for {
		select {
		case <-ctx.Done():
			// one last look in case the grant landed right at the deadline
			if st, err := o.prober.Status(context.WithoutCancel(ctx), c); err == nil && st.Definitive() {
				return st
			}
			return last
		case st, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if st.Definitive() {
				return st
			}
		case <-ticker.C:
			if events != nil {
				continue
			}
			st, err := o.prober.Status(ctx, c)
			if err != nil {
				log.Warnf("permission poll %s: %v", c, err)
				continue
			}
			if st.Definitive() {
				return st
			}
			last = st
		}
	}
}

func (o *Orchestrator) recheck(c Capability, st State) bool {
	r, ok := o.prober.(Rechecker)
	return ok && st == Denied && r.RecheckDenied(c)
}

func (o *Orchestrator) requestLock(c Capability) *sync.Mutex {
	o.mu.Lock()
	defer o.mu.Unlock()
	l, ok := o.requests[c]
	if !ok {
		l = &sync.Mutex{}
		o.requests[c] = l
	}
	return l
}

func startDetached(argv []string) error {
	cmd := exec.Command(argv[0], argv[1:]...)
	if err := cmd.Start(); err != nil {
		return err
	}
	go cmd.Wait()
	return nil
}
