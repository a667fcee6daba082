package permission

import (
	"context"
	"sync"
	"time"
)

// Fake is an in-memory Prober for tests. A prompt moves a capability to its
// configured outcome after PromptDelay.
type Fake struct {
	PromptDelay time.Duration
	// Recheck makes Request prompt again for a denied capability.
	Recheck bool

	mu       sync.Mutex
	states   map[Capability]State
	outcomes map[Capability]State
	prompts  map[Capability]int
	watchers map[Capability][]chan State
}

func NewFake() *Fake {
	return &Fake{
		states:   make(map[Capability]State),
		outcomes: make(map[Capability]State),
		prompts:  make(map[Capability]int),
		watchers: make(map[Capability][]chan State),
	}
}

// Set forces the current state of c.
func (f *Fake) Set(c Capability, st State) {
	f.mu.Lock()
	f.states[c] = st
	subs := f.watchers[c]
	f.mu.Unlock()
	for _, ch := range subs {
		select {
		case ch <- st:
		default:
		}
	}
}

// OnPrompt sets the state c moves to when prompted. Unknown means the user
// never answers.
func (f *Fake) OnPrompt(c Capability, st State) {
	f.mu.Lock()
	f.outcomes[c] = st
	f.mu.Unlock()
}

func (f *Fake) Prompts(c Capability) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.prompts[c]
}

func (f *Fake) Status(_ context.Context, c Capability) (State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.states[c], nil
}

func (f *Fake) Prompt(_ context.Context, c Capability) error {
	f.mu.Lock()
	f.prompts[c]++
	if f.Recheck && f.states[c] == Denied {
		f.states[c] = Unknown
	}
	outcome := f.outcomes[c]
	delay := f.PromptDelay
	f.mu.Unlock()

	if outcome == Unknown {
		return nil
	}
	if delay <= 0 {
		f.Set(c, outcome)
		return nil
	}
	time.AfterFunc(delay, func() { f.Set(c, outcome) })
	return nil
}

func (f *Fake) RecheckDenied(Capability) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Recheck
}

func (f *Fake) SettingsCommand(c Capability) []string {
	return []string{"fake-settings", c.String()}
}

// FakeWatcher is a Fake that also reports changes as events.
type FakeWatcher struct {
	*Fake
}

func NewFakeWatcher() *FakeWatcher {
	return &FakeWatcher{Fake: NewFake()}
}

func (f *FakeWatcher) Watch(ctx context.Context, c Capability) (<-chan State, error) {
	ch := make(chan State, 4)
	f.mu.Lock()
	f.watchers[c] = append(f.watchers[c], ch)
	f.mu.Unlock()

	go func() {
		<-ctx.Done()
		f.mu.Lock()
		subs := f.watchers[c]
		for i, s := range subs {
			if s == ch {
				f.watchers[c] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		f.mu.Unlock()
	}()
	return ch, nil
}
