package permission

import "context"

// Prober queries and prompts the operating system for a single capability.
type Prober interface {
	// Status reports the current grant state without prompting.
	Status(ctx context.Context, c Capability) (State, error)
	// Prompt triggers the OS grant prompt. It may return before the user answers.
	Prompt(ctx context.Context, c Capability) error
	// SettingsCommand returns the argv that opens the settings pane for c.
	SettingsCommand(c Capability) []string
}

// Watcher is implemented by probers that can report grant changes as events.
// When present it replaces polling during Request.
type Watcher interface {
	Watch(ctx context.Context, c Capability) (<-chan State, error)
}

// Rechecker is implemented by probers whose denials are remembered
// observations rather than a record the OS keeps. Request prompts again for
// such a denial, since the user may have granted access in settings since.
// Prompt must then drop the recorded denial so the settle poll does not
// read it back.
type Rechecker interface {
	RecheckDenied(c Capability) bool
}
