package types

// State represents the controller lifecycle state.
//
// States follow a fixed progression during a run:
//
//	StateCreated → StateSettingUp → StateLooping → StateTearingDown → StateStopped
//
// StateSettingUp and StateTearingDown are skipped when the run suppresses setup or
// teardown. A setup failure moves the controller straight to StateStopped.
type State int

const (
	// StateCreated is the initial state before Run is called.
	StateCreated State = iota

	// StateSettingUp indicates the setup hook is executing.
	StateSettingUp

	// StateLooping indicates iterations are executing.
	StateLooping

	// StateTearingDown indicates the teardown hook is executing.
	StateTearingDown

	// StateStopped indicates Run has returned.
	StateStopped
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateCreated:
		return "Created"
	case StateSettingUp:
		return "SettingUp"
	case StateLooping:
		return "Looping"
	case StateTearingDown:
		return "TearingDown"
	case StateStopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}
