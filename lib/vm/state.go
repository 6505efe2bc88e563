package vm

// State is the lifecycle state of a Vm handle. The builder itself is a
// separate type, so pre-boot configuration is separated from post-boot
// operations at compile time; post-boot operations guard on this tag.
type State string

const (
	// StateRunning means the guest is executing.
	StateRunning State = "running"
	// StatePaused means guest execution is suspended.
	StatePaused State = "paused"
	// StateSnapshotting means a snapshot call is in flight; the Vm
	// returns to its prior state when the call finishes.
	StateSnapshotting State = "snapshotting"
	// StateStopped is terminal: the guest was shut down.
	StateStopped State = "stopped"
)

// String returns the string representation of the state.
func (s State) String() string {
	return string(s)
}

// IsTerminal returns true if no further transitions are possible.
func (s State) IsTerminal() bool {
	return s == StateStopped
}
