package supervisor

// State is the supervisor's position in the process lifecycle. Exactly one
// state holds at any instant; all transitions happen on the state-machine
// goroutine.
type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
	StateCrashed
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateCrashed:
		return "crashed"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state accepts a new Start transition.
// Both stopped and crashed are terminal-for-now.
func (s State) Terminal() bool { return s == StateStopped || s == StateCrashed }

func (s State) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}
