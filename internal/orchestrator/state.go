package orchestrator

// State is a step of a tracing session.
type State int

const (
	StateInit State = iota
	StateDaemonsStarting
	StateRunningShell
	StateStoppingDaemons
	StateCollecting
	StatePackaging
	StateDone
	StateFailed
)

var stateNames = [...]string{
	StateInit:            "INIT",
	StateDaemonsStarting: "DAEMONS_STARTING",
	StateRunningShell:    "RUNNING_SHELL",
	StateStoppingDaemons: "STOPPING_DAEMONS",
	StateCollecting:      "COLLECTING",
	StatePackaging:       "PACKAGING",
	StateDone:            "DONE",
	StateFailed:          "FAILED",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "UNKNOWN"
	}
	return stateNames[s]
}

// Terminal reports whether no further transition happens.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}
