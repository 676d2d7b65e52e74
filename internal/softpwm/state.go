package softpwm

// RunState tracks a channel through its lifecycle. Valid transitions:
//
//	Created/Stopped -> Running           (Start)
//	Running -> StopRequested -> Stopped  (Stop)
//	any -> Closed                        (Close; stops the loop first)
//
// A closed channel is never reused.
type RunState int

const (
	StateCreated RunState = iota
	StateRunning
	StateStopRequested
	StateStopped
	StateClosed
)

func (s RunState) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	case StateStopRequested:
		return "stop-requested"
	case StateStopped:
		return "stopped"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
