package attempt

// State is the client-observed attempt lifecycle.
//
//	Unstarted -> Acquiring -> Active -> Submitting -> Submitted
//	Acquiring -> Failed
//	Submitting -> Active (failed submit, retry allowed)
type State int

const (
	StateUnstarted State = iota
	StateAcquiring
	StateActive
	StateSubmitting
	StateSubmitted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUnstarted:
		return "unstarted"
	case StateAcquiring:
		return "acquiring"
	case StateActive:
		return "active"
	case StateSubmitting:
		return "submitting"
	case StateSubmitted:
		return "submitted"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Trigger says why a submission was requested.
type Trigger int

const (
	TriggerManual Trigger = iota
	TriggerTimeout
)

func (t Trigger) String() string {
	if t == TriggerTimeout {
		return "timeout"
	}
	return "manual"
}
