package domain

// Status is the lifecycle state of a model.
type Status string

const (
	StatusScheduled Status = "SCHEDULED"
	StatusTraining  Status = "TRAINING"
	StatusReady     Status = "READY"
	StatusError     Status = "ERROR"
)

// Statuses lists every status in lifecycle order.
var Statuses = []Status{StatusScheduled, StatusTraining, StatusReady, StatusError}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	for _, known := range Statuses {
		if s == known {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition may leave s.
func (s Status) Terminal() bool {
	return s == StatusReady || s == StatusError
}

// CanTransition reports whether a model in status s may move to next.
//
// SCHEDULED may also fail directly when its dispatch event could not be
// delivered, so nothing would ever pick it up.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusScheduled:
		return next == StatusTraining || next == StatusError
	case StatusTraining:
		return next == StatusReady || next == StatusError
	default:
		return false
	}
}

// Predecessors returns the statuses from which s can be reached.
func (s Status) Predecessors() []Status {
	var from []Status
	for _, prev := range Statuses {
		if prev.CanTransition(s) {
			from = append(from, prev)
		}
	}
	return from
}

// Label is the human-readable name of s.
func (s Status) Label() string {
	switch s {
	case StatusScheduled:
		return "Scheduled"
	case StatusTraining:
		return "Training"
	case StatusReady:
		return "Ready"
	case StatusError:
		return "Error"
	default:
		return string(s)
	}
}

func (s Status) String() string {
	return string(s)
}
