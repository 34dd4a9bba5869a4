package orders

type Status string

const (
	StatusPending Status = "pending"
	StatusPaid    Status = "paid"
	StatusFailed  Status = "failed"
)

// Orders only move forward: pending -> paid or pending -> failed.
// Both end states are terminal and absorb any further payment events.
var validNext = map[Status]map[Status]bool{
	StatusPending: {StatusPaid: true, StatusFailed: true},
	StatusPaid:    {},
	StatusFailed:  {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

func (s Status) Terminal() bool {
	return s == StatusPaid || s == StatusFailed
}
