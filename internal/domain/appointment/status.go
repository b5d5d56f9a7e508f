package appointment

import (
	"strings"

	"github.com/BruksfildServices01/clinic-sync/internal/httperr"
)

// ===============================
// Appointment Status
// ===============================

type Status string

const (
	StatusPending   Status = "Pending"
	StatusConfirmed Status = "Confirmed"
	StatusRejected  Status = "Rejected"
	StatusCompleted Status = "Completed"
	StatusCancelled Status = "Cancelled"
)

var edges = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusRejected},
	StatusConfirmed: {StatusCompleted, StatusCancelled},
}

// ParseStatus accepts any casing used by the remote service.
func ParseStatus(s string) (Status, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pending":
		return StatusPending, true
	case "confirmed":
		return StatusConfirmed, true
	case "rejected":
		return StatusRejected, true
	case "completed":
		return StatusCompleted, true
	case "cancelled", "canceled":
		return StatusCancelled, true
	}
	return "", false
}

func (s Status) Terminal() bool {
	return s == StatusRejected || s == StatusCompleted || s == StatusCancelled
}

// ===============================
// Transitions
// ===============================

// CanTransition allows exactly one legal edge.
func CanTransition(from, to Status) error {
	for _, next := range edges[from] {
		if next == to {
			return nil
		}
	}
	return httperr.ErrBusiness(httperr.CodeInvalidTransition)
}

// Reachable reports whether to can be reached from from by zero or more
// legal edges. Pulls may skip intermediate states the client never saw,
// but never regress.
func Reachable(from, to Status) bool {
	if from == to {
		return true
	}
	for _, next := range edges[from] {
		if Reachable(next, to) {
			return true
		}
	}
	return false
}

func InitialStatus() Status {
	return StatusPending
}
