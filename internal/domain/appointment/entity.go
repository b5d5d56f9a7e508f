package appointment

import (
	"time"

	"github.com/BruksfildServices01/clinic-sync/internal/httperr"
	"github.com/BruksfildServices01/clinic-sync/internal/models"
)

// Action is the remote write an unsynced appointment is waiting for.
type Action string

const (
	ActionConfirm  Action = "confirm"
	ActionReject   Action = "reject"
	ActionCancel   Action = "cancel"
	ActionComplete Action = "complete"
)

func (a Action) Target() Status {
	switch a {
	case ActionConfirm:
		return StatusConfirmed
	case ActionReject:
		return StatusRejected
	case ActionCancel:
		return StatusCancelled
	case ActionComplete:
		return StatusCompleted
	}
	return ""
}

// ===============================
// Domain Actions
// ===============================

// ApplySpeculative moves ap along one legal edge and marks it unsynced.
// Only one unconfirmed change per appointment is allowed at a time.
// The last server-confirmed status is kept so the change can be discarded.
func ApplySpeculative(ap *models.Appointment, action Action, reason string, now time.Time) error {
	if !ap.IsSynced && ap.PendingAction != "" {
		return httperr.ErrBusiness(httperr.CodePendingChange)
	}
	current, ok := ParseStatus(ap.Status)
	if !ok {
		return errInvalidStatus(ap.Status)
	}
	target := action.Target()
	if err := CanTransition(current, target); err != nil {
		return err
	}

	ap.SyncedStatus = string(current)
	ap.Status = string(target)
	ap.PendingAction = string(action)
	ap.PendingReason = reason
	ap.IsSynced = false
	ap.LastUpdated = now
	return nil
}

// DiscardSpeculative restores the last server-confirmed status.
func DiscardSpeculative(ap *models.Appointment, now time.Time) {
	if ap.SyncedStatus != "" {
		ap.Status = ap.SyncedStatus
	}
	ap.PendingAction = ""
	ap.PendingReason = ""
	ap.IsSynced = true
	ap.FailedAttempts = 0
	ap.LastUpdated = now
}

// MarkClean records a server-acknowledged state.
func MarkClean(ap *models.Appointment) {
	ap.SyncedStatus = ap.Status
	ap.PendingAction = ""
	ap.PendingReason = ""
	ap.IsSynced = true
	ap.FailedAttempts = 0
}
