package appointment

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/BruksfildServices01/clinic-sync/internal/httperr"
	"github.com/BruksfildServices01/clinic-sync/internal/syncengine"
)

// maxReasonLen matches the pending_reason column.
const maxReasonLen = 255

type RejectAppointment struct {
	engine Engine
}

func NewRejectAppointment(engine Engine) *RejectAppointment {
	return &RejectAppointment{engine: engine}
}

func (uc *RejectAppointment) Execute(
	ctx context.Context,
	appointmentID int64,
	reason string,
) (syncengine.AppointmentOutcome, error) {

	reason = strings.TrimSpace(reason)
	if appointmentID <= 0 || utf8.RuneCountInString(reason) > maxReasonLen {
		return syncengine.AppointmentOutcome{}, httperr.ErrBusiness(httperr.CodeInvalidRequest)
	}

	return uc.engine.RequestReject(ctx, appointmentID, reason)
}
