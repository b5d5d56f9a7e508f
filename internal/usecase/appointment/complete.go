package appointment

import (
	"context"

	"github.com/BruksfildServices01/clinic-sync/internal/httperr"
	"github.com/BruksfildServices01/clinic-sync/internal/syncengine"
)

type CompleteAppointment struct {
	engine Engine
}

func NewCompleteAppointment(engine Engine) *CompleteAppointment {
	return &CompleteAppointment{engine: engine}
}

func (uc *CompleteAppointment) Execute(
	ctx context.Context,
	appointmentID int64,
) (syncengine.AppointmentOutcome, error) {

	if appointmentID <= 0 {
		return syncengine.AppointmentOutcome{}, httperr.ErrBusiness(httperr.CodeInvalidRequest)
	}

	return uc.engine.RequestComplete(ctx, appointmentID)
}
