package appointment

import (
	"context"
	"log"

	"github.com/BruksfildServices01/clinic-sync/internal/httperr"
	"github.com/BruksfildServices01/clinic-sync/internal/syncengine"
)

type CancelAppointment struct {
	engine Engine
}

func NewCancelAppointment(engine Engine) *CancelAppointment {
	return &CancelAppointment{engine: engine}
}

func (uc *CancelAppointment) Execute(
	ctx context.Context,
	appointmentID int64,
) (syncengine.AppointmentOutcome, error) {

	if appointmentID <= 0 {
		return syncengine.AppointmentOutcome{}, httperr.ErrBusiness(httperr.CodeInvalidRequest)
	}

	out, err := uc.engine.RequestCancel(ctx, appointmentID)
	if err != nil {
		return out, err
	}

	if out.Kind == syncengine.Queued {
		log.Printf("appointment %d: cancel queued (%s)", appointmentID, out.Detail)
	}
	return out, nil
}
