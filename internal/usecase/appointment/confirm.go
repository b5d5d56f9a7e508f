package appointment

import (
	"context"
	"log"

	"github.com/BruksfildServices01/clinic-sync/internal/httperr"
	"github.com/BruksfildServices01/clinic-sync/internal/syncengine"
)

type ConfirmAppointment struct {
	engine Engine
}

func NewConfirmAppointment(engine Engine) *ConfirmAppointment {
	return &ConfirmAppointment{engine: engine}
}

func (uc *ConfirmAppointment) Execute(
	ctx context.Context,
	appointmentID int64,
) (syncengine.AppointmentOutcome, error) {

	if appointmentID <= 0 {
		return syncengine.AppointmentOutcome{}, httperr.ErrBusiness(httperr.CodeInvalidRequest)
	}

	out, err := uc.engine.RequestConfirm(ctx, appointmentID)
	if err != nil {
		return out, err
	}

	if out.Kind == syncengine.Rejected {
		log.Printf("appointment %d: confirm refused remotely (%s)", appointmentID, out.Detail)
	}
	return out, nil
}
