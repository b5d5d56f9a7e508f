package appointment

import (
	"context"

	"github.com/BruksfildServices01/clinic-sync/internal/httperr"
	"github.com/BruksfildServices01/clinic-sync/internal/models"
	"github.com/BruksfildServices01/clinic-sync/internal/syncengine"
)

type ListAppointments struct {
	engine Engine
}

func NewListAppointments(engine Engine) *ListAppointments {
	return &ListAppointments{engine: engine}
}

// Execute accepts "", "all", "upcoming", "previous" or "cancelled".
func (uc *ListAppointments) Execute(
	ctx context.Context,
	filter string,
) (*syncengine.View, error) {

	f, ok := syncengine.ParseFilter(filter)
	if !ok {
		return nil, httperr.ErrBusiness(httperr.CodeInvalidRequest)
	}
	return uc.engine.GetAppointments(ctx, f)
}

type GetAppointment struct {
	engine Engine
}

func NewGetAppointment(engine Engine) *GetAppointment {
	return &GetAppointment{engine: engine}
}

func (uc *GetAppointment) Execute(
	ctx context.Context,
	appointmentID int64,
) (*models.Appointment, error) {

	if appointmentID <= 0 {
		return nil, httperr.ErrBusiness(httperr.CodeNotFound)
	}
	return uc.engine.GetAppointment(ctx, appointmentID)
}
