package appointment

import (
	"context"

	"github.com/BruksfildServices01/clinic-sync/internal/models"
	"github.com/BruksfildServices01/clinic-sync/internal/syncengine"
)

// Engine is the part of the sync engine the appointment use cases drive.
type Engine interface {
	GetAppointments(ctx context.Context, f syncengine.Filter) (*syncengine.View, error)
	GetAppointment(ctx context.Context, id int64) (*models.Appointment, error)

	RequestCancel(ctx context.Context, id int64) (syncengine.AppointmentOutcome, error)
	RequestConfirm(ctx context.Context, id int64) (syncengine.AppointmentOutcome, error)
	RequestReject(ctx context.Context, id int64, reason string) (syncengine.AppointmentOutcome, error)
	RequestComplete(ctx context.Context, id int64) (syncengine.AppointmentOutcome, error)
}

var _ Engine = (*syncengine.Engine)(nil)
