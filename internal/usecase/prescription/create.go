package prescription

import (
	"context"
	"log"

	rxdomain "github.com/BruksfildServices01/clinic-sync/internal/domain/prescription"
	"github.com/BruksfildServices01/clinic-sync/internal/httperr"
	"github.com/BruksfildServices01/clinic-sync/internal/models"
	"github.com/BruksfildServices01/clinic-sync/internal/syncengine"
)

type Engine interface {
	CreatePrescription(ctx context.Context, req rxdomain.CreateRequest) (syncengine.PrescriptionOutcome, error)
	GetPrescription(ctx context.Context, appointmentID int64) (*models.Prescription, error)
}

var _ Engine = (*syncengine.Engine)(nil)

type CreatePrescription struct {
	engine Engine
}

func NewCreatePrescription(engine Engine) *CreatePrescription {
	return &CreatePrescription{engine: engine}
}

func (uc *CreatePrescription) Execute(
	ctx context.Context,
	req rxdomain.CreateRequest,
) (syncengine.PrescriptionOutcome, error) {

	if err := req.Validate(); err != nil {
		return syncengine.PrescriptionOutcome{}, err
	}

	out, err := uc.engine.CreatePrescription(ctx, req)
	if err != nil {
		return out, err
	}
	if out.Kind == syncengine.Queued {
		log.Printf("prescription for appointment %d queued (%s)", req.AppointmentID, out.Detail)
	}
	return out, nil
}

type GetPrescription struct {
	engine Engine
}

func NewGetPrescription(engine Engine) *GetPrescription {
	return &GetPrescription{engine: engine}
}

func (uc *GetPrescription) Execute(ctx context.Context, appointmentID int64) (*models.Prescription, error) {
	if appointmentID <= 0 {
		return nil, httperr.ErrBusiness(httperr.CodeNotFound)
	}
	return uc.engine.GetPrescription(ctx, appointmentID)
}
