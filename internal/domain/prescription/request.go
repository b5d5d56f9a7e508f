package prescription

import (
	"strings"

	"github.com/BruksfildServices01/clinic-sync/internal/httperr"
	"github.com/BruksfildServices01/clinic-sync/internal/models"
	"github.com/BruksfildServices01/clinic-sync/internal/timezone"
)

const maxMedications = 30

// CreateRequest is what a doctor submits for an appointment.
type CreateRequest struct {
	AppointmentID int64               `json:"appointment" binding:"required"`
	Medications   []models.Medication `json:"medications" binding:"required"`
	IssuedDate    string              `json:"issued_date"`
}

func (r *CreateRequest) Validate() error {
	if r.AppointmentID <= 0 {
		return httperr.ErrBusiness(httperr.CodeInvalidRequest)
	}
	if len(r.Medications) == 0 || len(r.Medications) > maxMedications {
		return httperr.ErrBusiness(httperr.CodeInvalidRequest)
	}
	for _, m := range r.Medications {
		if strings.TrimSpace(m.Name) == "" ||
			strings.TrimSpace(m.Dosage) == "" ||
			strings.TrimSpace(m.Frequency) == "" {
			return httperr.ErrBusiness(httperr.CodeInvalidRequest)
		}
	}
	if r.IssuedDate != "" && !timezone.ValidDate(r.IssuedDate) {
		return httperr.ErrBusiness(httperr.CodeInvalidRequest)
	}
	return nil
}
