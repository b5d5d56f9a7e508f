package dto

import (
	"github.com/BruksfildServices01/clinic-sync/internal/models"
	"github.com/BruksfildServices01/clinic-sync/internal/syncengine"
)

// AppointmentListDTO is a cached read. Stale asks the UI to show a
// "may be outdated" hint.
type AppointmentListDTO struct {
	Data         []models.Appointment `json:"data"`
	Total        int                  `json:"total"`
	Stale        bool                 `json:"stale"`
	Degraded     bool                 `json:"degraded"`
	AuthRequired bool                 `json:"authRequired"`
}

func FromView(v *syncengine.View) AppointmentListDTO {
	data := v.Appointments
	if data == nil {
		data = []models.Appointment{}
	}
	return AppointmentListDTO{
		Data:         data,
		Total:        len(data),
		Stale:        v.Stale,
		Degraded:     v.Degraded,
		AuthRequired: v.AuthRequired,
	}
}
