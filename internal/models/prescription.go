package models

import (
	"time"

	"gorm.io/datatypes"
)

type Medication struct {
	Name         string  `json:"name"`
	Dosage       string  `json:"dosage"`
	Frequency    string  `json:"frequency"`
	Instructions *string `json:"instructions,omitempty"`
}

// Medications is stored as a JSON column, order preserved.
type Medications = datatypes.JSONSlice[Medication]

// Prescription rows are keyed locally by LocalKey because ID stays 0 until
// the remote service assigns one.
type Prescription struct {
	LocalKey string `gorm:"primaryKey;size:36" json:"-"`
	ID       int64  `gorm:"index" json:"id"`

	AppointmentID int64       `gorm:"column:appointment;index" json:"appointment"`
	Medications   Medications `json:"medications"`
	IssuedDate    string      `gorm:"size:10" json:"issued_date"`

	PatientID int64 `gorm:"index" json:"-"`
	DoctorID  int64 `gorm:"index" json:"-"`

	LastUpdated    time.Time `json:"-"`
	IsSynced       bool      `gorm:"index" json:"isSynced"`
	FailedAttempts int       `json:"-"`
}

func (Prescription) TableName() string {
	return "prescriptions"
}

func (p *Prescription) SameContent(o *Prescription) bool {
	if p.ID != o.ID || p.AppointmentID != o.AppointmentID || p.IssuedDate != o.IssuedDate {
		return false
	}
	if len(p.Medications) != len(o.Medications) {
		return false
	}
	for i := range p.Medications {
		a, b := p.Medications[i], o.Medications[i]
		if a.Name != b.Name || a.Dosage != b.Dosage || a.Frequency != b.Frequency {
			return false
		}
		if (a.Instructions == nil) != (b.Instructions == nil) {
			return false
		}
		if a.Instructions != nil && *a.Instructions != *b.Instructions {
			return false
		}
	}
	return true
}

func (p *Prescription) BelongsTo(owner Owner) bool {
	switch owner.Role {
	case RolePatient:
		return p.PatientID == owner.ID
	case RoleDoctor:
		return p.DoctorID == owner.ID
	}
	return false
}
