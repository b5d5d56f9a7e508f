package models

import "time"

// Appointment is the local, canonical subset of the remote appointment.
// Display fields are snapshotted at the last sync for offline rendering.
type Appointment struct {
	ID int64 `gorm:"primaryKey;autoIncrement:false" json:"id"`

	Date string `gorm:"size:10;index" json:"date"`
	Time string `gorm:"size:8" json:"time"`

	Status string  `gorm:"size:20;not null" json:"status"`
	QRCode *string `gorm:"column:qr_code" json:"qrCode"`

	DoctorID         int64  `gorm:"index" json:"doctorId"`
	DoctorName       string `gorm:"size:100" json:"doctorName"`
	DoctorSpeciality string `gorm:"size:100" json:"doctorSpeciality"`
	DoctorImage      string `gorm:"size:255" json:"doctorImage"`
	PatientID        int64  `gorm:"index" json:"patientId"`
	PatientName      string `gorm:"size:100" json:"patientName"`

	HasPrescription bool `json:"hasPrescription"`

	LastUpdated time.Time `json:"lastUpdated"`
	IsSynced    bool      `gorm:"index" json:"isSynced"`

	// Local bookkeeping, never sent to the remote service.
	SyncedStatus   string `gorm:"size:20" json:"-"`
	PendingAction  string `gorm:"size:20" json:"-"`
	PendingReason  string `gorm:"size:255" json:"-"`
	FailedAttempts int    `json:"-"`
}

func (Appointment) TableName() string {
	return "appointments"
}

// SameContent compares the server-owned fields only.
func (a *Appointment) SameContent(b *Appointment) bool {
	if a.ID != b.ID ||
		a.Date != b.Date ||
		a.Time != b.Time ||
		a.Status != b.Status ||
		a.DoctorID != b.DoctorID ||
		a.DoctorName != b.DoctorName ||
		a.DoctorSpeciality != b.DoctorSpeciality ||
		a.DoctorImage != b.DoctorImage ||
		a.PatientID != b.PatientID ||
		a.PatientName != b.PatientName ||
		a.HasPrescription != b.HasPrescription {
		return false
	}
	if (a.QRCode == nil) != (b.QRCode == nil) {
		return false
	}
	return a.QRCode == nil || *a.QRCode == *b.QRCode
}

// BelongsTo reports whether owner is the patient or the doctor of the appointment.
func (a *Appointment) BelongsTo(owner Owner) bool {
	switch owner.Role {
	case RolePatient:
		return a.PatientID == owner.ID
	case RoleDoctor:
		return a.DoctorID == owner.ID
	}
	return false
}
