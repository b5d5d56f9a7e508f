package gateway

import (
	"encoding/json"
	"fmt"
	"time"

	domain "github.com/BruksfildServices01/clinic-sync/internal/domain/appointment"
	"github.com/BruksfildServices01/clinic-sync/internal/models"
)

// appointmentDTO is the remote representation of an appointment.
type appointmentDTO struct {
	ID               int64      `json:"id"`
	Date             string     `json:"date"`
	Time             string     `json:"time"`
	Status           string     `json:"status"`
	QRCode           *string    `json:"qrCode"`
	DoctorID         int64      `json:"doctorId"`
	DoctorName       string     `json:"doctorName"`
	DoctorSpeciality string     `json:"doctorSpeciality"`
	DoctorImage      string     `json:"doctorImage"`
	PatientID        int64      `json:"patientId"`
	PatientName      string     `json:"patientName"`
	HasPrescription  bool       `json:"hasPrescription"`
	LastUpdated      *time.Time `json:"lastUpdated"`
}

// toModel rejects records the local store could not key. LastUpdated stays
// zero when the remote omits it, so it never looks newer than a local edit.
func (d *appointmentDTO) toModel() (*models.Appointment, error) {
	if d.ID <= 0 {
		return nil, fmt.Errorf("appointment without id")
	}
	status, ok := domain.ParseStatus(d.Status)
	if !ok {
		return nil, fmt.Errorf("appointment %d: unknown status %q", d.ID, d.Status)
	}

	ap := &models.Appointment{
		ID:               d.ID,
		Date:             d.Date,
		Time:             d.Time,
		Status:           string(status),
		QRCode:           d.QRCode,
		DoctorID:         d.DoctorID,
		DoctorName:       d.DoctorName,
		DoctorSpeciality: d.DoctorSpeciality,
		DoctorImage:      d.DoctorImage,
		PatientID:        d.PatientID,
		PatientName:      d.PatientName,
		HasPrescription:  d.HasPrescription,
		IsSynced:         true,
		SyncedStatus:     string(status),
	}
	if d.LastUpdated != nil && !d.LastUpdated.IsZero() {
		ap.LastUpdated = d.LastUpdated.UTC()
	}
	return ap, nil
}

// DecodeAppointment parses one appointment in the remote wire format, as
// pushed by the notification stream.
func DecodeAppointment(raw []byte) (*models.Appointment, error) {
	var d appointmentDTO
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, err
	}
	return d.toModel()
}

type prescriptionDTO struct {
	ID            int64               `json:"id"`
	AppointmentID int64               `json:"appointment"`
	Medications   []models.Medication `json:"medications"`
	IssuedDate    string              `json:"issued_date"`
	PatientID     int64               `json:"patientId,omitempty"`
	DoctorID      int64               `json:"doctorId,omitempty"`
	LastUpdated   *time.Time          `json:"lastUpdated,omitempty"`
}

func (d *prescriptionDTO) toModel() (*models.Prescription, error) {
	if d.ID <= 0 {
		return nil, fmt.Errorf("prescription without id")
	}
	meds := models.Medications(d.Medications)
	if meds == nil {
		meds = models.Medications{}
	}
	p := &models.Prescription{
		ID:            d.ID,
		AppointmentID: d.AppointmentID,
		Medications:   meds,
		IssuedDate:    d.IssuedDate,
		PatientID:     d.PatientID,
		DoctorID:      d.DoctorID,
		IsSynced:      true,
	}
	if d.LastUpdated != nil && !d.LastUpdated.IsZero() {
		p.LastUpdated = d.LastUpdated.UTC()
	}
	return p, nil
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type authDTO struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	Role         string `json:"role"`
	UserID       int64  `json:"userId"`
	Email        string `json:"email"`
}

// AuthResult is a successful login or refresh. Refresh responses may omit
// identity fields; callers keep the ones they already hold.
type AuthResult struct {
	AccessToken  string
	RefreshToken string
	Role         models.Role
	UserID       int64
	Email        string
}

func (d *authDTO) toResult(requireIdentity bool) (*AuthResult, error) {
	if d.AccessToken == "" {
		return nil, fmt.Errorf("missing access token")
	}
	res := &AuthResult{
		AccessToken:  d.AccessToken,
		RefreshToken: d.RefreshToken,
		UserID:       d.UserID,
		Email:        d.Email,
	}
	if d.Role != "" {
		role, err := models.ParseRole(d.Role)
		if err != nil {
			return nil, err
		}
		res.Role = role
	}
	if requireIdentity && (res.Role == "" || res.UserID <= 0) {
		return nil, fmt.Errorf("login response without role or user id")
	}
	return res, nil
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

type createPrescriptionRequest struct {
	AppointmentID int64               `json:"appointment"`
	Medications   []models.Medication `json:"medications"`
	IssuedDate    string              `json:"issued_date,omitempty"`
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
