package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/BruksfildServices01/clinic-sync/internal/models"
)

// --------------------------------------------------
// Auth
// --------------------------------------------------

func (c *Client) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	const op = "login"
	var out authDTO
	err := c.do(ctx, call{op: op, method: http.MethodPost, path: "/auth/login",
		in: loginRequest{Email: email, Password: password}, out: &out})
	if err != nil {
		return nil, emptyIsMalformed(op, err)
	}
	res, err := out.toResult(true)
	if err != nil {
		return nil, malformed(op, err)
	}
	return res, nil
}

func (c *Client) Refresh(ctx context.Context, refreshToken string) (*AuthResult, error) {
	const op = "refresh"
	var out authDTO
	err := c.do(ctx, call{op: op, method: http.MethodPost, path: "/auth/refresh",
		in: refreshRequest{RefreshToken: refreshToken}, out: &out})
	if err != nil {
		return nil, emptyIsMalformed(op, err)
	}
	res, err := out.toResult(false)
	if err != nil {
		return nil, malformed(op, err)
	}
	return res, nil
}

// --------------------------------------------------
// Appointments
// --------------------------------------------------

func (c *Client) FetchAppointmentsForPatient(ctx context.Context, patientID int64) ([]models.Appointment, error) {
	return c.fetchAppointments(ctx, "fetch patient appointments", fmt.Sprintf("/patients/%d/appointments", patientID))
}

func (c *Client) FetchAppointmentsForDoctor(ctx context.Context, doctorID int64) ([]models.Appointment, error) {
	return c.fetchAppointments(ctx, "fetch doctor appointments", fmt.Sprintf("/doctors/%d/appointments", doctorID))
}

// FetchAppointments picks the listing endpoint for the owner's role.
func (c *Client) FetchAppointments(ctx context.Context, owner models.Owner) ([]models.Appointment, error) {
	if owner.Role == models.RoleDoctor {
		return c.FetchAppointmentsForDoctor(ctx, owner.ID)
	}
	return c.FetchAppointmentsForPatient(ctx, owner.ID)
}

func (c *Client) fetchAppointments(ctx context.Context, op, path string) ([]models.Appointment, error) {
	var out []appointmentDTO
	// only an explicit [] means no appointments; a bodiless 2xx would
	// sweep every synced row on pull
	err := c.do(ctx, call{op: op, method: http.MethodGet, path: path, out: &out, auth: true})
	if errors.Is(err, errEmptyBody) {
		return nil, malformed(op, err)
	}
	if err != nil {
		return nil, err
	}

	apps := make([]models.Appointment, 0, len(out))
	for i := range out {
		ap, err := out[i].toModel()
		if err != nil {
			return nil, malformed(op, err)
		}
		apps = append(apps, *ap)
	}
	return apps, nil
}

func (c *Client) FetchAppointment(ctx context.Context, id int64) (*models.Appointment, error) {
	return c.appointmentCall(ctx, "fetch appointment", http.MethodGet, fmt.Sprintf("/appointments/%d", id), nil)
}

func (c *Client) ConfirmAppointment(ctx context.Context, id int64) (*models.Appointment, error) {
	return c.appointmentCall(ctx, "confirm appointment", http.MethodPatch, fmt.Sprintf("/appointments/%d/confirm", id), nil)
}

func (c *Client) RejectAppointment(ctx context.Context, id int64, reason string) (*models.Appointment, error) {
	return c.appointmentCall(ctx, "reject appointment", http.MethodPatch, fmt.Sprintf("/appointments/%d/reject", id), rejectRequest{Reason: reason})
}

func (c *Client) CancelAppointment(ctx context.Context, id int64) (*models.Appointment, error) {
	return c.appointmentCall(ctx, "cancel appointment", http.MethodPatch, fmt.Sprintf("/appointments/%d/cancel", id), nil)
}

func (c *Client) CompleteAppointment(ctx context.Context, id int64) (*models.Appointment, error) {
	return c.appointmentCall(ctx, "complete appointment", http.MethodPatch, fmt.Sprintf("/appointments/%d/complete", id), nil)
}

// appointmentCall returns (nil, nil) when a write succeeds without echoing
// the record; callers then keep their local copy.
func (c *Client) appointmentCall(ctx context.Context, op, method, path string, in any) (*models.Appointment, error) {
	var out appointmentDTO
	err := c.do(ctx, call{op: op, method: method, path: path, in: in, out: &out, auth: true})
	if errors.Is(err, errEmptyBody) {
		if method == http.MethodGet {
			return nil, malformed(op, err)
		}
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	ap, err := out.toModel()
	if err != nil {
		return nil, malformed(op, err)
	}
	return ap, nil
}

// --------------------------------------------------
// Prescriptions
// --------------------------------------------------

// PrescriptionInput is the body of a prescription creation.
type PrescriptionInput struct {
	AppointmentID int64
	Medications   []models.Medication
	IssuedDate    string
}

func (c *Client) CreatePrescription(ctx context.Context, in PrescriptionInput) (*models.Prescription, error) {
	const op = "create prescription"
	var out prescriptionDTO
	err := c.do(ctx, call{op: op, method: http.MethodPost, path: "/prescriptions",
		in: createPrescriptionRequest{
			AppointmentID: in.AppointmentID,
			Medications:   in.Medications,
			IssuedDate:    in.IssuedDate,
		}, out: &out, auth: true})
	if err != nil {
		return nil, emptyIsMalformed(op, err)
	}
	p, err := out.toModel()
	if err != nil {
		return nil, malformed(op, err)
	}
	return p, nil
}

// FetchPrescription returns the prescription attached to an appointment.
func (c *Client) FetchPrescription(ctx context.Context, appointmentID int64) (*models.Prescription, error) {
	const op = "fetch prescription"
	var out prescriptionDTO
	err := c.do(ctx, call{op: op, method: http.MethodGet, path: fmt.Sprintf("/appointments/%d/prescription", appointmentID), out: &out, auth: true})
	if err != nil {
		return nil, emptyIsMalformed(op, err)
	}
	if out.AppointmentID == 0 {
		out.AppointmentID = appointmentID
	}
	p, err := out.toModel()
	if err != nil {
		return nil, malformed(op, err)
	}
	return p, nil
}

func emptyIsMalformed(op string, err error) error {
	if errors.Is(err, errEmptyBody) {
		return malformed(op, err)
	}
	return err
}
