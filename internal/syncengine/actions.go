package syncengine

import (
	"context"
	"log"
	"strings"

	"github.com/BruksfildServices01/clinic-sync/internal/audit"
	apptdomain "github.com/BruksfildServices01/clinic-sync/internal/domain/appointment"
	rxdomain "github.com/BruksfildServices01/clinic-sync/internal/domain/prescription"
	"github.com/BruksfildServices01/clinic-sync/internal/httperr"
	"github.com/BruksfildServices01/clinic-sync/internal/models"
	"github.com/BruksfildServices01/clinic-sync/internal/timezone"
)

// Outcome details.
const (
	DetailOffline        = "offline"
	DetailAuthRequired   = "auth_required"
	DetailServerRejected = "server_rejected"
	DetailDeleted        = "deleted_remotely"
)

func (e *Engine) RequestCancel(ctx context.Context, id int64) (AppointmentOutcome, error) {
	return e.request(ctx, id, apptdomain.ActionCancel, "")
}

func (e *Engine) RequestConfirm(ctx context.Context, id int64) (AppointmentOutcome, error) {
	return e.request(ctx, id, apptdomain.ActionConfirm, "")
}

func (e *Engine) RequestReject(ctx context.Context, id int64, reason string) (AppointmentOutcome, error) {
	return e.request(ctx, id, apptdomain.ActionReject, strings.TrimSpace(reason))
}

func (e *Engine) RequestComplete(ctx context.Context, id int64) (AppointmentOutcome, error) {
	return e.request(ctx, id, apptdomain.ActionComplete, "")
}

func allowed(role models.Role, action apptdomain.Action) bool {
	return action == apptdomain.ActionCancel || role == models.RoleDoctor
}

// request stores the change as unsynced first, so it survives a crash or a
// failed write, then tries the remote write once.
func (e *Engine) request(ctx context.Context, id int64, action apptdomain.Action, reason string) (AppointmentOutcome, error) {
	owner, err := e.currentOwner()
	if err != nil {
		return AppointmentOutcome{}, err
	}
	if !allowed(owner.Role, action) {
		return AppointmentOutcome{}, httperr.ErrBusiness(httperr.CodeForbiddenForRole)
	}

	release, err := e.locks.acquire(ctx, owner)
	if err != nil {
		return AppointmentOutcome{}, err
	}
	defer release()

	now := e.clock()
	ap, _, err := e.appts.Mutate(ctx, id, func(cur *models.Appointment) (*models.Appointment, error) {
		if cur == nil || !cur.BelongsTo(owner) {
			return nil, httperr.ErrBusiness(httperr.CodeNotFound)
		}
		if err := apptdomain.ApplySpeculative(cur, action, reason, now); err != nil {
			return nil, err
		}
		return cur, nil
	})
	if err != nil {
		if httperr.IsBusiness(err, httperr.CodeInvalidTransition) {
			log.Printf("owner=%s: %s of appointment %d refused: %v", owner, action, id, err)
			e.record(owner, audit.ActionTransitionDenied, "appointment", id, map[string]string{"action": string(action)})
		}
		return AppointmentOutcome{}, err
	}

	bg := context.WithoutCancel(ctx)
	e.notify(bg, owner)

	if !e.session.IsLoggedIn() {
		return AppointmentOutcome{Kind: Queued, Record: ap, Detail: DetailAuthRequired}, nil
	}

	status, rec, err := e.pushAppointment(ctx, owner, ap)
	if status != pushDeferred {
		e.notify(bg, owner)
	}
	return e.appointmentOutcome(status, rec, err)
}

func (e *Engine) appointmentOutcome(status pushStatus, rec *models.Appointment, err error) (AppointmentOutcome, error) {
	switch {
	case err == nil:
	case isAuthRequired(err):
		e.session.Invalidate()
		kind := Queued
		if status == pushServerWon {
			kind = Rejected
		}
		return AppointmentOutcome{Kind: kind, Record: rec, Detail: DetailAuthRequired}, nil
	default:
		return AppointmentOutcome{}, err
	}

	switch status {
	case pushApplied:
		return AppointmentOutcome{Kind: Applied, Record: rec}, nil
	case pushServerWon:
		return AppointmentOutcome{Kind: Rejected, Record: rec, Detail: DetailServerRejected}, nil
	case pushGone:
		return AppointmentOutcome{Kind: Rejected, Detail: DetailDeleted}, nil
	}
	return AppointmentOutcome{Kind: Queued, Record: rec, Detail: DetailOffline}, nil
}

// CreatePrescription records the prescription locally and sends it.
func (e *Engine) CreatePrescription(ctx context.Context, req rxdomain.CreateRequest) (PrescriptionOutcome, error) {
	owner, err := e.currentOwner()
	if err != nil {
		return PrescriptionOutcome{}, err
	}
	if owner.Role != models.RoleDoctor {
		return PrescriptionOutcome{}, httperr.ErrBusiness(httperr.CodeForbiddenForRole)
	}
	if err := req.Validate(); err != nil {
		return PrescriptionOutcome{}, err
	}

	release, err := e.locks.acquire(ctx, owner)
	if err != nil {
		return PrescriptionOutcome{}, err
	}
	defer release()

	ap, err := e.appts.GetByID(ctx, req.AppointmentID)
	if err != nil {
		return PrescriptionOutcome{}, err
	}
	if ap == nil || !ap.BelongsTo(owner) {
		return PrescriptionOutcome{}, httperr.ErrBusiness(httperr.CodeNotFound)
	}

	existing, err := e.rx.GetByAppointment(ctx, req.AppointmentID)
	if err != nil {
		return PrescriptionOutcome{}, err
	}
	if existing != nil && !existing.IsSynced {
		return PrescriptionOutcome{}, httperr.ErrBusiness(httperr.CodePendingChange)
	}

	issued := req.IssuedDate
	if issued == "" {
		issued = timezone.Now().Format(timezone.DateLayout)
	}
	p := &models.Prescription{
		AppointmentID: req.AppointmentID,
		Medications:   models.Medications(req.Medications),
		IssuedDate:    issued,
		PatientID:     ap.PatientID,
		DoctorID:      owner.ID,
		LastUpdated:   e.clock(),
		IsSynced:      false,
	}
	if err := e.rx.Upsert(ctx, p); err != nil {
		return PrescriptionOutcome{}, err
	}

	if !e.session.IsLoggedIn() {
		return PrescriptionOutcome{Kind: Queued, Record: p, Detail: DetailAuthRequired}, nil
	}

	status, rec, err := e.pushPrescription(ctx, owner, p)
	switch {
	case err == nil:
	case isAuthRequired(err):
		e.session.Invalidate()
		return PrescriptionOutcome{Kind: Queued, Record: p, Detail: DetailAuthRequired}, nil
	default:
		return PrescriptionOutcome{}, err
	}

	switch status {
	case pushApplied:
		e.notify(context.WithoutCancel(ctx), owner)
		return PrescriptionOutcome{Kind: Applied, Record: rec}, nil
	case pushServerWon, pushGone:
		return PrescriptionOutcome{Kind: Rejected, Record: rec, Detail: DetailServerRejected}, nil
	}
	return PrescriptionOutcome{Kind: Queued, Record: p, Detail: DetailOffline}, nil
}
