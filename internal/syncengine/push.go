package syncengine

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/BruksfildServices01/clinic-sync/internal/audit"
	apptdomain "github.com/BruksfildServices01/clinic-sync/internal/domain/appointment"
	"github.com/BruksfildServices01/clinic-sync/internal/gateway"
	"github.com/BruksfildServices01/clinic-sync/internal/httperr"
	"github.com/BruksfildServices01/clinic-sync/internal/models"
)

type pushStatus int

const (
	pushApplied pushStatus = iota
	pushDeferred
	pushServerWon
	pushGone
)

var errNothingToSend = errors.New("unsynced record without a pending action")

// --------------------------------------------------
// Appointments
// --------------------------------------------------

func (e *Engine) pushAppointments(ctx context.Context, owner models.Owner, res *PassResult) error {
	rows, err := e.appts.QueryUnsynced(ctx, owner)
	if err != nil {
		return err
	}

	for i := range rows {
		if err := ctx.Err(); err != nil {
			return err
		}

		status, _, err := e.pushAppointment(ctx, owner, &rows[i])
		if err != nil {
			return err
		}

		switch status {
		case pushApplied:
			res.Pushed++
		case pushServerWon:
			res.Conflicts++
		case pushGone:
			res.Tombstoned++
		case pushDeferred:
			// remote unreachable: the rest of this type waits for the next pass
			res.Deferred += len(rows) - i
			res.Offline = true
			return nil
		}
		res.Changed = true
	}
	return nil
}

// pushAppointment sends the pending action of ap. The remote write itself is
// detached from ctx; when ctx ends while it is in flight, the local result is
// dropped and the next pull reconciles the record.
func (e *Engine) pushAppointment(ctx context.Context, owner models.Owner, ap *models.Appointment) (pushStatus, *models.Appointment, error) {
	var (
		got *models.Appointment
		err error
	)
	if ap.PendingAction == "" {
		err = errNothingToSend
	} else {
		got, err = e.sendAction(context.WithoutCancel(ctx), ap)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return pushDeferred, ap, ctxErr
	}

	switch {
	case err == nil:
		rec, err := e.settlePushed(ctx, ap, got)
		if err != nil {
			return pushDeferred, ap, err
		}
		e.record(owner, audit.ActionPushApplied, "appointment", ap.ID, map[string]string{"action": ap.PendingAction})
		return pushApplied, rec, nil

	case httperr.Retryable(err):
		e.countAttempt(ctx, ap.ID)
		e.record(owner, audit.ActionPushDeferred, "appointment", ap.ID, map[string]string{"action": ap.PendingAction, "error": err.Error()})
		return pushDeferred, ap, nil

	case httperr.IsKind(err, httperr.KindUnauthorized):
		return pushDeferred, ap, authRequired(err)

	case errors.Is(err, errNothingToSend), httperr.ServerWins(err):
		return e.appointmentServerWins(ctx, owner, ap, err)
	}
	return pushDeferred, ap, err
}

func (e *Engine) sendAction(ctx context.Context, ap *models.Appointment) (*models.Appointment, error) {
	switch apptdomain.Action(ap.PendingAction) {
	case apptdomain.ActionConfirm:
		return e.remote.ConfirmAppointment(ctx, ap.ID)
	case apptdomain.ActionReject:
		return e.remote.RejectAppointment(ctx, ap.ID, ap.PendingReason)
	case apptdomain.ActionCancel:
		return e.remote.CancelAppointment(ctx, ap.ID)
	case apptdomain.ActionComplete:
		return e.remote.CompleteAppointment(ctx, ap.ID)
	}
	return nil, errNothingToSend
}

func (e *Engine) settlePushed(ctx context.Context, sent, got *models.Appointment) (*models.Appointment, error) {
	now := e.clock()
	rec, _, err := e.appts.Mutate(ctx, sent.ID, func(cur *models.Appointment) (*models.Appointment, error) {
		if cur == nil || cur.PendingAction != sent.PendingAction {
			return nil, nil
		}
		next := cur
		if got != nil {
			next = mergeCanonical(cur, got, now)
		}
		apptdomain.MarkClean(next)
		return next, nil
	})
	return rec, err
}

// appointmentServerWins discards the speculative change and replaces it with
// the canonical remote record.
func (e *Engine) appointmentServerWins(ctx context.Context, owner models.Owner, ap *models.Appointment, cause error) (pushStatus, *models.Appointment, error) {
	if httperr.IsKind(cause, httperr.KindNotFound) {
		return e.tombstone(ctx, owner, ap.ID, cause)
	}

	canonical, err := e.remote.FetchAppointment(ctx, ap.ID)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return pushDeferred, ap, ctxErr
	}

	switch {
	case err == nil && canonical.BelongsTo(owner):
		now := e.clock()
		rec, _, err := e.appts.Mutate(ctx, ap.ID, func(cur *models.Appointment) (*models.Appointment, error) {
			if cur == nil {
				return nil, nil
			}
			next := mergeCanonical(cur, canonical, now)
			apptdomain.MarkClean(next)
			return next, nil
		})
		if err != nil {
			return pushDeferred, ap, err
		}
		e.record(owner, audit.ActionServerWins, "appointment", ap.ID, map[string]string{
			"action": ap.PendingAction, "cause": cause.Error(), "status": canonical.Status,
		})
		return pushServerWon, rec, nil

	case err == nil, httperr.IsKind(err, httperr.KindNotFound):
		return e.tombstone(ctx, owner, ap.ID, cause)
	}

	// canonical record unavailable: fall back to the last confirmed state
	// and let the next pull correct it
	rec, discardErr := e.discard(ctx, ap.ID)
	if discardErr != nil {
		return pushDeferred, ap, discardErr
	}
	e.record(owner, audit.ActionServerWins, "appointment", ap.ID, map[string]string{
		"action": ap.PendingAction, "cause": cause.Error(), "refetch": err.Error(),
	})
	if httperr.IsKind(err, httperr.KindUnauthorized) {
		return pushServerWon, rec, authRequired(err)
	}
	return pushServerWon, rec, nil
}

func (e *Engine) discard(ctx context.Context, id int64) (*models.Appointment, error) {
	now := e.clock()
	rec, _, err := e.appts.Mutate(ctx, id, func(cur *models.Appointment) (*models.Appointment, error) {
		if cur == nil {
			return nil, nil
		}
		apptdomain.DiscardSpeculative(cur, now)
		return cur, nil
	})
	return rec, err
}

func (e *Engine) tombstone(ctx context.Context, owner models.Owner, id int64, cause error) (pushStatus, *models.Appointment, error) {
	if err := e.appts.Delete(ctx, id); err != nil {
		return pushDeferred, nil, err
	}
	e.record(owner, audit.ActionTombstone, "appointment", id, map[string]string{"cause": cause.Error()})
	return pushGone, nil, nil
}

func (e *Engine) countAttempt(ctx context.Context, id int64) {
	_, _, err := e.appts.Mutate(ctx, id, func(cur *models.Appointment) (*models.Appointment, error) {
		if cur == nil || cur.IsSynced {
			return nil, nil
		}
		cur.FailedAttempts++
		return cur, nil
	})
	if err != nil {
		log.Printf("count push attempt for appointment %d: %v", id, err)
	}
}

// mergeCanonical takes the remote record, keeping local display snapshots
// the remote response left empty.
func mergeCanonical(cur, remote *models.Appointment, now time.Time) *models.Appointment {
	next := *remote
	if next.DoctorName == "" {
		next.DoctorName = cur.DoctorName
	}
	if next.DoctorSpeciality == "" {
		next.DoctorSpeciality = cur.DoctorSpeciality
	}
	if next.DoctorImage == "" {
		next.DoctorImage = cur.DoctorImage
	}
	if next.PatientName == "" {
		next.PatientName = cur.PatientName
	}
	if next.Date == "" {
		next.Date, next.Time = cur.Date, cur.Time
	}
	if next.PatientID == 0 {
		next.PatientID = cur.PatientID
	}
	if next.DoctorID == 0 {
		next.DoctorID = cur.DoctorID
	}
	if next.LastUpdated.IsZero() {
		next.LastUpdated = now
	}
	return &next
}

// --------------------------------------------------
// Prescriptions
// --------------------------------------------------

func (e *Engine) pushPrescriptions(ctx context.Context, owner models.Owner, res *PassResult) error {
	rows, err := e.rx.QueryUnsynced(ctx, owner)
	if err != nil {
		return err
	}

	for i := range rows {
		if err := ctx.Err(); err != nil {
			return err
		}

		status, _, err := e.pushPrescription(ctx, owner, &rows[i])
		if err != nil {
			return err
		}

		switch status {
		case pushApplied:
			res.Pushed++
		case pushServerWon, pushGone:
			res.Conflicts++
		case pushDeferred:
			res.Deferred += len(rows) - i
			res.Offline = true
			return nil
		}
		res.Changed = true
	}
	return nil
}

func (e *Engine) pushPrescription(ctx context.Context, owner models.Owner, p *models.Prescription) (pushStatus, *models.Prescription, error) {
	if p.ID != 0 {
		// already created remotely; only the local flag was left behind
		if err := e.rx.MarkSynced(ctx, p.LocalKey); err != nil {
			return pushDeferred, p, err
		}
		p.IsSynced = true
		return pushApplied, p, nil
	}

	got, err := e.remote.CreatePrescription(context.WithoutCancel(ctx), gateway.PrescriptionInput{
		AppointmentID: p.AppointmentID,
		Medications:   p.Medications,
		IssuedDate:    p.IssuedDate,
	})
	if ctxErr := ctx.Err(); ctxErr != nil {
		return pushDeferred, p, ctxErr
	}

	switch {
	case err == nil:
		got.LocalKey = p.LocalKey
		fillPrescription(got, p.AppointmentID, p.PatientID, p.DoctorID, e.clock())
		if err := e.rx.Upsert(ctx, got); err != nil {
			return pushDeferred, p, err
		}
		e.flagPrescription(ctx, got.AppointmentID)
		e.record(owner, audit.ActionPushApplied, "prescription", got.ID, map[string]int64{"appointment": got.AppointmentID})
		return pushApplied, got, nil

	case httperr.Retryable(err):
		e.record(owner, audit.ActionPushDeferred, "prescription", 0, map[string]any{"appointment": p.AppointmentID, "error": err.Error()})
		return pushDeferred, p, nil

	case httperr.IsKind(err, httperr.KindUnauthorized):
		return pushDeferred, p, authRequired(err)

	case httperr.ServerWins(err):
		return e.prescriptionServerWins(ctx, owner, p, err)
	}
	return pushDeferred, p, err
}

func (e *Engine) prescriptionServerWins(ctx context.Context, owner models.Owner, p *models.Prescription, cause error) (pushStatus, *models.Prescription, error) {
	if err := e.rx.DeleteLocal(ctx, p.LocalKey); err != nil {
		return pushDeferred, p, err
	}

	canonical, err := e.remote.FetchPrescription(ctx, p.AppointmentID)
	meta := map[string]any{"appointment": p.AppointmentID, "cause": cause.Error()}
	switch {
	case err == nil:
		fillPrescription(canonical, p.AppointmentID, p.PatientID, p.DoctorID, e.clock())
		if _, err := e.resolvePrescription(ctx, canonical); err != nil {
			return pushServerWon, nil, err
		}
		e.record(owner, audit.ActionServerWins, "prescription", canonical.ID, meta)
		return pushServerWon, canonical, nil
	case httperr.IsKind(err, httperr.KindUnauthorized):
		e.record(owner, audit.ActionServerWins, "prescription", 0, meta)
		return pushServerWon, nil, authRequired(err)
	}

	e.record(owner, audit.ActionServerWins, "prescription", 0, meta)
	return pushServerWon, nil, nil
}

// flagPrescription mirrors a created prescription on its appointment until
// the next pull brings the remote flag.
func (e *Engine) flagPrescription(ctx context.Context, appointmentID int64) {
	_, _, err := e.appts.Mutate(ctx, appointmentID, func(cur *models.Appointment) (*models.Appointment, error) {
		if cur == nil || cur.HasPrescription {
			return nil, nil
		}
		cur.HasPrescription = true
		return cur, nil
	})
	if err != nil {
		log.Printf("flag prescription on appointment %d: %v", appointmentID, err)
	}
}

func fillPrescription(p *models.Prescription, appointmentID, patientID, doctorID int64, now time.Time) {
	if p.AppointmentID == 0 {
		p.AppointmentID = appointmentID
	}
	if p.PatientID == 0 {
		p.PatientID = patientID
	}
	if p.DoctorID == 0 {
		p.DoctorID = doctorID
	}
	if p.LastUpdated.IsZero() {
		p.LastUpdated = now
	}
	p.IsSynced = true
	p.FailedAttempts = 0
}
