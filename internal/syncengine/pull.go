package syncengine

import (
	"context"
	"log"

	"github.com/BruksfildServices01/clinic-sync/internal/audit"
	apptdomain "github.com/BruksfildServices01/clinic-sync/internal/domain/appointment"
	"github.com/BruksfildServices01/clinic-sync/internal/httperr"
	"github.com/BruksfildServices01/clinic-sync/internal/models"
)

type resolution int

const (
	resUnchanged resolution = iota
	resInserted
	resUpdated
	// resKept: the local record is unsynced and the remote one is not newer.
	resKept
	// resOverridden: an unsynced local record lost to a strictly newer remote one.
	resOverridden
)

func (r resolution) changed() bool {
	return r == resInserted || r == resUpdated || r == resOverridden
}

func (e *Engine) pull(ctx context.Context, owner models.Owner, res *PassResult) error {
	remote, err := e.remote.FetchAppointments(ctx, owner)
	if err != nil {
		if httperr.Retryable(err) {
			res.Offline = true
		}
		if httperr.IsKind(err, httperr.KindUnauthorized) {
			return authRequired(err)
		}
		return err
	}

	seen := make(map[int64]bool, len(remote))
	changed := make(map[int64]bool)
	kept := make([]models.Appointment, 0, len(remote))
	for i := range remote {
		r := &remote[i]
		if !r.BelongsTo(owner) {
			log.Printf("pull owner=%s: skipping appointment %d of another owner", owner, r.ID)
			continue
		}
		seen[r.ID] = true
		kept = append(kept, *r)

		outcome, err := e.resolveAppointment(ctx, owner, r)
		if err != nil {
			return err
		}
		switch outcome {
		case resInserted, resUpdated:
			res.Pulled++
		case resOverridden:
			res.Pulled++
			res.Conflicts++
		case resKept:
			res.Kept++
		}
		if outcome.changed() {
			changed[r.ID] = true
			res.Changed = true
		}
	}

	if err := e.sweepAppointments(ctx, owner, seen, res); err != nil {
		return err
	}
	return e.pullPrescriptions(ctx, owner, kept, changed, res)
}

// resolveAppointment applies one remote record under the pull rules:
// absent rows are inserted, synced rows take the remote copy, unsynced rows
// are left alone unless the remote copy is strictly newer. A remote status
// not reachable from the local one along legal edges is not applied.
func (e *Engine) resolveAppointment(ctx context.Context, owner models.Owner, r *models.Appointment) (resolution, error) {
	now := e.clock()
	outcome := resUnchanged
	denied := ""

	_, _, err := e.appts.Mutate(ctx, r.ID, func(cur *models.Appointment) (*models.Appointment, error) {
		if cur == nil {
			next := *r
			if next.LastUpdated.IsZero() {
				next.LastUpdated = now
			}
			apptdomain.MarkClean(&next)
			outcome = resInserted
			return &next, nil
		}

		base := cur.Status
		if !cur.IsSynced {
			if !r.LastUpdated.After(cur.LastUpdated) {
				outcome = resKept
				return nil, nil
			}
			base = cur.SyncedStatus
		}

		next := *r
		if !reachable(base, r.Status) {
			denied = r.Status
			next.Status = base
		}
		if cur.IsSynced && cur.SameContent(&next) {
			return nil, nil
		}

		if next.LastUpdated.IsZero() {
			next.LastUpdated = now
		}
		apptdomain.MarkClean(&next)
		if cur.IsSynced {
			outcome = resUpdated
		} else {
			outcome = resOverridden
		}
		return &next, nil
	})
	if err != nil {
		return resUnchanged, err
	}

	if denied != "" {
		e.record(owner, audit.ActionTransitionDenied, "appointment", r.ID, map[string]string{"remote": denied})
	}
	if outcome == resOverridden {
		e.record(owner, audit.ActionServerWins, "appointment", r.ID, map[string]string{"cause": "newer remote"})
	}
	return outcome, nil
}

func reachable(from, to string) bool {
	f, ok1 := apptdomain.ParseStatus(from)
	t, ok2 := apptdomain.ParseStatus(to)
	if !ok1 || !ok2 {
		// unknown local status: let the remote repair it
		return ok2
	}
	return apptdomain.Reachable(f, t)
}

// sweepAppointments deletes synced rows the remote listing no longer has.
// Unsynced rows stay until their push is resolved.
func (e *Engine) sweepAppointments(ctx context.Context, owner models.Owner, seen map[int64]bool, res *PassResult) error {
	local, err := e.appts.QueryByOwner(ctx, owner)
	if err != nil {
		return err
	}
	for _, ap := range local {
		if seen[ap.ID] || !ap.IsSynced {
			continue
		}
		if err := e.appts.Delete(ctx, ap.ID); err != nil {
			return err
		}
		res.Tombstoned++
		res.Changed = true
		e.record(owner, audit.ActionTombstone, "appointment", ap.ID, map[string]string{"cause": "absent from pull"})
	}
	return nil
}

// --------------------------------------------------
// Prescriptions
// --------------------------------------------------

func (e *Engine) pullPrescriptions(ctx context.Context, owner models.Owner, remote []models.Appointment, changed map[int64]bool, res *PassResult) error {
	for _, ap := range remote {
		local, err := e.rx.GetByAppointment(ctx, ap.ID)
		if err != nil {
			return err
		}

		if !ap.HasPrescription {
			if local != nil && local.IsSynced {
				if err := e.rx.Delete(ctx, local.ID); err != nil {
					return err
				}
				res.Tombstoned++
				res.Changed = true
				e.record(owner, audit.ActionTombstone, "prescription", local.ID, map[string]int64{"appointment": ap.ID})
			}
			continue
		}

		if local != nil && (!local.IsSynced || !changed[ap.ID]) {
			continue
		}

		p, err := e.remote.FetchPrescription(ctx, ap.ID)
		switch {
		case err == nil:
		case httperr.IsKind(err, httperr.KindNotFound):
			continue
		case httperr.Retryable(err):
			res.Offline = true
			return err
		case httperr.IsKind(err, httperr.KindUnauthorized):
			return authRequired(err)
		default:
			log.Printf("pull owner=%s: prescription of appointment %d: %v", owner, ap.ID, err)
			continue
		}

		fillPrescription(p, ap.ID, ap.PatientID, ap.DoctorID, e.clock())
		outcome, err := e.resolvePrescription(ctx, p)
		if err != nil {
			return err
		}
		if outcome.changed() {
			res.Pulled++
			res.Changed = true
		}
	}
	return nil
}

func (e *Engine) resolvePrescription(ctx context.Context, p *models.Prescription) (resolution, error) {
	outcome := resUnchanged
	_, _, err := e.rx.MutateByID(ctx, p.ID, func(cur *models.Prescription) (*models.Prescription, error) {
		if cur == nil {
			outcome = resInserted
			return p, nil
		}
		if !cur.IsSynced {
			if !p.LastUpdated.After(cur.LastUpdated) {
				outcome = resKept
				return nil, nil
			}
			outcome = resOverridden
			return p, nil
		}
		if cur.SameContent(p) {
			return nil, nil
		}
		outcome = resUpdated
		return p, nil
	})
	return outcome, err
}

// --------------------------------------------------
// Incoming stream events
// --------------------------------------------------

// ApplyIncoming applies one pushed appointment like a single-record pull.
// It waits for an in-flight pass of the same owner.
func (e *Engine) ApplyIncoming(ctx context.Context, owner models.Owner, r *models.Appointment) (bool, error) {
	if !r.BelongsTo(owner) {
		return false, nil
	}
	release, err := e.locks.acquire(ctx, owner)
	if err != nil {
		return false, err
	}
	defer release()

	outcome, err := e.resolveAppointment(ctx, owner, r)
	if err != nil {
		return false, err
	}
	if !outcome.changed() {
		return false, nil
	}
	e.record(owner, audit.ActionIncoming, "appointment", r.ID, map[string]string{"status": r.Status})

	if r.HasPrescription && e.session.IsLoggedIn() {
		res := &PassResult{}
		if err := e.pullPrescriptions(ctx, owner, []models.Appointment{*r}, map[int64]bool{r.ID: true}, res); err != nil {
			log.Printf("incoming appointment %d: prescription not fetched: %v", r.ID, err)
		}
	}
	e.notify(ctx, owner)
	return true, nil
}

// ApplyRemoteDeletion drops a synced record the remote reported deleted.
func (e *Engine) ApplyRemoteDeletion(ctx context.Context, owner models.Owner, id int64) (bool, error) {
	release, err := e.locks.acquire(ctx, owner)
	if err != nil {
		return false, err
	}
	defer release()

	cur, err := e.appts.GetByID(ctx, id)
	if err != nil || cur == nil || !cur.BelongsTo(owner) || !cur.IsSynced {
		return false, err
	}
	if err := e.appts.Delete(ctx, id); err != nil {
		return false, err
	}
	e.record(owner, audit.ActionTombstone, "appointment", id, map[string]string{"cause": "remote event"})
	e.notify(ctx, owner)
	return true, nil
}

