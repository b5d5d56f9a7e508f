package syncengine

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/BruksfildServices01/clinic-sync/internal/audit"
	"github.com/BruksfildServices01/clinic-sync/internal/httperr"
	"github.com/BruksfildServices01/clinic-sync/internal/models"
)

// PassResult summarizes one reconciliation pass.
type PassResult struct {
	Owner      models.Owner `json:"owner"`
	StartedAt  time.Time    `json:"startedAt"`
	FinishedAt time.Time    `json:"finishedAt"`

	Pushed     int `json:"pushed"`
	Deferred   int `json:"deferred"`
	Conflicts  int `json:"conflicts"`
	Pulled     int `json:"pulled"`
	Kept       int `json:"kept"`
	Tombstoned int `json:"tombstoned"`

	// Offline is set when a remote call found the service unreachable.
	Offline bool `json:"offline"`
	Changed bool `json:"changed"`
}

func isAuthRequired(err error) bool {
	return errors.Is(err, ErrAuthRequired)
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// Sync reconciles the signed-in owner.
func (e *Engine) Sync(ctx context.Context) (*PassResult, error) {
	owner, err := e.currentOwner()
	if err != nil {
		return nil, err
	}
	return e.Reconcile(ctx, owner)
}

// Reconcile runs one push-then-pull pass for owner. Passes for the same
// owner never overlap; a second caller waits for the first to finish.
func (e *Engine) Reconcile(ctx context.Context, owner models.Owner) (*PassResult, error) {
	if cur, ok := e.session.Owner(); !ok || cur != owner {
		return nil, httperr.ErrBusiness(httperr.CodeForbiddenForRole)
	}
	if !e.session.IsLoggedIn() {
		return nil, authRequired(httperr.ErrUnauthorized)
	}

	release, err := e.locks.acquire(ctx, owner)
	if err != nil {
		return nil, err
	}
	defer release()

	return e.runPass(ctx, owner)
}

// runPass must be called with the owner lock held.
func (e *Engine) runPass(ctx context.Context, owner models.Owner) (*PassResult, error) {
	res := &PassResult{Owner: owner, StartedAt: e.clock()}

	err := e.pushAppointments(ctx, owner, res)
	if err == nil {
		err = e.pushPrescriptions(ctx, owner, res)
	}
	if err == nil {
		err = e.pull(ctx, owner, res)
	}
	res.FinishedAt = e.clock()

	// journal and health bookkeeping must not depend on the caller
	bg := context.WithoutCancel(ctx)

	switch {
	case err == nil:
		if ferr := e.fresh.MarkFresh(bg, owner); ferr != nil {
			log.Printf("sync pass owner=%s: freshness mark: %v", owner, ferr)
		}
		e.prefetchImages(bg, owner)
	case isCancellation(err):
		log.Printf("sync pass owner=%s cancelled", owner)
	default:
		if isAuthRequired(err) {
			e.session.Invalidate()
		}
		e.record(owner, audit.ActionPassFailed, "pass", 0, map[string]string{"error": err.Error()})
		log.Printf("sync pass owner=%s failed: %v", owner, err)
	}

	if !isCancellation(err) {
		e.health.finish(owner, res.FinishedAt, res, err)
	}
	if res.Changed {
		e.notify(bg, owner)
	}
	if err == nil {
		log.Printf("sync pass owner=%s pushed=%d deferred=%d conflicts=%d pulled=%d kept=%d tombstoned=%d",
			owner, res.Pushed, res.Deferred, res.Conflicts, res.Pulled, res.Kept, res.Tombstoned)
	}
	return res, err
}

func (e *Engine) prefetchImages(ctx context.Context, owner models.Owner) {
	if e.prefetch == nil {
		return
	}
	apps, err := e.appts.QueryByOwner(ctx, owner)
	if err != nil {
		return
	}
	seen := map[string]bool{}
	urls := make([]string, 0, len(apps))
	for _, ap := range apps {
		if ap.DoctorImage == "" || seen[ap.DoctorImage] {
			continue
		}
		seen[ap.DoctorImage] = true
		urls = append(urls, ap.DoctorImage)
	}
	if len(urls) > 0 {
		e.prefetch.Prefetch(urls)
	}
}

// Status reports sync health for the signed-in owner.
func (e *Engine) Status(ctx context.Context) (Status, error) {
	owner, err := e.currentOwner()
	if err != nil {
		return Status{}, err
	}

	st := e.health.snapshot(owner)
	if !e.session.IsLoggedIn() {
		st.AuthRequired = true
	}
	if release, ok := e.locks.tryAcquire(owner); ok {
		release()
	} else {
		st.Running = true
	}

	apps, err := e.appts.QueryUnsynced(ctx, owner)
	if err != nil {
		return st, err
	}
	rx, err := e.rx.QueryUnsynced(ctx, owner)
	if err != nil {
		return st, err
	}
	st.PendingAppointments = len(apps)
	st.PendingPrescriptions = len(rx)
	return st, nil
}
