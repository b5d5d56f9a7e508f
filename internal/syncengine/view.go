package syncengine

import (
	"context"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	apptdomain "github.com/BruksfildServices01/clinic-sync/internal/domain/appointment"
	"github.com/BruksfildServices01/clinic-sync/internal/httperr"
	"github.com/BruksfildServices01/clinic-sync/internal/models"
	"github.com/BruksfildServices01/clinic-sync/internal/timezone"
)

type Filter string

const (
	FilterAll       Filter = ""
	FilterUpcoming  Filter = "upcoming"
	FilterPrevious  Filter = "previous"
	FilterCancelled Filter = "cancelled"
)

func ParseFilter(s string) (Filter, bool) {
	switch f := Filter(strings.ToLower(strings.TrimSpace(s))); f {
	case FilterAll, FilterUpcoming, FilterPrevious, FilterCancelled:
		return f, true
	case "all":
		return FilterAll, true
	}
	return "", false
}

// Partition keeps the store order (date desc, time desc) except for
// upcoming, which lists the nearest slot first.
func Partition(apps []models.Appointment, f Filter, now time.Time) []models.Appointment {
	if f == FilterAll {
		return apps
	}

	out := make([]models.Appointment, 0, len(apps))
	for _, ap := range apps {
		st, _ := apptdomain.ParseStatus(ap.Status)
		cancelled := st == apptdomain.StatusCancelled || st == apptdomain.StatusRejected

		upcoming := false
		if !cancelled && !st.Terminal() {
			slot, err := timezone.ParseSlot(ap.Date, ap.Time, now.Location())
			upcoming = err == nil && !slot.Before(now)
		}

		switch f {
		case FilterCancelled:
			if cancelled {
				out = append(out, ap)
			}
		case FilterUpcoming:
			if upcoming {
				out = append(out, ap)
			}
		case FilterPrevious:
			if !cancelled && !upcoming {
				out = append(out, ap)
			}
		}
	}

	if f == FilterUpcoming {
		sort.SliceStable(out, func(i, j int) bool {
			if out[i].Date != out[j].Date {
				return out[i].Date < out[j].Date
			}
			return out[i].Time < out[j].Time
		})
	}
	return out
}

// View is what a UI read returns. Stale means the records are the last
// known good copy and may be outdated.
type View struct {
	Owner        models.Owner         `json:"owner"`
	Appointments []models.Appointment `json:"appointments"`
	Stale        bool                 `json:"stale"`
	Degraded     bool                 `json:"degraded"`
	AuthRequired bool                 `json:"authRequired"`
}

// GetAppointments serves from the local store when it is fresh and runs a
// pass otherwise. It never waits for a pass already in flight; it returns
// the cached records marked stale instead.
func (e *Engine) GetAppointments(ctx context.Context, f Filter) (*View, error) {
	owner, err := e.currentOwner()
	if err != nil {
		return nil, err
	}
	view := &View{Owner: owner}

	fresh, err := e.fresh.IsFresh(ctx, owner)
	if err != nil {
		log.Printf("freshness check owner=%s: %v", owner, err)
	}

	switch {
	case fresh:
	case !e.session.IsLoggedIn():
		view.Stale = true
		view.AuthRequired = true
	default:
		release, ok := e.locks.tryAcquire(owner)
		if !ok {
			view.Stale = true
			break
		}
		_, err := e.runPass(ctx, owner)
		release()
		switch {
		case err == nil:
		case isCancellation(err), httperr.IsKind(err, httperr.KindStorageFailure):
			return nil, err
		default:
			view.Stale = true
			view.AuthRequired = isAuthRequired(err)
		}
	}

	apps, err := e.appts.QueryByOwner(ctx, owner)
	if err != nil {
		return nil, err
	}
	view.Appointments = Partition(apps, f, e.clock())
	view.Degraded = e.health.degraded(owner)
	return view, nil
}

func (e *Engine) GetAppointment(ctx context.Context, id int64) (*models.Appointment, error) {
	owner, err := e.currentOwner()
	if err != nil {
		return nil, err
	}
	ap, err := e.appts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if ap == nil || !ap.BelongsTo(owner) {
		return nil, httperr.ErrBusiness(httperr.CodeNotFound)
	}
	return ap, nil
}

func (e *Engine) GetPrescription(ctx context.Context, appointmentID int64) (*models.Prescription, error) {
	owner, err := e.currentOwner()
	if err != nil {
		return nil, err
	}
	p, err := e.rx.GetByAppointment(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if p == nil || !p.BelongsTo(owner) {
		return nil, httperr.ErrBusiness(httperr.CodeNotFound)
	}
	return p, nil
}

// --------------------------------------------------
// Observers
// --------------------------------------------------

// Watch emits the owner's records now and after every local change. Slow
// readers only see the latest snapshot. The channel closes with ctx.
func (e *Engine) Watch(ctx context.Context, owner models.Owner) <-chan []models.Appointment {
	ch := e.hub.subscribe(owner)

	if apps, err := e.appts.QueryByOwner(ctx, owner); err == nil {
		offer(ch, apps)
	}

	go func() {
		<-ctx.Done()
		e.hub.unsubscribe(owner, ch)
	}()
	return ch
}

func (e *Engine) notify(ctx context.Context, owner models.Owner) {
	if !e.hub.has(owner) {
		return
	}
	apps, err := e.appts.QueryByOwner(ctx, owner)
	if err != nil {
		log.Printf("notify owner=%s: %v", owner, err)
		return
	}
	e.hub.publish(owner, apps)
}

type hub struct {
	mu   sync.Mutex
	subs map[models.Owner]map[chan []models.Appointment]struct{}
}

func newHub() *hub {
	return &hub{subs: map[models.Owner]map[chan []models.Appointment]struct{}{}}
}

func (h *hub) subscribe(owner models.Owner) chan []models.Appointment {
	ch := make(chan []models.Appointment, 1)
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[owner] == nil {
		h.subs[owner] = map[chan []models.Appointment]struct{}{}
	}
	h.subs[owner][ch] = struct{}{}
	return ch
}

func (h *hub) unsubscribe(owner models.Owner, ch chan []models.Appointment) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[owner][ch]; !ok {
		return
	}
	delete(h.subs[owner], ch)
	if len(h.subs[owner]) == 0 {
		delete(h.subs, owner)
	}
	close(ch)
}

func (h *hub) has(owner models.Owner) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[owner]) > 0
}

func (h *hub) publish(owner models.Owner, apps []models.Appointment) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[owner] {
		offer(ch, apps)
	}
}

// offer replaces an unread snapshot with the newer one.
func offer(ch chan []models.Appointment, apps []models.Appointment) {
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- apps:
	default:
	}
}
