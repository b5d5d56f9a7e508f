package syncengine

import (
	"context"
	"errors"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/BruksfildServices01/clinic-sync/internal/audit"
	"github.com/BruksfildServices01/clinic-sync/internal/db"
	apptdomain "github.com/BruksfildServices01/clinic-sync/internal/domain/appointment"
	"github.com/BruksfildServices01/clinic-sync/internal/freshness"
	"github.com/BruksfildServices01/clinic-sync/internal/gateway"
	"github.com/BruksfildServices01/clinic-sync/internal/httperr"
	"github.com/BruksfildServices01/clinic-sync/internal/infra/repository"
	"github.com/BruksfildServices01/clinic-sync/internal/models"
)

var (
	patient = models.Owner{Role: models.RolePatient, ID: 2}
	doctor  = models.Owner{Role: models.RoleDoctor, ID: 9}

	baseTime = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
)

func errOffline() error {
	return httperr.New(httperr.KindNetworkUnreachable, "fake", errors.New("connection refused"))
}

// fakeRemote is an in-memory remote service enforcing the same transitions.
type fakeRemote struct {
	mu     sync.Mutex
	now    time.Time
	apps   map[int64]models.Appointment
	rx     map[int64]models.Prescription
	nextRx int64

	offline   bool
	actionErr error
	listErr   error
	rxErr     error

	beforeWrite func(ctx context.Context)
	beforeList  func()

	writes    int
	lists     int
	rxLookups int
	events    []string
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		now:    baseTime,
		apps:   map[int64]models.Appointment{},
		rx:     map[int64]models.Prescription{},
		nextRx: 100,
	}
}

func (f *fakeRemote) set(fn func(f *fakeRemote)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeRemote) app(id int64) models.Appointment {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.apps[id]
}

func (f *fakeRemote) eventLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.events...)
}

func (f *fakeRemote) FetchAppointments(ctx context.Context, owner models.Owner) ([]models.Appointment, error) {
	f.set(func(f *fakeRemote) { f.events = append(f.events, "list-begin") })
	if f.beforeList != nil {
		f.beforeList()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, "list-end")
	f.lists++
	if err := ctx.Err(); err != nil {
		return nil, httperr.New(httperr.KindNetworkUnreachable, "fake", err)
	}
	if f.offline {
		return nil, errOffline()
	}
	if f.listErr != nil {
		return nil, f.listErr
	}

	out := []models.Appointment{}
	for _, ap := range f.apps {
		if ap.BelongsTo(owner) {
			ap.IsSynced = true
			out = append(out, ap)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeRemote) FetchAppointment(ctx context.Context, id int64) (*models.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.offline {
		return nil, errOffline()
	}
	ap, ok := f.apps[id]
	if !ok {
		return nil, httperr.New(httperr.KindNotFound, "fake fetch", nil)
	}
	ap.IsSynced = true
	return &ap, nil
}

func (f *fakeRemote) transition(ctx context.Context, id int64, target apptdomain.Status) (*models.Appointment, error) {
	if f.beforeWrite != nil {
		f.beforeWrite(ctx)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes++
	if f.offline {
		return nil, errOffline()
	}
	if f.actionErr != nil {
		return nil, f.actionErr
	}
	ap, ok := f.apps[id]
	if !ok {
		return nil, httperr.New(httperr.KindNotFound, "fake write", nil)
	}
	cur, _ := apptdomain.ParseStatus(ap.Status)
	if err := apptdomain.CanTransition(cur, target); err != nil {
		return nil, httperr.Server("fake write", 409, errors.New("appointment already handled"))
	}
	ap.Status = string(target)
	ap.LastUpdated = f.now
	if target == apptdomain.StatusConfirmed {
		qr := "QR-CONFIRMED"
		ap.QRCode = &qr
	}
	f.apps[id] = ap
	ap.IsSynced = true
	return &ap, nil
}

func (f *fakeRemote) ConfirmAppointment(ctx context.Context, id int64) (*models.Appointment, error) {
	return f.transition(ctx, id, apptdomain.StatusConfirmed)
}

func (f *fakeRemote) RejectAppointment(ctx context.Context, id int64, reason string) (*models.Appointment, error) {
	return f.transition(ctx, id, apptdomain.StatusRejected)
}

func (f *fakeRemote) CancelAppointment(ctx context.Context, id int64) (*models.Appointment, error) {
	return f.transition(ctx, id, apptdomain.StatusCancelled)
}

func (f *fakeRemote) CompleteAppointment(ctx context.Context, id int64) (*models.Appointment, error) {
	return f.transition(ctx, id, apptdomain.StatusCompleted)
}

func (f *fakeRemote) CreatePrescription(ctx context.Context, in gateway.PrescriptionInput) (*models.Prescription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes++
	if f.offline {
		return nil, errOffline()
	}
	if f.rxErr != nil {
		return nil, f.rxErr
	}
	ap, ok := f.apps[in.AppointmentID]
	if !ok {
		return nil, httperr.Server("fake create", 422, errors.New("unknown appointment"))
	}
	if _, dup := f.rx[in.AppointmentID]; dup {
		return nil, httperr.Server("fake create", 409, errors.New("prescription exists"))
	}
	f.nextRx++
	p := models.Prescription{
		ID:            f.nextRx,
		AppointmentID: in.AppointmentID,
		Medications:   models.Medications(in.Medications),
		IssuedDate:    in.IssuedDate,
		PatientID:     ap.PatientID,
		DoctorID:      ap.DoctorID,
		LastUpdated:   f.now,
	}
	f.rx[in.AppointmentID] = p
	ap.HasPrescription = true
	f.apps[in.AppointmentID] = ap
	return &p, nil
}

func (f *fakeRemote) FetchPrescription(ctx context.Context, appointmentID int64) (*models.Prescription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rxLookups++
	if f.offline {
		return nil, errOffline()
	}
	p, ok := f.rx[appointmentID]
	if !ok {
		return nil, httperr.New(httperr.KindNotFound, "fake prescription", nil)
	}
	return &p, nil
}

type fakeSession struct {
	mu          sync.Mutex
	owner       models.Owner
	loggedIn    bool
	invalidated int
}

func (s *fakeSession) Owner() (models.Owner, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.owner, !s.owner.IsZero()
}

func (s *fakeSession) IsLoggedIn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loggedIn
}

func (s *fakeSession) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loggedIn = false
	s.invalidated++
}

type recordingSink struct {
	mu     sync.Mutex
	events []audit.Event
}

func (r *recordingSink) Dispatch(ev audit.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingSink) count(action string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Action == action {
			n++
		}
	}
	return n
}

type harness struct {
	engine  *Engine
	appts   *repository.AppointmentGormRepository
	rx      *repository.PrescriptionGormRepository
	remote  *fakeRemote
	session *fakeSession
	journal *recordingSink
	fresh   *freshness.MemoryTracker
}

func newHarness(t *testing.T, owner models.Owner) *harness {
	t.Helper()
	gdb, err := db.Open(filepath.Join(t.TempDir(), "cache.db"), false)
	if err != nil {
		t.Fatalf("open local store: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			sqlDB.Close()
		}
	})

	h := &harness{
		appts:   repository.NewAppointmentGormRepository(gdb),
		rx:      repository.NewPrescriptionGormRepository(gdb),
		remote:  newFakeRemote(),
		session: &fakeSession{owner: owner, loggedIn: true},
		journal: &recordingSink{},
		fresh:   freshness.NewMemoryTracker(time.Minute),
	}
	h.engine = New(Config{
		Appointments:  h.appts,
		Prescriptions: h.rx,
		Remote:        h.remote,
		Session:       h.session,
		Freshness:     h.fresh,
		Journal:       h.journal,
		DegradedAfter: 2,
		Now:           func() time.Time { return baseTime },
	})
	return h
}

// seed stores the same synced record remotely and locally.
func (h *harness) seed(t *testing.T, ap models.Appointment) {
	t.Helper()
	if ap.LastUpdated.IsZero() {
		ap.LastUpdated = baseTime.Add(-24 * time.Hour)
	}
	h.remote.set(func(f *fakeRemote) { f.apps[ap.ID] = ap })

	local := ap
	apptdomain.MarkClean(&local)
	if err := h.appts.Upsert(context.Background(), &local); err != nil {
		t.Fatalf("seed local %d: %v", ap.ID, err)
	}
}

func (h *harness) local(t *testing.T, id int64) *models.Appointment {
	t.Helper()
	ap, err := h.appts.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("GetByID %d: %v", id, err)
	}
	return ap
}

// failingAppointments breaks selected reads of the local store.
type failingAppointments struct {
	*repository.AppointmentGormRepository
	queryErr    error
	unsyncedErr error
}

func (f *failingAppointments) QueryByOwner(ctx context.Context, owner models.Owner) ([]models.Appointment, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return f.AppointmentGormRepository.QueryByOwner(ctx, owner)
}

func (f *failingAppointments) QueryUnsynced(ctx context.Context, owner models.Owner) ([]models.Appointment, error) {
	if f.unsyncedErr != nil {
		return nil, f.unsyncedErr
	}
	return f.AppointmentGormRepository.QueryUnsynced(ctx, owner)
}

// withAppointments rebuilds the engine over a different appointment store.
func (h *harness) withAppointments(repo apptdomain.Repository) *Engine {
	return New(Config{
		Appointments:  repo,
		Prescriptions: h.rx,
		Remote:        h.remote,
		Session:       h.session,
		Freshness:     h.fresh,
		Journal:       h.journal,
		DegradedAfter: 2,
		Now:           func() time.Time { return baseTime },
	})
}

func appointment(id int64, status apptdomain.Status) models.Appointment {
	return models.Appointment{
		ID:         id,
		Date:       "2026-06-10",
		Time:       "09:00:00",
		Status:     string(status),
		DoctorID:   doctor.ID,
		DoctorName: "Dr. Grey",
		PatientID:  patient.ID,
	}
}
