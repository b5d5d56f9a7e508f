package syncengine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/BruksfildServices01/clinic-sync/internal/audit"
	apptdomain "github.com/BruksfildServices01/clinic-sync/internal/domain/appointment"
	rxdomain "github.com/BruksfildServices01/clinic-sync/internal/domain/prescription"
	"github.com/BruksfildServices01/clinic-sync/internal/freshness"
	"github.com/BruksfildServices01/clinic-sync/internal/gateway"
	"github.com/BruksfildServices01/clinic-sync/internal/httperr"
	"github.com/BruksfildServices01/clinic-sync/internal/models"
)

// Remote is the part of the gateway the engine drives.
type Remote interface {
	FetchAppointments(ctx context.Context, owner models.Owner) ([]models.Appointment, error)
	FetchAppointment(ctx context.Context, id int64) (*models.Appointment, error)

	ConfirmAppointment(ctx context.Context, id int64) (*models.Appointment, error)
	RejectAppointment(ctx context.Context, id int64, reason string) (*models.Appointment, error)
	CancelAppointment(ctx context.Context, id int64) (*models.Appointment, error)
	CompleteAppointment(ctx context.Context, id int64) (*models.Appointment, error)

	CreatePrescription(ctx context.Context, in gateway.PrescriptionInput) (*models.Prescription, error)
	FetchPrescription(ctx context.Context, appointmentID int64) (*models.Prescription, error)
}

type Session interface {
	Owner() (models.Owner, bool)
	IsLoggedIn() bool
	Invalidate()
}

// ImagePrefetcher is told about doctor images after a pull.
type ImagePrefetcher interface {
	Prefetch(urls []string)
}

// ErrAuthRequired wraps the Unauthorized failure that aborted a pass.
var ErrAuthRequired = errors.New("authentication required")

func authRequired(err error) error {
	return fmt.Errorf("%w: %w", ErrAuthRequired, err)
}

type Config struct {
	Appointments  apptdomain.Repository
	Prescriptions rxdomain.Repository
	Remote        Remote
	Session       Session

	Freshness  freshness.Tracker
	Journal    audit.Sink
	Prefetcher ImagePrefetcher

	// DegradedAfter is the number of consecutive failed passes before the
	// status reports degraded.
	DegradedAfter int

	Now func() time.Time
}

// Engine is the only component that flips IsSynced. Passes, UI writes and
// incoming events for one owner are serialized on the owner's lock.
type Engine struct {
	appts   apptdomain.Repository
	rx      rxdomain.Repository
	remote  Remote
	session Session

	fresh    freshness.Tracker
	journal  audit.Sink
	prefetch ImagePrefetcher

	locks  *ownerLocks
	hub    *hub
	health *healthBook

	now func() time.Time
}

func New(cfg Config) *Engine {
	if cfg.Freshness == nil {
		cfg.Freshness = freshness.NewMemoryTracker(2 * time.Minute)
	}
	if cfg.Journal == nil {
		cfg.Journal = audit.Discard{}
	}
	if cfg.DegradedAfter < 1 {
		cfg.DegradedAfter = 3
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Engine{
		appts:    cfg.Appointments,
		rx:       cfg.Prescriptions,
		remote:   cfg.Remote,
		session:  cfg.Session,
		fresh:    cfg.Freshness,
		journal:  cfg.Journal,
		prefetch: cfg.Prefetcher,
		locks:    newOwnerLocks(),
		hub:      newHub(),
		health:   newHealthBook(cfg.DegradedAfter),
		now:      cfg.Now,
	}
}

func (e *Engine) clock() time.Time {
	return e.now().UTC()
}

// currentOwner is the signed-in owner, also when tokens need renewal.
func (e *Engine) currentOwner() (models.Owner, error) {
	owner, ok := e.session.Owner()
	if !ok {
		return models.Owner{}, httperr.ErrBusiness(httperr.CodeNotLoggedIn)
	}
	return owner, nil
}

func (e *Engine) record(owner models.Owner, action, entity string, id int64, meta any) {
	ev := audit.Event{OwnerKey: owner.String(), Action: action, Entity: entity, Metadata: meta}
	if id != 0 {
		ev.EntityID = &id
	}
	e.journal.Dispatch(ev)
}

// --------------------------------------------------
// Outcomes
// --------------------------------------------------

type OutcomeKind string

const (
	// Applied: the remote service acknowledged the change.
	Applied OutcomeKind = "applied"
	// Queued: kept locally as unsynced, retried on the next pass.
	Queued OutcomeKind = "queued"
	// Rejected: the remote refused it and its record replaced the local one.
	Rejected OutcomeKind = "rejected"
)

// Outcome is the tagged result of a UI write.
type Outcome[T any] struct {
	Kind   OutcomeKind `json:"outcome"`
	Record *T          `json:"record,omitempty"`
	// Detail explains Queued and Rejected outcomes.
	Detail string `json:"detail,omitempty"`
}

type AppointmentOutcome = Outcome[models.Appointment]
type PrescriptionOutcome = Outcome[models.Prescription]
