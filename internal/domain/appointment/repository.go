package appointment

import (
	"context"

	"github.com/BruksfildServices01/clinic-sync/internal/models"
)

// MutateFunc receives the current row (nil when absent) and returns the row
// to persist, or nil to leave storage untouched. It runs inside the store
// transaction and must not call back into the store.
type MutateFunc func(current *models.Appointment) (*models.Appointment, error)

// Repository is the local appointment table. Lookups return (nil, nil) for
// missing rows; I/O errors are httperr StorageFailure.
type Repository interface {
	Upsert(ctx context.Context, ap *models.Appointment) error

	GetByID(ctx context.Context, id int64) (*models.Appointment, error)

	// QueryByOwner orders by date desc, time desc.
	QueryByOwner(ctx context.Context, owner models.Owner) ([]models.Appointment, error)

	// QueryUnsynced scopes to owner; a zero owner returns every unsynced row.
	QueryUnsynced(ctx context.Context, owner models.Owner) ([]models.Appointment, error)

	MarkSynced(ctx context.Context, id int64) error

	Delete(ctx context.Context, id int64) error

	// Mutate is an atomic read-modify-write of one row, serialized per id.
	Mutate(ctx context.Context, id int64, fn MutateFunc) (*models.Appointment, bool, error)
}
