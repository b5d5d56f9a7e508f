package prescription

import (
	"context"

	"github.com/BruksfildServices01/clinic-sync/internal/models"
)

type MutateFunc func(current *models.Prescription) (*models.Prescription, error)

// Repository is the local prescription table. Rows without a server id are
// addressed by LocalKey; GetByID uses the server id.
type Repository interface {
	// Upsert assigns a LocalKey when missing, reusing the row that already
	// carries the same non-zero server id.
	Upsert(ctx context.Context, p *models.Prescription) error

	GetByID(ctx context.Context, id int64) (*models.Prescription, error)
	GetByLocalKey(ctx context.Context, key string) (*models.Prescription, error)
	GetByAppointment(ctx context.Context, appointmentID int64) (*models.Prescription, error)

	QueryByOwner(ctx context.Context, owner models.Owner) ([]models.Prescription, error)
	QueryUnsynced(ctx context.Context, owner models.Owner) ([]models.Prescription, error)

	MarkSynced(ctx context.Context, localKey string) error

	// Delete removes by server id; DeleteLocal by LocalKey.
	Delete(ctx context.Context, id int64) error
	DeleteLocal(ctx context.Context, localKey string) error

	// MutateByID is an atomic read-modify-write keyed by server id.
	MutateByID(ctx context.Context, id int64, fn MutateFunc) (*models.Prescription, bool, error)
}
