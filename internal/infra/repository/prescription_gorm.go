package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	domain "github.com/BruksfildServices01/clinic-sync/internal/domain/prescription"
	"github.com/BruksfildServices01/clinic-sync/internal/models"
)

type PrescriptionGormRepository struct {
	db    *gorm.DB
	locks *keyLock[string]
}

func NewPrescriptionGormRepository(db *gorm.DB) *PrescriptionGormRepository {
	return &PrescriptionGormRepository{db: db, locks: newKeyLock[string]()}
}

func serverKey(id int64) string {
	return fmt.Sprintf("id:%d", id)
}

func localKey(key string) string {
	return "local:" + key
}

// lockFor picks the server id when one exists so pulls and pushes of the
// same prescription contend on one key.
func (r *PrescriptionGormRepository) lockFor(p *models.Prescription) func() {
	if p.ID != 0 {
		return r.locks.Lock(serverKey(p.ID))
	}
	return r.locks.Lock(localKey(p.LocalKey))
}

// --------------------------------------------------
// Writes
// --------------------------------------------------

func (r *PrescriptionGormRepository) Upsert(
	ctx context.Context,
	p *models.Prescription,
) error {
	if p.LocalKey == "" && p.ID == 0 {
		p.LocalKey = uuid.NewString()
	}

	unlock := r.lockFor(p)
	defer unlock()

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return upsertPrescription(tx, p)
	})
	return storageErr("upsert prescription", err)
}

func upsertPrescription(tx *gorm.DB, p *models.Prescription) error {
	if p.ID != 0 {
		existing, err := findPrescription(tx, "id = ?", p.ID)
		if err != nil {
			return err
		}
		if existing != nil && existing.LocalKey != p.LocalKey {
			if p.LocalKey != "" {
				// two local rows now describe one server record; keep the older key
				if err := tx.Where("local_key = ?", p.LocalKey).Delete(&models.Prescription{}).Error; err != nil {
					return err
				}
			}
			p.LocalKey = existing.LocalKey
		}
	}
	if p.LocalKey == "" {
		p.LocalKey = uuid.NewString()
	}
	if p.Medications == nil {
		p.Medications = models.Medications{}
	}

	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "local_key"}},
		UpdateAll: true,
	}).Create(p).Error
}

func (r *PrescriptionGormRepository) MarkSynced(
	ctx context.Context,
	key string,
) error {
	unlock := r.locks.Lock(localKey(key))
	defer unlock()

	err := r.db.WithContext(ctx).
		Model(&models.Prescription{}).
		Where("local_key = ?", key).
		Updates(map[string]any{
			"is_synced":       true,
			"failed_attempts": 0,
		}).Error
	return storageErr("mark prescription synced", err)
}

func (r *PrescriptionGormRepository) Delete(
	ctx context.Context,
	id int64,
) error {
	unlock := r.locks.Lock(serverKey(id))
	defer unlock()

	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		Delete(&models.Prescription{}).Error
	return storageErr("delete prescription", err)
}

func (r *PrescriptionGormRepository) DeleteLocal(
	ctx context.Context,
	key string,
) error {
	unlock := r.locks.Lock(localKey(key))
	defer unlock()

	err := r.db.WithContext(ctx).
		Where("local_key = ?", key).
		Delete(&models.Prescription{}).Error
	return storageErr("delete local prescription", err)
}

func (r *PrescriptionGormRepository) MutateByID(
	ctx context.Context,
	id int64,
	fn domain.MutateFunc,
) (*models.Prescription, bool, error) {
	unlock := r.locks.Lock(serverKey(id))
	defer unlock()

	var (
		out     *models.Prescription
		written bool
		fnErr   error
	)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cur, err := findPrescription(tx, "id = ?", id)
		if err != nil {
			return err
		}

		next, err := fn(cur)
		if err != nil {
			fnErr = err
			return err
		}
		if next == nil {
			out = cur
			return nil
		}

		next.ID = id
		if cur != nil {
			next.LocalKey = cur.LocalKey
		}
		if err := upsertPrescription(tx, next); err != nil {
			return err
		}
		out, written = next, true
		return nil
	})

	if fnErr != nil {
		return nil, false, fnErr
	}
	if err != nil {
		return nil, false, storageErr("mutate prescription", err)
	}
	return out, written, nil
}

// --------------------------------------------------
// Reads
// --------------------------------------------------

func findPrescription(tx *gorm.DB, query string, args ...any) (*models.Prescription, error) {
	var p models.Prescription
	err := tx.Where(query, args...).Take(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PrescriptionGormRepository) GetByID(
	ctx context.Context,
	id int64,
) (*models.Prescription, error) {
	p, err := findPrescription(r.db.WithContext(ctx), "id = ?", id)
	return p, storageErr("get prescription", err)
}

func (r *PrescriptionGormRepository) GetByLocalKey(
	ctx context.Context,
	key string,
) (*models.Prescription, error) {
	p, err := findPrescription(r.db.WithContext(ctx), "local_key = ?", key)
	return p, storageErr("get prescription", err)
}

func (r *PrescriptionGormRepository) GetByAppointment(
	ctx context.Context,
	appointmentID int64,
) (*models.Prescription, error) {
	var p models.Prescription
	err := r.db.WithContext(ctx).
		Where("appointment = ?", appointmentID).
		Order("is_synced ASC").
		Order("last_updated DESC").
		Take(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("get prescription by appointment", err)
	}
	return &p, nil
}

func (r *PrescriptionGormRepository) QueryByOwner(
	ctx context.Context,
	owner models.Owner,
) ([]models.Prescription, error) {
	var out []models.Prescription
	err := r.db.WithContext(ctx).
		Where(owner.Column()+" = ?", owner.ID).
		Order("issued_date DESC").
		Find(&out).Error
	if err != nil {
		return nil, storageErr("query prescriptions", err)
	}
	return out, nil
}

func (r *PrescriptionGormRepository) QueryUnsynced(
	ctx context.Context,
	owner models.Owner,
) ([]models.Prescription, error) {
	q := r.db.WithContext(ctx).Where("is_synced = ?", false)
	if !owner.IsZero() {
		q = q.Where(owner.Column()+" = ?", owner.ID)
	}

	var out []models.Prescription
	if err := q.Order("last_updated ASC").Find(&out).Error; err != nil {
		return nil, storageErr("query unsynced prescriptions", err)
	}
	return out, nil
}

// Compile-time check
var _ domain.Repository = (*PrescriptionGormRepository)(nil)
