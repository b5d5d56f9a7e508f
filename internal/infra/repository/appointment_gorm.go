package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	domain "github.com/BruksfildServices01/clinic-sync/internal/domain/appointment"
	"github.com/BruksfildServices01/clinic-sync/internal/models"
)

type AppointmentGormRepository struct {
	db    *gorm.DB
	locks *keyLock[int64]
}

func NewAppointmentGormRepository(db *gorm.DB) *AppointmentGormRepository {
	return &AppointmentGormRepository{db: db, locks: newKeyLock[int64]()}
}

// --------------------------------------------------
// Writes
// --------------------------------------------------

func (r *AppointmentGormRepository) Upsert(
	ctx context.Context,
	ap *models.Appointment,
) error {
	if ap.ID <= 0 {
		return fmt.Errorf("upsert appointment: id must be assigned by the remote service, got %d", ap.ID)
	}

	unlock := r.locks.Lock(ap.ID)
	defer unlock()

	return storageErr("upsert appointment", upsertAppointment(r.db.WithContext(ctx), ap))
}

func upsertAppointment(tx *gorm.DB, ap *models.Appointment) error {
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(ap).Error
}

func (r *AppointmentGormRepository) MarkSynced(
	ctx context.Context,
	id int64,
) error {
	unlock := r.locks.Lock(id)
	defer unlock()

	err := r.db.WithContext(ctx).
		Model(&models.Appointment{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"is_synced":       true,
			"synced_status":   gorm.Expr("status"),
			"pending_action":  "",
			"pending_reason":  "",
			"failed_attempts": 0,
		}).Error
	return storageErr("mark appointment synced", err)
}

func (r *AppointmentGormRepository) Delete(
	ctx context.Context,
	id int64,
) error {
	unlock := r.locks.Lock(id)
	defer unlock()

	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		Delete(&models.Appointment{}).Error
	return storageErr("delete appointment", err)
}

func (r *AppointmentGormRepository) Mutate(
	ctx context.Context,
	id int64,
	fn domain.MutateFunc,
) (*models.Appointment, bool, error) {
	unlock := r.locks.Lock(id)
	defer unlock()

	var (
		out     *models.Appointment
		written bool
		fnErr   error
	)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cur, err := findAppointment(tx, id)
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
		if err := upsertAppointment(tx, next); err != nil {
			return err
		}
		out, written = next, true
		return nil
	})

	if fnErr != nil {
		return nil, false, fnErr
	}
	if err != nil {
		return nil, false, storageErr("mutate appointment", err)
	}
	return out, written, nil
}

// --------------------------------------------------
// Reads
// --------------------------------------------------

func (r *AppointmentGormRepository) GetByID(
	ctx context.Context,
	id int64,
) (*models.Appointment, error) {
	ap, err := findAppointment(r.db.WithContext(ctx), id)
	return ap, storageErr("get appointment", err)
}

func findAppointment(tx *gorm.DB, id int64) (*models.Appointment, error) {
	var ap models.Appointment
	err := tx.Where("id = ?", id).Take(&ap).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ap, nil
}

func (r *AppointmentGormRepository) QueryByOwner(
	ctx context.Context,
	owner models.Owner,
) ([]models.Appointment, error) {
	var apps []models.Appointment
	err := r.db.WithContext(ctx).
		Where(owner.Column()+" = ?", owner.ID).
		Order("date DESC").
		Order("time DESC").
		Find(&apps).Error
	if err != nil {
		return nil, storageErr("query appointments", err)
	}
	return apps, nil
}

func (r *AppointmentGormRepository) QueryUnsynced(
	ctx context.Context,
	owner models.Owner,
) ([]models.Appointment, error) {
	q := r.db.WithContext(ctx).Where("is_synced = ?", false)
	if !owner.IsZero() {
		q = q.Where(owner.Column()+" = ?", owner.ID)
	}

	var apps []models.Appointment
	if err := q.Order("last_updated ASC").Find(&apps).Error; err != nil {
		return nil, storageErr("query unsynced appointments", err)
	}
	return apps, nil
}

// Compile-time check
var _ domain.Repository = (*AppointmentGormRepository)(nil)
