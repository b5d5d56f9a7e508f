package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/BruksfildServices01/clinic-sync/internal/models"
)

type NotificationGormRepository struct {
	db *gorm.DB
}

func NewNotificationGormRepository(db *gorm.DB) *NotificationGormRepository {
	return &NotificationGormRepository{db: db}
}

// Save keeps the local read flag when the same notification arrives again.
func (r *NotificationGormRepository) Save(ctx context.Context, n *models.Notification) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"title", "body", "created_at"}),
	}).Create(n).Error
	return storageErr("save notification", err)
}

func (r *NotificationGormRepository) List(ctx context.Context, owner models.Owner, limit int) ([]models.Notification, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var out []models.Notification
	err := r.db.WithContext(ctx).
		Where("owner_key = ?", owner.String()).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, storageErr("list notifications", err)
	}
	return out, nil
}

// MarkRead reports whether the notification exists for owner.
func (r *NotificationGormRepository) MarkRead(ctx context.Context, owner models.Owner, id int64) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("id = ? AND owner_key = ?", id, owner.String()).
		Update("read", true)
	if res.Error != nil {
		return false, storageErr("mark notification read", res.Error)
	}
	return res.RowsAffected > 0, nil
}
