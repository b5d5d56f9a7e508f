package audit

import (
	"context"
	"encoding/json"

	"gorm.io/gorm"

	"github.com/BruksfildServices01/clinic-sync/internal/models"
)

type Logger struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Logger {
	return &Logger{db: db}
}

func (l *Logger) Log(
	ownerKey string,
	action string,
	entity string,
	entityID *int64,
	metadata any,
) error {

	var metaJSON string
	if metadata != nil {
		if b, err := json.Marshal(metadata); err == nil {
			metaJSON = string(b)
		}
	}

	entry := models.SyncLog{
		OwnerKey: ownerKey,
		Action:   action,
		Entity:   entity,
		EntityID: entityID,
		Metadata: metaJSON,
	}

	return l.db.Create(&entry).Error
}

// List returns the newest entries for owner first.
func (l *Logger) List(ctx context.Context, owner models.Owner, limit int) ([]models.SyncLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var out []models.SyncLog
	err := l.db.WithContext(ctx).
		Where("owner_key = ?", owner.String()).
		Order("id DESC").
		Limit(limit).
		Find(&out).Error
	return out, err
}
