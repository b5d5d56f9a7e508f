package models

import "time"

type SyncLog struct {
	ID uint `gorm:"primaryKey" json:"id"`

	OwnerKey string `gorm:"size:40;index" json:"owner"`
	Action   string `gorm:"size:50;not null" json:"action"`

	Entity   string `gorm:"size:50" json:"entity"`
	EntityID *int64 `json:"entity_id"`
	Metadata string `gorm:"type:text" json:"metadata"`

	CreatedAt time.Time `json:"created_at"`
}

func (SyncLog) TableName() string {
	return "sync_logs"
}
