package models

import "time"

type Notification struct {
	ID        int64     `gorm:"primaryKey;autoIncrement:false" json:"id"`
	OwnerKey  string    `gorm:"size:40;index" json:"-"`
	Title     string    `gorm:"size:150" json:"title"`
	Body      string    `gorm:"type:text" json:"body"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"createdAt"`
}

func (Notification) TableName() string {
	return "notifications"
}
