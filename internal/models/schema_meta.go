package models

// SchemaVersion is bumped whenever the local tables change shape; a mismatch
// recreates the cache from scratch.
const SchemaVersion = 1

type SchemaMeta struct {
	ID      uint `gorm:"primaryKey"`
	Version int  `gorm:"not null"`
}

func (SchemaMeta) TableName() string {
	return "schema_meta"
}
