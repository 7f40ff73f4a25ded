package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Event is a best-effort domain event row ("file.uploaded", "file.migrated",
// "file.upload_failed"). External notification systems consume these; the
// engine only appends. No BaseModel: events are never updated.
type Event struct {
	ID         uuid.UUID              `json:"id" gorm:"type:uuid;primaryKey"`
	UserID     *uuid.UUID             `json:"userID,omitempty" gorm:"type:uuid;index"`
	Action     string                 `json:"action" gorm:"type:varchar(100);not null;index"`
	ResourceID *uuid.UUID             `json:"resourceID,omitempty" gorm:"type:uuid;index"`
	Details    map[string]interface{} `json:"details,omitempty" gorm:"serializer:json"`
	CreatedAt  time.Time              `json:"createdAt"`
}

func (e *Event) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}
