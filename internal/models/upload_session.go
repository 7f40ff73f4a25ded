package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UploadSession is the ephemeral state of a chunked upload. Chunk receipts
// live in their own table so concurrent appends to different indices never
// contend on one row; the receipt set, not arrival order, decides
// completeness.
type UploadSession struct {
	BaseModel
	OwnerID     uuid.UUID  `json:"ownerID" gorm:"type:uuid;not null;index"`
	Filename    string     `json:"filename" gorm:"type:varchar(255);not null"`
	TotalSize   int64      `json:"totalSize" gorm:"not null"`
	TotalChunks int        `json:"totalChunks" gorm:"not null"`
	Encrypt     bool       `json:"encrypt" gorm:"not null;default:false"`
	ParentID    *uuid.UUID `json:"parentID,omitempty" gorm:"type:uuid"`
	ExpiresAt   time.Time  `json:"expiresAt" gorm:"not null;index"`

	Chunks []UploadChunk `json:"-" gorm:"foreignKey:SessionID"`
}

func (s *UploadSession) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

type UploadChunk struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	SessionID  uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_session_chunk"`
	ChunkIndex int       `gorm:"not null;uniqueIndex:idx_session_chunk"`
	Size       int64     `gorm:"not null"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (c *UploadChunk) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
