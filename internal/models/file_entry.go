package models

import (
	"time"

	"github.com/google/uuid"
)

// FileEntry is the logical, user-facing file node in the directory tree. A
// nil BlobID marks an upload still in progress; such entries are never served
// for download. Deletion is a soft flag, the row stays for a later
// reclamation pass. Sibling names are unique among live entries only: the
// partial unique index skips soft-deleted rows so a deleted name can be
// reused. Root siblings (null parent) rely on the service-level check, null
// never collides in a unique index.
type FileEntry struct {
	BaseModel
	Name     string     `json:"name" gorm:"type:varchar(255);not null;uniqueIndex:idx_entry_sibling,where:is_deleted = false"`
	OwnerID  uuid.UUID  `json:"ownerID" gorm:"type:uuid;not null;index;uniqueIndex:idx_entry_sibling,where:is_deleted = false"`
	ParentID *uuid.UUID `json:"parentID,omitempty" gorm:"type:uuid;index;uniqueIndex:idx_entry_sibling,where:is_deleted = false"`
	BlobID   *uuid.UUID `json:"blobID,omitempty" gorm:"type:uuid;index"`

	Category string `json:"category,omitempty" gorm:"type:varchar(50)"`
	// CapturedAt is the date extracted from the filename, best-effort.
	CapturedAt time.Time `json:"capturedAt"`

	IsDeleted      bool       `json:"-" gorm:"not null;default:false;index"`
	DeletedAt      *time.Time `json:"-"`
	LastAccessedAt *time.Time `json:"lastAccessedAt,omitempty"`

	Parent *Directory `json:"-" gorm:"foreignKey:ParentID"`
	Blob   *MediaBlob `json:"blob,omitempty" gorm:"foreignKey:BlobID"`
}
