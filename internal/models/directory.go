package models

import "github.com/google/uuid"

// Directory is a node in a per-owner tree. Parent is stored as a nullable id
// reference, never an embedded pointer; cycle checks walk the id chain.
// (name, parent, owner) is unique among siblings: the unique index is the
// backstop for concurrent writers, the directory service checks it first for
// a friendlier error. Root siblings (null parent) rely on the service check
// alone, null never collides in a unique index.
type Directory struct {
	BaseModel
	Name     string     `json:"name" gorm:"type:varchar(255);not null;uniqueIndex:idx_dir_sibling"`
	OwnerID  uuid.UUID  `json:"ownerID" gorm:"type:uuid;not null;index;uniqueIndex:idx_dir_sibling"`
	ParentID *uuid.UUID `json:"parentID,omitempty" gorm:"type:uuid;index;uniqueIndex:idx_dir_sibling"`

	Parent         *Directory  `json:"-" gorm:"foreignKey:ParentID"`
	Subdirectories []Directory `json:"-" gorm:"foreignKey:ParentID"`
	Files          []FileEntry `json:"-" gorm:"foreignKey:ParentID"`
}
