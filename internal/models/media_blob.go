package models

import (
	"time"

	"github.com/google/uuid"
)

type BlobStatus string

const (
	BlobStatusPending   BlobStatus = "pending"
	BlobStatusCompleted BlobStatus = "completed"
	BlobStatusFailed    BlobStatus = "failed"
)

type CipherMode string

const (
	CipherModeNone CipherMode = "none"
	// CipherModeGCM is whole-buffer AES-256-GCM with an appended auth tag.
	CipherModeGCM CipherMode = "gcm"
	// CipherModeCTR is chunked AES-256-CTR for large files. No integrity tag.
	CipherModeCTR CipherMode = "ctr"
)

// MediaBlob describes the physical bytes of a file, decoupled from the
// logical name so several entries could reference the same content.
//
// While Status is pending (or failed) LocalPath points at the on-disk copy;
// after a successful migration RemoteObject holds the object id and the local
// copy is gone. A failed migration keeps the local copy: the blob must never
// lose its only copy.
type MediaBlob struct {
	BaseModel
	Filename      string     `json:"filename" gorm:"type:varchar(255);not null"`
	ContentHash   string     `json:"contentHash" gorm:"type:varchar(64);not null;index"`
	Size          int64      `json:"size" gorm:"not null;default:0"`
	EncryptedSize *int64     `json:"encryptedSize,omitempty"`
	MimeType      string     `json:"mimeType" gorm:"type:varchar(255);not null"`
	IsEncrypted   bool       `json:"isEncrypted" gorm:"not null;default:false"`
	CipherMode    CipherMode `json:"-" gorm:"type:varchar(10);not null;default:'none'"`

	// 32-byte key and 12-byte nonce, present only when IsEncrypted.
	EncryptionKey   []byte `json:"-" gorm:"type:bytes"`
	EncryptionNonce []byte `json:"-" gorm:"type:bytes"`

	OwnerID uuid.UUID `json:"ownerID" gorm:"type:uuid;not null;index"`
	Public  bool      `json:"public" gorm:"not null;default:false"`

	Status       BlobStatus `json:"status" gorm:"type:varchar(20);not null;default:'pending';index"`
	LocalPath    *string    `json:"-" gorm:"type:text"`
	RemoteObject *string    `json:"-" gorm:"type:text"`

	UploadedAt time.Time `json:"uploadedAt"`
	AccessedAt time.Time `json:"accessedAt"`
}
