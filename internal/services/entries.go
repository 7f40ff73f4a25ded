package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/Jerit-Baiju/caelium/internal/apperr"
	"github.com/Jerit-Baiju/caelium/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// EntryService manages file entries, the logical file nodes of the tree.
type EntryService struct {
	db     *gorm.DB
	dirs   *DirectoryService
	events *EventService
}

func NewEntryService(db *gorm.DB, dirs *DirectoryService, events *EventService) *EntryService {
	return &EntryService{db: db, dirs: dirs, events: events}
}

// Listing is one explorer page: the subdirectories and live file entries of
// a parent, plus the breadcrumb path from the root down to it. The current
// directory is nil at the root.
type Listing struct {
	Directories      []models.Directory `json:"directories"`
	Files            []models.FileEntry `json:"files"`
	Breadcrumbs      []models.Directory `json:"breadcrumbs"`
	CurrentDirectory *models.Directory  `json:"current_directory"`
}

// ListChildren returns the contents of parentID for ownerID; nil parent is
// the root. Soft-deleted entries never appear.
func (s *EntryService) ListChildren(ownerID uuid.UUID, parentID *uuid.UUID) (*Listing, error) {
	var current *models.Directory
	if parentID != nil {
		dir, err := s.dirs.Get(ownerID, *parentID)
		if err != nil {
			return nil, err
		}
		current = dir
	}

	dirQuery := s.db.Where("owner_id = ?", ownerID).Order("name ASC")
	fileQuery := s.db.Where("owner_id = ? AND is_deleted = ?", ownerID, false).Preload("Blob").Order("name ASC")
	if parentID == nil {
		dirQuery = dirQuery.Where("parent_id IS NULL")
		fileQuery = fileQuery.Where("parent_id IS NULL")
	} else {
		dirQuery = dirQuery.Where("parent_id = ?", *parentID)
		fileQuery = fileQuery.Where("parent_id = ?", *parentID)
	}

	listing := &Listing{
		Directories:      []models.Directory{},
		Files:            []models.FileEntry{},
		CurrentDirectory: current,
	}
	if err := dirQuery.Find(&listing.Directories).Error; err != nil {
		return nil, err
	}
	if err := fileQuery.Find(&listing.Files).Error; err != nil {
		return nil, err
	}

	crumbs, err := s.dirs.Breadcrumbs(ownerID, parentID)
	if err != nil {
		return nil, err
	}
	listing.Breadcrumbs = crumbs
	return listing, nil
}

// get loads a live entry owned by ownerID. Missing, soft-deleted, and
// other-owner entries all read as not found.
func (s *EntryService) get(tx *gorm.DB, ownerID, entryID uuid.UUID) (*models.FileEntry, error) {
	var entry models.FileEntry
	err := tx.Preload("Blob").First(&entry, "id = ? AND owner_id = ? AND is_deleted = ?", entryID, ownerID, false).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (s *EntryService) Get(ownerID, entryID uuid.UUID) (*models.FileEntry, error) {
	return s.get(s.db, ownerID, entryID)
}

// ResolveForRead loads an entry for download or preview on behalf of
// requester (nil for anonymous). The entry must be live and have a blob;
// non-owners only pass when the blob is public. Inaccessible entries read as
// not found for everyone except owners of private blobs, who are never here.
func (s *EntryService) ResolveForRead(requester *uuid.UUID, entryID uuid.UUID) (*models.FileEntry, error) {
	var entry models.FileEntry
	err := s.db.Preload("Blob").First(&entry, "id = ? AND is_deleted = ?", entryID, false).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if entry.BlobID == nil || entry.Blob == nil {
		return nil, apperr.ErrNotFound
	}

	owner := requester != nil && *requester == entry.OwnerID
	if !owner && !entry.Blob.Public {
		if requester == nil {
			return nil, apperr.ErrNotFound
		}
		return nil, apperr.ErrAccessDenied
	}
	return &entry, nil
}

// TouchAccessed records a read on the entry and its blob, best-effort.
func (s *EntryService) TouchAccessed(entry *models.FileEntry) {
	now := time.Now()
	s.db.Model(&models.FileEntry{}).Where("id = ?", entry.ID).Update("last_accessed_at", now)
	if entry.BlobID != nil {
		s.db.Model(&models.MediaBlob{}).Where("id = ?", *entry.BlobID).Update("accessed_at", now)
	}
}

// Rename changes an entry's display name.
func (s *EntryService) Rename(ownerID, entryID uuid.UUID, newName string) (*models.FileEntry, error) {
	newName, err := validateName(newName)
	if err != nil {
		return nil, err
	}

	var entry *models.FileEntry
	err = s.db.Transaction(func(tx *gorm.DB) error {
		entry, err = s.get(tx, ownerID, entryID)
		if err != nil {
			return err
		}
		if entry.Name == newName {
			return nil
		}
		if err := checkSiblingName(tx, ownerID, entry.ParentID, newName); err != nil {
			return err
		}
		entry.Name = newName
		return translateDuplicate(tx.Model(entry).Update("name", newName).Error, newName)
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// Move reparents an entry into another directory (nil for root).
func (s *EntryService) Move(ownerID, entryID uuid.UUID, newParentID *uuid.UUID) (*models.FileEntry, error) {
	var entry *models.FileEntry
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		entry, err = s.get(tx, ownerID, entryID)
		if err != nil {
			return err
		}
		if sameParent(entry.ParentID, newParentID) {
			return nil
		}
		if newParentID != nil {
			if _, err := s.dirs.get(tx, ownerID, *newParentID); err != nil {
				return err
			}
		}
		if err := checkSiblingName(tx, ownerID, newParentID, entry.Name); err != nil {
			return err
		}
		entry.ParentID = newParentID
		return translateDuplicate(tx.Model(entry).Update("parent_id", newParentID).Error, entry.Name)
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// SoftDelete flags an entry deleted. The blob row and its bytes survive for
// a later reclamation pass; repeat deletes read as not found.
func (s *EntryService) SoftDelete(ownerID, entryID uuid.UUID) error {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		entry, err := s.get(tx, ownerID, entryID)
		if err != nil {
			return err
		}
		now := time.Now()
		return tx.Model(entry).Updates(map[string]interface{}{
			"is_deleted": true,
			"deleted_at": now,
		}).Error
	})
	if err != nil {
		return err
	}

	if s.events != nil {
		s.events.Emit(EventFileDeleted, &ownerID, &entryID, nil)
	}
	return nil
}

func (s *EntryService) createEntry(tx *gorm.DB, entry *models.FileEntry) error {
	if err := checkSiblingName(tx, entry.OwnerID, entry.ParentID, entry.Name); err != nil {
		return err
	}
	if err := translateDuplicate(tx.Create(entry).Error, entry.Name); err != nil {
		return fmt.Errorf("creating file entry: %w", err)
	}
	return nil
}
