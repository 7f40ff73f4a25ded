package services

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Jerit-Baiju/caelium/internal/apperr"
	"github.com/Jerit-Baiju/caelium/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DirectoryService manages the per-owner directory tree. Sibling name
// uniqueness and cycle safety are enforced here inside transactions, not
// left to callers.
type DirectoryService struct {
	db *gorm.DB
}

func NewDirectoryService(db *gorm.DB) *DirectoryService {
	return &DirectoryService{db: db}
}

func validateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("%w: name is required", apperr.ErrInvalidArgument)
	}
	if strings.ContainsAny(name, "/\\") {
		return "", fmt.Errorf("%w: name must not contain path separators", apperr.ErrInvalidArgument)
	}
	if len(name) > 255 {
		return "", fmt.Errorf("%w: name too long", apperr.ErrInvalidArgument)
	}
	return name, nil
}

// get loads a directory owned by ownerID. Directories of other owners are
// indistinguishable from missing ones.
func (s *DirectoryService) get(tx *gorm.DB, ownerID, dirID uuid.UUID) (*models.Directory, error) {
	var dir models.Directory
	err := tx.First(&dir, "id = ? AND owner_id = ?", dirID, ownerID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &dir, nil
}

func (s *DirectoryService) Get(ownerID, dirID uuid.UUID) (*models.Directory, error) {
	return s.get(s.db, ownerID, dirID)
}

func siblingDirQuery(tx *gorm.DB, ownerID uuid.UUID, parentID *uuid.UUID, name string) *gorm.DB {
	q := tx.Model(&models.Directory{}).Where("owner_id = ? AND name = ?", ownerID, name)
	if parentID == nil {
		return q.Where("parent_id IS NULL")
	}
	return q.Where("parent_id = ?", *parentID)
}

func siblingEntryQuery(tx *gorm.DB, ownerID uuid.UUID, parentID *uuid.UUID, name string) *gorm.DB {
	q := tx.Model(&models.FileEntry{}).Where("owner_id = ? AND name = ? AND is_deleted = ?", ownerID, name, false)
	if parentID == nil {
		return q.Where("parent_id IS NULL")
	}
	return q.Where("parent_id = ?", *parentID)
}

// translateDuplicate folds a unique index violation into ErrDuplicateName.
// The sibling check runs first for a friendlier message; the index has the
// last word when two transactions race past it.
func translateDuplicate(err error, name string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) ||
		strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key value") {
		return fmt.Errorf("%w: a sibling named %q already exists here", apperr.ErrDuplicateName, name)
	}
	return err
}

func sameParent(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func checkSiblingName(tx *gorm.DB, ownerID uuid.UUID, parentID *uuid.UUID, name string) error {
	var count int64
	if err := siblingDirQuery(tx, ownerID, parentID, name).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return fmt.Errorf("%w: a directory named %q already exists here", apperr.ErrDuplicateName, name)
	}
	if err := siblingEntryQuery(tx, ownerID, parentID, name).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return fmt.Errorf("%w: a file named %q already exists here", apperr.ErrDuplicateName, name)
	}
	return nil
}

// Create makes a directory under parentID (nil means root).
func (s *DirectoryService) Create(ownerID uuid.UUID, name string, parentID *uuid.UUID) (*models.Directory, error) {
	name, err := validateName(name)
	if err != nil {
		return nil, err
	}

	var dir *models.Directory
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if parentID != nil {
			if _, err := s.get(tx, ownerID, *parentID); err != nil {
				return err
			}
		}
		if err := checkSiblingName(tx, ownerID, parentID, name); err != nil {
			return err
		}
		dir = &models.Directory{
			Name:     name,
			OwnerID:  ownerID,
			ParentID: parentID,
		}
		return translateDuplicate(tx.Create(dir).Error, name)
	})
	if err != nil {
		return nil, err
	}
	return dir, nil
}

// Rename changes a directory's name in place.
func (s *DirectoryService) Rename(ownerID, dirID uuid.UUID, newName string) (*models.Directory, error) {
	newName, err := validateName(newName)
	if err != nil {
		return nil, err
	}

	var dir *models.Directory
	err = s.db.Transaction(func(tx *gorm.DB) error {
		dir, err = s.get(tx, ownerID, dirID)
		if err != nil {
			return err
		}
		if dir.Name == newName {
			return nil
		}
		if err := checkSiblingName(tx, ownerID, dir.ParentID, newName); err != nil {
			return err
		}
		dir.Name = newName
		return translateDuplicate(tx.Model(dir).Update("name", newName).Error, newName)
	})
	if err != nil {
		return nil, err
	}
	return dir, nil
}

// isDescendant reports whether candidate sits in dir's subtree (or is dir
// itself), walking the parent chain upward from candidate. A revisited id
// means the chain is corrupted into a cycle; that reads as descendant so the
// move is refused rather than looping forever.
func (s *DirectoryService) isDescendant(tx *gorm.DB, ownerID, dirID, candidateID uuid.UUID) (bool, error) {
	seen := make(map[uuid.UUID]struct{})
	current := candidateID
	for {
		if current == dirID {
			return true, nil
		}
		if _, ok := seen[current]; ok {
			return true, nil
		}
		seen[current] = struct{}{}
		var parent struct {
			ParentID *uuid.UUID
		}
		err := tx.Model(&models.Directory{}).
			Select("parent_id").
			Where("id = ? AND owner_id = ?", current, ownerID).
			Scan(&parent).Error
		if err != nil {
			return false, err
		}
		if parent.ParentID == nil {
			return false, nil
		}
		current = *parent.ParentID
	}
}

// Move reparents a directory. Moving a directory into itself or any of its
// descendants is rejected.
func (s *DirectoryService) Move(ownerID, dirID uuid.UUID, newParentID *uuid.UUID) (*models.Directory, error) {
	var dir *models.Directory
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		dir, err = s.get(tx, ownerID, dirID)
		if err != nil {
			return err
		}
		if sameParent(dir.ParentID, newParentID) {
			return nil
		}
		if newParentID != nil {
			if *newParentID == dirID {
				return fmt.Errorf("%w: cannot move a directory into itself", apperr.ErrCircularReference)
			}
			if _, err := s.get(tx, ownerID, *newParentID); err != nil {
				return err
			}
			descendant, err := s.isDescendant(tx, ownerID, dirID, *newParentID)
			if err != nil {
				return err
			}
			if descendant {
				return fmt.Errorf("%w: cannot move a directory into its own subtree", apperr.ErrCircularReference)
			}
		}
		if err := checkSiblingName(tx, ownerID, newParentID, dir.Name); err != nil {
			return err
		}
		dir.ParentID = newParentID
		return translateDuplicate(tx.Model(dir).Update("parent_id", newParentID).Error, dir.Name)
	})
	if err != nil {
		return nil, err
	}
	return dir, nil
}

// Breadcrumbs returns the path from the root to dirID, root first.
func (s *DirectoryService) Breadcrumbs(ownerID uuid.UUID, dirID *uuid.UUID) ([]models.Directory, error) {
	if dirID == nil {
		return []models.Directory{}, nil
	}

	var crumbs []models.Directory
	current := dirID
	for current != nil {
		dir, err := s.get(s.db, ownerID, *current)
		if err != nil {
			return nil, err
		}
		crumbs = append(crumbs, *dir)
		current = dir.ParentID
	}

	for i, j := 0, len(crumbs)-1; i < j; i, j = i+1, j-1 {
		crumbs[i], crumbs[j] = crumbs[j], crumbs[i]
	}
	return crumbs, nil
}

// Delete removes a directory and its whole subtree. File entries under it
// are soft-deleted; their blob cleanup happens in a later reclamation pass.
func (s *DirectoryService) Delete(ownerID, dirID uuid.UUID) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		dir, err := s.get(tx, ownerID, dirID)
		if err != nil {
			return err
		}
		return s.deleteRecursive(tx, ownerID, dir)
	})
}

func (s *DirectoryService) deleteRecursive(tx *gorm.DB, ownerID uuid.UUID, dir *models.Directory) error {
	var children []models.Directory
	if err := tx.Where("parent_id = ? AND owner_id = ?", dir.ID, ownerID).Find(&children).Error; err != nil {
		return err
	}
	for i := range children {
		if err := s.deleteRecursive(tx, ownerID, &children[i]); err != nil {
			return err
		}
	}

	now := time.Now()
	if err := tx.Model(&models.FileEntry{}).
		Where("parent_id = ? AND owner_id = ? AND is_deleted = ?", dir.ID, ownerID, false).
		Updates(map[string]interface{}{
			"is_deleted": true,
			"deleted_at": now,
		}).Error; err != nil {
		return err
	}

	return tx.Delete(&models.Directory{}, "id = ?", dir.ID).Error
}

// ResolveOrCreatePath walks a path of directory names below base, creating
// missing segments. Used by auto-organize to build category folders.
func (s *DirectoryService) ResolveOrCreatePath(ownerID uuid.UUID, base *uuid.UUID, parts []string) (*uuid.UUID, error) {
	current := base
	for _, part := range parts {
		part, err := validateName(part)
		if err != nil {
			return nil, err
		}

		var dir models.Directory
		err = siblingDirQuery(s.db, ownerID, current, part).First(&dir).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			created, cerr := s.Create(ownerID, part, current)
			if cerr != nil {
				// A concurrent upload may have created it between the
				// lookup and the insert.
				if errors.Is(cerr, apperr.ErrDuplicateName) {
					lookupErr := siblingDirQuery(s.db, ownerID, current, part).First(&dir).Error
					if errors.Is(lookupErr, gorm.ErrRecordNotFound) {
						// The colliding sibling is a file entry, not a
						// directory the path could reuse.
						return nil, cerr
					}
					if lookupErr != nil {
						return nil, lookupErr
					}
					id := dir.ID
					current = &id
					continue
				}
				return nil, cerr
			}
			id := created.ID
			current = &id
			continue
		}
		if err != nil {
			return nil, err
		}
		id := dir.ID
		current = &id
	}
	return current, nil
}
