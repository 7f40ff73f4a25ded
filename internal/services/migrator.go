package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/Jerit-Baiju/caelium/internal/apperr"
	"github.com/Jerit-Baiju/caelium/internal/config"
	"github.com/Jerit-Baiju/caelium/internal/models"
	"github.com/Jerit-Baiju/caelium/internal/storage"
	"github.com/Jerit-Baiju/caelium/pkg/logger"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MigrationService moves pending blob bytes from the local tier to the
// remote store on a bounded worker pool. The local copy is deleted only
// after the remote store acknowledges the upload; a failed migration marks
// the blob failed and keeps the local copy. Failed blobs are not retried
// automatically, an operator re-enqueues them.
type MigrationService struct {
	db      *gorm.DB
	local   *storage.LocalStore
	remote  storage.RemoteBlobStore
	events  *EventService
	timeout config.MigratorConfig

	queue chan uuid.UUID
	wg    sync.WaitGroup
	stop  chan struct{}
}

func NewMigrationService(db *gorm.DB, local *storage.LocalStore, remote storage.RemoteBlobStore, events *EventService, cfg config.MigratorConfig) *MigrationService {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 100
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	s := &MigrationService{
		db:      db,
		local:   local,
		remote:  remote,
		events:  events,
		timeout: cfg,
		queue:   make(chan uuid.UUID, cfg.QueueSize),
		stop:    make(chan struct{}),
	}
	for i := 0; i < cfg.Workers; i++ {
		s.wg.Add(1)
		go s.worker()
	}
	return s
}

func (s *MigrationService) worker() {
	defer s.wg.Done()
	for {
		select {
		case blobID, ok := <-s.queue:
			if !ok {
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), s.timeout.UploadTimeout)
			if err := s.Migrate(ctx, blobID); err != nil {
				logger.Error("blob_migration_failed", err, map[string]interface{}{
					"blob_id": blobID.String(),
				})
			}
			cancel()
		case <-s.stop:
			return
		}
	}
}

// Enqueue schedules a blob for migration without blocking. A full queue
// drops the request; the blob stays pending and a later enqueue or operator
// action picks it up.
func (s *MigrationService) Enqueue(blobID uuid.UUID) {
	select {
	case s.queue <- blobID:
	default:
		logger.Warn("migration_queue_full", map[string]interface{}{
			"blob_id": blobID.String(),
		})
	}
}

// Migrate uploads one blob's bytes to the remote store and flips its record.
// Exported so callers needing deterministic completion can bypass the queue.
func (s *MigrationService) Migrate(ctx context.Context, blobID uuid.UUID) error {
	var blob models.MediaBlob
	if err := s.db.First(&blob, "id = ?", blobID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return apperr.ErrNotFound
		}
		return err
	}

	if blob.Status == models.BlobStatusCompleted {
		return nil
	}
	if blob.LocalPath == nil {
		return fmt.Errorf("blob %s has no local copy to migrate", blobID)
	}

	f, err := s.local.OpenBlob(*blob.LocalPath)
	if err != nil {
		return err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return err
	}

	objectName := fmt.Sprintf("%s/%s/%s", blob.OwnerID, blob.ID, blob.Filename)
	if err := s.remote.Upload(ctx, objectName, f, stat.Size(), blob.MimeType); err != nil {
		if dbErr := s.db.Model(&blob).Updates(map[string]interface{}{
			"status": models.BlobStatusFailed,
		}).Error; dbErr != nil {
			logger.Error("blob_status_update_failed", dbErr, map[string]interface{}{
				"blob_id": blob.ID.String(),
			})
		}
		if s.events != nil {
			s.events.Emit(EventFileUploadFailed, &blob.OwnerID, &blob.ID, map[string]interface{}{
				"filename": blob.Filename,
				"error":    err.Error(),
			})
		}
		return fmt.Errorf("%w: %v", apperr.ErrUpstreamUnavailable, err)
	}

	if err := s.db.Model(&blob).Updates(map[string]interface{}{
		"status":        models.BlobStatusCompleted,
		"remote_object": objectName,
		"local_path":    nil,
	}).Error; err != nil {
		return err
	}

	if err := s.local.RemoveBlob(blob.ID); err != nil {
		logger.Warn("local_blob_cleanup_failed", map[string]interface{}{
			"blob_id": blob.ID.String(),
		})
	}

	if s.events != nil {
		s.events.Emit(EventFileMigrated, &blob.OwnerID, &blob.ID, map[string]interface{}{
			"filename": blob.Filename,
			"object":   objectName,
		})
	}

	logger.Info("blob_migrated", map[string]interface{}{
		"blob_id": blob.ID.String(),
		"object":  objectName,
		"size":    stat.Size(),
	})
	return nil
}

// Close stops the workers. Queued blobs stay pending.
func (s *MigrationService) Close() {
	close(s.stop)
	s.wg.Wait()
}
