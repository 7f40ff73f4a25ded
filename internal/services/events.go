package services

import (
	"github.com/Jerit-Baiju/caelium/internal/models"
	"github.com/Jerit-Baiju/caelium/pkg/logger"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	EventFileUploaded     = "file.uploaded"
	EventFileMigrated     = "file.migrated"
	EventFileUploadFailed = "file.upload_failed"
	EventFileDeleted      = "file.deleted"
)

// EventService persists domain events off the request path. Emission is
// best-effort: when the queue is full the event is dropped and logged, never
// blocking the caller.
type EventService struct {
	db    *gorm.DB
	queue chan models.Event
	done  chan struct{}
}

func NewEventService(db *gorm.DB, queueSize int) *EventService {
	if queueSize <= 0 {
		queueSize = 100
	}
	s := &EventService{
		db:    db,
		queue: make(chan models.Event, queueSize),
		done:  make(chan struct{}),
	}
	go s.worker()
	return s
}

func (s *EventService) worker() {
	defer close(s.done)
	for event := range s.queue {
		if err := s.db.Create(&event).Error; err != nil {
			logger.Error("event_persist_failed", err, map[string]interface{}{
				"action": event.Action,
			})
		}
	}
}

// Emit queues an event without blocking.
func (s *EventService) Emit(action string, userID, resourceID *uuid.UUID, details map[string]interface{}) {
	event := models.Event{
		UserID:     userID,
		Action:     action,
		ResourceID: resourceID,
		Details:    details,
	}
	select {
	case s.queue <- event:
	default:
		logger.Warn("event_queue_full", map[string]interface{}{
			"action": action,
		})
	}
}

// Close drains the queue and stops the worker.
func (s *EventService) Close() {
	close(s.queue)
	<-s.done
}
