package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/Jerit-Baiju/caelium/internal/apperr"
	"github.com/Jerit-Baiju/caelium/internal/config"
	"github.com/Jerit-Baiju/caelium/internal/models"
	"github.com/Jerit-Baiju/caelium/internal/storage"
	"github.com/Jerit-Baiju/caelium/pkg/logger"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SessionService runs chunked, resumable uploads. Chunks may arrive in any
// order and any chunk may be retried; a receipt row per (session, index)
// makes retries idempotent. Finalize assembles the chunks and pushes the
// result through the normal upload pipeline, then cleans up the session
// whether or not ingestion succeeded.
type SessionService struct {
	db      *gorm.DB
	local   *storage.LocalStore
	uploads *UploadService
	ttl     time.Duration
	reap    time.Duration
	maxSize int64
}

func NewSessionService(db *gorm.DB, local *storage.LocalStore, uploads *UploadService, sessCfg config.SessionConfig, storCfg config.StorageConfig) *SessionService {
	return &SessionService{
		db:      db,
		local:   local,
		uploads: uploads,
		ttl:     sessCfg.TTL,
		reap:    sessCfg.ReapInterval,
		maxSize: storCfg.MaxUploadSize,
	}
}

// Initiate opens a new session and returns it. TotalChunks and TotalSize
// are fixed for the session's lifetime.
func (s *SessionService) Initiate(ownerID uuid.UUID, filename string, totalSize int64, totalChunks int, encrypt bool, parentID *uuid.UUID) (*models.UploadSession, error) {
	filename, err := validateName(filename)
	if err != nil {
		return nil, err
	}
	if totalChunks <= 0 {
		return nil, fmt.Errorf("%w: total_chunks must be positive", apperr.ErrInvalidArgument)
	}
	if totalSize <= 0 {
		return nil, fmt.Errorf("%w: total_size must be positive", apperr.ErrInvalidArgument)
	}
	if s.maxSize > 0 && totalSize > s.maxSize {
		return nil, fmt.Errorf("%w: file exceeds the %d byte upload limit", apperr.ErrInvalidArgument, s.maxSize)
	}

	session := &models.UploadSession{
		OwnerID:     ownerID,
		Filename:    filename,
		TotalSize:   totalSize,
		TotalChunks: totalChunks,
		Encrypt:     encrypt,
		ParentID:    parentID,
		ExpiresAt:   time.Now().Add(s.ttl),
	}
	if err := s.db.Create(session).Error; err != nil {
		return nil, err
	}

	logger.InfoWithUser(ownerID.String(), "upload_session_initiated", map[string]interface{}{
		"session_id":   session.ID.String(),
		"filename":     filename,
		"total_chunks": totalChunks,
		"total_size":   totalSize,
	})
	return session, nil
}

// get loads a live session for ownerID. Expired sessions read as not found,
// same as after the reaper has removed them.
func (s *SessionService) get(ownerID, sessionID uuid.UUID) (*models.UploadSession, error) {
	var session models.UploadSession
	err := s.db.First(&session, "id = ? AND owner_id = ?", sessionID, ownerID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if session.Expired(time.Now()) {
		return nil, apperr.ErrNotFound
	}
	return &session, nil
}

// Progress counts distinct received chunks.
func (s *SessionService) Progress(ownerID, sessionID uuid.UUID) (received int64, total int, err error) {
	session, err := s.get(ownerID, sessionID)
	if err != nil {
		return 0, 0, err
	}
	if err := s.db.Model(&models.UploadChunk{}).Where("session_id = ?", session.ID).Count(&received).Error; err != nil {
		return 0, 0, err
	}
	return received, session.TotalChunks, nil
}

// AppendChunk stores one chunk and returns the session's progress.
// Re-sending an index overwrites the previous copy and does not double
// count.
func (s *SessionService) AppendChunk(ownerID, sessionID uuid.UUID, index int, r io.Reader) (received int64, total int, err error) {
	session, err := s.get(ownerID, sessionID)
	if err != nil {
		return 0, 0, err
	}
	if index < 0 || index >= session.TotalChunks {
		return 0, 0, fmt.Errorf("%w: chunk index %d out of range [0, %d)", apperr.ErrInvalidArgument, index, session.TotalChunks)
	}

	size, err := s.local.WriteChunk(session.ID, index, r)
	if err != nil {
		return 0, 0, err
	}

	chunk := models.UploadChunk{
		SessionID:  session.ID,
		ChunkIndex: index,
		Size:       size,
	}
	err = s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_id"}, {Name: "chunk_index"}},
		DoUpdates: clause.Assignments(map[string]interface{}{"size": size, "updated_at": time.Now()}),
	}).Create(&chunk).Error
	if err != nil {
		return 0, 0, err
	}

	if err := s.db.Model(&models.UploadChunk{}).Where("session_id = ?", session.ID).Count(&received).Error; err != nil {
		return 0, 0, err
	}
	return received, session.TotalChunks, nil
}

// Finalize assembles the session's chunks and ingests the result. Missing
// chunks fail with ErrIncomplete and the session survives for more
// AppendChunk calls; any other outcome, success or failure, removes the
// session.
func (s *SessionService) Finalize(ctx context.Context, ownerID, sessionID uuid.UUID, opts UploadOptions) (*models.FileEntry, int64, int, error) {
	session, err := s.get(ownerID, sessionID)
	if err != nil {
		return nil, 0, 0, err
	}

	var received int64
	if err := s.db.Model(&models.UploadChunk{}).Where("session_id = ?", session.ID).Count(&received).Error; err != nil {
		return nil, 0, 0, err
	}
	if received < int64(session.TotalChunks) {
		return nil, received, session.TotalChunks, fmt.Errorf("%w: received %d of %d chunks", apperr.ErrIncomplete, received, session.TotalChunks)
	}

	defer s.cleanup(session)

	assembled, size, err := s.assemble(session)
	if err != nil {
		return nil, received, session.TotalChunks, err
	}
	defer assembled.Close()

	opts.Encrypt = session.Encrypt
	if opts.ParentID == nil {
		opts.ParentID = session.ParentID
	}
	entry, err := s.uploads.Upload(ctx, ownerID, UploadedBytes{
		Reader:   assembled,
		Size:     size,
		Filename: session.Filename,
	}, opts)
	if err != nil {
		return nil, received, session.TotalChunks, err
	}

	logger.InfoWithUser(ownerID.String(), "upload_session_finalized", map[string]interface{}{
		"session_id": session.ID.String(),
		"entry_id":   entry.ID.String(),
		"size":       size,
	})
	return entry, received, session.TotalChunks, nil
}

// assemble concatenates chunks in index order into one scratch file.
func (s *SessionService) assemble(session *models.UploadSession) (*os.File, int64, error) {
	path := s.local.AssemblePath(session.ID)
	out, err := os.Create(path)
	if err != nil {
		return nil, 0, err
	}

	var total int64
	for i := 0; i < session.TotalChunks; i++ {
		chunk, err := s.local.OpenChunk(session.ID, i)
		if err != nil {
			out.Close()
			return nil, 0, fmt.Errorf("%w: chunk %d missing on disk", apperr.ErrIncomplete, i)
		}
		n, err := io.Copy(out, chunk)
		chunk.Close()
		if err != nil {
			out.Close()
			return nil, 0, err
		}
		total += n
	}

	if total != session.TotalSize {
		out.Close()
		return nil, 0, fmt.Errorf("%w: assembled %d bytes, expected %d", apperr.ErrInvalidArgument, total, session.TotalSize)
	}

	if _, err := out.Seek(0, io.SeekStart); err != nil {
		out.Close()
		return nil, 0, err
	}
	return out, total, nil
}

// cleanup removes the session's rows and scratch files.
func (s *SessionService) cleanup(session *models.UploadSession) {
	if err := s.db.Where("session_id = ?", session.ID).Delete(&models.UploadChunk{}).Error; err != nil {
		logger.Warn("session_chunk_cleanup_failed", map[string]interface{}{"session_id": session.ID.String()})
	}
	if err := s.db.Delete(&models.UploadSession{}, "id = ?", session.ID).Error; err != nil {
		logger.Warn("session_cleanup_failed", map[string]interface{}{"session_id": session.ID.String()})
	}
	if err := s.local.RemoveSession(session.ID); err != nil {
		logger.Warn("session_scratch_cleanup_failed", map[string]interface{}{"session_id": session.ID.String()})
	}
}

// ReapExpired removes every expired session and its scratch data.
func (s *SessionService) ReapExpired() int {
	var sessions []models.UploadSession
	if err := s.db.Where("expires_at < ?", time.Now()).Find(&sessions).Error; err != nil {
		logger.Error("session_reap_query_failed", err, nil)
		return 0
	}
	for i := range sessions {
		s.cleanup(&sessions[i])
	}
	if len(sessions) > 0 {
		logger.Info("upload_sessions_reaped", map[string]interface{}{"count": len(sessions)})
	}
	return len(sessions)
}

// StartReaper reaps expired sessions on a ticker until stop is closed.
func (s *SessionService) StartReaper(stop <-chan struct{}) {
	if s.reap <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(s.reap)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.ReapExpired()
			case <-stop:
				return
			}
		}
	}()
}
