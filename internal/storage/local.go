package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// LocalStore manages the on-disk blob tier and the scratch area for in-flight
// chunked uploads. Blobs live at {blobDir}/{blobID}/{filename}, chunks at
// {scratchDir}/{sessionID}/chunk_{index}.
type LocalStore struct {
	blobDir    string
	scratchDir string
}

func NewLocalStore(blobDir, scratchDir string) (*LocalStore, error) {
	for _, dir := range []string{blobDir, scratchDir} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("creating storage dir %s: %w", dir, err)
		}
	}
	return &LocalStore{blobDir: blobDir, scratchDir: scratchDir}, nil
}

func (s *LocalStore) BlobPath(blobID uuid.UUID, filename string) string {
	return filepath.Join(s.blobDir, blobID.String(), filepath.Base(filename))
}

// CreateBlob opens the blob file for writing, creating the blob directory.
func (s *LocalStore) CreateBlob(blobID uuid.UUID, filename string) (*os.File, string, error) {
	dir := filepath.Join(s.blobDir, blobID.String())
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, "", err
	}
	path := filepath.Join(dir, filepath.Base(filename))
	f, err := os.Create(path)
	if err != nil {
		return nil, "", err
	}
	return f, path, nil
}

func (s *LocalStore) OpenBlob(path string) (*os.File, error) {
	return os.Open(path)
}

// RemoveBlob deletes the blob's whole directory.
func (s *LocalStore) RemoveBlob(blobID uuid.UUID) error {
	return os.RemoveAll(filepath.Join(s.blobDir, blobID.String()))
}

func (s *LocalStore) chunkPath(sessionID uuid.UUID, index int) string {
	return filepath.Join(s.scratchDir, sessionID.String(), fmt.Sprintf("chunk_%d", index))
}

// WriteChunk stores one chunk of a session. Rewriting an existing index
// overwrites it, which keeps retried chunk uploads idempotent.
func (s *LocalStore) WriteChunk(sessionID uuid.UUID, index int, r io.Reader) (int64, error) {
	dir := filepath.Join(s.scratchDir, sessionID.String())
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return 0, err
	}

	tmp, err := os.CreateTemp(dir, "chunk_*")
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(tmp, r)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return 0, err
	}
	if err := os.Rename(tmp.Name(), s.chunkPath(sessionID, index)); err != nil {
		os.Remove(tmp.Name())
		return 0, err
	}
	return n, nil
}

func (s *LocalStore) OpenChunk(sessionID uuid.UUID, index int) (*os.File, error) {
	return os.Open(s.chunkPath(sessionID, index))
}

// AssemblePath is where a finalized session's chunks are concatenated before
// the assembled file enters the normal upload path.
func (s *LocalStore) AssemblePath(sessionID uuid.UUID) string {
	return filepath.Join(s.scratchDir, sessionID.String(), "assembled")
}

// RemoveSession deletes all scratch data for a session.
func (s *LocalStore) RemoveSession(sessionID uuid.UUID) error {
	return os.RemoveAll(filepath.Join(s.scratchDir, sessionID.String()))
}
