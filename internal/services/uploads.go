package services

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/Jerit-Baiju/caelium/internal/apperr"
	"github.com/Jerit-Baiju/caelium/internal/config"
	"github.com/Jerit-Baiju/caelium/internal/crypto"
	"github.com/Jerit-Baiju/caelium/internal/models"
	"github.com/Jerit-Baiju/caelium/internal/organizer"
	"github.com/Jerit-Baiju/caelium/internal/storage"
	"github.com/Jerit-Baiju/caelium/pkg/logger"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UploadSource is the origin of a file's bytes. Exactly one concrete type
// per upload: client-provided bytes, a remote URL to fetch, or a bundled
// default asset referenced by name.
type UploadSource interface {
	isUploadSource()
}

// UploadedBytes carries bytes the client sent directly.
type UploadedBytes struct {
	Reader      io.Reader
	Size        int64
	Filename    string
	ContentType string
}

// RemoteURL names a URL to fetch the bytes from.
type RemoteURL struct {
	URL      string
	Filename string
}

// NamedDefaultAsset references a file bundled with the deployment.
type NamedDefaultAsset struct {
	Name string
}

func (UploadedBytes) isUploadSource()     {}
func (RemoteURL) isUploadSource()         {}
func (NamedDefaultAsset) isUploadSource() {}

type UploadOptions struct {
	Encrypt      bool
	Public       bool
	ParentID     *uuid.UUID
	CustomName   string
	AutoOrganize bool
}

// UploadService runs the full ingestion pipeline: resolve the source,
// hash and optionally encrypt the bytes into the local blob tier, record
// blob and entry rows, then hand the blob to the migrator. It also serves
// reads, transparently decrypting and caching remote blobs.
type UploadService struct {
	db       *gorm.DB
	local    *storage.LocalStore
	remote   storage.RemoteBlobStore
	cache    *ReadCache
	dirs     *DirectoryService
	entries  *EntryService
	events   *EventService
	migrator *MigrationService

	assetsDir string
	maxSize   int64
	httpc     *http.Client
}

func NewUploadService(
	db *gorm.DB,
	local *storage.LocalStore,
	remote storage.RemoteBlobStore,
	cache *ReadCache,
	dirs *DirectoryService,
	entries *EntryService,
	events *EventService,
	migrator *MigrationService,
	cfg config.StorageConfig,
) *UploadService {
	return &UploadService{
		db:        db,
		local:     local,
		remote:    remote,
		cache:     cache,
		dirs:      dirs,
		entries:   entries,
		events:    events,
		migrator:  migrator,
		assetsDir: cfg.AssetsDir,
		maxSize:   cfg.MaxUploadSize,
		httpc:     &http.Client{Timeout: 5 * time.Minute},
	}
}

// resolveSource normalizes any UploadSource into bytes plus metadata. The
// returned closer is nil for client-provided readers, which the caller owns.
func (s *UploadService) resolveSource(ctx context.Context, source UploadSource) (io.Reader, io.Closer, int64, string, string, error) {
	switch src := source.(type) {
	case UploadedBytes:
		if src.Filename == "" {
			return nil, nil, 0, "", "", fmt.Errorf("%w: filename is required", apperr.ErrInvalidArgument)
		}
		return src.Reader, nil, src.Size, filepath.Base(src.Filename), src.ContentType, nil

	case RemoteURL:
		parsed, err := url.Parse(src.URL)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
			return nil, nil, 0, "", "", fmt.Errorf("%w: source url must be http or https", apperr.ErrInvalidArgument)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
		if err != nil {
			return nil, nil, 0, "", "", err
		}
		resp, err := s.httpc.Do(req)
		if err != nil {
			return nil, nil, 0, "", "", fmt.Errorf("%w: fetching %s: %v", apperr.ErrUpstreamUnavailable, src.URL, err)
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, nil, 0, "", "", fmt.Errorf("%w: fetching %s: status %d", apperr.ErrUpstreamUnavailable, src.URL, resp.StatusCode)
		}
		filename := src.Filename
		if filename == "" {
			filename = path.Base(parsed.Path)
		}
		if filename == "" || filename == "/" || filename == "." {
			filename = "download"
		}
		return resp.Body, resp.Body, resp.ContentLength, filename, resp.Header.Get("Content-Type"), nil

	case NamedDefaultAsset:
		name := filepath.Base(src.Name)
		if name == "" || name == "." || name == string(filepath.Separator) {
			return nil, nil, 0, "", "", fmt.Errorf("%w: asset name is required", apperr.ErrInvalidArgument)
		}
		f, err := os.Open(filepath.Join(s.assetsDir, name))
		if err != nil {
			return nil, nil, 0, "", "", fmt.Errorf("%w: unknown default asset %q", apperr.ErrNotFound, name)
		}
		stat, err := f.Stat()
		if err != nil {
			f.Close()
			return nil, nil, 0, "", "", err
		}
		return f, f, stat.Size(), name, "", nil

	default:
		return nil, nil, 0, "", "", fmt.Errorf("%w: unknown upload source", apperr.ErrInvalidArgument)
	}
}

func detectMime(filename, declared string) string {
	if declared != "" {
		return declared
	}
	if byExt := mime.TypeByExtension(filepath.Ext(filename)); byExt != "" {
		return byExt
	}
	return "application/octet-stream"
}

// Upload ingests one file and returns its entry. The blob enters the local
// tier in pending status and is queued for remote migration.
func (s *UploadService) Upload(ctx context.Context, ownerID uuid.UUID, source UploadSource, opts UploadOptions) (*models.FileEntry, error) {
	reader, closer, declaredSize, filename, contentType, err := s.resolveSource(ctx, source)
	if err != nil {
		return nil, err
	}
	if closer != nil {
		defer closer.Close()
	}

	// Only client-provided bytes are ever encrypted at rest.
	switch source.(type) {
	case RemoteURL, NamedDefaultAsset:
		opts.Encrypt = false
	}

	if s.maxSize > 0 && declaredSize > s.maxSize {
		return nil, fmt.Errorf("%w: file exceeds the %d byte upload limit", apperr.ErrInvalidArgument, s.maxSize)
	}

	name := opts.CustomName
	if name == "" {
		name = filename
	}
	name, err = validateName(name)
	if err != nil {
		return nil, err
	}

	parentID := opts.ParentID
	if parentID != nil {
		if _, err := s.dirs.Get(ownerID, *parentID); err != nil {
			return nil, err
		}
	}
	if opts.AutoOrganize {
		if parts := organizer.DirectoryPath(name); len(parts) > 0 {
			parentID, err = s.dirs.ResolveOrCreatePath(ownerID, parentID, parts)
			if err != nil {
				return nil, err
			}
		}
	}

	blobID := uuid.New()
	blob, err := s.writeBlob(blobID, ownerID, filename, reader, declaredSize, detectMime(filename, contentType), opts)
	if err != nil {
		s.local.RemoveBlob(blobID)
		return nil, err
	}

	category, _ := organizer.Classify(name)
	entry := &models.FileEntry{
		Name:       name,
		OwnerID:    ownerID,
		ParentID:   parentID,
		BlobID:     &blob.ID,
		Category:   category,
		CapturedAt: organizer.ExtractDate(name, time.Now()),
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(blob).Error; err != nil {
			return err
		}
		return s.entries.createEntry(tx, entry)
	})
	if err != nil {
		s.local.RemoveBlob(blobID)
		return nil, err
	}
	entry.Blob = blob

	if s.events != nil {
		s.events.Emit(EventFileUploaded, &ownerID, &entry.ID, map[string]interface{}{
			"filename": name,
			"size":     blob.Size,
		})
	}
	if s.migrator != nil {
		s.migrator.Enqueue(blob.ID)
	}

	logger.InfoWithUser(ownerID.String(), "file_uploaded", map[string]interface{}{
		"entry_id":  entry.ID.String(),
		"blob_id":   blob.ID.String(),
		"filename":  name,
		"size":      blob.Size,
		"encrypted": blob.IsEncrypted,
	})
	return entry, nil
}

// writeBlob streams the source into the local tier, hashing the plaintext
// and applying the cipher mode chosen by size. Small encrypted files use
// whole-buffer GCM, large ones chunked CTR.
func (s *UploadService) writeBlob(blobID, ownerID uuid.UUID, filename string, reader io.Reader, declaredSize int64, mimeType string, opts UploadOptions) (*models.MediaBlob, error) {
	storedName := filename
	if opts.Encrypt {
		storedName = "encrypted"
	}

	f, localPath, err := s.local.CreateBlob(blobID, storedName)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	hasher := sha256.New()
	limit := s.maxSize
	if limit <= 0 {
		limit = 1 << 62
	}
	limited := io.LimitReader(reader, limit+1)
	source := io.TeeReader(limited, hasher)

	blob := &models.MediaBlob{
		BaseModel:  models.BaseModel{ID: blobID},
		Filename:   filename,
		MimeType:   mimeType,
		OwnerID:    ownerID,
		Public:     opts.Public,
		Status:     models.BlobStatusPending,
		LocalPath:  &localPath,
		UploadedAt: time.Now(),
		AccessedAt: time.Now(),
	}

	switch {
	case !opts.Encrypt:
		n, err := io.Copy(f, source)
		if err != nil {
			return nil, err
		}
		if n > limit {
			return nil, fmt.Errorf("%w: file exceeds the %d byte upload limit", apperr.ErrInvalidArgument, limit)
		}
		blob.Size = n
		blob.CipherMode = models.CipherModeNone

	default:
		key, err := crypto.GenerateKey()
		if err != nil {
			return nil, err
		}
		nonce, err := crypto.GenerateNonce()
		if err != nil {
			return nil, err
		}
		blob.IsEncrypted = true
		blob.EncryptionKey = key
		blob.EncryptionNonce = nonce

		if declaredSize >= 0 && declaredSize <= crypto.WholeBufferLimit {
			plaintext, err := io.ReadAll(source)
			if err != nil {
				return nil, err
			}
			if int64(len(plaintext)) > limit {
				return nil, fmt.Errorf("%w: file exceeds the %d byte upload limit", apperr.ErrInvalidArgument, limit)
			}
			ciphertext, err := crypto.EncryptGCM(plaintext, key, nonce)
			if err != nil {
				return nil, err
			}
			if _, err := f.Write(ciphertext); err != nil {
				return nil, err
			}
			blob.Size = int64(len(plaintext))
			encSize := int64(len(ciphertext))
			blob.EncryptedSize = &encSize
			blob.CipherMode = models.CipherModeGCM
		} else {
			n, err := crypto.EncryptCTR(f, source, key, nonce)
			if err != nil {
				return nil, err
			}
			if n > limit {
				return nil, fmt.Errorf("%w: file exceeds the %d byte upload limit", apperr.ErrInvalidArgument, limit)
			}
			blob.Size = n
			encSize := n
			blob.EncryptedSize = &encSize
			blob.CipherMode = models.CipherModeCTR
		}
	}

	if err := f.Sync(); err != nil {
		return nil, err
	}
	blob.ContentHash = hex.EncodeToString(hasher.Sum(nil))
	return blob, nil
}

// Download returns the decrypted plaintext stream for an entry, honoring
// public-blob access for non-owners. Remote blobs are served through the
// read cache.
func (s *UploadService) Download(ctx context.Context, requester *uuid.UUID, entryID uuid.UUID) (io.ReadCloser, *models.FileEntry, error) {
	entry, err := s.entries.ResolveForRead(requester, entryID)
	if err != nil {
		return nil, nil, err
	}
	blob := entry.Blob

	rc, err := s.openBlob(ctx, blob)
	if err != nil {
		return nil, nil, err
	}

	s.entries.TouchAccessed(entry)
	return rc, entry, nil
}

func (s *UploadService) openBlob(ctx context.Context, blob *models.MediaBlob) (io.ReadCloser, error) {
	if blob.LocalPath != nil {
		f, err := s.local.OpenBlob(*blob.LocalPath)
		if err != nil {
			return nil, err
		}
		return s.decryptStream(f, blob)
	}

	if blob.RemoteObject == nil {
		return nil, apperr.ErrNotFound
	}

	if s.cache != nil {
		if rc, ok := s.cache.Open(blob.ID.String()); ok {
			return rc, nil
		}
	}

	body, _, err := s.remote.Download(ctx, *blob.RemoteObject)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrUpstreamUnavailable, err)
	}

	// GCM decryption buffers the whole plaintext anyway, so the cache entry
	// can be written before the first byte is served.
	if blob.CipherMode == models.CipherModeGCM {
		defer body.Close()
		ciphertext, err := io.ReadAll(body)
		if err != nil {
			return nil, err
		}
		plaintext, err := crypto.DecryptGCM(ciphertext, blob.EncryptionKey, blob.EncryptionNonce)
		if err != nil {
			return nil, err
		}
		if s.cache != nil {
			if err := s.cache.StoreBytes(blob.ID.String(), plaintext); err != nil {
				logger.Warn("cache_store_failed", map[string]interface{}{"error": err.Error()})
			}
		}
		return io.NopCloser(bytes.NewReader(plaintext)), nil
	}

	plaintext, err := s.decryptStream(body, blob)
	if err != nil {
		return nil, err
	}

	if s.cache == nil {
		return plaintext, nil
	}
	w, err := s.cache.Writer(blob.ID.String())
	if err != nil {
		return plaintext, nil
	}
	return &cachingReader{src: plaintext, staged: w}, nil
}

// decryptStream wraps the raw blob stream with the blob's cipher mode. GCM
// requires the whole ciphertext before a single plaintext byte: tampering
// must be caught before anything is served.
func (s *UploadService) decryptStream(raw io.ReadCloser, blob *models.MediaBlob) (io.ReadCloser, error) {
	if !blob.IsEncrypted {
		return raw, nil
	}

	switch blob.CipherMode {
	case models.CipherModeGCM:
		defer raw.Close()
		ciphertext, err := io.ReadAll(raw)
		if err != nil {
			return nil, err
		}
		plaintext, err := crypto.DecryptGCM(ciphertext, blob.EncryptionKey, blob.EncryptionNonce)
		if err != nil {
			return nil, err
		}
		return io.NopCloser(bytes.NewReader(plaintext)), nil

	case models.CipherModeCTR:
		r, err := crypto.NewCTRReader(raw, blob.EncryptionKey, blob.EncryptionNonce)
		if err != nil {
			raw.Close()
			return nil, err
		}
		return &readCloser{Reader: r, closer: raw}, nil

	default:
		raw.Close()
		return nil, fmt.Errorf("blob %s marked encrypted with cipher mode %q", blob.ID, blob.CipherMode)
	}
}

type readCloser struct {
	io.Reader
	closer io.Closer
}

func (r *readCloser) Close() error { return r.closer.Close() }

// cachingReader tees a plaintext stream into a staged cache entry,
// committing only after a clean EOF so a broken download never caches a
// truncated file.
type cachingReader struct {
	src    io.ReadCloser
	staged *CacheWriter
	eof    bool
	failed bool
}

func (r *cachingReader) Read(p []byte) (int, error) {
	n, err := r.src.Read(p)
	if n > 0 && !r.failed {
		if _, werr := r.staged.Write(p[:n]); werr != nil {
			r.failed = true
		}
	}
	if err == io.EOF {
		r.eof = true
	}
	return n, err
}

func (r *cachingReader) Close() error {
	err := r.src.Close()
	if r.eof && !r.failed {
		if cerr := r.staged.Commit(); cerr != nil {
			logger.Warn("cache_store_failed", map[string]interface{}{"error": cerr.Error()})
		}
	} else {
		r.staged.Abort()
	}
	return err
}
