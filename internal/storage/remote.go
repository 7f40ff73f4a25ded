package storage

import (
	"context"
	"io"
)

// RemoteBlobStore is the remote tier behind blob migration. Implementations
// must treat object names as opaque keys.
type RemoteBlobStore interface {
	Upload(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) error
	Download(ctx context.Context, objectName string) (io.ReadCloser, int64, error)
	Delete(ctx context.Context, objectName string) error
}
