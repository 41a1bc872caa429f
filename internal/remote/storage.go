package remote

import (
	"context"
	"io"
	"time"
)

// Object describes a file stored on the remote backend.
type Object struct {
	RemoteID    string    `json:"remoteId"`
	Name        string    `json:"name"`
	ContentType string    `json:"contentType"`
	Size        int64     `json:"size"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Download is a streamed remote object. The caller owns Body and must close
// it; aborting a proxied transfer closes the upstream read.
type Download struct {
	Body        io.ReadCloser
	ContentType string
	Size        int64
}

// Storage defines the interface for interacting with the remote object
// storage backend. This abstraction keeps the ledger, broker and reconciler
// independent of the concrete provider and testable against an in-memory fake.
//
// No operation retries automatically; failures carry the operation name and
// HTTP status via OpError so callers can decide their own retry policy.
type Storage interface {
	// FindOrCreateFolder returns the id of the folder with the given name
	// under parent, creating it when absent. Concurrent first-time calls for
	// the same name can race and create duplicates on the backend; callers
	// that care should serialize per name.
	FindOrCreateFolder(ctx context.Context, name, parentID string) (string, error)

	// UploadSmall performs a synchronous server-mediated multipart upload.
	// Intended for small payloads such as logos, never for client files.
	UploadSmall(ctx context.Context, folderID, name, contentType string, data []byte) (*Object, error)

	// CreateResumableSession asks the backend for an upload session and
	// returns its opaque URI. The caller PUTs bytes to that URI directly;
	// no bytes transit this process.
	CreateResumableSession(ctx context.Context, folderID, name, contentType string) (string, error)

	// Download streams an object's content.
	Download(ctx context.Context, remoteID string) (*Download, error)

	// Delete removes an object. Absence on the backend counts as success.
	Delete(ctx context.Context, remoteID string) error

	// ListFolder returns every non-folder object directly inside folderID,
	// following pagination until the listing is exhausted.
	ListFolder(ctx context.Context, folderID string) ([]Object, error)
}
