// Package store defines the metadata store consumed by the ledger, broker
// and reconciler, with a Postgres implementation for production and an
// in-memory implementation for tests and local development.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/havenportal/drivesync/internal/model"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("store: record not found")

// Credentials holds the singleton Drive credential record.
type Credentials interface {
	// Get returns the credential record, or ErrNotFound when the portal has
	// never been connected (or has been disconnected).
	Get(ctx context.Context) (*model.DriveCredential, error)

	// Save upserts the singleton record.
	Save(ctx context.Context, cred *model.DriveCredential) error

	// Delete removes the record. Deleting an absent record is not an error.
	Delete(ctx context.Context) error
}

// Files is the ledger's persistence. Name filtering is case-insensitive and
// version-ordered, which the ledger's grouping rules depend on.
type Files interface {
	Insert(ctx context.Context, f *model.File) error
	GetByID(ctx context.Context, id string) (*model.File, error)

	// GetByRemoteID looks a file up by its remote object id within a scope.
	// Returns ErrNotFound when no such file exists.
	GetByRemoteID(ctx context.Context, projectID, remoteID string) (*model.File, error)

	// ListByScope returns every file in the scope (projectID empty for the
	// general pool), newest first.
	ListByScope(ctx context.Context, projectID string) ([]*model.File, error)

	// ListByScopeAndName returns files in the scope whose name matches
	// case-insensitively, ordered by version descending.
	ListByScopeAndName(ctx context.Context, projectID, name string) ([]*model.File, error)

	// ListGroup returns all members of a version group, version descending.
	ListGroup(ctx context.Context, groupID string) ([]*model.File, error)

	// UpdateName corrects the name fields in place without touching version
	// or group (reconciler rename handling).
	UpdateName(ctx context.Context, id, name, originalName string) error

	// SetGroup stamps a group id onto an existing file.
	SetGroup(ctx context.Context, id, groupID string) error

	// SetCurrent flips the is-current marker.
	SetCurrent(ctx context.Context, id string, current bool) error

	Delete(ctx context.Context, id string) error
}

// Projects provides scope lookup and Drive folder provisioning.
type Projects interface {
	Get(ctx context.Context, id string) (*model.Project, error)
	Save(ctx context.Context, p *model.Project) error
	SetDriveFolder(ctx context.Context, id, folderID string) error
}

// Cursors tracks the per-scope last completed reconciliation time. The empty
// scope id is the general pool.
type Cursors interface {
	// Get returns the cursor, or the zero time when no pass has completed.
	Get(ctx context.Context, scopeID string) (time.Time, error)
	Set(ctx context.Context, scopeID string, t time.Time) error
}

// Store bundles the repositories behind one handle.
type Store interface {
	Credentials() Credentials
	Files() Files
	Projects() Projects
	Cursors() Cursors
}
