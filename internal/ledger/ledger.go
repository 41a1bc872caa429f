// Package ledger maintains the local metadata ledger: files grouped by
// logical name into version chains with monotonic version numbers and a
// single current member per chain.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/havenportal/drivesync/internal/activity"
	"github.com/havenportal/drivesync/internal/authz"
	"github.com/havenportal/drivesync/internal/model"
	"github.com/havenportal/drivesync/internal/remote"
	"github.com/havenportal/drivesync/internal/store"
)

// ErrNotAuthorized is returned when the caller may not access the owning scope.
var ErrNotAuthorized = errors.New("ledger: not authorized for scope")

// Ledger implements the version-chain rules over the metadata store.
type Ledger struct {
	store   store.Store
	remotes remote.Provider
	oracle  authz.Oracle
	sink    activity.Sink
	logger  *slog.Logger
	now     func() time.Time
}

func New(st store.Store, remotes remote.Provider, oracle authz.Oracle, sink activity.Sink, logger *slog.Logger) *Ledger {
	return &Ledger{
		store:   st,
		remotes: remotes,
		oracle:  oracle,
		sink:    sink,
		logger:  logger,
		now:     time.Now,
	}
}

// Registration describes one completed upload to record.
type Registration struct {
	ProjectID       string
	FileName        string
	RemoteID        string
	ContentType     string
	Size            int64
	UploaderID      string
	SyncedFromDrive bool
}

// RegisterUpload assigns version and group for a completed upload and
// inserts the file entity.
//
// Name matching is case-insensitive; the stored entity keeps the
// caller-supplied casing, so a chain's members may differ in case. The first
// upload of a name gets version 1 and no group. A second upload bumps the
// version and either reuses the head's group or mints a new one, stamping it
// retroactively onto the head. The new entity becomes the current version;
// previous members are cleared.
func (l *Ledger) RegisterUpload(ctx context.Context, reg Registration) (*model.File, error) {
	existing, err := l.store.Files().ListByScopeAndName(ctx, reg.ProjectID, reg.FileName)
	if err != nil {
		return nil, fmt.Errorf("ledger: name lookup failed: %w", err)
	}

	version := 1
	groupID := ""
	if len(existing) > 0 {
		head := existing[0]
		version = head.Version + 1
		groupID = head.GroupID
		if groupID == "" {
			groupID = uuid.NewString()
			if err := l.store.Files().SetGroup(ctx, head.ID, groupID); err != nil {
				return nil, fmt.Errorf("ledger: failed to stamp group on head: %w", err)
			}
		}
		for _, f := range existing {
			if f.IsCurrent {
				if err := l.store.Files().SetCurrent(ctx, f.ID, false); err != nil {
					return nil, fmt.Errorf("ledger: failed to supersede version %d: %w", f.Version, err)
				}
			}
		}
	}

	now := l.now()
	file := &model.File{
		ID:              uuid.NewString(),
		RemoteID:        reg.RemoteID,
		Name:            reg.FileName,
		OriginalName:    reg.FileName,
		Size:            reg.Size,
		ContentType:     reg.ContentType,
		Version:         version,
		GroupID:         groupID,
		IsCurrent:       true,
		SyncedFromDrive: reg.SyncedFromDrive,
		ProjectID:       reg.ProjectID,
		UploaderID:      reg.UploaderID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := l.store.Files().Insert(ctx, file); err != nil {
		return nil, fmt.Errorf("ledger: failed to insert file: %w", err)
	}

	l.logger.Info("file registered",
		"file", file.ID,
		"name", file.Name,
		"version", file.Version,
		"scope", file.ProjectID,
		"synced", file.SyncedFromDrive,
	)
	return file, nil
}

// Get returns a file after checking the caller against the owning scope.
func (l *Ledger) Get(ctx context.Context, identity, fileID string) (*model.File, error) {
	file, err := l.store.Files().GetByID(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if err := l.authorize(ctx, identity, file.ProjectID); err != nil {
		return nil, err
	}
	return file, nil
}

// ListVersions returns all members of the file's version chain, newest
// version first. A file that was never versioned is a chain of one.
func (l *Ledger) ListVersions(ctx context.Context, identity, fileID string) ([]*model.File, error) {
	file, err := l.Get(ctx, identity, fileID)
	if err != nil {
		return nil, err
	}
	if file.GroupID == "" {
		return []*model.File{file}, nil
	}
	return l.store.Files().ListGroup(ctx, file.GroupID)
}

// Delete removes a file record and best-effort removes the remote object.
// Remote absence counts as success; other remote failures are logged and do
// not undo the local delete.
func (l *Ledger) Delete(ctx context.Context, identity, fileID string) error {
	file, err := l.Get(ctx, identity, fileID)
	if err != nil {
		return err
	}
	if err := l.store.Files().Delete(ctx, fileID); err != nil {
		return err
	}
	if storage, err := l.remotes.Storage(ctx); err != nil {
		l.logger.Warn("remote delete skipped", "file", fileID, "error", err)
	} else if err := storage.Delete(ctx, file.RemoteID); err != nil {
		l.logger.Warn("remote delete failed", "file", fileID, "remote", file.RemoteID, "error", err)
	}
	l.sink.Record(ctx, activity.EventFileDeleted, fmt.Sprintf("deleted %s (v%d)", file.Name, file.Version), identity)
	return nil
}

func (l *Ledger) authorize(ctx context.Context, identity, projectID string) error {
	var project *model.Project
	if projectID != "" {
		p, err := l.store.Projects().Get(ctx, projectID)
		if err != nil {
			return err
		}
		project = p
	}
	if !l.oracle.Allowed(ctx, identity, project) {
		return ErrNotAuthorized
	}
	return nil
}

// GroupSummary is one version chain reduced to its newest member.
type GroupSummary struct {
	Latest       *model.File `json:"latest"`
	VersionCount int         `json:"versionCount"`
}

// LatestPerGroup reduces a flat file list to one entry per version chain.
// Ungrouped files count as singleton chains keyed by their own id. Chains
// are ordered by the latest member's creation time, newest first. Pure
// projection with no side effects; the grouping and ordering contract is
// what the portal's file listings render.
func LatestPerGroup(files []*model.File) []GroupSummary {
	byGroup := map[string]*GroupSummary{}
	order := []string{}
	for _, f := range files {
		key := f.GroupID
		if key == "" {
			key = f.ID
		}
		s, ok := byGroup[key]
		if !ok {
			byGroup[key] = &GroupSummary{Latest: f, VersionCount: 1}
			order = append(order, key)
			continue
		}
		s.VersionCount++
		if f.Version > s.Latest.Version {
			s.Latest = f
		}
	}

	out := make([]GroupSummary, 0, len(order))
	for _, key := range order {
		out = append(out, *byGroup[key])
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Latest.CreatedAt.After(out[j].Latest.CreatedAt)
	})
	return out
}
