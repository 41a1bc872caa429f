// Package syncer reconciles the local metadata ledger against the
// authoritative Drive folder contents: files added, removed or renamed
// out-of-band are reflected back into the ledger.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/havenportal/drivesync/internal/activity"
	"github.com/havenportal/drivesync/internal/auth"
	"github.com/havenportal/drivesync/internal/ledger"
	"github.com/havenportal/drivesync/internal/remote"
	"github.com/havenportal/drivesync/internal/store"
)

// debounce bounds remote call volume: a pass is skipped when the previous
// one completed less than this long ago.
const debounce = 30 * time.Second

// generalFolderName matches the broker's orphan-pool folder.
const generalFolderName = "General"

// Result reports one sync trigger. A skipped pass is a no-op signal, not an
// error.
type Result struct {
	Synced  bool   `json:"synced"`
	Added   int    `json:"added"`
	Removed int    `json:"removed"`
	Renamed int    `json:"renamed"`
	Reason  string `json:"reason,omitempty"`
}

func (r Result) changed() int { return r.Added + r.Removed + r.Renamed }

// Syncer runs reconciliation passes.
type Syncer struct {
	store   store.Store
	remotes remote.Provider
	ledger  *ledger.Ledger
	sink    activity.Sink
	logger  *slog.Logger
	locks   *scopeLocks
	now     func() time.Time
}

func New(st store.Store, remotes remote.Provider, lgr *ledger.Ledger, sink activity.Sink, logger *slog.Logger) *Syncer {
	return &Syncer{
		store:   st,
		remotes: remotes,
		ledger:  lgr,
		sink:    sink,
		logger:  logger,
		locks:   newScopeLocks(),
		now:     time.Now,
	}
}

// Sync reconciles one scope (projectID empty for the general pool). It
// returns Synced:false without error when the scope has no Drive folder,
// when a pass completed inside the debounce window, or when no Drive account
// is connected. A mid-pass failure does not roll back mutations already
// applied; each add, delete and rename is independently idempotent, so the
// pass can simply be re-triggered.
func (s *Syncer) Sync(ctx context.Context, projectID string) (Result, error) {
	lock := s.locks.get(projectID)
	lock.Lock()
	defer lock.Unlock()

	last, err := s.store.Cursors().Get(ctx, projectID)
	if err != nil {
		return Result{}, err
	}
	if s.now().Sub(last) < debounce {
		return Result{Reason: "debounced"}, nil
	}

	storage, err := s.remotes.Storage(ctx)
	if errors.Is(err, auth.ErrNotConnected) {
		return Result{Reason: "not connected"}, nil
	}
	if err != nil {
		return Result{}, err
	}

	folderID, reason, err := s.resolveFolder(ctx, storage, projectID)
	if err != nil {
		return Result{}, err
	}
	if folderID == "" {
		return Result{Reason: reason}, nil
	}

	listing, err := storage.ListFolder(ctx, folderID)
	if err != nil {
		return Result{}, err
	}
	local, err := s.store.Files().ListByScope(ctx, projectID)
	if err != nil {
		return Result{}, err
	}

	remoteByID := map[string]remote.Object{}
	for _, o := range listing {
		remoteByID[o.RemoteID] = o
	}
	localByRemoteID := map[string]bool{}
	for _, f := range local {
		if f.RemoteID != "" {
			localByRemoteID[f.RemoteID] = true
		}
	}

	result := Result{Synced: true}

	// Additions first: objects Drive knows that the ledger does not. If the
	// backend assigned a fresh id on a rename, this pass sees a deletion
	// plus an addition with a bumped version; accepted approximation.
	for _, o := range listing {
		if localByRemoteID[o.RemoteID] {
			continue
		}
		_, err := s.ledger.RegisterUpload(ctx, ledger.Registration{
			ProjectID:       projectID,
			FileName:        o.Name,
			RemoteID:        o.RemoteID,
			ContentType:     o.ContentType,
			Size:            o.Size,
			SyncedFromDrive: true,
		})
		if err != nil {
			s.logger.Error("sync addition failed", "scope", projectID, "remote", o.RemoteID, "error", err)
			continue
		}
		result.Added++
	}

	for _, f := range local {
		if f.RemoteID == "" {
			continue
		}
		o, present := remoteByID[f.RemoteID]
		switch {
		case !present:
			// The remote object is already gone; only the record goes.
			if err := s.store.Files().Delete(ctx, f.ID); err != nil {
				s.logger.Error("sync deletion failed", "scope", projectID, "file", f.ID, "error", err)
				continue
			}
			result.Removed++
		case o.Name != f.Name:
			// Metadata correction, not a content change: no version bump.
			if err := s.store.Files().UpdateName(ctx, f.ID, o.Name, o.Name); err != nil {
				s.logger.Error("sync rename failed", "scope", projectID, "file", f.ID, "error", err)
				continue
			}
			result.Renamed++
		}
	}

	// Stamped unconditionally, even for a pass that changed nothing.
	if err := s.store.Cursors().Set(ctx, projectID, s.now()); err != nil {
		return result, err
	}

	if result.changed() > 0 {
		s.sink.Record(ctx, activity.EventFileSynced,
			fmt.Sprintf("sync applied %d additions, %d deletions, %d renames", result.Added, result.Removed, result.Renamed), "")
	}
	s.logger.Info("sync pass completed",
		"scope", projectID,
		"added", result.Added,
		"removed", result.Removed,
		"renamed", result.Renamed,
	)
	return result, nil
}

// resolveFolder returns the scope's Drive folder id, or an empty id with a
// skip reason when the scope has no backing container.
func (s *Syncer) resolveFolder(ctx context.Context, storage remote.Storage, projectID string) (string, string, error) {
	if projectID == "" {
		cred, err := s.store.Credentials().Get(ctx)
		if errors.Is(err, store.ErrNotFound) || (err == nil && cred.BaseFolderID == "") {
			return "", "no base folder provisioned", nil
		}
		if err != nil {
			return "", "", err
		}
		folderID, err := storage.FindOrCreateFolder(ctx, generalFolderName, cred.BaseFolderID)
		if err != nil {
			return "", "", err
		}
		return folderID, "", nil
	}

	project, err := s.store.Projects().Get(ctx, projectID)
	if err != nil {
		return "", "", err
	}
	if project.DriveFolderID == "" {
		return "", "scope has no drive folder", nil
	}
	return project.DriveFolderID, "", nil
}
