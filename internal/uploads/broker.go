// Package uploads brokers direct-to-Drive uploads: it hands out one-time
// resumable session URIs and records metadata once the client confirms
// completion. File bytes never transit this process.
package uploads

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/havenportal/drivesync/internal/activity"
	"github.com/havenportal/drivesync/internal/ledger"
	"github.com/havenportal/drivesync/internal/model"
	"github.com/havenportal/drivesync/internal/remote"
	"github.com/havenportal/drivesync/internal/store"
)

var (
	// ErrScopeNotSyncable is returned when the target project has no Drive
	// folder provisioned.
	ErrScopeNotSyncable = errors.New("uploads: scope has no drive folder")

	// ErrSessionFailed is returned when the backend rejects session creation.
	ErrSessionFailed = errors.New("uploads: upload session creation failed")
)

// Folder names under the portal's base folder.
const (
	generalFolderName = "General"
	assetsFolderName  = "Assets"
)

// Broker issues upload handles and finalizes metadata.
type Broker struct {
	store          store.Store
	remotes        remote.Provider
	ledger         *ledger.Ledger
	sink           activity.Sink
	logger         *slog.Logger
	baseFolderName string
}

func NewBroker(st store.Store, remotes remote.Provider, lgr *ledger.Ledger, sink activity.Sink, logger *slog.Logger, baseFolderName string) *Broker {
	return &Broker{
		store:          st,
		remotes:        remotes,
		ledger:         lgr,
		sink:           sink,
		logger:         logger,
		baseFolderName: baseFolderName,
	}
}

// Session is a one-time upload handle. The caller PUTs bytes to SessionURI
// directly against the backend; no server-side session state is kept.
type Session struct {
	SessionURI string `json:"sessionUri"`
	FolderID   string `json:"folderId"`
}

// RequestSession resolves the target folder for the scope and obtains a
// resumable session URI. projectID empty targets the general pool.
func (b *Broker) RequestSession(ctx context.Context, projectID, fileName, contentType string) (*Session, error) {
	storage, err := b.remotes.Storage(ctx)
	if err != nil {
		return nil, err
	}

	folderID, err := b.resolveFolder(ctx, storage, projectID)
	if err != nil {
		return nil, err
	}

	uri, err := storage.CreateResumableSession(ctx, folderID, fileName, contentType)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionFailed, err)
	}

	b.logger.Info("upload session issued", "scope", projectID, "name", fileName)
	return &Session{SessionURI: uri, FolderID: folderID}, nil
}

// Confirmation is what the caller posts back once the direct upload finished.
type Confirmation struct {
	ProjectID   string `json:"projectId"`
	RemoteID    string `json:"remoteId"`
	FileName    string `json:"fileName"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
	UploaderID  string `json:"-"`
}

// Confirm records the completed upload in the version ledger. Confirming the
// same remote object twice within a scope is a no-op that returns the
// existing entity rather than creating a duplicate version.
func (b *Broker) Confirm(ctx context.Context, c Confirmation) (*model.File, error) {
	if existing, err := b.store.Files().GetByRemoteID(ctx, c.ProjectID, c.RemoteID); err == nil {
		b.logger.Info("duplicate completion ignored", "remote", c.RemoteID, "file", existing.ID)
		return existing, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	file, err := b.ledger.RegisterUpload(ctx, ledger.Registration{
		ProjectID:   c.ProjectID,
		FileName:    c.FileName,
		RemoteID:    c.RemoteID,
		ContentType: c.ContentType,
		Size:        c.Size,
		UploaderID:  c.UploaderID,
	})
	if err != nil {
		return nil, err
	}

	b.sink.Record(ctx, activity.EventFileUploaded,
		fmt.Sprintf("uploaded %s (v%d)", file.Name, file.Version), c.UploaderID)
	return file, nil
}

// UploadAsset pushes a small payload (e.g. a company logo) through the
// server into the shared Assets folder with a multipart upload. Not for
// client files; those go through sessions.
func (b *Broker) UploadAsset(ctx context.Context, name, contentType string, data []byte) (*remote.Object, error) {
	storage, err := b.remotes.Storage(ctx)
	if err != nil {
		return nil, err
	}
	baseID, err := b.ensureBaseFolder(ctx, storage)
	if err != nil {
		return nil, err
	}
	folderID, err := storage.FindOrCreateFolder(ctx, assetsFolderName, baseID)
	if err != nil {
		return nil, err
	}
	return storage.UploadSmall(ctx, folderID, name, contentType, data)
}

// ProvisionProjectFolder creates (or finds) the project's Drive folder under
// the portal base and records its id, making the scope syncable.
func (b *Broker) ProvisionProjectFolder(ctx context.Context, projectID string) (string, error) {
	project, err := b.store.Projects().Get(ctx, projectID)
	if err != nil {
		return "", err
	}
	if project.DriveFolderID != "" {
		return project.DriveFolderID, nil
	}

	storage, err := b.remotes.Storage(ctx)
	if err != nil {
		return "", err
	}
	baseID, err := b.ensureBaseFolder(ctx, storage)
	if err != nil {
		return "", err
	}
	folderID, err := storage.FindOrCreateFolder(ctx, project.Name, baseID)
	if err != nil {
		return "", err
	}
	if err := b.store.Projects().SetDriveFolder(ctx, projectID, folderID); err != nil {
		return "", err
	}
	b.logger.Info("project folder provisioned", "project", projectID, "folder", folderID)
	return folderID, nil
}

func (b *Broker) resolveFolder(ctx context.Context, storage remote.Storage, projectID string) (string, error) {
	if projectID == "" {
		baseID, err := b.ensureBaseFolder(ctx, storage)
		if err != nil {
			return "", err
		}
		return storage.FindOrCreateFolder(ctx, generalFolderName, baseID)
	}

	project, err := b.store.Projects().Get(ctx, projectID)
	if err != nil {
		return "", err
	}
	if project.DriveFolderID == "" {
		return "", ErrScopeNotSyncable
	}
	return project.DriveFolderID, nil
}

// ensureBaseFolder lazily provisions the portal's base folder on Drive and
// caches its id on the credential record.
func (b *Broker) ensureBaseFolder(ctx context.Context, storage remote.Storage) (string, error) {
	cred, err := b.store.Credentials().Get(ctx)
	if err != nil {
		return "", err
	}
	if cred.BaseFolderID != "" {
		return cred.BaseFolderID, nil
	}
	baseID, err := storage.FindOrCreateFolder(ctx, b.baseFolderName, "root")
	if err != nil {
		return "", err
	}
	cred.BaseFolderID = baseID
	if err := b.store.Credentials().Save(ctx, cred); err != nil {
		return "", err
	}
	return baseID, nil
}
