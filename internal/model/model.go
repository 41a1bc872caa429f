package model

import "time"

// DriveCredential is the single set of OAuth credentials for the connected
// Google Drive account. At most one record exists; it is replaced on connect,
// mutated in place on refresh, and removed on disconnect.
type DriveCredential struct {
	AccessToken           string    `json:"access_token"`
	EncryptedRefreshToken string    `json:"encrypted_refresh_token"`
	Expiry                time.Time `json:"expiry"`
	AccountEmail          string    `json:"account_email"`
	BaseFolderID          string    `json:"base_folder_id"` // Root folder for the portal
	UpdatedAt             time.Time `json:"updated_at"`
}

// File is one uploaded object tracked by the version ledger.
type File struct {
	ID           string `json:"id"`
	RemoteID     string `json:"remoteId"`
	Name         string `json:"name"`
	OriginalName string `json:"originalName"`
	Size         int64  `json:"size"`
	ContentType  string `json:"contentType"`

	// Version starts at 1 and is monotonic within a group. GroupID stays
	// empty until a second upload of the same logical name turns the file
	// into the head of a version chain.
	Version   int    `json:"version"`
	GroupID   string `json:"groupId,omitempty"`
	IsCurrent bool   `json:"isCurrent"`

	// SyncedFromDrive marks files discovered by the reconciler rather than
	// uploaded through the portal.
	SyncedFromDrive bool `json:"syncedFromDrive"`

	// ProjectID is empty for files in the general (orphan) pool.
	ProjectID  string `json:"projectId,omitempty"`
	UploaderID string `json:"uploaderId,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Project is the scope a file belongs to. DriveFolderID is empty until the
// project's folder has been provisioned on Drive; such projects cannot accept
// direct uploads and cannot be synced.
type Project struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	OwnerID       string    `json:"ownerId"`
	DriveFolderID string    `json:"driveFolderId,omitempty"`
	AccessRules   string    `json:"accessRules,omitempty"` // opaque to this core, evaluated by the authz oracle
	CreatedAt     time.Time `json:"createdAt"`
}
