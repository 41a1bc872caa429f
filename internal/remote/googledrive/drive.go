package googledrive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/havenportal/drivesync/internal/remote"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const folderMimeType = "application/vnd.google-apps.folder"

// defaultUploadEndpoint is where resumable upload sessions are opened. The
// drive/v3 client only exposes resumable uploads that it drives itself, so
// session creation goes through a plain HTTP POST and the Location header.
const defaultUploadEndpoint = "https://www.googleapis.com/upload/drive/v3/files"

// Client implements remote.Storage against the Google Drive v3 API.
type Client struct {
	service        *drive.Service
	httpClient     *http.Client
	uploadEndpoint string
}

// Option customizes a Client.
type Option func(*Client)

// WithUploadEndpoint overrides the resumable-session endpoint. Used by tests
// pointing at a fake Drive server.
func WithUploadEndpoint(url string) Option {
	return func(c *Client) { c.uploadEndpoint = url }
}

// New creates a Drive-backed Client. httpClient must be authenticated with
// user credentials (an oauth2 client); extra ClientOptions are forwarded to
// the Drive service, which lets tests redirect the API base URL.
func New(ctx context.Context, httpClient *http.Client, opts []option.ClientOption, clientOpts ...Option) (*Client, error) {
	svcOpts := append([]option.ClientOption{option.WithHTTPClient(httpClient)}, opts...)
	srv, err := drive.NewService(ctx, svcOpts...)
	if err != nil {
		return nil, fmt.Errorf("unable to build Drive service: %w", err)
	}
	c := &Client{
		service:        srv,
		httpClient:     httpClient,
		uploadEndpoint: defaultUploadEndpoint,
	}
	for _, o := range clientOpts {
		o(c)
	}
	return c, nil
}

// escapeQuery escapes single quotes for use inside a Drive query literal.
func escapeQuery(s string) string {
	return strings.ReplaceAll(s, `'`, `\'`)
}

func opError(op string, err error) error {
	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		return &remote.OpError{Op: op, StatusCode: gErr.Code, Err: err}
	}
	return &remote.OpError{Op: op, Err: err}
}

func isNotFound(err error) bool {
	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		return gErr.Code == http.StatusNotFound
	}
	return false
}

// FindOrCreateFolder looks a folder up by exact name under parentID and
// creates it when absent. A concurrent first-time call can still create a
// duplicate on Drive; this is a known weakness of find-then-create.
func (c *Client) FindOrCreateFolder(ctx context.Context, name, parentID string) (string, error) {
	q := fmt.Sprintf("name = '%s' and '%s' in parents and mimeType = '%s' and trashed = false",
		escapeQuery(name), escapeQuery(parentID), folderMimeType)

	r, err := c.service.Files.List().
		Q(q).
		Fields("files(id)").
		PageSize(1).
		Context(ctx).
		Do()
	if err != nil {
		return "", opError("drive.FindFolder", err)
	}
	if len(r.Files) > 0 {
		return r.Files[0].Id, nil
	}

	f := &drive.File{
		Name:     name,
		MimeType: folderMimeType,
		Parents:  []string{parentID},
	}
	res, err := c.service.Files.Create(f).
		Fields("id").
		Context(ctx).
		Do()
	if err != nil {
		return "", opError("drive.CreateFolder", err)
	}
	return res.Id, nil
}

// UploadSmall uploads data through this server with a multipart envelope.
func (c *Client) UploadSmall(ctx context.Context, folderID, name, contentType string, data []byte) (*remote.Object, error) {
	f := &drive.File{
		Name:    name,
		Parents: []string{folderID},
	}
	res, err := c.service.Files.Create(f).
		Media(bytes.NewReader(data), googleapi.ContentType(contentType)).
		Fields("id, name, mimeType, size, createdTime").
		Context(ctx).
		Do()
	if err != nil {
		return nil, opError("drive.UploadSmall", err)
	}
	return toObject(res), nil
}

// CreateResumableSession opens an upload session and returns its URI. The
// caller streams bytes to the URI directly; the server never holds them.
func (c *Client) CreateResumableSession(ctx context.Context, folderID, name, contentType string) (string, error) {
	meta := map[string]any{
		"name":    name,
		"parents": []string{folderID},
	}
	body, err := json.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("marshal session metadata: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.uploadEndpoint+"?uploadType=resumable", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build session request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")
	if contentType != "" {
		req.Header.Set("X-Upload-Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &remote.OpError{Op: "drive.CreateResumableSession", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &remote.OpError{
			Op:         "drive.CreateResumableSession",
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("backend rejected session creation"),
		}
	}

	sessionURI := resp.Header.Get("Location")
	if sessionURI == "" {
		return "", &remote.OpError{
			Op:  "drive.CreateResumableSession",
			Err: fmt.Errorf("no session URI in response"),
		}
	}
	return sessionURI, nil
}

// Download streams an object's content along with its content type and size.
func (c *Client) Download(ctx context.Context, remoteID string) (*remote.Download, error) {
	meta, err := c.service.Files.Get(remoteID).
		SupportsAllDrives(true).
		Fields("id, mimeType, size").
		Context(ctx).
		Do()
	if err != nil {
		if isNotFound(err) {
			return nil, remote.ErrNotFound
		}
		return nil, opError("drive.GetMetadata", err)
	}

	resp, err := c.service.Files.Get(remoteID).
		SupportsAllDrives(true).
		Context(ctx).
		Download()
	if err != nil {
		if isNotFound(err) {
			return nil, remote.ErrNotFound
		}
		return nil, opError("drive.Download", err)
	}

	return &remote.Download{
		Body:        resp.Body,
		ContentType: meta.MimeType,
		Size:        meta.Size,
	}, nil
}

// Delete removes an object. An object already gone counts as success.
func (c *Client) Delete(ctx context.Context, remoteID string) error {
	err := c.service.Files.Delete(remoteID).
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil && !isNotFound(err) {
		return opError("drive.Delete", err)
	}
	return nil
}

// ListFolder returns every non-folder object directly inside folderID,
// paginating until the listing is exhausted.
func (c *Client) ListFolder(ctx context.Context, folderID string) ([]remote.Object, error) {
	q := fmt.Sprintf("'%s' in parents and trashed = false and mimeType != '%s'",
		escapeQuery(folderID), folderMimeType)
	fields := googleapi.Field("nextPageToken, files(id, name, mimeType, size, createdTime)")

	objects := []remote.Object{}
	pageToken := ""
	for {
		call := c.service.Files.List().
			Q(q).
			Fields(fields).
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		r, err := call.Do()
		if err != nil {
			return nil, opError("drive.ListFolder", err)
		}
		for _, f := range r.Files {
			objects = append(objects, *toObject(f))
		}
		if r.NextPageToken == "" {
			return objects, nil
		}
		pageToken = r.NextPageToken
	}
}

func toObject(f *drive.File) *remote.Object {
	created, _ := time.Parse(time.RFC3339, f.CreatedTime)
	return &remote.Object{
		RemoteID:    f.Id,
		Name:        f.Name,
		ContentType: f.MimeType,
		Size:        f.Size,
		CreatedAt:   created,
	}
}
