// Package memory provides an in-memory remote.Storage used by tests and
// local development, mirroring the behavior of the Drive backend: opaque ids,
// folder containment, resumable-session handles and idempotent deletes.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/havenportal/drivesync/internal/remote"
)

type object struct {
	remote.Object
	folderID string
	data     []byte
}

type folder struct {
	name     string
	parentID string
}

type session struct {
	folderID    string
	name        string
	contentType string
}

// Storage implements remote.Storage backed by maps.
type Storage struct {
	mu       sync.RWMutex
	folders  map[string]*folder
	objects  map[string]*object
	sessions map[string]*session

	// SessionErr, when set, is returned by CreateResumableSession. Lets tests
	// exercise the session-failure path.
	SessionErr error

	now func() time.Time
}

// New returns an empty in-memory storage with a root folder "root".
func New() *Storage {
	s := &Storage{
		folders:  map[string]*folder{"root": {name: "root"}},
		objects:  map[string]*object{},
		sessions: map[string]*session{},
		now:      time.Now,
	}
	return s
}

func (s *Storage) FindOrCreateFolder(ctx context.Context, name, parentID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, f := range s.folders {
		if f.name == name && f.parentID == parentID {
			return id, nil
		}
	}
	id := uuid.NewString()
	s.folders[id] = &folder{name: name, parentID: parentID}
	return id, nil
}

func (s *Storage) UploadSmall(ctx context.Context, folderID, name, contentType string, data []byte) (*remote.Object, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.putLocked(folderID, name, contentType, data), nil
}

func (s *Storage) CreateResumableSession(ctx context.Context, folderID, name, contentType string) (string, error) {
	if s.SessionErr != nil {
		return "", s.SessionErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	uri := "mem://upload/" + uuid.NewString()
	s.sessions[uri] = &session{folderID: folderID, name: name, contentType: contentType}
	return uri, nil
}

// CompleteSession simulates the client-side PUT against a session URI and
// returns the resulting object, as the backend would.
func (s *Storage) CompleteSession(uri string, data []byte) (*remote.Object, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[uri]
	if !ok {
		return nil, fmt.Errorf("unknown session %q", uri)
	}
	delete(s.sessions, uri)
	return s.putLocked(sess.folderID, sess.name, sess.contentType, data), nil
}

func (s *Storage) Download(ctx context.Context, remoteID string) (*remote.Download, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.objects[remoteID]
	if !ok {
		return nil, remote.ErrNotFound
	}
	return &remote.Download{
		Body:        io.NopCloser(bytes.NewReader(o.data)),
		ContentType: o.ContentType,
		Size:        o.Size,
	}, nil
}

func (s *Storage) Delete(ctx context.Context, remoteID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, remoteID)
	return nil
}

func (s *Storage) ListFolder(ctx context.Context, folderID string) ([]remote.Object, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []remote.Object{}
	for _, o := range s.objects {
		if o.folderID == folderID {
			out = append(out, o.Object)
		}
	}
	return out, nil
}

// Put inserts an object directly, bypassing the upload flow. Test helper for
// simulating files that appeared on the backend out-of-band.
func (s *Storage) Put(folderID, name, contentType string, data []byte) *remote.Object {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.putLocked(folderID, name, contentType, data)
}

// Rename changes an object's name in place, keeping its id stable.
func (s *Storage) Rename(remoteID, newName string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.objects[remoteID]
	if !ok {
		return false
	}
	o.Name = newName
	return true
}

// Remove deletes an object out-of-band, reporting whether it existed.
func (s *Storage) Remove(remoteID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[remoteID]
	delete(s.objects, remoteID)
	return ok
}

func (s *Storage) putLocked(folderID, name, contentType string, data []byte) *remote.Object {
	id := uuid.NewString()
	o := &object{
		Object: remote.Object{
			RemoteID:    id,
			Name:        name,
			ContentType: contentType,
			Size:        int64(len(data)),
			CreatedAt:   s.now(),
		},
		folderID: folderID,
		data:     append([]byte(nil), data...),
	}
	s.objects[id] = o
	return &o.Object
}
