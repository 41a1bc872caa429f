package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/havenportal/drivesync/internal/model"
)

// MemoryStore implements Store backed by maps. Used by tests and dev mode.
type MemoryStore struct {
	mu       sync.RWMutex
	cred     *model.DriveCredential
	files    map[string]*model.File
	projects map[string]*model.Project
	cursors  map[string]time.Time
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		files:    map[string]*model.File{},
		projects: map[string]*model.Project{},
		cursors:  map[string]time.Time{},
	}
}

func (s *MemoryStore) Credentials() Credentials { return (*memCredentials)(s) }
func (s *MemoryStore) Files() Files             { return (*memFiles)(s) }
func (s *MemoryStore) Projects() Projects       { return (*memProjects)(s) }
func (s *MemoryStore) Cursors() Cursors         { return (*memCursors)(s) }

type memCredentials MemoryStore

func (s *memCredentials) Get(ctx context.Context) (*model.DriveCredential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cred == nil {
		return nil, ErrNotFound
	}
	c := *s.cred
	return &c, nil
}

func (s *memCredentials) Save(ctx context.Context, cred *model.DriveCredential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *cred
	s.cred = &c
	return nil
}

func (s *memCredentials) Delete(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cred = nil
	return nil
}

type memFiles MemoryStore

func (s *memFiles) Insert(ctx context.Context, f *model.File) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *f
	s.files[f.ID] = &c
	return nil
}

func (s *memFiles) GetByID(ctx context.Context, id string) (*model.File, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.files[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := *f
	return &c, nil
}

func (s *memFiles) GetByRemoteID(ctx context.Context, projectID, remoteID string) (*model.File, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, f := range s.files {
		if f.ProjectID == projectID && f.RemoteID == remoteID {
			c := *f
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

func (s *memFiles) ListByScope(ctx context.Context, projectID string) ([]*model.File, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*model.File{}
	for _, f := range s.files {
		if f.ProjectID == projectID {
			c := *f
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *memFiles) ListByScopeAndName(ctx context.Context, projectID, name string) ([]*model.File, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*model.File{}
	for _, f := range s.files {
		if f.ProjectID == projectID && strings.EqualFold(f.Name, name) {
			c := *f
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version > out[j].Version })
	return out, nil
}

func (s *memFiles) ListGroup(ctx context.Context, groupID string) ([]*model.File, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*model.File{}
	for _, f := range s.files {
		if f.GroupID == groupID {
			c := *f
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version > out[j].Version })
	return out, nil
}

func (s *memFiles) UpdateName(ctx context.Context, id, name, originalName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[id]
	if !ok {
		return ErrNotFound
	}
	f.Name = name
	f.OriginalName = originalName
	f.UpdatedAt = time.Now()
	return nil
}

func (s *memFiles) SetGroup(ctx context.Context, id, groupID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[id]
	if !ok {
		return ErrNotFound
	}
	f.GroupID = groupID
	f.UpdatedAt = time.Now()
	return nil
}

func (s *memFiles) SetCurrent(ctx context.Context, id string, current bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[id]
	if !ok {
		return ErrNotFound
	}
	f.IsCurrent = current
	f.UpdatedAt = time.Now()
	return nil
}

func (s *memFiles) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.files, id)
	return nil
}

type memProjects MemoryStore

func (s *memProjects) Get(ctx context.Context, id string) (*model.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := *p
	return &c, nil
}

func (s *memProjects) Save(ctx context.Context, p *model.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *p
	s.projects[p.ID] = &c
	return nil
}

func (s *memProjects) SetDriveFolder(ctx context.Context, id, folderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[id]
	if !ok {
		return ErrNotFound
	}
	p.DriveFolderID = folderID
	return nil
}

type memCursors MemoryStore

func (s *memCursors) Get(ctx context.Context, scopeID string) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cursors[scopeID], nil
}

func (s *memCursors) Set(ctx context.Context, scopeID string, t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cursors[scopeID] = t
	return nil
}
