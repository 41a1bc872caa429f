package ledger

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/havenportal/drivesync/internal/activity"
	"github.com/havenportal/drivesync/internal/authz"
	"github.com/havenportal/drivesync/internal/model"
	"github.com/havenportal/drivesync/internal/remote"
	"github.com/havenportal/drivesync/internal/remote/memory"
	"github.com/havenportal/drivesync/internal/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestLedger(t *testing.T, oracle authz.Oracle) (*Ledger, *store.MemoryStore, *memory.Storage) {
	t.Helper()
	st := store.NewMemoryStore()
	rs := memory.New()
	logger := discardLogger()
	l := New(st, &remote.StaticProvider{S: rs}, oracle, activity.NewLogSink(logger), logger)
	return l, st, rs
}

func TestRegisterUploadFirstVersion(t *testing.T) {
	l, _, _ := newTestLedger(t, authz.AllowAll{})

	file, err := l.RegisterUpload(context.Background(), Registration{
		ProjectID: "p1",
		FileName:  "brief.pdf",
		RemoteID:  "r1",
		Size:      10,
	})
	require.NoError(t, err)

	assert.Equal(t, 1, file.Version)
	assert.Empty(t, file.GroupID)
	assert.True(t, file.IsCurrent)
	assert.Equal(t, "brief.pdf", file.Name)
}

func TestRegisterUploadVersionChain(t *testing.T) {
	l, st, _ := newTestLedger(t, authz.AllowAll{})
	ctx := context.Background()

	v1, err := l.RegisterUpload(ctx, Registration{ProjectID: "p1", FileName: "design.png", RemoteID: "r1"})
	require.NoError(t, err)

	// Name matching ignores case; stored casing is the caller's.
	v2, err := l.RegisterUpload(ctx, Registration{ProjectID: "p1", FileName: "Design.PNG", RemoteID: "r2"})
	require.NoError(t, err)

	assert.Equal(t, 2, v2.Version)
	assert.NotEmpty(t, v2.GroupID)
	assert.True(t, v2.IsCurrent)
	assert.Equal(t, "Design.PNG", v2.Name)

	// The group id was stamped retroactively on the first version, which is
	// no longer current.
	got1, err := st.Files().GetByID(ctx, v1.ID)
	require.NoError(t, err)
	assert.Equal(t, v2.GroupID, got1.GroupID)
	assert.False(t, got1.IsCurrent)

	v3, err := l.RegisterUpload(ctx, Registration{ProjectID: "p1", FileName: "design.png", RemoteID: "r3"})
	require.NoError(t, err)
	assert.Equal(t, 3, v3.Version)
	assert.Equal(t, v2.GroupID, v3.GroupID)

	got2, err := st.Files().GetByID(ctx, v2.ID)
	require.NoError(t, err)
	assert.False(t, got2.IsCurrent)
}

func TestRegisterUploadScopesAreIndependent(t *testing.T) {
	l, _, _ := newTestLedger(t, authz.AllowAll{})
	ctx := context.Background()

	a, err := l.RegisterUpload(ctx, Registration{ProjectID: "p1", FileName: "notes.txt", RemoteID: "r1"})
	require.NoError(t, err)
	b, err := l.RegisterUpload(ctx, Registration{ProjectID: "p2", FileName: "notes.txt", RemoteID: "r2"})
	require.NoError(t, err)

	assert.Equal(t, 1, a.Version)
	assert.Equal(t, 1, b.Version)
	assert.Empty(t, b.GroupID)
}

func TestListVersions(t *testing.T) {
	l, _, _ := newTestLedger(t, authz.AllowAll{})
	ctx := context.Background()

	v1, err := l.RegisterUpload(ctx, Registration{ProjectID: "", FileName: "a.txt", RemoteID: "r1"})
	require.NoError(t, err)

	// Ungrouped file is a chain of one.
	chain, err := l.ListVersions(ctx, "u1", v1.ID)
	require.NoError(t, err)
	require.Len(t, chain, 1)
	assert.Equal(t, v1.ID, chain[0].ID)

	v2, err := l.RegisterUpload(ctx, Registration{ProjectID: "", FileName: "a.txt", RemoteID: "r2"})
	require.NoError(t, err)

	chain, err = l.ListVersions(ctx, "u1", v2.ID)
	require.NoError(t, err)
	require.Len(t, chain, 2)
	assert.Equal(t, 2, chain[0].Version)
	assert.Equal(t, 1, chain[1].Version)
}

func TestDeleteRemovesLocalAndRemote(t *testing.T) {
	l, st, rs := newTestLedger(t, authz.AllowAll{})
	ctx := context.Background()

	obj := rs.Put("root", "a.txt", "text/plain", []byte("x"))
	file, err := l.RegisterUpload(ctx, Registration{ProjectID: "", FileName: "a.txt", RemoteID: obj.RemoteID})
	require.NoError(t, err)

	require.NoError(t, l.Delete(ctx, "u1", file.ID))

	_, err = st.Files().GetByID(ctx, file.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.False(t, rs.Remove(obj.RemoteID), "remote object should already be gone")
}

func TestDeleteSurvivesRemoteFailure(t *testing.T) {
	l, st, _ := newTestLedger(t, authz.AllowAll{})
	ctx := context.Background()

	// Remote id that does not exist; idempotent delete still succeeds and the
	// local record goes regardless.
	file, err := l.RegisterUpload(ctx, Registration{ProjectID: "", FileName: "a.txt", RemoteID: "ghost"})
	require.NoError(t, err)
	require.NoError(t, l.Delete(ctx, "u1", file.ID))

	_, err = st.Files().GetByID(ctx, file.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestAuthorizationDenied(t *testing.T) {
	l, st, _ := newTestLedger(t, authz.DenyAll{})
	ctx := context.Background()

	require.NoError(t, st.Projects().Save(ctx, &model.Project{ID: "p1", Name: "P1"}))
	file, err := l.RegisterUpload(ctx, Registration{ProjectID: "p1", FileName: "a.txt", RemoteID: "r1"})
	require.NoError(t, err)

	_, err = l.Get(ctx, "intruder", file.ID)
	assert.ErrorIs(t, err, ErrNotAuthorized)
	_, err = l.ListVersions(ctx, "intruder", file.ID)
	assert.ErrorIs(t, err, ErrNotAuthorized)
	err = l.Delete(ctx, "intruder", file.ID)
	assert.ErrorIs(t, err, ErrNotAuthorized)
}

func TestLatestPerGroup(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	files := []*model.File{
		{ID: "a1", GroupID: "g1", Version: 1, CreatedAt: base},
		{ID: "a2", GroupID: "g1", Version: 2, CreatedAt: base.Add(2 * time.Hour)},
		{ID: "b1", Version: 1, CreatedAt: base.Add(time.Hour)},
		{ID: "c1", GroupID: "g2", Version: 1, CreatedAt: base.Add(3 * time.Hour)},
	}

	got := LatestPerGroup(files)
	require.Len(t, got, 3)

	// Newest chain first, by latest member's creation time.
	assert.Equal(t, "c1", got[0].Latest.ID)
	assert.Equal(t, "a2", got[1].Latest.ID)
	assert.Equal(t, "b1", got[2].Latest.ID)

	assert.Equal(t, 1, got[0].VersionCount)
	assert.Equal(t, 2, got[1].VersionCount)
	assert.Equal(t, 1, got[2].VersionCount)
}

func TestLatestPerGroupEmpty(t *testing.T) {
	assert.Empty(t, LatestPerGroup(nil))
}
