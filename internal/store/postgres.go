package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/havenportal/drivesync/internal/model"
	"github.com/havenportal/drivesync/internal/store/migrations"
)

// PostgresStore implements Store over database/sql with the pgx driver.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens the database and verifies connectivity.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("db ping error: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// RunMigrations applies the embedded schema with goose.
func (s *PostgresStore) RunMigrations(ctx context.Context) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.UpContext(ctx, s.db, ".")
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error { return s.db.Close() }

func (s *PostgresStore) Credentials() Credentials { return &pgCredentials{db: s.db} }
func (s *PostgresStore) Files() Files             { return &pgFiles{db: s.db} }
func (s *PostgresStore) Projects() Projects       { return &pgProjects{db: s.db} }
func (s *PostgresStore) Cursors() Cursors         { return &pgCursors{db: s.db} }

type pgCredentials struct {
	db *sql.DB
}

func (r *pgCredentials) Get(ctx context.Context) (*model.DriveCredential, error) {
	query := `SELECT access_token, encrypted_refresh_token, expiry, account_email, base_folder_id, updated_at
		FROM drive_credentials WHERE id = 1`
	c := &model.DriveCredential{}
	err := r.db.QueryRowContext(ctx, query).Scan(
		&c.AccessToken, &c.EncryptedRefreshToken, &c.Expiry, &c.AccountEmail, &c.BaseFolderID, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select credential: %w", err)
	}
	return c, nil
}

func (r *pgCredentials) Save(ctx context.Context, cred *model.DriveCredential) error {
	query := `
		INSERT INTO drive_credentials (id, access_token, encrypted_refresh_token, expiry, account_email, base_folder_id, updated_at)
		VALUES (1, $1, $2, $3, $4, $5, $6)
		ON CONFLICT (id)
		DO UPDATE SET
			access_token = EXCLUDED.access_token,
			encrypted_refresh_token = EXCLUDED.encrypted_refresh_token,
			expiry = EXCLUDED.expiry,
			account_email = EXCLUDED.account_email,
			base_folder_id = EXCLUDED.base_folder_id,
			updated_at = EXCLUDED.updated_at`
	_, err := r.db.ExecContext(ctx, query,
		cred.AccessToken, cred.EncryptedRefreshToken, cred.Expiry, cred.AccountEmail, cred.BaseFolderID, cred.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save credential: %w", err)
	}
	return nil
}

func (r *pgCredentials) Delete(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM drive_credentials WHERE id = 1`); err != nil {
		return fmt.Errorf("failed to delete credential: %w", err)
	}
	return nil
}

type pgFiles struct {
	db *sql.DB
}

const fileColumns = `id, remote_id, project_id, name, original_name, size, content_type,
	version, group_id, is_current, synced_from_drive, uploader_id, created_at, updated_at`

func scanFile(row interface{ Scan(...any) error }) (*model.File, error) {
	f := &model.File{}
	err := row.Scan(&f.ID, &f.RemoteID, &f.ProjectID, &f.Name, &f.OriginalName, &f.Size, &f.ContentType,
		&f.Version, &f.GroupID, &f.IsCurrent, &f.SyncedFromDrive, &f.UploaderID, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (r *pgFiles) queryFiles(ctx context.Context, query string, args ...any) ([]*model.File, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select files: %w", err)
	}
	defer rows.Close()

	var result []*model.File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *pgFiles) Insert(ctx context.Context, f *model.File) error {
	query := `
		INSERT INTO files (` + fileColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`
	_, err := r.db.ExecContext(ctx, query,
		f.ID, f.RemoteID, f.ProjectID, f.Name, f.OriginalName, f.Size, f.ContentType,
		f.Version, f.GroupID, f.IsCurrent, f.SyncedFromDrive, f.UploaderID, f.CreatedAt, f.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert file: %w", err)
	}
	return nil
}

func (r *pgFiles) GetByID(ctx context.Context, id string) (*model.File, error) {
	query := `SELECT ` + fileColumns + ` FROM files WHERE id = $1`
	f, err := scanFile(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select file: %w", err)
	}
	return f, nil
}

func (r *pgFiles) GetByRemoteID(ctx context.Context, projectID, remoteID string) (*model.File, error) {
	query := `SELECT ` + fileColumns + ` FROM files WHERE project_id = $1 AND remote_id = $2`
	f, err := scanFile(r.db.QueryRowContext(ctx, query, projectID, remoteID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select file: %w", err)
	}
	return f, nil
}

func (r *pgFiles) ListByScope(ctx context.Context, projectID string) ([]*model.File, error) {
	query := `SELECT ` + fileColumns + ` FROM files WHERE project_id = $1 ORDER BY created_at DESC`
	return r.queryFiles(ctx, query, projectID)
}

func (r *pgFiles) ListByScopeAndName(ctx context.Context, projectID, name string) ([]*model.File, error) {
	query := `SELECT ` + fileColumns + ` FROM files
		WHERE project_id = $1 AND LOWER(name) = LOWER($2)
		ORDER BY version DESC`
	return r.queryFiles(ctx, query, projectID, name)
}

func (r *pgFiles) ListGroup(ctx context.Context, groupID string) ([]*model.File, error) {
	query := `SELECT ` + fileColumns + ` FROM files WHERE group_id = $1 ORDER BY version DESC`
	return r.queryFiles(ctx, query, groupID)
}

func (r *pgFiles) exec(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *pgFiles) UpdateName(ctx context.Context, id, name, originalName string) error {
	return r.exec(ctx, `UPDATE files SET name = $2, original_name = $3, updated_at = now() WHERE id = $1`,
		id, name, originalName)
}

func (r *pgFiles) SetGroup(ctx context.Context, id, groupID string) error {
	return r.exec(ctx, `UPDATE files SET group_id = $2, updated_at = now() WHERE id = $1`, id, groupID)
}

func (r *pgFiles) SetCurrent(ctx context.Context, id string, current bool) error {
	return r.exec(ctx, `UPDATE files SET is_current = $2, updated_at = now() WHERE id = $1`, id, current)
}

func (r *pgFiles) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM files WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

type pgProjects struct {
	db *sql.DB
}

func (r *pgProjects) Get(ctx context.Context, id string) (*model.Project, error) {
	query := `SELECT id, name, owner_id, drive_folder_id, access_rules, created_at
		FROM projects WHERE id = $1`
	p := &model.Project{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&p.ID, &p.Name, &p.OwnerID, &p.DriveFolderID, &p.AccessRules, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select project: %w", err)
	}
	return p, nil
}

func (r *pgProjects) Save(ctx context.Context, p *model.Project) error {
	query := `
		INSERT INTO projects (id, name, owner_id, drive_folder_id, access_rules, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id)
		DO UPDATE SET
			name = EXCLUDED.name,
			owner_id = EXCLUDED.owner_id,
			drive_folder_id = EXCLUDED.drive_folder_id,
			access_rules = EXCLUDED.access_rules`
	_, err := r.db.ExecContext(ctx, query, p.ID, p.Name, p.OwnerID, p.DriveFolderID, p.AccessRules, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save project: %w", err)
	}
	return nil
}

func (r *pgProjects) SetDriveFolder(ctx context.Context, id, folderID string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE projects SET drive_folder_id = $2 WHERE id = $1`, id, folderID)
	if err != nil {
		return fmt.Errorf("failed to set drive folder: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

type pgCursors struct {
	db *sql.DB
}

func (r *pgCursors) Get(ctx context.Context, scopeID string) (time.Time, error) {
	var t time.Time
	err := r.db.QueryRowContext(ctx,
		`SELECT last_synced_at FROM sync_cursors WHERE scope_id = $1`, scopeID).Scan(&t)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to select cursor: %w", err)
	}
	return t, nil
}

func (r *pgCursors) Set(ctx context.Context, scopeID string, t time.Time) error {
	query := `
		INSERT INTO sync_cursors (scope_id, last_synced_at)
		VALUES ($1, $2)
		ON CONFLICT (scope_id)
		DO UPDATE SET last_synced_at = EXCLUDED.last_synced_at`
	if _, err := r.db.ExecContext(ctx, query, scopeID, t); err != nil {
		return fmt.Errorf("failed to set cursor: %w", err)
	}
	return nil
}
