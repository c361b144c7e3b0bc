// Package sqlite provides a SQLite-backed device credential store.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	credentials "device-relay/internal/credentials/domain"
	"device-relay/internal/credentials/infrastructure/sqlite/migrations"
)

// ErrDuplicate is returned when a credential id or key hash already exists.
var ErrDuplicate = errors.New("credential store: duplicate credential")

// Store persists device credentials in SQLite.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite credential store and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Create inserts one credential.
func (s *Store) Create(ctx context.Context, cred *credentials.Credential) error {
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if cred == nil || cred.ID == "" || cred.HashedKey == "" {
		return fmt.Errorf("credential id and hash are required")
	}
	perms, err := json.Marshal(cred.Permissions)
	if err != nil {
		return fmt.Errorf("encode permissions: %w", err)
	}
	meta, err := json.Marshal(cred.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	_, err = s.sqlDB.ExecContext(ctx, `INSERT INTO device_credentials (
		   id, owner_email, device_id, device_name, name, hashed_key, prefix,
		   created_at, last_used_at, expires_at, is_active, permissions, metadata
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		cred.ID,
		cred.OwnerEmail,
		cred.DeviceID,
		cred.DeviceName,
		cred.Name,
		cred.HashedKey,
		cred.Prefix,
		toMillis(cred.CreatedAt),
		nullableMillis(cred.LastUsed),
		nullableMillis(cred.ExpiresAt),
		boolToInt(cred.Active),
		string(perms),
		string(meta),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("create credential: %w", err)
	}
	return nil
}

// FindByHash returns the credential with the hash, or nil.
func (s *Store) FindByHash(ctx context.Context, hashedKey string) (*credentials.Credential, error) {
	return s.findOne(ctx, "hashed_key = ?", hashedKey)
}

// FindByID returns the credential with the id, or nil.
func (s *Store) FindByID(ctx context.Context, id string) (*credentials.Credential, error) {
	return s.findOne(ctx, "id = ?", id)
}

// ListByOwner returns the owner's credentials, newest first.
func (s *Store) ListByOwner(ctx context.Context, owner string) ([]credentials.Credential, error) {
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	rows, err := s.sqlDB.QueryContext(ctx, selectColumns+`
		 WHERE owner_email = ?
		 ORDER BY created_at DESC, id DESC`, owner)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	defer rows.Close()
	out := make([]credentials.Credential, 0)
	for rows.Next() {
		cred, err := scanCredential(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *cred)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	return out, nil
}

// Delete removes the credential when owned by owner.
func (s *Store) Delete(ctx context.Context, id, owner string) (bool, error) {
	if s == nil || s.sqlDB == nil {
		return false, fmt.Errorf("storage is not configured")
	}
	res, err := s.sqlDB.ExecContext(ctx, `DELETE FROM device_credentials WHERE id = ? AND owner_email = ?`, id, owner)
	if err != nil {
		return false, fmt.Errorf("delete credential: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete credential: %w", err)
	}
	return n > 0, nil
}

// TouchLastUsed stamps the last authentication time.
func (s *Store) TouchLastUsed(ctx context.Context, id string, at time.Time) error {
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if _, err := s.sqlDB.ExecContext(ctx, `UPDATE device_credentials SET last_used_at = ? WHERE id = ?`, toMillis(at), id); err != nil {
		return fmt.Errorf("touch credential: %w", err)
	}
	return nil
}

const selectColumns = `SELECT id, owner_email, device_id, device_name, name, hashed_key, prefix,
		   created_at, last_used_at, expires_at, is_active, permissions, metadata
		 FROM device_credentials`

func (s *Store) findOne(ctx context.Context, where string, arg string) (*credentials.Credential, error) {
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	row := s.sqlDB.QueryRowContext(ctx, selectColumns+` WHERE `+where+` LIMIT 1`, arg)
	cred, err := scanCredential(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return cred, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCredential(row rowScanner) (*credentials.Credential, error) {
	var (
		cred      credentials.Credential
		createdAt int64
		lastUsed  sql.NullInt64
		expiresAt sql.NullInt64
		active    int64
		perms     string
		meta      string
	)
	if err := row.Scan(
		&cred.ID,
		&cred.OwnerEmail,
		&cred.DeviceID,
		&cred.DeviceName,
		&cred.Name,
		&cred.HashedKey,
		&cred.Prefix,
		&createdAt,
		&lastUsed,
		&expiresAt,
		&active,
		&perms,
		&meta,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan credential: %w", err)
	}
	cred.CreatedAt = fromMillis(createdAt)
	if lastUsed.Valid {
		v := fromMillis(lastUsed.Int64)
		cred.LastUsed = &v
	}
	if expiresAt.Valid {
		v := fromMillis(expiresAt.Int64)
		cred.ExpiresAt = &v
	}
	cred.Active = active != 0
	if err := json.Unmarshal([]byte(perms), &cred.Permissions); err != nil {
		return nil, fmt.Errorf("decode permissions: %w", err)
	}
	if err := json.Unmarshal([]byte(meta), &cred.Metadata); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	return &cred, nil
}

func nullableMillis(value *time.Time) sql.NullInt64 {
	if value == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMillis(*value), Valid: true}
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

// applyMigrations executes each embedded migration at most once.
func applyMigrations(sqlDB *sql.DB, migrationFS fs.FS) error {
	entries, err := fs.ReadDir(migrationFS, ".")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)

	if _, err := sqlDB.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
    name TEXT PRIMARY KEY,
    applied_at INTEGER NOT NULL
)`); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}

	for _, file := range files {
		var count int
		if err := sqlDB.QueryRow(`SELECT COUNT(1) FROM schema_migrations WHERE name = ?`, file).Scan(&count); err != nil {
			return fmt.Errorf("check migration %s: %w", file, err)
		}
		if count > 0 {
			continue
		}
		content, err := fs.ReadFile(migrationFS, file)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", file, err)
		}
		tx, err := sqlDB.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %s: %w", file, err)
		}
		if _, err := tx.Exec(upSection(string(content))); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("exec migration %s: %w", file, err)
		}
		if _, err := tx.Exec(`INSERT INTO schema_migrations (name, applied_at) VALUES (?, ?)`, file, time.Now().UTC().UnixMilli()); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %s: %w", file, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", file, err)
		}
	}
	return nil
}

func upSection(content string) string {
	const up, down = "-- +migrate Up", "-- +migrate Down"
	start := strings.Index(content, up)
	if start == -1 {
		return content
	}
	body := content[start+len(up):]
	if end := strings.Index(body, down); end != -1 {
		body = body[:end]
	}
	return body
}
