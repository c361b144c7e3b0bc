package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	credentials "device-relay/internal/credentials/domain"
)

const credentialColumns = `id, owner_email, device_id, device_name, name, hashed_key, prefix,
	created_at, last_used_at, expires_at, is_active, permissions, metadata`

// CredentialRepository is a Postgres repository for device credentials.
type CredentialRepository struct {
	db *sql.DB
}

// NewCredentialRepository constructs a repository.
func NewCredentialRepository(db *sql.DB) *CredentialRepository {
	return &CredentialRepository{db: db}
}

// Create inserts a credential.
func (r *CredentialRepository) Create(ctx context.Context, cred *credentials.Credential) error {
	if r == nil || r.db == nil {
		return errors.New("credential repo: nil db")
	}
	if cred == nil || cred.ID == "" || cred.HashedKey == "" {
		return errors.New("credential repo: invalid credential")
	}
	perms, err := json.Marshal(cred.Permissions)
	if err != nil {
		return err
	}
	meta, err := json.Marshal(cred.Metadata)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
INSERT INTO device_credentials (`+credentialColumns+`)
VALUES (
	$1, $2, $3, $4, $5, $6, $7,
	$8, $9, $10, $11, $12, $13
)`, cred.ID, cred.OwnerEmail, cred.DeviceID, cred.DeviceName, cred.Name, cred.HashedKey, cred.Prefix,
		cred.CreatedAt.UTC(), nullTime(cred.LastUsed), nullTime(cred.ExpiresAt), cred.Active, perms, meta)
	return err
}

// FindByHash loads a credential by key hash.
func (r *CredentialRepository) FindByHash(ctx context.Context, hashedKey string) (*credentials.Credential, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("credential repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT `+credentialColumns+`
FROM device_credentials
WHERE hashed_key = $1
LIMIT 1`, hashedKey)
	return scanOne(row)
}

// FindByID loads a credential by id.
func (r *CredentialRepository) FindByID(ctx context.Context, id string) (*credentials.Credential, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("credential repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT `+credentialColumns+`
FROM device_credentials
WHERE id = $1
LIMIT 1`, id)
	return scanOne(row)
}

// ListByOwner returns an owner's credentials, newest first.
func (r *CredentialRepository) ListByOwner(ctx context.Context, owner string) ([]credentials.Credential, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("credential repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT `+credentialColumns+`
FROM device_credentials
WHERE owner_email = $1
ORDER BY created_at DESC, id DESC`, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]credentials.Credential, 0)
	for rows.Next() {
		cred, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *cred)
	}
	return out, rows.Err()
}

// Delete removes a credential owned by owner.
func (r *CredentialRepository) Delete(ctx context.Context, id, owner string) (bool, error) {
	if r == nil || r.db == nil {
		return false, errors.New("credential repo: nil db")
	}
	res, err := r.db.ExecContext(ctx, `
DELETE FROM device_credentials
WHERE id = $1 AND owner_email = $2`, id, owner)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// TouchLastUsed stamps the last authentication time.
func (r *CredentialRepository) TouchLastUsed(ctx context.Context, id string, at time.Time) error {
	if r == nil || r.db == nil {
		return errors.New("credential repo: nil db")
	}
	_, err := r.db.ExecContext(ctx, `
UPDATE device_credentials
SET last_used_at = $2
WHERE id = $1`, id, at.UTC())
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanOne(row scanner) (*credentials.Credential, error) {
	cred, err := scan(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return cred, nil
}

func scan(row scanner) (*credentials.Credential, error) {
	var (
		cred      credentials.Credential
		lastUsed  sql.NullTime
		expiresAt sql.NullTime
		perms     []byte
		meta      []byte
	)
	if err := row.Scan(
		&cred.ID,
		&cred.OwnerEmail,
		&cred.DeviceID,
		&cred.DeviceName,
		&cred.Name,
		&cred.HashedKey,
		&cred.Prefix,
		&cred.CreatedAt,
		&lastUsed,
		&expiresAt,
		&cred.Active,
		&perms,
		&meta,
	); err != nil {
		return nil, err
	}
	cred.CreatedAt = cred.CreatedAt.UTC()
	if lastUsed.Valid {
		v := lastUsed.Time.UTC()
		cred.LastUsed = &v
	}
	if expiresAt.Valid {
		v := expiresAt.Time.UTC()
		cred.ExpiresAt = &v
	}
	if len(perms) > 0 {
		if err := json.Unmarshal(perms, &cred.Permissions); err != nil {
			return nil, err
		}
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &cred.Metadata); err != nil {
			return nil, err
		}
	}
	return &cred, nil
}

func nullTime(value *time.Time) sql.NullTime {
	if value == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: value.UTC(), Valid: true}
}
