package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	credentials "device-relay/internal/credentials/domain"
)

// CredentialRepository keeps credentials in process memory.
type CredentialRepository struct {
	mu     sync.RWMutex
	byID   map[string]*credentials.Credential
	byHash map[string]string
}

// NewCredentialRepository constructs an empty repository.
func NewCredentialRepository() *CredentialRepository {
	return &CredentialRepository{
		byID:   make(map[string]*credentials.Credential),
		byHash: make(map[string]string),
	}
}

// Create stores a new credential.
func (r *CredentialRepository) Create(ctx context.Context, cred *credentials.Credential) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if cred == nil || cred.ID == "" || cred.HashedKey == "" {
		return errors.New("credential repo: invalid credential")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[cred.ID]; ok {
		return errors.New("credential repo: duplicate id")
	}
	if _, ok := r.byHash[cred.HashedKey]; ok {
		return errors.New("credential repo: duplicate key hash")
	}
	stored := clone(cred)
	r.byID[cred.ID] = stored
	r.byHash[cred.HashedKey] = cred.ID
	return nil
}

// FindByHash returns the credential with the hash, or nil.
func (r *CredentialRepository) FindByHash(ctx context.Context, hashedKey string) (*credentials.Credential, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byHash[hashedKey]
	if !ok {
		return nil, nil
	}
	return clone(r.byID[id]), nil
}

// FindByID returns the credential with the id, or nil.
func (r *CredentialRepository) FindByID(ctx context.Context, id string) (*credentials.Credential, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	cred, ok := r.byID[id]
	if !ok {
		return nil, nil
	}
	return clone(cred), nil
}

// ListByOwner returns the owner's credentials, newest first.
func (r *CredentialRepository) ListByOwner(ctx context.Context, owner string) ([]credentials.Credential, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	out := make([]credentials.Credential, 0)
	for _, cred := range r.byID {
		if cred.OwnerEmail == owner {
			out = append(out, *clone(cred))
		}
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// Delete removes the credential when owned by owner.
func (r *CredentialRepository) Delete(ctx context.Context, id, owner string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cred, ok := r.byID[id]
	if !ok || cred.OwnerEmail != owner {
		return false, nil
	}
	delete(r.byID, id)
	delete(r.byHash, cred.HashedKey)
	return true, nil
}

// TouchLastUsed stamps the last authentication time.
func (r *CredentialRepository) TouchLastUsed(ctx context.Context, id string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cred, ok := r.byID[id]
	if !ok {
		return nil
	}
	ts := at.UTC()
	cred.LastUsed = &ts
	return nil
}

func clone(cred *credentials.Credential) *credentials.Credential {
	if cred == nil {
		return nil
	}
	out := *cred
	out.Permissions = append([]string(nil), cred.Permissions...)
	if cred.LastUsed != nil {
		v := *cred.LastUsed
		out.LastUsed = &v
	}
	if cred.ExpiresAt != nil {
		v := *cred.ExpiresAt
		out.ExpiresAt = &v
	}
	return &out
}
