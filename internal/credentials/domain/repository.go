package credentials

import (
	"context"
	"time"
)

// Repository persists device credentials.
type Repository interface {
	Create(ctx context.Context, cred *Credential) error
	FindByHash(ctx context.Context, hashedKey string) (*Credential, error)
	FindByID(ctx context.Context, id string) (*Credential, error)
	ListByOwner(ctx context.Context, owner string) ([]Credential, error)
	Delete(ctx context.Context, id, owner string) (bool, error)
	TouchLastUsed(ctx context.Context, id string, at time.Time) error
}
