package tenant

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, t *Tenant) error
	GetByID(ctx context.Context, id uuid.UUID) (*Tenant, error)
	// GetBySlug returns ErrUnavailable when no row matches.
	GetBySlug(ctx context.Context, slug string) (*Tenant, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status Status) error
}
