package widget

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	// GetConfig returns ErrNotConfigured when the tenant has no row.
	GetConfig(ctx context.Context, tenantID uuid.UUID) (*Config, error)
	ListFormFields(ctx context.Context, tenantID uuid.UUID) ([]FormField, error)
}
