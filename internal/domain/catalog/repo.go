package catalog

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	// ListTenantRegions returns the tenant's active region rows tagged
	// OriginOverride.
	ListTenantRegions(ctx context.Context, tenantID uuid.UUID) ([]Region, error)
	// ListDefaultRegions returns active platform rows tagged OriginDefault.
	ListDefaultRegions(ctx context.Context) ([]Region, error)
	// ListConcerns returns active concerns attached to regionIDs that are
	// platform defaults or owned by tenantID.
	ListConcerns(ctx context.Context, tenantID uuid.UUID, regionIDs []uuid.UUID) ([]Concern, error)
	// ListServices returns the tenant's active services with region and
	// concern links populated (never nil).
	ListServices(ctx context.Context, tenantID uuid.UUID) ([]Service, error)
	// ListCategories returns the active categories among ids that are
	// platform defaults or owned by tenantID.
	ListCategories(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) ([]ServiceCategory, error)
}
