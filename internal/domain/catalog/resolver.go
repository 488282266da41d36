package catalog

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/intake/intake/internal/domain/tenant"
)

// TenantLookup is the slice of the tenant repository the resolver needs.
type TenantLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*tenant.Tenant, error)
}

// Resolver merges platform default regions with a tenant's overrides and
// attaches each surviving region's concerns.
type Resolver struct {
	tenants TenantLookup
	repo    Repository
}

func NewResolver(tenants TenantLookup, repo Repository) *Resolver {
	return &Resolver{tenants: tenants, repo: repo}
}

// Resolve returns tenant.ErrUnavailable when the tenant is unknown or not
// active. A tenant with no regions at all gets an empty, non-nil catalog.
func (r *Resolver) Resolve(ctx context.Context, tenantID uuid.UUID) (*Catalog, error) {
	t, err := r.tenants.GetByID(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if !t.Active() {
		return nil, tenant.ErrUnavailable
	}

	overrides, err := r.repo.ListTenantRegions(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("resolve regions: %w", err)
	}
	defaults, err := r.repo.ListDefaultRegions(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve regions: %w", err)
	}

	regions := Merge(overrides, defaults)
	cat := &Catalog{Regions: regions}
	if len(regions) == 0 {
		cat.Regions = []Region{}
		return cat, nil
	}

	concerns, err := r.repo.ListConcerns(ctx, tenantID, cat.RegionIDs())
	if err != nil {
		return nil, fmt.Errorf("resolve concerns: %w", err)
	}
	attachConcerns(cat.Regions, concerns)
	return cat, nil
}

// Merge keeps every active override and each active default whose
// (slug, gender) key no active override claims. Deactivating an override
// brings the default back. The result is sorted by display order, then slug,
// then gender.
func Merge(overrides, defaults []Region) []Region {
	claimed := make(map[Key]bool, len(overrides))
	out := make([]Region, 0, len(overrides)+len(defaults))
	for _, o := range overrides {
		k := o.Key()
		if !o.Active || claimed[k] {
			continue
		}
		claimed[k] = true
		o.Origin = OriginOverride
		out = append(out, o)
	}

	seenDefault := make(map[Key]bool, len(defaults))
	for _, d := range defaults {
		k := d.Key()
		if !d.Active || claimed[k] || seenDefault[k] {
			continue
		}
		seenDefault[k] = true
		d.Origin = OriginDefault
		out = append(out, d)
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.DisplayOrder != b.DisplayOrder {
			return a.DisplayOrder < b.DisplayOrder
		}
		if a.Slug != b.Slug {
			return a.Slug < b.Slug
		}
		return a.Gender < b.Gender
	})
	return out
}

// attachConcerns drops concerns whose region is not in regions and sorts
// each group by display order, then slug.
func attachConcerns(regions []Region, concerns []Concern) {
	byRegion := make(map[uuid.UUID][]Concern, len(regions))
	for _, c := range concerns {
		byRegion[c.RegionID] = append(byRegion[c.RegionID], c)
	}
	for i := range regions {
		group := byRegion[regions[i].ID]
		if group == nil {
			group = []Concern{}
		}
		sort.SliceStable(group, func(a, b int) bool {
			if group[a].DisplayOrder != group[b].DisplayOrder {
				return group[a].DisplayOrder < group[b].DisplayOrder
			}
			return group[a].Slug < group[b].Slug
		})
		regions[i].Concerns = group
	}
}
