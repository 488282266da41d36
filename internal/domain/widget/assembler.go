package widget

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/intake/intake/internal/domain/catalog"
	"github.com/intake/intake/internal/domain/tenant"
	"github.com/intake/intake/internal/platform/cache"
)

// TenantFinder resolves a public slug to an active tenant.
type TenantFinder interface {
	Active(ctx context.Context, slug string) (*tenant.Tenant, error)
}

type CatalogResolver interface {
	Resolve(ctx context.Context, tenantID uuid.UUID) (*catalog.Catalog, error)
}

// Assembler builds the public widget configuration for a tenant.
type Assembler struct {
	tenants  TenantFinder
	resolver CatalogResolver
	catalog  catalog.Repository
	repo     Repository
}

func NewAssembler(tenants TenantFinder, resolver CatalogResolver, cat catalog.Repository, repo Repository) *Assembler {
	return &Assembler{tenants: tenants, resolver: resolver, catalog: cat, repo: repo}
}

// Assemble returns tenant.ErrUnavailable for unknown or inactive tenants and
// ErrNotConfigured when the tenant has no widget config.
func (a *Assembler) Assemble(ctx context.Context, slug string) (*ConfigResponse, error) {
	t, err := a.tenants.Active(ctx, slug)
	if err != nil {
		return nil, err
	}
	cat, err := a.resolver.Resolve(ctx, t.ID)
	if err != nil {
		return nil, err
	}
	cfg, err := a.repo.GetConfig(ctx, t.ID)
	if err != nil {
		return nil, err
	}

	services, err := a.catalog.ListServices(ctx, t.ID)
	if err != nil {
		return nil, fmt.Errorf("assemble services: %w", err)
	}
	categories, err := a.catalog.ListCategories(ctx, t.ID, categoryIDs(services))
	if err != nil {
		return nil, fmt.Errorf("assemble categories: %w", err)
	}
	fields, err := a.repo.ListFormFields(ctx, t.ID)
	if err != nil {
		return nil, fmt.Errorf("assemble form fields: %w", err)
	}
	for i := range fields {
		if fields[i].Options == nil {
			fields[i].Options = []string{}
		}
	}
	if fields == nil {
		fields = []FormField{}
	}

	mode := cfg.Mode
	if !mode.Valid() {
		mode = DefaultMode
	}
	diagram := cfg.DiagramType
	if !diagram.Valid() {
		diagram = DefaultDiagramType
	}

	regions := cat.Regions
	if regions == nil {
		regions = []catalog.Region{}
	}

	return &ConfigResponse{
		Tenant: TenantInfo{Name: t.Name, Slug: t.Slug, LogoURL: t.LogoURL},
		Branding: Branding{
			PrimaryColor:   cfg.PrimaryColor,
			SecondaryColor: cfg.SecondaryColor,
			AccentColor:    cfg.AccentColor,
			FontFamily:     cfg.FontFamily,
			CTAText:        cfg.CTAText,
			SuccessMessage: cfg.SuccessMessage,
			RedirectURL:    cfg.RedirectURL,
			CustomCSS:      cfg.CustomCSS,
		},
		WidgetMode:        mode,
		DiagramType:       diagram,
		Regions:           regions,
		ServiceCategories: GroupServices(services, categories),
		FormFields:        fields,
	}, nil
}

func categoryIDs(services []catalog.Service) []uuid.UUID {
	seen := make(map[uuid.UUID]bool)
	var ids []uuid.UUID
	for _, s := range services {
		if s.CategoryID != nil && !seen[*s.CategoryID] {
			seen[*s.CategoryID] = true
			ids = append(ids, *s.CategoryID)
		}
	}
	return ids
}

// GroupServices buckets services under their categories. Categories are
// ordered by display order, then name. Services whose category is null or
// unknown go to a trailing "Other" bucket that exists only when non-empty.
// Categories with no services are omitted.
func GroupServices(services []catalog.Service, categories []catalog.ServiceCategory) []CategoryGroup {
	sorted := make([]catalog.ServiceCategory, len(categories))
	copy(sorted, categories)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].DisplayOrder != sorted[j].DisplayOrder {
			return sorted[i].DisplayOrder < sorted[j].DisplayOrder
		}
		return sorted[i].Name < sorted[j].Name
	})

	known := make(map[uuid.UUID]bool, len(sorted))
	for _, c := range sorted {
		known[c.ID] = true
	}

	byCategory := make(map[uuid.UUID][]catalog.Service)
	var other []catalog.Service
	for _, s := range services {
		if s.RegionIDs == nil {
			s.RegionIDs = []uuid.UUID{}
		}
		if s.ConcernIDs == nil {
			s.ConcernIDs = []uuid.UUID{}
		}
		if s.CategoryID == nil || !known[*s.CategoryID] {
			other = append(other, s)
			continue
		}
		byCategory[*s.CategoryID] = append(byCategory[*s.CategoryID], s)
	}

	out := make([]CategoryGroup, 0, len(sorted)+1)
	for _, c := range sorted {
		group := byCategory[c.ID]
		if len(group) == 0 {
			continue
		}
		sortServices(group)
		out = append(out, CategoryGroup{ID: c.ID.String(), Name: c.Name, Slug: c.Slug, Services: group})
	}
	if len(other) > 0 {
		sortServices(other)
		out = append(out, CategoryGroup{ID: UncategorizedID, Name: "Other", Slug: "other", Services: other})
	}
	return out
}

func sortServices(s []catalog.Service) {
	sort.SliceStable(s, func(i, j int) bool {
		if s[i].DisplayOrder != s[j].DisplayOrder {
			return s[i].DisplayOrder < s[j].DisplayOrder
		}
		return s[i].Name < s[j].Name
	})
}

// ConfigSource is satisfied by both Assembler and CachedAssembler.
type ConfigSource interface {
	Assemble(ctx context.Context, slug string) (*ConfigResponse, error)
}

const cacheKeyPrefix = "widget:config:"

func CacheKey(slug string) string { return cacheKeyPrefix + slug }

// CachedAssembler serves assembled configs from a cache.Store. Only
// successful results are cached; cache failures fall through to the
// underlying source.
type CachedAssembler struct {
	next   ConfigSource
	store  cache.Store
	ttl    time.Duration
	logger zerolog.Logger
}

func NewCachedAssembler(next ConfigSource, store cache.Store, ttl time.Duration, logger zerolog.Logger) *CachedAssembler {
	return &CachedAssembler{next: next, store: store, ttl: ttl, logger: logger}
}

func (c *CachedAssembler) Assemble(ctx context.Context, slug string) (*ConfigResponse, error) {
	key := CacheKey(slug)
	raw, err := c.store.Get(ctx, key)
	switch {
	case err == nil:
		var resp ConfigResponse
		if uerr := json.Unmarshal(raw, &resp); uerr == nil {
			return &resp, nil
		}
		c.logger.Warn().Str("key", key).Msg("discarding undecodable cached config")
	case !errors.Is(err, cache.ErrMiss):
		c.logger.Warn().Err(err).Str("key", key).Msg("config cache read failed")
	}

	resp, err := c.next.Assemble(ctx, slug)
	if err != nil {
		return nil, err
	}
	if c.ttl > 0 {
		if raw, merr := json.Marshal(resp); merr == nil {
			if serr := c.store.Set(ctx, key, raw, c.ttl); serr != nil {
				c.logger.Warn().Err(serr).Str("key", key).Msg("config cache write failed")
			}
		}
	}
	return resp, nil
}

// Invalidate drops the cached config for the given tenant slugs.
func (c *CachedAssembler) Invalidate(ctx context.Context, slugs ...string) error {
	keys := make([]string, len(slugs))
	for i, s := range slugs {
		keys[i] = CacheKey(s)
	}
	return c.store.Delete(ctx, keys...)
}
