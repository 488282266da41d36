package catalog

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/intake/intake/internal/platform/db"
)

const regionColumns = `id, name, slug, gender, body_area, display_order,
	hotspot_x, hotspot_y, diagram_view, is_active`

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

func (r *repoPG) ListTenantRegions(ctx context.Context, tenantID uuid.UUID) ([]Region, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+regionColumns+` FROM body_regions WHERE tenant_id = $1 AND is_active`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("query tenant regions: %w", err)
	}
	return collectRegions(rows, OriginOverride)
}

func (r *repoPG) ListDefaultRegions(ctx context.Context) ([]Region, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+regionColumns+` FROM body_regions WHERE tenant_id IS NULL AND is_active`)
	if err != nil {
		return nil, fmt.Errorf("query default regions: %w", err)
	}
	return collectRegions(rows, OriginDefault)
}

func collectRegions(rows pgx.Rows, origin Origin) ([]Region, error) {
	defer rows.Close()
	var out []Region
	for rows.Next() {
		var reg Region
		var gender, area string
		var view *string
		if err := rows.Scan(
			&reg.ID, &reg.Name, &reg.Slug, &gender, &area, &reg.DisplayOrder,
			&reg.HotspotX, &reg.HotspotY, &view, &reg.Active,
		); err != nil {
			return nil, fmt.Errorf("scan region: %w", err)
		}
		reg.Origin = origin
		reg.Gender = Gender(gender)
		reg.BodyArea = BodyArea(area)
		if view != nil {
			v := DiagramView(*view)
			reg.DiagramView = &v
		}
		out = append(out, reg)
	}
	return out, rows.Err()
}

func (r *repoPG) ListConcerns(ctx context.Context, tenantID uuid.UUID, regionIDs []uuid.UUID) ([]Concern, error) {
	if len(regionIDs) == 0 {
		return nil, nil
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, body_region_id, name, slug, description, display_order
		FROM concerns
		WHERE body_region_id = ANY($1::uuid[])
		  AND is_active
		  AND (tenant_id IS NULL OR tenant_id = $2)
		ORDER BY display_order, slug`,
		uuidStrings(regionIDs), tenantID)
	if err != nil {
		return nil, fmt.Errorf("query concerns: %w", err)
	}
	defer rows.Close()

	var out []Concern
	for rows.Next() {
		var c Concern
		if err := rows.Scan(&c.ID, &c.RegionID, &c.Name, &c.Slug, &c.Description, &c.DisplayOrder); err != nil {
			return nil, fmt.Errorf("scan concern: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *repoPG) ListServices(ctx context.Context, tenantID uuid.UUID) ([]Service, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, category_id, name, slug, description, display_order
		FROM services
		WHERE tenant_id = $1 AND is_active
		ORDER BY display_order, name`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("query services: %w", err)
	}
	var services []Service
	index := make(map[uuid.UUID]int)
	for rows.Next() {
		s := Service{RegionIDs: []uuid.UUID{}, ConcernIDs: []uuid.UUID{}}
		if err := rows.Scan(&s.ID, &s.CategoryID, &s.Name, &s.Slug, &s.Description, &s.DisplayOrder); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan service: %w", err)
		}
		index[s.ID] = len(services)
		services = append(services, s)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate services: %w", err)
	}
	if len(services) == 0 {
		return services, nil
	}

	ids := make([]uuid.UUID, len(services))
	for i, s := range services {
		ids[i] = s.ID
	}

	if err := r.eachLink(ctx, `
		SELECT service_id, body_region_id FROM service_body_regions
		WHERE service_id = ANY($1::uuid[])`, ids, func(serviceID, regionID uuid.UUID) {
		s := &services[index[serviceID]]
		s.RegionIDs = append(s.RegionIDs, regionID)
	}); err != nil {
		return nil, fmt.Errorf("query service regions: %w", err)
	}

	if err := r.eachLink(ctx, `
		SELECT service_id, concern_id FROM concern_services
		WHERE service_id = ANY($1::uuid[])`, ids, func(serviceID, concernID uuid.UUID) {
		s := &services[index[serviceID]]
		s.ConcernIDs = append(s.ConcernIDs, concernID)
	}); err != nil {
		return nil, fmt.Errorf("query service concerns: %w", err)
	}

	return services, nil
}

func (r *repoPG) eachLink(ctx context.Context, sql string, ids []uuid.UUID, fn func(a, b uuid.UUID)) error {
	rows, err := r.conn(ctx).Query(ctx, sql, uuidStrings(ids))
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var a, b uuid.UUID
		if err := rows.Scan(&a, &b); err != nil {
			return err
		}
		fn(a, b)
	}
	return rows.Err()
}

func (r *repoPG) ListCategories(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) ([]ServiceCategory, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, name, slug, description, display_order
		FROM service_categories
		WHERE id = ANY($1::uuid[])
		  AND is_active
		  AND (tenant_id IS NULL OR tenant_id = $2)`,
		uuidStrings(ids), tenantID)
	if err != nil {
		return nil, fmt.Errorf("query service categories: %w", err)
	}
	defer rows.Close()

	var out []ServiceCategory
	for rows.Next() {
		var c ServiceCategory
		if err := rows.Scan(&c.ID, &c.Name, &c.Slug, &c.Description, &c.DisplayOrder); err != nil {
			return nil, fmt.Errorf("scan service category: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
