package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/intake/intake/internal/domain/tenant"
)

type mockTenants struct {
	tenants map[uuid.UUID]*tenant.Tenant
}

func (m *mockTenants) GetByID(_ context.Context, id uuid.UUID) (*tenant.Tenant, error) {
	t, ok := m.tenants[id]
	if !ok {
		return nil, tenant.ErrUnavailable
	}
	return t, nil
}

type mockRepo struct {
	tenantRegions  map[uuid.UUID][]Region
	defaultRegions []Region
	concerns       []Concern
	concernTenant  map[uuid.UUID]uuid.UUID // concern id -> owning tenant, absent for defaults
	services       map[uuid.UUID][]Service
	categories     []ServiceCategory
	err            error
}

func (m *mockRepo) ListTenantRegions(_ context.Context, tenantID uuid.UUID) ([]Region, error) {
	return m.tenantRegions[tenantID], m.err
}

func (m *mockRepo) ListDefaultRegions(context.Context) ([]Region, error) {
	var out []Region
	for _, r := range m.defaultRegions {
		if r.Active {
			out = append(out, r)
		}
	}
	return out, m.err
}

func (m *mockRepo) ListConcerns(_ context.Context, tenantID uuid.UUID, regionIDs []uuid.UUID) ([]Concern, error) {
	want := make(map[uuid.UUID]bool)
	for _, id := range regionIDs {
		want[id] = true
	}
	var out []Concern
	for _, c := range m.concerns {
		owner, owned := m.concernTenant[c.ID]
		if want[c.RegionID] && (!owned || owner == tenantID) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *mockRepo) ListServices(_ context.Context, tenantID uuid.UUID) ([]Service, error) {
	return m.services[tenantID], nil
}

func (m *mockRepo) ListCategories(_ context.Context, _ uuid.UUID, ids []uuid.UUID) ([]ServiceCategory, error) {
	want := make(map[uuid.UUID]bool)
	for _, id := range ids {
		want[id] = true
	}
	var out []ServiceCategory
	for _, c := range m.categories {
		if want[c.ID] {
			out = append(out, c)
		}
	}
	return out, nil
}

func region(slug string, g Gender, order int) Region {
	return Region{ID: uuid.New(), Name: slug, Slug: slug, Gender: g, BodyArea: BodyAreaBody, DisplayOrder: order, Active: true}
}

func activeTenant() (*tenant.Tenant, *mockTenants) {
	t := &tenant.Tenant{ID: uuid.New(), Slug: "glow", Status: tenant.StatusActive}
	return t, &mockTenants{tenants: map[uuid.UUID]*tenant.Tenant{t.ID: t}}
}

func TestMerge_OverrideWinsPerKey(t *testing.T) {
	defAbdomen := region("abdomen", GenderAll, 1)
	defFace := region("face", GenderAll, 0)
	override := region("abdomen", GenderAll, 5)
	override.Name = "Tummy"

	got := Merge([]Region{override}, []Region{defAbdomen, defFace})

	if len(got) != 2 {
		t.Fatalf("expected 2 regions, got %d", len(got))
	}
	if got[0].Slug != "face" || got[0].Origin != OriginDefault {
		t.Errorf("expected default face first, got %+v", got[0])
	}
	if got[1].ID != override.ID || got[1].Origin != OriginOverride {
		t.Errorf("expected tenant abdomen override, got %+v", got[1])
	}
}

func TestMerge_AtMostOnePerKey(t *testing.T) {
	defaults := []Region{
		region("abdomen", GenderAll, 1),
		region("abdomen", GenderFemale, 1),
		region("abdomen", GenderAll, 2), // duplicate default key
		region("arms", GenderMale, 3),
	}
	overrides := []Region{
		region("abdomen", GenderFemale, 0),
		region("chest", GenderMale, 4),
	}

	got := Merge(overrides, defaults)

	seen := make(map[Key]Region)
	for _, r := range got {
		if prev, dup := seen[r.Key()]; dup {
			t.Fatalf("duplicate key %v: %s and %s", r.Key(), prev.ID, r.ID)
		}
		seen[r.Key()] = r
	}
	if seen[Key{"abdomen", GenderFemale}].Origin != OriginOverride {
		t.Error("abdomen/female must resolve to the override")
	}
	if seen[Key{"abdomen", GenderAll}].Origin != OriginDefault {
		t.Error("abdomen/all must remain the default")
	}
	if len(got) != 4 {
		t.Errorf("expected 4 regions, got %d", len(got))
	}
}

func TestMerge_SortOrder(t *testing.T) {
	got := Merge(nil, []Region{
		region("neck", GenderAll, 2),
		region("back", GenderMale, 1),
		region("back", GenderFemale, 1),
		region("arms", GenderAll, 1),
	})
	want := []Key{{"arms", GenderAll}, {"back", GenderFemale}, {"back", GenderMale}, {"neck", GenderAll}}
	for i, k := range want {
		if got[i].Key() != k {
			t.Errorf("position %d: got %v, want %v", i, got[i].Key(), k)
		}
	}
}

func TestMerge_InactiveOverrideRestoresDefault(t *testing.T) {
	retired := region("abdomen", GenderAll, 1)
	retired.Active = false
	def := region("abdomen", GenderAll, 1)

	got := Merge([]Region{retired}, []Region{def, region("face", GenderAll, 0)})
	if len(got) != 2 {
		t.Fatalf("expected face and the abdomen default, got %+v", got)
	}
	if got[1].ID != def.ID || got[1].Origin != OriginDefault {
		t.Errorf("expected the default abdomen row, got %+v", got[1])
	}
}

func TestResolve_AbdomenOverrideScenario(t *testing.T) {
	tn, tenants := activeTenant()
	def := region("abdomen", GenderAll, 3)
	override := region("abdomen", GenderFemale, 3)
	repo := &mockRepo{
		tenantRegions:  map[uuid.UUID][]Region{tn.ID: {override}},
		defaultRegions: []Region{def},
	}

	cat, err := NewResolver(tenants, repo).Resolve(context.Background(), tn.ID)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	female := cat.ForGender(GenderFemale)
	if len(female) != 1 || female[0].ID != override.ID {
		t.Errorf("female should see the tenant row, got %+v", female)
	}
	male := cat.ForGender(GenderMale)
	if len(male) != 1 || male[0].ID != def.ID {
		t.Errorf("male should see the all default, got %+v", male)
	}
}

func TestResolve_InactiveAllOverrideKeepsDefault(t *testing.T) {
	tn, tenants := activeTenant()
	retired := region("abdomen", GenderAll, 3)
	retired.Active = false
	override := region("abdomen", GenderFemale, 3)
	def := region("abdomen", GenderAll, 3)
	repo := &mockRepo{
		tenantRegions:  map[uuid.UUID][]Region{tn.ID: {override, retired}},
		defaultRegions: []Region{def},
	}

	cat, err := NewResolver(tenants, repo).Resolve(context.Background(), tn.ID)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if male := cat.ForGender(GenderMale); len(male) != 1 || male[0].ID != def.ID {
		t.Errorf("male should fall back to the all default, got %+v", male)
	}
	if female := cat.ForGender(GenderFemale); len(female) != 1 || female[0].ID != override.ID {
		t.Errorf("female should still see the override, got %+v", female)
	}
}

func TestResolve_ConcernsFollowResolvedRegions(t *testing.T) {
	tn, tenants := activeTenant()
	other := uuid.New()
	def := region("abdomen", GenderAll, 1)
	override := region("abdomen", GenderAll, 1)
	lonely := region("knees", GenderAll, 2)

	keep2 := Concern{ID: uuid.New(), RegionID: override.ID, Name: "Stretch marks", Slug: "stretch-marks", DisplayOrder: 2}
	keep1 := Concern{ID: uuid.New(), RegionID: override.ID, Name: "Fat", Slug: "fat", DisplayOrder: 1}
	orphan := Concern{ID: uuid.New(), RegionID: def.ID, Name: "Orphan", Slug: "orphan"}
	foreign := Concern{ID: uuid.New(), RegionID: override.ID, Name: "Foreign", Slug: "foreign"}

	repo := &mockRepo{
		tenantRegions:  map[uuid.UUID][]Region{tn.ID: {override}},
		defaultRegions: []Region{def, lonely},
		concerns:       []Concern{keep2, orphan, keep1, foreign},
		concernTenant:  map[uuid.UUID]uuid.UUID{foreign.ID: other},
	}

	cat, err := NewResolver(tenants, repo).Resolve(context.Background(), tn.ID)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(cat.Regions) != 2 {
		t.Fatalf("expected 2 regions, got %d", len(cat.Regions))
	}

	abdomen, ok := cat.Region(override.ID)
	if !ok {
		t.Fatal("override region missing")
	}
	if len(abdomen.Concerns) != 2 || abdomen.Concerns[0].ID != keep1.ID || abdomen.Concerns[1].ID != keep2.ID {
		t.Errorf("unexpected concerns %+v", abdomen.Concerns)
	}

	knees, _ := cat.Region(lonely.ID)
	if knees == nil || knees.Concerns == nil || len(knees.Concerns) != 0 {
		t.Errorf("region without concerns must be kept with an empty list, got %+v", knees)
	}
}

func TestResolve_TenantUnavailable(t *testing.T) {
	paused := &tenant.Tenant{ID: uuid.New(), Status: tenant.StatusSuspended}
	tenants := &mockTenants{tenants: map[uuid.UUID]*tenant.Tenant{paused.ID: paused}}
	r := NewResolver(tenants, &mockRepo{})

	for _, id := range []uuid.UUID{paused.ID, uuid.New()} {
		if _, err := r.Resolve(context.Background(), id); !errors.Is(err, tenant.ErrUnavailable) {
			t.Errorf("expected ErrUnavailable, got %v", err)
		}
	}
}

func TestResolve_EmptyCatalog(t *testing.T) {
	tn, tenants := activeTenant()
	cat, err := NewResolver(tenants, &mockRepo{}).Resolve(context.Background(), tn.ID)
	if err != nil {
		t.Fatalf("empty catalog must not be an error: %v", err)
	}
	if cat.Regions == nil || len(cat.Regions) != 0 {
		t.Errorf("expected empty non-nil regions, got %v", cat.Regions)
	}
}

func TestResolve_RepoError(t *testing.T) {
	tn, tenants := activeTenant()
	boom := errors.New("connection reset")
	if _, err := NewResolver(tenants, &mockRepo{err: boom}).Resolve(context.Background(), tn.ID); !errors.Is(err, boom) {
		t.Errorf("expected wrapped repo error, got %v", err)
	}
}

func TestFilterGender(t *testing.T) {
	regions := Merge(nil, []Region{
		region("abdomen", GenderAll, 1),
		region("abdomen", GenderFemale, 1),
		region("chest", GenderMale, 2),
		region("face", GenderAll, 0),
	})

	slugsFor := func(g Gender) []string {
		var out []string
		for _, r := range FilterGender(regions, g) {
			out = append(out, r.Slug+"/"+string(r.Gender))
		}
		return out
	}

	tests := []struct {
		gender Gender
		want   []string
	}{
		{GenderFemale, []string{"face/all", "abdomen/female"}},
		{GenderMale, []string{"face/all", "abdomen/all", "chest/male"}},
		{GenderAll, []string{"face/all", "abdomen/all", "abdomen/female", "chest/male"}},
	}
	for _, tt := range tests {
		got := slugsFor(tt.gender)
		if len(got) != len(tt.want) {
			t.Errorf("%s: got %v, want %v", tt.gender, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("%s: got %v, want %v", tt.gender, got, tt.want)
				break
			}
		}
	}
}
