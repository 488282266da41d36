package catalog

import (
	"github.com/google/uuid"
)

type Gender string

const (
	GenderFemale Gender = "female"
	GenderMale   Gender = "male"
	GenderAll    Gender = "all"
)

func (g Gender) Valid() bool {
	switch g {
	case GenderFemale, GenderMale, GenderAll:
		return true
	}
	return false
}

type BodyArea string

const (
	BodyAreaFace BodyArea = "face"
	BodyAreaBody BodyArea = "body"
)

type DiagramView string

const (
	ViewFront DiagramView = "front"
	ViewBack  DiagramView = "back"
	ViewFace  DiagramView = "face"
)

// Origin tells whether a region row is a platform default or a tenant
// override. It is derived from the row's owner at the storage boundary.
type Origin int

const (
	OriginDefault Origin = iota
	OriginOverride
)

func (o Origin) String() string {
	if o == OriginOverride {
		return "override"
	}
	return "default"
}

// Key identifies a region for merge purposes.
type Key struct {
	Slug   string
	Gender Gender
}

type Region struct {
	ID           uuid.UUID    `json:"id"`
	Origin       Origin       `json:"-"`
	Active       bool         `json:"-"`
	Name         string       `json:"name"`
	Slug         string       `json:"slug"`
	Gender       Gender       `json:"gender"`
	BodyArea     BodyArea     `json:"body_area"`
	DisplayOrder int          `json:"display_order"`
	HotspotX     *float64     `json:"hotspot_x"`
	HotspotY     *float64     `json:"hotspot_y"`
	DiagramView  *DiagramView `json:"diagram_view"`
	Concerns     []Concern    `json:"concerns"`
}

func (r *Region) Key() Key { return Key{Slug: r.Slug, Gender: r.Gender} }

type Concern struct {
	ID           uuid.UUID `json:"id"`
	RegionID     uuid.UUID `json:"-"`
	Name         string    `json:"name"`
	Slug         string    `json:"slug"`
	Description  *string   `json:"description"`
	DisplayOrder int       `json:"display_order"`
}

type ServiceCategory struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Slug         string    `json:"slug"`
	Description  *string   `json:"description,omitempty"`
	DisplayOrder int       `json:"display_order"`
}

// Service is a tenant-offered treatment with its flattened region and
// concern links.
type Service struct {
	ID           uuid.UUID   `json:"id"`
	CategoryID   *uuid.UUID  `json:"category_id"`
	Name         string      `json:"name"`
	Slug         string      `json:"slug"`
	Description  *string     `json:"description"`
	DisplayOrder int         `json:"display_order"`
	RegionIDs    []uuid.UUID `json:"region_ids"`
	ConcernIDs   []uuid.UUID `json:"concern_ids"`
}

// Catalog is the resolved region tree for one tenant, sorted for display.
type Catalog struct {
	Regions []Region
}

func (c *Catalog) Region(id uuid.UUID) (*Region, bool) {
	for i := range c.Regions {
		if c.Regions[i].ID == id {
			return &c.Regions[i], true
		}
	}
	return nil, false
}

func (c *Catalog) RegionIDs() []uuid.UUID {
	ids := make([]uuid.UUID, len(c.Regions))
	for i, r := range c.Regions {
		ids[i] = r.ID
	}
	return ids
}

// ForGender returns the regions shown to g. For each slug the row with
// exactly g wins over the "all" row; "all" itself sees every region.
func (c *Catalog) ForGender(g Gender) []Region {
	return FilterGender(c.Regions, g)
}

// FilterGender applies the ForGender rule to an already sorted region list,
// preserving order.
func FilterGender(regions []Region, g Gender) []Region {
	if g == GenderAll || g == "" {
		out := make([]Region, len(regions))
		copy(out, regions)
		return out
	}
	specific := make(map[string]bool)
	for _, r := range regions {
		if r.Gender == g {
			specific[r.Slug] = true
		}
	}
	out := make([]Region, 0, len(regions))
	for _, r := range regions {
		switch {
		case r.Gender == g:
			out = append(out, r)
		case r.Gender == GenderAll && !specific[r.Slug]:
			out = append(out, r)
		}
	}
	return out
}
