package flow

import "github.com/intake/intake/internal/domain/catalog"

// Anchor is one clickable point on the body diagram. It may stand for
// several region rows, matched by slug.
type Anchor struct {
	ID          string   `json:"id"`
	Label       string   `json:"label"`
	X           float64  `json:"x"`
	Y           float64  `json:"y"`
	RegionSlugs []string `json:"region_slugs"`
}

var faceSlugs = []string{"upper-face", "midface", "lower-face", "lips"}

var femaleAnchors = []Anchor{
	{ID: "face", Label: "Face", X: 100, Y: 25, RegionSlugs: faceSlugs},
	{ID: "neck", Label: "Neck", X: 100, Y: 78, RegionSlugs: []string{"neck"}},
	{ID: "chest", Label: "Chest", X: 135, Y: 150, RegionSlugs: []string{"chest"}},
	{ID: "arms", Label: "Arms", X: 27, Y: 245, RegionSlugs: []string{"arms"}},
	{ID: "abdomen", Label: "Abdomen", X: 100, Y: 260, RegionSlugs: []string{"abdomen"}},
	{ID: "flanks", Label: "Flanks", X: 42, Y: 215, RegionSlugs: []string{"flanks"}},
	{ID: "hands", Label: "Hands", X: 10, Y: 375, RegionSlugs: []string{"hands"}},
	{ID: "intimate", Label: "Intimate", X: 100, Y: 335, RegionSlugs: []string{"intimate"}},
	{ID: "thighs", Label: "Thighs", X: 122, Y: 440, RegionSlugs: []string{"thighs"}},
	{ID: "lower-legs", Label: "Lower Legs", X: 78, Y: 560, RegionSlugs: []string{"lower-legs"}},
}

var maleAnchors = []Anchor{
	{ID: "face", Label: "Face", X: 100, Y: 22, RegionSlugs: faceSlugs},
	{ID: "neck", Label: "Neck", X: 100, Y: 72, RegionSlugs: []string{"neck"}},
	{ID: "chest", Label: "Chest", X: 138, Y: 142, RegionSlugs: []string{"chest"}},
	{ID: "arms", Label: "Arms", X: 22, Y: 228, RegionSlugs: []string{"arms"}},
	{ID: "abdomen", Label: "Abdomen", X: 100, Y: 245, RegionSlugs: []string{"abdomen"}},
	{ID: "flanks", Label: "Flanks", X: 38, Y: 205, RegionSlugs: []string{"flanks"}},
	{ID: "hands", Label: "Hands", X: 8, Y: 348, RegionSlugs: []string{"hands"}},
	{ID: "thighs", Label: "Thighs", X: 125, Y: 408, RegionSlugs: []string{"thighs"}},
	{ID: "lower-legs", Label: "Lower Legs", X: 75, Y: 520, RegionSlugs: []string{"lower-legs"}},
}

// DefaultAnchors returns the diagram anchors for g. The "all" view uses the
// female diagram.
func DefaultAnchors(g catalog.Gender) []Anchor {
	src := femaleAnchors
	if g == catalog.GenderMale {
		src = maleAnchors
	}
	out := make([]Anchor, len(src))
	copy(out, src)
	return out
}

// VisibleAnchors keeps anchors with at least one slug present in regions.
func VisibleAnchors(anchors []Anchor, regions []catalog.Region) []Anchor {
	present := make(map[string]bool, len(regions))
	for _, r := range regions {
		present[r.Slug] = true
	}
	var out []Anchor
	for _, a := range anchors {
		for _, s := range a.RegionSlugs {
			if present[s] {
				out = append(out, a)
				break
			}
		}
	}
	return out
}
