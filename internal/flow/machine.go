package flow

import (
	"errors"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/intake/intake/internal/domain/catalog"
	"github.com/intake/intake/internal/domain/submission"
	"github.com/intake/intake/internal/domain/widget"
)

var (
	ErrNotReady       = errors.New("flow: config not loaded")
	ErrInvalidGender  = errors.New("flow: invalid gender")
	ErrUnknownAnchor  = errors.New("flow: unknown anchor")
	ErrUnknownConcern = errors.New("flow: concern not available")
	ErrUnknownService = errors.New("flow: unknown service")
	ErrCannotContinue = errors.New("flow: selection incomplete")
	ErrNotOnForm      = errors.New("flow: not on the contact form")
)

// DefaultGender is the diagram shown before the visitor picks one.
const DefaultGender = catalog.GenderFemale

// Contact is what the visitor types into the form.
type Contact struct {
	FirstName    string
	LastName     string
	Email        string
	Phone        string
	CustomFields map[string]any
	SourceURL    string
}

type Machine struct {
	phase Phase
	err   error

	cfg    *widget.ConfigResponse
	steps  []Step
	cursor int
	done   bool
	result uuid.UUID

	gender  catalog.Gender
	view    []catalog.Region
	regions map[uuid.UUID]bool
	// concernRegion maps each concern in the gender view to its region.
	concernRegion map[uuid.UUID]uuid.UUID

	selRegions  map[uuid.UUID]bool
	selConcerns map[uuid.UUID]bool
	selServices map[uuid.UUID]bool

	search string
	// manual holds explicit expand/collapse choices; it is cleared whenever
	// the selected region set changes.
	manual map[uuid.UUID]bool

	contact Contact
}

func NewMachine() *Machine {
	m := &Machine{phase: PhaseLoading, gender: DefaultGender}
	m.clearSelections()
	m.selServices = make(map[uuid.UUID]bool)
	return m
}

func (m *Machine) clearSelections() {
	m.selRegions = make(map[uuid.UUID]bool)
	m.selConcerns = make(map[uuid.UUID]bool)
	m.manual = make(map[uuid.UUID]bool)
}

// Load installs a fetched config and moves to the mode's first step. An
// Area step without regions is skipped, and when the catalog offers nothing
// to pick the cursor starts on the form.
func (m *Machine) Load(cfg *widget.ConfigResponse) {
	m.cfg = cfg
	m.phase = PhaseReady
	m.err = nil
	m.steps = Steps(cfg.WidgetMode)
	m.cursor = 0
	m.done = false
	m.rebuildView()
	m.prune()
	m.skipEmpty()
}

// firstStep is the index of the earliest step the visitor can land on.
func (m *Machine) firstStep() int {
	if len(m.steps) == 0 {
		return 0
	}
	form := len(m.steps) - 1
	if len(m.view) == 0 && len(m.concernRegion) == 0 && len(m.allServices()) == 0 {
		return form
	}
	if m.steps[0] != StepArea || len(m.view) > 0 {
		return 0
	}
	for i := 1; i < form; i++ {
		if m.pickable(m.steps[i]) {
			return i
		}
	}
	return form
}

// pickable reports whether step s offers anything to select. Concerns hang
// off regions, so without a region view there are none.
func (m *Machine) pickable(s Step) bool {
	switch s {
	case StepArea:
		return len(m.view) > 0
	case StepConcerns:
		return len(m.concernRegion) > 0
	case StepServices:
		return len(m.VisibleServices()) > 0
	}
	return true
}

func (m *Machine) skipEmpty() {
	if m.done {
		return
	}
	if first := m.firstStep(); m.cursor < first {
		m.cursor = first
	}
}

// Fail records a config fetch failure.
func (m *Machine) Fail(err error) {
	m.phase = PhaseError
	m.err = err
}

// Retry leaves the error phase for a new fetch without touching selections.
func (m *Machine) Retry() bool {
	if m.phase != PhaseError {
		return false
	}
	m.phase = PhaseLoading
	m.err = nil
	return true
}

// Reset returns to the first step with nothing selected. The caller must
// refetch the config; the return value is always true.
func (m *Machine) Reset() bool {
	m.phase = PhaseLoading
	m.err = nil
	m.cursor = 0
	m.done = false
	m.result = uuid.Nil
	m.gender = DefaultGender
	m.search = ""
	m.contact = Contact{}
	m.clearSelections()
	m.selServices = make(map[uuid.UUID]bool)
	if m.cfg != nil {
		m.rebuildView()
	}
	return true
}

func (m *Machine) Phase() Phase { return m.phase }
func (m *Machine) Err() error   { return m.err }

func (m *Machine) Config() *widget.ConfigResponse { return m.cfg }

// Steps returns the mode's step list.
func (m *Machine) Steps() []Step {
	out := make([]Step, len(m.steps))
	copy(out, m.steps)
	return out
}

// Step returns the current step. It is StepSuccess after Complete.
func (m *Machine) Step() Step {
	if m.done {
		return StepSuccess
	}
	if len(m.steps) == 0 {
		return StepArea
	}
	return m.steps[m.cursor]
}

// SubmissionID is set once the flow reached Success.
func (m *Machine) SubmissionID() uuid.UUID { return m.result }

func (m *Machine) Gender() catalog.Gender { return m.gender }

// SetGender switches the diagram and drops every region and concern
// selection. Service selections are kept.
func (m *Machine) SetGender(g catalog.Gender) error {
	if !g.Valid() {
		return ErrInvalidGender
	}
	m.gender = g
	m.clearSelections()
	if m.cfg != nil {
		m.rebuildView()
		m.skipEmpty()
	}
	return nil
}

func (m *Machine) rebuildView() {
	m.view = catalog.FilterGender(m.cfg.Regions, m.gender)
	m.regions = make(map[uuid.UUID]bool, len(m.view))
	m.concernRegion = make(map[uuid.UUID]uuid.UUID)
	for _, r := range m.view {
		m.regions[r.ID] = true
		for _, c := range r.Concerns {
			m.concernRegion[c.ID] = r.ID
		}
	}
}

// prune drops selections the current config no longer offers.
func (m *Machine) prune() {
	for id := range m.selRegions {
		if !m.regions[id] {
			delete(m.selRegions, id)
		}
	}
	for id := range m.selConcerns {
		if _, ok := m.concernRegion[id]; !ok {
			delete(m.selConcerns, id)
		}
	}
	offered := make(map[uuid.UUID]bool)
	for _, s := range m.allServices() {
		offered[s.ID] = true
	}
	for id := range m.selServices {
		if !offered[id] {
			delete(m.selServices, id)
		}
	}
}

// Regions returns the regions offered for the current gender.
func (m *Machine) Regions() []catalog.Region { return m.view }

func (m *Machine) Anchors() []Anchor {
	return VisibleAnchors(DefaultAnchors(m.gender), m.view)
}

// ToggleAnchor toggles every region behind the anchor as one unit.
func (m *Machine) ToggleAnchor(anchorID string) error {
	if m.phase != PhaseReady {
		return ErrNotReady
	}
	for _, a := range m.Anchors() {
		if a.ID != anchorID {
			continue
		}
		slugs := make(map[string]bool, len(a.RegionSlugs))
		for _, s := range a.RegionSlugs {
			slugs[s] = true
		}
		var ids []uuid.UUID
		for _, r := range m.view {
			if slugs[r.Slug] {
				ids = append(ids, r.ID)
			}
		}
		m.ToggleRegions(ids...)
		return nil
	}
	return ErrUnknownAnchor
}

// ToggleRegions deselects ids if all of them are selected and selects all of
// them otherwise. Ids outside the gender view are ignored.
func (m *Machine) ToggleRegions(ids ...uuid.UUID) {
	var known []uuid.UUID
	all := true
	for _, id := range ids {
		if !m.regions[id] {
			continue
		}
		known = append(known, id)
		if !m.selRegions[id] {
			all = false
		}
	}
	if len(known) == 0 {
		return
	}
	for _, id := range known {
		if all {
			m.deselectRegion(id)
		} else {
			m.selRegions[id] = true
		}
	}
	m.manual = make(map[uuid.UUID]bool)
}

// RemoveRegion deselects one region together with its concerns.
func (m *Machine) RemoveRegion(id uuid.UUID) {
	if !m.selRegions[id] {
		return
	}
	m.deselectRegion(id)
	m.manual = make(map[uuid.UUID]bool)
}

func (m *Machine) deselectRegion(id uuid.UUID) {
	delete(m.selRegions, id)
	for cid, rid := range m.concernRegion {
		if rid == id {
			delete(m.selConcerns, cid)
		}
	}
}

// regionScoped reports whether concerns are offered only for selected
// regions.
func (m *Machine) regionScoped() bool { return hasStep(m.steps, StepArea) }

func (m *Machine) ToggleConcern(id uuid.UUID) error {
	if m.phase != PhaseReady {
		return ErrNotReady
	}
	rid, ok := m.concernRegion[id]
	if !ok || (m.regionScoped() && !m.selRegions[rid]) {
		return ErrUnknownConcern
	}
	if m.selConcerns[id] {
		delete(m.selConcerns, id)
	} else {
		m.selConcerns[id] = true
	}
	return nil
}

func (m *Machine) ToggleService(id uuid.UUID) error {
	if m.phase != PhaseReady {
		return ErrNotReady
	}
	found := false
	for _, s := range m.allServices() {
		if s.ID == id {
			found = true
			break
		}
	}
	if !found {
		return ErrUnknownService
	}
	if m.selServices[id] {
		delete(m.selServices, id)
	} else {
		m.selServices[id] = true
	}
	return nil
}

func (m *Machine) SelectedRegions() int  { return len(m.selRegions) }
func (m *Machine) SelectedConcerns() int { return len(m.selConcerns) }
func (m *Machine) SelectedServices() int { return len(m.selServices) }

func (m *Machine) RegionSelected(id uuid.UUID) bool  { return m.selRegions[id] }
func (m *Machine) ConcernSelected(id uuid.UUID) bool { return m.selConcerns[id] }
func (m *Machine) ServiceSelected(id uuid.UUID) bool { return m.selServices[id] }

func (m *Machine) SetContact(c Contact) { m.contact = c }

// CanContinue reports whether the current step's requirements are met.
func (m *Machine) CanContinue() bool {
	if m.phase != PhaseReady || m.done {
		return false
	}
	switch step := m.Step(); {
	case step == StepArea:
		return len(m.selRegions) > 0
	case step.detail():
		return len(m.selRegions) > 0 || len(m.selConcerns)+len(m.selServices) > 0
	case step == StepForm:
		req := m.request()
		req.Normalize()
		return req.Validate() == nil
	}
	return false
}

// Continue advances one step. Leaving the form is done with Complete.
func (m *Machine) Continue() error {
	if m.phase != PhaseReady {
		return ErrNotReady
	}
	if m.done || m.Step() == StepForm {
		return ErrCannotContinue
	}
	if !m.CanContinue() {
		return ErrCannotContinue
	}
	m.cursor++
	return nil
}

// Back moves to the previous step. There is no way back from the first step
// or from Success, and skipped empty steps are never revisited.
func (m *Machine) Back() bool {
	if m.done || m.cursor <= m.firstStep() {
		return false
	}
	m.cursor--
	return true
}

// Submission builds the submit payload from the current selections and
// contact details.
func (m *Machine) Submission() (submission.Request, error) {
	if m.phase != PhaseReady {
		return submission.Request{}, ErrNotReady
	}
	if m.done || m.Step() != StepForm {
		return submission.Request{}, ErrNotOnForm
	}
	req := m.request()
	req.Normalize()
	if err := req.Validate(); err != nil {
		return submission.Request{}, err
	}
	return req, nil
}

func (m *Machine) request() submission.Request {
	req := submission.Request{
		TenantSlug:   m.cfg.Tenant.Slug,
		FirstName:    m.contact.FirstName,
		LastName:     m.contact.LastName,
		Email:        m.contact.Email,
		Gender:       m.gender,
		CustomFields: m.contact.CustomFields,
	}
	if m.contact.Phone != "" {
		p := m.contact.Phone
		req.Phone = &p
	}
	if m.contact.SourceURL != "" {
		u := m.contact.SourceURL
		req.SourceURL = &u
	}
	for _, r := range m.selectedRegionsByName() {
		req.SelectedRegions = append(req.SelectedRegions, submission.SelectedRegion{
			RegionID: r.ID.String(), RegionName: r.Name, RegionSlug: r.Slug,
		})
	}
	for _, r := range m.view {
		for _, c := range r.Concerns {
			if m.selConcerns[c.ID] {
				req.SelectedConcerns = append(req.SelectedConcerns, submission.SelectedConcern{
					ConcernID: c.ID.String(), ConcernName: c.Name, RegionID: r.ID.String(), RegionName: r.Name,
				})
			}
		}
	}
	return req
}

// Complete is the one-way transition from the form to Success after the
// submission was accepted.
func (m *Machine) Complete(id uuid.UUID) error {
	if m.phase != PhaseReady {
		return ErrNotReady
	}
	if m.done || m.Step() != StepForm {
		return ErrNotOnForm
	}
	m.done = true
	m.result = id
	return nil
}

func (m *Machine) selectedRegionsByName() []catalog.Region {
	var out []catalog.Region
	for _, r := range m.view {
		if m.selRegions[r.ID] {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (m *Machine) allServices() []catalog.Service {
	if m.cfg == nil {
		return nil
	}
	var out []catalog.Service
	for _, g := range m.cfg.ServiceCategories {
		out = append(out, g.Services...)
	}
	return out
}

// SetSearch filters concern groups by a case-insensitive name match.
func (m *Machine) SetSearch(q string) { m.search = strings.TrimSpace(q) }

func (m *Machine) Search() string { return m.search }

func (m *Machine) matches(c catalog.Concern) bool {
	return m.search == "" || strings.Contains(strings.ToLower(c.Name), strings.ToLower(m.search))
}

// Expanded reports whether a region's concern group is open. Selected
// regions with at least one matching concern open automatically unless the
// visitor collapsed them.
func (m *Machine) Expanded(regionID uuid.UUID) bool {
	if v, ok := m.manual[regionID]; ok {
		return v
	}
	if m.regionScoped() && !m.selRegions[regionID] {
		return false
	}
	for _, r := range m.view {
		if r.ID != regionID {
			continue
		}
		for _, c := range r.Concerns {
			if m.matches(c) {
				return true
			}
		}
	}
	return false
}

func (m *Machine) ToggleExpanded(regionID uuid.UUID) {
	m.manual[regionID] = !m.Expanded(regionID)
}

type ConcernGroup struct {
	Region        catalog.Region
	Concerns      []catalog.Concern
	SelectedCount int
	Popular       map[uuid.UUID]bool
	Expanded      bool
}

// ConcernGroups lists concerns by region: the selected regions sorted by
// name, or every region in the gender view when the mode has no area step.
// Regions without concerns, and regions with no match for the search, are
// left out.
func (m *Machine) ConcernGroups() []ConcernGroup {
	regions := m.view
	if m.regionScoped() {
		regions = m.selectedRegionsByName()
	}
	var out []ConcernGroup
	for _, r := range regions {
		if len(r.Concerns) == 0 {
			continue
		}
		g := ConcernGroup{Region: r, Popular: popular(r.Concerns), Expanded: m.Expanded(r.ID)}
		for _, c := range r.Concerns {
			if m.selConcerns[c.ID] {
				g.SelectedCount++
			}
			if m.matches(c) {
				g.Concerns = append(g.Concerns, c)
			}
		}
		if m.search != "" && len(g.Concerns) == 0 {
			continue
		}
		out = append(out, g)
	}
	return out
}

// popular marks the three lowest display orders of a group with more than
// three concerns.
func popular(concerns []catalog.Concern) map[uuid.UUID]bool {
	out := make(map[uuid.UUID]bool)
	if len(concerns) <= 3 {
		return out
	}
	sorted := make([]catalog.Concern, len(concerns))
	copy(sorted, concerns)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].DisplayOrder < sorted[j].DisplayOrder })
	for _, c := range sorted[:3] {
		out[c.ID] = true
	}
	return out
}

// VisibleServices returns the services offered on the services step. In
// services_only mode that is every service; otherwise those linked to a
// selected region or concern, plus services with no links at all.
func (m *Machine) VisibleServices() []catalog.Service {
	all := m.allServices()
	if m.cfg == nil || m.cfg.WidgetMode == widget.ModeServicesOnly {
		return all
	}
	var out []catalog.Service
	for _, s := range all {
		if len(s.RegionIDs) == 0 && len(s.ConcernIDs) == 0 {
			out = append(out, s)
			continue
		}
		if m.linked(s) {
			out = append(out, s)
		}
	}
	return out
}

func (m *Machine) linked(s catalog.Service) bool {
	for _, id := range s.RegionIDs {
		if m.selRegions[id] {
			return true
		}
	}
	for _, id := range s.ConcernIDs {
		if m.selConcerns[id] {
			return true
		}
	}
	return false
}

type RegionSummary struct {
	ID           uuid.UUID
	Name         string
	Slug         string
	ConcernCount int
}

type Summary struct {
	Regions      []RegionSummary
	ConcernCount int
	ServiceCount int
}

// Summary describes the current selection for the sidebar.
func (m *Machine) Summary() Summary {
	s := Summary{ConcernCount: len(m.selConcerns), ServiceCount: len(m.selServices)}
	for _, r := range m.selectedRegionsByName() {
		rs := RegionSummary{ID: r.ID, Name: r.Name, Slug: r.Slug}
		for _, c := range r.Concerns {
			if m.selConcerns[c.ID] {
				rs.ConcernCount++
			}
		}
		s.Regions = append(s.Regions, rs)
	}
	return s
}
