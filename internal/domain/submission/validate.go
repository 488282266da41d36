package submission

import (
	"fmt"
	"net/mail"
	"net/url"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	maxNameLength  = 100
	maxEmailLength = 320
	maxPhoneLength = 50
)

// ValidationError maps request fields to human readable problems.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + ": " + e.Fields[k]
	}
	return "invalid submission: " + strings.Join(parts, "; ")
}

// Normalize trims free-text fields and fills defaults in place.
func (r *Request) Normalize() {
	r.TenantSlug = strings.TrimSpace(r.TenantSlug)
	r.FirstName = strings.TrimSpace(r.FirstName)
	r.LastName = strings.TrimSpace(r.LastName)
	r.Email = strings.TrimSpace(r.Email)
	if r.Phone != nil {
		p := strings.TrimSpace(*r.Phone)
		if p == "" {
			r.Phone = nil
		} else {
			r.Phone = &p
		}
	}
	if r.SourceURL != nil && strings.TrimSpace(*r.SourceURL) == "" {
		r.SourceURL = nil
	}
	if r.SelectedRegions == nil {
		r.SelectedRegions = []SelectedRegion{}
	}
	if r.SelectedConcerns == nil {
		r.SelectedConcerns = []SelectedConcern{}
	}
	if r.CustomFields == nil {
		r.CustomFields = map[string]any{}
	}
}

// Validate checks the request shape. It does not check that ids refer to
// regions or concerns of the tenant.
func (r *Request) Validate() error {
	fields := make(map[string]string)

	if r.TenantSlug == "" {
		fields["tenant_slug"] = "is required"
	}
	checkName(fields, "first_name", r.FirstName)
	checkName(fields, "last_name", r.LastName)

	if r.Email == "" {
		fields["email"] = "is required"
	} else if !validEmail(r.Email) {
		fields["email"] = "must be a valid email address"
	}
	if r.Phone != nil && utf8.RuneCountInString(*r.Phone) > maxPhoneLength {
		fields["phone"] = fmt.Sprintf("must be at most %d characters", maxPhoneLength)
	}
	if !r.Gender.Valid() {
		fields["gender"] = "must be one of female, male, all"
	}

	for i, sr := range r.SelectedRegions {
		if !validUUID(sr.RegionID) {
			fields[fmt.Sprintf("selected_regions[%d].region_id", i)] = "must be a valid UUID"
		}
	}
	for i, sc := range r.SelectedConcerns {
		if !validUUID(sc.ConcernID) {
			fields[fmt.Sprintf("selected_concerns[%d].concern_id", i)] = "must be a valid UUID"
		}
		if !validUUID(sc.RegionID) {
			fields[fmt.Sprintf("selected_concerns[%d].region_id", i)] = "must be a valid UUID"
		}
	}

	if r.SourceURL != nil {
		u, err := url.Parse(*r.SourceURL)
		if err != nil || !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			fields["source_url"] = "must be an absolute http(s) URL"
		}
	}

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

func checkName(fields map[string]string, key, v string) {
	n := utf8.RuneCountInString(v)
	switch {
	case n == 0:
		fields[key] = "is required"
	case n > maxNameLength:
		fields[key] = fmt.Sprintf("must be at most %d characters", maxNameLength)
	}
}

func validEmail(s string) bool {
	if len(s) > maxEmailLength {
		return false
	}
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s {
		return false
	}
	_, domain, _ := strings.Cut(s, "@")
	return strings.Contains(domain, ".")
}

// validUUID accepts only the canonical hyphenated form.
func validUUID(s string) bool {
	if len(s) != 36 {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}
