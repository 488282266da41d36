package submission

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/intake/intake/internal/domain/catalog"
)

var (
	ErrNotFound          = errors.New("submission not found")
	ErrInvalidTransition = errors.New("lead status transition not allowed")
	ErrNotRedeliverable  = errors.New("submission webhook is not in a redeliverable state")
)

type LeadStatus string

const (
	LeadNew       LeadStatus = "new"
	LeadContacted LeadStatus = "contacted"
	LeadScheduled LeadStatus = "scheduled"
	LeadConverted LeadStatus = "converted"
	LeadLost      LeadStatus = "lost"
)

var leadTransitions = map[LeadStatus][]LeadStatus{
	LeadNew:       {LeadContacted, LeadLost},
	LeadContacted: {LeadScheduled},
	LeadScheduled: {LeadConverted},
}

func (s LeadStatus) Valid() bool {
	switch s {
	case LeadNew, LeadContacted, LeadScheduled, LeadConverted, LeadLost:
		return true
	}
	return false
}

// CanTransition reports whether a lead may move from s to next. The
// lifecycle is forward only.
func (s LeadStatus) CanTransition(next LeadStatus) bool {
	for _, allowed := range leadTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type WebhookStatus string

const (
	WebhookPending WebhookStatus = "pending"
	WebhookSent    WebhookStatus = "sent"
	WebhookFailed  WebhookStatus = "failed"
)

type SelectedRegion struct {
	RegionID   string `json:"region_id"`
	RegionName string `json:"region_name"`
	RegionSlug string `json:"region_slug"`
}

type SelectedConcern struct {
	ConcernID   string `json:"concern_id"`
	ConcernName string `json:"concern_name"`
	RegionID    string `json:"region_id"`
	RegionName  string `json:"region_name"`
}

// Request is the public submit payload.
type Request struct {
	TenantSlug       string            `json:"tenant_slug"`
	FirstName        string            `json:"first_name"`
	LastName         string            `json:"last_name"`
	Email            string            `json:"email"`
	Phone            *string           `json:"phone,omitempty"`
	Gender           catalog.Gender    `json:"gender"`
	SelectedRegions  []SelectedRegion  `json:"selected_regions"`
	SelectedConcerns []SelectedConcern `json:"selected_concerns"`
	CustomFields     map[string]any    `json:"custom_fields"`
	SourceURL        *string           `json:"source_url,omitempty"`
}

// Submission is a persisted lead. WebhookStatus is nil when the tenant had
// no webhook configured at submit time.
type Submission struct {
	ID               uuid.UUID         `json:"id"`
	TenantID         uuid.UUID         `json:"tenant_id"`
	FirstName        string            `json:"first_name"`
	LastName         string            `json:"last_name"`
	Email            string            `json:"email"`
	Phone            *string           `json:"phone"`
	Gender           catalog.Gender    `json:"gender"`
	SelectedRegions  []SelectedRegion  `json:"selected_regions"`
	SelectedConcerns []SelectedConcern `json:"selected_concerns"`
	CustomFields     map[string]any    `json:"custom_fields"`
	SourceURL        *string           `json:"source_url"`
	LeadStatus       LeadStatus        `json:"lead_status"`
	WebhookStatus    *WebhookStatus    `json:"webhook_status"`
	WebhookSentAt    *time.Time        `json:"webhook_sent_at"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// ListFilter narrows admin listings. Zero values match everything.
type ListFilter struct {
	LeadStatus    LeadStatus
	WebhookStatus WebhookStatus
}

func webhookStatusPtr(s WebhookStatus) *WebhookStatus { return &s }
