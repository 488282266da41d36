package submission

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	// Create inserts s and fills ID, CreatedAt and UpdatedAt.
	Create(ctx context.Context, s *Submission) error
	GetByID(ctx context.Context, tenantID, id uuid.UUID) (*Submission, error)
	List(ctx context.Context, tenantID uuid.UUID, f ListFilter, limit, offset int) ([]*Submission, int, error)
	// ListPending returns rows still pending whose last update is before
	// the cutoff, oldest first.
	ListPending(ctx context.Context, before time.Time, limit int) ([]*Submission, error)
	// SetWebhookStatus records a delivery outcome. sentAt is stored only
	// for WebhookSent.
	SetWebhookStatus(ctx context.Context, id uuid.UUID, status WebhookStatus, sentAt *time.Time) error
	// MarkPending moves a failed row back to pending. It reports false when
	// the row was not failed.
	MarkPending(ctx context.Context, tenantID, id uuid.UUID) (bool, error)
	// UpdateLeadStatus changes the lead status only if it still equals
	// from, reporting whether a row changed.
	UpdateLeadStatus(ctx context.Context, tenantID, id uuid.UUID, from, to LeadStatus) (bool, error)
}
