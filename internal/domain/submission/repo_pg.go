package submission

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/intake/intake/internal/domain/catalog"
	"github.com/intake/intake/internal/platform/db"
)

const submissionColumns = `id, tenant_id, first_name, last_name, email, phone, gender,
	selected_regions, selected_concerns, custom_fields, source_url,
	lead_status, webhook_status, webhook_sent_at, created_at, updated_at`

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

func (r *repoPG) Create(ctx context.Context, s *Submission) error {
	s.ID = uuid.New()
	var webhookStatus *string
	if s.WebhookStatus != nil {
		v := string(*s.WebhookStatus)
		webhookStatus = &v
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO form_submissions (id, tenant_id, first_name, last_name, email, phone, gender,
			selected_regions, selected_concerns, custom_fields, source_url, lead_status, webhook_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING created_at, updated_at`,
		s.ID, s.TenantID, s.FirstName, s.LastName, s.Email, s.Phone, string(s.Gender),
		s.SelectedRegions, s.SelectedConcerns, s.CustomFields, s.SourceURL,
		string(s.LeadStatus), webhookStatus,
	).Scan(&s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert submission: %w", err)
	}
	return nil
}

func (r *repoPG) GetByID(ctx context.Context, tenantID, id uuid.UUID) (*Submission, error) {
	s, err := scanSubmission(r.conn(ctx).QueryRow(ctx,
		`SELECT `+submissionColumns+` FROM form_submissions WHERE tenant_id = $1 AND id = $2`, tenantID, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return s, err
}

func (r *repoPG) List(ctx context.Context, tenantID uuid.UUID, f ListFilter, limit, offset int) ([]*Submission, int, error) {
	where := []string{"tenant_id = $1"}
	args := []any{tenantID}
	if f.LeadStatus != "" {
		args = append(args, string(f.LeadStatus))
		where = append(where, fmt.Sprintf("lead_status = $%d", len(args)))
	}
	if f.WebhookStatus != "" {
		args = append(args, string(f.WebhookStatus))
		where = append(where, fmt.Sprintf("webhook_status = $%d", len(args)))
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM form_submissions WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count submissions: %w", err)
	}

	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx, fmt.Sprintf(
		`SELECT %s FROM form_submissions WHERE %s ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`,
		submissionColumns, cond, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list submissions: %w", err)
	}
	defer rows.Close()

	var items []*Submission
	for rows.Next() {
		s, err := scanSubmission(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, s)
	}
	return items, total, rows.Err()
}

func (r *repoPG) ListPending(ctx context.Context, before time.Time, limit int) ([]*Submission, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+submissionColumns+` FROM form_submissions
		WHERE webhook_status = 'pending' AND updated_at < $1
		ORDER BY updated_at LIMIT $2`, before, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending submissions: %w", err)
	}
	defer rows.Close()

	var items []*Submission
	for rows.Next() {
		s, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	return items, rows.Err()
}

func (r *repoPG) SetWebhookStatus(ctx context.Context, id uuid.UUID, status WebhookStatus, sentAt *time.Time) error {
	if status != WebhookSent {
		sentAt = nil
	}
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE form_submissions
		SET webhook_status = $2, webhook_sent_at = COALESCE($3, webhook_sent_at), updated_at = NOW()
		WHERE id = $1`, id, string(status), sentAt)
	if err != nil {
		return fmt.Errorf("set webhook status: %w", err)
	}
	return nil
}

func (r *repoPG) MarkPending(ctx context.Context, tenantID, id uuid.UUID) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE form_submissions SET webhook_status = 'pending', updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2 AND webhook_status = 'failed'`, tenantID, id)
	if err != nil {
		return false, fmt.Errorf("mark submission pending: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *repoPG) UpdateLeadStatus(ctx context.Context, tenantID, id uuid.UUID, from, to LeadStatus) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE form_submissions SET lead_status = $4, updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2 AND lead_status = $3`, tenantID, id, string(from), string(to))
	if err != nil {
		return false, fmt.Errorf("update lead status: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func scanSubmission(row pgx.Row) (*Submission, error) {
	var s Submission
	var gender, lead string
	var webhook *string
	err := row.Scan(
		&s.ID, &s.TenantID, &s.FirstName, &s.LastName, &s.Email, &s.Phone, &gender,
		&s.SelectedRegions, &s.SelectedConcerns, &s.CustomFields, &s.SourceURL,
		&lead, &webhook, &s.WebhookSentAt, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	s.Gender = catalog.Gender(gender)
	s.LeadStatus = LeadStatus(lead)
	if webhook != nil {
		s.WebhookStatus = webhookStatusPtr(WebhookStatus(*webhook))
	}
	return &s, nil
}
