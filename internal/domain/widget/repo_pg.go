package widget

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/intake/intake/internal/platform/db"
)

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

func (r *repoPG) GetConfig(ctx context.Context, tenantID uuid.UUID) (*Config, error) {
	var c Config
	var mode, diagram *string
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT tenant_id, primary_color, secondary_color, accent_color, font_family,
		       cta_text, success_message, redirect_url, custom_css,
		       widget_mode, diagram_type, webhook_url, webhook_secret,
		       notification_emails, allowed_origins
		FROM widget_configs WHERE tenant_id = $1`, tenantID,
	).Scan(
		&c.TenantID, &c.PrimaryColor, &c.SecondaryColor, &c.AccentColor, &c.FontFamily,
		&c.CTAText, &c.SuccessMessage, &c.RedirectURL, &c.CustomCSS,
		&mode, &diagram, &c.WebhookURL, &c.WebhookSecret,
		&c.NotificationEmails, &c.AllowedOrigins,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotConfigured
	}
	if err != nil {
		return nil, fmt.Errorf("get widget config: %w", err)
	}
	if mode != nil {
		c.Mode = Mode(*mode)
	}
	if diagram != nil {
		c.DiagramType = DiagramType(*diagram)
	}
	return &c, nil
}

func (r *repoPG) ListFormFields(ctx context.Context, tenantID uuid.UUID) ([]FormField, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, field_type, label, placeholder, options, is_required, display_order
		FROM form_fields WHERE tenant_id = $1
		ORDER BY display_order, label`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("query form fields: %w", err)
	}
	defer rows.Close()

	var out []FormField
	for rows.Next() {
		var f FormField
		var fieldType string
		if err := rows.Scan(&f.ID, &fieldType, &f.Label, &f.Placeholder, &f.Options, &f.IsRequired, &f.DisplayOrder); err != nil {
			return nil, fmt.Errorf("scan form field: %w", err)
		}
		f.FieldType = FieldType(fieldType)
		out = append(out, f)
	}
	return out, rows.Err()
}
