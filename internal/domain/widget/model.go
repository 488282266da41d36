package widget

import (
	"errors"

	"github.com/google/uuid"

	"github.com/intake/intake/internal/domain/catalog"
)

// ErrNotConfigured means the tenant exists but has no widget_configs row.
var ErrNotConfigured = errors.New("widget not configured")

type Mode string

const (
	ModeRegionsConcernsServices Mode = "regions_concerns_services"
	ModeRegionsServices         Mode = "regions_services"
	ModeRegionsConcerns         Mode = "regions_concerns"
	ModeConcernsOnly            Mode = "concerns_only"
	ModeServicesOnly            Mode = "services_only"

	DefaultMode = ModeRegionsConcerns
)

func (m Mode) Valid() bool {
	switch m {
	case ModeRegionsConcernsServices, ModeRegionsServices, ModeRegionsConcerns, ModeConcernsOnly, ModeServicesOnly:
		return true
	}
	return false
}

type DiagramType string

const (
	DiagramFace     DiagramType = "face"
	DiagramBody     DiagramType = "body"
	DiagramFullBody DiagramType = "full_body"

	DefaultDiagramType = DiagramFullBody
)

func (d DiagramType) Valid() bool {
	switch d {
	case DiagramFace, DiagramBody, DiagramFullBody:
		return true
	}
	return false
}

type FieldType string

const (
	FieldText     FieldType = "text"
	FieldEmail    FieldType = "email"
	FieldPhone    FieldType = "phone"
	FieldTextarea FieldType = "textarea"
	FieldSelect   FieldType = "select"
	FieldCheckbox FieldType = "checkbox"
	FieldRadio    FieldType = "radio"
)

// Config is a tenant's widget_configs row.
type Config struct {
	TenantID           uuid.UUID
	PrimaryColor       string
	SecondaryColor     string
	AccentColor        string
	FontFamily         string
	CTAText            string
	SuccessMessage     string
	RedirectURL        *string
	CustomCSS          *string
	Mode               Mode
	DiagramType        DiagramType
	WebhookURL         *string
	WebhookSecret      *string
	NotificationEmails []string
	AllowedOrigins     []string
}

// HasWebhook reports whether submissions should be delivered.
func (c *Config) HasWebhook() bool {
	return c.WebhookURL != nil && *c.WebhookURL != ""
}

func (c *Config) Secret() string {
	if c.WebhookSecret == nil {
		return ""
	}
	return *c.WebhookSecret
}

type FormField struct {
	ID           uuid.UUID `json:"id"`
	FieldType    FieldType `json:"field_type"`
	Label        string    `json:"label"`
	Placeholder  *string   `json:"placeholder"`
	Options      []string  `json:"options"`
	IsRequired   bool      `json:"is_required"`
	DisplayOrder int       `json:"display_order"`
}

// ConfigResponse is the public widget contract. Every key is always present
// and every array is non-nil.
type ConfigResponse struct {
	Tenant            TenantInfo       `json:"tenant"`
	Branding          Branding         `json:"branding"`
	WidgetMode        Mode             `json:"widget_mode"`
	DiagramType       DiagramType      `json:"diagram_type"`
	Regions           []catalog.Region `json:"regions"`
	ServiceCategories []CategoryGroup  `json:"service_categories"`
	FormFields        []FormField      `json:"form_fields"`
}

type TenantInfo struct {
	Name    string  `json:"name"`
	Slug    string  `json:"slug"`
	LogoURL *string `json:"logo_url"`
}

type Branding struct {
	PrimaryColor   string  `json:"primary_color"`
	SecondaryColor string  `json:"secondary_color"`
	AccentColor    string  `json:"accent_color"`
	FontFamily     string  `json:"font_family"`
	CTAText        string  `json:"cta_text"`
	SuccessMessage string  `json:"success_message"`
	RedirectURL    *string `json:"redirect_url"`
	CustomCSS      *string `json:"custom_css"`
}

// UncategorizedID is the id of the synthetic category holding services
// without a category.
const UncategorizedID = "uncategorized"

type CategoryGroup struct {
	ID       string            `json:"id"`
	Name     string            `json:"name"`
	Slug     string            `json:"slug"`
	Services []catalog.Service `json:"services"`
}
