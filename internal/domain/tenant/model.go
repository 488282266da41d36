package tenant

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrUnavailable means the tenant does not exist or is not active. Public
// endpoints treat both the same way.
var ErrUnavailable = errors.New("tenant not found or inactive")

var ErrSlugTaken = errors.New("tenant slug already in use")

type Status string

const (
	StatusActive    Status = "active"
	StatusInactive  Status = "inactive"
	StatusSuspended Status = "suspended"
)

func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusInactive, StatusSuspended:
		return true
	}
	return false
}

// Tenant is a practice using the widget.
type Tenant struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Slug      string    `db:"slug" json:"slug"`
	LogoURL   *string   `db:"logo_url" json:"logo_url"`
	Status    Status    `db:"status" json:"status"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

func (t *Tenant) Active() bool { return t.Status == StatusActive }
