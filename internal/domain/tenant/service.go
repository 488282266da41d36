package tenant

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Create(ctx context.Context, name, slug string) (*Tenant, error) {
	name = strings.TrimSpace(name)
	slug = strings.TrimSpace(slug)
	if name == "" {
		return nil, fmt.Errorf("tenant name is required")
	}
	if len(slug) > 100 || !slugPattern.MatchString(slug) {
		return nil, fmt.Errorf("invalid slug %q: use lowercase letters, digits and single hyphens", slug)
	}
	t := &Tenant{Name: name, Slug: slug, Status: StatusActive}
	if err := s.repo.Create(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// Active resolves a slug to an active tenant. Unknown, inactive and
// suspended tenants all yield ErrUnavailable.
func (s *Service) Active(ctx context.Context, slug string) (*Tenant, error) {
	if slug == "" {
		return nil, ErrUnavailable
	}
	t, err := s.repo.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if !t.Active() {
		return nil, ErrUnavailable
	}
	return t, nil
}

func (s *Service) SetStatus(ctx context.Context, slug string, status Status) (*Tenant, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("invalid status %q", status)
	}
	t, err := s.repo.GetBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if err := s.repo.UpdateStatus(ctx, t.ID, status); err != nil {
		return nil, err
	}
	t.Status = status
	return t, nil
}
