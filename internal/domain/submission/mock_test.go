package submission

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/intake/intake/internal/domain/tenant"
	"github.com/intake/intake/internal/domain/widget"
	"github.com/intake/intake/internal/platform/webhook"
)

type mockTenants struct {
	bySlug map[string]*tenant.Tenant
}

func (m *mockTenants) Active(_ context.Context, slug string) (*tenant.Tenant, error) {
	t, ok := m.bySlug[slug]
	if !ok || !t.Active() {
		return nil, tenant.ErrUnavailable
	}
	return t, nil
}

type mockConfigs struct {
	configs map[uuid.UUID]*widget.Config
}

func (m *mockConfigs) GetConfig(_ context.Context, id uuid.UUID) (*widget.Config, error) {
	c, ok := m.configs[id]
	if !ok {
		return nil, widget.ErrNotConfigured
	}
	return c, nil
}

type mockRepo struct {
	mu    sync.Mutex
	rows  map[uuid.UUID]*Submission
	order []uuid.UUID
	err   error
}

func newMockRepo() *mockRepo {
	return &mockRepo{rows: make(map[uuid.UUID]*Submission)}
}

func (m *mockRepo) Create(_ context.Context, s *Submission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	s.ID = uuid.New()
	s.CreatedAt = time.Now()
	s.UpdatedAt = s.CreatedAt
	cp := *s
	m.rows[s.ID] = &cp
	m.order = append(m.order, s.ID)
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, tenantID, id uuid.UUID) (*Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.rows[id]
	if !ok || s.TenantID != tenantID {
		return nil, ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *mockRepo) List(_ context.Context, tenantID uuid.UUID, f ListFilter, limit, offset int) ([]*Submission, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []*Submission
	for _, id := range m.order {
		s := m.rows[id]
		if s.TenantID != tenantID {
			continue
		}
		if f.LeadStatus != "" && s.LeadStatus != f.LeadStatus {
			continue
		}
		if f.WebhookStatus != "" && (s.WebhookStatus == nil || *s.WebhookStatus != f.WebhookStatus) {
			continue
		}
		cp := *s
		all = append(all, &cp)
	}
	total := len(all)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (m *mockRepo) ListPending(_ context.Context, before time.Time, limit int) ([]*Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Submission
	for _, s := range m.rows {
		if s.WebhookStatus != nil && *s.WebhookStatus == WebhookPending && s.UpdatedAt.Before(before) {
			cp := *s
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockRepo) SetWebhookStatus(_ context.Context, id uuid.UUID, status WebhookStatus, sentAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.rows[id]
	if !ok {
		return ErrNotFound
	}
	s.WebhookStatus = webhookStatusPtr(status)
	if status == WebhookSent {
		s.WebhookSentAt = sentAt
	}
	s.UpdatedAt = time.Now()
	return nil
}

func (m *mockRepo) MarkPending(_ context.Context, tenantID, id uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.rows[id]
	if !ok || s.TenantID != tenantID || s.WebhookStatus == nil || *s.WebhookStatus != WebhookFailed {
		return false, nil
	}
	s.WebhookStatus = webhookStatusPtr(WebhookPending)
	s.UpdatedAt = time.Now()
	return true, nil
}

func (m *mockRepo) UpdateLeadStatus(_ context.Context, tenantID, id uuid.UUID, from, to LeadStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.rows[id]
	if !ok || s.TenantID != tenantID || s.LeadStatus != from {
		return false, nil
	}
	s.LeadStatus = to
	return true, nil
}

func (m *mockRepo) row(id uuid.UUID) Submission {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.rows[id]
}

// backdate makes every row look older than d.
func (m *mockRepo) backdate(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.rows {
		s.UpdatedAt = s.UpdatedAt.Add(-d)
	}
}

type mockQueue struct {
	mu   sync.Mutex
	jobs []webhook.Job
	err  error
}

func (q *mockQueue) Enqueue(job webhook.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *mockQueue) EnqueueWait(_ context.Context, job webhook.Job) error {
	return q.Enqueue(job)
}

func (q *mockQueue) Jobs() []webhook.Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]webhook.Job(nil), q.jobs...)
}
