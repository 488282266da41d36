package submission

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/intake/intake/internal/domain/tenant"
	"github.com/intake/intake/internal/domain/widget"
	"github.com/intake/intake/internal/platform/notification"
	"github.com/intake/intake/internal/platform/webhook"
)

const EventCreated = "submission.created"

type TenantFinder interface {
	Active(ctx context.Context, slug string) (*tenant.Tenant, error)
}

type ConfigGetter interface {
	GetConfig(ctx context.Context, tenantID uuid.UUID) (*widget.Config, error)
}

// Queue accepts delivery jobs. Enqueue never blocks; EnqueueWait waits for
// room.
type Queue interface {
	Enqueue(job webhook.Job) error
	EnqueueWait(ctx context.Context, job webhook.Job) error
}

type LeadNotifier interface {
	NotifyNewLead(ctx context.Context, recipients []string, lead notification.NewLead) error
}

// Relay persists submissions and hands their webhook delivery to a queue.
type Relay struct {
	tenants  TenantFinder
	configs  ConfigGetter
	repo     Repository
	queue    Queue
	notifier LeadNotifier
	logger   zerolog.Logger

	statusTimeout time.Duration
	notifyWG      sync.WaitGroup
}

func NewRelay(tenants TenantFinder, configs ConfigGetter, repo Repository, queue Queue, notifier LeadNotifier, logger zerolog.Logger) *Relay {
	return &Relay{
		tenants:       tenants,
		configs:       configs,
		repo:          repo,
		queue:         queue,
		notifier:      notifier,
		logger:        logger.With().Str("component", "relay").Logger(),
		statusTimeout: 5 * time.Second,
	}
}

// Submit validates and stores req. When the tenant has a webhook the row is
// stored as pending and a delivery is enqueued after the insert; the call
// never waits for the delivery itself.
func (r *Relay) Submit(ctx context.Context, req Request) (*Submission, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	t, err := r.tenants.Active(ctx, req.TenantSlug)
	if err != nil {
		return nil, err
	}
	cfg, err := r.configs.GetConfig(ctx, t.ID)
	switch {
	case errors.Is(err, widget.ErrNotConfigured):
		cfg = nil
	case err != nil:
		return nil, fmt.Errorf("load widget config: %w", err)
	}

	s := &Submission{
		TenantID:         t.ID,
		FirstName:        req.FirstName,
		LastName:         req.LastName,
		Email:            req.Email,
		Phone:            req.Phone,
		Gender:           req.Gender,
		SelectedRegions:  req.SelectedRegions,
		SelectedConcerns: req.SelectedConcerns,
		CustomFields:     req.CustomFields,
		SourceURL:        req.SourceURL,
		LeadStatus:       LeadNew,
	}
	if cfg != nil && cfg.HasWebhook() {
		s.WebhookStatus = webhookStatusPtr(WebhookPending)
	}
	if err := r.repo.Create(ctx, s); err != nil {
		return nil, err
	}

	if s.WebhookStatus != nil {
		r.dispatch(s, cfg)
	}
	if cfg != nil && len(cfg.NotificationEmails) > 0 && r.notifier != nil {
		r.notify(ctx, t, s, cfg.NotificationEmails)
	}
	return s, nil
}

// dispatch enqueues delivery of a row already stored as pending. A full or
// stopped queue marks the row failed immediately.
func (r *Relay) dispatch(s *Submission, cfg *widget.Config) {
	job, err := deliveryJob(s, cfg)
	if err == nil {
		err = r.queue.Enqueue(job)
	}
	if err != nil {
		r.markFailed(s, err)
	}
}

func deliveryJob(s *Submission, cfg *widget.Config) (webhook.Job, error) {
	body, err := Envelope(s)
	if err != nil {
		return webhook.Job{}, err
	}
	return webhook.Job{
		ID:       s.ID.String(),
		TenantID: s.TenantID.String(),
		Request:  webhook.Request{URL: *cfg.WebhookURL, Secret: cfg.Secret(), Body: body},
	}, nil
}

func (r *Relay) markFailed(s *Submission, cause error) {
	r.logger.Warn().Err(cause).Str("submission_id", s.ID.String()).Msg("webhook not enqueued")
	ctx, cancel := context.WithTimeout(context.Background(), r.statusTimeout)
	defer cancel()
	if serr := r.repo.SetWebhookStatus(ctx, s.ID, WebhookFailed, nil); serr != nil {
		r.logger.Error().Err(serr).Str("submission_id", s.ID.String()).Msg("mark webhook failed")
		return
	}
	s.WebhookStatus = webhookStatusPtr(WebhookFailed)
}

func (r *Relay) notify(ctx context.Context, t *tenant.Tenant, s *Submission, recipients []string) {
	lead := notification.NewLead{
		ID:        s.ID.String(),
		Practice:  t.Name,
		FirstName: s.FirstName,
		LastName:  s.LastName,
		Email:     s.Email,
	}
	if s.Phone != nil {
		lead.Phone = *s.Phone
	}
	if s.SourceURL != nil {
		lead.SourceURL = *s.SourceURL
	}
	for _, sr := range s.SelectedRegions {
		lead.Regions = append(lead.Regions, sr.RegionName)
	}
	for _, sc := range s.SelectedConcerns {
		lead.Concerns = append(lead.Concerns, sc.ConcernName)
	}

	nctx := context.WithoutCancel(ctx)
	r.notifyWG.Add(1)
	go func() {
		defer r.notifyWG.Done()
		if err := r.notifier.NotifyNewLead(nctx, recipients, lead); err != nil {
			r.logger.Warn().Err(err).Str("submission_id", lead.ID).Msg("new lead notification incomplete")
		}
	}()
}

// Wait blocks until background notifications have finished.
func (r *Relay) Wait() {
	r.notifyWG.Wait()
}

type envelope struct {
	Event      string          `json:"event"`
	Submission envelopePayload `json:"submission"`
}

type envelopePayload struct {
	ID               uuid.UUID         `json:"id"`
	FirstName        string            `json:"first_name"`
	LastName         string            `json:"last_name"`
	Email            string            `json:"email"`
	Phone            *string           `json:"phone"`
	Gender           string            `json:"gender"`
	SelectedRegions  []SelectedRegion  `json:"selected_regions"`
	SelectedConcerns []SelectedConcern `json:"selected_concerns"`
	CustomFields     map[string]any    `json:"custom_fields"`
	SourceURL        *string           `json:"source_url"`
	SubmittedAt      string            `json:"submitted_at"`
}

// Envelope renders the webhook body for s.
func Envelope(s *Submission) ([]byte, error) {
	regions := s.SelectedRegions
	if regions == nil {
		regions = []SelectedRegion{}
	}
	concerns := s.SelectedConcerns
	if concerns == nil {
		concerns = []SelectedConcern{}
	}
	custom := s.CustomFields
	if custom == nil {
		custom = map[string]any{}
	}
	return json.Marshal(envelope{
		Event: EventCreated,
		Submission: envelopePayload{
			ID:               s.ID,
			FirstName:        s.FirstName,
			LastName:         s.LastName,
			Email:            s.Email,
			Phone:            s.Phone,
			Gender:           string(s.Gender),
			SelectedRegions:  regions,
			SelectedConcerns: concerns,
			CustomFields:     custom,
			SourceURL:        s.SourceURL,
			SubmittedAt:      s.CreatedAt.UTC().Format(time.RFC3339),
		},
	})
}

const recoverBatch = 500

// Recover re-enqueues rows left pending for longer than olderThan, such as
// after a crash between insert and delivery. It waits for queue room rather
// than failing rows when the batch outgrows the queue; if ctx ends or the
// queue stops first, the remaining rows stay pending. It returns how many
// were enqueued.
func (r *Relay) Recover(ctx context.Context, olderThan time.Duration) (int, error) {
	pending, err := r.repo.ListPending(ctx, time.Now().Add(-olderThan), recoverBatch)
	if err != nil {
		return 0, err
	}

	configs := make(map[uuid.UUID]*widget.Config)
	enqueued := 0
	for _, s := range pending {
		cfg, ok := configs[s.TenantID]
		if !ok {
			cfg, err = r.configs.GetConfig(ctx, s.TenantID)
			if err != nil && !errors.Is(err, widget.ErrNotConfigured) {
				return enqueued, fmt.Errorf("load widget config: %w", err)
			}
			configs[s.TenantID] = cfg
		}
		if cfg == nil || !cfg.HasWebhook() {
			r.logger.Warn().Str("submission_id", s.ID.String()).Msg("pending submission has no webhook configured")
			if err := r.repo.SetWebhookStatus(ctx, s.ID, WebhookFailed, nil); err != nil {
				return enqueued, err
			}
			continue
		}
		job, err := deliveryJob(s, cfg)
		if err != nil {
			r.markFailed(s, err)
			continue
		}
		if err := r.queue.EnqueueWait(ctx, job); err != nil {
			return enqueued, fmt.Errorf("recover pending webhooks: %w", err)
		}
		enqueued++
	}
	if len(pending) == recoverBatch {
		r.logger.Warn().Int("batch", recoverBatch).Msg("pending backlog exceeds one recovery batch")
	}
	if enqueued > 0 {
		r.logger.Info().Int("count", enqueued).Msg("re-enqueued pending webhooks")
	}
	return enqueued, nil
}

// Redeliver re-triggers delivery of a failed submission.
func (r *Relay) Redeliver(ctx context.Context, tenantID, id uuid.UUID) (*Submission, error) {
	s, err := r.repo.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if s.WebhookStatus == nil || *s.WebhookStatus != WebhookFailed {
		return nil, ErrNotRedeliverable
	}
	cfg, err := r.configs.GetConfig(ctx, tenantID)
	if errors.Is(err, widget.ErrNotConfigured) || (err == nil && !cfg.HasWebhook()) {
		return nil, ErrNotRedeliverable
	}
	if err != nil {
		return nil, fmt.Errorf("load widget config: %w", err)
	}

	ok, err := r.repo.MarkPending(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotRedeliverable
	}
	s.WebhookStatus = webhookStatusPtr(WebhookPending)
	r.dispatch(s, cfg)
	return s, nil
}

// UpdateLeadStatus moves a lead forward along its lifecycle.
func (r *Relay) UpdateLeadStatus(ctx context.Context, tenantID, id uuid.UUID, next LeadStatus) (*Submission, error) {
	if !next.Valid() {
		return nil, &ValidationError{Fields: map[string]string{"lead_status": "unknown status"}}
	}
	s, err := r.repo.GetByID(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if !s.LeadStatus.CanTransition(next) {
		return nil, ErrInvalidTransition
	}
	ok, err := r.repo.UpdateLeadStatus(ctx, tenantID, id, s.LeadStatus, next)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidTransition
	}
	s.LeadStatus = next
	return s, nil
}

func (r *Relay) Get(ctx context.Context, tenantID, id uuid.UUID) (*Submission, error) {
	return r.repo.GetByID(ctx, tenantID, id)
}

func (r *Relay) List(ctx context.Context, tenantID uuid.UUID, f ListFilter, limit, offset int) ([]*Submission, int, error) {
	return r.repo.List(ctx, tenantID, f, limit, offset)
}

// DeliveryRecorder stores dispatcher outcomes on the submission row.
type DeliveryRecorder struct {
	repo Repository
}

func NewDeliveryRecorder(repo Repository) *DeliveryRecorder {
	return &DeliveryRecorder{repo: repo}
}

func (d *DeliveryRecorder) RecordDelivery(ctx context.Context, job webhook.Job, res webhook.Result) error {
	id, err := uuid.Parse(job.ID)
	if err != nil {
		return fmt.Errorf("record delivery: %w", err)
	}
	if res.Status == webhook.StatusSent {
		at := res.AttemptedAt
		return d.repo.SetWebhookStatus(ctx, id, WebhookSent, &at)
	}
	return d.repo.SetWebhookStatus(ctx, id, WebhookFailed, nil)
}
