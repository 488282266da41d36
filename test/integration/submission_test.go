package integration

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/intake/intake/internal/domain/submission"
	"github.com/intake/intake/internal/domain/tenant"
	"github.com/intake/intake/internal/domain/widget"
	"github.com/intake/intake/internal/platform/webhook"
)

type receiver struct {
	mu     sync.Mutex
	bodies [][]byte
	sigs   []string
}

func (r *receiver) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	body, _ := io.ReadAll(req.Body)
	r.mu.Lock()
	r.bodies = append(r.bodies, body)
	r.sigs = append(r.sigs, req.Header.Get(webhook.SignatureHeader))
	r.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

type relayHarness struct {
	relay      *submission.Relay
	repo       submission.Repository
	dispatcher *webhook.Dispatcher
}

func newRelayHarness(t *testing.T) *relayHarness {
	t.Helper()
	repo := submission.NewRepo(globalPool)
	d := webhook.NewDispatcher(
		webhook.NewDeliverer(webhook.WithTimeout(5*time.Second)),
		submission.NewDeliveryRecorder(repo),
		zerolog.Nop(),
		webhook.DispatcherConfig{Workers: 2, QueueSize: 16},
	)
	d.Start(context.Background())
	relay := submission.NewRelay(
		tenant.NewService(tenant.NewRepo(globalPool)),
		widget.NewRepo(globalPool),
		repo, d, nil, zerolog.Nop(),
	)
	return &relayHarness{relay: relay, repo: repo, dispatcher: d}
}

// drain waits for every queued delivery to be recorded.
func (h *relayHarness) drain(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := h.dispatcher.Stop(ctx); err != nil {
		t.Fatalf("stop dispatcher: %v", err)
	}
	h.relay.Wait()
}

func leadRequest(slug string) submission.Request {
	return submission.Request{
		TenantSlug: slug,
		FirstName:  "Jane",
		LastName:   "Doe",
		Email:      "jane@example.com",
		Gender:     "female",
		SelectedRegions: []submission.SelectedRegion{
			{RegionID: uuid.NewString(), RegionName: "Forehead", RegionSlug: "forehead"},
		},
		CustomFields: map[string]any{"preferred_time": "Morning"},
	}
}

func TestSubmit_DeliversSignedWebhook(t *testing.T) {
	ctx := context.Background()
	rcv := &receiver{}
	srv := httptest.NewServer(rcv)
	defer srv.Close()

	tn := createTenant(t, ctx, "Webhook Clinic")
	mustExec(t, ctx, `INSERT INTO widget_configs (tenant_id, webhook_url, webhook_secret) VALUES ($1, $2, 'shh')`, tn.ID, srv.URL)

	h := newRelayHarness(t)
	s, err := h.relay.Submit(ctx, leadRequest(tn.Slug))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if s.WebhookStatus == nil || *s.WebhookStatus != submission.WebhookPending {
		t.Fatalf("expected pending status on insert, got %v", s.WebhookStatus)
	}
	h.drain(t)

	stored, err := h.repo.GetByID(ctx, tn.ID, s.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.WebhookStatus == nil || *stored.WebhookStatus != submission.WebhookSent {
		t.Fatalf("expected sent, got %v", stored.WebhookStatus)
	}
	if stored.WebhookSentAt == nil {
		t.Error("expected webhook_sent_at to be recorded")
	}
	if stored.CustomFields["preferred_time"] != "Morning" {
		t.Errorf("expected custom fields round-trip, got %v", stored.CustomFields)
	}

	rcv.mu.Lock()
	defer rcv.mu.Unlock()
	if len(rcv.bodies) != 1 {
		t.Fatalf("expected one delivery, got %d", len(rcv.bodies))
	}
	if !webhook.VerifySignature(rcv.bodies[0], "shh", rcv.sigs[0]) {
		t.Error("expected payload signed with the tenant secret")
	}
}

func TestSubmit_UnreachableWebhookFails(t *testing.T) {
	ctx := context.Background()
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	tn := createTenant(t, ctx, "Offline Clinic")
	mustExec(t, ctx, `INSERT INTO widget_configs (tenant_id, webhook_url) VALUES ($1, $2)`, tn.ID, url)

	h := newRelayHarness(t)
	s, err := h.relay.Submit(ctx, leadRequest(tn.Slug))
	if err != nil {
		t.Fatalf("submit should succeed even when delivery fails: %v", err)
	}
	h.drain(t)

	stored, err := h.repo.GetByID(ctx, tn.ID, s.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.WebhookStatus == nil || *stored.WebhookStatus != submission.WebhookFailed {
		t.Fatalf("expected failed, got %v", stored.WebhookStatus)
	}
}

func TestSubmit_WithoutWebhook(t *testing.T) {
	ctx := context.Background()
	tn := createTenant(t, ctx, "Quiet Clinic")

	h := newRelayHarness(t)
	s, err := h.relay.Submit(ctx, leadRequest(tn.Slug))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	h.drain(t)

	stored, err := h.repo.GetByID(ctx, tn.ID, s.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.WebhookStatus != nil {
		t.Errorf("expected no webhook status, got %s", *stored.WebhookStatus)
	}
	if stored.LeadStatus != submission.LeadNew {
		t.Errorf("expected new lead, got %s", stored.LeadStatus)
	}
}

func TestSubmissions_TenantIsolation(t *testing.T) {
	ctx := context.Background()
	a := createTenant(t, ctx, "Clinic A")
	b := createTenant(t, ctx, "Clinic B")

	h := newRelayHarness(t)
	defer h.drain(t)
	s, err := h.relay.Submit(ctx, leadRequest(a.Slug))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	if _, err := h.relay.Get(ctx, b.ID, s.ID); !errors.Is(err, submission.ErrNotFound) {
		t.Errorf("expected ErrNotFound across tenants, got %v", err)
	}
	items, total, err := h.relay.List(ctx, b.ID, submission.ListFilter{}, 20, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 0 || len(items) != 0 {
		t.Errorf("expected tenant B to see nothing, got %d", total)
	}

	items, total, err = h.relay.List(ctx, a.ID, submission.ListFilter{LeadStatus: submission.LeadNew}, 20, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 1 || len(items) != 1 || items[0].ID != s.ID {
		t.Errorf("expected tenant A to see its lead, got %d", total)
	}
}

func TestUpdateLeadStatus_Transitions(t *testing.T) {
	ctx := context.Background()
	tn := createTenant(t, ctx, "Pipeline Clinic")

	h := newRelayHarness(t)
	defer h.drain(t)
	s, err := h.relay.Submit(ctx, leadRequest(tn.Slug))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	if _, err := h.relay.UpdateLeadStatus(ctx, tn.ID, s.ID, submission.LeadConverted); !errors.Is(err, submission.ErrInvalidTransition) {
		t.Errorf("expected new -> converted to be rejected, got %v", err)
	}
	for _, next := range []submission.LeadStatus{submission.LeadContacted, submission.LeadScheduled, submission.LeadConverted} {
		updated, err := h.relay.UpdateLeadStatus(ctx, tn.ID, s.ID, next)
		if err != nil {
			t.Fatalf("move to %s: %v", next, err)
		}
		if updated.LeadStatus != next {
			t.Errorf("expected %s, got %s", next, updated.LeadStatus)
		}
	}
}

func TestRecover_RequeuesStalePending(t *testing.T) {
	ctx := context.Background()
	rcv := &receiver{}
	srv := httptest.NewServer(rcv)
	defer srv.Close()

	tn := createTenant(t, ctx, "Restart Clinic")
	mustExec(t, ctx, `INSERT INTO widget_configs (tenant_id, webhook_url) VALUES ($1, $2)`, tn.ID, srv.URL)

	// A row left pending by a previous process.
	var id uuid.UUID
	if err := globalPool.QueryRow(ctx, `
		INSERT INTO form_submissions (tenant_id, first_name, last_name, email, gender, webhook_status, updated_at)
		VALUES ($1, 'Old', 'Lead', 'old@example.com', 'male', 'pending', NOW() - INTERVAL '1 hour')
		RETURNING id`, tn.ID).Scan(&id); err != nil {
		t.Fatalf("insert pending row: %v", err)
	}

	h := newRelayHarness(t)
	n, err := h.relay.Recover(ctx, time.Minute)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if n < 1 {
		t.Fatalf("expected at least one recovered row, got %d", n)
	}
	h.drain(t)

	stored, err := h.repo.GetByID(ctx, tn.ID, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.WebhookStatus == nil || *stored.WebhookStatus != submission.WebhookSent {
		t.Errorf("expected recovered row to be sent, got %v", stored.WebhookStatus)
	}
}
