package submission

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/intake/intake/internal/domain/widget"
)

func doSubmit(t *testing.T, h *Handler, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/widget/submit", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	if err := h.Submit(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var out map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &out)
	return rec, out
}

func requestJSON(t *testing.T, r Request) string {
	t.Helper()
	b, err := json.Marshal(r)
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

func TestHandler_Submit(t *testing.T) {
	f := newRelayFixture(&widget.Config{})
	h := NewHandler(f.relay, zerolog.Nop())

	rec, body := doSubmit(t, h, requestJSON(t, validRequest()))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if body["success"] != true {
		t.Errorf("expected success true, got %v", body)
	}
	if _, err := uuid.Parse(body["id"].(string)); err != nil {
		t.Errorf("expected uuid id, got %v", body["id"])
	}
}

func TestHandler_SubmitValidation(t *testing.T) {
	f := newRelayFixture(&widget.Config{})
	h := NewHandler(f.relay, zerolog.Nop())

	r := validRequest()
	r.Email = "bad"
	rec, body := doSubmit(t, h, requestJSON(t, r))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if body["error"] != "Invalid submission" {
		t.Errorf("unexpected error %v", body["error"])
	}
	details, _ := body["details"].(map[string]any)
	if _, ok := details["email"]; !ok {
		t.Errorf("expected email detail, got %v", body["details"])
	}

	rec, _ = doSubmit(t, h, "{not json")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for malformed JSON, got %d", rec.Code)
	}
}

func TestHandler_SubmitUnknownTenant(t *testing.T) {
	f := newRelayFixture(&widget.Config{})
	h := NewHandler(f.relay, zerolog.Nop())

	r := validRequest()
	r.TenantSlug = "nobody"
	rec, body := doSubmit(t, h, requestJSON(t, r))
	if rec.Code != http.StatusNotFound || body["error"] != "Tenant not found" {
		t.Fatalf("expected 404 Tenant not found, got %d %v", rec.Code, body)
	}
}

func TestHandler_SubmitStorageFailure(t *testing.T) {
	f := newRelayFixture(&widget.Config{})
	f.repo.err = errors.New("connection refused")
	h := NewHandler(f.relay, zerolog.Nop())

	rec, body := doSubmit(t, h, requestJSON(t, validRequest()))
	if rec.Code != http.StatusInternalServerError || body["error"] != "Failed to save submission" {
		t.Fatalf("expected 500, got %d %v", rec.Code, body)
	}
}

func adminContext(e *echo.Echo, method, target, body string, tenantID uuid.UUID) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set("jwt_tenant_id", tenantID.String())
	return c, rec
}

func TestHandler_ListAndGet(t *testing.T) {
	f := newRelayFixture(&widget.Config{})
	h := NewHandler(f.relay, zerolog.Nop())
	s, _ := f.relay.Submit(context.Background(), validRequest())
	_, _ = f.relay.Submit(context.Background(), validRequest())

	e := echo.New()
	c, rec := adminContext(e, http.MethodGet, "/api/v1/submissions?limit=1", "", f.tenant.ID)
	if err := h.List(c); err != nil {
		t.Fatal(err)
	}
	var page struct {
		Data    []Submission `json:"data"`
		Total   int          `json:"total"`
		HasMore bool         `json:"has_more"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
		t.Fatal(err)
	}
	if page.Total != 2 || len(page.Data) != 1 || !page.HasMore {
		t.Errorf("unexpected page: %+v", page)
	}

	c, rec = adminContext(e, http.MethodGet, "/", "", f.tenant.ID)
	c.SetParamNames("id")
	c.SetParamValues(s.ID.String())
	if err := h.Get(c); err != nil {
		t.Fatal(err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}

	c, _ = adminContext(e, http.MethodGet, "/", "", uuid.New())
	c.SetParamNames("id")
	c.SetParamValues(s.ID.String())
	err := h.Get(c)
	if he, ok := err.(*echo.HTTPError); !ok || he.Code != http.StatusNotFound {
		t.Errorf("expected 404 across tenants, got %v", err)
	}
}

func TestHandler_ListRejectsBadFilter(t *testing.T) {
	f := newRelayFixture(&widget.Config{})
	h := NewHandler(f.relay, zerolog.Nop())

	c, _ := adminContext(echo.New(), http.MethodGet, "/api/v1/submissions?webhook_status=lost", "", f.tenant.ID)
	err := h.List(c)
	if he, ok := err.(*echo.HTTPError); !ok || he.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %v", err)
	}
}

func TestHandler_LeadStatusConflict(t *testing.T) {
	f := newRelayFixture(&widget.Config{})
	h := NewHandler(f.relay, zerolog.Nop())
	s, _ := f.relay.Submit(context.Background(), validRequest())

	c, _ := adminContext(echo.New(), http.MethodPatch, "/", `{"lead_status":"converted"}`, f.tenant.ID)
	c.SetParamNames("id")
	c.SetParamValues(s.ID.String())
	err := h.UpdateLeadStatus(c)
	if he, ok := err.(*echo.HTTPError); !ok || he.Code != http.StatusConflict {
		t.Errorf("expected 409, got %v", err)
	}
}

func TestHandler_RedeliverConflict(t *testing.T) {
	f := newRelayFixture(&widget.Config{})
	h := NewHandler(f.relay, zerolog.Nop())
	s, _ := f.relay.Submit(context.Background(), validRequest())

	c, _ := adminContext(echo.New(), http.MethodPost, "/", "", f.tenant.ID)
	c.SetParamNames("id")
	c.SetParamValues(s.ID.String())
	err := h.Redeliver(c)
	if he, ok := err.(*echo.HTTPError); !ok || he.Code != http.StatusConflict {
		t.Errorf("expected 409 for a submission without webhook, got %v", err)
	}
}
