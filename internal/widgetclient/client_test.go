package widgetclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/intake/intake/internal/domain/catalog"
	"github.com/intake/intake/internal/domain/submission"
	"github.com/intake/intake/internal/domain/widget"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func testConfig(slug string) *widget.ConfigResponse {
	return &widget.ConfigResponse{
		Tenant:     widget.TenantInfo{Name: slug, Slug: slug},
		WidgetMode: widget.ModeServicesOnly,
		Regions:    []catalog.Region{},
		ServiceCategories: []widget.CategoryGroup{{
			ID: widget.UncategorizedID, Name: "Other", Slug: "other",
			Services: []catalog.Service{{ID: uuid.New(), Name: "Consult", RegionIDs: []uuid.UUID{}, ConcernIDs: []uuid.UUID{}}},
		}},
		FormFields: []widget.FormField{},
	}
}

func TestClient_FetchConfig(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/widget/config" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		switch r.URL.Query().Get("slug") {
		case "glow":
			writeJSON(w, http.StatusOK, testConfig("glow"))
		default:
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "Tenant not found"})
		}
	}))
	defer srv.Close()
	c := New(srv.URL)

	cfg, err := c.FetchConfig(context.Background(), "glow")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Tenant.Slug != "glow" || cfg.WidgetMode != widget.ModeServicesOnly {
		t.Errorf("unexpected config %+v", cfg)
	}

	_, err = c.FetchConfig(context.Background(), "nope")
	var fe *FetchError
	if !errors.As(err, &fe) || fe.Status != http.StatusNotFound || fe.Message != "Tenant not found" {
		t.Fatalf("expected 404 FetchError, got %v", err)
	}
}

func TestClient_FetchConfigTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := New(url).FetchConfig(context.Background(), "glow")
	var fe *FetchError
	if !errors.As(err, &fe) || fe.Status != 0 {
		t.Fatalf("expected transport FetchError, got %v", err)
	}
}

func TestClient_Submit(t *testing.T) {
	id := uuid.New()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req submission.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		if req.Email == "bad" {
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":   "Invalid submission",
				"details": map[string]string{"email": "must be a valid email address"},
			})
			return
		}
		if req.Email == "boom@example.com" {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to save submission"})
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"success": true, "id": id})
	}))
	defer srv.Close()
	c := New(srv.URL)

	got, err := c.Submit(context.Background(), submission.Request{Email: "ada@example.com"})
	if err != nil || got != id {
		t.Fatalf("expected %s, got %s (%v)", id, got, err)
	}

	_, err = c.Submit(context.Background(), submission.Request{Email: "bad"})
	var se *SubmitError
	if !errors.As(err, &se) || se.Details["email"] == "" {
		t.Fatalf("expected SubmitError, got %v", err)
	}

	_, err = c.Submit(context.Background(), submission.Request{Email: "boom@example.com"})
	var fe *FetchError
	if !errors.As(err, &fe) || fe.Status != http.StatusInternalServerError {
		t.Fatalf("expected 500 FetchError, got %v", err)
	}
}
