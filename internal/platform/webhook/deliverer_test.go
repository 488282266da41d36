package webhook

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"
)

func TestDeliverer_Sent(t *testing.T) {
	body := []byte(`{"event":"submission.created"}`)
	fixed := time.Unix(1700000000, 0)

	var gotHeaders http.Header
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	d := NewDeliverer(withClock(func() time.Time { return fixed }))
	res := d.Deliver(context.Background(), Request{URL: srv.URL, Secret: "shh", Body: body})

	if res.Status != StatusSent {
		t.Fatalf("expected sent, got %s (%s)", res.Status, res.Error)
	}
	if res.StatusCode != http.StatusAccepted || res.ResponseBody != "ok" {
		t.Errorf("unexpected result %+v", res)
	}
	if string(gotBody) != string(body) {
		t.Errorf("body mismatch: %s", gotBody)
	}
	if gotHeaders.Get("Content-Type") != "application/json" {
		t.Errorf("Content-Type = %q", gotHeaders.Get("Content-Type"))
	}
	if gotHeaders.Get("User-Agent") != UserAgent {
		t.Errorf("User-Agent = %q", gotHeaders.Get("User-Agent"))
	}
	if !VerifySignature(gotBody, "shh", gotHeaders.Get(SignatureHeader)) {
		t.Errorf("signature %q does not verify", gotHeaders.Get(SignatureHeader))
	}
	if gotHeaders.Get(TimestampHeader) != strconv.FormatInt(fixed.Unix(), 10) {
		t.Errorf("timestamp = %q", gotHeaders.Get(TimestampHeader))
	}
}

func TestDeliverer_NoSecretNoSignature(t *testing.T) {
	var gotHeaders http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
	}))
	defer srv.Close()

	res := NewDeliverer().Deliver(context.Background(), Request{URL: srv.URL, Body: []byte("{}")})
	if res.Status != StatusSent {
		t.Fatalf("expected sent, got %s", res.Status)
	}
	if gotHeaders.Get(SignatureHeader) != "" || gotHeaders.Get(TimestampHeader) != "" {
		t.Error("expected no signature headers without a secret")
	}
}

func TestDeliverer_Failures(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer slow.Close()

	serverErr := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer serverErr.Close()

	redirect := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotModified)
	}))
	defer redirect.Close()

	closed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	closedURL := closed.URL
	closed.Close()

	tests := []struct {
		name     string
		url      string
		wantCode int
	}{
		{"timeout", slow.URL, 0},
		{"server error", serverErr.URL, http.StatusInternalServerError},
		{"non-2xx 3xx", redirect.URL, http.StatusNotModified},
		{"unreachable", closedURL, 0},
		{"invalid url", "://bad", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDeliverer(WithTimeout(100 * time.Millisecond))
			res := d.Deliver(context.Background(), Request{URL: tt.url, Secret: "s", Body: []byte("{}")})
			if res.Status != StatusFailed {
				t.Errorf("expected failed, got %s", res.Status)
			}
			if res.StatusCode != tt.wantCode {
				t.Errorf("StatusCode = %d, want %d", res.StatusCode, tt.wantCode)
			}
			if res.Error == "" {
				t.Error("expected error detail")
			}
		})
	}
}
