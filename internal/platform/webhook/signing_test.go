package webhook

import "testing"

func TestSignPayload_Deterministic(t *testing.T) {
	payload := []byte(`{"event":"submission.created","submission":{"id":"abc"}}`)
	first := SignPayload(payload, "s3cret")
	for i := 0; i < 5; i++ {
		if got := SignPayload(payload, "s3cret"); got != first {
			t.Fatalf("run %d: signature changed: %s != %s", i, got, first)
		}
	}
	if len(first) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(first))
	}
}

func TestSignPayload_KnownVector(t *testing.T) {
	// RFC 4231 test case 2.
	got := SignPayload([]byte("what do ya want for nothing?"), "Jefe")
	want := "5bdcc146bf60754e6a042426089575c75a003f089d2739839dec58b964ec3843"
	if got != want {
		t.Errorf("SignPayload = %s, want %s", got, want)
	}
}

func TestSignatureValue(t *testing.T) {
	payload := []byte("{}")
	if got, want := SignatureValue(payload, "k"), "sha256="+SignPayload(payload, "k"); got != want {
		t.Errorf("SignatureValue = %s, want %s", got, want)
	}
}

func TestVerifySignature(t *testing.T) {
	payload := []byte(`{"a":1}`)
	sig := SignPayload(payload, "secret")

	tests := []struct {
		name      string
		secret    string
		signature string
		payload   []byte
		want      bool
	}{
		{"bare hex", "secret", sig, payload, true},
		{"prefixed", "secret", "sha256=" + sig, payload, true},
		{"wrong secret", "other", sig, payload, false},
		{"tampered body", "secret", sig, []byte(`{"a":2}`), false},
		{"garbage", "secret", "sha256=zz", payload, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := VerifySignature(tt.payload, tt.secret, tt.signature); got != tt.want {
				t.Errorf("VerifySignature = %v, want %v", got, tt.want)
			}
		})
	}
}
