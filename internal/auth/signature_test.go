package auth

import (
	"strings"
	"testing"
)

func TestVerifyRoundTrip(t *testing.T) {
	payload := []byte(`{"type":"INSERT","table":"notes","record":{"id":"n1"}}`)
	signature := Sign(payload, "shh")

	if !Verify(payload, signature, "shh") {
		t.Fatal("expected signature to verify")
	}
	if len(signature) != 64 || strings.ToLower(signature) != signature {
		t.Fatalf("expected 64 lowercase hex chars, got %q", signature)
	}
}

func TestVerifyRejectsTampering(t *testing.T) {
	payload := []byte(`{"type":"DELETE","old_record":{"id":"n1"}}`)
	signature := Sign(payload, "shh")

	for i := range payload {
		mutated := append([]byte(nil), payload...)
		mutated[i] ^= 0x01
		if Verify(mutated, signature, "shh") {
			t.Fatalf("payload mutated at byte %d still verified", i)
		}
	}

	for i := range signature {
		mutated := []byte(signature)
		if mutated[i] == '0' {
			mutated[i] = '1'
		} else {
			mutated[i] = '0'
		}
		if Verify(payload, string(mutated), "shh") {
			t.Fatalf("signature mutated at char %d still verified", i)
		}
	}

	if Verify(payload, signature, "other-secret") {
		t.Fatal("expected a different secret to fail")
	}
}

func TestVerifyMalformedSignatures(t *testing.T) {
	payload := []byte("body")
	valid := Sign(payload, "shh")
	tests := []struct {
		name      string
		signature string
		secret    string
	}{
		{name: "empty signature", signature: "", secret: "shh"},
		{name: "not hex", signature: strings.Repeat("zz", 32), secret: "shh"},
		{name: "truncated", signature: valid[:62], secret: "shh"},
		{name: "too long", signature: valid + "00", secret: "shh"},
		{name: "odd length", signature: valid[:63], secret: "shh"},
		{name: "empty secret", signature: Sign(payload, ""), secret: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if Verify(payload, tt.signature, tt.secret) {
				t.Fatalf("Verify(%q) = true, want false", tt.signature)
			}
		})
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
		ok     bool
	}{
		{header: "Bearer abc123", want: "abc123", ok: true},
		{header: "  Bearer abc123  ", want: "abc123", ok: true},
		{header: "", ok: false},
		{header: "Bearer", ok: false},
		{header: "Bearer ", ok: false},
		{header: "Basic abc123", ok: false},
		{header: "bearer abc123", ok: false},
		{header: "Bearer abc 123", ok: false},
	}
	for _, tt := range tests {
		got, ok := BearerToken(tt.header)
		if ok != tt.ok || got != tt.want {
			t.Errorf("BearerToken(%q) = (%q, %v), want (%q, %v)", tt.header, got, ok, tt.want, tt.ok)
		}
	}
}

func TestTokenEqual(t *testing.T) {
	if !TokenEqual("admin-token", "admin-token") {
		t.Fatal("expected equal tokens to match")
	}
	if TokenEqual("admin-token", "admin-tokem") {
		t.Fatal("expected different tokens to differ")
	}
	if TokenEqual("", "") {
		t.Fatal("expected empty tokens to be rejected")
	}
}

func TestRequireSecret(t *testing.T) {
	if err := RequireSecret("  "); err != ErrMissingSecret {
		t.Fatalf("RequireSecret(blank) = %v, want ErrMissingSecret", err)
	}
	if err := RequireSecret("s3cret"); err != nil {
		t.Fatalf("RequireSecret() = %v", err)
	}
}
