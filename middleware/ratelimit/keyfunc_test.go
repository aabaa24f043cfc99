package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestDefaultCallerFunc_PrefersHeaderWhenSet(t *testing.T) {
	fn := DefaultCallerFunc("X-Client", false)

	r := httptest.NewRequest(http.MethodGet, "http://example/", nil)
	r.RemoteAddr = "10.0.0.1:1234"
	r.Header.Set("X-Client", " client-123 ")

	if got := fn(r); got != "client-123" {
		t.Fatalf("expected header key, got %q", got)
	}
}

func TestDefaultCallerFunc_TrustXForwardedForUsesFirstIP(t *testing.T) {
	fn := DefaultCallerFunc("", true)

	r := httptest.NewRequest(http.MethodGet, "http://example/", nil)
	r.RemoteAddr = "10.0.0.9:5555"
	r.Header.Set("X-Forwarded-For", "1.2.3.4, 5.6.7.8")

	if got := fn(r); got != "1.2.3.4" {
		t.Fatalf("expected first XFF ip, got %q", got)
	}
}

func TestDefaultCallerFunc_IgnoresXForwardedForWhenUntrusted(t *testing.T) {
	fn := DefaultCallerFunc("", false)

	r := httptest.NewRequest(http.MethodGet, "http://example/", nil)
	r.RemoteAddr = "10.0.0.9:5555"
	r.Header.Set("X-Forwarded-For", "1.2.3.4")

	if got := fn(r); got != "10.0.0.9" {
		t.Fatalf("expected remote host, got %q", got)
	}
}

func TestDefaultCallerFunc_IPv6RemoteAddr(t *testing.T) {
	fn := DefaultCallerFunc("", false)

	r := httptest.NewRequest(http.MethodGet, "http://example/", nil)
	r.RemoteAddr = "[::1]:5555"

	if got := fn(r); got != "::1" {
		t.Fatalf("expected ::1, got %q", got)
	}
}

func TestDefaultCallerFunc_UnknownWhenNothingAvailable(t *testing.T) {
	fn := DefaultCallerFunc("", false)

	r := httptest.NewRequest(http.MethodGet, "http://example/", nil)
	r.RemoteAddr = ""

	if got := fn(r); got != "unknown" {
		t.Fatalf("expected sentinel, got %q", got)
	}
}

func TestHeaderOriginFunc(t *testing.T) {
	fn := HeaderOriginFunc("CF-IPCountry")

	r := httptest.NewRequest(http.MethodGet, "http://example/", nil)
	if got := fn(r); got != "Unknown" {
		t.Fatalf("expected Unknown without header, got %q", got)
	}
	r.Header.Set("CF-IPCountry", "br")
	if got := fn(r); got != "BR" {
		t.Fatalf("expected BR, got %q", got)
	}
}
