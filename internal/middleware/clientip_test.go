package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

// X-Forwarded-Forの先頭エントリが使われることを検証
func TestClientIP_XForwardedFor(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1, 172.16.0.1")
	req.RemoteAddr = "172.16.0.1:443"

	if got := ClientIP(req); got != "203.0.113.7" {
		t.Errorf("ClientIP = %q, want %q", got, "203.0.113.7")
	}
}

// X-Forwarded-Forが無い場合はX-Real-IPが使われることを検証
func TestClientIP_XRealIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Real-IP", " 203.0.113.8 ")
	req.RemoteAddr = "172.16.0.1:443"

	if got := ClientIP(req); got != "203.0.113.8" {
		t.Errorf("ClientIP = %q, want %q", got, "203.0.113.8")
	}
}

// ヘッダーが無い場合はRemoteAddrのホスト部が使われることを検証
func TestClientIP_RemoteAddr(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "198.51.100.2:61234"

	if got := ClientIP(req); got != "198.51.100.2" {
		t.Errorf("ClientIP = %q, want %q", got, "198.51.100.2")
	}
}
