package middleware

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP はリクエストからクライアントIPを抽出する。
// X-Forwarded-Forの先頭エントリ、X-Real-IP、RemoteAddrの順で解決する。
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// プロキシ経由の場合、先頭が元のクライアントIP
		parts := strings.Split(xff, ",")
		if ip := strings.TrimSpace(parts[0]); ip != "" {
			return ip
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
