package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newOriginRequest(t *testing.T, host, origin string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.Host = host
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	return req
}

func TestOriginChecker(t *testing.T) {
	tests := []struct {
		name        string
		origin      string
		allowed     []string
		development bool
		want        bool
	}{
		{name: "empty origin allowed for OBS", origin: "", want: true},
		{name: "obs scheme allowed", origin: "obs://browser-source", want: true},
		{name: "same host allowed", origin: "http://danmaku.example.com", want: true},
		{
			name:    "configured origin allowed",
			origin:  "https://panel.example.org",
			allowed: []string{"https://panel.example.org"},
			want:    true,
		},
		{
			name:    "configured origin with trailing slash",
			origin:  "https://panel.example.org",
			allowed: []string{"https://panel.example.org/"},
			want:    true,
		},
		{name: "foreign origin rejected", origin: "https://evil.example.net", want: false},
		{
			name:        "localhost allowed in development",
			origin:      "http://localhost:3000",
			development: true,
			want:        true,
		},
		{name: "localhost rejected in production", origin: "http://localhost:3000", want: false},
		{
			name:        "loopback ip allowed in development",
			origin:      "http://127.0.0.1:5173",
			development: true,
			want:        true,
		},
		{name: "unparseable origin rejected", origin: "://bad", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			oc := newOriginChecker(tt.allowed, tt.development)
			req := newOriginRequest(t, "danmaku.example.com", tt.origin)
			assert.Equal(t, tt.want, oc.check(req))
		})
	}
}
