package server

import (
	"net/http"
	"net/url"
	"strings"
)

// originChecker decides which websocket origins are admitted. OBS browser
// sources send no Origin header or an obs:// origin, so both are always
// allowed; beyond that, only same-host origins, explicitly configured
// origins, and (in development) localhost pass.
type originChecker struct {
	allowed     map[string]struct{}
	development bool
}

func newOriginChecker(origins []string, development bool) *originChecker {
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[strings.TrimRight(o, "/")] = struct{}{}
	}
	return &originChecker{allowed: allowed, development: development}
}

func (oc *originChecker) check(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if strings.HasPrefix(origin, "obs://") {
		return true
	}

	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if u.Host == r.Host {
		return true
	}
	if _, ok := oc.allowed[strings.TrimRight(origin, "/")]; ok {
		return true
	}
	if oc.development && isLocalhost(u.Hostname()) {
		return true
	}
	return false
}

func isLocalhost(hostname string) bool {
	return hostname == "localhost" || hostname == "127.0.0.1" || hostname == "::1"
}
