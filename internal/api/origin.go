package api

import (
	"net/http"
	"net/url"
	"strings"
)

const originRejectedMsg = "Authentication required or origin not allowed"

// OriginAllowed reports whether origin passes the allow list. An empty origin
// (a non-browser client) is allowed. Otherwise the origin's hostname must end
// with the hostname of one of the allowed entries; entries may be full
// origins or bare hostnames. The suffix match is coarse: it accepts any
// subdomain and any hostname that merely ends with the same characters.
func OriginAllowed(allowed []string, origin string) bool {
	if origin == "" {
		return true
	}
	host := hostnameOf(origin)
	if host == "" {
		return false
	}
	for _, a := range allowed {
		if ah := hostnameOf(a); ah != "" && strings.HasSuffix(host, ah) {
			return true
		}
	}
	return false
}

func hostnameOf(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if !strings.Contains(s, "://") {
		s = "http://" + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// OriginGuard rejects requests whose Origin header is not allowed with 401.
// Paths listed in exempt skip the check.
func OriginGuard(allowed []string, exempt ...string) func(http.Handler) http.Handler {
	skip := make(map[string]struct{}, len(exempt))
	for _, p := range exempt {
		skip[p] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := skip[r.URL.Path]; !ok && !OriginAllowed(allowed, r.Header.Get("Origin")) {
				writeError(w, http.StatusUnauthorized, originRejectedMsg)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
