package detector

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
)

// CSRFConfig controls origin validation for state-changing requests.
type CSRFConfig struct {
	Enabled bool
	// AllowedOrigins are scheme://host[:port] values trusted as Origin or Referer.
	AllowedOrigins []string
	TokenHeader    string
	// TokenField is the JSON body field consulted when TokenHeader is absent.
	TokenField string
	// TrustedDirectIPs may call without Origin or Referer. Loopback is always trusted.
	TrustedDirectIPs []string
	// ExemptUserAgents are user-agent substrings of non-browser tooling.
	ExemptUserAgents []string
	// AllowTokenlessPOST accepts POST from an allowed origin without a token.
	AllowTokenlessPOST bool
}

// DefaultCSRFConfig returns the rules used when none are configured.
func DefaultCSRFConfig() CSRFConfig {
	return CSRFConfig{
		Enabled:            true,
		AllowedOrigins:     []string{"http://localhost:3000", "http://localhost:3001"},
		TokenHeader:        "X-CSRF-Token",
		TokenField:         "_csrf",
		ExemptUserAgents:   []string{"PowerShell"},
		AllowTokenlessPOST: true,
	}
}

// CSRFValidator evaluates CSRFConfig rules. It is immutable and safe for concurrent
// use.
type CSRFValidator struct {
	cfg     CSRFConfig
	origins map[string]struct{}
	direct  map[string]struct{}
}

// NewCSRFValidator prepares a validator from cfg.
func NewCSRFValidator(cfg CSRFConfig) *CSRFValidator {
	v := &CSRFValidator{
		cfg:     cfg,
		origins: make(map[string]struct{}, len(cfg.AllowedOrigins)),
		direct:  make(map[string]struct{}, len(cfg.TrustedDirectIPs)),
	}
	for _, o := range cfg.AllowedOrigins {
		if norm := normalizeOrigin(o); norm != "" {
			v.origins[norm] = struct{}{}
		}
	}
	for _, ip := range cfg.TrustedDirectIPs {
		v.direct[NormalizeIP(ip)] = struct{}{}
	}
	if v.cfg.TokenHeader == "" {
		v.cfg.TokenHeader = "X-CSRF-Token"
	}
	return v
}

// Allow reports whether a request passes CSRF validation.
func (v *CSRFValidator) Allow(method string, headers http.Header, sourceIP string, body []byte) bool {
	if v == nil || !v.cfg.Enabled {
		return true
	}
	switch strings.ToUpper(method) {
	case "", http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	if headers == nil {
		headers = http.Header{}
	}

	ua := headers.Get("User-Agent")
	for _, exempt := range v.cfg.ExemptUserAgents {
		if exempt != "" && strings.Contains(ua, exempt) {
			return true
		}
	}
	if p := detectPlatform(ua, headers.Get(PlatformHeader)); p != PlatformWeb {
		return true
	}

	origin := headers.Get("Origin")
	referer := headers.Get("Referer")
	if origin == "" && referer == "" {
		if IsLoopback(sourceIP) {
			return true
		}
		if _, ok := v.direct[NormalizeIP(sourceIP)]; ok {
			return true
		}
		return false
	}

	if !v.allowedOrigin(origin) && !v.allowedOrigin(referer) {
		return false
	}
	if v.token(headers, body) != "" {
		return true
	}
	return v.cfg.AllowTokenlessPOST && strings.EqualFold(method, http.MethodPost)
}

func (v *CSRFValidator) allowedOrigin(raw string) bool {
	if raw == "" {
		return false
	}
	_, ok := v.origins[normalizeOrigin(raw)]
	return ok
}

func (v *CSRFValidator) token(headers http.Header, body []byte) string {
	if t := headers.Get(v.cfg.TokenHeader); t != "" {
		return t
	}
	if v.cfg.TokenField == "" || len(body) == 0 {
		return ""
	}
	var fields map[string]any
	if err := json.Unmarshal(body, &fields); err != nil {
		return ""
	}
	t, _ := fields[v.cfg.TokenField].(string)
	return t
}

func normalizeOrigin(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return strings.ToLower(u.Scheme + "://" + u.Host)
}
