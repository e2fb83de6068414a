package detector

import (
	"fmt"
	"net"
	"net/http"
	"strings"
)

// Platform is the coarse client class derived from request headers.
type Platform string

const (
	PlatformWeb     Platform = "web"
	PlatformDesktop Platform = "desktop"
	PlatformMobile  Platform = "mobile"
)

// PlatformHeader is the request header native clients set to announce themselves.
const PlatformHeader = "X-Platform"

// ClientInfo describes the client behind a request.
type ClientInfo struct {
	Platform Platform
	Browser  string
	OS       string
}

// DescribeClient classifies a user agent. platformHeader is the raw X-Platform value
// and wins over user-agent sniffing when it names a native platform.
func DescribeClient(userAgent, platformHeader string) ClientInfo {
	return ClientInfo{
		Platform: detectPlatform(userAgent, platformHeader),
		Browser:  detectBrowser(userAgent),
		OS:       detectOS(userAgent),
	}
}

func detectPlatform(ua, header string) Platform {
	switch strings.ToLower(strings.TrimSpace(header)) {
	case "mobile":
		return PlatformMobile
	case "desktop":
		return PlatformDesktop
	}
	switch {
	case containsAny(ua, "React Native", "Expo", "Mobile App"):
		return PlatformMobile
	case containsAny(ua, "Electron", "Desktop App"):
		return PlatformDesktop
	default:
		return PlatformWeb
	}
}

func detectBrowser(ua string) string {
	switch {
	case ua == "":
		return "unknown"
	case strings.Contains(ua, "Mobile Safari") && strings.Contains(ua, "iPhone"):
		return "Safari Mobile"
	case strings.Contains(ua, "Chrome") && strings.Contains(ua, "Mobile"):
		return "Chrome Mobile"
	case strings.Contains(ua, "Firefox") && strings.Contains(ua, "Mobile"):
		return "Firefox Mobile"
	case strings.Contains(ua, "SamsungBrowser"):
		return "Samsung Internet"
	case strings.Contains(ua, "Edg/"):
		return "Edge"
	case strings.Contains(ua, "OPR/") || strings.Contains(ua, "Opera"):
		return "Opera"
	case strings.Contains(ua, "Chromium"):
		return "Chromium"
	case strings.Contains(ua, "Chrome"):
		return "Chrome"
	case strings.Contains(ua, "Firefox"):
		return "Firefox"
	case strings.Contains(ua, "Safari"):
		return "Safari"
	case strings.Contains(ua, "Trident/") || strings.Contains(ua, "MSIE"):
		return "Internet Explorer"
	case containsAny(strings.ToLower(ua), "bot", "crawler", "spider"):
		return "Bot"
	default:
		return "unknown"
	}
}

func detectOS(ua string) string {
	switch {
	case ua == "":
		return "unknown"
	case strings.Contains(ua, "iPhone OS") || strings.Contains(ua, "iOS") || strings.Contains(ua, "iPad"):
		return "iOS"
	case strings.Contains(ua, "Android"):
		return "Android"
	case strings.Contains(ua, "Windows Phone"):
		return "Windows Phone"
	case strings.Contains(ua, "Windows"):
		return "Windows"
	case strings.Contains(ua, "Mac OS X"):
		return "macOS"
	case strings.Contains(ua, "Linux"):
		return "Linux"
	case strings.Contains(ua, "BSD"):
		return "BSD"
	default:
		return "unknown"
	}
}

// TrustedProxies is the set of networks whose forwarding headers are honoured.
// A nil or empty set trusts no one, so only the transport peer is used.
type TrustedProxies struct {
	nets []*net.IPNet
}

// ParseTrustedProxies accepts CIDR ranges and bare addresses.
func ParseTrustedProxies(entries []string) (*TrustedProxies, error) {
	t := &TrustedProxies{nets: make([]*net.IPNet, 0, len(entries))}
	for _, raw := range entries {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if !strings.Contains(raw, "/") {
			ip := net.ParseIP(NormalizeIP(raw))
			if ip == nil {
				return nil, fmt.Errorf("invalid trusted proxy %q", raw)
			}
			bits := 128
			if ip.To4() != nil {
				ip, bits = ip.To4(), 32
			}
			t.nets = append(t.nets, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
			continue
		}
		_, n, err := net.ParseCIDR(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %v", raw, err)
		}
		t.nets = append(t.nets, n)
	}
	return t, nil
}

// Contains reports whether ip belongs to a trusted network.
func (t *TrustedProxies) Contains(ip string) bool {
	if t == nil || len(t.nets) == 0 {
		return false
	}
	parsed := net.ParseIP(NormalizeIP(ip))
	if parsed == nil {
		return false
	}
	for _, n := range t.nets {
		if n.Contains(parsed) {
			return true
		}
	}
	return false
}

// PeerIP returns the transport peer of remoteAddr, or 0.0.0.0 when it cannot be
// parsed.
func PeerIP(remoteAddr string) string {
	host := remoteAddr
	if peer, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = peer
	}
	if ip := NormalizeIP(host); net.ParseIP(ip) != nil {
		return ip
	}
	return "0.0.0.0"
}

// ClientIP resolves the originating address of a request. Forwarding headers are
// read only when the transport peer is a trusted proxy; X-Forwarded-For is walked
// from the right and the first hop outside trusted is returned. X-Real-IP is used
// when no X-Forwarded-For is present.
func ClientIP(remoteAddr string, h http.Header, trusted *TrustedProxies) string {
	peer := PeerIP(remoteAddr)
	if h == nil || !trusted.Contains(peer) {
		return peer
	}

	var hops []string
	for _, v := range h.Values("X-Forwarded-For") {
		hops = append(hops, strings.Split(v, ",")...)
	}
	if len(hops) > 0 {
		client := peer
		for i := len(hops) - 1; i >= 0; i-- {
			hop := NormalizeIP(hops[i])
			if net.ParseIP(hop) == nil {
				break
			}
			client = hop
			if !trusted.Contains(hop) {
				break
			}
		}
		return client
	}

	if ip := NormalizeIP(h.Get("X-Real-IP")); net.ParseIP(ip) != nil {
		return ip
	}
	return peer
}

// NormalizeIP trims an address and folds IPv6 loopback forms to 127.0.0.1.
func NormalizeIP(ip string) string {
	ip = strings.TrimSpace(ip)
	switch ip {
	case "::1", "::ffff:127.0.0.1":
		return "127.0.0.1"
	}
	return ip
}

// IsLoopback reports whether ip is a loopback address.
func IsLoopback(ip string) bool {
	parsed := net.ParseIP(NormalizeIP(ip))
	return parsed != nil && parsed.IsLoopback()
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
