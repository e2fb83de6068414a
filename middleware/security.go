package middleware

import (
	"bytes"
	"io"
	"net/http"

	goSentinel "github.com/MrEthical07/goSentinel"
	"github.com/MrEthical07/goSentinel/detector"
)

// DefaultMaxBodyBytes bounds the body buffered for inspection when the caller
// passes zero.
const DefaultMaxBodyBytes int64 = 1 << 20

// SecurityCheck screens every request with [goSentinel.Engine.SecurityCheck]
// before it reaches next. The body is buffered up to maxBody bytes and restored
// for downstream handlers; larger bodies are refused with 413. Rejections are
// written as JSON {message, code}.
//
// The source IP comes from forwarding headers only when the peer is listed in
// HTTP.TrustedProxies.
//
// Passing requests carry a [goSentinel.Client] in their context so later engine
// calls record the same source IP, user agent and platform.
func SecurityCheck(engine *goSentinel.Engine, maxBody int64) func(http.Handler) http.Handler {
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				next.ServeHTTP(w, r)
				return
			}

			var body []byte
			if r.Body != nil && r.Body != http.NoBody {
				var err error
				body, err = io.ReadAll(io.LimitReader(r.Body, maxBody+1))
				_ = r.Body.Close()
				if err != nil {
					writeError(w, http.StatusBadRequest, "BAD_REQUEST", "Invalid request body")
					return
				}
				if int64(len(body)) > maxBody {
					writeError(w, http.StatusRequestEntityTooLarge, CodePayloadTooLarge, "Request body too large")
					return
				}
				r.Body = io.NopCloser(bytes.NewReader(body))
			}

			ip := engine.ClientIP(r.RemoteAddr, r.Header)
			d := engine.SecurityCheck(r.Context(), goSentinel.Request{
				Method:   r.Method,
				Path:     r.URL.Path,
				Body:     body,
				Headers:  r.Header,
				SourceIP: ip,
				PeerIP:   detector.PeerIP(r.RemoteAddr),
			})
			if d.Rejected() {
				writeError(w, d.Status, d.Code, d.Message)
				return
			}

			ua := r.Header.Get("User-Agent")
			client := detector.DescribeClient(ua, r.Header.Get(detector.PlatformHeader))
			ctx := goSentinel.WithClient(r.Context(), goSentinel.Client{
				IP:        ip,
				UserAgent: ua,
				Platform:  string(client.Platform),
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
