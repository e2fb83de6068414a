package goSentinel

import (
	"context"

	"github.com/MrEthical07/goSentinel/audit"
	"github.com/MrEthical07/goSentinel/jwt"
)

type clientContextKey struct{}
type claimsContextKey struct{}

// Client describes the caller of a request for audit purposes.
type Client struct {
	IP        string
	UserAgent string
	Platform  string
}

// WithClient attaches the caller description to ctx. Engine calls that record
// events use it to fill source IP, user agent and platform when the caller did not
// supply them.
func WithClient(ctx context.Context, c Client) context.Context {
	return context.WithValue(ctx, clientContextKey{}, c)
}

// ClientFromContext returns the Client attached by WithClient.
func ClientFromContext(ctx context.Context) (Client, bool) {
	if ctx == nil {
		return Client{}, false
	}
	c, ok := ctx.Value(clientContextKey{}).(Client)
	return c, ok
}

// WithSessionClaims attaches validated token claims to ctx.
func WithSessionClaims(ctx context.Context, claims *jwt.SessionClaims) context.Context {
	return context.WithValue(ctx, claimsContextKey{}, claims)
}

// SessionClaimsFromContext returns claims attached by WithSessionClaims.
func SessionClaimsFromContext(ctx context.Context) (*jwt.SessionClaims, bool) {
	if ctx == nil {
		return nil, false
	}
	claims, ok := ctx.Value(claimsContextKey{}).(*jwt.SessionClaims)
	return claims, ok && claims != nil
}

func metaFromContext(ctx context.Context, meta audit.Meta) audit.Meta {
	c, ok := ClientFromContext(ctx)
	if !ok {
		return meta
	}
	if meta.SourceIP == "" {
		meta.SourceIP = c.IP
	}
	if meta.UserAgent == "" {
		meta.UserAgent = c.UserAgent
	}
	if meta.Platform == "" {
		meta.Platform = c.Platform
	}
	return meta
}
