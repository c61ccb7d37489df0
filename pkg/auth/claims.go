package auth

import (
	"net/url"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// SessionClaims is the payload of a Shopify admin session token. dest names
// the shop the embedded app is running in.
type SessionClaims struct {
	Dest      string `json:"dest"`
	SessionID string `json:"sid,omitempty"`
	jwt.RegisteredClaims
}

// Shop returns the myshopify host of dest, lowercased.
func (c *SessionClaims) Shop() string {
	return hostOf(c.Dest)
}

func hostOf(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
