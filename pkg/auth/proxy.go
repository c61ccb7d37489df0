package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	// ProxySignatureParam is the query parameter Shopify signs app proxy requests with.
	ProxySignatureParam = "signature"
	// ProxyTimestampParam carries the unix second the proxy request was signed at.
	ProxyTimestampParam = "timestamp"
	// DefaultProxyMaxAge bounds how far a signed timestamp may drift from now.
	DefaultProxyMaxAge = 5 * time.Minute
)

// SignProxyQuery computes the app proxy signature for query: every parameter
// except signature, sorted by key, rendered as key=value with repeated
// values comma joined, concatenated without separators and HMAC-SHA256'd
// with the app secret.
func SignProxyQuery(query url.Values, secret string) string {
	keys := make([]string, 0, len(query))
	for key := range query {
		if key == ProxySignatureParam {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, key := range keys {
		b.WriteString(key)
		b.WriteByte('=')
		b.WriteString(strings.Join(query[key], ","))
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(b.String()))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyProxyQuery reports whether query carries a valid app proxy signature.
func VerifyProxyQuery(query url.Values, secret string) bool {
	if secret == "" {
		return false
	}
	got := query.Get(ProxySignatureParam)
	if got == "" {
		return false
	}
	want := SignProxyQuery(query, secret)
	return hmac.Equal([]byte(strings.ToLower(got)), []byte(want))
}

// ProxyTimestampFresh reports whether the signed timestamp on query lies
// within maxAge of now in either direction. A missing or malformed timestamp
// is never fresh.
func ProxyTimestampFresh(query url.Values, now time.Time, maxAge time.Duration) bool {
	raw := strings.TrimSpace(query.Get(ProxyTimestampParam))
	if raw == "" {
		return false
	}
	sec, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return false
	}
	drift := now.Sub(time.Unix(sec, 0))
	return drift <= maxAge && drift >= -maxAge
}
