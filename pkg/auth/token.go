package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/angelmondragon/popcatch-backend/pkg/config"
)

var jwtSigningMethod = jwt.SigningMethodHS256

const sessionLeeway = 5 * time.Second

// MintSessionToken signs a session token the way the Shopify admin does. It
// backs local tooling and tests; production tokens come from App Bridge.
func MintSessionToken(cfg config.ShopifyConfig, now time.Time, shop string, ttl time.Duration) (string, error) {
	if cfg.APISecret == "" {
		return "", fmt.Errorf("shopify api secret is required")
	}
	if shop == "" {
		return "", fmt.Errorf("shop is required")
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	claims := SessionClaims{
		Dest: "https://" + shop,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "https://" + shop + "/admin",
			Audience:  jwt.ClaimStrings{cfg.APIKey},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwtSigningMethod, claims).SignedString([]byte(cfg.APISecret))
	if err != nil {
		return "", fmt.Errorf("signing session token: %w", err)
	}
	return signed, nil
}

// ParseSessionToken validates signature, lifetime and audience and checks
// that iss and dest point at the same shop.
func ParseSessionToken(cfg config.ShopifyConfig, tokenString string) (*SessionClaims, error) {
	if cfg.APISecret == "" {
		return nil, fmt.Errorf("shopify api secret is required")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwtSigningMethod.Alg()}),
		jwt.WithLeeway(sessionLeeway),
		jwt.WithExpirationRequired(),
	}
	if cfg.APIKey != "" {
		opts = append(opts, jwt.WithAudience(cfg.APIKey))
	}

	claims := &SessionClaims{}
	_, err := jwt.ParseWithClaims(
		tokenString,
		claims,
		func(token *jwt.Token) (interface{}, error) {
			if token.Method != jwtSigningMethod {
				return nil, fmt.Errorf("unexpected signing method %s", token.Header["alg"])
			}
			return []byte(cfg.APISecret), nil
		},
		opts...,
	)
	if err != nil {
		return nil, err
	}

	shop := claims.Shop()
	if shop == "" {
		return nil, fmt.Errorf("session token missing dest")
	}
	if issuer := hostOf(claims.Issuer); issuer != shop {
		return nil, fmt.Errorf("session token issuer %q does not match dest %q", issuer, shop)
	}
	return claims, nil
}
