package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/popcatch-backend/api/responses"
	"github.com/angelmondragon/popcatch-backend/pkg/auth"
	pkgerrors "github.com/angelmondragon/popcatch-backend/pkg/errors"
	"github.com/angelmondragon/popcatch-backend/pkg/logger"
	"github.com/angelmondragon/popcatch-backend/pkg/shopify"
)

// AppProxy verifies the Shopify app proxy signature and timestamp on
// storefront requests and seeds the context with the signed shop parameter.
func AppProxy(secret string, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			query := r.URL.Query()
			if !auth.VerifyProxyQuery(query, secret) {
				responses.WriteStorefrontError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid proxy signature"))
				return
			}
			if !auth.ProxyTimestampFresh(query, time.Now(), auth.DefaultProxyMaxAge) {
				responses.WriteStorefrontError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "stale proxy signature"))
				return
			}

			shop := strings.ToLower(strings.TrimSpace(query.Get("shop")))
			if !shopify.ValidShopDomain(shop) {
				responses.WriteStorefrontError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid shop"))
				return
			}

			ctx := WithShop(r.Context(), shop)
			if logg != nil {
				ctx = logg.WithShop(ctx, shop)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
