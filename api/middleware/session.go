package middleware

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/popcatch-backend/api/responses"
	"github.com/angelmondragon/popcatch-backend/pkg/auth"
	"github.com/angelmondragon/popcatch-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/popcatch-backend/pkg/errors"
	"github.com/angelmondragon/popcatch-backend/pkg/logger"
	"github.com/angelmondragon/popcatch-backend/pkg/shopify"
)

// Session validates the App Bridge session token and seeds the request
// context with the shop it was issued for.
func Session(cfg config.ShopifyConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get("Authorization"))
			if raw == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			token := raw
			if strings.HasPrefix(strings.ToLower(token), "bearer ") {
				token = strings.TrimSpace(token[7:])
			}
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			claims, err := auth.ParseSessionToken(cfg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}

			shop := claims.Shop()
			if !shopify.ValidShopDomain(shop) {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "token does not name a shop"))
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
