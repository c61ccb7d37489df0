package middleware

import (
	"context"
	"net/http"

	"github.com/angelmondragon/popcatch-backend/api/responses"
	"github.com/angelmondragon/popcatch-backend/internal/stores"
	pkgerrors "github.com/angelmondragon/popcatch-backend/pkg/errors"
	"github.com/angelmondragon/popcatch-backend/pkg/logger"
)

type storeResolver interface {
	GetByShop(ctx context.Context, shop string) (*stores.StoreDTO, error)
}

// StoreContext resolves the authenticated shop to its installed store. A shop
// that never opened a session gets 403 so the admin UI knows to call
// POST /session first.
func StoreContext(resolver storeResolver, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			shop := ShopFromContext(r.Context())
			if shop == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "shop context missing"))
				return
			}

			store, err := resolver.GetByShop(r.Context(), shop)
			if err != nil {
				if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeNotFound {
					responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "store not installed"))
					return
				}
				responses.WriteError(r.Context(), logg, w, err)
				return
			}

			ctx := WithStoreID(r.Context(), store.ID.String())
			if logg != nil {
				ctx = logg.WithStoreID(ctx, store.ID.String())
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
