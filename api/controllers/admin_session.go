package controllers

import (
	"context"
	"net/http"

	"github.com/angelmondragon/popcatch-backend/api/middleware"
	"github.com/angelmondragon/popcatch-backend/api/responses"
	"github.com/angelmondragon/popcatch-backend/api/validators"
	"github.com/angelmondragon/popcatch-backend/internal/stores"
	pkgerrors "github.com/angelmondragon/popcatch-backend/pkg/errors"
	"github.com/angelmondragon/popcatch-backend/pkg/logger"
)

type storeUpserter interface {
	Upsert(ctx context.Context, shop string, accessToken *string) (*stores.StoreDTO, error)
}

type adminSessionRequest struct {
	AccessToken *string `json:"access_token,omitempty" validate:"omitempty,max=255"`
}

// AdminSession registers the shop behind the session token and stores the
// offline Admin API token when the admin UI supplies one.
func AdminSession(svc storeUpserter, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "store service unavailable"))
			return
		}

		shop := middleware.ShopFromContext(r.Context())
		if shop == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "shop context missing"))
			return
		}

		var req adminSessionRequest
		if r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &req); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		store, err := svc.Upsert(r.Context(), shop, req.AccessToken)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, store)
	}
}
