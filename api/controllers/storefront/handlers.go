package storefront

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/popcatch-backend/api/middleware"
	"github.com/angelmondragon/popcatch-backend/api/responses"
	"github.com/angelmondragon/popcatch-backend/api/validators"
	internalstorefront "github.com/angelmondragon/popcatch-backend/internal/storefront"
	pkgerrors "github.com/angelmondragon/popcatch-backend/pkg/errors"
	"github.com/angelmondragon/popcatch-backend/pkg/logger"
)

const (
	maxPathLen     = 2048
	maxCountryLen  = 8
	maxTimezoneLen = 64
	maxVisitorLen  = 128
)

type impressionRequest struct {
	VisitorID string `json:"visitor_id" validate:"required,max=128"`
	PopupID   string `json:"popup_id" validate:"required,uuid"`
	Timezone  string `json:"tz,omitempty" validate:"omitempty,max=64"`
}

type submissionRequest struct {
	Email string `json:"email" validate:"omitempty,max=320"`
}

// PopupLookup answers whether the current visitor should see the store's
// active popup, and with which public config.
func PopupLookup(svc internalstorefront.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		shop, ok := shopFromRequest(w, r, svc, logg)
		if !ok {
			return
		}

		q := internalstorefront.VisitorQuery{
			Path:      validators.QueryString(r, "path", maxPathLen),
			Country:   validators.QueryString(r, "country", maxCountryLen),
			Timezone:  validators.QueryString(r, "tz", maxTimezoneLen),
			VisitorID: validators.QueryString(r, "visitor_id", maxVisitorLen),
		}

		decision, err := svc.Decide(r.Context(), shop, q)
		if err != nil {
			responses.WriteStorefrontError(r.Context(), logg, w, err)
			return
		}
		w.Header().Set("Cache-Control", "no-store")
		responses.WriteRaw(w, http.StatusOK, decision)
	}
}

// RecordImpression counts one display toward the visitor's frequency cap.
func RecordImpression(svc internalstorefront.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		shop, ok := shopFromRequest(w, r, svc, logg)
		if !ok {
			return
		}

		var req impressionRequest
		if err := validators.DecodeJSONBodyLenient(r, &req); err != nil {
			responses.WriteStorefrontError(r.Context(), logg, w, err)
			return
		}
		popupID, err := uuid.Parse(req.PopupID)
		if err != nil {
			responses.WriteStorefrontError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid popup id"))
			return
		}
		tz := req.Timezone
		if tz == "" {
			tz = validators.QueryString(r, "tz", maxTimezoneLen)
		}

		out, err := svc.RecordImpression(r.Context(), shop, internalstorefront.ImpressionInput{
			VisitorID: validators.SanitizeString(req.VisitorID, maxVisitorLen),
			PopupID:   popupID,
			Timezone:  tz,
		})
		if err != nil {
			responses.WriteStorefrontError(r.Context(), logg, w, err)
			return
		}
		responses.WriteRaw(w, http.StatusOK, out)
	}
}

// Submit handles an email submission: discount issuance, then recording.
func Submit(svc internalstorefront.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		shop, ok := shopFromRequest(w, r, svc, logg)
		if !ok {
			return
		}

		var req submissionRequest
		if err := validators.DecodeJSONBodyLenient(r, &req); err != nil {
			responses.WriteStorefrontError(r.Context(), logg, w, err)
			return
		}

		out, err := svc.Submit(r.Context(), shop, req.Email)
		if err != nil {
			responses.WriteStorefrontError(r.Context(), logg, w, err)
			return
		}
		responses.WriteRaw(w, http.StatusOK, out)
	}
}

func shopFromRequest(w http.ResponseWriter, r *http.Request, svc internalstorefront.Service, logg *logger.Logger) (string, bool) {
	if svc == nil {
		responses.WriteStorefrontError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "storefront service unavailable"))
		return "", false
	}
	shop := middleware.ShopFromContext(r.Context())
	if shop == "" {
		responses.WriteStorefrontError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "shop context missing"))
		return "", false
	}
	return shop, true
}
