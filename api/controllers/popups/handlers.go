package popups

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/popcatch-backend/api/middleware"
	"github.com/angelmondragon/popcatch-backend/api/responses"
	"github.com/angelmondragon/popcatch-backend/api/validators"
	internalpopups "github.com/angelmondragon/popcatch-backend/internal/popups"
	"github.com/angelmondragon/popcatch-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/popcatch-backend/pkg/errors"
	"github.com/angelmondragon/popcatch-backend/pkg/logger"
)

type createRequest struct {
	Type     enums.PopupType `json:"type,omitempty" validate:"omitempty,oneof=OPT_IN SPIN_WHEEL"`
	IsActive bool            `json:"is_active"`
	Config   json.RawMessage `json:"config,omitempty"`
}

type updateRequest struct {
	Type     *enums.PopupType `json:"type,omitempty" validate:"omitempty,oneof=OPT_IN SPIN_WHEEL"`
	IsActive *bool            `json:"is_active,omitempty"`
	Config   json.RawMessage  `json:"config,omitempty"`
}

func (r updateRequest) toPatch() internalpopups.PopupPatch {
	return internalpopups.PopupPatch{
		Type:     r.Type,
		IsActive: r.IsActive,
		Config:   nullToNil(r.Config),
	}
}

// List returns every popup of the authenticated store.
func List(svc internalpopups.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		storeID, ok := storeFromRequest(w, r, svc, logg)
		if !ok {
			return
		}

		rows, err := svc.List(r.Context(), storeID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, rows)
	}
}

// Create stores a new popup. An omitted config gets the full default document.
func Create(svc internalpopups.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		storeID, ok := storeFromRequest(w, r, svc, logg)
		if !ok {
			return
		}

		var req createRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		created, err := svc.Create(r.Context(), storeID, internalpopups.CreateInput{
			Type:     req.Type,
			IsActive: req.IsActive,
			Config:   nullToNil(req.Config),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, created)
	}
}

func Get(svc internalpopups.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		storeID, ok := storeFromRequest(w, r, svc, logg)
		if !ok {
			return
		}
		popupID, ok := popupIDFromRequest(w, r, logg)
		if !ok {
			return
		}

		popup, err := svc.Get(r.Context(), storeID, popupID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, popup)
	}
}

// Update applies a partial change. A config in the body replaces the rule
// document while the submission log on the stored row is kept.
func Update(svc internalpopups.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		storeID, ok := storeFromRequest(w, r, svc, logg)
		if !ok {
			return
		}
		popupID, ok := popupIDFromRequest(w, r, logg)
		if !ok {
			return
		}

		var req updateRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		patch := req.toPatch()
		if patch.Type == nil && patch.IsActive == nil && patch.Config == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "nothing to update"))
			return
		}

		updated, err := svc.Update(r.Context(), storeID, popupID, patch)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, updated)
	}
}

// Activate makes the popup the single active one for its store.
func Activate(svc internalpopups.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		storeID, ok := storeFromRequest(w, r, svc, logg)
		if !ok {
			return
		}
		popupID, ok := popupIDFromRequest(w, r, logg)
		if !ok {
			return
		}

		popup, err := svc.Activate(r.Context(), storeID, popupID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, popup)
	}
}

func Delete(svc internalpopups.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		storeID, ok := storeFromRequest(w, r, svc, logg)
		if !ok {
			return
		}
		popupID, ok := popupIDFromRequest(w, r, logg)
		if !ok {
			return
		}

		if err := svc.Delete(r.Context(), storeID, popupID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteNoContent(w)
	}
}

func storeFromRequest(w http.ResponseWriter, r *http.Request, svc internalpopups.Service, logg *logger.Logger) (uuid.UUID, bool) {
	if svc == nil {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "popup service unavailable"))
		return uuid.Nil, false
	}

	raw := middleware.StoreIDFromContext(r.Context())
	if raw == "" {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "store context missing"))
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid store id"))
		return uuid.Nil, false
	}
	return id, true
}

func popupIDFromRequest(w http.ResponseWriter, r *http.Request, logg *logger.Logger) (uuid.UUID, bool) {
	raw := strings.TrimSpace(chi.URLParam(r, "popupId"))
	if raw == "" {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "popup id is required"))
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid popup id"))
		return uuid.Nil, false
	}
	return id, true
}

func nullToNil(raw json.RawMessage) json.RawMessage {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	return raw
}
