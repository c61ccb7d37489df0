package popups

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/popcatch-backend/api/middleware"
	internalpopups "github.com/angelmondragon/popcatch-backend/internal/popups"
	"github.com/angelmondragon/popcatch-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/popcatch-backend/pkg/errors"
)

type stubPopupService struct {
	storeID     uuid.UUID
	created     internalpopups.CreateInput
	patch       internalpopups.PopupPatch
	updateCalls int
	deleted     uuid.UUID
	getErr      error
}

func (s *stubPopupService) Create(_ context.Context, storeID uuid.UUID, input internalpopups.CreateInput) (*internalpopups.PopupDTO, error) {
	s.storeID = storeID
	s.created = input
	return &internalpopups.PopupDTO{ID: uuid.New(), StoreID: storeID, Type: input.Type, IsActive: input.IsActive}, nil
}

func (s *stubPopupService) List(_ context.Context, storeID uuid.UUID) ([]internalpopups.PopupDTO, error) {
	s.storeID = storeID
	return []internalpopups.PopupDTO{{ID: uuid.New(), StoreID: storeID}}, nil
}

func (s *stubPopupService) Get(_ context.Context, storeID, id uuid.UUID) (*internalpopups.PopupDTO, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	return &internalpopups.PopupDTO{ID: id, StoreID: storeID}, nil
}

func (s *stubPopupService) GetActive(context.Context, uuid.UUID) (*internalpopups.PopupDTO, error) {
	panic("unimplemented")
}

func (s *stubPopupService) Update(_ context.Context, storeID, id uuid.UUID, patch internalpopups.PopupPatch) (*internalpopups.PopupDTO, error) {
	s.updateCalls++
	s.patch = patch
	return &internalpopups.PopupDTO{ID: id, StoreID: storeID}, nil
}

func (s *stubPopupService) Activate(_ context.Context, storeID, id uuid.UUID) (*internalpopups.PopupDTO, error) {
	return &internalpopups.PopupDTO{ID: id, StoreID: storeID, IsActive: true}, nil
}

func (s *stubPopupService) Delete(_ context.Context, _ uuid.UUID, id uuid.UUID) error {
	s.deleted = id
	return nil
}

func adminRequest(method, target, body string, storeID uuid.UUID, popupID string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	ctx := middleware.WithStoreID(req.Context(), storeID.String())
	if popupID != "" {
		rc := chi.NewRouteContext()
		rc.URLParams.Add("popupId", popupID)
		ctx = context.WithValue(ctx, chi.RouteCtxKey, rc)
	}
	return req.WithContext(ctx)
}

func TestCreatePopup(t *testing.T) {
	svc := &stubPopupService{}
	storeID := uuid.New()
	body := `{"type":"SPIN_WHEEL","is_active":true,"config":{"discountType":"no_discount"}}`
	rec := httptest.NewRecorder()

	Create(svc, nil).ServeHTTP(rec, adminRequest(http.MethodPost, "/api/admin/v1/popups", body, storeID, ""))

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", rec.Code, rec.Body.String())
	}
	if svc.storeID != storeID {
		t.Fatalf("store scope not forwarded")
	}
	if svc.created.Type != enums.PopupTypeSpinWheel || !svc.created.IsActive {
		t.Fatalf("unexpected input %+v", svc.created)
	}
	if !strings.Contains(string(svc.created.Config), "no_discount") {
		t.Fatalf("config not forwarded: %s", svc.created.Config)
	}
}

func TestCreatePopupRejectsUnknownType(t *testing.T) {
	svc := &stubPopupService{}
	rec := httptest.NewRecorder()

	Create(svc, nil).ServeHTTP(rec, adminRequest(http.MethodPost, "/api/admin/v1/popups", `{"type":"BANNER"}`, uuid.New(), ""))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
	var payload struct {
		Error struct {
			Details map[string]string `json:"details"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Error.Details["type"] == "" {
		t.Fatalf("expected type field error, got %s", rec.Body.String())
	}
}

func TestUpdatePopupNullConfigIsIgnored(t *testing.T) {
	svc := &stubPopupService{}
	popupID := uuid.New()
	rec := httptest.NewRecorder()

	Update(svc, nil).ServeHTTP(rec, adminRequest(http.MethodPatch, "/api/admin/v1/popups/"+popupID.String(), `{"is_active":false,"config":null}`, uuid.New(), popupID.String()))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rec.Code, rec.Body.String())
	}
	if svc.patch.Config != nil {
		t.Fatalf("null config should not replace the stored document")
	}
	if svc.patch.IsActive == nil || *svc.patch.IsActive {
		t.Fatalf("expected is_active=false in patch")
	}
}

func TestUpdatePopupRequiresChanges(t *testing.T) {
	svc := &stubPopupService{}
	popupID := uuid.New()
	rec := httptest.NewRecorder()

	Update(svc, nil).ServeHTTP(rec, adminRequest(http.MethodPatch, "/api/admin/v1/popups/"+popupID.String(), `{}`, uuid.New(), popupID.String()))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
	if svc.updateCalls != 0 {
		t.Fatalf("service should not be called")
	}
}

func TestGetPopupInvalidID(t *testing.T) {
	rec := httptest.NewRecorder()

	Get(&stubPopupService{}, nil).ServeHTTP(rec, adminRequest(http.MethodGet, "/api/admin/v1/popups/abc", "", uuid.New(), "abc"))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
}

func TestGetPopupNotFound(t *testing.T) {
	svc := &stubPopupService{getErr: pkgerrors.New(pkgerrors.CodeNotFound, "popup not found")}
	popupID := uuid.New()
	rec := httptest.NewRecorder()

	Get(svc, nil).ServeHTTP(rec, adminRequest(http.MethodGet, "/api/admin/v1/popups/"+popupID.String(), "", uuid.New(), popupID.String()))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", rec.Code)
	}
}

func TestDeletePopup(t *testing.T) {
	svc := &stubPopupService{}
	popupID := uuid.New()
	rec := httptest.NewRecorder()

	Delete(svc, nil).ServeHTTP(rec, adminRequest(http.MethodDelete, "/api/admin/v1/popups/"+popupID.String(), "", uuid.New(), popupID.String()))

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 got %d", rec.Code)
	}
	if svc.deleted != popupID {
		t.Fatalf("unexpected deleted id %s", svc.deleted)
	}
}

func TestListRequiresStoreContext(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/admin/v1/popups", nil)
	rec := httptest.NewRecorder()

	List(&stubPopupService{}, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", rec.Code)
	}
}
