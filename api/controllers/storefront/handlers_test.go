package storefront

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/popcatch-backend/api/middleware"
	"github.com/angelmondragon/popcatch-backend/internal/eligibility"
	internalstorefront "github.com/angelmondragon/popcatch-backend/internal/storefront"
	pkgerrors "github.com/angelmondragon/popcatch-backend/pkg/errors"
)

type stubService struct {
	lastShop       string
	lastQuery      internalstorefront.VisitorQuery
	lastImpression internalstorefront.ImpressionInput
	lastEmail      string
	submitErr      error
}

func (s *stubService) Decide(_ context.Context, shop string, q internalstorefront.VisitorQuery) (*internalstorefront.DecisionDTO, error) {
	s.lastShop = shop
	s.lastQuery = q
	return &internalstorefront.DecisionDTO{Show: true, Reasons: []eligibility.Reason{}}, nil
}

func (s *stubService) RecordImpression(_ context.Context, shop string, in internalstorefront.ImpressionInput) (*internalstorefront.ImpressionDTO, error) {
	s.lastShop = shop
	s.lastImpression = in
	return &internalstorefront.ImpressionDTO{PopupID: in.PopupID, Impressions: 1, WindowEnds: time.Now()}, nil
}

func (s *stubService) Submit(_ context.Context, shop, email string) (*internalstorefront.SubmissionDTO, error) {
	s.lastShop = shop
	s.lastEmail = email
	if s.submitErr != nil {
		return nil, s.submitErr
	}
	code := "POPUP-ABCD1234"
	return &internalstorefront.SubmissionDTO{Success: true, HasDiscount: true, DiscountCode: &code, Message: "ok"}, nil
}

func withShop(req *http.Request) *http.Request {
	return req.WithContext(middleware.WithShop(req.Context(), "demo.myshopify.com"))
}

func TestPopupLookupPassesVisitorQuery(t *testing.T) {
	svc := &stubService{}
	req := withShop(httptest.NewRequest(http.MethodGet, "/api/storefront/v1/popup?path=/products/hat&country=US&tz=America/New_York&visitor_id=v1", nil))
	rec := httptest.NewRecorder()

	PopupLookup(svc, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if svc.lastShop != "demo.myshopify.com" {
		t.Fatalf("unexpected shop %q", svc.lastShop)
	}
	want := internalstorefront.VisitorQuery{Path: "/products/hat", Country: "US", Timezone: "America/New_York", VisitorID: "v1"}
	if svc.lastQuery != want {
		t.Fatalf("unexpected query %+v", svc.lastQuery)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["show"] != true {
		t.Fatalf("expected unwrapped decision, got %s", rec.Body.String())
	}
}

func TestRecordImpressionValidatesBody(t *testing.T) {
	svc := &stubService{}
	req := withShop(httptest.NewRequest(http.MethodPost, "/api/storefront/v1/popup/impressions", strings.NewReader(`{"visitor_id":"v1","popup_id":"nope"}`)))
	rec := httptest.NewRecorder()

	RecordImpression(svc, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
}

func TestRecordImpressionUsesQueryTimezone(t *testing.T) {
	svc := &stubService{}
	popupID := uuid.New()
	body := `{"visitor_id":"v1","popup_id":"` + popupID.String() + `"}`
	req := withShop(httptest.NewRequest(http.MethodPost, "/api/storefront/v1/popup/impressions?tz=Europe/Paris", strings.NewReader(body)))
	rec := httptest.NewRecorder()

	RecordImpression(svc, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rec.Code, rec.Body.String())
	}
	if svc.lastImpression.PopupID != popupID || svc.lastImpression.Timezone != "Europe/Paris" {
		t.Fatalf("unexpected impression input %+v", svc.lastImpression)
	}
}

func TestSubmitReturnsStorefrontBody(t *testing.T) {
	svc := &stubService{}
	req := withShop(httptest.NewRequest(http.MethodPost, "/api/storefront/v1/submissions", strings.NewReader(`{"email":"a@b.co","source":"footer"}`)))
	rec := httptest.NewRecorder()

	Submit(svc, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rec.Code, rec.Body.String())
	}
	var body struct {
		Success      bool   `json:"success"`
		HasDiscount  bool   `json:"hasDiscount"`
		DiscountCode string `json:"discountCode"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.Success || !body.HasDiscount || body.DiscountCode != "POPUP-ABCD1234" {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}
	if svc.lastEmail != "a@b.co" {
		t.Fatalf("unexpected email %q", svc.lastEmail)
	}
}

func TestSubmitRendersFailures(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"missing email", pkgerrors.New(pkgerrors.CodeValidation, "email is required"), http.StatusBadRequest},
		{"no store", pkgerrors.New(pkgerrors.CodeNotFound, "store not found"), http.StatusNotFound},
		{"upstream", pkgerrors.New(pkgerrors.CodeUpstream, "discount creation failed"), http.StatusBadGateway},
		{"conflict", pkgerrors.New(pkgerrors.CodeConcurrencyConflict, "popup was modified concurrently"), http.StatusConflict},
	}

	for _, tt := range tests {
		svc := &stubService{submitErr: tt.err}
		req := withShop(httptest.NewRequest(http.MethodPost, "/api/storefront/v1/submissions", strings.NewReader(`{"email":""}`)))
		rec := httptest.NewRecorder()

		Submit(svc, nil).ServeHTTP(rec, req)

		if rec.Code != tt.status {
			t.Fatalf("%s: expected %d got %d", tt.name, tt.status, rec.Code)
		}
		var body map[string]any
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("%s: decode: %v", tt.name, err)
		}
		if body["error"] == "" || body["error"] == nil {
			t.Fatalf("%s: expected error message, got %s", tt.name, rec.Body.String())
		}
	}
}

func TestStorefrontHandlersRequireShop(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/storefront/v1/popup", nil)
	rec := httptest.NewRecorder()

	PopupLookup(&stubService{}, nil).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rec.Code)
	}
}
