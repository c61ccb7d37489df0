package storefront

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/popcatch-backend/internal/discounts"
	"github.com/angelmondragon/popcatch-backend/internal/eligibility"
	"github.com/angelmondragon/popcatch-backend/internal/impressions"
	"github.com/angelmondragon/popcatch-backend/internal/popups"
	"github.com/angelmondragon/popcatch-backend/internal/rules"
	"github.com/angelmondragon/popcatch-backend/internal/stores"
	"github.com/angelmondragon/popcatch-backend/internal/submissions"
	"github.com/angelmondragon/popcatch-backend/pkg/db/dbtest"
	"github.com/angelmondragon/popcatch-backend/pkg/db/models"
	"github.com/angelmondragon/popcatch-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/popcatch-backend/pkg/errors"
	"github.com/angelmondragon/popcatch-backend/pkg/outbox"
	"github.com/angelmondragon/popcatch-backend/pkg/shopify"
)

const testShop = "demo.myshopify.com"

var fixedNow = time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)

type memoryCounter struct {
	mu     sync.Mutex
	counts map[string]int64
}

func (m *memoryCounter) IncrWithTTL(_ context.Context, key string, _ time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[key]++
	return m.counts[key], nil
}

func (m *memoryCounter) Count(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[key], nil
}

func (m *memoryCounter) ImpressionKey(shop, popupID, visitorID, window string) string {
	return strings.Join([]string{shop, popupID, visitorID, window}, ":")
}

type shopifyStub struct {
	mu       sync.Mutex
	paths    []string
	failRule bool
}

func (s *shopifyStub) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.paths = append(s.paths, r.URL.Path)
		s.mu.Unlock()
		assert.Equal(t, "shpat_test", r.Header.Get("X-Shopify-Access-Token"))
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/price_rules.json"):
			if s.failRule {
				w.WriteHeader(http.StatusUnprocessableEntity)
				_, _ = w.Write([]byte(`{"errors":{"value":["must be negative"]}}`))
				return
			}
			_, _ = w.Write([]byte(`{"price_rule":{"id":4242}}`))
		case strings.HasSuffix(r.URL.Path, "/price_rules/4242/discount_codes.json"):
			var body map[string]map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"discount_code": map[string]any{"id": 1, "code": body["discount_code"]["code"]},
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
}

type harness struct {
	svc    Service
	popups popups.Service
	store  *stores.StoreDTO
	stub   *shopifyStub
	repo   popups.Repository
}

func newHarness(t *testing.T) harness {
	t.Helper()
	client := dbtest.Open(t)
	stub := &shopifyStub{}
	server := httptest.NewServer(stub.handler(t))
	t.Cleanup(server.Close)

	storeSvc, err := stores.NewService(stores.NewRepository(client.DB()))
	require.NoError(t, err)
	token := "shpat_test"
	store, err := storeSvc.Upsert(context.Background(), testShop, &token)
	require.NoError(t, err)

	popupRepo := popups.NewRepository(client.DB())
	events := outbox.NewService(outbox.NewRepository(client.DB()), nil)
	popupSvc, err := popups.NewService(popupRepo, client, events, 0)
	require.NoError(t, err)

	api, err := shopify.NewClient("2024-10", shopify.WithBaseURL(server.URL), shopify.WithTimeout(2*time.Second))
	require.NoError(t, err)
	issuer, err := discounts.NewIssuer(api, discounts.Options{
		UsageLimit: 1,
		Generate:   discounts.RandomCode("POPUP"),
		Now:        func() time.Time { return fixedNow },
	}, nil, nil)
	require.NoError(t, err)

	recorder, err := submissions.NewRecorder(popupRepo, client, events, nil, nil, submissions.Options{})
	require.NoError(t, err)
	counter, err := impressions.NewCounter(&memoryCounter{counts: map[string]int64{}})
	require.NoError(t, err)

	svc, err := NewService(Params{
		Stores:      storeSvc,
		Popups:      popupRepo,
		Issuer:      issuer,
		Recorder:    recorder,
		Impressions: counter,
		Policy:      eligibility.DefaultPolicy,
		Now:         func() time.Time { return fixedNow },
	})
	require.NoError(t, err)
	return harness{svc: svc, popups: popupSvc, store: store, stub: stub, repo: popupRepo}
}

func (h harness) createActive(t *testing.T, raw string) *popups.PopupDTO {
	t.Helper()
	created, err := h.popups.Create(context.Background(), h.store.ID, popups.CreateInput{IsActive: true, Config: json.RawMessage(raw)})
	require.NoError(t, err)
	return created
}

func TestSubmitIssuesCodeEndToEnd(t *testing.T) {
	h := newHarness(t)
	created := h.createActive(t, `{"discount":{"discount_code":{"enabled":true,"discountType":"percentage","discountValue":"-10"}}}`)

	out, err := h.svc.Submit(context.Background(), testShop, "visitor@example.com")
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.True(t, out.HasDiscount)
	require.NotNil(t, out.DiscountCode)
	assert.Regexp(t, regexp.MustCompile(`^POPUP-[A-Z0-9]{8}$`), *out.DiscountCode)
	assert.Equal(t, []string{
		"/admin/api/2024-10/price_rules.json",
		"/admin/api/2024-10/price_rules/4242/discount_codes.json",
	}, h.stub.paths)

	stored, err := h.repo.FindByID(context.Background(), created.ID)
	require.NoError(t, err)
	cfg, err := rules.Parse(stored.Config)
	require.NoError(t, err)
	assert.Equal(t, []string{"visitor@example.com"}, cfg.Emails)
	assert.Equal(t, []string{*out.DiscountCode}, cfg.DiscountCodes)
}

func TestSubmitWithoutDiscountSkipsAPI(t *testing.T) {
	h := newHarness(t)
	h.createActive(t, `{"discount":{"no_discount":{"enabled":true},"discount_code":{"enabled":true}}}`)

	out, err := h.svc.Submit(context.Background(), testShop, "visitor@example.com")
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.False(t, out.HasDiscount)
	assert.Nil(t, out.DiscountCode)
	assert.Equal(t, messageSubscribed, out.Message)
	assert.Empty(t, h.stub.paths)
}

func TestSubmitUpstreamFailureRecordsNothing(t *testing.T) {
	h := newHarness(t)
	h.stub.failRule = true
	created := h.createActive(t, `{"discount":{"discount_code":{"enabled":true}}}`)

	_, err := h.svc.Submit(context.Background(), testShop, "visitor@example.com")
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeUpstream, typed.Code())
	assert.Len(t, h.stub.paths, 1)

	stored, err := h.repo.FindByID(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Version, stored.Version)
}

func TestSubmitErrors(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.Submit(context.Background(), testShop, "  ")
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())

	_, err = h.svc.Submit(context.Background(), "unknown.myshopify.com", "a@example.com")
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.As(err).Code())

	_, err = h.popups.Create(context.Background(), h.store.ID, popups.CreateInput{})
	require.NoError(t, err)
	_, err = h.svc.Submit(context.Background(), testShop, "a@example.com")
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.As(err).Code())
}

func TestSubmitWithoutAnyPopupCreatesDefault(t *testing.T) {
	h := newHarness(t)

	out, err := h.svc.Submit(context.Background(), testShop, "first@example.com")
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.False(t, out.HasDiscount)

	listed, err := h.popups.List(context.Background(), h.store.ID)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.True(t, listed[0].IsActive)
}

func TestDecideServesPublicConfig(t *testing.T) {
	h := newHarness(t)
	created := h.createActive(t, `{"location_rules":{"type":"INCLUDE","countries":["US"]},"content":{"title":"Hi"}}`)
	_, err := h.svc.Submit(context.Background(), testShop, "secret@example.com")
	require.NoError(t, err)

	shown, err := h.svc.Decide(context.Background(), testShop, VisitorQuery{Path: "/", Country: "us"})
	require.NoError(t, err)
	assert.True(t, shown.Show)
	require.NotNil(t, shown.Popup)
	assert.Equal(t, created.ID, shown.Popup.ID)
	assert.NotContains(t, string(shown.Popup.Config), "secret@example.com")
	assert.Contains(t, string(shown.Popup.Config), `"title":"Hi"`)

	hidden, err := h.svc.Decide(context.Background(), testShop, VisitorQuery{Path: "/", Country: "CA"})
	require.NoError(t, err)
	assert.False(t, hidden.Show)
	assert.Equal(t, []eligibility.Reason{eligibility.ReasonLocationNotIncluded}, hidden.Reasons)
	assert.Nil(t, hidden.Popup)
}

func TestDecideWithoutActivePopup(t *testing.T) {
	h := newHarness(t)

	out, err := h.svc.Decide(context.Background(), testShop, VisitorQuery{Path: "/"})
	require.NoError(t, err)
	assert.False(t, out.Show)
	assert.Equal(t, []eligibility.Reason{ReasonNoActivePopup}, out.Reasons)

	out, err = h.svc.Decide(context.Background(), "unknown.myshopify.com", VisitorQuery{Path: "/"})
	require.NoError(t, err)
	assert.False(t, out.Show)
}

func TestDecideInvalidConfigFailsClosed(t *testing.T) {
	h := newHarness(t)
	storeID := h.store.ID
	_, err := h.repo.Create(context.Background(), &models.Popup{
		StoreID:  storeID,
		Type:     enums.PopupTypeOptIn,
		IsActive: true,
		Config:   json.RawMessage(`{"schedule":{"type":"SOMETIMES"}}`),
	})
	require.NoError(t, err)

	out, err := h.svc.Decide(context.Background(), testShop, VisitorQuery{Path: "/"})
	require.NoError(t, err)
	assert.False(t, out.Show)
	assert.Equal(t, []eligibility.Reason{eligibility.ReasonInvalidConfig}, out.Reasons)
}

func TestImpressionsFeedFrequencyCap(t *testing.T) {
	h := newHarness(t)
	created := h.createActive(t, `{"frequency":{"type":"LIMIT","limit":{"count":2,"per":"Day"}}}`)
	ctx := context.Background()
	query := VisitorQuery{Path: "/", VisitorID: "visitor-1", Timezone: "America/New_York"}

	for i := 1; i <= 2; i++ {
		decision, err := h.svc.Decide(ctx, testShop, query)
		require.NoError(t, err)
		require.True(t, decision.Show, "impression %d", i)

		recorded, err := h.svc.RecordImpression(ctx, testShop, ImpressionInput{VisitorID: "visitor-1", PopupID: created.ID, Timezone: query.Timezone})
		require.NoError(t, err)
		assert.Equal(t, i, recorded.Impressions)
	}

	capped, err := h.svc.Decide(ctx, testShop, query)
	require.NoError(t, err)
	assert.False(t, capped.Show)
	assert.Equal(t, []eligibility.Reason{eligibility.ReasonFrequencyCapped}, capped.Reasons)

	other, err := h.svc.Decide(ctx, testShop, VisitorQuery{Path: "/", VisitorID: "visitor-2"})
	require.NoError(t, err)
	assert.True(t, other.Show)
}

func TestRecordImpressionValidation(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.RecordImpression(context.Background(), testShop, ImpressionInput{PopupID: uuid.New()})
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())

	_, err = h.svc.RecordImpression(context.Background(), testShop, ImpressionInput{VisitorID: "v", PopupID: uuid.New()})
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.As(err).Code())
}

func TestNewServiceValidatesParams(t *testing.T) {
	_, err := NewService(Params{})
	assert.Error(t, err)
}
