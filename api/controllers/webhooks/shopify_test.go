package webhooks

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/popcatch-backend/pkg/auth"
)

const testSecret = "shpss_test"

type handledCall struct {
	topic string
	shop  string
	body  string
}

type fakeService struct {
	calls []handledCall
	err   error
}

func (f *fakeService) Handle(_ context.Context, topic, shop string, body []byte) error {
	f.calls = append(f.calls, handledCall{topic: topic, shop: shop, body: string(body)})
	return f.err
}

type fakeGuard struct {
	seen     map[string]bool
	released []string
}

func newFakeGuard() *fakeGuard { return &fakeGuard{seen: map[string]bool{}} }

func (g *fakeGuard) CheckAndMark(_ context.Context, id string) (bool, error) {
	if g.seen[id] {
		return true, nil
	}
	g.seen[id] = true
	return false, nil
}

func (g *fakeGuard) Release(_ context.Context, id string) error {
	delete(g.seen, id)
	g.released = append(g.released, id)
	return nil
}

func signedRequest(body, secret, id string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/shopify", bytes.NewReader([]byte(body)))
	req.Header.Set(auth.WebhookHMACHeader, auth.SignWebhook([]byte(body), secret))
	req.Header.Set(topicHeader, "app/uninstalled")
	req.Header.Set(shopHeader, "Demo.myshopify.com")
	if id != "" {
		req.Header.Set(webhookIDHeader, id)
	}
	return req
}

func TestShopifyWebhookAppliesOnce(t *testing.T) {
	svc := &fakeService{}
	guard := newFakeGuard()
	handler := ShopifyWebhook(svc, testSecret, guard, nil)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, signedRequest(`{"id":1}`, testSecret, "wh-1"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Len(t, svc.calls, 1)
	assert.Equal(t, handledCall{topic: "app/uninstalled", shop: "demo.myshopify.com", body: `{"id":1}`}, svc.calls[0])

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, signedRequest(`{"id":1}`, testSecret, "wh-1"))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, svc.calls, 1)
}

func TestShopifyWebhookRejectsBadSignature(t *testing.T) {
	svc := &fakeService{}
	handler := ShopifyWebhook(svc, testSecret, newFakeGuard(), nil)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, signedRequest(`{"id":1}`, "wrong", "wh-1"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, svc.calls)
}

func TestShopifyWebhookRequiresHeaders(t *testing.T) {
	svc := &fakeService{}
	handler := ShopifyWebhook(svc, testSecret, nil, nil)

	req := signedRequest(`{}`, testSecret, "")
	req.Header.Del(topicHeader)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, svc.calls)
}

func TestShopifyWebhookReleasesOnFailure(t *testing.T) {
	svc := &fakeService{err: errors.New("boom")}
	guard := newFakeGuard()
	handler := ShopifyWebhook(svc, testSecret, guard, nil)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, signedRequest(`{}`, testSecret, "wh-9"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, []string{"wh-9"}, guard.released)
	assert.False(t, guard.seen["wh-9"])
}

func TestShopifyWebhookWithoutGuard(t *testing.T) {
	svc := &fakeService{}
	handler := ShopifyWebhook(svc, testSecret, nil, nil)

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, signedRequest(`{}`, testSecret, "wh-2"))
		require.Equal(t, http.StatusOK, rec.Code)
	}
	assert.Len(t, svc.calls, 2)
}
