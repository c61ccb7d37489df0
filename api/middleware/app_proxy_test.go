package middleware

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/angelmondragon/popcatch-backend/pkg/auth"
)

const proxySecret = "hush"

func signedProxyURL(path string, query url.Values) string {
	if _, ok := query["timestamp"]; !ok {
		query.Set("timestamp", strconv.FormatInt(time.Now().Unix(), 10))
	}
	query.Set(auth.ProxySignatureParam, auth.SignProxyQuery(query, proxySecret))
	return path + "?" + query.Encode()
}

func TestAppProxyAcceptsSignedRequest(t *testing.T) {
	var gotShop string
	handler := AppProxy(proxySecret, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotShop = ShopFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	target := signedProxyURL("/api/storefront/v1/popup", url.Values{
		"shop":        {"Demo.myshopify.com"},
		"path_prefix": {"/apps/popcatch"},
		"path":        {"/products/hat"},
	})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rec.Code, rec.Body.String())
	}
	if gotShop != "demo.myshopify.com" {
		t.Fatalf("unexpected shop %q", gotShop)
	}
}

func TestAppProxyRejectsTamperedQuery(t *testing.T) {
	handler := AppProxy(proxySecret, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("handler must not run")
	}))

	target := signedProxyURL("/api/storefront/v1/popup", url.Values{
		"shop": {"demo.myshopify.com"},
		"path": {"/"},
	}) + "&country=US"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rec.Code)
	}
}

func TestAppProxyRejectsForeignShop(t *testing.T) {
	handler := AppProxy(proxySecret, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("handler must not run")
	}))

	target := signedProxyURL("/api/storefront/v1/popup", url.Values{"shop": {"evil.example.com"}})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
}

func TestAppProxyRejectsStaleTimestamp(t *testing.T) {
	handler := AppProxy(proxySecret, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("handler must not run")
	}))

	for _, ts := range []string{"1700000000", strconv.FormatInt(time.Now().Add(time.Hour).Unix(), 10), "soon"} {
		target := signedProxyURL("/api/storefront/v1/popup", url.Values{
			"shop":      {"demo.myshopify.com"},
			"timestamp": {ts},
		})
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))

		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("timestamp %s: expected 401 got %d", ts, rec.Code)
		}
	}
}
