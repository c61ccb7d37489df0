// Package shopify is a minimal Admin REST client for price rules and
// discount codes.
package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	pkgerrors "github.com/angelmondragon/popcatch-backend/pkg/errors"
)

const (
	defaultAPIVersion           = "2024-10"
	defaultTimeout              = 10 * time.Second
	accessTokenHeader           = "X-Shopify-Access-Token"
	responseBodyReadLimit int64 = 1024
)

var (
	errAPIVersionRequired = errors.New("shopify api version is required")
	shopDomainRe          = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*\.myshopify\.com$`)
)

// Client calls the Admin REST API on behalf of an installed shop.
type Client struct {
	httpClient *http.Client
	apiVersion string
	baseURL    string
	timeout    time.Duration
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL sends every request to baseURL instead of https://{shop}.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	}
}

// WithTimeout bounds each Admin API call.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// NewClient builds an Admin API client pinned to apiVersion.
func NewClient(apiVersion string, opts ...Option) (*Client, error) {
	version := strings.TrimSpace(apiVersion)
	if version == "" {
		return nil, errAPIVersionRequired
	}

	client := &Client{
		apiVersion: version,
		timeout:    defaultTimeout,
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// ValidShopDomain reports whether shop is a canonical *.myshopify.com host.
func ValidShopDomain(shop string) bool {
	return shopDomainRe.MatchString(shop)
}

// Credentials identify the shop a call is made for.
type Credentials struct {
	Shop        string
	AccessToken string
}

func (c *Client) endpoint(shop, path string) (string, error) {
	base := c.baseURL
	if base == "" {
		if !ValidShopDomain(shop) {
			return "", pkgerrors.New(pkgerrors.CodeValidation, "invalid shop domain").
				WithDetails(map[string]any{"shop": shop})
		}
		base = "https://" + shop
	}
	return fmt.Sprintf("%s/admin/api/%s/%s", base, c.apiVersion, strings.TrimLeft(path, "/")), nil
}

// post sends body as JSON and decodes a 2xx response into out. Any transport
// failure or non-2xx status becomes an UPSTREAM_API_ERROR carrying the
// first KiB of the response body.
func (c *Client) post(ctx context.Context, creds Credentials, step, path string, body, out any) error {
	if c == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "shopify client not configured")
	}
	if strings.TrimSpace(creds.AccessToken) == "" {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "shop has no access token")
	}

	url, err := c.endpoint(creds.Shop, path)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal "+step+" request")
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build "+step+" request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(accessTokenHeader, creds.AccessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeUpstream, err, step+" request failed").
			WithDetails(map[string]any{"step": step, "error": err.Error()})
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		text := strings.TrimSpace(string(msg))
		return pkgerrors.Wrap(pkgerrors.CodeUpstream, fmt.Errorf("status %d: %s", resp.StatusCode, text), step+" request failed").
			WithDetails(map[string]any{"step": step, "status": resp.StatusCode, "body": text})
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeUpstream, err, "decode "+step+" response").
			WithDetails(map[string]any{"step": step, "error": err.Error()})
	}
	return nil
}
