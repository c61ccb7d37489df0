package shopify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	pkgerrors "github.com/angelmondragon/popcatch-backend/pkg/errors"
)

const (
	TargetLineItem     = "line_item"
	TargetShippingLine = "shipping_line"
	AllocationAcross   = "across"
	AllocationEach     = "each"
	SelectionAll       = "all"
)

// PriceRule is the body of POST /price_rules.json.
type PriceRule struct {
	ID                int64           `json:"id,omitempty"`
	Title             string          `json:"title"`
	TargetType        string          `json:"target_type"`
	TargetSelection   string          `json:"target_selection"`
	AllocationMethod  string          `json:"allocation_method"`
	ValueType         string          `json:"value_type"`
	Value             decimal.Decimal `json:"value"`
	CustomerSelection string          `json:"customer_selection"`
	StartsAt          time.Time       `json:"starts_at"`
	EndsAt            *time.Time      `json:"ends_at,omitempty"`
	UsageLimit        *int            `json:"usage_limit,omitempty"`
	OncePerCustomer   bool            `json:"once_per_customer"`
}

type DiscountCode struct {
	ID          int64  `json:"id,omitempty"`
	PriceRuleID int64  `json:"price_rule_id,omitempty"`
	Code        string `json:"code"`
}

// CreatePriceRule creates the rule a discount code hangs off.
func (c *Client) CreatePriceRule(ctx context.Context, creds Credentials, rule PriceRule) (*PriceRule, error) {
	if strings.TrimSpace(rule.Title) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "price rule title is required")
	}
	var resp struct {
		PriceRule PriceRule `json:"price_rule"`
	}
	body := map[string]PriceRule{"price_rule": rule}
	if err := c.post(ctx, creds, "price_rule", "price_rules.json", body, &resp); err != nil {
		return nil, err
	}
	if resp.PriceRule.ID == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeUpstream, "price rule response missing id").
			WithDetails(map[string]any{"step": "price_rule"})
	}
	return &resp.PriceRule, nil
}

// CreateDiscountCode attaches code to an existing price rule.
func (c *Client) CreateDiscountCode(ctx context.Context, creds Credentials, priceRuleID int64, code string) (*DiscountCode, error) {
	if priceRuleID == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "price rule id is required")
	}
	if strings.TrimSpace(code) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "discount code is required")
	}
	var resp struct {
		DiscountCode DiscountCode `json:"discount_code"`
	}
	body := map[string]DiscountCode{"discount_code": {Code: code}}
	path := fmt.Sprintf("price_rules/%d/discount_codes.json", priceRuleID)
	if err := c.post(ctx, creds, "discount_code", path, body, &resp); err != nil {
		return nil, err
	}
	return &resp.DiscountCode, nil
}
