// Package discounts turns a popup's discount strategy into a code for one
// submission.
package discounts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/popcatch-backend/internal/rules"
	pkgerrors "github.com/angelmondragon/popcatch-backend/pkg/errors"
	"github.com/angelmondragon/popcatch-backend/pkg/logger"
	"github.com/angelmondragon/popcatch-backend/pkg/metrics"
	"github.com/angelmondragon/popcatch-backend/pkg/shopify"
)

// PriceRuleAPI is the slice of the Admin API the issuer drives.
type PriceRuleAPI interface {
	CreatePriceRule(ctx context.Context, creds shopify.Credentials, rule shopify.PriceRule) (*shopify.PriceRule, error)
	CreateDiscountCode(ctx context.Context, creds shopify.Credentials, priceRuleID int64, code string) (*shopify.DiscountCode, error)
}

// Submission is the shop context a code is issued for.
type Submission struct {
	Shop        string
	AccessToken string
	Email       string
}

// Result is the outcome reported back to the visitor.
type Result struct {
	DiscountCreated bool
	DiscountCode    *string
}

// Issuer decides and executes discount issuance.
type Issuer interface {
	Issue(ctx context.Context, cfg *rules.RuleConfig, sub Submission) (*Result, error)
}

// Options tune issuance.
type Options struct {
	UsageLimit int
	Generate   CodeGenerator
	Now        func() time.Time
}

type issuer struct {
	api      PriceRuleAPI
	opts     Options
	logg     *logger.Logger
	recorder *metrics.PopupMetrics
}

// NewIssuer builds an issuer over the Admin API.
func NewIssuer(api PriceRuleAPI, opts Options, logg *logger.Logger, recorder *metrics.PopupMetrics) (Issuer, error) {
	if api == nil {
		return nil, fmt.Errorf("price rule api required")
	}
	if opts.Generate == nil {
		return nil, fmt.Errorf("code generator required")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &issuer{api: api, opts: opts, logg: logg, recorder: recorder}, nil
}

func (i *issuer) Issue(ctx context.Context, cfg *rules.RuleConfig, sub Submission) (*Result, error) {
	if cfg == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "popup config is invalid")
	}

	started := time.Now()
	strategy := cfg.Strategy()
	result, err := i.issue(ctx, strategy, sub)

	outcome := "skipped"
	switch {
	case err != nil:
		outcome = "failed"
	case result.DiscountCreated:
		outcome = "created"
	}
	i.recorder.ObserveIssuance(strategy.Name(), outcome, time.Since(started))
	return result, err
}

func (i *issuer) issue(ctx context.Context, strategy rules.DiscountStrategy, sub Submission) (*Result, error) {
	switch s := strategy.(type) {
	case rules.AutoCode:
		code, err := i.mint(ctx, s, sub)
		if err != nil {
			return nil, err
		}
		return &Result{DiscountCreated: true, DiscountCode: &code}, nil
	case rules.ManualCode:
		if s.Code == "" {
			return &Result{}, nil
		}
		code := s.Code
		return &Result{DiscountCreated: true, DiscountCode: &code}, nil
	default:
		return &Result{}, nil
	}
}

// mint creates the price rule and then attaches the code to it. The second
// call needs the rule id, so the steps never overlap.
func (i *issuer) mint(ctx context.Context, s rules.AutoCode, sub Submission) (string, error) {
	code, err := i.opts.Generate()
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate discount code")
	}

	creds := shopify.Credentials{Shop: sub.Shop, AccessToken: sub.AccessToken}
	rule, err := i.api.CreatePriceRule(ctx, creds, priceRuleFor(s, code, i.opts.UsageLimit, i.opts.Now()))
	if err != nil {
		i.logFailure(ctx, "price rule creation failed", err)
		return "", asUpstream(err, "create price rule")
	}
	if _, err := i.api.CreateDiscountCode(ctx, creds, rule.ID, code); err != nil {
		i.logFailure(ctx, "discount code attachment failed", err)
		return "", asUpstream(err, "attach discount code")
	}

	if i.logg != nil {
		logCtx := i.logg.WithFields(ctx, map[string]any{"price_rule_id": rule.ID, "discount_code": code})
		i.logg.Info(logCtx, "discount code issued")
	}
	return code, nil
}

func priceRuleFor(s rules.AutoCode, code string, usageLimit int, now time.Time) shopify.PriceRule {
	rule := shopify.PriceRule{
		Title:             code,
		TargetType:        shopify.TargetLineItem,
		TargetSelection:   shopify.SelectionAll,
		AllocationMethod:  shopify.AllocationAcross,
		ValueType:         string(s.ValueType),
		Value:             s.Value,
		CustomerSelection: shopify.SelectionAll,
		StartsAt:          now.UTC(),
		OncePerCustomer:   true,
	}
	if s.FreeShipping {
		rule.TargetType = shopify.TargetShippingLine
		rule.AllocationMethod = shopify.AllocationEach
		rule.ValueType = string(rules.ValueTypePercentage)
	}
	if usageLimit > 0 {
		limit := usageLimit
		rule.UsageLimit = &limit
	}
	if s.ExpiresAfter != nil {
		ends := now.UTC().Add(*s.ExpiresAfter)
		rule.EndsAt = &ends
	}
	return rule
}

// asUpstream classifies every issuance failure as an upstream error. Typed
// upstream errors keep their status details; other typed client errors (no
// token, bad shop domain) are merchant-side setup problems and are rewrapped
// so a visitor never sees them as auth or input failures.
func asUpstream(err error, step string) error {
	if typed := pkgerrors.As(err); typed != nil {
		if typed.Code() == pkgerrors.CodeUpstream {
			return typed
		}
		return pkgerrors.Wrap(pkgerrors.CodeUpstream, err, step+" failed").
			WithDetails(map[string]any{"step": step, "reason": string(typed.Code())})
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return pkgerrors.Wrap(pkgerrors.CodeUpstream, err, step+" timed out").
			WithDetails(map[string]any{"step": step, "error": err.Error()})
	}
	return pkgerrors.Wrap(pkgerrors.CodeUpstream, err, step+" failed").
		WithDetails(map[string]any{"step": step, "error": err.Error()})
}

func (i *issuer) logFailure(ctx context.Context, msg string, err error) {
	if i.logg == nil {
		return
	}
	i.logg.Error(i.logg.WithField(ctx, "error_dump", pkgerrors.Dump(err)), msg, err)
}
