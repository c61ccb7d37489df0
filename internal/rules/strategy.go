package rules

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/popcatch-backend/pkg/enums"
)

// DiscountStrategy is the single discount behaviour a config resolves to.
// It is one of NoDiscount, AutoCode or ManualCode.
type DiscountStrategy interface {
	strategy()
	Name() string
}

type NoDiscount struct{}

// AutoCode mints a fresh code through the price rule API per submission.
type AutoCode struct {
	ValueType    ValueType
	FreeShipping bool
	Value        decimal.Decimal // always negative
	ExpiresAfter *time.Duration
}

// ManualCode echoes a merchant-supplied static code.
type ManualCode struct {
	Code string
}

type ValueType string

const (
	ValueTypePercentage  ValueType = "percentage"
	ValueTypeFixedAmount ValueType = "fixed_amount"
)

func (NoDiscount) strategy() {}
func (AutoCode) strategy()   {}
func (ManualCode) strategy() {}

func (NoDiscount) Name() string { return "none" }
func (AutoCode) Name() string   { return "auto_code" }
func (ManualCode) Name() string { return "manual" }

// Strategy resolves the three legacy enabled flags. no_discount wins over
// discount_code, which wins over manual_discount.
func (c *RuleConfig) Strategy() DiscountStrategy {
	if c == nil {
		return NoDiscount{}
	}
	d := c.Discount
	switch {
	case d.NoDiscount.Enabled:
		return NoDiscount{}
	case d.DiscountCode.Enabled:
		return autoCodeFrom(d.DiscountCode)
	case d.ManualDiscount.Enabled:
		return ManualCode{Code: strings.TrimSpace(d.ManualDiscount.ManualDiscount)}
	default:
		return NoDiscount{}
	}
}

var hundred = decimal.NewFromInt(100)

func autoCodeFrom(dc DiscountCode) AutoCode {
	out := AutoCode{
		ValueType: ValueTypePercentage,
		Value:     dc.DiscountValue.Abs().Neg(),
	}
	switch dc.DiscountType {
	case enums.DiscountTypeFixedAmount:
		out.ValueType = ValueTypeFixedAmount
	case enums.DiscountTypeFreeShipping:
		out.FreeShipping = true
		out.Value = hundred.Neg()
	}
	if dc.Expiration.Enabled && dc.Expiration.Days > 0 {
		days := min(dc.Expiration.Days, MaxExpirationDays)
		ttl := time.Duration(days) * 24 * time.Hour
		out.ExpiresAfter = &ttl
	}
	return out
}
