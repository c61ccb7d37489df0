// Package rules is the typed view over a popup's rule document.
package rules

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/popcatch-backend/pkg/enums"
)

// MaxExpirationDays caps how far ahead an issued code may expire.
const MaxExpirationDays = 3650

// Defaults applied to absent or null leaves.
const (
	DefaultDiscountType     = enums.DiscountTypePercentage
	DefaultExpirationDays   = 30
	DefaultFrequencyCount   = 1
	DefaultFrequencyPeriod  = enums.PeriodDay
	DefaultTimerDelay       = 5
	DefaultScrollPercentage = 50
)

// DefaultDiscountValue is the price rule value used when none is configured.
var DefaultDiscountValue = decimal.NewFromInt(-10)

// RuleConfig is the parsed popup configuration. Rule sub-trees are read-only
// once parsed; the submission log is the only part callers mutate.
type RuleConfig struct {
	Discount      Discount      `json:"discount"`
	Trigger       Trigger       `json:"trigger"`
	Frequency     Frequency     `json:"frequency"`
	PageRules     PageRules     `json:"page_rules"`
	LocationRules LocationRules `json:"location_rules"`
	Schedule      Schedule      `json:"schedule"`

	Emails           []string   `json:"emails"`
	DiscountCodes    []string   `json:"discountCodes"`
	LastEmail        *string    `json:"lastEmail,omitempty"`
	LastDiscountCode *string    `json:"lastDiscountCode,omitempty"`
	UpdatedAt        *time.Time `json:"updatedAt,omitempty"`

	// source is the document this config was parsed from, kept so
	// Marshal can write back keys this package does not model.
	source map[string]json.RawMessage
}

type Toggle struct {
	Enabled bool `json:"enabled"`
}

type Discount struct {
	NoDiscount     Toggle         `json:"no_discount"`
	DiscountCode   DiscountCode   `json:"discount_code"`
	ManualDiscount ManualDiscount `json:"manual_discount"`
}

type DiscountCode struct {
	Enabled       bool               `json:"enabled"`
	DiscountType  enums.DiscountType `json:"discountType"`
	DiscountValue decimal.Decimal    `json:"discountValue"`
	Expiration    Expiration         `json:"expiration"`
}

type Expiration struct {
	Enabled bool `json:"enabled"`
	Days    int  `json:"days"`
}

type ManualDiscount struct {
	Enabled        bool   `json:"enabled"`
	ManualDiscount string `json:"manualDiscount"`
}

// Trigger is stored and validated here but only consumed by the storefront script.
type Trigger struct {
	Type         enums.TriggerType `json:"type"`
	TimerOption  TimerOption       `json:"timerOption"`
	ScrollOption ScrollOption      `json:"scrollOption"`
	ExitOption   Toggle            `json:"exitOption"`
}

type TimerOption struct {
	DelaySeconds int `json:"delaySeconds"`
}

type ScrollOption struct {
	Percentage int `json:"percentage"`
}

type Frequency struct {
	Type  enums.FrequencyType `json:"type"`
	Limit FrequencyLimit      `json:"limit"`
}

type FrequencyLimit struct {
	Count int                   `json:"count"`
	Per   enums.FrequencyPeriod `json:"per"`
}

type PageRules struct {
	Type        enums.PageRuleType `json:"type"`
	MatchOption enums.MatchOption  `json:"matchOption"`
	Conditions  []PageCondition    `json:"conditions"`
}

type PageCondition struct {
	Match enums.PageMatch `json:"match"`
	Value string          `json:"value"`
}

type LocationRules struct {
	Type      enums.LocationRuleType `json:"type"`
	Countries []string               `json:"countries"`
}

type Schedule struct {
	Type  enums.ScheduleType `json:"type"`
	Start *time.Time         `json:"start,omitempty"`
	End   *time.Time         `json:"end,omitempty"`
}

// Default returns the document every new popup starts from.
func Default() *RuleConfig {
	return &RuleConfig{
		Discount: Discount{
			NoDiscount: Toggle{Enabled: true},
			DiscountCode: DiscountCode{
				DiscountType:  DefaultDiscountType,
				DiscountValue: DefaultDiscountValue,
				Expiration:    Expiration{Days: DefaultExpirationDays},
			},
		},
		Trigger: Trigger{
			Type:         enums.TriggerTimer,
			TimerOption:  TimerOption{DelaySeconds: DefaultTimerDelay},
			ScrollOption: ScrollOption{Percentage: DefaultScrollPercentage},
		},
		Frequency: Frequency{
			Type:  enums.FrequencyAlways,
			Limit: FrequencyLimit{Count: DefaultFrequencyCount, Per: DefaultFrequencyPeriod},
		},
		PageRules: PageRules{
			Type:        enums.PageRuleAny,
			MatchOption: enums.MatchAny,
			Conditions:  []PageCondition{},
		},
		LocationRules: LocationRules{
			Type:      enums.LocationAny,
			Countries: []string{},
		},
		Schedule:      Schedule{Type: enums.ScheduleAllTime},
		Emails:        []string{},
		DiscountCodes: []string{},
	}
}
