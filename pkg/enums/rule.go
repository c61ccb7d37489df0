package enums

import (
	"fmt"
	"strings"
)

// The types below mirror the enum-valued leaves of a popup rule config.
// Values are stored exactly as the admin UI writes them.

type DiscountType string

const (
	DiscountTypePercentage   DiscountType = "percentage"
	DiscountTypeFixedAmount  DiscountType = "fixed-amount"
	DiscountTypeFreeShipping DiscountType = "free-shipping"
)

var validDiscountTypes = []DiscountType{
	DiscountTypePercentage,
	DiscountTypeFixedAmount,
	DiscountTypeFreeShipping,
}

func (d DiscountType) IsValid() bool {
	for _, candidate := range validDiscountTypes {
		if candidate == d {
			return true
		}
	}
	return false
}

func ParseDiscountType(value string) (DiscountType, error) {
	for _, candidate := range validDiscountTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid discount type %q", value)
}

type TriggerType string

const (
	TriggerTimer  TriggerType = "TIMER"
	TriggerScroll TriggerType = "SCROLL"
	TriggerExit   TriggerType = "EXIT"
)

var validTriggerTypes = []TriggerType{TriggerTimer, TriggerScroll, TriggerExit}

func (t TriggerType) IsValid() bool {
	for _, candidate := range validTriggerTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

func ParseTriggerType(value string) (TriggerType, error) {
	for _, candidate := range validTriggerTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid trigger type %q", value)
}

type FrequencyType string

const (
	FrequencyAlways FrequencyType = "ALWAYS"
	FrequencyLimit  FrequencyType = "LIMIT"
)

var validFrequencyTypes = []FrequencyType{FrequencyAlways, FrequencyLimit}

func (f FrequencyType) IsValid() bool {
	for _, candidate := range validFrequencyTypes {
		if candidate == f {
			return true
		}
	}
	return false
}

func ParseFrequencyType(value string) (FrequencyType, error) {
	for _, candidate := range validFrequencyTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid frequency type %q", value)
}

// FrequencyPeriod is the calendar unit a frequency cap resets on.
type FrequencyPeriod string

const (
	PeriodDay   FrequencyPeriod = "Day"
	PeriodWeek  FrequencyPeriod = "Week"
	PeriodMonth FrequencyPeriod = "Month"
)

var validFrequencyPeriods = []FrequencyPeriod{PeriodDay, PeriodWeek, PeriodMonth}

func (p FrequencyPeriod) IsValid() bool {
	for _, candidate := range validFrequencyPeriods {
		if candidate == p {
			return true
		}
	}
	return false
}

func ParseFrequencyPeriod(value string) (FrequencyPeriod, error) {
	for _, candidate := range validFrequencyPeriods {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid frequency period %q", value)
}

type PageRuleType string

const (
	PageRuleAny      PageRuleType = "ANY"
	PageRuleSpecific PageRuleType = "SPECIFIC"
)

var validPageRuleTypes = []PageRuleType{PageRuleAny, PageRuleSpecific}

func (p PageRuleType) IsValid() bool {
	for _, candidate := range validPageRuleTypes {
		if candidate == p {
			return true
		}
	}
	return false
}

func ParsePageRuleType(value string) (PageRuleType, error) {
	for _, candidate := range validPageRuleTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid page rule type %q", value)
}

// MatchOption combines page conditions. The UI has written both "any" and
// "ANY" over time, so parsing folds case.
type MatchOption string

const (
	MatchAny MatchOption = "any"
	MatchAll MatchOption = "all"
)

func (m MatchOption) IsValid() bool {
	return m == MatchAny || m == MatchAll
}

func ParseMatchOption(value string) (MatchOption, error) {
	switch MatchOption(strings.ToLower(strings.TrimSpace(value))) {
	case MatchAny:
		return MatchAny, nil
	case MatchAll:
		return MatchAll, nil
	}
	return "", fmt.Errorf("invalid match option %q", value)
}

type PageMatch string

const (
	PageMatchEquals     PageMatch = "Equals"
	PageMatchContains   PageMatch = "Contains"
	PageMatchStartsWith PageMatch = "StartsWith"
	PageMatchEndsWith   PageMatch = "EndsWith"
)

var validPageMatches = []PageMatch{
	PageMatchEquals,
	PageMatchContains,
	PageMatchStartsWith,
	PageMatchEndsWith,
}

func (p PageMatch) IsValid() bool {
	for _, candidate := range validPageMatches {
		if candidate == p {
			return true
		}
	}
	return false
}

func ParsePageMatch(value string) (PageMatch, error) {
	for _, candidate := range validPageMatches {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid page match %q", value)
}

type LocationRuleType string

const (
	LocationAny     LocationRuleType = "ANY"
	LocationInclude LocationRuleType = "INCLUDE"
	LocationExclude LocationRuleType = "EXCLUDE"
)

var validLocationRuleTypes = []LocationRuleType{LocationAny, LocationInclude, LocationExclude}

func (l LocationRuleType) IsValid() bool {
	for _, candidate := range validLocationRuleTypes {
		if candidate == l {
			return true
		}
	}
	return false
}

func ParseLocationRuleType(value string) (LocationRuleType, error) {
	for _, candidate := range validLocationRuleTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid location rule type %q", value)
}

type ScheduleType string

const (
	ScheduleAllTime    ScheduleType = "ALL_TIME"
	ScheduleTimePeriod ScheduleType = "TIME_PERIOD"
)

var validScheduleTypes = []ScheduleType{ScheduleAllTime, ScheduleTimePeriod}

func (s ScheduleType) IsValid() bool {
	for _, candidate := range validScheduleTypes {
		if candidate == s {
			return true
		}
	}
	return false
}

func ParseScheduleType(value string) (ScheduleType, error) {
	for _, candidate := range validScheduleTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid schedule type %q", value)
}
