// Package eligibility decides whether a popup may be shown to a visitor.
// Everything here is pure: no I/O, no clocks, no mutation of inputs.
package eligibility

import (
	"strings"
	"time"

	"github.com/angelmondragon/popcatch-backend/internal/rules"
	"github.com/angelmondragon/popcatch-backend/pkg/enums"
)

type Reason string

const (
	ReasonEligible            Reason = "eligible"
	ReasonInvalidConfig       Reason = "invalid_config"
	ReasonScheduleNotStarted  Reason = "schedule_not_started"
	ReasonScheduleEnded       Reason = "schedule_ended"
	ReasonLocationNotIncluded Reason = "location_not_included"
	ReasonLocationExcluded    Reason = "location_excluded"
	ReasonLocationListEmpty   Reason = "location_list_empty"
	ReasonPageNotMatched      Reason = "page_not_matched"
	ReasonFrequencyCapped     Reason = "frequency_capped"
)

// EmptyConditionsPolicy decides a SPECIFIC page rule with no conditions.
type EmptyConditionsPolicy string

const (
	EmptyConditionsPass EmptyConditionsPolicy = "pass"
	EmptyConditionsFail EmptyConditionsPolicy = "fail"
)

// Policy carries the product decisions the rule document leaves open.
type Policy struct {
	EmptyPageConditions EmptyConditionsPolicy
}

// DefaultPolicy keeps the historical vacuous pass for empty conditions.
var DefaultPolicy = Policy{EmptyPageConditions: EmptyConditionsPass}

// ParseEmptyConditionsPolicy maps a config value onto the policy, falling
// back to pass.
func ParseEmptyConditionsPolicy(value string) EmptyConditionsPolicy {
	if strings.EqualFold(strings.TrimSpace(value), string(EmptyConditionsFail)) {
		return EmptyConditionsFail
	}
	return EmptyConditionsPass
}

// Visitor is the request context a decision is made for. PriorImpressions
// counts impressions inside the current frequency window.
type Visitor struct {
	CountryCode      string
	Path             string
	Now              time.Time
	Location         *time.Location
	PriorImpressions int
}

type Decision struct {
	Show    bool     `json:"show"`
	Reasons []Reason `json:"reasons"`
}

func show() Decision { return Decision{Show: true, Reasons: []Reason{ReasonEligible}} }

func hide(r Reason) Decision { return Decision{Show: false, Reasons: []Reason{r}} }

// Evaluate runs schedule, location, page and frequency checks in that order
// and stops at the first failure. A nil config never shows.
func Evaluate(cfg *rules.RuleConfig, visitor Visitor, policy Policy) Decision {
	if cfg == nil {
		return hide(ReasonInvalidConfig)
	}
	checks := []func() (bool, Reason){
		func() (bool, Reason) { return checkSchedule(cfg.Schedule, visitor.Now) },
		func() (bool, Reason) { return checkLocation(cfg.LocationRules, visitor.CountryCode) },
		func() (bool, Reason) { return checkPage(cfg.PageRules, visitor.Path, policy) },
		func() (bool, Reason) { return checkFrequency(cfg.Frequency, visitor.PriorImpressions) },
	}
	for _, check := range checks {
		if ok, reason := check(); !ok {
			return hide(reason)
		}
	}
	return show()
}

func checkSchedule(s rules.Schedule, now time.Time) (bool, Reason) {
	if s.Type != enums.ScheduleTimePeriod {
		return true, ""
	}
	if s.Start != nil && now.Before(*s.Start) {
		return false, ReasonScheduleNotStarted
	}
	if s.End != nil && now.After(*s.End) {
		return false, ReasonScheduleEnded
	}
	return true, ""
}

func checkLocation(l rules.LocationRules, country string) (bool, Reason) {
	country = strings.TrimSpace(country)
	switch l.Type {
	case enums.LocationInclude:
		if len(l.Countries) == 0 {
			return false, ReasonLocationListEmpty
		}
		if !containsFold(l.Countries, country) {
			return false, ReasonLocationNotIncluded
		}
	case enums.LocationExclude:
		if containsFold(l.Countries, country) {
			return false, ReasonLocationExcluded
		}
	}
	return true, ""
}

func containsFold(list []string, value string) bool {
	if value == "" {
		return false
	}
	for _, candidate := range list {
		if strings.EqualFold(strings.TrimSpace(candidate), value) {
			return true
		}
	}
	return false
}

func checkPage(p rules.PageRules, path string, policy Policy) (bool, Reason) {
	if p.Type != enums.PageRuleSpecific {
		return true, ""
	}
	if len(p.Conditions) == 0 {
		if policy.EmptyPageConditions == EmptyConditionsFail {
			return false, ReasonPageNotMatched
		}
		return true, ""
	}

	all := p.MatchOption == enums.MatchAll
	for _, cond := range p.Conditions {
		matched := matchPath(cond, path)
		if all && !matched {
			return false, ReasonPageNotMatched
		}
		if !all && matched {
			return true, ""
		}
	}
	if all {
		return true, ""
	}
	return false, ReasonPageNotMatched
}

func matchPath(cond rules.PageCondition, path string) bool {
	switch cond.Match {
	case enums.PageMatchEquals:
		return path == cond.Value
	case enums.PageMatchContains:
		return strings.Contains(path, cond.Value)
	case enums.PageMatchStartsWith:
		return strings.HasPrefix(path, cond.Value)
	case enums.PageMatchEndsWith:
		return strings.HasSuffix(path, cond.Value)
	}
	return false
}

func checkFrequency(f rules.Frequency, prior int) (bool, Reason) {
	if f.Type != enums.FrequencyLimit {
		return true, ""
	}
	if prior >= f.Limit.Count {
		return false, ReasonFrequencyCapped
	}
	return true, ""
}
