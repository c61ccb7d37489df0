package rules

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/popcatch-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/popcatch-backend/pkg/errors"
)

// Parse builds a RuleConfig from a stored document. Missing, null or
// mistyped leaves take their defaults. It fails only when the document is
// not a JSON object, an enum leaf holds an unknown value, or a schedule
// timestamp cannot be read.
func Parse(raw []byte) (*RuleConfig, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return Default(), nil
	}

	var top map[string]json.RawMessage
	if trimmed[0] != '{' {
		return nil, invalid("", "config must be a JSON object")
	}
	if err := json.Unmarshal(trimmed, &top); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "config is not valid JSON")
	}

	p := &parser{}
	cfg := Default()
	root := node(top)

	p.discount(root.child("discount"), &cfg.Discount)
	p.trigger(root.child("trigger"), &cfg.Trigger)
	p.frequency(root.child("frequency"), &cfg.Frequency)
	p.pageRules(root.child("page_rules"), &cfg.PageRules)
	p.locationRules(root.child("location_rules"), &cfg.LocationRules)
	p.schedule(root.child("schedule"), &cfg.Schedule)
	if p.err != nil {
		return nil, p.err
	}

	cfg.Emails = root.strings("emails")
	cfg.DiscountCodes = root.strings("discountCodes")
	if v, ok := root.str("lastEmail"); ok {
		cfg.LastEmail = &v
	}
	if v, ok := root.str("lastDiscountCode"); ok {
		cfg.LastDiscountCode = &v
	}
	if v, ok := root.str("updatedAt"); ok {
		if ts, err := parseTimestamp(v); err == nil {
			cfg.UpdatedAt = &ts
		}
	}

	cfg.source = top
	return cfg, nil
}

type parser struct {
	err error
}

// parseEnum returns the parsed enum leaf or current when it is absent. The
// first unknown value is kept on the parser as the validation failure.
func parseEnum[T ~string](p *parser, n node, key, field string, current T, parse func(string) (T, error)) T {
	v, ok := n.str(key)
	if !ok || strings.TrimSpace(v) == "" {
		return current
	}
	parsed, err := parse(v)
	if err != nil {
		if p.err == nil {
			p.err = invalid(field, err.Error())
		}
		return current
	}
	return parsed
}

func (p *parser) discount(n node, out *Discount) {
	out.NoDiscount.Enabled = n.child("no_discount").bool("enabled", false)

	dc := n.child("discount_code")
	out.DiscountCode.Enabled = dc.bool("enabled", false)
	out.DiscountCode.DiscountType = parseEnum(p, dc, "discountType", "discount.discount_code.discountType",
		out.DiscountCode.DiscountType, enums.ParseDiscountType)
	out.DiscountCode.DiscountValue = dc.decimal("discountValue", out.DiscountCode.DiscountValue)
	exp := dc.child("expiration")
	out.DiscountCode.Expiration.Enabled = exp.bool("enabled", false)
	out.DiscountCode.Expiration.Days = exp.int("days", out.DiscountCode.Expiration.Days)

	md := n.child("manual_discount")
	out.ManualDiscount.Enabled = md.bool("enabled", false)
	if code, ok := md.str("manualDiscount"); ok {
		out.ManualDiscount.ManualDiscount = strings.TrimSpace(code)
	}
}

func (p *parser) trigger(n node, out *Trigger) {
	out.Type = parseEnum(p, n, "type", "trigger.type", out.Type, enums.ParseTriggerType)
	out.TimerOption.DelaySeconds = n.child("timerOption").int("delaySeconds", out.TimerOption.DelaySeconds)
	out.ScrollOption.Percentage = n.child("scrollOption").int("percentage", out.ScrollOption.Percentage)
	out.ExitOption.Enabled = n.child("exitOption").bool("enabled", out.ExitOption.Enabled)
}

func (p *parser) frequency(n node, out *Frequency) {
	out.Type = parseEnum(p, n, "type", "frequency.type", out.Type, enums.ParseFrequencyType)
	limit := n.child("limit")
	out.Limit.Count = limit.int("count", out.Limit.Count)
	out.Limit.Per = parseEnum(p, limit, "per", "frequency.limit.per", out.Limit.Per, enums.ParseFrequencyPeriod)
}

func (p *parser) pageRules(n node, out *PageRules) {
	out.Type = parseEnum(p, n, "type", "page_rules.type", out.Type, enums.ParsePageRuleType)
	out.MatchOption = parseEnum(p, n, "matchOption", "page_rules.matchOption", out.MatchOption, enums.ParseMatchOption)
	for i, item := range n.objects("conditions") {
		value, _ := item.str("value")
		field := fmt.Sprintf("page_rules.conditions[%d].match", i)
		match := parseEnum(p, item, "match", field, enums.PageMatchEquals, enums.ParsePageMatch)
		out.Conditions = append(out.Conditions, PageCondition{Match: match, Value: value})
	}
}

func (p *parser) locationRules(n node, out *LocationRules) {
	out.Type = parseEnum(p, n, "type", "location_rules.type", out.Type, enums.ParseLocationRuleType)
	for _, code := range n.strings("countries") {
		if code = strings.ToUpper(strings.TrimSpace(code)); code != "" {
			out.Countries = append(out.Countries, code)
		}
	}
}

func (p *parser) schedule(n node, out *Schedule) {
	out.Type = parseEnum(p, n, "type", "schedule.type", out.Type, enums.ParseScheduleType)
	out.Start = p.timestamp(n, "start", "schedule.start")
	out.End = p.timestamp(n, "end", "schedule.end")
}

func (p *parser) timestamp(n node, key, field string) *time.Time {
	v, ok := n.str(key)
	if !ok || strings.TrimSpace(v) == "" {
		return nil
	}
	ts, err := parseTimestamp(v)
	if err != nil {
		if p.err == nil {
			p.err = invalid(field, fmt.Sprintf("invalid timestamp %q", v))
		}
		return nil
	}
	return &ts
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// parseTimestamp accepts RFC3339 plus the zone-less forms date inputs emit,
// which are read as UTC.
func parseTimestamp(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	var lastErr error
	for _, layout := range timestampLayouts {
		ts, err := time.Parse(layout, v)
		if err == nil {
			return ts.UTC(), nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

func invalid(field, msg string) error {
	err := pkgerrors.New(pkgerrors.CodeValidation, "invalid popup config")
	details := map[string]any{"reason": msg}
	if field != "" {
		details["field"] = field
	}
	return err.WithDetails(details)
}

// node is one decoded JSON object level. A nil node answers every lookup
// with "absent".
type node map[string]json.RawMessage

func (n node) get(key string) (json.RawMessage, bool) {
	raw, ok := n[key]
	if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, false
	}
	return raw, true
}

func (n node) child(key string) node {
	raw, ok := n.get(key)
	if !ok {
		return nil
	}
	var out map[string]json.RawMessage
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}

func (n node) str(key string) (string, bool) {
	raw, ok := n.get(key)
	if !ok {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

func (n node) bool(key string, def bool) bool {
	raw, ok := n.get(key)
	if !ok {
		return def
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b
	}
	if s, ok := n.str(key); ok {
		if parsed, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return parsed
		}
	}
	return def
}

// int reads a non-negative integer leaf. Values that are not numbers or fall
// outside [0, math.MaxInt32] keep def.
func (n node) int(key string, def int) int {
	raw, ok := n.get(key)
	if !ok {
		return def
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return boundedInt(f, def)
	}
	if s, ok := n.str(key); ok {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return boundedInt(parsed, def)
		}
	}
	return def
}

func boundedInt(f float64, def int) int {
	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 || f > math.MaxInt32 {
		return def
	}
	return int(math.Trunc(f))
}

func (n node) decimal(key string, def decimal.Decimal) decimal.Decimal {
	raw, ok := n.get(key)
	if !ok {
		return def
	}
	var num json.Number
	if err := json.Unmarshal(raw, &num); err == nil {
		if d, err := decimal.NewFromString(string(num)); err == nil {
			return d
		}
	}
	if s, ok := n.str(key); ok {
		if d, err := decimal.NewFromString(strings.TrimSpace(s)); err == nil {
			return d
		}
	}
	return def
}

// strings returns the string entries of an array, skipping anything else.
func (n node) strings(key string) []string {
	out := []string{}
	raw, ok := n.get(key)
	if !ok {
		return out
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return out
	}
	for _, item := range items {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			out = append(out, s)
		}
	}
	return out
}

func (n node) objects(key string) []node {
	raw, ok := n.get(key)
	if !ok {
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}
	out := make([]node, 0, len(items))
	for _, item := range items {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(item, &obj); err == nil {
			out = append(out, obj)
		}
	}
	return out
}
