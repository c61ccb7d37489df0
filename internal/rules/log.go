package rules

import (
	"strings"
	"time"
)

// AppendSubmission adds one submission to the embedded log. code may be
// empty when no discount was issued.
func (c *RuleConfig) AppendSubmission(email, code string, at time.Time) {
	email = strings.TrimSpace(email)
	c.Emails = append(c.Emails, email)
	c.LastEmail = &email
	if code != "" {
		c.DiscountCodes = append(c.DiscountCodes, code)
		c.LastDiscountCode = &code
	}
	stamp := at.UTC()
	c.UpdatedAt = &stamp
}

// ReplaceLog overwrites the submission log with the one held by from, or
// clears it when from is nil. Rule sub-trees are left alone.
func (c *RuleConfig) ReplaceLog(from *RuleConfig) {
	if from == nil {
		c.Emails = []string{}
		c.DiscountCodes = []string{}
		c.LastEmail = nil
		c.LastDiscountCode = nil
		c.UpdatedAt = nil
		return
	}
	c.Emails = append([]string{}, from.Emails...)
	c.DiscountCodes = append([]string{}, from.DiscountCodes...)
	c.LastEmail = from.LastEmail
	c.LastDiscountCode = from.LastDiscountCode
	c.UpdatedAt = from.UpdatedAt
}

// RedactEmail drops every logged occurrence of email, compared case
// insensitively, and reports how many were removed. Issued codes stay
// because they carry no customer data.
func (c *RuleConfig) RedactEmail(email string) int {
	target := strings.TrimSpace(email)
	if target == "" {
		return 0
	}
	kept := make([]string, 0, len(c.Emails))
	for _, e := range c.Emails {
		if strings.EqualFold(strings.TrimSpace(e), target) {
			continue
		}
		kept = append(kept, e)
	}
	removed := len(c.Emails) - len(kept)
	c.Emails = kept
	if c.LastEmail != nil && strings.EqualFold(strings.TrimSpace(*c.LastEmail), target) {
		c.LastEmail = nil
		if n := len(kept); n > 0 {
			last := kept[n-1]
			c.LastEmail = &last
		}
		if removed == 0 {
			removed = 1
		}
	}
	return removed
}
