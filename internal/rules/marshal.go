package rules

import (
	"bytes"
	"encoding/json"
	"fmt"
)

var logKeys = map[string]struct{}{
	"emails":           {},
	"discountCodes":    {},
	"lastEmail":        {},
	"lastDiscountCode": {},
	"updatedAt":        {},
}

// Marshal encodes the config for storage. Values already present in the
// parsed document win over defaults, keys this package does not know are
// written back untouched, and the submission log always comes from c.
func (c *RuleConfig) Marshal() ([]byte, error) {
	typed, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encoding rule config: %w", err)
	}
	if c.source == nil {
		return typed, nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(typed, &fields); err != nil {
		return nil, fmt.Errorf("decoding rule config: %w", err)
	}

	out := make(map[string]json.RawMessage, len(c.source)+len(fields))
	for key, value := range c.source {
		if _, isLog := logKeys[key]; isLog {
			continue
		}
		out[key] = value
	}
	for key, value := range fields {
		if _, isLog := logKeys[key]; isLog {
			out[key] = value
			continue
		}
		existing, ok := out[key]
		if !ok || isNull(existing) {
			out[key] = value
			continue
		}
		out[key] = fillMissing(existing, value)
	}
	return json.Marshal(out)
}

// fillMissing copies keys from defaults into doc where doc lacks them,
// recursing through nested objects. Non-object values in doc are kept.
func fillMissing(doc, defaults json.RawMessage) json.RawMessage {
	var docObj, defObj map[string]json.RawMessage
	if json.Unmarshal(doc, &docObj) != nil || json.Unmarshal(defaults, &defObj) != nil {
		return doc
	}
	if docObj == nil || defObj == nil {
		return doc
	}
	for key, def := range defObj {
		existing, ok := docObj[key]
		if !ok || isNull(existing) {
			docObj[key] = def
			continue
		}
		docObj[key] = fillMissing(existing, def)
	}
	merged, err := json.Marshal(docObj)
	if err != nil {
		return doc
	}
	return merged
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// MarshalPublic encodes the document served to storefront visitors. It is
// Marshal without the submission log.
func (c *RuleConfig) MarshalPublic() ([]byte, error) {
	raw, err := c.Marshal()
	if err != nil {
		return nil, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("decoding rule config: %w", err)
	}
	for key := range logKeys {
		delete(fields, key)
	}
	return json.Marshal(fields)
}
