package enums

import "fmt"

// OutboxAggregateType maps to the outbox_events.aggregate_type column.
type OutboxAggregateType string

const (
	AggregatePopup OutboxAggregateType = "popup"
	AggregateStore OutboxAggregateType = "store"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregatePopup,
	AggregateStore,
}

// IsValid reports whether the value matches the canonical aggregate type.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the outbox_events.event_type column.
type OutboxEventType string

const (
	EventPopupSubmissionRecorded OutboxEventType = "popup_submission_recorded"
	EventPopupActivated          OutboxEventType = "popup_activated"
)

var validOutboxEventTypes = []OutboxEventType{
	EventPopupSubmissionRecorded,
	EventPopupActivated,
}

// IsValid reports whether the value matches the canonical event type.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
