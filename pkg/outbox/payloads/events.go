package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/popcatch-backend/pkg/enums"
)

// SubmissionRecordedEvent is emitted once a visitor email is persisted in the
// popup log.
type SubmissionRecordedEvent struct {
	PopupID         uuid.UUID `json:"popup_id"`
	StoreID         uuid.UUID `json:"store_id"`
	Email           string    `json:"email"`
	DiscountCode    *string   `json:"discount_code,omitempty"`
	ConfigVersion   int       `json:"config_version"`
	SubmissionCount int       `json:"submission_count"`
	RecordedAt      time.Time `json:"recorded_at"`
}

// PopupActivatedEvent signals the popup that now serves a store.
type PopupActivatedEvent struct {
	PopupID     uuid.UUID       `json:"popup_id"`
	StoreID     uuid.UUID       `json:"store_id"`
	Type        enums.PopupType `json:"type"`
	Deactivated []uuid.UUID     `json:"deactivated,omitempty"`
	ActivatedAt time.Time       `json:"activated_at"`
}
