package storefront

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/popcatch-backend/internal/eligibility"
	"github.com/angelmondragon/popcatch-backend/pkg/enums"
)

// ReasonNoActivePopup is reported when the store has nothing to show.
const ReasonNoActivePopup eligibility.Reason = "no_active_popup"

// VisitorQuery is what the storefront script knows about the visitor.
type VisitorQuery struct {
	Path      string
	Country   string
	Timezone  string
	VisitorID string
}

// PublicPopup is the popup as served to visitors, without the submission log.
type PublicPopup struct {
	ID     uuid.UUID       `json:"id"`
	Type   enums.PopupType `json:"type"`
	Config json.RawMessage `json:"config"`
}

// DecisionDTO answers the popup lookup.
type DecisionDTO struct {
	Show    bool                 `json:"show"`
	Reasons []eligibility.Reason `json:"reasons"`
	Popup   *PublicPopup         `json:"popup,omitempty"`
}

// ImpressionInput records one display of a popup.
type ImpressionInput struct {
	VisitorID string
	PopupID   uuid.UUID
	Timezone  string
}

// ImpressionDTO echoes the updated count for the window.
type ImpressionDTO struct {
	PopupID     uuid.UUID `json:"popup_id"`
	Impressions int       `json:"impressions"`
	WindowEnds  time.Time `json:"window_ends"`
}

// SubmissionDTO is the visitor-facing submission outcome.
type SubmissionDTO struct {
	Success      bool    `json:"success"`
	HasDiscount  bool    `json:"hasDiscount"`
	DiscountCode *string `json:"discountCode,omitempty"`
	Message      string  `json:"message"`
}

const (
	messageSubscribed = "Thanks for subscribing!"
	messageDiscount   = "Thanks for subscribing! Here is your discount code."
)
