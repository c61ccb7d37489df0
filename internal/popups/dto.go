package popups

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/popcatch-backend/pkg/db/models"
	"github.com/angelmondragon/popcatch-backend/pkg/enums"
)

// PopupDTO is the admin-facing view of a popup.
type PopupDTO struct {
	ID        uuid.UUID       `json:"id"`
	StoreID   uuid.UUID       `json:"store_id"`
	Type      enums.PopupType `json:"type"`
	IsActive  bool            `json:"is_active"`
	Config    json.RawMessage `json:"config"`
	Version   int             `json:"version"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// CreateInput holds creation-time data for a popup. An empty Type means
// OPT_IN and an empty Config means the full default rule document.
type CreateInput struct {
	Type     enums.PopupType
	IsActive bool
	Config   json.RawMessage
}

func fromModel(m *models.Popup) *PopupDTO {
	if m == nil {
		return nil
	}
	return &PopupDTO{
		ID:        m.ID,
		StoreID:   m.StoreID,
		Type:      m.Type,
		IsActive:  m.IsActive,
		Config:    m.Config,
		Version:   m.Version,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func fromModels(rows []models.Popup) []PopupDTO {
	out := make([]PopupDTO, 0, len(rows))
	for i := range rows {
		out = append(out, *fromModel(&rows[i]))
	}
	return out
}
