package stores

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/popcatch-backend/pkg/db/models"
)

// StoreDTO exposes store data in API responses. The access token never leaves
// the process.
type StoreDTO struct {
	ID          uuid.UUID `json:"id"`
	Shop        string    `json:"shop"`
	AccessToken *string   `json:"-"`
	HasToken    bool      `json:"has_access_token"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// FromModel maps a store row into its DTO.
func FromModel(m *models.Store) *StoreDTO {
	if m == nil {
		return nil
	}
	return &StoreDTO{
		ID:          m.ID,
		Shop:        m.Shop,
		AccessToken: m.AccessToken,
		HasToken:    m.AccessToken != nil && *m.AccessToken != "",
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}
