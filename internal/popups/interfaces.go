package popups

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/popcatch-backend/pkg/db/models"
	"github.com/angelmondragon/popcatch-backend/pkg/enums"
)

// PopupPatch carries the partial update applied by Update. Nil fields are
// left untouched.
type PopupPatch struct {
	Type     *enums.PopupType
	IsActive *bool
	Config   json.RawMessage
}

// Repository defines persistence operations for the popups table.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, popup *models.Popup) (*models.Popup, error)
	ListByStore(ctx context.Context, storeID uuid.UUID) ([]models.Popup, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Popup, error)
	FindActiveByStore(ctx context.Context, storeID uuid.UUID) (*models.Popup, error)
	Update(ctx context.Context, id uuid.UUID, patch PopupPatch) (*ActivationResult, error)
	DeactivateOthers(ctx context.Context, storeID, keepID uuid.UUID) ([]uuid.UUID, error)
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteByStore(ctx context.Context, storeID uuid.UUID) (int64, error)
	UpdateConfigIfVersion(ctx context.Context, id uuid.UUID, version int, config json.RawMessage) (bool, error)
}

// ActivationResult reports the stored row after Update and which siblings,
// if any, were switched off to keep a single active popup per store.
type ActivationResult struct {
	Popup       *models.Popup
	Deactivated []uuid.UUID
}
