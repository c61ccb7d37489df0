package popups

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/popcatch-backend/pkg/db/models"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds a popups repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, popup *models.Popup) (*models.Popup, error) {
	if popup == nil {
		return nil, errors.New("popup is required")
	}
	if err := r.db.WithContext(ctx).Create(popup).Error; err != nil {
		return nil, err
	}
	return popup, nil
}

func (r *repository) ListByStore(ctx context.Context, storeID uuid.UUID) ([]models.Popup, error) {
	var rows []models.Popup
	err := r.db.WithContext(ctx).
		Where("store_id = ?", storeID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Popup, error) {
	var popup models.Popup
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&popup).Error; err != nil {
		return nil, err
	}
	return &popup, nil
}

func (r *repository) FindActiveByStore(ctx context.Context, storeID uuid.UUID) (*models.Popup, error) {
	var popup models.Popup
	err := r.db.WithContext(ctx).
		Where("store_id = ? AND is_active = ?", storeID, true).
		First(&popup).Error
	if err != nil {
		return nil, err
	}
	return &popup, nil
}

// Update applies patch in one transaction. Activating a popup first switches
// off every other active popup of the same store so the partial unique index
// never sees two active rows. A config write bumps version.
func (r *repository) Update(ctx context.Context, id uuid.UUID, patch PopupPatch) (*ActivationResult, error) {
	result := &ActivationResult{}
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		scoped := &repository{db: tx}
		current, err := scoped.FindByID(ctx, id)
		if err != nil {
			return err
		}

		if patch.IsActive != nil && *patch.IsActive {
			deactivated, err := scoped.DeactivateOthers(ctx, current.StoreID, current.ID)
			if err != nil {
				return err
			}
			result.Deactivated = deactivated
		}

		updates := map[string]any{}
		if patch.Type != nil {
			updates["type"] = *patch.Type
		}
		if patch.IsActive != nil {
			updates["is_active"] = *patch.IsActive
		}
		if patch.Config != nil {
			updates["config"] = patch.Config
			updates["version"] = gorm.Expr("version + 1")
		}
		if len(updates) > 0 {
			updates["updated_at"] = time.Now().UTC()
			if err := tx.Model(&models.Popup{}).Where("id = ?", id).Updates(updates).Error; err != nil {
				return err
			}
		}

		result.Popup, err = scoped.FindByID(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (r *repository) DeactivateOthers(ctx context.Context, storeID, keepID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.Popup{}).
		Where("store_id = ? AND is_active = ? AND id <> ?", storeID, true, keepID).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	err = r.db.WithContext(ctx).
		Model(&models.Popup{}).
		Where("id IN ?", ids).
		Updates(map[string]any{
			"is_active":  false,
			"updated_at": time.Now().UTC(),
		}).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *repository) Delete(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Popup{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *repository) DeleteByStore(ctx context.Context, storeID uuid.UUID) (int64, error) {
	res := r.db.WithContext(ctx).Where("store_id = ?", storeID).Delete(&models.Popup{})
	return res.RowsAffected, res.Error
}

// UpdateConfigIfVersion writes config only while the stored version still
// equals version. It reports false when another writer got there first.
func (r *repository) UpdateConfigIfVersion(ctx context.Context, id uuid.UUID, version int, config json.RawMessage) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Popup{}).
		Where("id = ? AND version = ?", id, version).
		Updates(map[string]any{
			"config":     config,
			"version":    gorm.Expr("version + 1"),
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
