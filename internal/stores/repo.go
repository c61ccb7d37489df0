package stores

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/popcatch-backend/pkg/db/models"
)

// Repository handles store persistence.
type Repository struct {
	db *gorm.DB
}

// NewRepository binds a GORM DB to store operations.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Upsert inserts the shop or refreshes its access token and updated_at. A nil
// token leaves the stored one untouched.
func (r *Repository) Upsert(ctx context.Context, shop string, accessToken *string) (*models.Store, error) {
	store := &models.Store{Shop: shop, AccessToken: accessToken}
	assignments := map[string]any{"updated_at": time.Now().UTC()}
	if accessToken != nil {
		assignments["access_token"] = *accessToken
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "shop"}},
			DoUpdates: clause.Assignments(assignments),
		}).
		Create(store).Error
	if err != nil {
		return nil, err
	}
	return r.FindByShop(ctx, shop)
}

// FindByShop loads a store by its myshopify domain.
func (r *Repository) FindByShop(ctx context.Context, shop string) (*models.Store, error) {
	var store models.Store
	if err := r.db.WithContext(ctx).Where("shop = ?", shop).First(&store).Error; err != nil {
		return nil, err
	}
	return &store, nil
}

// FindByID loads a store by its UUID.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Store, error) {
	var store models.Store
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&store).Error; err != nil {
		return nil, err
	}
	return &store, nil
}

// WithTx returns a repository bound to tx.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// ClearAccessToken drops the offline token of an uninstalled shop.
func (r *Repository) ClearAccessToken(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.Store{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"access_token": nil,
			"updated_at":   time.Now().UTC(),
		}).Error
}

// Delete removes the store row. Popups must be removed first.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Store{}).Error
}
