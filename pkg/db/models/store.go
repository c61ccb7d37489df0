package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Store is one installed Shopify shop.
type Store struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	Shop        string    `gorm:"column:shop;not null;uniqueIndex:ux_stores_shop"`
	AccessToken *string   `gorm:"column:access_token"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Store) TableName() string { return "stores" }

// BeforeCreate assigns the primary key client side so sqlite and postgres behave alike.
func (s *Store) BeforeCreate(*gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}
