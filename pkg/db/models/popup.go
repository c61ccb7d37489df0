package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/popcatch-backend/pkg/enums"
)

// Popup is a merchant-configured overlay. Config holds the rule document and
// Version is bumped on every config write for optimistic concurrency.
type Popup struct {
	ID        uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	StoreID   uuid.UUID       `gorm:"column:store_id;type:uuid;not null;index:idx_popups_store_id;uniqueIndex:ux_popups_one_active_per_store,where:is_active"`
	Type      enums.PopupType `gorm:"column:type;not null"`
	IsActive  bool            `gorm:"column:is_active;not null;default:false"`
	Config    json.RawMessage `gorm:"column:config;type:jsonb;not null"`
	Version   int             `gorm:"column:version;not null;default:1"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (Popup) TableName() string { return "popups" }

func (p *Popup) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.Version == 0 {
		p.Version = 1
	}
	return nil
}
