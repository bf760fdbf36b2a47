package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-checkout/pkg/enums"
)

type Preorder struct {
	ID         uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	ProductID  uuid.UUID           `gorm:"column:product_id;type:uuid;not null"`
	PurchaseID uuid.UUID           `gorm:"column:purchase_id;type:uuid;not null;uniqueIndex"`
	State      enums.PreorderState `gorm:"column:state;not null"`
	ReleaseAt  *time.Time          `gorm:"column:release_at"`
	CreatedAt  time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *Preorder) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}
