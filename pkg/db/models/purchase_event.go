package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-checkout/pkg/enums"
)

// PurchaseEvent is the analytics row written once per terminal purchase.
type PurchaseEvent struct {
	ID          uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	PurchaseID  uuid.UUID               `gorm:"column:purchase_id;type:uuid;not null;uniqueIndex:ux_purchase_events_purchase_type"`
	EventType   enums.PurchaseEventType `gorm:"column:event_type;not null;uniqueIndex:ux_purchase_events_purchase_type"`
	OrderID     uuid.UUID               `gorm:"column:order_id;type:uuid;not null"`
	ProductID   uuid.UUID               `gorm:"column:product_id;type:uuid;not null"`
	SellerID    uuid.UUID               `gorm:"column:seller_id;type:uuid;not null"`
	State       enums.PurchaseState     `gorm:"column:state;not null"`
	PriceCents  int64                   `gorm:"column:price_cents;not null"`
	USDCents    int64                   `gorm:"column:usd_cents;not null"`
	AffiliateID *uuid.UUID              `gorm:"column:affiliate_id;type:uuid"`
	BrowserGUID string                  `gorm:"column:browser_guid"`
	ErrorCode   *string                 `gorm:"column:error_code"`
	CreatedAt   time.Time               `gorm:"column:created_at;autoCreateTime"`
}

func (e *PurchaseEvent) BeforeCreate(*gorm.DB) error {
	ensureID(&e.ID)
	return nil
}
