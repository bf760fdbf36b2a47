package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AffiliateCredit records commission owed on one successful purchase.
type AffiliateCredit struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	PurchaseID  uuid.UUID `gorm:"column:purchase_id;type:uuid;not null;uniqueIndex"`
	AffiliateID uuid.UUID `gorm:"column:affiliate_id;type:uuid;not null;index"`
	SellerID    uuid.UUID `gorm:"column:seller_id;type:uuid;not null"`
	BasisPoints int64     `gorm:"column:basis_points;not null"`
	AmountCents int64     `gorm:"column:amount_cents;not null"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (a *AffiliateCredit) BeforeCreate(*gorm.DB) error {
	ensureID(&a.ID)
	return nil
}
