package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Gift pairs the paying sender purchase with the zero-amount receiver purchase.
type Gift struct {
	ID                 uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	SenderPurchaseID   uuid.UUID  `gorm:"column:sender_purchase_id;type:uuid;not null;uniqueIndex"`
	ReceiverPurchaseID *uuid.UUID `gorm:"column:receiver_purchase_id;type:uuid"`
	GifteeEmail        string     `gorm:"column:giftee_email;not null"`
	Note               *string    `gorm:"column:note"`
	CreatedAt          time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (g *Gift) BeforeCreate(*gorm.DB) error {
	ensureID(&g.ID)
	return nil
}
