package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-checkout/pkg/enums"
)

// SavedPaymentMethod is a processor-vaulted card or agreement owned by a user.
type SavedPaymentMethod struct {
	ID             uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	UserID         uuid.UUID       `gorm:"column:user_id;type:uuid;not null;index"`
	Processor      enums.Processor `gorm:"column:processor;not null"`
	ProcessorToken string          `gorm:"column:processor_token;not null"`
	CustomerID     *string         `gorm:"column:customer_id"`
	Fingerprint    *string         `gorm:"column:fingerprint"`
	CardBrand      *string         `gorm:"column:card_brand"`
	CardLast4      *string         `gorm:"column:card_last4"`
	DeletedAt      *time.Time      `gorm:"column:deleted_at"`
	CreatedAt      time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (m *SavedPaymentMethod) BeforeCreate(*gorm.DB) error {
	ensureID(&m.ID)
	return nil
}
