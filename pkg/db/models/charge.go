package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-checkout/pkg/enums"
)

// Charge is one processor money movement covering purchases that share a
// seller, merchant account and payment method.
type Charge struct {
	ID                     uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	OrderID                uuid.UUID          `gorm:"column:order_id;type:uuid;not null;index"`
	SellerID               uuid.UUID          `gorm:"column:seller_id;type:uuid;not null"`
	MerchantAccountID      string             `gorm:"column:merchant_account_id;not null"`
	PaymentFingerprint     string             `gorm:"column:payment_fingerprint;not null"`
	Processor              enums.Processor    `gorm:"column:processor;not null"`
	ProcessorTransactionID *string            `gorm:"column:processor_transaction_id"`
	PaymentIntentID        *string            `gorm:"column:payment_intent_id;index"`
	ClientSecret           *string            `gorm:"column:client_secret"`
	AmountCents            int64              `gorm:"column:amount_cents;not null"`
	PlatformAmountCents    int64              `gorm:"column:platform_amount_cents;not null"`
	Currency               enums.Currency     `gorm:"column:currency;not null"`
	Status                 enums.ChargeStatus `gorm:"column:status;not null"`
	Purchases              []Purchase         `gorm:"foreignKey:ChargeID"`
	CreatedAt              time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt              time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

func (c *Charge) BeforeCreate(*gorm.DB) error {
	ensureID(&c.ID)
	return nil
}
