package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CallBooking holds a call slot. (product_id, start_time) is unique.
type CallBooking struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	ProductID  uuid.UUID `gorm:"column:product_id;type:uuid;not null;uniqueIndex:ux_call_bookings_slot"`
	StartTime  time.Time `gorm:"column:start_time;not null;uniqueIndex:ux_call_bookings_slot"`
	EndTime    time.Time `gorm:"column:end_time;not null"`
	PurchaseID uuid.UUID `gorm:"column:purchase_id;type:uuid;not null"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (b *CallBooking) BeforeCreate(*gorm.DB) error {
	ensureID(&b.ID)
	return nil
}
