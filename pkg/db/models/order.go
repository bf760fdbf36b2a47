package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Order groups one checkout submission. Its purchase set is fixed at creation.
type Order struct {
	ID          uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	BuyerUserID *uuid.UUID `gorm:"column:buyer_user_id;type:uuid;index"`
	BuyerEmail  string     `gorm:"column:buyer_email;not null"`
	BrowserGUID string     `gorm:"column:browser_guid"`
	IPCountry   string     `gorm:"column:ip_country"`
	Purchases   []Purchase `gorm:"foreignKey:OrderID"`
	Charges     []Charge   `gorm:"foreignKey:OrderID"`
	CreatedAt   time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	ensureID(&o.ID)
	return nil
}
