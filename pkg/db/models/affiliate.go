package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-checkout/pkg/enums"
)

// Affiliate is a referrer account. Direct affiliates belong to one seller and
// earn on the products linked through ProductAffiliate; global affiliates earn
// on any product that opted in.
type Affiliate struct {
	ID                 uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	Kind               enums.AffiliateKind `gorm:"column:kind;not null"`
	UserID             uuid.UUID           `gorm:"column:user_id;type:uuid;not null"`
	Email              string              `gorm:"column:email;not null"`
	SellerID           *uuid.UUID          `gorm:"column:seller_id;type:uuid"`
	DefaultBasisPoints int64               `gorm:"column:default_basis_points;not null;default:0"`
	Suspended          bool                `gorm:"column:suspended;not null;default:false"`
	CreatedAt          time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (a *Affiliate) BeforeCreate(*gorm.DB) error {
	ensureID(&a.ID)
	return nil
}

// ProductAffiliate is a direct affiliate's commission relationship with a product.
type ProductAffiliate struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	AffiliateID uuid.UUID `gorm:"column:affiliate_id;type:uuid;not null;uniqueIndex:ux_product_affiliates"`
	ProductID   uuid.UUID `gorm:"column:product_id;type:uuid;not null;uniqueIndex:ux_product_affiliates"`
	BasisPoints *int64    `gorm:"column:basis_points"`
}

func (pa *ProductAffiliate) BeforeCreate(*gorm.DB) error {
	ensureID(&pa.ID)
	return nil
}
