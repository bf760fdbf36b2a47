package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-checkout/pkg/enums"
)

// Product is the catalog listing a line item points at. For variable pricing
// PriceCents is the per-unit minimum.
type Product struct {
	ID                      uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	SellerID                uuid.UUID             `gorm:"column:seller_id;type:uuid;not null;index"`
	MerchantAccountID       string                `gorm:"column:merchant_account_id;not null"`
	Permalink               string                `gorm:"column:permalink;not null;uniqueIndex"`
	Name                    string                `gorm:"column:name;not null"`
	Kind                    enums.ProductKind     `gorm:"column:kind;not null"`
	PricingMode             enums.PricingMode     `gorm:"column:pricing_mode;not null"`
	PriceCents              int64                 `gorm:"column:price_cents;not null"`
	Currency                enums.Currency        `gorm:"column:currency;not null"`
	MaxPurchaseCount        *int                  `gorm:"column:max_purchase_count"`
	PurchaseCount           int                   `gorm:"column:purchase_count;not null;default:0"`
	RequireCaptcha          bool                  `gorm:"column:require_captcha;not null;default:false"`
	SKUsEnabled             bool                  `gorm:"column:skus_enabled;not null;default:false"`
	GlobalAffiliatesEnabled bool                  `gorm:"column:global_affiliates_enabled;not null;default:false"`
	Suspended               bool                  `gorm:"column:suspended;not null;default:false"`
	ReleaseAt               *time.Time            `gorm:"column:release_at"`
	DeletedAt               *time.Time            `gorm:"column:deleted_at"`
	Variants                []Variant             `gorm:"foreignKey:ProductID"`
	CustomFields            []ProductCustomField  `gorm:"foreignKey:ProductID"`
	ShippingDestinations    []ShippingDestination `gorm:"foreignKey:ProductID"`
	CreatedAt               time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt               time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *Product) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}

// Variant is a tier, version, SKU or call duration of a product.
type Variant struct {
	ID                   uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	ProductID            uuid.UUID  `gorm:"column:product_id;type:uuid;not null;index"`
	Name                 string     `gorm:"column:name;not null"`
	PriceDifferenceCents int64      `gorm:"column:price_difference_cents;not null;default:0"`
	MaxPurchaseCount     *int       `gorm:"column:max_purchase_count"`
	PurchaseCount        int        `gorm:"column:purchase_count;not null;default:0"`
	DurationMinutes      *int       `gorm:"column:duration_minutes"`
	IsSKU                bool       `gorm:"column:is_sku;not null;default:false"`
	IsDefaultSKU         bool       `gorm:"column:is_default_sku;not null;default:false"`
	DeletedAt            *time.Time `gorm:"column:deleted_at"`
	CreatedAt            time.Time  `gorm:"column:created_at;autoCreateTime"`
}

func (v *Variant) BeforeCreate(*gorm.DB) error {
	ensureID(&v.ID)
	return nil
}

type ProductCustomField struct {
	ID        uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	ProductID uuid.UUID             `gorm:"column:product_id;type:uuid;not null;index"`
	Name      string                `gorm:"column:name;not null"`
	Type      enums.CustomFieldType `gorm:"column:type;not null"`
	Required  bool                  `gorm:"column:required;not null;default:false"`
	Position  int                   `gorm:"column:position;not null;default:0"`
}

func (f *ProductCustomField) BeforeCreate(*gorm.DB) error {
	ensureID(&f.ID)
	return nil
}

// ShippingDestination prices delivery to one country. The country code
// "ELSEWHERE" matches any buyer country without its own row.
type ShippingDestination struct {
	ID                     uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	ProductID              uuid.UUID `gorm:"column:product_id;type:uuid;not null;index"`
	CountryCode            string    `gorm:"column:country_code;not null"`
	OneItemRateCents       int64     `gorm:"column:one_item_rate_cents;not null;default:0"`
	MultipleItemsRateCents int64     `gorm:"column:multiple_items_rate_cents;not null;default:0"`
}

func (d *ShippingDestination) BeforeCreate(*gorm.DB) error {
	ensureID(&d.ID)
	return nil
}
