package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	dbtypes "github.com/angelmondragon/storefront-checkout/pkg/db/types"
	"github.com/angelmondragon/storefront-checkout/pkg/enums"
)

// Purchase is one line item's attempt. Failed rows are kept for audit.
type Purchase struct {
	ID                  uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	OrderID             uuid.UUID           `gorm:"column:order_id;type:uuid;not null;index"`
	LineItemUID         string              `gorm:"column:line_item_uid;not null"`
	ProductID           uuid.UUID           `gorm:"column:product_id;type:uuid;not null;index"`
	SellerID            uuid.UUID           `gorm:"column:seller_id;type:uuid;not null"`
	MerchantAccountID   string              `gorm:"column:merchant_account_id;not null"`
	Kind                enums.PurchaseKind  `gorm:"column:kind;not null"`
	State               enums.PurchaseState `gorm:"column:state;not null;index"`
	Quantity            int                 `gorm:"column:quantity;not null;default:1"`
	VariantIDs          dbtypes.UUIDList    `gorm:"column:variant_ids;type:jsonb"`
	PerceivedPriceCents int64               `gorm:"column:perceived_price_cents;not null"`

	PriceCents            int64           `gorm:"column:price_cents;not null"`
	FeeCents              int64           `gorm:"column:fee_cents;not null"`
	DiscoverFeeCents      int64           `gorm:"column:discover_fee_cents;not null"`
	TaxCents              int64           `gorm:"column:tax_cents;not null"`
	ShippingCents         int64           `gorm:"column:shipping_cents;not null"`
	TotalTransactionCents int64           `gorm:"column:total_transaction_cents;not null"`
	AffiliateCreditCents  int64           `gorm:"column:affiliate_credit_cents;not null"`
	AffiliateBasisPoints  int64           `gorm:"column:affiliate_basis_points;not null;default:0"`
	Currency              enums.Currency  `gorm:"column:currency;not null"`
	DisplayedPriceMinor   int64           `gorm:"column:displayed_price_minor;not null"`
	USDRate               decimal.Decimal `gorm:"column:usd_rate;type:numeric(20,10);not null"`

	BuyerUserID   *uuid.UUID `gorm:"column:buyer_user_id;type:uuid"`
	BuyerEmail    string     `gorm:"column:buyer_email;not null"`
	BrowserGUID   string     `gorm:"column:browser_guid"`
	SubmissionKey string     `gorm:"column:submission_key;not null;index"`

	AffiliateID   *uuid.UUID `gorm:"column:affiliate_id;type:uuid"`
	GiftID        *uuid.UUID `gorm:"column:gift_id;type:uuid"`
	PreorderID    *uuid.UUID `gorm:"column:preorder_id;type:uuid"`
	ChargeID      *uuid.UUID `gorm:"column:charge_id;type:uuid;index"`
	RecommendedBy *string    `gorm:"column:recommended_by"`

	CustomFields    json.RawMessage `gorm:"column:custom_fields;type:jsonb"`
	URLParams       json.RawMessage `gorm:"column:url_params;type:jsonb"`
	ShippingCountry *string         `gorm:"column:shipping_country"`
	CallStartTime   *time.Time      `gorm:"column:call_start_time"`
	CallEndTime     *time.Time      `gorm:"column:call_end_time"`

	Processor              enums.Processor `gorm:"column:processor"`
	PaymentFingerprint     string          `gorm:"column:payment_fingerprint"`
	ProcessorTransactionID *string         `gorm:"column:processor_transaction_id"`
	PaymentIntentID        *string         `gorm:"column:payment_intent_id"`
	ClientSecret           *string         `gorm:"column:client_secret"`
	InventoryReserved      bool            `gorm:"column:inventory_reserved;not null;default:false"`

	ErrorCode    *string    `gorm:"column:error_code"`
	ErrorMessage *string    `gorm:"column:error_message"`
	AbandonAt    *time.Time `gorm:"column:abandon_at;index"`
	SucceededAt  *time.Time `gorm:"column:succeeded_at"`
	CreatedAt    time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *Purchase) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	if p.USDRate.IsZero() {
		p.USDRate = decimal.NewFromInt(1)
	}
	return nil
}
