package lineitems

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-checkout/pkg/db/models"
)

// LineItem is one raw cart entry as submitted by the buyer.
type LineItem struct {
	UID                 string
	ProductID           uuid.UUID
	Quantity            int
	VariantIDs          []uuid.UUID
	PerceivedPriceCents int64
	CustomFields        map[string]any
	CallStartTime       *time.Time
	AffiliateID         *uuid.UUID
	RecommendedBy       *string
	URLParams           map[string]string
}

// Buyer carries the buyer attributes validation depends on.
type Buyer struct {
	Country string
}

// Validated is a line item whose price and availability the server trusts.
type Validated struct {
	Item            LineItem
	Product         *models.Product
	Variants        []models.Variant
	PriceCents      int64
	MinimumCents    int64
	CustomFields    map[string]any
	ShippingCents   int64
	ShippingCountry string
	CallStart       *time.Time
	CallEnd         *time.Time
	Preorder        bool
}

// VariantIDs returns the ids of the selected variants, default SKU included.
func (v *Validated) VariantIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(v.Variants))
	for _, variant := range v.Variants {
		ids = append(ids, variant.ID)
	}
	return ids
}

// IsFree reports whether nothing will be charged for the item.
func (v *Validated) IsFree() bool {
	return v.PriceCents == 0 && v.ShippingCents == 0
}
