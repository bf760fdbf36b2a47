package lineitems

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-checkout/pkg/checkout"
	"github.com/angelmondragon/storefront-checkout/pkg/db/models"
	"github.com/angelmondragon/storefront-checkout/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-checkout/pkg/errors"
)

const shippingElsewhere = "ELSEWHERE"

// Catalog is the read side of the catalog the validator depends on.
type Catalog interface {
	FindProduct(ctx context.Context, id uuid.UUID) (*models.Product, error)
	SlotTaken(ctx context.Context, productID uuid.UUID, start time.Time) (bool, error)
}

// Validator runs the per-item business rules. It never writes.
type Validator struct {
	catalog Catalog
	now     func() time.Time
}

func NewValidator(catalog Catalog) (*Validator, error) {
	if catalog == nil {
		return nil, fmt.Errorf("catalog required")
	}
	return &Validator{catalog: catalog, now: time.Now}, nil
}

// Validate checks item in order and stops at the first failure. The error
// return is reserved for catalog failures; rule violations come back as an
// ItemError.
func (v *Validator) Validate(ctx context.Context, item LineItem, buyer Buyer) (*Validated, *checkout.ItemError, error) {
	return v.check(ctx, item, buyer, true)
}

// Revalidate re-reads the catalog and re-runs the stock, price and call slot
// checks right before money moves.
func (v *Validator) Revalidate(ctx context.Context, item LineItem, buyer Buyer) (*Validated, *checkout.ItemError, error) {
	return v.check(ctx, item, buyer, false)
}

func (v *Validator) check(ctx context.Context, item LineItem, buyer Buyer, full bool) (*Validated, *checkout.ItemError, error) {
	if item.Quantity <= 0 {
		item.Quantity = 1
	}

	product, err := v.catalog.FindProduct(ctx, item.ProductID)
	if err != nil {
		if pkgerrors.Is(err, pkgerrors.CodeNotFound) {
			return nil, checkout.NewItemError(checkout.ErrProductNotFound), nil
		}
		return nil, nil, err
	}
	if product.DeletedAt != nil || product.Suspended {
		return nil, checkout.NewItemError(checkout.ErrProductNotFound), nil
	}

	out := &Validated{Item: item, Product: product}
	out.Preorder = product.ReleaseAt != nil && product.ReleaseAt.After(v.now())

	variants, itemErr := selectVariants(product, item)
	if itemErr != nil {
		return nil, itemErr, nil
	}
	out.Variants = variants
	if itemErr := checkStock(product, variants, item.Quantity); itemErr != nil {
		return nil, itemErr, nil
	}

	if full {
		fields, itemErr := coerceCustomFields(product.CustomFields, item.CustomFields)
		if itemErr != nil {
			return nil, itemErr, nil
		}
		out.CustomFields = fields
	}

	unit := product.PriceCents
	for _, variant := range variants {
		unit += variant.PriceDifferenceCents
	}
	if unit < 0 {
		unit = 0
	}
	expected := unit * int64(item.Quantity)

	switch product.PricingMode {
	case enums.PricingModeVariable:
		out.MinimumCents = expected
		if item.PerceivedPriceCents < expected {
			return nil, checkout.NewItemError(checkout.ErrContributionTooLow), nil
		}
		out.PriceCents = item.PerceivedPriceCents
	default:
		if item.PerceivedPriceCents != expected {
			return nil, checkout.NewItemError(checkout.ErrPerceivedPriceMismatch), nil
		}
		out.MinimumCents = expected
		out.PriceCents = expected
	}

	if product.Kind == enums.ProductKindCall {
		start, end, itemErr := callWindow(item, variants)
		if itemErr != nil {
			return nil, itemErr, nil
		}
		taken, err := v.catalog.SlotTaken(ctx, product.ID, *start)
		if err != nil {
			return nil, nil, err
		}
		if taken {
			return nil, checkout.NewItemError(checkout.ErrSlotUnavailable), nil
		}
		out.CallStart, out.CallEnd = start, end
	}

	if full && product.Kind == enums.ProductKindPhysical {
		dest, ok := matchDestination(product.ShippingDestinations, buyer.Country)
		if !ok {
			return nil, checkout.NewItemError(checkout.ErrNoShippingDestination), nil
		}
		out.ShippingCountry = strings.ToUpper(strings.TrimSpace(buyer.Country))
		out.ShippingCents = shippingRate(dest, item.Quantity)
	}

	return out, nil, nil
}

// selectVariants resolves the requested variants. When SKUs are enabled and
// none was chosen the default SKU stands in.
func selectVariants(product *models.Product, item LineItem) ([]models.Variant, *checkout.ItemError) {
	byID := make(map[uuid.UUID]models.Variant, len(product.Variants))
	for _, variant := range product.Variants {
		byID[variant.ID] = variant
	}
	selected := make([]models.Variant, 0, len(item.VariantIDs))
	hasSKU := false
	for _, id := range item.VariantIDs {
		variant, ok := byID[id]
		if !ok {
			return nil, checkout.NewItemError(checkout.ErrSoldOut)
		}
		if variant.IsSKU {
			hasSKU = true
		}
		selected = append(selected, variant)
	}
	if product.SKUsEnabled && !hasSKU {
		for _, variant := range product.Variants {
			if variant.IsDefaultSKU {
				selected = append(selected, variant)
				break
			}
		}
	}
	return selected, nil
}

func checkStock(product *models.Product, variants []models.Variant, qty int) *checkout.ItemError {
	if product.MaxPurchaseCount != nil {
		remaining := *product.MaxPurchaseCount - product.PurchaseCount
		if remaining <= 0 {
			return checkout.NewItemError(checkout.ErrSoldOut)
		}
		if qty > remaining {
			return checkout.NewItemError(checkout.ErrExceedingVariantQuantity)
		}
	}
	for _, variant := range variants {
		if variant.MaxPurchaseCount == nil {
			continue
		}
		remaining := *variant.MaxPurchaseCount - variant.PurchaseCount
		if remaining <= 0 {
			return checkout.NewItemError(checkout.ErrSoldOut)
		}
		if qty > remaining {
			return checkout.NewItemError(checkout.ErrExceedingVariantQuantity)
		}
	}
	return nil
}

// coerceCustomFields checks required answers and normalizes checkbox and
// terms answers to booleans. Terms must be accepted.
func coerceCustomFields(defs []models.ProductCustomField, answers map[string]any) (map[string]any, *checkout.ItemError) {
	out := make(map[string]any, len(defs))
	for _, def := range defs {
		raw, present := answers[def.Name]
		if def.Type.IsBoolean() {
			value, ok := toBool(raw)
			if present && !ok {
				return nil, checkout.NewItemError(checkout.ErrInvalidCustomFields)
			}
			if def.Required && !value {
				return nil, checkout.NewItemError(checkout.ErrInvalidCustomFields)
			}
			if def.Type == enums.CustomFieldTypeTerms && !value {
				return nil, checkout.NewItemError(checkout.ErrInvalidCustomFields)
			}
			out[def.Name] = value
			continue
		}
		text := ""
		if present && raw != nil {
			str, ok := raw.(string)
			if !ok {
				return nil, checkout.NewItemError(checkout.ErrInvalidCustomFields)
			}
			text = strings.TrimSpace(str)
		}
		if def.Required && text == "" {
			return nil, checkout.NewItemError(checkout.ErrInvalidCustomFields)
		}
		if text != "" {
			out[def.Name] = text
		}
	}
	return out, nil
}

func toBool(raw any) (bool, bool) {
	switch v := raw.(type) {
	case nil:
		return false, true
	case bool:
		return v, true
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "", "0", "false", "off", "no":
			return false, true
		case "1", "true", "on", "yes":
			return true, true
		}
		if parsed, err := strconv.ParseBool(v); err == nil {
			return parsed, true
		}
		return false, false
	case float64:
		return v != 0, true
	}
	return false, false
}

func callWindow(item LineItem, variants []models.Variant) (*time.Time, *time.Time, *checkout.ItemError) {
	var duration *int
	for _, variant := range variants {
		if variant.DurationMinutes != nil && *variant.DurationMinutes > 0 {
			duration = variant.DurationMinutes
			break
		}
	}
	if item.CallStartTime == nil || duration == nil {
		return nil, nil, checkout.NewItemError(checkout.ErrNoStartTimeSelected)
	}
	start := item.CallStartTime.UTC()
	end := start.Add(time.Duration(*duration) * time.Minute)
	return &start, &end, nil
}

func matchDestination(dests []models.ShippingDestination, country string) (models.ShippingDestination, bool) {
	country = strings.ToUpper(strings.TrimSpace(country))
	var fallback *models.ShippingDestination
	for i := range dests {
		code := strings.ToUpper(dests[i].CountryCode)
		if country != "" && code == country {
			return dests[i], true
		}
		if code == shippingElsewhere && fallback == nil {
			fallback = &dests[i]
		}
	}
	if fallback != nil {
		return *fallback, true
	}
	return models.ShippingDestination{}, false
}

func shippingRate(dest models.ShippingDestination, qty int) int64 {
	if qty <= 1 {
		return dest.OneItemRateCents
	}
	return dest.OneItemRateCents + dest.MultipleItemsRateCents*int64(qty-1)
}
