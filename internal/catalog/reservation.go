package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-checkout/pkg/checkout"
	"github.com/angelmondragon/storefront-checkout/pkg/db/models"
)

// Reservation describes the stock and call slot one purchase holds.
type Reservation struct {
	PurchaseID uuid.UUID
	ProductID  uuid.UUID
	VariantIDs []uuid.UUID
	Quantity   int
	CallStart  *time.Time
	CallEnd    *time.Time
}

// Reserver applies reservations inside the caller's transaction.
type Reserver struct {
	repo Repository
}

func NewReserver(repo Repository) *Reserver {
	return &Reserver{repo: repo}
}

// Reserve claims product and variant counters and books the call slot. A
// lost race is reported as an item error; the caller must roll back tx so
// partially applied counters are undone.
func (r *Reserver) Reserve(ctx context.Context, tx *gorm.DB, res Reservation) (*checkout.ItemError, error) {
	if res.Quantity <= 0 {
		return nil, fmt.Errorf("reservation quantity must be positive")
	}
	repo := r.repo.WithTx(tx)

	ok, err := repo.IncrementProduct(ctx, res.ProductID, res.Quantity)
	if err != nil {
		return nil, fmt.Errorf("reserve product: %w", err)
	}
	if !ok {
		return checkout.NewItemError(checkout.ErrSoldOut), nil
	}
	for _, variantID := range res.VariantIDs {
		ok, err := repo.IncrementVariant(ctx, variantID, res.Quantity)
		if err != nil {
			return nil, fmt.Errorf("reserve variant: %w", err)
		}
		if !ok {
			return checkout.NewItemError(checkout.ErrSoldOut), nil
		}
	}
	if res.CallStart != nil && res.CallEnd != nil {
		booked, err := repo.BookCall(ctx, &models.CallBooking{
			ProductID:  res.ProductID,
			StartTime:  *res.CallStart,
			EndTime:    *res.CallEnd,
			PurchaseID: res.PurchaseID,
		})
		if err != nil {
			return nil, fmt.Errorf("book call: %w", err)
		}
		if !booked {
			return checkout.NewItemError(checkout.ErrSlotUnavailable), nil
		}
	}
	return nil, nil
}

// Release gives back everything Reserve claimed for the purchase.
func (r *Reserver) Release(ctx context.Context, tx *gorm.DB, res Reservation) error {
	repo := r.repo.WithTx(tx)
	if err := repo.DecrementProduct(ctx, res.ProductID, res.Quantity); err != nil {
		return fmt.Errorf("release product: %w", err)
	}
	for _, variantID := range res.VariantIDs {
		if err := repo.DecrementVariant(ctx, variantID, res.Quantity); err != nil {
			return fmt.Errorf("release variant: %w", err)
		}
	}
	if res.CallStart != nil {
		if err := repo.ReleaseCall(ctx, res.PurchaseID); err != nil {
			return fmt.Errorf("release call: %w", err)
		}
	}
	return nil
}

// ReservationFor rebuilds the reservation a persisted purchase holds.
func ReservationFor(p models.Purchase) Reservation {
	return Reservation{
		PurchaseID: p.ID,
		ProductID:  p.ProductID,
		VariantIDs: append([]uuid.UUID(nil), p.VariantIDs...),
		Quantity:   p.Quantity,
		CallStart:  p.CallStartTime,
		CallEnd:    p.CallEndTime,
	}
}
