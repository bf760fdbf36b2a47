package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbpkg "github.com/angelmondragon/storefront-checkout/pkg/db"
	"github.com/angelmondragon/storefront-checkout/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-checkout/pkg/errors"
)

const callSlotConstraint = "ux_call_bookings_slot"

// Repository reads catalog state and applies reservation counters.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindProduct(ctx context.Context, id uuid.UUID) (*models.Product, error)
	SlotTaken(ctx context.Context, productID uuid.UUID, start time.Time) (bool, error)
	IncrementProduct(ctx context.Context, productID uuid.UUID, qty int) (bool, error)
	DecrementProduct(ctx context.Context, productID uuid.UUID, qty int) error
	IncrementVariant(ctx context.Context, variantID uuid.UUID, qty int) (bool, error)
	DecrementVariant(ctx context.Context, variantID uuid.UUID, qty int) error
	BookCall(ctx context.Context, booking *models.CallBooking) (bool, error)
	ReleaseCall(ctx context.Context, purchaseID uuid.UUID) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a catalog repository bound to db.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// FindProduct loads a product with its live variants, custom fields and
// shipping destinations. Deleted or suspended products are still returned;
// callers decide what that means.
func (r *repository) FindProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	err := r.db.WithContext(ctx).
		Preload("Variants", "deleted_at IS NULL").
		Preload("CustomFields", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Preload("ShippingDestinations").
		Where("id = ?", id).
		First(&product).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, err
	}
	return &product, nil
}

func (r *repository) SlotTaken(ctx context.Context, productID uuid.UUID, start time.Time) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.CallBooking{}).
		Where("product_id = ? AND start_time = ?", productID, start.UTC()).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// IncrementProduct claims qty units when the product's limit allows it.
func (r *repository) IncrementProduct(ctx context.Context, productID uuid.UUID, qty int) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ? AND (max_purchase_count IS NULL OR purchase_count + ? <= max_purchase_count)", productID, qty).
		UpdateColumn("purchase_count", gorm.Expr("purchase_count + ?", qty))
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repository) DecrementProduct(ctx context.Context, productID uuid.UUID, qty int) error {
	return r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ? AND purchase_count >= ?", productID, qty).
		UpdateColumn("purchase_count", gorm.Expr("purchase_count - ?", qty)).Error
}

// IncrementVariant claims qty units of a variant when its limit allows it.
func (r *repository) IncrementVariant(ctx context.Context, variantID uuid.UUID, qty int) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Variant{}).
		Where("id = ? AND (max_purchase_count IS NULL OR purchase_count + ? <= max_purchase_count)", variantID, qty).
		UpdateColumn("purchase_count", gorm.Expr("purchase_count + ?", qty))
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repository) DecrementVariant(ctx context.Context, variantID uuid.UUID, qty int) error {
	return r.db.WithContext(ctx).
		Model(&models.Variant{}).
		Where("id = ? AND purchase_count >= ?", variantID, qty).
		UpdateColumn("purchase_count", gorm.Expr("purchase_count - ?", qty)).Error
}

// BookCall inserts the slot row. It reports false when the slot is already held.
func (r *repository) BookCall(ctx context.Context, booking *models.CallBooking) (bool, error) {
	if booking == nil {
		return false, errors.New("call booking required")
	}
	booking.StartTime = booking.StartTime.UTC()
	booking.EndTime = booking.EndTime.UTC()
	if err := r.db.WithContext(ctx).Create(booking).Error; err != nil {
		if dbpkg.IsUniqueViolation(err, callSlotConstraint) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *repository) ReleaseCall(ctx context.Context, purchaseID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("purchase_id = ?", purchaseID).
		Delete(&models.CallBooking{}).Error
}
