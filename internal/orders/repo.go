package orders

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	dbpkg "github.com/angelmondragon/storefront-checkout/pkg/db"
	"github.com/angelmondragon/storefront-checkout/pkg/db/models"
	"github.com/angelmondragon/storefront-checkout/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-checkout/pkg/errors"
)

const purchaseEventConstraint = "ux_purchase_events_purchase_type"

// successStates are the purchase states a submission key may reach only once.
var successStates = []enums.PurchaseState{
	enums.PurchaseStateSuccessful,
	enums.PurchaseStatePreorderAuthorizationSucceeded,
	enums.PurchaseStateTestSuccessful,
}

// Repository persists orders, purchases and everything hanging off them.
// State changes are conditional on the current state so concurrent writers
// (confirm vs. the abandonment sweeper) cannot both win.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	CreateOrder(ctx context.Context, order *models.Order) error
	FindOrder(ctx context.Context, id uuid.UUID) (*models.Order, error)

	CreatePurchase(ctx context.Context, purchase *models.Purchase) error
	FindPurchase(ctx context.Context, id uuid.UUID) (*models.Purchase, error)
	FindPurchases(ctx context.Context, ids []uuid.UUID) ([]models.Purchase, error)
	FindPurchasesByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Purchase, error)
	FindPurchasesByCharge(ctx context.Context, chargeID uuid.UUID) ([]models.Purchase, error)
	FindSuccessfulBySubmissionKey(ctx context.Context, key string) (*models.Purchase, error)
	FindAbandonable(ctx context.Context, cutoff time.Time, limit int) ([]models.Purchase, error)
	TransitionPurchase(ctx context.Context, id uuid.UUID, from, to enums.PurchaseState, updates map[string]any) (bool, error)
	UpdatePurchase(ctx context.Context, id uuid.UUID, updates map[string]any) error

	CreateCharge(ctx context.Context, charge *models.Charge) error
	FindCharge(ctx context.Context, id uuid.UUID) (*models.Charge, error)
	TransitionCharge(ctx context.Context, id uuid.UUID, from, to enums.ChargeStatus) (bool, error)

	CreateGift(ctx context.Context, gift *models.Gift) error
	FindGiftBySender(ctx context.Context, senderPurchaseID uuid.UUID) (*models.Gift, error)
	SetGiftReceiver(ctx context.Context, giftID, receiverPurchaseID uuid.UUID) error

	CreatePreorder(ctx context.Context, preorder *models.Preorder) error
	UpdatePreorderState(ctx context.Context, id uuid.UUID, state enums.PreorderState) error

	CreateAffiliateCredit(ctx context.Context, credit *models.AffiliateCredit) error
	CreatePurchaseEvent(ctx context.Context, event *models.PurchaseEvent) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateOrder(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Omit("Purchases", "Charges").Create(order).Error
}

func (r *repository) FindOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Purchases", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		Preload("Charges").
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		return nil, notFound(err, "order not found")
	}
	return &order, nil
}

func (r *repository) CreatePurchase(ctx context.Context, purchase *models.Purchase) error {
	return r.db.WithContext(ctx).Create(purchase).Error
}

func (r *repository) FindPurchase(ctx context.Context, id uuid.UUID) (*models.Purchase, error) {
	var purchase models.Purchase
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&purchase).Error; err != nil {
		return nil, notFound(err, "purchase not found")
	}
	return &purchase, nil
}

func (r *repository) FindPurchases(ctx context.Context, ids []uuid.UUID) ([]models.Purchase, error) {
	var purchases []models.Purchase
	if len(ids) == 0 {
		return purchases, nil
	}
	err := r.db.WithContext(ctx).
		Where("id IN ?", ids).
		Order("created_at ASC").
		Find(&purchases).Error
	return purchases, err
}

func (r *repository) FindPurchasesByOrder(ctx context.Context, orderID uuid.UUID) ([]models.Purchase, error) {
	var purchases []models.Purchase
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&purchases).Error
	return purchases, err
}

func (r *repository) FindPurchasesByCharge(ctx context.Context, chargeID uuid.UUID) ([]models.Purchase, error) {
	var purchases []models.Purchase
	err := r.db.WithContext(ctx).
		Where("charge_id = ?", chargeID).
		Order("created_at ASC").
		Find(&purchases).Error
	return purchases, err
}

// FindSuccessfulBySubmissionKey returns nil when no purchase with key has succeeded.
func (r *repository) FindSuccessfulBySubmissionKey(ctx context.Context, key string) (*models.Purchase, error) {
	var purchase models.Purchase
	err := r.db.WithContext(ctx).
		Where("submission_key = ? AND state IN ?", key, successStates).
		First(&purchase).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &purchase, nil
}

// FindAbandonable lists SCA-pending purchases whose confirmation window closed.
func (r *repository) FindAbandonable(ctx context.Context, cutoff time.Time, limit int) ([]models.Purchase, error) {
	var purchases []models.Purchase
	q := r.db.WithContext(ctx).
		Where("state = ? AND abandon_at IS NOT NULL AND abandon_at <= ?", enums.PurchaseStateInProgress, cutoff).
		Order("abandon_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&purchases).Error
	return purchases, err
}

// TransitionPurchase applies updates and moves the purchase to `to` only if it
// is still in `from`. It reports whether the row changed.
func (r *repository) TransitionPurchase(ctx context.Context, id uuid.UUID, from, to enums.PurchaseState, updates map[string]any) (bool, error) {
	values := map[string]any{"state": to, "updated_at": time.Now().UTC()}
	for k, v := range updates {
		values[k] = v
	}
	res := r.db.WithContext(ctx).
		Model(&models.Purchase{}).
		Where("id = ? AND state = ?", id, from).
		Updates(values)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) UpdatePurchase(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&models.Purchase{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *repository) CreateCharge(ctx context.Context, charge *models.Charge) error {
	return r.db.WithContext(ctx).Omit("Purchases").Create(charge).Error
}

func (r *repository) FindCharge(ctx context.Context, id uuid.UUID) (*models.Charge, error) {
	var charge models.Charge
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&charge).Error; err != nil {
		return nil, notFound(err, "charge not found")
	}
	return &charge, nil
}

func (r *repository) TransitionCharge(ctx context.Context, id uuid.UUID, from, to enums.ChargeStatus) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Charge{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]any{"status": to, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) CreateGift(ctx context.Context, gift *models.Gift) error {
	return r.db.WithContext(ctx).Create(gift).Error
}

// FindGiftBySender returns nil when the purchase is not a gift.
func (r *repository) FindGiftBySender(ctx context.Context, senderPurchaseID uuid.UUID) (*models.Gift, error) {
	var gift models.Gift
	err := r.db.WithContext(ctx).Where("sender_purchase_id = ?", senderPurchaseID).First(&gift).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &gift, nil
}

func (r *repository) SetGiftReceiver(ctx context.Context, giftID, receiverPurchaseID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.Gift{}).
		Where("id = ? AND receiver_purchase_id IS NULL", giftID).
		Updates(map[string]any{"receiver_purchase_id": receiverPurchaseID, "updated_at": time.Now().UTC()}).Error
}

func (r *repository) CreatePreorder(ctx context.Context, preorder *models.Preorder) error {
	return r.db.WithContext(ctx).Create(preorder).Error
}

func (r *repository) UpdatePreorderState(ctx context.Context, id uuid.UUID, state enums.PreorderState) error {
	return r.db.WithContext(ctx).
		Model(&models.Preorder{}).
		Where("id = ?", id).
		Updates(map[string]any{"state": state, "updated_at": time.Now().UTC()}).Error
}

func (r *repository) CreateAffiliateCredit(ctx context.Context, credit *models.AffiliateCredit) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "purchase_id"}}, DoNothing: true}).
		Create(credit).Error
}

// CreatePurchaseEvent writes at most one event per purchase and type. The
// conflict is absorbed in SQL so an open postgres transaction stays usable.
func (r *repository) CreatePurchaseEvent(ctx context.Context, event *models.PurchaseEvent) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "purchase_id"}, {Name: "event_type"}},
			DoNothing: true,
		}).
		Create(event).Error
	if dbpkg.IsUniqueViolation(err, purchaseEventConstraint) {
		return nil
	}
	return err
}

func notFound(err error, msg string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, msg)
	}
	return err
}
