package affiliates

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-checkout/pkg/db/models"
)

// Store reads affiliate accounts and their product relationships.
type Store interface {
	FindAffiliates(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.Affiliate, error)
	FindProductAffiliate(ctx context.Context, affiliateID, productID uuid.UUID) (*models.ProductAffiliate, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Store {
	return &repository{db: db}
}

func (r *repository) FindAffiliates(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.Affiliate, error) {
	out := make(map[uuid.UUID]*models.Affiliate, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []models.Affiliate
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	for i := range rows {
		out[rows[i].ID] = &rows[i]
	}
	return out, nil
}

// FindProductAffiliate returns nil when the affiliate has no relationship
// with the product.
func (r *repository) FindProductAffiliate(ctx context.Context, affiliateID, productID uuid.UUID) (*models.ProductAffiliate, error) {
	var row models.ProductAffiliate
	err := r.db.WithContext(ctx).
		Where("affiliate_id = ? AND product_id = ?", affiliateID, productID).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}
