package chargeable

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-checkout/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-checkout/pkg/errors"
)

type savedMethodRepository struct {
	db *gorm.DB
}

// NewSavedMethodRepository reads vaulted payment methods from the database.
func NewSavedMethodRepository(db *gorm.DB) SavedMethodStore {
	return &savedMethodRepository{db: db}
}

func (r *savedMethodRepository) FindSavedMethod(ctx context.Context, id uuid.UUID) (*models.SavedPaymentMethod, error) {
	var method models.SavedPaymentMethod
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&method).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "saved card not found")
		}
		return nil, err
	}
	return &method, nil
}
