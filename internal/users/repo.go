package users

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-checkout/pkg/db/models"
)

// Repository exposes the buyer account lookups checkout needs.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a users repo bound to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// FindByEmail returns nil when no account uses the address. Matching is
// case-insensitive.
func (r *Repository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, nil
	}
	var user models.User
	err := r.db.WithContext(ctx).Where("LOWER(email) = ?", strings.ToLower(email)).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

// FindByID loads a user by their UUID; nil when missing.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

// CanBuyerSignUp reports whether the checkout email has no account yet, so
// the receipt page can offer one. Signed-in buyers never see the offer.
func (r *Repository) CanBuyerSignUp(ctx context.Context, buyerUserID *uuid.UUID, email string) (bool, error) {
	if buyerUserID != nil || strings.TrimSpace(email) == "" {
		return false, nil
	}
	user, err := r.FindByEmail(ctx, email)
	if err != nil {
		return false, err
	}
	return user == nil, nil
}
