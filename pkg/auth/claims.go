package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// BuyerClaims identifies a signed-in buyer. Guests check out without one.
type BuyerClaims struct {
	UserID uuid.UUID `json:"user_id"`
	jwt.RegisteredClaims
}
