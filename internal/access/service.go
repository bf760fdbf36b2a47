// Package access issues the redeemable content link handed to the buyer for
// each successful purchase.
package access

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-checkout/pkg/config"
	"github.com/angelmondragon/storefront-checkout/pkg/db/models"
)

var signingMethod = jwt.SigningMethodHS256

const redirectPath = "/r/"

// RedirectClaims is the payload of a content redirect token.
type RedirectClaims struct {
	PurchaseID uuid.UUID `json:"purchase_id"`
	ProductID  uuid.UUID `json:"product_id"`
	jwt.RegisteredClaims
}

type Service struct {
	cfg     config.AccessConfig
	baseURL string
	now     func() time.Time
}

func NewService(cfg config.AccessConfig, publicURL string) (*Service, error) {
	if strings.TrimSpace(cfg.Secret) == "" {
		return nil, fmt.Errorf("access secret is required")
	}
	if cfg.TTL <= 0 {
		return nil, fmt.Errorf("access ttl must be positive")
	}
	base, err := url.Parse(strings.TrimRight(strings.TrimSpace(publicURL), "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("public url must be absolute: %q", publicURL)
	}
	return &Service{cfg: cfg, baseURL: base.String(), now: time.Now}, nil
}

// CreateRedirectFor returns the content URL for a purchase that grants access.
func (s *Service) CreateRedirectFor(_ context.Context, purchase *models.Purchase) (string, error) {
	if purchase == nil || purchase.ID == uuid.Nil {
		return "", fmt.Errorf("purchase required")
	}
	if !purchase.State.IsSuccess() {
		return "", fmt.Errorf("purchase %s does not grant access", purchase.ID)
	}
	now := s.now()
	claims := RedirectClaims{
		PurchaseID: purchase.ID,
		ProductID:  purchase.ProductID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.cfg.Issuer,
			Subject:   purchase.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.TTL)),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(signingMethod, claims).SignedString([]byte(s.cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("signing redirect token: %w", err)
	}
	return s.baseURL + redirectPath + signed, nil
}

// Parse validates a redirect token taken from a content URL.
func (s *Service) Parse(token string) (*RedirectClaims, error) {
	claims := &RedirectClaims{}
	_, err := jwt.ParseWithClaims(
		strings.TrimPrefix(token, s.baseURL+redirectPath),
		claims,
		func(*jwt.Token) (interface{}, error) {
			return []byte(s.cfg.Secret), nil
		},
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithIssuer(s.cfg.Issuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, err
	}
	return claims, nil
}
