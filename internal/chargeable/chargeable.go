package chargeable

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"

	"github.com/angelmondragon/storefront-checkout/pkg/db/models"
	"github.com/angelmondragon/storefront-checkout/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-checkout/pkg/errors"
)

// Chargeable is the resolved, processor-ready payment method. Callers only
// read it; the factory is the one place that builds it.
type Chargeable struct {
	methodType  enums.PaymentMethodType
	processor   enums.Processor
	token       string
	customerID  string
	fingerprint string
	brand       string
	last4       string
	browserGUID string
}

func (c *Chargeable) Type() enums.PaymentMethodType { return c.methodType }
func (c *Chargeable) Processor() enums.Processor    { return c.processor }
func (c *Chargeable) Token() string                 { return c.token }
func (c *Chargeable) CustomerID() string            { return c.customerID }
func (c *Chargeable) BrowserGUID() string           { return c.browserGUID }

// Fingerprint is stable for the same underlying instrument and is what
// charge grouping keys on.
func (c *Chargeable) Fingerprint() string { return c.fingerprint }

// Display renders the instrument for receipts, e.g. "visa *4242".
func (c *Chargeable) Display() string {
	if c.brand == "" || c.last4 == "" {
		return string(c.methodType)
	}
	return fmt.Sprintf("%s *%s", c.brand, c.last4)
}

// SavedMethodStore looks up vaulted payment methods.
type SavedMethodStore interface {
	FindSavedMethod(ctx context.Context, id uuid.UUID) (*models.SavedPaymentMethod, error)
}

// Factory resolves PaymentMethodRefs into Chargeables.
type Factory struct {
	saved SavedMethodStore
}

func NewFactory(saved SavedMethodStore) *Factory {
	return &Factory{saved: saved}
}

// Build resolves ref once, before any processor call. Saved cards must
// belong to the signed-in buyer.
func (f *Factory) Build(ctx context.Context, ref PaymentMethodRef, buyerUserID *uuid.UUID, browserGUID string) (*Chargeable, error) {
	if ref == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment method required")
	}
	out := &Chargeable{methodType: ref.Type(), browserGUID: browserGUID}
	switch r := ref.(type) {
	case CardToken:
		out.processor = enums.ProcessorStripe
		out.token = r.Token
	case WalletToken:
		out.processor = enums.ProcessorStripe
		out.token = r.Token
	case PayPalAgreement:
		out.processor = enums.ProcessorBraintree
		out.token = r.Token
	case SavedCard:
		if err := f.resolveSaved(ctx, r, buyerUserID, out); err != nil {
			return nil, err
		}
		return out, nil
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unsupported payment method")
	}
	out.fingerprint = Fingerprint(out.processor, out.token)
	return out, nil
}

func (f *Factory) resolveSaved(ctx context.Context, ref SavedCard, buyerUserID *uuid.UUID, out *Chargeable) error {
	if buyerUserID == nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "sign in to use a saved card")
	}
	if f.saved == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "saved payment methods unavailable")
	}
	method, err := f.saved.FindSavedMethod(ctx, ref.ID)
	if err != nil {
		return err
	}
	if method == nil || method.UserID != *buyerUserID || method.DeletedAt != nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "saved card not found")
	}
	out.processor = method.Processor
	out.token = method.ProcessorToken
	if method.CustomerID != nil {
		out.customerID = *method.CustomerID
	}
	if method.CardBrand != nil {
		out.brand = *method.CardBrand
	}
	if method.CardLast4 != nil {
		out.last4 = *method.CardLast4
	}
	material := method.ProcessorToken
	if method.Fingerprint != nil && *method.Fingerprint != "" {
		material = *method.Fingerprint
	}
	out.fingerprint = Fingerprint(out.processor, material)
	return nil
}

// Fingerprint hashes the processor and instrument material with BLAKE2b-256.
func Fingerprint(processor enums.Processor, material string) string {
	sum := blake2b.Sum256([]byte(string(processor) + "|" + strings.TrimSpace(material)))
	return hex.EncodeToString(sum[:])
}
