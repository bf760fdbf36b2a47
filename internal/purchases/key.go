package purchases

import (
	"encoding/hex"
	"sort"
	"strings"

	"golang.org/x/crypto/blake2b"

	"github.com/angelmondragon/storefront-checkout/internal/lineitems"
)

// SubmissionKey identifies one buyer submitting one product selection under a
// client nonce. At most one purchase per key may ever succeed.
func SubmissionKey(buyer Buyer, item lineitems.LineItem, nonce string) string {
	identity := strings.ToLower(strings.TrimSpace(buyer.Email))
	if buyer.UserID != nil {
		identity = buyer.UserID.String()
	}
	variants := make([]string, 0, len(item.VariantIDs))
	for _, id := range item.VariantIDs {
		variants = append(variants, id.String())
	}
	sort.Strings(variants)

	material := strings.Join([]string{
		identity,
		item.ProductID.String(),
		strings.Join(variants, ","),
		strings.TrimSpace(nonce),
	}, "|")
	sum := blake2b.Sum256([]byte(material))
	return hex.EncodeToString(sum[:])
}
