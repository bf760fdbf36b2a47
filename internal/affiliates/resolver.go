package affiliates

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-checkout/pkg/db/models"
	"github.com/angelmondragon/storefront-checkout/pkg/enums"
	"github.com/angelmondragon/storefront-checkout/pkg/money"
)

// Signal is one referral cookie: which affiliate and when it was set.
type Signal struct {
	AffiliateID uuid.UUID
	SetAt       time.Time
}

// Request is everything resolution looks at for one line item.
type Request struct {
	Product             *models.Product
	Signals             []Signal
	ExplicitAffiliateID *uuid.UUID
	BuyerEmail          string
	RecommendedBy       *string
}

// Resolution is the outcome for one line item. Discover is set when the sale
// came from recommendations, which suppresses affiliate credit.
type Resolution struct {
	Affiliate   *models.Affiliate
	BasisPoints int64
	Discover    bool
}

// CreditCents is the affiliate's cut of the seller's net revenue.
func (r Resolution) CreditCents(netCents int64) int64 {
	if r.Affiliate == nil || r.Discover {
		return 0
	}
	return money.AffiliateCredit(netCents, r.BasisPoints)
}

// AffiliateID returns the credited affiliate id, if any.
func (r Resolution) AffiliateID() *uuid.UUID {
	if r.Affiliate == nil {
		return nil
	}
	id := r.Affiliate.ID
	return &id
}

type Resolver struct {
	store Store
}

func NewResolver(store Store) (*Resolver, error) {
	if store == nil {
		return nil, fmt.Errorf("affiliate store required")
	}
	return &Resolver{store: store}, nil
}

type candidate struct {
	affiliate *models.Affiliate
	bps       int64
}

// Resolve picks at most one affiliate. Cookies are considered newest first;
// an eligible direct affiliate of the product beats any global affiliate; the
// explicit affiliate id only applies when no cookie produced a match.
func (r *Resolver) Resolve(ctx context.Context, req Request) (Resolution, error) {
	if req.Product == nil {
		return Resolution{}, fmt.Errorf("product required")
	}
	if req.RecommendedBy != nil && strings.TrimSpace(*req.RecommendedBy) != "" {
		return Resolution{Discover: true}, nil
	}

	signals := append([]Signal(nil), req.Signals...)
	sort.SliceStable(signals, func(i, j int) bool {
		return signals[i].SetAt.After(signals[j].SetAt)
	})

	ids := make([]uuid.UUID, 0, len(signals)+1)
	for _, s := range signals {
		ids = append(ids, s.AffiliateID)
	}
	if req.ExplicitAffiliateID != nil {
		ids = append(ids, *req.ExplicitAffiliateID)
	}
	if len(ids) == 0 {
		return Resolution{}, nil
	}
	accounts, err := r.store.FindAffiliates(ctx, ids)
	if err != nil {
		return Resolution{}, fmt.Errorf("load affiliates: %w", err)
	}

	var direct, global *candidate
	seen := make(map[uuid.UUID]struct{}, len(signals))
	for _, s := range signals {
		if _, dup := seen[s.AffiliateID]; dup {
			continue
		}
		seen[s.AffiliateID] = struct{}{}
		c, err := r.eligible(ctx, accounts[s.AffiliateID], req)
		if err != nil {
			return Resolution{}, err
		}
		if c == nil {
			continue
		}
		if c.affiliate.Kind == enums.AffiliateKindDirect {
			direct = c
			break
		}
		if global == nil {
			global = c
		}
	}

	chosen := direct
	if chosen == nil {
		chosen = global
	}
	if chosen == nil && req.ExplicitAffiliateID != nil {
		chosen, err = r.eligible(ctx, accounts[*req.ExplicitAffiliateID], req)
		if err != nil {
			return Resolution{}, err
		}
	}
	if chosen == nil {
		return Resolution{}, nil
	}
	return Resolution{Affiliate: chosen.affiliate, BasisPoints: chosen.bps}, nil
}

// eligible returns nil when the affiliate cannot earn on this product.
func (r *Resolver) eligible(ctx context.Context, affiliate *models.Affiliate, req Request) (*candidate, error) {
	if affiliate == nil || affiliate.Suspended {
		return nil, nil
	}
	if req.BuyerEmail != "" && strings.EqualFold(strings.TrimSpace(affiliate.Email), strings.TrimSpace(req.BuyerEmail)) {
		return nil, nil
	}
	switch affiliate.Kind {
	case enums.AffiliateKindDirect:
		if affiliate.SellerID == nil || *affiliate.SellerID != req.Product.SellerID {
			return nil, nil
		}
		link, err := r.store.FindProductAffiliate(ctx, affiliate.ID, req.Product.ID)
		if err != nil {
			return nil, fmt.Errorf("load product affiliate: %w", err)
		}
		if link == nil {
			return nil, nil
		}
		bps := affiliate.DefaultBasisPoints
		if link.BasisPoints != nil {
			bps = *link.BasisPoints
		}
		return &candidate{affiliate: affiliate, bps: bps}, nil
	case enums.AffiliateKindGlobal:
		if !req.Product.GlobalAffiliatesEnabled {
			return nil, nil
		}
		return &candidate{affiliate: affiliate, bps: affiliate.DefaultBasisPoints}, nil
	}
	return nil, nil
}

// CartScope memoises resolutions for one cart. Items for the same product with
// the same explicit affiliate and recommendation share one decision.
type CartScope struct {
	resolver *Resolver
	mu       sync.Mutex
	cache    map[string]Resolution
}

func (r *Resolver) ForCart() *CartScope {
	return &CartScope{resolver: r, cache: map[string]Resolution{}}
}

func (c *CartScope) Resolve(ctx context.Context, req Request) (Resolution, error) {
	if req.Product == nil {
		return Resolution{}, fmt.Errorf("product required")
	}
	key := req.Product.ID.String()
	if req.ExplicitAffiliateID != nil {
		key += "|" + req.ExplicitAffiliateID.String()
	}
	if req.RecommendedBy != nil {
		key += "|rec"
	}
	c.mu.Lock()
	if cached, ok := c.cache[key]; ok {
		c.mu.Unlock()
		return cached, nil
	}
	c.mu.Unlock()

	res, err := c.resolver.Resolve(ctx, req)
	if err != nil {
		return Resolution{}, err
	}
	c.mu.Lock()
	c.cache[key] = res
	c.mu.Unlock()
	return res, nil
}
