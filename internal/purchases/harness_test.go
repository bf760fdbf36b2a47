package purchases

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-checkout/internal/affiliates"
	"github.com/angelmondragon/storefront-checkout/internal/catalog"
	"github.com/angelmondragon/storefront-checkout/internal/chargeable"
	"github.com/angelmondragon/storefront-checkout/internal/lineitems"
	"github.com/angelmondragon/storefront-checkout/internal/orders"
	"github.com/angelmondragon/storefront-checkout/internal/payments"
	"github.com/angelmondragon/storefront-checkout/internal/tax"
	"github.com/angelmondragon/storefront-checkout/pkg/config"
	dbpkg "github.com/angelmondragon/storefront-checkout/pkg/db"
	"github.com/angelmondragon/storefront-checkout/pkg/db/models"
	"github.com/angelmondragon/storefront-checkout/pkg/enums"
	"github.com/angelmondragon/storefront-checkout/pkg/money"
)

var defaultFees = money.FeeSchedule{
	PlatformBasisPoints:  1000,
	PlatformFlatCents:    50,
	ProcessorBasisPoints: 290,
	ProcessorFlatCents:   30,
	DiscoverBasisPoints:  3000,
}

type fakeRouter struct {
	mu       sync.Mutex
	results  []*payments.Result
	requests []payments.AuthorizeRequest
	canceled []string
}

func (f *fakeRouter) Authorize(_ context.Context, req payments.AuthorizeRequest) (*payments.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if len(f.results) == 0 {
		return &payments.Result{Outcome: payments.OutcomeSucceeded, TransactionID: fmt.Sprintf("txn_%d", len(f.requests))}, nil
	}
	res := f.results[0]
	f.results = f.results[1:]
	return res, nil
}

func (f *fakeRouter) Cancel(_ context.Context, _ enums.Processor, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.canceled = append(f.canceled, id)
	return nil
}

type fakeAccess struct{}

func (fakeAccess) CreateRedirectFor(_ context.Context, p *models.Purchase) (string, error) {
	return "https://store.test/r/" + p.ID.String(), nil
}

type memSubmissions struct {
	mu   sync.Mutex
	keys map[string]string
}

func newMemSubmissions() *memSubmissions {
	return &memSubmissions{keys: map[string]string{}}
}

func (m *memSubmissions) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.keys[key]; ok {
		return false, nil
	}
	m.keys[key] = fmt.Sprint(value)
	return true, nil
}

func (m *memSubmissions) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.keys, key)
	}
	return nil
}

func (m *memSubmissions) SubmissionKey(fingerprint string) string {
	return "submission:" + fingerprint
}

type memCounters struct {
	mu     sync.Mutex
	counts map[string]int64
}

func newMemCounters() *memCounters {
	return &memCounters{counts: map[string]int64{}}
}

func (m *memCounters) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count, ok := m.counts[key]
	if !ok {
		return "", goredis.Nil
	}
	return fmt.Sprint(count), nil
}

func (m *memCounters) IncrWithTTL(_ context.Context, key string, _ time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[key]++
	return m.counts[key], nil
}

func (m *memCounters) RateLimitKey(scope string) string {
	return "rl:" + scope
}

type harness struct {
	db          *gorm.DB
	repo        orders.Repository
	router      *fakeRouter
	submissions *memSubmissions
	declines    *memCounters
	resolver    *affiliates.Resolver
	executor    *Executor
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, conn.AutoMigrate(models.All()...))

	catalogRepo := catalog.NewRepository(conn)
	validator, err := lineitems.NewValidator(catalogRepo)
	require.NoError(t, err)
	taxes, err := tax.NewService(config.TaxConfig{})
	require.NoError(t, err)
	resolver, err := affiliates.NewResolver(affiliates.NewRepository(conn))
	require.NoError(t, err)

	h := &harness{
		db:          conn,
		repo:        orders.NewRepository(conn),
		router:      &fakeRouter{},
		submissions: newMemSubmissions(),
		declines:    newMemCounters(),
		resolver:    resolver,
	}
	h.executor, err = NewExecutor(ExecutorParams{
		Tx:          dbpkg.NewFromConn(conn),
		Repo:        h.repo,
		Products:    catalogRepo,
		Validator:   validator,
		Reserver:    catalog.NewReserver(catalogRepo),
		Tax:         taxes,
		Payments:    h.router,
		Access:      fakeAccess{},
		Submissions: h.submissions,
		Declines:    h.declines,
		Fees:        defaultFees,
		Config: config.CheckoutConfig{
			SCAAbandonWindow:   15 * time.Minute,
			SubmissionNonceTTL: time.Hour,
		},
	})
	require.NoError(t, err)
	return h
}

func (h *harness) seedProduct(t *testing.T, priceCents int64, mutate func(*models.Product)) *models.Product {
	t.Helper()
	product := &models.Product{
		SellerID:          uuid.New(),
		MerchantAccountID: "acct_seller",
		Permalink:         uuid.NewString(),
		Name:              "Field Recordings",
		Kind:              enums.ProductKindDigital,
		PricingMode:       enums.PricingModeFixed,
		PriceCents:        priceCents,
		Currency:          enums.CurrencyUSD,
	}
	if mutate != nil {
		mutate(product)
	}
	require.NoError(t, h.db.Create(product).Error)
	return product
}

func (h *harness) submission(t *testing.T, nonce string) Submission {
	t.Helper()
	order := &models.Order{BuyerEmail: "buyer@example.com", BrowserGUID: "guid-1"}
	require.NoError(t, h.repo.CreateOrder(context.Background(), order))
	card, err := chargeable.NewFactory(nil).Build(context.Background(), chargeable.CardToken{Token: "pm_card_visa"}, nil, "guid-1")
	require.NoError(t, err)
	return Submission{
		Order:      order,
		Buyer:      Buyer{Email: "buyer@example.com", BrowserGUID: "guid-1", Country: "US"},
		Chargeable: card,
		Affiliates: h.resolver.ForCart(),
		Nonce:      nonce,
	}
}

func (h *harness) reload(t *testing.T, id uuid.UUID) *models.Purchase {
	t.Helper()
	p, err := h.repo.FindPurchase(context.Background(), id)
	require.NoError(t, err)
	return p
}

func (h *harness) purchaseCount(t *testing.T, productID uuid.UUID) int {
	t.Helper()
	var product models.Product
	require.NoError(t, h.db.First(&product, "id = ?", productID).Error)
	return product.PurchaseCount
}

func (h *harness) events(t *testing.T, purchaseID uuid.UUID) []enums.PurchaseEventType {
	t.Helper()
	var rows []models.PurchaseEvent
	require.NoError(t, h.db.Where("purchase_id = ?", purchaseID).Find(&rows).Error)
	out := make([]enums.PurchaseEventType, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.EventType)
	}
	return out
}

func item(product *models.Product, priceCents int64) lineitems.LineItem {
	return lineitems.LineItem{
		UID:                 uuid.NewString(),
		ProductID:           product.ID,
		Quantity:            1,
		PerceivedPriceCents: priceCents,
	}
}
