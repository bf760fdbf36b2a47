package checkout

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-checkout/internal/affiliates"
	"github.com/angelmondragon/storefront-checkout/internal/catalog"
	"github.com/angelmondragon/storefront-checkout/internal/chargeable"
	"github.com/angelmondragon/storefront-checkout/internal/charges"
	"github.com/angelmondragon/storefront-checkout/internal/lineitems"
	"github.com/angelmondragon/storefront-checkout/internal/orders"
	"github.com/angelmondragon/storefront-checkout/internal/payments"
	"github.com/angelmondragon/storefront-checkout/internal/purchases"
	"github.com/angelmondragon/storefront-checkout/internal/tax"
	"github.com/angelmondragon/storefront-checkout/internal/users"
	"github.com/angelmondragon/storefront-checkout/pkg/config"
	dbpkg "github.com/angelmondragon/storefront-checkout/pkg/db"
	"github.com/angelmondragon/storefront-checkout/pkg/db/models"
	"github.com/angelmondragon/storefront-checkout/pkg/enums"
	"github.com/angelmondragon/storefront-checkout/pkg/money"
)

type fakeRouter struct {
	mu         sync.Mutex
	authorize  []*payments.Result
	confirm    []*payments.Result
	confirmErr error
	cancelErr  error
	status     *payments.Result
	requests   []payments.AuthorizeRequest
	confirmed  []string
	canceled   []string
	refunded   []string
}

func (f *fakeRouter) Authorize(_ context.Context, req payments.AuthorizeRequest) (*payments.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if len(f.authorize) == 0 {
		return &payments.Result{Outcome: payments.OutcomeSucceeded, TransactionID: fmt.Sprintf("ch_%d", len(f.requests))}, nil
	}
	res := f.authorize[0]
	f.authorize = f.authorize[1:]
	return res, nil
}

func (f *fakeRouter) Confirm(_ context.Context, _ enums.Processor, intentID string) (*payments.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.confirmed = append(f.confirmed, intentID)
	if f.confirmErr != nil {
		return nil, f.confirmErr
	}
	if len(f.confirm) == 0 {
		return &payments.Result{Outcome: payments.OutcomeSucceeded, IntentID: intentID, TransactionID: "ch_" + intentID}, nil
	}
	res := f.confirm[0]
	f.confirm = f.confirm[1:]
	return res, nil
}

func (f *fakeRouter) Status(_ context.Context, _ enums.Processor, intentID string) (*payments.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.status == nil {
		return nil, fmt.Errorf("intent %s unreadable", intentID)
	}
	return f.status, nil
}

func (f *fakeRouter) Cancel(_ context.Context, _ enums.Processor, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.canceled = append(f.canceled, id)
	return f.cancelErr
}

func (f *fakeRouter) Refund(_ context.Context, _ enums.Processor, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refunded = append(f.refunded, id)
	return nil
}

type fakeAccess struct{}

func (fakeAccess) CreateRedirectFor(_ context.Context, p *models.Purchase) (string, error) {
	return "https://store.test/r/" + p.ID.String(), nil
}

type receipt struct {
	chargeID  *uuid.UUID
	purchases []uuid.UUID
}

type recordingNotifier struct {
	mu          sync.Mutex
	receipts    []receipt
	pings       []uuid.UUID
	attribution []uuid.UUID
	abandonment []uuid.UUID
}

func (r *recordingNotifier) EnqueueReceipt(_ context.Context, _ *gorm.DB, charge *models.Charge, list []models.Purchase) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry := receipt{}
	if charge != nil {
		id := charge.ID
		entry.chargeID = &id
	}
	for _, p := range list {
		entry.purchases = append(entry.purchases, p.ID)
	}
	r.receipts = append(r.receipts, entry)
	return nil
}

func (r *recordingNotifier) EnqueuePing(_ context.Context, _ *gorm.DB, p *models.Purchase) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pings = append(r.pings, p.ID)
	return nil
}

func (r *recordingNotifier) EnqueueUTMAttribution(_ context.Context, _ *gorm.DB, p *models.Purchase) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attribution = append(r.attribution, p.ID)
	return nil
}

func (r *recordingNotifier) ScheduleAbandonment(_ context.Context, _ *gorm.DB, p *models.Purchase) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.abandonment = append(r.abandonment, p.ID)
	return nil
}

func (r *recordingNotifier) receiptsFor(chargeID uuid.UUID) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, entry := range r.receipts {
		if entry.chargeID != nil && *entry.chargeID == chargeID {
			count++
		}
	}
	return count
}

type stubCaptcha struct {
	ok    bool
	err   error
	calls int
}

func (s *stubCaptcha) Verify(context.Context, string, string) (bool, error) {
	s.calls++
	return s.ok, s.err
}

// panickingExecutor blows up while preparing one line item.
type panickingExecutor struct {
	*purchases.Executor
	uid string
}

func (p panickingExecutor) Prepare(ctx context.Context, sub purchases.Submission, item lineitems.LineItem) (*purchases.Attempt, error) {
	if item.UID == p.uid {
		panic("boom")
	}
	return p.Executor.Prepare(ctx, sub, item)
}

type harness struct {
	db       *gorm.DB
	repo     orders.Repository
	router   *fakeRouter
	notifier *recordingNotifier
	captcha  *stubCaptcha
	executor *purchases.Executor
	params   ServiceParams
	service  *Service
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

	cfg := config.CheckoutConfig{
		SCAAbandonWindow:   15 * time.Minute,
		SubmissionNonceTTL: time.Hour,
		MaxConcurrentItems: 2,
	}
	h := &harness{
		db:       conn,
		repo:     orders.NewRepository(conn),
		router:   &fakeRouter{},
		notifier: &recordingNotifier{},
		captcha:  &stubCaptcha{ok: true},
	}
	tx := dbpkg.NewFromConn(conn)
	h.executor, err = purchases.NewExecutor(purchases.ExecutorParams{
		Tx:        tx,
		Repo:      h.repo,
		Products:  catalogRepo,
		Validator: validator,
		Reserver:  catalog.NewReserver(catalogRepo),
		Tax:       taxes,
		Payments:  h.router,
		Access:    fakeAccess{},
		Fees: money.FeeSchedule{
			PlatformBasisPoints:  1000,
			PlatformFlatCents:    50,
			ProcessorBasisPoints: 290,
			ProcessorFlatCents:   30,
			DiscoverBasisPoints:  3000,
		},
		Config: cfg,
	})
	require.NoError(t, err)
	grouper, err := charges.NewGrouper(tx, h.repo, h.executor, h.router, nil, nil)
	require.NoError(t, err)

	h.params = ServiceParams{
		Tx:            tx,
		Repo:          h.repo,
		Products:      catalogRepo,
		Executor:      h.executor,
		Grouper:       grouper,
		Methods:       chargeable.NewFactory(nil),
		Affiliates:    resolver,
		Notifications: h.notifier,
		Users:         users.NewRepository(conn),
		Captcha:       h.captcha,
		Payments:      h.router,
		Config:        cfg,
	}
	h.service, err = NewService(h.params)
	require.NoError(t, err)
	return h
}

func (h *harness) seedProduct(t *testing.T, sellerID uuid.UUID, priceCents int64, mutate func(*models.Product)) *models.Product {
	t.Helper()
	product := &models.Product{
		SellerID:          sellerID,
		MerchantAccountID: "acct_" + sellerID.String()[:8],
		Permalink:         uuid.NewString(),
		Name:              "Sample Pack",
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

func (h *harness) reload(t *testing.T, id uuid.UUID) *models.Purchase {
	t.Helper()
	p, err := h.repo.FindPurchase(context.Background(), id)
	require.NoError(t, err)
	return p
}

func (h *harness) charge(t *testing.T, id uuid.UUID) *models.Charge {
	t.Helper()
	charge, err := h.repo.FindCharge(context.Background(), id)
	require.NoError(t, err)
	return charge
}

func input(items ...lineitems.LineItem) CreateInput {
	return CreateInput{
		Items: items,
		Buyer: purchases.Buyer{
			Email:       "buyer@example.com",
			BrowserGUID: "guid-1",
			Country:     "us",
		},
		PaymentMethod: chargeable.CardToken{Token: "pm_card_visa"},
		CaptchaToken:  "captcha-token",
		RemoteIP:      "203.0.113.7",
		Nonce:         uuid.NewString(),
	}
}

func item(product *models.Product, priceCents int64) lineitems.LineItem {
	return lineitems.LineItem{
		UID:                 uuid.NewString(),
		ProductID:           product.ID,
		Quantity:            1,
		PerceivedPriceCents: priceCents,
	}
}

func requiresAction(intentID string) *payments.Result {
	return &payments.Result{
		Outcome:      payments.OutcomeRequiresAction,
		IntentID:     intentID,
		ClientSecret: intentID + "_secret",
	}
}
