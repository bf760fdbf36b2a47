package catalog

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-checkout/pkg/checkout"
	"github.com/angelmondragon/storefront-checkout/pkg/db/models"
	"github.com/angelmondragon/storefront-checkout/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-checkout/pkg/errors"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, conn.AutoMigrate(models.All()...))
	return conn
}

func seedProduct(t *testing.T, db *gorm.DB, max *int) *models.Product {
	t.Helper()
	product := &models.Product{
		SellerID:          uuid.New(),
		MerchantAccountID: "acct_seller",
		Permalink:         uuid.NewString(),
		Name:              "Zine",
		Kind:              enums.ProductKindDigital,
		PricingMode:       enums.PricingModeFixed,
		PriceCents:        500,
		Currency:          enums.CurrencyUSD,
		MaxPurchaseCount:  max,
	}
	require.NoError(t, db.Create(product).Error)
	return product
}

func intPtr(v int) *int { return &v }

func TestFindProductPreloadsLiveVariants(t *testing.T) {
	db := newTestDB(t)
	repo := NewRepository(db)
	product := seedProduct(t, db, nil)
	deleted := time.Now()
	require.NoError(t, db.Create(&models.Variant{ProductID: product.ID, Name: "Live"}).Error)
	require.NoError(t, db.Create(&models.Variant{ProductID: product.ID, Name: "Gone", DeletedAt: &deleted}).Error)
	require.NoError(t, db.Create(&models.ProductCustomField{ProductID: product.ID, Name: "b", Type: enums.CustomFieldTypeText, Position: 2}).Error)
	require.NoError(t, db.Create(&models.ProductCustomField{ProductID: product.ID, Name: "a", Type: enums.CustomFieldTypeTerms, Position: 1}).Error)

	loaded, err := repo.FindProduct(context.Background(), product.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Variants, 1)
	assert.Equal(t, "Live", loaded.Variants[0].Name)
	require.Len(t, loaded.CustomFields, 2)
	assert.Equal(t, "a", loaded.CustomFields[0].Name)
}

func TestFindProductNotFound(t *testing.T) {
	repo := NewRepository(newTestDB(t))
	_, err := repo.FindProduct(context.Background(), uuid.New())
	require.Error(t, err)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))
}

func TestIncrementProductRespectsLimit(t *testing.T) {
	db := newTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()
	product := seedProduct(t, db, intPtr(2))

	ok, err := repo.IncrementProduct(ctx, product.ID, 2)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.IncrementProduct(ctx, product.ID, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, repo.DecrementProduct(ctx, product.ID, 1))
	var reloaded models.Product
	require.NoError(t, db.First(&reloaded, "id = ?", product.ID).Error)
	assert.Equal(t, 1, reloaded.PurchaseCount)
}

func TestIncrementProductUnlimited(t *testing.T) {
	db := newTestDB(t)
	product := seedProduct(t, db, nil)
	ok, err := NewRepository(db).IncrementProduct(context.Background(), product.ID, 50)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestReserverRollsBackOnLostSlot(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	repo := NewRepository(db)
	reserver := NewReserver(repo)
	product := seedProduct(t, db, nil)
	variant := &models.Variant{ProductID: product.ID, Name: "30 minutes", DurationMinutes: intPtr(30), MaxPurchaseCount: intPtr(5)}
	require.NoError(t, db.Create(variant).Error)

	start := time.Date(2026, 11, 2, 15, 0, 0, 0, time.UTC)
	end := start.Add(30 * time.Minute)
	first := Reservation{PurchaseID: uuid.New(), ProductID: product.ID, VariantIDs: []uuid.UUID{variant.ID}, Quantity: 1, CallStart: &start, CallEnd: &end}

	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		itemErr, err := reserver.Reserve(ctx, tx, first)
		require.NoError(t, err)
		require.Nil(t, itemErr)
		return nil
	}))

	taken, err := repo.SlotTaken(ctx, product.ID, start)
	require.NoError(t, err)
	assert.True(t, taken)

	second := first
	second.PurchaseID = uuid.New()
	err = db.Transaction(func(tx *gorm.DB) error {
		itemErr, err := reserver.Reserve(ctx, tx, second)
		require.NoError(t, err)
		require.NotNil(t, itemErr)
		assert.Equal(t, checkout.ErrSlotUnavailable, itemErr.Code)
		return sql.ErrTxDone
	})
	require.ErrorIs(t, err, sql.ErrTxDone)

	var reloaded models.Variant
	require.NoError(t, db.First(&reloaded, "id = ?", variant.ID).Error)
	assert.Equal(t, 1, reloaded.PurchaseCount)

	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		return reserver.Release(ctx, tx, first)
	}))
	taken, err = repo.SlotTaken(ctx, product.ID, start)
	require.NoError(t, err)
	assert.False(t, taken)
}

func TestReserverSoldOut(t *testing.T) {
	db := newTestDB(t)
	product := seedProduct(t, db, intPtr(0))
	reserver := NewReserver(NewRepository(db))
	err := db.Transaction(func(tx *gorm.DB) error {
		itemErr, err := reserver.Reserve(context.Background(), tx, Reservation{PurchaseID: uuid.New(), ProductID: product.ID, Quantity: 1})
		require.NoError(t, err)
		require.NotNil(t, itemErr)
		assert.Equal(t, checkout.ErrSoldOut, itemErr.Code)
		return nil
	})
	require.NoError(t, err)
}
