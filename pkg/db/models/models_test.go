package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-checkout/pkg/enums"
)

func TestAutoMigrateAndGeneratedIDs(t *testing.T) {
	conn, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(All()...))

	order := &Order{BuyerEmail: "buyer@example.com"}
	require.NoError(t, conn.Create(order).Error)
	require.NotEqual(t, uuid.Nil, order.ID)

	purchase := &Purchase{
		OrderID:   order.ID,
		ProductID: uuid.New(),
		SellerID:  uuid.New(),
		Kind:      enums.PurchaseKindStandard,
		State:     enums.PurchaseStateBuilt,
		Currency:  enums.CurrencyUSD,
	}
	require.NoError(t, conn.Create(purchase).Error)
	require.NotEqual(t, uuid.Nil, purchase.ID)
	require.True(t, purchase.USDRate.IsPositive())

	var loaded Order
	require.NoError(t, conn.Preload("Purchases").First(&loaded, "id = ?", order.ID).Error)
	require.Len(t, loaded.Purchases, 1)
}

func TestCallBookingSlotIsUnique(t *testing.T) {
	conn, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&CallBooking{}))

	productID := uuid.New()
	start := mustTime(t, "2026-03-01T10:00:00Z")
	require.NoError(t, conn.Create(&CallBooking{ProductID: productID, StartTime: start, EndTime: start, PurchaseID: uuid.New()}).Error)
	require.Error(t, conn.Create(&CallBooking{ProductID: productID, StartTime: start, EndTime: start, PurchaseID: uuid.New()}).Error)
}

func mustTime(t *testing.T, value string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, value)
	require.NoError(t, err)
	return ts
}
