package repo

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/DarkDeveloper-Plant/Anbarinoo/internal/db/dbtest"
	"github.com/DarkDeveloper-Plant/Anbarinoo/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStockedProduct(t *testing.T, r *GormRepo, userID, count uint) *models.Product {
	t.Helper()
	p := &models.Product{Name: "nails", Price: 1, Count: count, UserID: userID}
	require.NoError(t, r.CreateProduct(context.Background(), p))
	return p
}

func productCount(t *testing.T, r *GormRepo, userID, id uint) uint {
	t.Helper()
	p, err := r.GetProduct(context.Background(), userID, id)
	require.NoError(t, err)
	return p.Count
}

func TestGormRepo_TradesAdjustStock(t *testing.T) {
	t.Parallel()

	r := New(dbtest.New(t))
	ctx := context.Background()
	p := newStockedProduct(t, r, 1, 5)

	buy := &models.Trade{Kind: models.TradeBuy, ProductID: p.ID, UserID: 1, Count: 10, Price: 2}
	require.NoError(t, r.CreateTrade(ctx, buy))
	assert.NotZero(t, buy.ID)
	assert.EqualValues(t, 15, productCount(t, r, 1, p.ID))

	sell := &models.Trade{Kind: models.TradeSell, ProductID: p.ID, UserID: 1, Count: 12, Price: 3}
	require.NoError(t, r.CreateTrade(ctx, sell))
	assert.EqualValues(t, 3, productCount(t, r, 1, p.ID))

	// deleting the sell puts the stock back
	deleted, err := r.DeleteTrade(ctx, 1, models.TradeSell, sell.ID)
	require.NoError(t, err)
	assert.Equal(t, sell.ID, deleted.ID)
	assert.EqualValues(t, 15, productCount(t, r, 1, p.ID))

	_, err = r.GetTrade(ctx, 1, models.TradeSell, sell.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	got, err := r.GetTrade(ctx, 1, models.TradeBuy, buy.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 10, got.Count)

	_, err = r.GetTrade(ctx, 1, models.TradeSell, buy.ID)
	assert.ErrorIs(t, err, ErrNotFound, "kind is part of the lookup")
}

func TestGormRepo_SellBeyondStockIsRefused(t *testing.T) {
	t.Parallel()

	r := New(dbtest.New(t))
	ctx := context.Background()
	p := newStockedProduct(t, r, 1, 2)

	err := r.CreateTrade(ctx, &models.Trade{Kind: models.TradeSell, ProductID: p.ID, UserID: 1, Count: 3, Price: 1})
	require.ErrorIs(t, err, ErrInsufficientStock)
	assert.EqualValues(t, 2, productCount(t, r, 1, p.ID))

	total, _, err := r.ListTrades(ctx, TradeFilter{UserID: 1}, 0, 10)
	require.NoError(t, err)
	assert.Zero(t, total, "a refused trade is not stored")

	// removing a buy whose stock was already sold is refused as well
	buy := &models.Trade{Kind: models.TradeBuy, ProductID: p.ID, UserID: 1, Count: 4, Price: 1}
	require.NoError(t, r.CreateTrade(ctx, buy))
	require.NoError(t, r.CreateTrade(ctx, &models.Trade{Kind: models.TradeSell, ProductID: p.ID, UserID: 1, Count: 5, Price: 1}))
	_, err = r.DeleteTrade(ctx, 1, models.TradeBuy, buy.ID)
	require.ErrorIs(t, err, ErrInsufficientStock)
	assert.EqualValues(t, 1, productCount(t, r, 1, p.ID))
}

func TestGormRepo_TradeOnForeignProduct(t *testing.T) {
	t.Parallel()

	r := New(dbtest.New(t))
	ctx := context.Background()
	p := newStockedProduct(t, r, 1, 2)

	err := r.CreateTrade(ctx, &models.Trade{Kind: models.TradeBuy, ProductID: p.ID, UserID: 2, Count: 1, Price: 1})
	require.ErrorIs(t, err, ErrNotFound)
	assert.EqualValues(t, 2, productCount(t, r, 1, p.ID))
}

func TestGormRepo_ConcurrentSellsNeverOversell(t *testing.T) {
	t.Parallel()

	r := New(dbtest.New(t))
	ctx := context.Background()
	p := newStockedProduct(t, r, 1, 5)

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		ok  int
		low int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := r.CreateTrade(ctx, &models.Trade{Kind: models.TradeSell, ProductID: p.ID, UserID: 1, Count: 1, Price: 1})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case assert.ErrorIs(t, err, ErrInsufficientStock):
				low++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, ok)
	assert.Equal(t, 3, low)
	assert.Zero(t, productCount(t, r, 1, p.ID))
}

func TestGormRepo_ListTradesFilters(t *testing.T) {
	t.Parallel()

	r := New(dbtest.New(t))
	ctx := context.Background()
	a := newStockedProduct(t, r, 1, 100)
	b := newStockedProduct(t, r, 1, 100)

	for _, tr := range []*models.Trade{
		{Kind: models.TradeBuy, ProductID: a.ID, UserID: 1, Count: 1, Price: 1},
		{Kind: models.TradeBuy, ProductID: b.ID, UserID: 1, Count: 1, Price: 1},
		{Kind: models.TradeSell, ProductID: a.ID, UserID: 1, Count: 1, Price: 1},
	} {
		require.NoError(t, r.CreateTrade(ctx, tr))
	}

	total, items, err := r.ListTrades(ctx, TradeFilter{UserID: 1, Kind: models.TradeBuy}, 0, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, items, 2)

	total, _, err = r.ListTrades(ctx, TradeFilter{UserID: 1, ProductID: a.ID}, 0, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)

	total, _, err = r.ListTrades(ctx, TradeFilter{UserID: 2}, 0, 10)
	require.NoError(t, err)
	assert.Zero(t, total)

	future := time.Now().Add(time.Hour)
	all, err := r.AllTrades(ctx, TradeFilter{UserID: 1, From: future})
	require.NoError(t, err)
	assert.Empty(t, all)

	all, err = r.AllTrades(ctx, TradeFilter{UserID: 1, To: future})
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestGormRepo_DeleteProductDropsTrades(t *testing.T) {
	t.Parallel()

	r := New(dbtest.New(t))
	ctx := context.Background()
	p := newStockedProduct(t, r, 1, 0)
	require.NoError(t, r.CreateTrade(ctx, &models.Trade{Kind: models.TradeBuy, ProductID: p.ID, UserID: 1, Count: 3, Price: 1}))

	require.NoError(t, r.DeleteProduct(ctx, 1, p.ID))

	total, _, err := r.ListTrades(ctx, TradeFilter{UserID: 1}, 0, 10)
	require.NoError(t, err)
	assert.Zero(t, total)
}
