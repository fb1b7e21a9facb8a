package dbkeeper

import (
	"context"
	"os"
	"testing"

	"github.com/drstein77/groceryweb/internal/logger"
	"github.com/drstein77/groceryweb/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `50\% off`, escapeLike("50% off"))
	assert.Equal(t, `a\_b`, escapeLike("a_b"))
	assert.Equal(t, `c:\\tmp`, escapeLike(`c:\tmp`))
	assert.Equal(t, "apples", escapeLike("apples"))
}

func TestNewDBKeeper_EmptyDSN(t *testing.T) {
	kp, err := NewDBKeeper(context.Background(), func() string { return "" }, "../../migrations", logger.Nop())
	assert.Nil(t, kp)
	assert.ErrorIs(t, err, ErrEmptyDSN)
}

func TestNilPool(t *testing.T) {
	kp := &DBKeeper{log: logger.Nop()}
	ctx := context.Background()

	assert.False(t, kp.Ping(ctx))
	assert.False(t, kp.Close())

	_, err := kp.SearchProducts(ctx, "x", 10)
	assert.Error(t, err)
	_, err = kp.InsertProducts(ctx, []models.Product{{Name: "x"}})
	assert.Error(t, err)
	_, err = kp.InsertProducts(ctx, nil)
	assert.Error(t, err)
}

// newTestKeeper connects to TEST_DATABASE_URI and empties the products
// table. Tests using it are skipped when the variable is unset.
func newTestKeeper(t *testing.T) *DBKeeper {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URI")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URI is not set")
	}

	ctx := context.Background()
	kp, err := NewDBKeeper(ctx, func() string { return dsn }, "../../migrations", logger.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { kp.Close() })

	_, err = kp.pool.Exec(ctx, "TRUNCATE products RESTART IDENTITY")
	require.NoError(t, err)
	return kp
}

func TestInsertAndSearch(t *testing.T) {
	kp := newTestKeeper(t)
	ctx := context.Background()

	products := []models.Product{
		{Name: "Granny Smith Apples", Category: "Fruit", Price: 1.5, Quantity: 10},
		{Name: "Whole Milk", Category: "Dairy", Price: 0.99, Quantity: 4},
		{Name: "100% Rye Bread", Category: "", Price: 2.25},
	}

	resp, err := kp.InsertProducts(ctx, products)
	require.NoError(t, err)
	assert.Equal(t, 3, resp.Imported)
	assert.Equal(t, 3, resp.TotalItems)
	assert.Equal(t, 2, resp.TotalCategories)
	assert.InDelta(t, 4.74, resp.TotalPrice, 0.0001)

	all, err := kp.GetAllProducts(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "", all[2].Category)
	assert.False(t, all[0].CreatedAt.IsZero())

	found, err := kp.SearchProducts(ctx, "whole milk", 0)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "Whole Milk", found[0].Name)

	found, err = kp.SearchProducts(ctx, "fruit", 0)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "Granny Smith Apples", found[0].Name)

	found, err = kp.SearchProducts(ctx, "%", 0)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "100% Rye Bread", found[0].Name)

	found, err = kp.SearchProducts(ctx, "dragonfruit", 0)
	require.NoError(t, err)
	assert.Empty(t, found)

	found, err = kp.SearchProducts(ctx, "", 2)
	require.NoError(t, err)
	assert.Len(t, found, 2)
}

func TestInsertProduct(t *testing.T) {
	kp := newTestKeeper(t)
	ctx := context.Background()

	stored, err := kp.InsertProduct(ctx, models.Product{Name: "Eggs", Category: "Dairy", Price: 3.1, Quantity: 12})
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.ID)
	assert.False(t, stored.CreatedAt.IsZero())

	resp, err := kp.InsertProducts(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, resp.Imported)
	assert.Equal(t, 1, resp.TotalItems)
	assert.Equal(t, 1, resp.TotalCategories)
	assert.InDelta(t, 3.1, resp.TotalPrice, 0.0001)
	assert.True(t, kp.Ping(ctx))
}
