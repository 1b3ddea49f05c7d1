package repo_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/shop_checkout/internal/models"
	"github.com/Skotchmaster/shop_checkout/internal/repo/repotest"
)

func TestAddToCart_Merges(t *testing.T) {
	r := repotest.NewRepo(t)
	ctx := context.Background()
	user, product := uuid.New(), uuid.New()

	require.NoError(t, r.AddToCart(ctx, &models.CartItem{UserID: user, ProductID: product, Quantity: 2}))
	item := &models.CartItem{UserID: user, ProductID: product, Quantity: 3, Note: "gift"}
	require.NoError(t, r.AddToCart(ctx, item))
	assert.Equal(t, int64(5), item.Quantity)

	items, err := r.GetCart(ctx, user)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "gift", items[0].Note)
}

func TestDeleteCart_Idempotent(t *testing.T) {
	r := repotest.NewRepo(t)
	ctx := context.Background()
	user := uuid.New()

	require.NoError(t, r.AddToCart(ctx, &models.CartItem{UserID: user, ProductID: uuid.New(), Quantity: 1}))
	require.NoError(t, r.AddToCart(ctx, &models.CartItem{UserID: user, ProductID: uuid.New(), Quantity: 1}))

	n, err := r.DeleteCart(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = r.DeleteCart(ctx, user)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRemoveFromCart(t *testing.T) {
	r := repotest.NewRepo(t)
	ctx := context.Background()
	user, product := uuid.New(), uuid.New()

	require.NoError(t, r.AddToCart(ctx, &models.CartItem{UserID: user, ProductID: product, Quantity: 1}))

	removed, err := r.RemoveFromCart(ctx, user, product)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = r.RemoveFromCart(ctx, user, product)
	require.NoError(t, err)
	assert.False(t, removed)
}
