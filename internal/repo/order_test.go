package repo_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/shop_checkout/internal/models"
	"github.com/Skotchmaster/shop_checkout/internal/repo"
	"github.com/Skotchmaster/shop_checkout/internal/repo/repotest"
)

func newOrder(email string) *models.Order {
	return &models.Order{
		Email:             email,
		Amount:            2000,
		Currency:          "inr",
		CartID:            uuid.New(),
		BillingAddressID:  "bill-1",
		ShippingAddressID: "ship-1",
		Billing:           models.AddressSnapshot{FirstName: "Asha", LastName: "Rao"},
		Shipping:          models.AddressSnapshot{FirstName: "Ravi", LastName: "Kumar"},
		Items: []models.OrderItem{
			{ProductID: uuid.New(), Name: "A", UnitPrice: 500, Quantity: 2},
			{ProductID: uuid.New(), Name: "B", UnitPrice: 1000, Quantity: 1},
		},
	}
}

func TestCreateAndGetOrder(t *testing.T) {
	r := repotest.NewRepo(t)
	ctx := context.Background()

	in := newOrder("a@x.io")
	in.PromoCodes = pq.StringArray{"SAVE10", "FLAT300"}
	o, err := r.CreateOrder(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, o.Status)
	assert.Equal(t, int64(1), o.Version)

	got, err := r.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Len(t, got.Items, 2)
	assert.Nil(t, got.SessionID)
	assert.Equal(t, "Asha", got.Billing.FirstName)
	assert.Equal(t, pq.StringArray{"SAVE10", "FLAT300"}, got.PromoCodes)

	_, err = r.GetOrder(ctx, uuid.New())
	assert.True(t, repo.IsNotFound(err))
}

func TestAttachSession_Once(t *testing.T) {
	r := repotest.NewRepo(t)
	ctx := context.Background()

	o, err := r.CreateOrder(ctx, newOrder("a@x.io"))
	require.NoError(t, err)

	require.NoError(t, r.AttachSession(ctx, o.ID, "cs_1", "co_adhoc"))
	assert.ErrorIs(t, r.AttachSession(ctx, o.ID, "cs_2", ""), repo.ErrSessionAlreadySet)
	assert.True(t, repo.IsNotFound(r.AttachSession(ctx, uuid.New(), "cs_3", "")))

	got, err := r.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	require.NotNil(t, got.SessionID)
	assert.Equal(t, "cs_1", *got.SessionID)
	assert.Equal(t, "co_adhoc", got.AdHocCouponID)
}

func TestTransitionOrder(t *testing.T) {
	r := repotest.NewRepo(t)
	ctx := context.Background()

	o, err := r.CreateOrder(ctx, newOrder("a@x.io"))
	require.NoError(t, err)

	updated, changed, err := r.TransitionOrder(ctx, o.ID, func(o *models.Order) (bool, error) {
		o.Status = models.StatusComplete
		o.Amount = 1900
		return true, nil
	})
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, int64(2), updated.Version)

	got, err := r.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusComplete, got.Status)
	assert.Equal(t, int64(1900), got.Amount)

	_, changed, err = r.TransitionOrder(ctx, o.ID, func(*models.Order) (bool, error) { return false, nil })
	require.NoError(t, err)
	assert.False(t, changed)

	boom := errors.New("rejected")
	_, _, err = r.TransitionOrder(ctx, o.ID, func(*models.Order) (bool, error) { return false, boom })
	assert.ErrorIs(t, err, boom)
}

func TestTransitionOrder_RetriesOnConcurrentWrite(t *testing.T) {
	r := repotest.NewRepo(t)
	ctx := context.Background()

	o, err := r.CreateOrder(ctx, newOrder("a@x.io"))
	require.NoError(t, err)

	calls := 0
	_, changed, err := r.TransitionOrder(ctx, o.ID, func(cur *models.Order) (bool, error) {
		calls++
		if calls == 1 {
			// another writer lands between our read and our write
			require.NoError(t, r.DB.Model(&models.Order{}).Where("id = ?", cur.ID).
				Update("version", cur.Version+1).Error)
		}
		cur.Status = models.StatusCancelled
		return true, nil
	})
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, 2, calls)
}

func TestTransitionOrder_GivesUp(t *testing.T) {
	r := repotest.NewRepo(t)
	ctx := context.Background()

	o, err := r.CreateOrder(ctx, newOrder("a@x.io"))
	require.NoError(t, err)

	_, _, err = r.TransitionOrder(ctx, o.ID, func(cur *models.Order) (bool, error) {
		require.NoError(t, r.DB.Model(&models.Order{}).Where("id = ?", cur.ID).
			Update("version", cur.Version+1).Error)
		cur.Status = models.StatusCancelled
		return true, nil
	})
	assert.ErrorIs(t, err, repo.ErrStaleOrder)
}

func TestListOrders_FilterSearchSort(t *testing.T) {
	r := repotest.NewRepo(t)
	ctx := context.Background()

	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		o := newOrder("list@x.io")
		o.Amount = int64(100 * (i + 1))
		o.CreatedAt = base.Add(time.Duration(i) * 24 * time.Hour)
		if i == 4 {
			o.Billing.FirstName = "Zoya"
		}
		_, err := r.CreateOrder(ctx, o)
		require.NoError(t, err)
	}
	_, err := r.CreateOrder(ctx, newOrder("other@x.io"))
	require.NoError(t, err)

	orders, total, err := r.ListOrders(ctx, repo.OrderFilter{
		Email: "list@x.io",
		Page:  repo.Page{Sort: "amount", Desc: true, Limit: 2},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	require.Len(t, orders, 2)
	assert.Equal(t, int64(500), orders[0].Amount)
	assert.Len(t, orders[0].Items, 2)

	orders, total, err = r.ListOrders(ctx, repo.OrderFilter{Email: "list@x.io", Search: "zoy"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, "Zoya", orders[0].Billing.FirstName)

	from := base.Add(24 * time.Hour)
	to := base.Add(2*24*time.Hour + time.Hour)
	_, total, err = r.ListOrders(ctx, repo.OrderFilter{Email: "list@x.io", From: &from, To: &to})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)

	_, total, err = r.ListOrders(ctx, repo.OrderFilter{Email: "list@x.io", Status: models.StatusComplete})
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestFindOrphans(t *testing.T) {
	r := repotest.NewRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	old := newOrder("a@x.io")
	old.CreatedAt = now.Add(-2 * time.Hour)
	_, err := r.CreateOrder(ctx, old)
	require.NoError(t, err)

	withSession := newOrder("a@x.io")
	withSession.CreatedAt = now.Add(-2 * time.Hour)
	_, err = r.CreateOrder(ctx, withSession)
	require.NoError(t, err)
	require.NoError(t, r.AttachSession(ctx, withSession.ID, "cs_x", ""))

	_, err = r.CreateOrder(ctx, newOrder("a@x.io"))
	require.NoError(t, err)

	orphans, err := r.FindOrphans(ctx, now.Add(-30*time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, orphans, 1)
	assert.Equal(t, old.ID, orphans[0].ID)
}
