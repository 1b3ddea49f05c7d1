package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/shop_checkout/internal/models"
	"github.com/Skotchmaster/shop_checkout/internal/transport"
)

func TestPromoCodeService_Create(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	p, err := env.promos.Create(ctx, transport.PromoCodeRequest{Code: " save10 ", Type: "percentage", Amount: decimal.NewFromInt(10)})
	require.NoError(t, err)
	assert.Equal(t, "SAVE10", p.Code)
	assert.Nil(t, p.ExternalID)

	_, err = env.promos.Create(ctx, transport.PromoCodeRequest{Code: "Save10", Type: "flat", Amount: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, ErrConflict)

	bad := []transport.PromoCodeRequest{
		{Code: "", Type: "flat", Amount: decimal.NewFromInt(1)},
		{Code: "X", Type: "bogus", Amount: decimal.NewFromInt(1)},
		{Code: "X", Type: "flat", Amount: decimal.NewFromInt(-1)},
		{Code: "X", Type: "percentage", Amount: decimal.NewFromInt(101)},
	}
	for _, req := range bad {
		_, err := env.promos.Create(ctx, req)
		assert.ErrorIs(t, err, ErrValidation, "%+v", req)
	}
}

func TestPromoCodeService_Apply(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	past := time.Now().Add(-time.Minute).UTC()
	localPromo(t, env, "SAVE10", models.PromoPercentage, "10", nil)
	localPromo(t, env, "BIG", models.PromoFlat, "5000", nil)
	localPromo(t, env, "OLD", models.PromoFlat, "10", &past)

	res, err := env.promos.Apply(ctx, "save10", 1000)
	require.NoError(t, err)
	assert.Equal(t, transport.ApplyResult{Code: "SAVE10", OriginalAmount: 1000, Discount: 100, FinalAmount: 900}, *res)

	res, err = env.promos.Apply(ctx, "BIG", 1000)
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.FinalAmount)

	_, err = env.promos.Apply(ctx, "OLD", 1000)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = env.promos.Apply(ctx, "NOPE", 1000)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = env.promos.Apply(ctx, "SAVE10", 0)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestPromoCodeService_UpdateReplacesCoupon(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := localPromo(t, env, "SAVE10", models.PromoPercentage, "10", nil)
	_, err := env.syncer.SyncPromo(ctx, p)
	require.NoError(t, err)
	oldID := *p.ExternalID

	amount := decimal.NewFromInt(15)
	updated, err := env.promos.Update(ctx, p.ID, transport.PromoCodeUpdate{Amount: &amount})
	require.NoError(t, err)

	assert.Equal(t, []string{oldID}, env.gw.deleted)
	require.NotNil(t, updated.ExternalID)
	assert.NotEqual(t, oldID, *updated.ExternalID)
	assert.InDelta(t, 15.0, env.gw.coupons[*updated.ExternalID].PercentOff, 0.0001)

	got, err := env.repo.GetPromoCode(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, *updated.ExternalID, *got.ExternalID)
	assert.True(t, got.Amount.Equal(amount))
}

func TestPromoCodeService_UpdateRelinksWhenDeleteFails(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := localPromo(t, env, "SAVE10", models.PromoPercentage, "10", nil)
	_, err := env.syncer.SyncPromo(ctx, p)
	require.NoError(t, err)
	oldID := *p.ExternalID

	env.gw.deleteErr = errBoom
	amount := decimal.NewFromInt(20)
	_, err = env.promos.Update(ctx, p.ID, transport.PromoCodeUpdate{Amount: &amount})
	require.ErrorIs(t, err, ErrExternal)

	got, err := env.repo.GetPromoCode(ctx, p.ID)
	require.NoError(t, err)
	require.NotNil(t, got.ExternalID)
	assert.Equal(t, oldID, *got.ExternalID)
}

func TestPromoCodeService_UpdateUnsyncedAndConflicts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := localPromo(t, env, "A", models.PromoFlat, "10", nil)
	localPromo(t, env, "B", models.PromoFlat, "10", nil)

	code := "b"
	_, err := env.promos.Update(ctx, a.ID, transport.PromoCodeUpdate{Code: &code})
	assert.ErrorIs(t, err, ErrConflict)

	expiry := time.Now().Add(time.Hour).UTC()
	code = "a2"
	got, err := env.promos.Update(ctx, a.ID, transport.PromoCodeUpdate{Code: &code, ExpiryDate: &expiry})
	require.NoError(t, err)
	assert.Equal(t, "A2", got.Code)
	assert.Nil(t, got.ExternalID)
	assert.Zero(t, env.gw.couponCount())

	got, err = env.promos.Update(ctx, a.ID, transport.PromoCodeUpdate{ClearExpiry: true})
	require.NoError(t, err)
	assert.Nil(t, got.ExpiryDate)

	_, err = env.promos.Update(ctx, uuid.New(), transport.PromoCodeUpdate{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPromoCodeService_Delete(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := localPromo(t, env, "SAVE10", models.PromoPercentage, "10", nil)
	_, err := env.syncer.SyncPromo(ctx, p)
	require.NoError(t, err)

	env.gw.deleteErr = errBoom
	require.ErrorIs(t, env.promos.Delete(ctx, p.ID), ErrExternal)
	_, err = env.repo.GetPromoCode(ctx, p.ID)
	require.NoError(t, err, "row must survive a failed remote delete")

	env.gw.deleteErr = nil
	require.NoError(t, env.promos.Delete(ctx, p.ID))
	assert.Equal(t, []string{*p.ExternalID}, env.gw.deleted)
	_, err = env.repo.GetPromoCode(ctx, p.ID)
	assert.Error(t, err)

	assert.ErrorIs(t, env.promos.Delete(ctx, p.ID), ErrNotFound)
}
