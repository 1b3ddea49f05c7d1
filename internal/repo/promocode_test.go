package repo_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/shop_checkout/internal/models"
	"github.com/Skotchmaster/shop_checkout/internal/repo/repotest"
)

func strptr(s string) *string { return &s }

func TestPromoCode_UniqueCode(t *testing.T) {
	r := repotest.NewRepo(t)
	ctx := context.Background()

	require.NoError(t, r.CreatePromoCode(ctx, &models.PromoCode{Code: "SAVE10", Type: models.PromoPercentage, Amount: decimal.NewFromInt(10)}))
	err := r.CreatePromoCode(ctx, &models.PromoCode{Code: "SAVE10", Type: models.PromoFlat, Amount: decimal.NewFromInt(5)})
	require.Error(t, err)

	p, err := r.GetPromoCodeByCode(ctx, "SAVE10")
	require.NoError(t, err)
	assert.True(t, p.Amount.Equal(decimal.NewFromInt(10)))
}

func TestListUnsyncedPromoCodes(t *testing.T) {
	r := repotest.NewRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()
	past := now.Add(-time.Hour)

	require.NoError(t, r.CreatePromoCode(ctx, &models.PromoCode{Code: "NEW", Type: models.PromoFlat, Amount: decimal.NewFromInt(100)}))
	require.NoError(t, r.CreatePromoCode(ctx, &models.PromoCode{Code: "OLD", Type: models.PromoFlat, Amount: decimal.NewFromInt(100), ExpiryDate: &past}))
	require.NoError(t, r.CreatePromoCode(ctx, &models.PromoCode{Code: "SYNCED", Type: models.PromoFlat, Amount: decimal.NewFromInt(100), ExternalID: strptr("co_1")}))

	out, err := r.ListUnsyncedPromoCodes(ctx, now, 50)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "NEW", out[0].Code)
}

func TestSetExternalID_OnlyWhenNull(t *testing.T) {
	r := repotest.NewRepo(t)
	ctx := context.Background()

	p := &models.PromoCode{Code: "X", Type: models.PromoFlat, Amount: decimal.NewFromInt(1)}
	require.NoError(t, r.CreatePromoCode(ctx, p))

	ok, err := r.SetExternalID(ctx, p.ID, "co_a")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.SetExternalID(ctx, p.ID, "co_b")
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := r.GetPromoCodeByExternalID(ctx, "co_a")
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)
}

func TestDeletePromoCodeByExternalID_OnlyMatching(t *testing.T) {
	r := repotest.NewRepo(t)
	ctx := context.Background()

	require.NoError(t, r.CreatePromoCode(ctx, &models.PromoCode{Code: "A", Type: models.PromoFlat, Amount: decimal.NewFromInt(1), ExternalID: strptr("co_a")}))
	require.NoError(t, r.CreatePromoCode(ctx, &models.PromoCode{Code: "B", Type: models.PromoFlat, Amount: decimal.NewFromInt(1), ExternalID: strptr("co_b")}))
	require.NoError(t, r.CreatePromoCode(ctx, &models.PromoCode{Code: "C", Type: models.PromoFlat, Amount: decimal.NewFromInt(1)}))

	deleted, err := r.DeletePromoCodeByExternalID(ctx, "co_a")
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = r.DeletePromoCodeByExternalID(ctx, "co_a")
	require.NoError(t, err)
	assert.False(t, deleted)

	all, err := r.ListPromoCodes(ctx)
	require.NoError(t, err)
	codes := []string{}
	for _, p := range all {
		codes = append(codes, p.Code)
	}
	assert.ElementsMatch(t, []string{"B", "C"}, codes)
}
