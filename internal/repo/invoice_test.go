package repo_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/shop_checkout/internal/models"
	"github.com/Skotchmaster/shop_checkout/internal/repo"
	"github.com/Skotchmaster/shop_checkout/internal/repo/repotest"
)

func TestAppendInvoices_SkipsRecorded(t *testing.T) {
	r := repotest.NewRepo(t)
	ctx := context.Background()

	o, err := r.CreateOrder(ctx, newOrder("inv@x.io"))
	require.NoError(t, err)

	entries := []models.InvoiceEntry{
		{InvoiceID: "in_1", InvoiceNumber: "A-0001", Total: 2000},
		{InvoiceID: "in_2", InvoiceNumber: "A-0002", Total: 500},
	}

	added, err := r.AppendInvoices(ctx, "inv@x.io", o.ID, entries)
	require.NoError(t, err)
	assert.Equal(t, 2, added)

	added, err = r.AppendInvoices(ctx, "inv@x.io", o.ID, entries)
	require.NoError(t, err)
	assert.Zero(t, added)

	ledger, err := r.GetUserInvoice(ctx, "inv@x.io")
	require.NoError(t, err)
	assert.Len(t, ledger.Entries, 2)
	assert.Equal(t, o.ID, ledger.Entries[0].OrderID)
}

func TestAppendInvoices_RepeatCustomer(t *testing.T) {
	r := repotest.NewRepo(t)
	ctx := context.Background()

	first, err := r.CreateOrder(ctx, newOrder("again@x.io"))
	require.NoError(t, err)
	second, err := r.CreateOrder(ctx, newOrder("again@x.io"))
	require.NoError(t, err)

	added, err := r.AppendInvoices(ctx, "again@x.io", first.ID, []models.InvoiceEntry{{InvoiceID: "in_1", Total: 2000}})
	require.NoError(t, err)
	assert.Equal(t, 1, added)

	added, err = r.AppendInvoices(ctx, "again@x.io", second.ID, []models.InvoiceEntry{{InvoiceID: "in_2", Total: 900}})
	require.NoError(t, err)
	assert.Equal(t, 1, added)

	ledger, err := r.GetUserInvoice(ctx, "again@x.io")
	require.NoError(t, err)
	require.Len(t, ledger.Entries, 2)
	orders := []interface{}{ledger.Entries[0].OrderID, ledger.Entries[1].OrderID}
	assert.ElementsMatch(t, []interface{}{first.ID, second.ID}, orders)
}

func TestListInvoiceEntries(t *testing.T) {
	r := repotest.NewRepo(t)
	ctx := context.Background()

	o, err := r.CreateOrder(ctx, newOrder("inv@x.io"))
	require.NoError(t, err)
	_, err = r.AppendInvoices(ctx, "inv@x.io", o.ID, []models.InvoiceEntry{
		{InvoiceID: "in_a", InvoiceNumber: "N-1", Total: 300},
		{InvoiceID: "in_b", InvoiceNumber: "N-2", Total: 100},
		{InvoiceID: "in_c", InvoiceNumber: "N-3", Total: 200},
	})
	require.NoError(t, err)
	_, err = r.AppendInvoices(ctx, "someone@x.io", o.ID, []models.InvoiceEntry{{InvoiceID: "in_z"}})
	require.NoError(t, err)

	entries, total, err := r.ListInvoiceEntries(ctx, repo.InvoiceFilter{
		Email: "inv@x.io",
		Page:  repo.Page{Sort: "total", Limit: 2},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, entries, 2)
	assert.Equal(t, "in_b", entries[0].InvoiceID)
	assert.Equal(t, "in_c", entries[1].InvoiceID)

	entries, total, err = r.ListInvoiceEntries(ctx, repo.InvoiceFilter{Email: "inv@x.io", Search: "N-3"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, "in_c", entries[0].InvoiceID)
}
