package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"earthworks-ledger/internal/model"
)

func TestMonthSummary(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	work := model.NewWorkDays()
	work.Append("חפירה", "1000", "2025-06-01")
	work.Append("פינוי", "250,5", "2025-06-02")
	h.sync.Save(ctx, partition(t, model.CategoryWorkDays, 2025, 6), work)

	exp := model.NewExpenses()
	exp.Append("סולר", "300")
	exp.Append("junk", "abc")
	h.sync.Save(ctx, partition(t, model.CategoryExpenses, 2025, 6), exp)

	cust := model.NewCustomers()
	cust.Active[1].Name = "יוסי <בנייה>"
	cust.Active[1].Status = "להתקשר"
	h.sync.Save(ctx, partition(t, model.CategoryCustomers, 2025, 6), cust)

	h.invoices.Attach(ctx, []Upload{{Name: "a.png", MimeType: "image/png", Data: testPNG(t, 4, 4)}}, 6, 2025)

	sum, err := NewSummaryService(h.sync, h.invoices).Month(ctx, 2025, 6)
	require.NoError(t, err)
	require.Equal(t, 2, sum.WorkDays)
	require.Equal(t, "1250.5", sum.WorkTotal.String())
	require.Equal(t, "300", sum.ExpenseTotal.String())
	require.Equal(t, "950.5", sum.Net.String())
	require.Equal(t, 1, sum.Invoices)
	require.Len(t, sum.FollowUps, 1)

	text := sum.Text()
	require.Contains(t, text, "יוני 2025")
	require.Contains(t, text, "₪950.50")
	require.Contains(t, text, "יוסי &lt;בנייה&gt;")
	require.Contains(t, text, "<i>(להתקשר)</i>")
}

func TestMonthSummaryRejectsBadMonth(t *testing.T) {
	h := newHarness(t)
	_, err := NewSummaryService(h.sync, h.invoices).Month(context.Background(), 2025, 0)
	require.ErrorIs(t, err, model.ErrInvalidPartition)
}
