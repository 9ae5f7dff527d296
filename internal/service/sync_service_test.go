package service

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"earthworks-ledger/internal/model"
)

func TestLoadWithNothingStoredReturnsSkeleton(t *testing.T) {
	h := newHarness(t)
	doc, src, err := h.sync.Load(context.Background(), partition(t, model.CategoryExpenses, 2025, 6))
	require.NoError(t, err)
	require.Equal(t, SourceSkeleton, src)
	require.Len(t, doc.(*model.Expenses).Rows, 2)
	for _, r := range doc.(*model.Expenses).Rows {
		require.Empty(t, r.Text)
		require.Empty(t, r.Cost)
	}
}

func TestSaveThenLoadWithCloudDown(t *testing.T) {
	ctx := context.Background()
	for _, cat := range model.DocumentCategories {
		t.Run(string(cat), func(t *testing.T) {
			h := newHarness(t)
			h.cloud.SetAvailable(false)
			p := partition(t, cat, 2025, 4)

			doc, err := model.Skeleton(cat)
			require.NoError(t, err)
			doc.AddRow("1")

			res := h.sync.Save(ctx, p, doc)
			require.True(t, res.Local)
			require.False(t, res.Cloud)

			got, src, err := h.sync.Load(ctx, p)
			require.NoError(t, err)
			require.Equal(t, SourceLocal, src)
			require.Equal(t, doc, got)
		})
	}
}

func TestSaveWritesBothStores(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	p := partition(t, model.CategoryWorkDays, 2025, 5)
	doc := model.NewWorkDays()
	doc.Rows[0].Text = "חפירת יסודות"

	res := h.sync.Save(ctx, p, doc)
	require.Equal(t, SaveResult{Local: true, Cloud: true}, res)

	raw, ok := h.cloud.Document("workdays", "2025-05")
	require.True(t, ok)
	require.Contains(t, string(raw), "חפירת יסודות")

	local, ok := h.local.Get(ctx, p)
	require.True(t, ok)
	require.Equal(t, doc, local)
}

func TestLoadPrefersCloudAndMirrors(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	p := partition(t, model.CategoryCustomers, 2025, 2)

	cloudDoc := model.NewCustomers()
	cloudDoc.Active[0].Name = "מהענן"
	data, err := json.Marshal(cloudDoc)
	require.NoError(t, err)
	h.cloud.PutRaw("customers", "2025-02", data)

	localDoc := model.NewCustomers()
	localDoc.Active[0].Name = "מקומי"
	require.NoError(t, h.local.Put(ctx, p, localDoc))

	got, src, err := h.sync.Load(ctx, p)
	require.NoError(t, err)
	require.Equal(t, SourceCloud, src)
	require.Equal(t, "מהענן", got.(*model.Customers).Active[0].Name)

	h.sync.Wait()
	mirrored, ok := h.local.Get(ctx, p)
	require.True(t, ok)
	require.Equal(t, "מהענן", mirrored.(*model.Customers).Active[0].Name)
}

func TestLoadRejectsInvalidCloudShape(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	p := partition(t, model.CategoryCustomers, 2025, 2)
	h.cloud.PutRaw("customers", "2025-02", json.RawMessage(`{"activeCustomers":[]}`))

	localDoc := model.NewCustomers()
	localDoc.Saved[0].Name = "שמור"
	require.NoError(t, h.local.Put(ctx, p, localDoc))

	got, src, err := h.sync.Load(ctx, p)
	require.NoError(t, err)
	require.Equal(t, SourceLocal, src)
	require.Equal(t, "שמור", got.(*model.Customers).Saved[0].Name)
}

func TestMirrorDoesNotOverwriteLaterSave(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	p := partition(t, model.CategoryExpenses, 2025, 8)

	old := model.NewExpenses()
	old.Rows[0].Text = "old"
	data, err := json.Marshal(old)
	require.NoError(t, err)
	h.cloud.PutRaw("expenses", "2025-08", data)

	generation := h.sync.generation(p)
	fresh := model.NewExpenses()
	fresh.Rows[0].Text = "fresh"
	h.sync.Save(ctx, p, fresh)
	h.sync.mirror(p, old, generation)
	h.sync.Wait()

	got, ok := h.local.Get(ctx, p)
	require.True(t, ok)
	require.Equal(t, "fresh", got.(*model.Expenses).Rows[0].Text)
}

func TestToolTitlePropagatesToOtherPartitions(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.cloud.SetAvailable(false)

	march := partition(t, model.CategoryTools, 2024, 3)
	june := partition(t, model.CategoryTools, 2025, 6)
	h.sync.Save(ctx, march, model.NewTools(nil))

	_, err := h.bench.RenameToolTable(ctx, june, 2, "מחפר זחלי")
	require.NoError(t, err)

	stored, ok := h.local.Get(ctx, march)
	require.True(t, ok)
	require.Equal(t, "מחפר זחלי", stored.(*model.Tools).Tables[1].Title)

	got, _, err := h.sync.Load(ctx, march)
	require.NoError(t, err)
	require.Equal(t, "מחפר זחלי", got.(*model.Tools).Tables[1].Title)

	fresh, src, err := h.sync.Load(ctx, partition(t, model.CategoryTools, 2026, 1))
	require.NoError(t, err)
	require.Equal(t, SourceSkeleton, src)
	require.Equal(t, "מחפר זחלי", fresh.(*model.Tools).Tables[1].Title)
	require.Equal(t, model.DefaultToolTitle(1), fresh.(*model.Tools).Tables[0].Title)
}

func TestLoadRejectsInvoiceCategory(t *testing.T) {
	h := newHarness(t)
	_, _, err := h.sync.Load(context.Background(), partition(t, model.CategoryInvoices, 2025, 1))
	require.ErrorIs(t, err, model.ErrUnknownCategory)
}
