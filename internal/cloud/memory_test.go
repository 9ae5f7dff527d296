package cloud

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"earthworks-ledger/internal/model"
)

func TestMemoryDocuments(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	_, ok, err := m.LoadDocument(ctx, "expenses", "2025-06")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, m.SaveDocument(ctx, "expenses", "2025-06", json.RawMessage(`{"rows":[]}`)))
	data, ok, err := m.LoadDocument(ctx, "expenses", "2025-06")
	require.NoError(t, err)
	require.True(t, ok)
	require.JSONEq(t, `{"rows":[]}`, string(data))

	m.SetAvailable(false)
	_, _, err = m.LoadDocument(ctx, "expenses", "2025-06")
	require.ErrorIs(t, err, ErrUnavailable)
	require.ErrorIs(t, m.SaveDocument(ctx, "expenses", "2025-06", json.RawMessage(`{}`)), ErrUnavailable)
	require.Equal(t, 1, m.Saves())
}

func TestMemoryQueryFallsBackToClientSort(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for i, offset := range []int{2, 5, 1} {
		m.Seed(model.Invoice{
			ID:        string(rune('a' + i)),
			CreatedAt: base.Add(time.Duration(offset) * time.Hour),
			Month:     6,
			Year:      2025,
		})
	}
	m.Seed(model.Invoice{ID: "other", Month: 7, Year: 2025})

	for _, missing := range []bool{false, true} {
		m.SetMissingIndex(missing)
		list, err := m.QueryInvoices(ctx, 6, 2025)
		require.NoError(t, err)
		ids := make([]string, 0, len(list))
		for _, inv := range list {
			ids = append(ids, inv.ID)
		}
		require.Equal(t, []string{"b", "a", "c"}, ids, "missing index %v", missing)
	}
}

func TestMemoryInvoiceLifecycle(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	inv, err := m.CreateInvoice(ctx, model.Invoice{Name: "x.jpg", MimeType: "image/jpeg", Month: 6, Year: 2025}, []byte{1})
	require.NoError(t, err)
	require.NotEmpty(t, inv.ID)
	require.Equal(t, model.InvoicePersistedCloud, inv.State)
	require.Equal(t, model.DataURL("image/jpeg", []byte{1}), inv.Content)

	require.NoError(t, m.DeleteInvoice(ctx, inv))
	require.ErrorIs(t, m.DeleteInvoice(ctx, inv), ErrUnavailable)
}

func TestDisabledIsUnavailable(t *testing.T) {
	ctx := context.Background()
	var d Disabled
	_, _, err := d.LoadDocument(ctx, "tools", "2025-01")
	require.ErrorIs(t, err, ErrUnavailable)
	_, err = d.CreateInvoice(ctx, model.Invoice{}, nil)
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestObjectPath(t *testing.T) {
	inv := model.Invoice{Name: "scan 1.jpg", Month: 3, Year: 2025}
	p := objectPath(inv, time.UnixMilli(1700000000000))
	require.Regexp(t, `^invoices/2025/03/2025-03-1700000000000-[0-9a-f]{8}-scan_1\.jpg$`, p)
}
