package cloud

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"earthworks-ledger/internal/model"
)

func TestDecodeInvoice(t *testing.T) {
	created := time.Date(2025, time.June, 3, 8, 30, 0, 0, time.UTC)

	inv, err := decodeInvoice("a1", map[string]interface{}{
		"name":        "receipt.webp",
		"createdAt":   created,
		"type":        "image/webp",
		"size":        int64(2048),
		"width":       int64(800),
		"height":      int64(600),
		"month":       int64(6),
		"year":        int64(2025),
		"storagePath": "invoices/2025/6/x.webp",
		"downloadURL": "https://example.test/x.webp",
	})
	require.NoError(t, err)
	require.Equal(t, "a1", inv.ID)
	require.Equal(t, model.InvoicePersistedCloud, inv.State)
	require.True(t, created.Equal(inv.CreatedAt))
	require.Equal(t, int64(2048), inv.ByteSize)
	require.Equal(t, [4]int{800, 600, 6, 2025}, [4]int{inv.Width, inv.Height, inv.Month, inv.Year})
	require.Equal(t, "invoices/2025/6/x.webp", inv.StorageLocator)

	inv, err = decodeInvoice("a2", map[string]interface{}{
		"name":      "old.jpg",
		"createdAt": "2024-11-20T14:05:09.123Z",
		"month":     float64(11),
		"year":      float64(2024),
	})
	require.NoError(t, err)
	require.True(t, time.Date(2024, time.November, 20, 14, 5, 9, 123e6, time.UTC).Equal(inv.CreatedAt))
	require.Equal(t, 11, inv.Month)
	require.Equal(t, 2024, inv.Year)

	_, err = decodeInvoice("bad", map[string]interface{}{"createdAt": "yesterday"})
	require.Error(t, err)
	_, err = decodeInvoice("bad", map[string]interface{}{"width": "wide"})
	require.Error(t, err)
	_, err = decodeInvoice("empty", nil)
	require.Error(t, err)
}
