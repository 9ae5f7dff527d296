package bot

import (
	"strings"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/require"

	"earthworks-ledger/internal/model"
	"earthworks-ledger/internal/service"
)

func TestParseEntryArgs(t *testing.T) {
	tests := []struct {
		in       string
		cost     string
		text     string
		expected bool
	}{
		{in: "350 סולר למחפרון", cost: "350", text: "סולר למחפרון", expected: true},
		{in: "פינוי פסולת 1,200", cost: "1,200", text: "פינוי פסולת", expected: true},
		{in: "₪99.5 שמן", cost: "99.5", text: "שמן", expected: true},
		{in: "סולר", expected: false},
		{in: "סולר יקר", expected: false},
		{in: "", expected: false},
	}
	for _, tt := range tests {
		cost, text, ok := parseEntryArgs(tt.in)
		require.Equal(t, tt.expected, ok, tt.in)
		if tt.expected {
			require.Equal(t, tt.cost, cost, tt.in)
			require.Equal(t, tt.text, text, tt.in)
		}
	}
}

func TestParseMonthArg(t *testing.T) {
	now := time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)

	y, m, ok := parseMonthArg("", now)
	require.True(t, ok)
	require.Equal(t, [2]int{2025, 3}, [2]int{y, m})

	y, m, ok = parseMonthArg("05.2024", now)
	require.True(t, ok)
	require.Equal(t, [2]int{2024, 5}, [2]int{y, m})

	y, m, ok = parseMonthArg("2023-11", now)
	require.True(t, ok)
	require.Equal(t, [2]int{2023, 11}, [2]int{y, m})

	for _, bad := range []string{"13.2025", "may", "1.2.2025", "2025-00"} {
		_, _, ok := parseMonthArg(bad, now)
		require.False(t, ok, bad)
	}
}

func TestInvoiceRefRoundTrip(t *testing.T) {
	ref := invoiceRef(2025, 6, "invoice-1718000000000-abc123def")
	require.LessOrEqual(t, len(cbConfirmPrefix+ref), 64)

	y, m, id, ok := parseInvoiceRef(ref)
	require.True(t, ok)
	require.Equal(t, 2025, y)
	require.Equal(t, 6, m)
	require.Equal(t, "invoice-1718000000000-abc123def", id)

	_, _, _, ok = parseInvoiceRef("2025-06:")
	require.False(t, ok)
}

func TestParseCallback(t *testing.T) {
	ref := invoiceRef(2025, 6, "inv-1")
	for _, prefix := range []string{cbDeletePrefix, cbConfirmPrefix, cbCancelPrefix} {
		action, y, m, id, ok := parseCallback(prefix + ref)
		require.True(t, ok, prefix)
		require.Equal(t, prefix, action)
		require.Equal(t, [2]int{2025, 6}, [2]int{y, m})
		require.Equal(t, "inv-1", id)
	}

	_, _, _, _, ok := parseCallback("other:" + ref)
	require.False(t, ok)
	_, _, _, _, ok = parseCallback(cbCancelPrefix + "garbage")
	require.False(t, ok)
}

func TestAttachmentPicksLargestPhoto(t *testing.T) {
	msg := &tgbotapi.Message{
		MessageID: 7,
		Photo: []tgbotapi.PhotoSize{
			{FileID: "small", Width: 90, Height: 60},
			{FileID: "large", Width: 1280, Height: 853},
			{FileID: "medium", Width: 320, Height: 213},
		},
	}
	id, name, mime := attachmentOf(msg)
	require.Equal(t, "large", id)
	require.Equal(t, "photo-7.jpg", name)
	require.Equal(t, "image/jpeg", mime)

	doc := &tgbotapi.Message{MessageID: 8, Document: &tgbotapi.Document{FileID: "d", MimeType: "image/png"}}
	require.True(t, isImageDocument(doc.Document))
	id, name, mime = attachmentOf(doc)
	require.Equal(t, "d", id)
	require.Equal(t, "document-8", name)
	require.Equal(t, "image/png", mime)

	require.False(t, isImageDocument(&tgbotapi.Document{MimeType: "application/pdf"}))
	require.False(t, isImageDocument(nil))
}

func TestFormatInvoiceList(t *testing.T) {
	list := []model.Invoice{
		{ID: "a", Name: "<קבלה>.jpg", State: model.InvoicePersistedCloud, CreatedAt: time.Now()},
		{ID: "b", Name: strings.Repeat("א", 60), State: model.InvoicePersistedLocal, CreatedAt: time.Now()},
	}
	text := formatInvoiceList(list, 2025, 6, service.SourceLocal)
	require.Contains(t, text, "חשבוניות יוני 2025")
	require.Contains(t, text, "&lt;קבלה&gt;.jpg")
	require.Contains(t, text, "📱")
	require.Contains(t, text, "הענן לא זמין")
	require.Contains(t, text, strings.Repeat("א", 39)+"…")

	kb := invoiceKeyboard(list, 2025, 6)
	require.Len(t, kb.InlineKeyboard, 2)
	require.Equal(t, cbDeletePrefix+"2025-06:b", *kb.InlineKeyboard[1][0].CallbackData)
}

func TestSaveNote(t *testing.T) {
	require.Empty(t, saveNote(service.SaveResult{Local: true, Cloud: true}))
	require.Contains(t, saveNote(service.SaveResult{Local: true}), "נשמר במכשיר")
	require.Contains(t, saveNote(service.SaveResult{Local: true}), "השמירה לענן נכשלה")
	require.NotContains(t, saveNote(service.SaveResult{Local: true}), "יסונכרן")
	require.Contains(t, saveNote(service.SaveResult{}), "השמירה נכשלה")
}
