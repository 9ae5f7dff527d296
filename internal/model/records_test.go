package model

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPartitionKeys(t *testing.T) {
	p, err := NewPartition(CategoryExpenses, 2025, 6)
	require.NoError(t, err)
	require.Equal(t, "2025-06", p.DocID())
	require.Equal(t, "expenses:2025-06", p.Key())

	back, err := ParseKey(p.Key())
	require.NoError(t, err)
	require.Equal(t, p, back)

	_, err = NewPartition(CategoryExpenses, 2025, 13)
	require.ErrorIs(t, err, ErrInvalidPartition)
	_, err = ParseKey("bogus:2025-01")
	require.ErrorIs(t, err, ErrUnknownCategory)
}

func TestSkeletonFloors(t *testing.T) {
	cases := map[Category]func(Document) int{
		CategoryWorkDays:  func(d Document) int { return len(d.(*WorkDays).Rows) },
		CategoryExpenses:  func(d Document) int { return len(d.(*Expenses).Rows) },
		CategoryCustomers: func(d Document) int { return len(d.(*Customers).Active) },
	}
	for cat, rows := range cases {
		doc, err := Skeleton(cat)
		require.NoError(t, err)
		require.True(t, doc.Valid(), cat)
		require.Equal(t, 2, rows(doc), cat)
	}

	doc, err := Skeleton(CategoryTools)
	require.NoError(t, err)
	tools := doc.(*Tools)
	require.Len(t, tools.Tables, ToolTableCount)
	for i, table := range tools.Tables {
		require.Len(t, table.Rows, 3)
		require.Equal(t, DefaultToolTitle(i+1), table.Title)
	}

	_, err = Skeleton(CategoryInvoices)
	require.ErrorIs(t, err, ErrUnknownCategory)
}

func TestDeleteRowRespectsFloor(t *testing.T) {
	work := NewWorkDays()
	require.False(t, work.DeleteRow("", work.Rows[0].ID))
	require.Len(t, work.Rows, 2)

	work.AddRow("")
	require.True(t, work.DeleteRow("", work.Rows[0].ID))
	require.Len(t, work.Rows, 2)

	tools := NewTools(nil)
	require.False(t, tools.DeleteRow("2", tools.Tables[1].Rows[0].ID))
	require.Len(t, tools.Tables[1].Rows, 3)
	require.True(t, tools.AddRow("2"))
	require.True(t, tools.DeleteRow("2", tools.Tables[1].Rows[0].ID))
	require.Len(t, tools.Tables[1].Rows, 3)
	require.False(t, tools.AddRow("6"))

	cust := NewCustomers()
	require.False(t, cust.DeleteRow(ListSaved, cust.Saved[0].ID))
	require.Len(t, cust.Saved, 2)
}

func TestExpensesAddRowKeepsLastRow(t *testing.T) {
	exp := NewExpenses()
	last := exp.Rows[1].ID
	exp.AddRow("")
	require.Len(t, exp.Rows, 3)
	require.Equal(t, last, exp.Rows[2].ID)

	exp.Append("diesel", "10")
	exp.Append("oil", "5")
	row := exp.Append("filter", "3")
	require.Len(t, exp.Rows, 4)
	require.Equal(t, row.ID, exp.Rows[2].ID)
	require.Equal(t, last, exp.Rows[3].ID)
}

func TestUpdateRowSanitizesCost(t *testing.T) {
	work := NewWorkDays()
	id := work.Rows[0].ID
	require.True(t, work.UpdateRow("", id, Fields{"cost": "₪1,250", "text": "חפירה"}))
	require.Equal(t, "1,250", work.Rows[0].Cost)
	require.Equal(t, "חפירה", work.Rows[0].Text)

	require.False(t, work.UpdateRow("", id, Fields{"cost": "1.2.3"}))
	require.Equal(t, "1,250", work.Rows[0].Cost)
	require.False(t, work.UpdateRow("", id, Fields{"text": "חפירה"}))
	require.False(t, work.UpdateRow("", "missing", Fields{"text": "x"}))
}

func TestCustomerSaveRow(t *testing.T) {
	cust := NewCustomers()
	active := cust.Active[0].ID
	require.True(t, cust.UpdateRow(ListActive, active, Fields{"name": "דני", "phone": "050"}))

	slot, err := cust.SaveRow(active)
	require.NoError(t, err)
	require.Equal(t, 0, slot)
	require.Equal(t, "דני", cust.Saved[0].Name)
	require.Equal(t, "customer-saved-1", cust.Saved[0].ID)
	require.True(t, cust.Active[0].Empty())

	require.False(t, cust.UpdateRow(ListSaved, cust.Saved[0].ID, Fields{"name": "x"}))
}

func TestCustomerSaveRowNoFreeSlot(t *testing.T) {
	cust := NewCustomers()
	cust.Saved[0].Name = "a"
	cust.Saved[1].Phone = "b"
	cust.Active[1].Name = "c"
	before := Clone(cust)

	_, err := cust.SaveRow(cust.Active[1].ID)
	require.ErrorIs(t, err, ErrNoFreeSlot)
	require.Equal(t, before, Document(cust))

	_, err = cust.SaveRow("nope")
	require.True(t, errors.Is(err, ErrRowNotFound))
}

func TestCustomerClearRow(t *testing.T) {
	cust := NewCustomers()
	cust.Saved[1].Notes = "call back"
	require.True(t, cust.ClearRow(ListSaved, cust.Saved[1].ID))
	require.True(t, cust.Saved[1].Empty())
	require.False(t, cust.ClearRow(ListSaved, cust.Saved[1].ID))
}

func TestDecodeDocumentShapeChecks(t *testing.T) {
	_, err := DecodeDocument(CategoryWorkDays, []byte(`{"rows":[{"id":"a"}]}`))
	require.ErrorIs(t, err, ErrInvalidShape)

	_, err = DecodeDocument(CategoryCustomers, []byte(`{"activeCustomers":[]}`))
	require.ErrorIs(t, err, ErrInvalidShape)

	doc, err := DecodeDocument(CategoryCustomers, []byte(`{"activeCustomers":[],"savedCustomers":[]}`))
	require.NoError(t, err)
	require.True(t, doc.Valid())

	_, err = DecodeDocument(CategoryTools, []byte(`{"tables":[{},{},{}]}`))
	require.ErrorIs(t, err, ErrInvalidShape)

	_, err = DecodeDocument(CategoryExpenses, []byte(`{not json`))
	require.Error(t, err)
}

func TestToolTitlesByPosition(t *testing.T) {
	tools := NewTools(map[int]string{2: "מחפר"})
	require.Equal(t, "מחפר", tools.Tables[1].Title)
	require.Equal(t, DefaultToolTitle(1), tools.Tables[0].Title)

	require.False(t, tools.ApplyTitles(map[int]string{2: "מחפר"}))
	require.True(t, tools.ApplyTitles(map[int]string{5: "משאית", 9: "ignored"}))
	require.Equal(t, "משאית", tools.Tables[4].Title)
}

func TestCostTotals(t *testing.T) {
	total := SumCosts([]string{"100", "2,5", "", "abc", "0.5"})
	require.Equal(t, "103", total.String())

	v, ok := SanitizeCost("12a,5")
	require.True(t, ok)
	require.Equal(t, "12,5", v)
	_, ok = SanitizeCost("1,2.3")
	require.False(t, ok)
}

func TestInvoiceHelpers(t *testing.T) {
	url := DataURL("image/png", []byte{1, 2, 3})
	payload, mime, err := ParseDataURL(url)
	require.NoError(t, err)
	require.Equal(t, "image/png", mime)
	require.Equal(t, []byte{1, 2, 3}, payload)

	_, _, err = ParseDataURL("https://example.com/a.jpg")
	require.Error(t, err)

	list := DedupeInvoices(
		[]Invoice{{ID: "a", Name: "cloud"}, {ID: "b"}},
		[]Invoice{{ID: "a", Name: "local"}, {ID: "c"}},
	)
	require.Len(t, list, 3)
	require.Equal(t, "cloud", list[0].Name)

	data, err := json.Marshal(Invoice{ID: "x", MimeType: "image/jpeg", StorageLocator: "p"})
	require.NoError(t, err)
	require.Contains(t, string(data), `"type":"image/jpeg"`)
	require.Contains(t, string(data), `"storagePath":"p"`)
}
