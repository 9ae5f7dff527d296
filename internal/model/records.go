package model

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	WorkDaysFloor  = 2
	ExpensesFloor  = 2
	CustomersFloor = 2
	ToolRowsFloor  = 3
	ToolTableCount = 5
)

// WorkDayRow is one work day entry.
type WorkDayRow struct {
	ID   string `json:"id"`
	Text string `json:"text"`
	Cost string `json:"cost"`
	Date string `json:"date"`
}

type WorkDays struct {
	Rows []WorkDayRow `json:"rows"`
}

func NewWorkDays() *WorkDays {
	d := &WorkDays{}
	for range WorkDaysFloor {
		d.Rows = append(d.Rows, WorkDayRow{ID: newRowID("workday")})
	}
	return d
}

func (d *WorkDays) Category() Category { return CategoryWorkDays }

func (d *WorkDays) Valid() bool { return d.Rows != nil && len(d.Rows) >= WorkDaysFloor }

func (d *WorkDays) AddRow(string) bool {
	d.Rows = append(d.Rows, WorkDayRow{ID: newRowID("workday")})
	return true
}

func (d *WorkDays) DeleteRow(_, id string) bool {
	var ok bool
	d.Rows, ok = deleteRow(d.Rows, id, WorkDaysFloor, func(r WorkDayRow) string { return r.ID })
	return ok
}

func (d *WorkDays) UpdateRow(_, id string, fields Fields) bool {
	return updateRow(d.Rows, id, func(r WorkDayRow) string { return r.ID }, func(r *WorkDayRow) bool {
		changed := setField(&r.Text, fields, "text")
		changed = setCost(&r.Cost, fields) || changed
		return setField(&r.Date, fields, "date") || changed
	})
}

// Append fills the first blank row or adds a new one.
func (d *WorkDays) Append(text, cost, date string) WorkDayRow {
	cost, _ = SanitizeCost(cost)
	for i := range d.Rows {
		r := &d.Rows[i]
		if r.Text == "" && r.Cost == "" && r.Date == "" {
			r.Text, r.Cost, r.Date = text, cost, date
			return *r
		}
	}
	row := WorkDayRow{ID: newRowID("workday"), Text: text, Cost: cost, Date: date}
	d.Rows = append(d.Rows, row)
	return row
}

func (d *WorkDays) Costs() []string {
	out := make([]string, 0, len(d.Rows))
	for _, r := range d.Rows {
		out = append(out, r.Cost)
	}
	return out
}

type ExpenseRow struct {
	ID   string `json:"id"`
	Text string `json:"text"`
	Cost string `json:"cost"`
}

type Expenses struct {
	Rows []ExpenseRow `json:"rows"`
}

func NewExpenses() *Expenses {
	d := &Expenses{}
	for range ExpensesFloor {
		d.Rows = append(d.Rows, ExpenseRow{ID: newRowID("expense")})
	}
	return d
}

func (d *Expenses) Category() Category { return CategoryExpenses }

func (d *Expenses) Valid() bool { return d.Rows != nil && len(d.Rows) >= ExpensesFloor }

// AddRow inserts before the last row, which the sheet keeps as its append point.
func (d *Expenses) AddRow(string) bool {
	row := ExpenseRow{ID: newRowID("expense")}
	if len(d.Rows) == 0 {
		d.Rows = append(d.Rows, row)
		return true
	}
	last := d.Rows[len(d.Rows)-1]
	d.Rows = append(d.Rows[:len(d.Rows)-1:len(d.Rows)-1], row, last)
	return true
}

func (d *Expenses) DeleteRow(_, id string) bool {
	var ok bool
	d.Rows, ok = deleteRow(d.Rows, id, ExpensesFloor, func(r ExpenseRow) string { return r.ID })
	return ok
}

func (d *Expenses) UpdateRow(_, id string, fields Fields) bool {
	return updateRow(d.Rows, id, func(r ExpenseRow) string { return r.ID }, func(r *ExpenseRow) bool {
		changed := setField(&r.Text, fields, "text")
		return setCost(&r.Cost, fields) || changed
	})
}

// Append fills the first blank row above the last one, or adds a new one.
// The last row stays the place new rows are inserted before.
func (d *Expenses) Append(text, cost string) ExpenseRow {
	cost, _ = SanitizeCost(cost)
	for i := 0; i < len(d.Rows)-1; i++ {
		r := &d.Rows[i]
		if r.Text == "" && r.Cost == "" {
			r.Text, r.Cost = text, cost
			return *r
		}
	}
	d.AddRow("")
	// AddRow placed the new row second to last.
	r := &d.Rows[len(d.Rows)-2]
	r.Text, r.Cost = text, cost
	return *r
}

func (d *Expenses) Costs() []string {
	out := make([]string, 0, len(d.Rows))
	for _, r := range d.Rows {
		out = append(out, r.Cost)
	}
	return out
}

const (
	ListActive = "active"
	ListSaved  = "saved"
)

type CustomerRow struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Phone  string `json:"phone"`
	Notes  string `json:"notes"`
	Status string `json:"status"`
}

// Empty reports whether the row can receive a saved customer. Status is
// not considered.
func (r CustomerRow) Empty() bool {
	return r.Name == "" && r.Phone == "" && r.Notes == ""
}

func (r *CustomerRow) clear() bool {
	if r.Empty() && r.Status == "" {
		return false
	}
	r.Name, r.Phone, r.Notes, r.Status = "", "", "", ""
	return true
}

// Customers holds the follow-up list and the saved list of one month.
type Customers struct {
	Active []CustomerRow `json:"activeCustomers"`
	Saved  []CustomerRow `json:"savedCustomers"`
}

func NewCustomers() *Customers {
	d := &Customers{}
	for i := 1; i <= CustomersFloor; i++ {
		d.Active = append(d.Active, CustomerRow{ID: fmt.Sprintf("customer-active-%d", i)})
		d.Saved = append(d.Saved, CustomerRow{ID: fmt.Sprintf("customer-saved-%d", i)})
	}
	return d
}

func (d *Customers) Category() Category { return CategoryCustomers }

func (d *Customers) Valid() bool { return d.Active != nil && d.Saved != nil }

// AddRow grows both lists by one row.
func (d *Customers) AddRow(string) bool {
	d.Active = append(d.Active, CustomerRow{ID: newRowID("customer-active")})
	d.Saved = append(d.Saved, CustomerRow{ID: newRowID("customer-saved")})
	return true
}

func (d *Customers) DeleteRow(list, id string) bool {
	idOf := func(r CustomerRow) string { return r.ID }
	var ok bool
	switch list {
	case ListSaved:
		d.Saved, ok = deleteRow(d.Saved, id, CustomersFloor, idOf)
	default:
		d.Active, ok = deleteRow(d.Active, id, CustomersFloor, idOf)
	}
	return ok
}

// UpdateRow edits an active row. Saved rows are read-only.
func (d *Customers) UpdateRow(list, id string, fields Fields) bool {
	if list == ListSaved {
		return false
	}
	return updateRow(d.Active, id, func(r CustomerRow) string { return r.ID }, func(r *CustomerRow) bool {
		changed := setField(&r.Name, fields, "name")
		changed = setField(&r.Phone, fields, "phone") || changed
		changed = setField(&r.Notes, fields, "notes") || changed
		return setField(&r.Status, fields, "status") || changed
	})
}

// ClearRow empties a row's content while keeping the slot.
func (d *Customers) ClearRow(list, id string) bool {
	rows := d.Active
	if list == ListSaved {
		rows = d.Saved
	}
	return updateRow(rows, id, func(r CustomerRow) string { return r.ID }, (*CustomerRow).clear)
}

// SaveRow copies the active row id into the first empty saved slot and
// clears the active row. It returns the 0-based slot index. With no empty
// slot it returns ErrNoFreeSlot and changes nothing.
func (d *Customers) SaveRow(id string) (int, error) {
	src := -1
	for i, r := range d.Active {
		if r.ID == id {
			src = i
			break
		}
	}
	if src < 0 {
		return -1, fmt.Errorf("customer row %q: %w", id, ErrRowNotFound)
	}
	dst := -1
	for i, r := range d.Saved {
		if r.Empty() {
			dst = i
			break
		}
	}
	if dst < 0 {
		return -1, ErrNoFreeSlot
	}
	active := d.Active[src]
	d.Saved[dst] = CustomerRow{
		ID:     d.Saved[dst].ID,
		Name:   active.Name,
		Phone:  active.Phone,
		Notes:  active.Notes,
		Status: active.Status,
	}
	d.Active[src].clear()
	return dst, nil
}

type ToolRow struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

type ToolTable struct {
	ID    string    `json:"id"`
	Title string    `json:"title"`
	Rows  []ToolRow `json:"rows"`
}

// Tools holds the five maintenance tables of one month.
type Tools struct {
	Tables []ToolTable `json:"tables"`
}

// DefaultToolTitle is the title of table position (1-based) before any rename.
func DefaultToolTitle(position int) string {
	return "טבלה " + strconv.Itoa(position)
}

// NewTools builds the skeleton; titles override the defaults by position.
func NewTools(titles map[int]string) *Tools {
	d := &Tools{}
	for pos := 1; pos <= ToolTableCount; pos++ {
		table := ToolTable{ID: newRowID("tools-table"), Title: DefaultToolTitle(pos)}
		for i := 1; i <= ToolRowsFloor; i++ {
			table.Rows = append(table.Rows, ToolRow{ID: fmt.Sprintf("%s-row-%d", table.ID, i)})
		}
		d.Tables = append(d.Tables, table)
	}
	d.ApplyTitles(titles)
	return d
}

func (d *Tools) Category() Category { return CategoryTools }

func (d *Tools) Valid() bool { return len(d.Tables) == ToolTableCount }

func (d *Tools) table(list string) *ToolTable {
	pos, err := strconv.Atoi(strings.TrimSpace(list))
	if err != nil || pos < 1 || pos > len(d.Tables) {
		return nil
	}
	return &d.Tables[pos-1]
}

func (d *Tools) AddRow(list string) bool {
	t := d.table(list)
	if t == nil {
		return false
	}
	t.Rows = append(t.Rows, ToolRow{ID: newRowID("tools")})
	return true
}

func (d *Tools) DeleteRow(list, id string) bool {
	t := d.table(list)
	if t == nil {
		return false
	}
	var ok bool
	t.Rows, ok = deleteRow(t.Rows, id, ToolRowsFloor, func(r ToolRow) string { return r.ID })
	return ok
}

func (d *Tools) UpdateRow(list, id string, fields Fields) bool {
	t := d.table(list)
	if t == nil {
		return false
	}
	return updateRow(t.Rows, id, func(r ToolRow) string { return r.ID }, func(r *ToolRow) bool {
		return setField(&r.Text, fields, "text")
	})
}

// Rename sets the title of table position (1-based).
func (d *Tools) Rename(position int, title string) bool {
	if position < 1 || position > len(d.Tables) || d.Tables[position-1].Title == title {
		return false
	}
	d.Tables[position-1].Title = title
	return true
}

// ApplyTitles overwrites table titles by position and reports a change.
func (d *Tools) ApplyTitles(titles map[int]string) bool {
	changed := false
	for pos, title := range titles {
		changed = d.Rename(pos, title) || changed
	}
	return changed
}
