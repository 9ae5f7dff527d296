package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrInvalidShape = errors.New("invalid document shape")
	ErrNoFreeSlot   = errors.New("no free slot in saved customers")
	ErrRowNotFound  = errors.New("row not found")
	ErrBlankTitle   = errors.New("title is blank")
)

// Fields is a partial row update keyed by the row's JSON field names.
type Fields map[string]string

// Document is one per-month record of a category. Mutators return false
// when nothing was changed (unknown row, floor reached, read-only list).
//
// The list argument selects a sub-table: ignored for work days and
// expenses, "active" or "saved" for customers, "1".."5" for tool tables.
type Document interface {
	Category() Category
	Valid() bool
	AddRow(list string) bool
	DeleteRow(list, id string) bool
	UpdateRow(list, id string, fields Fields) bool
}

// Skeleton returns the empty default document of cat.
func Skeleton(cat Category) (Document, error) {
	switch cat {
	case CategoryWorkDays:
		return NewWorkDays(), nil
	case CategoryExpenses:
		return NewExpenses(), nil
	case CategoryCustomers:
		return NewCustomers(), nil
	case CategoryTools:
		return NewTools(nil), nil
	default:
		return nil, fmt.Errorf("%w: %q has no document", ErrUnknownCategory, cat)
	}
}

// DecodeDocument parses data as a document of cat. Documents that parse but
// fail the shape check yield ErrInvalidShape.
func DecodeDocument(cat Category, data []byte) (Document, error) {
	var doc Document
	switch cat {
	case CategoryWorkDays:
		doc = &WorkDays{}
	case CategoryExpenses:
		doc = &Expenses{}
	case CategoryCustomers:
		doc = &Customers{}
	case CategoryTools:
		doc = &Tools{}
	default:
		return nil, fmt.Errorf("%w: %q has no document", ErrUnknownCategory, cat)
	}
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("decode %s: %w", cat, err)
	}
	if !doc.Valid() {
		return nil, fmt.Errorf("decode %s: %w", cat, ErrInvalidShape)
	}
	return doc, nil
}

func EncodeDocument(doc Document) ([]byte, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", doc.Category(), err)
	}
	return data, nil
}

// Clone returns a deep copy of doc.
func Clone(doc Document) Document {
	data, err := json.Marshal(doc)
	if err != nil {
		return doc
	}
	out, err := DecodeDocument(doc.Category(), data)
	if err != nil {
		return doc
	}
	return out
}

func newRowID(prefix string) string {
	return prefix + "-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// deleteRow removes the row with id unless len(rows) <= floor.
func deleteRow[R any](rows []R, id string, floor int, idOf func(R) string) ([]R, bool) {
	if len(rows) <= floor {
		return rows, false
	}
	for i, r := range rows {
		if idOf(r) == id {
			return append(rows[:i:i], rows[i+1:]...), true
		}
	}
	return rows, false
}

// updateRow applies fn to the row with id.
func updateRow[R any](rows []R, id string, idOf func(R) string, fn func(*R) bool) bool {
	for i := range rows {
		if idOf(rows[i]) == id {
			return fn(&rows[i])
		}
	}
	return false
}

// setField assigns fields[name] to dst when present, reporting a change.
func setField(dst *string, fields Fields, name string) bool {
	v, ok := fields[name]
	if !ok || *dst == v {
		return false
	}
	*dst = v
	return true
}

// setCost is setField for cost cells; values with more than one decimal
// separator are rejected.
func setCost(dst *string, fields Fields) bool {
	raw, ok := fields["cost"]
	if !ok {
		return false
	}
	v, ok := SanitizeCost(raw)
	if !ok || *dst == v {
		return false
	}
	*dst = v
	return true
}
