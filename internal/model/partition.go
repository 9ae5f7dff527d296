package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Category names a kind of record kept per month.
type Category string

const (
	CategoryWorkDays  Category = "workdays"
	CategoryExpenses  Category = "expenses"
	CategoryCustomers Category = "customers"
	CategoryTools     Category = "tools"
	CategoryInvoices  Category = "invoices"
)

var (
	ErrUnknownCategory  = errors.New("unknown category")
	ErrInvalidPartition = errors.New("invalid partition")
)

// DocumentCategories are the categories stored as one document per month.
// Invoices are list valued and handled separately.
var DocumentCategories = []Category{
	CategoryWorkDays,
	CategoryExpenses,
	CategoryCustomers,
	CategoryTools,
}

func ParseCategory(raw string) (Category, error) {
	cat := Category(strings.ToLower(strings.TrimSpace(raw)))
	switch cat {
	case CategoryWorkDays, CategoryExpenses, CategoryCustomers, CategoryTools, CategoryInvoices:
		return cat, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownCategory, raw)
	}
}

// IsDocument reports whether the category is kept as a per-month document.
func (c Category) IsDocument() bool {
	for _, cat := range DocumentCategories {
		if cat == c {
			return true
		}
	}
	return false
}

// Partition identifies one logical record document: (category, year, month).
// Month is 1-indexed.
type Partition struct {
	Category Category `json:"category"`
	Year     int      `json:"year"`
	Month    int      `json:"month"`
}

func NewPartition(cat Category, year, month int) (Partition, error) {
	if month < 1 || month > 12 {
		return Partition{}, fmt.Errorf("%w: month %d", ErrInvalidPartition, month)
	}
	if year < 1 || year > 9999 {
		return Partition{}, fmt.Errorf("%w: year %d", ErrInvalidPartition, year)
	}
	return Partition{Category: cat, Year: year, Month: month}, nil
}

// CurrentPartition returns the partition of cat that contains now.
func CurrentPartition(cat Category, now time.Time) Partition {
	return Partition{Category: cat, Year: now.Year(), Month: int(now.Month())}
}

// DocID is the cloud document id: "{year}-{MM}".
func (p Partition) DocID() string {
	return fmt.Sprintf("%d-%02d", p.Year, p.Month)
}

// Key is the local storage key: "{category}:{year}-{MM}".
func (p Partition) Key() string {
	return string(p.Category) + ":" + p.DocID()
}

func (p Partition) String() string {
	return p.Key()
}

// ParseKey is the inverse of Partition.Key.
func ParseKey(key string) (Partition, error) {
	cat, period, ok := strings.Cut(key, ":")
	if !ok {
		return Partition{}, fmt.Errorf("%w: key %q", ErrInvalidPartition, key)
	}
	category, err := ParseCategory(cat)
	if err != nil {
		return Partition{}, err
	}
	yearRaw, monthRaw, ok := strings.Cut(period, "-")
	if !ok {
		return Partition{}, fmt.Errorf("%w: key %q", ErrInvalidPartition, key)
	}
	year, err := strconv.Atoi(yearRaw)
	if err != nil {
		return Partition{}, fmt.Errorf("%w: key %q", ErrInvalidPartition, key)
	}
	month, err := strconv.Atoi(monthRaw)
	if err != nil {
		return Partition{}, fmt.Errorf("%w: key %q", ErrInvalidPartition, key)
	}
	return NewPartition(category, year, month)
}
