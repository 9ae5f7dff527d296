package cloud

import (
	"context"
	"encoding/json"
	"fmt"

	"earthworks-ledger/internal/model"
)

var errNotConfigured = fmt.Errorf("%w: no project configured", ErrUnavailable)

// Disabled is the store used when no project is configured. Every call
// reports ErrUnavailable so the local store serves everything.
type Disabled struct{}

func (Disabled) LoadDocument(context.Context, string, string) (json.RawMessage, bool, error) {
	return nil, false, errNotConfigured
}

func (Disabled) SaveDocument(context.Context, string, string, json.RawMessage) error {
	return errNotConfigured
}

func (Disabled) QueryInvoices(context.Context, int, int) ([]model.Invoice, error) {
	return nil, errNotConfigured
}

func (Disabled) CreateInvoice(context.Context, model.Invoice, []byte) (model.Invoice, error) {
	return model.Invoice{}, errNotConfigured
}

func (Disabled) DeleteInvoice(context.Context, model.Invoice) error {
	return errNotConfigured
}

func (Disabled) Close() error { return nil }
