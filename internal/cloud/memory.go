package cloud

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"earthworks-ledger/internal/model"
)

var errOffline = errors.New("simulated outage")

// Memory is an in-process store for tests and offline development. It can
// simulate an outage and a missing composite index.
type Memory struct {
	mu           sync.Mutex
	docs         map[string]json.RawMessage
	invoices     map[string]model.Invoice
	order        []string
	offline      bool
	missingIndex bool
	saves        int
}

func NewMemory() *Memory {
	return &Memory{
		docs:     make(map[string]json.RawMessage),
		invoices: make(map[string]model.Invoice),
	}
}

// SetAvailable toggles the simulated outage.
func (m *Memory) SetAvailable(ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.offline = !ok
}

// SetMissingIndex makes ordered invoice queries fail with FailedPrecondition.
func (m *Memory) SetMissingIndex(missing bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.missingIndex = missing
}

// PutRaw stores data as is, bypassing any shape check.
func (m *Memory) PutRaw(collection, id string, data json.RawMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[collection+"/"+id] = append(json.RawMessage(nil), data...)
}

// Document returns what a save stored.
func (m *Memory) Document(collection, id string) (json.RawMessage, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.docs[collection+"/"+id]
	return data, ok
}

// Saves counts successful SaveDocument calls.
func (m *Memory) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

func (m *Memory) check(op string) error {
	if m.offline {
		return unavailable(op, errOffline)
	}
	return nil
}

func (m *Memory) LoadDocument(_ context.Context, collection, id string) (json.RawMessage, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("load " + collection + "/" + id); err != nil {
		return nil, false, err
	}
	data, ok := m.docs[collection+"/"+id]
	if !ok {
		return nil, false, nil
	}
	return append(json.RawMessage(nil), data...), true, nil
}

func (m *Memory) SaveDocument(_ context.Context, collection, id string, data json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("save " + collection + "/" + id); err != nil {
		return err
	}
	if !json.Valid(data) {
		return unavailable("save "+collection+"/"+id, fmt.Errorf("invalid json"))
	}
	m.docs[collection+"/"+id] = append(json.RawMessage(nil), data...)
	m.saves++
	return nil
}

func (m *Memory) QueryInvoices(_ context.Context, month, year int) ([]model.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("query invoices"); err != nil {
		return nil, err
	}
	collect := func() []model.Invoice {
		out := make([]model.Invoice, 0)
		for _, id := range m.order {
			inv, ok := m.invoices[id]
			if ok && inv.Month == month && inv.Year == year {
				out = append(out, inv)
			}
		}
		return out
	}
	list, err := newestFirst(
		func() ([]model.Invoice, error) {
			if m.missingIndex {
				return nil, status.Error(codes.FailedPrecondition, "the query requires an index")
			}
			list := collect()
			model.SortNewestFirst(list)
			return list, nil
		},
		func() ([]model.Invoice, error) { return collect(), nil },
	)
	if err != nil {
		return nil, unavailable("query invoices", err)
	}
	return list, nil
}

func (m *Memory) CreateInvoice(_ context.Context, inv model.Invoice, payload []byte) (model.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("create invoice"); err != nil {
		return model.Invoice{}, err
	}
	inv.ID = uuid.NewString()
	inv.StorageLocator = ""
	inv.Content = model.DataURL(inv.MimeType, payload)
	inv.State = model.InvoicePersistedCloud
	m.invoices[inv.ID] = inv
	m.order = append(m.order, inv.ID)
	return inv, nil
}

// Seed stores inv under its own id, for tests that need cloud and local
// copies of the same invoice.
func (m *Memory) Seed(inv model.Invoice) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv.State = model.InvoicePersistedCloud
	if _, ok := m.invoices[inv.ID]; !ok {
		m.order = append(m.order, inv.ID)
	}
	m.invoices[inv.ID] = inv
}

func (m *Memory) DeleteInvoice(_ context.Context, inv model.Invoice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("delete invoice " + inv.ID); err != nil {
		return err
	}
	if _, ok := m.invoices[inv.ID]; !ok {
		return unavailable("delete invoice "+inv.ID, status.Error(codes.NotFound, "no such document"))
	}
	delete(m.invoices, inv.ID)
	for i, id := range m.order {
		if id == inv.ID {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

func (m *Memory) Close() error { return nil }
