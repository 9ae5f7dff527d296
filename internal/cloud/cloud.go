// Package cloud implements the hosted record store. Every failure, whether
// network, credentials, quota or configuration, surfaces as ErrUnavailable
// so callers only tell success from unavailability.
package cloud

import (
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"earthworks-ledger/internal/model"
)

const InvoicesCollection = "invoices"

var ErrUnavailable = errors.New("cloud unavailable")

func unavailable(op string, err error) error {
	if errors.Is(err, ErrUnavailable) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}

// newestFirst runs the ordered query and, when the backend cannot serve it
// for lack of a composite index, runs the unordered one and sorts by
// creation time descending.
func newestFirst(sorted, unsorted func() ([]model.Invoice, error)) ([]model.Invoice, error) {
	list, err := sorted()
	if err == nil {
		return list, nil
	}
	if status.Code(err) != codes.FailedPrecondition {
		return nil, err
	}
	list, err = unsorted()
	if err != nil {
		return nil, err
	}
	model.SortNewestFirst(list)
	return list, nil
}
