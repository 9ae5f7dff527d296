package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"earthworks-ledger/internal/model"
)

// EntryInput is a quick work day or expense line, typed from the chat.
type EntryInput struct {
	Category model.Category
	Text     string
	Cost     string
	// Date applies to work days; empty means the entry date.
	Date string
	At   time.Time
}

// EntryService appends quick entries to the month they happened in.
type EntryService struct {
	bench *Workbench
}

func NewEntryService(bench *Workbench) *EntryService {
	return &EntryService{bench: bench}
}

// Add fills the first blank row of the month or appends one, and returns
// the partition it landed in.
func (s *EntryService) Add(ctx context.Context, input EntryInput) (model.Partition, SaveResult, error) {
	text := strings.TrimSpace(input.Text)
	if text == "" {
		return model.Partition{}, SaveResult{}, fmt.Errorf("description is required")
	}
	cost, ok := model.SanitizeCost(input.Cost)
	if !ok || cost == "" {
		return model.Partition{}, SaveResult{}, fmt.Errorf("invalid cost %q", input.Cost)
	}
	at := input.At
	if at.IsZero() {
		at = time.Now()
	}
	p := model.CurrentPartition(input.Category, at)

	var res SaveResult
	var err error
	switch input.Category {
	case model.CategoryWorkDays:
		date := input.Date
		if date == "" {
			date = at.Format(time.DateOnly)
		}
		_, res, err = s.bench.Edit(ctx, p, func(d model.Document) error {
			d.(*model.WorkDays).Append(text, cost, date)
			return nil
		})
	case model.CategoryExpenses:
		_, res, err = s.bench.Edit(ctx, p, func(d model.Document) error {
			d.(*model.Expenses).Append(text, cost)
			return nil
		})
	default:
		return model.Partition{}, SaveResult{}, fmt.Errorf("%w: quick entries go to work days or expenses", model.ErrUnknownCategory)
	}
	if err != nil {
		return model.Partition{}, SaveResult{}, err
	}
	return p, res, nil
}
