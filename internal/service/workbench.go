package service

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"

	"earthworks-ledger/internal/model"
)

// page is the document currently open for a category.
type page struct {
	partition model.Partition
	doc       model.Document
	saved     [sha256.Size]byte
}

// Workbench keeps one open document per category. Edits persist
// immediately; Flush persists only what changed since the last local
// save, so a page whose local write failed is retried by the next flush.
type Workbench struct {
	sync   *SyncService
	logger *log.Logger

	// persist serializes saves so they land in edit order.
	persist sync.Mutex

	mu        sync.Mutex
	pages     map[model.Category]*page
	requested map[model.Category]model.Partition
}

func NewWorkbench(syncer *SyncService, logger *log.Logger) *Workbench {
	if logger == nil {
		logger = log.New(os.Stderr, "", log.LstdFlags)
	}
	return &Workbench{
		sync:      syncer,
		logger:    logger,
		pages:     make(map[model.Category]*page),
		requested: make(map[model.Category]model.Partition),
	}
}

func fingerprint(doc model.Document) [sha256.Size]byte {
	data, err := json.Marshal(doc)
	if err != nil {
		return [sha256.Size]byte{}
	}
	return sha256.Sum256(data)
}

// Open persists the page of p's category if it shows another partition,
// then loads p. A load that finishes after the category moved on to a
// different partition does not replace the page.
func (w *Workbench) Open(ctx context.Context, p model.Partition) (model.Document, Source, error) {
	if !p.Category.IsDocument() {
		return nil, "", fmt.Errorf("%w: %q has no document", model.ErrUnknownCategory, p.Category)
	}
	w.mu.Lock()
	w.requested[p.Category] = p
	w.mu.Unlock()

	w.Flush(ctx, p.Category)

	doc, src, err := w.sync.Load(ctx, p)
	if err != nil {
		return nil, "", err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.requested[p.Category] == p {
		w.pages[p.Category] = &page{partition: p, doc: doc, saved: fingerprint(doc)}
	}
	return model.Clone(doc), src, nil
}

// Edit applies fn to the open document of p, opening p first when needed,
// and saves when fn changed anything. fn must leave the document untouched
// when it returns an error.
func (w *Workbench) Edit(ctx context.Context, p model.Partition, fn func(model.Document) error) (model.Document, SaveResult, error) {
	return w.apply(ctx, p, func(pg *page) error { return fn(pg.doc) })
}

// Replace swaps the whole document of p.
func (w *Workbench) Replace(ctx context.Context, p model.Partition, doc model.Document) (model.Document, SaveResult, error) {
	if doc.Category() != p.Category || !doc.Valid() {
		return nil, SaveResult{}, model.ErrInvalidShape
	}
	return w.apply(ctx, p, func(pg *page) error {
		pg.doc = model.Clone(doc)
		return nil
	})
}

func (w *Workbench) apply(ctx context.Context, p model.Partition, fn func(*page) error) (model.Document, SaveResult, error) {
	if !w.isOpen(p) {
		if _, _, err := w.Open(ctx, p); err != nil {
			return nil, SaveResult{}, err
		}
	}

	w.persist.Lock()
	defer w.persist.Unlock()

	w.mu.Lock()
	pg, ok := w.pages[p.Category]
	if !ok || pg.partition != p {
		w.mu.Unlock()
		return nil, SaveResult{}, fmt.Errorf("%s is not open", p)
	}
	if err := fn(pg); err != nil {
		w.mu.Unlock()
		return nil, SaveResult{}, err
	}
	fp := fingerprint(pg.doc)
	snapshot := model.Clone(pg.doc)
	changed := fp != pg.saved
	w.mu.Unlock()

	if !changed {
		return snapshot, SaveResult{}, nil
	}
	res := w.sync.Save(ctx, p, snapshot)
	if res.Local {
		w.markSaved(p, fp)
	}
	return snapshot, res, nil
}

func (w *Workbench) isOpen(p model.Partition) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	pg, ok := w.pages[p.Category]
	return ok && pg.partition == p
}

func (w *Workbench) markSaved(p model.Partition, fp [sha256.Size]byte) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if pg, ok := w.pages[p.Category]; ok && pg.partition == p {
		pg.saved = fp
	}
}

// Flush saves the page of cat if it changed since its last save and
// reports whether a save happened.
func (w *Workbench) Flush(ctx context.Context, cat model.Category) bool {
	w.persist.Lock()
	defer w.persist.Unlock()

	w.mu.Lock()
	pg, ok := w.pages[cat]
	if !ok {
		w.mu.Unlock()
		return false
	}
	fp := fingerprint(pg.doc)
	if fp == pg.saved {
		w.mu.Unlock()
		return false
	}
	p := pg.partition
	snapshot := model.Clone(pg.doc)
	w.mu.Unlock()

	res := w.sync.Save(ctx, p, snapshot)
	if !res.Local {
		return false
	}
	w.markSaved(p, fp)
	return true
}

// FlushAll flushes every open page and returns how many were saved.
func (w *Workbench) FlushAll(ctx context.Context) int {
	saved := 0
	for _, cat := range model.DocumentCategories {
		if w.Flush(ctx, cat) {
			saved++
		}
	}
	if saved > 0 {
		w.logger.Printf("[info] flushed %d open page(s)", saved)
	}
	return saved
}

// RenameToolTable renames table position in p and in every other tools
// partition.
func (w *Workbench) RenameToolTable(ctx context.Context, p model.Partition, position int, title string) (model.Document, error) {
	if p.Category != model.CategoryTools {
		return nil, fmt.Errorf("%w: titles belong to tools", model.ErrUnknownCategory)
	}
	if position < 1 || position > model.ToolTableCount {
		return nil, fmt.Errorf("tool table position %d out of range", position)
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, model.ErrBlankTitle
	}
	doc, _, err := w.Edit(ctx, p, func(d model.Document) error {
		d.(*model.Tools).Rename(position, title)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := w.sync.PropagateToolTitle(ctx, position, title); err != nil {
		return nil, err
	}
	return doc, nil
}
