package repository

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"earthworks-ledger/internal/model"
)

// LocalStore is the per-device record store. Documents live in
// partition_entries as JSON text; invoice images live in invoice_blobs, or
// base64 encoded inside the invoices:{year}-{MM} partition when the blob
// table is disabled or a blob write fails.
type LocalStore struct {
	db     *gorm.DB
	binary bool
	logger *log.Logger
}

// NewLocalStore wraps db. With binary false every invoice goes to the text
// fallback. A nil logger logs to stderr.
func NewLocalStore(db *gorm.DB, binary bool, logger *log.Logger) *LocalStore {
	if logger == nil {
		logger = log.New(os.Stderr, "", log.LstdFlags)
	}
	return &LocalStore{db: db, binary: binary, logger: logger}
}

// Get returns the stored document of p. Missing, unreadable and
// wrongly shaped entries all read as absent.
func (s *LocalStore) Get(ctx context.Context, p model.Partition) (model.Document, bool) {
	var entry model.PartitionEntry
	err := s.db.WithContext(ctx).Where("partition_key = ?", p.Key()).Take(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false
	}
	if err != nil {
		s.logger.Printf("[warn] local read %s: %v", p, err)
		return nil, false
	}
	doc, err := model.DecodeDocument(p.Category, []byte(entry.Body))
	if err != nil {
		s.logger.Printf("[warn] local entry %s unreadable, treating as absent: %v", p, err)
		return nil, false
	}
	return doc, true
}

func (s *LocalStore) Put(ctx context.Context, p model.Partition, doc model.Document) error {
	body, err := model.EncodeDocument(doc)
	if err != nil {
		return err
	}
	return s.putEntry(s.db.WithContext(ctx), p, string(body))
}

func (s *LocalStore) putEntry(tx *gorm.DB, p model.Partition, body string) error {
	entry := model.PartitionEntry{
		PartitionKey: p.Key(),
		Category:     p.Category,
		Year:         p.Year,
		Month:        p.Month,
		Body:         body,
	}
	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "partition_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"body", "updated_at"}),
	}).Create(&entry).Error
	if err != nil {
		return fmt.Errorf("put %s: %w", p, err)
	}
	return nil
}

// Partitions lists every persisted partition of cat, oldest first.
func (s *LocalStore) Partitions(ctx context.Context, cat model.Category) ([]model.Partition, error) {
	var keys []string
	if err := s.db.WithContext(ctx).Model(&model.PartitionEntry{}).
		Where("category = ?", cat).
		Order("partition_key").
		Pluck("partition_key", &keys).Error; err != nil {
		return nil, fmt.Errorf("list %s partitions: %w", cat, err)
	}
	out := make([]model.Partition, 0, len(keys))
	for _, key := range keys {
		p, err := model.ParseKey(key)
		if err != nil {
			s.logger.Printf("[warn] skipping local key %q: %v", key, err)
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// fallbackInvoice is an invoice kept inside the JSON partition.
type fallbackInvoice struct {
	model.Invoice
	Base64Data string `json:"base64Data"`
}

func invoicePartition(month, year int) (model.Partition, error) {
	return model.NewPartition(model.CategoryInvoices, year, month)
}

// PutInvoice stores the image bytes of inv, preferring the blob table.
func (s *LocalStore) PutInvoice(ctx context.Context, inv model.Invoice, payload []byte) error {
	if s.binary {
		blob := model.InvoiceBlob{
			ID:        inv.ID,
			Name:      inv.Name,
			MimeType:  inv.MimeType,
			ByteSize:  inv.ByteSize,
			Width:     inv.Width,
			Height:    inv.Height,
			Month:     inv.Month,
			Year:      inv.Year,
			Data:      payload,
			CreatedAt: inv.CreatedAt,
		}
		err := s.db.WithContext(ctx).Save(&blob).Error
		if err == nil {
			return nil
		}
		s.logger.Printf("[warn] invoice blob %s failed, using text fallback: %v", inv.ID, err)
	}
	return s.putInvoiceFallback(ctx, inv, payload)
}

func (s *LocalStore) putInvoiceFallback(ctx context.Context, inv model.Invoice, payload []byte) error {
	p, err := invoicePartition(inv.Month, inv.Year)
	if err != nil {
		return err
	}
	entry := fallbackInvoice{Invoice: inv, Base64Data: base64.StdEncoding.EncodeToString(payload)}
	entry.Content = ""
	entry.State = ""

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		list := s.readFallback(tx, p)
		replaced := false
		for i := range list {
			if list[i].ID == inv.ID {
				list[i] = entry
				replaced = true
			}
		}
		if !replaced {
			list = append(list, entry)
		}
		return s.writeFallback(tx, p, list)
	})
}

func (s *LocalStore) readFallback(tx *gorm.DB, p model.Partition) []fallbackInvoice {
	var entry model.PartitionEntry
	if err := tx.Where("partition_key = ?", p.Key()).Take(&entry).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			s.logger.Printf("[warn] local read %s: %v", p, err)
		}
		return nil
	}
	var list []fallbackInvoice
	if err := json.Unmarshal([]byte(entry.Body), &list); err != nil {
		s.logger.Printf("[warn] local entry %s unreadable, treating as absent: %v", p, err)
		return nil
	}
	return list
}

func (s *LocalStore) writeFallback(tx *gorm.DB, p model.Partition, list []fallbackInvoice) error {
	if list == nil {
		list = []fallbackInvoice{}
	}
	body, err := json.Marshal(list)
	if err != nil {
		return fmt.Errorf("encode %s: %w", p, err)
	}
	return s.putEntry(tx, p, string(body))
}

// ListInvoices merges the blob table and the text fallback of a month,
// newest first. Blob entries win over fallback entries with the same id.
func (s *LocalStore) ListInvoices(ctx context.Context, month, year int) ([]model.Invoice, error) {
	p, err := invoicePartition(month, year)
	if err != nil {
		return nil, err
	}
	var blobs []model.InvoiceBlob
	if err := s.db.WithContext(ctx).Where("month = ? AND year = ?", month, year).Find(&blobs).Error; err != nil {
		return nil, fmt.Errorf("list invoice blobs: %w", err)
	}
	fromBlobs := make([]model.Invoice, 0, len(blobs))
	for _, b := range blobs {
		fromBlobs = append(fromBlobs, blobInvoice(b))
	}

	fallback := s.readFallback(s.db.WithContext(ctx), p)
	fromText := make([]model.Invoice, 0, len(fallback))
	for _, f := range fallback {
		inv := f.Invoice
		inv.Content = "data:" + defaultMime(inv.MimeType) + ";base64," + f.Base64Data
		inv.State = model.InvoicePersistedLocal
		fromText = append(fromText, inv)
	}

	out := model.DedupeInvoices(fromBlobs, fromText)
	model.SortNewestFirst(out)
	return out, nil
}

func blobInvoice(b model.InvoiceBlob) model.Invoice {
	return model.Invoice{
		ID:        b.ID,
		Name:      b.Name,
		CreatedAt: b.CreatedAt,
		MimeType:  b.MimeType,
		ByteSize:  b.ByteSize,
		Width:     b.Width,
		Height:    b.Height,
		Month:     b.Month,
		Year:      b.Year,
		Content:   model.DataURL(b.MimeType, b.Data),
		State:     model.InvoicePersistedLocal,
	}
}

func defaultMime(m string) string {
	if m == "" {
		return "image/jpeg"
	}
	return m
}

// InvoicePayload returns the stored bytes and MIME type of invoice id.
func (s *LocalStore) InvoicePayload(ctx context.Context, id string) ([]byte, string, bool) {
	var blob model.InvoiceBlob
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&blob).Error
	if err == nil {
		return blob.Data, defaultMime(blob.MimeType), true
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		s.logger.Printf("[warn] local read invoice %s: %v", id, err)
	}

	partitions, err := s.Partitions(ctx, model.CategoryInvoices)
	if err != nil {
		s.logger.Printf("[warn] %v", err)
		return nil, "", false
	}
	for _, p := range partitions {
		for _, f := range s.readFallback(s.db.WithContext(ctx), p) {
			if f.ID != id {
				continue
			}
			data, err := base64.StdEncoding.DecodeString(f.Base64Data)
			if err != nil {
				s.logger.Printf("[warn] invoice %s payload unreadable: %v", id, err)
				return nil, "", false
			}
			return data, defaultMime(f.MimeType), true
		}
	}
	return nil, "", false
}

// DeleteInvoice removes id from both representations. It reports false
// when the id was stored in neither.
func (s *LocalStore) DeleteInvoice(ctx context.Context, id string) (bool, error) {
	found := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ?", id).Delete(&model.InvoiceBlob{})
		if res.Error != nil {
			return fmt.Errorf("delete invoice blob: %w", res.Error)
		}
		found = res.RowsAffected > 0

		var keys []string
		if err := tx.Model(&model.PartitionEntry{}).
			Where("category = ?", model.CategoryInvoices).
			Pluck("partition_key", &keys).Error; err != nil {
			return fmt.Errorf("list invoice partitions: %w", err)
		}
		for _, key := range keys {
			p, err := model.ParseKey(key)
			if err != nil {
				continue
			}
			list := s.readFallback(tx, p)
			kept := list[:0]
			for _, f := range list {
				if f.ID != id {
					kept = append(kept, f)
				}
			}
			if len(kept) == len(list) {
				continue
			}
			found = true
			if err := s.writeFallback(tx, p, kept); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return found, nil
}
