package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"earthworks-ledger/internal/imaging"
	"earthworks-ledger/internal/model"
	"earthworks-ledger/internal/repository"
)

var (
	ErrNotImage  = errors.New("file is not an image")
	ErrEmptyFile = errors.New("file is empty")
)

// Upload is one file handed to Attach.
type Upload struct {
	Name     string
	MimeType string
	Data     []byte
}

// FileFailure is a file Attach could not store.
type FileFailure struct {
	Name string
	Err  error
}

type AttachReport struct {
	Invoices []model.Invoice
	Failures []FileFailure
}

// InvoiceService attaches, lists and removes invoice images.
type InvoiceService struct {
	cloud      CloudStore
	local      *repository.LocalStore
	normalizer *imaging.Normalizer
	logger     *log.Logger
	now        func() time.Time
}

func NewInvoiceService(cloud CloudStore, local *repository.LocalStore, normalizer *imaging.Normalizer, logger *log.Logger) *InvoiceService {
	if logger == nil {
		logger = log.New(os.Stderr, "", log.LstdFlags)
	}
	if normalizer == nil {
		normalizer = imaging.NewNormalizer()
	}
	return &InvoiceService{
		cloud:      cloud,
		local:      local,
		normalizer: normalizer,
		logger:     logger,
		now:        time.Now,
	}
}

// Attach stores every upload for the month. A failing file is reported
// and the rest of the batch continues.
func (s *InvoiceService) Attach(ctx context.Context, uploads []Upload, month, year int) AttachReport {
	report := AttachReport{Invoices: []model.Invoice{}}
	if _, err := model.NewPartition(model.CategoryInvoices, year, month); err != nil {
		for _, up := range uploads {
			report.Failures = append(report.Failures, FileFailure{Name: up.Name, Err: err})
		}
		return report
	}
	for _, up := range uploads {
		inv, err := s.attachOne(ctx, up, month, year)
		if err != nil {
			s.logger.Printf("[warn] invoice %q rejected: %v", up.Name, err)
			report.Failures = append(report.Failures, FileFailure{Name: up.Name, Err: err})
			continue
		}
		report.Invoices = append(report.Invoices, inv)
	}
	return report
}

func detectMime(up Upload) string {
	mime := strings.ToLower(strings.TrimSpace(up.MimeType))
	if mime == "" || mime == "application/octet-stream" {
		mime = http.DetectContentType(up.Data)
	}
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}
	return mime
}

func (s *InvoiceService) attachOne(ctx context.Context, up Upload, month, year int) (model.Invoice, error) {
	if len(up.Data) == 0 {
		return model.Invoice{}, ErrEmptyFile
	}
	mime := detectMime(up)
	if !strings.HasPrefix(mime, "image/") {
		return model.Invoice{}, fmt.Errorf("%w: %s", ErrNotImage, mime)
	}

	inv := model.Invoice{
		Name:      up.Name,
		CreatedAt: s.now().UTC(),
		Month:     month,
		Year:      year,
		State:     model.InvoiceNormalizing,
	}
	var payload []byte
	norm, err := s.normalizer.Normalize(up.Data, mime)
	if err == nil {
		payload = norm.Payload
		inv.MimeType, inv.Width, inv.Height = norm.MimeType, norm.Width, norm.Height
	} else {
		info, ok := imaging.Sniff(up.Data)
		if !ok {
			return model.Invoice{}, err
		}
		s.logger.Printf("[warn] invoice %q kept as uploaded: %v", up.Name, err)
		payload = up.Data
		inv.MimeType, inv.Width, inv.Height = mime, info.Width, info.Height
	}
	inv.ByteSize = int64(len(payload))

	created, err := s.cloud.CreateInvoice(ctx, inv, payload)
	if err == nil {
		return created, nil
	}
	s.logger.Printf("[warn] invoice %q stored locally: %v", up.Name, err)

	inv.ID = model.NewLocalInvoiceID(inv.CreatedAt)
	if err := s.local.PutInvoice(ctx, inv, payload); err != nil {
		return model.Invoice{}, fmt.Errorf("store invoice locally: %w", err)
	}
	inv.Content = model.DataURL(inv.MimeType, payload)
	inv.State = model.InvoicePersistedLocal
	return inv, nil
}

// List returns the invoices of a month, newest first and unique by id.
// Invoices only stored locally are listed alongside cloud ones.
func (s *InvoiceService) List(ctx context.Context, month, year int) ([]model.Invoice, Source, error) {
	fromCloud, cloudErr := s.cloud.QueryInvoices(ctx, month, year)
	fromLocal, localErr := s.local.ListInvoices(ctx, month, year)
	if cloudErr != nil {
		s.logger.Printf("[warn] invoices %d-%02d: %v, using local store", year, month, cloudErr)
		if localErr != nil {
			return nil, "", localErr
		}
		return model.DedupeInvoices(fromLocal), SourceLocal, nil
	}
	if localErr != nil {
		s.logger.Printf("[warn] local invoices %d-%02d: %v", year, month, localErr)
	}
	out := model.DedupeInvoices(fromCloud, fromLocal)
	model.SortNewestFirst(out)
	return out, SourceCloud, nil
}

// Remove deletes inv from the cloud, or from the local store when the
// cloud delete does not succeed. It reports whether either succeeded.
func (s *InvoiceService) Remove(ctx context.Context, inv model.Invoice) (bool, error) {
	err := s.cloud.DeleteInvoice(ctx, inv)
	if err == nil {
		return true, nil
	}
	s.logger.Printf("[warn] cloud delete %s: %v, trying local store", inv.ID, err)
	return s.local.DeleteInvoice(ctx, inv.ID)
}

// RemoveByID looks id up in the month listing so the storage locator is
// known, then removes it.
func (s *InvoiceService) RemoveByID(ctx context.Context, month, year int, id string) (bool, error) {
	inv, ok, err := s.Find(ctx, month, year, id)
	if err != nil {
		return false, err
	}
	if !ok {
		inv = model.Invoice{ID: id, Month: month, Year: year}
	}
	return s.Remove(ctx, inv)
}

func (s *InvoiceService) Find(ctx context.Context, month, year int, id string) (model.Invoice, bool, error) {
	list, _, err := s.List(ctx, month, year)
	if err != nil {
		return model.Invoice{}, false, err
	}
	for _, inv := range list {
		if inv.ID == id {
			return inv, true, nil
		}
	}
	return model.Invoice{}, false, nil
}

// Payload returns the image bytes of an invoice held inline or locally.
// For invoices kept in a bucket, url is the object address instead.
func (s *InvoiceService) Payload(ctx context.Context, month, year int, id string) (data []byte, mime, url string, ok bool) {
	if data, mime, ok := s.local.InvoicePayload(ctx, id); ok {
		return data, mime, "", true
	}
	inv, found, err := s.Find(ctx, month, year, id)
	if err != nil || !found {
		return nil, "", "", false
	}
	if strings.HasPrefix(inv.Content, "data:") {
		data, mime, err := model.ParseDataURL(inv.Content)
		if err != nil {
			s.logger.Printf("[warn] invoice %s content unreadable: %v", id, err)
			return nil, "", "", false
		}
		return data, mime, "", true
	}
	return nil, inv.MimeType, inv.Content, inv.Content != ""
}
