package cloud

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"earthworks-ledger/internal/model"
)

// maxInlinePayload keeps base64 content under the 1 MiB document limit.
const maxInlinePayload = 700 << 10

type FirestoreConfig struct {
	ProjectID       string
	CredentialsFile string
	// Bucket, when set, receives invoice images instead of inline content.
	Bucket string
}

// FirestoreStore talks to Cloud Firestore and, optionally, a Cloud Storage
// bucket. Clients are created on first use; a failed attempt is retried
// on the next call.
type FirestoreStore struct {
	cfg    FirestoreConfig
	logger *log.Logger

	mu      sync.Mutex
	client  *firestore.Client
	objects *storage.Client
}

func NewFirestoreStore(cfg FirestoreConfig, logger *log.Logger) *FirestoreStore {
	if logger == nil {
		logger = log.New(os.Stderr, "", log.LstdFlags)
	}
	return &FirestoreStore{cfg: cfg, logger: logger}
}

func (s *FirestoreStore) options() []option.ClientOption {
	if s.cfg.CredentialsFile == "" {
		return nil
	}
	return []option.ClientOption{option.WithCredentialsFile(s.cfg.CredentialsFile)}
}

func (s *FirestoreStore) documents(ctx context.Context) (*firestore.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		return s.client, nil
	}
	client, err := firestore.NewClient(ctx, s.cfg.ProjectID, s.options()...)
	if err != nil {
		return nil, unavailable("connect firestore", err)
	}
	s.logger.Printf("[info] firestore client ready for project %s", s.cfg.ProjectID)
	s.client = client
	return client, nil
}

func (s *FirestoreStore) bucketClient(ctx context.Context) (*storage.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.objects != nil {
		return s.objects, nil
	}
	client, err := storage.NewClient(ctx, s.options()...)
	if err != nil {
		return nil, unavailable("connect storage", err)
	}
	s.objects = client
	return client, nil
}

// LoadDocument returns the document as JSON. A missing document is not an
// error.
func (s *FirestoreStore) LoadDocument(ctx context.Context, collection, id string) (json.RawMessage, bool, error) {
	client, err := s.documents(ctx)
	if err != nil {
		return nil, false, err
	}
	snap, err := client.Collection(collection).Doc(id).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, unavailable("load "+collection+"/"+id, err)
	}
	data, err := json.Marshal(snap.Data())
	if err != nil {
		return nil, false, unavailable("load "+collection+"/"+id, err)
	}
	return data, true, nil
}

func (s *FirestoreStore) SaveDocument(ctx context.Context, collection, id string, data json.RawMessage) error {
	var fields map[string]interface{}
	if err := json.Unmarshal(data, &fields); err != nil {
		return unavailable("save "+collection+"/"+id, err)
	}
	client, err := s.documents(ctx)
	if err != nil {
		return err
	}
	if _, err := client.Collection(collection).Doc(id).Set(ctx, fields); err != nil {
		return unavailable("save "+collection+"/"+id, err)
	}
	return nil
}

// QueryInvoices returns the invoices of a month, newest first.
func (s *FirestoreStore) QueryInvoices(ctx context.Context, month, year int) ([]model.Invoice, error) {
	client, err := s.documents(ctx)
	if err != nil {
		return nil, err
	}
	base := client.Collection(InvoicesCollection).
		Where("month", "==", month).
		Where("year", "==", year)

	list, err := newestFirst(
		func() ([]model.Invoice, error) {
			return s.readInvoices(ctx, base.OrderBy("createdAt", firestore.Desc))
		},
		func() ([]model.Invoice, error) {
			s.logger.Printf("[warn] invoices %d-%02d: ordered query unavailable, sorting locally", year, month)
			return s.readInvoices(ctx, base)
		},
	)
	if err != nil {
		return nil, unavailable("query invoices", err)
	}
	return list, nil
}

func (s *FirestoreStore) readInvoices(ctx context.Context, q firestore.Query) ([]model.Invoice, error) {
	snaps, err := q.Documents(ctx).GetAll()
	if err != nil {
		return nil, err
	}
	out := make([]model.Invoice, 0, len(snaps))
	for _, snap := range snaps {
		inv, err := decodeInvoice(snap.Ref.ID, snap.Data())
		if err != nil {
			s.logger.Printf("[warn] skip invoice %s: %v", snap.Ref.ID, err)
			continue
		}
		out = append(out, inv)
	}
	return out, nil
}

// decodeInvoice reads an invoice document. createdAt may be a timestamp or
// an RFC 3339 string, and numbers may arrive as integers or doubles.
func decodeInvoice(id string, data map[string]interface{}) (model.Invoice, error) {
	inv := model.Invoice{ID: id, State: model.InvoicePersistedCloud}
	if data == nil {
		return inv, errors.New("empty document")
	}
	var err error
	switch v := data["createdAt"].(type) {
	case time.Time:
		inv.CreatedAt = v
	case string:
		if inv.CreatedAt, err = time.Parse(time.RFC3339Nano, v); err != nil {
			return inv, fmt.Errorf("createdAt: %w", err)
		}
	case nil:
	default:
		return inv, fmt.Errorf("createdAt: unexpected %T", v)
	}

	strs := map[string]*string{
		"name":        &inv.Name,
		"type":        &inv.MimeType,
		"storagePath": &inv.StorageLocator,
		"downloadURL": &inv.Content,
	}
	for key, dst := range strs {
		switch v := data[key].(type) {
		case string:
			*dst = v
		case nil:
		default:
			return inv, fmt.Errorf("%s: unexpected %T", key, v)
		}
	}

	var size, width, height, month, year int64
	nums := map[string]*int64{
		"size":   &size,
		"width":  &width,
		"height": &height,
		"month":  &month,
		"year":   &year,
	}
	for key, dst := range nums {
		switch v := data[key].(type) {
		case int64:
			*dst = v
		case float64:
			*dst = int64(v)
		case nil:
		default:
			return inv, fmt.Errorf("%s: unexpected %T", key, v)
		}
	}
	inv.ByteSize = size
	inv.Width, inv.Height = int(width), int(height)
	inv.Month, inv.Year = int(month), int(year)
	return inv, nil
}

// CreateInvoice stores inv and returns it with its generated id. The
// payload goes to the bucket when one is configured, otherwise inline.
func (s *FirestoreStore) CreateInvoice(ctx context.Context, inv model.Invoice, payload []byte) (model.Invoice, error) {
	client, err := s.documents(ctx)
	if err != nil {
		return model.Invoice{}, err
	}
	if s.cfg.Bucket != "" {
		locator, url, err := s.upload(ctx, inv, payload)
		if err != nil {
			return model.Invoice{}, err
		}
		inv.StorageLocator, inv.Content = locator, url
	} else {
		if len(payload) > maxInlinePayload {
			return model.Invoice{}, unavailable("create invoice", fmt.Errorf("payload of %d bytes exceeds inline limit", len(payload)))
		}
		inv.StorageLocator = ""
		inv.Content = model.DataURL(inv.MimeType, payload)
	}

	ref, _, err := client.Collection(InvoicesCollection).Add(ctx, inv)
	if err != nil {
		if inv.StorageLocator != "" {
			s.removeObject(ctx, inv.StorageLocator)
		}
		return model.Invoice{}, unavailable("create invoice", err)
	}
	inv.ID = ref.ID
	inv.State = model.InvoicePersistedCloud
	return inv, nil
}

// objectPath builds invoices/{year}/{month}/{year}-{month}-{ts}-{rand}-{name}.
func objectPath(inv model.Invoice, now time.Time) string {
	name := strings.ReplaceAll(path.Base(inv.Name), " ", "_")
	if name == "." || name == "/" || name == "" {
		name = "invoice.jpg"
	}
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	file := fmt.Sprintf("%d-%02d-%d-%s-%s", inv.Year, inv.Month, now.UnixMilli(), suffix, name)
	return path.Join("invoices", fmt.Sprint(inv.Year), fmt.Sprintf("%02d", inv.Month), file)
}

func (s *FirestoreStore) upload(ctx context.Context, inv model.Invoice, payload []byte) (string, string, error) {
	objects, err := s.bucketClient(ctx)
	if err != nil {
		return "", "", err
	}
	locator := objectPath(inv, time.Now())
	w := objects.Bucket(s.cfg.Bucket).Object(locator).NewWriter(ctx)
	w.ContentType = inv.MimeType
	if _, err := w.Write(payload); err != nil {
		_ = w.Close()
		return "", "", unavailable("upload invoice", err)
	}
	if err := w.Close(); err != nil {
		return "", "", unavailable("upload invoice", err)
	}
	url := fmt.Sprintf("https://storage.googleapis.com/%s/%s", s.cfg.Bucket, locator)
	return locator, url, nil
}

func (s *FirestoreStore) removeObject(ctx context.Context, locator string) {
	objects, err := s.bucketClient(ctx)
	if err != nil {
		s.logger.Printf("[warn] remove object %s: %v", locator, err)
		return
	}
	err = objects.Bucket(s.cfg.Bucket).Object(locator).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		s.logger.Printf("[warn] remove object %s: %v", locator, err)
	}
}

// DeleteInvoice removes the invoice document and, when it has a storage
// locator, its object. Deleting an id the store does not hold fails.
func (s *FirestoreStore) DeleteInvoice(ctx context.Context, inv model.Invoice) error {
	client, err := s.documents(ctx)
	if err != nil {
		return err
	}
	if inv.StorageLocator != "" && s.cfg.Bucket != "" {
		objects, err := s.bucketClient(ctx)
		if err != nil {
			return err
		}
		err = objects.Bucket(s.cfg.Bucket).Object(inv.StorageLocator).Delete(ctx)
		if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
			return unavailable("delete invoice object", err)
		}
	}
	if _, err := client.Collection(InvoicesCollection).Doc(inv.ID).Delete(ctx, firestore.Exists); err != nil {
		return unavailable("delete invoice "+inv.ID, err)
	}
	return nil
}

func (s *FirestoreStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	if s.client != nil {
		errs = append(errs, s.client.Close())
		s.client = nil
	}
	if s.objects != nil {
		errs = append(errs, s.objects.Close())
		s.objects = nil
	}
	return errors.Join(errs...)
}
