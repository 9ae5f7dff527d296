package model

import (
	"encoding/base64"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// InvoiceState tracks an invoice through attach and removal.
type InvoiceState string

const (
	InvoicePending        InvoiceState = "pending"
	InvoiceNormalizing    InvoiceState = "normalizing"
	InvoicePersistedCloud InvoiceState = "persisted_cloud"
	InvoicePersistedLocal InvoiceState = "persisted_local"
	InvoiceDeleted        InvoiceState = "deleted"
)

// Invoice is one scanned invoice image. Content is a fetchable URL or a
// data: URL carrying the image inline.
type Invoice struct {
	ID             string       `json:"id" firestore:"-"`
	Name           string       `json:"name" firestore:"name"`
	CreatedAt      time.Time    `json:"createdAt" firestore:"createdAt"`
	MimeType       string       `json:"type" firestore:"type"`
	ByteSize       int64        `json:"size" firestore:"size"`
	Width          int          `json:"width" firestore:"width"`
	Height         int          `json:"height" firestore:"height"`
	Month          int          `json:"month" firestore:"month"`
	Year           int          `json:"year" firestore:"year"`
	StorageLocator string       `json:"storagePath" firestore:"storagePath"`
	Content        string       `json:"downloadURL" firestore:"downloadURL"`
	State          InvoiceState `json:"state,omitempty" firestore:"-"`
}

// NewLocalInvoiceID returns an id of the form invoice-{unixMillis}-{suffix}.
func NewLocalInvoiceID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
	return fmt.Sprintf("invoice-%d-%s", now.UnixMilli(), suffix)
}

// DataURL encodes payload inline.
func DataURL(mimeType string, payload []byte) string {
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(payload)
}

// ParseDataURL is the inverse of DataURL.
func ParseDataURL(content string) ([]byte, string, error) {
	rest, ok := strings.CutPrefix(content, "data:")
	if !ok {
		return nil, "", fmt.Errorf("not a data url")
	}
	meta, encoded, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, "", fmt.Errorf("malformed data url")
	}
	mimeType, isBase64 := strings.CutSuffix(meta, ";base64")
	if !isBase64 {
		return nil, "", fmt.Errorf("data url is not base64")
	}
	payload, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, "", fmt.Errorf("decode data url: %w", err)
	}
	return payload, mimeType, nil
}

// DedupeInvoices keeps the first occurrence of every id, preserving order.
func DedupeInvoices(lists ...[]Invoice) []Invoice {
	seen := make(map[string]struct{})
	out := make([]Invoice, 0)
	for _, list := range lists {
		for _, inv := range list {
			if _, ok := seen[inv.ID]; ok {
				continue
			}
			seen[inv.ID] = struct{}{}
			out = append(out, inv)
		}
	}
	return out
}

// SortNewestFirst orders by CreatedAt descending, stable on ties.
func SortNewestFirst(invoices []Invoice) {
	sort.SliceStable(invoices, func(i, j int) bool {
		return invoices[i].CreatedAt.After(invoices[j].CreatedAt)
	})
}
