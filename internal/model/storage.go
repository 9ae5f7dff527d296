package model

import "time"

// PartitionEntry stores one per-month document as JSON text.
type PartitionEntry struct {
	PartitionKey string   `gorm:"primaryKey"`
	Category     Category `gorm:"index"`
	Year         int
	Month        int
	Body         string
	UpdatedAt    time.Time
}

// InvoiceBlob stores a normalized invoice image with its metadata.
type InvoiceBlob struct {
	ID        string `gorm:"primaryKey"`
	Name      string
	MimeType  string
	ByteSize  int64
	Width     int
	Height    int
	Month     int `gorm:"index:idx_invoice_period"`
	Year      int `gorm:"index:idx_invoice_period"`
	Data      []byte
	CreatedAt time.Time
}

// Setting is a process-wide value such as the passphrase hash or a global
// tool title.
type Setting struct {
	Name      string `gorm:"primaryKey"`
	Value     string
	UpdatedAt time.Time
}
