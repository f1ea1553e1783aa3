package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// Submission is a recorded invoice, identified by its content fingerprint.
type Submission struct {
	Fingerprint    string          `json:"fingerprint"`
	SupplierID     string          `json:"supplier_id"`
	SupplierName   string          `json:"supplier_name"`
	InvoiceNumber  string          `json:"invoice_number"`
	InvoiceDate    time.Time       `json:"invoice_date"`
	Currency       string          `json:"currency"`
	DeclaredNet    decimal.Decimal `json:"declared_net"`
	LineCount      int             `json:"line_count"`
	FirstSeenAt    time.Time       `json:"first_seen_at"`
	LastSeenAt     time.Time       `json:"last_seen_at"`
	DuplicateCount int             `json:"duplicate_count"`
}

// PriceObservation is one net (VAT-excluded) price seen for a code.
//
// Price is the compared price: per kg or L when PriceUnit is a measure,
// per declared unit otherwise. UnitPrice is the invoice unit price as
// declared.
type PriceObservation struct {
	ID           int64           `json:"id"`
	Fingerprint  string          `json:"fingerprint"`
	Code         string          `json:"code"`
	Description  string          `json:"description"`
	SupplierID   string          `json:"supplier_id"`
	LinePosition int             `json:"line_position"`
	Quantity     decimal.Decimal `json:"quantity"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	Price        decimal.Decimal `json:"price"`
	PriceUnit    string          `json:"price_unit"`
	ObservedAt   time.Time       `json:"observed_at"`

	// Prior is filled by RecordSubmission and not stored.
	Prior *PriceObservation `json:"prior,omitempty"`
}

// RecordResult is the outcome of RecordSubmission.
type RecordResult struct {
	Duplicate  bool
	Submission *Submission // the stored row; for duplicates, the original
}

// CodeLink is a confirmed description -> code mapping.
type CodeLink struct {
	ID          int64     `json:"id"`
	SupplierID  string    `json:"supplier_id,omitempty"`
	Description string    `json:"description"`
	Code        string    `json:"code"`
	Source      string    `json:"source"` // "api", "import", "pipeline"
	ConfirmedAt time.Time `json:"confirmed_at"`
}

// ProcessingRun is a batch of documents processed together.
type ProcessingRun struct {
	ID          int64      `json:"id"`
	UUID        string     `json:"uuid"`
	Source      string     `json:"source"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Documents   int        `json:"documents"`
	RunCounts
	Status string `json:"status"`
}

// RunCounts are the per-outcome document counts of a run.
type RunCounts struct {
	Recorded   int `json:"recorded"`
	Duplicates int `json:"duplicates"`
	Unbalanced int `json:"unbalanced"`
	Failed     int `json:"failed"`
}

// Run statuses
const (
	RunRunning             = "running"
	RunCompleted           = "completed"
	RunCompletedWithErrors = "completed_with_errors"
)

// DocumentLog is the outcome of one document within a run.
type DocumentLog struct {
	RunID       int64     `json:"run_id"`
	Source      string    `json:"source"`
	Fingerprint string    `json:"fingerprint,omitempty"`
	Status      string    `json:"status"`
	Error       string    `json:"error,omitempty"`
	DurationMs  int64     `json:"duration_ms"`
	Timestamp   time.Time `json:"timestamp"`
}
