package pipeline

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/eshaffer321/invoice-ledger/internal/application/ledger"
	"github.com/eshaffer321/invoice-ledger/internal/domain/discounts"
	"github.com/eshaffer321/invoice-ledger/internal/domain/invoice"
	"github.com/eshaffer321/invoice-ledger/internal/domain/matcher"
	"github.com/eshaffer321/invoice-ledger/internal/domain/validator"
	"github.com/eshaffer321/invoice-ledger/internal/infrastructure/storage"
)

// LineStatus is what happened to one invoice line.
type LineStatus string

const (
	StatusCoded   LineStatus = "coded"
	StatusNoMatch LineStatus = "no_match"
	StatusSkipped LineStatus = "skipped"
)

// SkipReason explains a skipped line.
type SkipReason string

const (
	SkipZeroQuantity SkipReason = "zero_quantity"
	SkipCorrection   SkipReason = "correction"
	SkipGratis       SkipReason = "gratis" // free item, nothing to price
)

// Document status values written to the run log.
const (
	DocumentRecorded   = "recorded"
	DocumentDuplicate  = "duplicate"
	DocumentUnbalanced = "unbalanced"
	DocumentFailed     = "failed"
)

// Config holds processor settings
type Config struct {
	Policy validator.Policy

	// Workers bounds ProcessBatch concurrency when the caller passes 0.
	Workers int
}

// DefaultWorkers is used when neither the caller nor Config set a limit.
const DefaultWorkers = 4

// LineOutcome is the classification and pricing of one line.
type LineOutcome struct {
	Position    int        `json:"position"`
	Description string     `json:"description"`
	ArticleCode string     `json:"article_code,omitempty"`
	Status      LineStatus `json:"status"`
	SkipReason  SkipReason `json:"skip_reason,omitempty"`

	Code        string         `json:"code,omitempty"`
	Confidence  float64        `json:"confidence,omitempty"`
	MatchSource matcher.Source `json:"match_source,omitempty"`

	Quantity      decimal.Decimal     `json:"quantity"`
	Unit          invoice.Unit        `json:"unit"`
	Amount        decimal.Decimal     `json:"amount"` // effective net amount after discount resolution
	Allocated     decimal.Decimal     `json:"allocated"`
	UnitPrice     decimal.NullDecimal `json:"unit_price"`
	BaseUnit      invoice.Unit        `json:"base_unit"`
	BaseUnitPrice decimal.NullDecimal `json:"base_unit_price"`
}

// Report is the result of processing one document.
type Report struct {
	Source      string          `json:"source"`
	Fingerprint string          `json:"fingerprint"`
	Header      *invoice.Header `json:"-"`

	DiscountMode   discounts.Mode    `json:"discount_mode"`
	DiscountTotal  decimal.Decimal   `json:"discount_total"`
	Reconciliation *validator.Result `json:"-"`

	Lines []LineOutcome `json:"lines"`

	// Receipt is nil when the ledger step was skipped.
	Receipt *ledger.Receipt `json:"receipt,omitempty"`

	// LedgerSkipped explains why nothing was recorded.
	LedgerSkipped string `json:"ledger_skipped,omitempty"`

	Duration time.Duration `json:"-"`
}

// Status summarizes the report for the run log.
func (r *Report) Status() string {
	switch {
	case r.Receipt == nil:
		return DocumentUnbalanced
	case r.Receipt.Duplicate:
		return DocumentDuplicate
	}
	return DocumentRecorded
}

// Count returns the number of lines with the given status.
func (r *Report) Count(status LineStatus) int {
	n := 0
	for _, line := range r.Lines {
		if line.Status == status {
			n++
		}
	}
	return n
}

// Alerts returns the number of price alerts raised.
func (r *Report) Alerts() int {
	if r.Receipt == nil {
		return 0
	}
	return len(r.Receipt.Alerts())
}

// Document is one input of ProcessBatch.
type Document struct {
	Source string
	Raw    []byte
}

// DocumentError is a per-document failure inside a batch.
type DocumentError struct {
	Source string
	Err    error
}

func (e DocumentError) Error() string {
	return e.Source + ": " + e.Err.Error()
}

func (e DocumentError) Unwrap() error {
	return e.Err
}

// BatchResult holds batch results. Reports is index-aligned with the input
// documents; failed documents have a nil report and an entry in Errors.
type BatchResult struct {
	RunID   int64
	RunUUID string
	Reports []*Report
	Errors  []DocumentError
	Counts  storage.RunCounts
}
