package dto

import (
	"time"

	"github.com/eshaffer321/invoice-ledger/internal/application/ledger"
	"github.com/eshaffer321/invoice-ledger/internal/application/pipeline"
)

// HealthResponse is returned by the health check endpoint.
type HealthResponse struct {
	Status    string       `json:"status"`
	Timestamp string       `json:"timestamp"`
	Index     *IndexStatus `json:"index,omitempty"`
}

// IndexStatus describes the code matcher snapshot in use.
type IndexStatus struct {
	Version uint64 `json:"version"`
	Links   int    `json:"links"`
	Tokens  int    `json:"tokens"`
}

// InvoiceResponse summarizes the normalized invoice header.
type InvoiceResponse struct {
	SupplierID    string `json:"supplier_id,omitempty"`
	SupplierName  string `json:"supplier_name,omitempty"`
	InvoiceNumber string `json:"invoice_number"`
	InvoiceDate   string `json:"invoice_date,omitempty"`
	Currency      string `json:"currency"`
	DeclaredNet   string `json:"declared_net"`
	DeclaredGross string `json:"declared_gross,omitempty"`
	LineCount     int    `json:"line_count"`
}

// ReconciliationResponse is the outcome of total reconciliation.
type ReconciliationResponse struct {
	Decision      string `json:"decision"`
	ComputedNet   string `json:"computed_net"`
	DeclaredNet   string `json:"declared_net"`
	Delta         string `json:"delta"`
	Tolerance     string `json:"tolerance"`
	GrossMismatch bool   `json:"gross_mismatch"`
	Reason        string `json:"reason,omitempty"`
}

// ReportResponse is returned by POST /api/invoices.
type ReportResponse struct {
	Source         string                 `json:"source"`
	Fingerprint    string                 `json:"fingerprint"`
	Status         string                 `json:"status"`
	Invoice        InvoiceResponse        `json:"invoice"`
	DiscountMode   string                 `json:"discount_mode"`
	DiscountTotal  string                 `json:"discount_total"`
	Reconciliation ReconciliationResponse `json:"reconciliation"`
	Lines          []pipeline.LineOutcome `json:"lines"`
	Outcomes       []ledger.Outcome       `json:"outcomes,omitempty"`
	Alerts         int                    `json:"alerts"`
	LedgerSkipped  string                 `json:"ledger_skipped,omitempty"`
	DurationMs     int64                  `json:"duration_ms"`
}

// SubmissionResponse represents a recorded invoice submission.
type SubmissionResponse struct {
	Fingerprint    string                `json:"fingerprint"`
	SupplierID     string                `json:"supplier_id,omitempty"`
	SupplierName   string                `json:"supplier_name,omitempty"`
	InvoiceNumber  string                `json:"invoice_number"`
	InvoiceDate    string                `json:"invoice_date,omitempty"`
	Currency       string                `json:"currency"`
	DeclaredNet    string                `json:"declared_net"`
	LineCount      int                   `json:"line_count"`
	FirstSeenAt    string                `json:"first_seen_at"`
	LastSeenAt     string                `json:"last_seen_at"`
	DuplicateCount int                   `json:"duplicate_count"`
	Observations   []ObservationResponse `json:"observations,omitempty"`
}

// SubmissionListResponse is returned when listing submissions.
type SubmissionListResponse struct {
	Submissions []SubmissionResponse `json:"submissions"`
	Count       int                  `json:"count"`
}

// ObservationResponse represents one recorded net price.
type ObservationResponse struct {
	Code         string `json:"code"`
	Description  string `json:"description"`
	Fingerprint  string `json:"fingerprint"`
	SupplierID   string `json:"supplier_id,omitempty"`
	LinePosition int    `json:"line_position"`
	Quantity     string `json:"quantity"`
	UnitPrice    string `json:"unit_price"`
	Price        string `json:"price"`
	PriceUnit    string `json:"price_unit"`
	ObservedAt   string `json:"observed_at"`
}

// PriceHistoryResponse is returned by GET /api/prices/{code}.
type PriceHistoryResponse struct {
	Code         string                `json:"code"`
	Observations []ObservationResponse `json:"observations"`
	Count        int                   `json:"count"`
}

// LinkResponse represents a confirmed code link.
type LinkResponse struct {
	SupplierID  string `json:"supplier_id,omitempty"`
	Description string `json:"description"`
	Code        string `json:"code"`
	Source      string `json:"source,omitempty"`
	ConfirmedAt string `json:"confirmed_at"`
}

// LinkListResponse is returned when listing or confirming links.
type LinkListResponse struct {
	Links []LinkResponse `json:"links"`
	Count int            `json:"count"`
}

// RunResponse represents a processing run in API responses.
type RunResponse struct {
	ID          int64                 `json:"id"`
	UUID        string                `json:"uuid"`
	Source      string                `json:"source"`
	StartedAt   string                `json:"started_at"`
	CompletedAt string                `json:"completed_at,omitempty"`
	Documents   int                   `json:"documents"`
	Recorded    int                   `json:"recorded"`
	Duplicates  int                   `json:"duplicates"`
	Unbalanced  int                   `json:"unbalanced"`
	Failed      int                   `json:"failed"`
	Status      string                `json:"status"`
	Log         []DocumentLogResponse `json:"log,omitempty"`
}

// DocumentLogResponse is one document outcome of a run.
type DocumentLogResponse struct {
	Source      string `json:"source"`
	Fingerprint string `json:"fingerprint,omitempty"`
	Status      string `json:"status"`
	Error       string `json:"error,omitempty"`
	DurationMs  int64  `json:"duration_ms"`
}

// RunListResponse is returned when listing processing runs.
type RunListResponse struct {
	Runs  []RunResponse `json:"runs"`
	Count int           `json:"count"`
}

// NewHealthResponse creates a health response with current timestamp.
func NewHealthResponse() HealthResponse {
	return HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}
