// Package ledger records invoice submissions and the net prices they carry,
// and flags prices that moved beyond the configured threshold.
//
// A submission is identified by its content fingerprint. Recording the same
// fingerprint twice yields Duplicate outcomes and writes nothing but the
// duplicate counter. The duplicate check and the write run under a
// per-fingerprint lock and inside one storage transaction.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/eshaffer321/invoice-ledger/internal/domain/invoice"
	"github.com/eshaffer321/invoice-ledger/internal/domain/pricewatch"
	"github.com/eshaffer321/invoice-ledger/internal/infrastructure/locking"
	"github.com/eshaffer321/invoice-ledger/internal/infrastructure/logging"
	"github.com/eshaffer321/invoice-ledger/internal/infrastructure/storage"
)

// Validation errors for observations. Nothing is written when one occurs.
var (
	ErrGrossPrice    = errors.New("gross prices are not accepted")
	ErrNegativePrice = errors.New("negative price")
	ErrMissingCode   = errors.New("observation has no code")
)

// OutcomeKind is the result of recording one observation.
type OutcomeKind int

const (
	New OutcomeKind = iota
	Duplicate
	PriceAlert
)

func (k OutcomeKind) String() string {
	switch k {
	case Duplicate:
		return "duplicate"
	case PriceAlert:
		return "price_alert"
	}
	return "new"
}

// MarshalText renders the kind as its name.
func (k OutcomeKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText parses a name produced by MarshalText.
func (k *OutcomeKind) UnmarshalText(text []byte) error {
	switch string(text) {
	case "new":
		*k = New
	case "duplicate":
		*k = Duplicate
	case "price_alert":
		*k = PriceAlert
	default:
		return fmt.Errorf("unknown outcome kind %q", text)
	}
	return nil
}

// Observation is a net price seen on an invoice line.
type Observation struct {
	Code         string
	Description  string
	LinePosition int
	Quantity     decimal.Decimal

	// UnitPrice is the VAT-excluded price per declared Unit.
	UnitPrice decimal.Decimal
	Unit      invoice.Unit

	// BaseUnitPrice is the price per kg or L when the line's base unit is a
	// measure. When valid it is the price compared against history.
	BaseUnitPrice decimal.NullDecimal
	BaseUnit      invoice.Unit

	// VATIncluded marks a gross price. Such observations are rejected.
	VATIncluded bool

	ObservedAt time.Time
}

// ComparedPrice returns the price used for deviation checks and its unit.
func (o Observation) ComparedPrice() (decimal.Decimal, string) {
	if o.BaseUnitPrice.Valid && o.BaseUnit.IsMeasure() {
		return o.BaseUnitPrice.Decimal, o.BaseUnit.String()
	}
	return o.UnitPrice, o.Unit.String()
}

func (o Observation) validate() error {
	if o.Code == "" {
		return fmt.Errorf("line %d: %w", o.LinePosition, ErrMissingCode)
	}
	if o.VATIncluded {
		return fmt.Errorf("line %d: %w", o.LinePosition, ErrGrossPrice)
	}
	price, _ := o.ComparedPrice()
	if price.IsNegative() || o.UnitPrice.IsNegative() {
		return fmt.Errorf("line %d: %w: %s", o.LinePosition, ErrNegativePrice, price)
	}
	return nil
}

// Submission is a normalized invoice together with the observations to
// record for it.
type Submission struct {
	Header       *invoice.Header
	Fingerprint  string // computed from Header when empty
	Observations []Observation
}

// Outcome is the recording result of one observation.
type Outcome struct {
	Kind         OutcomeKind     `json:"kind"`
	Code         string          `json:"code"`
	LinePosition int             `json:"line_position"`
	Price        decimal.Decimal `json:"price"`
	PriceUnit    string          `json:"price_unit"`

	// Prior and DeltaPct are set whenever a prior observation existed.
	Prior    decimal.NullDecimal `json:"prior"`
	DeltaPct decimal.NullDecimal `json:"delta_pct"`
}

// Receipt is the result of RecordInvoice.
type Receipt struct {
	Fingerprint string              `json:"fingerprint"`
	Duplicate   bool                `json:"duplicate"`
	Outcomes    []Outcome           `json:"outcomes"`
	Submission  *storage.Submission `json:"submission,omitempty"`
}

// Alerts returns the PriceAlert outcomes.
func (r *Receipt) Alerts() []Outcome {
	var alerts []Outcome
	for _, o := range r.Outcomes {
		if o.Kind == PriceAlert {
			alerts = append(alerts, o)
		}
	}
	return alerts
}

// Ledger records submissions. It is safe for concurrent use.
type Ledger struct {
	repo   storage.Repository
	locker locking.Locker
	rule   pricewatch.Rule
	logger *slog.Logger
}

// NewLedger creates a ledger. A nil locker means an in-process lock.
func NewLedger(repo storage.Repository, locker locking.Locker, rule pricewatch.Rule, logger *slog.Logger) *Ledger {
	if locker == nil {
		locker = locking.NewLocalLocker()
	}
	return &Ledger{
		repo:   repo,
		locker: locker,
		rule:   rule,
		logger: logging.OrDefault(logger),
	}
}

// RecordInvoice records a submission and its observations.
func (l *Ledger) RecordInvoice(ctx context.Context, sub Submission) (*Receipt, error) {
	if sub.Header == nil {
		return nil, errors.New("submission has no header")
	}
	for _, obs := range sub.Observations {
		if err := obs.validate(); err != nil {
			return nil, err
		}
	}

	fp := sub.Fingerprint
	if fp == "" {
		fp = invoice.Fingerprint(sub.Header)
	}

	unlock, err := l.locker.Lock(ctx, "fingerprint:"+fp)
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", fp, err)
	}
	defer unlock()

	rows := make([]*storage.PriceObservation, len(sub.Observations))
	for i, obs := range sub.Observations {
		price, unit := obs.ComparedPrice()
		rows[i] = &storage.PriceObservation{
			Code:         obs.Code,
			Description:  obs.Description,
			SupplierID:   sub.Header.SupplierID,
			LinePosition: obs.LinePosition,
			Quantity:     obs.Quantity,
			UnitPrice:    obs.UnitPrice,
			Price:        price,
			PriceUnit:    unit,
			ObservedAt:   observedAt(obs, sub.Header),
		}
	}

	res, err := l.repo.RecordSubmission(ctx, toStorage(fp, sub.Header), rows)
	if err != nil {
		return nil, fmt.Errorf("record submission %s: %w", fp, err)
	}

	receipt := &Receipt{
		Fingerprint: fp,
		Duplicate:   res.Duplicate,
		Submission:  res.Submission,
		Outcomes:    make([]Outcome, len(rows)),
	}
	for i, row := range rows {
		out := Outcome{
			Kind:         New,
			Code:         row.Code,
			LinePosition: row.LinePosition,
			Price:        row.Price,
			PriceUnit:    row.PriceUnit,
		}
		switch {
		case res.Duplicate:
			out.Kind = Duplicate
		case row.Prior != nil:
			dev := l.rule.Compare(row.Prior.Price, row.Price)
			out.Prior = decimal.NewNullDecimal(row.Prior.Price)
			if row.Prior.Price.IsPositive() {
				out.DeltaPct = decimal.NewNullDecimal(dev.DeltaPct)
			}
			if dev.Alert {
				out.Kind = PriceAlert
				l.logger.Warn("Price alert",
					"code", row.Code,
					"prior", row.Prior.Price.String(),
					"current", row.Price.String(),
					"delta_pct", dev.DeltaPct.String(),
					"unit", row.PriceUnit,
				)
			}
		}
		receipt.Outcomes[i] = out
	}

	if res.Duplicate {
		l.logger.Info("Duplicate submission", "fingerprint", fp, "invoice", sub.Header.InvoiceNumber)
	} else {
		l.logger.Debug("Recorded submission", "fingerprint", fp, "observations", len(rows))
	}
	return receipt, nil
}

// Record is the single-observation form of RecordInvoice.
func (l *Ledger) Record(ctx context.Context, header *invoice.Header, obs Observation) (Outcome, error) {
	receipt, err := l.RecordInvoice(ctx, Submission{Header: header, Observations: []Observation{obs}})
	if err != nil {
		return Outcome{}, err
	}
	return receipt.Outcomes[0], nil
}

// History returns price observations for code, most recent first.
func (l *Ledger) History(ctx context.Context, code string, limit int) ([]*storage.PriceObservation, error) {
	return l.repo.PriceHistory(ctx, code, limit)
}

// Seen reports whether a fingerprint was recorded before.
func (l *Ledger) Seen(ctx context.Context, fingerprint string) (bool, error) {
	return l.repo.HasSubmission(ctx, fingerprint)
}

func observedAt(obs Observation, h *invoice.Header) time.Time {
	switch {
	case !obs.ObservedAt.IsZero():
		return obs.ObservedAt
	case !h.ServiceDate.IsZero():
		return h.ServiceDate
	case !h.InvoiceDate.IsZero():
		return h.InvoiceDate
	}
	return time.Now()
}

func toStorage(fp string, h *invoice.Header) *storage.Submission {
	lines := 0
	for _, line := range h.Lines {
		if !line.IsCorrection() {
			lines++
		}
	}
	return &storage.Submission{
		Fingerprint:   fp,
		SupplierID:    h.SupplierID,
		SupplierName:  h.SupplierName,
		InvoiceNumber: h.InvoiceNumber,
		InvoiceDate:   h.InvoiceDate,
		Currency:      h.Currency,
		DeclaredNet:   h.DeclaredNet,
		LineCount:     lines,
	}
}
