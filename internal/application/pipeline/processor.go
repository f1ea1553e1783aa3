// Package pipeline runs invoice documents through normalization, discount
// resolution, reconciliation, code matching and the price ledger.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/eshaffer321/invoice-ledger/internal/adapters/eslog"
	"github.com/eshaffer321/invoice-ledger/internal/application/ledger"
	"github.com/eshaffer321/invoice-ledger/internal/domain/discounts"
	"github.com/eshaffer321/invoice-ledger/internal/domain/invoice"
	"github.com/eshaffer321/invoice-ledger/internal/domain/matcher"
	"github.com/eshaffer321/invoice-ledger/internal/domain/units"
	"github.com/eshaffer321/invoice-ledger/internal/domain/validator"
	"github.com/eshaffer321/invoice-ledger/internal/infrastructure/logging"
	"github.com/eshaffer321/invoice-ledger/internal/infrastructure/storage"
)

// Processor processes invoice documents. It is safe for concurrent use.
type Processor struct {
	normalizer *eslog.Normalizer
	matcher    *matcher.Matcher
	ledger     *ledger.Ledger
	store      storage.Repository
	config     Config
	logger     *slog.Logger
}

// NewProcessor creates a new processor. store may be nil, in which case
// batches are not logged and links are not persisted.
func NewProcessor(
	normalizer *eslog.Normalizer,
	m *matcher.Matcher,
	l *ledger.Ledger,
	store storage.Repository,
	config Config,
	logger *slog.Logger,
) *Processor {
	return &Processor{
		normalizer: normalizer,
		matcher:    m,
		ledger:     l,
		store:      store,
		config:     config,
		logger:     logging.OrDefault(logger),
	}
}

// Process runs one document through the pipeline.
//
// Only malformed or unsafe documents and ledger store failures are errors.
// A failed reconciliation is reported and skips the ledger step.
func (p *Processor) Process(ctx context.Context, source string, raw []byte) (*Report, error) {
	start := time.Now()

	header, err := p.normalizer.Normalize(raw)
	if err != nil {
		p.logger.Warn("Rejected document", "source", source, "segment", invoice.SegmentOf(err), "error", err)
		return nil, fmt.Errorf("%s: %w", source, err)
	}

	resolution := discounts.Resolve(header)
	result := validator.Reconcile(resolution, p.config.Policy)

	report := &Report{
		Source:         source,
		Fingerprint:    invoice.Fingerprint(result.Header),
		Header:         result.Header,
		DiscountMode:   resolution.Mode,
		DiscountTotal:  resolution.DiscountTotal,
		Reconciliation: result,
	}
	observations := p.classify(report, resolution)

	if result.GrossMismatch {
		p.logger.Warn("Declared gross does not match net plus VAT",
			"source", source,
			"invoice", header.InvoiceNumber,
		)
	}

	if err := result.Err(); err != nil {
		report.LedgerSkipped = result.Reason
		report.Duration = time.Since(start)
		p.logger.Warn("Reconciliation failed",
			"source", source,
			"invoice", header.InvoiceNumber,
			"declared", result.DeclaredNet.String(),
			"computed", result.ComputedNet.String(),
			"delta", result.Delta.String(),
			"tolerance", result.Tolerance.String(),
		)
		return report, nil
	}

	receipt, err := p.ledger.RecordInvoice(ctx, ledger.Submission{
		Header:       result.Header,
		Fingerprint:  report.Fingerprint,
		Observations: observations,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", source, err)
	}
	report.Receipt = receipt
	report.Duration = time.Since(start)

	p.logger.Info("Processed invoice",
		"source", source,
		"fingerprint", report.Fingerprint,
		"decision", result.Decision.String(),
		"discounts", resolution.Mode.String(),
		"coded", report.Count(StatusCoded),
		"no_match", report.Count(StatusNoMatch),
		"alerts", report.Alerts(),
		"duplicate", receipt.Duplicate,
	)
	return report, nil
}

// classify matches every line and builds the observations for coded lines.
func (p *Processor) classify(report *Report, resolution *discounts.Resolution) []ledger.Observation {
	h := report.Header
	observedAt := h.ServiceDate
	var observations []ledger.Observation

	for i, line := range h.Lines {
		out := LineOutcome{
			Position:    line.Position,
			Description: line.Description,
			ArticleCode: line.ArticleCode,
			Quantity:    line.Quantity,
			Unit:        line.Unit,
			BaseUnit:    line.BaseUnit,
		}

		if line.IsCorrection() {
			out.Status, out.SkipReason = StatusSkipped, SkipCorrection
			out.Amount = line.NetAmount
			report.Lines = append(report.Lines, out)
			continue
		}

		out.Amount = resolution.EffectiveAmount(i)
		out.Allocated = resolution.AllocatedAmount(i)
		switch {
		case line.Quantity.IsZero():
			out.Status, out.SkipReason = StatusSkipped, SkipZeroQuantity
		case !out.Amount.IsPositive() && line.Quantity.IsPositive():
			out.Status, out.SkipReason = StatusSkipped, SkipGratis
		}
		if out.Status != "" {
			p.logger.Debug("Skipped line", "position", line.Position, "reason", string(out.SkipReason))
			report.Lines = append(report.Lines, out)
			continue
		}

		out.UnitPrice = decimal.NewNullDecimal(out.Amount.DivRound(line.Quantity, 4).Abs())
		if price, ok := units.PricePerBaseUnit(line, out.Amount); ok {
			out.BaseUnitPrice = decimal.NewNullDecimal(price.Abs())
		}

		match := p.matcher.Match(h.SupplierID, line.Description)
		if match == nil {
			out.Status = StatusNoMatch
			p.logger.Debug("No match", "position", line.Position, "description", line.Description)
			report.Lines = append(report.Lines, out)
			continue
		}

		out.Status = StatusCoded
		out.Code = match.Code
		out.Confidence = match.Confidence
		out.MatchSource = match.Source
		p.logger.Debug("Matched line",
			"position", line.Position,
			"code", match.Code,
			"confidence", match.Confidence,
			"source", string(match.Source),
		)
		report.Lines = append(report.Lines, out)

		observations = append(observations, ledger.Observation{
			Code:          match.Code,
			Description:   line.Description,
			LinePosition:  line.Position,
			Quantity:      line.Quantity,
			UnitPrice:     out.UnitPrice.Decimal,
			Unit:          line.Unit,
			BaseUnitPrice: out.BaseUnitPrice,
			BaseUnit:      line.BaseUnit,
			ObservedAt:    observedAt,
		})
	}
	return observations
}
