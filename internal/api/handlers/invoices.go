package handlers

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/eshaffer321/invoice-ledger/internal/adapters/eslog"
	"github.com/eshaffer321/invoice-ledger/internal/api/dto"
	"github.com/eshaffer321/invoice-ledger/internal/application/pipeline"
	"github.com/eshaffer321/invoice-ledger/internal/domain/invoice"
	"github.com/eshaffer321/invoice-ledger/internal/infrastructure/storage"
)

// InvoicesHandler accepts invoice documents.
type InvoicesHandler struct {
	*Base
	processor *pipeline.Processor
	maxBytes  int64
}

// NewInvoicesHandler creates a new invoices handler. maxBytes <= 0 uses the
// normalizer's default document limit.
func NewInvoicesHandler(repo storage.Repository, processor *pipeline.Processor, maxBytes int64, logger *slog.Logger) *InvoicesHandler {
	if maxBytes <= 0 {
		maxBytes = eslog.DefaultMaxDocumentBytes
	}
	return &InvoicesHandler{
		Base:      NewBase(repo, logger),
		processor: processor,
		maxBytes:  maxBytes,
	}
}

// Submit handles POST /api/invoices with the raw XML document as body.
//
// Malformed documents get 422, unsafe ones 400. A new submission gets 201;
// duplicates and unbalanced invoices get 200 with the report.
func (h *InvoicesHandler) Submit(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.WriteError(w, http.StatusRequestEntityTooLarge, dto.NewAPIError(dto.ErrCodeTooLarge, "document exceeds size limit"))
			return
		}
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("unable to read body"))
		return
	}
	if len(raw) == 0 {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("empty body"))
		return
	}

	source := r.URL.Query().Get("source")
	if source == "" {
		source = "api"
	}

	report, err := h.processor.Process(r.Context(), source, raw)
	switch {
	case errors.Is(err, invoice.ErrUnsafeDocument):
		h.WriteError(w, http.StatusBadRequest, dto.DocumentError(dto.ErrCodeUnsafe, err.Error(), invoice.SegmentOf(err)))
		return
	case errors.Is(err, invoice.ErrMalformedDocument):
		h.WriteError(w, http.StatusUnprocessableEntity, dto.DocumentError(dto.ErrCodeMalformed, err.Error(), invoice.SegmentOf(err)))
		return
	case err != nil:
		h.logger.Error("Failed to process invoice", "source", source, "error", err)
		h.WriteError(w, http.StatusInternalServerError, dto.InternalError())
		return
	}

	status := http.StatusOK
	if report.Status() == pipeline.DocumentRecorded {
		status = http.StatusCreated
	}
	h.WriteJSON(w, status, toReportResponse(report))
}

func toReportResponse(r *pipeline.Report) dto.ReportResponse {
	h := r.Header
	rec := r.Reconciliation
	resp := dto.ReportResponse{
		Source:        r.Source,
		Fingerprint:   r.Fingerprint,
		Status:        r.Status(),
		DiscountMode:  r.DiscountMode.String(),
		DiscountTotal: r.DiscountTotal.StringFixed(invoice.CurrencyPlaces),
		Invoice: dto.InvoiceResponse{
			SupplierID:    h.SupplierID,
			SupplierName:  h.SupplierName,
			InvoiceNumber: h.InvoiceNumber,
			InvoiceDate:   formatDate(h.InvoiceDate),
			Currency:      h.Currency,
			DeclaredNet:   invoice.FormatAmount(h.DeclaredNet),
			LineCount:     len(h.Lines),
		},
		Reconciliation: dto.ReconciliationResponse{
			Decision:      rec.Decision.String(),
			ComputedNet:   rec.ComputedNet.StringFixed(invoice.CurrencyPlaces),
			DeclaredNet:   invoice.FormatAmount(rec.DeclaredNet),
			Delta:         rec.Delta.StringFixed(invoice.CurrencyPlaces),
			Tolerance:     rec.Tolerance.String(),
			GrossMismatch: rec.GrossMismatch,
			Reason:        rec.Reason,
		},
		Lines:         r.Lines,
		Alerts:        r.Alerts(),
		LedgerSkipped: r.LedgerSkipped,
		DurationMs:    r.Duration.Milliseconds(),
	}
	if h.DeclaredGross.Valid {
		resp.Invoice.DeclaredGross = invoice.FormatAmount(h.DeclaredGross.Decimal)
	}
	if r.Receipt != nil {
		resp.Outcomes = r.Receipt.Outcomes
	}
	return resp
}
