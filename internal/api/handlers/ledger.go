package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/eshaffer321/invoice-ledger/internal/api/dto"
	"github.com/eshaffer321/invoice-ledger/internal/domain/invoice"
	"github.com/eshaffer321/invoice-ledger/internal/infrastructure/storage"
)

// LedgerHandler serves recorded submissions and price history.
type LedgerHandler struct {
	*Base
}

// NewLedgerHandler creates a new ledger handler.
func NewLedgerHandler(repo storage.Repository, logger *slog.Logger) *LedgerHandler {
	return &LedgerHandler{Base: NewBase(repo, logger)}
}

// Prices handles GET /api/prices/{code} - most recent observation first.
func (h *LedgerHandler) Prices(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	if code == "" {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("code is required"))
		return
	}
	limit := ParseIntParam(r, "limit", 100)

	history, err := h.repo.PriceHistory(r.Context(), code, limit)
	if err != nil {
		h.logger.Error("Failed to load price history", "code", code, "error", err)
		h.WriteError(w, http.StatusInternalServerError, dto.InternalError())
		return
	}

	response := dto.PriceHistoryResponse{
		Code:         code,
		Observations: make([]dto.ObservationResponse, 0, len(history)),
		Count:        len(history),
	}
	for _, obs := range history {
		response.Observations = append(response.Observations, toObservationResponse(obs))
	}
	h.WriteJSON(w, http.StatusOK, response)
}

// Submissions handles GET /api/submissions.
func (h *LedgerHandler) Submissions(w http.ResponseWriter, r *http.Request) {
	limit := ParseIntParam(r, "limit", 50)

	subs, err := h.repo.ListSubmissions(r.Context(), limit)
	if err != nil {
		h.logger.Error("Failed to list submissions", "error", err)
		h.WriteError(w, http.StatusInternalServerError, dto.InternalError())
		return
	}

	response := dto.SubmissionListResponse{
		Submissions: make([]dto.SubmissionResponse, 0, len(subs)),
		Count:       len(subs),
	}
	for _, sub := range subs {
		response.Submissions = append(response.Submissions, toSubmissionResponse(sub))
	}
	h.WriteJSON(w, http.StatusOK, response)
}

// Submission handles GET /api/submissions/{fingerprint} including its observations.
func (h *LedgerHandler) Submission(w http.ResponseWriter, r *http.Request) {
	fp := chi.URLParam(r, "fingerprint")

	sub, err := h.repo.GetSubmission(r.Context(), fp)
	if errors.Is(err, storage.ErrNotFound) {
		h.WriteError(w, http.StatusNotFound, dto.NotFoundError("submission"))
		return
	}
	if err != nil {
		h.logger.Error("Failed to load submission", "fingerprint", fp, "error", err)
		h.WriteError(w, http.StatusInternalServerError, dto.InternalError())
		return
	}

	observations, err := h.repo.ObservationsBySubmission(r.Context(), fp)
	if err != nil {
		h.logger.Error("Failed to load observations", "fingerprint", fp, "error", err)
		h.WriteError(w, http.StatusInternalServerError, dto.InternalError())
		return
	}

	response := toSubmissionResponse(sub)
	for _, obs := range observations {
		response.Observations = append(response.Observations, toObservationResponse(obs))
	}
	h.WriteJSON(w, http.StatusOK, response)
}

func toSubmissionResponse(s *storage.Submission) dto.SubmissionResponse {
	return dto.SubmissionResponse{
		Fingerprint:    s.Fingerprint,
		SupplierID:     s.SupplierID,
		SupplierName:   s.SupplierName,
		InvoiceNumber:  s.InvoiceNumber,
		InvoiceDate:    formatDate(s.InvoiceDate),
		Currency:       s.Currency,
		DeclaredNet:    invoice.FormatAmount(s.DeclaredNet),
		LineCount:      s.LineCount,
		FirstSeenAt:    formatTime(s.FirstSeenAt),
		LastSeenAt:     formatTime(s.LastSeenAt),
		DuplicateCount: s.DuplicateCount,
	}
}

func toObservationResponse(o *storage.PriceObservation) dto.ObservationResponse {
	return dto.ObservationResponse{
		Code:         o.Code,
		Description:  o.Description,
		Fingerprint:  o.Fingerprint,
		SupplierID:   o.SupplierID,
		LinePosition: o.LinePosition,
		Quantity:     o.Quantity.String(),
		UnitPrice:    o.UnitPrice.String(),
		Price:        o.Price.String(),
		PriceUnit:    o.PriceUnit,
		ObservedAt:   formatDate(o.ObservedAt),
	}
}
