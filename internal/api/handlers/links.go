package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/eshaffer321/invoice-ledger/internal/api/dto"
	"github.com/eshaffer321/invoice-ledger/internal/application/pipeline"
	"github.com/eshaffer321/invoice-ledger/internal/domain/matcher"
	"github.com/eshaffer321/invoice-ledger/internal/infrastructure/storage"
)

// LinksHandler lists and confirms description-to-code links.
type LinksHandler struct {
	*Base
	processor *pipeline.Processor
}

// NewLinksHandler creates a new links handler.
func NewLinksHandler(repo storage.Repository, processor *pipeline.Processor, logger *slog.Logger) *LinksHandler {
	return &LinksHandler{Base: NewBase(repo, logger), processor: processor}
}

// List handles GET /api/links.
func (h *LinksHandler) List(w http.ResponseWriter, r *http.Request) {
	links, err := h.repo.ListLinks(r.Context())
	if err != nil {
		h.logger.Error("Failed to list links", "error", err)
		h.WriteError(w, http.StatusInternalServerError, dto.InternalError())
		return
	}

	response := dto.LinkListResponse{Links: make([]dto.LinkResponse, 0, len(links)), Count: len(links)}
	for _, l := range links {
		response.Links = append(response.Links, dto.LinkResponse{
			SupplierID:  l.SupplierID,
			Description: l.Description,
			Code:        l.Code,
			Source:      l.Source,
			ConfirmedAt: formatTime(l.ConfirmedAt),
		})
	}
	h.WriteJSON(w, http.StatusOK, response)
}

// Confirm handles POST /api/links. Confirmed links are stored and take
// effect in the matcher immediately.
func (h *LinksHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	var req dto.ConfirmLinksRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("invalid JSON body"))
		return
	}
	if msg := req.Validate(); msg != "" {
		h.WriteError(w, http.StatusBadRequest, dto.ValidationError(msg))
		return
	}

	now := time.Now()
	var links []matcher.Link
	for _, l := range req.All() {
		links = append(links, matcher.Link{
			SupplierID:  l.SupplierID,
			Description: l.Description,
			Code:        l.Code,
			ConfirmedAt: now,
		})
	}

	if err := h.processor.ConfirmLinks(r.Context(), "api", links...); err != nil {
		h.logger.Error("Failed to confirm links", "error", err)
		h.WriteError(w, http.StatusInternalServerError, dto.InternalError())
		return
	}

	response := dto.LinkListResponse{Count: len(links)}
	for _, l := range links {
		response.Links = append(response.Links, dto.LinkResponse{
			SupplierID:  l.SupplierID,
			Description: l.Description,
			Code:        l.Code,
			Source:      "api",
			ConfirmedAt: formatTime(l.ConfirmedAt),
		})
	}
	h.WriteJSON(w, http.StatusCreated, response)
}
