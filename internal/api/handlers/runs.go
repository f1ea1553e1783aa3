package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/eshaffer321/invoice-ledger/internal/api/dto"
	"github.com/eshaffer321/invoice-ledger/internal/infrastructure/storage"
)

// RunsHandler handles processing run-related HTTP requests.
type RunsHandler struct {
	*Base
}

// NewRunsHandler creates a new runs handler.
func NewRunsHandler(repo storage.Repository, logger *slog.Logger) *RunsHandler {
	return &RunsHandler{
		Base: NewBase(repo, logger),
	}
}

// List handles GET /api/runs - returns list of processing runs.
func (h *RunsHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := ParseIntParam(r, "limit", 20)

	runs, err := h.repo.ListRuns(r.Context(), limit)
	if err != nil {
		h.logger.Error("Failed to list runs", "error", err)
		h.WriteError(w, http.StatusInternalServerError, dto.InternalError())
		return
	}

	response := dto.RunListResponse{
		Runs:  make([]dto.RunResponse, 0, len(runs)),
		Count: len(runs),
	}

	for _, run := range runs {
		response.Runs = append(response.Runs, toRunResponse(run))
	}

	h.WriteJSON(w, http.StatusOK, response)
}

// Get handles GET /api/runs/{id} - returns a single run with its document log.
func (h *RunsHandler) Get(w http.ResponseWriter, r *http.Request) {
	idStr := chi.URLParam(r, "id")
	if idStr == "" {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("run ID is required"))
		return
	}

	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, dto.BadRequestError("invalid run ID"))
		return
	}

	run, err := h.repo.GetRun(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		h.WriteError(w, http.StatusNotFound, dto.NotFoundError("run"))
		return
	}
	if err != nil {
		h.logger.Error("Failed to load run", "run_id", id, "error", err)
		h.WriteError(w, http.StatusInternalServerError, dto.InternalError())
		return
	}

	docs, err := h.repo.DocumentsByRun(r.Context(), id)
	if err != nil {
		h.logger.Error("Failed to load run documents", "run_id", id, "error", err)
		h.WriteError(w, http.StatusInternalServerError, dto.InternalError())
		return
	}

	response := toRunResponse(run)
	for _, doc := range docs {
		response.Log = append(response.Log, dto.DocumentLogResponse{
			Source:      doc.Source,
			Fingerprint: doc.Fingerprint,
			Status:      doc.Status,
			Error:       doc.Error,
			DurationMs:  doc.DurationMs,
		})
	}
	h.WriteJSON(w, http.StatusOK, response)
}

// toRunResponse converts a storage ProcessingRun to an API response.
func toRunResponse(run *storage.ProcessingRun) dto.RunResponse {
	resp := dto.RunResponse{
		ID:         run.ID,
		UUID:       run.UUID,
		Source:     run.Source,
		StartedAt:  formatTime(run.StartedAt),
		Documents:  run.Documents,
		Recorded:   run.Recorded,
		Duplicates: run.Duplicates,
		Unbalanced: run.Unbalanced,
		Failed:     run.Failed,
		Status:     run.Status,
	}
	if run.CompletedAt != nil {
		resp.CompletedAt = formatTime(*run.CompletedAt)
	}
	return resp
}
