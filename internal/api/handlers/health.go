package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/eshaffer321/invoice-ledger/internal/api/dto"
	"github.com/eshaffer321/invoice-ledger/internal/domain/matcher"
)

// HealthHandler handles health check requests.
type HealthHandler struct {
	index func() *matcher.Snapshot
}

// NewHealthHandler creates a new health handler. index may be nil when the
// server runs without a processor.
func NewHealthHandler(index func() *matcher.Snapshot) *HealthHandler {
	return &HealthHandler{index: index}
}

// ServeHTTP handles the health check request.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	response := dto.NewHealthResponse()
	if h.index != nil {
		if snap := h.index(); snap != nil {
			response.Index = &dto.IndexStatus{
				Version: snap.Version(),
				Links:   snap.Links(),
				Tokens:  snap.Tokens(),
			}
		}
	}
	_ = json.NewEncoder(w).Encode(response)
}
