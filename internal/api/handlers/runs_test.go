package handlers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eshaffer321/invoice-ledger/internal/api/dto"
	"github.com/eshaffer321/invoice-ledger/internal/api/handlers"
	"github.com/eshaffer321/invoice-ledger/internal/infrastructure/storage"
)

// Helper to set chi URL param in context
func setChiURLParam(ctx context.Context, key, value string) context.Context {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return context.WithValue(ctx, chi.RouteCtxKey, rctx)
}

func TestRunsHandler_List(t *testing.T) {
	t.Run("returns empty list when no runs", func(t *testing.T) {
		repo := storage.NewMockRepository()
		handler := handlers.NewRunsHandler(repo, nil)

		req := httptest.NewRequest(http.MethodGet, "/api/runs", nil)
		rec := httptest.NewRecorder()

		handler.List(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)

		var response dto.RunListResponse
		err := json.NewDecoder(rec.Body).Decode(&response)
		require.NoError(t, err)

		assert.Empty(t, response.Runs)
		assert.Equal(t, 0, response.Count)
	})

	t.Run("returns runs newest first and respects limit", func(t *testing.T) {
		repo := storage.NewMockRepository()
		ctx := context.Background()
		runID1, _ := repo.StartRun(ctx, "uuid-1", "cli", 3)
		_ = repo.CompleteRun(ctx, runID1, storage.RunCounts{Recorded: 3})
		_, _ = repo.StartRun(ctx, "uuid-2", "api", 1)

		handler := handlers.NewRunsHandler(repo, nil)

		req := httptest.NewRequest(http.MethodGet, "/api/runs?limit=1", nil)
		rec := httptest.NewRecorder()

		handler.List(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		var response dto.RunListResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&response))
		require.Len(t, response.Runs, 1)
		assert.Equal(t, "uuid-2", response.Runs[0].UUID)
		assert.Equal(t, storage.RunRunning, response.Runs[0].Status)
	})
}

func TestRunsHandler_Get(t *testing.T) {
	t.Run("returns run with document log", func(t *testing.T) {
		repo := storage.NewMockRepository()
		ctx := context.Background()
		runID, _ := repo.StartRun(ctx, "uuid-1", "cli", 2)
		_ = repo.LogDocument(ctx, &storage.DocumentLog{RunID: runID, Source: "a.xml", Status: "recorded", Fingerprint: "fp"})
		_ = repo.LogDocument(ctx, &storage.DocumentLog{RunID: runID, Source: "b.xml", Status: "failed", Error: "malformed document"})
		_ = repo.CompleteRun(ctx, runID, storage.RunCounts{Recorded: 1, Failed: 1})

		handler := handlers.NewRunsHandler(repo, nil)

		req := httptest.NewRequest(http.MethodGet, "/api/runs/1", nil)
		req = req.WithContext(setChiURLParam(req.Context(), "id", "1"))
		rec := httptest.NewRecorder()

		handler.Get(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)

		var response dto.RunResponse
		err := json.NewDecoder(rec.Body).Decode(&response)
		require.NoError(t, err)

		assert.Equal(t, int64(1), response.ID)
		assert.Equal(t, "cli", response.Source)
		assert.Equal(t, 1, response.Recorded)
		assert.Equal(t, 1, response.Failed)
		assert.Equal(t, storage.RunCompletedWithErrors, response.Status)
		assert.NotEmpty(t, response.CompletedAt)
		require.Len(t, response.Log, 2)
		assert.Equal(t, "malformed document", response.Log[1].Error)
	})

	t.Run("returns 404 for non-existent run", func(t *testing.T) {
		repo := storage.NewMockRepository()
		handler := handlers.NewRunsHandler(repo, nil)

		req := httptest.NewRequest(http.MethodGet, "/api/runs/999", nil)
		req = req.WithContext(setChiURLParam(req.Context(), "id", "999"))
		rec := httptest.NewRecorder()

		handler.Get(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)

		var response dto.APIError
		err := json.NewDecoder(rec.Body).Decode(&response)
		require.NoError(t, err)

		assert.Equal(t, dto.ErrCodeNotFound, response.Code)
	})

	t.Run("returns 400 for invalid ID", func(t *testing.T) {
		repo := storage.NewMockRepository()
		handler := handlers.NewRunsHandler(repo, nil)

		req := httptest.NewRequest(http.MethodGet, "/api/runs/invalid", nil)
		req = req.WithContext(setChiURLParam(req.Context(), "id", "invalid"))
		rec := httptest.NewRecorder()

		handler.Get(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
