package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/eshaffer321/invoice-ledger/internal/infrastructure/storage"
)

// ProcessBatch processes documents concurrently with at most workers in
// flight. Per-document failures are collected in the result and never stop
// the batch. The returned error is non-nil only when ctx was cancelled.
func (p *Processor) ProcessBatch(ctx context.Context, source string, docs []Document, workers int) (*BatchResult, error) {
	if workers <= 0 {
		workers = p.config.Workers
	}
	if workers <= 0 {
		workers = DefaultWorkers
	}

	result := &BatchResult{
		RunUUID: uuid.NewString(),
		Reports: make([]*Report, len(docs)),
	}
	result.RunID = p.startRun(ctx, result.RunUUID, source, len(docs))

	p.logger.Info("Starting batch", "run", result.RunUUID, "documents", len(docs), "workers", workers)

	errs := make([]error, len(docs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, doc := range docs {
		i, doc := i, doc
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				errs[i] = err
				return nil
			}
			start := time.Now()
			report, err := p.Process(gctx, doc.Source, doc.Raw)
			result.Reports[i], errs[i] = report, err
			p.recordDocument(gctx, result.RunID, doc.Source, report, err, time.Since(start))
			return nil
		})
	}
	_ = g.Wait()

	for i, err := range errs {
		if err != nil {
			result.Errors = append(result.Errors, DocumentError{Source: docs[i].Source, Err: err})
			result.Counts.Failed++
			continue
		}
		switch result.Reports[i].Status() {
		case DocumentDuplicate:
			result.Counts.Duplicates++
		case DocumentUnbalanced:
			result.Counts.Unbalanced++
		default:
			result.Counts.Recorded++
		}
	}

	p.completeRun(result.RunID, result.Counts)
	p.logger.Info("Batch complete",
		"run", result.RunUUID,
		"recorded", result.Counts.Recorded,
		"duplicates", result.Counts.Duplicates,
		"unbalanced", result.Counts.Unbalanced,
		"failed", result.Counts.Failed,
	)
	return result, ctx.Err()
}

// startRun returns 0 when runs are not recorded.
func (p *Processor) startRun(ctx context.Context, runUUID, source string, documents int) int64 {
	if p.store == nil {
		return 0
	}
	id, err := p.store.StartRun(ctx, runUUID, source, documents)
	if err != nil {
		p.logger.Error("Failed to start run", "run", runUUID, "error", err)
		return 0
	}
	return id
}

func (p *Processor) completeRun(runID int64, counts storage.RunCounts) {
	if p.store == nil || runID == 0 {
		return
	}
	// The run is closed even when the batch context was cancelled.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.store.CompleteRun(ctx, runID, counts); err != nil {
		p.logger.Error("Failed to complete run", "run_id", runID, "error", err)
	}
}
