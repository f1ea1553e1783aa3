package pipeline

import (
	"context"
	"time"

	"github.com/eshaffer321/invoice-ledger/internal/domain/invoice"
	"github.com/eshaffer321/invoice-ledger/internal/domain/matcher"
	"github.com/eshaffer321/invoice-ledger/internal/infrastructure/storage"
)

// Recording functions for batch runs and confirmed links.
// Failures to write the audit trail are logged, not returned.

// recordDocument logs one document outcome for a run
func (p *Processor) recordDocument(ctx context.Context, runID int64, source string, report *Report, procErr error, elapsed time.Duration) {
	if p.store == nil || runID == 0 {
		return
	}
	doc := &storage.DocumentLog{
		RunID:      runID,
		Source:     source,
		DurationMs: elapsed.Milliseconds(),
		Timestamp:  time.Now(),
	}
	if procErr != nil {
		doc.Status = DocumentFailed
		doc.Error = procErr.Error()
		if segment := invoice.SegmentOf(procErr); segment != "" {
			doc.Error += " (" + segment + ")"
		}
	} else {
		doc.Status = report.Status()
		doc.Fingerprint = report.Fingerprint
		doc.Error = report.LedgerSkipped
	}
	if err := p.store.LogDocument(ctx, doc); err != nil {
		p.logger.Error("Failed to save document log", "source", source, "error", err)
	}
}

// LoadLinks rebuilds the matcher index from every stored link plus extra,
// typically links imported from a workbook.
func (p *Processor) LoadLinks(ctx context.Context, extra ...matcher.Link) error {
	var links []matcher.Link
	if p.store != nil {
		stored, err := p.store.ListLinks(ctx)
		if err != nil {
			return err
		}
		for _, l := range stored {
			links = append(links, toMatcherLink(l))
		}
	}
	links = append(links, extra...)
	snap := p.matcher.Index().Rebuild(links)
	p.logger.Info("Loaded code links", "links", snap.Links(), "tokens", snap.Tokens(), "version", snap.Version())
	return nil
}

// ConfirmLinks persists links and adds them to the matcher index.
func (p *Processor) ConfirmLinks(ctx context.Context, source string, links ...matcher.Link) error {
	if len(links) == 0 {
		return nil
	}
	if p.store != nil {
		rows := make([]*storage.CodeLink, len(links))
		for i, l := range links {
			rows[i] = &storage.CodeLink{
				SupplierID:  l.SupplierID,
				Description: l.Description,
				Code:        l.Code,
				Source:      source,
				ConfirmedAt: l.ConfirmedAt,
			}
		}
		if err := p.store.SaveLinks(ctx, rows); err != nil {
			return err
		}
		for i := range links {
			links[i].ConfirmedAt = rows[i].ConfirmedAt
		}
	}
	snap := p.matcher.Index().Confirm(links...)
	p.logger.Debug("Confirmed links", "count", len(links), "version", snap.Version())
	return nil
}

func toMatcherLink(l *storage.CodeLink) matcher.Link {
	return matcher.Link{
		SupplierID:  l.SupplierID,
		Description: l.Description,
		Code:        l.Code,
		ConfirmedAt: l.ConfirmedAt,
	}
}

// IndexSnapshot returns the matcher snapshot currently in use.
func (p *Processor) IndexSnapshot() *matcher.Snapshot {
	return p.matcher.Index().Current()
}
