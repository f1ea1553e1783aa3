package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/eshaffer321/invoice-ledger/internal/application/pipeline"
)

// PrintHeader prints the application header
func PrintHeader(w io.Writer, documents, workers int) {
	fmt.Fprintf(w, "invoice-ledger: reconciling %d document(s)", documents)
	if workers > 0 {
		fmt.Fprintf(w, " | Workers: %d", workers)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w)
}

// PrintReport prints one document report with its uncoded lines and alerts.
func PrintReport(w io.Writer, report *pipeline.Report) {
	number := ""
	if report.Header != nil {
		number = report.Header.InvoiceNumber
	}
	fmt.Fprintf(w, "%s [%s] %s\n", report.Source, report.Status(), number)

	if rec := report.Reconciliation; rec != nil {
		fmt.Fprintf(w, "  Totals: %s computed=%s declared=%s delta=%s tolerance=%s\n",
			rec.Decision, rec.ComputedNet.StringFixed(2), rec.DeclaredNet.StringFixed(2),
			rec.Delta.StringFixed(2), rec.Tolerance.StringFixed(2))
	}
	fmt.Fprintf(w, "  Lines: coded=%d no_match=%d skipped=%d discounts=%s\n",
		report.Count(pipeline.StatusCoded),
		report.Count(pipeline.StatusNoMatch),
		report.Count(pipeline.StatusSkipped),
		report.DiscountMode)

	for _, line := range report.Lines {
		if line.Status == pipeline.StatusNoMatch {
			fmt.Fprintf(w, "  ? line %d: %s\n", line.Position, line.Description)
		}
	}
	if report.Receipt != nil {
		for _, alert := range report.Receipt.Alerts() {
			fmt.Fprintf(w, "  ! %s: %s -> %s per %s (%s%%)\n",
				alert.Code, alert.Prior.Decimal.String(), alert.Price.String(),
				alert.PriceUnit, alert.DeltaPct.Decimal.StringFixed(2))
		}
	}
	if report.LedgerSkipped != "" {
		fmt.Fprintf(w, "  Not recorded: %s\n", report.LedgerSkipped)
	}
}

// PrintReportsJSON writes the reports as a JSON array.
func PrintReportsJSON(w io.Writer, result *pipeline.BatchResult) error {
	reports := make([]*pipeline.Report, 0, len(result.Reports))
	for _, r := range result.Reports {
		if r != nil {
			reports = append(reports, r)
		}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(reports)
}

// PrintBatchSummary prints the run result summary
func PrintBatchSummary(w io.Writer, result *pipeline.BatchResult) {
	fmt.Fprintln(w, strings.Repeat("-", 60))
	fmt.Fprintf(w, "Summary: Recorded=%d Duplicates=%d Unbalanced=%d Failed=%d\n",
		result.Counts.Recorded,
		result.Counts.Duplicates,
		result.Counts.Unbalanced,
		result.Counts.Failed)

	alerts := 0
	for _, r := range result.Reports {
		if r != nil {
			alerts += r.Alerts()
		}
	}
	if alerts > 0 {
		fmt.Fprintf(w, "Price alerts: %d\n", alerts)
	}

	// Print errors if any
	if len(result.Errors) > 0 {
		fmt.Fprintln(w, "\nErrors:")
		for _, err := range result.Errors {
			fmt.Fprintf(w, "  - %v\n", err)
		}
	}
	if result.RunUUID != "" {
		fmt.Fprintf(w, "\nRun: %s\n", result.RunUUID)
	}
}
