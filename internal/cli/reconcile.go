package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/eshaffer321/invoice-ledger/internal/application/pipeline"
	"github.com/eshaffer321/invoice-ledger/internal/infrastructure/config"
	"github.com/eshaffer321/invoice-ledger/internal/infrastructure/logging"
)

// RunReconcile processes the invoice files named by flags and prints the
// reports to w. Per-document failures are reported in the result, not
// returned as an error.
func RunReconcile(ctx context.Context, cfg *config.Config, flags *ReconcileFlags, w io.Writer) (*pipeline.BatchResult, error) {
	loggingCfg := cfg.Observability.Logging
	if flags.Verbose {
		loggingCfg.Level = "debug"
	}
	logger := logging.NewLoggerWithSystem(loggingCfg, "pipeline")

	docs, err := ReadDocuments(flags.Files)
	if err != nil {
		return nil, err
	}

	app, err := NewApp(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	defer func() { _ = app.Close() }()

	if !flags.JSON {
		PrintHeader(w, len(docs), flags.Workers)
	}

	result, err := app.Processor.ProcessBatch(ctx, flags.Source, docs, flags.Workers)
	if result == nil {
		return nil, err
	}

	if flags.JSON {
		if jerr := PrintReportsJSON(w, result); jerr != nil {
			return result, jerr
		}
		return result, err
	}
	for _, report := range result.Reports {
		if report != nil {
			PrintReport(w, report)
		}
	}
	PrintBatchSummary(w, result)
	return result, err
}

// ReadDocuments reads the named files. Directories contribute their *.xml
// files in name order.
func ReadDocuments(paths []string) ([]pipeline.Document, error) {
	var files []string
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, path)
			continue
		}
		entries, err := os.ReadDir(path)
		if err != nil {
			return nil, err
		}
		var names []string
		for _, e := range entries {
			if !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), ".xml") {
				names = append(names, filepath.Join(path, e.Name()))
			}
		}
		sort.Strings(names)
		files = append(files, names...)
	}

	docs := make([]pipeline.Document, 0, len(files))
	for _, file := range files {
		raw, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", file, err)
		}
		docs = append(docs, pipeline.Document{Source: file, Raw: raw})
	}
	return docs, nil
}
