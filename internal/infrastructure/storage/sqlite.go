package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Storage provides SQLite database access for the price ledger.
// It implements the Repository interface.
type Storage struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// Compile-time check that Storage implements Repository
var _ Repository = (*Storage)(nil)

// Option configures a Storage.
type Option func(*Storage)

// WithLogger sets the logger used for migration output.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Storage) { s.logger = logger }
}

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(s *Storage) { s.now = now }
}

// dsn adds the connection parameters the ledger relies on: a busy timeout
// so concurrent writers wait instead of failing, immediate transactions so
// the duplicate check and the insert hold the write lock together, and
// foreign keys on every pooled connection.
func dsn(dbPath string) string {
	sep := "?"
	if strings.Contains(dbPath, "?") {
		sep = "&"
	}
	return dbPath + sep + "_busy_timeout=5000&_txlock=immediate&_foreign_keys=on"
}

// NewStorage creates a new storage instance with SQLite database
func NewStorage(dbPath string, opts ...Option) (*Storage, error) {
	db, err := sql.Open("sqlite3", dsn(dbPath))
	if err != nil {
		return nil, err
	}

	s := &Storage{db: db, logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}

	// Run all pending migrations
	if err := s.runMigrations(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	return s.db.Close()
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ================================================================
// SUBMISSIONS
// ================================================================

const submissionColumns = `fingerprint, supplier_id, supplier_name, invoice_number, invoice_date,
	currency, declared_net, line_count, first_seen_at, last_seen_at, duplicate_count`

type scanner interface {
	Scan(dest ...any) error
}

func scanSubmission(row scanner) (*Submission, error) {
	sub := &Submission{}
	err := row.Scan(
		&sub.Fingerprint,
		&sub.SupplierID,
		&sub.SupplierName,
		&sub.InvoiceNumber,
		&sub.InvoiceDate,
		&sub.Currency,
		&sub.DeclaredNet,
		&sub.LineCount,
		&sub.FirstSeenAt,
		&sub.LastSeenAt,
		&sub.DuplicateCount,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return sub, nil
}

func getSubmission(ctx context.Context, q querier, fingerprint string) (*Submission, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+submissionColumns+` FROM invoice_submissions WHERE fingerprint = ?`, fingerprint)
	return scanSubmission(row)
}

// RecordSubmission stores a submission and its observations atomically.
func (s *Storage) RecordSubmission(ctx context.Context, sub *Submission, observations []*PriceObservation) (result *RecordResult, err error) {
	now := s.now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO invoice_submissions
		(fingerprint, supplier_id, supplier_name, invoice_number, invoice_date,
		 currency, declared_net, line_count, first_seen_at, last_seen_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		sub.Fingerprint,
		sub.SupplierID,
		sub.SupplierName,
		sub.InvoiceNumber,
		sub.InvoiceDate.UTC(),
		sub.Currency,
		sub.DeclaredNet,
		sub.LineCount,
		now,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert submission: %w", err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}

	if inserted == 0 {
		if _, err = tx.ExecContext(ctx, `
			UPDATE invoice_submissions
			SET duplicate_count = duplicate_count + 1, last_seen_at = ?
			WHERE fingerprint = ?
		`, now, sub.Fingerprint); err != nil {
			return nil, fmt.Errorf("bump duplicate count: %w", err)
		}
		existing, err := getSubmission(ctx, tx, sub.Fingerprint)
		if err != nil {
			return nil, err
		}
		if err = tx.Commit(); err != nil {
			return nil, fmt.Errorf("commit: %w", err)
		}
		return &RecordResult{Duplicate: true, Submission: existing}, nil
	}

	for _, obs := range observations {
		obs.Fingerprint = sub.Fingerprint
		obs.ObservedAt = obs.ObservedAt.UTC()

		obs.Prior, err = priorObservation(ctx, tx, obs)
		if err != nil {
			return nil, fmt.Errorf("prior lookup for %s: %w", obs.Code, err)
		}

		res, err := tx.ExecContext(ctx, `
			INSERT INTO price_observations
			(fingerprint, code, description, supplier_id, line_position,
			 quantity, unit_price, price, price_unit, observed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			obs.Fingerprint,
			obs.Code,
			obs.Description,
			obs.SupplierID,
			obs.LinePosition,
			obs.Quantity,
			obs.UnitPrice,
			obs.Price,
			obs.PriceUnit,
			obs.ObservedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("insert observation: %w", err)
		}
		if obs.ID, err = res.LastInsertId(); err != nil {
			return nil, err
		}
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	stored := *sub
	stored.FirstSeenAt = now
	stored.LastSeenAt = now
	return &RecordResult{Submission: &stored}, nil
}

const observationColumns = `id, fingerprint, code, description, supplier_id, line_position,
	quantity, unit_price, price, price_unit, observed_at`

func scanObservation(row scanner) (*PriceObservation, error) {
	obs := &PriceObservation{}
	err := row.Scan(
		&obs.ID,
		&obs.Fingerprint,
		&obs.Code,
		&obs.Description,
		&obs.SupplierID,
		&obs.LinePosition,
		&obs.Quantity,
		&obs.UnitPrice,
		&obs.Price,
		&obs.PriceUnit,
		&obs.ObservedAt,
	)
	if err != nil {
		return nil, err
	}
	return obs, nil
}

// priorObservation returns the latest observation of the same code and
// price unit from another submission, observed no later than obs.
func priorObservation(ctx context.Context, q querier, obs *PriceObservation) (*PriceObservation, error) {
	row := q.QueryRowContext(ctx, `
		SELECT `+observationColumns+`
		FROM price_observations
		WHERE code = ? AND price_unit = ? AND fingerprint != ? AND observed_at <= ?
		ORDER BY observed_at DESC, id DESC
		LIMIT 1
	`, obs.Code, obs.PriceUnit, obs.Fingerprint, obs.ObservedAt)

	prior, err := scanObservation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return prior, err
}

// GetSubmission retrieves a submission by fingerprint
func (s *Storage) GetSubmission(ctx context.Context, fingerprint string) (*Submission, error) {
	return getSubmission(ctx, s.db, fingerprint)
}

// HasSubmission reports whether a fingerprint was recorded
func (s *Storage) HasSubmission(ctx context.Context, fingerprint string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM invoice_submissions WHERE fingerprint = ?`, fingerprint).Scan(&count)
	return count > 0, err
}

// ListSubmissions returns recent submissions
func (s *Storage) ListSubmissions(ctx context.Context, limit int) ([]*Submission, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+submissionColumns+`
		FROM invoice_submissions
		ORDER BY last_seen_at DESC, fingerprint
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var subs []*Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// ================================================================
// OBSERVATIONS
// ================================================================

func (s *Storage) queryObservations(ctx context.Context, query string, args ...any) ([]*PriceObservation, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*PriceObservation
	for rows.Next() {
		obs, err := scanObservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, obs)
	}
	return out, rows.Err()
}

// PriceHistory returns observations for code, most recent first
func (s *Storage) PriceHistory(ctx context.Context, code string, limit int) ([]*PriceObservation, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.queryObservations(ctx, `
		SELECT `+observationColumns+`
		FROM price_observations
		WHERE code = ?
		ORDER BY observed_at DESC, id DESC
		LIMIT ?
	`, code, limit)
}

// ObservationsBySubmission returns the observations of one submission
func (s *Storage) ObservationsBySubmission(ctx context.Context, fingerprint string) ([]*PriceObservation, error) {
	return s.queryObservations(ctx, `
		SELECT `+observationColumns+`
		FROM price_observations
		WHERE fingerprint = ?
		ORDER BY line_position, id
	`, fingerprint)
}

// ================================================================
// CODE LINKS
// ================================================================

// SaveLinks inserts confirmed links in one transaction
func (s *Storage) SaveLinks(ctx context.Context, links []*CodeLink) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, link := range links {
		if link.ConfirmedAt.IsZero() {
			link.ConfirmedAt = s.now()
		}
		if link.Source == "" {
			link.Source = "api"
		}
		res, err := tx.ExecContext(ctx, `
			INSERT INTO code_links (supplier_id, description, code, source, confirmed_at)
			VALUES (?, ?, ?, ?, ?)
		`, link.SupplierID, link.Description, link.Code, link.Source, link.ConfirmedAt.UTC())
		if err != nil {
			return fmt.Errorf("insert link: %w", err)
		}
		if link.ID, err = res.LastInsertId(); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ListLinks returns all confirmed links
func (s *Storage) ListLinks(ctx context.Context) ([]*CodeLink, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, supplier_id, description, code, source, confirmed_at
		FROM code_links
		ORDER BY confirmed_at, id
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var links []*CodeLink
	for rows.Next() {
		link := &CodeLink{}
		if err := rows.Scan(&link.ID, &link.SupplierID, &link.Description, &link.Code, &link.Source, &link.ConfirmedAt); err != nil {
			return nil, err
		}
		links = append(links, link)
	}
	return links, rows.Err()
}

// ================================================================
// PROCESSING RUNS
// ================================================================

// StartRun records the start of a processing run
func (s *Storage) StartRun(ctx context.Context, runUUID, source string, documents int) (int64, error) {
	query := `
		INSERT INTO processing_runs (uuid, source, started_at, documents, status)
		VALUES (?, ?, ?, ?, 'running')
	`

	result, err := s.db.ExecContext(ctx, query, runUUID, source, s.now().UTC(), documents)
	if err != nil {
		return 0, err
	}

	return result.LastInsertId()
}

// CompleteRun records the completion of a processing run
func (s *Storage) CompleteRun(ctx context.Context, runID int64, counts RunCounts) error {
	query := `
		UPDATE processing_runs
		SET completed_at = ?,
		    recorded = ?,
		    duplicates = ?,
		    unbalanced = ?,
		    failed = ?,
		    status = CASE WHEN ? > 0 THEN 'completed_with_errors' ELSE 'completed' END
		WHERE id = ?
	`

	_, err := s.db.ExecContext(ctx, query, s.now().UTC(),
		counts.Recorded, counts.Duplicates, counts.Unbalanced, counts.Failed,
		counts.Failed, runID)
	return err
}

const runColumns = `id, uuid, source, started_at, completed_at, documents,
	recorded, duplicates, unbalanced, failed, status`

func scanRun(row scanner) (*ProcessingRun, error) {
	run := &ProcessingRun{}
	var completed sql.NullTime
	err := row.Scan(
		&run.ID,
		&run.UUID,
		&run.Source,
		&run.StartedAt,
		&completed,
		&run.Documents,
		&run.Recorded,
		&run.Duplicates,
		&run.Unbalanced,
		&run.Failed,
		&run.Status,
	)
	if err != nil {
		return nil, err
	}
	if completed.Valid {
		run.CompletedAt = &completed.Time
	}
	return run, nil
}

// ListRuns returns recent processing runs
func (s *Storage) ListRuns(ctx context.Context, limit int) ([]*ProcessingRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+runColumns+`
		FROM processing_runs
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var runs []*ProcessingRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// GetRun retrieves a processing run by ID
func (s *Storage) GetRun(ctx context.Context, runID int64) (*ProcessingRun, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM processing_runs WHERE id = ?`, runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return run, err
}

// LogDocument records one document outcome
func (s *Storage) LogDocument(ctx context.Context, doc *DocumentLog) error {
	if doc.Timestamp.IsZero() {
		doc.Timestamp = s.now()
	}
	query := `
		INSERT INTO run_documents
		(run_id, source, fingerprint, status, error, duration_ms, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		doc.RunID,
		doc.Source,
		doc.Fingerprint,
		doc.Status,
		doc.Error,
		doc.DurationMs,
		doc.Timestamp.UTC(),
	)

	return err
}

// DocumentsByRun retrieves all document outcomes for a run
func (s *Storage) DocumentsByRun(ctx context.Context, runID int64) ([]*DocumentLog, error) {
	query := `
		SELECT run_id, source, COALESCE(fingerprint, ''), status, COALESCE(error, ''), COALESCE(duration_ms, 0), timestamp
		FROM run_documents
		WHERE run_id = ?
		ORDER BY id ASC
	`

	rows, err := s.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var docs []*DocumentLog
	for rows.Next() {
		doc := &DocumentLog{}
		err := rows.Scan(
			&doc.RunID,
			&doc.Source,
			&doc.Fingerprint,
			&doc.Status,
			&doc.Error,
			&doc.DurationMs,
			&doc.Timestamp,
		)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}

	return docs, rows.Err()
}
