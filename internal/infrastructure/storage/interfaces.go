package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned by lookups that find no row.
var ErrNotFound = errors.New("not found")

// Repository defines the complete storage interface.
// This interface allows swapping implementations (SQLite, in-memory mock)
// and makes testing the application layer straightforward.
type Repository interface {
	SubmissionRepository
	ObservationRepository
	LinkRepository
	RunRepository
	Close() error
}

// SubmissionRepository stores invoice submissions keyed by fingerprint.
type SubmissionRepository interface {
	// RecordSubmission stores sub and its price observations in one
	// transaction. When the fingerprint already exists nothing is written
	// except the duplicate counter, and the result reports Duplicate.
	// Otherwise each observation's Prior is filled with the most recent
	// earlier observation for the same code and price unit from a different
	// submission.
	RecordSubmission(ctx context.Context, sub *Submission, observations []*PriceObservation) (*RecordResult, error)

	// GetSubmission retrieves a submission by fingerprint, or ErrNotFound.
	GetSubmission(ctx context.Context, fingerprint string) (*Submission, error)

	// HasSubmission reports whether the fingerprint was recorded.
	HasSubmission(ctx context.Context, fingerprint string) (bool, error)

	// ListSubmissions returns the most recently seen submissions first.
	ListSubmissions(ctx context.Context, limit int) ([]*Submission, error)
}

// ObservationRepository reads the price history.
type ObservationRepository interface {
	// PriceHistory returns observations for code, most recent first.
	PriceHistory(ctx context.Context, code string, limit int) ([]*PriceObservation, error)

	// ObservationsBySubmission returns the observations recorded with a
	// submission in line order.
	ObservationsBySubmission(ctx context.Context, fingerprint string) ([]*PriceObservation, error)
}

// LinkRepository stores confirmed description -> code links.
type LinkRepository interface {
	// SaveLinks inserts confirmed links.
	SaveLinks(ctx context.Context, links []*CodeLink) error

	// ListLinks returns every confirmed link in confirmation order.
	ListLinks(ctx context.Context) ([]*CodeLink, error)
}

// RunRepository tracks processing runs and per-document outcomes.
type RunRepository interface {
	// StartRun records the start of a processing run and returns its ID
	StartRun(ctx context.Context, runUUID, source string, documents int) (int64, error)

	// CompleteRun records the completion of a processing run
	CompleteRun(ctx context.Context, runID int64, counts RunCounts) error

	// ListRuns returns recent processing runs
	ListRuns(ctx context.Context, limit int) ([]*ProcessingRun, error)

	// GetRun retrieves a processing run by ID, or ErrNotFound.
	GetRun(ctx context.Context, runID int64) (*ProcessingRun, error)

	// LogDocument records the outcome of one document within a run
	LogDocument(ctx context.Context, doc *DocumentLog) error

	// DocumentsByRun returns document outcomes for a run in processing order
	DocumentsByRun(ctx context.Context, runID int64) ([]*DocumentLog, error)
}
