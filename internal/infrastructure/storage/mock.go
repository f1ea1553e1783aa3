package storage

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MockRepository is an in-memory implementation of Repository for testing.
// It stores all data in maps and slices, making tests fast and isolated.
type MockRepository struct {
	mu           sync.Mutex
	submissions  map[string]*Submission
	observations []*PriceObservation
	links        []*CodeLink
	runs         map[int64]*ProcessingRun
	documents    []*DocumentLog
	nextRunID    int64
	nextObsID    int64
	nextLinkID   int64

	// Hooks for test assertions
	RecordSubmissionCalls int
	LastSubmission        *Submission
	SaveLinksCalled       bool
	StartRunCalled        bool
	LogDocumentCalled     bool

	// Error injection for testing error paths
	RecordSubmissionErr error
	GetSubmissionErr    error
	PriceHistoryErr     error
	SaveLinksErr        error
	ListLinksErr        error
	StartRunErr         error
	CompleteRunErr      error
	LogDocumentErr      error

	// Now is the clock used for timestamps.
	Now func() time.Time
}

// NewMockRepository creates a new mock repository for testing
func NewMockRepository() *MockRepository {
	return &MockRepository{
		submissions: make(map[string]*Submission),
		runs:        make(map[int64]*ProcessingRun),
		nextRunID:   1,
		nextObsID:   1,
		nextLinkID:  1,
		Now:         time.Now,
	}
}

// Compile-time check that MockRepository implements Repository
var _ Repository = (*MockRepository)(nil)

// Close does nothing for mock
func (m *MockRepository) Close() error {
	return nil
}

// RecordSubmission mirrors the SQLite semantics in memory.
func (m *MockRepository) RecordSubmission(_ context.Context, sub *Submission, observations []*PriceObservation) (*RecordResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.RecordSubmissionCalls++
	m.LastSubmission = sub
	if m.RecordSubmissionErr != nil {
		return nil, m.RecordSubmissionErr
	}

	now := m.Now()
	if existing, ok := m.submissions[sub.Fingerprint]; ok {
		existing.DuplicateCount++
		existing.LastSeenAt = now
		copied := *existing
		return &RecordResult{Duplicate: true, Submission: &copied}, nil
	}

	stored := *sub
	stored.FirstSeenAt = now
	stored.LastSeenAt = now
	m.submissions[sub.Fingerprint] = &stored

	for _, obs := range observations {
		obs.Fingerprint = sub.Fingerprint
		obs.Prior = m.prior(obs)
		obs.ID = m.nextObsID
		m.nextObsID++
		copied := *obs
		copied.Prior = nil
		m.observations = append(m.observations, &copied)
	}

	result := stored
	return &RecordResult{Submission: &result}, nil
}

func (m *MockRepository) prior(obs *PriceObservation) *PriceObservation {
	var best *PriceObservation
	for _, o := range m.observations {
		if o.Code != obs.Code || o.PriceUnit != obs.PriceUnit || o.Fingerprint == obs.Fingerprint {
			continue
		}
		if o.ObservedAt.After(obs.ObservedAt) {
			continue
		}
		if best == nil || !o.ObservedAt.Before(best.ObservedAt) {
			best = o
		}
	}
	if best == nil {
		return nil
	}
	copied := *best
	return &copied
}

// GetSubmission retrieves a submission from the in-memory map
func (m *MockRepository) GetSubmission(_ context.Context, fingerprint string) (*Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.GetSubmissionErr != nil {
		return nil, m.GetSubmissionErr
	}
	sub, ok := m.submissions[fingerprint]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *sub
	return &copied, nil
}

// HasSubmission checks the in-memory map
func (m *MockRepository) HasSubmission(_ context.Context, fingerprint string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.GetSubmissionErr != nil {
		return false, m.GetSubmissionErr
	}
	_, ok := m.submissions[fingerprint]
	return ok, nil
}

// ListSubmissions returns submissions by last seen, newest first
func (m *MockRepository) ListSubmissions(_ context.Context, limit int) ([]*Submission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	subs := make([]*Submission, 0, len(m.submissions))
	for _, sub := range m.submissions {
		copied := *sub
		subs = append(subs, &copied)
	}
	sort.Slice(subs, func(i, j int) bool {
		if !subs[i].LastSeenAt.Equal(subs[j].LastSeenAt) {
			return subs[i].LastSeenAt.After(subs[j].LastSeenAt)
		}
		return subs[i].Fingerprint < subs[j].Fingerprint
	})
	if limit > 0 && len(subs) > limit {
		subs = subs[:limit]
	}
	return subs, nil
}

// PriceHistory returns observations for code, newest first
func (m *MockRepository) PriceHistory(_ context.Context, code string, limit int) ([]*PriceObservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.PriceHistoryErr != nil {
		return nil, m.PriceHistoryErr
	}
	var out []*PriceObservation
	for i := len(m.observations) - 1; i >= 0; i-- {
		if m.observations[i].Code == code {
			copied := *m.observations[i]
			out = append(out, &copied)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ObservedAt.After(out[j].ObservedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ObservationsBySubmission returns the observations of one submission
func (m *MockRepository) ObservationsBySubmission(_ context.Context, fingerprint string) ([]*PriceObservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*PriceObservation
	for _, o := range m.observations {
		if o.Fingerprint == fingerprint {
			copied := *o
			out = append(out, &copied)
		}
	}
	return out, nil
}

// SaveLinks appends links
func (m *MockRepository) SaveLinks(_ context.Context, links []*CodeLink) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.SaveLinksCalled = true
	if m.SaveLinksErr != nil {
		return m.SaveLinksErr
	}
	for _, link := range links {
		if link.ConfirmedAt.IsZero() {
			link.ConfirmedAt = m.Now()
		}
		link.ID = m.nextLinkID
		m.nextLinkID++
		copied := *link
		m.links = append(m.links, &copied)
	}
	return nil
}

// ListLinks returns all links in confirmation order
func (m *MockRepository) ListLinks(_ context.Context) ([]*CodeLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ListLinksErr != nil {
		return nil, m.ListLinksErr
	}
	out := make([]*CodeLink, 0, len(m.links))
	for _, link := range m.links {
		copied := *link
		out = append(out, &copied)
	}
	return out, nil
}

// StartRun creates a mock run
func (m *MockRepository) StartRun(_ context.Context, runUUID, source string, documents int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.StartRunCalled = true
	if m.StartRunErr != nil {
		return 0, m.StartRunErr
	}
	id := m.nextRunID
	m.nextRunID++
	m.runs[id] = &ProcessingRun{
		ID:        id,
		UUID:      runUUID,
		Source:    source,
		StartedAt: m.Now(),
		Documents: documents,
		Status:    RunRunning,
	}
	return id, nil
}

// CompleteRun marks a mock run complete
func (m *MockRepository) CompleteRun(_ context.Context, runID int64, counts RunCounts) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.CompleteRunErr != nil {
		return m.CompleteRunErr
	}
	run, ok := m.runs[runID]
	if !ok {
		return ErrNotFound
	}
	now := m.Now()
	run.CompletedAt = &now
	run.RunCounts = counts
	run.Status = RunCompleted
	if counts.Failed > 0 {
		run.Status = RunCompletedWithErrors
	}
	return nil
}

// ListRuns returns runs, newest first
func (m *MockRepository) ListRuns(_ context.Context, limit int) ([]*ProcessingRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	runs := make([]*ProcessingRun, 0, len(m.runs))
	for _, run := range m.runs {
		copied := *run
		runs = append(runs, &copied)
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].ID > runs[j].ID })
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

// GetRun retrieves a run
func (m *MockRepository) GetRun(_ context.Context, runID int64) (*ProcessingRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	run, ok := m.runs[runID]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *run
	return &copied, nil
}

// LogDocument appends a document outcome
func (m *MockRepository) LogDocument(_ context.Context, doc *DocumentLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.LogDocumentCalled = true
	if m.LogDocumentErr != nil {
		return m.LogDocumentErr
	}
	copied := *doc
	m.documents = append(m.documents, &copied)
	return nil
}

// DocumentsByRun returns document outcomes for a run
func (m *MockRepository) DocumentsByRun(_ context.Context, runID int64) ([]*DocumentLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*DocumentLog
	for _, doc := range m.documents {
		if doc.RunID == runID {
			copied := *doc
			out = append(out, &copied)
		}
	}
	return out, nil
}
