package matcher

import (
	"sync"
	"sync/atomic"
	"time"
)

type codeStat struct {
	freq int
	last time.Time
}

type exactKey struct {
	supplier string
	norm     string
}

type exactEntry struct {
	code string
	at   time.Time
}

// Snapshot is an immutable view of the keyword index. Readers hold on to a
// snapshot for the duration of a match; writers never modify one in place.
type Snapshot struct {
	version uint64
	minLen  int
	tokens  map[string]map[string]codeStat
	exact   map[exactKey]exactEntry
	links   int
}

// Version increases with every rebuild or confirmation.
func (s *Snapshot) Version() uint64 { return s.version }

// Links is the number of confirmed links folded into the snapshot.
func (s *Snapshot) Links() int { return s.links }

// Tokens is the number of distinct tokens in the snapshot.
func (s *Snapshot) Tokens() int { return len(s.tokens) }

// Frequency returns how often token was confirmed for code.
func (s *Snapshot) Frequency(token, code string) int {
	return s.tokens[token][code].freq
}

func emptySnapshot(minLen int) *Snapshot {
	return &Snapshot{
		minLen: minLen,
		tokens: make(map[string]map[string]codeStat),
		exact:  make(map[exactKey]exactEntry),
	}
}

// add folds link into s. Only used while s is still private to a writer.
// Inner token maps are copied before their first write so that maps shared
// with the previous snapshot are never touched.
func (s *Snapshot) add(link Link, copied map[string]bool) {
	if link.Code == "" {
		return
	}
	s.links++

	for _, token := range Tokenize(link.Description, s.minLen) {
		codes := s.tokens[token]
		if !copied[token] {
			fresh := make(map[string]codeStat, len(codes)+1)
			for code, st := range codes {
				fresh[code] = st
			}
			codes = fresh
			s.tokens[token] = codes
			copied[token] = true
		}
		st := codes[link.Code]
		st.freq++
		if link.ConfirmedAt.After(st.last) {
			st.last = link.ConfirmedAt
		}
		codes[link.Code] = st
	}

	norm := NormalizeDescription(link.Description)
	if norm == "" {
		return
	}
	keys := []exactKey{{norm: norm}}
	if link.SupplierID != "" {
		keys = append(keys, exactKey{supplier: link.SupplierID, norm: norm})
	}
	for _, key := range keys {
		if prev, ok := s.exact[key]; ok && prev.at.After(link.ConfirmedAt) {
			continue
		}
		s.exact[key] = exactEntry{code: link.Code, at: link.ConfirmedAt}
	}
}

// Index is the keyword index: token -> code -> frequency, plus exact links.
// Rebuild and Confirm publish a new Snapshot atomically; Current never
// returns a partially built index.
type Index struct {
	minLen  int
	current atomic.Pointer[Snapshot]
	mu      sync.Mutex // serializes writers
}

// NewIndex creates an empty index.
func NewIndex(config Config) *Index {
	minLen := config.MinTokenLength
	if minLen <= 0 {
		minLen = DefaultConfig().MinTokenLength
	}
	ix := &Index{minLen: minLen}
	ix.current.Store(emptySnapshot(minLen))
	return ix
}

// Current returns the snapshot readers should use.
func (ix *Index) Current() *Snapshot {
	return ix.current.Load()
}

// Rebuild replaces the index with one built from the full link history.
// This is the only operation that can lower frequencies.
func (ix *Index) Rebuild(links []Link) *Snapshot {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	next := emptySnapshot(ix.minLen)
	next.version = ix.current.Load().version + 1
	copied := make(map[string]bool)
	for _, link := range links {
		next.add(link, copied)
	}
	ix.current.Store(next)
	return next
}

// Confirm folds newly confirmed links into a copy of the current snapshot
// and publishes it. Frequencies only grow.
func (ix *Index) Confirm(links ...Link) *Snapshot {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	prev := ix.current.Load()
	next := &Snapshot{
		version: prev.version + 1,
		minLen:  prev.minLen,
		tokens:  make(map[string]map[string]codeStat, len(prev.tokens)),
		exact:   make(map[exactKey]exactEntry, len(prev.exact)+len(links)),
		links:   prev.links,
	}
	for token, codes := range prev.tokens {
		next.tokens[token] = codes
	}
	for key, entry := range prev.exact {
		next.exact[key] = entry
	}

	copied := make(map[string]bool)
	for _, link := range links {
		next.add(link, copied)
	}
	ix.current.Store(next)
	return next
}
