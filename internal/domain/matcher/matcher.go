// Package matcher maps free-text invoice line descriptions to canonical
// product codes.
//
// Codes are learned from confirmed links (description -> code). Matching
// tries, in order:
//   - an exact link: the normalized description was confirmed before
//     (confidence 1)
//   - keyword scoring: every description token votes for the codes it was
//     confirmed with, weighted by frequency; the highest total wins and ties
//     go to the most recently confirmed code
//
// No match is a normal outcome (nil result), not an error.
//
// Example usage:
//
//	index := matcher.NewIndex(matcher.DefaultConfig())
//	index.Rebuild(links)
//	m := matcher.NewMatcher(index, matcher.DefaultConfig())
//	if result := m.Match(supplierID, "Mleko 3,5% 1L"); result != nil {
//		code := result.Code
//	}
package matcher

import (
	"sort"
	"strconv"
	"time"

	"github.com/patrickmn/go-cache"
)

// Match matches a description against this snapshot. supplierID narrows
// exact-link lookups to the supplier first and may be empty.
func (s *Snapshot) Match(supplierID, description string, minFrequency int) *MatchResult {
	norm := NormalizeDescription(description)
	if norm == "" {
		return nil
	}

	if supplierID != "" {
		if entry, ok := s.exact[exactKey{supplier: supplierID, norm: norm}]; ok {
			return &MatchResult{Code: entry.code, Confidence: 1, Source: SourceLink}
		}
	}
	if entry, ok := s.exact[exactKey{norm: norm}]; ok {
		return &MatchResult{Code: entry.code, Confidence: 1, Source: SourceLink}
	}

	type candidate struct {
		code   string
		score  int
		last   time.Time
		tokens []string
	}
	byCode := make(map[string]*candidate)
	total := 0

	for _, token := range Tokenize(description, s.minLen) {
		for code, st := range s.tokens[token] {
			if st.freq < minFrequency {
				continue
			}
			c, ok := byCode[code]
			if !ok {
				c = &candidate{code: code}
				byCode[code] = c
			}
			c.score += st.freq
			if st.last.After(c.last) {
				c.last = st.last
			}
			c.tokens = append(c.tokens, token)
			total += st.freq
		}
	}
	if total == 0 {
		return nil
	}

	candidates := make([]*candidate, 0, len(byCode))
	for _, c := range byCode {
		candidates = append(candidates, c)
	}
	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if !a.last.Equal(b.last) {
			return a.last.After(b.last)
		}
		return a.code < b.code
	})

	best := candidates[0]
	return &MatchResult{
		Code:       best.code,
		Confidence: float64(best.score) / float64(total),
		Score:      best.score,
		Source:     SourceKeyword,
		Tokens:     best.tokens,
	}
}

// Matcher matches descriptions against the current snapshot of an Index,
// memoizing results per snapshot version.
type Matcher struct {
	index  *Index
	config Config
	memo   *cache.Cache
}

// cached wraps results so that a miss can be memoized too.
type cached struct {
	result *MatchResult
}

// NewMatcher creates a new matcher with the given config
func NewMatcher(index *Index, config Config) *Matcher {
	m := &Matcher{index: index, config: config}
	if config.CacheTTL > 0 {
		m.memo = cache.New(config.CacheTTL, config.CacheCleanInterval)
	}
	return m
}

// Index returns the index the matcher reads from.
func (m *Matcher) Index() *Index {
	return m.index
}

// Match finds the best code for description. Returns nil when nothing in
// the index matches.
func (m *Matcher) Match(supplierID, description string) *MatchResult {
	snap := m.index.Current()
	if m.memo == nil {
		return snap.Match(supplierID, description, m.config.MinTokenFrequency)
	}

	key := strconv.FormatUint(snap.Version(), 10) + "\x00" + supplierID + "\x00" + description
	if hit, ok := m.memo.Get(key); ok {
		return copyResult(hit.(cached).result)
	}

	result := snap.Match(supplierID, description, m.config.MinTokenFrequency)
	m.memo.SetDefault(key, cached{result: copyResult(result)})
	return result
}

func copyResult(r *MatchResult) *MatchResult {
	if r == nil {
		return nil
	}
	out := *r
	out.Tokens = append([]string(nil), r.Tokens...)
	return &out
}
